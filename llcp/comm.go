package llcp

import (
	"github.com/user/blue-llcp/logger"
	"github.com/user/blue-llcp/pdu"
)

// Version, feature, ping, min used channels, terminate, data length and CTE
// procedures share one machine per side.

const (
	lpCommIdle uint8 = iota
	lpCommWaitRx
	lpCommWaitTxAck
	lpCommWaitNtf
)

type lpComm struct{}

func (lpComm) init(ctx *ProcCtx) { ctx.state = lpCommIdle }

func (lpComm) run(c *Conn, ctx *ProcCtx) {
	switch ctx.state {
	case lpCommIdle:
		lpCommSend(c, ctx)
	case lpCommWaitNtf:
		lpCommNotify(c, ctx)
	}
}

func lpCommSend(c *Conn, ctx *ProcCtx) {
	switch ctx.proc {
	case ProcVersionExchange:
		if c.vex.valid {
			// Already exchanged on this connection: answer from the cache.
			ctx.state = lpCommWaitNtf
			lpCommNotify(c, ctx)
			return
		}
		v := c.e.cfg.Version
		if c.tx(ctx, &pdu.VersionInd{VersNr: v.Number, CompanyID: v.CompanyID, SubVersNr: v.SubVersion}) == nil {
			return
		}
		c.vex.sent = true
		ctx.expect(pdu.OpVersionInd)
		ctx.state = lpCommWaitRx

	case ProcFeatureExchange:
		if c.fex.valid {
			ctx.state = lpCommWaitNtf
			lpCommNotify(c, ctx)
			return
		}
		var pkt interface{} = &pdu.FeatureReq{Features: c.e.features}
		if c.role == RolePeripheral {
			pkt = &pdu.PerInitFeatXchg{Features: c.e.features}
		}
		if c.tx(ctx, pkt) == nil {
			return
		}
		ctx.expect(pdu.OpFeatureRsp)
		ctx.state = lpCommWaitRx

	case ProcLEPing:
		if c.tx(ctx, &pdu.PingReq{}) == nil {
			return
		}
		ctx.expect(pdu.OpPingRsp)
		ctx.state = lpCommWaitRx

	case ProcMinUsedChans:
		tx := c.tx(ctx, &pdu.MinUsedChanInd{Phys: ctx.data.muc.phys, MinUsedChans: ctx.data.muc.count})
		if tx == nil {
			return
		}
		ctx.txAck = tx
		ctx.state = lpCommWaitTxAck

	case ProcTerminate:
		tx := c.tx(ctx, &pdu.TerminateInd{ErrorCode: ctx.data.term.reason})
		if tx == nil {
			return
		}
		ctx.txAck = tx
		ctx.state = lpCommWaitTxAck

	case ProcDataLengthUpdate:
		if c.tx(ctx, &pdu.LengthReq{Length: c.dle.localPDU()}) == nil {
			return
		}
		ctx.expect(pdu.OpLengthRsp)
		ctx.state = lpCommWaitRx

	case ProcCTEReq:
		if c.tx(ctx, &pdu.CteReq{MinCTELen: ctx.data.cte.minLen, CTEType: ctx.data.cte.cteType}) == nil {
			return
		}
		ctx.expect(pdu.OpCteRsp)
		ctx.state = lpCommWaitRx
	}
}

func (lpComm) rx(c *Conn, ctx *ProcCtx, data []byte) {
	if ctx.state != lpCommWaitRx {
		return
	}
	ctx.rxOpcode = pdu.OpInvalid

	switch pdu.Opcode(data) {
	case pdu.OpUnknownRsp, pdu.OpRejectInd, pdu.OpRejectExtInd:
		lpCommRejected(c, ctx, data)
		return
	}

	pkt, err := pdu.DecodePacket(data)
	if err != nil {
		logger.Warn(c.prefix, "local %s: %v", ctx.proc, err)
		ctx.complete()
		return
	}
	switch p := pkt.(type) {
	case *pdu.VersionInd:
		c.vex.valid = true
		c.vex.peer = VersionInfo{VersNr: p.VersNr, CompanyID: p.CompanyID, SubVersNr: p.SubVersNr}
		ctx.state = lpCommWaitNtf
		lpCommNotify(c, ctx)
	case *pdu.FeatureRsp:
		c.fex.valid = true
		c.fex.peer = p.Features
		ctx.state = lpCommWaitNtf
		lpCommNotify(c, ctx)
	case *pdu.PingRsp:
		ctx.complete()
	case *pdu.LengthRsp:
		c.dle.setRemote(p.Length)
		if !c.dle.update() {
			ctx.complete()
			return
		}
		ctx.state = lpCommWaitNtf
		lpCommNotify(c, ctx)
	case *pdu.CteRsp:
		ctx.complete()
	}
}

func lpCommRejected(c *Conn, ctx *ProcCtx, data []byte) {
	var code uint8 = pdu.ErrUnsuppRemoteFeature
	if rc, ok := pdu.RejectCode(data); ok {
		code = rc
	}
	ctx.data.status = code
	logger.Info(c.prefix, "local %s refused by peer: %s", ctx.proc, pdu.ErrorName(code))

	switch ctx.proc {
	case ProcFeatureExchange, ProcCTEReq:
		ctx.state = lpCommWaitNtf
		lpCommNotify(c, ctx)
	default:
		ctx.complete()
	}
}

func lpCommNotify(c *Conn, ctx *ProcCtx) {
	var n Notification
	switch ctx.proc {
	case ProcVersionExchange:
		n = VersionNtf{Status: pdu.ErrSuccess, VersionInfo: c.vex.peer}
	case ProcFeatureExchange:
		if ctx.data.status != pdu.ErrSuccess {
			n = FeaturesNtf{Status: ctx.data.status}
		} else {
			n = FeaturesNtf{Status: pdu.ErrSuccess, Features: c.fex.peer}
		}
	case ProcDataLengthUpdate:
		n = c.dle.ntf()
	case ProcCTEReq:
		n = CTEReqFailedNtf{Status: ctx.data.status}
	default:
		ctx.complete()
		return
	}
	if c.notify(n) {
		ctx.complete()
	}
}

func (lpComm) txAck(c *Conn, ctx *ProcCtx, tx *TxNode) {
	if ctx.state != lpCommWaitTxAck {
		return
	}
	if ctx.proc == ProcTerminate {
		c.terminateReason = ctx.data.term.reason
		logger.Info(c.prefix, "terminate acknowledged (%s)", pdu.ErrorName(ctx.data.term.reason))
	}
	ctx.complete()
}

const (
	rpCommWaitRx uint8 = iota
	rpCommWaitTx
	rpCommWaitNtf
)

type rpComm struct{}

func (rpComm) init(ctx *ProcCtx) { ctx.state = rpCommWaitRx }

func (rpComm) run(c *Conn, ctx *ProcCtx) {
	switch ctx.state {
	case rpCommWaitTx:
		rpCommSend(c, ctx)
	case rpCommWaitNtf:
		if c.notify(c.dle.ntf()) {
			ctx.complete()
		}
	}
}

func (rpComm) rx(c *Conn, ctx *ProcCtx, data []byte) {
	if ctx.state != rpCommWaitRx {
		return
	}
	if ctx.proc == ProcUnknown {
		ctx.responseOpcode = pdu.OpUnknownRsp
		ctx.state = rpCommWaitTx
		rpCommSend(c, ctx)
		return
	}

	pkt, err := pdu.DecodePacket(data)
	if err != nil {
		logger.Warn(c.prefix, "remote %s: %v", ctx.proc, err)
		ctx.complete()
		return
	}
	switch p := pkt.(type) {
	case *pdu.VersionInd:
		c.vex.valid = true
		c.vex.peer = VersionInfo{VersNr: p.VersNr, CompanyID: p.CompanyID, SubVersNr: p.SubVersNr}
		if c.vex.sent {
			ctx.complete()
			return
		}
		ctx.responseOpcode = pdu.OpVersionInd
	case *pdu.FeatureReq:
		c.fex.valid = true
		c.fex.peer = p.Features
		ctx.responseOpcode = pdu.OpFeatureRsp
	case *pdu.PerInitFeatXchg:
		c.fex.valid = true
		c.fex.peer = p.Features
		ctx.responseOpcode = pdu.OpFeatureRsp
	case *pdu.PingReq:
		ctx.responseOpcode = pdu.OpPingRsp
	case *pdu.MinUsedChanInd:
		c.muc.valid = true
		c.muc.phys = p.Phys
		c.muc.count = p.MinUsedChans
		ctx.complete()
		return
	case *pdu.TerminateInd:
		c.terminateReason = p.ErrorCode
		logger.Info(c.prefix, "terminated by peer: %s", pdu.ErrorName(p.ErrorCode))
		ctx.complete()
		return
	case *pdu.LengthReq:
		c.dle.setRemote(p.Length)
		ctx.responseOpcode = pdu.OpLengthRsp
	case *pdu.CteReq:
		ctx.data.cte = cteData{minLen: p.MinCTELen, cteType: p.CTEType}
		ctx.responseOpcode = pdu.OpCteRsp
		if !c.cteRsp {
			ctx.responseOpcode = pdu.OpRejectExtInd
		}
	default:
		ctx.complete()
		return
	}
	ctx.state = rpCommWaitTx
	rpCommSend(c, ctx)
}

func rpCommSend(c *Conn, ctx *ProcCtx) {
	switch ctx.proc {
	case ProcUnknown:
		if c.tx(ctx, &pdu.UnknownRsp{UnknownType: ctx.data.unknownType}) == nil {
			return
		}
	case ProcVersionExchange:
		v := c.e.cfg.Version
		if c.tx(ctx, &pdu.VersionInd{VersNr: v.Number, CompanyID: v.CompanyID, SubVersNr: v.SubVersion}) == nil {
			return
		}
		c.vex.sent = true
	case ProcFeatureExchange:
		if c.tx(ctx, &pdu.FeatureRsp{Features: c.e.features}) == nil {
			return
		}
	case ProcLEPing:
		if c.tx(ctx, &pdu.PingRsp{}) == nil {
			return
		}
	case ProcDataLengthUpdate:
		if c.tx(ctx, &pdu.LengthRsp{Length: c.dle.localPDU()}) == nil {
			return
		}
		if c.dle.update() {
			ctx.state = rpCommWaitNtf
			if c.notify(c.dle.ntf()) {
				ctx.complete()
			}
			return
		}
	case ProcCTEReq:
		if c.cteRsp {
			if c.tx(ctx, &pdu.CteRsp{}) == nil {
				return
			}
		} else if !c.reject(ctx, pdu.OpCteReq, pdu.ErrUnsuppLLParamVal) {
			return
		}
	}
	ctx.complete()
}

func (rpComm) txAck(*Conn, *ProcCtx, *TxNode) {}
