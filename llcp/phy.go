package llcp

import (
	"github.com/user/blue-llcp/logger"
	"github.com/user/blue-llcp/pdu"
)

type phyData struct {
	tx      uint8 // preference masks
	rx      uint8
	cToP    uint8 // selected PHYs, 0 when unchanged
	pToC    uint8
	instant uint16
}

// phyResolve picks the new PHYs on the central from both sides' preferences.
// A PHY equal to the one in use is reported as 0.
func phyResolve(c *Conn, d *phyData, peerTx, peerRx uint8) {
	d.cToP = selectPhy(d.tx & peerRx)
	d.pToC = selectPhy(d.rx & peerTx)
	if d.cToP == c.params.TxPhy {
		d.cToP = 0
	}
	if d.pToC == c.params.RxPhy {
		d.pToC = 0
	}
}

// phyTxUpdateInd sends LL_PHY_UPDATE_IND on the central. It reports false
// when no TX buffer is available.
func phyTxUpdateInd(c *Conn, ctx *ProcCtx) bool {
	d := &ctx.data.phy
	d.instant = 0
	if d.cToP != 0 || d.pToC != 0 {
		d.instant = c.instant()
	}
	return c.tx(ctx, &pdu.PhyUpdateInd{CToPPhy: d.cToP, PToCPhy: d.pToC, Instant: d.instant}) != nil
}

func phyUnchanged(d *phyData) bool { return d.cToP == 0 && d.pToC == 0 }

// phyApply switches PHYs at the instant and reports whether anything changed.
func phyApply(c *Conn, d *phyData) bool {
	tx, rx := d.cToP, d.pToC
	if c.role == RolePeripheral {
		tx, rx = d.pToC, d.cToP
	}
	changed := false
	if tx != 0 && tx != c.params.TxPhy {
		c.params.TxPhy = tx
		changed = true
	}
	if rx != 0 && rx != c.params.RxPhy {
		c.params.RxPhy = rx
		changed = true
	}
	if changed {
		logger.Info(c.prefix, "phy tx 0x%02X rx 0x%02X", c.params.TxPhy, c.params.RxPhy)
	}
	return changed
}

func phyNtf(c *Conn, status uint8) PhyUpdateNtf {
	return PhyUpdateNtf{Status: status, TxPhy: c.params.TxPhy, RxPhy: c.params.RxPhy}
}

const (
	lpPhyIdle uint8 = iota
	lpPhyWaitRx
	lpPhyWaitTxUpdateInd
	lpPhyWaitInstant
	lpPhyWaitNtf
)

type lpPhy struct{}

func (lpPhy) init(ctx *ProcCtx) { ctx.state = lpPhyIdle }

func (lpPhy) run(c *Conn, ctx *ProcCtx) {
	d := &ctx.data.phy
	switch ctx.state {
	case lpPhyIdle:
		if c.tx(ctx, &pdu.PhyReq{TxPhys: d.tx, RxPhys: d.rx}) == nil {
			return
		}
		c.remote.incompat = incompatResolvable
		if c.role == RoleCentral {
			ctx.expect(pdu.OpPhyRsp)
		} else {
			ctx.expect(pdu.OpPhyUpdateInd)
		}
		ctx.state = lpPhyWaitRx

	case lpPhyWaitTxUpdateInd:
		lpPhyTxUpdateInd(c, ctx)

	case lpPhyWaitInstant:
		if instantReached(c.link.EventCounter(), d.instant) {
			phyApply(c, d)
			ctx.state = lpPhyWaitNtf
			lpPhyNotify(c, ctx)
		}

	case lpPhyWaitNtf:
		lpPhyNotify(c, ctx)
	}
}

func lpPhyTxUpdateInd(c *Conn, ctx *ProcCtx) {
	if !phyTxUpdateInd(c, ctx) {
		return
	}
	if phyUnchanged(&ctx.data.phy) {
		ctx.state = lpPhyWaitNtf
		lpPhyNotify(c, ctx)
		return
	}
	ctx.state = lpPhyWaitInstant
}

func (lpPhy) rx(c *Conn, ctx *ProcCtx, data []byte) {
	if ctx.state != lpPhyWaitRx {
		return
	}
	switch pdu.Opcode(data) {
	case pdu.OpRejectInd, pdu.OpRejectExtInd, pdu.OpUnknownRsp:
		var code uint8 = pdu.ErrUnsuppRemoteFeature
		if rc, ok := pdu.RejectCode(data); ok {
			code = rc
		}
		if ctx.collision && pdu.IsCollision(code) {
			c.lrRetry(ctx)
			return
		}
		logger.Info(c.prefix, "local %s refused by peer: %s", ctx.proc, pdu.ErrorName(code))
		ctx.data.status = code
		ctx.rxOpcode = pdu.OpInvalid
		ctx.state = lpPhyWaitNtf
		lpPhyNotify(c, ctx)
		return
	}
	ctx.rxOpcode = pdu.OpInvalid

	pkt, err := pdu.DecodePacket(data)
	if err != nil {
		logger.Warn(c.prefix, "local %s: %v", ctx.proc, err)
		ctx.complete()
		return
	}
	d := &ctx.data.phy
	switch p := pkt.(type) {
	case *pdu.PhyRsp:
		phyResolve(c, d, p.TxPhys, p.RxPhys)
		ctx.state = lpPhyWaitTxUpdateInd
		lpPhyTxUpdateInd(c, ctx)
	case *pdu.PhyUpdateInd:
		d.cToP, d.pToC, d.instant = p.CToPPhy, p.PToCPhy, p.Instant
		if phyUnchanged(d) {
			ctx.state = lpPhyWaitNtf
			lpPhyNotify(c, ctx)
			return
		}
		if instantPassed(c.link.EventCounter(), d.instant) {
			c.instantPassed(ctx)
			return
		}
		ctx.state = lpPhyWaitInstant
	}
}

func lpPhyNotify(c *Conn, ctx *ProcCtx) {
	if c.notify(phyNtf(c, ctx.data.status)) {
		ctx.complete()
	}
}

func (lpPhy) txAck(*Conn, *ProcCtx, *TxNode) {}

const (
	rpPhyWaitRxReq uint8 = iota
	rpPhyWaitTxRsp
	rpPhyWaitRxUpdateInd
	rpPhyWaitTxUpdateInd
	rpPhyWaitInstant
	rpPhyWaitNtf
)

type rpPhy struct{}

func (rpPhy) init(ctx *ProcCtx) { ctx.state = rpPhyWaitRxReq }

func (rpPhy) run(c *Conn, ctx *ProcCtx) {
	d := &ctx.data.phy
	switch ctx.state {
	case rpPhyWaitTxRsp:
		rpPhyTxRsp(c, ctx)

	case rpPhyWaitTxUpdateInd:
		rpPhyTxUpdateInd(c, ctx)

	case rpPhyWaitInstant:
		if instantReached(c.link.EventCounter(), d.instant) {
			if !phyApply(c, d) {
				ctx.complete()
				return
			}
			ctx.state = rpPhyWaitNtf
			rpPhyNotify(c, ctx)
		}

	case rpPhyWaitNtf:
		rpPhyNotify(c, ctx)
	}
}

func rpPhyTxRsp(c *Conn, ctx *ProcCtx) {
	d := &ctx.data.phy
	if c.tx(ctx, &pdu.PhyRsp{TxPhys: d.tx, RxPhys: d.rx}) == nil {
		return
	}
	ctx.expect(pdu.OpPhyUpdateInd)
	ctx.state = rpPhyWaitRxUpdateInd
}

func rpPhyTxUpdateInd(c *Conn, ctx *ProcCtx) {
	if !phyTxUpdateInd(c, ctx) {
		return
	}
	if phyUnchanged(&ctx.data.phy) {
		ctx.complete()
		return
	}
	ctx.state = rpPhyWaitInstant
}

func (rpPhy) rx(c *Conn, ctx *ProcCtx, data []byte) {
	pkt, err := pdu.DecodePacket(data)
	if err != nil {
		logger.Warn(c.prefix, "remote %s: %v", ctx.proc, err)
		ctx.complete()
		return
	}
	d := &ctx.data.phy
	switch p := pkt.(type) {
	case *pdu.PhyReq:
		if ctx.state != rpPhyWaitRxReq {
			return
		}
		d.tx = c.e.supportedPhys()
		d.rx = d.tx
		if c.role == RoleCentral {
			phyResolve(c, d, p.TxPhys, p.RxPhys)
			ctx.responseOpcode = pdu.OpPhyUpdateInd
			ctx.state = rpPhyWaitTxUpdateInd
			rpPhyTxUpdateInd(c, ctx)
			return
		}
		ctx.responseOpcode = pdu.OpPhyRsp
		ctx.state = rpPhyWaitTxRsp
		rpPhyTxRsp(c, ctx)

	case *pdu.PhyUpdateInd:
		if ctx.state != rpPhyWaitRxUpdateInd {
			return
		}
		ctx.rxOpcode = pdu.OpInvalid
		d.cToP, d.pToC, d.instant = p.CToPPhy, p.PToCPhy, p.Instant
		if phyUnchanged(d) {
			ctx.complete()
			return
		}
		if instantPassed(c.link.EventCounter(), d.instant) {
			c.instantPassed(ctx)
			return
		}
		ctx.state = rpPhyWaitInstant

	default:
		// LL_REJECT_EXT_IND or LL_UNKNOWN_RSP to our LL_PHY_RSP
		ctx.complete()
	}
}

func rpPhyNotify(c *Conn, ctx *ProcCtx) {
	if c.notify(phyNtf(c, pdu.ErrSuccess)) {
		ctx.complete()
	}
}

func (rpPhy) txAck(*Conn, *ProcCtx, *TxNode) {}
