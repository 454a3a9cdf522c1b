package llcp

import (
	"crypto/rand"

	"github.com/user/blue-llcp/logger"
	"github.com/user/blue-llcp/pdu"
)

// encData holds the key material of an encryption start or pause procedure.
// Session key derivation itself happens in the radio layer.
type encData struct {
	rand    [8]byte
	ediv    [2]byte
	ltk     [16]byte
	skd     [8]byte
	iv      [4]byte
	refresh bool
}

func (d *encData) randomize() {
	// crypto/rand.Read never fails on supported platforms
	_, _ = rand.Read(d.skd[:])
	_, _ = rand.Read(d.iv[:])
}

// Central side.
const (
	lpEncIdle uint8 = iota
	lpEncWaitTxPauseEncReq
	lpEncWaitRxPauseEncRsp
	lpEncWaitTxPauseEncRsp
	lpEncWaitTxEncReq
	lpEncWaitRxEncRsp
	lpEncWaitRxStartEncReq
	lpEncWaitTxStartEncRsp
	lpEncWaitRxStartEncRsp
	lpEncWaitNtf
)

type lpEnc struct{}

func (lpEnc) init(ctx *ProcCtx) { ctx.state = lpEncIdle }

func (lpEnc) run(c *Conn, ctx *ProcCtx) {
	if ctx.state == lpEncIdle {
		// Peer procedures wait until encryption is settled.
		c.rrPause()
		ctx.data.enc.refresh = ctx.proc == ProcEncryptionPause
		ctx.data.enc.randomize()
		if ctx.data.enc.refresh {
			ctx.state = lpEncWaitTxPauseEncReq
		} else {
			c.pauseData()
			ctx.state = lpEncWaitTxEncReq
		}
	}
	lpEncStep(c, ctx)
}

func lpEncStep(c *Conn, ctx *ProcCtx) {
	d := &ctx.data.enc
	switch ctx.state {
	case lpEncWaitTxPauseEncReq:
		if c.tx(ctx, &pdu.PauseEncReq{}) == nil {
			return
		}
		c.pauseData()
		ctx.expect(pdu.OpPauseEncRsp)
		ctx.state = lpEncWaitRxPauseEncRsp

	case lpEncWaitTxPauseEncRsp:
		if c.tx(ctx, &pdu.PauseEncRsp{}) == nil {
			return
		}
		c.enc.enabled = false
		ctx.state = lpEncWaitTxEncReq
		lpEncStep(c, ctx)

	case lpEncWaitTxEncReq:
		if c.tx(ctx, &pdu.EncReq{Rand: d.rand, EDIV: d.ediv, SKDm: d.skd, IVm: d.iv}) == nil {
			return
		}
		ctx.expect(pdu.OpEncRsp)
		ctx.state = lpEncWaitRxEncRsp

	case lpEncWaitTxStartEncRsp:
		if c.tx(ctx, &pdu.StartEncRsp{}) == nil {
			return
		}
		ctx.expect(pdu.OpStartEncRsp)
		ctx.state = lpEncWaitRxStartEncRsp

	case lpEncWaitNtf:
		lpEncNotify(c, ctx)
	}
}

func (lpEnc) rx(c *Conn, ctx *ProcCtx, data []byte) {
	switch pdu.Opcode(data) {
	case pdu.OpRejectInd, pdu.OpRejectExtInd, pdu.OpUnknownRsp:
		var code uint8 = pdu.ErrUnsuppRemoteFeature
		if rc, ok := pdu.RejectCode(data); ok {
			code = rc
		}
		logger.Info(c.prefix, "local %s refused by peer: %s", ctx.proc, pdu.ErrorName(code))
		ctx.data.status = code
		ctx.rxOpcode = pdu.OpInvalid
		c.enc.enabled = false
		c.resumeData()
		ctx.state = lpEncWaitNtf
		lpEncNotify(c, ctx)
		return
	}

	switch ctx.state {
	case lpEncWaitRxPauseEncRsp:
		ctx.state = lpEncWaitTxPauseEncRsp
	case lpEncWaitRxEncRsp:
		// SKDs and IVs feed session key derivation below this layer.
		ctx.expect(pdu.OpStartEncReq)
		ctx.state = lpEncWaitRxStartEncReq
		return
	case lpEncWaitRxStartEncReq:
		ctx.state = lpEncWaitTxStartEncRsp
	case lpEncWaitRxStartEncRsp:
		ctx.rxOpcode = pdu.OpInvalid
		c.enc.enabled = true
		c.enc.ltk = ctx.data.enc.ltk
		c.resumeData()
		ctx.state = lpEncWaitNtf
	default:
		return
	}
	lpEncStep(c, ctx)
}

func lpEncNotify(c *Conn, ctx *ProcCtx) {
	n := EncChangeNtf{
		Status:     ctx.data.status,
		Enabled:    c.enc.enabled,
		KeyRefresh: ctx.data.enc.refresh,
	}
	if !c.notify(n) {
		return
	}
	c.remote.paused = false
	ctx.complete()
}

func (lpEnc) txAck(*Conn, *ProcCtx, *TxNode) {}

// Peripheral side.
const (
	rpEncWaitRxEncReq uint8 = iota
	rpEncWaitTxPauseEncRsp
	rpEncWaitRxPauseEncRsp
	rpEncWaitTxEncRsp
	rpEncWaitNtfLTKReq
	rpEncWaitLTKReply
	rpEncWaitTxStartEncReq
	rpEncWaitRxStartEncRsp
	rpEncWaitNtf
	rpEncWaitTxStartEncRsp
	rpEncWaitTxReject
)

type rpEnc struct{}

func (rpEnc) init(ctx *ProcCtx) { ctx.state = rpEncWaitRxEncReq }

func (rpEnc) run(c *Conn, ctx *ProcCtx) { rpEncStep(c, ctx) }

func rpEncStep(c *Conn, ctx *ProcCtx) {
	d := &ctx.data.enc
	switch ctx.state {
	case rpEncWaitTxPauseEncRsp:
		if c.tx(ctx, &pdu.PauseEncRsp{}) == nil {
			return
		}
		ctx.expect(pdu.OpPauseEncRsp)
		ctx.state = rpEncWaitRxPauseEncRsp

	case rpEncWaitTxEncRsp:
		if c.tx(ctx, &pdu.EncRsp{SKDs: d.skd, IVs: d.iv}) == nil {
			return
		}
		ctx.state = rpEncWaitNtfLTKReq
		rpEncStep(c, ctx)

	case rpEncWaitNtfLTKReq:
		if !c.notify(LTKRequestNtf{Rand: d.rand, EDIV: d.ediv}) {
			return
		}
		ctx.pause = true
		ctx.state = rpEncWaitLTKReply

	case rpEncWaitTxStartEncReq:
		if c.tx(ctx, &pdu.StartEncReq{}) == nil {
			return
		}
		ctx.expect(pdu.OpStartEncRsp)
		ctx.state = rpEncWaitRxStartEncRsp

	case rpEncWaitNtf:
		if !c.notify(EncChangeNtf{Status: pdu.ErrSuccess, Enabled: true, KeyRefresh: d.refresh}) {
			return
		}
		ctx.state = rpEncWaitTxStartEncRsp
		rpEncStep(c, ctx)

	case rpEncWaitTxStartEncRsp:
		if c.tx(ctx, &pdu.StartEncRsp{}) == nil {
			return
		}
		rpEncFinish(c, ctx)

	case rpEncWaitTxReject:
		if !c.reject(ctx, pdu.OpEncReq, pdu.ErrPinOrKeyMissing) {
			return
		}
		c.enc.enabled = false
		rpEncFinish(c, ctx)
	}
}

func rpEncFinish(c *Conn, ctx *ProcCtx) {
	c.resumeData()
	c.local.paused = false
	ctx.complete()
}

func (rpEnc) rx(c *Conn, ctx *ProcCtx, data []byte) {
	switch ctx.state {
	case rpEncWaitRxEncReq:
		pkt, err := pdu.DecodePacket(data)
		if err != nil {
			logger.Warn(c.prefix, "remote %s: %v", ctx.proc, err)
			rpEncFinish(c, ctx)
			return
		}
		c.lrPause()
		switch p := pkt.(type) {
		case *pdu.PauseEncReq:
			ctx.data.enc.refresh = true
			c.pauseData()
			ctx.state = rpEncWaitTxPauseEncRsp
		case *pdu.EncReq:
			ctx.data.enc.rand = p.Rand
			ctx.data.enc.ediv = p.EDIV
			ctx.data.enc.randomize()
			ctx.rxOpcode = pdu.OpInvalid
			c.pauseData()
			ctx.state = rpEncWaitTxEncRsp
		default:
			rpEncFinish(c, ctx)
			return
		}
	case rpEncWaitRxPauseEncRsp:
		c.enc.enabled = false
		ctx.expect(pdu.OpEncReq)
		ctx.state = rpEncWaitRxEncReq
		return
	case rpEncWaitRxStartEncRsp:
		ctx.rxOpcode = pdu.OpInvalid
		c.enc.enabled = true
		c.enc.ltk = ctx.data.enc.ltk
		ctx.state = rpEncWaitNtf
	default:
		return
	}
	rpEncStep(c, ctx)
}

func (rpEnc) txAck(*Conn, *ProcCtx, *TxNode) {}

// rpEncLTKReply resumes a peripheral encryption procedure paused on the host.
func rpEncLTKReply(c *Conn, ctx *ProcCtx, ltk *[16]byte) {
	ctx.pause = false
	if ltk == nil {
		ctx.state = rpEncWaitTxReject
	} else {
		ctx.data.enc.ltk = *ltk
		ctx.state = rpEncWaitTxStartEncReq
	}
	rpEncStep(c, ctx)
}
