package llcp

import (
	"github.com/user/blue-llcp/logger"
	"github.com/user/blue-llcp/pdu"
)

type chmuData struct {
	chm     [5]byte
	instant uint16
}

func chmuApply(c *Conn, d *chmuData) {
	c.params.ChanMap = d.chm
	logger.Info(c.prefix, "channel map % X (%d channels)", d.chm, chanCount(d.chm))
}

const (
	lpChmuIdle uint8 = iota
	lpChmuWaitInstant
)

type lpChmu struct{}

func (lpChmu) init(ctx *ProcCtx) { ctx.state = lpChmuIdle }

func (lpChmu) run(c *Conn, ctx *ProcCtx) {
	d := &ctx.data.chmu
	switch ctx.state {
	case lpChmuIdle:
		d.instant = c.instant()
		if c.tx(ctx, &pdu.ChanMapInd{ChM: d.chm, Instant: d.instant}) == nil {
			return
		}
		c.remote.incompat = incompatReserved
		ctx.state = lpChmuWaitInstant

	case lpChmuWaitInstant:
		if instantReached(c.link.EventCounter(), d.instant) {
			chmuApply(c, d)
			ctx.complete()
		}
	}
}

func (lpChmu) rx(c *Conn, ctx *ProcCtx, data []byte) {
	// an LL_CHANNEL_MAP_IND cannot be refused; anything routed here is ignored
	logger.Warn(c.prefix, "local %s: unexpected %s", ctx.proc, pdu.OpcodeName(pdu.Opcode(data)))
}

func (lpChmu) txAck(*Conn, *ProcCtx, *TxNode) {}

const (
	rpChmuWaitRx uint8 = iota
	rpChmuWaitInstant
)

type rpChmu struct{}

func (rpChmu) init(ctx *ProcCtx) { ctx.state = rpChmuWaitRx }

func (rpChmu) run(c *Conn, ctx *ProcCtx) {
	d := &ctx.data.chmu
	if ctx.state == rpChmuWaitInstant && instantReached(c.link.EventCounter(), d.instant) {
		chmuApply(c, d)
		ctx.complete()
	}
}

func (rpChmu) rx(c *Conn, ctx *ProcCtx, data []byte) {
	if ctx.state != rpChmuWaitRx {
		return
	}
	pkt, err := pdu.DecodePacket(data)
	if err != nil {
		logger.Warn(c.prefix, "remote %s: %v", ctx.proc, err)
		ctx.complete()
		return
	}
	p, ok := pkt.(*pdu.ChanMapInd)
	if !ok {
		ctx.complete()
		return
	}
	d := &ctx.data.chmu
	d.chm, d.instant = p.ChM, p.Instant
	if instantPassed(c.link.EventCounter(), d.instant) {
		c.instantPassed(ctx)
		return
	}
	ctx.state = rpChmuWaitInstant
}

func (rpChmu) txAck(*Conn, *ProcCtx, *TxNode) {}
