package llcp

import (
	"github.com/user/blue-llcp/logger"
	"github.com/user/blue-llcp/pdu"
)

type lrState uint8

const (
	lrDisconnected lrState = iota
	lrIdle
	lrActive
)

// localReq serializes the procedures initiated by this side.
type localReq struct {
	state  lrState
	pend   []*ProcCtx
	cur    *ProcCtx
	paused bool
	prt    prtTimer
}

func (lr *localReq) init() {
	lr.state = lrDisconnected
	lr.pend = make([]*ProcCtx, 0, 4)
	lr.cur = nil
	lr.paused = false
	lr.prt = 0
}

func (c *Conn) lrEnqueue(ctx *ProcCtx) {
	c.local.pend = append(c.local.pend, ctx)
	c.debug("local %s queued (%d pending)", ctx.proc, len(c.local.pend))
	c.e.traceProc(c, ctx, "queued")
}

func (c *Conn) lrRun() {
	lr := &c.local
	if lr.state == lrDisconnected || lr.paused {
		return
	}
	if lr.state == lrIdle {
		if len(lr.pend) == 0 {
			return
		}
		ctx := lr.pend[0]
		copy(lr.pend, lr.pend[1:])
		lr.pend[len(lr.pend)-1] = nil
		lr.pend = lr.pend[:len(lr.pend)-1]

		lr.cur = ctx
		lr.state = lrActive
		lr.prt = c.prtEvents()
		c.debug("local %s start", ctx.proc)
		c.e.traceProc(c, ctx, "start")
	}

	ctx := lr.cur
	if ctx.proc.withInstant() && ctx.state == 0 {
		// Not started yet: wait for a peer procedure with an instant to end.
		if c.remote.collision {
			if !ctx.collision {
				c.debug("local %s deferred by peer procedure", ctx.proc)
			}
			ctx.collision = true
			return
		}
		ctx.collision = false
	}
	ctx.fsm.run(c, ctx)
	c.lrCheckDone()
}

// lrPause holds the local machine while a peer encryption procedure runs.
// Its active procedure gives up its wait-list slot and queues again on its
// next send.
func (c *Conn) lrPause() {
	c.local.paused = true
	if ctx := c.local.cur; ctx != nil {
		c.e.txUnpeek(ctx)
	}
}

func (c *Conn) lrRx(ctx *ProcCtx, data []byte) {
	ctx.fsm.rx(c, ctx, data)
	c.lrCheckDone()
}

func (c *Conn) lrTxAck(ctx *ProcCtx, tx *TxNode) {
	ctx.fsm.txAck(c, ctx, tx)
	c.lrCheckDone()
}

func (c *Conn) lrCheckDone() {
	ctx := c.local.cur
	if ctx == nil || !ctx.done {
		return
	}
	lr := &c.local
	lr.cur = nil
	lr.state = lrIdle
	lr.prt = 0
	if ctx.proc.withInstant() {
		c.remote.incompat = incompatNone
	}
	c.debug("local %s done", ctx.proc)
	c.e.traceProc(c, ctx, "done")
	c.e.releaseCtx(ctx)
}

// lrCollide marks the active local procedure as losing to a peer procedure
// that was just accepted. Only the peer's reject of our request can still
// reach it.
func (c *Conn) lrCollide() {
	ctx := c.local.cur
	if ctx == nil || !ctx.proc.withInstant() {
		return
	}
	ctx.collision = true
	ctx.rxOpcode = pdu.OpInvalid
	c.debug("local %s collided with peer procedure", ctx.proc)
}

// lrRetry restarts a collided local procedure from scratch. It runs again
// once no peer procedure with an instant is active.
func (c *Conn) lrRetry(ctx *ProcCtx) {
	ctx.fsm.init(ctx)
	ctx.rxOpcode = pdu.OpInvalid
	ctx.txOpcode = pdu.OpInvalid
	ctx.responseOpcode = pdu.OpInvalid
	ctx.data.status = pdu.ErrSuccess
	c.remote.incompat = incompatNone
	logger.Info(c.prefix, "local %s rejected by collision, retrying", ctx.proc)
	c.e.traceProc(c, ctx, "retry")
}

// lrAbort releases every local context, active or pending.
func (c *Conn) lrAbort() {
	lr := &c.local
	if lr.cur != nil {
		c.debug("local %s aborted", lr.cur.proc)
		c.e.traceProc(c, lr.cur, "aborted")
		c.e.releaseCtx(lr.cur)
		lr.cur = nil
	}
	for i, ctx := range lr.pend {
		c.e.releaseCtx(ctx)
		lr.pend[i] = nil
	}
	lr.pend = lr.pend[:0]
	lr.paused = false
	lr.prt = 0
	if lr.state == lrActive {
		lr.state = lrIdle
	}
	c.remote.incompat = incompatNone
	c.remote.paused = false
}
