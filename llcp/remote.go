package llcp

import (
	"github.com/user/blue-llcp/logger"
	"github.com/user/blue-llcp/pdu"
)

type rrState uint8

const (
	rrDisconnected rrState = iota
	rrIdle
	rrActive
	rrReject
)

// incompat describes the local procedure with an instant in flight, as seen
// by a peer procedure that wants to start.
type incompat uint8

const (
	incompatNone incompat = iota
	incompatResolvable
	incompatReserved
)

// remoteReq serializes the procedures initiated by the peer.
type remoteReq struct {
	state     rrState
	pend      []*ProcCtx
	cur       *ProcCtx
	paused    bool
	incompat  incompat
	collision bool // active peer procedure has an instant
	prt       prtTimer
}

func (rr *remoteReq) init() {
	rr.state = rrDisconnected
	rr.pend = make([]*ProcCtx, 0, 2)
	rr.cur = nil
	rr.paused = false
	rr.incompat = incompatNone
	rr.collision = false
	rr.prt = 0
}

// rrNew starts a peer procedure from its first PDU.
func (c *Conn) rrNew(data []byte) {
	rr := &c.remote
	op := pdu.Opcode(data)
	proc, ok := c.remoteProc(op)
	if !ok {
		logger.Warn(c.prefix, "dropping unmatched %s", pdu.OpcodeName(op))
		return
	}
	if rr.state == rrDisconnected {
		logger.Warn(c.prefix, "dropping %s while disconnected", pdu.OpcodeName(op))
		return
	}
	if proc == ProcTerminate {
		c.lrAbort()
		c.rrAbort()
	}

	ctx := c.e.createRemote(proc)
	if ctx == nil {
		logger.Warn(c.prefix, "no remote context for %s, dropped", pdu.OpcodeName(op))
		return
	}
	ctx.pendingLen = copy(ctx.pending[:], data)
	ctx.data.unknownType = op
	rr.pend = append(rr.pend, ctx)
	c.debug("remote %s queued by %s", proc, pdu.OpcodeName(op))
	c.e.traceProc(c, ctx, "queued")

	if rr.state == rrIdle && !rr.paused {
		c.rrPromote()
		c.rrCheckDone()
	}
}

// rrPause is lrPause for the remote machine.
func (c *Conn) rrPause() {
	c.remote.paused = true
	if ctx := c.remote.cur; ctx != nil {
		c.e.txUnpeek(ctx)
	}
}

func (c *Conn) rrRun() {
	rr := &c.remote
	if rr.state == rrDisconnected || rr.paused {
		return
	}
	switch rr.state {
	case rrIdle:
		if len(rr.pend) == 0 {
			return
		}
		c.rrPromote()
	case rrActive:
		rr.cur.fsm.run(c, rr.cur)
	case rrReject:
		c.rrRejectRun(rr.cur)
	}
	c.rrCheckDone()
}

// rrPromote makes the oldest pending peer procedure active, unless it has to
// be rejected because of a local procedure with an instant.
func (c *Conn) rrPromote() {
	rr := &c.remote
	ctx := rr.pend[0]
	copy(rr.pend, rr.pend[1:])
	rr.pend[len(rr.pend)-1] = nil
	rr.pend = rr.pend[:len(rr.pend)-1]

	rr.cur = ctx
	rr.prt = c.prtEvents()
	c.debug("remote %s start", ctx.proc)
	c.e.traceProc(c, ctx, "start")

	if reject, code := c.rrCollides(ctx); reject {
		rr.state = rrReject
		ctx.data.status = code
		c.rrRejectRun(ctx)
		return
	}
	rr.state = rrActive
	rr.collision = ctx.proc.withInstant()
	ctx.fsm.rx(c, ctx, ctx.pendingPDU())
}

// rrCollides applies the collision policy to a peer procedure about to
// start. Peer indications cannot be refused, so they always win; peer
// requests lose to a reserved local procedure and are otherwise decided by
// the configured winner role.
func (c *Conn) rrCollides(ctx *ProcCtx) (bool, uint8) {
	rr := &c.remote
	if !ctx.proc.withInstant() || rr.incompat == incompatNone {
		return false, pdu.ErrSuccess
	}
	if ctx.proc != ProcPHYUpdate && ctx.proc != ProcConnParamReq {
		c.lrCollide()
		return false, pdu.ErrSuccess
	}
	if rr.incompat == incompatReserved {
		return true, pdu.ErrDiffTransCollision
	}
	if c.wins() {
		if lc := c.local.cur; lc != nil && lc.proc == ctx.proc {
			return true, pdu.ErrLLProcCollision
		}
		return true, pdu.ErrDiffTransCollision
	}
	c.lrCollide()
	return false, pdu.ErrSuccess
}

func (c *Conn) wins() bool {
	return (c.e.cfg.CollisionWinner == WinnerCentral) == (c.role == RoleCentral)
}

func (c *Conn) rrRejectRun(ctx *ProcCtx) {
	if c.reject(ctx, pdu.Opcode(ctx.pendingPDU()), ctx.data.status) {
		ctx.complete()
	}
}

func (c *Conn) rrRx(ctx *ProcCtx, data []byte) {
	ctx.fsm.rx(c, ctx, data)
	c.rrCheckDone()
}

func (c *Conn) rrTxAck(ctx *ProcCtx, tx *TxNode) {
	ctx.fsm.txAck(c, ctx, tx)
	c.rrCheckDone()
}

func (c *Conn) rrCheckDone() {
	ctx := c.remote.cur
	if ctx == nil || !ctx.done {
		return
	}
	rr := &c.remote
	rr.cur = nil
	rr.state = rrIdle
	rr.collision = false
	rr.prt = 0
	c.debug("remote %s done", ctx.proc)
	c.e.traceProc(c, ctx, "done")
	c.e.releaseCtx(ctx)
}

// rrAbort releases every remote context, active or pending.
func (c *Conn) rrAbort() {
	rr := &c.remote
	if rr.cur != nil {
		c.debug("remote %s aborted", rr.cur.proc)
		c.e.traceProc(c, rr.cur, "aborted")
		c.e.releaseCtx(rr.cur)
		rr.cur = nil
	}
	for i, ctx := range rr.pend {
		c.e.releaseCtx(ctx)
		rr.pend[i] = nil
	}
	rr.pend = rr.pend[:0]
	rr.paused = false
	rr.collision = false
	rr.prt = 0
	if rr.state == rrActive || rr.state == rrReject {
		rr.state = rrIdle
	}
	c.local.paused = false
}
