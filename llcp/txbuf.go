package llcp

import (
	"github.com/user/blue-llcp/mem"
	"github.com/user/blue-llcp/pdu"
)

type waitReason uint8

const (
	waitNothing waitReason = iota
	waitTxBuffer
)

// TxNode is a control PDU handed to the link. The link gives it back with
// Conn.ReleaseTx once it no longer needs it.
type TxNode struct {
	handle mem.Handle
	owner  *Conn
	n      int
	buf    [pdu.MaxCtrlPDULen]byte
}

// PDU returns the encoded control PDU, opcode first.
func (tx *TxNode) PDU() []byte { return tx.buf[:tx.n] }

// Opcode returns the control opcode of the PDU.
func (tx *TxNode) Opcode() uint8 { return pdu.Opcode(tx.PDU()) }

// Conn returns the connection the node is charged to.
func (tx *TxNode) Conn() *Conn { return tx.owner }

// txFlow arbitrates TX control buffers. Each connection first draws on its
// own allotment; beyond it, procedures queue on a FIFO wait-list and only the
// head may take a buffer from the common pool.
type txFlow struct {
	perConn     int
	common      int
	commonAlloc int
	waitlist    []*ProcCtx
}

// txToken proves a successful peek. The zero value is never valid.
type txToken struct {
	conn *Conn
	ctx  *ProcCtx
}

func newTxFlow(perConn, common int) txFlow {
	return txFlow{
		perConn:  perConn,
		common:   common,
		waitlist: make([]*ProcCtx, 0, 8),
	}
}

func (f *txFlow) reset() {
	f.commonAlloc = 0
	f.waitlist = f.waitlist[:0]
}

func (f *txFlow) remove(ctx *ProcCtx) {
	for i, w := range f.waitlist {
		if w == ctx {
			copy(f.waitlist[i:], f.waitlist[i+1:])
			f.waitlist[len(f.waitlist)-1] = nil
			f.waitlist = f.waitlist[:len(f.waitlist)-1]
			break
		}
	}
	ctx.waitReason = waitNothing
}

// txPeek checks whether ctx may take a TX buffer now. A requester that has to
// go through the common pool is registered on the wait-list, once.
func (e *Engine) txPeek(c *Conn, ctx *ProcCtx) (txToken, bool) {
	f := &e.flow
	if c.txBufferAlloc < f.perConn {
		return txToken{conn: c, ctx: ctx}, true
	}
	if ctx.waitReason != waitTxBuffer {
		f.waitlist = append(f.waitlist, ctx)
		ctx.waitReason = waitTxBuffer
		c.trace("tx wait %s (position %d)", ctx.proc, len(f.waitlist))
	}
	if f.commonAlloc < f.common && f.waitlist[0] == ctx {
		return txToken{conn: c, ctx: ctx}, true
	}
	return txToken{}, false
}

// txCommit takes the buffer granted by tok. It cannot fail.
func (e *Engine) txCommit(tok txToken) *TxNode {
	if tok.conn == nil || tok.ctx == nil {
		panic("llcp: tx commit without a successful peek")
	}
	f := &e.flow
	c, ctx := tok.conn, tok.ctx

	c.txBufferAlloc++
	if c.txBufferAlloc > f.perConn {
		if len(f.waitlist) == 0 || f.waitlist[0] != ctx {
			panic("llcp: common tx buffer taken by a context that is not the wait-list head")
		}
		f.commonAlloc++
		f.remove(ctx)
	} else if ctx.waitReason == waitTxBuffer {
		f.remove(ctx)
	}
	ctx.waitReason = waitNothing

	h, tx := e.txPool.Acquire()
	if tx == nil {
		panic("llcp: tx pool exhausted after successful peek")
	}
	*tx = TxNode{handle: h, owner: c}
	c.trace("tx alloc conn=%d common=%d/%d", c.txBufferAlloc, f.commonAlloc, f.common)
	return tx
}

// txUnpeek withdraws ctx from the wait-list.
func (e *Engine) txUnpeek(ctx *ProcCtx) {
	if ctx.waitReason == waitTxBuffer {
		e.flow.remove(ctx)
	}
}

// txRelease returns tx to the pool and undoes the charge made by txCommit.
func (e *Engine) txRelease(tx *TxNode) {
	c, h := tx.owner, tx.handle
	e.txPool.Release(h)

	f := &e.flow
	if c.txBufferAlloc > f.perConn {
		f.commonAlloc--
	}
	c.txBufferAlloc--
	c.trace("tx release conn=%d common=%d/%d", c.txBufferAlloc, f.commonAlloc, f.common)
}
