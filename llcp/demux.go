package llcp

import "github.com/user/blue-llcp/pdu"

// Rx routes a received control PDU to the active local procedure, then the
// active remote one, and otherwise starts a new peer procedure.
// LL_TERMINATE_IND always starts a new peer procedure.
func (c *Conn) Rx(data []byte) {
	if len(data) == 0 {
		return
	}
	c.trace("rx %s % X", pdu.OpcodeName(data[0]), data)
	c.e.tracePDU(c, "rx", data)

	if data[0] != pdu.OpTerminateInd {
		if ctx := c.local.cur; ctx != nil && ctx.accepts(data) {
			c.lrRx(ctx, data)
			return
		}
		if ctx := c.remote.cur; ctx != nil && c.remote.state == rrActive && ctx.accepts(data) {
			c.rrRx(ctx, data)
			return
		}
	}
	c.rrNew(data)
}

// accepts reports whether data answers ctx: it is the expected opcode, an
// LL_UNKNOWN_RSP or LL_REJECT_EXT_IND about the last PDU ctx sent, or an
// LL_REJECT_IND after ctx sent something.
func (ctx *ProcCtx) accepts(data []byte) bool {
	op := pdu.Opcode(data)
	if ctx.rxOpcode != pdu.OpInvalid && op == ctx.rxOpcode {
		return true
	}
	if ctx.txOpcode == pdu.OpInvalid {
		return false
	}
	if ref, ok := pdu.RefOpcode(data); ok {
		return ref == ctx.txOpcode
	}
	return op == pdu.OpRejectInd
}

// TxAck reports that the peer acknowledged tx. At most one active context
// waits for it.
func (c *Conn) TxAck(tx *TxNode) {
	if ctx := c.local.cur; ctx != nil && ctx.txAck == tx {
		ctx.txAck = nil
		c.lrTxAck(ctx, tx)
		return
	}
	if ctx := c.remote.cur; ctx != nil && ctx.txAck == tx {
		ctx.txAck = nil
		c.rrTxAck(ctx, tx)
	}
}
