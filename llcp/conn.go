package llcp

import (
	"fmt"

	"github.com/user/blue-llcp/logger"
	"github.com/user/blue-llcp/pdu"
)

// Role of the local device on a connection
type Role uint8

const (
	RoleCentral Role = iota
	RolePeripheral
)

func (r Role) String() string {
	if r == RoleCentral {
		return "central"
	}
	return "peripheral"
}

// LinkState is passed to Conn.StateSet on connect and disconnect.
type LinkState uint8

const (
	StateDisconnected LinkState = iota
	StateConnected
)

// prtTimeoutMs is the procedure response timeout.
const prtTimeoutMs = 40000

type encState struct {
	enabled    bool
	dataPaused bool
	ltk        [16]byte
}

// dleState tracks the local and peer data length values, all in
// DataLengthConfig form.
type dleState struct {
	local  DataLengthConfig
	remote DataLengthConfig
	eff    DataLengthConfig
}

func newDLE(local DataLengthConfig) dleState {
	def := DataLengthConfig{
		MaxTxOctets: minOctets,
		MaxTxTime:   minTime,
		MaxRxOctets: minOctets,
		MaxRxTime:   minTime,
	}
	return dleState{local: local, remote: def, eff: def}
}

func clampU16(v, lo, hi uint16) uint16 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (d *dleState) localPDU() pdu.Length {
	return pdu.Length{
		MaxRxOctets: d.local.MaxRxOctets,
		MaxRxTime:   d.local.MaxRxTime,
		MaxTxOctets: d.local.MaxTxOctets,
		MaxTxTime:   d.local.MaxTxTime,
	}
}

func (d *dleState) setRemote(l pdu.Length) {
	d.remote = DataLengthConfig{
		MaxTxOctets: clampU16(l.MaxTxOctets, minOctets, maxOctets),
		MaxTxTime:   clampU16(l.MaxTxTime, minTime, maxTime),
		MaxRxOctets: clampU16(l.MaxRxOctets, minOctets, maxOctets),
		MaxRxTime:   clampU16(l.MaxRxTime, minTime, maxTime),
	}
}

// update recomputes the effective lengths and reports whether they changed.
func (d *dleState) update() bool {
	eff := DataLengthConfig{
		MaxTxOctets: minU16(d.local.MaxTxOctets, d.remote.MaxRxOctets),
		MaxTxTime:   minU16(d.local.MaxTxTime, d.remote.MaxRxTime),
		MaxRxOctets: minU16(d.local.MaxRxOctets, d.remote.MaxTxOctets),
		MaxRxTime:   minU16(d.local.MaxRxTime, d.remote.MaxTxTime),
	}
	changed := eff != d.eff
	d.eff = eff
	return changed
}

func (d *dleState) ntf() DataLengthNtf {
	return DataLengthNtf{
		MaxTxOctets: d.eff.MaxTxOctets,
		MaxTxTime:   d.eff.MaxTxTime,
		MaxRxOctets: d.eff.MaxRxOctets,
		MaxRxTime:   d.eff.MaxRxTime,
	}
}

// Conn is the control plane of one connection.
type Conn struct {
	e      *Engine
	handle uint16
	role   Role
	link   Link
	tag    string
	prefix string

	local  localReq
	remote remoteReq

	// TX buffers charged to this connection
	txBufferAlloc int

	// One-shot exchange results, valid until the link is lost
	vex struct {
		valid bool
		sent  bool
		peer  VersionInfo
	}
	fex struct {
		valid bool
		peer  uint64
	}
	muc struct {
		valid bool
		phys  uint8
		count uint8
	}

	params          LinkParams
	dle             dleState
	enc             encState
	cteRsp          bool
	terminateReason uint8
	closed          bool
}

// Handle returns the connection handle.
func (c *Conn) Handle() uint16 { return c.handle }

// Role returns the local role.
func (c *Conn) Role() Role { return c.role }

// Tag returns the unique tag of this connection instance.
func (c *Conn) Tag() string { return c.tag }

// StateSet tells the engine the link was established or lost.
func (c *Conn) StateSet(state LinkState) {
	switch state {
	case StateConnected:
		if c.closed {
			logger.Warn(c.prefix, "connect on a closed connection ignored")
			return
		}
		if c.local.state == lrDisconnected && c.remote.state == rrDisconnected {
			c.resetLink()
		}
		if c.local.state == lrDisconnected {
			c.local.state = lrIdle
		}
		if c.remote.state == rrDisconnected {
			c.remote.state = rrIdle
		}
		logger.Info(c.prefix, "connected as %s", c.role)
	case StateDisconnected:
		c.lrAbort()
		c.rrAbort()
		c.local.state = lrDisconnected
		c.remote.state = rrDisconnected
		c.enc.dataPaused = false
		logger.Info(c.prefix, "disconnected (reason %s)", pdu.ErrorName(c.terminateReason))
	}
}

// resetLink forgets everything learnt on the previous link.
func (c *Conn) resetLink() {
	c.vex.valid, c.vex.sent, c.vex.peer = false, false, VersionInfo{}
	c.fex.valid, c.fex.peer = false, 0
	c.muc.valid, c.muc.phys, c.muc.count = false, 0, 0
	c.params = defaultLinkParams()
	c.dle = newDLE(c.e.cfg.DataLength)
	c.enc = encState{}
	c.terminateReason = pdu.ErrSuccess
}

// Run steps the remote and local request machines once, in the configured
// order. Call it once per connection event.
func (c *Conn) Run() {
	if c.e.cfg.RunOrder == RunLocalFirst {
		c.lrRun()
		c.rrRun()
		return
	}
	c.rrRun()
	c.lrRun()
}

// ReleaseTx returns a TX node to the engine once the link is done with it.
func (c *Conn) ReleaseTx(tx *TxNode) {
	c.e.txRelease(tx)
}

// PrtElapse advances the procedure response timers by elapsed connection
// events. It returns pdu.ErrLLRespTimeout once a procedure has been waiting
// for longer than 40s; the connection must then be dropped.
func (c *Conn) PrtElapse(elapsed uint16) uint8 {
	local := c.local.prt.expire(elapsed)
	remote := c.remote.prt.expire(elapsed)
	if local || remote {
		logger.Warn(c.prefix, "procedure response timeout")
		c.terminateReason = pdu.ErrLLRespTimeout
		return pdu.ErrLLRespTimeout
	}
	return pdu.ErrSuccess
}

// Close disconnects the connection and gives its slot back to the engine.
// Closing twice is a no-op.
func (c *Conn) Close() {
	if c.closed {
		return
	}
	c.StateSet(StateDisconnected)
	c.closed = true
	c.e.conns--
}

type prtTimer uint16

func (t *prtTimer) expire(elapsed uint16) bool {
	if *t == 0 {
		return false
	}
	if uint16(*t) > elapsed {
		*t -= prtTimer(elapsed)
		return false
	}
	*t = 0
	return true
}

func (c *Conn) prtEvents() prtTimer {
	// interval is in 1.25ms units
	return prtTimer(uint32(prtTimeoutMs) * 4 / 5 / uint32(c.params.Interval))
}

// tx encodes pkt into a TX buffer and queues it on the link. It returns nil,
// leaving ctx on the wait-list, when no buffer is available.
func (c *Conn) tx(ctx *ProcCtx, pkt interface{}) *TxNode {
	tok, ok := c.e.txPeek(c, ctx)
	if !ok {
		return nil
	}
	data, err := pdu.EncodePacket(pkt)
	if err != nil {
		panic(fmt.Sprintf("llcp: encode %T: %v", pkt, err))
	}
	tx := c.e.txCommit(tok)
	tx.n = copy(tx.buf[:], data)
	ctx.txOpcode = tx.Opcode()

	c.trace("tx %s % X", pdu.OpcodeName(ctx.txOpcode), data)
	c.e.tracePDU(c, "tx", data)
	c.link.EnqueueCtrl(tx)
	return tx
}

// reject answers the PDU that started ctx with LL_REJECT_EXT_IND, or
// LL_REJECT_IND when extended reject is not supported.
func (c *Conn) reject(ctx *ProcCtx, op, code uint8) bool {
	var pkt interface{} = &pdu.RejectExtInd{RejectOpcode: op, ErrorCode: code}
	if c.e.features&FeatExtRejectInd == 0 {
		pkt = &pdu.RejectInd{ErrorCode: code}
	}
	if c.tx(ctx, pkt) == nil {
		return false
	}
	logger.Info(c.prefix, "rejected peer %s: %s", pdu.OpcodeName(op), pdu.ErrorName(code))
	return true
}

func (c *Conn) pauseData() {
	if !c.enc.dataPaused {
		c.enc.dataPaused = true
		c.link.PauseData()
	}
}

func (c *Conn) resumeData() {
	if c.enc.dataPaused {
		c.enc.dataPaused = false
		c.link.ResumeData()
	}
}

// instant returns the instant for a procedure started at the current event.
func (c *Conn) instant() uint16 {
	return c.link.EventCounter() + c.params.Latency + instantLatency
}

// instantPassed drops the connection: the peer sent an instant that is
// already in the past.
func (c *Conn) instantPassed(ctx *ProcCtx) {
	logger.Warn(c.prefix, "%s instant passed, connection lost", ctx.proc)
	c.terminateReason = pdu.ErrInstantPassed
	ctx.complete()
}

func (c *Conn) trace(format string, args ...interface{}) {
	logger.Trace(c.prefix, format, args...)
}

func (c *Conn) debug(format string, args ...interface{}) {
	logger.Debug(c.prefix, format, args...)
}

func (c *Conn) String() string { return c.prefix }
