package llcp

import (
	"github.com/user/blue-llcp/mem"
	"github.com/user/blue-llcp/pdu"
)

// Proc is the kind of a control procedure.
type Proc uint8

const (
	ProcUnknown Proc = iota
	ProcFeatureExchange
	ProcVersionExchange
	ProcLEPing
	ProcMinUsedChans
	ProcEncryptionStart
	ProcEncryptionPause
	ProcPHYUpdate
	ProcConnUpdate
	ProcConnParamReq
	ProcTerminate
	ProcChanMapUpdate
	ProcDataLengthUpdate
	ProcCTEReq
	procCount
)

var procNames = [procCount]string{
	ProcUnknown:          "UNKNOWN",
	ProcFeatureExchange:  "FEATURE_EXCHANGE",
	ProcVersionExchange:  "VERSION_EXCHANGE",
	ProcLEPing:           "LE_PING",
	ProcMinUsedChans:     "MIN_USED_CHANS",
	ProcEncryptionStart:  "ENCRYPTION_START",
	ProcEncryptionPause:  "ENCRYPTION_PAUSE",
	ProcPHYUpdate:        "PHY_UPDATE",
	ProcConnUpdate:       "CONN_UPDATE",
	ProcConnParamReq:     "CONN_PARAM_REQ",
	ProcTerminate:        "TERMINATE",
	ProcChanMapUpdate:    "CHAN_MAP_UPDATE",
	ProcDataLengthUpdate: "DATA_LENGTH_UPDATE",
	ProcCTEReq:           "CTE_REQ",
}

func (p Proc) String() string {
	if p < procCount {
		return procNames[p]
	}
	return "INVALID"
}

// withInstant reports whether the procedure applies its result at an
// instant. Two of these never run concurrently on one connection.
func (p Proc) withInstant() bool {
	switch p {
	case ProcPHYUpdate, ProcConnUpdate, ProcConnParamReq, ProcChanMapUpdate:
		return true
	}
	return false
}

// procFSM is the sub-machine of one procedure kind. Implementations are
// stateless; all state lives in the ProcCtx.
type procFSM interface {
	// init sets the initial sub-state.
	init(ctx *ProcCtx)
	// run is called once per connection event while ctx is active.
	run(c *Conn, ctx *ProcCtx)
	// rx delivers a control PDU routed to ctx.
	rx(c *Conn, ctx *ProcCtx, data []byte)
	// txAck reports that ctx.txAck was acknowledged by the peer.
	txAck(c *Conn, ctx *ProcCtx, tx *TxNode)
}

// ProcCtx is one in-flight control procedure. Contexts live in the engine
// pools and are only created by createLocal and createRemote.
type ProcCtx struct {
	handle mem.Handle
	remote bool
	fsm    procFSM

	proc      Proc
	state     uint8
	collision bool
	pause     bool
	done      bool

	rxOpcode       uint8
	txOpcode       uint8
	responseOpcode uint8

	data procData

	waitReason waitReason
	txAck      *TxNode

	// PDU that created a remote procedure, delivered once it becomes active.
	pending    [pdu.MaxCtrlPDULen]byte
	pendingLen int
}

// procData holds the per-kind parameters. Only the member selected by proc is
// meaningful.
type procData struct {
	status      uint8 // error reported on completion
	unknownType uint8

	muc  mucData
	term termData
	enc  encData
	phy  phyData
	cu   cuData
	chmu chmuData
	cte  cteData
}

type mucData struct {
	phys  uint8
	count uint8
}

type termData struct {
	reason uint8
}

type cteData struct {
	minLen  uint8
	cteType uint8
}

// Proc returns the procedure kind.
func (ctx *ProcCtx) Proc() Proc { return ctx.proc }

// Collision reports whether the procedure is deferred by a peer procedure.
func (ctx *ProcCtx) Collision() bool { return ctx.collision }

// expect records the next PDU the peer has to send for ctx.
func (ctx *ProcCtx) expect(op uint8) {
	ctx.rxOpcode = op
	ctx.responseOpcode = op
}

func (ctx *ProcCtx) complete() {
	ctx.done = true
	ctx.rxOpcode = pdu.OpInvalid
}

func (ctx *ProcCtx) pendingPDU() []byte {
	return ctx.pending[:ctx.pendingLen]
}
