package llcp

import (
	"fmt"

	"github.com/user/blue-llcp/mem"
	"github.com/user/blue-llcp/pdu"
)

var localFSMs = [procCount]procFSM{
	ProcFeatureExchange:  lpComm{},
	ProcVersionExchange:  lpComm{},
	ProcLEPing:           lpComm{},
	ProcMinUsedChans:     lpComm{},
	ProcTerminate:        lpComm{},
	ProcDataLengthUpdate: lpComm{},
	ProcCTEReq:           lpComm{},
	ProcEncryptionStart:  lpEnc{},
	ProcEncryptionPause:  lpEnc{},
	ProcPHYUpdate:        lpPhy{},
	ProcConnUpdate:       lpCu{},
	ProcConnParamReq:     lpCu{},
	ProcChanMapUpdate:    lpChmu{},
}

var remoteFSMs = [procCount]procFSM{
	ProcUnknown:          rpComm{},
	ProcFeatureExchange:  rpComm{},
	ProcVersionExchange:  rpComm{},
	ProcLEPing:           rpComm{},
	ProcMinUsedChans:     rpComm{},
	ProcTerminate:        rpComm{},
	ProcDataLengthUpdate: rpComm{},
	ProcCTEReq:           rpComm{},
	ProcEncryptionStart:  rpEnc{},
	ProcEncryptionPause:  rpEnc{},
	ProcPHYUpdate:        rpPhy{},
	ProcConnUpdate:       rpCu{},
	ProcConnParamReq:     rpCu{},
	ProcChanMapUpdate:    rpChmu{},
}

func (e *Engine) createLocal(proc Proc) *ProcCtx {
	return e.createProc(e.localCtx, &localFSMs, false, proc)
}

func (e *Engine) createRemote(proc Proc) *ProcCtx {
	return e.createProc(e.remoteCtx, &remoteFSMs, true, proc)
}

// createProc returns nil when the pool is empty. A kind without a machine
// for this side, or one disabled by configuration, is a caller bug.
func (e *Engine) createProc(pool *mem.Pool[ProcCtx], table *[procCount]procFSM, remote bool, proc Proc) *ProcCtx {
	if proc >= procCount || table[proc] == nil || !e.procEnabled(proc, remote) {
		panic(fmt.Sprintf("llcp: no procedure machine for %s (remote %v)", proc, remote))
	}
	h, ctx := pool.Acquire()
	if ctx == nil {
		return nil
	}
	*ctx = ProcCtx{
		handle:         h,
		remote:         remote,
		proc:           proc,
		rxOpcode:       pdu.OpInvalid,
		txOpcode:       pdu.OpInvalid,
		responseOpcode: pdu.OpInvalid,
		fsm:            table[proc],
	}
	ctx.fsm.init(ctx)
	return ctx
}

// releaseCtx returns ctx to its pool. ctx must not be referenced afterwards.
func (e *Engine) releaseCtx(ctx *ProcCtx) {
	e.txUnpeek(ctx)
	pool := e.localCtx
	if ctx.remote {
		pool = e.remoteCtx
	}
	h := ctx.handle
	ctx.fsm = nil
	ctx.txAck = nil
	pool.Release(h)
}

// remoteProc maps the first PDU of a peer procedure to its kind. Anything
// that does not start a procedure is answered as ProcUnknown, except the
// refusals: ok is false for those and they are never answered.
func (c *Conn) remoteProc(op uint8) (proc Proc, ok bool) {
	central := c.role == RoleCentral
	proc = ProcUnknown
	switch op {
	case pdu.OpConnUpdateInd:
		if !central {
			proc = ProcConnUpdate
		}
	case pdu.OpChanMapInd:
		if !central {
			proc = ProcChanMapUpdate
		}
	case pdu.OpTerminateInd:
		proc = ProcTerminate
	case pdu.OpEncReq:
		if !central {
			proc = ProcEncryptionStart
		}
	case pdu.OpPauseEncReq:
		if !central {
			proc = ProcEncryptionPause
		}
	case pdu.OpFeatureReq:
		if !central {
			proc = ProcFeatureExchange
		}
	case pdu.OpPerInitFeatXchg:
		if central {
			proc = ProcFeatureExchange
		}
	case pdu.OpVersionInd:
		proc = ProcVersionExchange
	case pdu.OpConnParamReq:
		proc = ProcConnParamReq
	case pdu.OpPingReq:
		proc = ProcLEPing
	case pdu.OpLengthReq:
		proc = ProcDataLengthUpdate
	case pdu.OpPhyReq:
		proc = ProcPHYUpdate
	case pdu.OpMinUsedChanInd:
		if central {
			proc = ProcMinUsedChans
		}
	case pdu.OpCteReq:
		proc = ProcCTEReq
	case pdu.OpUnknownRsp, pdu.OpRejectInd, pdu.OpRejectExtInd:
		return ProcUnknown, false
	}
	if !c.e.procEnabled(proc, true) {
		proc = ProcUnknown
	}
	return proc, true
}
