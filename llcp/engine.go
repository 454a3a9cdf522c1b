package llcp

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/user/blue-llcp/logger"
	"github.com/user/blue-llcp/mem"
)

// Link is the connection-level TX queue of the lower link layer.
type Link interface {
	// EnqueueCtrl queues a control PDU ahead of data traffic.
	EnqueueCtrl(tx *TxNode)
	PauseData()
	ResumeData()
	// EventCounter returns the current connection event counter.
	EventCounter() uint16
}

// RxPool is the RX node allocator shared with the rest of the controller.
type RxPool interface {
	AllocPeek(count int) bool
	Alloc() *RxNode
	Release(rx *RxNode)
}

// Host receives notifications. It owns rx until it calls RxPool.Release.
type Host interface {
	Notify(rx *RxNode)
}

// Tracer records control PDUs and procedure transitions.
type Tracer interface {
	TracePDU(handle uint16, dir string, data []byte)
	TraceProc(handle uint16, side, proc, event string)
}

// Stats is a snapshot of the shared resources.
type Stats struct {
	LocalContextsFree  int
	RemoteContextsFree int
	TxBuffersFree      int
	CommonTxAlloc      int
	TxWaiting          int
}

// Engine owns the resources shared by every connection.
type Engine struct {
	cfg      Config
	features uint64

	localCtx  *mem.Pool[ProcCtx]
	remoteCtx *mem.Pool[ProcCtx]
	txPool    *mem.Pool[TxNode]
	flow      txFlow

	rx     RxPool
	host   Host
	tracer Tracer

	conns int
}

// New validates cfg and allocates every pool the engine will ever use.
func New(cfg Config, rx RxPool, host Host) (*Engine, error) {
	if rx == nil || host == nil {
		return nil, errors.New("llcp: rx pool and host are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	features, _ := cfg.FeatureMask()

	e := &Engine{
		cfg:       cfg,
		features:  features,
		localCtx:  mem.NewPool[ProcCtx](cfg.LocalContexts),
		remoteCtx: mem.NewPool[ProcCtx](cfg.RemoteContexts),
		txPool:    mem.NewPool[TxNode](cfg.PerConnTxBuffers*cfg.MaxConns + cfg.CommonTxBuffers),
		flow:      newTxFlow(cfg.PerConnTxBuffers, cfg.CommonTxBuffers),
		rx:        rx,
		host:      host,
	}
	logger.Debug("llcp", "engine: %d local / %d remote contexts, %d tx buffers (%d per conn, %d common), features 0x%016X",
		cfg.LocalContexts, cfg.RemoteContexts, e.txPool.Cap(), cfg.PerConnTxBuffers, cfg.CommonTxBuffers, features)
	return e, nil
}

// Init returns every pool to its initial state. Connections created before
// Init must not be used afterwards.
func (e *Engine) Init() {
	e.localCtx.Init()
	e.remoteCtx.Init()
	e.txPool.Init()
	e.flow.reset()
	e.conns = 0
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Features returns the local LL feature bits.
func (e *Engine) Features() uint64 { return e.features }

// SetTracer installs t; nil disables tracing.
func (e *Engine) SetTracer(t Tracer) { e.tracer = t }

// Stats reports free pool blocks and the wait-list length.
func (e *Engine) Stats() Stats {
	return Stats{
		LocalContextsFree:  e.localCtx.Available(),
		RemoteContextsFree: e.remoteCtx.Available(),
		TxBuffersFree:      e.txPool.Available(),
		CommonTxAlloc:      e.flow.commonAlloc,
		TxWaiting:          len(e.flow.waitlist),
	}
}

// NewConn creates the control plane of one connection. The connection stays
// disconnected until StateSet(StateConnected).
func (e *Engine) NewConn(handle uint16, role Role, link Link) (*Conn, error) {
	if link == nil {
		return nil, errors.New("llcp: link is required")
	}
	if e.conns >= e.cfg.MaxConns {
		return nil, errors.Errorf("llcp: connection limit reached (%d)", e.cfg.MaxConns)
	}
	e.conns++

	tag := uuid.New().String()
	c := &Conn{
		e:      e,
		handle: handle,
		role:   role,
		link:   link,
		tag:    tag,
		prefix: fmt.Sprintf("llcp 0x%04X %s", handle, tag[:8]),
		params: defaultLinkParams(),
		cteRsp: true,
	}
	c.dle = newDLE(e.cfg.DataLength)
	c.local.init()
	c.remote.init()
	logger.Info(c.prefix, "new %s connection", role)
	return c, nil
}

func (e *Engine) procEnabled(proc Proc, remote bool) bool {
	switch proc {
	case ProcLEPing:
		return e.features&FeatLEPing != 0
	case ProcMinUsedChans:
		return e.features&FeatMinUsedChans != 0
	case ProcEncryptionStart, ProcEncryptionPause:
		return e.features&FeatLEEncryption != 0
	case ProcPHYUpdate:
		return e.features&(FeatLE2MPhy|FeatLECodedPhy) != 0
	case ProcConnParamReq:
		return e.features&FeatConnParamReq != 0
	case ProcDataLengthUpdate:
		return e.features&FeatDataLength != 0
	case ProcCTEReq:
		if remote {
			return e.features&FeatCTERsp != 0
		}
		return e.features&FeatCTEReq != 0
	}
	return true
}

// supportedPhys returns the PHYs this controller can use.
func (e *Engine) supportedPhys() uint8 {
	phys := Phy1M
	if e.features&FeatLE2MPhy != 0 {
		phys |= Phy2M
	}
	if e.features&FeatLECodedPhy != 0 {
		phys |= PhyCoded
	}
	return phys
}

func (e *Engine) traceProc(c *Conn, ctx *ProcCtx, event string) {
	if e.tracer == nil {
		return
	}
	side := "local"
	if ctx.remote {
		side = "remote"
	}
	e.tracer.TraceProc(c.handle, side, ctx.proc.String(), event)
}

func (e *Engine) tracePDU(c *Conn, dir string, data []byte) {
	if e.tracer != nil {
		e.tracer.TracePDU(c.handle, dir, data)
	}
}
