package sim

import (
	"github.com/user/blue-llcp/llcp"
	"github.com/user/blue-llcp/mem"
)

// radio is one direction of the simulated link. It implements llcp.Link.
type radio struct {
	counter *uint16
	queue   []queued
	paused  bool
	pauses  int
}

type queued struct {
	tx  *llcp.TxNode
	due int // first step the PDU may be delivered in
}

func (r *radio) EnqueueCtrl(tx *llcp.TxNode) {
	r.queue = append(r.queue, queued{tx: tx})
}

func (r *radio) PauseData() {
	r.paused = true
	r.pauses++
}

func (r *radio) ResumeData()          { r.paused = false }
func (r *radio) EventCounter() uint16 { return *r.counter }

// rxPool is the notification pool of one side, backed by a mem.Pool so its
// capacity is as hard as the engine's own pools.
type rxPool struct {
	pool    *mem.Pool[llcp.RxNode]
	handles map[*llcp.RxNode]mem.Handle
}

func newRxPool(n int) *rxPool {
	return &rxPool{
		pool:    mem.NewPool[llcp.RxNode](n),
		handles: make(map[*llcp.RxNode]mem.Handle, n),
	}
}

func (p *rxPool) AllocPeek(count int) bool { return p.pool.Available() >= count }

func (p *rxPool) Alloc() *llcp.RxNode {
	h, rx := p.pool.Acquire()
	if rx == nil {
		return nil
	}
	*rx = llcp.RxNode{}
	p.handles[rx] = h
	return rx
}

func (p *rxPool) Release(rx *llcp.RxNode) {
	h, ok := p.handles[rx]
	if !ok {
		panic("sim: release of an rx node this pool does not own")
	}
	delete(p.handles, rx)
	p.pool.Release(h)
}
