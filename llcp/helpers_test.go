package llcp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/blue-llcp/pdu"
)

// fakeLink records queued control PDUs in order.
type fakeLink struct {
	queue   []*TxNode
	counter uint16
	paused  bool
	pauses  int
}

func (l *fakeLink) EnqueueCtrl(tx *TxNode) { l.queue = append(l.queue, tx) }
func (l *fakeLink) PauseData()             { l.paused = true; l.pauses++ }
func (l *fakeLink) ResumeData()            { l.paused = false }
func (l *fakeLink) EventCounter() uint16   { return l.counter }

// take removes and returns the queued nodes without acknowledging them.
func (l *fakeLink) take() []*TxNode {
	q := l.queue
	l.queue = nil
	return q
}

// flush acknowledges and releases everything queued on c and returns the
// encoded PDUs.
func (l *fakeLink) flush(c *Conn) [][]byte {
	var out [][]byte
	for _, tx := range l.take() {
		out = append(out, append([]byte(nil), tx.PDU()...))
		c.TxAck(tx)
		c.ReleaseTx(tx)
	}
	return out
}

// fakeRx is an RX pool with an adjustable number of free nodes.
type fakeRx struct {
	free int
}

func (r *fakeRx) AllocPeek(n int) bool { return r.free >= n }

func (r *fakeRx) Alloc() *RxNode {
	if r.free == 0 {
		return nil
	}
	r.free--
	return &RxNode{}
}

func (r *fakeRx) Release(*RxNode) { r.free++ }

// fakeHost keeps every notification; with autoRelease it gives the node back
// at once.
type fakeHost struct {
	rx          *fakeRx
	autoRelease bool
	nodes       []*RxNode
}

func (h *fakeHost) Notify(rx *RxNode) {
	h.nodes = append(h.nodes, rx)
	if h.autoRelease {
		h.rx.Release(rx)
	}
}

func (h *fakeHost) ntfs() []Notification {
	out := make([]Notification, 0, len(h.nodes))
	for _, n := range h.nodes {
		out = append(out, n.Ntf)
	}
	return out
}

func (h *fakeHost) last(t *testing.T) Notification {
	t.Helper()
	require.NotEmpty(t, h.nodes, "no notification")
	return h.nodes[len(h.nodes)-1].Ntf
}

func testConfig(mutate func(cfg *Config)) Config {
	cfg := DefaultConfig()
	cfg.MaxConns = 2
	if mutate != nil {
		mutate(&cfg)
	}
	return cfg
}

func newTestEngine(t *testing.T, mutate func(cfg *Config)) (*Engine, *fakeRx, *fakeHost) {
	t.Helper()
	rx := &fakeRx{free: 4}
	host := &fakeHost{rx: rx, autoRelease: true}
	e, err := New(testConfig(mutate), rx, host)
	require.NoError(t, err)
	return e, rx, host
}

func newTestConn(t *testing.T, e *Engine, handle uint16, role Role) (*Conn, *fakeLink) {
	t.Helper()
	link := &fakeLink{}
	c, err := e.NewConn(handle, role, link)
	require.NoError(t, err)
	c.StateSet(StateConnected)
	return c, link
}

func encode(t *testing.T, pkt interface{}) []byte {
	t.Helper()
	data, err := pdu.EncodePacket(pkt)
	require.NoError(t, err)
	return data
}

func decode(t *testing.T, data []byte) interface{} {
	t.Helper()
	pkt, err := pdu.DecodePacket(data)
	require.NoError(t, err)
	return pkt
}

func opcodes(pdus [][]byte) []uint8 {
	ops := make([]uint8, 0, len(pdus))
	for _, p := range pdus {
		ops = append(ops, pdu.Opcode(p))
	}
	return ops
}

// requireIdle checks that every context and TX buffer is back in its pool.
func requireIdle(t *testing.T, e *Engine) {
	t.Helper()
	s := e.Stats()
	cfg := e.Config()
	require.Equal(t, cfg.LocalContexts, s.LocalContextsFree, "local contexts")
	require.Equal(t, cfg.RemoteContexts, s.RemoteContextsFree, "remote contexts")
	require.Equal(t, e.txPool.Cap(), s.TxBuffersFree, "tx buffers")
	require.Zero(t, s.CommonTxAlloc)
	require.Zero(t, s.TxWaiting)
}
