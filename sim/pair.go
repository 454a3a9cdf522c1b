// Package sim drives a central and a peripheral LLCP engine against each
// other over an in-memory link, one connection event at a time.
package sim

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/user/blue-llcp/hostif"
	"github.com/user/blue-llcp/llcp"
	"github.com/user/blue-llcp/logger"
	"github.com/user/blue-llcp/pdu"
	"github.com/user/blue-llcp/trace"
)

// connHandle is used by both sides; each engine owns a single connection.
const connHandle = 0x0001

// Sides, as named in scenarios and reports
const (
	SideCentral    = "central"
	SidePeripheral = "peripheral"
)

// Side is one controller of a Pair.
type Side struct {
	Name   string
	Engine *llcp.Engine
	Conn   *llcp.Conn
	Host   *hostif.Recorder
	Tracer *trace.Tracer // nil unless tracing is on

	radio      *radio
	rx         *rxPool
	peer       *Side
	ltkPending bool
}

// Idle reports whether every pool of the side is full and nothing is queued
// on its link.
func (s *Side) Idle() bool {
	st := s.Engine.Stats()
	cfg := s.Engine.Config()
	return st.LocalContextsFree == cfg.LocalContexts &&
		st.RemoteContextsFree == cfg.RemoteContexts &&
		st.TxBuffersFree == cfg.PerConnTxBuffers*cfg.MaxConns+cfg.CommonTxBuffers &&
		st.CommonTxAlloc == 0 &&
		st.TxWaiting == 0 &&
		len(s.radio.queue) == 0 &&
		s.rx.pool.InUse() == 0
}

// DataPauses returns how often the engine paused the data path.
func (s *Side) DataPauses() int { return s.radio.pauses }

// Notification is a host event seen by one side.
type Notification struct {
	At    int // connection event counter
	Side  string
	Event hostif.Event
}

func (n Notification) String() string {
	return fmt.Sprintf("[%5d] %-10s %s", n.At, n.Side, n.Event)
}

// PDU is a control PDU carried by the link.
type PDU struct {
	At   int
	From string
	Data []byte
}

func (p PDU) String() string {
	return fmt.Sprintf("[%5d] %-10s -> %s % X", p.At, p.From, pdu.OpcodeName(pdu.Opcode(p.Data)), p.Data)
}

// Pair is a connection between two simulated controllers.
type Pair struct {
	Central    *Side
	Peripheral *Side

	cfg     Config
	rng     *rand.Rand
	ltk     [16]byte
	counter uint16
	events  int

	disconnected bool
	reason       uint8

	ntfs []Notification
	pdus []PDU
}

// NewPair builds both engines from engCfg and connects them.
func NewPair(engCfg llcp.Config, cfg Config) (*Pair, error) {
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ltk, _ := cfg.ltk()
	p := &Pair{cfg: cfg, rng: cfg.rng(), ltk: ltk}

	var err error
	if p.Central, err = p.newSide(engCfg, llcp.RoleCentral); err != nil {
		return nil, err
	}
	if p.Peripheral, err = p.newSide(engCfg, llcp.RolePeripheral); err != nil {
		return nil, err
	}
	p.Central.peer = p.Peripheral
	p.Peripheral.peer = p.Central

	p.Central.Conn.StateSet(llcp.StateConnected)
	p.Peripheral.Conn.StateSet(llcp.StateConnected)
	return p, nil
}

func (p *Pair) newSide(engCfg llcp.Config, role llcp.Role) (*Side, error) {
	s := &Side{
		Name:  role.String(),
		rx:    newRxPool(p.cfg.RxNodes),
		radio: &radio{counter: &p.counter},
	}
	s.Host = hostif.NewRecorder(s.Name, s.rx)
	s.Host.OnEvent = func(ev hostif.Event) { p.onEvent(s, ev) }

	eng, err := llcp.New(engCfg, s.rx, s.Host)
	if err != nil {
		return nil, errors.WithMessagef(err, "sim: %s engine", s.Name)
	}
	conn, err := eng.NewConn(connHandle, role, s.radio)
	if err != nil {
		return nil, errors.WithMessagef(err, "sim: %s connection", s.Name)
	}
	s.Engine, s.Conn = eng, conn

	if p.cfg.Trace || engCfg.Trace {
		s.Tracer = trace.New(s.Name+"-"+conn.Tag(), true)
		eng.SetTracer(s.Tracer)
	}
	return s, nil
}

func (p *Pair) onEvent(s *Side, ev hostif.Event) {
	p.ntfs = append(p.ntfs, Notification{At: int(p.counter), Side: s.Name, Event: ev})
	if _, ok := ev.Ntf.(llcp.LTKRequestNtf); ok {
		s.ltkPending = true
	}
}

// Side returns the side called name.
func (p *Pair) Side(name string) (*Side, error) {
	switch name {
	case SideCentral:
		return p.Central, nil
	case SidePeripheral:
		return p.Peripheral, nil
	}
	return nil, errors.Errorf("sim: unknown side %q", name)
}

func (p *Pair) sides() [2]*Side { return [2]*Side{p.Central, p.Peripheral} }

// Counter returns the connection event counter.
func (p *Pair) Counter() uint16 { return p.counter }

// Disconnected reports whether the link is down and why.
func (p *Pair) Disconnected() (bool, uint8) { return p.disconnected, p.reason }

// Notifications returns every host event so far, in order.
func (p *Pair) Notifications() []Notification { return p.ntfs }

// PDUs returns every control PDU carried so far, in order.
func (p *Pair) PDUs() []PDU { return p.pdus }

// Step runs one connection event: both controllers run their procedures,
// queued control PDUs cross the link and the event counter advances. It
// returns false once the link is down.
func (p *Pair) Step() bool {
	if p.disconnected {
		return false
	}
	sides := p.sides()
	for _, s := range sides {
		s.Conn.Run()
	}
	for _, s := range sides {
		p.deliver(s)
	}
	for _, s := range sides {
		if s.ltkPending {
			s.ltkPending = false
			p.answerLTK(s)
		}
	}
	for _, s := range sides {
		if reason := s.Conn.PrtElapse(1); reason != pdu.ErrSuccess {
			p.disconnect(reason)
			return false
		}
	}
	for _, s := range sides {
		if reason := s.Conn.TerminateReason(); reason != pdu.ErrSuccess {
			p.disconnect(reason)
			return false
		}
	}
	p.counter++
	p.events++
	return true
}

// Run steps n connection events or until the link drops.
func (p *Pair) Run(n int) {
	for i := 0; i < n && p.Step(); i++ {
	}
}

// Settle steps until both sides are idle, for at most max events. It
// returns the number of events taken and whether the pair settled.
func (p *Pair) Settle(max int) (int, bool) {
	for i := 0; i < max; i++ {
		if p.Idle() {
			return i, true
		}
		if !p.Step() {
			return i, p.Idle()
		}
	}
	return max, p.Idle()
}

// Idle reports whether both sides are idle.
func (p *Pair) Idle() bool { return p.Central.Idle() && p.Peripheral.Idle() }

// deliver carries up to PDUsPerEvent queued PDUs of s to its peer, in order.
// A slipped PDU holds back everything queued behind it.
func (p *Pair) deliver(s *Side) {
	for sent := 0; sent < p.cfg.PDUsPerEvent && len(s.radio.queue) > 0; sent++ {
		q := s.radio.queue[0]
		if q.due > p.events {
			return
		}
		if p.cfg.SlipRate > 0 && p.rng.Float64() < p.cfg.SlipRate {
			s.radio.queue[0].due = p.events + 1
			logger.Trace("sim", "%s: %s slipped", s.Name, pdu.OpcodeName(q.tx.Opcode()))
			return
		}
		s.radio.queue = s.radio.queue[1:]

		data := append([]byte(nil), q.tx.PDU()...)
		p.pdus = append(p.pdus, PDU{At: int(p.counter), From: s.Name, Data: data})
		s.peer.Conn.Rx(data)
		s.Conn.TxAck(q.tx)
		s.Conn.ReleaseTx(q.tx)
	}
}

func (p *Pair) answerLTK(s *Side) {
	var status uint8
	if p.cfg.RejectLTK {
		status = s.Conn.LTKReqNegReply()
	} else {
		status = s.Conn.LTKReqReply(p.ltk)
	}
	if status != pdu.ErrSuccess {
		logger.Warn("sim", "%s: LTK reply refused: %s", s.Name, pdu.ErrorName(status))
	}
}

// StartEncryption starts (or, when already encrypted, refreshes) encryption
// from the central with the configured key.
func (p *Pair) StartEncryption() uint8 {
	var rnd [8]byte
	var ediv [2]byte
	p.rng.Read(rnd[:])
	p.rng.Read(ediv[:])
	if p.Central.Conn.Params().Encrypted {
		return p.Central.Conn.EncryptionPause(rnd, ediv, p.ltk)
	}
	return p.Central.Conn.EncryptionStart(rnd, ediv, p.ltk)
}

func (p *Pair) disconnect(reason uint8) {
	p.disconnected = true
	p.reason = reason
	for _, s := range p.sides() {
		s.Conn.StateSet(llcp.StateDisconnected)
		for _, q := range s.radio.queue {
			s.Conn.ReleaseTx(q.tx)
		}
		s.radio.queue = nil
	}
	logger.Info("sim", "link down at event %d: %s", p.counter, pdu.ErrorName(reason))
}
