package sim

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/user/blue-llcp/llcp"
	"github.com/user/blue-llcp/pdu"
)

// Scenario is a scripted run of a Pair
type Scenario struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Link        *Config         `yaml:"link,omitempty"`
	Events      int             `yaml:"events"` // connection events to run; 0 runs until idle
	Timeline    []TimelineEvent `yaml:"timeline"`
	Expect      Expectations    `yaml:"expect"`
}

// TimelineEvent is an action issued on one side at a connection event
type TimelineEvent struct {
	At      int    `yaml:"at"`
	Side    string `yaml:"side"`
	Action  string `yaml:"action"`
	Args    Args   `yaml:"args,omitempty"`
	Comment string `yaml:"comment,omitempty"`
}

// Args holds the parameters of every action; each action reads its own.
type Args struct {
	Reason uint8 `yaml:"reason"`

	TxPhys uint8 `yaml:"tx_phys"`
	RxPhys uint8 `yaml:"rx_phys"`

	IntervalMin uint16 `yaml:"interval_min"`
	IntervalMax uint16 `yaml:"interval_max"`
	Latency     uint16 `yaml:"latency"`
	Timeout     uint16 `yaml:"timeout"`

	ChanMap string `yaml:"chan_map"` // 5 hex bytes

	Octets uint16 `yaml:"octets"`
	Time   uint16 `yaml:"time"`

	MinLen  uint8 `yaml:"min_len"`
	CTEType uint8 `yaml:"cte_type"`
	Enable  bool  `yaml:"enable"`

	Phys  uint8 `yaml:"phys"`
	Count uint8 `yaml:"count"`

	// Expected status of the initiator; success when omitted
	Status *uint8 `yaml:"status,omitempty"`
}

// Expectations are checked against the Report once the scenario ends
type Expectations struct {
	Notifications []NtfExpectation `yaml:"notifications"`
	// Disconnect reason; the link must stay up when omitted
	Disconnect *uint8 `yaml:"disconnect,omitempty"`
	// Both sides must end with every pool full
	Idle bool `yaml:"idle"`
}

// NtfExpectation counts notifications of one kind on one side
type NtfExpectation struct {
	Side   string `yaml:"side"`
	Kind   string `yaml:"kind"`
	Count  int    `yaml:"count"`
	Status *uint8 `yaml:"status,omitempty"` // every match must carry it
}

// Action types
const (
	ActionVersionExchange  = "version_exchange"
	ActionFeatureExchange  = "feature_exchange"
	ActionLEPing           = "le_ping"
	ActionTerminate        = "terminate"
	ActionEncryptionStart  = "encryption_start"
	ActionPhyUpdate        = "phy_update"
	ActionConnUpdate       = "conn_update"
	ActionChanMapUpdate    = "chan_map_update"
	ActionDataLengthUpdate = "data_length_update"
	ActionCTEReq           = "cte_req"
	ActionSetCTEResponse   = "set_cte_response"
	ActionMinUsedChans     = "min_used_chans"
)

var actions = map[string]func(p *Pair, s *Side, a Args) (uint8, error){
	ActionVersionExchange: func(p *Pair, s *Side, a Args) (uint8, error) { return s.Conn.VersionExchange(), nil },
	ActionFeatureExchange: func(p *Pair, s *Side, a Args) (uint8, error) { return s.Conn.FeatureExchange(), nil },
	ActionLEPing:          func(p *Pair, s *Side, a Args) (uint8, error) { return s.Conn.LEPing(), nil },
	ActionTerminate: func(p *Pair, s *Side, a Args) (uint8, error) {
		reason := a.Reason
		if reason == 0 {
			reason = pdu.ErrRemoteUserTermConn
		}
		return s.Conn.Terminate(reason), nil
	},
	ActionEncryptionStart: func(p *Pair, s *Side, a Args) (uint8, error) {
		if s != p.Central {
			return s.Conn.EncryptionStart([8]byte{}, [2]byte{}, p.ltk), nil
		}
		return p.StartEncryption(), nil
	},
	ActionPhyUpdate: func(p *Pair, s *Side, a Args) (uint8, error) {
		return s.Conn.PhyUpdate(a.TxPhys, a.RxPhys), nil
	},
	ActionConnUpdate: func(p *Pair, s *Side, a Args) (uint8, error) {
		return s.Conn.ConnUpdate(llcp.ConnParams{
			IntervalMin: a.IntervalMin,
			IntervalMax: a.IntervalMax,
			Latency:     a.Latency,
			Timeout:     a.Timeout,
		}), nil
	},
	ActionChanMapUpdate: func(p *Pair, s *Side, a Args) (uint8, error) {
		var chm [5]byte
		b, err := hex.DecodeString(a.ChanMap)
		if err != nil || len(b) != len(chm) {
			return 0, errors.Errorf("chan_map must be 5 hex bytes: %q", a.ChanMap)
		}
		copy(chm[:], b)
		return s.Conn.ChanMapUpdate(chm), nil
	},
	ActionDataLengthUpdate: func(p *Pair, s *Side, a Args) (uint8, error) {
		return s.Conn.DataLengthUpdate(a.Octets, a.Time), nil
	},
	ActionCTEReq: func(p *Pair, s *Side, a Args) (uint8, error) {
		return s.Conn.CTEReq(a.MinLen, a.CTEType), nil
	},
	ActionSetCTEResponse: func(p *Pair, s *Side, a Args) (uint8, error) {
		s.Conn.SetCTEResponse(a.Enable)
		return pdu.ErrSuccess, nil
	},
	ActionMinUsedChans: func(p *Pair, s *Side, a Args) (uint8, error) {
		return s.Conn.MinUsedChans(a.Phys, a.Count), nil
	},
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "sim: read scenario")
	}
	var s Scenario
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, errors.Wrapf(err, "sim: parse scenario %s", path)
	}
	if problems := s.Validate(); len(problems) > 0 {
		return nil, errors.Errorf("sim: invalid scenario %s: %v", path, problems)
	}
	return &s, nil
}

// Validate checks the scenario for errors
func (s *Scenario) Validate() []string {
	var errs []string

	if s.Name == "" {
		errs = append(errs, "scenario name is required")
	}
	if s.Events < 0 {
		errs = append(errs, "events must not be negative")
	}
	for i, ev := range s.Timeline {
		if ev.At < 0 {
			errs = append(errs, fmt.Sprintf("timeline[%d]: negative at", i))
		}
		if s.Events > 0 && ev.At >= s.Events {
			errs = append(errs, fmt.Sprintf("timeline[%d]: at %d is past the last event", i, ev.At))
		}
		if !validSide(ev.Side) {
			errs = append(errs, fmt.Sprintf("timeline[%d]: unknown side %q", i, ev.Side))
		}
		if _, ok := actions[ev.Action]; !ok {
			errs = append(errs, fmt.Sprintf("timeline[%d]: unknown action %q", i, ev.Action))
		}
	}
	for i, e := range s.Expect.Notifications {
		if !validSide(e.Side) {
			errs = append(errs, fmt.Sprintf("expect.notifications[%d]: unknown side %q", i, e.Side))
		}
		if !validKind(e.Kind) {
			errs = append(errs, fmt.Sprintf("expect.notifications[%d]: unknown kind %q", i, e.Kind))
		}
	}
	return errs
}

func validSide(side string) bool { return side == SideCentral || side == SidePeripheral }

func validKind(kind string) bool {
	for k := llcp.NtfVersion; k <= llcp.NtfCTEReqFailed; k++ {
		if k.String() == kind {
			return true
		}
	}
	return false
}

// GetEventsAt returns the timeline events issued at connection event at, in
// file order
func (s *Scenario) GetEventsAt(at int) []TimelineEvent {
	var events []TimelineEvent
	for _, ev := range s.Timeline {
		if ev.At == at {
			events = append(events, ev)
		}
	}
	return events
}

// lastAt returns the connection event of the last timeline entry
func (s *Scenario) lastAt() int {
	last := 0
	for _, ev := range s.Timeline {
		if ev.At > last {
			last = ev.At
		}
	}
	return last
}

// settleLimit bounds the run of a scenario without a fixed event count.
const settleLimit = 2000

// Play runs the scenario on p and returns what happened. Errors are reserved
// for scenarios that cannot be played; failed expectations end up in
// Report.Failures.
func (p *Pair) Play(s *Scenario) (*Report, error) {
	r := &Report{Scenario: s.Name}

	events := s.Events
	if events == 0 {
		events = s.lastAt() + 1
	}
	for at := 0; at < events; at++ {
		for _, ev := range s.GetEventsAt(at) {
			res, err := p.apply(ev)
			if err != nil {
				return nil, errors.WithMessagef(err, "sim: %s at %d", ev.Action, ev.At)
			}
			r.Actions = append(r.Actions, res)
		}
		if !p.Step() {
			break
		}
	}
	if s.Events == 0 {
		p.Settle(settleLimit)
	}

	r.Events = int(p.counter)
	r.Notifications = p.ntfs
	r.PDUs = p.pdus
	r.Disconnected, r.Reason = p.disconnected, p.reason
	r.Idle = p.Idle()
	r.Failures = r.check(s)
	return r, nil
}

func (p *Pair) apply(ev TimelineEvent) (ActionResult, error) {
	res := ActionResult{At: int(p.counter), Side: ev.Side, Action: ev.Action}
	side, err := p.Side(ev.Side)
	if err != nil {
		return res, err
	}
	do, ok := actions[ev.Action]
	if !ok {
		return res, errors.Errorf("unknown action %q", ev.Action)
	}
	res.Status, err = do(p, side, ev.Args)
	if err != nil {
		return res, err
	}
	res.Want = pdu.ErrSuccess
	if ev.Args.Status != nil {
		res.Want = *ev.Args.Status
	}
	return res, nil
}
