package sim

import (
	"fmt"
	"io"

	"github.com/user/blue-llcp/llcp"
	"github.com/user/blue-llcp/pdu"
)

// ActionResult is the status an initiator returned during a scenario.
type ActionResult struct {
	At     int
	Side   string
	Action string
	Status uint8
	Want   uint8
}

// Report is the outcome of Pair.Play.
type Report struct {
	Scenario      string
	Events        int
	Actions       []ActionResult
	Notifications []Notification
	PDUs          []PDU
	Disconnected  bool
	Reason        uint8
	Idle          bool
	Failures      []string
}

// Passed reports whether every expectation held.
func (r *Report) Passed() bool { return len(r.Failures) == 0 }

// Count returns the notifications of kind seen on side.
func (r *Report) Count(side, kind string) int {
	return len(r.matching(side, kind))
}

func (r *Report) matching(side, kind string) []llcp.Notification {
	var out []llcp.Notification
	for _, n := range r.Notifications {
		if n.Side == side && n.Event.Ntf.Kind().String() == kind {
			out = append(out, n.Event.Ntf)
		}
	}
	return out
}

func (r *Report) check(s *Scenario) []string {
	var failures []string

	for _, a := range r.Actions {
		if a.Status != a.Want {
			failures = append(failures, fmt.Sprintf("event %d: %s on %s returned %s, want %s",
				a.At, a.Action, a.Side, pdu.ErrorName(a.Status), pdu.ErrorName(a.Want)))
		}
	}

	for _, e := range s.Expect.Notifications {
		got := r.matching(e.Side, e.Kind)
		if len(got) != e.Count {
			failures = append(failures, fmt.Sprintf("%s: %d %s notifications, want %d",
				e.Side, len(got), e.Kind, e.Count))
		}
		if e.Status == nil {
			continue
		}
		for _, n := range got {
			if status, ok := ntfStatus(n); ok && status != *e.Status {
				failures = append(failures, fmt.Sprintf("%s: %s status %s, want %s",
					e.Side, e.Kind, pdu.ErrorName(status), pdu.ErrorName(*e.Status)))
			}
		}
	}

	switch want := s.Expect.Disconnect; {
	case want == nil && r.Disconnected:
		failures = append(failures, fmt.Sprintf("link dropped: %s", pdu.ErrorName(r.Reason)))
	case want != nil && !r.Disconnected:
		failures = append(failures, fmt.Sprintf("link still up, want disconnect %s", pdu.ErrorName(*want)))
	case want != nil && r.Reason != *want:
		failures = append(failures, fmt.Sprintf("disconnect %s, want %s", pdu.ErrorName(r.Reason), pdu.ErrorName(*want)))
	}

	if s.Expect.Idle && !r.Idle {
		failures = append(failures, "resources still held after the run")
	}
	return failures
}

func ntfStatus(n llcp.Notification) (uint8, bool) {
	switch v := n.(type) {
	case llcp.VersionNtf:
		return v.Status, true
	case llcp.FeaturesNtf:
		return v.Status, true
	case llcp.EncChangeNtf:
		return v.Status, true
	case llcp.PhyUpdateNtf:
		return v.Status, true
	case llcp.ConnUpdateNtf:
		return v.Status, true
	case llcp.CTEReqFailedNtf:
		return v.Status, true
	}
	return 0, false
}

// Print writes a human readable report. withPDUs adds the control PDU log.
func (r *Report) Print(w io.Writer, withPDUs bool) {
	fmt.Fprintf(w, "=== %s (%d events) ===\n", r.Scenario, r.Events)
	for _, a := range r.Actions {
		fmt.Fprintf(w, "[%5d] %-10s %s: %s\n", a.At, a.Side, a.Action, pdu.ErrorName(a.Status))
	}
	if withPDUs {
		fmt.Fprintln(w, "--- control PDUs ---")
		for _, p := range r.PDUs {
			fmt.Fprintln(w, p)
		}
	}
	fmt.Fprintln(w, "--- notifications ---")
	for _, n := range r.Notifications {
		fmt.Fprintln(w, n)
	}
	if r.Disconnected {
		fmt.Fprintf(w, "disconnected: %s\n", pdu.ErrorName(r.Reason))
	}
	if r.Passed() {
		fmt.Fprintln(w, "PASS")
		return
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "FAIL: %s\n", f)
	}
}
