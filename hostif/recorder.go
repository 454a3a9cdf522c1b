package hostif

import (
	"fmt"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"

	"github.com/user/blue-llcp/llcp"
	"github.com/user/blue-llcp/logger"
)

// Recorder is an llcp.Host that encodes every notification into a frame and
// gives the RX node straight back to its pool.
type Recorder struct {
	name   string
	pool   llcp.RxPool
	frames [][]byte

	// OnEvent, when set, sees every decoded frame as it arrives.
	OnEvent func(Event)
}

// NewRecorder returns a Recorder releasing nodes to pool. name prefixes its
// log lines.
func NewRecorder(name string, pool llcp.RxPool) *Recorder {
	return &Recorder{name: name, pool: pool}
}

// Notify implements llcp.Host.
func (r *Recorder) Notify(rx *llcp.RxNode) {
	defer r.pool.Release(rx)

	s, err := Encode(rx.Handle, rx.Ntf)
	if err != nil {
		logger.Error(r.name, "encode notification: %v", err)
		return
	}
	logger.DebugJSON(r.name, fmt.Sprintf("notification %s", rx.Ntf.Kind()), s)

	b, err := proto.Marshal(s)
	if err != nil {
		logger.Error(r.name, "marshal notification: %v", err)
		return
	}
	r.frames = append(r.frames, b)
	if r.OnEvent != nil {
		r.OnEvent(Event{Handle: rx.Handle, Ntf: rx.Ntf})
	}
}

// Frames returns the encoded frames received so far.
func (r *Recorder) Frames() [][]byte { return r.frames }

// Events decodes every recorded frame.
func (r *Recorder) Events() ([]Event, error) {
	events := make([]Event, 0, len(r.frames))
	for i, b := range r.frames {
		ev, err := Unmarshal(b)
		if err != nil {
			return nil, errors.WithMessagef(err, "frame %d", i)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Reset drops the recorded frames.
func (r *Recorder) Reset() { r.frames = r.frames[:0] }
