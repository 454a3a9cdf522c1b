// Package trace writes human-readable JSONL logs of LLCP control PDUs and
// procedure transitions. These files are write-only; nothing in the engine
// reads them back.
package trace

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/blue-llcp/logger"
	"github.com/user/blue-llcp/pdu"
	"github.com/user/blue-llcp/util"
)

const (
	PDUFile  = "pdus.jsonl"
	ProcFile = "procedures.jsonl"
)

// Tracer implements llcp.Tracer for one connection instance.
type Tracer struct {
	dir     string
	enabled bool
	mu      sync.Mutex
}

// PDULog is one line of pdus.jsonl.
type PDULog struct {
	Timestamp  string      `json:"timestamp"`
	Direction  string      `json:"direction"` // "tx" or "rx"
	Handle     string      `json:"handle"`
	Opcode     string      `json:"opcode"`
	OpcodeName string      `json:"opcode_name"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	RawHex     string      `json:"raw_hex"`
}

// ProcLog is one line of procedures.jsonl.
type ProcLog struct {
	Timestamp string `json:"timestamp"`
	Handle    string `json:"handle"`
	Side      string `json:"side"` // "local" or "remote"
	Proc      string `json:"proc"`
	Event     string `json:"event"`
}

// New creates a tracer writing under util.GetConnTraceDir(connID). A disabled
// tracer drops everything.
func New(connID string, enabled bool) *Tracer {
	if !enabled {
		return &Tracer{}
	}
	dir := util.GetConnTraceDir(connID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Warn("trace", "tracing disabled: %v", err)
		return &Tracer{}
	}
	return &Tracer{dir: dir, enabled: true}
}

// Dir returns the directory the files are written to, or "" when disabled.
func (t *Tracer) Dir() string { return t.dir }

// TracePDU logs a control PDU with its decoded fields.
func (t *Tracer) TracePDU(handle uint16, dir string, data []byte) {
	if !t.enabled {
		return
	}
	op := pdu.Opcode(data)
	line := PDULog{
		Timestamp:  time.Now().Format(time.RFC3339Nano),
		Direction:  dir,
		Handle:     fmt.Sprintf("0x%04X", handle),
		Opcode:     fmt.Sprintf("0x%02X", op),
		OpcodeName: pdu.OpcodeName(op),
		RawHex:     hex.EncodeToString(data),
	}
	if pkt, err := pdu.DecodePacket(data); err != nil {
		line.Error = err.Error()
	} else {
		line.Data = pkt
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendJSONL(PDUFile, line)
}

// TraceProc logs a procedure transition.
func (t *Tracer) TraceProc(handle uint16, side, proc, event string) {
	if !t.enabled {
		return
	}
	line := ProcLog{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Handle:    fmt.Sprintf("0x%04X", handle),
		Side:      side,
		Proc:      proc,
		Event:     event,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendJSONL(ProcFile, line)
}

// appendJSONL appends a JSON line to a file
func (t *Tracer) appendJSONL(filename string, v interface{}) {
	path := filepath.Join(t.dir, filename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return // best effort
	}
	defer f.Close()

	line, err := json.Marshal(v)
	if err != nil {
		return
	}
	f.Write(append(line, '\n'))
}
