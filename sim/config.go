package sim

import (
	"encoding/hex"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// Config controls how the simulated link carries control PDUs between the two
// controllers. Zero values are replaced by DefaultConfig values in NewPair.
type Config struct {
	// Control PDUs each side may deliver per connection event
	PDUsPerEvent int `yaml:"pdus_per_event"` // Default: 2

	// Probability that a PDU is not acknowledged in its event and slips to
	// the next one, standing in for retransmission
	SlipRate float64 `yaml:"slip_rate"` // Default: 0.02

	// RX notification nodes per side
	RxNodes int `yaml:"rx_nodes"` // Default: 4

	// Long term key, hex, used by the central to start encryption and by the
	// peripheral to answer LTK requests
	LTK string `yaml:"ltk"`
	// Answer LTK requests negatively
	RejectLTK bool `yaml:"reject_ltk"`

	// Write pdus.jsonl/procedures.jsonl for both sides
	Trace bool `yaml:"trace"`

	// Deterministic mode for testing
	Deterministic bool  `yaml:"deterministic"` // Default: false
	Seed          int64 `yaml:"seed"`          // Random seed when Deterministic=true
}

// DefaultConfig returns a link that occasionally slips a PDU.
func DefaultConfig() Config {
	return Config{
		PDUsPerEvent: 2,
		SlipRate:     0.02,
		RxNodes:      4,
		LTK:          "000102030405060708090a0b0c0d0e0f",
	}
}

// PerfectConfig returns a lossless, reproducible link for tests.
func PerfectConfig() Config {
	cfg := DefaultConfig()
	cfg.SlipRate = 0
	cfg.Deterministic = true
	return cfg
}

func (c *Config) fill() {
	def := DefaultConfig()
	if c.PDUsPerEvent <= 0 {
		c.PDUsPerEvent = def.PDUsPerEvent
	}
	if c.RxNodes <= 0 {
		c.RxNodes = def.RxNodes
	}
	if c.LTK == "" {
		c.LTK = def.LTK
	}
}

// Validate checks the rate and the key.
func (c *Config) Validate() error {
	if c.SlipRate < 0 || c.SlipRate >= 1 {
		return errors.Errorf("sim: slip_rate must be in [0, 1): %v", c.SlipRate)
	}
	if _, err := c.ltk(); err != nil {
		return err
	}
	return nil
}

func (c *Config) ltk() ([16]byte, error) {
	var key [16]byte
	b, err := hex.DecodeString(c.LTK)
	if err != nil || len(b) != len(key) {
		return key, errors.Errorf("sim: ltk must be 16 hex bytes: %q", c.LTK)
	}
	copy(key[:], b)
	return key, nil
}

func (c *Config) rng() *rand.Rand {
	if c.Deterministic {
		return rand.New(rand.NewSource(c.Seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
