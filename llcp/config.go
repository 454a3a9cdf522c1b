package llcp

import (
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// LL feature bits, as exchanged in LL_FEATURE_REQ/RSP
const (
	FeatLEEncryption    uint64 = 1 << 0
	FeatConnParamReq    uint64 = 1 << 1
	FeatExtRejectInd    uint64 = 1 << 2
	FeatPerInitFeatXchg uint64 = 1 << 3
	FeatLEPing          uint64 = 1 << 4
	FeatDataLength      uint64 = 1 << 5
	FeatLE2MPhy         uint64 = 1 << 8
	FeatLECodedPhy      uint64 = 1 << 11
	FeatMinUsedChans    uint64 = 1 << 16
	FeatCTEReq          uint64 = 1 << 17
	FeatCTERsp          uint64 = 1 << 18
)

var featureNames = map[string]uint64{
	"le_encryption":      FeatLEEncryption,
	"conn_param_req":     FeatConnParamReq,
	"ext_reject_ind":     FeatExtRejectInd,
	"per_init_feat_xchg": FeatPerInitFeatXchg,
	"le_ping":            FeatLEPing,
	"data_length":        FeatDataLength,
	"le_2m_phy":          FeatLE2MPhy,
	"le_coded_phy":       FeatLECodedPhy,
	"min_used_chans":     FeatMinUsedChans,
	"cte_req":            FeatCTEReq,
	"cte_rsp":            FeatCTERsp,
}

// Collision tie-break and run order policies
const (
	WinnerCentral    = "central"
	WinnerPeripheral = "peripheral"

	RunRemoteFirst = "remote_first"
	RunLocalFirst  = "local_first"
)

// ErrBadConfig is the cause of every configuration validation failure.
var ErrBadConfig = errors.New("llcp: invalid configuration")

// VersionConfig is the local LL_VERSION_IND content.
type VersionConfig struct {
	Number     uint8  `yaml:"number"`
	CompanyID  uint16 `yaml:"company_id"`
	SubVersion uint16 `yaml:"sub_version"`
}

// DataLengthConfig holds the local data length defaults (octets, microseconds).
type DataLengthConfig struct {
	MaxTxOctets uint16 `yaml:"max_tx_octets"`
	MaxTxTime   uint16 `yaml:"max_tx_time"`
	MaxRxOctets uint16 `yaml:"max_rx_octets"`
	MaxRxTime   uint16 `yaml:"max_rx_time"`
}

// Config sizes the engine and selects its policies. Pool sizes are fixed for
// the lifetime of an Engine.
type Config struct {
	LocalContexts    int              `yaml:"local_contexts"`
	RemoteContexts   int              `yaml:"remote_contexts"`
	PerConnTxBuffers int              `yaml:"per_conn_tx_buffers"`
	CommonTxBuffers  int              `yaml:"common_tx_buffers"`
	MaxConns         int              `yaml:"max_conns"`
	Features         []string         `yaml:"features"`
	Version          VersionConfig    `yaml:"version"`
	DataLength       DataLengthConfig `yaml:"data_length"`
	CollisionWinner  string           `yaml:"collision_winner"`
	RunOrder         string           `yaml:"run_order"`
	Trace            bool             `yaml:"trace"`
}

// DefaultConfig returns a single-connection configuration with every
// optional procedure enabled.
func DefaultConfig() Config {
	return Config{
		LocalContexts:    4,
		RemoteContexts:   2,
		PerConnTxBuffers: 1,
		CommonTxBuffers:  2,
		MaxConns:         1,
		Features:         FeatureNames(),
		Version: VersionConfig{
			Number:     0x0C, // Core 5.3
			CompanyID:  0x05F1,
			SubVersion: 0xFFFF,
		},
		DataLength: DataLengthConfig{
			MaxTxOctets: 251,
			MaxTxTime:   2120,
			MaxRxOctets: 251,
			MaxRxTime:   2120,
		},
		CollisionWinner: WinnerCentral,
		RunOrder:        RunRemoteFirst,
	}
}

// FeatureNames lists every feature name accepted in Config.Features.
func FeatureNames() []string {
	names := make([]string, 0, len(featureNames))
	for name := range featureNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "llcp: read config")
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "llcp: parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.WithMessage(err, path)
	}
	return cfg, nil
}

// FeatureMask converts Features to LL feature bits.
func (c *Config) FeatureMask() (uint64, error) {
	var mask uint64
	for _, name := range c.Features {
		bit, ok := featureNames[name]
		if !ok {
			return 0, errors.Wrapf(ErrBadConfig, "unknown feature %q", name)
		}
		mask |= bit
	}
	return mask, nil
}

// Validate checks pool sizes, policies and data length ranges.
func (c *Config) Validate() error {
	if c.LocalContexts < 1 || c.RemoteContexts < 1 {
		return errors.Wrapf(ErrBadConfig, "context pools need at least one block (local %d, remote %d)",
			c.LocalContexts, c.RemoteContexts)
	}
	if c.PerConnTxBuffers < 0 || c.CommonTxBuffers < 0 {
		return errors.Wrap(ErrBadConfig, "negative tx buffer count")
	}
	if c.PerConnTxBuffers+c.CommonTxBuffers < 1 {
		return errors.Wrap(ErrBadConfig, "no tx buffers configured")
	}
	if c.MaxConns < 1 {
		return errors.Wrapf(ErrBadConfig, "max_conns must be positive: %d", c.MaxConns)
	}
	if _, err := c.FeatureMask(); err != nil {
		return err
	}
	switch c.CollisionWinner {
	case WinnerCentral, WinnerPeripheral:
	default:
		return errors.Wrapf(ErrBadConfig, "collision_winner %q", c.CollisionWinner)
	}
	switch c.RunOrder {
	case RunRemoteFirst, RunLocalFirst:
	default:
		return errors.Wrapf(ErrBadConfig, "run_order %q", c.RunOrder)
	}

	dl := c.DataLength
	for _, octets := range []uint16{dl.MaxTxOctets, dl.MaxRxOctets} {
		if octets < minOctets || octets > maxOctets {
			return errors.Wrapf(ErrBadConfig, "data length octets out of range (%d-%d): %d",
				minOctets, maxOctets, octets)
		}
	}
	for _, t := range []uint16{dl.MaxTxTime, dl.MaxRxTime} {
		if t < minTime || t > maxTime {
			return errors.Wrapf(ErrBadConfig, "data length time out of range (%d-%d): %d",
				minTime, maxTime, t)
		}
	}
	return nil
}
