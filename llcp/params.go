package llcp

import "fmt"

// Data length limits
const (
	minOctets = 27
	maxOctets = 251
	minTime   = 328
	maxTime   = 17040
)

// PHY bits as used in LL_PHY_REQ/RSP and LL_PHY_UPDATE_IND
const (
	Phy1M    uint8 = 0x01
	Phy2M    uint8 = 0x02
	PhyCoded uint8 = 0x04

	phyMask = Phy1M | Phy2M | PhyCoded
)

// instantLatency is added to the connection event counter, on top of the
// peripheral latency, when picking an instant.
const instantLatency = 6

// ConnParams is a requested connection parameter range.
type ConnParams struct {
	// Connection interval in units of 1.25ms
	// Range: 6 (7.5ms) to 3200 (4s)
	IntervalMin uint16
	IntervalMax uint16

	// Peripheral latency in connection events
	// Range: 0 to 499
	Latency uint16

	// Supervision timeout in units of 10ms
	// Range: 100ms (10) to 32s (3200)
	// Must be larger than (1 + Latency) * IntervalMax * 2
	Timeout uint16
}

// Validate checks if connection parameters are within valid BLE ranges
func (p *ConnParams) Validate() error {
	if p.IntervalMin < 6 || p.IntervalMin > 3200 {
		return fmt.Errorf("llcp: IntervalMin out of range (6-3200): %d", p.IntervalMin)
	}
	if p.IntervalMax < 6 || p.IntervalMax > 3200 {
		return fmt.Errorf("llcp: IntervalMax out of range (6-3200): %d", p.IntervalMax)
	}
	if p.IntervalMax < p.IntervalMin {
		return fmt.Errorf("llcp: IntervalMax (%d) must be >= IntervalMin (%d)", p.IntervalMax, p.IntervalMin)
	}
	if p.Latency > 499 {
		return fmt.Errorf("llcp: Latency out of range (0-499): %d", p.Latency)
	}
	if p.Timeout < 10 || p.Timeout > 3200 {
		return fmt.Errorf("llcp: Timeout out of range (10-3200): %d", p.Timeout)
	}

	// (1 + latency) * interval * 2, with the interval in 1.25ms units and
	// the result in 10ms units
	minTimeout := (1 + uint32(p.Latency)) * uint32(p.IntervalMax) / 4
	if uint32(p.Timeout) <= minTimeout {
		return fmt.Errorf("llcp: Timeout (%d * 10ms) must be > (1+latency)*interval*2 (%d * 10ms)",
			p.Timeout, minTimeout)
	}
	return nil
}

// LinkParams is a snapshot of the connection state owned by the control
// procedures.
type LinkParams struct {
	Interval uint16 // 1.25ms units
	Latency  uint16
	Timeout  uint16 // 10ms units

	TxPhy uint8
	RxPhy uint8

	ChanMap [5]byte

	Encrypted bool

	// Effective data lengths
	MaxTxOctets uint16
	MaxTxTime   uint16
	MaxRxOctets uint16
	MaxRxTime   uint16
}

func defaultLinkParams() LinkParams {
	return LinkParams{
		Interval:    40,
		Latency:     0,
		Timeout:     400,
		TxPhy:       Phy1M,
		RxPhy:       Phy1M,
		ChanMap:     [5]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x1F},
		MaxTxOctets: minOctets,
		MaxTxTime:   minTime,
		MaxRxOctets: minOctets,
		MaxRxTime:   minTime,
	}
}

// instantReached reports whether the connection event counter is at or past
// instant, modulo 65536.
func instantReached(counter, instant uint16) bool {
	return counter-instant <= 0x7FFF
}

// instantPassed reports whether instant lies strictly in the past.
func instantPassed(counter, instant uint16) bool {
	return counter != instant && instantReached(counter, instant)
}

// selectPhy picks one PHY out of a preference mask: 2M, then 1M, then coded.
func selectPhy(mask uint8) uint8 {
	switch {
	case mask&Phy2M != 0:
		return Phy2M
	case mask&Phy1M != 0:
		return Phy1M
	case mask&PhyCoded != 0:
		return PhyCoded
	}
	return 0
}

func chanCount(chm [5]byte) int {
	n := 0
	for i, b := range chm {
		if i == 4 {
			b &= 0x1F
		}
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

func minU16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}
