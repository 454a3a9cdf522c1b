package llcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstantArithmetic(t *testing.T) {
	tests := []struct {
		counter, instant uint16
		reached, passed  bool
	}{
		{10, 10, true, false},
		{11, 10, true, true},
		{9, 10, false, false},
		{2, 65530, true, true},
		{65530, 2, false, false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.reached, instantReached(tt.counter, tt.instant), "reached %d/%d", tt.counter, tt.instant)
		require.Equal(t, tt.passed, instantPassed(tt.counter, tt.instant), "passed %d/%d", tt.counter, tt.instant)
	}
}

func TestSelectPhy(t *testing.T) {
	require.Equal(t, Phy2M, selectPhy(Phy1M|Phy2M|PhyCoded))
	require.Equal(t, Phy1M, selectPhy(Phy1M|PhyCoded))
	require.Equal(t, PhyCoded, selectPhy(PhyCoded))
	require.Equal(t, uint8(0), selectPhy(0))
}

func TestChanCount(t *testing.T) {
	require.Equal(t, 37, chanCount(defaultLinkParams().ChanMap))
	require.Equal(t, 13, chanCount([5]byte{0xFF, 0, 0, 0, 0xFF}))
	require.Equal(t, 0, chanCount([5]byte{}))
}
