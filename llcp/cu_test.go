package llcp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/blue-llcp/pdu"
)

func TestConnParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  ConnParams
		wantErr bool
	}{
		{"fast", ConnParams{IntervalMin: 6, IntervalMax: 12, Latency: 0, Timeout: 100}, false},
		{"slow", ConnParams{IntervalMin: 800, IntervalMax: 800, Latency: 4, Timeout: 3200}, false},
		{"interval too short", ConnParams{IntervalMin: 5, IntervalMax: 12, Timeout: 100}, true},
		{"interval too long", ConnParams{IntervalMin: 6, IntervalMax: 3201, Timeout: 3200}, true},
		{"max below min", ConnParams{IntervalMin: 24, IntervalMax: 12, Timeout: 100}, true},
		{"latency too high", ConnParams{IntervalMin: 6, IntervalMax: 6, Latency: 500, Timeout: 3200}, true},
		{"timeout too short", ConnParams{IntervalMin: 6, IntervalMax: 6, Timeout: 9}, true},
		{"timeout below interval bound", ConnParams{IntervalMin: 400, IntervalMax: 400, Latency: 1, Timeout: 200}, true},
		{"timeout just above bound", ConnParams{IntervalMin: 400, IntervalMax: 400, Latency: 1, Timeout: 201}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConnUpdateCentral(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RoleCentral)

	require.Equal(t, uint8(pdu.ErrInvalidParam), c.ConnUpdate(ConnParams{IntervalMin: 6, IntervalMax: 12, Timeout: 1}))
	require.Equal(t, uint8(pdu.ErrSuccess), c.ConnUpdate(ConnParams{IntervalMin: 6, IntervalMax: 12, Timeout: 100}))
	c.Run()

	sent := link.flush(c)
	ind, ok := decode(t, sent[0]).(*pdu.ConnUpdateInd)
	require.True(t, ok)
	require.Equal(t, uint16(12), ind.Interval)
	require.Equal(t, uint16(100), ind.Timeout)
	require.Equal(t, uint16(6), ind.Instant)

	// a peer request cannot start while the update is pending
	c.Rx(encode(t, &pdu.ConnParamReq{ConnParam: pdu.ConnParam{IntervalMin: 6, IntervalMax: 6, Timeout: 100}}))
	rej, ok := decode(t, link.flush(c)[0]).(*pdu.RejectExtInd)
	require.True(t, ok)
	require.Equal(t, uint8(pdu.ErrDiffTransCollision), rej.ErrorCode)

	link.counter = 6
	c.Run()
	require.Equal(t, ConnUpdateNtf{Status: pdu.ErrSuccess, Interval: 12, Timeout: 100}, host.last(t))
	require.Equal(t, uint16(12), c.Params().Interval)
	requireIdle(t, e)
}

func TestConnParamReqPeripheral(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	p, link := newTestConn(t, e, 1, RolePeripheral)

	link.counter = 10
	require.Equal(t, uint8(pdu.ErrSuccess), p.ConnUpdate(ConnParams{IntervalMin: 24, IntervalMax: 40, Latency: 2, Timeout: 300}))
	p.Run()
	sent := link.flush(p)
	req, ok := decode(t, sent[0]).(*pdu.ConnParamReq)
	require.True(t, ok)
	require.Equal(t, uint16(24), req.IntervalMin)
	require.Equal(t, uint16(10), req.RefEventCount)

	p.Rx(encode(t, &pdu.ConnUpdateInd{WinSize: 1, Interval: 40, Latency: 2, Timeout: 300, Instant: 20}))
	link.counter = 19
	p.Run()
	require.Empty(t, host.ntfs())

	link.counter = 20
	p.Run()
	require.Equal(t, ConnUpdateNtf{Status: pdu.ErrSuccess, Interval: 40, Latency: 2, Timeout: 300}, host.last(t))
	requireIdle(t, e)
}

func TestConnParamReqCentral(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RoleCentral)

	// the current interval (40) is inside the range and is kept
	c.Rx(encode(t, &pdu.ConnParamReq{ConnParam: pdu.ConnParam{IntervalMin: 24, IntervalMax: 48, Latency: 1, Timeout: 500}}))
	require.True(t, c.RemoteCPRPending())
	ind, ok := decode(t, link.flush(c)[0]).(*pdu.ConnUpdateInd)
	require.True(t, ok)
	require.Equal(t, uint16(40), ind.Interval)
	require.Equal(t, uint16(1), ind.Latency)

	link.counter = ind.Instant
	c.Run()
	require.Equal(t, ConnUpdateNtf{Status: pdu.ErrSuccess, Interval: 40, Latency: 1, Timeout: 500}, host.last(t))
	require.False(t, c.RemoteCPRPending())
	requireIdle(t, e)
}

func TestConnParamReqInvalidRejected(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RoleCentral)

	c.Rx(encode(t, &pdu.ConnParamReq{ConnParam: pdu.ConnParam{IntervalMin: 2, IntervalMax: 6, Timeout: 100}}))
	rej, ok := decode(t, link.flush(c)[0]).(*pdu.RejectExtInd)
	require.True(t, ok)
	require.Equal(t, uint8(pdu.OpConnParamReq), rej.RejectOpcode)
	require.Equal(t, uint8(pdu.ErrInvalidLLParam), rej.ErrorCode)
	require.Empty(t, host.ntfs())
	requireIdle(t, e)
}

func TestConnParamReqRejectedByPeer(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	p, link := newTestConn(t, e, 1, RolePeripheral)

	require.Equal(t, uint8(pdu.ErrSuccess), p.ConnUpdate(ConnParams{IntervalMin: 24, IntervalMax: 40, Timeout: 300}))
	p.Run()
	link.flush(p)
	p.Rx(encode(t, &pdu.RejectExtInd{RejectOpcode: pdu.OpConnParamReq, ErrorCode: pdu.ErrUnacceptConnParam}))
	require.Equal(t, uint8(pdu.ErrUnacceptConnParam), host.last(t).(ConnUpdateNtf).Status)
	requireIdle(t, e)
}

// The central's own update answers the request; its refusal of the request
// arrives afterwards and must not cancel the pending update.
func TestConnParamReqAnsweredByCentralUpdate(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	p, link := newTestConn(t, e, 1, RolePeripheral)

	require.Equal(t, uint8(pdu.ErrSuccess), p.ConnUpdate(ConnParams{IntervalMin: 24, IntervalMax: 24, Timeout: 300}))
	p.Run()
	link.flush(p)

	p.Rx(encode(t, &pdu.ConnUpdateInd{WinSize: 1, Interval: 80, Timeout: 400, Instant: 6}))
	p.Rx(encode(t, &pdu.RejectExtInd{RejectOpcode: pdu.OpConnParamReq, ErrorCode: pdu.ErrDiffTransCollision}))
	require.Empty(t, host.ntfs())
	require.Empty(t, link.take())

	link.counter = 6
	p.Run()
	require.Equal(t, ConnUpdateNtf{Status: pdu.ErrSuccess, Interval: 80, Timeout: 400}, host.last(t))
	require.Len(t, host.ntfs(), 1)
	requireIdle(t, e)
}

func TestInstantPassed(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	p, link := newTestConn(t, e, 1, RolePeripheral)

	link.counter = 100
	p.Rx(encode(t, &pdu.ConnUpdateInd{Interval: 24, Timeout: 100, Instant: 50}))
	require.Equal(t, uint8(pdu.ErrInstantPassed), p.TerminateReason())
	require.Equal(t, uint16(40), p.Params().Interval)
	requireIdle(t, e)
}

func TestChanMapUpdate(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	c, clink := newTestConn(t, e, 1, RoleCentral)
	p, plink := newTestConn(t, e, 2, RolePeripheral)

	chm := [5]byte{0x0F, 0x00, 0x00, 0xF0, 0x00}
	require.Equal(t, uint8(pdu.ErrCmdDisallowed), p.ChanMapUpdate(chm))
	require.Equal(t, uint8(pdu.ErrInvalidParam), c.ChanMapUpdate([5]byte{0x01}))
	require.Equal(t, uint8(pdu.ErrSuccess), c.ChanMapUpdate(chm))
	c.Run()
	ind := clink.flush(c)
	require.Equal(t, []uint8{pdu.OpChanMapInd}, opcodes(ind))

	p.Rx(ind[0])
	pending, ok := p.ChanMapUpdatePending()
	require.True(t, ok)
	require.Equal(t, chm, pending)

	for clink.counter = 1; clink.counter <= 6; clink.counter++ {
		plink.counter = clink.counter
		c.Run()
		p.Run()
	}
	require.Equal(t, chm, c.Params().ChanMap)
	require.Equal(t, chm, p.Params().ChanMap)
	_, ok = p.ChanMapUpdatePending()
	require.False(t, ok)
	requireIdle(t, e)
}
