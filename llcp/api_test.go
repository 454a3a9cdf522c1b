package llcp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/blue-llcp/pdu"
)

func TestInitiatorsDisallowed(t *testing.T) {
	e, _, _ := newTestEngine(t, func(cfg *Config) {
		cfg.LocalContexts = 1
		cfg.Features = []string{"le_encryption", "ext_reject_ind"}
	})
	link := &fakeLink{}
	c, err := e.NewConn(1, RolePeripheral, link)
	require.NoError(t, err)

	// not connected yet
	require.Equal(t, uint8(pdu.ErrCmdDisallowed), c.VersionExchange())
	c.StateSet(StateConnected)

	require.Equal(t, uint8(pdu.ErrCmdDisallowed), c.LEPing(), "le_ping disabled")
	require.Equal(t, uint8(pdu.ErrCmdDisallowed), c.FeatureExchange(), "peripheral without per_init_feat_xchg")
	require.Equal(t, uint8(pdu.ErrCmdDisallowed), c.EncryptionStart(testRand, testEDIV, testLTK), "peripheral")
	require.Equal(t, uint8(pdu.ErrCmdDisallowed), c.ConnUpdate(ConnParams{IntervalMin: 6, IntervalMax: 6, Timeout: 100}),
		"conn_param_req disabled")
	require.Equal(t, uint8(pdu.ErrCmdDisallowed), c.LTKReqReply(testLTK))

	// pool exhausted
	require.Equal(t, uint8(pdu.ErrSuccess), c.VersionExchange())
	require.Equal(t, uint8(pdu.ErrCmdDisallowed), c.VersionExchange())
}

func TestConnectionLimit(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	a, _ := newTestConn(t, e, 1, RoleCentral)
	newTestConn(t, e, 2, RoleCentral)

	_, err := e.NewConn(3, RoleCentral, &fakeLink{})
	require.Error(t, err)

	a.Close()
	_, err = e.NewConn(3, RoleCentral, &fakeLink{})
	require.NoError(t, err)
}

func TestCloseTwice(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	a, _ := newTestConn(t, e, 1, RoleCentral)

	a.Close()
	a.Close()
	a.StateSet(StateConnected)
	require.Equal(t, uint8(pdu.ErrCmdDisallowed), a.VersionExchange())

	newTestConn(t, e, 2, RoleCentral)
	newTestConn(t, e, 3, RoleCentral)
	_, err := e.NewConn(4, RoleCentral, &fakeLink{})
	require.Error(t, err)
}

func TestReconnectForgetsLink(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RoleCentral)

	require.Equal(t, uint8(pdu.ErrSuccess), c.VersionExchange())
	c.Run()
	link.flush(c)
	c.Rx(encode(t, peerVersion))
	c.Rx(encode(t, &pdu.TerminateInd{ErrorCode: pdu.ErrRemoteUserTermConn}))
	_, ok := c.PeerVersion()
	require.True(t, ok)

	c.StateSet(StateDisconnected)
	c.StateSet(StateConnected)
	_, ok = c.PeerVersion()
	require.False(t, ok)
	require.Equal(t, uint8(pdu.ErrSuccess), c.TerminateReason())
	require.Equal(t, defaultLinkParams(), c.Params())

	// the new link exchanges versions again
	require.Equal(t, uint8(pdu.ErrSuccess), c.VersionExchange())
	c.Run()
	require.Equal(t, []uint8{pdu.OpVersionInd}, opcodes(link.flush(c)))
	c.Rx(encode(t, peerVersion))
	requireIdle(t, e)
}

func TestTerminateAbortsLocal(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RoleCentral)

	require.Equal(t, uint8(pdu.ErrSuccess), c.LEPing())
	require.Equal(t, uint8(pdu.ErrSuccess), c.VersionExchange())
	c.Run()
	require.Equal(t, []uint8{pdu.OpPingReq}, opcodes(link.flush(c)))

	require.Equal(t, uint8(pdu.ErrSuccess), c.Terminate(pdu.ErrRemoteUserTermConn))
	require.Equal(t, e.Config().LocalContexts-1, e.Stats().LocalContextsFree)

	c.Run()
	txs := link.take()
	require.Len(t, txs, 1)
	ind, ok := decode(t, txs[0].PDU()).(*pdu.TerminateInd)
	require.True(t, ok)
	require.Equal(t, uint8(pdu.ErrRemoteUserTermConn), ind.ErrorCode)
	require.Equal(t, uint8(pdu.ErrSuccess), c.TerminateReason())

	c.TxAck(txs[0])
	c.ReleaseTx(txs[0])
	require.Equal(t, uint8(pdu.ErrRemoteUserTermConn), c.TerminateReason())
	requireIdle(t, e)

	c.StateSet(StateDisconnected)
	require.Equal(t, uint8(pdu.ErrCmdDisallowed), c.Terminate(pdu.ErrRemoteUserTermConn))
}

func TestRemoteTerminate(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RolePeripheral)

	require.Equal(t, uint8(pdu.ErrSuccess), c.PhyUpdate(Phy2M, Phy2M))
	c.Run()
	link.flush(c)

	c.Rx(encode(t, &pdu.TerminateInd{ErrorCode: pdu.ErrRemoteUserTermConn}))
	require.Equal(t, uint8(pdu.ErrRemoteUserTermConn), c.TerminateReason())
	requireIdle(t, e)

	c.StateSet(StateDisconnected)
	c.Rx(encode(t, &pdu.PingReq{}))
	require.Empty(t, link.take())
}

func TestProcedureResponseTimeout(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RoleCentral)

	require.Equal(t, uint8(pdu.ErrSuccess), c.PrtElapse(10000), "no procedure running")

	require.Equal(t, uint8(pdu.ErrSuccess), c.LEPing())
	c.Run()
	link.flush(c)

	// 40s at a 50ms interval
	require.Equal(t, uint8(pdu.ErrSuccess), c.PrtElapse(799))
	require.Equal(t, uint8(pdu.ErrLLRespTimeout), c.PrtElapse(1))
	require.Equal(t, uint8(pdu.ErrLLRespTimeout), c.TerminateReason())

	c.StateSet(StateDisconnected)
	requireIdle(t, e)
}

func TestPrtTimersAdvanceTogether(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	c, _ := newTestConn(t, e, 1, RoleCentral)

	c.local.prt = 5
	c.remote.prt = 10
	require.Equal(t, uint8(pdu.ErrLLRespTimeout), c.PrtElapse(5))
	require.Equal(t, prtTimer(5), c.remote.prt)
	require.Equal(t, uint8(pdu.ErrLLRespTimeout), c.PrtElapse(5))
	require.Zero(t, c.remote.prt)
}

func TestDisconnectReleasesEverything(t *testing.T) {
	e, _, _ := newTestEngine(t, func(cfg *Config) {
		cfg.PerConnTxBuffers = 0
		cfg.CommonTxBuffers = 1
	})
	c, link := newTestConn(t, e, 1, RoleCentral)

	require.Equal(t, uint8(pdu.ErrSuccess), c.LEPing())
	require.Equal(t, uint8(pdu.ErrSuccess), c.FeatureExchange())
	c.Run()
	held := link.take()
	c.Rx(encode(t, &pdu.VersionInd{VersNr: 0x0C}))
	require.Equal(t, 1, e.Stats().TxWaiting)

	c.StateSet(StateDisconnected)
	require.Zero(t, e.Stats().TxWaiting)
	c.ReleaseTx(held[0])
	requireIdle(t, e)
}
