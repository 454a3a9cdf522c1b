package llcp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/blue-llcp/pdu"
)

var peerVersion = &pdu.VersionInd{VersNr: 0x0B, CompanyID: 0x0059, SubVersNr: 0x1234}

func TestVersionExchangeLocal(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RoleCentral)

	require.Equal(t, uint8(pdu.ErrSuccess), c.VersionExchange())
	c.Run()

	sent := link.flush(c)
	require.Len(t, sent, 1)
	v, ok := decode(t, sent[0]).(*pdu.VersionInd)
	require.True(t, ok)
	require.Equal(t, e.Config().Version.Number, v.VersNr)
	require.Equal(t, e.Config().Version.CompanyID, v.CompanyID)

	c.Rx(encode(t, peerVersion))
	want := VersionNtf{
		Status:      pdu.ErrSuccess,
		VersionInfo: VersionInfo{VersNr: 0x0B, CompanyID: 0x0059, SubVersNr: 0x1234},
	}
	require.Equal(t, []Notification{want}, host.ntfs())
	requireIdle(t, e)

	info, ok := c.PeerVersion()
	require.True(t, ok)
	require.Equal(t, want.VersionInfo, info)

	// A second exchange answers from the cache, without air traffic.
	require.Equal(t, uint8(pdu.ErrSuccess), c.VersionExchange())
	c.Run()
	require.Empty(t, link.take())
	require.Equal(t, []Notification{want, want}, host.ntfs())
	requireIdle(t, e)
}

func TestVersionExchangeRemote(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RolePeripheral)

	c.Rx(encode(t, peerVersion))
	sent := link.flush(c)
	require.Equal(t, []uint8{pdu.OpVersionInd}, opcodes(sent))
	require.Empty(t, host.ntfs())
	requireIdle(t, e)

	// our own exchange now completes from the cache
	require.Equal(t, uint8(pdu.ErrSuccess), c.VersionExchange())
	c.Run()
	require.Empty(t, link.take())
	require.IsType(t, VersionNtf{}, host.last(t))

	// the peer repeating itself does not make us send again
	c.Rx(encode(t, peerVersion))
	require.Empty(t, link.take())
	requireIdle(t, e)
}

func TestFeatureExchange(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RoleCentral)

	require.Equal(t, uint8(pdu.ErrSuccess), c.FeatureExchange())
	c.Run()
	sent := link.flush(c)
	req, ok := decode(t, sent[0]).(*pdu.FeatureReq)
	require.True(t, ok)
	require.Equal(t, e.Features(), req.Features)

	c.Rx(encode(t, &pdu.FeatureRsp{Features: FeatLEEncryption | FeatLEPing}))
	require.Equal(t, FeaturesNtf{Status: pdu.ErrSuccess, Features: FeatLEEncryption | FeatLEPing}, host.last(t))

	features, ok := c.PeerFeatures()
	require.True(t, ok)
	require.Equal(t, FeatLEEncryption|FeatLEPing, features)
	requireIdle(t, e)
}

func TestFeatureExchangeRejected(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RolePeripheral)

	require.Equal(t, uint8(pdu.ErrSuccess), c.FeatureExchange())
	c.Run()
	require.Equal(t, []uint8{pdu.OpPerInitFeatXchg}, opcodes(link.flush(c)))

	c.Rx(encode(t, &pdu.UnknownRsp{UnknownType: pdu.OpPerInitFeatXchg}))
	require.Equal(t, FeaturesNtf{Status: pdu.ErrUnsuppRemoteFeature}, host.last(t))
	_, ok := c.PeerFeatures()
	require.False(t, ok)
	requireIdle(t, e)
}

func TestUnknownOpcode(t *testing.T) {
	e, _, _ := newTestEngine(t, func(cfg *Config) {
		cfg.Features = []string{"ext_reject_ind"}
	})
	c, link := newTestConn(t, e, 1, RoleCentral)

	for _, data := range [][]byte{
		{0x3F},                          // not a control opcode
		encode(t, &pdu.PingReq{}),       // le_ping disabled
		encode(t, &pdu.FeatureReq{}),    // wrong role
		encode(t, &pdu.ConnUpdateInd{}), // central never receives this
	} {
		c.Rx(data)
		sent := link.flush(c)
		require.Len(t, sent, 1)
		rsp, ok := decode(t, sent[0]).(*pdu.UnknownRsp)
		require.True(t, ok)
		require.Equal(t, data[0], rsp.UnknownType)
		requireIdle(t, e)
	}
}

func TestUnmatchedResponseAnswered(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RoleCentral)

	for _, data := range [][]byte{
		encode(t, &pdu.FeatureRsp{}),
		encode(t, &pdu.PhyRsp{TxPhys: Phy1M, RxPhys: Phy1M}),
		encode(t, &pdu.LengthRsp{}),
		encode(t, &pdu.PingRsp{}),
	} {
		c.Rx(data)
		c.Run()
		sent := link.flush(c)
		require.Len(t, sent, 1, "%s", pdu.OpcodeName(data[0]))
		rsp, ok := decode(t, sent[0]).(*pdu.UnknownRsp)
		require.True(t, ok)
		require.Equal(t, data[0], rsp.UnknownType)
		requireIdle(t, e)
	}
	require.Empty(t, host.ntfs())
}

func TestUnmatchedRefusalDropped(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RoleCentral)

	c.Rx(encode(t, &pdu.UnknownRsp{UnknownType: pdu.OpPingReq}))
	c.Rx(encode(t, &pdu.RejectInd{ErrorCode: pdu.ErrCmdDisallowed}))
	c.Rx(encode(t, &pdu.RejectExtInd{RejectOpcode: pdu.OpPhyReq, ErrorCode: pdu.ErrLLProcCollision}))
	c.Run()
	require.Empty(t, link.take())
	require.Empty(t, host.ntfs())
	requireIdle(t, e)
}

func TestLEPing(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RoleCentral)

	require.Equal(t, uint8(pdu.ErrSuccess), c.LEPing())
	c.Run()
	require.Equal(t, []uint8{pdu.OpPingReq}, opcodes(link.flush(c)))
	c.Rx(encode(t, &pdu.PingRsp{}))
	require.Empty(t, host.ntfs())
	requireIdle(t, e)

	// an old peer answers with LL_UNKNOWN_RSP; that ends the ping too
	require.Equal(t, uint8(pdu.ErrSuccess), c.LEPing())
	c.Run()
	link.flush(c)
	c.Rx(encode(t, &pdu.UnknownRsp{UnknownType: pdu.OpPingReq}))
	requireIdle(t, e)
}

func TestDataLengthUpdate(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RoleCentral)

	require.Equal(t, uint8(pdu.ErrInvalidParam), c.DataLengthUpdate(20, 328))
	require.Equal(t, uint8(pdu.ErrSuccess), c.DataLengthUpdate(200, 1712))
	c.Run()
	sent := link.flush(c)
	req, ok := decode(t, sent[0]).(*pdu.LengthReq)
	require.True(t, ok)
	require.Equal(t, uint16(200), req.MaxTxOctets)
	require.Equal(t, uint16(1712), req.MaxTxTime)

	c.Rx(encode(t, &pdu.LengthRsp{Length: pdu.Length{
		MaxRxOctets: 251, MaxRxTime: 2120, MaxTxOctets: 100, MaxTxTime: 848,
	}}))
	want := DataLengthNtf{MaxTxOctets: 200, MaxTxTime: 1712, MaxRxOctets: 100, MaxRxTime: 848}
	require.Equal(t, want, host.last(t))
	p := c.Params()
	require.Equal(t, uint16(200), p.MaxTxOctets)
	require.Equal(t, uint16(100), p.MaxRxOctets)
	requireIdle(t, e)
}

func TestRemoteDataLengthUpdate(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RolePeripheral)

	c.Rx(encode(t, &pdu.LengthReq{Length: pdu.Length{
		MaxRxOctets: 251, MaxRxTime: 2120, MaxTxOctets: 251, MaxTxTime: 2120,
	}}))
	require.Equal(t, []uint8{pdu.OpLengthRsp}, opcodes(link.flush(c)))
	require.Equal(t, DataLengthNtf{MaxTxOctets: 251, MaxTxTime: 2120, MaxRxOctets: 251, MaxRxTime: 2120}, host.last(t))
	require.False(t, c.RemoteDLEPending())

	// same values again: answered, nothing to report
	c.Rx(encode(t, &pdu.LengthReq{Length: pdu.Length{
		MaxRxOctets: 251, MaxRxTime: 2120, MaxTxOctets: 251, MaxTxTime: 2120,
	}}))
	require.Equal(t, []uint8{pdu.OpLengthRsp}, opcodes(link.flush(c)))
	require.Len(t, host.ntfs(), 1)
	requireIdle(t, e)
}

func TestMinUsedChans(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	p, plink := newTestConn(t, e, 1, RolePeripheral)
	c, _ := newTestConn(t, e, 2, RoleCentral)

	require.Equal(t, uint8(pdu.ErrCmdDisallowed), c.MinUsedChans(Phy1M, 2))
	require.Equal(t, uint8(pdu.ErrInvalidParam), p.MinUsedChans(Phy1M, 1))
	require.Equal(t, uint8(pdu.ErrSuccess), p.MinUsedChans(Phy1M|Phy2M, 4))
	p.Run()

	txs := plink.take()
	require.Len(t, txs, 1)
	ind := append([]byte(nil), txs[0].PDU()...)

	// completes on the acknowledgement, not on transmission
	require.Equal(t, e.Config().LocalContexts-1, e.Stats().LocalContextsFree)
	p.TxAck(txs[0])
	p.ReleaseTx(txs[0])

	c.Rx(ind)
	phys, count, ok := c.MinUsedChansInfo()
	require.True(t, ok)
	require.Equal(t, Phy1M|Phy2M, phys)
	require.Equal(t, uint8(4), count)
	requireIdle(t, e)
}

func TestCTERequest(t *testing.T) {
	e, _, host := newTestEngine(t, nil)
	c, link := newTestConn(t, e, 1, RoleCentral)
	p, plink := newTestConn(t, e, 2, RolePeripheral)

	require.Equal(t, uint8(pdu.ErrInvalidParam), c.CTEReq(1, 0))
	require.Equal(t, uint8(pdu.ErrSuccess), c.CTEReq(10, 1))
	c.Run()
	req := link.flush(c)

	p.SetCTEResponse(false)
	p.Rx(req[0])
	rsp := plink.flush(p)
	require.Equal(t, []uint8{pdu.OpRejectExtInd}, opcodes(rsp))

	c.Rx(rsp[0])
	require.Equal(t, CTEReqFailedNtf{Status: pdu.ErrUnsuppLLParamVal}, host.last(t))
	requireIdle(t, e)

	p.SetCTEResponse(true)
	require.Equal(t, uint8(pdu.ErrSuccess), c.CTEReq(10, 1))
	c.Run()
	p.Rx(link.flush(c)[0])
	rsp = plink.flush(p)
	require.Equal(t, []uint8{pdu.OpCteRsp}, opcodes(rsp))
	c.Rx(rsp[0])
	require.Len(t, host.ntfs(), 1)
	requireIdle(t, e)
}
