package pdu

import (
	"encoding/binary"
	"fmt"
)

// LL_CONNECTION_UPDATE_IND (0x00)
type ConnUpdateInd struct {
	WinSize   uint8
	WinOffset uint16
	Interval  uint16 // units of 1.25ms
	Latency   uint16
	Timeout   uint16 // units of 10ms
	Instant   uint16
}

// LL_CHANNEL_MAP_IND (0x01)
type ChanMapInd struct {
	ChM     [5]byte // 37 data channels, bit per channel
	Instant uint16
}

// LL_TERMINATE_IND (0x02)
type TerminateInd struct {
	ErrorCode uint8
}

// LL_ENC_REQ (0x03)
type EncReq struct {
	Rand [8]byte
	EDIV [2]byte
	SKDm [8]byte
	IVm  [4]byte
}

// LL_ENC_RSP (0x04)
type EncRsp struct {
	SKDs [8]byte
	IVs  [4]byte
}

// LL_START_ENC_REQ (0x05)
type StartEncReq struct{}

// LL_START_ENC_RSP (0x06)
type StartEncRsp struct{}

// LL_UNKNOWN_RSP (0x07)
type UnknownRsp struct {
	UnknownType uint8 // opcode the peer did not understand
}

// LL_FEATURE_REQ (0x08)
type FeatureReq struct {
	Features uint64
}

// LL_FEATURE_RSP (0x09)
type FeatureRsp struct {
	Features uint64
}

// LL_PAUSE_ENC_REQ (0x0A)
type PauseEncReq struct{}

// LL_PAUSE_ENC_RSP (0x0B)
type PauseEncRsp struct{}

// LL_VERSION_IND (0x0C)
type VersionInd struct {
	VersNr    uint8
	CompanyID uint16
	SubVersNr uint16
}

// LL_REJECT_IND (0x0D)
type RejectInd struct {
	ErrorCode uint8
}

// LL_PERIPHERAL_FEATURE_REQ (0x0E)
type PerInitFeatXchg struct {
	Features uint64
}

// ConnParam is the CtrData shared by LL_CONNECTION_PARAM_REQ and _RSP.
type ConnParam struct {
	IntervalMin   uint16
	IntervalMax   uint16
	Latency       uint16
	Timeout       uint16
	Periodicity   uint8
	RefEventCount uint16
	Offsets       [6]uint16
}

// LL_CONNECTION_PARAM_REQ (0x0F)
type ConnParamReq struct {
	ConnParam
}

// LL_CONNECTION_PARAM_RSP (0x10)
type ConnParamRsp struct {
	ConnParam
}

// LL_REJECT_EXT_IND (0x11)
type RejectExtInd struct {
	RejectOpcode uint8
	ErrorCode    uint8
}

// LL_PING_REQ (0x12)
type PingReq struct{}

// LL_PING_RSP (0x13)
type PingRsp struct{}

// Length is the CtrData shared by LL_LENGTH_REQ and LL_LENGTH_RSP.
type Length struct {
	MaxRxOctets uint16
	MaxRxTime   uint16
	MaxTxOctets uint16
	MaxTxTime   uint16
}

// LL_LENGTH_REQ (0x14)
type LengthReq struct {
	Length
}

// LL_LENGTH_RSP (0x15)
type LengthRsp struct {
	Length
}

// LL_PHY_REQ (0x16)
type PhyReq struct {
	TxPhys uint8
	RxPhys uint8
}

// LL_PHY_RSP (0x17)
type PhyRsp struct {
	TxPhys uint8
	RxPhys uint8
}

// LL_PHY_UPDATE_IND (0x18)
type PhyUpdateInd struct {
	CToPPhy uint8 // 0 means unchanged
	PToCPhy uint8
	Instant uint16
}

// LL_MIN_USED_CHANNELS_IND (0x19)
type MinUsedChanInd struct {
	Phys         uint8
	MinUsedChans uint8
}

// LL_CTE_REQ (0x1A)
type CteReq struct {
	MinCTELen uint8 // 5 bits, units of 8us
	CTEType   uint8 // 2 bits
}

// LL_CTE_RSP (0x1B)
type CteRsp struct{}

// EncodePacket encodes an LL control PDU to binary format
func EncodePacket(pkt interface{}) ([]byte, error) {
	switch p := pkt.(type) {
	case *ConnUpdateInd:
		buf := newBuf(OpConnUpdateInd)
		buf[1] = p.WinSize
		binary.LittleEndian.PutUint16(buf[2:4], p.WinOffset)
		binary.LittleEndian.PutUint16(buf[4:6], p.Interval)
		binary.LittleEndian.PutUint16(buf[6:8], p.Latency)
		binary.LittleEndian.PutUint16(buf[8:10], p.Timeout)
		binary.LittleEndian.PutUint16(buf[10:12], p.Instant)
		return buf, nil

	case *ChanMapInd:
		buf := newBuf(OpChanMapInd)
		copy(buf[1:6], p.ChM[:])
		binary.LittleEndian.PutUint16(buf[6:8], p.Instant)
		return buf, nil

	case *TerminateInd:
		buf := newBuf(OpTerminateInd)
		buf[1] = p.ErrorCode
		return buf, nil

	case *EncReq:
		buf := newBuf(OpEncReq)
		copy(buf[1:9], p.Rand[:])
		copy(buf[9:11], p.EDIV[:])
		copy(buf[11:19], p.SKDm[:])
		copy(buf[19:23], p.IVm[:])
		return buf, nil

	case *EncRsp:
		buf := newBuf(OpEncRsp)
		copy(buf[1:9], p.SKDs[:])
		copy(buf[9:13], p.IVs[:])
		return buf, nil

	case *StartEncReq:
		return newBuf(OpStartEncReq), nil

	case *StartEncRsp:
		return newBuf(OpStartEncRsp), nil

	case *UnknownRsp:
		buf := newBuf(OpUnknownRsp)
		buf[1] = p.UnknownType
		return buf, nil

	case *FeatureReq:
		buf := newBuf(OpFeatureReq)
		binary.LittleEndian.PutUint64(buf[1:9], p.Features)
		return buf, nil

	case *FeatureRsp:
		buf := newBuf(OpFeatureRsp)
		binary.LittleEndian.PutUint64(buf[1:9], p.Features)
		return buf, nil

	case *PerInitFeatXchg:
		buf := newBuf(OpPerInitFeatXchg)
		binary.LittleEndian.PutUint64(buf[1:9], p.Features)
		return buf, nil

	case *PauseEncReq:
		return newBuf(OpPauseEncReq), nil

	case *PauseEncRsp:
		return newBuf(OpPauseEncRsp), nil

	case *VersionInd:
		buf := newBuf(OpVersionInd)
		buf[1] = p.VersNr
		binary.LittleEndian.PutUint16(buf[2:4], p.CompanyID)
		binary.LittleEndian.PutUint16(buf[4:6], p.SubVersNr)
		return buf, nil

	case *RejectInd:
		buf := newBuf(OpRejectInd)
		buf[1] = p.ErrorCode
		return buf, nil

	case *ConnParamReq:
		buf := newBuf(OpConnParamReq)
		putConnParam(buf[1:], &p.ConnParam)
		return buf, nil

	case *ConnParamRsp:
		buf := newBuf(OpConnParamRsp)
		putConnParam(buf[1:], &p.ConnParam)
		return buf, nil

	case *RejectExtInd:
		buf := newBuf(OpRejectExtInd)
		buf[1] = p.RejectOpcode
		buf[2] = p.ErrorCode
		return buf, nil

	case *PingReq:
		return newBuf(OpPingReq), nil

	case *PingRsp:
		return newBuf(OpPingRsp), nil

	case *LengthReq:
		buf := newBuf(OpLengthReq)
		putLength(buf[1:], &p.Length)
		return buf, nil

	case *LengthRsp:
		buf := newBuf(OpLengthRsp)
		putLength(buf[1:], &p.Length)
		return buf, nil

	case *PhyReq:
		buf := newBuf(OpPhyReq)
		buf[1] = p.TxPhys
		buf[2] = p.RxPhys
		return buf, nil

	case *PhyRsp:
		buf := newBuf(OpPhyRsp)
		buf[1] = p.TxPhys
		buf[2] = p.RxPhys
		return buf, nil

	case *PhyUpdateInd:
		buf := newBuf(OpPhyUpdateInd)
		buf[1] = p.CToPPhy
		buf[2] = p.PToCPhy
		binary.LittleEndian.PutUint16(buf[3:5], p.Instant)
		return buf, nil

	case *MinUsedChanInd:
		buf := newBuf(OpMinUsedChanInd)
		buf[1] = p.Phys
		buf[2] = p.MinUsedChans
		return buf, nil

	case *CteReq:
		if p.MinCTELen > 0x1F || p.CTEType > 0x03 {
			return nil, fmt.Errorf("pdu: CTE request out of range (len %d, type %d)", p.MinCTELen, p.CTEType)
		}
		buf := newBuf(OpCteReq)
		buf[1] = p.MinCTELen | p.CTEType<<6
		return buf, nil

	case *CteRsp:
		return newBuf(OpCteRsp), nil

	default:
		return nil, fmt.Errorf("pdu: unsupported packet type %T", pkt)
	}
}

// DecodePacket parses binary data into a typed LL control PDU
func DecodePacket(data []byte) (interface{}, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("pdu: empty packet")
	}

	op := data[0]
	want, ok := ctrDataLen[op]
	if !ok {
		return nil, fmt.Errorf("pdu: unknown opcode 0x%02X", op)
	}
	if len(data) < 1+want {
		return nil, fmt.Errorf("pdu: %s too short (need %d bytes, got %d)", OpcodeName(op), 1+want, len(data))
	}
	d := data[1:]

	switch op {
	case OpConnUpdateInd:
		return &ConnUpdateInd{
			WinSize:   d[0],
			WinOffset: binary.LittleEndian.Uint16(d[1:3]),
			Interval:  binary.LittleEndian.Uint16(d[3:5]),
			Latency:   binary.LittleEndian.Uint16(d[5:7]),
			Timeout:   binary.LittleEndian.Uint16(d[7:9]),
			Instant:   binary.LittleEndian.Uint16(d[9:11]),
		}, nil

	case OpChanMapInd:
		p := &ChanMapInd{Instant: binary.LittleEndian.Uint16(d[5:7])}
		copy(p.ChM[:], d[0:5])
		return p, nil

	case OpTerminateInd:
		return &TerminateInd{ErrorCode: d[0]}, nil

	case OpEncReq:
		p := &EncReq{}
		copy(p.Rand[:], d[0:8])
		copy(p.EDIV[:], d[8:10])
		copy(p.SKDm[:], d[10:18])
		copy(p.IVm[:], d[18:22])
		return p, nil

	case OpEncRsp:
		p := &EncRsp{}
		copy(p.SKDs[:], d[0:8])
		copy(p.IVs[:], d[8:12])
		return p, nil

	case OpStartEncReq:
		return &StartEncReq{}, nil

	case OpStartEncRsp:
		return &StartEncRsp{}, nil

	case OpUnknownRsp:
		return &UnknownRsp{UnknownType: d[0]}, nil

	case OpFeatureReq:
		return &FeatureReq{Features: binary.LittleEndian.Uint64(d[0:8])}, nil

	case OpFeatureRsp:
		return &FeatureRsp{Features: binary.LittleEndian.Uint64(d[0:8])}, nil

	case OpPerInitFeatXchg:
		return &PerInitFeatXchg{Features: binary.LittleEndian.Uint64(d[0:8])}, nil

	case OpPauseEncReq:
		return &PauseEncReq{}, nil

	case OpPauseEncRsp:
		return &PauseEncRsp{}, nil

	case OpVersionInd:
		return &VersionInd{
			VersNr:    d[0],
			CompanyID: binary.LittleEndian.Uint16(d[1:3]),
			SubVersNr: binary.LittleEndian.Uint16(d[3:5]),
		}, nil

	case OpRejectInd:
		return &RejectInd{ErrorCode: d[0]}, nil

	case OpConnParamReq:
		return &ConnParamReq{ConnParam: getConnParam(d)}, nil

	case OpConnParamRsp:
		return &ConnParamRsp{ConnParam: getConnParam(d)}, nil

	case OpRejectExtInd:
		return &RejectExtInd{RejectOpcode: d[0], ErrorCode: d[1]}, nil

	case OpPingReq:
		return &PingReq{}, nil

	case OpPingRsp:
		return &PingRsp{}, nil

	case OpLengthReq:
		return &LengthReq{Length: getLength(d)}, nil

	case OpLengthRsp:
		return &LengthRsp{Length: getLength(d)}, nil

	case OpPhyReq:
		return &PhyReq{TxPhys: d[0], RxPhys: d[1]}, nil

	case OpPhyRsp:
		return &PhyRsp{TxPhys: d[0], RxPhys: d[1]}, nil

	case OpPhyUpdateInd:
		return &PhyUpdateInd{
			CToPPhy: d[0],
			PToCPhy: d[1],
			Instant: binary.LittleEndian.Uint16(d[2:4]),
		}, nil

	case OpMinUsedChanInd:
		return &MinUsedChanInd{Phys: d[0], MinUsedChans: d[1]}, nil

	case OpCteReq:
		return &CteReq{MinCTELen: d[0] & 0x1F, CTEType: d[0] >> 6}, nil

	case OpCteRsp:
		return &CteRsp{}, nil
	}

	return nil, fmt.Errorf("pdu: unknown opcode 0x%02X", op)
}

// Opcode returns the opcode of an encoded PDU, or OpInvalid for an empty one.
func Opcode(data []byte) uint8 {
	if len(data) == 0 {
		return OpInvalid
	}
	return data[0]
}

// RefOpcode returns the opcode referenced by an LL_UNKNOWN_RSP or
// LL_REJECT_EXT_IND, and false for every other PDU.
func RefOpcode(data []byte) (uint8, bool) {
	if len(data) < 2 {
		return OpInvalid, false
	}
	switch data[0] {
	case OpUnknownRsp, OpRejectExtInd:
		return data[1], true
	}
	return OpInvalid, false
}

// RejectCode returns the error code carried by LL_REJECT_IND or
// LL_REJECT_EXT_IND.
func RejectCode(data []byte) (uint8, bool) {
	switch {
	case len(data) >= 2 && data[0] == OpRejectInd:
		return data[1], true
	case len(data) >= 3 && data[0] == OpRejectExtInd:
		return data[2], true
	}
	return ErrSuccess, false
}

func newBuf(op uint8) []byte {
	buf := make([]byte, 1+ctrDataLen[op])
	buf[0] = op
	return buf
}

func putConnParam(b []byte, p *ConnParam) {
	binary.LittleEndian.PutUint16(b[0:2], p.IntervalMin)
	binary.LittleEndian.PutUint16(b[2:4], p.IntervalMax)
	binary.LittleEndian.PutUint16(b[4:6], p.Latency)
	binary.LittleEndian.PutUint16(b[6:8], p.Timeout)
	b[8] = p.Periodicity
	binary.LittleEndian.PutUint16(b[9:11], p.RefEventCount)
	for i, off := range p.Offsets {
		binary.LittleEndian.PutUint16(b[11+2*i:13+2*i], off)
	}
}

func getConnParam(b []byte) ConnParam {
	p := ConnParam{
		IntervalMin:   binary.LittleEndian.Uint16(b[0:2]),
		IntervalMax:   binary.LittleEndian.Uint16(b[2:4]),
		Latency:       binary.LittleEndian.Uint16(b[4:6]),
		Timeout:       binary.LittleEndian.Uint16(b[6:8]),
		Periodicity:   b[8],
		RefEventCount: binary.LittleEndian.Uint16(b[9:11]),
	}
	for i := range p.Offsets {
		p.Offsets[i] = binary.LittleEndian.Uint16(b[11+2*i : 13+2*i])
	}
	return p
}

func putLength(b []byte, l *Length) {
	binary.LittleEndian.PutUint16(b[0:2], l.MaxRxOctets)
	binary.LittleEndian.PutUint16(b[2:4], l.MaxRxTime)
	binary.LittleEndian.PutUint16(b[4:6], l.MaxTxOctets)
	binary.LittleEndian.PutUint16(b[6:8], l.MaxTxTime)
}

func getLength(b []byte) Length {
	return Length{
		MaxRxOctets: binary.LittleEndian.Uint16(b[0:2]),
		MaxRxTime:   binary.LittleEndian.Uint16(b[2:4]),
		MaxTxOctets: binary.LittleEndian.Uint16(b[4:6]),
		MaxTxTime:   binary.LittleEndian.Uint16(b[6:8]),
	}
}
