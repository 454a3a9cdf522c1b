package pdu

import "fmt"

// LL Control PDU opcodes (Bluetooth Core Spec v5.3 Vol 6, Part B, Section 2.4.2)
const (
	// Instant based indications (central only)
	OpConnUpdateInd = 0x00
	OpChanMapInd    = 0x01

	OpTerminateInd = 0x02

	// Encryption
	OpEncReq      = 0x03
	OpEncRsp      = 0x04
	OpStartEncReq = 0x05
	OpStartEncRsp = 0x06

	OpUnknownRsp = 0x07

	// Feature exchange
	OpFeatureReq = 0x08
	OpFeatureRsp = 0x09

	// Encryption pause (key refresh)
	OpPauseEncReq = 0x0A
	OpPauseEncRsp = 0x0B

	OpVersionInd = 0x0C
	OpRejectInd  = 0x0D

	OpPerInitFeatXchg = 0x0E

	// Connection parameters request
	OpConnParamReq = 0x0F
	OpConnParamRsp = 0x10

	OpRejectExtInd = 0x11

	// LE ping
	OpPingReq = 0x12
	OpPingRsp = 0x13

	// Data length update
	OpLengthReq = 0x14
	OpLengthRsp = 0x15

	// PHY update
	OpPhyReq       = 0x16
	OpPhyRsp       = 0x17
	OpPhyUpdateInd = 0x18

	OpMinUsedChanInd = 0x19

	// Constant tone extension
	OpCteReq = 0x1A
	OpCteRsp = 0x1B

	// OpInvalid never appears on air; it marks "no opcode" in procedure state.
	OpInvalid = 0xFF
)

// MaxCtrlPDULen is the largest LL control PDU: opcode plus 26 bytes of CtrData.
const MaxCtrlPDULen = 27

// OpcodeNames maps opcodes to human-readable names (useful for debugging)
var OpcodeNames = map[uint8]string{
	OpConnUpdateInd:   "LL_CONNECTION_UPDATE_IND",
	OpChanMapInd:      "LL_CHANNEL_MAP_IND",
	OpTerminateInd:    "LL_TERMINATE_IND",
	OpEncReq:          "LL_ENC_REQ",
	OpEncRsp:          "LL_ENC_RSP",
	OpStartEncReq:     "LL_START_ENC_REQ",
	OpStartEncRsp:     "LL_START_ENC_RSP",
	OpUnknownRsp:      "LL_UNKNOWN_RSP",
	OpFeatureReq:      "LL_FEATURE_REQ",
	OpFeatureRsp:      "LL_FEATURE_RSP",
	OpPauseEncReq:     "LL_PAUSE_ENC_REQ",
	OpPauseEncRsp:     "LL_PAUSE_ENC_RSP",
	OpVersionInd:      "LL_VERSION_IND",
	OpRejectInd:       "LL_REJECT_IND",
	OpPerInitFeatXchg: "LL_PERIPHERAL_FEATURE_REQ",
	OpConnParamReq:    "LL_CONNECTION_PARAM_REQ",
	OpConnParamRsp:    "LL_CONNECTION_PARAM_RSP",
	OpRejectExtInd:    "LL_REJECT_EXT_IND",
	OpPingReq:         "LL_PING_REQ",
	OpPingRsp:         "LL_PING_RSP",
	OpLengthReq:       "LL_LENGTH_REQ",
	OpLengthRsp:       "LL_LENGTH_RSP",
	OpPhyReq:          "LL_PHY_REQ",
	OpPhyRsp:          "LL_PHY_RSP",
	OpPhyUpdateInd:    "LL_PHY_UPDATE_IND",
	OpMinUsedChanInd:  "LL_MIN_USED_CHANNELS_IND",
	OpCteReq:          "LL_CTE_REQ",
	OpCteRsp:          "LL_CTE_RSP",
}

// ctrDataLen is the CtrData length that follows the opcode byte.
var ctrDataLen = map[uint8]int{
	OpConnUpdateInd:   11,
	OpChanMapInd:      7,
	OpTerminateInd:    1,
	OpEncReq:          22,
	OpEncRsp:          12,
	OpStartEncReq:     0,
	OpStartEncRsp:     0,
	OpUnknownRsp:      1,
	OpFeatureReq:      8,
	OpFeatureRsp:      8,
	OpPauseEncReq:     0,
	OpPauseEncRsp:     0,
	OpVersionInd:      5,
	OpRejectInd:       1,
	OpPerInitFeatXchg: 8,
	OpConnParamReq:    23,
	OpConnParamRsp:    23,
	OpRejectExtInd:    2,
	OpPingReq:         0,
	OpPingRsp:         0,
	OpLengthReq:       8,
	OpLengthRsp:       8,
	OpPhyReq:          2,
	OpPhyRsp:          2,
	OpPhyUpdateInd:    4,
	OpMinUsedChanInd:  2,
	OpCteReq:          1,
	OpCteRsp:          0,
}

// OpcodeName returns the name of an opcode, or a hex string when unknown.
func OpcodeName(op uint8) string {
	if name, ok := OpcodeNames[op]; ok {
		return name
	}
	if op == OpInvalid {
		return "INVALID"
	}
	return fmt.Sprintf("UNKNOWN_0x%02X", op)
}

// IsKnown reports whether op is an LL control opcode this package can decode.
func IsKnown(op uint8) bool {
	_, ok := ctrDataLen[op]
	return ok
}
