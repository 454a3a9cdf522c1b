package llcp

// NtfKind identifies a host notification.
type NtfKind uint8

const (
	NtfVersion NtfKind = iota
	NtfFeatures
	NtfLTKRequest
	NtfEncChange
	NtfPhyUpdate
	NtfConnUpdate
	NtfDataLength
	NtfCTEReqFailed
)

var ntfNames = map[NtfKind]string{
	NtfVersion:      "VERSION",
	NtfFeatures:     "FEATURES",
	NtfLTKRequest:   "LTK_REQUEST",
	NtfEncChange:    "ENC_CHANGE",
	NtfPhyUpdate:    "PHY_UPDATE",
	NtfConnUpdate:   "CONN_UPDATE",
	NtfDataLength:   "DATA_LENGTH",
	NtfCTEReqFailed: "CTE_REQ_FAILED",
}

func (k NtfKind) String() string {
	if name, ok := ntfNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// Notification is a procedure result handed to the host in an RxNode.
type Notification interface {
	Kind() NtfKind
}

// RxNode is a block of the external RX pool carrying one notification.
type RxNode struct {
	Handle uint16
	Ntf    Notification
}

// VersionInfo is the content of a peer LL_VERSION_IND.
type VersionInfo struct {
	VersNr    uint8
	CompanyID uint16
	SubVersNr uint16
}

type VersionNtf struct {
	Status uint8
	VersionInfo
}

type FeaturesNtf struct {
	Status   uint8
	Features uint64
}

// LTKRequestNtf asks the host for the long term key; answer with
// Conn.LTKReqReply or Conn.LTKReqNegReply.
type LTKRequestNtf struct {
	Rand [8]byte
	EDIV [2]byte
}

// EncChangeNtf reports the end of an encryption start (KeyRefresh false) or
// pause/restart (KeyRefresh true).
type EncChangeNtf struct {
	Status     uint8
	Enabled    bool
	KeyRefresh bool
}

type PhyUpdateNtf struct {
	Status uint8
	TxPhy  uint8
	RxPhy  uint8
}

type ConnUpdateNtf struct {
	Status   uint8
	Interval uint16
	Latency  uint16
	Timeout  uint16
}

type DataLengthNtf struct {
	MaxTxOctets uint16
	MaxTxTime   uint16
	MaxRxOctets uint16
	MaxRxTime   uint16
}

type CTEReqFailedNtf struct {
	Status uint8
}

func (VersionNtf) Kind() NtfKind      { return NtfVersion }
func (FeaturesNtf) Kind() NtfKind     { return NtfFeatures }
func (LTKRequestNtf) Kind() NtfKind   { return NtfLTKRequest }
func (EncChangeNtf) Kind() NtfKind    { return NtfEncChange }
func (PhyUpdateNtf) Kind() NtfKind    { return NtfPhyUpdate }
func (ConnUpdateNtf) Kind() NtfKind   { return NtfConnUpdate }
func (DataLengthNtf) Kind() NtfKind   { return NtfDataLength }
func (CTEReqFailedNtf) Kind() NtfKind { return NtfCTEReqFailed }
