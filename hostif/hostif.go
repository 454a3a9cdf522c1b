// Package hostif carries LLCP notifications across the host bridge.
//
// A notification travels as a google.protobuf.Struct: a "kind" string, the
// connection "handle" and one field per notification member. Byte arrays are
// hex strings and the 64 bit feature mask is a hex string, so nothing is lost
// to the float64 numbers of structpb.
package hostif

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/blue-llcp/llcp"
)

var (
	// ErrUnknownKind is returned when a frame names a notification kind this
	// package does not know.
	ErrUnknownKind = errors.New("hostif: unknown notification kind")
	// ErrBadField is returned when a field is missing or has the wrong type.
	ErrBadField = errors.New("hostif: bad field")
)

// Event is a decoded host frame.
type Event struct {
	Handle uint16
	Ntf    llcp.Notification
}

func (ev Event) String() string {
	return fmt.Sprintf("0x%04X %s %+v", ev.Handle, ev.Ntf.Kind(), ev.Ntf)
}

// Encode converts a notification into its Struct form.
func Encode(handle uint16, n llcp.Notification) (*structpb.Struct, error) {
	if n == nil {
		return nil, errors.Wrap(ErrBadField, "nil notification")
	}
	fields := map[string]interface{}{
		"kind":   n.Kind().String(),
		"handle": int(handle),
	}
	switch v := n.(type) {
	case llcp.VersionNtf:
		fields["status"] = int(v.Status)
		fields["vers_nr"] = int(v.VersNr)
		fields["company_id"] = int(v.CompanyID)
		fields["sub_vers_nr"] = int(v.SubVersNr)
	case llcp.FeaturesNtf:
		fields["status"] = int(v.Status)
		fields["features"] = fmt.Sprintf("0x%016X", v.Features)
	case llcp.LTKRequestNtf:
		fields["rand"] = hex.EncodeToString(v.Rand[:])
		fields["ediv"] = hex.EncodeToString(v.EDIV[:])
	case llcp.EncChangeNtf:
		fields["status"] = int(v.Status)
		fields["enabled"] = v.Enabled
		fields["key_refresh"] = v.KeyRefresh
	case llcp.PhyUpdateNtf:
		fields["status"] = int(v.Status)
		fields["tx_phy"] = int(v.TxPhy)
		fields["rx_phy"] = int(v.RxPhy)
	case llcp.ConnUpdateNtf:
		fields["status"] = int(v.Status)
		fields["interval"] = int(v.Interval)
		fields["latency"] = int(v.Latency)
		fields["timeout"] = int(v.Timeout)
	case llcp.DataLengthNtf:
		fields["max_tx_octets"] = int(v.MaxTxOctets)
		fields["max_tx_time"] = int(v.MaxTxTime)
		fields["max_rx_octets"] = int(v.MaxRxOctets)
		fields["max_rx_time"] = int(v.MaxRxTime)
	case llcp.CTEReqFailedNtf:
		fields["status"] = int(v.Status)
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "%T", n)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "hostif: build struct")
	}
	return s, nil
}

// Marshal encodes the notification carried by rx into wire bytes.
func Marshal(rx *llcp.RxNode) ([]byte, error) {
	s, err := Encode(rx.Handle, rx.Ntf)
	if err != nil {
		return nil, err
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "hostif: marshal")
	}
	return b, nil
}

// Unmarshal decodes wire bytes produced by Marshal.
func Unmarshal(b []byte) (Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return Event{}, errors.Wrap(err, "hostif: unmarshal")
	}
	return Decode(&s)
}

// Decode is the inverse of Encode.
func Decode(s *structpb.Struct) (Event, error) {
	f := fieldReader{s: s}
	kind := f.str("kind")
	ev := Event{Handle: uint16(f.num("handle", 0xFFFF))}

	switch kind {
	case llcp.NtfVersion.String():
		ev.Ntf = llcp.VersionNtf{
			Status: uint8(f.num("status", 0xFF)),
			VersionInfo: llcp.VersionInfo{
				VersNr:    uint8(f.num("vers_nr", 0xFF)),
				CompanyID: uint16(f.num("company_id", 0xFFFF)),
				SubVersNr: uint16(f.num("sub_vers_nr", 0xFFFF)),
			},
		}
	case llcp.NtfFeatures.String():
		ev.Ntf = llcp.FeaturesNtf{
			Status:   uint8(f.num("status", 0xFF)),
			Features: f.hexU64("features"),
		}
	case llcp.NtfLTKRequest.String():
		var n llcp.LTKRequestNtf
		f.bytes("rand", n.Rand[:])
		f.bytes("ediv", n.EDIV[:])
		ev.Ntf = n
	case llcp.NtfEncChange.String():
		ev.Ntf = llcp.EncChangeNtf{
			Status:     uint8(f.num("status", 0xFF)),
			Enabled:    f.boolean("enabled"),
			KeyRefresh: f.boolean("key_refresh"),
		}
	case llcp.NtfPhyUpdate.String():
		ev.Ntf = llcp.PhyUpdateNtf{
			Status: uint8(f.num("status", 0xFF)),
			TxPhy:  uint8(f.num("tx_phy", 0xFF)),
			RxPhy:  uint8(f.num("rx_phy", 0xFF)),
		}
	case llcp.NtfConnUpdate.String():
		ev.Ntf = llcp.ConnUpdateNtf{
			Status:   uint8(f.num("status", 0xFF)),
			Interval: uint16(f.num("interval", 0xFFFF)),
			Latency:  uint16(f.num("latency", 0xFFFF)),
			Timeout:  uint16(f.num("timeout", 0xFFFF)),
		}
	case llcp.NtfDataLength.String():
		ev.Ntf = llcp.DataLengthNtf{
			MaxTxOctets: uint16(f.num("max_tx_octets", 0xFFFF)),
			MaxTxTime:   uint16(f.num("max_tx_time", 0xFFFF)),
			MaxRxOctets: uint16(f.num("max_rx_octets", 0xFFFF)),
			MaxRxTime:   uint16(f.num("max_rx_time", 0xFFFF)),
		}
	case llcp.NtfCTEReqFailed.String():
		ev.Ntf = llcp.CTEReqFailedNtf{Status: uint8(f.num("status", 0xFF))}
	default:
		if f.err == nil {
			return Event{}, errors.Wrapf(ErrUnknownKind, "%q", kind)
		}
	}
	if f.err != nil {
		return Event{}, f.err
	}
	return ev, nil
}

// fieldReader keeps the first error so Decode can read every field and check
// once.
type fieldReader struct {
	s   *structpb.Struct
	err error
}

func (f *fieldReader) value(key string) *structpb.Value {
	if f.err != nil {
		return nil
	}
	v, ok := f.s.GetFields()[key]
	if !ok {
		f.err = errors.Wrapf(ErrBadField, "missing %q", key)
		return nil
	}
	return v
}

func (f *fieldReader) num(key string, max uint64) uint64 {
	v := f.value(key)
	if v == nil {
		return 0
	}
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || nv.NumberValue < 0 || nv.NumberValue > float64(max) || nv.NumberValue != float64(uint64(nv.NumberValue)) {
		f.err = errors.Wrapf(ErrBadField, "%q is not an integer in 0..%d", key, max)
		return 0
	}
	return uint64(nv.NumberValue)
}

func (f *fieldReader) str(key string) string {
	v := f.value(key)
	if v == nil {
		return ""
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		f.err = errors.Wrapf(ErrBadField, "%q is not a string", key)
		return ""
	}
	return sv.StringValue
}

func (f *fieldReader) boolean(key string) bool {
	v := f.value(key)
	if v == nil {
		return false
	}
	bv, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		f.err = errors.Wrapf(ErrBadField, "%q is not a bool", key)
		return false
	}
	return bv.BoolValue
}

func (f *fieldReader) hexU64(key string) uint64 {
	s := f.str(key)
	if f.err != nil {
		return 0
	}
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		f.err = errors.Wrapf(ErrBadField, "%q: %v", key, err)
	}
	return n
}

func (f *fieldReader) bytes(key string, dst []byte) {
	s := f.str(key)
	if f.err != nil {
		return
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(dst) {
		f.err = errors.Wrapf(ErrBadField, "%q: want %d hex bytes", key, len(dst))
		return
	}
	copy(dst, b)
}
