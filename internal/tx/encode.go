package tx

import (
	"bytes"
	"encoding/binary"

	"github.com/lightningnetwork/lnd/tlv"
)

// Top-level record types of the canonical encoding. The order is fixed:
// changing it changes every signature.
const (
	typeMsgType      tlv.Type = 0
	typeMsg          tlv.Type = 1
	typeFee          tlv.Type = 2
	typeMemo         tlv.Type = 3
	typeNetworkID    tlv.Type = 4
	typeChainID      tlv.Type = 5
	typeTargetHeight tlv.Type = 6
	typeTimestamp    tlv.Type = 7
	typeCurve        tlv.Type = 8
	typePublicKey    tlv.Type = 9
	typeSignature    tlv.Type = 10
)

// recordSet accumulates TLV records in ascending type order. Values are
// copied so the records do not alias caller memory.
type recordSet struct {
	records []tlv.Record
}

func (r *recordSet) bytes(typ tlv.Type, b []byte) {
	v := append([]byte(nil), b...)
	r.records = append(r.records, tlv.MakePrimitiveRecord(typ, &v))
}

func (r *recordSet) str(typ tlv.Type, s string) {
	r.bytes(typ, []byte(s))
}

func (r *recordSet) u64(typ tlv.Type, n uint64) {
	v := n
	r.records = append(r.records, tlv.MakePrimitiveRecord(typ, &v))
}

func (r *recordSet) flag(typ tlv.Type, b bool) {
	v := b
	r.records = append(r.records, tlv.MakePrimitiveRecord(typ, &v))
}

// u64s encodes a list as consecutive big-endian uint64 values.
func (r *recordSet) u64s(typ tlv.Type, ns []uint64) {
	b := make([]byte, 0, 8*len(ns))
	for _, n := range ns {
		b = binary.BigEndian.AppendUint64(b, n)
	}
	r.bytes(typ, b)
}

func (r *recordSet) encode() ([]byte, error) {
	stream, err := tlv.NewStream(r.records...)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeMessage is the nested stream carried in record 1.
func encodeMessage(m Message) ([]byte, error) {
	var r recordSet
	m.records(&r)
	return r.encode()
}

// unsignedRecords appends records 0 through 7.
func (u *Unsigned) unsignedRecords(r *recordSet, timestamp uint64) error {
	msg, err := encodeMessage(u.Msg)
	if err != nil {
		return err
	}
	r.str(typeMsgType, string(u.Msg.Type()))
	r.bytes(typeMsg, msg)
	r.u64(typeFee, u.Fee)
	r.str(typeMemo, u.Memo)
	r.u64(typeNetworkID, u.NetworkID)
	r.u64(typeChainID, u.ChainID)
	r.u64(typeTargetHeight, u.TargetHeight)
	r.u64(typeTimestamp, timestamp)
	return nil
}

// SignBytes returns the bytes a signature covers for the given timestamp
// (unix microseconds).
func (u *Unsigned) SignBytes(timestamp uint64) ([]byte, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	var r recordSet
	if err := u.unsignedRecords(&r, timestamp); err != nil {
		return nil, err
	}
	return r.encode()
}
