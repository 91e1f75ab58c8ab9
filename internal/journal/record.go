// Package journal implements C6: the dual-speed accounting journal. The hot
// path (the matching engine's serialized region) pushes fixed-width Records
// into a single-producer/single-consumer Ring; a cold Writer goroutine
// drains the ring into a durable binary log (backed by the teacher's
// cockroachdb/pebble storage engine, see pkg/storage/pebble_store.go) and a
// human-readable double-entry text journal.
package journal

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

// Kind classifies the event recorded.
type Kind uint8

const (
	KindDeposit Kind = iota
	KindWithdraw
	KindTrade
	KindLiquidation
	KindFunding
	KindFee
)

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "deposit"
	case KindWithdraw:
		return "withdraw"
	case KindTrade:
		return "trade"
	case KindLiquidation:
		return "liquidation"
	case KindFunding:
		return "funding"
	case KindFee:
		return "fee"
	default:
		return "unknown"
	}
}

// RecordSize is the fixed, cache-line-aligned width of one binary record.
const RecordSize = 256

// Record is the fixed-width event layout described in spec.md §4.4: enough
// fields to reconstruct post-state without a full replay. Owner is the
// primary party of the event (the account being debited/credited);
// Counterparty is populated for trades (the other side of the fill).
type Record struct {
	Seq           uint64
	Nanos         int64
	Kind          Kind
	Symbol        string // truncated to 23 bytes on encode
	Owner         common.Address
	Counterparty  common.Address
	SignedQty     int64 // micro-lot, signed from Owner's perspective
	Price         int64 // micro-quote
	Fee           int64 // micro-quote, positive = debit
	PostFree      int64 // Owner's free balance after the event
	PostReserved  int64 // Owner's reserved balance after the event
}

// Encode writes r into a RecordSize-byte buffer.
func (r Record) Encode() [RecordSize]byte {
	var buf [RecordSize]byte
	w := bytes.NewBuffer(buf[:0])

	binary.Write(w, binary.BigEndian, r.Seq)
	binary.Write(w, binary.BigEndian, r.Nanos)
	w.WriteByte(byte(r.Kind))

	var symBuf [23]byte
	copy(symBuf[:], r.Symbol)
	w.Write(symBuf[:])

	w.Write(r.Owner.Bytes())
	w.Write(r.Counterparty.Bytes())

	binary.Write(w, binary.BigEndian, r.SignedQty)
	binary.Write(w, binary.BigEndian, r.Price)
	binary.Write(w, binary.BigEndian, r.Fee)
	binary.Write(w, binary.BigEndian, r.PostFree)
	binary.Write(w, binary.BigEndian, r.PostReserved)

	copy(buf[:], w.Bytes())
	return buf
}

// Decode parses a RecordSize-byte buffer back into a Record.
func Decode(buf [RecordSize]byte) (Record, error) {
	r := bytes.NewReader(buf[:])
	var rec Record

	if err := binary.Read(r, binary.BigEndian, &rec.Seq); err != nil {
		return rec, errors.Wrap(err, "journal: decode seq")
	}
	if err := binary.Read(r, binary.BigEndian, &rec.Nanos); err != nil {
		return rec, errors.Wrap(err, "journal: decode nanos")
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return rec, errors.Wrap(err, "journal: decode kind")
	}
	rec.Kind = Kind(kindByte)

	var symBuf [23]byte
	if _, err := r.Read(symBuf[:]); err != nil {
		return rec, errors.Wrap(err, "journal: decode symbol")
	}
	rec.Symbol = string(bytes.TrimRight(symBuf[:], "\x00"))

	var ownerBuf, cpBuf [20]byte
	if _, err := r.Read(ownerBuf[:]); err != nil {
		return rec, errors.Wrap(err, "journal: decode owner")
	}
	rec.Owner = common.BytesToAddress(ownerBuf[:])
	if _, err := r.Read(cpBuf[:]); err != nil {
		return rec, errors.Wrap(err, "journal: decode counterparty")
	}
	rec.Counterparty = common.BytesToAddress(cpBuf[:])

	for _, dst := range []*int64{&rec.SignedQty, &rec.Price, &rec.Fee, &rec.PostFree, &rec.PostReserved} {
		if err := binary.Read(r, binary.BigEndian, dst); err != nil {
			return rec, errors.Wrap(err, "journal: decode field")
		}
	}

	return rec, nil
}
