package journal

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// Store is the durable sink for binary Records, keyed by sequence number so
// that replay (spec.md §6) can scan from offset zero in order. Grounded on
// the teacher's pkg/storage/pebble_store.go key-per-entity convention.
type Store interface {
	Append(rec Record, sync bool) error
	ReplayFrom(seq uint64, fn func(Record) error) error
	LastSequence() (uint64, bool, error)
	Close() error
}

// PebbleStore is the binary event log, one pebble.DB per data directory.
type PebbleStore struct {
	db *pebble.DB
}

func OpenPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "journal: open pebble store at %s", dir)
	}
	return &PebbleStore{db: db}, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 9)
	key[0] = 'e' // event namespace prefix
	binary.BigEndian.PutUint64(key[1:], seq)
	return key
}

func (s *PebbleStore) Append(rec Record, sync bool) error {
	enc := rec.Encode()
	opt := pebble.NoSync
	if sync {
		opt = pebble.Sync
	}
	if err := s.db.Set(seqKey(rec.Seq), enc[:], opt); err != nil {
		return errors.Wrapf(err, "journal: append seq %d", rec.Seq)
	}
	return nil
}

// ReplayFrom scans the log from seq (inclusive) to the end, invoking fn in
// order. A non-nil fn error aborts the scan.
func (s *PebbleStore) ReplayFrom(seq uint64, fn func(Record) error) error {
	lower := seqKey(seq)
	upper := []byte{'f'} // exclusive upper bound: one past the 'e' namespace
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return errors.Wrap(err, "journal: open replay iterator")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var buf [RecordSize]byte
		copy(buf[:], iter.Value())
		rec, err := Decode(buf)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LastSequence returns the highest sequence number durably stored, if any.
func (s *PebbleStore) LastSequence() (uint64, bool, error) {
	upper := []byte{'f'}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: []byte{'e'}, UpperBound: upper})
	if err != nil {
		return 0, false, errors.Wrap(err, "journal: open last-sequence iterator")
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, false, nil
	}
	var buf [RecordSize]byte
	copy(buf[:], iter.Value())
	rec, err := Decode(buf)
	if err != nil {
		return 0, false, err
	}
	return rec.Seq, true, nil
}

func (s *PebbleStore) Close() error {
	return errors.Wrap(s.db.Close(), "journal: close pebble store")
}
