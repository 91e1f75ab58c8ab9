// Package readmodel implements C10: an eventually-consistent query-side
// store fed exclusively off the journal's cold path (never from the hot
// matching path). Grounded on the teacher-adjacent pack's modernc.org/sqlite
// usage (stadam23-Eve-flipper's internal/db), generalized from that repo's
// versioned ALTER-TABLE migration style down to a single schema version
// since this store has no legacy history to carry forward.
package readmodel

import (
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	_ "modernc.org/sqlite"

	"github.com/mn-exchange/engine/internal/journal"
)

// TradeRow is one persisted trade leg, from a single owner's perspective.
type TradeRow struct {
	Seq          uint64
	Nanos        int64
	Symbol       string
	Owner        string
	Counterparty string
	SignedQty    int64
	Price        int64
	Fee          int64
}

// BalanceRow is the last-known snapshot of one account's ledger state, as
// observed through the journal.
type BalanceRow struct {
	Owner        string
	Free         int64
	Reserved     int64
	UpdatedAtNanos int64
}

// Store is the contract consumed by the API's read side.
type Store interface {
	ApplyRecord(rec journal.Record) error
	ListTrades(owner common.Address, limit int) ([]TradeRow, error)
	Balance(owner common.Address) (BalanceRow, bool, error)
	Close() error
}

// SQLiteStore is the concrete, embeddable Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies schema
// migrations. An empty path opens a private in-memory database, convenient
// for tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(err, "readmodel: open sqlite")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "readmodel: ping sqlite")
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "readmodel: migrate")
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			seq           INTEGER PRIMARY KEY,
			nanos         INTEGER NOT NULL,
			symbol        TEXT NOT NULL,
			owner         TEXT NOT NULL,
			counterparty  TEXT NOT NULL,
			signed_qty    INTEGER NOT NULL,
			price         INTEGER NOT NULL,
			fee           INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_owner ON trades(owner, seq DESC);

		CREATE TABLE IF NOT EXISTS balances (
			owner           TEXT PRIMARY KEY,
			free            INTEGER NOT NULL,
			reserved        INTEGER NOT NULL,
			updated_at_nanos INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS audit_log (
			seq     INTEGER PRIMARY KEY,
			nanos   INTEGER NOT NULL,
			kind    TEXT NOT NULL,
			owner   TEXT NOT NULL,
			symbol  TEXT NOT NULL,
			detail  TEXT NOT NULL
		);
	`)
	return err
}

// ApplyRecord folds one journal.Record into the read model: every record
// updates the owner's last-known balance snapshot, trade records also
// insert a trades row, and every record is mirrored into the audit log.
func (s *SQLiteStore) ApplyRecord(rec journal.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "readmodel: begin tx")
	}
	defer tx.Rollback()

	owner := rec.Owner.Hex()

	if _, err := tx.Exec(`
		INSERT INTO balances (owner, free, reserved, updated_at_nanos) VALUES (?, ?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET free = excluded.free, reserved = excluded.reserved, updated_at_nanos = excluded.updated_at_nanos
	`, owner, rec.PostFree, rec.PostReserved, rec.Nanos); err != nil {
		return errors.Wrap(err, "readmodel: upsert balance")
	}

	if rec.Kind == journal.KindTrade {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO trades (seq, nanos, symbol, owner, counterparty, signed_qty, price, fee)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.Seq, rec.Nanos, rec.Symbol, owner, rec.Counterparty.Hex(), rec.SignedQty, rec.Price, rec.Fee); err != nil {
			return errors.Wrap(err, "readmodel: insert trade")
		}
	}

	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO audit_log (seq, nanos, kind, owner, symbol, detail) VALUES (?, ?, ?, ?, ?, ?)
	`, rec.Seq, rec.Nanos, rec.Kind.String(), owner, rec.Symbol, auditDetail(rec)); err != nil {
		return errors.Wrap(err, "readmodel: insert audit log")
	}

	return errors.Wrap(tx.Commit(), "readmodel: commit")
}

func auditDetail(rec journal.Record) string {
	return time.Unix(0, rec.Nanos).UTC().Format(time.RFC3339Nano)
}

// ListTrades returns up to limit trades for owner, most recent first.
func (s *SQLiteStore) ListTrades(owner common.Address, limit int) ([]TradeRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT seq, nanos, symbol, owner, counterparty, signed_qty, price, fee
		FROM trades WHERE owner = ? ORDER BY seq DESC LIMIT ?
	`, owner.Hex(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "readmodel: list trades")
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var t TradeRow
		if err := rows.Scan(&t.Seq, &t.Nanos, &t.Symbol, &t.Owner, &t.Counterparty, &t.SignedQty, &t.Price, &t.Fee); err != nil {
			return nil, errors.Wrap(err, "readmodel: scan trade")
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "readmodel: iterate trades")
}

// Balance returns the last-known balance snapshot for owner.
func (s *SQLiteStore) Balance(owner common.Address) (BalanceRow, bool, error) {
	var b BalanceRow
	err := s.db.QueryRow(`SELECT owner, free, reserved, updated_at_nanos FROM balances WHERE owner = ?`, owner.Hex()).
		Scan(&b.Owner, &b.Free, &b.Reserved, &b.UpdatedAtNanos)
	if err == sql.ErrNoRows {
		return BalanceRow{}, false, nil
	}
	if err != nil {
		return BalanceRow{}, false, errors.Wrap(err, "readmodel: query balance")
	}
	return b, true, nil
}

func (s *SQLiteStore) Close() error {
	return errors.Wrap(s.db.Close(), "readmodel: close")
}
