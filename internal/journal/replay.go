package journal

import (
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mn-exchange/engine/internal/ledger"
	"github.com/mn-exchange/engine/internal/money"
	"github.com/mn-exchange/engine/internal/orderbook"
)

// Replay re-applies every Record in a binary log, in sequence order, onto a
// fresh ledger.Manager. Testable Property 6 requires the resulting account
// state to match the live system bit-for-bit; Replay only reconstructs
// balances and positions (catalog/order-book state is not part of the
// journal and must be re-seeded by the caller before replaying).
func Replay(store Store, mgr *ledger.Manager) (lastSeq uint64, count int, err error) {
	err = store.ReplayFrom(0, func(rec Record) error {
		if rec.Seq <= lastSeq && count > 0 {
			return errors.Newf("journal: replay out of order: got seq %d after %d", rec.Seq, lastSeq)
		}
		if err := applyRecord(mgr, rec); err != nil {
			return errors.Wrapf(err, "journal: replay seq %d", rec.Seq)
		}
		lastSeq = rec.Seq
		count++
		return nil
	})
	return lastSeq, count, err
}

func applyRecord(mgr *ledger.Manager, rec Record) error {
	switch rec.Kind {
	case KindDeposit:
		return mgr.Deposit(rec.Owner, rec.SignedQty)
	case KindWithdraw:
		return mgr.Withdraw(rec.Owner, -rec.SignedQty)
	case KindTrade:
		side := orderbook.Buy
		qty := rec.SignedQty
		if qty < 0 {
			side = orderbook.Sell
			qty = -qty
		}
		return mgr.ApplyFill(ledger.Fill{
			Owner:         rec.Owner,
			Symbol:        rec.Symbol,
			Side:          side,
			Qty:           money.Qty(qty),
			Price:         money.Price(rec.Price),
			Fee:           rec.Fee,
			TimestampNano: rec.Nanos,
		})
	case KindLiquidation:
		_, _, err := mgr.Liquidate(rec.Owner, rec.Symbol, money.Price(rec.Price))
		return err
	case KindFunding, KindFee:
		// funding/fee-only records adjust free balance directly without
		// touching position size.
		if rec.Fee > 0 {
			return mgr.Withdraw(rec.Owner, rec.Fee)
		} else if rec.Fee < 0 {
			return mgr.Deposit(rec.Owner, -rec.Fee)
		}
		return nil
	default:
		return errors.Newf("journal: replay unknown kind %d", rec.Kind)
	}
}

// NewTradeRecord builds the binary Record for one leg of a trade, taken at
// the point ApplyFill has already updated the account so Post* reflects
// settled state.
func NewTradeRecord(seq uint64, nanos int64, symbol string, owner, counterparty common.Address, side orderbook.Side, qty money.Qty, price money.Price, fee, postFree, postReserved int64) Record {
	signed := int64(qty)
	if side == orderbook.Sell {
		signed = -signed
	}
	return Record{
		Seq: seq, Nanos: nanos, Kind: KindTrade, Symbol: symbol,
		Owner: owner, Counterparty: counterparty,
		SignedQty: signed, Price: int64(price), Fee: fee,
		PostFree: postFree, PostReserved: postReserved,
	}
}

// NewDepositRecord builds the binary Record for a credit to owner's free
// balance.
func NewDepositRecord(seq uint64, nanos int64, owner common.Address, amount, postFree int64) Record {
	return Record{Seq: seq, Nanos: nanos, Kind: KindDeposit, Owner: owner, SignedQty: amount, PostFree: postFree}
}

// NewWithdrawRecord builds the binary Record for a debit from owner's free
// balance. amount is positive; SignedQty is stored negative from owner's
// perspective to match writeHumanLine's sign convention.
func NewWithdrawRecord(seq uint64, nanos int64, owner common.Address, amount, postFree int64) Record {
	return Record{Seq: seq, Nanos: nanos, Kind: KindWithdraw, Owner: owner, SignedQty: -amount, PostFree: postFree}
}
