// Package ledger implements C5: per-user accounts, positions, margin
// reservation, fill application, mark-to-market, liquidation, and aggregate
// exposure. Grounded on the teacher's pkg/app/core/account package
// (Account/Position/AccountManager), generalized from the teacher's
// simplified "lock collateral, unlock after match" flow to the full
// order-margin/position-margin split spec.md §4.3 requires.
package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/mn-exchange/engine/internal/money"
)

// Position is one user's open exposure in one symbol.
type Position struct {
	Owner        common.Address
	Symbol       string
	Size         money.Qty   // signed: positive long, negative short
	Entry        money.Price // volume-weighted entry price
	Margin       int64       // margin reserved for this position
	RealizedPnL  int64       // cumulative realized PnL for this position's lifetime
	Unrealized   int64       // recomputed by MarkToMarket
	OpenedAtNano int64
}

func (p *Position) isFlat() bool { return p.Size == 0 }

// Account is one user's balances across all symbols.
type Account struct {
	Owner       common.Address
	Free        int64 // non-negative
	OrderMargin int64 // locked for resting (unfilled) orders, not yet positions

	Positions map[string]*Position

	// Cumulative statistics, supplemented from the teacher's Account struct.
	RealizedPnL     int64
	TotalFeesPaid   int64
	TotalFeesEarned int64
	TotalVolume     int64
	TradeCount      int64
}

func newAccount(owner common.Address) *Account {
	return &Account{Owner: owner, Positions: make(map[string]*Position)}
}

// PositionMargin returns the sum of margin reserved across all open
// positions (excludes OrderMargin — the quantity Testable Property 4
// checks).
func (a *Account) PositionMargin() int64 {
	var total int64
	for _, p := range a.Positions {
		total += p.Margin
	}
	return total
}

// Reserved returns total locked balance: order margin plus position margin.
func (a *Account) Reserved() int64 {
	return a.OrderMargin + a.PositionMargin()
}

// AvailableBalance returns balance free for new order margin reservations.
func (a *Account) AvailableBalance() int64 {
	return a.Free
}

// Equity returns free + reserved + sum of unrealized PnL (mark-to-mark).
func (a *Account) Equity() int64 {
	equity := a.Free + a.Reserved()
	for _, p := range a.Positions {
		equity += p.Unrealized
	}
	return equity
}

// GetPosition returns the position for symbol, or nil if none is open.
func (a *Account) GetPosition(symbol string) *Position {
	return a.Positions[symbol]
}
