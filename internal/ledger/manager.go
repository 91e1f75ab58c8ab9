package ledger

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mn-exchange/engine/internal/catalog"
	"github.com/mn-exchange/engine/internal/money"
	"github.com/mn-exchange/engine/internal/orderbook"
	"github.com/mn-exchange/engine/pkg/xerrors"
)

// Fill is the ledger-facing view of a single side of a trade (one call per
// party; the matching engine calls ApplyFill twice per trade, once for the
// maker and once for the taker).
type Fill struct {
	Owner                common.Address
	Symbol               string
	Side                 orderbook.Side
	Qty                  money.Qty
	Price                money.Price
	Fee                  int64 // positive = debit, negative = rebate credit
	ReleaseFromOrderMargin int64 // amount to move OrderMargin -> Free before re-reserving position margin
	TimestampNano        int64
}

// Manager owns every Account and Position. All mutation happens while the
// caller holds that symbol's serialized region (spec.md §5); Manager's own
// mutex only protects the account map itself from concurrent cross-symbol
// access (deposits, queries).
type Manager struct {
	mu       sync.RWMutex
	accounts map[common.Address]*Account
	catalog  *catalog.Registry
}

func NewManager(reg *catalog.Registry) *Manager {
	return &Manager{
		accounts: make(map[common.Address]*Account),
		catalog:  reg,
	}
}

func (m *Manager) getOrCreateLocked(owner common.Address) *Account {
	acc, ok := m.accounts[owner]
	if !ok {
		acc = newAccount(owner)
		m.accounts[owner] = acc
	}
	return acc
}

// GetAccount returns the account for owner, creating it with a zero balance
// if it does not exist.
func (m *Manager) GetAccount(owner common.Address) *Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(owner)
}

// GetAccountReadOnly returns nil if the account has never been touched.
func (m *Manager) GetAccountReadOnly(owner common.Address) *Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accounts[owner]
}

// Deposit credits free balance.
func (m *Manager) Deposit(owner common.Address, amount int64) error {
	if amount <= 0 {
		return errors.Newf("ledger: deposit amount must be positive: %d", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc := m.getOrCreateLocked(owner)
	acc.Free += amount
	return nil
}

// Withdraw debits free balance; fails if it would drive free negative.
func (m *Manager) Withdraw(owner common.Address, amount int64) error {
	if amount <= 0 {
		return errors.Newf("ledger: withdraw amount must be positive: %d", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[owner]
	if !ok || acc.Free < amount {
		return xerrors.New(xerrors.CodeInsufficientBalance, "insufficient balance for withdrawal")
	}
	acc.Free -= amount
	return nil
}

// ReserveOrderMargin locks required = qty*price*InitialMarginBps/10000 from
// free into order margin on admission. Returns the amount reserved so the
// caller (matching engine) can release the exact amount later.
func (m *Manager) ReserveOrderMargin(owner common.Address, sym *catalog.Symbol, price money.Price, qty money.Qty) (int64, error) {
	required := sym.RequiredInitialMargin(price, qty)

	m.mu.Lock()
	defer m.mu.Unlock()
	acc := m.getOrCreateLocked(owner)
	if acc.Free < required {
		return 0, xerrors.New(xerrors.CodeInsufficientMargin, "have %d, need %d", acc.Free, required)
	}
	if sym.MaxLeverage > 0 {
		if err := checkEffectiveLeverage(acc, sym, price, qty); err != nil {
			return 0, err
		}
	}
	acc.Free -= required
	acc.OrderMargin += required
	return required, nil
}

// checkEffectiveLeverage grounds spec.md §5's leverage reject reason: total
// notional exposure across every position in other symbols (the position in
// the order's own symbol is not counted) plus the incoming order, divided
// by the account's total balance (free + already-reserved), must not exceed
// the symbol's configured MaxLeverage.
func checkEffectiveLeverage(acc *Account, sym *catalog.Symbol, price money.Price, qty money.Qty) error {
	totalNotional := money.Notional(price, money.AbsQty(qty))
	for symbolID, p := range acc.Positions {
		if symbolID == sym.ID {
			continue
		}
		totalNotional += money.Notional(p.Entry, money.AbsQty(p.Size))
	}
	balance := acc.Free + acc.Reserved()
	if balance <= 0 {
		return xerrors.New(xerrors.CodeLeverageExceeded, "no balance available against notional %d", totalNotional)
	}
	if totalNotional/balance > sym.MaxLeverage {
		return xerrors.New(xerrors.CodeLeverageExceeded, "effective leverage %dx exceeds max %dx", totalNotional/balance, sym.MaxLeverage)
	}
	return nil
}

// ReleaseOrderMargin returns a previously reserved (and unconsumed) amount
// from order margin back to free. Used on cancel or on residual discard for
// IOC/market orders.
func (m *Manager) ReleaseOrderMargin(owner common.Address, amount int64) error {
	if amount == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[owner]
	if !ok {
		return xerrors.New(xerrors.CodeUnknownOwner, "unknown owner")
	}
	if acc.OrderMargin < amount {
		amount = acc.OrderMargin // defensive clamp; should not happen if callers track correctly
	}
	acc.OrderMargin -= amount
	acc.Free += amount
	return nil
}

// ApplyFill updates one party's position and balance for a single fill leg.
// It first releases the fill's share of order margin back to free, then
// recomputes the position (VWAP on same-direction adds, realize-then-reopen
// on direction flips per spec.md §4.3), reserving the position's new
// required margin out of free, and finally debits/credits the fee.
func (m *Manager) ApplyFill(f Fill) error {
	sym, err := m.catalog.Get(f.Symbol)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.getOrCreateLocked(f.Owner)

	if f.ReleaseFromOrderMargin > 0 {
		rel := f.ReleaseFromOrderMargin
		if rel > acc.OrderMargin {
			rel = acc.OrderMargin
		}
		acc.OrderMargin -= rel
		acc.Free += rel
	}

	pos := acc.Positions[f.Symbol]
	if pos == nil {
		pos = &Position{Owner: f.Owner, Symbol: f.Symbol, OpenedAtNano: f.TimestampNano}
		acc.Positions[f.Symbol] = pos
	}

	sizeDelta := f.Qty
	if f.Side == orderbook.Sell {
		sizeDelta = -f.Qty
	}

	oldSize := pos.Size
	newSize := oldSize + sizeDelta

	switch {
	case newSize == 0:
		// full close: realize all remaining PnL, release all margin
		realized := closingPnL(pos.Entry, f.Price, oldSize)
		pos.RealizedPnL += realized
		acc.RealizedPnL += realized
		acc.Free += pos.Margin
		pos.Size = 0
		pos.Entry = 0
		pos.Margin = 0

	case sameDirection(oldSize, newSize):
		// add to position: recompute VWAP, grow margin to match new notional
		if oldSize == 0 {
			pos.Entry = f.Price
		} else {
			pos.Entry = vwap(pos.Entry, money.AbsQty(oldSize), f.Price, money.AbsQty(sizeDelta), money.AbsQty(newSize))
		}
		pos.Size = newSize
		required := sym.RequiredInitialMargin(pos.Entry, money.AbsQty(newSize))
		delta := required - pos.Margin
		if delta > 0 {
			if acc.Free < delta {
				return xerrors.New(xerrors.CodeInsufficientMargin, "cannot grow position margin: have %d need %d", acc.Free, delta)
			}
			acc.Free -= delta
		} else {
			acc.Free += -delta
		}
		pos.Margin = required

	default:
		// reduces, possibly flips through zero
		absOld := money.AbsQty(oldSize)
		absDelta := money.AbsQty(sizeDelta)
		closedSize := absOld
		if absDelta < absOld {
			closedSize = absDelta
		}
		realized := closingPnL(pos.Entry, f.Price, signOf(oldSize)*closedSize)
		pos.RealizedPnL += realized
		acc.RealizedPnL += realized

		if (oldSize > 0 && newSize < 0) || (oldSize < 0 && newSize > 0) {
			// flip: release all old margin, open a fresh position at fill price
			acc.Free += pos.Margin
			pos.Entry = f.Price
			pos.Size = newSize
			required := sym.RequiredInitialMargin(pos.Entry, money.AbsQty(newSize))
			if acc.Free < required {
				return xerrors.New(xerrors.CodeInsufficientMargin, "cannot open flipped position: have %d need %d", acc.Free, required)
			}
			acc.Free -= required
			pos.Margin = required
		} else {
			// pure reduction: release margin proportional to the reduced size
			released := proportional(pos.Margin, closedSize, absOld)
			acc.Free += released
			pos.Margin -= released
			pos.Size = newSize
		}
	}

	acc.Free -= f.Fee
	if f.Fee < 0 {
		acc.TotalFeesEarned += -f.Fee
	} else {
		acc.TotalFeesPaid += f.Fee
	}
	acc.TotalVolume += money.Notional(f.Price, f.Qty)
	acc.TradeCount++

	if pos.isFlat() {
		delete(acc.Positions, f.Symbol)
	}

	return nil
}

func signOf(q money.Qty) money.Qty {
	if q < 0 {
		return -1
	}
	return 1
}

func sameDirection(a, b money.Qty) bool {
	return (a >= 0 && b >= 0) || (a <= 0 && b <= 0)
}

// closingPnL returns (exit-entry)*closedSize, where closedSize carries the
// sign of the position being reduced (positive for long, negative for
// short) — matches the teacher's account/manager.go realizedPnL formula.
func closingPnL(entry, exit money.Price, closedSignedSize money.Qty) int64 {
	return int64(exit-entry) * int64(closedSignedSize)
}

func vwap(oldEntry money.Price, oldAbs money.Qty, fillPrice money.Price, fillAbs money.Qty, newAbs money.Qty) money.Price {
	if newAbs == 0 {
		return 0
	}
	return money.Price((int64(oldEntry)*int64(oldAbs) + int64(fillPrice)*int64(fillAbs)) / int64(newAbs))
}

func proportional(total int64, part, whole money.Qty) int64 {
	if whole == 0 {
		return 0
	}
	return (total * int64(part)) / int64(whole)
}

// MarkToMarket recomputes unrealized PnL for every position in symbol,
// across all accounts, at the given mark price.
func (m *Manager) MarkToMarket(symbol string, mark money.Price) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.accounts {
		pos := acc.Positions[symbol]
		if pos == nil || pos.Size == 0 {
			continue
		}
		pos.Unrealized = int64(mark-pos.Entry) * int64(pos.Size)
	}
}

// NetExposure sums signed position sizes across all accounts for a symbol.
func (m *Manager) NetExposure(symbol string) money.Qty {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total money.Qty
	for _, acc := range m.accounts {
		if pos := acc.Positions[symbol]; pos != nil {
			total += pos.Size
		}
	}
	return total
}

// Liquidate force-closes a user's position in symbol at the given mark
// price. Returns the realized PnL and any deficit transferred to the
// insurance fund (negative remaining free balance, clamped to zero).
func (m *Manager) Liquidate(owner common.Address, symbol string, mark money.Price) (realizedPnL int64, deficit int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[owner]
	if !ok {
		return 0, 0, xerrors.New(xerrors.CodeUnknownOwner, "unknown owner")
	}
	pos := acc.Positions[symbol]
	if pos == nil || pos.Size == 0 {
		return 0, 0, nil
	}

	realized := int64(mark-pos.Entry) * int64(pos.Size)
	pos.RealizedPnL += realized
	acc.RealizedPnL += realized
	acc.Free += realized + pos.Margin

	delete(acc.Positions, symbol)

	if acc.Free < 0 {
		deficit = -acc.Free
		acc.Free = 0
	}
	return realized, deficit, nil
}

// MaintenanceBreach reports whether owner's equity has fallen below the
// maintenance margin requirement across all open positions (spec.md §4.3).
func (m *Manager) MaintenanceBreach(owner common.Address, markPrices map[string]money.Price) (breach bool, equity int64, required int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accounts[owner]
	if !ok || len(acc.Positions) == 0 {
		return false, 0, 0
	}

	equity = acc.Free + acc.OrderMargin
	for symbol, pos := range acc.Positions {
		mark, have := markPrices[symbol]
		if !have {
			mark = pos.Entry
		}
		unrealized := int64(mark-pos.Entry) * int64(pos.Size)
		equity += pos.Margin + unrealized

		sym, err := m.catalog.Get(symbol)
		if err != nil {
			continue
		}
		required += sym.RequiredMaintenanceMargin(mark, pos.Size)
	}
	return equity < required, equity, required
}

// ListAccounts returns a snapshot slice of all accounts (for read-model
// export off the cold path).
func (m *Manager) ListAccounts() []*Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out
}
