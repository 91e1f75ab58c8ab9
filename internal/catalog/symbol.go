// Package catalog implements C1: symbol metadata, tick/lot rules, margin and
// fee schedule, mark price, and hedge policy. Grounded on the teacher's
// pkg/app/core/market package (Market struct + Validate), generalized to the
// exchange's hedge-policy and reference-unit fields from spec.md §3.
package catalog

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mn-exchange/engine/internal/money"
	"github.com/mn-exchange/engine/pkg/xerrors"
)

// HedgePolicy selects whether the symbol is auto-hedged against the external
// venue.
type HedgePolicy int8

const (
	HedgeNone HedgePolicy = iota
	HedgeDeltaNeutral
)

func (h HedgePolicy) String() string {
	if h == HedgeDeltaNeutral {
		return "delta-neutral"
	}
	return "none"
}

// Symbol is the static and slowly-mutating (mark price, active flag)
// metadata for one tradable instrument.
type Symbol struct {
	ID   string
	Name string
	Tag  string // category tag, e.g. "crypto", "fx"

	TickSize money.Price // minimum price increment, micro-quote
	LotSize  money.Qty   // minimum qty increment; qty must be an exact multiple
	MinQty   money.Qty
	MaxQty   money.Qty

	InitialMarginBps     money.Bps
	MaintenanceMarginBps money.Bps
	MakerFeeBps          money.Bps // may be negative (rebate)
	TakerFeeBps          money.Bps // must be non-negative

	HedgePolicy      HedgePolicy
	ExternalSymbol   string // required if HedgePolicy == HedgeDeltaNeutral
	USDMultiplier    int64  // scaled 1e-6, used to convert position notional to reference units
	HedgeThresholdQty money.Qty // the hedge loop acts only when |unhedged exposure| exceeds this

	MinNotional int64
	MaxLeverage int64 // effective notional/balance cap enforced at order admission

	// Level1Bps/Level2Bps/Level3Bps and T1/T2 configure this symbol's
	// tiered circuit breaker (internal/market.BuildTiers); Level2Bps also
	// sizes the admission price band. Zero means DefaultTiers applies.
	Level1Bps int64
	Level2Bps int64
	Level3Bps int64
	T1        time.Duration
	T2        time.Duration

	mu        sync.RWMutex
	markPrice money.Price
	active    bool
}

// Params bundles the construction-time fields of a Symbol (mirrors the
// teacher's market.MarketParams).
type Params struct {
	Name                 string
	Tag                  string
	TickSize             money.Price
	LotSize              money.Qty
	MinQty               money.Qty
	MaxQty               money.Qty
	InitialMarginBps     money.Bps
	MaintenanceMarginBps money.Bps
	MakerFeeBps          money.Bps
	TakerFeeBps          money.Bps
	HedgePolicy          HedgePolicy
	ExternalSymbol       string
	USDMultiplier        int64
	HedgeThresholdQty    money.Qty
	MinNotional          int64
	MaxLeverage          int64
	Level1Bps            int64
	Level2Bps            int64
	Level3Bps            int64
	T1                   time.Duration
	T2                   time.Duration
}

// New validates params and constructs an active Symbol.
func New(id string, p Params) (*Symbol, error) {
	lotSize := p.LotSize
	if lotSize == 0 {
		lotSize = 1
	}
	s := &Symbol{
		ID:                   id,
		Name:                 p.Name,
		Tag:                  p.Tag,
		TickSize:             p.TickSize,
		LotSize:              lotSize,
		MinQty:               p.MinQty,
		MaxQty:               p.MaxQty,
		InitialMarginBps:     p.InitialMarginBps,
		MaintenanceMarginBps: p.MaintenanceMarginBps,
		MakerFeeBps:          p.MakerFeeBps,
		TakerFeeBps:          p.TakerFeeBps,
		HedgePolicy:          p.HedgePolicy,
		ExternalSymbol:       p.ExternalSymbol,
		USDMultiplier:        p.USDMultiplier,
		HedgeThresholdQty:    p.HedgeThresholdQty,
		MinNotional:          p.MinNotional,
		MaxLeverage:          p.MaxLeverage,
		Level1Bps:            p.Level1Bps,
		Level2Bps:            p.Level2Bps,
		Level3Bps:            p.Level3Bps,
		T1:                   p.T1,
		T2:                   p.T2,
		active:               true,
	}
	if err := s.validate(); err != nil {
		return nil, errors.Wrapf(err, "catalog: invalid symbol %s", id)
	}
	return s, nil
}

func (s *Symbol) validate() error {
	if s.ID == "" {
		return errors.New("symbol id required")
	}
	if s.TickSize <= 0 {
		return xerrors.New(xerrors.CodeBadTick, "tick size must be positive")
	}
	if s.MinQty <= 0 || s.MaxQty <= 0 || s.MinQty > s.MaxQty {
		return xerrors.New(xerrors.CodeBadLot, "min/max qty invalid")
	}
	if s.LotSize <= 0 || int64(s.MinQty)%int64(s.LotSize) != 0 {
		return xerrors.New(xerrors.CodeBadLot, "lot size must be positive and divide min qty")
	}
	if s.TakerFeeBps < 0 {
		return errors.New("taker fee cannot be negative")
	}
	if s.InitialMarginBps <= 0 || s.MaintenanceMarginBps <= 0 {
		return errors.New("margin ratios must be positive")
	}
	if s.MaintenanceMarginBps > s.InitialMarginBps {
		return errors.New("maintenance margin cannot exceed initial margin")
	}
	if s.HedgePolicy == HedgeDeltaNeutral && s.ExternalSymbol == "" {
		return errors.New("delta-neutral hedge policy requires an external symbol")
	}
	return nil
}

// MarkPrice returns the current mark price.
func (s *Symbol) MarkPrice() money.Price {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.markPrice
}

// SetMarkPrice updates the mark price (called by the market controller on
// reference-rate change, §4.5).
func (s *Symbol) SetMarkPrice(p money.Price) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markPrice = p
}

// Active reports whether the symbol currently accepts new orders.
func (s *Symbol) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActive toggles the active flag (admin operation, not part of the
// matching hot path).
func (s *Symbol) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

// ValidateOrder checks tick/lot/notional rules for an incoming order. It does
// not check price bands or halt state — that is the market controller's job
// (C7), kept deliberately separate per spec.md §4.2's admission gate split.
func (s *Symbol) ValidateOrder(price money.Price, qty money.Qty) error {
	if !s.Active() {
		return xerrors.New(xerrors.CodeInactiveSymbol, "symbol %s is not active", s.ID)
	}
	if qty < s.MinQty || qty > s.MaxQty {
		return xerrors.New(xerrors.CodeQtyOutOfRange, "qty %d out of [%d,%d]", qty, s.MinQty, s.MaxQty)
	}
	if int64(qty)%int64(s.LotSize) != 0 {
		return xerrors.New(xerrors.CodeLotStepViolation, "qty %d not a multiple of lot size %d", qty, s.LotSize)
	}
	if price > 0 && int64(price)%int64(s.TickSize) != 0 {
		return xerrors.New(xerrors.CodeBadTick, "price %d not a multiple of tick %d", price, s.TickSize)
	}
	if price > 0 && s.MinNotional > 0 {
		if money.Notional(price, qty) < s.MinNotional {
			return xerrors.New(xerrors.CodeNotionalTooSmall, "notional below minimum %d", s.MinNotional)
		}
	}
	return nil
}

// RequiredInitialMargin returns qty * price * InitialMarginBps / 10000.
func (s *Symbol) RequiredInitialMargin(price money.Price, qty money.Qty) int64 {
	return money.ApplyBps(money.Notional(price, money.AbsQty(qty)), s.InitialMarginBps)
}

// RequiredMaintenanceMargin returns qty * price * MaintenanceMarginBps / 10000.
func (s *Symbol) RequiredMaintenanceMargin(price money.Price, qty money.Qty) int64 {
	return money.ApplyBps(money.Notional(price, money.AbsQty(qty)), s.MaintenanceMarginBps)
}

// ReferenceUnits converts a signed position notional at the given price into
// reference-currency (USD) units using the symbol's USD multiplier and the
// supplied (possibly stale) reference rate — see SPEC_FULL.md §4's resolution
// of the exposure-denominator open question.
func (s *Symbol) ReferenceUnits(qty money.Qty, price money.Price, referenceRate int64) int64 {
	if referenceRate == 0 {
		return 0
	}
	notional := money.Notional(price, qty)
	return (notional * s.USDMultiplier) / referenceRate
}
