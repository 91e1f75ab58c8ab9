// Package market implements C7: a reference-rate-anchored admission price
// band, sized by level2 alone per spec.md §4.5, and a separate tiered
// circuit breaker. Each symbol owns one Controller, which wraps one
// sony/gobreaker.CircuitBreaker per tier — a tier's own deviation breach
// counts as a breaker failure, the breaker's own Open/HalfOpen state
// machine supplies the soft-halt-then-timed-auto-resume behavior spec.md
// §4.5 describes, and tripping the widest tier escalates to a session close
// that only a manual Reopen clears. The Band and the breakers are evaluated
// independently: an order inside the Band but outside a narrower tier is
// still admitted (it just may trip that tier's halt for later orders), and
// any tier mid-halt rejects every order, in-band or not.
package market

import (
	"sync"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mn-exchange/engine/internal/money"
	"github.com/mn-exchange/engine/internal/refrate"
	"github.com/mn-exchange/engine/pkg/xerrors"
)

type tierBreaker struct {
	tier Tier
	cb   *gobreaker.CircuitBreaker
}

// Controller is the per-symbol market-integrity gate.
type Controller struct {
	mu       sync.RWMutex
	symbolID string
	feed     *refrate.Feed
	bandBps  int64
	tiers    []tierBreaker
	closed   bool
	log      *zap.Logger
}

// NewController builds a Controller for symbolID, anchored on feed, with one
// breaker per tier (tightest first). The admission Band is sized by the
// tier named "level2"; if tiers carries no such tier, the widest tier's
// deviation is used instead.
func NewController(symbolID string, feed *refrate.Feed, tiers []Tier, log *zap.Logger) *Controller {
	c := &Controller{symbolID: symbolID, feed: feed, log: log, bandBps: bandDeviation(tiers)}
	for _, t := range tiers {
		tier := t
		settings := gobreaker.Settings{
			Name:        symbolID + "/" + tier.Name,
			MaxRequests: 1,
			Timeout:     tier.HaltDuration,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 1
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("market: circuit breaker state change",
					zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
				if to == gobreaker.StateOpen && tier.Name == lastTierName(tiers) {
					c.mu.Lock()
					c.closed = true
					c.mu.Unlock()
					log.Error("market: session closed after outermost tier tripped", zap.String("symbol", symbolID))
				}
			},
		}
		c.tiers = append(c.tiers, tierBreaker{tier: tier, cb: gobreaker.NewCircuitBreaker(settings)})
	}
	return c
}

func lastTierName(tiers []Tier) string {
	if len(tiers) == 0 {
		return ""
	}
	return tiers[len(tiers)-1].Name
}

// bandDeviation picks the deviation that sizes the admission Band: the tier
// named "level2" per spec.md §4.5, falling back to the widest configured
// tier if none is named that.
func bandDeviation(tiers []Tier) int64 {
	for _, t := range tiers {
		if t.Name == "level2" {
			return t.DeviationBps
		}
	}
	if len(tiers) > 0 {
		return tiers[len(tiers)-1].DeviationBps
	}
	return 0
}

// CheckAdmit enforces two independent things: the level2-wide admission
// Band (price-out-of-range if breached) and the tiered circuit breaker
// (every tier's own deviation feeds its breaker, and any breaker currently
// open fails every order fast with market-halted regardless of this order's
// own price). Returns nil only if no tier is mid-halt and price falls
// inside the Band.
func (c *Controller) CheckAdmit(price money.Price) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return xerrors.New(xerrors.CodeMarketHalted, "symbol %s session closed", c.symbolID)
	}

	rate := c.feed.Current()
	if !rate.Valid {
		// no reference rate yet: band and tiers cannot be evaluated, admit freely.
		return nil
	}
	anchor := money.Price(rate.Value)

	lower, upper := money.Bands(anchor, money.Bps(c.bandBps))
	var bandErr error
	if !money.InBand(price, lower, upper) {
		bandErr = xerrors.New(xerrors.CodePriceOutOfRange, "symbol %s price %d outside band [%d,%d]", c.symbolID, price, lower, upper)
	}

	for _, tb := range c.tiers {
		_, err := tb.cb.Execute(func() (interface{}, error) {
			lo, hi := money.Bands(anchor, money.Bps(tb.tier.DeviationBps))
			if !money.InBand(price, lo, hi) {
				return nil, xerrors.New(xerrors.CodePriceOutOfRange, "symbol %s price %d outside %s deviation [%d,%d]", c.symbolID, price, tb.tier.Name, lo, hi)
			}
			return nil, nil
		})
		if err == gobreaker.ErrOpenState {
			return xerrors.New(xerrors.CodeMarketHalted, "symbol %s halted on tier %s", c.symbolID, tb.tier.Name)
		}
	}
	return bandErr
}

// State reports the current state of each tier's breaker, tightest first.
func (c *Controller) State() []string {
	out := make([]string, 0, len(c.tiers))
	for _, tb := range c.tiers {
		out = append(out, tb.tier.Name+":"+tb.cb.State().String())
	}
	return out
}

// Closed reports whether the symbol's session has escalated to a full close.
func (c *Controller) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Reopen manually clears a session close, e.g. after operator review. It
// does not reset individual tier breakers; those recover on their own
// schedule once prices fall back in-band.
func (c *Controller) Reopen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = false
}
