// Package hedge implements C8: the delta-neutral hedging loop. On each
// tick it compares the ledger's internal net exposure for every
// hedge-policy symbol against the external venue's reported holding, and
// issues a correcting hedge order on the venue when the unhedged delta
// exceeds the symbol's configured threshold.
package hedge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mn-exchange/engine/internal/catalog"
	"github.com/mn-exchange/engine/internal/ledger"
	"github.com/mn-exchange/engine/internal/money"
	"github.com/mn-exchange/engine/internal/venue"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusFilled  Status = "filled"
	StatusFailed  Status = "failed"
)

// Event is one hedging attempt, kept in a bounded history ring for
// operator visibility and testing.
type Event struct {
	ID             string
	Symbol         string
	ExternalSymbol string
	Qty            money.Qty // signed, attempted venue order size
	Status         Status
	Nanos          int64
	Err            string
}

// Loop owns the mirrored view of external holdings and the attempt history.
// The mirror is advanced only when ExecuteHedge succeeds; a failed attempt
// leaves it unchanged, and every successful QueryExternalHolding poll
// overwrites it with the venue's reported holding.
type Loop struct {
	mu       sync.Mutex
	reg      *catalog.Registry
	ledger   *ledger.Manager
	adapter  venue.Adapter
	log      *zap.Logger
	interval time.Duration

	mirrored map[string]money.Qty // symbol id -> believed external holding
	history  []Event
	histCap  int
	histHead int
}

func NewLoop(reg *catalog.Registry, mgr *ledger.Manager, adapter venue.Adapter, log *zap.Logger) *Loop {
	return &Loop{
		reg:      reg,
		ledger:   mgr,
		adapter:  adapter,
		log:      log,
		interval: 2 * time.Second,
		mirrored: make(map[string]money.Qty),
		histCap:  256,
	}
}

// Run ticks until ctx is cancelled, reconciling every hedge-policy symbol
// on each tick.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, sym := range l.reg.Hedgeable() {
				l.reconcile(ctx, sym)
			}
		}
	}
}

// reconcile computes the unhedged delta for one symbol and, if it exceeds
// the configured threshold, issues a single correcting hedge order. The
// loop retries on the next tick if the delta is still over threshold —
// there is no in-call retry loop, matching the teacher's tick-driven
// reconciliation style rather than a blocking retry-until-success.
func (l *Loop) reconcile(ctx context.Context, sym *catalog.Symbol) {
	netExposure := l.ledger.NetExposure(sym.ID)

	external, err := l.adapter.QueryExternalHolding(ctx, sym.ExternalSymbol)
	l.mu.Lock()
	if err != nil {
		external = l.mirrored[sym.ID] // degraded: fall back to our last mirror
	} else {
		l.mirrored[sym.ID] = external // adapter reachable: mirror tracks ground truth
	}
	l.mu.Unlock()

	// Delta-neutral means external ≈ -netExposure; unhedged is the residual.
	unhedged := netExposure + external
	if money.AbsQty(unhedged) <= sym.HedgeThresholdQty {
		return
	}

	hedgeQty := -unhedged
	id := uuid.NewString()
	_, err = l.adapter.ExecuteHedge(ctx, sym.ExternalSymbol, hedgeQty)

	ev := Event{ID: id, Symbol: sym.ID, ExternalSymbol: sym.ExternalSymbol, Qty: hedgeQty, Nanos: time.Now().UnixNano()}
	if err != nil {
		ev.Status = StatusFailed
		ev.Err = err.Error()
		l.log.Warn("hedge: execute failed", zap.String("symbol", sym.ID), zap.Int64("qty", int64(hedgeQty)), zap.Error(err))
	} else {
		ev.Status = StatusFilled
		l.mu.Lock()
		l.mirrored[sym.ID] += hedgeQty // mirror advances only on a successful hedge
		l.mu.Unlock()
		l.log.Info("hedge: executed", zap.String("symbol", sym.ID), zap.Int64("qty", int64(hedgeQty)))
	}
	l.record(ev)
}

func (l *Loop) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.history) < l.histCap {
		l.history = append(l.history, ev)
		return
	}
	l.history[l.histHead] = ev
	l.histHead = (l.histHead + 1) % l.histCap
}

// History returns a snapshot of the bounded hedge-attempt ring, oldest
// first.
func (l *Loop) History() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.history) < l.histCap {
		out := make([]Event, len(l.history))
		copy(out, l.history)
		return out
	}
	out := make([]Event, l.histCap)
	copy(out, l.history[l.histHead:])
	copy(out[l.histCap-l.histHead:], l.history[:l.histHead])
	return out
}

// UnhedgedExposure reports the current believed unhedged delta for symbol,
// using the last-known mirror (no network call).
func (l *Loop) UnhedgedExposure(symbolID string) money.Qty {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ledger.NetExposure(symbolID) + l.mirrored[symbolID]
}
