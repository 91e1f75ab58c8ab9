// Package venue defines the external hedge-venue contract (C9): the
// boundary the hedging loop uses to offload net exposure to a real exchange,
// plus an in-memory fake used by tests and local runs. A disconnected
// adapter degrades hedging only — trading against the internal book
// continues unaffected, per spec.md's hedge-degradation requirement.
package venue

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mn-exchange/engine/internal/money"
	"github.com/mn-exchange/engine/pkg/xerrors"
)

// Quote is a push update of external bid/ask for one external symbol.
type Quote struct {
	ExternalSymbol string
	Bid, Ask       money.Price
	Nanos          int64
}

// Adapter is the contract any concrete venue integration must satisfy.
type Adapter interface {
	// ExecuteHedge sends a market order of size qty (signed: positive buys,
	// negative sells) in externalSymbol and returns the venue's order id.
	ExecuteHedge(ctx context.Context, externalSymbol string, qty money.Qty) (orderID string, err error)
	// QueryExternalHolding returns the venue's current signed position.
	QueryExternalHolding(ctx context.Context, externalSymbol string) (money.Qty, error)
	// Quotes returns a channel of push quote updates; closed when the
	// adapter disconnects.
	Quotes() <-chan Quote
	// Connected reports whether the adapter can currently place orders.
	Connected() bool
}

// Fake is an in-memory Adapter used by tests and local demo runs. It
// maintains its own holding ledger so ExecuteHedge calls are reflected in
// subsequent QueryExternalHolding calls, and can be forced into a
// disconnected state to exercise hedge-degradation behavior. Its Quotes
// channel is never closed: SetConnected(false) only makes ExecuteHedge and
// QueryExternalHolding fail.
type Fake struct {
	mu        sync.Mutex
	holdings  map[string]money.Qty
	connected bool
	quoteCh   chan Quote
	failNext  bool
}

func NewFake() *Fake {
	return &Fake{
		holdings:  make(map[string]money.Qty),
		connected: true,
		quoteCh:   make(chan Quote, 64),
	}
}

func (f *Fake) SetConnected(c bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = c
}

// FailNext forces the next ExecuteHedge call to fail, regardless of
// connectivity — used to exercise the hedging loop's retry policy.
func (f *Fake) FailNext() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = true
}

func (f *Fake) PushQuote(q Quote) {
	select {
	case f.quoteCh <- q:
	default:
	}
}

func (f *Fake) ExecuteHedge(ctx context.Context, externalSymbol string, qty money.Qty) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return "", xerrors.New(xerrors.CodeAdapterDisconnected, "venue: adapter disconnected")
	}
	if f.failNext {
		f.failNext = false
		return "", xerrors.New(xerrors.CodeHedgeFailed, "venue: simulated failure")
	}
	f.holdings[externalSymbol] += qty
	return uuid.NewString(), nil
}

func (f *Fake) QueryExternalHolding(ctx context.Context, externalSymbol string) (money.Qty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return 0, xerrors.New(xerrors.CodeAdapterDisconnected, "venue: adapter disconnected")
	}
	return f.holdings[externalSymbol], nil
}

func (f *Fake) Quotes() <-chan Quote { return f.quoteCh }

func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
