// Package exchange is the composition root: the "exchange" value that owns
// one instance of every C1–C10 component and wires them together, replacing
// the teacher's global package-level singletons (pkg/app/perp.App held a
// single *App pointer reached from cmd/node/main.go) with an explicit,
// constructed value that cmd/exchanged and tests can both build fresh.
package exchange

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mn-exchange/engine/internal/catalog"
	"github.com/mn-exchange/engine/internal/hedge"
	"github.com/mn-exchange/engine/internal/journal"
	"github.com/mn-exchange/engine/internal/ledger"
	"github.com/mn-exchange/engine/internal/market"
	"github.com/mn-exchange/engine/internal/matching"
	"github.com/mn-exchange/engine/internal/readmodel"
	"github.com/mn-exchange/engine/internal/refrate"
	"github.com/mn-exchange/engine/internal/telemetry"
	"github.com/mn-exchange/engine/internal/venue"
)

// Options configures the pieces of Exchange that have no sensible universal
// default: where durable state lives and what the hedging loop talks to.
type Options struct {
	DataDir       string
	ReadModelPath string
	RingCapacity  int // must be a power of two
	Tiers         []market.Tier
	Adapter       venue.Adapter // nil selects venue.NewFake()
	Log           *zap.Logger
}

// Exchange owns one instance of every component and the background
// goroutines (cold journal writer, hedging loop ticker, exposure gauge
// ticker) that drive them.
type Exchange struct {
	Catalog   *catalog.Registry
	RefRate   *refrate.Feed
	Ledger    *ledger.Manager
	Engine    *matching.Engine
	ReadModel readmodel.Store
	Hedge     *hedge.Loop
	Venue     venue.Adapter
	Metrics   *telemetry.Metrics

	ring      *journal.Ring
	seq       *journal.Sequencer
	store     journal.Store
	writer    *journal.Writer
	human     *os.File
	log       *zap.Logger
	controllers map[string]*market.Controller
}

// New constructs every component, registers a market.Controller per already
// -registered catalog symbol, and wires the journal's cold-path sink into
// the read model. It does not start any goroutine; call Run for that.
func New(reg *catalog.Registry, opts Options) (*Exchange, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	ringCap := opts.RingCapacity
	if ringCap == 0 {
		ringCap = 4096
	}
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Wrap(err, "exchange: create data dir")
	}

	store, err := journal.OpenPebbleStore(filepath.Join(dataDir, "journal"))
	if err != nil {
		return nil, errors.Wrap(err, "exchange: open journal store")
	}

	humanPath := filepath.Join(dataDir, "journal.human.log")
	human, err := os.OpenFile(humanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		store.Close()
		return nil, errors.Wrap(err, "exchange: open human journal")
	}

	readModelPath := opts.ReadModelPath
	rm, err := readmodel.Open(readModelPath)
	if err != nil {
		store.Close()
		human.Close()
		return nil, errors.Wrap(err, "exchange: open read model")
	}

	adapter := opts.Adapter
	if adapter == nil {
		adapter = venue.NewFake()
	}

	ring := journal.NewRing(ringCap)
	seq := &journal.Sequencer{}
	mgr := ledger.NewManager(reg)
	eng := matching.NewEngine(reg, mgr, ring, seq, log)
	feed := refrate.New()
	metrics := telemetry.NewMetrics()

	writer := journal.NewWriter(ring, store, human, log)
	writer.SetSink(func(rec journal.Record) {
		if err := rm.ApplyRecord(rec); err != nil {
			log.Error("exchange: read model apply failed", zap.Error(err), zap.Uint64("seq", rec.Seq))
		}
	})

	ex := &Exchange{
		Catalog:     reg,
		RefRate:     feed,
		Ledger:      mgr,
		Engine:      eng,
		ReadModel:   rm,
		Venue:       adapter,
		Metrics:     metrics,
		ring:        ring,
		seq:         seq,
		store:       store,
		writer:      writer,
		human:       human,
		log:         log,
		controllers: make(map[string]*market.Controller),
	}

	for _, sym := range reg.List() {
		ctrl := market.NewController(sym.ID, feed, tiersFor(sym, opts.Tiers), log)
		ex.controllers[sym.ID] = ctrl
		eng.AttachController(sym.ID, ctrl)
	}

	ex.Hedge = hedge.NewLoop(reg, mgr, adapter, log)

	return ex, nil
}

// tiersFor builds a symbol's three-tier circuit-breaker ladder from its
// catalog-configured deviations. A non-nil override (a global operator/test
// override) takes precedence for every symbol; otherwise a symbol that
// leaves its levels unconfigured gets market.DefaultTiers.
func tiersFor(sym *catalog.Symbol, override []market.Tier) []market.Tier {
	if override != nil {
		return override
	}
	if sym.Level2Bps == 0 {
		return market.DefaultTiers()
	}
	return market.BuildTiers(sym.Level1Bps, sym.Level2Bps, sym.Level3Bps, sym.T1, sym.T2)
}

// Controller returns the per-symbol market controller, or nil if the symbol
// was registered after New ran (symbols are expected to be fully seeded
// before New is called; hot-adding a symbol is not supported yet).
func (e *Exchange) Controller(symbolID string) *market.Controller {
	return e.controllers[symbolID]
}

// Replay rebuilds the ledger's in-memory state from the durable journal.
// Call this once, before Run, to recover from a restart.
func (e *Exchange) Replay() (lastSeq uint64, count int, err error) {
	lastSeq, count, err = journal.Replay(e.store, e.Ledger)
	if err != nil {
		return lastSeq, count, errors.Wrap(err, "exchange: replay")
	}
	e.seq.SetIfHigher(lastSeq)
	return lastSeq, count, nil
}

// Run starts the cold journal writer, the hedging loop and the exposure
// gauge ticker, and blocks until ctx is cancelled or any of them returns an
// unexpected error. On return, all three have stopped.
func (e *Exchange) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.writer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "exchange: journal writer")
		}
		return nil
	})

	g.Go(func() error {
		if err := e.Hedge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "exchange: hedge loop")
		}
		return nil
	})

	g.Go(func() error {
		return e.runExposureGauge(ctx)
	})

	return g.Wait()
}

// runExposureGauge periodically publishes NetExposure per hedgeable symbol
// to Prometheus, decoupled from the hedging loop's own tick so a slow venue
// never delays the gauge.
func (e *Exchange) runExposureGauge(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var lastDropped uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, sym := range e.Catalog.Hedgeable() {
				e.Metrics.NetExposure.WithLabelValues(sym.ID).Set(float64(e.Ledger.NetExposure(sym.ID)))
			}
			if dropped := e.ring.Dropped(); dropped > lastDropped {
				e.Metrics.EventRingDropped.Add(float64(dropped - lastDropped))
				lastDropped = dropped
			}
		}
	}
}

// Close shuts down every owned resource. Call after Run's context is
// cancelled and Run has returned.
func (e *Exchange) Close() error {
	var errs []error
	if err := e.ReadModel.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.human.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Newf("exchange: close errors: %v", errs)
	}
	return nil
}
