package journal

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Sequencer hands out gap-free, monotonically increasing sequence numbers.
// A single Sequencer is shared across all per-symbol regions so that the
// binary log has one total order even though matching runs symbol-parallel.
type Sequencer struct {
	n atomic.Uint64
}

func (s *Sequencer) Next() uint64 { return s.n.Add(1) }

// SetIfHigher fast-forwards the sequencer past seq, used after Replay so the
// next Next() call cannot collide with a sequence number already durable in
// the store.
func (s *Sequencer) SetIfHigher(seq uint64) {
	for {
		cur := s.n.Load()
		if cur >= seq {
			return
		}
		if s.n.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// Writer is the cold-path consumer: it drains a Ring into a durable Store
// (binary, keyed by sequence) and a human-readable double-entry text
// journal, batching fsyncs rather than syncing every record. Grounded on the
// teacher's pkg/storage background-flush goroutine pattern, generalized from
// a single key-value writer to the dual binary+text sink spec.md §4.4 and §6
// require.
type Writer struct {
	ring      *Ring
	store     Store
	human     io.Writer
	log       *zap.Logger
	batchSize int
	flushEvery time.Duration

	// sink, if set, receives every durably-appended record — the hook the
	// read model (C10) uses to stay eventually consistent off the cold path
	// only, never from the hot matching path.
	sink func(Record)

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewWriter(ring *Ring, store Store, human io.Writer, log *zap.Logger) *Writer {
	return &Writer{
		ring:       ring,
		store:      store,
		human:      human,
		log:        log,
		batchSize:  256,
		flushEvery: 50 * time.Millisecond,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// SetSink installs the callback invoked once per durably-appended record.
func (w *Writer) SetSink(sink func(Record)) { w.sink = sink }

// Run drains the ring until ctx is cancelled or Stop is called, then drains
// whatever remains before returning — spec.md §6's clean-shutdown guarantee.
func (w *Writer) Run(ctx context.Context) error {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case <-w.stopCh:
			w.drain()
			return nil
		case <-ticker.C:
			w.drainBatch()
		}
	}
}

// Stop requests a clean shutdown and blocks until the final drain completes.
func (w *Writer) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// drain empties the ring fully, used on shutdown.
func (w *Writer) drain() {
	for w.drainBatch() > 0 {
	}
}

// drainBatch pulls up to batchSize records off the ring, writes them to the
// binary store (fsync only on the final record of the batch) and appends a
// human-readable line per record. Returns the number processed.
func (w *Writer) drainBatch() int {
	var batch []Record
	for len(batch) < w.batchSize {
		rec, ok := w.ring.Pop()
		if !ok {
			break
		}
		batch = append(batch, rec)
	}

	for i, rec := range batch {
		sync := i == len(batch)-1
		if err := w.store.Append(rec, sync); err != nil {
			w.log.Error("journal: append failed", zap.Error(err), zap.Uint64("seq", rec.Seq))
		}
		writeHumanLine(w.human, rec)
		if w.sink != nil {
			w.sink(rec)
		}
	}

	if dropped := w.ring.Dropped(); dropped > 0 {
		w.log.Warn("journal: events dropped by full ring", zap.Uint64("total_dropped", dropped))
	}
	return len(batch)
}

// writeHumanLine renders exactly one text line for a single Record. A trade
// leg's line carries owner, counterparty, signed qty, price, that party's fee
// and its post-trade balances; no separate fee-income credit line is written.
func writeHumanLine(w io.Writer, r Record) {
	ts := time.Unix(0, r.Nanos).UTC().Format(time.RFC3339Nano)
	switch r.Kind {
	case KindTrade:
		fmt.Fprintf(w, "%s seq=%d TRADE %s owner=%s vs=%s qty=%d price=%d fee=%d post_free=%d post_reserved=%d\n",
			ts, r.Seq, r.Symbol, r.Owner.Hex(), r.Counterparty.Hex(), r.SignedQty, r.Price, r.Fee, r.PostFree, r.PostReserved)
	case KindDeposit:
		fmt.Fprintf(w, "%s seq=%d DEPOSIT owner=%s amount=%d post_free=%d\n",
			ts, r.Seq, r.Owner.Hex(), r.SignedQty, r.PostFree)
	case KindWithdraw:
		fmt.Fprintf(w, "%s seq=%d WITHDRAW owner=%s amount=%d post_free=%d\n",
			ts, r.Seq, r.Owner.Hex(), -r.SignedQty, r.PostFree)
	case KindLiquidation:
		fmt.Fprintf(w, "%s seq=%d LIQUIDATION %s owner=%s qty=%d price=%d post_free=%d\n",
			ts, r.Seq, r.Symbol, r.Owner.Hex(), r.SignedQty, r.Price, r.PostFree)
	case KindFunding:
		fmt.Fprintf(w, "%s seq=%d FUNDING %s owner=%s amount=%d post_free=%d\n",
			ts, r.Seq, r.Symbol, r.Owner.Hex(), r.SignedQty, r.PostFree)
	case KindFee:
		fmt.Fprintf(w, "%s seq=%d FEE %s owner=%s amount=%d post_free=%d\n",
			ts, r.Seq, r.Symbol, r.Owner.Hex(), r.Fee, r.PostFree)
	default:
		fmt.Fprintf(w, "%s seq=%d UNKNOWN kind=%d\n", ts, r.Seq, r.Kind)
	}
}
