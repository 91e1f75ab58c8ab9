package matching

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/mn-exchange/engine/internal/catalog"
	"github.com/mn-exchange/engine/internal/journal"
	"github.com/mn-exchange/engine/internal/ledger"
	"github.com/mn-exchange/engine/internal/market"
	"github.com/mn-exchange/engine/internal/money"
	"github.com/mn-exchange/engine/internal/orderbook"
	"github.com/mn-exchange/engine/pkg/xerrors"
)

const sentinelMaxPrice = money.Price(math.MaxInt64)

// Engine is the composition of the per-symbol order books with the shared
// ledger, journal, and market controller. Submit and Cancel each run under
// the target symbol's region lock, so book, ledger, and journal mutations
// for one order are atomic with respect to every other order on that
// symbol; different symbols proceed fully in parallel (spec.md §5).
type Engine struct {
	catalog  *catalog.Registry
	ledger   *ledger.Manager
	ring     *journal.Ring
	seq      *journal.Sequencer
	log      *zap.Logger
	nextID   atomic.Int64

	booksMu    sync.RWMutex
	books      map[string]*orderbook.Book
	controllers map[string]*market.Controller

	regionMu sync.Mutex
	regions  map[string]*sync.Mutex

	// pushMu serializes journal.Ring.Push across symbols: the ring is
	// single-producer, but region locks only serialize matching per symbol,
	// so two symbols can settle concurrently and both want to push. This
	// lock is held only for the duration of one Push call, never across a
	// region lock, so cross-symbol parallelism in matching itself is
	// untouched.
	pushMu sync.Mutex

	metaMu     sync.Mutex
	openOrders map[int64]*meta
	clientIDs  map[string]int64 // "owner|symbol|clientID" -> orderID, de-dup guard
}

func NewEngine(reg *catalog.Registry, mgr *ledger.Manager, ring *journal.Ring, seq *journal.Sequencer, log *zap.Logger) *Engine {
	return &Engine{
		catalog:     reg,
		ledger:      mgr,
		ring:        ring,
		seq:         seq,
		log:         log,
		books:       make(map[string]*orderbook.Book),
		controllers: make(map[string]*market.Controller),
		regions:     make(map[string]*sync.Mutex),
		openOrders:  make(map[int64]*meta),
		clientIDs:   make(map[string]int64),
	}
}

// AttachController registers the market controller for symbolID, used to
// gate admission against price bands and halts. A symbol with no attached
// controller admits freely (bands disabled), used in tests and for symbols
// without a reference-rate feed.
func (e *Engine) AttachController(symbolID string, c *market.Controller) {
	e.booksMu.Lock()
	defer e.booksMu.Unlock()
	e.controllers[symbolID] = c
}

// PushJournal appends rec to the shared journal ring under the same lock
// settleLeg uses, so callers outside the matching hot path (deposits,
// withdrawals) can share the ring's single logical producer without racing
// a concurrently-settling symbol. Returns false if the ring was full.
func (e *Engine) PushJournal(rec journal.Record) bool {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()
	return e.ring.Push(rec)
}

// NextSeq hands out the next journal sequence number, shared with settleLeg
// so deposit/withdraw records interleave correctly with trade records in
// the single global sequence.
func (e *Engine) NextSeq() uint64 { return e.seq.Next() }

func (e *Engine) bookFor(symbolID string) *orderbook.Book {
	e.booksMu.Lock()
	defer e.booksMu.Unlock()
	b, ok := e.books[symbolID]
	if !ok {
		b = orderbook.New()
		e.books[symbolID] = b
	}
	return b
}

func (e *Engine) regionFor(symbolID string) *sync.Mutex {
	e.regionMu.Lock()
	defer e.regionMu.Unlock()
	r, ok := e.regions[symbolID]
	if !ok {
		r = &sync.Mutex{}
		e.regions[symbolID] = r
	}
	return r
}

// BBO returns the best bid/ask for symbolID.
func (e *Engine) BBO(symbolID string) (bid, ask money.Price, hasBid, hasAsk bool) {
	b := e.bookFor(symbolID)
	bid, hasBid = b.BestBid()
	ask, hasAsk = b.BestAsk()
	return
}

// Depth returns up to n price levels per side for symbolID.
func (e *Engine) Depth(symbolID string, n int) (bids, asks []orderbook.PriceLevel) {
	return e.bookFor(symbolID).Depth(n)
}

// Submit admits and, where it crosses, executes req. The full admission and
// matching sequence runs under req.Symbol's region lock.
func (e *Engine) Submit(req Request) (Result, error) {
	sym, err := e.catalog.Get(req.Symbol)
	if err != nil {
		return Result{}, err
	}
	if req.Side != orderbook.Buy && req.Side != orderbook.Sell {
		return Result{}, xerrors.New(xerrors.CodeInvalidSide, "invalid side %d", req.Side)
	}

	region := e.regionFor(req.Symbol)
	region.Lock()
	defer region.Unlock()

	if err := e.checkDuplicateClientID(req); err != nil {
		return Result{}, err
	}

	validatePrice := req.Price
	if req.Kind == KindMarket {
		validatePrice = 0
	}
	if err := sym.ValidateOrder(validatePrice, req.Qty); err != nil {
		return Result{}, err
	}

	book := e.bookFor(req.Symbol)

	priceBound, estimatePrice, err := e.resolvePriceBound(book, sym, req)
	if err != nil {
		return Result{}, err
	}

	if ctrl := e.controllerFor(req.Symbol); ctrl != nil && req.Kind != KindMarket {
		if err := ctrl.CheckAdmit(req.Price); err != nil {
			return Result{}, err
		}
	}

	if req.Kind == KindPostOnly && book.Crosses(req.Side, req.Price) {
		return Result{}, xerrors.New(xerrors.CodePostOnlyWouldCross, "post-only order would cross the book")
	}
	if req.Kind == KindFOK && !fokSatisfiable(book, req.Side, req.Price, req.Qty) {
		return Result{}, xerrors.New(xerrors.CodeFOKUnsatisfiable, "insufficient resting liquidity to fill FOK order")
	}

	reserved, err := e.ledger.ReserveOrderMargin(req.Owner, sym, estimatePrice, req.Qty)
	if err != nil {
		return Result{}, err
	}

	id := e.nextID.Add(1)
	now := nowNanos()
	m := &meta{
		ID: id, ClientID: req.ClientID, Owner: req.Owner, Symbol: req.Symbol,
		Side: req.Side, Kind: req.Kind, Price: req.Price, OriginalQty: req.Qty,
		ReservedMargin: reserved, Status: StatusOpen, AdmittedAt: now,
	}
	e.registerMeta(req, m)

	fills := e.match(book, sym, m, priceBound)

	result := Result{OrderID: id, Fills: fills, Filled: m.FilledQty}

	switch {
	case m.remaining() == 0:
		m.Status = StatusFilled
		e.closeMeta(m)
	case req.Kind == KindLimit || req.Kind == KindPostOnly:
		book.Insert(&orderbook.RestingOrder{ID: id, Owner: req.Owner, Side: req.Side, Price: req.Price, Remaining: m.remaining(), AdmittedAt: now})
		if m.FilledQty > 0 {
			m.Status = StatusPartiallyFilled
		} else {
			m.Status = StatusOpen
		}
	default:
		// IOC/market/FOK residual is discarded, never rests.
		e.releaseRemaining(m)
		if m.FilledQty > 0 {
			m.Status = StatusPartiallyCancelled
		} else {
			m.Status = StatusCancelled
		}
		e.closeMeta(m)
	}
	result.Status = m.Status
	return result, nil
}

// resolvePriceBound returns the price used for book.Crosses comparisons and
// the price used to estimate margin reservation. Limit-family orders use
// their own limit price for both. Market orders use a sentinel for the
// crossing bound and the current best opposite price (or mark price) for
// the margin estimate.
func (e *Engine) resolvePriceBound(book *orderbook.Book, sym *catalog.Symbol, req Request) (bound, estimate money.Price, err error) {
	if req.Kind != KindMarket {
		return req.Price, req.Price, nil
	}
	if req.Side == orderbook.Buy {
		bound = sentinelMaxPrice
		if ask, ok := book.BestAsk(); ok {
			estimate = ask
		}
	} else {
		bound = 0
		if bid, ok := book.BestBid(); ok {
			estimate = bid
		}
	}
	if estimate == 0 {
		estimate = sym.MarkPrice()
	}
	if estimate == 0 {
		return 0, 0, xerrors.New(xerrors.CodeNoLiquidity, "no liquidity or mark price to price market order for %s", req.Symbol)
	}
	return bound, estimate, nil
}

func (e *Engine) controllerFor(symbolID string) *market.Controller {
	e.booksMu.RLock()
	defer e.booksMu.RUnlock()
	return e.controllers[symbolID]
}

func fokSatisfiable(book *orderbook.Book, side orderbook.Side, limit money.Price, qty money.Qty) bool {
	bids, asks := book.Depth(0)
	var available money.Qty
	if side == orderbook.Buy {
		for _, lv := range asks {
			if lv.Price > limit {
				break
			}
			available += lv.Qty
			if available >= qty {
				return true
			}
		}
		return false
	}
	for _, lv := range bids {
		if lv.Price < limit {
			break
		}
		available += lv.Qty
		if available >= qty {
			return true
		}
	}
	return false
}

// match runs the core price-time priority loop: consume the resting book's
// best opposite level until the incoming order's remaining quantity is
// exhausted or the book stops crossing priceBound.
func (e *Engine) match(book *orderbook.Book, sym *catalog.Symbol, taker *meta, priceBound money.Price) []Fill {
	makerSide := orderbook.MakerSide(taker.Side)
	var fills []Fill

	for taker.remaining() > 0 && book.Crosses(taker.Side, priceBound) {
		makerOrder, matched, makerDone, ok := book.ConsumeHead(makerSide, taker.remaining())
		if !ok || matched == 0 {
			break
		}
		tradePrice := makerOrder.Price
		now := nowNanos()

		makerMeta := e.lookupMeta(makerOrder.ID)
		e.settleLeg(sym, taker, tradePrice, matched, makerOrder.Owner, now, true)
		if makerMeta != nil {
			e.settleLeg(sym, makerMeta, tradePrice, matched, taker.Owner, now, false)
			if makerDone {
				makerMeta.Status = StatusFilled
				e.closeMeta(makerMeta)
			} else {
				makerMeta.Status = StatusPartiallyFilled
			}
		}

		fills = append(fills, Fill{
			TakerOrderID: taker.ID, MakerOrderID: makerOrder.ID, Symbol: sym.ID,
			Taker: taker.Owner, Maker: makerOrder.Owner, TakerSide: taker.Side,
			Price: tradePrice, Qty: matched, Nanos: now,
		})
		sym.SetMarkPrice(tradePrice)
	}
	return fills
}

// settleLeg applies one party's side of a fill to the ledger and journal: it
// releases the proportional share of that order's original reservation,
// lets ApplyFill reprice the position at tradePrice, debits/credits the fee,
// and appends a binary journal record.
func (e *Engine) settleLeg(sym *catalog.Symbol, m *meta, tradePrice money.Price, qty money.Qty, counterparty common.Address, nanos int64, isTaker bool) {
	release := proportional(m.ReservedMargin, qty, m.OriginalQty)
	m.FilledQty += qty

	feeBps := sym.MakerFeeBps
	if isTaker {
		feeBps = sym.TakerFeeBps
	}
	fee := money.ApplyBps(money.Notional(tradePrice, qty), feeBps)

	err := e.ledger.ApplyFill(ledger.Fill{
		Owner: m.Owner, Symbol: sym.ID, Side: m.Side, Qty: qty, Price: tradePrice,
		Fee: fee, ReleaseFromOrderMargin: release, TimestampNano: nanos,
	})
	if err != nil {
		e.log.Error("matching: apply fill failed", zap.Int64("order_id", m.ID), zap.Error(err))
		return
	}

	acc := e.ledger.GetAccountReadOnly(m.Owner)
	var postFree, postReserved int64
	if acc != nil {
		postFree, postReserved = acc.Free, acc.Reserved()
	}
	rec := journal.NewTradeRecord(e.seq.Next(), nanos, sym.ID, m.Owner, counterparty, m.Side, qty, tradePrice, fee, postFree, postReserved)
	e.pushMu.Lock()
	ok := e.ring.Push(rec)
	e.pushMu.Unlock()
	if !ok {
		e.log.Warn("matching: journal ring full, trade record dropped", zap.Int64("order_id", m.ID), zap.Uint64("seq", rec.Seq))
	}
}

func proportional(total int64, part, whole money.Qty) int64 {
	if whole == 0 {
		return 0
	}
	return (total * int64(part)) / int64(whole)
}

// Cancel removes a resting order, releasing its remaining reserved margin.
func (e *Engine) Cancel(orderID int64) error {
	m := e.lookupMeta(orderID)
	if m == nil {
		return xerrors.New(xerrors.CodeNotFound, "order %d not found", orderID)
	}

	region := e.regionFor(m.Symbol)
	region.Lock()
	defer region.Unlock()

	book := e.bookFor(m.Symbol)
	if _, ok := book.Cancel(orderID); !ok {
		return xerrors.New(xerrors.CodeNotFound, "order %d not resting", orderID)
	}

	e.releaseRemaining(m)
	m.Status = StatusCancelled
	e.closeMeta(m)
	return nil
}

func (e *Engine) releaseRemaining(m *meta) {
	release := proportional(m.ReservedMargin, m.remaining(), m.OriginalQty)
	if release == 0 {
		return
	}
	if err := e.ledger.ReleaseOrderMargin(m.Owner, release); err != nil {
		e.log.Error("matching: release order margin failed", zap.Int64("order_id", m.ID), zap.Error(err))
	}
}

func (e *Engine) checkDuplicateClientID(req Request) error {
	if req.ClientID == "" {
		return nil
	}
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	if _, exists := e.clientIDs[clientIDKey(req)]; exists {
		return xerrors.New(xerrors.CodeDuplicateClientID, "duplicate client order id %s", req.ClientID)
	}
	return nil
}

func clientIDKey(req Request) string {
	return req.Owner.Hex() + "|" + req.Symbol + "|" + req.ClientID
}

func (e *Engine) registerMeta(req Request, m *meta) {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	e.openOrders[m.ID] = m
	if req.ClientID != "" {
		e.clientIDs[clientIDKey(req)] = m.ID
	}
}

func (e *Engine) lookupMeta(orderID int64) *meta {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	return e.openOrders[orderID]
}

func (e *Engine) closeMeta(m *meta) {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	delete(e.openOrders, m.ID)
}
