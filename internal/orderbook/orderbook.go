// Package orderbook implements C3: a two-sided, price-indexed limit order
// book with price-time FIFO at each level. Grounded on the teacher's
// pkg/app/core/orderbook package (heap-based best-price tracking, map of
// price to FIFO slice; Cancel scans the level's FIFO and the side's price
// heap linearly, there is no O(1) id index) and
// generalized from the teacher's single GTC/IOC distinction to the full
// order-kind set the matching engine (internal/matching) drives this book
// with.
package orderbook

import (
	"container/heap"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mn-exchange/engine/internal/money"
)

// Side of the book.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// ParseSide maps the API's lowercase side strings back to a Side.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "buy":
		return Buy, true
	case "sell":
		return Sell, true
	default:
		return 0, false
	}
}

// RestingOrder is the book's view of an order with remaining quantity.
// The matching engine owns the broader Order lifecycle (status, kind); the
// book only needs identity, side, price, and remaining quantity to maintain
// price-time priority.
type RestingOrder struct {
	ID         int64
	Owner      common.Address
	Side       Side
	Price      money.Price
	Remaining  money.Qty
	AdmittedAt int64 // admission timestamp, nanoseconds; order within a level is insertion order
}

type level struct {
	price  money.Price
	orders []*RestingOrder // FIFO: index 0 is the earliest-admitted, fills first
	qty    money.Qty       // invariant: equals sum of orders[i].Remaining
}

func (lv *level) recomputeQty() {
	var q money.Qty
	for _, o := range lv.orders {
		q += o.Remaining
	}
	lv.qty = q
}

type indexEntry struct {
	side  Side
	price money.Price
}

// Book is one symbol's order book. Every mutating method assumes it is
// called from within that symbol's serialized region (see spec.md §5); the
// mutex here is a safety net for read-only BBO/Depth queries issued
// concurrently with the region, not a substitute for region discipline.
type Book struct {
	mu sync.RWMutex

	bids    map[money.Price]*level
	asks    map[money.Price]*level
	bidHeap *maxPriceHeap
	askHeap *minPriceHeap

	index map[int64]indexEntry

	lastTradePrice money.Price
}

// PriceLevel is a read-only depth snapshot row.
type PriceLevel struct {
	Price money.Price
	Qty   money.Qty
}

func New() *Book {
	bh := &maxPriceHeap{}
	ah := &minPriceHeap{}
	heap.Init(bh)
	heap.Init(ah)
	return &Book{
		bids:    make(map[money.Price]*level),
		asks:    make(map[money.Price]*level),
		bidHeap: bh,
		askHeap: ah,
		index:   make(map[int64]indexEntry),
	}
}

func (b *Book) sideMaps(s Side) (map[money.Price]*level, heap.Interface, func(money.Price)) {
	if s == Buy {
		return b.bids, b.bidHeap, b.removeFromBidHeap
	}
	return b.asks, b.askHeap, b.removeFromAskHeap
}

func (b *Book) removeFromBidHeap(p money.Price) {
	for i := 0; i < b.bidHeap.Len(); i++ {
		if (*b.bidHeap)[i] == p {
			heap.Remove(b.bidHeap, i)
			return
		}
	}
}

func (b *Book) removeFromAskHeap(p money.Price) {
	for i := 0; i < b.askHeap.Len(); i++ {
		if (*b.askHeap)[i] == p {
			heap.Remove(b.askHeap, i)
			return
		}
	}
}

// Insert rests an order at the tail of its price level. Callers are
// responsible for having already established (via the matching engine) that
// this order should rest — the book never decides matching policy.
func (b *Book) Insert(o *RestingOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()

	levels, h, _ := b.sideMaps(o.Side)
	lv, exists := levels[o.Price]
	if !exists {
		lv = &level{price: o.Price}
		levels[o.Price] = lv
		heap.Push(h, o.Price)
	}
	lv.orders = append(lv.orders, o)
	lv.qty += o.Remaining
	b.index[o.ID] = indexEntry{side: o.Side, price: o.Price}
}

// Cancel removes a resting order by id. Returns (order, true) if found, or
// (nil, false) if not found — cancel is idempotent and a miss is a
// non-error no-op per spec.md §5.
func (b *Book) Cancel(id int64) (*RestingOrder, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.index[id]
	if !ok {
		return nil, false
	}
	levels, _, removeFromHeap := b.sideMaps(entry.side)
	lv := levels[entry.price]
	if lv == nil {
		delete(b.index, id)
		return nil, false
	}
	for i, o := range lv.orders {
		if o.ID == id {
			lv.orders = append(lv.orders[:i], lv.orders[i+1:]...)
			lv.qty -= o.Remaining
			if len(lv.orders) == 0 {
				delete(levels, entry.price)
				removeFromHeap(entry.price)
			}
			delete(b.index, id)
			return o, true
		}
	}
	// index was stale; clean it up defensively
	delete(b.index, id)
	return nil, false
}

// BestBid returns the highest resting bid price.
func (b *Book) BestBid() (money.Price, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.bidHeap.Len() == 0 {
		return 0, false
	}
	return b.bidHeap.Peek(), true
}

// BestAsk returns the lowest resting ask price.
func (b *Book) BestAsk() (money.Price, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.askHeap.Len() == 0 {
		return 0, false
	}
	return b.askHeap.Peek(), true
}

// Crosses reports whether an incoming order on side s at price p would cross
// the current best opposite price. A market order should pass a sentinel
// price (math.MaxInt64 for buy, 0 for sell handled by caller) — see
// internal/matching for that convention.
func (b *Book) Crosses(s Side, p money.Price) bool {
	if s == Buy {
		ask, ok := b.BestAsk()
		return ok && p >= ask
	}
	bid, ok := b.BestBid()
	return ok && p <= bid
}

// MakerSide returns the resting side that an incoming order of side s would
// match against.
func MakerSide(takerSide Side) Side { return takerSide.Opposite() }

// HeadOfBest returns the head (earliest-admitted) resting order at the best
// price on makerSide, or (nil, false) if that side is empty.
func (b *Book) HeadOfBest(makerSide Side) (*RestingOrder, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var price money.Price
	var ok bool
	if makerSide == Buy {
		price, ok = b.peekBidLocked()
	} else {
		price, ok = b.peekAskLocked()
	}
	if !ok {
		return nil, false
	}
	levels, _, _ := b.sideMaps(makerSide)
	lv := levels[price]
	if lv == nil || len(lv.orders) == 0 {
		return nil, false
	}
	return lv.orders[0], true
}

func (b *Book) peekBidLocked() (money.Price, bool) {
	if b.bidHeap.Len() == 0 {
		return 0, false
	}
	return b.bidHeap.Peek(), true
}

func (b *Book) peekAskLocked() (money.Price, bool) {
	if b.askHeap.Len() == 0 {
		return 0, false
	}
	return b.askHeap.Peek(), true
}

// ConsumeHead matches against the head order of makerSide's best price level
// for up to takerQty. It decrements (and, if filled, removes) the maker
// order, keeping level aggregates and the id index consistent. Returns the
// maker snapshot *before* this consumption, the quantity actually matched,
// and whether the maker order was fully filled and removed.
func (b *Book) ConsumeHead(makerSide Side, takerQty money.Qty) (maker RestingOrder, matched money.Qty, makerDone bool, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var price money.Price
	var pok bool
	if makerSide == Buy {
		price, pok = b.peekBidLocked()
	} else {
		price, pok = b.peekAskLocked()
	}
	if !pok {
		return RestingOrder{}, 0, false, false
	}

	levels, _, removeFromHeap := b.sideMaps(makerSide)
	lv := levels[price]
	if lv == nil || len(lv.orders) == 0 {
		return RestingOrder{}, 0, false, false
	}

	head := lv.orders[0]
	maker = *head
	matched = takerQty
	if head.Remaining < matched {
		matched = head.Remaining
	}
	head.Remaining -= matched
	lv.qty -= matched
	b.lastTradePrice = price

	if head.Remaining == 0 {
		lv.orders = lv.orders[1:]
		delete(b.index, head.ID)
		makerDone = true
		if len(lv.orders) == 0 {
			delete(levels, price)
			removeFromHeap(price)
		}
	}
	ok = true
	return
}

// Depth returns up to n levels per side, best price first.
func (b *Book) Depth(n int) (bids, asks []PriceLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids = collectLevels(b.bids, *b.bidHeap, n, true)
	asks = collectLevels(b.asks, *b.askHeap, n, false)
	return
}

func collectLevels(m map[money.Price]*level, h []money.Price, n int, descending bool) []PriceLevel {
	prices := append([]money.Price(nil), h...)
	sortPrices(prices, descending)
	if n > 0 && len(prices) > n {
		prices = prices[:n]
	}
	out := make([]PriceLevel, 0, len(prices))
	for _, p := range prices {
		lv := m[p]
		if lv == nil {
			continue
		}
		out = append(out, PriceLevel{Price: p, Qty: lv.qty})
	}
	return out
}

func sortPrices(p []money.Price, descending bool) {
	// insertion sort: level counts are small in practice and this keeps the
	// package free of an extra sort.Slice closure allocation per call.
	for i := 1; i < len(p); i++ {
		for j := i; j > 0; j-- {
			less := p[j] < p[j-1]
			if descending {
				less = p[j] > p[j-1]
			}
			if !less {
				break
			}
			p[j], p[j-1] = p[j-1], p[j]
		}
	}
}

// LastTradePrice returns the most recent execution price, 0 if none yet.
func (b *Book) LastTradePrice() money.Price {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastTradePrice
}

// IsEmpty reports whether both sides have no resting orders.
func (b *Book) IsEmpty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bids) == 0 && len(b.asks) == 0
}
