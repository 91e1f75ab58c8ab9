package orderbook

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mn-exchange/engine/internal/money"
)

func TestInsertAndBBO(t *testing.T) {
	b := New()
	b.Insert(&RestingOrder{ID: 1, Side: Sell, Price: 7_000_000, Remaining: 5, AdmittedAt: 1})
	ask, ok := b.BestAsk()
	require.True(t, ok)
	require.Equal(t, money.Price(7_000_000), ask)

	_, ok = b.BestBid()
	require.False(t, ok)
}

func TestConsumeHeadFIFO(t *testing.T) {
	b := New()
	b.Insert(&RestingOrder{ID: 1, Side: Sell, Price: 7_000_000, Remaining: 2, AdmittedAt: 1})
	b.Insert(&RestingOrder{ID: 2, Side: Sell, Price: 7_000_000, Remaining: 2, AdmittedAt: 2})

	maker, matched, done, ok := b.ConsumeHead(Sell, 3)
	require.True(t, ok)
	require.Equal(t, int64(1), maker.ID)
	require.Equal(t, money.Qty(2), matched)
	require.True(t, done)

	maker2, matched2, done2, ok2 := b.ConsumeHead(Sell, 3)
	require.True(t, ok2)
	require.Equal(t, int64(2), maker2.ID)
	require.Equal(t, money.Qty(1), matched2)
	require.False(t, done2)
}

func TestCancelIdempotent(t *testing.T) {
	b := New()
	b.Insert(&RestingOrder{ID: 1, Side: Buy, Price: 100, Remaining: 5})
	o, ok := b.Cancel(1)
	require.True(t, ok)
	require.Equal(t, int64(1), o.ID)

	_, ok = b.Cancel(1)
	require.False(t, ok)

	_, ok = b.Cancel(999)
	require.False(t, ok)
}

func TestLevelErasedWhenEmpty(t *testing.T) {
	b := New()
	b.Insert(&RestingOrder{ID: 1, Side: Buy, Price: 100, Remaining: 1})
	b.Cancel(1)
	_, ok := b.BestBid()
	require.False(t, ok)
	bids, _ := b.Depth(10)
	require.Empty(t, bids)
}

func TestDepthOrdering(t *testing.T) {
	b := New()
	b.Insert(&RestingOrder{ID: 1, Side: Buy, Price: 100, Remaining: 1})
	b.Insert(&RestingOrder{ID: 2, Side: Buy, Price: 110, Remaining: 1})
	b.Insert(&RestingOrder{ID: 3, Side: Sell, Price: 120, Remaining: 1})
	b.Insert(&RestingOrder{ID: 4, Side: Sell, Price: 115, Remaining: 1})

	bids, asks := b.Depth(10)
	require.Equal(t, money.Price(110), bids[0].Price)
	require.Equal(t, money.Price(100), bids[1].Price)
	require.Equal(t, money.Price(115), asks[0].Price)
	require.Equal(t, money.Price(120), asks[1].Price)
}
