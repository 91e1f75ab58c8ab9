package matching

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mn-exchange/engine/internal/catalog"
	"github.com/mn-exchange/engine/internal/journal"
	"github.com/mn-exchange/engine/internal/ledger"
	"github.com/mn-exchange/engine/internal/money"
	"github.com/mn-exchange/engine/internal/orderbook"
	"github.com/mn-exchange/engine/pkg/xerrors"
)

func newTestEngine(t *testing.T) (*Engine, *catalog.Registry, *ledger.Manager) {
	t.Helper()
	reg := catalog.NewRegistry()
	sym, err := catalog.New("X", catalog.Params{
		Name: "X", TickSize: 100, MinQty: 1, MaxQty: 1_000_000,
		InitialMarginBps: 1000, MaintenanceMarginBps: 500, TakerFeeBps: 10, MakerFeeBps: -5,
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(sym))
	mgr := ledger.NewManager(reg)
	ring := journal.NewRing(1024)
	seq := &journal.Sequencer{}
	return NewEngine(reg, mgr, ring, seq, zap.NewNop()), reg, mgr
}

var buyer = common.HexToAddress("0xb1")
var seller = common.HexToAddress("0xb2")

func TestLimitOrderRestsWhenNoCross(t *testing.T) {
	eng, _, mgr := newTestEngine(t)
	require.NoError(t, mgr.Deposit(buyer, 1_000_000))

	res, err := eng.Submit(Request{Owner: buyer, Symbol: "X", Side: orderbook.Buy, Kind: KindLimit, Price: 1_000, Qty: 5})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, res.Status)
	require.Empty(t, res.Fills)

	bid, _, hasBid, _ := eng.BBO("X")
	require.True(t, hasBid)
	require.Equal(t, money.Price(1_000), bid)
}

func TestLimitOrderCrossesAndFills(t *testing.T) {
	eng, _, mgr := newTestEngine(t)
	require.NoError(t, mgr.Deposit(seller, 1_000_000))
	require.NoError(t, mgr.Deposit(buyer, 1_000_000))

	_, err := eng.Submit(Request{Owner: seller, Symbol: "X", Side: orderbook.Sell, Kind: KindLimit, Price: 1_000, Qty: 5})
	require.NoError(t, err)

	res, err := eng.Submit(Request{Owner: buyer, Symbol: "X", Side: orderbook.Buy, Kind: KindLimit, Price: 1_000, Qty: 5})
	require.NoError(t, err)
	require.Equal(t, StatusFilled, res.Status)
	require.Len(t, res.Fills, 1)
	require.Equal(t, money.Price(1_000), res.Fills[0].Price)

	sellerPos := mgr.GetAccount(seller).GetPosition("X")
	buyerPos := mgr.GetAccount(buyer).GetPosition("X")
	require.Equal(t, money.Qty(-5), sellerPos.Size)
	require.Equal(t, money.Qty(5), buyerPos.Size)
}

func TestMarketOrderNoLiquidityRejected(t *testing.T) {
	eng, _, mgr := newTestEngine(t)
	require.NoError(t, mgr.Deposit(buyer, 1_000_000))

	_, err := eng.Submit(Request{Owner: buyer, Symbol: "X", Side: orderbook.Buy, Kind: KindMarket, Qty: 5})
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.CodeNoLiquidity))
}

func TestIOCResidualDiscarded(t *testing.T) {
	eng, _, mgr := newTestEngine(t)
	require.NoError(t, mgr.Deposit(seller, 1_000_000))
	require.NoError(t, mgr.Deposit(buyer, 1_000_000))

	_, err := eng.Submit(Request{Owner: seller, Symbol: "X", Side: orderbook.Sell, Kind: KindLimit, Price: 1_000, Qty: 3})
	require.NoError(t, err)

	res, err := eng.Submit(Request{Owner: buyer, Symbol: "X", Side: orderbook.Buy, Kind: KindIOC, Price: 1_000, Qty: 10})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyCancelled, res.Status)
	require.Equal(t, money.Qty(3), res.Filled)

	_, _, hasBid, _ := eng.BBO("X")
	require.False(t, hasBid) // residual never rested
}

func TestFOKRejectsWhenInsufficientLiquidity(t *testing.T) {
	eng, _, mgr := newTestEngine(t)
	require.NoError(t, mgr.Deposit(seller, 1_000_000))
	require.NoError(t, mgr.Deposit(buyer, 1_000_000))

	_, err := eng.Submit(Request{Owner: seller, Symbol: "X", Side: orderbook.Sell, Kind: KindLimit, Price: 1_000, Qty: 2})
	require.NoError(t, err)

	_, err = eng.Submit(Request{Owner: buyer, Symbol: "X", Side: orderbook.Buy, Kind: KindFOK, Price: 1_000, Qty: 5})
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.CodeFOKUnsatisfiable))

	require.Equal(t, int64(1_000_000), mgr.GetAccount(buyer).Free) // nothing reserved on rejection
}

func TestPostOnlyRejectsWhenCrossing(t *testing.T) {
	eng, _, mgr := newTestEngine(t)
	require.NoError(t, mgr.Deposit(seller, 1_000_000))
	require.NoError(t, mgr.Deposit(buyer, 1_000_000))

	_, err := eng.Submit(Request{Owner: seller, Symbol: "X", Side: orderbook.Sell, Kind: KindLimit, Price: 1_000, Qty: 5})
	require.NoError(t, err)

	_, err = eng.Submit(Request{Owner: buyer, Symbol: "X", Side: orderbook.Buy, Kind: KindPostOnly, Price: 1_000, Qty: 5})
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.CodePostOnlyWouldCross))
}

func TestCancelReleasesMargin(t *testing.T) {
	eng, _, mgr := newTestEngine(t)
	require.NoError(t, mgr.Deposit(buyer, 1_000_000))

	res, err := eng.Submit(Request{Owner: buyer, Symbol: "X", Side: orderbook.Buy, Kind: KindLimit, Price: 1_000, Qty: 5})
	require.NoError(t, err)
	require.Less(t, mgr.GetAccount(buyer).Free, int64(1_000_000))

	require.NoError(t, eng.Cancel(res.OrderID))
	require.Equal(t, int64(1_000_000), mgr.GetAccount(buyer).Free)

	err = eng.Cancel(res.OrderID)
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.CodeNotFound))
}

func TestMakerStatusPartiallyFilledWhileResting(t *testing.T) {
	eng, _, mgr := newTestEngine(t)
	require.NoError(t, mgr.Deposit(seller, 1_000_000))
	require.NoError(t, mgr.Deposit(buyer, 1_000_000))

	makerRes, err := eng.Submit(Request{Owner: seller, Symbol: "X", Side: orderbook.Sell, Kind: KindLimit, Price: 1_000, Qty: 5})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, makerRes.Status)

	_, err = eng.Submit(Request{Owner: buyer, Symbol: "X", Side: orderbook.Buy, Kind: KindLimit, Price: 1_000, Qty: 3})
	require.NoError(t, err)

	makerMeta := eng.lookupMeta(makerRes.OrderID)
	require.NotNil(t, makerMeta)
	require.Equal(t, StatusPartiallyFilled, makerMeta.Status)
	require.Equal(t, money.Qty(2), makerMeta.remaining())
}

func TestTakerStatusPartiallyFilledWhileResting(t *testing.T) {
	eng, _, mgr := newTestEngine(t)
	require.NoError(t, mgr.Deposit(seller, 1_000_000))
	require.NoError(t, mgr.Deposit(buyer, 1_000_000))

	_, err := eng.Submit(Request{Owner: seller, Symbol: "X", Side: orderbook.Sell, Kind: KindLimit, Price: 1_000, Qty: 2})
	require.NoError(t, err)

	res, err := eng.Submit(Request{Owner: buyer, Symbol: "X", Side: orderbook.Buy, Kind: KindLimit, Price: 1_000, Qty: 5})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyFilled, res.Status)
	require.Equal(t, money.Qty(2), res.Filled)
}

func TestDuplicateClientIDRejected(t *testing.T) {
	eng, _, mgr := newTestEngine(t)
	require.NoError(t, mgr.Deposit(buyer, 1_000_000))

	_, err := eng.Submit(Request{ClientID: "c1", Owner: buyer, Symbol: "X", Side: orderbook.Buy, Kind: KindLimit, Price: 1_000, Qty: 1})
	require.NoError(t, err)

	_, err = eng.Submit(Request{ClientID: "c1", Owner: buyer, Symbol: "X", Side: orderbook.Buy, Kind: KindLimit, Price: 1_000, Qty: 1})
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.CodeDuplicateClientID))
}
