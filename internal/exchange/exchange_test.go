package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mn-exchange/engine/internal/catalog"
	"github.com/mn-exchange/engine/internal/matching"
	"github.com/mn-exchange/engine/internal/money"
	"github.com/mn-exchange/engine/internal/orderbook"
	"github.com/mn-exchange/engine/internal/venue"
)

func newTestExchange(t *testing.T) *Exchange {
	t.Helper()
	reg := catalog.NewRegistry()
	sym, err := catalog.New("X", catalog.Params{
		Name: "X", TickSize: 100, MinQty: 1, MaxQty: 1_000_000,
		InitialMarginBps: 1000, MaintenanceMarginBps: 500, TakerFeeBps: 10, MakerFeeBps: -5,
		HedgePolicy: catalog.HedgeDeltaNeutral, ExternalSymbol: "X-EXT", USDMultiplier: 1_000_000,
		HedgeThresholdQty: 1_000_000,
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(sym))

	ex, err := New(reg, Options{
		DataDir:      t.TempDir(),
		RingCapacity: 64,
		Adapter:      venue.NewFake(),
		Log:          zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { ex.Close() })
	return ex
}

func TestNewAttachesControllerPerSymbol(t *testing.T) {
	ex := newTestExchange(t)
	require.NotNil(t, ex.Controller("X"))
}

func TestDepositJournalsAndSettles(t *testing.T) {
	ex := newTestExchange(t)
	owner := common.HexToAddress("0xa1")

	require.NoError(t, ex.Deposit(owner, 1_000_000))
	require.Equal(t, int64(1_000_000), ex.Ledger.GetAccount(owner).Free)
}

func TestSubmitFlowsThroughToReadModel(t *testing.T) {
	ex := newTestExchange(t)
	buyer := common.HexToAddress("0xb1")
	seller := common.HexToAddress("0xb2")
	require.NoError(t, ex.Deposit(buyer, 1_000_000))
	require.NoError(t, ex.Deposit(seller, 1_000_000))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ex.Run(ctx) }()

	_, err := ex.Engine.Submit(matching.Request{Owner: seller, Symbol: "X", Side: orderbook.Sell, Kind: matching.KindLimit, Price: 1_000, Qty: 5})
	require.NoError(t, err)
	res, err := ex.Engine.Submit(matching.Request{Owner: buyer, Symbol: "X", Side: orderbook.Buy, Kind: matching.KindLimit, Price: 1_000, Qty: 5})
	require.NoError(t, err)
	require.Equal(t, matching.StatusFilled, res.Status)

	require.Eventually(t, func() bool {
		rows, err := ex.ReadModel.ListTrades(buyer, 10)
		return err == nil && len(rows) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestHedgeLoopStartsWithZeroUnhedgedExposure(t *testing.T) {
	ex := newTestExchange(t)
	require.Equal(t, money.Qty(0), ex.Hedge.UnhedgedExposure("X"))
}
