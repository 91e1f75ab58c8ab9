package hedge

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mn-exchange/engine/internal/catalog"
	"github.com/mn-exchange/engine/internal/ledger"
	"github.com/mn-exchange/engine/internal/money"
	"github.com/mn-exchange/engine/internal/orderbook"
	"github.com/mn-exchange/engine/internal/venue"
)

func setup(t *testing.T) (*catalog.Registry, *ledger.Manager, *venue.Fake) {
	t.Helper()
	reg := catalog.NewRegistry()
	sym, err := catalog.New("X", catalog.Params{
		Name: "X", TickSize: 100, MinQty: 1, MaxQty: 1_000_000,
		InitialMarginBps: 1000, MaintenanceMarginBps: 500, TakerFeeBps: 10,
		HedgePolicy: catalog.HedgeDeltaNeutral, ExternalSymbol: "X-EXT", HedgeThresholdQty: 2,
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(sym))
	mgr := ledger.NewManager(reg)
	return reg, mgr, venue.NewFake()
}

func TestReconcileIssuesHedgeAboveThreshold(t *testing.T) {
	reg, mgr, fake := setup(t)
	owner := common.HexToAddress("0x1")
	require.NoError(t, mgr.Deposit(owner, 10_000_000))
	r, _ := reg.Get("X")
	reserved, _ := mgr.ReserveOrderMargin(owner, r, 7_000_000, 5)
	require.NoError(t, mgr.ApplyFill(ledger.Fill{Owner: owner, Symbol: "X", Side: orderbook.Buy, Qty: 5, Price: 7_000_000, ReleaseFromOrderMargin: reserved}))

	loop := NewLoop(reg, mgr, fake, zap.NewNop())
	loop.reconcile(context.Background(), r)

	hist := loop.History()
	require.Len(t, hist, 1)
	require.Equal(t, StatusFilled, hist[0].Status)
	require.Equal(t, money.Qty(-5), hist[0].Qty)

	holding, err := fake.QueryExternalHolding(context.Background(), "X-EXT")
	require.NoError(t, err)
	require.Equal(t, money.Qty(-5), holding)
}

func TestReconcileSkipsBelowThreshold(t *testing.T) {
	reg, mgr, fake := setup(t)
	r, _ := reg.Get("X")
	loop := NewLoop(reg, mgr, fake, zap.NewNop())
	loop.reconcile(context.Background(), r)
	require.Empty(t, loop.History())
}

func TestReconcileDisconnectedFallsBackToMirror(t *testing.T) {
	reg, mgr, fake := setup(t)
	owner := common.HexToAddress("0x1")
	require.NoError(t, mgr.Deposit(owner, 10_000_000))
	r, _ := reg.Get("X")
	reserved, _ := mgr.ReserveOrderMargin(owner, r, 7_000_000, 5)
	require.NoError(t, mgr.ApplyFill(ledger.Fill{Owner: owner, Symbol: "X", Side: orderbook.Buy, Qty: 5, Price: 7_000_000, ReleaseFromOrderMargin: reserved}))

	loop := NewLoop(reg, mgr, fake, zap.NewNop())
	loop.reconcile(context.Background(), r) // hedges -5 successfully, mirror = -5

	fake.SetConnected(false)
	loop.reconcile(context.Background(), r) // query fails, falls back to mirror -5; unhedged = 5-5=0, no new attempt
	require.Len(t, loop.History(), 1)
}
