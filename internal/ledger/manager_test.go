package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/mn-exchange/engine/internal/catalog"
	"github.com/mn-exchange/engine/internal/money"
	"github.com/mn-exchange/engine/internal/orderbook"
	"github.com/mn-exchange/engine/pkg/xerrors"
)

func newTestManager(t *testing.T) (*Manager, *catalog.Registry) {
	t.Helper()
	reg := catalog.NewRegistry()
	sym, err := catalog.New("X", catalog.Params{
		Name: "X", TickSize: 100, MinQty: 1, MaxQty: 1_000_000,
		InitialMarginBps: 1000, MaintenanceMarginBps: 500, TakerFeeBps: 10,
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(sym))
	return NewManager(reg), reg
}

var owner1 = common.HexToAddress("0x1")
var owner2 = common.HexToAddress("0x2")

func TestDepositWithdraw(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Deposit(owner1, 1000))
	require.Equal(t, int64(1000), m.GetAccount(owner1).Free)

	err := m.Withdraw(owner1, 2000)
	require.Error(t, err)

	require.NoError(t, m.Withdraw(owner1, 500))
	require.Equal(t, int64(500), m.GetAccount(owner1).Free)
}

func TestReserveOrderMarginInsufficient(t *testing.T) {
	m, reg := newTestManager(t)
	sym, _ := reg.Get("X")
	require.NoError(t, m.Deposit(owner1, 10))
	_, err := m.ReserveOrderMargin(owner1, sym, 7_000_000, 5)
	require.Error(t, err)
}

func TestReserveOrderMarginRejectsOverLeverage(t *testing.T) {
	reg := catalog.NewRegistry()
	// InitialMarginBps deliberately low so the margin check alone would pass,
	// isolating the leverage check as the one that rejects this order.
	sym, err := catalog.New("Y", catalog.Params{
		Name: "Y", TickSize: 100, MinQty: 1, MaxQty: 1_000_000,
		InitialMarginBps: 2, MaintenanceMarginBps: 1, TakerFeeBps: 10, MaxLeverage: 5,
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(sym))
	m := NewManager(reg)

	require.NoError(t, m.Deposit(owner1, 3_000))
	// notional 10*1_000_000 = 10_000_000 against a 3_000 balance is ~3333x leverage, far past the 5x cap.
	_, err = m.ReserveOrderMargin(owner1, sym, 1_000_000, 10)
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.CodeLeverageExceeded))
}

func TestApplyFillOpensPosition(t *testing.T) {
	m, reg := newTestManager(t)
	sym, _ := reg.Get("X")
	require.NoError(t, m.Deposit(owner1, 10_000_000))

	reserved, err := m.ReserveOrderMargin(owner1, sym, 7_000_000, 3)
	require.NoError(t, err)

	err = m.ApplyFill(Fill{
		Owner: owner1, Symbol: "X", Side: orderbook.Buy, Qty: 3, Price: 7_000_000,
		Fee: 100, ReleaseFromOrderMargin: reserved,
	})
	require.NoError(t, err)

	pos := m.GetAccount(owner1).GetPosition("X")
	require.NotNil(t, pos)
	require.Equal(t, money.Qty(3), pos.Size)
	require.Equal(t, money.Price(7_000_000), pos.Entry)
	require.Equal(t, int64(0), m.GetAccount(owner1).OrderMargin)
}

func TestApplyFillFlip(t *testing.T) {
	m, reg := newTestManager(t)
	sym, _ := reg.Get("X")
	require.NoError(t, m.Deposit(owner1, 10_000_000))

	r1, _ := m.ReserveOrderMargin(owner1, sym, 7_000_000, 5)
	require.NoError(t, m.ApplyFill(Fill{Owner: owner1, Symbol: "X", Side: orderbook.Buy, Qty: 5, Price: 7_000_000, ReleaseFromOrderMargin: r1}))

	r2, _ := m.ReserveOrderMargin(owner1, sym, 7_100_000, 8)
	require.NoError(t, m.ApplyFill(Fill{Owner: owner1, Symbol: "X", Side: orderbook.Sell, Qty: 8, Price: 7_100_000, ReleaseFromOrderMargin: r2}))

	pos := m.GetAccount(owner1).GetPosition("X")
	require.NotNil(t, pos)
	require.Equal(t, money.Qty(-3), pos.Size)
	require.Equal(t, money.Price(7_100_000), pos.Entry)
}

func TestNetExposure(t *testing.T) {
	m, reg := newTestManager(t)
	sym, _ := reg.Get("X")
	require.NoError(t, m.Deposit(owner1, 10_000_000))
	require.NoError(t, m.Deposit(owner2, 10_000_000))

	r1, _ := m.ReserveOrderMargin(owner1, sym, 7_000_000, 5)
	require.NoError(t, m.ApplyFill(Fill{Owner: owner1, Symbol: "X", Side: orderbook.Buy, Qty: 5, Price: 7_000_000, ReleaseFromOrderMargin: r1}))

	r2, _ := m.ReserveOrderMargin(owner2, sym, 7_000_000, 2)
	require.NoError(t, m.ApplyFill(Fill{Owner: owner2, Symbol: "X", Side: orderbook.Sell, Qty: 2, Price: 7_000_000, ReleaseFromOrderMargin: r2}))

	require.Equal(t, money.Qty(3), m.NetExposure("X"))
}

func TestFullCloseReleasesMargin(t *testing.T) {
	m, reg := newTestManager(t)
	sym, _ := reg.Get("X")
	require.NoError(t, m.Deposit(owner1, 10_000_000))

	r1, _ := m.ReserveOrderMargin(owner1, sym, 7_000_000, 5)
	require.NoError(t, m.ApplyFill(Fill{Owner: owner1, Symbol: "X", Side: orderbook.Buy, Qty: 5, Price: 7_000_000, ReleaseFromOrderMargin: r1}))

	r2, _ := m.ReserveOrderMargin(owner1, sym, 7_100_000, 5)
	require.NoError(t, m.ApplyFill(Fill{Owner: owner1, Symbol: "X", Side: orderbook.Sell, Qty: 5, Price: 7_100_000, ReleaseFromOrderMargin: r2}))

	require.Nil(t, m.GetAccount(owner1).GetPosition("X"))
	require.Equal(t, int64(0), m.GetAccount(owner1).Reserved())
}
