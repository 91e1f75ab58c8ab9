package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mn-exchange/engine/internal/money"
	"github.com/mn-exchange/engine/pkg/xerrors"
)

func newTestSymbol(t *testing.T, lotSize int64) *Symbol {
	t.Helper()
	minQty := money.Qty(lotSize)
	if minQty == 0 {
		minQty = 1
	}
	sym, err := New("X", Params{
		Name: "X", TickSize: 100, LotSize: money.Qty(lotSize), MinQty: minQty, MaxQty: 1_000_000,
		InitialMarginBps: 1000, MaintenanceMarginBps: 500, TakerFeeBps: 10,
	})
	require.NoError(t, err)
	return sym
}

func TestValidateOrderRejectsLotStepViolation(t *testing.T) {
	sym := newTestSymbol(t, 10)
	err := sym.ValidateOrder(100, 15)
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.CodeLotStepViolation))
}

func TestValidateOrderAcceptsLotAlignedQty(t *testing.T) {
	sym := newTestSymbol(t, 10)
	require.NoError(t, sym.ValidateOrder(100, 20))
}

func TestValidateOrderDefaultsLotSizeToOne(t *testing.T) {
	sym := newTestSymbol(t, 0)
	require.Equal(t, money.Qty(1), sym.LotSize)
	require.NoError(t, sym.ValidateOrder(100, 7))
}

func TestNewRejectsLotSizeNotDividingMinQty(t *testing.T) {
	_, err := New("X", Params{
		Name: "X", TickSize: 100, LotSize: 7, MinQty: 10, MaxQty: 1_000,
		InitialMarginBps: 1000, MaintenanceMarginBps: 500, TakerFeeBps: 10,
	})
	require.Error(t, err)
}
