package readmodel

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/mn-exchange/engine/internal/journal"
	"github.com/mn-exchange/engine/internal/orderbook"
)

func TestApplyRecordAndQuery(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	owner := common.HexToAddress("0x1")
	cp := common.HexToAddress("0x2")

	dep := journal.Record{Seq: 1, Nanos: 100, Kind: journal.KindDeposit, Owner: owner, SignedQty: 1000, PostFree: 1000}
	require.NoError(t, store.ApplyRecord(dep))

	trade := journal.NewTradeRecord(2, 200, "X", owner, cp, orderbook.Buy, 5, 1000, 10, 990, 0)
	require.NoError(t, store.ApplyRecord(trade))

	bal, ok, err := store.Balance(owner)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(990), bal.Free)

	trades, err := store.ListTrades(owner, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, "X", trades[0].Symbol)
	require.Equal(t, int64(5), trades[0].SignedQty)
}

func TestApplyRecordIsIdempotentOnReplay(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	owner := common.HexToAddress("0x1")
	cp := common.HexToAddress("0x2")
	trade := journal.NewTradeRecord(1, 100, "X", owner, cp, orderbook.Buy, 1, 1000, 1, 999, 0)

	require.NoError(t, store.ApplyRecord(trade))
	require.NoError(t, store.ApplyRecord(trade)) // re-applying the same seq must not duplicate rows

	trades, err := store.ListTrades(owner, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
}
