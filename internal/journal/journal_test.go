package journal

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mn-exchange/engine/internal/catalog"
	"github.com/mn-exchange/engine/internal/ledger"
	"github.com/mn-exchange/engine/internal/orderbook"
)

func TestRecordRoundTrip(t *testing.T) {
	rec := Record{
		Seq: 42, Nanos: 123456789, Kind: KindTrade, Symbol: "BTC-PERP",
		Owner:        common.HexToAddress("0xabc"),
		Counterparty: common.HexToAddress("0xdef"),
		SignedQty:    -7, Price: 65_000_000_000, Fee: 1500,
		PostFree: 999, PostReserved: 111,
	}
	buf := rec.Encode()
	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestRingPushPopDrop(t *testing.T) {
	r := NewRing(2)
	require.True(t, r.Push(Record{Seq: 1}))
	require.True(t, r.Push(Record{Seq: 2}))
	require.False(t, r.Push(Record{Seq: 3}))
	require.Equal(t, uint64(1), r.Dropped())

	rec, ok := r.Pop()
	require.True(t, ok)
	require.Equal(t, uint64(1), rec.Seq)
}

func TestWriterDrainsToStoreAndReplay(t *testing.T) {
	store, err := OpenPebbleStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ring := NewRing(16)
	var human bytes.Buffer
	w := NewWriter(ring, store, &human, zap.NewNop())

	seqr := &Sequencer{}
	owner := common.HexToAddress("0x1")
	cp := common.HexToAddress("0x2")

	ring.Push(Record{Seq: seqr.Next(), Kind: KindDeposit, Owner: owner, SignedQty: 10_000, PostFree: 10_000})
	ring.Push(NewTradeRecord(seqr.Next(), time.Now().UnixNano(), "X", owner, cp, orderbook.Buy, 5, 1_000, 10, 9_490, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(120 * time.Millisecond)
	cancel()
	<-done

	require.Contains(t, human.String(), "DEPOSIT")
	require.Contains(t, human.String(), "TRADE")

	reg := catalog.NewRegistry()
	sym, err := catalog.New("X", catalog.Params{Name: "X", TickSize: 100, MinQty: 1, MaxQty: 1_000_000, InitialMarginBps: 1000, MaintenanceMarginBps: 500, TakerFeeBps: 10})
	require.NoError(t, err)
	require.NoError(t, reg.Register(sym))
	mgr := ledger.NewManager(reg)

	lastSeq, count, err := Replay(store, mgr)
	require.NoError(t, err)
	require.Equal(t, uint64(2), lastSeq)
	require.Equal(t, 2, count)
	require.Equal(t, int64(9_490), mgr.GetAccount(owner).Free)
	require.NotNil(t, mgr.GetAccount(owner).GetPosition("X"))
}
