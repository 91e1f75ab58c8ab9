package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mn-exchange/engine/internal/catalog"
	"github.com/mn-exchange/engine/internal/exchange"
	"github.com/mn-exchange/engine/internal/venue"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := catalog.NewRegistry()
	sym, err := catalog.New("X", catalog.Params{
		Name: "X", TickSize: 100, MinQty: 1, MaxQty: 1_000_000,
		InitialMarginBps: 1000, MaintenanceMarginBps: 500, TakerFeeBps: 10, MakerFeeBps: -5,
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(sym))

	ex, err := exchange.New(reg, exchange.Options{
		DataDir: t.TempDir(), RingCapacity: 64, Adapter: venue.NewFake(), Log: zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { ex.Close() })

	return NewServer(ex, zap.NewNop())
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
}

func TestGetMarketsReturnsRegisteredSymbol(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/v1/markets", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var markets []MarketInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &markets))
	require.Len(t, markets, 1)
	require.Equal(t, "X", markets[0].Symbol)
}

func TestDepositThenSubmitOrder(t *testing.T) {
	s := newTestServer(t)
	owner := common.HexToAddress("0xa1")

	depBody, _ := json.Marshal(TransferRequest{Owner: owner.Hex(), Amount: 1_000_000})
	req := httptest.NewRequest("POST", "/api/v1/deposit", bytes.NewReader(depBody))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, 204, rec.Code)

	orderBody, _ := json.Marshal(SubmitOrderRequest{
		Owner: owner.Hex(), Symbol: "X", Side: "buy", Kind: "limit", Price: 1_000, Qty: 5,
	})
	req = httptest.NewRequest("POST", "/api/v1/orders", bytes.NewReader(orderBody))
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var res OrderResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "open", res.Status)
}

func TestSubmitOrderRejectsUnknownSide(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(SubmitOrderRequest{Owner: "0xa1", Symbol: "X", Side: "sideways", Kind: "limit", Price: 100, Qty: 1})
	req := httptest.NewRequest("POST", "/api/v1/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, 400, rec.Code)
}
