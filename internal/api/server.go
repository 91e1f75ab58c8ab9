// Package api implements the thin HTTP+WS transport exercising the
// exchange's external interface, grounded on the teacher's pkg/api
// (gorilla/mux routing, rs/cors, gorilla/websocket hub) and retargeted from
// the teacher's ABCI-backed perp.App to the exchange composition root.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/mn-exchange/engine/internal/exchange"
	"github.com/mn-exchange/engine/internal/matching"
	"github.com/mn-exchange/engine/internal/money"
	"github.com/mn-exchange/engine/internal/orderbook"
	"github.com/mn-exchange/engine/pkg/xerrors"
)

// Server wires the exchange's Go API onto HTTP handlers and a WebSocket hub.
type Server struct {
	ex     *exchange.Exchange
	router *mux.Router
	hub    *Hub
	log    *zap.Logger
}

func NewServer(ex *exchange.Exchange, log *zap.Logger) *Server {
	s := &Server{
		ex:     ex,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	v1.HandleFunc("/markets/{symbol}", s.handleGetMarket).Methods("GET")
	v1.HandleFunc("/markets/{symbol}/orderbook", s.handleGetOrderbook).Methods("GET")
	v1.HandleFunc("/markets/{symbol}/trades", s.handleGetTrades).Methods("GET")

	v1.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	v1.HandleFunc("/accounts/{address}/trades", s.handleGetAccountTrades).Methods("GET")

	v1.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	v1.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	v1.HandleFunc("/deposit", s.handleDeposit).Methods("POST")
	v1.HandleFunc("/withdraw", s.handleWithdraw).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the WebSocket hub and blocks serving addr until the server
// errors or is shut down externally.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	s.log.Info("api: server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	symbols := s.ex.Catalog.List()
	out := make([]MarketInfo, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, s.marketInfo(sym.ID))
	}
	respondJSON(w, out)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if _, err := s.ex.Catalog.Get(symbol); err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	respondJSON(w, s.marketInfo(symbol))
}

func (s *Server) marketInfo(symbolID string) MarketInfo {
	sym, _ := s.ex.Catalog.Get(symbolID)
	info := MarketInfo{
		Symbol:               sym.ID,
		Tag:                  sym.Tag,
		TickSize:             int64(sym.TickSize),
		MinQty:               int64(sym.MinQty),
		MaxQty:               int64(sym.MaxQty),
		MakerFeeBps:          int64(sym.MakerFeeBps),
		TakerFeeBps:          int64(sym.TakerFeeBps),
		MaintenanceMarginBps: int64(sym.MaintenanceMarginBps),
		MarkPrice:            int64(sym.MarkPrice()),
		Active:               sym.Active(),
	}
	if ctrl := s.ex.Controller(symbolID); ctrl != nil {
		info.CircuitBreaker = ctrl.State()
	}
	return info
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	bids, asks := s.ex.Engine.Depth(symbol, 50)
	snap := OrderbookSnapshot{Symbol: symbol}
	for _, lv := range bids {
		snap.Bids = append(snap.Bids, PriceLevel{Price: int64(lv.Price), Qty: int64(lv.Qty)})
	}
	for _, lv := range asks {
		snap.Asks = append(snap.Asks, PriceLevel{Price: int64(lv.Price), Qty: int64(lv.Qty)})
	}
	respondJSON(w, snap)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, []TradeInfo{})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	owner := common.HexToAddress(mux.Vars(r)["address"])
	acc := s.ex.Ledger.GetAccountReadOnly(owner)
	if acc == nil {
		respondJSON(w, AccountInfo{Owner: owner.Hex()})
		return
	}
	info := AccountInfo{
		Owner: owner.Hex(), Free: acc.Free, OrderMargin: acc.OrderMargin,
		Reserved: acc.Reserved(), Equity: acc.Equity(),
	}
	for _, p := range acc.Positions {
		info.Positions = append(info.Positions, PositionInfo{
			Symbol: p.Symbol, Size: int64(p.Size), Entry: int64(p.Entry),
			Margin: p.Margin, RealizedPnL: p.RealizedPnL, Unrealized: p.Unrealized,
		})
	}
	respondJSON(w, info)
}

func (s *Server) handleGetAccountTrades(w http.ResponseWriter, r *http.Request) {
	owner := common.HexToAddress(mux.Vars(r)["address"])
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	rows, err := s.ex.ReadModel.ListTrades(owner, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]TradeInfo, 0, len(rows))
	for _, row := range rows {
		out = append(out, TradeInfo{
			Seq: row.Seq, Nanos: row.Nanos, Symbol: row.Symbol,
			Counterparty: row.Counterparty, SignedQty: row.SignedQty, Price: row.Price, Fee: row.Fee,
		})
	}
	respondJSON(w, out)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	side, ok := orderbook.ParseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, xerrors.New(xerrors.CodeInvalidSide, "unknown side %q", req.Side))
		return
	}
	kind, ok := matching.ParseKind(req.Kind)
	if !ok {
		respondError(w, http.StatusBadRequest, xerrors.New(xerrors.CodeInvalidKind, "unknown kind %q", req.Kind))
		return
	}

	res, err := s.ex.Engine.Submit(matching.Request{
		ClientID: req.ClientID,
		Owner:    common.HexToAddress(req.Owner),
		Symbol:   req.Symbol,
		Side:     side,
		Kind:     kind,
		Price:    money.Price(req.Price),
		Qty:      money.Qty(req.Qty),
	})
	if err != nil {
		respondError(w, statusForError(err), err)
		return
	}

	for _, f := range res.Fills {
		s.hub.BroadcastToChannel("trades:"+req.Symbol, TradeEvent{
			Symbol: req.Symbol, Price: int64(f.Price), Qty: int64(f.Qty), Nanos: f.Nanos,
		})
	}
	s.hub.BroadcastToChannel("orderbook:"+req.Symbol, struct{}{})

	respondJSON(w, toOrderResult(res))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ex.Engine.Cancel(req.OrderID); err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ex.Deposit(common.HexToAddress(req.Owner), req.Amount); err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ex.Withdraw(common.HexToAddress(req.Owner), req.Amount); err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func toOrderResult(res matching.Result) OrderResult {
	out := OrderResult{OrderID: res.OrderID, Status: res.Status.String(), Filled: int64(res.Filled)}
	for _, f := range res.Fills {
		out.Fills = append(out.Fills, FillInfo{Price: int64(f.Price), Qty: int64(f.Qty)})
	}
	return out
}

func statusForError(err error) int {
	code, ok := xerrors.CodeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch code {
	case xerrors.CodeNotFound, xerrors.CodeUnknownSymbol, xerrors.CodeUnknownOwner:
		return http.StatusNotFound
	case xerrors.CodeInsufficientMargin, xerrors.CodeInsufficientBalance,
		xerrors.CodeQtyOutOfRange, xerrors.CodeBadTick, xerrors.CodeBadLot,
		xerrors.CodeLotStepViolation, xerrors.CodeLeverageExceeded,
		xerrors.CodeNotionalTooSmall, xerrors.CodeDuplicateClientID,
		xerrors.CodeInvalidSide, xerrors.CodeInvalidKind, xerrors.CodePostOnlyWouldCross,
		xerrors.CodeFOKUnsatisfiable, xerrors.CodeNoLiquidity:
		return http.StatusBadRequest
	case xerrors.CodePriceOutOfRange, xerrors.CodeMarketHalted, xerrors.CodeInactiveSymbol:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, err error) {
	code, _ := xerrors.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error(), Code: string(code)})
}
