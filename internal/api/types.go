package api

// SubmitOrderRequest is the JSON body for POST /api/v1/orders.
type SubmitOrderRequest struct {
	ClientID string `json:"client_id"`
	Owner    string `json:"owner"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Kind     string `json:"kind"`
	Price    int64  `json:"price"`
	Qty      int64  `json:"qty"`
}

// CancelOrderRequest is the JSON body for POST /api/v1/orders/cancel.
type CancelOrderRequest struct {
	OrderID int64 `json:"order_id"`
}

// FillInfo is one execution leg of a Submit response.
type FillInfo struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// OrderResult mirrors matching.Result for JSON.
type OrderResult struct {
	OrderID int64      `json:"order_id"`
	Status  string     `json:"status"`
	Filled  int64      `json:"filled"`
	Fills   []FillInfo `json:"fills"`
}

// PriceLevel is one side's book level.
type PriceLevel struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// OrderbookSnapshot is the response for GET /markets/{symbol}/orderbook.
type OrderbookSnapshot struct {
	Symbol string       `json:"symbol"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
}

// MarketInfo is the response shape for GET /markets and /markets/{symbol}.
type MarketInfo struct {
	Symbol               string `json:"symbol"`
	Tag                  string `json:"tag"`
	TickSize             int64  `json:"tick_size"`
	MinQty               int64  `json:"min_qty"`
	MaxQty               int64  `json:"max_qty"`
	MakerFeeBps          int64  `json:"maker_fee_bps"`
	TakerFeeBps          int64  `json:"taker_fee_bps"`
	MaintenanceMarginBps int64  `json:"maintenance_margin_bps"`
	MarkPrice            int64  `json:"mark_price"`
	Active               bool   `json:"active"`
	CircuitBreaker       []string `json:"circuit_breaker,omitempty"`
}

// PositionInfo is one open position, as reported to an account holder.
type PositionInfo struct {
	Symbol      string `json:"symbol"`
	Size        int64  `json:"size"`
	Entry       int64  `json:"entry"`
	Margin      int64  `json:"margin"`
	RealizedPnL int64  `json:"realized_pnl"`
	Unrealized  int64  `json:"unrealized"`
}

// AccountInfo is the response for GET /accounts/{address}.
type AccountInfo struct {
	Owner       string         `json:"owner"`
	Free        int64          `json:"free"`
	OrderMargin int64          `json:"order_margin"`
	Reserved    int64          `json:"reserved"`
	Equity      int64          `json:"equity"`
	Positions   []PositionInfo `json:"positions"`
}

// TradeInfo is one row of trade history.
type TradeInfo struct {
	Seq          uint64 `json:"seq"`
	Nanos        int64  `json:"nanos"`
	Symbol       string `json:"symbol"`
	Counterparty string `json:"counterparty"`
	SignedQty    int64  `json:"signed_qty"`
	Price        int64  `json:"price"`
	Fee          int64  `json:"fee"`
}

// TransferRequest is the JSON body for deposit/withdraw endpoints.
type TransferRequest struct {
	Owner  string `json:"owner"`
	Amount int64  `json:"amount"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WSSubscribeRequest is a client->server subscription control message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// TradeEvent is broadcast over the "trades:{symbol}" channel on every fill.
type TradeEvent struct {
	Symbol string `json:"symbol"`
	Price  int64  `json:"price"`
	Qty    int64  `json:"qty"`
	Nanos  int64  `json:"nanos"`
}
