// Package matching implements C4: the core matching engine. One Engine
// serializes admission and execution per symbol (spec.md §5's per-symbol
// region), wiring together the order book (C3), the position ledger (C5),
// the accounting journal (C6), and the market controller (C7) into a single
// submit/cancel/query surface.
package matching

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mn-exchange/engine/internal/money"
	"github.com/mn-exchange/engine/internal/orderbook"
)

// Kind is the order admission/execution semantic.
type Kind int8

const (
	KindLimit Kind = iota
	KindMarket
	KindIOC
	KindFOK
	KindPostOnly
)

func (k Kind) String() string {
	switch k {
	case KindLimit:
		return "limit"
	case KindMarket:
		return "market"
	case KindIOC:
		return "ioc"
	case KindFOK:
		return "fok"
	case KindPostOnly:
		return "post_only"
	default:
		return "unknown"
	}
}

// ParseKind maps the API's lowercase kind strings back to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "limit":
		return KindLimit, true
	case "market":
		return KindMarket, true
	case "ioc":
		return KindIOC, true
	case "fok":
		return KindFOK, true
	case "post_only":
		return KindPostOnly, true
	default:
		return 0, false
	}
}

// Status tracks an order's lifecycle after admission.
type Status int8

const (
	StatusOpen Status = iota
	StatusPartiallyFilled    // resting, some quantity filled, remainder still on the book
	StatusFilled
	StatusPartiallyCancelled // IOC/market/FOK residual discarded, some quantity did fill
	StatusCancelled
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusPartiallyCancelled:
		return "partially_cancelled"
	case StatusCancelled:
		return "cancelled"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Request is an incoming order, before admission checks run.
type Request struct {
	ClientID string
	Owner    common.Address
	Symbol   string
	Side     orderbook.Side
	Kind     Kind
	Price    money.Price // ignored for KindMarket
	Qty      money.Qty
}

// meta is the matching engine's own record of an admitted order, tracked
// independently of orderbook.RestingOrder (which only carries what the book
// needs for price-time priority). It lets both the taker leg and any later
// resting remainder release margin proportionally to how much has filled.
type meta struct {
	ID             int64
	ClientID       string
	Owner          common.Address
	Symbol         string
	Side           orderbook.Side
	Kind           Kind
	Price          money.Price
	OriginalQty    money.Qty
	FilledQty      money.Qty
	ReservedMargin int64
	Status         Status
	AdmittedAt     int64
}

func (m *meta) remaining() money.Qty { return m.OriginalQty - m.FilledQty }

// Fill is one execution leg surfaced to callers (telemetry, read model).
type Fill struct {
	TakerOrderID int64
	MakerOrderID int64
	Symbol       string
	Taker        common.Address
	Maker        common.Address
	TakerSide    orderbook.Side
	Price        money.Price
	Qty          money.Qty
	Nanos        int64
}

// Result is what Submit returns.
type Result struct {
	OrderID int64
	Status  Status
	Filled  money.Qty
	Fills   []Fill
}

func nowNanos() int64 { return time.Now().UnixNano() }
