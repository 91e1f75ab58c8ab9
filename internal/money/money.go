// Package money implements the scaled-integer arithmetic used across the
// matching, margin, and accounting paths. Prices are micro-quote (1e-6 of the
// quote currency, MNT); quantities are micro-lot; ratios are basis points.
// No floating point is used here — conversions to display units belong at the
// transport boundary only (internal/api), never here.
package money

// Price is a quote-currency amount in micro-units (1e-6 MNT).
type Price int64

// Qty is a lot amount in micro-lots.
type Qty int64

// Bps is a basis-point ratio (1 bps = 1/10000).
type Bps int64

const BpsDenominator = 10000

// Notional returns the raw product price * qty; no rescaling is applied.
// price is micro-quote, qty is micro-lot; both are already integer-scaled,
// so the raw product is in micro-quote * micro-lot units — callers that need
// a true micro-quote notional must pre-agree on lot scale via the symbol's
// LotSize the same way the teacher's market.RequiredInitialMargin does,
// treating qty as already lot-normalized.
func Notional(price Price, qty Qty) int64 {
	return int64(price) * int64(qty)
}

// AbsQty returns the absolute value of q.
func AbsQty(q Qty) Qty {
	if q < 0 {
		return -q
	}
	return q
}

// ApplyBps scales notional by bps/10000, truncating toward zero.
func ApplyBps(notional int64, bps Bps) int64 {
	return (notional * int64(bps)) / BpsDenominator
}

// Bands returns the inclusive [lower, upper] price band around anchor for a
// deviation expressed in bps (e.g. 500 bps = 5%).
func Bands(anchor Price, deviationBps Bps) (lower, upper Price) {
	delta := ApplyBps(int64(anchor), deviationBps)
	lower = anchor - Price(delta)
	upper = anchor + Price(delta)
	return
}

// InBand reports whether p falls within [lower, upper] inclusive.
func InBand(p, lower, upper Price) bool {
	return p >= lower && p <= upper
}
