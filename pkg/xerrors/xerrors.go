// Package xerrors defines the reason-code error taxonomy shared by every
// component of the exchange core (§7 of the design: validation, market,
// account, concurrency, integration, and invariant errors).
package xerrors

import (
	"github.com/cockroachdb/errors"
)

// Code is a precise, machine-checkable rejection reason. Callers switch on
// Code rather than parsing error strings.
type Code string

const (
	// Validation
	CodeUnknownSymbol      Code = "unknown-symbol"
	CodeInactiveSymbol     Code = "inactive-symbol"
	CodeInvalidSide        Code = "invalid-side"
	CodeInvalidKind        Code = "invalid-kind"
	CodeBadTick            Code = "bad-tick"
	CodeBadLot             Code = "bad-lot"
	CodeQtyOutOfRange      Code = "qty-out-of-range"
	CodeLotStepViolation   Code = "lot-step-violation"
	CodeNotionalTooSmall   Code = "notional-too-small"
	CodeDuplicateClientID  Code = "duplicate-client-id"

	// Market
	CodePriceOutOfRange     Code = "price-out-of-range"
	CodeMarketHalted        Code = "market-halted"
	CodePostOnlyWouldCross  Code = "post-only-would-cross"
	CodeFOKUnsatisfiable    Code = "fok-unsatisfiable"
	CodeNoLiquidity         Code = "no-liquidity"

	// Account
	CodeInsufficientMargin  Code = "insufficient-margin"
	CodeInsufficientBalance Code = "insufficient-balance"
	CodeUnknownOwner        Code = "unknown-owner"
	CodeLeverageExceeded    Code = "leverage-exceeded"

	// Concurrency / overflow
	CodeEventRingFull Code = "event-ring-full"

	// Integration
	CodeHedgeFailed          Code = "hedge-failed"
	CodeAdapterDisconnected  Code = "adapter-disconnected"

	// Invariant
	CodeInternalInconsistency Code = "internal-inconsistency"

	// Not-found (cancel, query)
	CodeNotFound Code = "not-found"
)

// Error pairs a Code with a human-readable, wrapped error.
type Error struct {
	Code Code
	err  error
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.err.Error() }
func (e *Error) Unwrap() error { return e.err }

// New builds a reason-coded error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, err: errors.Newf(format, args...)}
}

// Wrap attaches a reason code to an existing error, preserving its stack.
func Wrap(code Code, err error, msg string) *Error {
	return &Error{Code: code, err: errors.Wrap(err, msg)}
}

// CodeOf extracts the Code from err, if it (or something it wraps) is an
// *Error. Returns ("", false) otherwise.
func CodeOf(err error) (Code, bool) {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Code, true
	}
	return "", false
}

// Is reports whether err carries the given reason code.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
