package curve

import "errors"

var (
	// ErrOverflow is returned when an arithmetic step cannot be represented
	// even in the widened 256-bit working type. It is never saturated away.
	ErrOverflow = errors.New("swap curve: arithmetic overflow")
	// ErrInvalidTimestamp is returned when a proposed checkpoint sits in the
	// future, moves backward in time, or an internal now >= rho precondition
	// is violated.
	ErrInvalidTimestamp = errors.New("swap curve: invalid timestamp")
	// ErrInvalidRate is returned when a proposed per-second rate is below the
	// no-accrual floor or above the configured ceiling.
	ErrInvalidRate = errors.New("swap curve: rate outside allowed bounds")
	// ErrNonIncreasingIndex is returned when a proposed index is smaller than
	// what compounding the prior configuration would already imply.
	ErrNonIncreasingIndex = errors.New("swap curve: index below compounded floor")
	// ErrExcessiveIndexGrowth is returned when a proposed index exceeds what
	// compounding the configured maximum rate could have produced.
	ErrExcessiveIndexGrowth = errors.New("swap curve: index above maximum growth")
	// ErrMalformedState is returned when a persisted curve record fails a
	// structural or invariant check during deserialization.
	ErrMalformedState = errors.New("swap curve: malformed persisted state")

	// ErrInvalidCurve is returned when a curve instance prices at zero or is
	// otherwise unusable for trading.
	ErrInvalidCurve = errors.New("swap curve: curve parameters unusable")
	// ErrEmptySupply is returned when pool supply preconditions are not met.
	ErrEmptySupply = errors.New("swap curve: empty token supply")
	// ErrZeroTrade is returned when a conversion would round to nothing on
	// either side of the trade.
	ErrZeroTrade = errors.New("swap curve: trade amount rounds to zero")
	// ErrUnsupportedCurve is returned when a persisted curve tag does not map
	// to a known curve kind.
	ErrUnsupportedCurve = errors.New("swap curve: unsupported curve type")
)
