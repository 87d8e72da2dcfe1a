package curve

import "github.com/holiman/uint256"

// TradeDirection identifies which side of the pair is the trade input.
type TradeDirection int

const (
	// TradeDirectionAToB swaps the underlying token for the yield-bearing
	// wrapper token.
	TradeDirectionAToB TradeDirection = iota
	// TradeDirectionBToA swaps the wrapper token back into the underlying.
	TradeDirectionBToA
)

// Opposite returns the reverse trade direction.
func (d TradeDirection) Opposite() TradeDirection {
	if d == TradeDirectionAToB {
		return TradeDirectionBToA
	}
	return TradeDirectionAToB
}

// RoundDirection selects the rounding applied when a conversion does not
// divide evenly.
type RoundDirection int

const (
	// RoundFloor rounds down, used for amounts the pool pays out.
	RoundFloor RoundDirection = iota
	// RoundCeiling rounds up, used for amounts the pool takes in.
	RoundCeiling
)

// SwapResult reports the amounts actually exchanged by a fee-less swap
// conversion. The source side may be smaller than requested when the curve
// only consumes full price multiples.
type SwapResult struct {
	SourceAmountSwapped      *uint256.Int
	DestinationAmountSwapped *uint256.Int
}

// TradingTokenResult reports the paired token amounts corresponding to a
// quantity of pool tokens.
type TradingTokenResult struct {
	TokenAAmount *uint256.Int
	TokenBAmount *uint256.Int
}

// Calculator is the uniform capability every swap-pricing strategy exposes to
// the surrounding pool framework. Timestamps arrive as explicit inputs from
// the host; implementations never read a clock. Curves that do not depend on
// time ignore the parameter.
type Calculator interface {
	// SwapWithoutFees converts a source amount into a destination amount at
	// the curve's price, before any fee accounting.
	SwapWithoutFees(sourceAmount, swapSourceAmount, swapDestinationAmount *uint256.Int, direction TradeDirection, timestamp uint64) (*SwapResult, error)

	// PoolTokensToTradingTokens converts pool tokens into the proportional
	// amounts of each trading token given current reserves and supply.
	PoolTokensToTradingTokens(poolTokens, poolTokenSupply, swapTokenAAmount, swapTokenBAmount *uint256.Int, round RoundDirection, timestamp uint64) (*TradingTokenResult, error)

	// DepositSingleTokenType prices an exact-amount-in single-sided deposit
	// in pool tokens, rounding against the depositor.
	DepositSingleTokenType(sourceAmount, swapTokenAAmount, swapTokenBAmount, poolSupply *uint256.Int, direction TradeDirection, timestamp uint64) (*uint256.Int, error)

	// WithdrawSingleTokenTypeExactOut prices an exact-amount-out single-sided
	// withdrawal in pool tokens.
	WithdrawSingleTokenTypeExactOut(sourceAmount, swapTokenAAmount, swapTokenBAmount, poolSupply *uint256.Int, direction TradeDirection, round RoundDirection, timestamp uint64) (*uint256.Int, error)

	// NormalizedValue reports the invariant value of the pool reserves used
	// to check that trades and liquidity events never shrink the pool.
	NormalizedValue(swapTokenAAmount, swapTokenBAmount *uint256.Int, timestamp uint64) (*uint256.Int, error)

	// Validate rejects a curve whose parameters cannot price trades.
	Validate(timestamp uint64) error

	// ValidateSupply rejects initial reserve amounts the curve cannot accept.
	ValidateSupply(tokenAAmount, tokenBAmount uint64) error

	// Pack serializes the calculator into its fixed-width slot. The layout is
	// persisted on chain and must remain stable across versions.
	Pack(dst []byte) error
}

// zeroToErr rejects conversion results that round to nothing; the surrounding
// pool treats a zero-amount leg as a defective trade rather than a no-op.
func zeroToErr(v *uint256.Int) (*uint256.Int, error) {
	if v.IsZero() {
		return nil, ErrZeroTrade
	}
	return v, nil
}
