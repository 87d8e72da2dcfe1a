package curve

import "github.com/holiman/uint256"

// ConstantPriceCurveLen is the packed byte width of the constant price
// record: a single little-endian u128 inside the fixed calculator slot.
const ConstantPriceCurveLen = 16

// ConstantPriceCurve prices the pair at a fixed ratio chosen at pool
// initialization: TokenBPrice underlying units buy one wrapper unit,
// ray-scaled. It shares the calculator capability with the redemption-rate
// curve but ignores timestamps entirely.
type ConstantPriceCurve struct {
	// TokenBPrice is the amount of token A per token B, scaled by Ray.
	TokenBPrice *uint256.Int
}

// NewConstantPriceCurve builds a fixed-price curve.
func NewConstantPriceCurve(tokenBPrice *uint256.Int) *ConstantPriceCurve {
	return &ConstantPriceCurve{TokenBPrice: new(uint256.Int).Set(tokenBPrice)}
}

// SwapWithoutFees charges only full multiples of the price; the remainder of
// the source amount is left with the trader.
func (c *ConstantPriceCurve) SwapWithoutFees(sourceAmount, _, _ *uint256.Int, direction TradeDirection, _ uint64) (*SwapResult, error) {
	if c.TokenBPrice.IsZero() {
		return nil, ErrInvalidCurve
	}

	var sourceSwapped, destinationSwapped *uint256.Int
	var err error
	switch direction {
	case TradeDirectionBToA:
		destinationSwapped, err = mulDivFloor(sourceAmount, c.TokenBPrice, Ray)
		if err != nil {
			return nil, err
		}
		sourceSwapped = new(uint256.Int).Set(sourceAmount)
	default:
		destinationSwapped, err = mulDivFloor(sourceAmount, Ray, c.TokenBPrice)
		if err != nil {
			return nil, err
		}
		sourceSwapped, err = mulDivCeil(destinationSwapped, c.TokenBPrice, Ray)
		if err != nil {
			return nil, err
		}
		if sourceSwapped.Gt(sourceAmount) {
			return nil, ErrZeroTrade
		}
	}

	if sourceSwapped, err = zeroToErr(sourceSwapped); err != nil {
		return nil, err
	}
	if destinationSwapped, err = zeroToErr(destinationSwapped); err != nil {
		return nil, err
	}
	return &SwapResult{
		SourceAmountSwapped:      sourceSwapped,
		DestinationAmountSwapped: destinationSwapped,
	}, nil
}

// PoolTokensToTradingTokens splits pool tokens proportionally to the raw
// reserves; the fixed price plays no role in the split.
func (c *ConstantPriceCurve) PoolTokensToTradingTokens(poolTokens, poolTokenSupply, swapTokenAAmount, swapTokenBAmount *uint256.Int, round RoundDirection, _ uint64) (*TradingTokenResult, error) {
	if poolTokenSupply.IsZero() {
		return nil, ErrEmptySupply
	}
	var tokenA, tokenB *uint256.Int
	var err error
	if round == RoundCeiling {
		if tokenA, err = mulDivCeil(poolTokens, swapTokenAAmount, poolTokenSupply); err != nil {
			return nil, err
		}
		if tokenB, err = mulDivCeil(poolTokens, swapTokenBAmount, poolTokenSupply); err != nil {
			return nil, err
		}
	} else {
		if tokenA, err = mulDivFloor(poolTokens, swapTokenAAmount, poolTokenSupply); err != nil {
			return nil, err
		}
		if tokenB, err = mulDivFloor(poolTokens, swapTokenBAmount, poolTokenSupply); err != nil {
			return nil, err
		}
	}
	return &TradingTokenResult{TokenAAmount: tokenA, TokenBAmount: tokenB}, nil
}

// DepositSingleTokenType prices a single-sided exact-in deposit at the fixed
// price, flooring in the pool's favour.
func (c *ConstantPriceCurve) DepositSingleTokenType(sourceAmount, swapTokenAAmount, swapTokenBAmount, poolSupply *uint256.Int, direction TradeDirection, _ uint64) (*uint256.Int, error) {
	return tradingTokensToPoolTokens(c.TokenBPrice, Ray, sourceAmount, swapTokenAAmount, swapTokenBAmount, poolSupply, direction, RoundFloor)
}

// WithdrawSingleTokenTypeExactOut prices a single-sided exact-out withdrawal
// at the fixed price.
func (c *ConstantPriceCurve) WithdrawSingleTokenTypeExactOut(sourceAmount, swapTokenAAmount, swapTokenBAmount, poolSupply *uint256.Int, direction TradeDirection, round RoundDirection, _ uint64) (*uint256.Int, error) {
	return tradingTokensToPoolTokens(c.TokenBPrice, Ray, sourceAmount, swapTokenAAmount, swapTokenBAmount, poolSupply, direction, round)
}

// NormalizedValue values the reserves at the fixed price, averaged across
// the two sides.
func (c *ConstantPriceCurve) NormalizedValue(swapTokenAAmount, swapTokenBAmount *uint256.Int, _ uint64) (*uint256.Int, error) {
	bValue, err := mulDivFloor(swapTokenBAmount, c.TokenBPrice, Ray)
	if err != nil {
		return nil, err
	}
	total, overflow := new(uint256.Int).AddOverflow(swapTokenAAmount, bValue)
	if overflow {
		return nil, ErrOverflow
	}
	return total.Rsh(total, 1), nil
}

// Validate rejects a zero price.
func (c *ConstantPriceCurve) Validate(_ uint64) error {
	if c.TokenBPrice == nil || c.TokenBPrice.IsZero() {
		return ErrInvalidCurve
	}
	return nil
}

// ValidateSupply requires underlying-token liquidity at pool creation.
func (c *ConstantPriceCurve) ValidateSupply(tokenAAmount, _ uint64) error {
	if tokenAAmount == 0 {
		return ErrEmptySupply
	}
	return nil
}

// Pack writes the price into the head of the calculator slot.
func (c *ConstantPriceCurve) Pack(dst []byte) error {
	if len(dst) < ConstantPriceCurveLen {
		return ErrMalformedState
	}
	return putUint128(dst[0:16], c.TokenBPrice)
}

// UnpackConstantPriceCurve decodes the fixed-price record.
func UnpackConstantPriceCurve(src []byte) (*ConstantPriceCurve, error) {
	if len(src) < ConstantPriceCurveLen {
		return nil, ErrMalformedState
	}
	return &ConstantPriceCurve{TokenBPrice: readUint128(src[0:16])}, nil
}
