package curve

import "github.com/holiman/uint256"

// RedemptionRateCurveLen is the packed byte width of the curve record: five
// little-endian u128 fields (ray, maxSSR, ssr, rho, chi) in that order.
const RedemptionRateCurveLen = 80

// RedemptionRateCurve prices a pegged pair through a compounding redemption
// index, reproducing the rate of a remote accrual protocol at arbitrary
// elapsed time without continuous updates. Token B is the yield-bearing
// wrapper; one unit of B redeems for chi/ray units of the underlying token A.
//
// The tuple is replaced wholesale on every accepted update; no method mutates
// the receiver.
type RedemptionRateCurve struct {
	// Ray is the fixed-point scaling unit used by this instance.
	Ray *uint256.Int
	// MaxSSR caps the per-second rate; zero disables the ceiling.
	MaxSSR *uint256.Int
	// SSR is the per-second compounding rate, ray-scaled, never below Ray.
	SSR *uint256.Int
	// Rho is the checkpoint timestamp in seconds at which Chi was exact.
	Rho uint64
	// Chi is the accumulated redemption index at Rho, ray-scaled.
	Chi *uint256.Int
}

// NewRedemptionRateCurve builds a curve over the standard ray unit. maxSSR
// may be nil or zero to disable the rate ceiling.
func NewRedemptionRateCurve(ssr, chi *uint256.Int, rho uint64, maxSSR *uint256.Int) *RedemptionRateCurve {
	if maxSSR == nil {
		maxSSR = new(uint256.Int)
	}
	return &RedemptionRateCurve{
		Ray:    NewRay(),
		MaxSSR: new(uint256.Int).Set(maxSSR),
		SSR:    new(uint256.Int).Set(ssr),
		Rho:    rho,
		Chi:    new(uint256.Int).Set(chi),
	}
}

// ConversionRate returns the redemption index in force at the given
// timestamp: chi compounded forward from the checkpoint by ssr once per
// elapsed second. The elapsed time may be zero or span years; correctness is
// bounded only by the overflow limits of Rpow.
//
// timestamp < rho indicates a caller defect: the update validator never
// persists a checkpoint ahead of observed time.
func (c *RedemptionRateCurve) ConversionRate(timestamp uint64) (*uint256.Int, error) {
	if timestamp < c.Rho {
		return nil, ErrInvalidTimestamp
	}
	if timestamp == c.Rho {
		return new(uint256.Int).Set(c.Chi), nil
	}
	growth, err := Rpow(c.SSR, timestamp-c.Rho, c.Ray)
	if err != nil {
		return nil, err
	}
	return mulDivFloor(growth, c.Chi, c.Ray)
}

// SetRates validates a proposed (ssr, rho, chi) tuple against the current
// state and the caller-observed timestamp, returning the replacement curve on
// success. Validation is all-or-nothing: on any violation the receiver is
// untouched and the specific rule is reported. MaxSSR is carried over
// unchanged; it is only adjusted through a separate administrative path.
//
// A state whose checkpoint is still zero is treated as unconfigured
// bootstrap state: the monotonicity rules against the previous tuple are
// skipped for the first real configuration.
func (c *RedemptionRateCurve) SetRates(ssr *uint256.Int, rho uint64, chi *uint256.Int, now uint64) (*RedemptionRateCurve, error) {
	if rho > now {
		return nil, ErrInvalidTimestamp
	}
	if ssr.Lt(c.Ray) {
		return nil, ErrInvalidRate
	}
	if !c.MaxSSR.IsZero() && ssr.Gt(c.MaxSSR) {
		return nil, ErrInvalidRate
	}

	if c.Rho != 0 {
		if rho < c.Rho {
			return nil, ErrInvalidTimestamp
		}
		floor, err := c.ConversionRate(rho)
		if err != nil {
			return nil, err
		}
		if chi.Lt(floor) {
			return nil, ErrNonIncreasingIndex
		}
		if !c.MaxSSR.IsZero() {
			growth, err := Rpow(c.MaxSSR, rho-c.Rho, c.Ray)
			if err != nil {
				return nil, err
			}
			ceiling, err := mulDivFloor(growth, c.Chi, c.Ray)
			if err != nil {
				return nil, err
			}
			if chi.Gt(ceiling) {
				return nil, ErrExcessiveIndexGrowth
			}
		}
	}

	return &RedemptionRateCurve{
		Ray:    new(uint256.Int).Set(c.Ray),
		MaxSSR: new(uint256.Int).Set(c.MaxSSR),
		SSR:    new(uint256.Int).Set(ssr),
		Rho:    rho,
		Chi:    new(uint256.Int).Set(chi),
	}, nil
}

// SwapWithoutFees converts at the compounded index. B→A multiplies by the
// index and floors the payout; A→B floors the destination, then charges the
// smallest source amount that buys it (ceiling), so the pool never pays out
// more value than it received.
func (c *RedemptionRateCurve) SwapWithoutFees(sourceAmount, _, _ *uint256.Int, direction TradeDirection, timestamp uint64) (*SwapResult, error) {
	price, err := c.ConversionRate(timestamp)
	if err != nil {
		return nil, err
	}
	if price.IsZero() {
		return nil, ErrInvalidCurve
	}

	var sourceSwapped, destinationSwapped *uint256.Int
	switch direction {
	case TradeDirectionBToA:
		destinationSwapped, err = mulDivFloor(sourceAmount, price, c.Ray)
		if err != nil {
			return nil, err
		}
		sourceSwapped = new(uint256.Int).Set(sourceAmount)
	default:
		destinationSwapped, err = mulDivFloor(sourceAmount, c.Ray, price)
		if err != nil {
			return nil, err
		}
		sourceSwapped, err = mulDivCeil(destinationSwapped, price, c.Ray)
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

// PoolTokensToTradingTokens splits pool tokens into both trading tokens by
// the pool's normalized value, expressing the B side through the index.
func (c *RedemptionRateCurve) PoolTokensToTradingTokens(poolTokens, poolTokenSupply, swapTokenAAmount, swapTokenBAmount *uint256.Int, round RoundDirection, timestamp uint64) (*TradingTokenResult, error) {
	price, err := c.ConversionRate(timestamp)
	if err != nil {
		return nil, err
	}
	totalValue, err := c.NormalizedValue(swapTokenAAmount, swapTokenBAmount, timestamp)
	if err != nil {
		return nil, err
	}
	if poolTokenSupply.IsZero() || price.IsZero() {
		return nil, ErrEmptySupply
	}

	share, overflow := new(uint256.Int).MulOverflow(poolTokens, totalValue)
	if overflow {
		return nil, ErrOverflow
	}

	var tokenA, tokenB *uint256.Int
	switch round {
	case RoundCeiling:
		if tokenA, err = mulDivCeil(share, one, poolTokenSupply); err != nil {
			return nil, err
		}
		valueAsB, err := mulDivCeil(share, c.Ray, price)
		if err != nil {
			return nil, err
		}
		if tokenB, err = mulDivCeil(valueAsB, one, poolTokenSupply); err != nil {
			return nil, err
		}
	default:
		tokenA = new(uint256.Int).Div(share, poolTokenSupply)
		if tokenA.Gt(swapTokenAAmount) {
			tokenA.Set(swapTokenAAmount)
		}
		scaled, err := mulDivFloor(share, c.Ray, price)
		if err != nil {
			return nil, err
		}
		tokenB = scaled.Div(scaled, poolTokenSupply)
		if tokenB.Gt(swapTokenBAmount) {
			tokenB.Set(swapTokenBAmount)
		}
	}
	return &TradingTokenResult{TokenAAmount: tokenA, TokenBAmount: tokenB}, nil
}

// DepositSingleTokenType prices a single-sided exact-in deposit, flooring in
// the pool's favour.
func (c *RedemptionRateCurve) DepositSingleTokenType(sourceAmount, swapTokenAAmount, swapTokenBAmount, poolSupply *uint256.Int, direction TradeDirection, timestamp uint64) (*uint256.Int, error) {
	price, err := c.ConversionRate(timestamp)
	if err != nil {
		return nil, err
	}
	return tradingTokensToPoolTokens(price, c.Ray, sourceAmount, swapTokenAAmount, swapTokenBAmount, poolSupply, direction, RoundFloor)
}

// WithdrawSingleTokenTypeExactOut prices a single-sided exact-out withdrawal.
func (c *RedemptionRateCurve) WithdrawSingleTokenTypeExactOut(sourceAmount, swapTokenAAmount, swapTokenBAmount, poolSupply *uint256.Int, direction TradeDirection, round RoundDirection, timestamp uint64) (*uint256.Int, error) {
	price, err := c.ConversionRate(timestamp)
	if err != nil {
		return nil, err
	}
	return tradingTokensToPoolTokens(price, c.Ray, sourceAmount, swapTokenAAmount, swapTokenBAmount, poolSupply, direction, round)
}

// NormalizedValue values the reserves as underlying-token units: the B side
// scaled through the index, averaged with the A side.
func (c *RedemptionRateCurve) NormalizedValue(swapTokenAAmount, swapTokenBAmount *uint256.Int, timestamp uint64) (*uint256.Int, error) {
	price, err := c.ConversionRate(timestamp)
	if err != nil {
		return nil, err
	}
	bValue, err := mulDivFloor(swapTokenBAmount, price, c.Ray)
	if err != nil {
		return nil, err
	}
	total, overflow := new(uint256.Int).AddOverflow(swapTokenAAmount, bValue)
	if overflow {
		return nil, ErrOverflow
	}
	return total.Rsh(total, 1), nil
}

// Validate rejects a curve whose stored tuple already violates the rate
// invariants or whose index would price trades at zero.
func (c *RedemptionRateCurve) Validate(timestamp uint64) error {
	if c.Ray == nil || c.Ray.IsZero() || c.SSR == nil || c.Chi == nil || c.MaxSSR == nil {
		return ErrMalformedState
	}
	if c.SSR.Lt(c.Ray) {
		return ErrInvalidRate
	}
	if c.Chi.IsZero() {
		return ErrInvalidCurve
	}
	price, err := c.ConversionRate(timestamp)
	if err != nil {
		return err
	}
	if price.IsZero() {
		return ErrInvalidCurve
	}
	return nil
}

// ValidateSupply requires underlying-token liquidity at pool creation.
func (c *RedemptionRateCurve) ValidateSupply(tokenAAmount, _ uint64) error {
	if tokenAAmount == 0 {
		return ErrEmptySupply
	}
	return nil
}

// Pack writes the record into its 80-byte slot: ray, maxSSR, ssr, rho, chi
// as little-endian u128 in a layout that is persisted on chain and must not
// change.
func (c *RedemptionRateCurve) Pack(dst []byte) error {
	if len(dst) < RedemptionRateCurveLen {
		return ErrMalformedState
	}
	if err := putUint128(dst[0:16], c.Ray); err != nil {
		return err
	}
	if err := putUint128(dst[16:32], c.MaxSSR); err != nil {
		return err
	}
	if err := putUint128(dst[32:48], c.SSR); err != nil {
		return err
	}
	if err := putUint128(dst[48:64], uint256.NewInt(c.Rho)); err != nil {
		return err
	}
	return putUint128(dst[64:80], c.Chi)
}

// UnpackRedemptionRateCurve decodes the 80-byte record, enforcing the
// structural bounds the packed layout cannot express.
func UnpackRedemptionRateCurve(src []byte) (*RedemptionRateCurve, error) {
	if len(src) < RedemptionRateCurveLen {
		return nil, ErrMalformedState
	}
	ray := readUint128(src[0:16])
	if ray.IsZero() {
		return nil, ErrMalformedState
	}
	rho := readUint128(src[48:64])
	if !rho.IsUint64() {
		return nil, ErrMalformedState
	}
	return &RedemptionRateCurve{
		Ray:    ray,
		MaxSSR: readUint128(src[16:32]),
		SSR:    readUint128(src[32:48]),
		Rho:    rho.Uint64(),
		Chi:    readUint128(src[64:80]),
	}, nil
}

// tradingTokensToPoolTokens converts a trading-token amount into pool tokens
// by its share of the pool's total value, with the B side expressed through
// the redemption index.
func tradingTokensToPoolTokens(tokenBPrice, ray, sourceAmount, swapTokenAAmount, swapTokenBAmount, poolSupply *uint256.Int, direction TradeDirection, round RoundDirection) (*uint256.Int, error) {
	givenValue := new(uint256.Int).Set(sourceAmount)
	if direction == TradeDirectionBToA {
		scaled, err := mulDivFloor(sourceAmount, tokenBPrice, ray)
		if err != nil {
			return nil, err
		}
		givenValue = scaled
	}

	bValue, err := mulDivFloor(swapTokenBAmount, tokenBPrice, ray)
	if err != nil {
		return nil, err
	}
	totalValue, overflow := new(uint256.Int).AddOverflow(bValue, swapTokenAAmount)
	if overflow {
		return nil, ErrOverflow
	}
	if totalValue.IsZero() {
		return nil, ErrEmptySupply
	}

	if round == RoundCeiling {
		return mulDivCeil(poolSupply, givenValue, totalValue)
	}
	product, overflow := new(uint256.Int).MulOverflow(poolSupply, givenValue)
	if overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, totalValue), nil
}

var one = uint256.NewInt(1)
