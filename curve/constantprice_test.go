package curve

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestConstantPriceSwap(t *testing.T) {
	price := new(uint256.Int).Mul(Ray, uint256.NewInt(2))
	c := NewConstantPriceCurve(price)

	result, err := c.SwapWithoutFees(uint256.NewInt(100), new(uint256.Int), new(uint256.Int), TradeDirectionAToB, 0)
	if err != nil {
		t.Fatalf("swap a to b: %v", err)
	}
	if !result.SourceAmountSwapped.Eq(uint256.NewInt(100)) || !result.DestinationAmountSwapped.Eq(uint256.NewInt(50)) {
		t.Fatalf("a to b at price 2: %+v", result)
	}

	result, err = c.SwapWithoutFees(uint256.NewInt(100), new(uint256.Int), new(uint256.Int), TradeDirectionBToA, 0)
	if err != nil {
		t.Fatalf("swap b to a: %v", err)
	}
	if !result.SourceAmountSwapped.Eq(uint256.NewInt(100)) || !result.DestinationAmountSwapped.Eq(uint256.NewInt(200)) {
		t.Fatalf("b to a at price 2: %+v", result)
	}
}

func TestConstantPriceSwapPartialMultiple(t *testing.T) {
	price := new(uint256.Int).Mul(Ray, uint256.NewInt(3))
	c := NewConstantPriceCurve(price)

	// 100 underlying buys 33 wrapper units; the charge is the exact cost of
	// those 33, not the full offer.
	result, err := c.SwapWithoutFees(uint256.NewInt(100), new(uint256.Int), new(uint256.Int), TradeDirectionAToB, 0)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !result.DestinationAmountSwapped.Eq(uint256.NewInt(33)) {
		t.Fatalf("destination: got %s want 33", result.DestinationAmountSwapped)
	}
	if !result.SourceAmountSwapped.Eq(uint256.NewInt(99)) {
		t.Fatalf("source consumed: got %s want 99", result.SourceAmountSwapped)
	}
}

func TestConstantPriceZeroTrade(t *testing.T) {
	price := new(uint256.Int).Mul(Ray, uint256.NewInt(1000))
	c := NewConstantPriceCurve(price)
	if _, err := c.SwapWithoutFees(uint256.NewInt(999), new(uint256.Int), new(uint256.Int), TradeDirectionAToB, 0); !errors.Is(err, ErrZeroTrade) {
		t.Fatalf("expected zero trade, got %v", err)
	}
}

func TestConstantPricePoolTokenSplit(t *testing.T) {
	c := NewConstantPriceCurve(new(uint256.Int).Mul(Ray, uint256.NewInt(2)))

	result, err := c.PoolTokensToTradingTokens(uint256.NewInt(10), uint256.NewInt(40), uint256.NewInt(100), uint256.NewInt(7), RoundFloor, 0)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	// Raw proportional split, price not involved: 10/40 of each reserve.
	if !result.TokenAAmount.Eq(uint256.NewInt(25)) || !result.TokenBAmount.Eq(one) {
		t.Fatalf("floor split: %+v", result)
	}

	result, err = c.PoolTokensToTradingTokens(uint256.NewInt(10), uint256.NewInt(40), uint256.NewInt(100), uint256.NewInt(7), RoundCeiling, 0)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if !result.TokenAAmount.Eq(uint256.NewInt(25)) || !result.TokenBAmount.Eq(uint256.NewInt(2)) {
		t.Fatalf("ceiling split: %+v", result)
	}

	if _, err := c.PoolTokensToTradingTokens(uint256.NewInt(10), new(uint256.Int), uint256.NewInt(100), uint256.NewInt(7), RoundFloor, 0); !errors.Is(err, ErrEmptySupply) {
		t.Fatalf("expected empty supply, got %v", err)
	}
}

func TestConstantPriceValidate(t *testing.T) {
	if err := NewConstantPriceCurve(NewRay()).Validate(0); err != nil {
		t.Fatalf("valid curve rejected: %v", err)
	}
	if err := NewConstantPriceCurve(new(uint256.Int)).Validate(0); !errors.Is(err, ErrInvalidCurve) {
		t.Fatalf("expected invalid curve, got %v", err)
	}
	if err := NewConstantPriceCurve(NewRay()).ValidateSupply(0, 10); !errors.Is(err, ErrEmptySupply) {
		t.Fatalf("expected empty supply, got %v", err)
	}
}

func TestConstantPricePackRoundTrip(t *testing.T) {
	c := NewConstantPriceCurve(uint256.MustFromDecimal("42000000000000000000000000000"))
	buf := make([]byte, ConstantPriceCurveLen)
	if err := c.Pack(buf); err != nil {
		t.Fatalf("pack: %v", err)
	}
	got, err := UnpackConstantPriceCurve(buf)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !got.TokenBPrice.Eq(c.TokenBPrice) {
		t.Fatalf("round trip: got %s want %s", got.TokenBPrice, c.TokenBPrice)
	}
	if _, err := UnpackConstantPriceCurve(buf[:8]); !errors.Is(err, ErrMalformedState) {
		t.Fatalf("expected malformed state, got %v", err)
	}
}
