package curve

import (
	"encoding/binary"

	"github.com/holiman/uint256"
)

// Ray is the fixed-point scaling unit for all rate-domain quantities: a real
// number r is carried as the integer r * 1e27. Token amounts stay in the
// token's native smallest unit and are never ray-scaled.
var Ray = uint256.MustFromDecimal("1000000000000000000000000000")

// NewRay returns a fresh copy of the ray unit.
func NewRay() *uint256.Int {
	return new(uint256.Int).Set(Ray)
}

// mulDivFloor computes floor(a * b / denom) in 256-bit space. The multiply is
// checked; wraparound surfaces as ErrOverflow.
func mulDivFloor(a, b, denom *uint256.Int) (*uint256.Int, error) {
	if denom.IsZero() {
		return nil, ErrOverflow
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, denom), nil
}

// mulDivCeil computes ceil(a * b / denom) in 256-bit space with the same
// overflow policy as mulDivFloor.
func mulDivCeil(a, b, denom *uint256.Int) (*uint256.Int, error) {
	if denom.IsZero() {
		return nil, ErrOverflow
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	quotient, remainder := new(uint256.Int).DivMod(product, denom, new(uint256.Int))
	if !remainder.IsZero() {
		quotient.AddUint64(quotient, 1)
	}
	return quotient, nil
}

// putUint128 writes v into dst as a 16-byte little-endian field. Values wider
// than 128 bits cannot be persisted and are rejected.
func putUint128(dst []byte, v *uint256.Int) error {
	if v[2] != 0 || v[3] != 0 {
		return ErrOverflow
	}
	binary.LittleEndian.PutUint64(dst[0:8], v[0])
	binary.LittleEndian.PutUint64(dst[8:16], v[1])
	return nil
}

// readUint128 decodes a 16-byte little-endian field.
func readUint128(src []byte) *uint256.Int {
	z := new(uint256.Int)
	z[0] = binary.LittleEndian.Uint64(src[0:8])
	z[1] = binary.LittleEndian.Uint64(src[8:16])
	return z
}
