package curve

import "github.com/holiman/uint256"

// Rpow raises a ray-scaled base to an integer exponent by repeated squaring,
// returning the result as a ray: Rpow(x, n, unit) == x_real^n * unit. The
// identities Rpow(x, 0, unit) == unit (including x == 0) and
// Rpow(0, n, unit) == 0 for n > 0 hold exactly.
//
// Each squaring and cross-multiply step adds unit/2 before dividing by unit,
// the half-up rounding used by the Spark SSR oracle this rate mirrors, so
// the compounded index stays in lockstep with the remote source of truth.
// Any intermediate product that cannot be represented in 256 bits aborts
// with ErrOverflow; large base/exponent pairs are expected to be rejected
// this way rather than approximated.
func Rpow(x *uint256.Int, n uint64, unit *uint256.Int) (*uint256.Int, error) {
	if unit.IsZero() {
		return nil, ErrOverflow
	}
	if x.IsZero() {
		if n == 0 {
			return new(uint256.Int).Set(unit), nil
		}
		return new(uint256.Int), nil
	}

	z := new(uint256.Int)
	if n%2 == 0 {
		z.Set(unit)
	} else {
		z.Set(x)
	}

	half := new(uint256.Int).Rsh(unit, 1)
	base := new(uint256.Int).Set(x)
	for n /= 2; n > 0; n /= 2 {
		squared, overflow := new(uint256.Int).MulOverflow(base, base)
		if overflow {
			return nil, ErrOverflow
		}
		if _, overflow = squared.AddOverflow(squared, half); overflow {
			return nil, ErrOverflow
		}
		base = squared.Div(squared, unit)

		if n%2 == 1 {
			crossed, overflow := new(uint256.Int).MulOverflow(z, base)
			if overflow {
				return nil, ErrOverflow
			}
			if _, overflow = crossed.AddOverflow(crossed, half); overflow {
				return nil, ErrOverflow
			}
			z = crossed.Div(crossed, unit)
		}
	}
	return z, nil
}
