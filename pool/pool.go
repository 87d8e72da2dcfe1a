package pool

import (
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"psmswap/curve"
)

// PoolID identifies a swap pool. Derived identifiers are stable across
// restarts so permission records and persisted state key on them directly.
type PoolID [32]byte

// DerivePoolID derives a pool identifier from the ordered token pair and a
// deployment label.
func DerivePoolID(tokenA, tokenB, label string) PoolID {
	canonical := strings.ToUpper(strings.TrimSpace(tokenA)) + "/" +
		strings.ToUpper(strings.TrimSpace(tokenB)) + "/" +
		strings.TrimSpace(label)
	var id PoolID
	copy(id[:], ethcrypto.Keccak256([]byte(canonical)))
	return id
}

// Pool is the persisted state of a single swap pool: token reserves, the
// outstanding pool token supply, and the pricing curve.
type Pool struct {
	ID              PoolID
	TokenA          string
	TokenB          string
	ReserveA        *uint256.Int
	ReserveB        *uint256.Int
	PoolTokenSupply *uint256.Int
	Curve           *curve.SwapCurve
}

// Clone returns a deep copy so engine mutations never leak into the caller's
// or the state layer's copy before a put. The curve is copied through its
// packed form; a curve that cannot round-trip is an error, never a nil field.
func (p *Pool) Clone() (*Pool, error) {
	if p == nil {
		return nil, nil
	}
	clone := &Pool{
		ID:     p.ID,
		TokenA: p.TokenA,
		TokenB: p.TokenB,
	}
	if p.ReserveA != nil {
		clone.ReserveA = new(uint256.Int).Set(p.ReserveA)
	}
	if p.ReserveB != nil {
		clone.ReserveB = new(uint256.Int).Set(p.ReserveB)
	}
	if p.PoolTokenSupply != nil {
		clone.PoolTokenSupply = new(uint256.Int).Set(p.PoolTokenSupply)
	}
	if p.Curve != nil {
		packed, err := p.Curve.Bytes()
		if err != nil {
			return nil, fmt.Errorf("clone pool curve: %w", err)
		}
		c, err := curve.UnpackSwapCurve(packed)
		if err != nil {
			return nil, fmt.Errorf("clone pool curve: %w", err)
		}
		clone.Curve = c
	}
	return clone, nil
}
