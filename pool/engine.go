package pool

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"psmswap/crypto"
	"psmswap/curve"
	"psmswap/permission"
)

var (
	// ErrPoolNotFound reports a pool id with no persisted state.
	ErrPoolNotFound = errors.New("swap engine: pool not found")
	// ErrInvalidAmount reports a zero or missing trade amount.
	ErrInvalidAmount = errors.New("swap engine: amount must be positive")
	// ErrPermissionExists reports a grant for a pair that already holds a record.
	ErrPermissionExists = errors.New("swap engine: permission already granted")
	// ErrPermissionNotFound reports an amendment of a pair with no record.
	ErrPermissionNotFound = errors.New("swap engine: permission not found")

	errNilState = errors.New("swap engine: state not configured")
	errNilPool  = errors.New("swap engine: pool record not initialised")
)

// engineState is the persistence surface the engine drives. Lookups return
// nil without error when no record exists.
type engineState interface {
	GetPool(id PoolID) (*Pool, error)
	PutPool(id PoolID, p *Pool) error
	GetPermission(id PoolID, authority crypto.Address) (*permission.Record, error)
	PutPermission(record *permission.Record) error
}

// Engine orchestrates the state transitions for swap pools: pricing reads,
// swaps, curve parameter updates behind the permission gate, and permission
// management. Timestamps are always supplied by the caller; the engine keeps
// no clock of its own.
type Engine struct {
	state engineState
}

func NewEngine() *Engine {
	return &Engine{}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) loadPool(id PoolID) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, err := e.state.GetPool(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPoolNotFound
	}
	if p.Curve == nil || p.Curve.Calculator == nil || p.ReserveA == nil || p.ReserveB == nil {
		return nil, errNilPool
	}
	return p, nil
}

// Quote prices a trade against the current curve without touching state.
func (e *Engine) Quote(id PoolID, direction curve.TradeDirection, amount *uint256.Int, now uint64) (*curve.SwapResult, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	p, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	if err := p.Curve.Calculator.Validate(now); err != nil {
		return nil, err
	}
	return p.Curve.Calculator.SwapWithoutFees(amount, p.ReserveA, p.ReserveB, direction, now)
}

// ConversionRate returns the redemption index the pool's curve is pricing at,
// when the curve kind carries one.
func (e *Engine) ConversionRate(id PoolID, now uint64) (*uint256.Int, error) {
	p, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	redemption, ok := p.Curve.Calculator.(*curve.RedemptionRateCurve)
	if !ok {
		return nil, curve.ErrUnsupportedCurve
	}
	return redemption.ConversionRate(now)
}

// Swap executes a trade: prices it against the curve, applies the result to
// the reserves, and persists the rebuilt pool in a single put.
func (e *Engine) Swap(id PoolID, direction curve.TradeDirection, amount *uint256.Int, now uint64) (*curve.SwapResult, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	p, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	if err := p.Curve.Calculator.Validate(now); err != nil {
		return nil, err
	}
	result, err := p.Curve.Calculator.SwapWithoutFees(amount, p.ReserveA, p.ReserveB, direction, now)
	if err != nil {
		return nil, err
	}

	next, err := p.Clone()
	if err != nil {
		return nil, err
	}
	sourceReserve, destReserve := next.ReserveA, next.ReserveB
	if direction == curve.TradeDirectionBToA {
		sourceReserve, destReserve = next.ReserveB, next.ReserveA
	}
	if destReserve.Lt(result.DestinationAmountSwapped) {
		return nil, fmt.Errorf("swap engine: insufficient %s reserve", destinationToken(next, direction))
	}
	sourceReserve.Add(sourceReserve, result.SourceAmountSwapped)
	destReserve.Sub(destReserve, result.DestinationAmountSwapped)

	if err := e.state.PutPool(id, next); err != nil {
		return nil, err
	}
	return result, nil
}

func destinationToken(p *Pool, direction curve.TradeDirection) string {
	if direction == curve.TradeDirectionBToA {
		return p.TokenA
	}
	return p.TokenB
}

// ApplyRateUpdate runs the rate validator against the pool's curve on behalf
// of a signing authority and replaces the whole curve record atomically. The
// authority must hold an update-parameters permission bound to this pool.
func (e *Engine) ApplyRateUpdate(id PoolID, authority crypto.Address, ssr *uint256.Int, rho uint64, chi *uint256.Int, now uint64) error {
	p, err := e.loadPool(id)
	if err != nil {
		return err
	}
	record, err := e.loadPermission(id, authority)
	if err != nil {
		return err
	}
	if err := record.Validate(id, authority); err != nil {
		return err
	}
	if err := record.RequireUpdateParameters(); err != nil {
		return err
	}

	redemption, ok := p.Curve.Calculator.(*curve.RedemptionRateCurve)
	if !ok {
		return curve.ErrUnsupportedCurve
	}
	updated, err := redemption.SetRates(ssr, rho, chi, now)
	if err != nil {
		return err
	}
	rebuilt, err := curve.NewSwapCurve(updated)
	if err != nil {
		return err
	}

	next, err := p.Clone()
	if err != nil {
		return err
	}
	next.Curve = rebuilt
	return e.state.PutPool(id, next)
}

func (e *Engine) loadPermission(id PoolID, authority crypto.Address) (*permission.Record, error) {
	record, err := e.state.GetPermission(id, authority)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, permission.ErrUninitialized
	}
	return record, nil
}

// GrantPermission creates a permission record for a new authority. The
// granting authority must be a super admin of the pool, and the target pair
// must not already hold a record.
func (e *Engine) GrantPermission(id PoolID, admin, grantee crypto.Address, superAdmin, canUpdateParameters bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	adminRecord, err := e.loadPermission(id, admin)
	if err != nil {
		return err
	}
	if err := adminRecord.Validate(id, admin); err != nil {
		return err
	}
	if err := adminRecord.RequireSuperAdmin(); err != nil {
		return err
	}

	existing, err := e.state.GetPermission(id, grantee)
	if err != nil {
		return err
	}
	if existing != nil && existing.Initialized {
		return ErrPermissionExists
	}
	return e.state.PutPermission(permission.NewRecord(id, grantee, superAdmin, canUpdateParameters))
}

// AmendPermission rewrites the capabilities of an existing record. A super
// admin may amend any record on the pool, including stripping their own
// capabilities; revocation is an amendment to no capabilities.
func (e *Engine) AmendPermission(id PoolID, admin, subject crypto.Address, superAdmin, canUpdateParameters bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	adminRecord, err := e.loadPermission(id, admin)
	if err != nil {
		return err
	}
	if err := adminRecord.Validate(id, admin); err != nil {
		return err
	}
	if err := adminRecord.RequireSuperAdmin(); err != nil {
		return err
	}

	existing, err := e.state.GetPermission(id, subject)
	if err != nil {
		return err
	}
	if existing == nil || !existing.Initialized {
		return ErrPermissionNotFound
	}
	return e.state.PutPermission(permission.NewRecord(id, subject, superAdmin, canUpdateParameters))
}

// BootstrapPermission installs the genesis super-admin record for a pool.
// It refuses to overwrite an existing record; it exists so a fresh deployment
// has an admin to act through.
func (e *Engine) BootstrapPermission(id PoolID, admin crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	existing, err := e.state.GetPermission(id, admin)
	if err != nil {
		return err
	}
	if existing != nil && existing.Initialized {
		return ErrPermissionExists
	}
	return e.state.PutPermission(permission.NewRecord(id, admin, true, true))
}

// PoolTokensForDeposit prices a single-sided exact-in deposit in pool tokens.
func (e *Engine) PoolTokensForDeposit(id PoolID, amount *uint256.Int, direction curve.TradeDirection, now uint64) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	p, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	return p.Curve.Calculator.DepositSingleTokenType(amount, p.ReserveA, p.ReserveB, p.PoolTokenSupply, direction, now)
}

// PoolTokensForWithdrawal prices a single-sided exact-out withdrawal in pool
// tokens, rounding against the withdrawer.
func (e *Engine) PoolTokensForWithdrawal(id PoolID, amount *uint256.Int, direction curve.TradeDirection, now uint64) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	p, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	return p.Curve.Calculator.WithdrawSingleTokenTypeExactOut(amount, p.ReserveA, p.ReserveB, p.PoolTokenSupply, direction, curve.RoundCeiling, now)
}

// SplitPoolTokens converts a pool token amount into both trading tokens.
func (e *Engine) SplitPoolTokens(id PoolID, poolTokens *uint256.Int, round curve.RoundDirection, now uint64) (*curve.TradingTokenResult, error) {
	if poolTokens == nil || poolTokens.IsZero() {
		return nil, ErrInvalidAmount
	}
	p, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	return p.Curve.Calculator.PoolTokensToTradingTokens(poolTokens, p.PoolTokenSupply, p.ReserveA, p.ReserveB, round, now)
}
