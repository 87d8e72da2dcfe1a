package permission

import (
	"bytes"
	"errors"

	"psmswap/crypto"
)

// RecordLen is the packed byte width of a permission record: initialized
// flag, 32-byte pool id, 20-byte authority address, super-admin flag,
// update-parameters flag.
const RecordLen = 1 + 32 + 20 + 1 + 1

var (
	ErrUninitialized   = errors.New("permission: record not initialised")
	ErrNotAuthorized   = errors.New("permission: authority lacks required capability")
	ErrWrongPool       = errors.New("permission: record bound to a different pool")
	ErrWrongAuthority  = errors.New("permission: record bound to a different authority")
	ErrMalformedRecord = errors.New("permission: malformed record")
)

// Record grants an authority capabilities over a single pool. A record is
// scoped to exactly one (pool, authority) pair; capabilities never apply
// across pools.
type Record struct {
	// Initialized distinguishes a granted record from an empty slot.
	Initialized bool
	// Pool is the identifier of the pool this record governs.
	Pool [32]byte
	// Authority is the address that must sign relevant operations.
	Authority crypto.Address
	// SuperAdmin allows granting or revoking other permissions on the pool.
	SuperAdmin bool
	// CanUpdateParameters allows submitting curve parameter updates.
	CanUpdateParameters bool
}

// NewRecord builds an initialised record for the given pair.
func NewRecord(pool [32]byte, authority crypto.Address, superAdmin, canUpdateParameters bool) *Record {
	return &Record{
		Initialized:         true,
		Pool:                pool,
		Authority:           authority,
		SuperAdmin:          superAdmin,
		CanUpdateParameters: canUpdateParameters,
	}
}

// Validate checks that the record is live and bound to the given pool and
// signing authority before any capability check is consulted.
func (r *Record) Validate(pool [32]byte, authority crypto.Address) error {
	if r == nil || !r.Initialized {
		return ErrUninitialized
	}
	if r.Pool != pool {
		return ErrWrongPool
	}
	if !bytes.Equal(r.Authority.Bytes(), authority.Bytes()) {
		return ErrWrongAuthority
	}
	return nil
}

// RequireUpdateParameters gates curve parameter updates.
func (r *Record) RequireUpdateParameters() error {
	if r == nil || !r.Initialized {
		return ErrUninitialized
	}
	if !r.CanUpdateParameters {
		return ErrNotAuthorized
	}
	return nil
}

// RequireSuperAdmin gates permission management.
func (r *Record) RequireSuperAdmin() error {
	if r == nil || !r.Initialized {
		return ErrUninitialized
	}
	if !r.SuperAdmin {
		return ErrNotAuthorized
	}
	return nil
}

// Pack writes the record into its fixed-width slot.
func (r *Record) Pack(dst []byte) error {
	if len(dst) < RecordLen {
		return ErrMalformedRecord
	}
	addr := r.Authority.Bytes()
	if len(addr) != 20 {
		return ErrMalformedRecord
	}
	dst[0] = flag(r.Initialized)
	copy(dst[1:33], r.Pool[:])
	copy(dst[33:53], addr)
	dst[53] = flag(r.SuperAdmin)
	dst[54] = flag(r.CanUpdateParameters)
	return nil
}

// Bytes packs the record into a fresh buffer.
func (r *Record) Bytes() ([]byte, error) {
	buf := make([]byte, RecordLen)
	if err := r.Pack(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Unpack decodes a fixed-width permission record.
func Unpack(src []byte) (*Record, error) {
	if len(src) < RecordLen {
		return nil, ErrMalformedRecord
	}
	r := &Record{
		Initialized:         src[0] != 0,
		SuperAdmin:          src[53] != 0,
		CanUpdateParameters: src[54] != 0,
	}
	copy(r.Pool[:], src[1:33])
	r.Authority = crypto.NewAddress(crypto.PSMPrefix, append([]byte(nil), src[33:53]...))
	return r, nil
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}
