package pool

import (
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"psmswap/crypto"
)

// RateUpdateDomainV1 is the domain separator for signed rate update payloads.
const RateUpdateDomainV1 = "PSM_RATE_UPDATE_V1"

// RateUpdate is a signed rate update submitted out of band. The signature
// covers the canonical message, and the recovered signer is the authority
// the permission gate is checked against.
type RateUpdate struct {
	Domain    string
	Pool      PoolID
	SSR       *uint256.Int
	Rho       uint64
	Chi       *uint256.Int
	Signature []byte
}

// NewRateUpdate constructs a rate update from the raw submission payload.
// ssr and chi are decimal ray-scaled strings.
func NewRateUpdate(domain string, poolID PoolID, ssr, chi string, rho uint64, signature []byte) (*RateUpdate, error) {
	trimmedDomain := strings.TrimSpace(domain)
	if trimmedDomain == "" {
		return nil, fmt.Errorf("rate update: domain required")
	}
	trimmedSSR := strings.TrimSpace(ssr)
	if trimmedSSR == "" {
		return nil, fmt.Errorf("rate update: ssr required")
	}
	ssrValue, err := uint256.FromDecimal(trimmedSSR)
	if err != nil {
		return nil, fmt.Errorf("rate update: invalid ssr %q: %w", ssr, err)
	}
	trimmedChi := strings.TrimSpace(chi)
	if trimmedChi == "" {
		return nil, fmt.Errorf("rate update: chi required")
	}
	chiValue, err := uint256.FromDecimal(trimmedChi)
	if err != nil {
		return nil, fmt.Errorf("rate update: invalid chi %q: %w", chi, err)
	}

	update := &RateUpdate{
		Domain: trimmedDomain,
		Pool:   poolID,
		SSR:    ssrValue,
		Rho:    rho,
		Chi:    chiValue,
	}
	if len(signature) > 0 {
		update.Signature = append([]byte(nil), signature...)
	}
	return update, nil
}

// CanonicalMessage renders the canonical message used for signature
// verification.
func (u *RateUpdate) CanonicalMessage() (string, error) {
	if u == nil {
		return "", fmt.Errorf("rate update not initialised")
	}
	domain := strings.ToUpper(strings.TrimSpace(u.Domain))
	if domain == "" {
		return "", fmt.Errorf("rate update: domain required")
	}
	if u.SSR == nil || u.Chi == nil {
		return "", fmt.Errorf("rate update: rates required")
	}
	builder := strings.Builder{}
	builder.WriteString(domain)
	builder.WriteString("|pool=")
	builder.WriteString(hex.EncodeToString(u.Pool[:]))
	builder.WriteString("|ssr=")
	builder.WriteString(u.SSR.Dec())
	builder.WriteString("|rho=")
	builder.WriteString(fmt.Sprintf("%d", u.Rho))
	builder.WriteString("|chi=")
	builder.WriteString(u.Chi.Dec())
	return builder.String(), nil
}

// Hash computes the keccak256 digest of the canonical message.
func (u *RateUpdate) Hash() ([]byte, error) {
	message, err := u.CanonicalMessage()
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256([]byte(message)), nil
}

// ID returns the hexadecimal digest of the canonical message, used as the
// audit key for accepted updates.
func (u *RateUpdate) ID() (string, error) {
	hash, err := u.Hash()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hash), nil
}

// Sign attaches a recoverable signature over the canonical message.
func (u *RateUpdate) Sign(key *crypto.PrivateKey) error {
	message, err := u.CanonicalMessage()
	if err != nil {
		return err
	}
	signature, err := key.SignMessage([]byte(message))
	if err != nil {
		return err
	}
	u.Signature = signature
	return nil
}

// RecoverAuthority recovers the signing address from the attached signature.
func (u *RateUpdate) RecoverAuthority() (crypto.Address, error) {
	if u == nil || len(u.Signature) == 0 {
		return crypto.Address{}, fmt.Errorf("rate update: signature required")
	}
	message, err := u.CanonicalMessage()
	if err != nil {
		return crypto.Address{}, err
	}
	return crypto.RecoverAddress([]byte(message), u.Signature)
}
