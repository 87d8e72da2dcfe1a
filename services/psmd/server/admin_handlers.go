package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"psmswap/crypto"
	"psmswap/curve"
	"psmswap/permission"
	"psmswap/pool"
)

func (s *Server) handleAdminRates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.submitRateUpdate(w, r)
	case http.MethodGet:
		s.listRateUpdates(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// submitRateUpdate accepts a signed rate update. The signature is recovered
// to an authority address and the engine's permission gate decides whether
// that authority may update this pool; the daemon itself holds no update
// rights.
func (s *Server) submitRateUpdate(w http.ResponseWriter, r *http.Request) {
	started := s.now()
	var payload struct {
		SSR       string `json:"ssr"`
		Rho       uint64 `json:"rho"`
		Chi       string `json:"chi"`
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.metrics.ObserveRateUpdate("invalid", s.now().Sub(started))
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	signature, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(payload.Signature), "0x"))
	if err != nil {
		s.metrics.ObserveRateUpdate("invalid", s.now().Sub(started))
		s.writeError(w, http.StatusBadRequest, "invalid signature encoding")
		return
	}
	update, err := pool.NewRateUpdate(pool.RateUpdateDomainV1, s.cfg.PoolID, payload.SSR, payload.Chi, payload.Rho, signature)
	if err != nil {
		s.metrics.ObserveRateUpdate("invalid", s.now().Sub(started))
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	authority, err := update.RecoverAuthority()
	if err != nil {
		s.metrics.ObserveRateUpdate("unverified", s.now().Sub(started))
		s.writeError(w, http.StatusUnauthorized, "signature verification failed")
		return
	}

	// Staleness is compared in uint64 space; a checkpoint at or past now is
	// not stale and is left for the rate validator to judge.
	now := s.now()
	nowUnix := uint64(now.Unix())
	if update.Rho < nowUnix && nowUnix-update.Rho > uint64(s.cfg.MaxUpdateAge/time.Second) {
		s.metrics.ObserveRateUpdate("stale", s.now().Sub(started))
		s.writeError(w, http.StatusUnprocessableEntity, "rate update checkpoint too old")
		return
	}

	digest, err := update.ID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "digest")
		return
	}

	s.writeMu.Lock()
	applyErr := s.engine(r.Context()).ApplyRateUpdate(s.cfg.PoolID, authority, update.SSR, update.Rho, update.Chi, uint64(now.Unix()))
	s.writeMu.Unlock()

	outcome := "accepted"
	if applyErr != nil {
		outcome = "rejected"
	}
	auditID, auditErr := s.storage.RecordRateUpdate(r.Context(), s.cfg.PoolID, digest, authority.String(), update.SSR.Dec(), update.Rho, update.Chi.Dec(), outcome)
	if auditErr != nil {
		s.logger.Printf("psmd: record rate update audit: %v", auditErr)
	}
	s.metrics.ObserveRateUpdate(outcome, s.now().Sub(started))

	if applyErr != nil {
		s.writeEngineError(w, applyErr)
		return
	}
	if record, err := s.storage.GetPool(r.Context(), s.cfg.PoolID); err == nil && record != nil {
		if redemption, ok := record.Curve.Calculator.(*curve.RedemptionRateCurve); ok {
			if index, err := redemption.ConversionRate(uint64(now.Unix())); err == nil {
				s.publishIndex(record, index)
			}
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "accepted",
		"update_id": auditID,
		"digest":    digest,
		"authority": authority.String(),
	})
}

func (s *Server) listRateUpdates(w http.ResponseWriter, r *http.Request) {
	records, err := s.storage.RecentRateUpdates(r.Context(), s.cfg.PoolID, 50)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query audit log")
		return
	}
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		out = append(out, map[string]any{
			"id":           record.ID,
			"digest":       record.Digest,
			"authority":    record.Authority,
			"ssr":          record.SSR,
			"rho":          record.Rho,
			"chi":          record.Chi,
			"outcome":      record.Outcome,
			"submitted_at": record.SubmittedAt.UTC().Format(time.RFC3339),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"updates": out})
}

func (s *Server) handleAdminPermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.changePermission(w, r)
	case http.MethodGet:
		s.listPermissions(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) changePermission(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Action              string `json:"action"`
		Admin               string `json:"admin"`
		Authority           string `json:"authority"`
		SuperAdmin          bool   `json:"super_admin"`
		CanUpdateParameters bool   `json:"can_update_parameters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	admin, err := crypto.DecodeAddress(strings.TrimSpace(payload.Admin))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid admin address")
		return
	}
	authority, err := crypto.DecodeAddress(strings.TrimSpace(payload.Authority))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid authority address")
		return
	}

	engine := s.engine(r.Context())
	s.writeMu.Lock()
	switch strings.ToLower(strings.TrimSpace(payload.Action)) {
	case "grant":
		err = engine.GrantPermission(s.cfg.PoolID, admin, authority, payload.SuperAdmin, payload.CanUpdateParameters)
	case "amend":
		err = engine.AmendPermission(s.cfg.PoolID, admin, authority, payload.SuperAdmin, payload.CanUpdateParameters)
	default:
		err = errUnknownAction
	}
	s.writeMu.Unlock()

	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	records, err := s.storage.ListPermissions(r.Context(), s.cfg.PoolID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query permissions")
		return
	}
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		out = append(out, map[string]any{
			"authority":             record.Authority.String(),
			"super_admin":           record.SuperAdmin,
			"can_update_parameters": record.CanUpdateParameters,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"permissions": out})
}

var errUnknownAction = errors.New("action must be grant or amend")

// writeEngineError maps engine and curve failures onto HTTP statuses. Rule
// violations are client errors; anything unmapped is internal.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pool.ErrPoolNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pool.ErrInvalidAmount),
		errors.Is(err, errUnknownAction),
		errors.Is(err, curve.ErrZeroTrade):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, permission.ErrUninitialized),
		errors.Is(err, permission.ErrNotAuthorized),
		errors.Is(err, permission.ErrWrongPool),
		errors.Is(err, permission.ErrWrongAuthority):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, pool.ErrPermissionExists),
		errors.Is(err, pool.ErrPermissionNotFound):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, curve.ErrInvalidTimestamp),
		errors.Is(err, curve.ErrInvalidRate),
		errors.Is(err, curve.ErrEmptySupply),
		errors.Is(err, curve.ErrNonIncreasingIndex),
		errors.Is(err, curve.ErrExcessiveIndexGrowth):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, curve.ErrOverflow),
		errors.Is(err, curve.ErrMalformedState),
		errors.Is(err, curve.ErrInvalidCurve),
		errors.Is(err, curve.ErrUnsupportedCurve):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Printf("psmd: internal error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
