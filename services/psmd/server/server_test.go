package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"psmswap/crypto"
	"psmswap/curve"
	"psmswap/permission"
	"psmswap/pool"
	"psmswap/services/psmd/storage"
)

const (
	fivePctAPYSSR       = "1000000001547125957863212448"
	oneHundredPctAPYSSR = "1000000021979553151239153020"
)

type serverFixture struct {
	srv      *Server
	store    *storage.Storage
	mux      http.Handler
	poolID   pool.PoolID
	baseTime time.Time
}

func newServerFixture(t *testing.T, dsn string) *serverFixture {
	t.Helper()
	store, err := storage.Open(dsn)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2024, time.June, 7, 19, 15, 17, 0, time.UTC)
	id := pool.DerivePoolID("USDX", "SUSDX", "test")

	ray := curve.NewRay()
	maxSSR := mustDecimal(t, oneHundredPctAPYSSR)
	calculator := curve.NewRedemptionRateCurve(ray.Clone(), ray.Clone(), uint64(base.Unix()), maxSSR)
	swapCurve, err := curve.NewSwapCurve(calculator)
	if err != nil {
		t.Fatalf("new swap curve: %v", err)
	}
	seeded := &pool.Pool{
		ID:              id,
		TokenA:          "USDX",
		TokenB:          "SUSDX",
		ReserveA:        uint256.NewInt(10_000_000),
		ReserveB:        uint256.NewInt(10_000_000),
		PoolTokenSupply: uint256.NewInt(20_000_000),
		Curve:           swapCurve,
	}
	if err := store.PutPool(context.Background(), id, seeded); err != nil {
		t.Fatalf("seed pool: %v", err)
	}

	srv, err := New(Config{
		ListenAddress: ":0",
		PoolID:        id,
		MaxUpdateAge:  time.Hour,
		Now:           func() time.Time { return base.Add(10 * time.Second) },
	}, store, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &serverFixture{
		srv:      srv,
		store:    store,
		mux:      srv.Handler(),
		poolID:   id,
		baseTime: base,
	}
}

func (f *serverFixture) seedPermission(t *testing.T, authority crypto.Address, superAdmin, canUpdate bool) {
	t.Helper()
	record := permission.NewRecord(f.poolID, authority, superAdmin, canUpdate)
	if err := f.store.PutPermission(context.Background(), record); err != nil {
		t.Fatalf("seed permission: %v", err)
	}
}

func mustDecimal(t *testing.T, raw string) *uint256.Int {
	t.Helper()
	value, err := uint256.FromDecimal(raw)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", raw, err)
	}
	return value
}

func doRequest(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	mux.ServeHTTP(resp, req)
	return resp
}

func assertStatus(t *testing.T, resp *httptest.ResponseRecorder, want int) {
	t.Helper()
	if resp.Code != want {
		t.Fatalf("unexpected status: got %d want %d body=%s", resp.Code, want, resp.Body.String())
	}
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body %q: %v", resp.Body.String(), err)
	}
	return body
}

func TestQuoteAndSwapFlow(t *testing.T) {
	f := newServerFixture(t, "file:psmd_quote_swap?mode=memory&cache=shared")

	resp := doRequest(t, f.mux, http.MethodPost, "/v1/quote", `{"direction":"a_to_b","amount":"250"}`)
	assertStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	if body["destination_amount"] != "250" || body["source_amount"] != "250" {
		t.Fatalf("unexpected quote at parity: %v", body)
	}

	record, err := f.store.GetPool(context.Background(), f.poolID)
	if err != nil || record == nil {
		t.Fatalf("load pool: %v", err)
	}
	if record.ReserveA.Uint64() != 10_000_000 {
		t.Fatalf("quote mutated reserves: %s", record.ReserveA.Dec())
	}

	resp = doRequest(t, f.mux, http.MethodPost, "/v1/swap", `{"direction":"a_to_b","amount":"250"}`)
	assertStatus(t, resp, http.StatusOK)

	record, err = f.store.GetPool(context.Background(), f.poolID)
	if err != nil || record == nil {
		t.Fatalf("reload pool: %v", err)
	}
	if record.ReserveA.Uint64() != 10_000_250 || record.ReserveB.Uint64() != 9_999_750 {
		t.Fatalf("unexpected reserves after swap: %s / %s", record.ReserveA.Dec(), record.ReserveB.Dec())
	}

	resp = doRequest(t, f.mux, http.MethodPost, "/v1/swap", `{"direction":"sideways","amount":"250"}`)
	assertStatus(t, resp, http.StatusBadRequest)

	resp = doRequest(t, f.mux, http.MethodPost, "/v1/swap", `{"direction":"a_to_b","amount":"0"}`)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestRateEndpoint(t *testing.T) {
	f := newServerFixture(t, "file:psmd_rate?mode=memory&cache=shared")

	resp := doRequest(t, f.mux, http.MethodGet, "/v1/rate", "")
	assertStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	if body["token_a"] != "USDX" || body["token_b"] != "SUSDX" {
		t.Fatalf("unexpected token pair: %v", body)
	}
	ray := curve.NewRay().Dec()
	if body["index"] != ray {
		t.Fatalf("identity curve must report a ray index, got %v", body["index"])
	}
	if body["chi"] != ray {
		t.Fatalf("unexpected chi: %v", body["chi"])
	}
}

func TestSignedRateUpdateFlow(t *testing.T) {
	f := newServerFixture(t, "file:psmd_rate_update?mode=memory&cache=shared")

	updaterKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	updater := updaterKey.PubKey().Address()
	f.seedPermission(t, updater, false, true)

	rho := uint64(f.baseTime.Add(5 * time.Second).Unix())
	chi := curve.NewRay().Dec()
	signed := signUpdate(t, updaterKey, f.poolID, fivePctAPYSSR, rho, chi)

	resp := doRequest(t, f.mux, http.MethodPost, "/admin/rates", signed)
	assertStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	if body["status"] != "accepted" {
		t.Fatalf("unexpected submission result: %v", body)
	}
	if body["authority"] != updater.String() {
		t.Fatalf("recovered authority mismatch: %v", body["authority"])
	}

	resp = doRequest(t, f.mux, http.MethodGet, "/v1/rate", "")
	assertStatus(t, resp, http.StatusOK)
	rate := decodeBody(t, resp)
	if rate["ssr"] != fivePctAPYSSR {
		t.Fatalf("rate endpoint not reflecting accepted update: %v", rate["ssr"])
	}

	resp = doRequest(t, f.mux, http.MethodGet, "/admin/rates", "")
	assertStatus(t, resp, http.StatusOK)
	audit := decodeBody(t, resp)
	updates, ok := audit["updates"].([]any)
	if !ok || len(updates) != 1 {
		t.Fatalf("expected one audit row, got %v", audit)
	}
	row := updates[0].(map[string]any)
	if row["outcome"] != "accepted" || row["authority"] != updater.String() {
		t.Fatalf("unexpected audit row: %v", row)
	}
}

func TestRateUpdateRejections(t *testing.T) {
	f := newServerFixture(t, "file:psmd_rate_reject?mode=memory&cache=shared")

	updaterKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	updater := updaterKey.PubKey().Address()
	f.seedPermission(t, updater, false, true)

	chi := curve.NewRay().Dec()
	freshRho := uint64(f.baseTime.Add(5 * time.Second).Unix())

	strangerKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	resp := doRequest(t, f.mux, http.MethodPost, "/admin/rates", signUpdate(t, strangerKey, f.poolID, fivePctAPYSSR, freshRho, chi))
	assertStatus(t, resp, http.StatusForbidden)

	viewerKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f.seedPermission(t, viewerKey.PubKey().Address(), false, false)
	resp = doRequest(t, f.mux, http.MethodPost, "/admin/rates", signUpdate(t, viewerKey, f.poolID, fivePctAPYSSR, freshRho, chi))
	assertStatus(t, resp, http.StatusForbidden)

	staleRho := uint64(f.baseTime.Add(-2 * time.Hour).Unix())
	resp = doRequest(t, f.mux, http.MethodPost, "/admin/rates", signUpdate(t, updaterKey, f.poolID, fivePctAPYSSR, staleRho, chi))
	assertStatus(t, resp, http.StatusUnprocessableEntity)

	belowFloor := "999999999999999999999999999"
	resp = doRequest(t, f.mux, http.MethodPost, "/admin/rates", signUpdate(t, updaterKey, f.poolID, belowFloor, freshRho, chi))
	assertStatus(t, resp, http.StatusUnprocessableEntity)

	// A checkpoint far beyond any representable wall clock is a future
	// timestamp, not a stale one.
	garbageRho := uint64(math.MaxInt64) + 1
	resp = doRequest(t, f.mux, http.MethodPost, "/admin/rates", signUpdate(t, updaterKey, f.poolID, fivePctAPYSSR, garbageRho, chi))
	assertStatus(t, resp, http.StatusUnprocessableEntity)
	if message, _ := decodeBody(t, resp)["error"].(string); !strings.Contains(message, "invalid timestamp") {
		t.Fatalf("oversized rho must be reported as a timestamp violation, got %q", message)
	}

	tampered := signUpdate(t, updaterKey, f.poolID, fivePctAPYSSR, freshRho, chi)
	var payload map[string]any
	if err := json.Unmarshal([]byte(tampered), &payload); err != nil {
		t.Fatalf("unmarshal signed payload: %v", err)
	}
	payload["ssr"] = oneHundredPctAPYSSR
	altered, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal tampered payload: %v", err)
	}
	resp = doRequest(t, f.mux, http.MethodPost, "/admin/rates", string(altered))
	if resp.Code != http.StatusUnauthorized && resp.Code != http.StatusForbidden {
		t.Fatalf("tampered payload must not be accepted: %d %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(t, f.mux, http.MethodGet, "/admin/rates", "")
	assertStatus(t, resp, http.StatusOK)
	audit := decodeBody(t, resp)
	updates, ok := audit["updates"].([]any)
	if !ok {
		t.Fatalf("expected audit list, got %v", audit)
	}
	for _, entry := range updates {
		row := entry.(map[string]any)
		if row["outcome"] == "accepted" {
			t.Fatalf("rejected submissions must not produce accepted rows: %v", row)
		}
	}
}

func TestPermissionEndpoints(t *testing.T) {
	f := newServerFixture(t, "file:psmd_permissions?mode=memory&cache=shared")

	adminKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	admin := adminKey.PubKey().Address()
	f.seedPermission(t, admin, true, true)

	granteeKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	grantee := granteeKey.PubKey().Address()

	grant := `{"action":"grant","admin":"` + admin.String() + `","authority":"` + grantee.String() + `","can_update_parameters":true}`
	resp := doRequest(t, f.mux, http.MethodPost, "/admin/permissions", grant)
	assertStatus(t, resp, http.StatusOK)

	resp = doRequest(t, f.mux, http.MethodPost, "/admin/permissions", grant)
	assertStatus(t, resp, http.StatusConflict)

	nonAdmin := `{"action":"grant","admin":"` + grantee.String() + `","authority":"` + admin.String() + `"}`
	resp = doRequest(t, f.mux, http.MethodPost, "/admin/permissions", nonAdmin)
	assertStatus(t, resp, http.StatusForbidden)

	amend := `{"action":"amend","admin":"` + admin.String() + `","authority":"` + grantee.String() + `","can_update_parameters":false}`
	resp = doRequest(t, f.mux, http.MethodPost, "/admin/permissions", amend)
	assertStatus(t, resp, http.StatusOK)

	resp = doRequest(t, f.mux, http.MethodGet, "/admin/permissions", "")
	assertStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	records, ok := body["permissions"].([]any)
	if !ok || len(records) != 2 {
		t.Fatalf("expected two permission records, got %v", body)
	}
	found := false
	for _, entry := range records {
		row := entry.(map[string]any)
		if row["authority"] == grantee.String() {
			found = true
			if row["can_update_parameters"] != false {
				t.Fatalf("amend not persisted: %v", row)
			}
		}
	}
	if !found {
		t.Fatalf("grantee missing from permission list: %v", records)
	}

	unknown := `{"action":"revoke","admin":"` + admin.String() + `","authority":"` + grantee.String() + `"}`
	resp = doRequest(t, f.mux, http.MethodPost, "/admin/permissions", unknown)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t, "file:psmd_health?mode=memory&cache=shared")
	resp := doRequest(t, f.mux, http.MethodGet, "/healthz", "")
	assertStatus(t, resp, http.StatusOK)
}

func signUpdate(t *testing.T, key *crypto.PrivateKey, id pool.PoolID, ssr string, rho uint64, chi string) string {
	t.Helper()
	update, err := pool.NewRateUpdate(pool.RateUpdateDomainV1, id, ssr, chi, rho, nil)
	if err != nil {
		t.Fatalf("build rate update: %v", err)
	}
	if err := update.Sign(key); err != nil {
		t.Fatalf("sign rate update: %v", err)
	}
	payload := map[string]any{
		"ssr":       ssr,
		"rho":       rho,
		"chi":       chi,
		"signature": hex.EncodeToString(update.Signature),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return string(encoded)
}
