package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"psmswap/curve"
	"psmswap/observability"
	"psmswap/pool"
	"psmswap/services/psmd/storage"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	PoolID        pool.PoolID
	MaxUpdateAge  time.Duration
	Now           func() time.Time
}

// Server hosts the quote, swap, and admin endpoints for psmd. Rate updates
// and swaps are serialised through a single mutex; the storage layer sees one
// writer at a time.
type Server struct {
	cfg     Config
	storage *storage.Storage
	logger  *log.Logger
	metrics *observability.SwapMetrics
	now     func() time.Time

	writeMu sync.Mutex
}

// New constructs a new HTTP server.
func New(cfg Config, store *storage.Storage, logger *log.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MaxUpdateAge <= 0 {
		cfg.MaxUpdateAge = time.Hour
	}
	srv := &Server{
		cfg:     cfg,
		storage: store,
		logger:  logger,
		metrics: observability.Swap(),
		now:     cfg.Now,
	}
	if srv.now == nil {
		srv.now = time.Now
	}
	return srv, nil
}

// Handler builds the route table. Exposed separately from Run so tests can
// drive the mux without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", otelhttp.NewHandler(http.HandlerFunc(s.handleHealth), "psmd.health"))
	mux.Handle("/v1/quote", otelhttp.NewHandler(http.HandlerFunc(s.handleQuote), "psmd.quote"))
	mux.Handle("/v1/rate", otelhttp.NewHandler(http.HandlerFunc(s.handleRate), "psmd.rate"))
	mux.Handle("/v1/swap", otelhttp.NewHandler(http.HandlerFunc(s.handleSwap), "psmd.swap"))
	mux.Handle("/admin/rates", otelhttp.NewHandler(http.HandlerFunc(s.handleAdminRates), "psmd.admin.rates"))
	mux.Handle("/admin/permissions", otelhttp.NewHandler(http.HandlerFunc(s.handleAdminPermissions), "psmd.admin.permissions"))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{Addr: s.cfg.ListenAddress, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("psmd: http server listening on %s", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

// engine builds a pool engine bound to the request context.
func (s *Server) engine(ctx context.Context) *pool.Engine {
	engine := pool.NewEngine()
	engine.SetState(engineStore{store: s.storage, ctx: ctx})
	return engine
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	started := s.now()
	direction, amount, ok := s.decodeTrade(w, r)
	if !ok {
		s.metrics.ObserveQuote("unknown", "invalid", s.now().Sub(started))
		return
	}

	result, err := s.engine(r.Context()).Quote(s.cfg.PoolID, direction, amount, uint64(s.now().Unix()))
	if err != nil {
		s.metrics.ObserveQuote(directionLabel(direction), "error", s.now().Sub(started))
		s.writeEngineError(w, err)
		return
	}
	s.metrics.ObserveQuote(directionLabel(direction), "ok", s.now().Sub(started))
	s.writeJSON(w, http.StatusOK, map[string]string{
		"source_amount":      result.SourceAmountSwapped.Dec(),
		"destination_amount": result.DestinationAmountSwapped.Dec(),
	})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	started := s.now()
	direction, amount, ok := s.decodeTrade(w, r)
	if !ok {
		s.metrics.ObserveSwap("unknown", "invalid", s.now().Sub(started))
		return
	}

	s.writeMu.Lock()
	result, err := s.engine(r.Context()).Swap(s.cfg.PoolID, direction, amount, uint64(s.now().Unix()))
	s.writeMu.Unlock()
	if err != nil {
		s.metrics.ObserveSwap(directionLabel(direction), "error", s.now().Sub(started))
		s.writeEngineError(w, err)
		return
	}
	s.metrics.ObserveSwap(directionLabel(direction), "ok", s.now().Sub(started))
	s.writeJSON(w, http.StatusOK, map[string]string{
		"source_amount":      result.SourceAmountSwapped.Dec(),
		"destination_amount": result.DestinationAmountSwapped.Dec(),
	})
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	record, err := s.storage.GetPool(r.Context(), s.cfg.PoolID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "load pool")
		return
	}
	if record == nil {
		s.writeError(w, http.StatusNotFound, "pool not found")
		return
	}
	redemption, ok := record.Curve.Calculator.(*curve.RedemptionRateCurve)
	if !ok {
		s.writeError(w, http.StatusConflict, "pool curve carries no redemption rate")
		return
	}
	now := uint64(s.now().Unix())
	index, err := redemption.ConversionRate(now)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.publishIndex(record, index)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token_a": record.TokenA,
		"token_b": record.TokenB,
		"ssr":     redemption.SSR.Dec(),
		"rho":     redemption.Rho,
		"chi":     redemption.Chi.Dec(),
		"index":   index.Dec(),
		"as_of":   now,
	})
}

func (s *Server) decodeTrade(w http.ResponseWriter, r *http.Request) (curve.TradeDirection, *uint256.Int, bool) {
	var payload struct {
		Direction string `json:"direction"`
		Amount    string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return 0, nil, false
	}
	direction, err := parseDirection(payload.Direction)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return 0, nil, false
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return 0, nil, false
	}
	return direction, amount, true
}

func parseDirection(raw string) (curve.TradeDirection, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "a_to_b":
		return curve.TradeDirectionAToB, nil
	case "b_to_a":
		return curve.TradeDirectionBToA, nil
	default:
		return 0, fmt.Errorf("direction must be a_to_b or b_to_a")
	}
}

func parseAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func directionLabel(direction curve.TradeDirection) string {
	if direction == curve.TradeDirectionBToA {
		return "b_to_a"
	}
	return "a_to_b"
}

func (s *Server) publishIndex(record *pool.Pool, index *uint256.Int) {
	if record == nil || index == nil {
		return
	}
	redemption, ok := record.Curve.Calculator.(*curve.RedemptionRateCurve)
	if !ok {
		return
	}
	s.metrics.SetRedemptionIndex(record.TokenA+"/"+record.TokenB, index.ToBig(), redemption.Ray.ToBig())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
