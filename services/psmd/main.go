package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/holiman/uint256"

	"psmswap/crypto"
	"psmswap/curve"
	"psmswap/observability/logging"
	telemetry "psmswap/observability/otel"
	"psmswap/permission"
	"psmswap/pool"
	"psmswap/services/psmd/config"
	"psmswap/services/psmd/server"
	"psmswap/services/psmd/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/psmd/config.yaml", "path to psmd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("PSM_ENV"))
	logging.Setup("psmd", env)
	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "psmd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("psmd: load config: %v", err)
	}

	dsn, err := storage.FileDSN(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("psmd: resolve storage DSN: %v", err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		log.Fatalf("psmd: open storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	poolID, err := bootstrap(ctx, store, cfg)
	if err != nil {
		log.Fatalf("psmd: bootstrap pool: %v", err)
	}

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		PoolID:        poolID,
		MaxUpdateAge:  cfg.Pool.MaxUpdateAge.Duration,
	}, store, log.Default())
	if err != nil {
		log.Fatalf("psmd: server: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("psmd: http server error: %v", err)
		os.Exit(1)
	}
}

// bootstrap derives the pool id and seeds genesis state on first start.
// A pool already present in storage is left untouched; only the super-admin
// record is re-asserted when missing.
func bootstrap(ctx context.Context, store *storage.Storage, cfg config.Config) (pool.PoolID, error) {
	id := pool.DerivePoolID(cfg.Pool.TokenA, cfg.Pool.TokenB, cfg.Pool.Label)

	existing, err := store.GetPool(ctx, id)
	if err != nil {
		return pool.PoolID{}, err
	}
	if existing == nil {
		ssr, err := uint256.FromDecimal(cfg.Pool.Curve.SSR)
		if err != nil {
			return pool.PoolID{}, err
		}
		chi, err := uint256.FromDecimal(cfg.Pool.Curve.Chi)
		if err != nil {
			return pool.PoolID{}, err
		}
		maxSSR := new(uint256.Int)
		if trimmed := strings.TrimSpace(cfg.Pool.Curve.MaxSSR); trimmed != "" {
			maxSSR, err = uint256.FromDecimal(trimmed)
			if err != nil {
				return pool.PoolID{}, err
			}
		}
		rho := cfg.Pool.Curve.Rho
		if rho == 0 {
			rho = uint64(time.Now().Unix())
		}
		swapCurve, err := curve.NewSwapCurve(curve.NewRedemptionRateCurve(ssr, chi, rho, maxSSR))
		if err != nil {
			return pool.PoolID{}, err
		}
		seeded := &pool.Pool{
			ID:              id,
			TokenA:          strings.ToUpper(strings.TrimSpace(cfg.Pool.TokenA)),
			TokenB:          strings.ToUpper(strings.TrimSpace(cfg.Pool.TokenB)),
			ReserveA:        new(uint256.Int),
			ReserveB:        new(uint256.Int),
			PoolTokenSupply: new(uint256.Int),
			Curve:           swapCurve,
		}
		if err := store.PutPool(ctx, id, seeded); err != nil {
			return pool.PoolID{}, err
		}
		log.Printf("psmd: seeded pool %s/%s", seeded.TokenA, seeded.TokenB)
	}

	admin, err := crypto.DecodeAddress(strings.TrimSpace(cfg.Pool.SuperAdmin))
	if err != nil {
		return pool.PoolID{}, err
	}
	record, err := store.GetPermission(ctx, id, admin)
	if err != nil {
		return pool.PoolID{}, err
	}
	if record == nil {
		engine := pool.NewEngine()
		engine.SetState(bootstrapStore{store: store, ctx: ctx})
		if err := engine.BootstrapPermission(id, admin); err != nil {
			return pool.PoolID{}, err
		}
		log.Printf("psmd: installed super admin %s", admin.String())
	}
	return id, nil
}

type bootstrapStore struct {
	store *storage.Storage
	ctx   context.Context
}

func (s bootstrapStore) GetPool(id pool.PoolID) (*pool.Pool, error) {
	return s.store.GetPool(s.ctx, id)
}

func (s bootstrapStore) PutPool(id pool.PoolID, p *pool.Pool) error {
	return s.store.PutPool(s.ctx, id, p)
}

func (s bootstrapStore) GetPermission(id pool.PoolID, authority crypto.Address) (*permission.Record, error) {
	return s.store.GetPermission(s.ctx, id, authority)
}

func (s bootstrapStore) PutPermission(record *permission.Record) error {
	return s.store.PutPermission(s.ctx, record)
}
