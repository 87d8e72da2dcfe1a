package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"psmswap/crypto"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for psmd.
type Config struct {
	ListenAddress string     `yaml:"listen"`
	DatabasePath  string     `yaml:"database"`
	Pool          PoolConfig `yaml:"pool"`
}

// PoolConfig describes the pool the daemon hosts and its genesis state. The
// curve parameters only seed a pool that does not exist yet; persisted state
// always wins on restart.
type PoolConfig struct {
	TokenA       string      `yaml:"token_a"`
	TokenB       string      `yaml:"token_b"`
	Label        string      `yaml:"label"`
	SuperAdmin   string      `yaml:"super_admin"`
	MaxUpdateAge Duration    `yaml:"max_update_age"`
	Curve        CurveConfig `yaml:"curve"`
}

// CurveConfig holds the genesis redemption-rate parameters as decimal
// ray-scaled strings.
type CurveConfig struct {
	SSR    string `yaml:"ssr"`
	Chi    string `yaml:"chi"`
	Rho    uint64 `yaml:"rho"`
	MaxSSR string `yaml:"max_ssr"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

const defaultRay = "1000000000000000000000000000"

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/psmd.sqlite"
	}
	if cfg.Pool.Label == "" {
		cfg.Pool.Label = "main"
	}
	if cfg.Pool.MaxUpdateAge.Duration == 0 {
		cfg.Pool.MaxUpdateAge.Duration = time.Hour
	}
	if cfg.Pool.Curve.SSR == "" {
		cfg.Pool.Curve.SSR = defaultRay
	}
	if cfg.Pool.Curve.Chi == "" {
		cfg.Pool.Curve.Chi = defaultRay
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Pool.TokenA) == "" || strings.TrimSpace(cfg.Pool.TokenB) == "" {
		return fmt.Errorf("pool token symbols must be configured")
	}
	if strings.TrimSpace(cfg.Pool.SuperAdmin) == "" {
		return fmt.Errorf("pool super admin address must be configured")
	}
	if _, err := crypto.DecodeAddress(strings.TrimSpace(cfg.Pool.SuperAdmin)); err != nil {
		return fmt.Errorf("invalid super admin address: %w", err)
	}
	if _, err := uint256.FromDecimal(cfg.Pool.Curve.SSR); err != nil {
		return fmt.Errorf("invalid curve ssr: %w", err)
	}
	if _, err := uint256.FromDecimal(cfg.Pool.Curve.Chi); err != nil {
		return fmt.Errorf("invalid curve chi: %w", err)
	}
	if raw := strings.TrimSpace(cfg.Pool.Curve.MaxSSR); raw != "" {
		if _, err := uint256.FromDecimal(raw); err != nil {
			return fmt.Errorf("invalid curve max_ssr: %w", err)
		}
	}
	return nil
}
