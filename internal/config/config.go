// Package config loads process-wide defaults for the sessionhouse server:
// listen address, default starting cash, worker-pool size, liquidity
// refresh cadence, and market-data snapshot depth (SPEC_FULL.md AMBIENT
// STACK: "Configuration"). Grounded on the pack's own viper-based loader
// (0xtitan6-polymarket-mm's internal/config) rather than the teacher, which
// hardcodes its listen address in cmd/main.go.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the full set of process defaults. None of it is per-lesson
// state — that still lives in a session.LessonPlan built by the caller of
// createSession.
type Config struct {
	Listen          ListenConfig          `mapstructure:"listen"`
	Session         SessionDefaultsConfig `mapstructure:"session"`
	Liquidity       LiquidityConfig       `mapstructure:"liquidity"`
	Logging         LoggingConfig         `mapstructure:"logging"`
}

type ListenConfig struct {
	Address    string `mapstructure:"address"`
	Port       int    `mapstructure:"port"`
	MetricsAddr string `mapstructure:"metrics_address"`
}

// SessionDefaultsConfig seeds values a lesson author may still override
// per-session; these are only the process-wide fallback.
type SessionDefaultsConfig struct {
	StartingCash  string `mapstructure:"starting_cash"`
	SnapshotDepth int    `mapstructure:"snapshot_depth"`
	WorkerPoolSize int   `mapstructure:"worker_pool_size"`
	ReapInterval  time.Duration `mapstructure:"reap_interval"`
}

type LiquidityConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	AuditPath string `mapstructure:"audit_path"` // "" or "-" disables the audit tape
}

// StartingCashDecimal parses SessionDefaultsConfig.StartingCash, falling
// back to a sane default if the configured value is malformed or absent.
func (c SessionDefaultsConfig) StartingCashDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(c.StartingCash)
	if err != nil {
		return decimal.NewFromInt(100_000)
	}
	return d
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen.address", "0.0.0.0")
	v.SetDefault("listen.port", 9001)
	v.SetDefault("listen.metrics_address", "0.0.0.0:9090")
	v.SetDefault("session.starting_cash", "100000")
	v.SetDefault("session.snapshot_depth", 10)
	v.SetDefault("session.worker_pool_size", 10)
	v.SetDefault("session.reap_interval", 30*time.Second)
	v.SetDefault("liquidity.refresh_interval", 5*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.audit_path", "")
}

// Load reads config.yaml (if present at path) layered under defaults, with
// SESSIONHOUSE_* environment variables taking precedence over both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SESSIONHOUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
