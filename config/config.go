// Package config loads the engine's configuration from a YAML file with
// .env-driven overrides, following spec.md §6's configuration table.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration record. It is threaded through
// component constructors explicitly (spec.md §9: "a config value threaded
// through constructors"), never read from a package-level global.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// EngineConfig covers the Engine Loop and Position Manager tunables.
type EngineConfig struct {
	PaperTrade               bool    `yaml:"paper_trade"`
	TradingEnabled           bool    `yaml:"trading_enabled"`
	MinSpreadThreshold       float64 `yaml:"min_spread_threshold"`
	OrderSizeDefault         int     `yaml:"order_size_default"`
	MaxExposurePerMarket     float64 `yaml:"max_exposure_per_market"`
	MaxTotalExposure         float64 `yaml:"max_total_exposure"`
	PairTimeoutSeconds       int64   `yaml:"pair_timeout_seconds"`
	CancelDeadlineSeconds    int64   `yaml:"cancel_deadline_seconds"`
	ScanIntervalSeconds      int64   `yaml:"scan_interval_seconds"`
	MaxOneSidedFillsBeforeHalt int   `yaml:"max_one_sided_fills_before_halt"`
}

// ScannerConfig covers the Market Scanner tunables.
type ScannerConfig struct {
	Assets                  []string `yaml:"assets"`
	ResolutionBufferSeconds int64    `yaml:"resolution_buffer_seconds"`
	SeriesTicker            string   `yaml:"series_ticker"`
	Limit                   int      `yaml:"limit"`
	BookFetchWorkers        int      `yaml:"book_fetch_workers"`
}

// APIConfig covers the exchange client.
type APIConfig struct {
	BaseURL            string  `yaml:"base_url"`
	AccessKey           string  `yaml:"access_key"`
	PrivateKeyPath      string  `yaml:"private_key_path"`
	RequestsPerSecond   float64 `yaml:"requests_per_second"`
}

// StorageConfig covers the Ledger.
type StorageConfig struct {
	DSN string `yaml:"dsn"`
}

// LogConfig covers structured log emission.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ScanInterval returns the configured cycle period as a time.Duration.
func (c Config) ScanInterval() time.Duration {
	return time.Duration(c.Engine.ScanIntervalSeconds) * time.Second
}

// boolDefaults is parsed alongside Config to tell "field omitted from YAML"
// apart from "field explicitly set to false" for the engine's two bool
// tunables, whose spec.md §6 default is true, not Go's zero value.
type boolDefaults struct {
	Engine struct {
		PaperTrade     *bool `yaml:"paper_trade"`
		TradingEnabled *bool `yaml:"trading_enabled"`
	} `yaml:"engine"`
}

// Load reads path as YAML, applies .env overrides (if a .env file is
// present in the working directory), then fills in defaults for anything
// still unset.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	var bd boolDefaults
	if err := yaml.Unmarshal(data, &bd); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	_ = godotenv.Load()
	envSetPaperTrade := applyEnvOverrides(&cfg)
	setDefaults(&cfg, bd, envSetPaperTrade)

	return cfg, nil
}

// applyEnvOverrides applies KALSHIMM_*-prefixed env overrides and reports
// whether KALSHIMM_PAPER_TRADE supplied an explicit value, so setDefaults
// doesn't clobber it with the YAML-omitted default afterward.
func applyEnvOverrides(cfg *Config) (envSetPaperTrade bool) {
	if v := os.Getenv("KALSHIMM_ACCESS_KEY"); v != "" {
		cfg.API.AccessKey = v
	}
	if v := os.Getenv("KALSHIMM_PRIVATE_KEY_PATH"); v != "" {
		cfg.API.PrivateKeyPath = v
	}
	if v := os.Getenv("KALSHIMM_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("KALSHIMM_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("KALSHIMM_PAPER_TRADE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Engine.PaperTrade = b
			envSetPaperTrade = true
		}
	}
	if v := os.Getenv("KALSHIMM_ASSETS"); v != "" {
		cfg.Scanner.Assets = strings.Split(v, ",")
	}
	return envSetPaperTrade
}

// setDefaults fills in zero-valued tunables. PaperTrade and TradingEnabled
// default to true per spec.md §6, which the plain bool zero value can't
// express on its own (false is indistinguishable from "omitted"); bd
// carries what was actually present in the YAML so an omitted key still
// resolves to true, while an explicit `false` (or an env override) sticks.
func setDefaults(cfg *Config, bd boolDefaults, envSetPaperTrade bool) {
	if bd.Engine.PaperTrade == nil && !envSetPaperTrade {
		cfg.Engine.PaperTrade = true
	}
	if bd.Engine.TradingEnabled == nil {
		cfg.Engine.TradingEnabled = true
	}

	if cfg.Engine.ScanIntervalSeconds == 0 {
		cfg.Engine.ScanIntervalSeconds = 15
	}
	if cfg.Engine.OrderSizeDefault == 0 {
		cfg.Engine.OrderSizeDefault = 10
	}
	if cfg.Engine.MaxExposurePerMarket == 0 {
		cfg.Engine.MaxExposurePerMarket = 100
	}
	if cfg.Engine.MaxTotalExposure == 0 {
		cfg.Engine.MaxTotalExposure = 1000
	}
	if cfg.Engine.PairTimeoutSeconds == 0 {
		cfg.Engine.PairTimeoutSeconds = 45
	}
	if cfg.Engine.CancelDeadlineSeconds == 0 {
		cfg.Engine.CancelDeadlineSeconds = 90
	}
	if cfg.Engine.MaxOneSidedFillsBeforeHalt == 0 {
		cfg.Engine.MaxOneSidedFillsBeforeHalt = 5
	}
	if cfg.Engine.MinSpreadThreshold == 0 {
		cfg.Engine.MinSpreadThreshold = 1
	}
	if cfg.Scanner.ResolutionBufferSeconds == 0 {
		cfg.Scanner.ResolutionBufferSeconds = 120
	}
	if len(cfg.Scanner.Assets) == 0 {
		cfg.Scanner.Assets = []string{"BTC", "ETH", "SOL", "XRP"}
	}
	if cfg.Scanner.Limit == 0 {
		cfg.Scanner.Limit = 200
	}
	if cfg.API.RequestsPerSecond == 0 {
		cfg.API.RequestsPerSecond = 5
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "kalshimm.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
