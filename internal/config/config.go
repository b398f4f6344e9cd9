package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the root configuration for the lobd demo binary and its
// constituent packages.
type Config struct {
	// Feed configures the simulated L2 adapter.
	Feed struct {
		Symbols    []string      `mapstructure:"symbols"`
		StartPrice float64       `mapstructure:"start_price"`
		TickSize   float64       `mapstructure:"tick_size"`
		LevelCount int           `mapstructure:"level_count"`
		Interval   time.Duration `mapstructure:"interval"`
		Seed       int64         `mapstructure:"seed"`
	} `mapstructure:"feed"`

	// Book configures every internal/lob.OrderBook instance.
	Book struct {
		CrossResolution string `mapstructure:"cross_resolution"`
	} `mapstructure:"book"`

	// Features configures internal/features.Calculator.
	Features struct {
		WindowNs          int64   `mapstructure:"window_ns"`
		RegimeCacheTTL    time.Duration `mapstructure:"regime_cache_ttl"`
		StableBelow       float64 `mapstructure:"stable_below"`
		NormalBelow       float64 `mapstructure:"normal_below"`
		VolatileBelow     float64 `mapstructure:"volatile_below"`
	} `mapstructure:"features"`

	// Aggregator configures internal/aggregator.Aggregator.
	Aggregator struct {
		TimeframesSeconds []int64 `mapstructure:"timeframes_seconds"`
		RingCapacity      int     `mapstructure:"ring_capacity"`
	} `mapstructure:"aggregator"`

	// WAL configures internal/wal.Manager.
	WAL struct {
		Dir             string  `mapstructure:"dir"`
		MaxSegmentBytes int64   `mapstructure:"max_segment_bytes"`
		FlushRateLimit  float64 `mapstructure:"flush_rate_limit"`
		FlushBurst      int     `mapstructure:"flush_burst"`
	} `mapstructure:"wal"`

	// Bus configures the market-event and WAL-event busses.
	Bus struct {
		MarketCapacity int `mapstructure:"market_capacity"`
		WalCapacity    int `mapstructure:"wal_capacity"`
	} `mapstructure:"bus"`

	// Diagnostics configures the Prometheus exporter.
	Diagnostics struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"diagnostics"`

	// Logging configures the zap logger.
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

var (
	config *Config
	once   sync.Once
)

// LoadConfig loads the configuration from configPath (a directory) plus
// environment variables prefixed LOBD_, falling back to built-in
// defaults when no config file is present.
func LoadConfig(configPath string) (*Config, error) {
	var err error

	once.Do(func() {
		config = &Config{}
		setDefaults(config)

		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if configPath != "" {
			v.AddConfigPath(configPath)
		} else {
			v.AddConfigPath(".")
			v.AddConfigPath("./config")
			v.AddConfigPath("/etc/lobd")
		}

		v.AutomaticEnv()
		v.SetEnvPrefix("LOBD")

		if err = v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("failed to read config file: %w", err)
				return
			}
			err = nil
		}

		if err = v.Unmarshal(config); err != nil {
			err = fmt.Errorf("failed to unmarshal config: %w", err)
			return
		}
	})

	return config, err
}

// GetConfig returns the process-wide configuration, loading it with
// default search paths on first use.
func GetConfig() *Config {
	if config == nil {
		_, err := LoadConfig("")
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	}
	return config
}

// SaveConfig writes cfg as indented JSON to path, creating parent
// directories as needed. Used by the demo binary to snapshot an
// effective configuration for inspection.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func setDefaults(cfg *Config) {
	cfg.Feed.Symbols = []string{"BTC-USD"}
	cfg.Feed.StartPrice = 50000.0
	cfg.Feed.TickSize = 0.5
	cfg.Feed.LevelCount = 10
	cfg.Feed.Interval = 50 * time.Millisecond

	cfg.Book.CrossResolution = "reject"

	cfg.Features.WindowNs = int64(10 * time.Second)
	cfg.Features.RegimeCacheTTL = 5 * time.Second
	cfg.Features.StableBelow = 0.0005
	cfg.Features.NormalBelow = 0.002
	cfg.Features.VolatileBelow = 0.01

	cfg.Aggregator.TimeframesSeconds = []int64{1, 5, 60}
	cfg.Aggregator.RingCapacity = 256

	cfg.WAL.Dir = "data/wal"
	cfg.WAL.MaxSegmentBytes = 128 << 20
	cfg.WAL.FlushRateLimit = 50
	cfg.WAL.FlushBurst = 10

	cfg.Bus.MarketCapacity = 1024
	cfg.Bus.WalCapacity = 1024

	cfg.Diagnostics.Enabled = true
	cfg.Diagnostics.Addr = ":9090"
	cfg.Diagnostics.Path = "/metrics"

	cfg.Logging.Level = "info"
}

// InitLogger builds a zap.Logger whose level follows cfg.Logging.Level.
func InitLogger(cfg *Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	switch cfg.Logging.Level {
	case "debug":
		logger, err = zap.NewDevelopment()
	case "info", "warn", "error":
		zcfg := zap.NewProductionConfig()
		if err = zcfg.Level.UnmarshalText([]byte(cfg.Logging.Level)); err == nil {
			logger, err = zcfg.Build()
		}
	default:
		logger, err = zap.NewProduction()
	}

	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}
