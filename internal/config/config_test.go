package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetDefaultsPopulatesEveryComponent(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	require.Equal(t, []string{"BTC-USD"}, cfg.Feed.Symbols)
	require.Equal(t, "reject", cfg.Book.CrossResolution)
	require.Equal(t, []int64{1, 5, 60}, cfg.Aggregator.TimeframesSeconds)
	require.Equal(t, "data/wal", cfg.WAL.Dir)
	require.Equal(t, 1024, cfg.Bus.MarketCapacity)
	require.True(t, cfg.Diagnostics.Enabled)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestSaveConfigRoundTrips(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.Feed.StartPrice = 123.45

	path := filepath.Join(t.TempDir(), "effective.json")
	require.NoError(t, SaveConfig(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "123.45")
}

func TestInitLoggerAcceptsEveryLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		cfg := &Config{}
		cfg.Logging.Level = level
		logger, err := InitLogger(cfg)
		require.NoError(t, err)
		require.NotNil(t, logger)
	}
}
