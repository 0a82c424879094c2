package config_test

import (
	"testing"
	"time"

	"github.com/ark-network/payoutd/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	datadir := t.TempDir()
	t.Setenv("PAYOUTD_DATADIR", datadir)
	t.Setenv("PAYOUTD_NETWORK", "REGTEST")
	t.Setenv("PAYOUTD_GLOBAL_POLL_INTERVAL", "5")
	t.Setenv("PAYOUTD_MIN_INTERVAL", "30s")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, datadir, cfg.Datadir)
	require.Equal(t, "regtest", cfg.Network)
	require.Equal(t, "sqlite", cfg.DbType)
	require.Equal(t, "esplora", cfg.FeeEstimatorType)
	require.Equal(t, "inmemory", cfg.EventBusType)
	require.Equal(t, uint32(config.DefaultPort), cfg.Port)
	require.Equal(t, 5*time.Second, cfg.GlobalPollInterval)
	require.Equal(t, 20*time.Second, cfg.BroadcastWaitTimeout)
	require.Equal(t, 30*time.Second, cfg.MinInterval)
	require.Equal(t, 24*time.Hour, cfg.MaxInterval)
}

func TestValidate(t *testing.T) {
	validConfig := func(t *testing.T) *config.Config {
		return &config.Config{
			DbType:               "sqlite",
			DbDir:                t.TempDir(),
			Network:              "regtest",
			EsploraURL:           "http://localhost:3000",
			WalletGapLimit:       20,
			FeeEstimatorType:     "static",
			StaticFeeRate:        2,
			EventBusType:         "inmemory",
			GlobalPollInterval:   time.Minute,
			BroadcastWaitTimeout: time.Second,
			MinInterval:          time.Minute,
			MaxInterval:          24 * time.Hour,
		}
	}

	t.Run("valid", func(t *testing.T) {
		for _, dbType := range []string{"sqlite", "badger"} {
			t.Run(dbType, func(t *testing.T) {
				cfg := validConfig(t)
				cfg.DbType = dbType

				require.NoError(t, cfg.Validate())
				require.NotNil(t, cfg.RegistryService())
				require.NotNil(t, cfg.AdminService())
				require.NotEmpty(t, cfg.AdminService().ProcessorTypes())
				cfg.Close()
			})
		}
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name   string
			modify func(*config.Config)
		}{
			{"db type", func(c *config.Config) { c.DbType = "postgres" }},
			{"fee estimator", func(c *config.Config) { c.FeeEstimatorType = "mempool" }},
			{"event bus", func(c *config.Config) { c.EventBusType = "kafka" }},
			{"network", func(c *config.Config) { c.Network = "liquid" }},
			{"esplora url", func(c *config.Config) { c.EsploraURL = "" }},
			{"redis url", func(c *config.Config) { c.EventBusType = "redis" }},
			{"static fee rate", func(c *config.Config) { c.StaticFeeRate = 0 }},
			{"poll interval", func(c *config.Config) { c.GlobalPollInterval = 0 }},
			{"min interval", func(c *config.Config) { c.MinInterval = 0 }},
			{"interval bounds", func(c *config.Config) { c.MinInterval = 48 * time.Hour }},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				cfg := validConfig(t)
				f.modify(cfg)
				require.Error(t, cfg.Validate())
			})
		}
	})
}
