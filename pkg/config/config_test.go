package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	require.Equal(t, "UTC", cfg.Platform.Timezone)
	require.Equal(t, 5*time.Second, cfg.Scheduler.DispatchDelay)
	require.Equal(t, "0 * * * *", cfg.Scheduler.Cron)
	require.Equal(t, 100, cfg.Executor.MaxLeadsPerRun)
	require.Equal(t, int64(1), cfg.Credits.InviteCost)
}

func TestLocation(t *testing.T) {
	var nilCfg *Config
	require.Equal(t, time.UTC, nilCfg.Location())

	cfg := &Config{}
	cfg.Platform.Timezone = "Asia/Jakarta"
	require.Equal(t, "Asia/Jakarta", cfg.Location().String())

	cfg.Platform.Timezone = "Not/AZone"
	require.Equal(t, time.UTC, cfg.Location())
}
