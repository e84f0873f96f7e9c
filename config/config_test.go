package config

import (
	"testing"

	"github.com/Gobusters/ectoenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindEnvOverrides(t *testing.T) {
	t.Setenv("APP_NAME", "firethorn-test")
	t.Setenv("PORT", "4100")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("CLUSTER_RADIUS_METERS", "2500")
	t.Setenv("FIRMS_SOURCE", "VIIRS_NOAA20_NRT")

	cfg := &Config{}
	require.NoError(t, ectoenv.BindEnv(cfg))

	assert.Equal(t, "firethorn-test", cfg.AppName)
	assert.Equal(t, 4100, cfg.Port)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, 2500.0, cfg.ClusterRadiusMeters)
	assert.Equal(t, "VIIRS_NOAA20_NRT", cfg.FirmsSource)
}
