package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MATCH_TOP_N", "")
	t.Setenv("OBFUSCATE_MAX_KM", "")

	cfg := Load()

	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 3, cfg.MatchTopN)
	require.Equal(t, 20.0, cfg.MatchMinScore)
	require.Equal(t, 2.0, cfg.ObfuscateMaxKm)
	require.Equal(t, 10*time.Second, cfg.GeocoderTimeout)
	require.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("MATCH_TOP_N", "5")
	t.Setenv("MATCH_MIN_SCORE", "35.5")
	t.Setenv("GEOCODER_TIMEOUT", "15")
	t.Setenv("MATCH_TIMEOUT", "45s")

	cfg := Load()

	require.True(t, cfg.IsProduction())
	require.Equal(t, 5, cfg.MatchTopN)
	require.Equal(t, 35.5, cfg.MatchMinScore)
	require.Equal(t, 15*time.Second, cfg.GeocoderTimeout)
	require.Equal(t, 45*time.Second, cfg.MatchTimeout)
}

func TestLoad_InvalidFallsBack(t *testing.T) {
	t.Setenv("MATCH_TOP_N", "three")
	t.Setenv("GEOCODER_TIMEOUT", "soon")

	cfg := Load()

	require.Equal(t, 3, cfg.MatchTopN)
	require.Equal(t, 10*time.Second, cfg.GeocoderTimeout)
}
