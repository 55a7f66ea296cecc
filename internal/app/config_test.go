package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, CacheBackendMemory, cfg.AnalyticsCacheBackend)
	assert.Equal(t, 10*time.Minute, cfg.AnalyticsCacheTTL)
	assert.Equal(t, 6, cfg.AnalyticsWindowMonths)
	assert.Equal(t, "analytics.invalidate", cfg.AnalyticsInvalidationChannel)
	assert.Equal(t, 5*time.Second, cfg.AnalyticsRequestTimeout)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("ANALYTICS_CACHE_BACKEND", " Redis ")
	t.Setenv("ANALYTICS_CACHE_TTL", "2m")
	t.Setenv("ANALYTICS_WINDOW_MONTHS", "12")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, CacheBackendRedis, cfg.AnalyticsCacheBackend)
	assert.Equal(t, 2*time.Minute, cfg.AnalyticsCacheTTL)
	assert.Equal(t, 12, cfg.AnalyticsWindowMonths)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		return Config{
			AnalyticsCacheBackend: CacheBackendMemory,
			AnalyticsCacheTTL:     time.Minute,
			AnalyticsWindowMonths: 6,
			AnalyticsTimezone:     "Europe/Lisbon",
		}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.AnalyticsCacheBackend = "memcached" }},
		{"zero ttl", func(c *Config) { c.AnalyticsCacheTTL = 0 }},
		{"window too small", func(c *Config) { c.AnalyticsWindowMonths = 0 }},
		{"window too large", func(c *Config) { c.AnalyticsWindowMonths = 37 }},
		{"bad timezone", func(c *Config) { c.AnalyticsTimezone = "Mars/Olympus" }},
	}
	ok := base()
	require.NoError(t, ok.Validate())
	loc, err := ok.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Lisbon", loc.String())

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
