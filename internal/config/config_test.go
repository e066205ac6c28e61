package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"BACKOFFICE_BASE_URL":    "http://backoffice.local/api",
		"PORT":                   "",
		"PROMOTION_CONTEXT":      "",
		"PRICING_SURCHARGE_MODE": "",
		"DRAFT_IDLE_TTL":         "",
		"SUBMIT_RATE_LIMIT":      "",
	})
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "sortie", cfg.PromotionContext)
	require.Equal(t, "base", cfg.PricingSurchargeMode)
	require.Equal(t, 2*time.Hour, cfg.DraftIdleTTL)
	require.Equal(t, 10, cfg.SubmitRateLimit)
	require.Equal(t, 5*time.Second, cfg.BackofficeTimeout)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"BACKOFFICE_BASE_URL":          "http://backoffice.local/api",
		"BACKOFFICE_DUPLICATE_MARKERS": " already exists , duplicate ",
		"BACKOFFICE_TIMEOUT":           "750ms",
		"PROMOTION_CONTEXT":            "depot",
		"PRICING_SURCHARGE_MODE":       "additive",
		"CATALOG_CACHE_TTL":            "not-a-duration",
		"OBS_ENABLE_PROMETHEUS":        "off",
		"PORT":                         ":9090",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"already exists", "duplicate"}, cfg.BackofficeDuplicateMarkers)
	require.Equal(t, 750*time.Millisecond, cfg.BackofficeTimeout)
	require.Equal(t, "depot", cfg.PromotionContext)
	require.Equal(t, "additive", cfg.PricingSurchargeMode)
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	require.False(t, cfg.Obs.EnablePrometheus)
	require.Equal(t, ":9090", cfg.HTTPAddr())
}

func TestLoadRequiresBackoffice(t *testing.T) {
	_, err := LoadForTests(map[string]string{"BACKOFFICE_BASE_URL": ""})
	require.EqualError(t, err, "BACKOFFICE_BASE_URL is required")
}

func TestLoadRejectsBadBreakerRatio(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"BACKOFFICE_BASE_URL":      "http://backoffice.local",
		"BACKOFFICE_BREAKER_RATIO": "1.5",
	})
	require.Error(t, err)
}
