package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_SOURCE", "postgresql://localhost/payops")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "@every 10m", cfg.PollSchedule)
	assert.Equal(t, LookupOrderRef, cfg.InvoiceLookup)
	assert.Equal(t, "sandbox", cfg.Flocash.Environment)
}

func TestLoadRequiresDBSource(t *testing.T) {
	t.Setenv("DB_SOURCE", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadLookup(t *testing.T) {
	t.Setenv("DB_SOURCE", "postgresql://localhost/payops")
	t.Setenv("INVOICE_LOOKUP", "telepathy")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFlocashCredentials(t *testing.T) {
	t.Setenv("DB_SOURCE", "postgresql://localhost/payops")
	t.Setenv("FLOCASH_ENVIRONMENT", "production")
	t.Setenv("FLOCASH_API_USERNAME", "merchant")
	t.Setenv("FLOCASH_API_PASSWORD", "secret")
	t.Setenv("FLOCASH_MERCHANT_ACCOUNT", "ACC-1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Flocash.Environment)
	assert.Equal(t, "https://pay.flocash.com/rest/v2", cfg.Flocash.BaseURL())
	assert.Equal(t, "merchant", cfg.Flocash.Username)
}
