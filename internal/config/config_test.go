package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearThreatbusEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"THREATBUS_APP_HOST", "THREATBUS_APP_PORT", "THREATBUS_APP_NAMESPACE",
		"THREATBUS_BACKBONE_HOST", "THREATBUS_BACKBONE_PORT",
		"THREATBUS_BACKBONE_USER", "THREATBUS_BACKBONE_PASSWORD",
		"THREATBUS_INBOX_CAPACITY", "THREATBUS_DISPATCH_BACKLOG",
		"THREATBUS_METRICS_ADDR", "VAULT_ADDR", "VAULT_TOKEN",
		"THREATBUS_VAULT_SECRET_PATH",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	clearThreatbusEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 47761, cfg.App.Port)
	assert.Equal(t, "Tb", cfg.App.ModuleNamespace)
	assert.Equal(t, 5672, cfg.Backbone.Port)
}

func TestLoad_ReportsAllInvalidKeysAtOnce(t *testing.T) {
	clearThreatbusEnv(t)
	t.Setenv("THREATBUS_APP_PORT", "not-a-number")
	t.Setenv("THREATBUS_BACKBONE_PORT", "also-not-a-number")

	_, err := Load()
	require.Error(t, err)
	invalid, ok := err.(*InvalidError)
	require.True(t, ok)
	assert.Len(t, invalid.Keys, 2)
}

func TestLoad_VaultTokenRequiredWhenAddrSet(t *testing.T) {
	clearThreatbusEnv(t)
	t.Setenv("VAULT_ADDR", "https://vault.example:8200")

	_, err := Load()
	require.Error(t, err)
	invalid, ok := err.(*InvalidError)
	require.True(t, ok)
	assert.Contains(t, invalid.Keys[0], "VAULT_TOKEN")
}

func TestLoad_EmptyNamespaceFallsBackToDefault(t *testing.T) {
	clearThreatbusEnv(t)
	t.Setenv("THREATBUS_APP_NAMESPACE", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Tb", cfg.App.ModuleNamespace, "empty env falls back to default, not an empty namespace")
}
