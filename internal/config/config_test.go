package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("JWT_ISSUER", "sim")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_TTL", "1h")
	t.Setenv("WS_ORIGIN", "*")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "development", c.Mode)
	assert.Equal(t, "100000", c.StartingBalance.String())
	assert.Equal(t, "1", c.DefaultLeverage.String())
	assert.Equal(t, "0.005", c.MaintenanceRate.String())
	assert.Equal(t, "250ms", c.TickInterval.String())
	assert.Equal(t, "30s", c.SnapshotInterval.String())
}

func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadRejectsBadValues(t *testing.T) {
	setRequired(t)
	t.Setenv("STARTING_BALANCE", "-5")
	_, err := Load()
	assert.Error(t, err)

	setRequired(t)
	t.Setenv("STARTING_BALANCE", "")
	t.Setenv("APP_MODE", "staging")
	_, err = Load()
	assert.Error(t, err)
}
