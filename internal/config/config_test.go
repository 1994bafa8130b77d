package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("sales-service")
	require.NoError(t, err)

	assert.Equal(t, "sales-service", cfg.Service)
	assert.Equal(t, 8002, cfg.HTTP.Port)
	assert.Equal(t, "sales", cfg.Postgres.DBName)
	assert.Equal(t, 5*time.Second, cfg.Purchase.CallTimeout)
	assert.Equal(t, 3, cfg.Purchase.CompensationAttempts)
	assert.Equal(t, []string{"v1"}, cfg.API.Versions)
	assert.Equal(t, ":8002", cfg.Addr())
}

func TestLoadEachServiceGetsItsOwnDatabase(t *testing.T) {
	customers, err := Load("customer-service")
	require.NoError(t, err)
	inventory, err := Load("inventory-service")
	require.NoError(t, err)

	assert.Equal(t, "customers", customers.Postgres.DBName)
	assert.Equal(t, "inventory", inventory.Postgres.DBName)
	assert.NotEqual(t, customers.HTTP.Port, inventory.HTTP.Port)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MINISHOP_POSTGRES_HOST", "db.internal")
	t.Setenv("MINISHOP_PURCHASE_CALL_TIMEOUT", "750ms")
	t.Setenv("MINISHOP_CONSUL_ENABLED", "false")

	cfg, err := Load("sales-service")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 750*time.Millisecond, cfg.Purchase.CallTimeout)
	assert.False(t, cfg.Consul.Enabled)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("http:\n  port: 9100\napi:\n  versions: [v1, v2]\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	t.Setenv("MINISHOP_CONFIG", path)

	cfg, err := Load("inventory-service")
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.HTTP.Port)
	assert.Equal(t, []string{"v1", "v2"}, cfg.API.Versions)
}

func TestLoadRejectsInvalidTimeout(t *testing.T) {
	t.Setenv("MINISHOP_PURCHASE_CALL_TIMEOUT", "0s")

	_, err := Load("sales-service")
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "h", Port: 1, User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=1 user=u password=p dbname=d sslmode=disable", p.DSN())
}
