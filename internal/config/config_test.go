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
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 5672, cfg.RabbitMQ.Port)
	assert.Equal(t, "/", cfg.RabbitMQ.VHost)
	assert.Equal(t, 5, cfg.Orders.MaxReceiveCount)
	assert.Equal(t, 3*time.Second, cfg.Settlement.Wait)
	assert.Equal(t, 15*time.Second, cfg.Settlement.Timeout)
	assert.False(t, cfg.Orders.SkipSettlement)
	assert.NotEmpty(t, cfg.App.NodeID)
}

func TestLoadFromYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  host: db.local
  user: orders
  database: orders
rabbitmq:
  host: mq.local
  user: guest
orders:
  skip_settlement: true
settlement:
  wait: 250ms
`), 0o600))
	t.Setenv("ORDERS_DATABASE_PASSWORD", "secret")
	t.Setenv("ORDERS_SETTLEMENT_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db.local", cfg.Database.Host)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "mq.local", cfg.RabbitMQ.Host)
	assert.True(t, cfg.Orders.SkipSettlement)
	assert.Equal(t, 250*time.Millisecond, cfg.Settlement.Wait)
	assert.Equal(t, 2*time.Second, cfg.Settlement.Timeout)
	assert.NoError(t, cfg.RequireDatabase())
	assert.NoError(t, cfg.RequireRabbitMQ())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("ORDERS_ORDERS_MAX_RECEIVE_COUNT", "0")
	_, err := Load("")
	assert.Error(t, err)
}

func TestRequireIncomplete(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireDatabase())
	assert.Error(t, cfg.RequireRabbitMQ())
}
