package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  run_local: true
webhook:
  secret: s3cret
store:
  backend: sqlite
  sqlite_path: /tmp/orders.db
locker:
  backend: redis
redis:
  addr: localhost:6379
retry:
  max_attempts: 5
  attempt_timeout: 2s
notify:
  sms_url: http://sms.local/send
`)

	cfg, err := Load(path, RoleAPI)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Webhook.Secret)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, BackendRedis, cfg.Locker.Backend)
	assert.Equal(t, DispatchPool, cfg.Dispatch.Mode, "run_local defaults to the in-process pool")
	assert.Equal(t, uint(5), cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.AttemptTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Retry.InitialInterval)
	assert.Equal(t, "http://sms.local/send", cfg.Notify.SMSURL)
	assert.Equal(t, "91", cfg.Notify.CountryCode)
	assert.Equal(t, 30*time.Second, cfg.Locker.Lease)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "from-env")
	t.Setenv("ORDERS_QUEUE_URL", "https://sqs.local/q")
	t.Setenv("PENDING_ORDERS_TABLE", "po-test")
	t.Setenv("ORDERS_TABLE", "orders-test")
	t.Setenv("IDEMPOTENCY_TABLE", "claims-test")
	t.Setenv("AWS_ENDPOINT_OVERRIDE", "http://localhost:4566")

	cfg, err := Load("", RoleAPI)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Webhook.Secret)
	assert.Equal(t, DispatchQueue, cfg.Dispatch.Mode)
	assert.Equal(t, "https://sqs.local/q", cfg.Queue.URL)
	assert.Equal(t, "po-test", cfg.Tables.PendingOrders)
	assert.Equal(t, "orders-test", cfg.Tables.Orders)
	assert.Equal(t, "claims-test", cfg.Tables.Idempotency)
	assert.Equal(t, "http://localhost:4566", cfg.AWS.Endpoint)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("ORDERS_QUEUE_URL", "https://sqs.local/q")

	_, err := Load("", RoleAPI)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook.secret")
}

func TestLoad_AllowUnsignedWithoutSecret(t *testing.T) {
	path := writeFile(t, `
server:
  run_local: true
webhook:
  allow_unsigned: true
dispatch:
  mode: pool
`)
	cfg, err := Load(path, RoleAPI)
	require.NoError(t, err)
	assert.True(t, cfg.Webhook.AllowUnsigned)
}

func TestValidate_RejectsUnknownBackends(t *testing.T) {
	path := writeFile(t, `
webhook:
  secret: x
store:
  backend: mongo
locker:
  backend: etcd
dispatch:
  mode: kafka
`)
	_, err := Load(path, RoleAPI)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.backend")
	assert.Contains(t, err.Error(), "locker.backend")
	assert.Contains(t, err.Error(), "dispatch.mode")
}

func TestLoad_PoolRequiresRunLocal(t *testing.T) {
	path := writeFile(t, `
webhook:
  secret: x
dispatch:
  mode: pool
`)
	_, err := Load(path, RoleAPI)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.run_local")
}

func TestLoad_WorkerNeedsNoWebhookOrQueue(t *testing.T) {
	t.Setenv("PENDING_ORDERS_TABLE", "po")
	t.Setenv("ORDERS_TABLE", "orders")

	cfg, err := Load("", RoleWorker)
	require.NoError(t, err)
	assert.True(t, cfg.NeedsLocker())
	assert.False(t, cfg.Dispatches())
}

func TestLoad_AuditNeedsOnlyStores(t *testing.T) {
	path := writeFile(t, `
store:
  backend: sqlite
  sqlite_path: /tmp/audit.db
locker:
  backend: etcd
`)
	cfg, err := Load(path, RoleAudit)
	require.NoError(t, err)
	assert.False(t, cfg.NeedsLocker())
	assert.False(t, cfg.Dispatches())

	_, err = Load(path, RoleWorker)
	require.Error(t, err, "the worker takes locks and must reject the locker backend")
	assert.Contains(t, err.Error(), "locker.backend")
}

func TestValidate_DoneTTLMustBePositive(t *testing.T) {
	path := writeFile(t, `
locker:
  done_ttl: 0s
`)
	_, err := Load(path, RoleWorker)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locker.done_ttl")
}

func TestNeedsLocker_APIOnlyInPoolMode(t *testing.T) {
	c := &Config{Role: RoleAPI, Dispatch: DispatchConfig{Mode: DispatchQueue}}
	assert.False(t, c.NeedsLocker())
	c.Dispatch.Mode = DispatchPool
	assert.True(t, c.NeedsLocker())
}
