package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-payment-reconciler/internal/config"
	"github.com/imrishuroy/go-payment-reconciler/internal/dispatch"
	"github.com/imrishuroy/go-payment-reconciler/internal/pending"
	"github.com/imrishuroy/go-payment-reconciler/internal/retry"
	"github.com/imrishuroy/go-payment-reconciler/internal/webhook"
)

func localConfig(t *testing.T, redisAddr string) *config.Config {
	return &config.Config{
		Store:    config.StoreConfig{Backend: config.BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "app.db")},
		Locker:   config.LockerConfig{Backend: config.BackendRedis, Lease: 30 * time.Second, DoneTTL: time.Hour, Prefix: "test"},
		Redis:    config.RedisConfig{Addr: redisAddr},
		Dispatch: config.DispatchConfig{Mode: config.DispatchPool, Workers: 2, QueueSize: 8},
		Retry:    retry.Config{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	}
}

func TestLocalStack_EndToEnd(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	a, err := New(ctx, localConfig(t, mr.Addr()), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.AWS, "local backends need no AWS clients")
	assert.Nil(t, a.Counter())

	require.NoError(t, a.Pending.Create(ctx, pending.Order{
		OrderNumber:  "DH-1001",
		CustomerInfo: pending.CustomerInfo{Name: "A", Phone: "9876543210", Address: "X"},
		Items:        []pending.Item{{Name: "Aloe Gel", Price: 250, Quantity: 2, SKUID: "AG01"}},
		Total:        500,
	}))

	d, drain, err := a.Dispatcher()
	require.NoError(t, err)

	job := dispatch.Job{
		CorrelationID: "c-1",
		Kind:          webhook.KindCaptured,
		OrderNumber:   "DH-1001",
		Payment:       webhook.Entity{ID: "pay_1", Amount: 50000},
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Dispatch(ctx, job))
	}
	require.NoError(t, drain(ctx))

	o, err := a.Orders.Get(ctx, "DH-1001")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "Aloe Gel: 250 x 2", o.Price)

	p, err := a.Pending.FindByOrderNumber(ctx, "DH-1001")
	require.NoError(t, err)
	assert.Equal(t, pending.StatusCompleted, p.Status)
}

func TestAuditRole_SkipsLockerAndAWS(t *testing.T) {
	cfg := localConfig(t, "")
	cfg.Role = config.RoleAudit
	cfg.Locker.Backend = config.BackendDynamoDB
	cfg.Dispatch.Mode = config.DispatchQueue

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.AWS)
	assert.Nil(t, a.Locker)
	assert.NotNil(t, a.Pending)
}
