package sqlstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
	"github.com/imrishuroy/go-payment-reconciler/internal/pending"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func samplePending(n string) pending.Order {
	return pending.Order{
		OrderNumber:     n,
		RazorpayOrderID: "order_" + n,
		CustomerInfo: pending.CustomerInfo{
			Name: "A", Phone: "9876543210", Address: "X", City: "Y", State: "Tamil Nadu", Pincode: "600001",
		},
		Items:         []pending.Item{{Name: "Aloe Gel", SKUID: "AG01", Price: 250, Quantity: 2}},
		Total:         500,
		Communication: pending.OriginWebsite,
	}
}

func TestPendingStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewPendingStore(openTestDB(t))

	require.NoError(t, s.Create(ctx, samplePending("DH-1001")))
	assert.ErrorIs(t, s.Create(ctx, samplePending("DH-1001")), pending.ErrExists)

	got, err := s.FindByOrderNumber(ctx, "DH-1001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pending.StatusPending, got.Status)
	assert.Equal(t, "Tamil Nadu", got.CustomerInfo.State)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "AG01", got.Items[0].SKUID)

	byGateway, err := s.FindByGatewayOrderID(ctx, "order_DH-1001")
	require.NoError(t, err)
	require.NotNil(t, byGateway)
	assert.Equal(t, "DH-1001", byGateway.OrderNumber)

	missing, err := s.FindByOrderNumber(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPendingStore_UpdateStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewPendingStore(openTestDB(t))
	require.NoError(t, s.Create(ctx, samplePending("DH-1")))

	require.NoError(t, s.UpdateStatus(ctx, "DH-1",
		[]pending.Status{pending.StatusPending}, pending.StatusProcessing, pending.Terminal{}))
	require.NoError(t, s.UpdateStatus(ctx, "DH-1",
		[]pending.Status{pending.StatusProcessing}, pending.StatusCompleted,
		pending.Terminal{PaymentID: "pay_1", InvoiceNumber: "DH1234567"}))

	err := s.UpdateStatus(ctx, "DH-1",
		[]pending.Status{pending.StatusPending, pending.StatusProcessing}, pending.StatusFailed,
		pending.Terminal{FailureReason: "late failure"})
	assert.ErrorIs(t, err, pending.ErrStatusMismatch)

	got, err := s.FindByOrderNumber(ctx, "DH-1")
	require.NoError(t, err)
	assert.Equal(t, pending.StatusCompleted, got.Status)
	assert.Equal(t, "pay_1", got.PaymentID)
	assert.Equal(t, "DH1234567", got.InvoiceNumber)
	assert.Empty(t, got.FailureReason)

	assert.ErrorIs(t, s.UpdateStatus(ctx, "missing",
		[]pending.Status{pending.StatusPending}, pending.StatusFailed, pending.Terminal{}), pending.ErrStatusMismatch)
}

func TestPendingStore_ListStale(t *testing.T) {
	ctx := context.Background()
	s := NewPendingStore(openTestDB(t))

	old := time.Now().Add(-2 * time.Hour).UTC()
	stale := samplePending("DH-OLD")
	stale.CreatedAt = old
	require.NoError(t, s.Create(ctx, stale))

	done := samplePending("DH-DONE")
	done.CreatedAt = old
	done.Status = pending.StatusCompleted
	require.NoError(t, s.Create(ctx, done))

	require.NoError(t, s.Create(ctx, samplePending("DH-NEW")))

	got, err := s.ListStale(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "DH-OLD", got[0].OrderNumber)
}

func TestOrderStore_CreateIsUnique(t *testing.T) {
	ctx := context.Background()
	s := NewOrderStore(openTestDB(t))

	o := orders.Order{OrderNumber: "DH-1001", Name: "Aloe Gel", Total: 500}
	require.NoError(t, s.Create(ctx, o))
	assert.ErrorIs(t, s.Create(ctx, o), orders.ErrDuplicateOrder)

	exists, err := s.ExistsByOrderNumber(ctx, "DH-1001")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := s.Get(ctx, "DH-1001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Aloe Gel", got.Name)
}

func TestOrderStore_ConcurrentCreatesYieldOneRow(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := NewOrderStore(db)

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dupes   int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Create(ctx, orders.Order{OrderNumber: "DH-RACE"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, orders.ErrDuplicateOrder):
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, writers-1, dupes)

	var n int64
	require.NoError(t, db.Model(&orders.Order{}).Where("ordernum = ?", "DH-RACE").Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
