package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/imrishuroy/go-payment-reconciler/internal/pending"
)

// PendingStore keeps pending orders in SQL with the same contract as pending.Store.
type PendingStore struct {
	db      *gorm.DB
	nowFunc func() time.Time
}

func NewPendingStore(db *gorm.DB) *PendingStore {
	return &PendingStore{db: db, nowFunc: time.Now}
}

func (s *PendingStore) Create(ctx context.Context, o pending.Order) error {
	now := s.nowFunc().UTC()
	if o.Status == "" {
		o.Status = pending.StatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(&o).Error; err != nil {
		if isUnique(err) {
			return pending.ErrExists
		}
		return fmt.Errorf("insert pending order: %w", err)
	}
	return nil
}

func (s *PendingStore) FindByOrderNumber(ctx context.Context, orderNumber string) (*pending.Order, error) {
	return s.first(ctx, "order_number = ?", orderNumber)
}

func (s *PendingStore) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*pending.Order, error) {
	if gatewayOrderID == "" {
		return nil, nil
	}
	return s.first(ctx, "razorpay_order_id = ?", gatewayOrderID)
}

func (s *PendingStore) first(ctx context.Context, query string, arg string) (*pending.Order, error) {
	var o pending.Order
	err := s.db.WithContext(ctx).Where(query, arg).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select pending order: %w", err)
	}
	return &o, nil
}

// UpdateStatus is a single conditional UPDATE; zero affected rows means the order is missing
// or not in one of the from statuses.
func (s *PendingStore) UpdateStatus(ctx context.Context, orderNumber string, from []pending.Status, to pending.Status, fields pending.Terminal) error {
	if len(from) == 0 {
		return fmt.Errorf("update status %s: no source statuses", orderNumber)
	}
	statuses := make([]string, len(from))
	for i, st := range from {
		statuses[i] = string(st)
	}

	updates := map[string]any{
		"status":     string(to),
		"updated_at": s.nowFunc().UTC(),
	}
	if fields.PaymentID != "" {
		updates["payment_id"] = fields.PaymentID
	}
	if fields.InvoiceNumber != "" {
		updates["invoice_number"] = fields.InvoiceNumber
	}
	if fields.FailureReason != "" {
		updates["failure_reason"] = fields.FailureReason
	}

	res := s.db.WithContext(ctx).Model(&pending.Order{}).
		Where("order_number = ? AND status IN ?", orderNumber, statuses).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update pending order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return pending.ErrStatusMismatch
	}
	return nil
}

func (s *PendingStore) ListStale(ctx context.Context, before time.Time) ([]pending.Order, error) {
	var out []pending.Order
	err := s.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]string{string(pending.StatusPending), string(pending.StatusProcessing)}, before.UTC()).
		Order("created_at").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("select stale orders: %w", err)
	}
	return out, nil
}
