package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
)

// OrderStore keeps finalized orders in SQL. The ordernum primary key is the uniqueness
// constraint behind orders.ErrDuplicateOrder.
type OrderStore struct {
	db *gorm.DB
}

func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&orders.Order{}).Where("ordernum = ?", orderNumber).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("count orders: %w", err)
	}
	return n > 0, nil
}

func (s *OrderStore) Get(ctx context.Context, orderNumber string) (*orders.Order, error) {
	var o orders.Order
	err := s.db.WithContext(ctx).Where("ordernum = ?", orderNumber).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}
	return &o, nil
}

func (s *OrderStore) Create(ctx context.Context, o orders.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&o).Error; err != nil {
		if isUnique(err) {
			return orders.ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}
