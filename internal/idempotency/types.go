package idempotency

import (
	"context"
	"time"
)

// Status values for claim entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// ClaimRecord is the shape persisted in the idempotency DynamoDB table, one per order number.
type ClaimRecord struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK, the order number
	Status         string    `dynamodbav:"status"`
	Owner          string    `dynamodbav:"owner"`            // token of the current holder
	LeaseExpiresAt int64     `dynamodbav:"lease_expires_at"` // epoch millis
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// Lease is held by the single writer allowed to materialize an order number.
type Lease struct {
	Key   string
	Token string
}

// Locker serializes materialization per order number across processes. Acquire returns
// acquired=false when another writer holds an unexpired lease or the key is already done.
type Locker interface {
	Acquire(ctx context.Context, key string) (*Lease, bool, error)
	// Release ends the lease. done=true records that the order now exists; done=false frees
	// the key so a later delivery can try again.
	Release(ctx context.Context, lease *Lease, done bool, note string) error
}
