package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-payment-reconciler/internal/aws"
)

// ErrLeaseLost is returned by Release when the claim no longer belongs to the caller.
var ErrLeaseLost = errors.New("lease lost: claim owned by another writer")

// Store is a DynamoDB-backed Locker. A claim can be taken when absent, FAILED, or IN_PROGRESS
// with an expired lease; DONE claims are final.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	lease     time.Duration
	ttlWindow time.Duration // how long claims stay in the table
	nowFunc   func() time.Time
	tokenFunc func() string
}

// NewStore returns a configured Store.
// lease: how long a writer may hold a claim before others can take over.
// ttlWindow: TTL for claim records (e.g., 48*time.Hour).
func NewStore(client aws.DynamoDBAPI, tableName string, lease, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		lease:     lease,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
		tokenFunc: uuid.NewString,
	}
}

// Acquire takes the claim for key.
func (s *Store) Acquire(ctx context.Context, key string) (*Lease, bool, error) {
	now := s.nowFunc()
	rec := ClaimRecord{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		Owner:          s.tokenFunc(),
		LeaseExpiresAt: now.Add(s.lease).UnixMilli(),
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
		ConditionExpression: awsString(
			"attribute_not_exists(idempotency_key) OR #s = :failed OR (#s = :inprogress AND lease_expires_at < :now)"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":     &types.AttributeValueMemberS{Value: StatusFailed},
			":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			":now":        &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
		},
	})
	if err != nil {
		if aws.IsConditionFailed(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("put item: %w", err)
	}

	return &Lease{Key: key, Token: rec.Owner}, true, nil
}

// Release marks the claim DONE or FAILED, conditional on the caller still owning it.
func (s *Store) Release(ctx context.Context, lease *Lease, done bool, note string) error {
	status := StatusFailed
	if done {
		status = StatusDone
	}
	now := s.nowFunc()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: lease.Key},
		},
		UpdateExpression:    awsString("SET #s = :st, note = :n, updated_at = :ua"),
		ConditionExpression: awsString("#o = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
			"#o": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st":    &types.AttributeValueMemberS{Value: status},
			":n":     &types.AttributeValueMemberS{Value: note},
			":ua":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":owner": &types.AttributeValueMemberS{Value: lease.Token},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if aws.IsConditionFailed(err) {
			return ErrLeaseLost
		}
		return fmt.Errorf("update item (release %s): %w", status, err)
	}
	return nil
}

func awsString(s string) *string { return &s }
