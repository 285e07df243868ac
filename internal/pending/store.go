package pending

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-payment-reconciler/internal/aws"
)

// GatewayOrderIndex is the GSI on razorpay_order_id used by the web checkout flow.
const GatewayOrderIndex = "razorpay_order_id-index"

var (
	// ErrExists is returned by Create when the order number is already taken.
	ErrExists = errors.New("pending order already exists")
	// ErrStatusMismatch is returned when a conditional status transition finds another status
	// (or no item at all).
	ErrStatusMismatch = errors.New("pending order status mismatch/conditional failed")
)

// Store encapsulates operations on the pending orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new pending orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create persists a new pending order. The write is conditional on the order number being
// unused; ErrExists otherwise.
func (s *Store) Create(ctx context.Context, o Order) error {
	now := s.nowFunc()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if o.Status == "" {
		o.Status = StatusPending
	}

	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal pending order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_number)"),
	})
	if err != nil {
		if aws.IsConditionFailed(err) {
			return ErrExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// FindByOrderNumber fetches a pending order by its key. Returns (nil, nil) if not found.
func (s *Store) FindByOrderNumber(ctx context.Context, orderNumber string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_number": &types.AttributeValueMemberS{Value: orderNumber},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal pending order: %w", err)
	}
	return &o, nil
}

// FindByGatewayOrderID resolves a pending order through the gateway-side order id.
// Returns (nil, nil) if no pending order carries that id.
func (s *Store) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error) {
	if gatewayOrderID == "" {
		return nil, nil
	}
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(GatewayOrderIndex),
		KeyConditionExpression: awsString("razorpay_order_id = :gid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":gid": &types.AttributeValueMemberS{Value: gatewayOrderID},
		},
		Limit: awsInt32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query gateway order id: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Items[0], &o); err != nil {
		return nil, fmt.Errorf("unmarshal pending order: %w", err)
	}
	return &o, nil
}

// UpdateStatus moves the order to newStatus only if its current status is one of from.
// Non-empty Terminal fields are written in the same update.
// Returns ErrStatusMismatch if the condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderNumber string, from []Status, newStatus Status, fields Terminal) error {
	if len(from) == 0 {
		return fmt.Errorf("update status %s: no source statuses", orderNumber)
	}
	now := s.nowFunc()

	sets := []string{"#s = :new", "updated_at = :ua"}
	values := map[string]types.AttributeValue{
		":new": &types.AttributeValueMemberS{Value: string(newStatus)},
		":ua":  &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
	}
	if fields.PaymentID != "" {
		sets = append(sets, "payment_id = :pid")
		values[":pid"] = &types.AttributeValueMemberS{Value: fields.PaymentID}
	}
	if fields.InvoiceNumber != "" {
		sets = append(sets, "invoice_number = :inv")
		values[":inv"] = &types.AttributeValueMemberS{Value: fields.InvoiceNumber}
	}
	if fields.FailureReason != "" {
		sets = append(sets, "failure_reason = :fr")
		values[":fr"] = &types.AttributeValueMemberS{Value: fields.FailureReason}
	}

	placeholders := make([]string, 0, len(from))
	for i, st := range from {
		ph := fmt.Sprintf(":from%d", i)
		placeholders = append(placeholders, ph)
		values[ph] = &types.AttributeValueMemberS{Value: string(st)}
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_number": &types.AttributeValueMemberS{Value: orderNumber},
		},
		UpdateExpression:          awsString("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       awsString("#s IN (" + strings.Join(placeholders, ", ") + ")"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if aws.IsConditionFailed(err) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// ListStale returns pending or processing orders created before the threshold. These are
// orders whose webhook work was abandoned and need operator follow-up.
func (s *Store) ListStale(ctx context.Context, before time.Time) ([]Order, error) {
	input := &dyn.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: awsString("#s IN (:p, :pr) AND created_at < :before"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p":      &types.AttributeValueMemberS{Value: string(StatusPending)},
			":pr":     &types.AttributeValueMemberS{Value: string(StatusProcessing)},
			":before": &types.AttributeValueMemberN{Value: strconv.FormatInt(before.Unix(), 10)},
		},
	}

	var out []Order
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan stale orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal stale orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
func awsInt32(i int32) *int32    { return &i }
