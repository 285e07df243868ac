package pending

import (
	"context"
	"errors"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a small in-memory stand-in for the pending orders table. It understands only
// the expressions Store issues.
type mockDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func numAttr(item map[string]types.AttributeValue, name string) int64 {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	k := strAttr(in.Item, "order_number")
	if k == "" {
		return nil, errors.New("missing order_number")
	}
	if in.ConditionExpression != nil && *in.ConditionExpression == "attribute_not_exists(order_number)" {
		if _, ok := m.items[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.items[k] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	item, ok := m.items[strAttr(in.Key, "order_number")]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	gid := strAttr(in.ExpressionAttributeValues, ":gid")
	var out []map[string]types.AttributeValue
	for _, item := range m.items {
		if strAttr(item, "razorpay_order_id") == gid {
			out = append(out, item)
		}
	}
	return &dyn.QueryOutput{Items: out}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	item, ok := m.items[strAttr(in.Key, "order_number")]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	// condition: #s IN (:from0, ...)
	curr := strAttr(item, "status")
	allowed := false
	for i := 0; ; i++ {
		v, ok := in.ExpressionAttributeValues[":from"+strconv.Itoa(i)]
		if !ok {
			break
		}
		if v.(*types.AttributeValueMemberS).Value == curr {
			allowed = true
		}
	}
	if !allowed {
		return nil, &types.ConditionalCheckFailedException{}
	}
	copyAttr := func(placeholder, attr string) {
		if v, ok := in.ExpressionAttributeValues[placeholder]; ok {
			item[attr] = v
		}
	}
	copyAttr(":new", "status")
	copyAttr(":ua", "updated_at")
	copyAttr(":pid", "payment_id")
	copyAttr(":inv", "invoice_number")
	copyAttr(":fr", "failure_reason")
	return &dyn.UpdateItemOutput{}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	before := numAttr(in.ExpressionAttributeValues, ":before")
	var out []map[string]types.AttributeValue
	for _, item := range m.items {
		st := strAttr(item, "status")
		if (st == string(StatusPending) || st == string(StatusProcessing)) && numAttr(item, "created_at") < before {
			out = append(out, item)
		}
	}
	return &dyn.ScanOutput{Items: out}, nil
}
