package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-payment-reconciler/internal/pending"
	"github.com/imrishuroy/go-payment-reconciler/internal/retry"
)

type fakeLookup struct {
	byGateway map[string]*pending.Order
	failures  int
	calls     int
}

func (f *fakeLookup) FindByGatewayOrderID(_ context.Context, id string) (*pending.Order, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("throttled")
	}
	return f.byGateway[id], nil
}

func fastRetry() *retry.Executor {
	return retry.New(retry.Config{
		MaxAttempts:     3,
		AttemptTimeout:  time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}, nil)
}

func TestResolve_NotesWin(t *testing.T) {
	lookup := &fakeLookup{}
	r := NewResolver(lookup, fastRetry())

	got, err := r.ResolveOrderNumber(context.Background(), Entity{OrderID: "order_1", Notes: Notes{OrderNumber: "DH-1"}})
	require.NoError(t, err)
	assert.Equal(t, "DH-1", got)
	assert.Zero(t, lookup.calls, "no store lookup when notes carry the order number")
}

func TestResolve_GatewayLookupWithRetry(t *testing.T) {
	lookup := &fakeLookup{
		byGateway: map[string]*pending.Order{"order_1": {OrderNumber: "DH-7"}},
		failures:  2,
	}
	r := NewResolver(lookup, fastRetry())

	got, err := r.ResolveOrderNumber(context.Background(), Entity{OrderID: "order_1"})
	require.NoError(t, err)
	assert.Equal(t, "DH-7", got)
	assert.Equal(t, 3, lookup.calls)
}

func TestResolve_Unresolved(t *testing.T) {
	r := NewResolver(&fakeLookup{}, fastRetry())

	_, err := r.ResolveOrderNumber(context.Background(), Entity{OrderID: "order_missing"})
	assert.ErrorIs(t, err, ErrOrderNumberUnresolved)

	_, err = r.ResolveOrderNumber(context.Background(), Entity{})
	assert.ErrorIs(t, err, ErrOrderNumberUnresolved)
}

func TestResolve_Exhausted(t *testing.T) {
	r := NewResolver(&fakeLookup{failures: 10}, fastRetry())

	_, err := r.ResolveOrderNumber(context.Background(), Entity{OrderID: "order_1"})
	var ex *retry.ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, uint(3), ex.Attempts)
}
