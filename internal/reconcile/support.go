package reconcile

import (
	"context"
	"time"
)

const releaseTimeout = 3 * time.Second

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, string, float64) {}

type noopDiagnostics struct{}

func (noopDiagnostics) Abandoned(context.Context, string, string, error) {}
func (noopDiagnostics) Invalid(context.Context, string, []string)        {}

func outcomeNote(done bool) string {
	if done {
		return "order created"
	}
	return "released without order"
}
