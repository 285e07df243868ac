package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-payment-reconciler/internal/dispatch"
	"github.com/imrishuroy/go-payment-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
	"github.com/imrishuroy/go-payment-reconciler/internal/pending"
	"github.com/imrishuroy/go-payment-reconciler/internal/retry"
	"github.com/imrishuroy/go-payment-reconciler/internal/webhook"
)

// Outcome is what Process did with a job.
type Outcome string

const (
	OutcomeCreated      Outcome = "created"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeMarkedFailed Outcome = "marked_failed"
	OutcomeInvalid      Outcome = "invalid"
	OutcomeUnresolved   Outcome = "unresolved"
	OutcomeAbandoned    Outcome = "abandoned"
	OutcomeSkipped      Outcome = "skipped"
)

const defaultFailureReason = "payment failed"

var errLockHeld = errors.New("order lock held")

// PendingOrders is the pending order store as the pipeline uses it.
type PendingOrders interface {
	Create(ctx context.Context, o pending.Order) error
	FindByOrderNumber(ctx context.Context, orderNumber string) (*pending.Order, error)
	UpdateStatus(ctx context.Context, orderNumber string, from []pending.Status, to pending.Status, fields pending.Terminal) error
}

// Orders is the finalized order store. Create must fail with orders.ErrDuplicateOrder when
// the order number already exists.
type Orders interface {
	ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error)
	Create(ctx context.Context, o orders.Order) error
}

type Notifier interface {
	Notify(ctx context.Context, phone, orderNumber string, amount float64)
}

type Diagnostics interface {
	Abandoned(ctx context.Context, orderNumber, stage string, err error)
	Invalid(ctx context.Context, orderNumber string, fields []string)
}

type Resolver interface {
	ResolveOrderNumber(ctx context.Context, payment webhook.Entity) (string, error)
}

type Runner interface {
	Do(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

// Deps are the collaborators of a Reconciler. Notifier and Diagnostics are optional.
type Deps struct {
	Pending      PendingOrders
	Orders       Orders
	Guard        *idempotency.Guard
	Locker       idempotency.Locker
	Materializer *orders.Materializer
	Resolver     Resolver
	Runner       Runner
	Notifier     Notifier
	Diagnostics  Diagnostics
	Logger       *zap.Logger
}

// Reconciler turns classified payment events into orders. It is safe for concurrent use;
// concurrent jobs for the same order number are serialized by the Locker.
type Reconciler struct {
	d Deps
}

func New(d Deps) (*Reconciler, error) {
	switch {
	case d.Pending == nil:
		return nil, errors.New("reconcile: pending store is required")
	case d.Orders == nil:
		return nil, errors.New("reconcile: order store is required")
	case d.Locker == nil:
		return nil, errors.New("reconcile: locker is required")
	case d.Runner == nil:
		return nil, errors.New("reconcile: retry runner is required")
	}
	if d.Guard == nil {
		d.Guard = idempotency.NewGuard(d.Orders)
	}
	if d.Materializer == nil {
		d.Materializer = orders.NewMaterializer(nil)
	}
	if d.Notifier == nil {
		d.Notifier = noopNotifier{}
	}
	if d.Diagnostics == nil {
		d.Diagnostics = noopDiagnostics{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Reconciler{d: d}, nil
}

// Process runs one job to completion. The error is non-nil only for OutcomeAbandoned and
// carries the exhausted store failure; every other outcome is final.
func (r *Reconciler) Process(ctx context.Context, job dispatch.Job) (Outcome, error) {
	log := r.d.Logger.With(
		zap.String("correlation_id", job.CorrelationID),
		zap.String("kind", string(job.Kind)),
		zap.String("payment_id", job.Payment.ID))

	orderNumber := job.OrderNumber
	if orderNumber == "" && r.d.Resolver != nil {
		n, err := r.d.Resolver.ResolveOrderNumber(ctx, job.Payment)
		switch {
		case errors.Is(err, webhook.ErrOrderNumberUnresolved):
			log.Warn("order number unresolved", zap.String("gateway_order_id", job.Payment.OrderID))
			return OutcomeUnresolved, nil
		case err != nil:
			return r.abandon(ctx, log, "", "resolve", err)
		}
		orderNumber = n
	}
	if orderNumber == "" {
		log.Warn("order number unresolved", zap.String("gateway_order_id", job.Payment.OrderID))
		return OutcomeUnresolved, nil
	}
	log = log.With(zap.String("order_number", orderNumber))

	var (
		outcome Outcome
		err     error
	)
	switch job.Kind {
	case webhook.KindCaptured:
		outcome, err = r.captured(ctx, log, orderNumber, job.Payment)
	case webhook.KindFailed:
		outcome, err = r.failed(ctx, log, orderNumber, job.Payment)
	default:
		outcome = OutcomeSkipped
	}
	log.Info("reconciliation finished", zap.String("outcome", string(outcome)))
	return outcome, err
}

func (r *Reconciler) captured(ctx context.Context, log *zap.Logger, orderNumber string, payment webhook.Entity) (Outcome, error) {
	exists, err := r.exists(ctx, orderNumber)
	if err != nil {
		return r.abandon(ctx, log, orderNumber, "orders.exists", err)
	}
	if exists {
		return OutcomeDuplicate, nil
	}

	lease, err := r.lock(ctx, orderNumber, true)
	if err != nil {
		return r.abandon(ctx, log, orderNumber, "lock.acquire", err)
	}
	if lease == nil {
		// the holder outlasted our retries; it may have created the order meanwhile
		if exists, err := r.exists(ctx, orderNumber); err == nil && exists {
			return OutcomeDuplicate, nil
		}
		log.Info("another writer holds the order lock")
		return OutcomeSkipped, nil
	}
	done := false
	defer func() { r.unlock(ctx, log, lease, done) }()

	// the lock holder before us may have finished between the first check and Acquire
	exists, err = r.exists(ctx, orderNumber)
	if err != nil {
		return r.abandon(ctx, log, orderNumber, "orders.exists", err)
	}
	if exists {
		done = true
		return OutcomeDuplicate, nil
	}

	p, outcome, err := r.loadPending(ctx, log, orderNumber, payment)
	if p == nil {
		return outcome, err
	}

	if p.Status.Terminal() {
		log.Warn("capture received for a closed pending order", zap.String("status", string(p.Status)))
		return OutcomeSkipped, nil
	}

	order, err := r.d.Materializer.Materialize(*p, orders.PaymentEvent{
		PaymentID:      payment.ID,
		GatewayOrderID: payment.OrderID,
		Amount:         payment.Amount,
		InvoiceNumber:  payment.Notes.InvoiceNumber,
	})
	if err != nil {
		var ve *orders.ValidationError
		if errors.As(err, &ve) {
			r.d.Diagnostics.Invalid(ctx, orderNumber, ve.Fields)
			return OutcomeInvalid, nil
		}
		return r.abandon(ctx, log, orderNumber, "materialize", err)
	}

	err = r.d.Runner.Do(ctx, "pending.mark_processing", func(ctx context.Context) error {
		return permanentIf(r.d.Pending.UpdateStatus(ctx, orderNumber,
			[]pending.Status{pending.StatusPending, pending.StatusFailed, pending.StatusProcessing},
			pending.StatusProcessing, pending.Terminal{}), pending.ErrStatusMismatch)
	})
	if errors.Is(err, pending.ErrStatusMismatch) {
		log.Info("pending order moved to a terminal status concurrently")
		return OutcomeSkipped, nil
	}
	if err != nil {
		return r.abandon(ctx, log, orderNumber, "pending.mark_processing", err)
	}

	err = r.d.Runner.Do(ctx, "orders.create", func(ctx context.Context) error {
		return permanentIf(r.d.Orders.Create(ctx, order), orders.ErrDuplicateOrder)
	})
	if errors.Is(err, orders.ErrDuplicateOrder) {
		done = true
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return r.abandon(ctx, log, orderNumber, "orders.create", err)
	}
	done = true

	err = r.d.Runner.Do(ctx, "pending.complete", func(ctx context.Context) error {
		return permanentIf(r.d.Pending.UpdateStatus(ctx, orderNumber,
			[]pending.Status{pending.StatusProcessing},
			pending.StatusCompleted,
			pending.Terminal{PaymentID: payment.ID, InvoiceNumber: order.InvoiceNumber}), pending.ErrStatusMismatch)
	})
	if err != nil {
		// the order exists; the stale audit picks up the pending record
		r.d.Diagnostics.Abandoned(ctx, orderNumber, "pending.complete", err)
	}

	log.Info("order created", zap.String("invoice_number", order.InvoiceNumber))
	r.d.Notifier.Notify(ctx, p.CustomerInfo.Phone, orderNumber, p.Total)
	return OutcomeCreated, nil
}

// loadPending returns the pending order for orderNumber, rebuilding it from notes for
// checkouts that never wrote one. A nil order comes with the outcome to report.
func (r *Reconciler) loadPending(ctx context.Context, log *zap.Logger, orderNumber string, payment webhook.Entity) (*pending.Order, Outcome, error) {
	var p *pending.Order
	err := r.d.Runner.Do(ctx, "pending.load", func(ctx context.Context) error {
		var err error
		p, err = r.d.Pending.FindByOrderNumber(ctx, orderNumber)
		return err
	})
	if err != nil {
		o, err := r.abandon(ctx, log, orderNumber, "pending.load", err)
		return nil, o, err
	}
	if p != nil {
		return p, "", nil
	}

	notes := payment.Notes
	if !notes.CarriesCheckout() || notes.OrderNumber != orderNumber {
		log.Warn("no pending order for order number")
		return nil, OutcomeUnresolved, nil
	}
	built, err := notes.PendingOrder(payment.OrderID, payment.Amount)
	if err != nil {
		log.Warn("pending order could not be rebuilt from notes", zap.Error(err))
		return nil, OutcomeInvalid, nil
	}

	err = r.d.Runner.Do(ctx, "pending.create", func(ctx context.Context) error {
		return permanentIf(r.d.Pending.Create(ctx, built), pending.ErrExists)
	})
	switch {
	case errors.Is(err, pending.ErrExists):
		// written by checkout after our lookup; use the stored copy
		return r.reload(ctx, log, orderNumber)
	case err != nil:
		o, err := r.abandon(ctx, log, orderNumber, "pending.create", err)
		return nil, o, err
	}
	log.Info("pending order rebuilt from payment notes")
	return &built, "", nil
}

func (r *Reconciler) reload(ctx context.Context, log *zap.Logger, orderNumber string) (*pending.Order, Outcome, error) {
	var p *pending.Order
	err := r.d.Runner.Do(ctx, "pending.load", func(ctx context.Context) error {
		var err error
		p, err = r.d.Pending.FindByOrderNumber(ctx, orderNumber)
		return err
	})
	if err != nil {
		o, err := r.abandon(ctx, log, orderNumber, "pending.load", err)
		return nil, o, err
	}
	if p == nil {
		return nil, OutcomeUnresolved, nil
	}
	return p, "", nil
}

// failed records a failed payment attempt. It takes the order lock like a capture, and only a
// pending order can fail: processing belongs to the capture that holds the lock.
func (r *Reconciler) failed(ctx context.Context, log *zap.Logger, orderNumber string, payment webhook.Entity) (Outcome, error) {
	reason := payment.ErrorDescription
	if reason == "" {
		reason = defaultFailureReason
	}

	lease, err := r.lock(ctx, orderNumber, false)
	if err != nil {
		return r.abandon(ctx, log, orderNumber, "lock.acquire", err)
	}
	if lease == nil {
		log.Info("failed payment skipped: order lock held or order already created")
		return OutcomeSkipped, nil
	}
	defer r.unlock(ctx, log, lease, false)

	err = r.d.Runner.Do(ctx, "pending.mark_failed", func(ctx context.Context) error {
		return permanentIf(r.d.Pending.UpdateStatus(ctx, orderNumber,
			[]pending.Status{pending.StatusPending},
			pending.StatusFailed,
			pending.Terminal{PaymentID: payment.ID, FailureReason: reason}), pending.ErrStatusMismatch)
	})
	if errors.Is(err, pending.ErrStatusMismatch) {
		log.Info("failed payment ignored: pending order missing or past pending")
		return OutcomeSkipped, nil
	}
	if err != nil {
		return r.abandon(ctx, log, orderNumber, "pending.mark_failed", err)
	}
	return OutcomeMarkedFailed, nil
}

// lock takes the per-order lock. A nil lease with a nil error means another writer holds it
// or the order was already created. With wait, a held lock is retried on the runner's backoff
// so a capture outlasts a short failed-payment transition.
func (r *Reconciler) lock(ctx context.Context, orderNumber string, wait bool) (*idempotency.Lease, error) {
	var lease *idempotency.Lease
	err := r.d.Runner.Do(ctx, "lock.acquire", func(ctx context.Context) error {
		l, ok, err := r.d.Locker.Acquire(ctx, orderNumber)
		switch {
		case err != nil:
			return err
		case ok:
			lease = l
		case wait:
			return errLockHeld
		}
		return nil
	})
	if errors.Is(err, errLockHeld) {
		return nil, nil
	}
	return lease, err
}

func (r *Reconciler) unlock(ctx context.Context, log *zap.Logger, lease *idempotency.Lease, done bool) {
	// release must run even when the job context is gone
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := r.d.Locker.Release(rctx, lease, done, outcomeNote(done)); err != nil {
		log.Warn("release order lock", zap.Error(err))
	}
}

func (r *Reconciler) exists(ctx context.Context, orderNumber string) (bool, error) {
	var exists bool
	err := r.d.Runner.Do(ctx, "orders.exists", func(ctx context.Context) error {
		var err error
		exists, err = r.d.Guard.Exists(ctx, orderNumber)
		return err
	})
	return exists, err
}

func (r *Reconciler) abandon(ctx context.Context, log *zap.Logger, orderNumber, stage string, err error) (Outcome, error) {
	var ex *retry.ExhaustedError
	if !errors.As(err, &ex) {
		err = fmt.Errorf("%s: %w", stage, err)
	}
	r.d.Diagnostics.Abandoned(ctx, orderNumber, stage, err)
	log.Error("reconciliation abandoned", zap.String("stage", stage), zap.Error(err))
	return OutcomeAbandoned, err
}

// permanentIf stops retries for the sentinel outcomes that another attempt cannot change.
func permanentIf(err error, sentinels ...error) error {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return retry.Permanent(err)
		}
	}
	return err
}
