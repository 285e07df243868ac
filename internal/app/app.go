package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-payment-reconciler/internal/aws"
	"github.com/imrishuroy/go-payment-reconciler/internal/config"
	"github.com/imrishuroy/go-payment-reconciler/internal/diagnostics"
	"github.com/imrishuroy/go-payment-reconciler/internal/dispatch"
	"github.com/imrishuroy/go-payment-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-payment-reconciler/internal/notify"
	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
	"github.com/imrishuroy/go-payment-reconciler/internal/pending"
	"github.com/imrishuroy/go-payment-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-payment-reconciler/internal/retry"
	"github.com/imrishuroy/go-payment-reconciler/internal/sqlstore"
	"github.com/imrishuroy/go-payment-reconciler/internal/webhook"
)

// PendingStore is implemented by pending.Store and sqlstore.PendingStore.
type PendingStore interface {
	Create(ctx context.Context, o pending.Order) error
	FindByOrderNumber(ctx context.Context, orderNumber string) (*pending.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*pending.Order, error)
	UpdateStatus(ctx context.Context, orderNumber string, from []pending.Status, to pending.Status, fields pending.Terminal) error
	ListStale(ctx context.Context, before time.Time) ([]pending.Order, error)
}

// OrderStore is implemented by orders.Store and sqlstore.OrderStore.
type OrderStore interface {
	ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error)
	Get(ctx context.Context, orderNumber string) (*orders.Order, error)
	Create(ctx context.Context, o orders.Order) error
}

// App holds the wired services shared by the api, worker and audit binaries.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	AWS     *aws.AWSClients // nil when no AWS backend is configured
	Metrics *aws.MetricsPublisher
	Pending PendingStore
	Orders  OrderStore
	Locker  idempotency.Locker // nil for roles that never reconcile
	Runner  *retry.Executor

	closers []func() error
}

// New builds the stores and lockers selected by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Runner: retry.New(cfg.Retry, logger)}

	needAWS := cfg.Store.Backend == config.BackendDynamoDB ||
		(cfg.NeedsLocker() && cfg.Locker.Backend == config.BackendDynamoDB) ||
		(cfg.Dispatches() && cfg.Dispatch.Mode == config.DispatchQueue)
	if needAWS {
		clients, err := aws.NewAWSClients(ctx, cfg.AWS.Region, cfg.AWS.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to init aws clients: %w", err)
		}
		a.AWS = clients
		if cfg.Metrics.Namespace != "" {
			a.Metrics = aws.NewMetricsPublisher(clients.CloudWatch, cfg.Metrics.Namespace)
		}
	}

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		db, err := sqlstore.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		a.Pending = sqlstore.NewPendingStore(db)
		a.Orders = sqlstore.NewOrderStore(db)
	default:
		a.Pending = pending.NewStore(a.AWS.DynamoDB, cfg.Tables.PendingOrders)
		a.Orders = orders.NewStore(a.AWS.DynamoDB, cfg.Tables.Orders)
	}

	if !cfg.NeedsLocker() {
		return a, nil
	}
	switch cfg.Locker.Backend {
	case config.BackendRedis:
		rdb := rd.NewClient(&rd.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		a.closers = append(a.closers, rdb.Close)
		a.Locker = idempotency.NewRedisLocker(rdb, cfg.Locker.Prefix, cfg.Locker.Lease, cfg.Locker.DoneTTL)
	default:
		a.Locker = idempotency.NewStore(a.AWS.DynamoDB, cfg.Tables.Idempotency, cfg.Locker.Lease, cfg.Locker.DoneTTL)
	}

	return a, nil
}

// Counter returns the metrics sink as an interface, nil when metrics are off.
func (a *App) Counter() diagnostics.Counter {
	if a.Metrics == nil {
		return nil
	}
	return a.Metrics
}

// Reconciler wires the pipeline over the configured stores.
func (a *App) Reconciler() (*reconcile.Reconciler, error) {
	return reconcile.New(reconcile.Deps{
		Pending:     a.Pending,
		Orders:      a.Orders,
		Locker:      a.Locker,
		Resolver:    webhook.NewResolver(a.Pending, a.Runner),
		Runner:      a.Runner,
		Notifier:    notify.New(a.Config.Notify, nil, a.Logger),
		Diagnostics: diagnostics.New(a.Counter(), a.Logger),
		Logger:      a.Logger,
	})
}

// Dispatcher returns the hand-off configured by dispatch.mode. For the in-process pool the
// returned close function drains it.
func (a *App) Dispatcher() (dispatch.Dispatcher, func(context.Context) error, error) {
	if a.Config.Dispatch.Mode == config.DispatchQueue {
		q := dispatch.NewQueue(aws.NewPublisher(a.AWS.SQS, a.Config.Queue.URL))
		return q, func(context.Context) error { return nil }, nil
	}

	rec, err := a.Reconciler()
	if err != nil {
		return nil, nil, err
	}
	pool := dispatch.NewPool(func(ctx context.Context, job dispatch.Job) {
		// the reconciler logs its outcome and records abandoned work itself
		_, _ = rec.Process(ctx, job)
	}, a.Config.Dispatch.Workers, a.Config.Dispatch.QueueSize, a.Logger)
	return pool, pool.Close, nil
}

// Close releases database and redis connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
