package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Config bounds a single retried call. The defaults keep the whole budget (attempts x timeout
// plus delays) around 20s, well inside the gateway's redelivery interval.
type Config struct {
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

// DefaultConfig returns 4 attempts of 4s each with 200ms..2s exponential delays.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     4,
		AttemptTimeout:  4 * time.Second,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
	}
}

// ExhaustedError is returned when every attempt of an operation failed.
type ExhaustedError struct {
	Op       string
	Attempts uint
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying. Do returns it unwrapped right away.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Executor runs store calls with a per-attempt timeout and bounded exponential backoff.
// Attempts for one call are sequential.
type Executor struct {
	cfg    Config
	logger *zap.Logger
}

// New returns an Executor. Zero fields in cfg take DefaultConfig values.
func New(cfg Config, logger *zap.Logger) *Executor {
	def := DefaultConfig()
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{cfg: cfg, logger: logger}
}

// Do calls fn until it succeeds, returns a Permanent error, or MaxAttempts is reached. Each
// call gets its own timeout derived from ctx. A Permanent error comes back unwrapped;
// anything else that outlives the attempts yields *ExhaustedError.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var (
		attempts uint
		lastErr  error
	)
	operation := func() (struct{}, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		defer cancel()
		lastErr = fn(attemptCtx)
		return struct{}{}, lastErr
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(e.newBackOff()),
		backoff.WithMaxTries(e.cfg.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			e.logger.Warn("retrying store call",
				zap.String("op", op),
				zap.Uint("attempt", attempts),
				zap.Duration("next_delay", next),
				zap.Error(err))
		}),
	)
	if err == nil {
		return nil
	}
	if lastErr == nil {
		// ctx ended before an attempt could run
		lastErr = err
	}
	var perm *backoff.PermanentError
	if errors.As(lastErr, &perm) {
		return perm.Err
	}
	return &ExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
}

func (e *Executor) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.InitialInterval
	b.MaxInterval = e.cfg.MaxInterval
	b.Multiplier = e.cfg.Multiplier
	b.RandomizationFactor = 0.2
	return b
}
