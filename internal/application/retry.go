package application

import (
	"context"
	"errors"
	"time"

	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/metrics"
	"github.com/cenkalti/backoff/v5"
)

// StoreRetry retries operations that failed with domain.ErrStoreUnavailable
// using exponential backoff. Any other error is returned immediately.
type StoreRetry struct {
	Attempts        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultStoreRetry() StoreRetry {
	return StoreRetry{Attempts: 4, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second}
}

func (r StoreRetry) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		b.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval > 0 {
		b.MaxInterval = r.MaxInterval
	}
	return b
}

func storeDo[T any](ctx context.Context, r StoreRetry, m *metrics.Collector, op func() (T, error)) (T, error) {
	attempts := max(r.Attempts, 1)
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err == nil {
			return v, nil
		}
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return v, err
		}
		return v, backoff.Permanent(err)
	},
		backoff.WithBackOff(r.backOff()),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(error, time.Duration) { m.StoreRetried() }),
	)
}

// ActuatorRetry retries platform calls a fixed number of times with a fixed
// delay. Exhausted or permanently failed calls are reported as
// *domain.ActuatorError.
type ActuatorRetry struct {
	Attempts uint
	Delay    time.Duration
	Metrics  *metrics.Collector
}

func DefaultActuatorRetry() ActuatorRetry {
	return ActuatorRetry{Attempts: 3, Delay: time.Second}
}

// Do runs fn until it succeeds, the attempts run out or ctx ends.
func (r ActuatorRetry) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := ActuatorDo(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ActuatorDo is Do for calls that return a value.
func ActuatorDo[T any](ctx context.Context, r ActuatorRetry, op string, fn func(context.Context) (T, error)) (T, error) {
	attempts := max(r.Attempts, 1)
	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !retryablePlatformError(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(r.Delay)),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(error, time.Duration) { r.Metrics.ActuatorRetried(op) }),
	)
	if err != nil {
		return v, &domain.ActuatorError{Op: op, Err: err}
	}
	return v, nil
}

// retryablePlatformError reports whether another attempt could succeed. A
// missing resource or a refused request fails the same way every time.
func retryablePlatformError(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, domain.ErrResourceNotFound), errors.Is(err, domain.ErrPlatformRejected):
		return false
	}
	return true
}
