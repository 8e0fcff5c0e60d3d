package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the retry behavior of a RetryingKV.
type RetryConfig struct {
	// MaxAttempts is the total number of tries per operation, including the
	// first one.
	MaxAttempts uint64
	// BaseDelay is the initial backoff interval; subsequent delays grow
	// exponentially.
	BaseDelay time.Duration
}

// DefaultRetryConfig is 3 attempts with a 500ms base delay.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// RetryingKV decorates a KV with bounded exponential backoff. Each operation
// retries independently. ErrNotFound is a final answer, not a transient
// failure, and is returned immediately. Once the budget is exhausted the
// last failure is wrapped in a *PersistenceError.
type RetryingKV struct {
	inner KV
	cfg   RetryConfig
}

func NewRetryingKV(inner KV, cfg RetryConfig) *RetryingKV {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	return &RetryingKV{inner: inner, cfg: cfg}
}

func (r *RetryingKV) Get(ctx context.Context, storeName, key string) (*Record, error) {
	var rec *Record
	err := r.retry(ctx, func() error {
		var err error
		rec, err = r.inner.Get(ctx, storeName, key)
		return err
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "get", Store: storeName, Key: key, Err: err}
	}
	return rec, nil
}

func (r *RetryingKV) Save(ctx context.Context, storeName string, rec Record) error {
	err := r.retry(ctx, func() error {
		return r.inner.Save(ctx, storeName, rec)
	})
	if err != nil {
		return &PersistenceError{Op: "save", Store: storeName, Key: rec.Key, Err: err}
	}
	return nil
}

func (r *RetryingKV) Delete(ctx context.Context, storeName, key string) error {
	err := r.retry(ctx, func() error {
		return r.inner.Delete(ctx, storeName, key)
	})
	if err != nil {
		if IsNotFound(err) {
			return err
		}
		return &PersistenceError{Op: "delete", Store: storeName, Key: key, Err: err}
	}
	return nil
}

func (r *RetryingKV) GetAll(ctx context.Context, storeName string) ([]Record, error) {
	var records []Record
	err := r.retry(ctx, func() error {
		var err error
		records, err = r.inner.GetAll(ctx, storeName)
		return err
	})
	if err != nil {
		return nil, &PersistenceError{Op: "getAll", Store: storeName, Err: err}
	}
	return records, nil
}

func (r *RetryingKV) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.BaseDelay

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	// MaxAttempts includes the initial try, WithMaxRetries counts retries.
	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.cfg.MaxAttempts-1), ctx)
	return backoff.Retry(wrapped, policy)
}
