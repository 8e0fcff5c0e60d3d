package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyKV fails a configurable number of times per operation before
// delegating to an in-memory store.
type flakyKV struct {
	inner    *MemoryKV
	getFails int
	saveFail int
	getCalls int
	err      error
}

func (f *flakyKV) Get(ctx context.Context, storeName, key string) (*Record, error) {
	f.getCalls++
	if f.getFails > 0 {
		f.getFails--
		return nil, f.err
	}
	return f.inner.Get(ctx, storeName, key)
}

func (f *flakyKV) Save(ctx context.Context, storeName string, rec Record) error {
	if f.saveFail > 0 {
		f.saveFail--
		return f.err
	}
	return f.inner.Save(ctx, storeName, rec)
}

func (f *flakyKV) Delete(ctx context.Context, storeName, key string) error {
	return f.inner.Delete(ctx, storeName, key)
}

func (f *flakyKV) GetAll(ctx context.Context, storeName string) ([]Record, error) {
	return f.inner.GetAll(ctx, storeName)
}

func testRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestRetryingKVGetRecoversWithinBudget(t *testing.T) {
	inner := NewMemoryKV()
	ctx := context.Background()
	inner.Save(ctx, StoreInputs, Record{Key: "balanco", Value: []byte(`{"ativoTotal": 1000}`)})

	// Two transient failures, success on the third attempt.
	flaky := &flakyKV{inner: inner, getFails: 2, err: errors.New("connection reset")}
	kv := NewRetryingKV(flaky, testRetryConfig())

	rec, err := kv.Get(ctx, StoreInputs, "balanco")
	if err != nil {
		t.Fatalf("Get() should succeed on the third attempt, got %v", err)
	}
	if string(rec.Value) != `{"ativoTotal": 1000}` {
		t.Errorf("Value = %s", rec.Value)
	}
	if flaky.getCalls != 3 {
		t.Errorf("Expected 3 attempts, got %d", flaky.getCalls)
	}
}

func TestRetryingKVGetExhaustsBudget(t *testing.T) {
	flaky := &flakyKV{inner: NewMemoryKV(), getFails: 10, err: errors.New("connection reset")}
	kv := NewRetryingKV(flaky, testRetryConfig())

	_, err := kv.Get(context.Background(), StoreInputs, "balanco")
	if err == nil {
		t.Fatal("Get() should fail after the retry budget is exhausted")
	}

	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected *PersistenceError, got %T: %v", err, err)
	}
	if perr.Op != "get" || perr.Store != StoreInputs || perr.Key != "balanco" {
		t.Errorf("PersistenceError = %+v", perr)
	}
	if flaky.getCalls != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", flaky.getCalls)
	}
}

func TestRetryingKVDoesNotRetryNotFound(t *testing.T) {
	flaky := &flakyKV{inner: NewMemoryKV()}
	kv := NewRetryingKV(flaky, testRetryConfig())

	_, err := kv.Get(context.Background(), StoreInputs, "absent")
	if !IsNotFound(err) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if flaky.getCalls != 1 {
		t.Errorf("Absence must not be retried, got %d attempts", flaky.getCalls)
	}

	// ErrNotFound is returned as-is, not wrapped in a PersistenceError.
	var perr *PersistenceError
	if errors.As(err, &perr) {
		t.Error("ErrNotFound should not be wrapped in a PersistenceError")
	}
}

func TestRetryingKVSaveRecovers(t *testing.T) {
	inner := NewMemoryKV()
	flaky := &flakyKV{inner: inner, saveFail: 1, err: errors.New("write timeout")}
	kv := NewRetryingKV(flaky, testRetryConfig())
	ctx := context.Background()

	if err := kv.Save(ctx, StoreState, Record{Key: "calculation_state", Value: []byte(`{}`)}); err != nil {
		t.Fatalf("Save() should recover from a single transient failure: %v", err)
	}
	if _, err := inner.Get(ctx, StoreState, "calculation_state"); err != nil {
		t.Errorf("Record should have reached the inner store: %v", err)
	}
}

func TestRetryingKVHonorsContextCancellation(t *testing.T) {
	flaky := &flakyKV{inner: NewMemoryKV(), getFails: 10, err: errors.New("connection reset")}
	kv := NewRetryingKV(flaky, RetryConfig{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := kv.Get(ctx, StoreInputs, "balanco")
	if err == nil {
		t.Fatal("Get() should fail once the context is cancelled")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Cancellation should stop the backoff promptly, took %v", elapsed)
	}
}
