// Package store defines the key-value persistence contract the orchestrator
// depends on, with in-memory and PostgreSQL implementations and a bounded
// retry decorator for transient failures.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound reports genuine absence of a record. Absence is a normal,
// non-error outcome for callers and is distinguishable from a failed read:
// it is never retried and never wrapped in a PersistenceError.
var ErrNotFound = errors.New("record not found")

// Logical store names used by the engine.
const (
	StoreInputs  = "inputs"
	StoreHistory = "history"
	StoreState   = "state"
)

// Record is one persisted entry within a logical store.
type Record struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// KV is the asynchronous key-value persistence contract. Every method is
// independently retryable; implementations must return ErrNotFound (possibly
// wrapped) from Get when the key is absent.
type KV interface {
	Get(ctx context.Context, storeName, key string) (*Record, error)
	Save(ctx context.Context, storeName string, rec Record) error
	Delete(ctx context.Context, storeName, key string) error
	GetAll(ctx context.Context, storeName string) ([]Record, error)
}

// PersistenceError is a storage operation that still failed after the retry
// budget was exhausted.
type PersistenceError struct {
	Op    string
	Store string
	Key   string
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s failed for %s/%s: %v", e.Op, e.Store, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s failed for %s: %v", e.Op, e.Store, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a genuine-absence outcome.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
