// Package state holds the observable calculation status shared between the
// orchestrator and the presentation layer. Every mutation replaces the
// internal snapshot with a new value; readers always get deep copies and can
// never mutate engine state.
package state

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/fincalc/engine/validation"
)

// Event names observers may subscribe to.
type Event string

const (
	EventStateChanged Event = "stateChanged"
	EventCalculated   Event = "calculated"
	EventError        Event = "error"
)

// MaxErrors caps the accumulated error list. When the cap is reached the
// oldest record is evicted.
const MaxErrors = 50

// ErrorRecord is one structured failure captured for observability.
type ErrorRecord struct {
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is an immutable view of the calculation status.
type Snapshot struct {
	LastCalculated        *time.Time         `json:"lastCalculated"`
	DataChanged           bool               `json:"dataChanged"`
	CalculationInProgress bool               `json:"calculationInProgress"`
	Errors                []ErrorRecord      `json:"errors"`
	ValidationResults     *validation.Result `json:"validationResults"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.LastCalculated != nil {
		t := *s.LastCalculated
		out.LastCalculated = &t
	}
	out.Errors = append([]ErrorRecord(nil), s.Errors...)
	out.ValidationResults = s.ValidationResults.Clone()
	return out
}

// Projection is the persisted subset of a Snapshot. Volatile fields
// (DataChanged, CalculationInProgress) are never persisted.
type Projection struct {
	LastCalculated    *time.Time         `json:"lastCalculated"`
	Errors            []ErrorRecord      `json:"errors"`
	ValidationResults *validation.Result `json:"validationResults"`
}

// Persister stores the projection across process restarts. Save is called
// synchronously on error- and calculation-completing transitions.
type Persister interface {
	Save(p Projection) error
	Load() (*Projection, error)
}

// Subscriber receives the post-transition snapshot.
type Subscriber func(Snapshot)

// State is the calculation state container. One instance per session,
// injected where needed; there is no package-level singleton.
type State struct {
	mu        sync.Mutex
	cur       Snapshot
	subs      map[Event]map[uintptr]Subscriber
	persister Persister
	log       *slog.Logger
}

// New creates a state container. persister may be nil, in which case nothing
// is persisted. A load failure is non-fatal: the state starts at defaults and
// the failure is logged.
func New(persister Persister, log *slog.Logger) *State {
	if log == nil {
		log = slog.Default()
	}
	s := &State{
		subs:      make(map[Event]map[uintptr]Subscriber),
		persister: persister,
		log:       log,
	}

	if persister != nil {
		p, err := persister.Load()
		switch {
		case err != nil:
			log.Warn("failed to load persisted calculation state, starting at defaults", "error", err)
		case p != nil:
			s.cur = Snapshot{
				LastCalculated:    p.LastCalculated,
				Errors:            p.Errors,
				ValidationResults: p.ValidationResults,
			}
		}
	}
	return s
}

// Subscribe registers cb for the given event and returns its unsubscribe
// function. Registering the same function twice is idempotent. Identity is
// the function's code pointer, so closures created from the same literal
// count as the same subscriber.
func (s *State) Subscribe(event Event, cb Subscriber) func() {
	key := reflect.ValueOf(cb).Pointer()

	s.mu.Lock()
	if s.subs[event] == nil {
		s.subs[event] = make(map[uintptr]Subscriber)
	}
	s.subs[event][key] = cb
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs[event], key)
		s.mu.Unlock()
	}
}

// GetState returns a deep copy of the current snapshot.
func (s *State) GetState() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.clone()
}

// MarkDirty records that input data changed since the last calculation.
// Redundant calls while already dirty are no-ops and emit no notification.
func (s *State) MarkDirty() {
	s.mu.Lock()
	if s.cur.DataChanged {
		s.mu.Unlock()
		return
	}
	next := s.cur.clone()
	next.DataChanged = true
	s.cur = next
	snap := next.clone()
	s.mu.Unlock()

	s.notify(EventStateChanged, snap)
}

// SetCalculating flips the in-progress flag. Subscribers are always
// notified, including when the flag is set to false.
func (s *State) SetCalculating(inProgress bool) {
	s.mu.Lock()
	next := s.cur.clone()
	next.CalculationInProgress = inProgress
	s.cur = next
	snap := next.clone()
	s.mu.Unlock()

	s.notify(EventStateChanged, snap)
}

// MarkCalculated records a successful run: clears the dirty flag and
// accumulated errors, stamps LastCalculated, stores the validation result,
// and emits the calculated event. The projection is persisted synchronously;
// a persistence failure is returned, never swallowed.
func (s *State) MarkCalculated(results *validation.Result) error {
	now := time.Now()

	s.mu.Lock()
	next := s.cur.clone()
	next.DataChanged = false
	next.CalculationInProgress = false
	next.LastCalculated = &now
	next.Errors = nil
	next.ValidationResults = results.Clone()
	s.cur = next
	snap := next.clone()
	s.mu.Unlock()

	if err := s.persist(snap); err != nil {
		return err
	}

	s.notify(EventCalculated, snap)
	return nil
}

// SetError appends a structured error record, clears the in-progress flag,
// and emits the error event. The error list is capped at MaxErrors, oldest
// first out.
func (s *State) SetError(kind string, err error) error {
	record := ErrorRecord{
		Message:   err.Error(),
		Kind:      kind,
		Timestamp: time.Now(),
	}

	s.mu.Lock()
	next := s.cur.clone()
	next.Errors = append(next.Errors, record)
	if len(next.Errors) > MaxErrors {
		next.Errors = next.Errors[len(next.Errors)-MaxErrors:]
	}
	next.CalculationInProgress = false
	s.cur = next
	snap := next.clone()
	s.mu.Unlock()

	if perr := s.persist(snap); perr != nil {
		return perr
	}

	s.notify(EventError, snap)
	return nil
}

// ClearErrors drops all accumulated error records.
func (s *State) ClearErrors() error {
	s.mu.Lock()
	next := s.cur.clone()
	next.Errors = nil
	s.cur = next
	snap := next.clone()
	s.mu.Unlock()

	if err := s.persist(snap); err != nil {
		return err
	}

	s.notify(EventStateChanged, snap)
	return nil
}

// Flush writes the current projection out best-effort. Used on shutdown;
// the caller decides whether a failure matters.
func (s *State) Flush() error {
	return s.persist(s.GetState())
}

func (s *State) persist(snap Snapshot) error {
	if s.persister == nil {
		return nil
	}
	p := Projection{
		LastCalculated:    snap.LastCalculated,
		Errors:            snap.Errors,
		ValidationResults: snap.ValidationResults,
	}
	if err := s.persister.Save(p); err != nil {
		return fmt.Errorf("failed to persist calculation state: %w", err)
	}
	return nil
}

// notify delivers the snapshot to every subscriber of event. A panicking
// subscriber is caught and logged without interrupting delivery to the rest.
func (s *State) notify(event Event, snap Snapshot) {
	s.mu.Lock()
	subscribers := make([]Subscriber, 0, len(s.subs[event]))
	for _, cb := range s.subs[event] {
		subscribers = append(subscribers, cb)
	}
	s.mu.Unlock()

	for _, cb := range subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("state subscriber panicked", "event", string(event), "panic", r)
				}
			}()
			cb(snap.clone())
		}()
	}
}
