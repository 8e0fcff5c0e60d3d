package calc

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/fincalc/engine/store"
	"github.com/fincalc/engine/validation"
)

// HistoryLimit caps the rolling run history. Appending beyond the cap evicts
// the oldest entry.
const HistoryLimit = 10

// historyKey is the fixed identifier of the single aggregate history record.
const historyKey = "calculation_history"

// HistoryEntry is a snapshot of one completed run.
type HistoryEntry struct {
	ID           string             `json:"id"`
	Timestamp    time.Time          `json:"timestamp"`
	DataSnapshot map[string]any     `json:"dataSnapshot"`
	Results      Results            `json:"results"`
	Validation   *validation.Result `json:"validation"`
}

func newHistoryEntry(data map[string]any, results Results, res *validation.Result) HistoryEntry {
	return HistoryEntry{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		DataSnapshot: deepCopyMap(data),
		Results:      deepCopyResults(results),
		Validation:   res.Clone(),
	}
}

// GetHistory returns a defensive copy of the in-memory run history, oldest
// first.
func (o *Orchestrator) GetHistory() []HistoryEntry {
	o.histMu.Lock()
	defer o.histMu.Unlock()

	out := make([]HistoryEntry, len(o.history))
	for i, entry := range o.history {
		out[i] = cloneEntry(entry)
	}
	return out
}

// ClearHistory resets the history to empty and persists the reset.
func (o *Orchestrator) ClearHistory(ctx context.Context) error {
	o.histMu.Lock()
	o.history = nil
	o.histMu.Unlock()

	return o.persistHistory(ctx)
}

// LoadHistory restores the persisted aggregate history record. A genuinely
// absent record means empty history; a read failure after retries
// propagates so a storage outage is never mistaken for a fresh start.
func (o *Orchestrator) LoadHistory(ctx context.Context) error {
	rec, err := o.store.Get(ctx, store.StoreHistory, historyKey)
	if err != nil {
		if store.IsNotFound(err) {
			o.histMu.Lock()
			o.history = nil
			o.histMu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to load calculation history: %w", err)
	}

	var entries []HistoryEntry
	if err := json.Unmarshal(rec.Value, &entries); err != nil {
		return fmt.Errorf("failed to parse calculation history: %w", err)
	}

	if len(entries) > HistoryLimit {
		entries = entries[len(entries)-HistoryLimit:]
	}

	o.histMu.Lock()
	o.history = entries
	o.histMu.Unlock()
	return nil
}

// appendHistory adds an entry, evicting the oldest past the cap, and
// persists the updated aggregate.
func (o *Orchestrator) appendHistory(ctx context.Context, entry HistoryEntry) error {
	o.histMu.Lock()
	o.history = append(o.history, entry)
	if len(o.history) > HistoryLimit {
		o.history = o.history[len(o.history)-HistoryLimit:]
	}
	o.histMu.Unlock()

	return o.persistHistory(ctx)
}

func (o *Orchestrator) persistHistory(ctx context.Context) error {
	o.histMu.Lock()
	entries := o.history
	if entries == nil {
		entries = []HistoryEntry{}
	}
	value, err := json.Marshal(entries)
	o.histMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal calculation history: %w", err)
	}

	return o.store.Save(ctx, store.StoreHistory, store.Record{Key: historyKey, Value: value})
}

func cloneEntry(entry HistoryEntry) HistoryEntry {
	out := entry
	out.DataSnapshot = deepCopyMap(entry.DataSnapshot)
	out.Results = deepCopyResults(entry.Results)
	out.Validation = entry.Validation.Clone()
	return out
}

func deepCopyResults(results Results) Results {
	out := make(Results, len(results))
	for name, r := range results {
		out[name] = deepCopyMap(r)
	}
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
