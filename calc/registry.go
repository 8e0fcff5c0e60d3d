// Package calc executes registered calculator modules in a fixed declared
// order, threading each calculator's output into the inputs of the ones that
// follow, and keeps a bounded rolling history of completed runs.
package calc

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Results maps calculator name to that calculator's output for one run.
type Results map[string]map[string]any

// Calculator is one pluggable computation unit. Calculate receives the full
// input data set and the accumulated results of calculators already executed
// in the same run. Implementations must not mutate either argument;
// returning an error aborts the whole run.
type Calculator interface {
	Calculate(ctx context.Context, data map[string]any, prior Results) (map[string]any, error)
}

// CalculatorFunc adapts a plain function to the Calculator interface.
type CalculatorFunc func(ctx context.Context, data map[string]any, prior Results) (map[string]any, error)

func (f CalculatorFunc) Calculate(ctx context.Context, data map[string]any, prior Results) (map[string]any, error) {
	return f(ctx, data, prior)
}

// Registry is a thread-safe name-to-calculator mapping. Registration is
// last-write-wins per name.
type Registry struct {
	mu          sync.RWMutex
	calculators map[string]Calculator
}

func NewRegistry() *Registry {
	return &Registry{calculators: make(map[string]Calculator)}
}

// Register binds a calculator to a name, replacing any prior entry with the
// same name. A nil calculator is rejected immediately.
func (r *Registry) Register(name string, c Calculator) error {
	if name == "" {
		return fmt.Errorf("calculator name cannot be empty")
	}
	if c == nil {
		return fmt.Errorf("calculator %q does not expose a calculate capability", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calculators[name] = c
	return nil
}

// Unregister removes a calculator. Removing an unknown name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calculators, name)
}

// Get returns the calculator registered under name, if any.
func (r *Registry) Get(name string) (Calculator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calculators[name]
	return c, ok
}

// Names returns the registered names sorted for deterministic iteration.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.calculators))
	for name := range r.calculators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
