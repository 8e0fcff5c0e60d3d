package calc

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"

	"github.com/fincalc/engine/state"
	"github.com/fincalc/engine/store"
	"github.com/fincalc/engine/validation"
)

// ValidationSchema is the profile every run is validated against before any
// calculator executes.
const ValidationSchema = "full"

// DefaultExecutionOrder is the declared calculator order. Execution follows
// this order, not registration order, so downstream calculators can consume
// upstream derived values.
var DefaultExecutionOrder = []string{"indices", "composicao", "evolucao", "scoring"}

// Validator is the slice of the validation engine the orchestrator needs.
type Validator interface {
	Validate(ctx context.Context, data map[string]any, schemaName string) (*validation.Result, error)
}

// Orchestrator runs every registered calculator over the persisted input
// data: collect, validate, compute, persist, in that strict order. A run is
// atomic; results are only published when every stage succeeded.
type Orchestrator struct {
	store     store.KV
	validator Validator
	state     *state.State
	registry  *Registry
	order     []string
	inputKeys []string
	log       *slog.Logger

	running atomic.Bool

	histMu  sync.Mutex
	history []HistoryEntry
}

// Config wires an Orchestrator's collaborators. Store should normally be a
// *store.RetryingKV so transient storage failures are retried.
type Config struct {
	Store     store.KV
	Validator Validator
	State     *state.State
	Registry  *Registry
	// Order is the declared execution order; defaults to
	// DefaultExecutionOrder when empty.
	Order []string
	// InputKeys are the keys collected from the inputs store before a run;
	// every key is required.
	InputKeys []string
	Logger    *slog.Logger
}

func NewOrchestrator(cfg Config) *Orchestrator {
	order := cfg.Order
	if len(order) == 0 {
		order = DefaultExecutionOrder
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Orchestrator{
		store:     cfg.Store,
		validator: cfg.Validator,
		state:     cfg.State,
		registry:  cfg.Registry,
		order:     append([]string(nil), order...),
		inputKeys: append([]string(nil), cfg.InputKeys...),
		log:       log,
	}
}

// PerformAllCalculations runs one full calculation pass and returns the
// result map keyed by calculator name. Every failure is recorded in the
// calculation state and returned; nothing is swallowed. A second call while
// one is in flight fails immediately with ErrRunInProgress.
func (o *Orchestrator) PerformAllCalculations(ctx context.Context) (Results, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer o.running.Store(false)

	o.state.SetCalculating(true)
	defer o.state.SetCalculating(false)

	data, err := o.collectInputData(ctx)
	if err != nil {
		return nil, o.fail("missing-data", err)
	}

	result, err := o.validator.Validate(ctx, data, ValidationSchema)
	if err != nil {
		return nil, o.fail("schema", err)
	}
	if !result.Valid {
		return nil, o.fail("validation", &ValidationFailedError{Result: result})
	}

	results, err := o.execute(ctx, data)
	if err != nil {
		return nil, o.fail("calculator", err)
	}

	if err := o.appendHistory(ctx, newHistoryEntry(data, results, result)); err != nil {
		return nil, o.fail("persistence", err)
	}

	if err := o.state.MarkCalculated(result); err != nil {
		return nil, o.fail("persistence", err)
	}

	o.log.Info("calculations completed",
		"calculators", len(results),
		"warnings", len(result.Warnings))
	return results, nil
}

// collectInputData reads every required input key. Reads go through the
// retrying store; keys still absent or failing after the retry budget are
// aggregated into one MissingDataError so the caller sees every gap at once.
func (o *Orchestrator) collectInputData(ctx context.Context) (map[string]any, error) {
	data := make(map[string]any, len(o.inputKeys))
	missing := &MissingDataError{Causes: make(map[string]error)}

	for _, key := range o.inputKeys {
		rec, err := o.store.Get(ctx, store.StoreInputs, key)
		if err != nil {
			missing.Keys = append(missing.Keys, key)
			missing.Causes[key] = err
			continue
		}

		var value map[string]any
		if err := json.Unmarshal(rec.Value, &value); err != nil {
			missing.Keys = append(missing.Keys, key)
			missing.Causes[key] = err
			continue
		}
		data[key] = value
	}

	if len(missing.Keys) > 0 {
		return nil, missing
	}
	return data, nil
}

// execute runs the calculators strictly in declared order. A stage that is
// declared but not registered is skipped with a warning; a stage that fails
// aborts the run, discarding everything computed so far.
func (o *Orchestrator) execute(ctx context.Context, data map[string]any) (Results, error) {
	results := make(Results, len(o.order))

	for _, name := range o.order {
		calculator, ok := o.registry.Get(name)
		if !ok {
			o.log.Warn("calculator declared in execution order but not registered, skipping", "calculator", name)
			continue
		}

		output, err := calculator.Calculate(ctx, data, results)
		if err != nil {
			return nil, &CalculatorExecutionError{Name: name, Err: err}
		}
		results[name] = output
	}

	return results, nil
}

// fail records the error in the calculation state before returning it. A
// failure to persist the state record is logged but does not mask the
// original error.
func (o *Orchestrator) fail(kind string, err error) error {
	if serr := o.state.SetError(kind, err); serr != nil {
		o.log.Error("failed to record calculation error in state", "error", serr)
	}
	return err
}
