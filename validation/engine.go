package validation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/cel-go/cel"

	"github.com/fincalc/engine/schema"
)

// Engine evaluates data snapshots against named schemas from a single
// rule-schema document. The document is loaded lazily on the first Validate
// call and cached for the lifetime of the engine; business-rule expressions
// are compiled to CEL programs at load time and reused on every evaluation.
//
// Thread-safe for concurrent Validate calls.
type Engine struct {
	source schema.Source
	env    *cel.Env

	mu       sync.Mutex
	doc      *schema.Document
	programs map[string]cel.Program // "schemaName/ruleID" -> compiled program
}

// NewEngine creates a validation engine reading its schema from source.
// The schema is not fetched until the first Validate call.
func NewEngine(source schema.Source) (*Engine, error) {
	// The snapshot is exposed to expressions as the dynamic variable `data`.
	env, err := cel.NewEnv(cel.Variable("data", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		source:   source,
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Validate evaluates data against the named schema and returns the
// partitioned rule outcomes. The returned error is non-nil only for engine
// failures (schema unavailable, unknown schema name); rule failures are
// reported through the Result.
func (e *Engine) Validate(ctx context.Context, data map[string]any, schemaName string) (*Result, error) {
	doc, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	def, ok := doc.Schemas[schemaName]
	if !ok {
		return nil, fmt.Errorf("schema %q not found in rule document", schemaName)
	}

	result := &Result{Schema: schemaName, Errors: []FieldError{}, Warnings: []FieldError{}}

	for _, rule := range def.Required {
		if fe := checkRequired(data, rule); fe != nil {
			result.Errors = append(result.Errors, *fe)
		}
	}

	for _, rule := range def.BusinessRules {
		fe := e.evalBusinessRule(data, schemaName, rule)
		if fe == nil {
			continue
		}
		if fe.Severity == schema.SeverityWarning {
			result.Warnings = append(result.Warnings, *fe)
		} else {
			result.Errors = append(result.Errors, *fe)
		}
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

// load fetches and caches the schema document, compiling every business rule
// to a CEL program. Only a successful load is cached; a failed load is
// retried on the next call.
func (e *Engine) load(ctx context.Context) (*schema.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.doc != nil {
		return e.doc, nil
	}

	doc, err := e.source.Load(ctx)
	if err != nil {
		return nil, err
	}

	programs := make(map[string]cel.Program)
	for name, def := range doc.Schemas {
		for _, rule := range def.BusinessRules {
			prog, err := e.compile(rule.Expression)
			if err != nil {
				return nil, &schema.LoadError{
					Source: "business rule " + name + "/" + rule.ID,
					Err:    err,
				}
			}
			programs[name+"/"+rule.ID] = prog
		}
	}

	e.doc = doc
	e.programs = programs
	return doc, nil
}

func (e *Engine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	// Cost limit prevents resource exhaustion from pathological expressions.
	prog, err := e.env.Program(ast, cel.CostLimit(1000000))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// evalBusinessRule returns nil when the rule passes. A false predicate
// produces an outcome with the rule's declared severity; an evaluation
// failure produces a blocking evaluation-error outcome so a broken rule can
// never silently pass.
func (e *Engine) evalBusinessRule(data map[string]any, schemaName string, rule schema.BusinessRule) *FieldError {
	e.mu.Lock()
	prog, ok := e.programs[schemaName+"/"+rule.ID]
	e.mu.Unlock()

	if !ok {
		return &FieldError{
			Path:     rule.Field,
			Kind:     KindEvaluationError,
			RuleID:   rule.ID,
			Severity: schema.SeverityError,
			Message:  fmt.Sprintf("business rule %s is not compiled", rule.ID),
		}
	}

	out, _, err := prog.Eval(map[string]any{"data": data})
	if err != nil {
		return &FieldError{
			Path:     rule.Field,
			Kind:     KindEvaluationError,
			RuleID:   rule.ID,
			Severity: schema.SeverityError,
			Message:  fmt.Sprintf("business rule %s failed to evaluate: %v", rule.ID, err),
		}
	}

	passed, ok := out.Value().(bool)
	if !ok {
		return &FieldError{
			Path:     rule.Field,
			Kind:     KindEvaluationError,
			RuleID:   rule.ID,
			Severity: schema.SeverityError,
			Message:  fmt.Sprintf("business rule %s did not return a boolean", rule.ID),
		}
	}
	if passed {
		return nil
	}

	severity := rule.Severity
	if severity == "" {
		severity = schema.SeverityError
	}
	return &FieldError{
		Path:     rule.Field,
		Kind:     KindBusinessRule,
		RuleID:   rule.ID,
		Severity: severity,
		Message:  rule.Message,
	}
}

// checkRequired applies the presence, type, and min checks in that order and
// returns at most one outcome per rule.
func checkRequired(data map[string]any, rule schema.RequiredRule) *FieldError {
	value, present := resolvePath(data, rule.Path)

	if !present || value == nil || value == "" {
		return &FieldError{
			Path:     rule.Path,
			Kind:     KindRequired,
			Severity: schema.SeverityError,
			Message:  rule.Message,
		}
	}

	if rule.Type != "" && !matchesType(value, rule.Type) {
		return &FieldError{
			Path:     rule.Path,
			Kind:     KindTypeMismatch,
			Severity: schema.SeverityError,
			Message:  fmt.Sprintf("%s: expected %s, got %T", rule.Path, rule.Type, value),
		}
	}

	if rule.Min != nil {
		if num, ok := toNumber(value); ok && num < *rule.Min {
			return &FieldError{
				Path:     rule.Path,
				Kind:     KindMinValue,
				Severity: schema.SeverityError,
				Message:  rule.Message,
			}
		}
	}

	return nil
}

// resolvePath walks a dot-separated locator through nested maps. The second
// return reports whether every segment resolved.
func resolvePath(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func matchesType(value any, typeName string) bool {
	switch typeName {
	case schema.TypeNumber:
		_, ok := toNumber(value)
		return ok
	case schema.TypeString:
		_, ok := value.(string)
		return ok
	case schema.TypeBoolean:
		_, ok := value.(bool)
		return ok
	case schema.TypeArray:
		_, ok := value.([]any)
		return ok
	case schema.TypeObject:
		_, ok := value.(map[string]any)
		return ok
	}
	return false
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
