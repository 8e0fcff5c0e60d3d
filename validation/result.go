package validation

// Kinds of individual validation failures.
const (
	KindRequired     = "required"
	KindTypeMismatch = "type-mismatch"
	KindMinValue     = "min-value"
	KindBusinessRule = "business-rule"
	// KindEvaluationError marks a business rule whose predicate itself failed
	// to evaluate. Always blocking regardless of the rule's declared severity.
	KindEvaluationError = "evaluation-error"
)

// FieldError is one failed rule outcome.
type FieldError struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	RuleID   string `json:"ruleId,omitempty"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Result aggregates every rule outcome of one Validate call. Errors and
// warnings are partitioned by severity; warnings never affect Valid.
type Result struct {
	Valid    bool         `json:"isValid"`
	Errors   []FieldError `json:"errors"`
	Warnings []FieldError `json:"warnings"`
	Schema   string       `json:"schema"`
}

// Clone returns a deep copy. The state container hands Results to
// subscribers and external callers, which must not share slices.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{Valid: r.Valid, Schema: r.Schema}
	out.Errors = append([]FieldError(nil), r.Errors...)
	out.Warnings = append([]FieldError(nil), r.Warnings...)
	return out
}
