package schema

// Value types a required-field rule may declare for the resolved value.
const (
	TypeNumber  = "number"
	TypeString  = "string"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Severities a business rule may declare. An empty severity blocks.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// RequiredRule declares that a dot-separated path must resolve to a present,
// non-empty value in the data snapshot, optionally constrained by type and a
// numeric minimum.
type RequiredRule struct {
	Path    string   `json:"path"`
	Type    string   `json:"type,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Message string   `json:"message"`
}

// BusinessRule is a named CEL predicate over the full data snapshot.
// The expression receives the snapshot as the variable `data` and must
// evaluate to a boolean; false produces an error or warning according to
// Severity.
type BusinessRule struct {
	ID         string `json:"id"`
	Field      string `json:"field"`
	Expression string `json:"expression"`
	Severity   string `json:"severity,omitempty"`
	Message    string `json:"message"`
}

// Definition is one named validation profile: the required-field rules plus
// any business rules evaluated for that profile.
type Definition struct {
	Required      []RequiredRule `json:"required"`
	BusinessRules []BusinessRule `json:"businessRules,omitempty"`
}

// Document is a full rule-schema document as loaded from a source.
// Never mutated after load.
type Document struct {
	Schemas map[string]Definition `json:"schemas"`
}
