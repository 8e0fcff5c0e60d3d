package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Structural limits for a schema document. A document outside these limits is
// rejected at load time with a descriptive error.
const (
	maxSchemas          = 50
	maxRulesPerSchema   = 500
	maxPathSegments     = 10
	maxIdentifierLength = 100
)

var validSegment = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks a loaded document for structural correctness: non-empty
// schemas, well-formed dot paths, known type names and severities, and unique
// business-rule IDs. It does not compile expressions; the validation engine
// does that when it loads the document.
func Validate(doc *Document) error {
	if doc == nil || len(doc.Schemas) == 0 {
		return fmt.Errorf("schema document must contain at least one schema")
	}
	if len(doc.Schemas) > maxSchemas {
		return fmt.Errorf("schema document contains %d schemas, maximum allowed is %d", len(doc.Schemas), maxSchemas)
	}

	for name, def := range doc.Schemas {
		if err := validateIdentifier(name); err != nil {
			return fmt.Errorf("invalid schema name %q: %w", name, err)
		}
		if len(def.Required)+len(def.BusinessRules) == 0 {
			return fmt.Errorf("schema %q declares no rules", name)
		}
		if len(def.Required)+len(def.BusinessRules) > maxRulesPerSchema {
			return fmt.Errorf("schema %q declares more than %d rules", name, maxRulesPerSchema)
		}

		for i, rule := range def.Required {
			if err := validatePath(rule.Path); err != nil {
				return fmt.Errorf("schema %q required rule %d: %w", name, i, err)
			}
			if rule.Type != "" && !isValidType(rule.Type) {
				return fmt.Errorf(
					"schema %q required rule for %q has invalid type %q (must be one of: number, string, boolean, array, object)",
					name, rule.Path, rule.Type)
			}
			if rule.Min != nil && rule.Type != "" && rule.Type != TypeNumber {
				return fmt.Errorf("schema %q required rule for %q declares min but type %q", name, rule.Path, rule.Type)
			}
			if rule.Message == "" {
				return fmt.Errorf("schema %q required rule for %q has no message", name, rule.Path)
			}
		}

		seen := make(map[string]bool, len(def.BusinessRules))
		for i, rule := range def.BusinessRules {
			if rule.ID == "" {
				return fmt.Errorf("schema %q business rule %d has no id", name, i)
			}
			if seen[rule.ID] {
				return fmt.Errorf("schema %q has duplicate business rule id %q", name, rule.ID)
			}
			seen[rule.ID] = true

			if strings.TrimSpace(rule.Expression) == "" {
				return fmt.Errorf("schema %q business rule %q has empty expression", name, rule.ID)
			}
			switch rule.Severity {
			case "", SeverityError, SeverityWarning:
			default:
				return fmt.Errorf("schema %q business rule %q has invalid severity %q (must be error or warning)",
					name, rule.ID, rule.Severity)
			}
			if rule.Message == "" {
				return fmt.Errorf("schema %q business rule %q has no message", name, rule.ID)
			}
		}
	}

	return nil
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	segments := strings.Split(path, ".")
	if len(segments) > maxPathSegments {
		return fmt.Errorf("path %q has %d segments, maximum allowed is %d", path, len(segments), maxPathSegments)
	}
	for _, seg := range segments {
		if err := validateIdentifier(seg); err != nil {
			return fmt.Errorf("path %q: %w", path, err)
		}
	}
	return nil
}

func validateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentifierLength)
	}
	if !validSegment.MatchString(name) {
		return fmt.Errorf("identifier %q must match ^[a-zA-Z_][a-zA-Z0-9_]*$", name)
	}
	return nil
}

func isValidType(typeName string) bool {
	switch typeName {
	case TypeNumber, TypeString, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}
