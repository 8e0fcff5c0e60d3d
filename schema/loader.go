package schema

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

//go:embed fincalc_schema.json
var defaultSchemaJSON []byte

// LoadError indicates the rule-schema document could not be fetched or
// parsed. There is no fallback schema: callers must treat this as fatal for
// the validation they requested.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load rule schema from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Source fetches a rule-schema document. Implementations must return a
// *LoadError when the document is unavailable or malformed.
type Source interface {
	Load(ctx context.Context) (*Document, error)
}

// FileSource loads the document from a JSON file on disk.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Load(ctx context.Context) (*Document, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, &LoadError{Source: s.Path, Err: err}
	}
	return parse(s.Path, data)
}

// StaticSource serves a fixed document. Used in tests and for the embedded
// default schema.
type StaticSource struct {
	Doc *Document
}

func (s *StaticSource) Load(ctx context.Context) (*Document, error) {
	if s.Doc == nil {
		return nil, &LoadError{Source: "static", Err: fmt.Errorf("no document configured")}
	}
	if err := Validate(s.Doc); err != nil {
		return nil, &LoadError{Source: "static", Err: err}
	}
	return s.Doc, nil
}

// EmbeddedSource serves the rule schema compiled into the binary. It is the
// default when no schema path is configured.
type EmbeddedSource struct{}

func (EmbeddedSource) Load(ctx context.Context) (*Document, error) {
	return parse("embedded", defaultSchemaJSON)
}

func parse(source string, data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Source: source, Err: fmt.Errorf("malformed schema document: %w", err)}
	}
	if err := Validate(&doc); err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	return &doc, nil
}
