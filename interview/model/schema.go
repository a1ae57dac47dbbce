package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a compiled JSON Schema each structured call validates its
// response against. Compile once per prompt kind at startup and reuse;
// Validate is safe for concurrent use.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document. The name identifies the
// schema in error messages and as its resource URL.
func CompileSchema(name, document string) (*Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("schema %s: parse: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("schema %s: add resource: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s: compile: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// MustCompileSchema is CompileSchema panicking on error, for package-level
// schema literals.
func MustCompileSchema(name, document string) *Schema {
	s, err := CompileSchema(name, document)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema's identifier.
func (s *Schema) Name() string {
	return s.name
}

// ValidateBytes checks a raw JSON value against the schema.
func (s *Schema) ValidateBytes(raw json.RawMessage) error {
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("schema %s: decode value: %w", s.name, err)
	}
	if err := s.compiled.Validate(value); err != nil {
		return fmt.Errorf("schema %s: %w", s.name, err)
	}
	return nil
}
