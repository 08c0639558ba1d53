package bridge

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/mqtt"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://graylogic.local/schemas/weather/"

// schemaFiles maps inbound message kinds to their embedded schema.
var schemaFiles = map[string]string{
	mqtt.KindAdded:   "added.json",
	mqtt.KindReading: "reading.json",
	mqtt.KindStatus:  "status.json",
}

// Validator checks inbound payloads against the embedded JSON schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded schema.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	for kind, file := range schemaFiles {
		data, err := schemaFS.ReadFile("schemas/" + file)
		if err != nil {
			return nil, fmt.Errorf("reading %s schema: %w", kind, err)
		}
		if err := compiler.AddResource(schemaBaseURL+file, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("adding %s schema: %w", kind, err)
		}
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(schemaFiles))}
	for kind, file := range schemaFiles {
		schema, err := compiler.Compile(schemaBaseURL + file)
		if err != nil {
			return nil, fmt.Errorf("compiling %s schema: %w", kind, err)
		}
		v.schemas[kind] = schema
	}
	return v, nil
}

// Validate checks payload against the schema for kind.
func (v *Validator) Validate(kind string, payload []byte) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("%w: no schema for %q", ErrUnknownTopic, kind)
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}
