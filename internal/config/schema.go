package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://keyblast.dev/schema/config-v2.schema.json"

var (
	compiledSchema *jsonschema.Schema
	schemaErr      error
	schemaOnce     sync.Once
)

// Schema returns the embedded JSON Schema for config documents.
func Schema() []byte {
	return schemaJSON
}

func configSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidateDocument checks a raw config document against the schema. format
// is "toml", "json", "yaml" or "" to auto-detect. Unlike Validate it catches
// unknown keys and wrongly typed values before they are silently ignored.
func ValidateDocument(data []byte, format string) error {
	var raw map[string]any
	if err := decode(data, format, &raw); err != nil {
		return err
	}

	// Normalise TOML and YAML values to the JSON data model.
	normalised, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("normalise document: %w", err)
	}
	var instance any
	if err := json.Unmarshal(normalised, &instance); err != nil {
		return fmt.Errorf("normalise document: %w", err)
	}

	schema, err := configSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ValidateFile runs ValidateDocument on a file, choosing the format from its
// extension.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return ValidateDocument(data, formatOf(path))
}
