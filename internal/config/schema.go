package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is the JSON Schema every configuration document must satisfy
// before it is decoded.
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "definitions": {
    "duration": {
      "oneOf": [
        {"type": "string", "pattern": "^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"},
        {"type": "number", "minimum": 0}
      ]
    }
  },
  "properties": {
    "logLevel": {
      "type": "string",
      "enum": ["trace", "debug", "info", "warn", "warning", "error", "fatal", "panic"]
    },
    "profiler": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "capacity": {"type": "integer", "minimum": 1},
        "pendingFrames": {"type": "integer", "minimum": 1},
        "variablePolicy": {"type": "string", "enum": ["frame", "region"]},
        "ownerCheck": {"type": "boolean"}
      }
    },
    "output": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "format": {"type": "string", "enum": ["text", "ndjson", "json", "yaml", "none"]},
        "colors": {"type": "string", "enum": ["auto", "always", "never"]},
        "refresh": {"$ref": "#/definitions/duration"},
        "historyFrames": {"type": "integer", "minimum": 1},
        "summary": {"type": "boolean"}
      }
    },
    "workload": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "threads": {"type": "integer", "minimum": 1, "maximum": 1024},
        "frames": {"type": "integer", "minimum": 0},
        "fps": {"type": "number", "exclusiveMinimum": 0},
        "maxWork": {"$ref": "#/definitions/duration"},
        "customSource": {"type": "boolean"},
        "queryPolls": {"type": "integer", "minimum": 1},
        "seed": {"type": "integer"}
      }
    }
  }
}`

const schemaURL = "tinyprof-config.json"

var (
	compiledSchema     *jsonschema.Schema
	compiledSchemaErr  error
	compiledSchemaOnce sync.Once
)

func schema() (*jsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(Schema)); err != nil {
			compiledSchemaErr = fmt.Errorf("invalid schema: %w", err)
			return
		}
		compiledSchema, compiledSchemaErr = compiler.Compile(schemaURL)
		if compiledSchemaErr != nil {
			compiledSchemaErr = fmt.Errorf("invalid schema: %w", compiledSchemaErr)
		}
	})
	return compiledSchema, compiledSchemaErr
}

// ValidateDocument checks a decoded document against Schema. The document
// must have JSON-compatible types; YAML documents are normalized through a
// JSON round trip first. Every violation is reported.
func ValidateDocument(doc interface{}) error {
	s, err := schema()
	if err != nil {
		return err
	}

	normalized, err := normalize(doc)
	if err != nil {
		return err
	}

	err = s.Validate(normalized)
	if err == nil {
		return nil
	}

	validationErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err
	}

	errs := &ValidationErrors{}
	extractValidationErrors(validationErr, errs)
	if !errs.HasErrors() {
		errs.Add("", validationErr.Error())
	}
	return errs
}

func normalize(doc interface{}) (interface{}, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize config document: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize config document: %w", err)
	}
	return out, nil
}

// extractValidationErrors collects the leaf errors of a schema violation tree.
func extractValidationErrors(err *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(err.Causes) == 0 {
		errs.Add(instanceField(err.InstanceLocation), err.Message)
		return
	}
	for _, cause := range err.Causes {
		extractValidationErrors(cause, errs)
	}
}

// instanceField converts a JSON pointer such as "/workload/fps" to
// "workload.fps".
func instanceField(location string) string {
	return strings.ReplaceAll(strings.TrimPrefix(location, "/"), "/", ".")
}
