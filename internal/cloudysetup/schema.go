package cloudysetup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resourceDocumentSchemaURL names the embedded schema in validation errors.
const resourceDocumentSchemaURL = "cloudysetup://resource-document.json"

// resourceDocumentSchema describes a saved or generated resource document.
const resourceDocumentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["TypeName"],
  "properties": {
    "TypeName": {
      "type": "string",
      "pattern": "^[A-Za-z0-9]{2,64}::[A-Za-z0-9]{2,64}::[A-Za-z0-9]{2,64}$"
    },
    "Identifier": {"type": "string", "minLength": 1},
    "Properties": {"type": "object"},
    "Operation": {"enum": ["create", "read", "update", "delete", "list"]}
  },
  "allOf": [
    {
      "if": {"properties": {"Operation": {"enum": ["read", "delete"]}}, "required": ["Operation"]},
      "then": {"required": ["Identifier"]}
    },
    {
      "if": {"properties": {"Operation": {"const": "update"}}, "required": ["Operation"]},
      "then": {
        "required": ["Identifier", "Properties"],
        "properties": {"Properties": {"minProperties": 1}}
      }
    }
  ]
}`

var (
	documentSchemaOnce sync.Once
	documentSchema     *jsonschema.Schema
	documentSchemaErr  error
)

// compiledDocumentSchema compiles the embedded schema once.
func compiledDocumentSchema() (*jsonschema.Schema, error) {
	documentSchemaOnce.Do(func() {
		documentSchema, documentSchemaErr = jsonschema.CompileString(resourceDocumentSchemaURL, resourceDocumentSchema)
	})
	return documentSchema, documentSchemaErr
}

// ValidateDocument checks a raw resource document against the resource
// document schema.
func ValidateDocument(doc []byte) error {
	sch, err := compiledDocumentSchema()
	if err != nil {
		return fmt.Errorf("compile resource document schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return newValidationError("document", "not valid JSON: %v", err)
	}
	if err := sch.Validate(v); err != nil {
		return &ValidationError{Field: "document", Message: err.Error()}
	}
	return nil
}

// validateDescriptorDocument re-encodes desc and validates it against the
// resource document schema.
func validateDescriptorDocument(desc ResourceDescriptor) error {
	doc, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("encode resource document: %w", err)
	}
	return ValidateDocument(doc)
}
