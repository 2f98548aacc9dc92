// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/stacklok/regbridge/pkg/bridge"
)

// ErrInvalidDocument marks a source document whose shape cannot be merged.
// It counts as the source being unavailable for that refresh.
var ErrInvalidDocument = fmt.Errorf("%w: invalid document", bridge.ErrBackendUnavailable)

// The schemas check only what merging relies on. Everything else in the
// documents is passed through unvalidated.
const modelSchema = `{
  "type": "object",
  "required": ["groups"],
  "properties": {
    "groups": {
      "type": "object",
      "propertyNames": {"pattern": "^[A-Za-z0-9][A-Za-z0-9_.\\-]*$"},
      "additionalProperties": {
        "type": "object",
        "properties": {
          "description": {"type": "string"},
          "resources": {
            "type": "object",
            "additionalProperties": {"type": "object"}
          }
        }
      }
    }
  }
}`

const capabilitiesSchema = `{
  "type": "object",
  "properties": {
    "apis":         {"type": "array", "items": {"type": "string", "minLength": 1}},
    "flags":        {"type": "array", "items": {"type": "string"}},
    "schemas":      {"type": "array", "items": {"type": "string"}},
    "specversions": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	compiledModelSchema        = mustCompile(modelSchema)
	compiledCapabilitiesSchema = mustCompile(capabilitiesSchema)
)

func mustCompile(schema string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in schema: %v", err))
	}
	return s
}

// ValidateModel checks that a model document can be merged safely.
func ValidateModel(doc *bridge.ModelDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: model document is empty", ErrInvalidDocument)
	}
	return validate(compiledModelSchema, doc, "model")
}

// ValidateCapabilities checks that a capabilities document can be merged safely.
func ValidateCapabilities(doc *bridge.CapabilitiesDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: capabilities document is empty", ErrInvalidDocument)
	}
	return validate(compiledCapabilitiesSchema, doc, "capabilities")
}

func validate(schema *gojsonschema.Schema, doc any, what string) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDocument, what, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s: %s", ErrInvalidDocument, what, strings.Join(msgs, "; "))
}
