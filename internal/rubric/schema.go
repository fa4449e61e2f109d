package rubric

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/gema-grader/internal/models"
)

const documentSchemaURL = "rubric.schema.json"

const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["categories"],
  "properties": {
    "system_prompt": {"type": ["string", "null"]},
    "categories": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["display_name", "sections"],
        "properties": {
          "display_name": {"type": "string"},
          "score_target_max": {"type": ["number", "null"]},
          "docx_validation": {
            "type": ["object", "null"],
            "properties": {
              "enabled": {"type": "boolean"},
              "allowed_font_keywords": {"type": "array", "items": {"type": "string"}},
              "allowed_font_size_pts": {"type": "array", "items": {"type": "number"}},
              "font_size_tolerance": {"type": ["number", "null"]},
              "target_line_spacing": {"type": ["number", "null"]},
              "line_spacing_tolerance": {"type": ["number", "null"]}
            }
          },
          "sections": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["key", "max_score", "items"],
              "properties": {
                "key": {"type": "string"},
                "max_score": {"type": "number"},
                "items": {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "required": ["key", "max_score"],
                    "properties": {
                      "key": {"type": "string"},
                      "max_score": {"type": "number"},
                      "description": {"type": "string"}
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func documentValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(documentSchemaURL, strings.NewReader(documentSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile(documentSchemaURL)
	})
	return compiledSchema, schemaErr
}

// DecodeDocument checks a raw rubric JSON document against the rubric schema and decodes it.
func DecodeDocument(raw []byte) (*models.RubricConfig, error) {
	schema, err := documentValidator()
	if err != nil {
		return nil, fmt.Errorf("compile rubric schema: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return nil, fmt.Errorf("rubric document is not valid JSON: %w", err)
	}
	if err := schema.Validate(document); err != nil {
		return nil, fmt.Errorf("rubric document does not match schema: %w", err)
	}

	var cfg models.RubricConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode rubric document: %w", err)
	}
	return &cfg, nil
}
