package agent

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Parser turns an agent kind's raw output into the fixed result contract
type Parser interface {
	Parse(raw []byte) (InvokeResult, error)
}

// ParserFor returns the parser variant for an agent kind
func ParserFor(kind string) (Parser, error) {
	switch kind {
	case "json", "":
		return NewJSONParser(), nil
	case "text":
		return &TextParser{}, nil
	default:
		return nil, fmt.Errorf("unknown agent kind: %s", kind)
	}
}

// resultSchema validates the JSON envelope agents of kind "json" must emit
const resultSchema = `{
	"type": "object",
	"required": ["payloads"],
	"properties": {
		"payloads": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"text": {"type": "string"}
				}
			}
		},
		"meta": {
			"type": "object",
			"properties": {
				"session_id": {"type": "string"},
				"duration_ms": {"type": "integer"}
			}
		}
	}
}`

// JSONParser parses the structured envelope emitted by JSON-speaking agents
type JSONParser struct {
	schema *gojsonschema.Schema
}

// NewJSONParser compiles the envelope schema once
func NewJSONParser() *JSONParser {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(resultSchema))
	if err != nil {
		// The schema is a compile-time constant
		panic(fmt.Sprintf("invalid agent result schema: %v", err))
	}
	return &JSONParser{schema: schema}
}

// Parse validates and decodes the envelope
func (p *JSONParser) Parse(raw []byte) (InvokeResult, error) {
	doc := gojsonschema.NewBytesLoader(raw)
	validation, err := p.schema.Validate(doc)
	if err != nil {
		return InvokeResult{}, &InvocationError{Stage: "parse", Err: err}
	}
	if !validation.Valid() {
		issues := make([]string, 0, len(validation.Errors()))
		for _, issue := range validation.Errors() {
			issues = append(issues, issue.String())
		}
		return InvokeResult{}, &InvocationError{
			Stage: "parse",
			Err:   fmt.Errorf("agent output does not match envelope: %s", strings.Join(issues, "; ")),
		}
	}

	var result InvokeResult
	if err := decodeJSON(raw, &result); err != nil {
		return InvokeResult{}, &InvocationError{Stage: "parse", Err: err}
	}

	return result, nil
}

// TextParser treats the whole output as one text payload
type TextParser struct{}

// Parse wraps the trimmed output; empty output yields no payloads
func (p *TextParser) Parse(raw []byte) (InvokeResult, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return InvokeResult{}, nil
	}
	return InvokeResult{Payloads: []Payload{{Text: text}}}, nil
}
