package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/triage-ai/portfolio-guard/internal/engine"
)

const requestSchemaJSON = `{
	"type": "object",
	"required": ["messages"],
	"properties": {
		"messages": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["role", "content"],
				"properties": {
					"role":    {"type": "string", "enum": ["user", "assistant"]},
					"content": {"type": "string", "minLength": 1, "pattern": "\\S"}
				}
			}
		}
	}
}`

var requestSchema = mustCompileSchema(requestSchemaJSON)

func mustCompileSchema(raw string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(raw)))
	if err != nil {
		panic(fmt.Sprintf("request schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("request.json", doc); err != nil {
		panic(fmt.Sprintf("request schema: %v", err))
	}
	sch, err := c.Compile("request.json")
	if err != nil {
		panic(fmt.Sprintf("request schema: %v", err))
	}
	return sch
}

// chatRequest is the inbound body shared by every pipeline endpoint.
type chatRequest struct {
	Messages []engine.Message `json:"messages"`
}

// parseError separates malformed JSON from a well-formed body of the wrong shape.
type parseError struct {
	malformed bool
	err       error
}

func (e *parseError) Error() string { return e.err.Error() }

// parseRequest decodes and validates raw.
func parseRequest(raw []byte) (*chatRequest, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, &parseError{malformed: true, err: err}
	}
	if err := requestSchema.Validate(doc); err != nil {
		return nil, &parseError{err: err}
	}

	var req chatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, &parseError{malformed: true, err: err}
	}
	return &req, nil
}
