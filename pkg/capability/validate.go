package capability

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// CompiledValidator wraps a compiled JSON Schema for one operation's
// request type, used by pkg/dispatch to implement the strict/non-strict
// validation step of spec §4.G point 5.
type CompiledValidator struct {
	schema *jsonschema.Schema
	strict bool
}

// Compile builds a validator from fragment. With strict, a top-level
// object schema's additionalProperties is forced closed, so unknown
// fields are rejected; without it, unknown fields pass. Neither mode
// coerces values to the schema's types.
func Compile(fragment map[string]interface{}, strict bool) (*CompiledValidator, error) {
	f := fragment
	if strict {
		f = withClosedProperties(fragment)
	}

	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	uri := fmt.Sprintf("mem://validator/%p", fragment)
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if err := c.AddResource(uri, doc); err != nil {
		return nil, err
	}
	schema, err := c.Compile(uri)
	if err != nil {
		return nil, err
	}
	return &CompiledValidator{schema: schema, strict: strict}, nil
}

func withClosedProperties(fragment map[string]interface{}) map[string]interface{} {
	if fragment["type"] != "object" {
		return fragment
	}
	closed := make(map[string]interface{}, len(fragment)+1)
	for k, v := range fragment {
		closed[k] = v
	}
	if _, has := closed["additionalProperties"]; !has {
		closed["additionalProperties"] = false
	}
	return closed
}

// Validate decodes raw JSON and checks it against the compiled schema,
// returning the decoded value (for the strict case a map[string]any,
// matching jsonschema.Validate's expected input shape) and any schema
// violation as a plain error; callers map that error onto the
// REQUEST_VALIDATION_FAILED field list (pkg/dispatch).
func (v *CompiledValidator) Validate(raw []byte) (interface{}, error) {
	decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if err := v.schema.Validate(decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}
