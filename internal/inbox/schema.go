package inbox

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// envelopeSchema describes the optional strict-JSON message shape from
// spec.md §6: {channel?, content (required), ts?, meta?}. It is used
// only for diagnostics: a line that is JSON-shaped but fails the schema
// (wrong field types, for instance) gets a precise logged reason before
// falling back to the lenient plain-text parse, instead of the fallback
// silently swallowing a payload that was clearly meant to be
// structured.
var envelopeSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"channel": {Type: "string"},
		"content": {Type: "string"},
		"ts":      {Type: "integer"},
		"meta":    {Type: "object"},
	},
	Required: []string{"content"},
}

var resolvedEnvelopeSchema *jsonschema.Resolved

func init() {
	resolved, err := envelopeSchema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("inbox: invalid envelope schema: %v", err))
	}
	resolvedEnvelopeSchema = resolved
}

// validateEnvelope reports a schema violation for a JSON-shaped line, or
// nil if it validates (or isn't decodable as a generic JSON value at
// all, which is not this function's concern).
func validateEnvelope(raw []byte) error {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil
	}
	return resolvedEnvelopeSchema.Validate(instance)
}
