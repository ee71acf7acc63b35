package transcode

import (
	"encoding/json"

	"github.com/openai/openai-go"
)

// allowedStringFormats are the only "format" values some legacy
// upstreams (e.g. Gemini-family, per spec.md §4.7) tolerate on a
// string-typed schema property; any other value is stripped.
var allowedStringFormats = map[string]bool{
	"date-time": true,
	"enum":      true,
}

// CleanToolSchema recursively strips $schema and additionalProperties
// keys, and drops a string-typed property's "format" unless it is in
// allowedStringFormats (spec.md §4.7 "Tool schema cleanup").
//
// This walk is expressed over a decoded map[string]any rather than
// gjson/sjson: those are point-access tools for a known path, not
// well suited to an unbounded-depth structural transform over an
// arbitrary caller-supplied JSON-schema tree. sjson is used instead,
// deliberately, in internal/legacyapi/request.go, where the shape being edited
// (a handful of known top-level fields) is exactly what it is for.
func CleanToolSchema(raw json.RawMessage) openai.FunctionParameters {
	if len(raw) == 0 {
		return openai.FunctionParameters{}
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return openai.FunctionParameters{}
	}
	cleaned := cleanSchemaNode(decoded)
	return openai.FunctionParameters(cleaned)
}

func cleanSchemaNode(node map[string]any) map[string]any {
	delete(node, "$schema")
	delete(node, "additionalProperties")

	if typ, _ := node["type"].(string); typ == "string" {
		if format, ok := node["format"].(string); ok && !allowedStringFormats[format] {
			delete(node, "format")
		}
	}

	if props, ok := node["properties"].(map[string]any); ok {
		for key, v := range props {
			if child, ok := v.(map[string]any); ok {
				props[key] = cleanSchemaNode(child)
			}
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		node["items"] = cleanSchemaNode(items)
	}
	return node
}
