package tickets

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atlasdesk/switchboard/pkg/models"
)

// BuildToolParams converts a ticket type's field specs into the JSON-Schema
// object handed to the model as the create tool's parameters. Unknown keys
// are rejected at the schema level so the validator only sees declared
// fields.
func BuildToolParams(t *models.TicketType) map[string]any {
	props := make(map[string]any, len(t.Fields))
	var required []string
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Key == "" {
			continue
		}
		props[f.Key] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Key)
		}
	}

	params := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	return params
}

func fieldSchema(f *models.FieldSpec) map[string]any {
	switch f.Type {
	case models.FieldEnum:
		values := make([]any, 0, len(f.Enum))
		for _, v := range f.Enum {
			values = append(values, v)
		}
		s := map[string]any{"type": "string", "enum": values}
		if d := fieldDescription(f); d != "" {
			s["description"] = d
		}
		return s

	case models.FieldNumber:
		s := map[string]any{"type": "number"}
		if f.Minimum != nil {
			s["minimum"] = *f.Minimum
		}
		if f.Maximum != nil {
			s["maximum"] = *f.Maximum
		}
		if f.Description != "" {
			s["description"] = f.Description
		}
		return s

	case models.FieldPhone, models.FieldEmail:
		s := map[string]any{"type": "string"}
		if f.Type == models.FieldPhone && f.Pattern != "" {
			s["pattern"] = f.Pattern
		}
		if f.Type == models.FieldEmail {
			s["format"] = "email"
		}
		addLengthBounds(s, f)
		if f.Description != "" {
			s["description"] = f.Description
		}
		return s

	case models.FieldFile:
		minCount, maxCount := fileCountBounds(f)
		return map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"minItems":    minCount,
			"maxItems":    maxCount,
			"description": fileDescription(f, minCount, maxCount),
		}

	default:
		s := map[string]any{"type": "string"}
		addLengthBounds(s, f)
		if f.Pattern != "" {
			s["pattern"] = f.Pattern
		}
		if f.Description != "" {
			s["description"] = f.Description
		}
		return s
	}
}

func addLengthBounds(s map[string]any, f *models.FieldSpec) {
	if f.MinLength != nil {
		s["minLength"] = *f.MinLength
	}
	if f.MaxLength != nil {
		s["maxLength"] = *f.MaxLength
	}
}

// fileCountBounds derives minItems/maxItems: required file fields default to
// one attachment; the max never sits below the min.
func fileCountBounds(f *models.FieldSpec) (int, int) {
	minCount := 0
	if f.Required {
		minCount = 1
	}
	if f.MinCount != nil {
		minCount = *f.MinCount
	}
	maxCount := 1
	if f.MaxCount != nil {
		maxCount = *f.MaxCount
	}
	if maxCount < minCount {
		maxCount = minCount
	}
	return minCount, maxCount
}

func fieldDescription(f *models.FieldSpec) string {
	if f.Description != "" {
		return f.Description
	}
	return f.Label
}

// fileDescription embeds the upload workflow and accept rules so the model
// asks the user to upload before calling the tool.
func fileDescription(f *models.FieldSpec, minCount, maxCount int) string {
	base := fieldDescription(f)
	if base == "" {
		base = "Upload files, then pass file IDs."
	}
	var hints []string
	if len(f.Accept.Mime) > 0 {
		hints = append(hints, "MIME: "+strings.Join(f.Accept.Mime, ","))
	}
	if len(f.Accept.Ext) > 0 {
		hints = append(hints, "ext: "+strings.Join(f.Accept.Ext, ","))
	}
	desc := fmt.Sprintf("%s (Use /v1/uploads; pass file IDs as an array. min=%d, max=%d.", base, minCount, maxCount)
	if len(hints) > 0 {
		desc += " " + strings.Join(hints, "; ")
	}
	return desc + ")"
}

// CompileToolParams verifies that the generated parameters form a valid
// JSON Schema. Types whose specs do not compile are withheld from the model.
func CompileToolParams(typeID string, params map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode schema for %q: %w", typeID, err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := "mem://ticket-types/" + typeID + ".json"
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("add schema for %q: %w", typeID, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", typeID, err)
	}
	return schema, nil
}
