package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iancoleman/orderedmap"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/simtrack/simtrack/internal/session"
)

// Schema returns the draft-07 JSON schema for the canonical envelope,
// with default and custom fields documented per character. Output key
// order is stable.
func Schema(s session.Settings) (string, error) {
	props := orderedmap.New()
	props.Set("name", schemaType("string", "character name"))
	for _, f := range defaultFields {
		props.Set(f.Key, schemaType(f.JSONType, f.Desc))
	}
	for _, cf := range s.CustomFields {
		if cf.Key == "" {
			continue
		}
		props.Set(cf.Key, schemaAnyScalar(cf.Description))
	}

	character := orderedmap.New()
	character.Set("type", "object")
	character.Set("required", []string{"name"})
	character.Set("properties", props)

	world := orderedmap.New()
	world.Set("type", "object")
	worldProps := orderedmap.New()
	worldProps.Set("current_date", schemaType("string", "in-world date"))
	worldProps.Set("current_time", schemaType("string", "in-world time"))
	world.Set("properties", worldProps)

	root := orderedmap.New()
	root.Set("$schema", "http://json-schema.org/draft-07/schema#")
	root.Set("type", "object")
	root.Set("required", []string{"worldData", "characters"})
	rootProps := orderedmap.New()
	rootProps.Set("worldData", world)
	items := orderedmap.New()
	items.Set("type", "array")
	items.Set("items", character)
	rootProps.Set("characters", items)
	root.Set("properties", rootProps)

	b, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return string(b), nil
}

// Compile compiles the generated schema for validation.
func Compile(s session.Settings) (*jsonschema.Schema, error) {
	text, err := Schema(s)
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("simtrack.schema.json", strings.NewReader(text)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile("simtrack.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return sch, nil
}

// Validate checks one canonical JSON text against the schema and returns
// human-readable diagnostics, nil when the document conforms.
func Validate(sch *jsonschema.Schema, canonicalJSON string) []string {
	var v any
	if err := json.Unmarshal([]byte(canonicalJSON), &v); err != nil {
		return []string{fmt.Sprintf("not valid JSON: %v", err)}
	}
	err := sch.Validate(v)
	if err == nil {
		return nil
	}
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		return flatten(ve)
	}
	return []string{err.Error()}
}

// flatten walks the cause tree and keeps the leaves, which carry the
// actionable message for each failing location.
func flatten(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{fmt.Sprintf("%s: %s", loc, ve.Message)}
	}
	var out []string
	for _, c := range ve.Causes {
		out = append(out, flatten(c)...)
	}
	return out
}

func schemaType(typ, desc string) *orderedmap.OrderedMap {
	m := orderedmap.New()
	m.Set("type", typ)
	if desc != "" {
		m.Set("description", desc)
	}
	return m
}

// schemaAnyScalar documents a custom field without pinning its type.
func schemaAnyScalar(desc string) *orderedmap.OrderedMap {
	m := orderedmap.New()
	m.Set("type", []string{"string", "number", "integer", "boolean"})
	if desc != "" {
		m.Set("description", desc)
	}
	return m
}
