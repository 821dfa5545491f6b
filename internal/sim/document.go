// Package sim decodes and normalizes the JSON payload of a fenced sim
// block. Two schema generations exist in the wild: the legacy flat object
// keyed by character name, and the canonical {worldData, characters}
// envelope. Both normalize into a Document; key order is preserved all
// the way through so a round trip never reorders anybody's stats.
package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/iancoleman/orderedmap"
	"github.com/spf13/cast"
)

// Format identifies which schema generation a decoded block uses.
type Format int

const (
	FormatUnknown Format = iota
	FormatLegacy
	FormatCanonical
)

func (f Format) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"
	case FormatCanonical:
		return "canonical"
	default:
		return "unknown"
	}
}

// ErrNotObject marks a syntactically valid block whose top level is not a
// JSON object. Callers distinguish it from plain parse failures.
var ErrNotObject = errors.New("top-level JSON value is not an object")

// Character is one tracked character: the display name plus its stat
// fields in their original order. Stats never contains the "name" key;
// unknown fields ride along untouched.
type Character struct {
	Name  string
	Stats *orderedmap.OrderedMap
}

// Stat returns the raw value for one stat key.
func (c Character) Stat(key string) (any, bool) {
	if c.Stats == nil {
		return nil, false
	}
	return c.Stats.Get(key)
}

// StatString returns the stat coerced to a string, "" when absent.
func (c Character) StatString(key string) string {
	v, ok := c.Stat(key)
	if !ok || v == nil {
		return ""
	}
	return cast.ToString(v)
}

// Document is the normalized form of one sim block.
type Document struct {
	WorldData  *orderedmap.OrderedMap
	Characters []Character
	Format     Format

	// Skipped lists top-level keys (or characters[i] slots) that could
	// not become characters and were dropped; callers log them.
	Skipped []string

	// raw holds the decoded source object when the input was already
	// canonical, so marshaling is a genuine identity.
	raw *orderedmap.OrderedMap
}

// Decode parses a fenced block body into an order-preserving object.
// A non-object top level (array, primitive, null) fails with a wrapped
// ErrNotObject so callers can report the shape, not just the syntax.
func Decode(body string) (*orderedmap.OrderedMap, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse sim block: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("sim block top level is %s: %w", tokenKind(tok), ErrNotObject)
	}

	om := orderedmap.New()
	if err := json.Unmarshal([]byte(body), om); err != nil {
		return nil, fmt.Errorf("parse sim block: %w", err)
	}
	return om, nil
}

// DetectFormat classifies a decoded object. Canonical requires worldData
// to be a non-null object and characters to be an array; everything else
// is treated as legacy.
func DetectFormat(om *orderedmap.OrderedMap) Format {
	if om == nil {
		return FormatUnknown
	}
	world, hasWorld := om.Get("worldData")
	chars, hasChars := om.Get("characters")
	if !hasWorld || !hasChars {
		return FormatLegacy
	}
	if _, ok := asObject(world); !ok {
		return FormatLegacy
	}
	if _, ok := chars.([]any); !ok {
		return FormatLegacy
	}
	return FormatCanonical
}

// asObject unwraps the two object representations the decoder produces
// (nested objects land as values, hand-built ones as pointers).
func asObject(v any) (*orderedmap.OrderedMap, bool) {
	switch t := v.(type) {
	case orderedmap.OrderedMap:
		return &t, true
	case *orderedmap.OrderedMap:
		if t == nil {
			return nil, false
		}
		return t, true
	}
	return nil, false
}

func tokenKind(tok json.Token) string {
	switch t := tok.(type) {
	case json.Delim:
		if t == '[' {
			return "an array"
		}
		return "a delimiter"
	case string:
		return "a string"
	case float64, json.Number:
		return "a number"
	case bool:
		return "a boolean"
	case nil:
		return "null"
	default:
		return "unsupported"
	}
}
