package sim

import (
	"encoding/json"
	"fmt"

	"github.com/iancoleman/orderedmap"
	"github.com/spf13/cast"
)

// worldKeys are the legacy top-level keys that belong to world data
// rather than to a character.
var worldKeys = map[string]bool{
	"current_date": true,
	"current_time": true,
}

// Normalize turns a decoded block into a Document. Canonical input
// passes through without loss or reordering; legacy input maps world
// keys into WorldData and every top-level object value into a character
// named after its key, in key order. Normalizing an already-normalized
// document is a no-op.
func Normalize(om *orderedmap.OrderedMap) (*Document, error) {
	if om == nil {
		return nil, fmt.Errorf("normalize: %w", ErrNotObject)
	}
	if DetectFormat(om) == FormatCanonical {
		return normalizeCanonical(om), nil
	}
	return normalizeLegacy(om), nil
}

func normalizeCanonical(om *orderedmap.OrderedMap) *Document {
	doc := &Document{Format: FormatCanonical, raw: om}

	if wv, ok := om.Get("worldData"); ok {
		if world, ok := asObject(wv); ok {
			doc.WorldData = world
		}
	}

	chars, _ := om.Get("characters")
	list, _ := chars.([]any)
	for i, el := range list {
		obj, ok := asObject(el)
		if !ok {
			doc.Skipped = append(doc.Skipped, fmt.Sprintf("characters[%d]", i))
			continue
		}
		name := ""
		if nv, ok := obj.Get("name"); ok && nv != nil {
			name = cast.ToString(nv)
		}
		if name == "" {
			doc.Skipped = append(doc.Skipped, fmt.Sprintf("characters[%d]", i))
			continue
		}
		stats := orderedmap.New()
		for _, k := range obj.Keys() {
			if k == "name" {
				continue
			}
			v, _ := obj.Get(k)
			stats.Set(k, v)
		}
		doc.Characters = append(doc.Characters, Character{Name: name, Stats: stats})
	}
	return doc
}

func normalizeLegacy(om *orderedmap.OrderedMap) *Document {
	doc := &Document{Format: FormatLegacy, WorldData: orderedmap.New(), raw: om}

	for _, k := range om.Keys() {
		v, _ := om.Get(k)
		if worldKeys[k] {
			doc.WorldData.Set(k, v)
			continue
		}
		obj, ok := asObject(v)
		if !ok {
			// A flat string or number at top level is neither world data
			// nor a character record.
			doc.Skipped = append(doc.Skipped, k)
			continue
		}
		stats := orderedmap.New()
		for _, sk := range obj.Keys() {
			if sk == "name" {
				continue
			}
			sv, _ := obj.Get(sk)
			stats.Set(sk, sv)
		}
		doc.Characters = append(doc.Characters, Character{Name: k, Stats: stats})
	}
	return doc
}

// MarshalCanonical serializes the document in the canonical envelope,
// indented with two spaces. A document that was decoded from canonical
// input re-emits its source object, so re-runs never churn
// formatting-only diffs.
func (d *Document) MarshalCanonical() (string, error) {
	if d.Format == FormatCanonical && d.raw != nil {
		b, err := json.MarshalIndent(d.raw, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal sim document: %w", err)
		}
		return string(b), nil
	}

	out := orderedmap.New()
	world := d.WorldData
	if world == nil {
		world = orderedmap.New()
	}
	out.Set("worldData", world)

	chars := make([]any, 0, len(d.Characters))
	for _, c := range d.Characters {
		co := orderedmap.New()
		co.Set("name", c.Name)
		if c.Stats != nil {
			for _, k := range c.Stats.Keys() {
				v, _ := c.Stats.Get(k)
				co.Set(k, v)
			}
		}
		chars = append(chars, co)
	}
	out.Set("characters", chars)

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sim document: %w", err)
	}
	return string(b), nil
}

// Names returns the character names in document order.
func (d *Document) Names() []string {
	names := make([]string, len(d.Characters))
	for i, c := range d.Characters {
		names[i] = c.Name
	}
	return names
}
