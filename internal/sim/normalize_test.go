package sim

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const legacyBody = `{
  "current_date": "2024-03-01",
  "current_time": "14:30",
  "Alice": {"affection": 50, "mood": "happy"},
  "Bob": {"trust": 3, "mood": "wary"}
}`

const canonicalBody = `{
  "worldData": {"current_date": "2024-03-01"},
  "characters": [
    {"name": "Alice", "affection": 50, "mood": "happy"},
    {"name": "Bob", "trust": 3}
  ]
}`

func TestDecodeRejectsNonObjects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"array", `[1, 2, 3]`},
		{"string", `"hello"`},
		{"number", `42`},
		{"boolean", `true`},
		{"null", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.body)
			if err == nil {
				t.Fatal("Decode() error = nil, want non-nil")
			}
			if !errors.Is(err, ErrNotObject) {
				t.Errorf("Decode() error = %v, want ErrNotObject", err)
			}
		})
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode(`{"Alice": {"affection": 50,}`)
	if err == nil {
		t.Fatal("Decode() error = nil, want parse failure")
	}
	if errors.Is(err, ErrNotObject) {
		t.Error("parse failure misreported as ErrNotObject")
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Format
	}{
		{"legacy flat", legacyBody, FormatLegacy},
		{"canonical", canonicalBody, FormatCanonical},
		{"worldData null", `{"worldData": null, "characters": []}`, FormatLegacy},
		{"characters not array", `{"worldData": {}, "characters": {}}`, FormatLegacy},
		{"characters without worldData", `{"characters": []}`, FormatLegacy},
		{"empty object", `{}`, FormatLegacy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			om, err := Decode(tt.body)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got := DetectFormat(om); got != tt.want {
				t.Errorf("DetectFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeLegacy(t *testing.T) {
	om, err := Decode(legacyBody)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	doc, err := Normalize(om)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if doc.Format != FormatLegacy {
		t.Errorf("Format = %v, want FormatLegacy", doc.Format)
	}
	if diff := cmp.Diff([]string{"Alice", "Bob"}, doc.Names()); diff != "" {
		t.Errorf("character order mismatch (-want +got):\n%s", diff)
	}
	if got := doc.Characters[0].StatString("mood"); got != "happy" {
		t.Errorf("Alice mood = %q, want %q", got, "happy")
	}
	if got := doc.Characters[1].StatString("trust"); got != "3" {
		t.Errorf("Bob trust = %q, want %q", got, "3")
	}

	date, ok := doc.WorldData.Get("current_date")
	if !ok || date != "2024-03-01" {
		t.Errorf("worldData current_date = %v, %v; want 2024-03-01, true", date, ok)
	}
	if _, ok := doc.WorldData.Get("current_time"); !ok {
		t.Error("worldData missing current_time")
	}
	if len(doc.Skipped) != 0 {
		t.Errorf("Skipped = %v, want none", doc.Skipped)
	}
}

func TestNormalizeLegacySkipsStrayValues(t *testing.T) {
	body := `{
  "Alice": {"affection": 50},
  "note": "not a character",
  "count": 7
}`
	om, err := Decode(body)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	doc, err := Normalize(om)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if diff := cmp.Diff([]string{"Alice"}, doc.Names()); diff != "" {
		t.Errorf("characters (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"note", "count"}, doc.Skipped); diff != "" {
		t.Errorf("skipped keys (-want +got):\n%s", diff)
	}
}

func TestNormalizeCanonicalIsIdentity(t *testing.T) {
	om, err := Decode(canonicalBody)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	doc, err := Normalize(om)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if doc.Format != FormatCanonical {
		t.Errorf("Format = %v, want FormatCanonical", doc.Format)
	}
	if diff := cmp.Diff([]string{"Alice", "Bob"}, doc.Names()); diff != "" {
		t.Errorf("character order (-want +got):\n%s", diff)
	}
	// Stat keys keep their decoded order, name excluded.
	if diff := cmp.Diff([]string{"affection", "mood"}, doc.Characters[0].Stats.Keys()); diff != "" {
		t.Errorf("Alice stat keys (-want +got):\n%s", diff)
	}

	// Marshal must re-emit the decoded source; round-tripping the output
	// through decode+normalize+marshal changes nothing.
	first, err := doc.MarshalCanonical()
	if err != nil {
		t.Fatalf("MarshalCanonical() error = %v", err)
	}
	om2, err := Decode(first)
	if err != nil {
		t.Fatalf("Decode(round trip) error = %v", err)
	}
	doc2, err := Normalize(om2)
	if err != nil {
		t.Fatalf("Normalize(round trip) error = %v", err)
	}
	second, err := doc2.MarshalCanonical()
	if err != nil {
		t.Fatalf("MarshalCanonical(round trip) error = %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("round trip not stable (-first +second):\n%s", diff)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	om, err := Decode(legacyBody)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	doc, err := Normalize(om)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	once, err := doc.MarshalCanonical()
	if err != nil {
		t.Fatalf("MarshalCanonical() error = %v", err)
	}

	om2, err := Decode(once)
	if err != nil {
		t.Fatalf("Decode(normalized) error = %v", err)
	}
	doc2, err := Normalize(om2)
	if err != nil {
		t.Fatalf("Normalize(normalized) error = %v", err)
	}
	twice, err := doc2.MarshalCanonical()
	if err != nil {
		t.Fatalf("MarshalCanonical(normalized) error = %v", err)
	}

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("normalize not idempotent (-once +twice):\n%s", diff)
	}
	if diff := cmp.Diff(doc.Names(), doc2.Names()); diff != "" {
		t.Errorf("character order drifted (-once +twice):\n%s", diff)
	}
}

func TestNormalizeCanonicalSkipsBadCharacters(t *testing.T) {
	body := `{
  "worldData": {},
  "characters": [
    {"name": "Alice", "affection": 50},
    "not an object",
    {"affection": 10}
  ]
}`
	om, err := Decode(body)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	doc, err := Normalize(om)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if diff := cmp.Diff([]string{"Alice"}, doc.Names()); diff != "" {
		t.Errorf("characters (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"characters[1]", "characters[2]"}, doc.Skipped); diff != "" {
		t.Errorf("skipped slots (-want +got):\n%s", diff)
	}
}

func TestMarshalCanonicalShape(t *testing.T) {
	om, err := Decode(`{"Alice": {"affection": 50, "mood": "happy"}}`)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	doc, err := Normalize(om)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	got, err := doc.MarshalCanonical()
	if err != nil {
		t.Fatalf("MarshalCanonical() error = %v", err)
	}

	want := `{
  "worldData": {},
  "characters": [
    {
      "name": "Alice",
      "affection": 50,
      "mood": "happy"
    }
  ]
}`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("canonical output (-want +got):\n%s", diff)
	}
}
