package sim

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMigrateBodyLegacy(t *testing.T) {
	body := `{"current_date": "2024-03-01", "Alice": {"affection": 50}}`

	out, changed, err := MigrateBody(body)
	if err != nil {
		t.Fatalf("MigrateBody() error = %v", err)
	}
	if !changed {
		t.Fatal("MigrateBody() changed = false, want true")
	}

	want := `{
  "worldData": {
    "current_date": "2024-03-01"
  },
  "characters": [
    {
      "name": "Alice",
      "affection": 50
    }
  ]
}`
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("migrated body (-want +got):\n%s", diff)
	}
}

func TestMigrateBodyCanonicalNoOp(t *testing.T) {
	// Formatting quirks must survive untouched; a no-op returns the body
	// byte for byte, not a re-serialization.
	body := `{"worldData":{},"characters":[{"name":"Alice","affection":50}]}`

	out, changed, err := MigrateBody(body)
	if err != nil {
		t.Fatalf("MigrateBody() error = %v", err)
	}
	if changed {
		t.Error("MigrateBody() changed = true for canonical input")
	}
	if out != body {
		t.Errorf("MigrateBody() rewrote canonical body:\n got %q\nwant %q", out, body)
	}
}

func TestMigrateBodyBadJSON(t *testing.T) {
	_, _, err := MigrateBody(`{"Alice": nope}`)
	if err == nil {
		t.Fatal("MigrateBody() error = nil, want parse failure")
	}
}

func TestMigrateBodyRepeatable(t *testing.T) {
	body := `{"Alice": {"affection": 50}, "Bob": {"trust": 2}}`

	first, changed, err := MigrateBody(body)
	if err != nil || !changed {
		t.Fatalf("first MigrateBody() = changed %v, err %v", changed, err)
	}
	second, changed, err := MigrateBody(first)
	if err != nil {
		t.Fatalf("second MigrateBody() error = %v", err)
	}
	if changed {
		t.Error("second MigrateBody() changed = true, want no-op")
	}
	if second != first {
		t.Error("second MigrateBody() altered already-migrated body")
	}
}
