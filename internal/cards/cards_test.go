package cards

import (
	"testing"

	"github.com/simtrack/simtrack/internal/sim"
)

func mustDoc(t *testing.T, body string) *sim.Document {
	t.Helper()
	om, err := sim.Decode(body)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	doc, err := sim.Normalize(om)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return doc
}

func TestReactionEmoji(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"one", float64(1), EmojiPositive},
		{"two", float64(2), EmojiNegative},
		{"zero", float64(0), EmojiNeutral},
		{"three", float64(3), EmojiNeutral},
		{"negative", float64(-1), EmojiNeutral},
		{"string one", "1", EmojiPositive},
		{"non-numeric", "angry", EmojiNeutral},
		{"absent", nil, EmojiNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReactionEmoji(tt.in); got != tt.want {
				t.Errorf("ReactionEmoji(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHealthIcon(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"injured", float64(1), IconInjured},
		{"critical", float64(2), IconCritical},
		{"healthy", float64(0), ""},
		{"out of range", float64(9), ""},
		{"non-numeric", "fine", ""},
		{"absent", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HealthIcon(tt.in); got != tt.want {
				t.Errorf("HealthIcon(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitial(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Alex", "A"},
		{"élodie", "é"},
		{"", "?"},
	}
	for _, tt := range tests {
		if got := Initial(tt.in); got != tt.want {
			t.Errorf("Initial(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Canonical single character: default background, neutral reaction, no
// health icon, thought falls back to the fixed literal, world date rides
// along.
func TestBuildCanonicalDefaults(t *testing.T) {
	doc := mustDoc(t, `{
  "worldData": {"current_date": "2024-01-01", "current_time": "09:00"},
  "characters": [{"name": "Alex", "ap": 50}]
}`)
	s := Settings{DefaultBackground: "#336699", ShowThought: true}

	batch := BuildBatch(doc, s)
	if len(batch.Characters) != 1 {
		t.Fatalf("BuildBatch() produced %d contexts, want 1", len(batch.Characters))
	}

	ctx := batch.Characters[0]
	if ctx.Name != "Alex" {
		t.Errorf("Name = %q, want Alex", ctx.Name)
	}
	if ctx.CurrentDate != "2024-01-01" {
		t.Errorf("CurrentDate = %q, want 2024-01-01", ctx.CurrentDate)
	}
	if ctx.CurrentTime != "09:00" {
		t.Errorf("CurrentTime = %q, want 09:00", ctx.CurrentTime)
	}
	if ctx.Background != "#336699" {
		t.Errorf("Background = %q, want configured default", ctx.Background)
	}
	if ctx.Darkened != Darken("#336699") {
		t.Errorf("Darkened = %q, want %q", ctx.Darkened, Darken("#336699"))
	}
	if ctx.ReactionEmoji != EmojiNeutral {
		t.Errorf("ReactionEmoji = %q, want neutral", ctx.ReactionEmoji)
	}
	if ctx.HealthIcon != "" {
		t.Errorf("HealthIcon = %q, want none", ctx.HealthIcon)
	}
	if ctx.Thought != NoThought {
		t.Errorf("Thought = %q, want %q", ctx.Thought, NoThought)
	}
	if ctx.Relationship != StatusUnknown || ctx.Desire != StatusUnknown {
		t.Errorf("status fallbacks = %q/%q, want %q", ctx.Relationship, ctx.Desire, StatusUnknown)
	}
	if ctx.Inactive || ctx.InactiveReason != 0 {
		t.Errorf("inactive defaults = %v/%d, want false/0", ctx.Inactive, ctx.InactiveReason)
	}
	if ctx.Stats["ap"] != float64(50) {
		t.Errorf("Stats[ap] = %v, want 50", ctx.Stats["ap"])
	}
}

// Legacy input with a thumbs-up reaction.
func TestBuildLegacyReaction(t *testing.T) {
	doc := mustDoc(t, `{"current_date": "2024-01-01", "Alex": {"ap": 50, "last_react": 1}}`)

	batch := BuildBatch(doc, Settings{})
	if len(batch.Characters) != 1 {
		t.Fatalf("BuildBatch() produced %d contexts, want 1", len(batch.Characters))
	}
	ctx := batch.Characters[0]
	if ctx.Name != "Alex" {
		t.Errorf("Name = %q, want Alex", ctx.Name)
	}
	if ctx.ReactionEmoji != EmojiPositive {
		t.Errorf("ReactionEmoji = %q, want %q", ctx.ReactionEmoji, EmojiPositive)
	}
	if ctx.Stats["ap"] != float64(50) {
		t.Errorf("Stats[ap] = %v, want 50", ctx.Stats["ap"])
	}
	if ctx.Background != FallbackColor {
		t.Errorf("Background = %q, want fallback with no configured default", ctx.Background)
	}
}

func TestBuildFieldOverrides(t *testing.T) {
	doc := mustDoc(t, `{
  "worldData": {},
  "characters": [{
    "name": "Mira",
    "bg": "#ff8040",
    "health": 2,
    "last_react": 2,
    "internal_thought": "so tired",
    "relationshipStatus": "Rival",
    "desireStatus": "None",
    "inactive": true,
    "inactiveReason": 3
  }]
}`)

	ctx := Build(doc.Characters[0], doc, 0, Settings{DefaultBackground: "#111111"})
	if ctx.Background != "#ff8040" {
		t.Errorf("Background = %q, want the bg stat", ctx.Background)
	}
	if ctx.Darkened != "#b2592c" {
		t.Errorf("Darkened = %q, want #b2592c", ctx.Darkened)
	}
	if ctx.HealthIcon != IconCritical {
		t.Errorf("HealthIcon = %q, want %q", ctx.HealthIcon, IconCritical)
	}
	if ctx.ReactionEmoji != EmojiNegative {
		t.Errorf("ReactionEmoji = %q, want %q", ctx.ReactionEmoji, EmojiNegative)
	}
	if ctx.Thought != "so tired" {
		t.Errorf("Thought = %q, want internal_thought", ctx.Thought)
	}
	if ctx.Relationship != "Rival" || ctx.Desire != "None" {
		t.Errorf("statuses = %q/%q, want Rival/None", ctx.Relationship, ctx.Desire)
	}
	if !ctx.Inactive || ctx.InactiveReason != 3 {
		t.Errorf("inactive = %v/%d, want true/3", ctx.Inactive, ctx.InactiveReason)
	}
}

func TestBuildThoughtFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"internal_thought wins",
			`{"A": {"internal_thought": "new", "thought": "old"}}`,
			"new",
		},
		{
			"legacy thought",
			`{"A": {"thought": "old"}}`,
			"old",
		},
		{
			"literal default",
			`{"A": {"ap": 1}}`,
			NoThought,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, tt.body)
			ctx := Build(doc.Characters[0], doc, 0, Settings{})
			if ctx.Thought != tt.want {
				t.Errorf("Thought = %q, want %q", ctx.Thought, tt.want)
			}
		})
	}
}

func TestBuildBatchOrderAndIndexes(t *testing.T) {
	doc := mustDoc(t, `{"Zoe": {"ap": 1}, "Amy": {"ap": 2}, "Kit": {"ap": 3}}`)

	batch := BuildBatch(doc, Settings{})
	if len(batch.Characters) != 3 {
		t.Fatalf("BuildBatch() produced %d contexts, want 3", len(batch.Characters))
	}
	wantNames := []string{"Zoe", "Amy", "Kit"}
	for i, ctx := range batch.Characters {
		if ctx.Name != wantNames[i] {
			t.Errorf("context %d name = %q, want %q", i, ctx.Name, wantNames[i])
		}
		if ctx.Index != i {
			t.Errorf("context %d index = %d", i, ctx.Index)
		}
	}
}
