// Package cards turns normalized characters into render-ready contexts.
// Everything here is a pure function of the document plus settings: no
// I/O, no errors. Missing fields fall back to fixed defaults so a card
// always has something to show.
package cards

import (
	"github.com/spf13/cast"

	"github.com/simtrack/simtrack/internal/sim"
)

// Reaction and health glyphs. The reaction mapping is total: every
// last_react value lands on exactly one of the three.
const (
	EmojiPositive = "👍"
	EmojiNegative = "👎"
	EmojiNeutral  = "😐"

	IconInjured  = "🤕"
	IconCritical = "💀"
)

// Literal defaults for absent fields.
const (
	NoThought     = "No thought recorded."
	StatusUnknown = "Unknown"
)

// Settings carries the configuration the defaulter consumes.
type Settings struct {
	DefaultBackground string
	ShowThought       bool
}

// Context is the per-character render context: the character's raw stats
// plus every derived presentation value the templates reference. Derived
// values are computed fresh on every render and never persisted.
type Context struct {
	Name     string
	Index    int
	Initial  string
	Stats    map[string]any
	StatKeys []string

	Background     string
	Darkened       string
	ReactionEmoji  string
	HealthIcon     string // empty means the element is omitted
	Thought        string
	ShowThought    bool
	Relationship   string
	Desire         string
	Inactive       bool
	InactiveReason int

	CurrentDate string
	CurrentTime string
}

// Batch is the single structure handed to a tab-enabled template: every
// character context plus the shared world fields.
type Batch struct {
	Characters  []Context
	CurrentDate string
	CurrentTime string
}

// Build computes the render context for one character. idx is the
// character's position in document order; world may be nil.
func Build(c sim.Character, doc *sim.Document, idx int, s Settings) Context {
	ctx := Context{
		Name:        c.Name,
		Index:       idx,
		Initial:     Initial(c.Name),
		Stats:       map[string]any{},
		ShowThought: s.ShowThought,
	}

	if c.Stats != nil {
		for _, k := range c.Stats.Keys() {
			v, _ := c.Stats.Get(k)
			ctx.Stats[k] = v
			ctx.StatKeys = append(ctx.StatKeys, k)
		}
	}

	bg := c.StatString("bg")
	if bg == "" {
		bg = s.DefaultBackground
	}
	if bg == "" {
		bg = FallbackColor
	}
	ctx.Background = bg
	ctx.Darkened = Darken(bg)

	ctx.ReactionEmoji = ReactionEmoji(statValue(c, "last_react"))
	ctx.HealthIcon = HealthIcon(statValue(c, "health"))

	ctx.Thought = c.StatString("internal_thought")
	if ctx.Thought == "" {
		ctx.Thought = c.StatString("thought")
	}
	if ctx.Thought == "" {
		ctx.Thought = NoThought
	}

	ctx.Relationship = c.StatString("relationshipStatus")
	if ctx.Relationship == "" {
		ctx.Relationship = StatusUnknown
	}
	ctx.Desire = c.StatString("desireStatus")
	if ctx.Desire == "" {
		ctx.Desire = StatusUnknown
	}
	if v, ok := c.Stat("inactive"); ok {
		ctx.Inactive = cast.ToBool(v)
	}
	if v, ok := c.Stat("inactiveReason"); ok {
		ctx.InactiveReason = cast.ToInt(v)
	}

	if doc != nil && doc.WorldData != nil {
		if v, ok := doc.WorldData.Get("current_date"); ok {
			ctx.CurrentDate = cast.ToString(v)
		}
		if v, ok := doc.WorldData.Get("current_time"); ok {
			ctx.CurrentTime = cast.ToString(v)
		}
	}
	return ctx
}

// BuildBatch computes contexts for every character in document order.
func BuildBatch(doc *sim.Document, s Settings) Batch {
	b := Batch{}
	if doc == nil {
		return b
	}
	for i, c := range doc.Characters {
		b.Characters = append(b.Characters, Build(c, doc, i, s))
	}
	if len(b.Characters) > 0 {
		b.CurrentDate = b.Characters[0].CurrentDate
		b.CurrentTime = b.Characters[0].CurrentTime
	}
	return b
}

// ReactionEmoji maps last_react to its glyph. Non-numeric values take
// the default case, so the mapping is total over {1, 2, everything else}.
func ReactionEmoji(v any) string {
	n, err := cast.ToIntE(v)
	if err != nil {
		return EmojiNeutral
	}
	switch n {
	case 1:
		return EmojiPositive
	case 2:
		return EmojiNegative
	default:
		return EmojiNeutral
	}
}

// HealthIcon maps health to its glyph; anything but 1 or 2 means no
// icon at all (templates omit the element on empty).
func HealthIcon(v any) string {
	n, err := cast.ToIntE(v)
	if err != nil {
		return ""
	}
	switch n {
	case 1:
		return IconInjured
	case 2:
		return IconCritical
	default:
		return ""
	}
}

// Initial returns the first character of a name, "?" when empty. Also
// exposed to templates as the `initial` helper.
func Initial(name string) string {
	for _, r := range name {
		return string(r)
	}
	return "?"
}

func statValue(c sim.Character, key string) any {
	v, _ := c.Stat(key)
	return v
}
