// Package macro expands the {{sim_*}} placeholders the host substitutes
// into prompts and message text. Unknown macros pass through untouched;
// only the three names below are claimed.
package macro

import (
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/simtrack/simtrack/internal/session"
)

// SlotClass marks the placeholder element {{sim_slot}} leaves behind for
// MACRO-positioned cards.
const SlotClass = "simtrack-slot"

// SlotHTML is the expanded form of {{sim_slot}}.
const SlotHTML = `<span class="` + SlotClass + `"></span>`

var macroPattern = regexp.MustCompile(`\{\{(sim_track|sim_data|sim_slot)(?::([^}]*))?\}\}`)

// Expander resolves sim macros against the session tracker. The prompt
// callback builds the tracking-prompt text on demand so settings changes
// take effect without rebuilding the expander.
type Expander struct {
	tracker *session.Tracker
	prompt  func() string
}

func NewExpander(tracker *session.Tracker, prompt func() string) *Expander {
	return &Expander{tracker: tracker, prompt: prompt}
}

// Expand substitutes every sim macro in text.
//   - {{sim_track}}        → the tracking prompt
//   - {{sim_data}}         → the last captured sim JSON, "" before any capture
//   - {{sim_data:<path>}}  → a field query into that JSON (gjson path syntax)
//   - {{sim_slot}}         → the placement placeholder
func (e *Expander) Expand(text string) string {
	return macroPattern.ReplaceAllStringFunc(text, func(m string) string {
		parts := macroPattern.FindStringSubmatch(m)
		name, path := parts[1], parts[2]

		switch name {
		case "sim_track":
			if e.prompt == nil {
				return ""
			}
			return e.prompt()
		case "sim_slot":
			return SlotHTML
		case "sim_data":
			last := e.tracker.Last()
			if path == "" {
				return last
			}
			if last == "" {
				return ""
			}
			v, _ := Query(last, path)
			return v
		}
		return m
	})
}

// Query resolves a gjson path against raw JSON. Objects and arrays come
// back as raw JSON, scalars as their string form; a missing path returns
// ("", false).
func Query(raw, path string) (string, bool) {
	r := gjson.Get(raw, path)
	if !r.Exists() {
		return "", false
	}
	if r.Type == gjson.JSON {
		return r.Raw, true
	}
	return r.String(), true
}
