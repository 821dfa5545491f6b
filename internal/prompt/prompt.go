// Package prompt builds the tracking instruction sent to the generator
// and the JSON schema that documents (and lints) the expected block
// shape. Default fields and user-defined custom fields feed both, so the
// prompt and the linter never drift apart.
package prompt

import (
	"fmt"
	"strings"

	"github.com/simtrack/simtrack/internal/session"
)

// field is one documented stat.
type field struct {
	Key      string
	Desc     string
	JSONType string // schema type; "number", "integer", "string", "boolean"
}

// defaultFields is the stock stat vocabulary. The schema leaves
// additionalProperties open, so these document rather than restrict.
var defaultFields = []field{
	{"ap", "affection points, integer 0-100", "number"},
	{"dp", "desire points, integer 0-100", "number"},
	{"tp", "trust points, integer 0-100", "number"},
	{"cp", "contempt points, integer 0-100", "number"},
	{"health", "0 fine, 1 injured, 2 critical", "integer"},
	{"last_react", "reaction to the user's last message: 1 positive, 2 negative, anything else neutral", "integer"},
	{"internal_thought", "the character's current private thought, one sentence", "string"},
	{"relationshipStatus", "short label for the relationship", "string"},
	{"desireStatus", "short label for the current desire", "string"},
	{"bg", "card background color as #rrggbb", "string"},
	{"inactive", "true when the character has left the scene", "boolean"},
	{"inactiveReason", "numeric code for why the character is inactive", "integer"},
}

// Build returns the tracking-prompt text for the current settings. The
// host substitutes it for {{sim_track}}.
func Build(s session.Settings) string {
	tag := s.CodeBlockTag
	if tag == "" {
		tag = "sim"
	}

	var b strings.Builder
	b.WriteString("At the very end of your reply, append exactly one fenced code block tagged `")
	b.WriteString(tag)
	b.WriteString("` containing only JSON in this shape:\n\n")
	b.WriteString("```")
	b.WriteString(tag)
	b.WriteString("\n")
	b.WriteString(`{
  "worldData": { "current_date": "YYYY-MM-DD", "current_time": "HH:MM" },
  "characters": [
    { "name": "<character name>", "ap": 50, "internal_thought": "..." }
  ]
}
`)
	b.WriteString("```\n\n")
	b.WriteString("List every character present in the scene as one entry in `characters`. ")
	b.WriteString("Keep values consistent with the story so far and update them to reflect this reply.\n\n")
	b.WriteString("Tracked fields:\n")
	for _, f := range defaultFields {
		fmt.Fprintf(&b, "- `%s`: %s\n", f.Key, f.Desc)
	}
	for _, cf := range s.CustomFields {
		if cf.Key == "" {
			continue
		}
		desc := cf.Description
		if desc == "" {
			desc = "custom field"
		}
		fmt.Fprintf(&b, "- `%s`: %s\n", cf.Key, desc)
	}
	return b.String()
}
