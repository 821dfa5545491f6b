package ops

import (
	"github.com/simtrack/simtrack/internal/macro"
	"github.com/simtrack/simtrack/internal/prompt"
)

// PromptOutput carries the tracking prompt plus the JSON schema the
// generated blocks are expected to satisfy.
type PromptOutput struct {
	Prompt string `json:"prompt"`
	Schema string `json:"schema"`
}

// BuildPrompt renders the tracking prompt and expected-shape schema from
// current settings.
func BuildPrompt(env *Env) (*PromptOutput, error) {
	settings, err := env.loadSettings()
	if err != nil {
		return nil, err
	}
	sch, err := prompt.Schema(settings)
	if err != nil {
		return nil, err
	}
	return &PromptOutput{Prompt: prompt.Build(settings), Schema: sch}, nil
}

// LastDataOutput is a tracker query result.
type LastDataOutput struct {
	Data  string `json:"data"`
	Found bool   `json:"found"`
}

// LastData returns the last captured sim JSON, optionally narrowed by a
// gjson path.
func LastData(env *Env, path string) *LastDataOutput {
	last := env.Tracker.Last()
	if last == "" {
		return &LastDataOutput{}
	}
	if path == "" {
		return &LastDataOutput{Data: last, Found: true}
	}
	v, ok := macro.Query(last, path)
	return &LastDataOutput{Data: v, Found: ok}
}

// Expander builds a macro expander wired to this environment. The
// tracking prompt resolves lazily so settings edits apply immediately.
func (env *Env) Expander() *macro.Expander {
	return macro.NewExpander(env.Tracker, func() string {
		settings, err := env.loadSettings()
		if err != nil {
			return ""
		}
		return prompt.Build(settings)
	})
}
