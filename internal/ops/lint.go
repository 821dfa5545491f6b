package ops

import (
	stderrors "errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/simtrack/simtrack/internal/block"
	"github.com/simtrack/simtrack/internal/db"
	"github.com/simtrack/simtrack/internal/prompt"
	"github.com/simtrack/simtrack/internal/sim"
)

// LintFinding is one diagnostic for one message.
type LintFinding struct {
	MessageID string `json:"message_id"`
	Block     int    `json:"block"`
	Problem   string `json:"problem"`
}

// LintResult aggregates a chat-wide lint run.
type LintResult struct {
	ChatID   string        `json:"chat_id"`
	Messages int           `json:"messages"`
	Blocks   int           `json:"blocks"`
	Clean    int           `json:"clean"`
	Findings []LintFinding `json:"findings,omitempty"`
}

// LintChat checks every sim block in a chat against the expected shape:
// syntax, top-level shape, then the JSON schema generated from the
// default and custom tracked fields. Legacy blocks are normalized
// before validation so the schema only has to describe the canonical
// envelope.
func LintChat(env *Env, chatID string) (*LintResult, error) {
	settings, err := env.loadSettings()
	if err != nil {
		return nil, err
	}
	if _, err := db.GetChat(env.DB, chatID); err != nil {
		return nil, err
	}
	msgs, err := db.ListMessages(env.DB, chatID)
	if err != nil {
		return nil, err
	}

	sch, err := prompt.Compile(settings)
	if err != nil {
		return nil, err
	}

	ex := block.NewExtractor(settings.CodeBlockTag)
	res := &LintResult{ChatID: chatID, Messages: len(msgs)}

	for _, m := range msgs {
		text := m.ActiveText()
		for i, match := range ex.All(text) {
			res.Blocks++
			problems := lintBlock(sch, match.Body(text))
			if len(problems) == 0 {
				res.Clean++
				continue
			}
			for _, p := range problems {
				res.Findings = append(res.Findings, LintFinding{
					MessageID: m.ID,
					Block:     i,
					Problem:   p,
				})
			}
		}
	}
	return res, nil
}

func lintBlock(sch *jsonschema.Schema, body string) []string {
	om, err := sim.Decode(body)
	if err != nil {
		if stderrors.Is(err, sim.ErrNotObject) {
			return []string{"top level is not a JSON object"}
		}
		return []string{fmt.Sprintf("invalid JSON: %v", err)}
	}

	doc, err := sim.Normalize(om)
	if err != nil {
		return []string{fmt.Sprintf("cannot normalize: %v", err)}
	}

	var problems []string
	for _, skipped := range doc.Skipped {
		problems = append(problems, fmt.Sprintf("entry %s is not a character record", skipped))
	}

	canonical, err := doc.MarshalCanonical()
	if err != nil {
		return append(problems, fmt.Sprintf("cannot serialize: %v", err))
	}
	return append(problems, prompt.Validate(sch, canonical)...)
}
