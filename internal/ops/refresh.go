package ops

import (
	"github.com/simtrack/simtrack/internal/db"
	"github.com/simtrack/simtrack/internal/place"
)

// RefreshResult summarizes a whole-chat re-render.
type RefreshResult struct {
	ChatID   string          `json:"chat_id"`
	Disabled bool            `json:"disabled"`
	Messages int             `json:"messages"`
	Rendered int             `json:"rendered"`
	Results  []*RenderResult `json:"results,omitempty"`
}

// RefreshChat re-renders every message of a chat in order. Side panels
// are cleared up front so a position change, or a chat that lost its
// last block, never leaves a stale panel behind; for panel positions the
// newest block-bearing message ends up owning the panel.
func RefreshChat(env *Env, inj *place.Injector, chatID string) (*RefreshResult, error) {
	settings, err := env.loadSettings()
	if err != nil {
		return nil, err
	}
	if _, err := db.GetChat(env.DB, chatID); err != nil {
		return nil, err
	}

	res := &RefreshResult{ChatID: chatID}
	if !settings.Enabled {
		inj.Teardown()
		res.Disabled = true
		return res, nil
	}

	msgs, err := db.ListMessages(env.DB, chatID)
	if err != nil {
		return nil, err
	}

	inj.ClearPanels()

	res.Messages = len(msgs)
	for _, m := range msgs {
		r := renderMessage(env, inj, m, settings)
		res.Results = append(res.Results, r)
		if r.Placed {
			res.Rendered++
		}
	}
	return res, nil
}
