package ops

import (
	stderrors "errors"
	"strings"

	"go.uber.org/zap"

	"github.com/simtrack/simtrack/internal/block"
	"github.com/simtrack/simtrack/internal/cards"
	"github.com/simtrack/simtrack/internal/chat"
	"github.com/simtrack/simtrack/internal/db"
	"github.com/simtrack/simtrack/internal/errors"
	"github.com/simtrack/simtrack/internal/place"
	"github.com/simtrack/simtrack/internal/render"
	"github.com/simtrack/simtrack/internal/session"
	"github.com/simtrack/simtrack/internal/sim"
)

// RenderResult reports what one message's render pass did. Soft
// failures (bad block, no block, missing anchor) land here, not in the
// operation error.
type RenderResult struct {
	MessageID  string `json:"message_id"`
	Placed     bool   `json:"placed"`
	Characters int    `json:"characters"`
	State      string `json:"state"`
	// ErrorText is the inline marker text when the block was unusable.
	ErrorText string   `json:"error_text,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// RenderMessage runs one message through the pipeline and places the
// fragment into the page. The prior fragment is always torn down first;
// a message without a block simply ends with no card.
func RenderMessage(env *Env, inj *place.Injector, messageID string) (*RenderResult, error) {
	settings, err := env.loadSettings()
	if err != nil {
		return nil, err
	}
	if !settings.Enabled {
		return &RenderResult{MessageID: messageID, State: inj.State(messageID).String()}, nil
	}

	msg, err := db.GetMessage(env.DB, messageID)
	if err != nil {
		return nil, err
	}
	return renderMessage(env, inj, msg, settings), nil
}

// renderMessage is the shared per-message pass RefreshChat reuses with
// settings loaded once.
func renderMessage(env *Env, inj *place.Injector, msg *chat.Message, settings session.Settings) *RenderResult {
	res := &RenderResult{MessageID: msg.ID}
	ex := block.NewExtractor(settings.CodeBlockTag)

	body, ok := ex.First(msg.ActiveText())
	if !ok {
		// No block is not an error; it still tears down a stale card.
		inj.Fail(msg.ID)
		res.State = inj.State(msg.ID).String()
		return res
	}

	inj.Begin(msg.ID)

	om, err := sim.Decode(body)
	if err != nil {
		inj.Fail(msg.ID)
		if stderrors.Is(err, sim.ErrNotObject) {
			res.ErrorText = "sim data must be a JSON object"
		} else {
			res.ErrorText = "sim data is not valid JSON"
		}
		inj.InsertErrorMarker(msg.ID, res.ErrorText)
		env.Logger.Warn("sim block rejected",
			zap.String("message_id", msg.ID),
			zap.String("stage", "decode"),
			zap.Error(err))
		res.State = inj.State(msg.ID).String()
		return res
	}

	doc, err := sim.Normalize(om)
	if err != nil {
		inj.Fail(msg.ID)
		res.ErrorText = "sim data could not be normalized"
		inj.InsertErrorMarker(msg.ID, res.ErrorText)
		env.Logger.Warn("sim block rejected",
			zap.String("message_id", msg.ID),
			zap.String("stage", "normalize"),
			zap.Error(err))
		res.State = inj.State(msg.ID).String()
		return res
	}
	for _, skipped := range doc.Skipped {
		env.Logger.Warn("sim entry skipped",
			zap.String("message_id", msg.ID),
			zap.String("entry", skipped))
	}

	// The parse succeeded: this is the capture point for the session's
	// last known sim JSON, whether or not the page shows the card.
	env.Tracker.Capture(body)

	batch := cards.BuildBatch(doc, cards.Settings{
		DefaultBackground: settings.DefaultBgColor,
		ShowThought:       settings.ShowThoughtBubble,
	})
	res.Characters = len(batch.Characters)
	if len(batch.Characters) == 0 {
		inj.Fail(msg.ID)
		res.State = inj.State(msg.ID).String()
		return res
	}

	res.Warnings = env.Engine.Select(settings.Template, settings.CustomTemplate)
	for _, w := range res.Warnings {
		env.Logger.Warn("template fallback",
			zap.String("message_id", msg.ID),
			zap.String("stage", "compile"),
			zap.String("warning", w))
	}

	inner, err := env.Engine.RenderCards(batch)
	if err != nil {
		inj.Fail(msg.ID)
		res.ErrorText = "cards could not be rendered"
		inj.InsertErrorMarker(msg.ID, res.ErrorText)
		env.Logger.Error("render failed",
			zap.String("message_id", msg.ID),
			zap.String("stage", "render"),
			zap.Error(err))
		res.State = inj.State(msg.ID).String()
		return res
	}

	fragment, err := render.Wrap(msg.ID, inner)
	if err != nil {
		inj.Fail(msg.ID)
		env.Logger.Error("render failed",
			zap.String("message_id", msg.ID),
			zap.String("stage", "wrap"),
			zap.Error(err))
		res.State = inj.State(msg.ID).String()
		return res
	}

	res.Placed = inj.Complete(msg.ID, fragment, place.ParsePosition(settings.Position))
	res.State = inj.State(msg.ID).String()
	return res
}

// RenderFragmentInput renders sim data to HTML without a page: either a
// raw block body, or a message whose block is extracted first.
type RenderFragmentInput struct {
	MessageID string `json:"message_id,omitempty"`
	Body      string `json:"body,omitempty"`
}

// RenderFragmentOutput carries the wrapper-rendered HTML fragment.
type RenderFragmentOutput struct {
	HTML       string   `json:"html"`
	Characters int      `json:"characters"`
	Tabbed     bool     `json:"tabbed"`
	Format     string   `json:"format"`
	Warnings   []string `json:"warnings,omitempty"`
}

// RenderFragment runs the pipeline up to the fragment, skipping
// placement. The CLI and MCP surfaces use it to preview cards.
func RenderFragment(env *Env, input RenderFragmentInput) (*RenderFragmentOutput, error) {
	settings, err := env.loadSettings()
	if err != nil {
		return nil, err
	}

	body := input.Body
	messageID := input.MessageID
	if body == "" {
		if messageID == "" {
			return nil, errors.NewInvalidRequest("either message_id or body is required")
		}
		msg, err := db.GetMessage(env.DB, messageID)
		if err != nil {
			return nil, err
		}
		b, ok := block.NewExtractor(settings.CodeBlockTag).First(msg.ActiveText())
		if !ok {
			return nil, errors.NewNotFound("sim block", messageID)
		}
		body = b
	}

	om, err := sim.Decode(body)
	if err != nil {
		if stderrors.Is(err, sim.ErrNotObject) {
			return nil, errors.NewBadShape(messageID, shapeOf(err))
		}
		return nil, errors.NewBadBlock(messageID, err)
	}
	doc, err := sim.Normalize(om)
	if err != nil {
		return nil, errors.NewBadShape(messageID, shapeOf(err))
	}

	batch := cards.BuildBatch(doc, cards.Settings{
		DefaultBackground: settings.DefaultBgColor,
		ShowThought:       settings.ShowThoughtBubble,
	})
	warnings := env.Engine.Select(settings.Template, settings.CustomTemplate)

	inner, err := env.Engine.RenderCards(batch)
	if err != nil {
		return nil, err
	}
	html := ""
	if inner != "" {
		id := messageID
		if id == "" {
			id = "preview"
		}
		html, err = render.Wrap(id, inner)
		if err != nil {
			return nil, err
		}
	}

	env.Tracker.Capture(body)
	return &RenderFragmentOutput{
		HTML:       html,
		Characters: len(batch.Characters),
		Tabbed:     env.Engine.Tabbed(),
		Format:     doc.Format.String(),
		Warnings:   warnings,
	}, nil
}

// shapeOf pulls the "top level is X" description out of a decode error
// for the structured shape error.
func shapeOf(err error) string {
	s := err.Error()
	if i := strings.Index(s, "top level is "); i >= 0 {
		rest := s[i+len("top level is "):]
		if j := strings.IndexByte(rest, ':'); j >= 0 {
			return rest[:j]
		}
		return rest
	}
	return "a non-object value"
}
