package ops

import (
	"go.uber.org/zap"

	"github.com/simtrack/simtrack/internal/block"
	"github.com/simtrack/simtrack/internal/chat"
	"github.com/simtrack/simtrack/internal/db"
	"github.com/simtrack/simtrack/internal/errors"
)

// Generation reasons the prompt filter is invoked with. Swipe and
// regenerate are about to replace the newest block, so they refresh the
// tracker from the rest of the history.
const (
	ReasonGenerate   = "generate"
	ReasonSwipe      = "swipe"
	ReasonRegenerate = "regenerate"
)

// FilterResult reports what the context filter did to an outgoing list.
type FilterResult struct {
	Kept          int  `json:"kept"`
	Stripped      int  `json:"stripped"`
	BlocksRemoved int  `json:"blocks_removed"`
	Recaptured    bool `json:"recaptured"`
}

// FilterPrompt edits an outgoing message list in place: sim blocks stay
// only in the newest block-bearing messages, up to the configured
// context window, and every block in older messages is removed
// entirely. The stored chat history is never touched; callers pass the
// copies they are about to send.
func FilterPrompt(env *Env, msgs []*chat.Message, reason string) (*FilterResult, error) {
	settings, err := env.loadSettings()
	if err != nil {
		return nil, err
	}

	res := &FilterResult{}
	if !settings.Enabled {
		return res, nil
	}

	ex := block.NewExtractor(settings.CodeBlockTag)
	if reason == ReasonSwipe || reason == ReasonRegenerate {
		res.Recaptured = recaptureFrom(env, ex, msgs)
	}

	keep := env.Config.KeepContextBlocks
	seen := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		text := msgs[i].ActiveText()
		if !ex.Contains(text) {
			continue
		}
		seen++
		if seen <= keep {
			res.Kept++
			continue
		}

		stripped, n := ex.Strip(text)
		setOutgoingText(msgs[i], stripped)
		res.Stripped++
		res.BlocksRemoved += n
	}

	env.Logger.Debug("prompt filtered",
		zap.String("reason", reason),
		zap.Int("kept", res.Kept),
		zap.Int("stripped", res.Stripped),
		zap.Int("blocks_removed", res.BlocksRemoved))
	return res, nil
}

// OutgoingMessage is one entry of a filtered outgoing list.
type OutgoingMessage struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// FilterChatOutput pairs the filter counts with the outgoing texts.
type FilterChatOutput struct {
	FilterResult
	ChatID   string            `json:"chat_id"`
	Outgoing []OutgoingMessage `json:"outgoing"`
}

// FilterChat previews the context filter against a stored chat: messages
// are loaded as fresh copies, filtered, and returned. Nothing is written
// back.
func FilterChat(env *Env, chatID, reason string) (*FilterChatOutput, error) {
	if chatID == "" {
		return nil, errors.NewInvalidRequest("chat_id is required")
	}
	switch reason {
	case "":
		reason = ReasonGenerate
	case ReasonGenerate, ReasonSwipe, ReasonRegenerate:
	default:
		return nil, errors.NewInvalidRequest("reason must be one of generate, swipe, regenerate")
	}

	if _, err := db.GetChat(env.DB, chatID); err != nil {
		return nil, err
	}
	msgs, err := db.ListMessages(env.DB, chatID)
	if err != nil {
		return nil, err
	}

	res, err := FilterPrompt(env, msgs, reason)
	if err != nil {
		return nil, err
	}

	out := &FilterChatOutput{FilterResult: *res, ChatID: chatID}
	for _, m := range msgs {
		out.Outgoing = append(out.Outgoing, OutgoingMessage{Author: m.Author, Text: m.ActiveText()})
	}
	return out, nil
}

// recaptureFrom refreshes the tracker from the newest block-bearing
// message before the last one; the last message is the one whose block
// the pending generation replaces. With no earlier block the tracker is
// cleared rather than left holding doomed data.
func recaptureFrom(env *Env, ex *block.Extractor, msgs []*chat.Message) bool {
	for i := len(msgs) - 2; i >= 0; i-- {
		if body, ok := ex.First(msgs[i].ActiveText()); ok {
			env.Tracker.Capture(body)
			return true
		}
	}
	env.Tracker.Clear()
	return false
}

// setOutgoingText rewrites the effective text of an outgoing copy,
// keeping the active swipe slot in step the way the store does.
func setOutgoingText(m *chat.Message, text string) {
	m.Text = text
	if len(m.Swipes) > 0 && m.ActiveSwipe >= 0 && m.ActiveSwipe < len(m.Swipes) {
		m.Swipes[m.ActiveSwipe] = text
	}
}
