package ops

import (
	"go.uber.org/zap"

	"github.com/simtrack/simtrack/internal/block"
	"github.com/simtrack/simtrack/internal/db"
	"github.com/simtrack/simtrack/internal/session"
	"github.com/simtrack/simtrack/internal/sim"
)

// MessageMigration is the per-message outcome of a bulk migration.
type MessageMigration struct {
	MessageID        string   `json:"message_id"`
	Blocks           int      `json:"blocks"`
	Migrated         int      `json:"migrated"`
	AlreadyCanonical int      `json:"already_canonical"`
	Failed           int      `json:"failed"`
	Errors           []string `json:"errors,omitempty"`
}

// MigrateResult aggregates a chat-wide migration run.
type MigrateResult struct {
	ChatID           string `json:"chat_id"`
	Messages         int    `json:"messages"`
	MessagesChanged  int    `json:"messages_changed"`
	Blocks           int    `json:"blocks"`
	Migrated         int    `json:"migrated"`
	AlreadyCanonical int    `json:"already_canonical"`
	Failed           int    `json:"failed"`

	// NothingToDo is true when the run changed nothing and nothing
	// failed: no blocks at all, or every block already canonical.
	NothingToDo bool               `json:"nothing_to_do"`
	PerMessage  []MessageMigration `json:"per_message,omitempty"`
}

// MigrateChat rewrites every legacy sim block in a chat to the
// canonical envelope, in place, leaving surrounding message text
// untouched. Blocks that are already canonical are left byte-identical,
// so re-running is a no-op. A bad block is counted and logged; it never
// aborts the batch.
func MigrateChat(env *Env, chatID string) (*MigrateResult, error) {
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

	ex := block.NewExtractor(settings.CodeBlockTag)
	res := &MigrateResult{ChatID: chatID, Messages: len(msgs)}

	for _, m := range msgs {
		text := m.ActiveText()
		matches := ex.All(text)
		if len(matches) == 0 {
			continue
		}

		mm := MessageMigration{MessageID: m.ID, Blocks: len(matches)}

		// Rewrite back to front so earlier match offsets stay valid.
		for i := len(matches) - 1; i >= 0; i-- {
			match := matches[i]
			out, changed, err := sim.MigrateBody(match.Body(text))
			if err != nil {
				mm.Failed++
				mm.Errors = append(mm.Errors, err.Error())
				env.Logger.Warn("block migration failed",
					zap.String("message_id", m.ID),
					zap.String("stage", "migrate"),
					zap.Int("block", i),
					zap.Error(err))
				continue
			}
			if !changed {
				mm.AlreadyCanonical++
				continue
			}
			text = block.Rewrite(text, match, out)
			mm.Migrated++
		}

		if mm.Migrated > 0 {
			if err := db.UpdateMessageText(env.DB, m.ID, text); err != nil {
				return nil, err
			}
			res.MessagesChanged++
		}

		res.Blocks += mm.Blocks
		res.Migrated += mm.Migrated
		res.AlreadyCanonical += mm.AlreadyCanonical
		res.Failed += mm.Failed
		res.PerMessage = append(res.PerMessage, mm)
	}

	res.NothingToDo = res.Migrated == 0 && res.Failed == 0
	if res.MessagesChanged > 0 {
		env.Bus.Emit(session.EventChatChanged, session.Payload{ChatID: chatID})
	}

	env.Logger.Info("migration finished",
		zap.String("chat_id", chatID),
		zap.Int("migrated", res.Migrated),
		zap.Int("already_canonical", res.AlreadyCanonical),
		zap.Int("failed", res.Failed))
	return res, nil
}
