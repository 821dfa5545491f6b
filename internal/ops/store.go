package ops

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/simtrack/simtrack/internal/chat"
	"github.com/simtrack/simtrack/internal/db"
	"github.com/simtrack/simtrack/internal/errors"
	"github.com/simtrack/simtrack/internal/session"
)

// chatLine is one line of a JSONL chat log. The header line carries
// user_name/character_name and no "mes" key; every other line is a
// message. Mes is a pointer so headers are detectable.
type chatLine struct {
	Name     string   `json:"name,omitempty"`
	IsUser   bool     `json:"is_user,omitempty"`
	IsSystem bool     `json:"is_system,omitempty"`
	SendDate any      `json:"send_date,omitempty"`
	Mes      *string  `json:"mes,omitempty"`
	Swipes   []string `json:"swipes,omitempty"`
	SwipeID  int      `json:"swipe_id,omitempty"`

	UserName      string `json:"user_name,omitempty"`
	CharacterName string `json:"character_name,omitempty"`
	CreateDate    any    `json:"create_date,omitempty"`
}

// ImportError is one unusable line of an import file.
type ImportError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportChatInput contains parameters for ImportChat.
type ImportChatInput struct {
	Path  string // required
	Title string // optional, default from the header or the filename
}

// ImportChatOutput reports what an import created.
type ImportChatOutput struct {
	ChatID   string        `json:"chat_id"`
	Title    string        `json:"title"`
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// ImportChat reads a JSONL chat log into a new chat. Unparseable lines
// are skipped and reported; they never abort the rest of the file.
func ImportChat(env *Env, input ImportChatInput) (*ImportChatOutput, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	file, err := os.Open(input.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("import file", input.Path)
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	out := &ImportChatOutput{Title: input.Title}
	var lines []chatLine

	scanner := bufio.NewScanner(file)
	// Chat messages routinely blow past the default 64K token limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var line chatLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			out.Skipped++
			out.Errors = append(out.Errors, ImportError{
				Line:    lineNum,
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if line.Mes == nil {
			// Header line; salvage a title if none was given.
			if out.Title == "" && line.CharacterName != "" {
				out.Title = line.CharacterName
			}
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read import file: %w", err))
	}

	if out.Title == "" {
		base := filepath.Base(input.Path)
		out.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	chatID, err := chat.NewID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().Unix()
	if err := db.InsertChat(env.DB, &chat.Chat{
		ID:        chatID,
		Title:     out.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, err
	}
	out.ChatID = chatID

	for i, line := range lines {
		id, err := chat.NewID()
		if err != nil {
			return nil, errors.NewInternal(err)
		}

		created := now + int64(i)
		if ts, err := cast.ToInt64E(line.SendDate); err == nil && ts > 0 {
			created = ts
		}

		m := &chat.Message{
			ID:          id,
			ChatID:      chatID,
			Author:      line.Name,
			IsUser:      line.IsUser,
			IsSystem:    line.IsSystem,
			Text:        *line.Mes,
			Swipes:      line.Swipes,
			ActiveSwipe: line.SwipeID,
			CreatedAt:   created,
			UpdatedAt:   created,
		}
		if m.Author == "" {
			m.Author = "unknown"
		}
		if len(m.Swipes) > 0 && (m.ActiveSwipe < 0 || m.ActiveSwipe >= len(m.Swipes)) {
			m.ActiveSwipe = 0
		}
		if err := db.InsertMessage(env.DB, m); err != nil {
			return nil, err
		}
		out.Imported++
	}

	env.Bus.Emit(session.EventChatChanged, session.Payload{ChatID: chatID})
	return out, nil
}

// CreateChat makes an empty chat.
func CreateChat(env *Env, title string) (*chat.Chat, error) {
	if title == "" {
		return nil, errors.NewInvalidRequest("title is required")
	}
	id, err := chat.NewID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().Unix()
	c := &chat.Chat{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}
	if err := db.InsertChat(env.DB, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AppendInput contains parameters for AppendMessage.
type AppendInput struct {
	ChatID   string // required
	Author   string // required
	Text     string
	IsUser   bool
	IsSystem bool
}

// AppendMessage adds a message to the end of a chat and announces the
// change.
func AppendMessage(env *Env, input AppendInput) (*chat.Message, error) {
	if input.ChatID == "" {
		return nil, errors.NewInvalidRequest("chat_id is required")
	}
	if _, err := db.GetChat(env.DB, input.ChatID); err != nil {
		return nil, err
	}

	id, err := chat.NewID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().Unix()
	m := &chat.Message{
		ID:        id,
		ChatID:    input.ChatID,
		Author:    input.Author,
		IsUser:    input.IsUser,
		IsSystem:  input.IsSystem,
		Text:      input.Text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := db.InsertMessage(env.DB, m); err != nil {
		return nil, err
	}
	if err := db.TouchChat(env.DB, input.ChatID); err != nil {
		return nil, err
	}

	env.Bus.Emit(session.EventChatChanged, session.Payload{ChatID: input.ChatID, MessageID: id})
	return m, nil
}

// EditMessage rewrites a message's active text and announces the edit
// so the card re-renders.
func EditMessage(env *Env, messageID, text string) (*chat.Message, error) {
	m, err := db.GetMessage(env.DB, messageID)
	if err != nil {
		return nil, err
	}
	if err := db.UpdateMessageText(env.DB, messageID, text); err != nil {
		return nil, err
	}
	if err := db.TouchChat(env.DB, m.ChatID); err != nil {
		return nil, err
	}
	env.Bus.Emit(session.EventMessageEdited, session.Payload{ChatID: m.ChatID, MessageID: messageID})
	return db.GetMessage(env.DB, messageID)
}

// SwipeMessage appends a new swipe variant, activates it, and announces
// the swipe.
func SwipeMessage(env *Env, messageID, text string) (*chat.Message, error) {
	m, err := db.GetMessage(env.DB, messageID)
	if err != nil {
		return nil, err
	}
	if err := db.AddSwipe(env.DB, messageID, text); err != nil {
		return nil, err
	}
	env.Bus.Emit(session.EventMessageSwiped, session.Payload{ChatID: m.ChatID, MessageID: messageID})
	return db.GetMessage(env.DB, messageID)
}

// SwitchSwipe activates an existing swipe variant by index and announces
// the swipe, so cards re-render against the newly active text.
func SwitchSwipe(env *Env, messageID string, index int) (*chat.Message, error) {
	m, err := db.GetMessage(env.DB, messageID)
	if err != nil {
		return nil, err
	}
	if err := db.SwitchSwipe(env.DB, messageID, index); err != nil {
		return nil, err
	}
	env.Bus.Emit(session.EventMessageSwiped, session.Payload{ChatID: m.ChatID, MessageID: messageID})
	return db.GetMessage(env.DB, messageID)
}

// ExportChatInput contains parameters for ExportChat.
type ExportChatInput struct {
	ChatID string // required
	Path   string // optional, default <base>/exports/<title>-<timestamp>.jsonl
}

// ExportChatOutput reports where the export landed.
type ExportChatOutput struct {
	Path     string `json:"path"`
	Messages int    `json:"messages"`
}

// ExportChat writes a chat as JSONL: one header line, then one line per
// message. The file is written to a temp path and renamed into place so
// a failed export never truncates an older one.
func ExportChat(env *Env, input ExportChatInput) (*ExportChatOutput, error) {
	if input.ChatID == "" {
		return nil, errors.NewInvalidRequest("chat_id is required")
	}
	c, err := db.GetChat(env.DB, input.ChatID)
	if err != nil {
		return nil, err
	}
	msgs, err := db.ListMessages(env.DB, input.ChatID)
	if err != nil {
		return nil, err
	}

	path := input.Path
	if path == "" {
		path, err = env.defaultExportPath(c.Title)
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.jsonl")
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriter(tmp)
	header := chatLine{CharacterName: c.Title, UserName: "User", CreateDate: c.CreatedAt}
	if err := writeJSONLine(w, header); err != nil {
		return nil, err
	}
	for _, m := range msgs {
		mes := m.Text
		line := chatLine{
			Name:     m.Author,
			IsUser:   m.IsUser,
			IsSystem: m.IsSystem,
			SendDate: m.CreatedAt,
			Mes:      &mes,
			Swipes:   m.Swipes,
			SwipeID:  m.ActiveSwipe,
		}
		if err := writeJSONLine(w, line); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}
	success = true

	return &ExportChatOutput{Path: path, Messages: len(msgs)}, nil
}

func writeJSONLine(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewInternal(err)
	}
	if _, err := w.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func (env *Env) defaultExportPath(title string) (string, error) {
	base := env.BaseDir
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
		}
		base = filepath.Join(home, ".simtrack")
	}
	name := sanitizeForFilename(title)
	if name == "" {
		name = "chat"
	}
	stamp := time.Now().Format("2006-01-02T150405")
	return filepath.Join(base, "exports", fmt.Sprintf("%s-%s.jsonl", name, stamp)), nil
}

// sanitizeForFilename keeps letters, digits, dash and underscore;
// everything else becomes a dash so titles cannot smuggle separators
// into the path.
func sanitizeForFilename(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
