package db

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/simtrack/simtrack/internal/chat"
	"github.com/simtrack/simtrack/internal/errors"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.SimError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// InsertChat stores a new chat.
func InsertChat(db *sql.DB, c *chat.Chat) error {
	query := `
		INSERT INTO chats (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := db.Exec(query, c.ID, c.Title, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetChat retrieves a chat by id.
func GetChat(db *sql.DB, id string) (*chat.Chat, error) {
	query := `SELECT id, title, created_at, updated_at FROM chats WHERE id = ?`

	var c chat.Chat
	err := db.QueryRow(query, id).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("chat", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &c, nil
}

// ListChats returns every chat, most recently updated first.
func ListChats(db *sql.DB) ([]*chat.Chat, error) {
	query := `SELECT id, title, created_at, updated_at FROM chats ORDER BY updated_at DESC`

	rows, err := db.Query(query)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var chats []*chat.Chat
	for rows.Next() {
		var c chat.Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		chats = append(chats, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return chats, nil
}

// TouchChat bumps a chat's updated_at.
func TouchChat(db *sql.DB, id string) error {
	result, err := db.Exec(`UPDATE chats SET updated_at = ? WHERE id = ?`, time.Now().Unix(), id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("chat", id)
	}
	return nil
}

// DeleteChat removes a chat; messages cascade.
func DeleteChat(db *sql.DB, id string) error {
	result, err := db.Exec(`DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("chat", id)
	}
	return nil
}

// InsertMessage stores a new message.
func InsertMessage(db *sql.DB, m *chat.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	swipesJSON, err := toSwipesJSON(m.Swipes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (
			id, chat_id, author, is_user, is_system,
			text, swipes_json, active_swipe, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.Exec(query,
		m.ID, m.ChatID, m.Author, boolToInt(m.IsUser), boolToInt(m.IsSystem),
		m.Text, swipesJSON, m.ActiveSwipe, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetMessage retrieves a message by id.
func GetMessage(db *sql.DB, id string) (*chat.Message, error) {
	query := `
		SELECT id, chat_id, author, is_user, is_system,
			text, swipes_json, active_swipe, created_at, updated_at
		FROM messages
		WHERE id = ?
	`
	m, err := scanMessage(db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("message", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return m, nil
}

// ListMessages returns a chat's messages in conversation order.
func ListMessages(db *sql.DB, chatID string) ([]*chat.Message, error) {
	query := `
		SELECT id, chat_id, author, is_user, is_system,
			text, swipes_json, active_swipe, created_at, updated_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at, id
	`
	rows, err := db.Query(query, chatID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var messages []*chat.Message
	for rows.Next() {
		m, err := scanMessageRows(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return messages, nil
}

// UpdateMessageText rewrites a message's text (and the active swipe
// variant when swipes exist). Sets updated_at.
func UpdateMessageText(db *sql.DB, id, text string) error {
	m, err := GetMessage(db, id)
	if err != nil {
		return err
	}

	m.Text = text
	if len(m.Swipes) > 0 && m.ActiveSwipe >= 0 && m.ActiveSwipe < len(m.Swipes) {
		m.Swipes[m.ActiveSwipe] = text
	}
	swipesJSON, err := toSwipesJSON(m.Swipes)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	query := `
		UPDATE messages
		SET text = ?, swipes_json = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := db.Exec(query, m.Text, swipesJSON, now, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("message", id)
	}
	return nil
}

// SwitchSwipe activates a different swipe variant and mirrors it into
// text.
func SwitchSwipe(db *sql.DB, id string, index int) error {
	m, err := GetMessage(db, id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(m.Swipes) {
		return errors.NewInvalidRequest("swipe index out of range")
	}

	now := time.Now().Unix()
	query := `
		UPDATE messages
		SET text = ?, active_swipe = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := db.Exec(query, m.Swipes[index], index, now, id); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// AddSwipe appends a new variant and makes it active.
func AddSwipe(db *sql.DB, id, text string) error {
	m, err := GetMessage(db, id)
	if err != nil {
		return err
	}
	if len(m.Swipes) == 0 {
		// First swipe seeds the list with the current text.
		m.Swipes = []string{m.Text}
	}
	m.Swipes = append(m.Swipes, text)
	swipesJSON, err := toSwipesJSON(m.Swipes)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	query := `
		UPDATE messages
		SET text = ?, swipes_json = ?, active_swipe = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := db.Exec(query, text, swipesJSON, len(m.Swipes)-1, now, id); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteMessage removes one message.
func DeleteMessage(db *sql.DB, id string) error {
	result, err := db.Exec(`DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("message", id)
	}
	return nil
}

// GetSetting reads one settings value; ok=false when the key is unset.
func GetSetting(db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewInternal(err)
	}
	return value, true, nil
}

// PutSetting upserts one settings value.
func PutSetting(db *sql.DB, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := db.Exec(query, key, value, time.Now().Unix()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row *sql.Row) (*chat.Message, error) {
	return scanMessageFrom(row)
}

func scanMessageRows(rows *sql.Rows) (*chat.Message, error) {
	return scanMessageFrom(rows)
}

func scanMessageFrom(row rowScanner) (*chat.Message, error) {
	var (
		m          chat.Message
		isUser     int
		isSystem   int
		swipesJSON sql.NullString
	)

	err := row.Scan(
		&m.ID, &m.ChatID, &m.Author, &isUser, &isSystem,
		&m.Text, &swipesJSON, &m.ActiveSwipe, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.IsUser = isUser != 0
	m.IsSystem = isSystem != 0
	if swipesJSON.Valid && swipesJSON.String != "" {
		if err := json.Unmarshal([]byte(swipesJSON.String), &m.Swipes); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func toSwipesJSON(swipes []string) (sql.NullString, error) {
	if len(swipes) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(swipes)
	if err != nil {
		return sql.NullString{}, errors.NewInternal(err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
