// Package chat defines the message records the pipeline reads. The
// store keeps whole chats; rendering always re-parses message text, so
// these records carry no derived sim state.
package chat

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/simtrack/simtrack/internal/errors"
)

// Chat is one conversation.
type Chat struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Message is one chat message. Text always holds the active variant;
// Swipes keeps every generated variant when the host supports swiping,
// with ActiveSwipe indexing the one Text mirrors.
type Message struct {
	ID          string   `json:"id"`
	ChatID      string   `json:"chat_id"`
	Author      string   `json:"author"`
	IsUser      bool     `json:"is_user"`
	IsSystem    bool     `json:"is_system"`
	Text        string   `json:"text"`
	Swipes      []string `json:"swipes,omitempty"`
	ActiveSwipe int      `json:"active_swipe"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
}

// ActiveText returns the swipe variant the message currently shows.
func (m *Message) ActiveText() string {
	if len(m.Swipes) > 0 && m.ActiveSwipe >= 0 && m.ActiveSwipe < len(m.Swipes) {
		return m.Swipes[m.ActiveSwipe]
	}
	return m.Text
}

// Validate checks the fields the store requires.
func (m *Message) Validate() error {
	if m.ID == "" {
		return errors.NewInvalidRequest("message id is required")
	}
	if m.ChatID == "" {
		return errors.NewInvalidRequest("message chat_id is required")
	}
	if m.Author == "" {
		return errors.NewInvalidRequest("message author is required")
	}
	if len(m.Swipes) > 0 && (m.ActiveSwipe < 0 || m.ActiveSwipe >= len(m.Swipes)) {
		return errors.NewInvalidRequest(fmt.Sprintf("active_swipe %d out of range", m.ActiveSwipe))
	}
	return nil
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID generates a ULID for chats and messages. The shared monotonic
// entropy keeps ids strictly increasing even within one millisecond, so
// bulk-imported messages sort in insert order.
func NewID() (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate ULID: %w", err)
	}
	return id.String(), nil
}
