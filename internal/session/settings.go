// Package session holds per-session state that is not chat history: the
// persisted extension settings, the last captured sim JSON, and the
// lifecycle event bus the pipeline subscribes to.
package session

import (
	"database/sql"
	"encoding/json"

	"github.com/simtrack/simtrack/internal/db"
	"github.com/simtrack/simtrack/internal/errors"
)

// settingsKey is the settings-table key the whole blob lives under.
const settingsKey = "settings"

// CustomField is one user-defined stat the prompt documents for the
// generator.
type CustomField struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// Settings is the extension configuration surface. It persists as a
// single JSON blob; unknown keys from older versions are dropped on the
// next save.
type Settings struct {
	Enabled           bool          `json:"enabled"`
	CodeBlockTag      string        `json:"code_block_tag"`
	DefaultBgColor    string        `json:"default_bg_color"`
	ShowThoughtBubble bool          `json:"show_thought_bubble"`
	Template          string        `json:"template"`
	CustomTemplate    string        `json:"custom_template,omitempty"`
	Position          string        `json:"position"`
	HideRawBlocks     bool          `json:"hide_raw_blocks"`
	CustomFields      []CustomField `json:"custom_fields,omitempty"`
}

// DefaultSettings returns the out-of-the-box configuration.
func DefaultSettings() Settings {
	return Settings{
		Enabled:           true,
		CodeBlockTag:      "sim",
		DefaultBgColor:    "#6a5acd",
		ShowThoughtBubble: true,
		Template:          "default",
		Position:          "BOTTOM",
		HideRawBlocks:     true,
	}
}

// LoadSettings reads the persisted settings, layering the stored blob
// over defaults so new keys pick up their default on old stores.
func LoadSettings(d *sql.DB) (Settings, error) {
	s := DefaultSettings()

	value, ok, err := db.GetSetting(d, settingsKey)
	if err != nil {
		return s, err
	}
	if !ok {
		return s, nil
	}
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return DefaultSettings(), errors.NewInternal(err)
	}
	if s.CodeBlockTag == "" {
		s.CodeBlockTag = "sim"
	}
	if s.Position == "" {
		s.Position = "BOTTOM"
	}
	if s.Template == "" {
		s.Template = "default"
	}
	return s, nil
}

// SaveSettings persists the whole blob.
func SaveSettings(d *sql.DB, s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.NewInternal(err)
	}
	return db.PutSetting(d, settingsKey, string(data))
}
