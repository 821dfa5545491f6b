package ops

import (
	"fmt"
	"strings"

	"github.com/simtrack/simtrack/internal/errors"
	"github.com/simtrack/simtrack/internal/session"
)

// GetSettings returns the persisted extension settings, defaults
// layered under whatever the store holds.
func GetSettings(env *Env) (session.Settings, error) {
	return env.loadSettings()
}

// UpdateSettings validates and persists a full settings value, then
// announces the change so live surfaces re-render.
func UpdateSettings(env *Env, s session.Settings) (session.Settings, error) {
	normalized, err := normalizeSettings(s)
	if err != nil {
		return session.Settings{}, err
	}
	if err := session.SaveSettings(env.DB, normalized); err != nil {
		return session.Settings{}, err
	}
	env.Bus.Emit(session.EventSettingsChanged, session.Payload{})
	return normalized, nil
}

var validPositions = map[string]bool{
	"ABOVE":  true,
	"BOTTOM": true,
	"LEFT":   true,
	"RIGHT":  true,
	"MACRO":  true,
}

// normalizeSettings backfills empty fields with defaults and rejects
// values the pipeline cannot work with.
func normalizeSettings(s session.Settings) (session.Settings, error) {
	def := session.DefaultSettings()

	s.CodeBlockTag = strings.TrimSpace(s.CodeBlockTag)
	if s.CodeBlockTag == "" {
		s.CodeBlockTag = def.CodeBlockTag
	}
	if strings.ContainsAny(s.CodeBlockTag, " \t`") {
		return session.Settings{}, errInvalidSetting("code_block_tag", "must be a single word without backticks")
	}

	if s.DefaultBgColor == "" {
		s.DefaultBgColor = def.DefaultBgColor
	}

	if s.Template == "" {
		s.Template = def.Template
	}

	s.Position = strings.ToUpper(strings.TrimSpace(s.Position))
	if s.Position == "" {
		s.Position = def.Position
	}
	if !validPositions[s.Position] {
		return session.Settings{}, errInvalidSetting("position", "must be one of ABOVE, BOTTOM, LEFT, RIGHT, MACRO")
	}

	fields := s.CustomFields[:0]
	for _, f := range s.CustomFields {
		f.Key = strings.TrimSpace(f.Key)
		if f.Key == "" {
			continue
		}
		fields = append(fields, f)
	}
	s.CustomFields = fields
	return s, nil
}

func errInvalidSetting(key, reason string) error {
	return errors.NewInvalidRequest(fmt.Sprintf("setting %s: %s", key, reason))
}
