package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config holds process-level configuration. Extension settings that users
// flip at runtime (template, position, fence tag, ...) live in the
// database instead; see internal/session.
type Config struct {
	// WebBind is the interface the preview server listens on.
	WebBind string `json:"web_bind" env:"SIMTRACK_WEB_BIND"`

	// WebPort is the preview server port.
	WebPort int `json:"web_port" env:"SIMTRACK_WEB_PORT"`

	// Debug lowers the log level to debug.
	Debug bool `json:"debug" env:"SIMTRACK_DEBUG"`

	// KeepContextBlocks is how many of the newest block-bearing messages
	// keep their sim blocks when the outgoing prompt is filtered.
	KeepContextBlocks int `json:"keep_context_blocks" env:"SIMTRACK_KEEP_CONTEXT_BLOCKS"`

	// CustomTemplatePath, when set, is watched in serve mode so edits to a
	// custom card template recompile and refresh open preview pages.
	CustomTemplatePath string `json:"custom_template_path" env:"SIMTRACK_CUSTOM_TEMPLATE_PATH"`

	// DBMaxOpenConns limits open database connections. 0 means the sql.DB
	// default. Set to 1 if "database is locked" errors show up.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" env:"SIMTRACK_DB_MAX_OPEN_CONNS"`

	// DBMaxIdleConns limits idle database connections. 0 means the sql.DB
	// default.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" env:"SIMTRACK_DB_MAX_IDLE_CONNS"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		WebBind:           "127.0.0.1",
		WebPort:           8791,
		KeepContextBlocks: 3,
	}
}

// Load resolves configuration in three layers: defaults, then
// baseDir/config.json if present, then SIMTRACK_* environment variables.
// The baseDir parameter lets tests point at t.TempDir() instead of
// ~/.simtrack.
func Load(baseDir string) (*Config, error) {
	file, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}

	cfg := Merge(DefaultConfig(), file)

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns a zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge combines base and overlay configs. Overlay values win when
// non-zero; booleans win when true.
func Merge(base, overlay *Config) *Config {
	result := *base

	if overlay.WebBind != "" {
		result.WebBind = overlay.WebBind
	}
	if overlay.WebPort != 0 {
		result.WebPort = overlay.WebPort
	}
	if overlay.KeepContextBlocks != 0 {
		result.KeepContextBlocks = overlay.KeepContextBlocks
	}
	if overlay.CustomTemplatePath != "" {
		result.CustomTemplatePath = overlay.CustomTemplatePath
	}
	if overlay.DBMaxOpenConns != 0 {
		result.DBMaxOpenConns = overlay.DBMaxOpenConns
	}
	if overlay.DBMaxIdleConns != 0 {
		result.DBMaxIdleConns = overlay.DBMaxIdleConns
	}
	result.Debug = base.Debug || overlay.Debug

	return &result
}
