// Package ops implements the operations every surface (CLI, MCP, web)
// calls into. Each operation takes the shared Env plus a typed input
// and returns a typed output; per-message soft failures travel inside
// outputs, errors are reserved for infrastructure problems.
package ops

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/simtrack/simtrack/internal/config"
	"github.com/simtrack/simtrack/internal/render"
	"github.com/simtrack/simtrack/internal/session"
)

// Env bundles the collaborators operations share: the store, process
// config, the compiled template engine, the session tracker, the
// lifecycle bus, and the logger.
type Env struct {
	DB      *sql.DB
	Config  *config.Config
	Logger  *zap.Logger
	Tracker *session.Tracker
	Engine  *render.Engine
	Bus     *session.Bus

	// BaseDir anchors default file paths (exports). Empty falls back to
	// ~/.simtrack.
	BaseDir string
}

// NewEnv wires a fresh environment. A nil logger gets a nop logger so
// call sites never check.
func NewEnv(db *sql.DB, cfg *config.Config, logger *zap.Logger) *Env {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Env{
		DB:      db,
		Config:  cfg,
		Logger:  logger,
		Tracker: session.NewTracker(),
		Engine:  render.NewEngine(),
		Bus:     session.NewBus(),
	}
}

// loadSettings reads the persisted extension settings for one
// operation.
func (env *Env) loadSettings() (session.Settings, error) {
	return session.LoadSettings(env.DB)
}
