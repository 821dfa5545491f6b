// Package logging builds the zap loggers used across simtrack.
// All pipeline stages log through zap with message/chat ids as fields so
// batch failures stay diagnosable without stopping the batch.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates the process logger. With debug enabled the level drops to
// Debug and per-stage pipeline chatter becomes visible.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	// Timestamps in ISO8601 read better in terminal sessions than epoch floats.
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Nop returns a logger that discards everything. Tests and library
// callers that pass no logger get this instead of nil checks.
func Nop() *zap.Logger {
	return zap.NewNop()
}
