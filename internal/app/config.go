package app

import (
	"relaymatrix/internal/config"
)

// Config holds everything one invocation needs: the loaded settings plus the
// run-scoped overrides that only exist on the command line.
type Config struct {
	Settings config.Config

	// Filter, when set, replaces every family's case filter.
	Filter string
	// CaseConcurrency, when positive, replaces every family's concurrency hint.
	CaseConcurrency int
	// FailFast forces fail-fast on every job.
	FailFast bool
	// WatchQuarantine keeps the quarantine file under watch during the run.
	WatchQuarantine bool
}

// NewConfig wraps loaded settings.
func NewConfig(settings config.Config) *Config {
	return &Config{Settings: settings}
}
