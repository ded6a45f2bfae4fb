package app

import (
	"context"
	"fmt"

	"relaymatrix/internal/matrix"
	"relaymatrix/internal/quarantine"
	"relaymatrix/internal/scheduler"
	"relaymatrix/pkg/logging"
)

// Application wires the loaded services into a scheduler.
//
// Example usage:
//
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	defer application.Close()
//
//	jobs, err := application.Jobs("versioned-chain")
//	...
//	report := application.Run(ctx, jobs, reporter)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads every input named by cfg and builds the backend.
func NewApplication(cfg *Config) (*Application, error) {
	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return NewApplicationWithServices(cfg, services), nil
}

// NewApplicationWithServices assembles an application from prebuilt
// services, for callers that bring their own provider or launcher.
func NewApplicationWithServices(cfg *Config, services *Services) *Application {
	return &Application{config: cfg, services: services}
}

// Services returns the components the application was built from.
func (a *Application) Services() *Services {
	return a.services
}

// Jobs expands the selected families, or every family when none is named.
func (a *Application) Jobs(families ...string) ([]matrix.Job, error) {
	return matrix.Expand(a.services.Spec, families...)
}

// Run executes jobs and returns the report. It never returns early: when ctx
// is cancelled the report records which jobs were cut short.
func (a *Application) Run(ctx context.Context, jobs []matrix.Job, reporter scheduler.Reporter) *scheduler.RunReport {
	settings := a.config.Settings

	if a.config.WatchQuarantine && settings.QuarantinePath != "" {
		w := quarantine.NewWatcher(settings.QuarantinePath, a.services.Registry)
		w.OnReload = func(added int) {
			logging.Info("Quarantine", "%d job(s) newly quarantined from %s", added, settings.QuarantinePath)
		}
		if err := w.Start(); err != nil {
			logging.Warn("Quarantine", "Not watching %s: %v", settings.QuarantinePath, err)
		} else {
			defer func() { _ = w.Stop() }()
		}
	}

	s := scheduler.New(a.services.Provider, a.services.Runner, a.services.Registry, a.SchedulerOptions(reporter))
	return s.RunAll(ctx, jobs)
}

// SchedulerOptions maps the configuration onto scheduler options.
func (a *Application) SchedulerOptions(reporter scheduler.Reporter) scheduler.Options {
	settings := a.config.Settings
	return scheduler.Options{
		Parallel:        settings.Parallel,
		AcquireRetries:  settings.Acquire.Retries,
		RetryDelay:      settings.Acquire.RetryDelay,
		AcquireTimeout:  settings.Acquire.Timeout,
		ReleaseTimeout:  settings.ReleaseTimeout,
		Filter:          a.config.Filter,
		CaseConcurrency: a.config.CaseConcurrency,
		FailFast:        a.config.FailFast,
		CaseTimeout:     settings.CaseTimeout,
		Reporter:        reporter,
	}
}

// Close releases backend resources.
func (a *Application) Close() error {
	return a.services.Close()
}
