// Package logging provides the structured logging used across relaymatrix.
//
// It is a thin layer over Go's slog package. Every entry carries a level and
// a subsystem, and entries emitted while a job or test case is executing also
// carry `job` and `case` attributes so the stream can be filtered per job.
//
// # Usage Examples
//
//	logging.Init(logging.LevelInfo, logging.FormatJSON, os.Stderr)
//
//	logging.Info("Bootstrap", "loaded matrix with %d families", n)
//	logging.Error("Environment", err, "release of %s failed", ref)
//
//	scope := logging.For("SuiteRunner").WithJob(job.ID).WithCase(tc.Name)
//	scope.Debug("launching %s", tc.Command)
//
// # Concurrency
//
// Handlers write through a SyncWriter. Each record is a single Write call, so
// lines from concurrent workers never interleave. Output returns the same
// writer so console reporters can share it.
package logging
