package config

import "time"

const (
	DefaultParallel        = 4
	DefaultCaseConcurrency = 2
	DefaultMaxJobs         = 256
	DefaultLabelPrefix     = "relaymatrix"
)

// GetDefaultConfig returns the configuration used when no config.yaml exists.
func GetDefaultConfig() Config {
	return Config{
		Parallel:        DefaultParallel,
		CaseConcurrency: DefaultCaseConcurrency,
		CaseTimeout:     10 * time.Minute,
		RunTimeout:      2 * time.Hour,
		ReleaseTimeout:  30 * time.Second,
		MaxJobs:         DefaultMaxJobs,
		Backend:         BackendLocal,
		SuitePath:       "suite.yaml",
		IndexPath:       "index.yaml",
		Acquire: AcquireConfig{
			Retries:    2,
			RetryDelay: 5 * time.Second,
			Timeout:    10 * time.Minute,
		},
		Docker: DockerConfig{
			LabelPrefix: DefaultLabelPrefix,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Report: ReportConfig{
			Output: OutputTable,
		},
	}
}
