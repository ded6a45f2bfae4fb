package config

import "time"

// Config is the top-level configuration structure for relaymatrix.
type Config struct {
	// Parallel is the maximum number of jobs executing at once.
	Parallel int `yaml:"parallel"`
	// CaseConcurrency is the per-job case concurrency used when a family
	// does not declare its own hint.
	CaseConcurrency int           `yaml:"caseConcurrency"`
	CaseTimeout     time.Duration `yaml:"caseTimeout"`
	RunTimeout      time.Duration `yaml:"runTimeout"`
	ReleaseTimeout  time.Duration `yaml:"releaseTimeout"`
	MaxJobs         int           `yaml:"maxJobs"`

	Backend string `yaml:"backend"`

	MatrixPath     string `yaml:"matrixPath,omitempty"` // empty selects the built-in matrix
	SuitePath      string `yaml:"suitePath"`
	IndexPath      string `yaml:"indexPath"`
	QuarantinePath string `yaml:"quarantinePath,omitempty"`

	Acquire AcquireConfig `yaml:"acquire"`
	Local   LocalConfig   `yaml:"local"`
	Docker  DockerConfig  `yaml:"docker"`
	Logging LoggingConfig `yaml:"logging"`
	Report  ReportConfig  `yaml:"report"`
}

// AcquireConfig controls environment acquisition.
type AcquireConfig struct {
	// Retries is the number of extra attempts after a transient failure.
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retryDelay"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LocalConfig configures the content-addressed file-system backend.
type LocalConfig struct {
	WorkDir string `yaml:"workDir,omitempty"` // empty uses the OS temp dir
	Keep    bool   `yaml:"keep,omitempty"`
}

// DockerConfig configures the container backend.
type DockerConfig struct {
	LabelPrefix string `yaml:"labelPrefix"`
	Keep        bool   `yaml:"keep,omitempty"`
}

// LoggingConfig configures the structured log stream.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ReportConfig configures the run report.
type ReportConfig struct {
	Path   string `yaml:"path,omitempty"`
	Output string `yaml:"output"`
}

const (
	BackendLocal  = "local"
	BackendDocker = "docker"

	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)
