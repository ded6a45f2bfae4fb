package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"relaymatrix/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/relaymatrix"
	configFileName = "config.yaml"
)

// GetDefaultConfigPath returns ~/.config/relaymatrix, or the working
// directory when the home directory cannot be determined.
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads config.yaml from configPath on top of the defaults.
// Relative file references inside the config are resolved against configPath.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			config.ResolvePaths(configPath)
			return config, nil
		}
		return Config{}, NewConfigurationError(configFilePath, "io", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, NewConfigurationError(configFilePath, "parse", err)
	}
	config.ResolvePaths(configPath)

	if errs := config.Validate(); errs.HasErrors() {
		return Config{}, NewConfigurationError(configFilePath, "validation", errs)
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// ResolvePaths makes every relative file reference absolute against baseDir.
func (c *Config) ResolvePaths(baseDir string) {
	for _, p := range []*string{&c.MatrixPath, &c.SuitePath, &c.IndexPath, &c.QuarantinePath, &c.Report.Path, &c.Local.WorkDir} {
		*p = resolvePath(baseDir, *p)
	}
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// Validate checks the configuration for values the orchestrator cannot run with.
func (c Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if c.Parallel < 1 || c.Parallel > 64 {
		errs.Add("parallel", fmt.Sprintf("must be between 1 and 64, got %d", c.Parallel), c.Parallel)
	}
	if c.CaseConcurrency < 1 {
		errs.Add("caseConcurrency", "must be at least 1", c.CaseConcurrency)
	}
	if c.MaxJobs < 1 {
		errs.Add("maxJobs", "must be at least 1", c.MaxJobs)
	}
	if c.Acquire.Retries < 0 || c.Acquire.Retries > 10 {
		errs.Add("acquire.retries", "must be between 0 and 10", c.Acquire.Retries)
	}
	for field, d := range map[string]time.Duration{
		"caseTimeout":     c.CaseTimeout,
		"runTimeout":      c.RunTimeout,
		"releaseTimeout":  c.ReleaseTimeout,
		"acquire.timeout": c.Acquire.Timeout,
	} {
		if d <= 0 {
			errs.Add(field, "must be positive", d)
		}
	}
	if c.Acquire.RetryDelay < 0 {
		errs.Add("acquire.retryDelay", "must not be negative", c.Acquire.RetryDelay)
	}
	errs.Check(ValidateOneOf("backend", c.Backend, []string{BackendLocal, BackendDocker}))
	errs.Check(ValidateOneOf("logging.format", c.Logging.Format, []string{"text", "json"}))
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs.Add("logging.level", err.Error(), c.Logging.Level)
	}
	errs.Check(ValidateOneOf("report.output", c.Report.Output, []string{OutputTable, OutputJSON, OutputYAML}))
	if c.Backend == BackendDocker {
		errs.Check(ValidateRequired("docker.labelPrefix", c.Docker.LabelPrefix, "the docker backend"))
	}

	errs.Sort()
	return errs
}
