package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0644)
	require.NoError(t, err)
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	tempDir := t.TempDir()

	loaded, err := LoadConfig(tempDir)
	require.NoError(t, err)

	expected := GetDefaultConfig()
	expected.ResolvePaths(tempDir)
	assert.Equal(t, expected, loaded)
	assert.Equal(t, filepath.Join(tempDir, "suite.yaml"), loaded.SuitePath)
	assert.Empty(t, loaded.MatrixPath, "empty matrix path selects the built-in matrix")
}

func TestLoadConfig_Override(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
parallel: 8
caseTimeout: 90s
backend: docker
indexPath: /srv/index.yaml
quarantinePath: quarantine.yaml
acquire:
  retries: 4
logging:
  format: json
`)

	loaded, err := LoadConfig(tempDir)
	require.NoError(t, err)

	assert.Equal(t, 8, loaded.Parallel)
	assert.Equal(t, 90*time.Second, loaded.CaseTimeout)
	assert.Equal(t, BackendDocker, loaded.Backend)
	assert.Equal(t, "/srv/index.yaml", loaded.IndexPath)
	assert.Equal(t, filepath.Join(tempDir, "quarantine.yaml"), loaded.QuarantinePath)
	assert.Equal(t, 4, loaded.Acquire.Retries)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, 5*time.Second, loaded.Acquire.RetryDelay)
	assert.Equal(t, DefaultCaseConcurrency, loaded.CaseConcurrency)
	assert.Equal(t, "json", loaded.Logging.Format)
	assert.Equal(t, "info", loaded.Logging.Level)
}

func TestLoadConfig_Malformed(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, "parallel: [not a number")

	_, err := LoadConfig(tempDir)
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "parse", cfgErr.ErrorType)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
parallel: 0
backend: kubernetes
`)

	_, err := LoadConfig(tempDir)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "parallel")
	assert.Contains(t, err.Error(), "backend")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{"defaults are valid", func(*Config) {}, nil},
		{"too many workers", func(c *Config) { c.Parallel = 100 }, []string{"parallel"}},
		{"zero case concurrency", func(c *Config) { c.CaseConcurrency = 0 }, []string{"caseConcurrency"}},
		{"negative retries", func(c *Config) { c.Acquire.Retries = -1 }, []string{"acquire.retries"}},
		{"zero timeouts", func(c *Config) { c.CaseTimeout = 0; c.RunTimeout = 0 }, []string{"caseTimeout", "runTimeout"}},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }, []string{"logging.level"}},
		{"unknown output", func(c *Config) { c.Report.Output = "xml" }, []string{"report.output"}},
		{"docker without label prefix", func(c *Config) { c.Backend = BackendDocker; c.Docker.LabelPrefix = "" }, []string{"docker.labelPrefix"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(&cfg)

			errs := cfg.Validate()
			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}

func TestValidateEntityName(t *testing.T) {
	assert.NoError(t, ValidateEntityName("ordered-channel", "family"))
	assert.Error(t, ValidateEntityName("", "family"))
	assert.Error(t, ValidateEntityName("has space", "family"))
	assert.Error(t, ValidateEntityName("a/b", "family"))
	assert.Error(t, ValidateEntityName("a=b", "axis"))
}

func TestValidationErrors_Check(t *testing.T) {
	var errs ValidationErrors
	errs.Check(nil)
	assert.False(t, errs.HasErrors())

	errs.Check(ValidateOneOf("backend", "k8s", []string{BackendLocal, BackendDocker}))
	errs.Check(errors.New("index unreadable"))
	require.Len(t, errs, 2)
	assert.Equal(t, "backend", errs[0].Field)
	assert.Equal(t, "k8s", errs[0].Value)
	assert.Equal(t, "index unreadable", errs[1].Error())
	assert.Equal(t, "validation failed: field 'backend': must be one of: local, docker; index unreadable", errs.Error())
}
