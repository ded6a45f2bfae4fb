package suite

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"relaymatrix/internal/config"
	"relaymatrix/internal/template"
)

// Driver names.
const (
	DriverExec   = "exec"
	DriverGoTest = "gotest"
)

// TestCase is one executable case of the suite catalog. Command, Args, Env
// and Image are templates rendered against the acquired environment.
type TestCase struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Requires lists the features a job must carry for the case to run.
	Requires []string          `yaml:"requires,omitempty"`
	Driver   string            `yaml:"driver,omitempty"`
	Command  string            `yaml:"command"`
	Args     []string          `yaml:"args,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	// Image overrides the environment's primary image on the docker backend.
	Image   string        `yaml:"image,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Catalog is the set of test cases a runner can execute.
type Catalog struct {
	Cases []TestCase `yaml:"cases"`
}

// LoadCatalog reads a suite catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, config.NewConfigurationError(path, "io", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, config.NewConfigurationError(path, "parse", err)
	}
	return c, nil
}

// ParseCatalog decodes and validates a catalog document. Cases are returned
// sorted by name.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse suite catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.sort()
	return &c, nil
}

// NewCatalog builds a validated catalog from cases.
func NewCatalog(cases ...TestCase) (*Catalog, error) {
	c := &Catalog{Cases: cases}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.sort()
	return c, nil
}

func (c *Catalog) sort() {
	sort.SliceStable(c.Cases, func(i, j int) bool { return c.Cases[i].Name < c.Cases[j].Name })
}

// Validate checks case names, drivers and templates.
func (c *Catalog) Validate() error {
	var errs config.ValidationErrors
	engine := template.New()
	seen := make(map[string]bool)

	for i := range c.Cases {
		tc := &c.Cases[i]
		field := fmt.Sprintf("cases[%d]", i)
		if tc.Name == "" {
			errs.Add(field+".name", "is required")
		} else if seen[tc.Name] {
			errs.Add(field+".name", "duplicate case name", tc.Name)
		}
		seen[tc.Name] = true

		if tc.Driver == "" {
			tc.Driver = DriverExec
		}
		if err := config.ValidateOneOf(field+".driver", tc.Driver, []string{DriverExec, DriverGoTest}); err != nil {
			errs = append(errs, err.(config.ValidationError))
		}
		if strings.TrimSpace(tc.Command) == "" {
			errs.Add(field+".command", "is required")
		}
		if tc.Timeout < 0 {
			errs.Add(field+".timeout", "must not be negative", tc.Timeout)
		}
		for _, text := range append([]string{tc.Command, tc.Image}, tc.Args...) {
			if err := engine.Validate(text); err != nil {
				errs.Add(field, fmt.Sprintf("invalid template: %v", err), text)
			}
		}
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Names returns the case names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Cases))
	for i, tc := range c.Cases {
		names[i] = tc.Name
	}
	return names
}
