package matrix

import (
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
)

// AxisKind says what an axis' variants contribute to a job.
type AxisKind string

const (
	// AxisEnvironment variants are environment identifiers such as gaia@v8.0.0.
	AxisEnvironment AxisKind = "environment"
	// AxisFeature variants are feature flag names.
	AxisFeature AxisKind = "feature"
)

// NoFeature is the feature-axis variant that contributes no flag.
const NoFeature = "none"

// DefaultMaxJobs bounds the number of jobs a spec may expand to when the
// spec does not set its own bound.
const DefaultMaxJobs = 256

// Axis is one dimension of a job family's matrix.
type Axis struct {
	Name     string   `yaml:"name" json:"name"`
	Kind     AxisKind `yaml:"kind" json:"kind"`
	Variants []string `yaml:"variants" json:"variants"`
}

// QuarantineSpec marks a whole family as quarantined in the matrix itself.
type QuarantineSpec struct {
	Reason string `yaml:"reason" json:"reason"`
}

// Family is a named group of jobs. A family without axes is a singleton and
// expands to exactly one job.
type Family struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Environment lists packages every job of the family is bound to, ahead
	// of any environment-axis variant.
	Environment []string        `yaml:"environment,omitempty" json:"environment,omitempty"`
	Axes        []Axis          `yaml:"axes,omitempty" json:"axes,omitempty"`
	Features    []string        `yaml:"features,omitempty" json:"features,omitempty"`
	Filter      string          `yaml:"filter,omitempty" json:"filter,omitempty"`
	Concurrency int             `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	FailFast    bool            `yaml:"failFast,omitempty" json:"failFast,omitempty"`
	CaseTimeout time.Duration   `yaml:"caseTimeout,omitempty" json:"caseTimeout,omitempty"`
	Quarantine  *QuarantineSpec `yaml:"quarantine,omitempty" json:"quarantine,omitempty"`
}

// Spec is a declarative test matrix.
type Spec struct {
	// MaxJobs bounds the number of jobs one expansion may produce.
	MaxJobs int `yaml:"maxJobs,omitempty" json:"maxJobs,omitempty"`
	// DefaultConcurrency is the case concurrency for families without a hint.
	DefaultConcurrency int      `yaml:"defaultConcurrency,omitempty" json:"defaultConcurrency,omitempty"`
	Families           []Family `yaml:"families" json:"families"`
}

// Job is one independent unit of work: an environment, a feature set and a
// test filter. Jobs are created by Expand and are not modified afterwards.
type Job struct {
	ID               string        `yaml:"id" json:"id"`
	Family           string        `yaml:"family" json:"family"`
	Index            int           `yaml:"index" json:"index"`
	EnvironmentRef   string        `yaml:"environmentRef" json:"environmentRef"`
	Features         []string      `yaml:"features,omitempty" json:"features,omitempty"`
	Filter           string        `yaml:"filter,omitempty" json:"filter,omitempty"`
	Concurrency      int           `yaml:"concurrency" json:"concurrency"`
	FailFast         bool          `yaml:"failFast,omitempty" json:"failFast,omitempty"`
	CaseTimeout      time.Duration `yaml:"caseTimeout,omitempty" json:"caseTimeout,omitempty"`
	Quarantined      bool          `yaml:"quarantined,omitempty" json:"quarantined,omitempty"`
	QuarantineReason string        `yaml:"quarantineReason,omitempty" json:"quarantineReason,omitempty"`
}

// FeatureSet returns the job's feature flags as a set.
func (j Job) FeatureSet() sets.Set[string] {
	return sets.New(j.Features...)
}

// FamilyNames returns the family names of spec in declaration order.
func (s Spec) FamilyNames() []string {
	names := make([]string, 0, len(s.Families))
	for _, f := range s.Families {
		names = append(names, f.Name)
	}
	return names
}
