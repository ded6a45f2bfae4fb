package matrix

import (
	"sort"
	"strings"

	"relaymatrix/internal/config"

	"k8s.io/apimachinery/pkg/util/sets"
)

// SelectAll selects every family of a spec.
const SelectAll = "all"

// Validate checks the structure of every family in spec. It does not check
// the job count bound, which depends on the families selected.
func Validate(spec Spec) error {
	if len(spec.Families) == 0 {
		return invalid("", "", "no job families declared")
	}
	if spec.MaxJobs < 0 {
		return invalid("", "", "maxJobs must not be negative")
	}
	if spec.DefaultConcurrency < 0 {
		return invalid("", "", "defaultConcurrency must not be negative")
	}

	seen := sets.New[string]()
	for _, f := range spec.Families {
		if err := config.ValidateEntityName(f.Name, "job family"); err != nil {
			return invalid(f.Name, "", "%v", err)
		}
		if seen.Has(f.Name) {
			return invalid(f.Name, "", "duplicate family name")
		}
		seen.Insert(f.Name)

		if err := validateFamily(f); err != nil {
			return err
		}
	}
	return nil
}

func validateFamily(f Family) error {
	if f.Concurrency < 0 {
		return invalid(f.Name, "", "concurrency must not be negative")
	}
	if f.CaseTimeout < 0 {
		return invalid(f.Name, "", "caseTimeout must not be negative")
	}
	if f.Quarantine != nil && strings.TrimSpace(f.Quarantine.Reason) == "" {
		return invalid(f.Name, "", "quarantine requires a reason")
	}
	for _, pkg := range f.Environment {
		if !validVariant(pkg) {
			return invalid(f.Name, "", "invalid environment identifier %q", pkg)
		}
	}
	for _, feature := range f.Features {
		if !validVariant(feature) {
			return invalid(f.Name, "", "invalid feature flag %q", feature)
		}
	}

	hasEnvironment := len(f.Environment) > 0
	axisNames := sets.New[string]()
	for _, axis := range f.Axes {
		if err := config.ValidateEntityName(axis.Name, "axis"); err != nil {
			return invalid(f.Name, axis.Name, "%v", err)
		}
		if axisNames.Has(axis.Name) {
			return invalid(f.Name, axis.Name, "duplicate axis name")
		}
		axisNames.Insert(axis.Name)

		switch axis.Kind {
		case AxisEnvironment:
			hasEnvironment = true
		case AxisFeature:
		default:
			return invalid(f.Name, axis.Name, "unknown axis kind %q (want %q or %q)", axis.Kind, AxisEnvironment, AxisFeature)
		}

		if len(axis.Variants) == 0 {
			return invalid(f.Name, axis.Name, "axis has no variants")
		}
		variants := sets.New[string]()
		for _, v := range axis.Variants {
			if !validVariant(v) {
				return invalid(f.Name, axis.Name, "invalid variant %q", v)
			}
			if axis.Kind == AxisEnvironment && v == NoFeature {
				return invalid(f.Name, axis.Name, "%q is reserved for feature axes", NoFeature)
			}
			if variants.Has(v) {
				return invalid(f.Name, axis.Name, "duplicate variant %q", v)
			}
			variants.Insert(v)
		}
	}

	if !hasEnvironment {
		return invalid(f.Name, "", "family binds no environment")
	}
	return nil
}

func validVariant(v string) bool {
	return v != "" && !strings.ContainsAny(v, " \t\n,=+")
}

// Count returns the number of jobs Expand would produce for the selected
// families, or an InvalidSpecError if the count exceeds the spec's bound.
func Count(spec Spec, families ...string) (int, error) {
	selected, err := selectFamilies(spec, families)
	if err != nil {
		return 0, err
	}
	return count(spec, selected)
}

func count(spec Spec, selected []Family) (int, error) {
	limit := spec.MaxJobs
	if limit == 0 {
		limit = DefaultMaxJobs
	}

	total := 0
	for _, f := range selected {
		product := 1
		for _, axis := range f.Axes {
			n := len(axis.Variants)
			// Checked before multiplying so the product cannot overflow.
			if product > limit/n {
				return 0, invalid(f.Name, axis.Name, "job count exceeds the bound of %d", limit)
			}
			product *= n
		}
		total += product
		if total > limit {
			return 0, invalid(f.Name, "", "job count exceeds the bound of %d", limit)
		}
	}
	return total, nil
}

// Expand produces the ordered jobs of the selected families. No selection,
// or the single selector "all", selects every family.
//
// Families are emitted in declaration order. Within a family, axes are taken
// in declaration order with the first axis varying slowest, and each axis'
// variants are taken in lexical order. The result for an unchanged spec is
// therefore identical between runs.
func Expand(spec Spec, families ...string) ([]Job, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}
	selected, err := selectFamilies(spec, families)
	if err != nil {
		return nil, err
	}
	total, err := count(spec, selected)
	if err != nil {
		return nil, err
	}

	defaultConcurrency := spec.DefaultConcurrency
	if defaultConcurrency == 0 {
		defaultConcurrency = 1
	}

	jobs := make([]Job, 0, total)
	ids := sets.New[string]()
	for _, f := range selected {
		for _, job := range expandFamily(f, defaultConcurrency) {
			if ids.Has(job.ID) {
				return nil, invalid(f.Name, "", "duplicate job id %q", job.ID)
			}
			ids.Insert(job.ID)
			job.Index = len(jobs)
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func selectFamilies(spec Spec, names []string) ([]Family, error) {
	want := sets.New[string]()
	for _, n := range names {
		if n != "" && n != SelectAll {
			want.Insert(n)
		}
	}
	if want.Len() == 0 {
		return spec.Families, nil
	}

	var selected []Family
	for _, f := range spec.Families {
		if want.Has(f.Name) {
			selected = append(selected, f)
			want.Delete(f.Name)
		}
	}
	if want.Len() > 0 {
		return nil, invalid("", "", "unknown job families: %s (available: %s)",
			strings.Join(sets.List(want), ", "), strings.Join(spec.FamilyNames(), ", "))
	}
	return selected, nil
}

type binding struct {
	axis    Axis
	variant string
}

func expandFamily(f Family, defaultConcurrency int) []Job {
	axes := make([]Axis, len(f.Axes))
	for i, axis := range f.Axes {
		variants := append([]string(nil), axis.Variants...)
		sort.Strings(variants)
		axes[i] = Axis{Name: axis.Name, Kind: axis.Kind, Variants: variants}
	}

	var jobs []Job
	idx := make([]int, len(axes))
	for {
		bindings := make([]binding, len(axes))
		for i, axis := range axes {
			bindings[i] = binding{axis: axis, variant: axis.Variants[idx[i]]}
		}
		jobs = append(jobs, newJob(f, bindings, defaultConcurrency))

		// Odometer step: the last axis varies fastest.
		i := len(axes) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(axes[i].Variants) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return jobs
		}
	}
}

func newJob(f Family, bindings []binding, defaultConcurrency int) Job {
	packages := append([]string(nil), f.Environment...)
	features := sets.New(f.Features...)
	parts := make([]string, 0, len(bindings))

	for _, b := range bindings {
		parts = append(parts, b.axis.Name+"="+b.variant)
		switch b.axis.Kind {
		case AxisEnvironment:
			packages = append(packages, b.variant)
		case AxisFeature:
			if b.variant != NoFeature {
				features.Insert(b.variant)
			}
		}
	}

	id := f.Name
	if len(parts) > 0 {
		id = f.Name + "/" + strings.Join(parts, ",")
	}

	concurrency := f.Concurrency
	if concurrency == 0 {
		concurrency = defaultConcurrency
	}

	job := Job{
		ID:             id,
		Family:         f.Name,
		EnvironmentRef: strings.Join(packages, "+"),
		Features:       sets.List(features),
		Filter:         f.Filter,
		Concurrency:    concurrency,
		FailFast:       f.FailFast,
		CaseTimeout:    f.CaseTimeout,
	}
	if f.Quarantine != nil {
		job.Quarantined = true
		job.QuarantineReason = f.Quarantine.Reason
	}
	return job
}
