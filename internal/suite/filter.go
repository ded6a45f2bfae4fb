package suite

import (
	"fmt"
	"path"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// TagPrefix marks a filter term that selects cases by required feature.
const TagPrefix = "tag:"

// Filter selects test cases by name or feature tag.
type Filter struct {
	raw   string
	terms []string
}

// ParseFilter parses a comma separated list of terms. Each term is either
// "tag:<feature>", a glob (containing *, ? or [) matched against the whole
// case name, or a substring of the case name. An empty filter or "*"
// selects everything.
func ParseFilter(raw string) (Filter, error) {
	f := Filter{raw: raw}
	for _, term := range strings.Split(raw, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if strings.HasPrefix(term, TagPrefix) {
			if strings.TrimPrefix(term, TagPrefix) == "" {
				return Filter{}, fmt.Errorf("invalid filter term %q: missing feature name", term)
			}
		} else if isGlob(term) {
			if _, err := path.Match(term, ""); err != nil {
				return Filter{}, fmt.Errorf("invalid filter term %q: %w", term, err)
			}
		}
		f.terms = append(f.terms, term)
	}
	return f, nil
}

// String returns the filter as given.
func (f Filter) String() string {
	return f.raw
}

// Matches reports whether tc is selected.
func (f Filter) Matches(tc TestCase) bool {
	if len(f.terms) == 0 {
		return true
	}
	for _, term := range f.terms {
		switch {
		case term == "*":
			return true
		case strings.HasPrefix(term, TagPrefix):
			if sets.New(tc.Requires...).Has(strings.TrimPrefix(term, TagPrefix)) {
				return true
			}
		case isGlob(term):
			if ok, _ := path.Match(term, tc.Name); ok {
				return true
			}
		default:
			if strings.Contains(tc.Name, term) {
				return true
			}
		}
	}
	return false
}

// Select returns the cases of c matched by f, in catalog order.
func (c *Catalog) Select(f Filter) []TestCase {
	var out []TestCase
	for _, tc := range c.Cases {
		if f.Matches(tc) {
			out = append(out, tc)
		}
	}
	return out
}

// missingFeatures returns the features tc requires that are not in have.
func missingFeatures(tc TestCase, have sets.Set[string]) []string {
	return sets.List(sets.New(tc.Requires...).Difference(have))
}

func isGlob(term string) bool {
	return strings.ContainsAny(term, "*?[")
}
