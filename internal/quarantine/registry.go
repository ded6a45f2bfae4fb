package quarantine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is a single quarantined job id or job family.
type Entry struct {
	ID     string    `yaml:"id" json:"id"`
	Reason string    `yaml:"reason" json:"reason"`
	Source string    `yaml:"source,omitempty" json:"source,omitempty"`
	Since  time.Time `yaml:"since,omitempty" json:"since,omitempty"`
}

// Registry is the table of known-flaky or disabled jobs. It is append-only:
// once an id is quarantined it stays quarantined for the life of the registry.
// Reads take a shared lock so scheduler workers never block one another.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns a registry pre-populated with entries. Invalid entries
// are ignored; use Quarantine to get an error for them.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		_ = r.add(e)
	}
	return r
}

// IsQuarantined reports whether jobID, or the family it belongs to, is
// quarantined.
func (r *Registry) IsQuarantined(jobID string) bool {
	_, ok := r.Lookup(jobID)
	return ok
}

// Lookup returns the entry covering jobID. An exact id match wins over a
// family match.
func (r *Registry) Lookup(jobID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[jobID]; ok {
		return e, true
	}
	if family, _, found := strings.Cut(jobID, "/"); found {
		if e, ok := r.entries[family]; ok {
			return e, true
		}
	}
	return Entry{}, false
}

// Quarantine records jobID with reason. Quarantining an id twice keeps the
// first reason.
func (r *Registry) Quarantine(jobID, reason string) error {
	return r.add(Entry{ID: jobID, Reason: reason, Source: "api"})
}

func (r *Registry) add(e Entry) error {
	e.ID = strings.TrimSpace(e.ID)
	e.Reason = strings.TrimSpace(e.Reason)
	if e.ID == "" {
		return fmt.Errorf("quarantine entry requires a job id")
	}
	if e.Reason == "" {
		return fmt.Errorf("quarantine entry %q requires a reason", e.ID)
	}
	if e.Since.IsZero() {
		e.Since = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.ID]; !exists {
		r.entries[e.ID] = e
	}
	return nil
}

// List returns every entry sorted by id.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
