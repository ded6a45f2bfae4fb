package quarantine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"relaymatrix/internal/config"

	"gopkg.in/yaml.v3"
)

// File is the on-disk quarantine list, typically maintained by a
// flake-tracking job.
type File struct {
	Quarantine []Entry `yaml:"quarantine"`
}

// LoadFile reads the entries in path. A missing file yields no entries.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, config.NewConfigurationError(path, "io", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, config.NewConfigurationError(path, "parse", err)
	}

	var errs config.ValidationErrors
	for i := range f.Quarantine {
		if f.Quarantine[i].Source == "" {
			f.Quarantine[i].Source = filepath.Base(path)
		}
		if f.Quarantine[i].ID == "" {
			errs.Add(fmt.Sprintf("quarantine[%d].id", i), "is required")
		}
		if f.Quarantine[i].Reason == "" {
			errs.Add(fmt.Sprintf("quarantine[%d].reason", i), "is required", f.Quarantine[i].ID)
		}
	}
	if errs.HasErrors() {
		return nil, config.NewConfigurationError(path, "validation", errs)
	}
	return f.Quarantine, nil
}

// LoadInto appends the entries in path to r and returns how many were new.
func LoadInto(r *Registry, path string) (int, error) {
	entries, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	before := r.Len()
	for _, e := range entries {
		if err := r.add(e); err != nil {
			return 0, err
		}
	}
	return r.Len() - before, nil
}

// AppendToFile adds an entry to the file at path, creating it if needed.
// Entries already present are left untouched.
func AppendToFile(path string, e Entry) (bool, error) {
	entries, err := LoadFile(path)
	if err != nil {
		return false, err
	}
	for _, existing := range entries {
		if existing.ID == e.ID {
			return false, nil
		}
	}

	e.Source = ""
	entries = append(entries, e)
	for i := range entries {
		if entries[i].Source == filepath.Base(path) {
			entries[i].Source = ""
		}
	}
	data, err := yaml.Marshal(File{Quarantine: entries})
	if err != nil {
		return false, fmt.Errorf("failed to encode quarantine file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
