package environment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"relaymatrix/internal/config"
)

// RefSeparator joins the package identifiers of a composite environment ref.
const RefSeparator = "+"

// Executable is one content-addressed binary in the package store.
type Executable struct {
	Path   string `yaml:"path"`
	SHA256 string `yaml:"sha256"`
}

// Package is an index entry for a single name@version identifier.
type Package struct {
	Executables map[string]Executable `yaml:"executables"`
	Toolchain   map[string]string     `yaml:"toolchain,omitempty"`
	Vars        map[string]string     `yaml:"vars,omitempty"`
	// Image is the digest-pinned container image used by the docker backend.
	Image string `yaml:"image,omitempty"`
}

// Index maps package identifiers to their resolved contents. It is read-only
// once loaded.
type Index struct {
	// StoreRoot anchors relative executable paths. It defaults to the
	// directory the index file lives in.
	StoreRoot string             `yaml:"storeRoot,omitempty"`
	Packages  map[string]Package `yaml:"packages"`
}

// Resolved is the outcome of resolving a ref against the index.
type Resolved struct {
	Ref         string
	Packages    []string
	Executables map[string]Executable
	Toolchain   map[string]string
	Vars        map[string]string
	Images      map[string]string
	Digest      string
}

// LoadIndex reads a package index from path.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, config.NewConfigurationError(path, "io", err)
	}
	idx, err := ParseIndex(data)
	if err != nil {
		return nil, config.NewConfigurationError(path, "parse", err)
	}
	if idx.StoreRoot == "" {
		idx.StoreRoot = filepath.Dir(path)
	} else if !filepath.IsAbs(idx.StoreRoot) {
		idx.StoreRoot = filepath.Join(filepath.Dir(path), idx.StoreRoot)
	}
	return idx, nil
}

// ParseIndex decodes an index document and validates its entries.
func ParseIndex(data []byte) (*Index, error) {
	var idx Index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse package index: %w", err)
	}
	if idx.Packages == nil {
		idx.Packages = map[string]Package{}
	}

	var errs config.ValidationErrors
	for _, id := range sortedKeys(idx.Packages) {
		if !strings.Contains(id, "@") || strings.Contains(id, RefSeparator) {
			errs.Add("packages."+id, "package identifier must be name@version", id)
			continue
		}
		for _, name := range sortedKeys(idx.Packages[id].Executables) {
			exe := idx.Packages[id].Executables[name]
			field := fmt.Sprintf("packages.%s.executables.%s", id, name)
			if exe.Path == "" {
				errs.Add(field+".path", "is required", "")
			}
			if len(exe.SHA256) != sha256.Size*2 {
				errs.Add(field+".sha256", "must be a hex-encoded sha256 digest", exe.SHA256)
			}
		}
	}
	if errs.HasErrors() {
		return nil, errs
	}
	return &idx, nil
}

// SplitRef returns the package identifiers of a composite ref.
func SplitRef(ref string) []string {
	var ids []string
	for _, part := range strings.Split(ref, RefSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

// Resolve looks up every package named by ref and merges them. Executable or
// variable names provided by more than one package are rejected so that the
// result never depends on map iteration order.
func (idx *Index) Resolve(ref string) (*Resolved, error) {
	ids := SplitRef(ref)
	if len(ids) == 0 {
		return nil, permanent(ref, nil, "empty environment reference")
	}

	r := &Resolved{
		Ref:         ref,
		Packages:    ids,
		Executables: map[string]Executable{},
		Toolchain:   map[string]string{},
		Vars:        map[string]string{},
		Images:      map[string]string{},
	}
	owner := map[string]string{}
	for _, id := range ids {
		pkg, ok := idx.Packages[id]
		if !ok {
			return nil, permanent(ref, nil, "unknown package %q", id)
		}
		for name, exe := range pkg.Executables {
			if prev, dup := owner["exe:"+name]; dup {
				return nil, permanent(ref, nil, "executable %q provided by both %s and %s", name, prev, id)
			}
			owner["exe:"+name] = id
			if !filepath.IsAbs(exe.Path) && idx.StoreRoot != "" {
				exe.Path = filepath.Join(idx.StoreRoot, exe.Path)
			}
			exe.SHA256 = strings.ToLower(exe.SHA256)
			r.Executables[name] = exe
		}
		for k, v := range pkg.Toolchain {
			if prev, dup := owner["tool:"+k]; dup {
				return nil, permanent(ref, nil, "toolchain %q provided by both %s and %s", k, prev, id)
			}
			owner["tool:"+k] = id
			r.Toolchain[k] = v
		}
		for k, v := range pkg.Vars {
			if prev, dup := owner["var:"+k]; dup {
				return nil, permanent(ref, nil, "variable %q provided by both %s and %s", k, prev, id)
			}
			owner["var:"+k] = id
			r.Vars[k] = v
		}
		if pkg.Image != "" {
			r.Images[id] = pkg.Image
		}
	}
	r.Digest = r.digest()
	return r, nil
}

// digest hashes the resolved entries in sorted order. Store paths are left
// out so that the same content yields the same digest wherever the store is.
func (r *Resolved) digest() string {
	h := sha256.New()
	write := func(kind, k, v string) {
		fmt.Fprintf(h, "%s\x00%s\x00%s\n", kind, k, v)
	}
	for _, id := range r.Packages {
		write("pkg", id, "")
	}
	for _, name := range sortedKeys(r.Executables) {
		write("exe", name, r.Executables[name].SHA256)
	}
	for _, k := range sortedKeys(r.Toolchain) {
		write("tool", k, r.Toolchain[k])
	}
	for _, k := range sortedKeys(r.Vars) {
		write("var", k, r.Vars[k])
	}
	for _, k := range sortedKeys(r.Images) {
		write("image", k, r.Images[k])
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
