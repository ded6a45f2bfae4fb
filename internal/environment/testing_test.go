package environment

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeStore creates an executable under dir and returns its path and digest.
func writeStore(t *testing.T, dir, name, content string) (string, string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0755))
	sum := sha256.Sum256([]byte(content))
	return path, hex.EncodeToString(sum[:])
}

// testIndex builds an index with gaia@v8.0.0 and wasmd@v0.30.0 in a fresh store.
func testIndex(t *testing.T) *Index {
	t.Helper()
	store := t.TempDir()
	gaiad, gaiaSum := writeStore(t, store, "gaia-8.0.0/bin/gaiad", "#!/bin/sh\necho gaia v8\n")
	wasmd, wasmSum := writeStore(t, store, "wasmd-0.30.0/bin/wasmd", "#!/bin/sh\necho wasmd\n")

	return &Index{
		StoreRoot: store,
		Packages: map[string]Package{
			"gaia@v8.0.0": {
				Executables: map[string]Executable{"gaiad": {Path: gaiad, SHA256: gaiaSum}},
				Toolchain:   map[string]string{"python": "python3@3.11"},
				Vars:        map[string]string{"CHAIN_ID": "gaia-8"},
				Image:       "ghcr.io/cosmos/gaia@sha256:" + gaiaSum,
			},
			"wasmd@v0.30.0": {
				Executables: map[string]Executable{"wasmd": {Path: wasmd, SHA256: wasmSum}},
				Image:       "ghcr.io/cosmwasm/wasmd:v0.30.0",
			},
		},
	}
}
