package quarantine

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"relaymatrix/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFile = `quarantine:
  - id: model-based
    reason: nondeterministic trace generation
  - id: ica/chain=ica-demo@v0.2.0
    reason: host chain halts on upgrade
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0644))

	entries, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "model-based", entries[0].ID)
	assert.Equal(t, "quarantine.yaml", entries[0].Source)
}

func TestLoadFile_Missing(t *testing.T) {
	entries, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadFile_MissingReason(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quarantine:\n  - id: ica\n"), 0644))

	_, err := LoadFile(path)
	require.Error(t, err)
	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "validation", cfgErr.ErrorType)
}

func TestLoadInto(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0644))

	r := NewRegistry(Entry{ID: "model-based", Reason: "declared in matrix"})
	added, err := LoadInto(r, path)
	require.NoError(t, err)

	assert.Equal(t, 1, added)
	entry, _ := r.Lookup("model-based")
	assert.Equal(t, "declared in matrix", entry.Reason)
}

func TestAppendToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "quarantine.yaml")

	added, err := AppendToFile(path, Entry{ID: "ordered-channel", Reason: "channel upgrade regression"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = AppendToFile(path, Entry{ID: "ordered-channel", Reason: "again"})
	require.NoError(t, err)
	assert.False(t, added)

	entries, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "channel upgrade regression", entries[0].Reason)
}

func TestWatcher_AppendsNewEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quarantine: []\n"), 0644))

	r := NewRegistry()
	w := NewWatcher(path, r)
	w.Debounce = 20 * time.Millisecond
	w.PollInterval = 50 * time.Millisecond

	var reloads atomic.Int32
	w.OnReload = func(int) { reloads.Add(1) }

	require.NoError(t, w.Start())
	defer w.Stop()

	_, err := AppendToFile(path, Entry{ID: "ica", Reason: "flaky host chain"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return r.IsQuarantined("ica") }, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, reloads.Load(), int32(1))
}

func TestWatcher_NeverRemovesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0644))

	r := NewRegistry()
	_, err := LoadInto(r, path)
	require.NoError(t, err)

	w := NewWatcher(path, r)
	w.Debounce = 20 * time.Millisecond
	var reloads atomic.Int32
	w.OnReload = func(int) { reloads.Add(1) }
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("quarantine: []\n"), 0644))

	assert.Eventually(t, func() bool { return reloads.Load() > 0 }, 5*time.Second, 20*time.Millisecond)
	assert.True(t, r.IsQuarantined("model-based"))
	assert.True(t, r.IsQuarantined("ica/chain=ica-demo@v0.2.0"))
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "q.yaml"), NewRegistry())
	require.NoError(t, w.Start())
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
