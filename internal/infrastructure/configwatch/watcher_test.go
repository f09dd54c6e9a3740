package configwatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loes-hub/outcome-engine/config"
	"github.com/loes-hub/outcome-engine/pkg/logger"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func startWatcher(t *testing.T, path string, onChange func(*config.EngineConfig)) *Watcher {
	t.Helper()
	w, err := New(Config{Path: path, DebounceDelay: 20 * time.Millisecond, Logger: logger.Discard()}, onChange)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)

	_, err = New(Config{Path: filepath.Join(t.TempDir(), "missing.yaml")}, nil)
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, bad, "suggestion: {limit: 0}\n")
	_, err = New(Config{Path: bad}, nil)
	assert.ErrorContains(t, err, "suggestion.limit")
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tunables.yaml")
	writeFile(t, path, "suggestion: {limit: 5}\n")

	var mu sync.Mutex
	var got []*config.EngineConfig
	w := startWatcher(t, path, func(c *config.EngineConfig) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	})
	assert.Equal(t, 5, w.Current().Suggestion.Limit)

	writeFile(t, path, "suggestion: {limit: 8}\n")

	require.Eventually(t, func() bool { return w.Current().Suggestion.Limit == 8 }, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	assert.Equal(t, 8, got[len(got)-1].Suggestion.Limit)
}

func TestWatcher_KeepsPreviousOnInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tunables.yaml")
	writeFile(t, path, "mapping:\n  cutpoints: {major: 0.8}\n")

	w := startWatcher(t, path, nil)
	writeFile(t, path, "mapping:\n  cutpoints: {major: 0.1}\n")

	require.Eventually(t, func() bool {
		_, rejected := w.Reloads()
		return rejected > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.8, w.Current().Mapping.Cutpoints.Major)
}

func TestWatcher_AtomicRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tunables.yaml")
	writeFile(t, path, "text: {min_token_length: 2}\n")

	w := startWatcher(t, path, nil)

	tmp := filepath.Join(dir, ".tunables.yaml.tmp")
	writeFile(t, tmp, "text: {min_token_length: 3}\n")
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool { return w.Current().Text.MinTokenLength == 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tunables.yaml")
	writeFile(t, path, "")

	w := startWatcher(t, path, nil)
	writeFile(t, filepath.Join(dir, "other.yaml"), "not: [valid")

	time.Sleep(100 * time.Millisecond)
	applied, rejected := w.Reloads()
	assert.Zero(t, applied)
	assert.Zero(t, rejected)
}
