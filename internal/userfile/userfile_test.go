package userfile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/FocuswithJustin/obosync/core/errors"
	"github.com/FocuswithJustin/obosync/core/obo"
	"github.com/FocuswithJustin/obosync/core/roundtrip"
	"github.com/FocuswithJustin/obosync/internal/validation"
)

const goodOBO = `format-version: 1.2

[Term]
id: SBO:0000001
name: rate law
is_a: SBO:0000000 ! root

[Typedef]
id: part_of
name: part of
`

func newProcessor(t *testing.T) *Processor {
	t.Helper()
	return NewProcessor(filepath.Join(t.TempDir(), "customerfile"),
		obo.NewParser(), obo.NewSerializer(nil, nil), roundtrip.NewValidator())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestProcessOBO(t *testing.T) {
	p := newProcessor(t)
	src := writeFile(t, "upload.obo", goodOBO)

	res, err := p.Process(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, validation.FileTypeOBO, res.Type)
	assert.Equal(t, filepath.Join(p.Dir, "upload_user_upload.json"), res.JSONPath)
	assert.Equal(t, roundtrip.StrategyExact, res.Roundtrip.Strategy)
	assert.Equal(t, 1, res.Stats.TotalTerms)
	assert.Equal(t, 1, res.Stats.TypedefCount)
	assert.Equal(t, goodOBO, string(res.OBOText))

	// only the JSON survives
	assert.Equal(t, []string{"upload_user_upload.json"}, dirNames(t, p.Dir))

	data, err := os.ReadFile(res.JSONPath)
	require.NoError(t, err)
	doc, err := obo.DecodeJSON(data)
	require.NoError(t, err)
	assert.True(t, doc.Equal(res.Document))

	// source untouched
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestProcessOBOWithoutName(t *testing.T) {
	p := newProcessor(t)
	src := writeFile(t, "bad.obo", "[Term]\nid: SBO:1\n")

	_, err := p.Process(context.Background(), src)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "Term 1 missing name field")
	assert.Empty(t, dirNames(t, p.Dir))
}

func TestProcessJSON(t *testing.T) {
	p := newProcessor(t)
	data, err := obo.EncodeJSON(obo.Parse(goodOBO))
	require.NoError(t, err)
	src := writeFile(t, "upload.json", string(data))

	res, err := p.Process(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, validation.FileTypeJSON, res.Type)
	assert.Equal(t, filepath.Join(p.Dir, "upload.json"), res.JSONPath)
	assert.True(t, res.Stats.HasTypedefs)
	assert.Equal(t, goodOBO, string(res.OBOText))
}

func TestProcessInvalidJSON(t *testing.T) {
	p := newProcessor(t)
	src := writeFile(t, "upload.json", `{"header":{}}`)

	_, err := p.Process(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing required field: terms")
	assert.Empty(t, dirNames(t, p.Dir))
}

func TestProcessRejects(t *testing.T) {
	p := newProcessor(t)

	_, err := p.Process(context.Background(), filepath.Join(t.TempDir(), "missing.obo"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = p.Process(context.Background(), writeFile(t, "notes.txt", "hello"))
	assert.ErrorIs(t, err, apperrors.ErrUnsupported)

	_, err = p.Process(context.Background(), writeFile(t, "blob.obo", "\x00\x01\x02\x03"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = p.Process(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestReset(t *testing.T) {
	p := newProcessor(t)
	_, err := p.Process(context.Background(), writeFile(t, "upload.obo", goodOBO))
	require.NoError(t, err)

	n, err := p.Reset()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, dirNames(t, p.Dir))
}

func TestWatcherMatches(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), "*.{obo,json}", func(context.Context, string) {})
	require.NoError(t, err)
	assert.True(t, w.Matches("/tmp/x/a.obo"))
	assert.True(t, w.Matches("b.json"))
	assert.False(t, w.Matches("c.txt"))

	_, err = NewWatcher(t.TempDir(), "[", nil)
	assert.Error(t, err)
}

func TestWatcherHandlesDroppedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "early.obo"), []byte(goodOBO), 0644))

	var mu sync.Mutex
	var handled []string
	w, err := NewWatcher(dir, "*.obo", func(_ context.Context, path string) {
		mu.Lock()
		handled = append(handled, filepath.Base(path))
		mu.Unlock()
	})
	require.NoError(t, err)
	w.Debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.obo"), []byte(goodOBO), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"early.obo", "late.obo"}, handled)
}

func TestTickInterval(t *testing.T) {
	tests := []struct {
		debounce time.Duration
		want     time.Duration
	}{
		{DefaultDebounce, DefaultDebounce / 2},
		{50 * time.Millisecond, 25 * time.Millisecond},
		{time.Nanosecond, time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tickInterval(tt.debounce), "debounce %v", tt.debounce)
	}
}

func TestWatcherTinyDebounce(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second, time.Nanosecond} {
		w, err := NewWatcher(t.TempDir(), "*.obo", func(context.Context, string) {})
		require.NoError(t, err)
		w.Debounce = d

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()
		cancel()
		require.NoError(t, <-done, "debounce %v", d)
		if d <= 0 {
			assert.Equal(t, DefaultDebounce, w.Debounce)
		}
	}
}
