package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benjaminschreck/go-clause/pkg/clause"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := New(clause.NewWithConfig(&clause.Config{}), 20*time.Millisecond)
	require.NoError(t, err)
	return w
}

// waitResult returns the first result for path that satisfies match.
// Editors and os.WriteFile may produce several events per change.
func waitResult(t *testing.T, results <-chan Result, path string, match func(Result) bool) Result {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case r := <-results:
			if r.Path == path && match(r) {
				return r
			}
		case <-timeout:
			t.Fatalf("no result for %s", path)
			return Result{}
		}
	}
}

func TestWatcherReportsChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w := newTestWatcher(t)
	require.NoError(t, w.Watch(dir))

	results := make(chan Result, 16)
	w.AddHandler(func(r Result) { results <- r })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	valid := filepath.Join(dir, "lease.txt")
	require.NoError(t, os.WriteFile(valid, []byte("Dated: ${DATE}"), 0o644))
	r := waitResult(t, results, valid, Result.Valid)
	assert.Equal(t, []string{"DATE"}, r.Template.Fields())

	invalid := filepath.Join(dir, "broken.tmpl")
	require.NoError(t, os.WriteFile(invalid, []byte("${P_START}${NAME}"), 0o644))
	r = waitResult(t, results, invalid, func(r Result) bool { return r.Err != nil })
	assert.False(t, r.Valid())
	assert.True(t, clause.IsSyntaxError(r.Err))

	require.NoError(t, os.Remove(valid))
	r = waitResult(t, results, valid, func(r Result) bool { return r.Removed })
	assert.Nil(t, r.Template)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w := newTestWatcher(t)
	require.NoError(t, w.Watch(dir))

	results := make(chan Result, 16)
	w.AddHandler(func(r Result) { results <- r })
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	sub := filepath.Join(dir, "leases", "2026")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	first := filepath.Join(sub, "first.txt")
	require.NoError(t, os.WriteFile(first, []byte("${TENANT}"), 0o644))
	waitResult(t, results, first, Result.Valid)

	// The directory is watched now, so later files are reported too.
	second := filepath.Join(sub, "second.tmpl")
	require.NoError(t, os.WriteFile(second, []byte("${P_START}"), 0o644))
	r := waitResult(t, results, second, func(r Result) bool { return r.Err != nil })
	assert.True(t, clause.IsSyntaxError(r.Err))

	hidden := filepath.Join(dir, ".drafts")
	require.NoError(t, os.Mkdir(hidden, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(hidden, "draft.txt"), []byte("${A}"), 0o644))
	marker := filepath.Join(dir, "marker.txt")
	require.NoError(t, os.WriteFile(marker, []byte("${A}"), 0o644))
	waitResult(t, results, marker, Result.Valid)

	require.NoError(t, w.Stop())
	close(results)
	for r := range results {
		assert.NotContains(t, r.Path, ".drafts")
	}
}

func TestWatcherIgnoresFilteredFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w := newTestWatcher(t)
	require.NoError(t, w.Watch(dir))
	w.AddFilter(func(path string) bool { return filepath.Base(path) != "skip.txt" })

	results := make(chan Result, 16)
	w.AddHandler(func(r Result) { results <- r })
	require.NoError(t, w.Start(context.Background()))

	for _, name := range []string{"notes.md", ".hidden.txt", "~$lock.docx", "skip.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("${A}"), 0o644))
	}
	marker := filepath.Join(dir, "marker.txt")
	require.NoError(t, os.WriteFile(marker, []byte("${A}"), 0o644))

	waitResult(t, results, marker, Result.Valid)

	require.NoError(t, w.Stop())
	close(results)
	for r := range results {
		assert.Equal(t, marker, r.Path, "unexpected result for filtered file")
	}
}

func TestWatchRejectsFiles(t *testing.T) {
	w := newTestWatcher(t)
	defer w.Stop()

	file := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.Error(t, w.Watch(file))
	assert.Error(t, w.Watch(filepath.Join(t.TempDir(), "missing")))
}

func TestStopWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t)
	w := newTestWatcher(t)
	assert.NoError(t, w.Stop())
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	engine := clause.NewWithConfig(&clause.Config{})

	good := filepath.Join(dir, "good.txt")
	require.NoError(t, os.WriteFile(good, []byte("${A}"), 0o644))
	assert.True(t, Check(engine, good).Valid())

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("${A}${P_START}${A}${P_END}"), 0o644))
	r := Check(engine, bad)
	assert.True(t, clause.IsAmbiguousScopeError(r.Err))

	r = Check(engine, filepath.Join(dir, "gone.txt"))
	assert.True(t, r.Removed)
	assert.NoError(t, r.Err)
}

func TestFilters(t *testing.T) {
	assert.True(t, TemplateFilter("a/contract.docx"))
	assert.True(t, TemplateFilter("a/contract.DOCX"))
	assert.True(t, TemplateFilter("notes.txt"))
	assert.True(t, TemplateFilter("x.tmpl"))
	assert.False(t, TemplateFilter("x.go"))

	assert.True(t, NoHiddenFilter("dir/contract.docx"))
	assert.False(t, NoHiddenFilter("dir/.contract.docx"))
	assert.False(t, NoHiddenFilter("dir/~$contract.docx"))
}
