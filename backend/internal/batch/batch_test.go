package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papergraph/backend/internal/extraction"
	"papergraph/backend/internal/ingest"
	"papergraph/backend/internal/records"
)

// fakeExtractor returns a minimal bundle; papers named in fallback are
// marked as having used a rule fallback.
type fakeExtractor struct {
	fallback map[string]bool
	panics   map[string]bool
	delay    time.Duration

	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeExtractor) Extract(ctx context.Context, doc *extraction.Document) *records.Bundle {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics[doc.PaperID] {
		panic("boom")
	}

	b := &records.Bundle{Paper: records.PaperMetadata{PaperID: doc.PaperID, Title: doc.Text}}
	b.Record("metadata", records.LevelModel, "")
	if f.fallback[doc.PaperID] {
		b.Record("relationships", records.LevelRules, "model timed out")
	}
	return b
}

type fakeIngester struct {
	mu       sync.Mutex
	fail     map[string]error
	ingested []string
}

func (f *fakeIngester) Ingest(ctx context.Context, b *records.Bundle) (*ingest.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[b.Paper.PaperID]; err != nil {
		return nil, err
	}
	f.ingested = append(f.ingested, b.Paper.PaperID)
	return &ingest.Report{PaperID: b.Paper.PaperID, NodesWritten: 1}, nil
}

func (f *fakeIngester) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.ingested...)
	sort.Strings(out)
	return out
}

func corpus(names ...string) func(string) ([]string, error) {
	return func(string) ([]string, error) {
		var out []string
		for _, n := range names {
			out = append(out, "/corpus/"+n)
		}
		return out, nil
	}
}

func textOf(path string) (string, error) {
	if strings.Contains(path, "empty") {
		return "  ", nil
	}
	if strings.Contains(path, "broken") {
		return "", errors.New("malformed pdf")
	}
	return "Title of " + filepath.Base(path), nil
}

func newDriver(cfg Config, ex Extractor, in Ingester, files ...string) *Driver {
	return New(cfg, ex, in, WithDiscover(corpus(files...)), WithTextSource(textOf))
}

func TestRun_Statuses(t *testing.T) {
	progressPath := filepath.Join(t.TempDir(), "progress.json")
	ex := &fakeExtractor{fallback: map[string]bool{"b": true}}
	in := &fakeIngester{fail: map[string]error{"c": errors.New("ingest of paper c failed: neo4j unavailable")}}

	d := newDriver(Config{Workers: 2, ProgressPath: progressPath}, ex, in,
		"a.txt", "b.pdf", "c.html", "broken.pdf", "empty.txt")
	s, err := d.Run(context.Background(), "/corpus")
	require.NoError(t, err)

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.SucceededWithFallback)
	assert.Equal(t, 3, s.Failed)
	assert.Equal(t, 0, s.Skipped)
	assert.Len(t, s.TopFailures, 3)
	assert.Equal(t, []string{"a", "b"}, in.ids())

	p, err := LoadProgress(progressPath)
	require.NoError(t, err)
	e, ok := p.Get("b")
	require.True(t, ok)
	assert.Equal(t, StatusSucceededWithFallback, e.Status)
	assert.Equal(t, "relationships=rules", e.Reason)
	assert.Equal(t, 1, e.Attempts)
	assert.Equal(t, "/corpus/b.pdf", e.Path)

	e, _ = p.Get("broken")
	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, "text extraction: malformed pdf", e.Reason)
	e, _ = p.Get("empty")
	assert.Equal(t, "text extraction: no text", e.Reason)
}

func TestRun_ResumeSkipsFinishedPapers(t *testing.T) {
	progressPath := filepath.Join(t.TempDir(), "progress.json")
	in := &fakeIngester{fail: map[string]error{"b": errors.New("transient")}}

	_, err := newDriver(Config{Workers: 1, ProgressPath: progressPath}, &fakeExtractor{}, in, "a.txt", "b.txt").
		Run(context.Background(), "/corpus")
	require.NoError(t, err)

	// second run: b now succeeds, c is new
	in2 := &fakeIngester{}
	s, err := newDriver(Config{Workers: 1, ProgressPath: progressPath, Resume: true}, &fakeExtractor{}, in2, "a.txt", "b.txt", "c.txt").
		Run(context.Background(), "/corpus")
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c"}, in2.ids())
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 0, s.Failed)

	p, err := LoadProgress(progressPath)
	require.NoError(t, err)
	e, _ := p.Get("b")
	assert.Equal(t, 2, e.Attempts)
	assert.Empty(t, e.Reason)
}

func TestRun_ResumeReprocessesInProgress(t *testing.T) {
	progressPath := filepath.Join(t.TempDir(), "progress.json")
	p := NewProgress(progressPath)
	require.NoError(t, p.Enqueue(map[string]string{"a": "/corpus/a.txt", "b": "/corpus/b.txt"}))
	require.NoError(t, p.Set("a", StatusInProgress, ""))
	require.NoError(t, p.Set("b", StatusSucceeded, ""))

	in := &fakeIngester{}
	s, err := newDriver(Config{Workers: 1, ProgressPath: progressPath, Resume: true}, &fakeExtractor{}, in, "a.txt", "b.txt").
		Run(context.Background(), "/corpus")
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, in.ids())
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.Skipped)
}

func TestRun_NoResumeStartsFresh(t *testing.T) {
	progressPath := filepath.Join(t.TempDir(), "progress.json")
	p := NewProgress(progressPath)
	require.NoError(t, p.Set("a", StatusSucceeded, ""))
	require.NoError(t, p.Set("gone", StatusFailed, "old"))

	in := &fakeIngester{}
	s, err := newDriver(Config{Workers: 1, ProgressPath: progressPath}, &fakeExtractor{}, in, "a.txt").
		Run(context.Background(), "/corpus")
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, in.ids())
	assert.Equal(t, 0, s.Skipped)

	reloaded, err := LoadProgress(progressPath)
	require.NoError(t, err)
	_, ok := reloaded.Get("gone")
	assert.False(t, ok)
}

func TestRun_PanicIsRecordedAndBatchContinues(t *testing.T) {
	ex := &fakeExtractor{panics: map[string]bool{"bad": true}}
	in := &fakeIngester{}

	d := newDriver(Config{Workers: 2}, ex, in, "bad.txt", "good.txt")
	s, err := d.Run(context.Background(), "/corpus")
	require.NoError(t, err)

	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Succeeded)
	require.Len(t, s.TopFailures, 1)
	assert.Equal(t, "panic: boom", s.TopFailures[0].Reason)
}

func TestRun_BoundedWorkers(t *testing.T) {
	var files []string
	for i := 0; i < 12; i++ {
		files = append(files, fmt.Sprintf("p%02d.txt", i))
	}
	ex := &fakeExtractor{delay: 5 * time.Millisecond}

	s, err := newDriver(Config{Workers: 3}, ex, &fakeIngester{}, files...).Run(context.Background(), "/corpus")
	require.NoError(t, err)

	assert.Equal(t, 12, s.Succeeded)
	assert.LessOrEqual(t, ex.maxSeen.Load(), int32(3))
}

func TestRun_DuplicatePaperIDsAreSkipped(t *testing.T) {
	in := &fakeIngester{}
	s, err := newDriver(Config{Workers: 1}, &fakeExtractor{}, in, "a.pdf", "a.txt").Run(context.Background(), "/corpus")
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, in.ids())
	assert.Equal(t, 1, s.Skipped)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := &fakeIngester{}
	s, err := newDriver(Config{Workers: 1}, &fakeExtractor{}, in, "a.txt").Run(ctx, "/corpus")
	require.NoError(t, err)

	assert.True(t, s.Interrupted)
	assert.Empty(t, in.ids())
	assert.Equal(t, 1, s.Pending)
}

func TestRun_DiscoverErrorIsFatal(t *testing.T) {
	d := New(Config{}, &fakeExtractor{}, &fakeIngester{},
		WithDiscover(func(string) ([]string, error) { return nil, os.ErrNotExist }))
	_, err := d.Run(context.Background(), "/missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProgress_AtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "progress.json")
	p := NewProgress(path)
	assert.Equal(t, path, p.Path())
	require.NoError(t, p.Set("a", StatusFailed, strings.Repeat("x", 1000)))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored progressFile
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, p.RunID(), stored.RunID)
	assert.Len(t, stored.Papers["a"].Reason, 300)
}

func TestProgress_LoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	p, err := LoadProgress(filepath.Join(dir, "none.json"))
	require.NoError(t, err)
	assert.Zero(t, p.Summary(nil).Total)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = LoadProgress(bad)
	assert.Error(t, err)
}

func TestTopReasons(t *testing.T) {
	got := topReasons(map[string]int{"a": 1, "b": 3, "c": 3, "d": 2, "e": 1, "f": 1}, 5)
	require.Len(t, got, 5)
	assert.Equal(t, []Reason{{"b", 3}, {"c", 3}, {"d", 2}, {"a", 1}, {"e", 1}}, got)
	assert.Nil(t, topReasons(nil, 5))
}

func TestSummaryPrint(t *testing.T) {
	var sb strings.Builder
	Summary{Total: 3, Succeeded: 2, Failed: 1, Skipped: 1, TopFailures: []Reason{{"timeout", 1}}}.Print(&sb)
	out := sb.String()
	assert.Contains(t, out, "papers: 4")
	assert.Contains(t, out, "failed:                  1")
	assert.Contains(t, out, "timeout")
}
