package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"papergraph/backend/internal/constants"
)

// Status is the processing state of one paper.
type Status string

const (
	StatusPending               Status = "pending"
	StatusInProgress            Status = "in_progress"
	StatusSucceeded             Status = "succeeded"
	StatusSucceededWithFallback Status = "succeeded_with_fallback"
	StatusFailed                Status = "failed"
)

// Done reports whether a paper needs no further processing on resume.
func (s Status) Done() bool {
	return s == StatusSucceeded || s == StatusSucceededWithFallback
}

// Entry is one paper in the progress file.
type Entry struct {
	Path      string    `json:"path"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updated_at"`
}

type progressFile struct {
	RunID     string            `json:"run_id"`
	StartedAt time.Time         `json:"started_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Papers    map[string]*Entry `json:"papers"`
}

// Progress is the persistent paper id -> status map. Every change is written
// to disk before the call returns.
type Progress struct {
	mu   sync.Mutex
	path string
	data progressFile
	now  func() time.Time
}

// NewProgress starts an empty progress file at path. Nothing is written until
// the first change. An empty path keeps progress in memory only.
func NewProgress(path string) *Progress {
	now := time.Now().UTC()
	return &Progress{
		path: path,
		data: progressFile{
			RunID:     uuid.NewString(),
			StartedAt: now,
			UpdatedAt: now,
			Papers:    make(map[string]*Entry),
		},
		now: time.Now,
	}
}

// LoadProgress reads the progress file at path. A missing file yields empty
// progress.
func LoadProgress(path string) (*Progress, error) {
	p := NewProgress(path)
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading progress file: %w", err)
	}
	var stored progressFile
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parsing progress file %s: %w", path, err)
	}
	if stored.Papers == nil {
		stored.Papers = make(map[string]*Entry)
	}
	p.data = stored
	return p, nil
}

// Path returns the file the progress is saved to.
func (p *Progress) Path() string {
	return p.path
}

// RunID identifies the run that created the file.
func (p *Progress) RunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data.RunID
}

// Get returns a copy of the entry for id.
func (p *Progress) Get(id string) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.data.Papers[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Enqueue marks papers pending in one write. Papers already done keep their
// status.
func (p *Progress) Enqueue(papers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now().UTC()
	for id, path := range papers {
		e, ok := p.data.Papers[id]
		if !ok {
			p.data.Papers[id] = &Entry{Path: path, Status: StatusPending, UpdatedAt: now}
			continue
		}
		if !e.Status.Done() {
			e.Path = path
			e.Status = StatusPending
			e.UpdatedAt = now
		}
	}
	return p.saveLocked()
}

// Set records a status change and saves the file. Moving to in_progress
// counts an attempt.
func (p *Progress) Set(id string, status Status, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.data.Papers[id]
	if !ok {
		e = &Entry{}
		p.data.Papers[id] = e
	}
	e.Status = status
	e.Reason = truncate(reason, constants.MaxReasonLength)
	e.UpdatedAt = p.now().UTC()
	if status == StatusInProgress {
		e.Attempts++
	}
	return p.saveLocked()
}

// saveLocked writes the file through a temp file and rename, so a crash
// leaves either the old or the new version on disk.
func (p *Progress) saveLocked() error {
	if p.path == "" {
		return nil
	}
	p.data.UpdatedAt = p.now().UTC()
	data, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding progress: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating progress directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp progress file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing progress: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing progress: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		return fmt.Errorf("replacing progress file: %w", err)
	}
	return nil
}

// Reason is a failure reason and how many papers failed with it.
type Reason struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// Summary counts papers by status.
type Summary struct {
	RunID                 string        `json:"run_id"`
	Total                 int           `json:"total"`
	Pending               int           `json:"pending"`
	InProgress            int           `json:"in_progress"`
	Succeeded             int           `json:"succeeded"`
	SucceededWithFallback int           `json:"succeeded_with_fallback"`
	Failed                int           `json:"failed"`
	Skipped               int           `json:"skipped"`
	TopFailures           []Reason      `json:"top_failures,omitempty"`
	Duration              time.Duration `json:"duration,omitempty"`
	Interrupted           bool          `json:"interrupted,omitempty"`
}

// Summary counts the entries whose ids are in only, or every entry when only
// is nil.
func (p *Progress) Summary(only map[string]bool) Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Summary{RunID: p.data.RunID}
	reasons := make(map[string]int)
	for id, e := range p.data.Papers {
		if only != nil && !only[id] {
			continue
		}
		s.Total++
		switch e.Status {
		case StatusPending:
			s.Pending++
		case StatusInProgress:
			s.InProgress++
		case StatusSucceeded:
			s.Succeeded++
		case StatusSucceededWithFallback:
			s.SucceededWithFallback++
		case StatusFailed:
			s.Failed++
			reasons[e.Reason]++
		}
	}
	s.TopFailures = topReasons(reasons, constants.TopFailureReasons)
	return s
}

func topReasons(counts map[string]int, n int) []Reason {
	out := make([]Reason, 0, len(counts))
	for r, c := range counts {
		out = append(out, Reason{Reason: r, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	if len(out) > n {
		out = out[:n]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
