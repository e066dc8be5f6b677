// Package batch runs a corpus of papers through extraction and ingestion on
// a bounded worker pool, recording each paper's state in a resumable
// progress file.
package batch

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"papergraph/backend/internal/extraction"
	"papergraph/backend/internal/ingest"
	"papergraph/backend/internal/records"
	"papergraph/backend/internal/textsource"
	"papergraph/backend/pkg/logger"
)

// Extractor turns a document into a bundle; it never fails.
type Extractor interface {
	Extract(ctx context.Context, doc *extraction.Document) *records.Bundle
}

// Ingester writes one bundle atomically.
type Ingester interface {
	Ingest(ctx context.Context, b *records.Bundle) (*ingest.Report, error)
}

// Config controls a batch run
type Config struct {
	Workers      int
	ProgressPath string
	Resume       bool
}

// Driver owns the worker pool.
type Driver struct {
	cfg       Config
	extractor Extractor
	ingester  Ingester
	discover  func(string) ([]string, error)
	readText  func(string) (string, error)
	now       func() time.Time
	logger    *zap.Logger

	mu       sync.RWMutex
	progress *Progress
	queued   map[string]bool
	skipped  int
}

// Option configures a Driver
type Option func(*Driver)

// WithTextSource replaces textsource.ExtractText.
func WithTextSource(fn func(path string) (string, error)) Option {
	return func(d *Driver) { d.readText = fn }
}

// WithDiscover replaces textsource.Discover.
func WithDiscover(fn func(corpus string) ([]string, error)) Option {
	return func(d *Driver) { d.discover = fn }
}

// New creates a driver
func New(cfg Config, extractor Extractor, ingester Ingester, opts ...Option) *Driver {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	d := &Driver{
		cfg:       cfg,
		extractor: extractor,
		ingester:  ingester,
		discover:  textsource.Discover,
		readText:  textsource.ExtractText,
		now:       time.Now,
		logger:    logger.Get(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type work struct {
	id   string
	path string
}

// Run processes every supported file under corpus. Per-paper failures are
// recorded and never stop the batch; the error is only for failures before
// any paper starts.
func (d *Driver) Run(ctx context.Context, corpus string) (*Summary, error) {
	start := d.now()

	files, err := d.discover(corpus)
	if err != nil {
		return nil, fmt.Errorf("discovering corpus: %w", err)
	}

	var progress *Progress
	if d.cfg.Resume {
		progress, err = LoadProgress(d.cfg.ProgressPath)
		if err != nil {
			return nil, err
		}
	} else {
		progress = NewProgress(d.cfg.ProgressPath)
	}

	var queue []work
	ids := make(map[string]bool, len(files))
	pending := make(map[string]string)
	skipped := 0
	for _, f := range files {
		id := records.PaperIDFromPath(f)
		if id == "" {
			d.logger.Warn("skipping file without a usable name", zap.String("path", f))
			skipped++
			continue
		}
		if ids[id] {
			d.logger.Warn("skipping file with duplicate paper id",
				zap.String("paper_id", id),
				zap.String("path", f),
			)
			skipped++
			continue
		}
		ids[id] = true
		if e, ok := progress.Get(id); ok && e.Status.Done() {
			skipped++
			continue
		}
		pending[id] = f
		queue = append(queue, work{id: id, path: f})
	}
	if err := progress.Enqueue(pending); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.progress, d.skipped = progress, skipped
	d.queued = make(map[string]bool, len(queue))
	for _, w := range queue {
		d.queued[w.id] = true
	}
	d.mu.Unlock()

	d.logger.Info("batch started",
		zap.String("run_id", progress.RunID()),
		zap.String("progress_file", progress.Path()),
		zap.Int("papers", len(files)),
		zap.Int("queued", len(queue)),
		zap.Int("skipped", skipped),
		zap.Int("workers", d.cfg.Workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for _, w := range queue {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			d.process(gctx, w)
			return nil
		})
	}
	_ = g.Wait()

	summary := d.Snapshot()
	summary.Duration = d.now().Sub(start)
	summary.Interrupted = ctx.Err() != nil

	d.logger.Info("batch finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("succeeded_with_fallback", summary.SucceededWithFallback),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Bool("interrupted", summary.Interrupted),
		zap.Duration("took", summary.Duration),
	)
	return &summary, nil
}

// Snapshot returns the counts of the running (or last) batch. Papers finished
// by an earlier run are only counted as skipped.
func (d *Driver) Snapshot() Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.progress == nil {
		return Summary{}
	}
	s := d.progress.Summary(d.queued)
	s.Skipped = d.skipped
	return s
}

// process runs one paper end to end. It never returns an error; the outcome
// is recorded in the progress file.
func (d *Driver) process(ctx context.Context, w work) {
	log := logger.ForPaper(w.id)
	start := d.now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("paper processing panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			d.set(log, w.id, StatusFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	d.set(log, w.id, StatusInProgress, "")

	text, err := d.readText(w.path)
	if err != nil {
		d.set(log, w.id, StatusFailed, "text extraction: "+err.Error())
		return
	}
	if strings.TrimSpace(text) == "" {
		d.set(log, w.id, StatusFailed, "text extraction: no text")
		return
	}

	b := d.extractor.Extract(ctx, extraction.NewDocument(w.path, text))
	if ctx.Err() != nil {
		// left in_progress; resume picks it up
		log.Warn("paper interrupted before ingest")
		return
	}

	report, err := d.ingester.Ingest(ctx, b)
	if err != nil {
		d.set(log, w.id, StatusFailed, err.Error())
		return
	}

	status, reason := StatusSucceeded, ""
	if b.UsedFallback() {
		status, reason = StatusSucceededWithFallback, fallbackReason(b)
	}
	d.set(log, w.id, status, reason)

	log.Info("paper processed",
		zap.String("status", string(status)),
		zap.Int("nodes", report.NodesWritten),
		zap.Int("edges", report.EdgesWritten),
		zap.Int("new_entities", report.NewEntities),
		zap.Int("dropped", len(report.Dropped)),
		zap.Int("conflicts", report.Conflicts),
		zap.Bool("retried", report.Retried),
		zap.Duration("took", d.now().Sub(start)),
	)
}

func (d *Driver) set(log *zap.Logger, id string, status Status, reason string) {
	if status == StatusFailed {
		log.Warn("paper failed", zap.String("reason", reason))
	}
	d.mu.RLock()
	progress := d.progress
	d.mu.RUnlock()
	if err := progress.Set(id, status, reason); err != nil {
		log.Error("failed to save progress", zap.Error(err))
	}
}

// fallbackReason lists the stages that ran below the full model call.
func fallbackReason(b *records.Bundle) string {
	var parts []string
	for _, p := range b.Provenance {
		if p.Level.Fallback() {
			parts = append(parts, p.Stage+"="+string(p.Level))
		}
	}
	return strings.Join(parts, ", ")
}

// Print writes a human-readable summary.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "papers: %d\n", s.Total+s.Skipped)
	fmt.Fprintf(w, "  succeeded:               %d\n", s.Succeeded)
	fmt.Fprintf(w, "  succeeded with fallback: %d\n", s.SucceededWithFallback)
	fmt.Fprintf(w, "  failed:                  %d\n", s.Failed)
	fmt.Fprintf(w, "  skipped:                 %d\n", s.Skipped)
	if s.Pending+s.InProgress > 0 {
		fmt.Fprintf(w, "  not finished:            %d\n", s.Pending+s.InProgress)
	}
	if s.Interrupted {
		fmt.Fprintln(w, "run was interrupted; rerun with --resume to continue")
	}
	if len(s.TopFailures) > 0 {
		fmt.Fprintln(w, "top failure reasons:")
		for _, r := range s.TopFailures {
			fmt.Fprintf(w, "  %4d  %s\n", r.Count, r.Reason)
		}
	}
	if s.Duration > 0 {
		fmt.Fprintf(w, "took %s\n", s.Duration.Round(time.Millisecond))
	}
}
