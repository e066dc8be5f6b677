// Package ingest writes one paper's validated, normalized extraction bundle
// to the graph store in a single transaction.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"papergraph/backend/internal/graph"
	"papergraph/backend/internal/normalize"
	"papergraph/backend/internal/records"
	"papergraph/backend/internal/strength"
	"papergraph/backend/internal/validation"
	apperrors "papergraph/backend/pkg/errors"
	"papergraph/backend/pkg/logger"
)

// Report describes what one ingestion wrote.
type Report struct {
	PaperID        string            `json:"paper_id"`
	NodesWritten   int               `json:"nodes_written"`
	EdgesWritten   int               `json:"edges_written"`
	NewEntities    int               `json:"new_entities"`
	Dropped        []validation.Drop `json:"dropped,omitempty"`
	Conflicts      int               `json:"conflicts"`
	NeedsReview    int               `json:"needs_review"`
	BelowThreshold int               `json:"below_threshold"`
	Retried        bool              `json:"retried"`
}

func (r *Report) resetWrites() {
	r.NodesWritten, r.EdgesWritten = 0, 0
	r.Conflicts, r.NeedsReview, r.BelowThreshold = 0, 0, 0
}

// Ingester owns the validate, normalize, resolve and write sequence.
type Ingester struct {
	store      graph.Store
	validator  *validation.Validator
	normalizer *normalize.Normalizer
	calc       *strength.Calculator
	now        func() time.Time
	logger     *zap.Logger
}

// New creates an ingester
func New(store graph.Store, validator *validation.Validator, normalizer *normalize.Normalizer, calc *strength.Calculator) *Ingester {
	return &Ingester{
		store:      store,
		validator:  validator,
		normalizer: normalizer,
		calc:       calc,
		now:        time.Now,
		logger:     logger.Get(),
	}
}

// Ingest writes b in one transaction. Any error rolls the whole paper back.
// A transient store error retries the transaction exactly once; individual
// writes are never retried.
func (in *Ingester) Ingest(ctx context.Context, b *records.Bundle) (*Report, error) {
	clean, drops := in.validator.FilterBundle(b)
	if clean.ProcessedAt.IsZero() {
		clean.ProcessedAt = in.now().UTC()
	}
	p := in.prepare(ctx, clean, drops)

	report := &Report{
		PaperID:     p.paper.PaperID,
		Dropped:     p.drops,
		NewEntities: p.newEntities,
	}

	err := in.write(ctx, p, report)
	if err != nil && ctx.Err() == nil && in.store.IsTransient(err) {
		in.logger.Warn("Transient store error, retrying transaction",
			zap.String("paper_id", p.paper.PaperID),
			zap.Error(err),
		)
		report.resetWrites()
		report.Retried = true
		err = in.write(ctx, p, report)
	}
	if err != nil {
		return report, apperrors.NewIngestFailed(p.paper.PaperID, report.Retried, err)
	}

	in.logger.Info("Paper ingested",
		zap.String("paper_id", report.PaperID),
		zap.Int("nodes", report.NodesWritten),
		zap.Int("edges", report.EdgesWritten),
		zap.Int("dropped", len(report.Dropped)),
		zap.Int("conflicts", report.Conflicts),
		zap.Int("needs_review", report.NeedsReview),
		zap.Int("below_threshold", report.BelowThreshold),
		zap.Float64("threshold", in.calc.Threshold()),
		zap.Bool("retried", report.Retried),
	)
	return report, nil
}

func (in *Ingester) write(ctx context.Context, p *plan, report *Report) (err error) {
	tx, err := in.store.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			// the caller's context may already be done
			if rbErr := tx.Rollback(context.Background()); rbErr != nil {
				in.logger.Warn("Rollback failed", zap.String("paper_id", p.paper.PaperID), zap.Error(rbErr))
			}
		}
	}()

	w := &writer{tx: tx, p: p, report: report, calc: in.calc}
	steps := []func(context.Context) error{
		w.paper,
		w.authors,
		w.entities,
		w.methods,
		w.statements,
		w.relationships,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit paper %s: %w", p.paper.PaperID, err)
	}
	committed = true
	return nil
}

func statusOf(b *records.Bundle) string {
	if b.UsedFallback() {
		return graph.StatusFallback
	}
	return graph.StatusComplete
}
