package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"papergraph/backend/internal/conflict"
	"papergraph/backend/internal/graph"
	"papergraph/backend/internal/records"
	"papergraph/backend/internal/strength"
)

// writer issues one plan's writes inside a single transaction.
type writer struct {
	tx     graph.Tx
	p      *plan
	report *Report
	calc   *strength.Calculator
}

func (w *writer) paper(ctx context.Context) error {
	m := w.p.paper
	err := w.tx.MergePaper(ctx, graph.PaperNode{
		PaperID:          m.PaperID,
		Title:            m.Title,
		Abstract:         m.Abstract,
		Year:             m.Year,
		Journal:          m.Journal,
		DOI:              m.DOI,
		Keywords:         m.Keywords,
		Embedding:        m.Embedding,
		ExtractionStatus: w.p.status,
		ProcessedAt:      w.p.processedAt,
	})
	if err != nil {
		return fmt.Errorf("merge paper: %w", err)
	}
	w.report.NodesWritten++
	return nil
}

func (w *writer) authors(ctx context.Context) error {
	for i, a := range w.p.paper.Authors {
		position := a.Position
		if position == 0 {
			position = i
		}
		node := graph.AuthorNode{
			ID:          records.AuthorID(a),
			Name:        a.Name,
			ORCID:       a.ORCID,
			Email:       a.Email,
			Institution: a.Institution,
		}
		if err := w.tx.MergeAuthor(ctx, node, w.p.paper.PaperID, position); err != nil {
			return fmt.Errorf("merge author %q: %w", a.Name, err)
		}
		w.report.NodesWritten++
		w.report.EdgesWritten++
		if a.Institution != "" {
			w.report.NodesWritten++
			w.report.EdgesWritten++
		}
	}
	return nil
}

// ensureEntity merges a canonical node, resolving a disagreeing domain
// against the stored node.
func (w *writer) ensureEntity(ctx context.Context, label records.EntityType, name, domain string, confidence float64) error {
	existing, err := w.tx.GetEntity(ctx, label, name)
	if err != nil {
		return fmt.Errorf("read %s %q: %w", label, name, err)
	}
	node := graph.EntityNode{Label: label, Name: name, Domain: domain, DomainConfidence: confidence}
	if existing != nil {
		if domain == "" {
			return nil
		}
		plan := conflict.Resolve(
			conflict.Fact{Confidence: existing.DomainConfidence, Fields: map[string]string{"domain": existing.Domain}},
			conflict.Fact{Confidence: confidence, Fields: map[string]string{"domain": domain}},
		)
		w.count(plan)
		node.Domain = plan.Result.Fields["domain"]
		node.DomainConfidence = plan.Result.Confidence
		node.NeedsReview = existing.NeedsReview
		if plan.Action == conflict.ActionKeepBoth {
			// a node has one domain; keep the stored one and flag it
			node.Domain, node.DomainConfidence = existing.Domain, existing.DomainConfidence
			node.NeedsReview = true
		}
		if node == *existing {
			return nil
		}
	}
	if err := w.tx.MergeEntity(ctx, node); err != nil {
		return fmt.Errorf("merge %s %q: %w", label, name, err)
	}
	w.report.NodesWritten++
	return nil
}

func (w *writer) entities(ctx context.Context) error {
	for _, e := range w.p.entities {
		if err := w.ensureEntity(ctx, e.Type, e.Name, e.Domain, e.Confidence); err != nil {
			return err
		}
		incoming := graph.UsageEdge{
			PaperID:     w.p.paper.PaperID,
			Label:       e.Type,
			Name:        e.Name,
			Role:        string(e.Role),
			Section:     string(e.Section),
			Usage:       e.Usage,
			Confidence:  e.Confidence,
			ProcessedAt: w.p.processedAt,
		}
		if e.Section != "" {
			incoming.Sections = []string{string(e.Section)}
		}
		if err := w.usage(ctx, incoming); err != nil {
			return err
		}
	}
	return nil
}

// usage merges a Paper to entity edge, resolving it against the edges the
// paper already has to the same node.
func (w *writer) usage(ctx context.Context, incoming graph.UsageEdge) error {
	existing, err := w.tx.UsageEdges(ctx, incoming.PaperID, incoming.Label, incoming.Name)
	if err != nil {
		return fmt.Errorf("read usage %s %q: %w", incoming.Label, incoming.Name, err)
	}

	out := incoming
	var primary *graph.UsageEdge
	for i := range existing {
		if existing[i].Variant == "" {
			primary = &existing[i]
		}
	}

	if primary != nil {
		plan := conflict.Resolve(usageFact(*primary), usageFact(incoming))
		w.count(plan)
		switch plan.Action {
		case conflict.ActionKeepBoth:
			// the stored edge stays and is flagged; the incoming reading
			// lands on its own variant edge
			flagged := *primary
			flagged.NeedsReview = true
			if err := w.mergeUsage(ctx, flagged); err != nil {
				return err
			}
			out = incoming
			out.NeedsReview = true
			out.Variant = variantKey(incoming, existing)
		default:
			out = fromUsageFact(plan.Result, *primary, incoming, plan.Action)
		}
	}
	return w.mergeUsage(ctx, out)
}

func (w *writer) mergeUsage(ctx context.Context, e graph.UsageEdge) error {
	if err := w.tx.MergeUsage(ctx, e); err != nil {
		return fmt.Errorf("merge usage %s %q: %w", e.Label, e.Name, err)
	}
	w.report.EdgesWritten++
	return nil
}

func (w *writer) methods(ctx context.Context) error {
	for _, m := range w.p.methods {
		d := m.detail
		if err := w.ensureEntity(ctx, records.TypeMethod, d.Method, "", d.Confidence); err != nil {
			return err
		}

		// method details ride on the paper's USES_METHOD edge
		existing, err := w.tx.UsageEdges(ctx, w.p.paper.PaperID, records.TypeMethod, d.Method)
		if err != nil {
			return fmt.Errorf("read usage Method %q: %w", d.Method, err)
		}
		edge := graph.UsageEdge{
			PaperID:     w.p.paper.PaperID,
			Label:       records.TypeMethod,
			Name:        d.Method,
			Role:        string(records.RoleSupporting),
			Confidence:  d.Confidence,
			ProcessedAt: w.p.processedAt,
		}
		for _, e := range existing {
			if e.Variant == "" {
				edge = e
			}
		}
		if d.SampleSize > 0 {
			edge.SampleSize = d.SampleSize
		}
		edge.StatisticalTests = union(edge.StatisticalTests, d.StatisticalTests)
		if err := w.mergeUsage(ctx, edge); err != nil {
			return err
		}

		for _, res := range []struct {
			label records.EntityType
			names []string
		}{
			{records.TypeSoftware, m.software},
			{records.TypeDataset, m.datasets},
		} {
			for _, name := range res.names {
				if err := w.ensureEntity(ctx, res.label, name, "", d.Confidence); err != nil {
					return err
				}
				err := w.tx.MergeResource(ctx, graph.ResourceEdge{
					Method:  d.Method,
					Label:   res.label,
					Name:    name,
					PaperID: w.p.paper.PaperID,
				})
				if err != nil {
					return fmt.Errorf("merge %s %q: %w", res.label, name, err)
				}
				w.report.EdgesWritten++
			}
		}
	}
	return nil
}

func (w *writer) statements(ctx context.Context) error {
	for _, s := range w.p.statements {
		node := graph.StatementNode{
			ID:         records.StatementID(w.p.paper.PaperID, s.Type, s.Text),
			Label:      s.Type,
			PaperID:    w.p.paper.PaperID,
			Text:       s.Text,
			Kind:       s.Kind,
			Confidence: s.Confidence,
		}
		if err := w.tx.MergeStatement(ctx, node); err != nil {
			return fmt.Errorf("merge %s: %w", s.Type, err)
		}
		w.report.NodesWritten++
		w.report.EdgesWritten++
	}
	return nil
}

func (w *writer) relationships(ctx context.Context) error {
	for _, r := range w.p.relationships {
		if !w.calc.Persist(r.Strength) {
			w.report.BelowThreshold++
			continue
		}
		if err := w.ensureEntity(ctx, records.TypeTheory, r.Theory, "", 0); err != nil {
			return err
		}
		if err := w.ensureEntity(ctx, records.TypePhenomenon, r.Phenomenon, "", 0); err != nil {
			return err
		}
		err := w.tx.MergeExplains(ctx, graph.ExplainsEdge{
			Theory:            r.Theory,
			Phenomenon:        r.Phenomenon,
			PaperID:           w.p.paper.PaperID,
			Strength:          r.Strength,
			TheorySection:     r.TheorySection,
			PhenomenonSection: r.PhenomenonSection,
			Evidence:          r.Evidence,
		})
		if err != nil {
			return fmt.Errorf("merge EXPLAINS %q -> %q: %w", r.Theory, r.Phenomenon, err)
		}
		w.report.EdgesWritten++

		if _, err := w.tx.ApplyAggregate(ctx, r.Theory, r.Phenomenon, w.p.paper.PaperID, r.Strength.Total); err != nil {
			return fmt.Errorf("apply aggregate %q -> %q: %w", r.Theory, r.Phenomenon, err)
		}
		w.report.EdgesWritten++
	}
	return nil
}

func (w *writer) count(plan conflict.Plan) {
	if len(plan.Conflicts) > 0 {
		w.report.Conflicts++
	}
	if plan.NeedsReview {
		w.report.NeedsReview++
	}
}

// ============================================================================
// Usage edge <-> conflict.Fact
// ============================================================================

func usageFact(e graph.UsageEdge) conflict.Fact {
	return conflict.Fact{
		Key:         e.PaperID + "|" + string(e.Label) + "|" + e.Name,
		PaperID:     e.PaperID,
		Confidence:  e.Confidence,
		ProcessedAt: e.ProcessedAt,
		Fields:      map[string]string{"role": e.Role, "usage": e.Usage},
		Mergeable:   map[string]bool{"usage": true},
		Additive:    map[string][]string{"sections": e.Sections},
	}
}

// fromUsageFact rebuilds the primary edge from a resolved fact. The single
// section follows the winning side; every section is kept in Sections.
func fromUsageFact(f conflict.Fact, existing, incoming graph.UsageEdge, action conflict.Action) graph.UsageEdge {
	out := existing
	out.Role = f.Fields["role"]
	out.Usage = f.Fields["usage"]
	out.Confidence = f.Confidence
	out.ProcessedAt = f.ProcessedAt
	out.Sections = f.Additive["sections"]
	if action == conflict.ActionTakeIncoming && incoming.Section != "" {
		out.Section = incoming.Section
	}
	if out.Section == "" {
		out.Section = incoming.Section
	}
	return out
}

// variantKey returns the variant for a kept-both reading: the variant it
// already occupies when an identical reading was stored before, otherwise a
// deterministic key derived from the reading itself.
func variantKey(incoming graph.UsageEdge, existing []graph.UsageEdge) string {
	for _, e := range existing {
		if e.Variant != "" && strings.EqualFold(e.Role, incoming.Role) && strings.EqualFold(e.Usage, incoming.Usage) {
			return e.Variant
		}
	}
	sum := uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(incoming.Role+"\x00"+incoming.Usage)))
	return "alt-" + sum.String()[:8]
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			k := strings.ToLower(strings.TrimSpace(v))
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}
