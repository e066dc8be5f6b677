package extraction

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"papergraph/backend/internal/constants"
	"papergraph/backend/internal/normalize"
	"papergraph/backend/internal/records"
	"papergraph/backend/internal/strength"
)

// ============================================================================
// Stage 5: Theory to Phenomenon relationships
// ============================================================================

// candidate is a theory/phenomenon pair before scoring.
type candidate struct {
	Theory            string
	Phenomenon        string
	TheorySection     records.Section
	PhenomenonSection records.Section
	Evidence          string
}

func (r *run) relationships(ctx context.Context) {
	theories := r.b.EntitiesOf(records.TypeTheory)
	phenomena := r.b.EntitiesOf(records.TypePhenomenon)
	if len(theories) == 0 || len(phenomena) == 0 {
		r.b.Record("relationships", records.LevelHeuristic, "no theory or phenomenon to relate")
		return
	}

	var input strings.Builder
	input.WriteString("Theories:\n")
	for _, t := range theories {
		input.WriteString("- " + t.Name + "\n")
	}
	input.WriteString("\nPhenomena:\n")
	for _, p := range phenomena {
		input.WriteString("- " + p.Name + "\n")
	}
	input.WriteString("\nPaper:\n")
	input.WriteString(r.doc.Head(constants.FallbackSpanRunes))

	candidates := runStage(ctx, r, stage[relationshipsAnswer, []candidate]{
		name:   "relationships",
		prompt: relationshipsPrompt,
		input:  input.String(),
		params: relationshipParams,
		convert: func(a relationshipsAnswer) ([]candidate, error) {
			var out []candidate
			for _, rel := range a.Relationships {
				th, ok := matchMention(rel.Theory, theories)
				if !ok {
					continue
				}
				ph, ok := matchMention(rel.Phenomenon, phenomena)
				if !ok {
					continue
				}
				out = append(out, candidate{
					Theory:     th.Name,
					Phenomenon: ph.Name,
					Evidence:   headRunes(strings.Join(strings.Fields(rel.Evidence), " "), 500),
				})
			}
			return out, nil
		},
		rules: func() ([]candidate, bool) {
			return ruleCooccurrence(r.secs, theories, phenomena, r.o.normalizer.Forms), true
		},
	})

	best := make(map[[2]string]records.Relationship)
	for _, c := range candidates {
		rel := r.score(ctx, c, theories, phenomena)
		if !r.o.calc.Persist(rel.Strength) {
			r.log.Debug("relationship below threshold",
				zap.String("theory", c.Theory),
				zap.String("phenomenon", c.Phenomenon),
				zap.Float64("strength", rel.Strength.Total),
			)
			continue
		}
		key := [2]string{c.Theory, c.Phenomenon}
		if prev, ok := best[key]; !ok || rel.Strength.Total > prev.Strength.Total {
			best[key] = rel
		}
	}

	for _, rel := range best {
		r.b.Relationships = append(r.b.Relationships, rel)
	}
	sort.Slice(r.b.Relationships, func(i, j int) bool {
		a, b := r.b.Relationships[i], r.b.Relationships[j]
		if a.Theory != b.Theory {
			return a.Theory < b.Theory
		}
		return a.Phenomenon < b.Phenomenon
	})
}

// matchMention resolves a name from the model onto one of the extracted
// mentions.
func matchMention(name string, mentions []records.EntityMention) (records.EntityMention, bool) {
	key := normalize.Fold(name)
	if key == "" {
		return records.EntityMention{}, false
	}
	for _, m := range mentions {
		if normalize.Fold(m.Name) == key {
			return m, true
		}
	}
	for _, m := range mentions {
		if long, acr, ok := normalize.SplitAcronym(m.Name); ok {
			if normalize.Fold(long) == key || normalize.Fold(acr) == key {
				return m, true
			}
		}
	}
	return records.EntityMention{}, false
}

// score computes the strength breakdown of one candidate.
func (r *run) score(ctx context.Context, c candidate, theories, phenomena []records.EntityMention) records.Relationship {
	th, _ := matchMention(c.Theory, theories)
	ph, _ := matchMention(c.Phenomenon, phenomena)

	thSection := c.TheorySection
	if !validSection(thSection) {
		thSection = th.Section
	}
	phSection := c.PhenomenonSection
	if !validSection(phSection) {
		phSection = ph.Section
	}

	thCtx := r.context(records.TypeTheory, th.Name)
	phCtx := r.context(records.TypePhenomenon, ph.Name)

	var signals strength.Signals
	if sem, ok := r.semantic(ctx, thCtx, phCtx); ok {
		signals.Semantic = &sem
	}

	b := r.o.calc.Score(
		strength.TheoryUsage{Name: th.Name, Role: th.Role, Section: thSection, Context: thCtx},
		strength.PhenomenonMention{Name: ph.Name, Section: phSection, Context: phCtx, Evidence: c.Evidence, Signals: signals},
	)

	return records.Relationship{
		Theory:            th.Name,
		Phenomenon:        ph.Name,
		TheoryRole:        th.Role,
		TheorySection:     thSection,
		PhenomenonSection: phSection,
		Evidence:          c.Evidence,
		Strength:          b,
	}
}

// semantic is the embedding cosine of two contexts, when embeddings are on.
func (r *run) semantic(ctx context.Context, a, b string) (float64, bool) {
	if r.o.model == nil || !r.o.model.EmbeddingsEnabled() || a == "" || b == "" {
		return 0, false
	}
	va, err := r.o.model.Embed(ctx, a)
	if err != nil {
		r.log.Debug("context embedding failed", zap.Error(err))
		return 0, false
	}
	vb, err := r.o.model.Embed(ctx, b)
	if err != nil {
		r.log.Debug("context embedding failed", zap.Error(err))
		return 0, false
	}
	return normalize.Cosine(va, vb), true
}
