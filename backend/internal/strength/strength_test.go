package strength

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"papergraph/backend/internal/records"
)

func f(v float64) *float64 { return &v }

func TestScore_ExampleScenario(t *testing.T) {
	c := NewCalculator(DefaultThreshold)

	b := c.Score(
		TheoryUsage{Name: "Agency Theory", Role: records.RolePrimary, Section: records.SectionIntroduction},
		PhenomenonMention{
			Name:    "CEO compensation",
			Section: records.SectionIntroduction,
			Signals: Signals{Jaccard: f(3.0 / 6.0), Semantic: f(0.7), Phrase: f(1)},
		},
	)

	assert.Equal(t, 0.4, b.RoleWeight)
	assert.Equal(t, 0.2, b.SectionScore)
	assert.Equal(t, 0.2, b.KeywordScore)
	assert.InDelta(t, 0.14, b.SemanticScore, 1e-9)
	assert.Equal(t, 0.1, b.ExplicitBonus)
	assert.Equal(t, 1.0, b.Total)
	assert.True(t, c.Persist(b))
}

func TestScore_FactorRules(t *testing.T) {
	c := NewCalculator(DefaultThreshold)
	none := Signals{Jaccard: f(0), Semantic: f(0), Phrase: f(0)}

	tests := []struct {
		name    string
		theory  TheoryUsage
		phen    PhenomenonMention
		role    float64
		section float64
		keyword float64
		bonus   float64
	}{
		{
			name:    "supporting adjacent",
			theory:  TheoryUsage{Role: records.RoleSupporting, Section: records.SectionIntroduction},
			phen:    PhenomenonMention{Section: records.SectionLiteratureReview, Signals: none},
			role:    0.2,
			section: 0.1,
			keyword: 0.05,
		},
		{
			name:    "extending distant",
			theory:  TheoryUsage{Role: records.RoleExtending, Section: records.SectionIntroduction},
			phen:    PhenomenonMention{Section: records.SectionDiscussion, Signals: Signals{Jaccard: f(0.3), Semantic: f(0), Phrase: f(0.5)}},
			role:    0.15,
			section: 0.05,
			keyword: 0.1,
			bonus:   0.05,
		},
		{
			name:    "challenging unknown section",
			theory:  TheoryUsage{Role: records.RoleChallenging, Section: records.SectionUnknown},
			phen:    PhenomenonMention{Section: records.SectionUnknown, Signals: Signals{Jaccard: f(0.19), Semantic: f(0), Phrase: f(0.99)}},
			role:    0.1,
			section: 0.05,
			keyword: 0.05,
			bonus:   0.0794,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := c.Score(tt.theory, tt.phen)
			assert.Equal(t, tt.role, b.RoleWeight)
			assert.Equal(t, tt.section, b.SectionScore)
			assert.Equal(t, tt.keyword, b.KeywordScore)
			assert.InDelta(t, tt.bonus, b.ExplicitBonus, 1e-9)
		})
	}
}

func TestScore_DerivedSignals(t *testing.T) {
	c := NewCalculator(DefaultThreshold)

	b := c.Score(
		TheoryUsage{
			Name:    "Institutional Theory",
			Role:    records.RolePrimary,
			Section: records.SectionTheory,
			Context: "Institutional pressures shape corporate sustainability reporting decisions.",
		},
		PhenomenonMention{
			Name:     "Sustainability reporting",
			Section:  records.SectionTheory,
			Context:  "Coercive institutional pressures drive corporate sustainability reporting adoption.",
			Evidence: "Drawing on institutional theory, we explain sustainability reporting.",
		},
	)

	assert.Equal(t, 0.2, b.KeywordScore)
	assert.Greater(t, b.SemanticScore, 0.0)
	assert.Equal(t, 0.1, b.ExplicitBonus)
	assert.LessOrEqual(t, b.Total, 1.0)
}

func TestScore_Bounded(t *testing.T) {
	c := NewCalculator(DefaultThreshold)
	rng := rand.New(rand.NewSource(7))
	sections := append(append([]records.Section{}, records.SectionOrder...), records.SectionUnknown)

	for i := 0; i < 2000; i++ {
		b := c.Score(
			TheoryUsage{Role: records.Roles[rng.Intn(len(records.Roles))], Section: sections[rng.Intn(len(sections))]},
			PhenomenonMention{
				Section: sections[rng.Intn(len(sections))],
				Signals: Signals{
					Jaccard:  f(rng.Float64()),
					Semantic: f(rng.Float64()*3 - 1),
					Phrase:   f(rng.Float64() * 1.2),
				},
			},
		)
		assert.GreaterOrEqual(t, b.Total, 0.0)
		assert.LessOrEqual(t, b.Total, 1.0)
		assert.GreaterOrEqual(t, b.SemanticScore, 0.0)
		assert.LessOrEqual(t, b.SemanticScore, 0.2)
	}
}

func TestScore_Monotonic(t *testing.T) {
	c := NewCalculator(DefaultThreshold)
	base := func(j, s, p float64) records.Breakdown {
		return c.Score(
			TheoryUsage{Role: records.RoleExtending, Section: records.SectionMethodology},
			PhenomenonMention{Section: records.SectionResults, Signals: Signals{Jaccard: f(j), Semantic: f(s), Phrase: f(p)}},
		)
	}

	steps := []float64{0, 0.1, 0.2, 0.3, 0.49, 0.5, 0.6, 0.75, 0.9, 1}
	for i := 1; i < len(steps); i++ {
		lo, hi := steps[i-1], steps[i]
		assert.GreaterOrEqual(t, base(hi, 0, 0).Total, base(lo, 0, 0).Total, "jaccard %v -> %v", lo, hi)
		assert.GreaterOrEqual(t, base(0, hi, 0).Total, base(0, lo, 0).Total, "semantic %v -> %v", lo, hi)
		assert.GreaterOrEqual(t, base(0, 0, hi).Total, base(0, 0, lo).Total, "phrase %v -> %v", lo, hi)
	}

	roleOrder := []records.Role{records.RoleChallenging, records.RoleExtending, records.RoleSupporting, records.RolePrimary}
	for i := 1; i < len(roleOrder); i++ {
		assert.Greater(t, roleWeight(roleOrder[i]), roleWeight(roleOrder[i-1]))
	}
}

func TestPersist_Threshold(t *testing.T) {
	c := NewCalculator(0.3)

	assert.True(t, c.Persist(records.Breakdown{Total: 0.3}))
	assert.True(t, c.Persist(records.Breakdown{Total: 0.31}))
	assert.False(t, c.Persist(records.Breakdown{Total: 0.2999}))

	// lowest possible score: challenging, distant, no overlap
	low := c.Score(
		TheoryUsage{Role: records.RoleChallenging, Section: records.SectionIntroduction},
		PhenomenonMention{Section: records.SectionConclusion, Signals: Signals{Jaccard: f(0), Semantic: f(0), Phrase: f(0)}},
	)
	assert.InDelta(t, 0.2, low.Total, 1e-9)
	assert.False(t, c.Persist(low))
}

func TestPhraseMatch(t *testing.T) {
	assert.Equal(t, 1.0, PhraseMatch("Resource-Based View", "we adopt the resource based view here"))
	assert.InDelta(t, 0.5, PhraseMatch("Dynamic Managerial Capabilities", "dynamic effects"), 0.2)
	assert.Equal(t, 0.0, PhraseMatch("Agency Theory", "nothing relevant"))
	assert.Equal(t, 0.0, PhraseMatch("", "text"))
}

func TestCalculator_ThresholdBoundary(t *testing.T) {
	c := NewCalculator(0.45)
	assert.Equal(t, 0.45, c.Threshold())
	assert.True(t, c.Persist(records.Breakdown{Total: c.Threshold()}))
	assert.False(t, c.Persist(records.Breakdown{Total: c.Threshold() - 0.01}))
}
