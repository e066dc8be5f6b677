// Package strength scores how strongly a paper links a theory to a
// phenomenon and aggregates those scores across papers.
package strength

import (
	"math"
	"strings"

	"papergraph/backend/internal/normalize"
	"papergraph/backend/internal/records"
)

// DefaultThreshold is the minimum total strength persisted to the graph.
const DefaultThreshold = 0.3

var roleWeights = map[records.Role]float64{
	records.RolePrimary:     0.4,
	records.RoleSupporting:  0.2,
	records.RoleExtending:   0.15,
	records.RoleChallenging: 0.1,
}

// TheoryUsage is a theory as used by one paper.
type TheoryUsage struct {
	Name    string
	Role    records.Role
	Section records.Section
	Context string
}

// Signals are optional precomputed similarity inputs. A nil field is derived
// from the contexts instead.
type Signals struct {
	Jaccard  *float64 // context word-set overlap
	Semantic *float64 // embedding cosine of the contexts
	Phrase   *float64 // 1 for an exact theory-name match, fraction of name tokens for partial
}

// PhenomenonMention is a phenomenon as mentioned by the same paper.
type PhenomenonMention struct {
	Name     string
	Section  records.Section
	Context  string
	Evidence string
	Signals  Signals
}

// Calculator scores Theory to Phenomenon candidates.
type Calculator struct {
	threshold float64
}

// NewCalculator creates a calculator persisting totals at or above threshold.
func NewCalculator(threshold float64) *Calculator {
	return &Calculator{threshold: threshold}
}

// Threshold returns the persistence threshold.
func (c *Calculator) Threshold() float64 {
	return c.threshold
}

// Persist reports whether a breakdown clears the threshold.
func (c *Calculator) Persist(b records.Breakdown) bool {
	return b.Total >= c.threshold
}

// Score computes the five-factor breakdown. It is deterministic: the same
// inputs always produce the same breakdown.
func (c *Calculator) Score(t TheoryUsage, p PhenomenonMention) records.Breakdown {
	b := records.Breakdown{
		RoleWeight:    roleWeight(t.Role),
		SectionScore:  sectionScore(t.Section, p.Section),
		KeywordScore:  keywordScore(jaccardSignal(t, p)),
		SemanticScore: 0.2 * clamp01(semanticSignal(t, p)),
		ExplicitBonus: explicitBonus(phraseSignal(t, p)),
	}
	sum := b.RoleWeight + b.SectionScore + b.KeywordScore + b.SemanticScore + b.ExplicitBonus
	b.Total = round6(math.Min(1, sum))
	return b
}

func roleWeight(r records.Role) float64 {
	return roleWeights[r]
}

func sectionScore(a, b records.Section) float64 {
	ia, ib := a.Index(), b.Index()
	switch {
	case ia >= 0 && ia == ib:
		return 0.2
	case ia >= 0 && ib >= 0 && (ia-ib == 1 || ib-ia == 1):
		return 0.1
	default:
		return 0.05
	}
}

func keywordScore(j float64) float64 {
	switch {
	case j >= 0.5:
		return 0.2
	case j >= 0.2:
		return 0.1
	default:
		return 0.05
	}
}

// explicitBonus maps the phrase signal onto 0.1 for an exact match, 0.05..0.08
// for a partial match covering at least half of the name, else 0.
func explicitBonus(phrase float64) float64 {
	switch {
	case phrase >= 1:
		return 0.1
	case phrase >= 0.5:
		return round6(0.05 + 0.03*(phrase-0.5)/0.5)
	default:
		return 0
	}
}

func jaccardSignal(t TheoryUsage, p PhenomenonMention) float64 {
	if p.Signals.Jaccard != nil {
		return *p.Signals.Jaccard
	}
	return Jaccard(wordSet(t.Context), wordSet(p.Context))
}

func semanticSignal(t TheoryUsage, p PhenomenonMention) float64 {
	if p.Signals.Semantic != nil {
		return *p.Signals.Semantic
	}
	return Jaccard(bigramSet(t.Context), bigramSet(p.Context))
}

func phraseSignal(t TheoryUsage, p PhenomenonMention) float64 {
	if p.Signals.Phrase != nil {
		return *p.Signals.Phrase
	}
	return PhraseMatch(t.Name, p.Context+" "+p.Evidence)
}

// PhraseMatch returns 1 if the theory name occurs in text as a phrase,
// otherwise the fraction of its significant tokens that occur.
func PhraseMatch(name, text string) float64 {
	fname, ftext := normalize.Fold(name), normalize.Fold(text)
	if fname == "" || ftext == "" {
		return 0
	}
	if strings.Contains(" "+ftext+" ", " "+fname+" ") {
		return 1
	}
	tokens := significant(strings.Fields(fname))
	if len(tokens) == 0 {
		return 0
	}
	present := wordSet(text)
	hits := 0
	for _, tok := range tokens {
		if present[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

// Jaccard returns |a ∩ b| / |a ∪ b|, or 0 when both are empty.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"are": true, "was": true, "were": true, "from": true, "into": true, "its": true,
	"their": true, "which": true, "these": true, "those": true, "has": true, "have": true,
	"been": true, "not": true, "but": true, "our": true, "can": true, "also": true,
	"theory": true, "view": true, "model": true,
}

func significant(words []string) []string {
	var out []string
	for _, w := range words {
		if len([]rune(w)) >= 3 && !stopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range significant(strings.Fields(normalize.Fold(s))) {
		set[w] = true
	}
	return set
}

func bigramSet(s string) map[string]bool {
	words := significant(strings.Fields(normalize.Fold(s)))
	set := make(map[string]bool)
	for i := 0; i+1 < len(words); i++ {
		set[words[i]+" "+words[i+1]] = true
	}
	return set
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
