// Package normalize resolves raw entity names onto canonical identities so
// that equivalent surface forms land on one graph node.
package normalize

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"papergraph/backend/internal/records"
	"papergraph/backend/pkg/logger"
)

// Tier names the resolution step that produced a canonical name.
type Tier string

const (
	TierDictionary Tier = "dictionary"
	TierExact      Tier = "exact"
	TierFuzzy      Tier = "fuzzy"
	TierEmbedding  Tier = "embedding"
	TierNew        Tier = "new"
)

// Resolution is the outcome of normalizing one raw name.
type Resolution struct {
	Raw       string
	Canonical string
	Tier      Tier
	Score     float64
}

// New reports whether the name created a new canonical entity.
func (r Resolution) New() bool {
	return r.Tier == TierNew
}

// Embedder produces embedding vectors for names.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type known struct {
	name      string
	folded    string
	embedding []float32
}

// Normalizer is safe for concurrent use by every batch worker.
type Normalizer struct {
	mu                 sync.RWMutex
	dict               *Dictionary
	known              map[records.EntityType][]*known
	index              map[records.EntityType]map[string]*known // folded -> entry
	embedder           Embedder
	fuzzyThreshold     float64
	embeddingThreshold float64
	logger             *zap.Logger
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithEmbedder enables the embedding tier.
func WithEmbedder(e Embedder) Option {
	return func(n *Normalizer) { n.embedder = e }
}

// WithThresholds sets the fuzzy and embedding acceptance thresholds.
func WithThresholds(fuzzy, embedding float64) Option {
	return func(n *Normalizer) {
		n.fuzzyThreshold = fuzzy
		n.embeddingThreshold = embedding
	}
}

// New creates a normalizer over dict. A nil dict means an empty dictionary.
func New(dict *Dictionary, opts ...Option) *Normalizer {
	if dict == nil {
		dict = NewDictionary()
	}
	n := &Normalizer{
		dict:               dict,
		known:              make(map[records.EntityType][]*known),
		index:              make(map[records.EntityType]map[string]*known),
		fuzzyThreshold:     0.85,
		embeddingThreshold: 0.85,
		logger:             logger.Get(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Dictionary returns the synonym dictionary in use.
func (n *Normalizer) Dictionary() *Dictionary {
	return n.dict
}

// Seed registers canonical names that already exist in the graph.
func (n *Normalizer) Seed(t records.EntityType, names ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, name := range names {
		n.registerLocked(t, name)
	}
}

// Known returns the canonical names registered for t.
func (n *Normalizer) Known(t records.EntityType) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.known[t]))
	for _, k := range n.known[t] {
		out = append(out, k.name)
	}
	return out
}

// Normalize maps raw onto a canonical name of type t. Tiers are tried in
// order: dictionary, exact match on a known name, fuzzy ratio, embedding
// similarity. A name matching nothing becomes a new canonical entity and is
// registered immediately.
func (n *Normalizer) Normalize(ctx context.Context, raw string, t records.EntityType) (Resolution, error) {
	cleaned := Clean(raw)
	folded := Fold(cleaned)
	if folded == "" {
		return Resolution{Raw: raw}, fmt.Errorf("empty %s name %q", t, raw)
	}
	res := Resolution{Raw: raw}

	// Tier 1: dictionary, including the bare acronym of "Long Form (LF)"
	if canonical, ok := n.lookupDictionary(t, cleaned); ok {
		res.Canonical, res.Tier, res.Score = canonical, TierDictionary, 1
		n.Seed(t, canonical)
		return res, nil
	}

	n.mu.RLock()
	if k, ok := n.index[t][folded]; ok {
		n.mu.RUnlock()
		res.Canonical, res.Tier, res.Score = k.name, TierExact, 1
		return res, nil
	}
	candidates := append([]*known(nil), n.known[t]...)
	n.mu.RUnlock()

	// Tier 2: fuzzy string similarity
	var best *known
	var bestScore float64
	for _, k := range candidates {
		if s := Ratio(folded, k.folded); s > bestScore {
			best, bestScore = k, s
		}
	}
	if best != nil && bestScore >= n.fuzzyThreshold {
		res.Canonical, res.Tier, res.Score = best.name, TierFuzzy, bestScore
		n.logger.Debug("fuzzy match",
			zap.String("type", string(t)),
			zap.String("raw", raw),
			zap.String("canonical", best.name),
			zap.Float64("score", bestScore),
		)
		return res, nil
	}

	// Tier 3: embedding similarity
	if n.embedder != nil && len(candidates) > 0 {
		if match, score, ok := n.embeddingMatch(ctx, t, cleaned, candidates); ok {
			res.Canonical, res.Tier, res.Score = match, TierEmbedding, score
			return res, nil
		}
	}

	// Tier 4: new canonical entity
	n.mu.Lock()
	k, existed := n.index[t][folded]
	if !existed {
		// names registered by other workers since the snapshot
		for _, late := range n.known[t][len(candidates):] {
			if s := Ratio(folded, late.folded); s >= n.fuzzyThreshold {
				n.mu.Unlock()
				res.Canonical, res.Tier, res.Score = late.name, TierFuzzy, s
				return res, nil
			}
		}
		k = n.registerLocked(t, cleaned)
	}
	n.mu.Unlock()
	if existed {
		// another worker registered the same name in the meantime
		res.Canonical, res.Tier, res.Score = k.name, TierExact, 1
		return res, nil
	}
	res.Canonical, res.Tier, res.Score = k.name, TierNew, 0
	return res, nil
}

func (n *Normalizer) lookupDictionary(t records.EntityType, cleaned string) (string, bool) {
	if canonical, ok := n.dict.Lookup(t, cleaned); ok {
		return canonical, true
	}
	if long, acr, ok := SplitAcronym(cleaned); ok {
		if canonical, ok := n.dict.Lookup(t, long); ok {
			return canonical, true
		}
		if canonical, ok := n.dict.Lookup(t, acr); ok {
			return canonical, true
		}
	}
	return "", false
}

func (n *Normalizer) embeddingMatch(ctx context.Context, t records.EntityType, cleaned string, candidates []*known) (string, float64, bool) {
	vec, err := n.embedder.Embed(ctx, cleaned)
	if err != nil {
		n.logger.Debug("embedding tier skipped", zap.String("name", cleaned), zap.Error(err))
		return "", 0, false
	}

	var bestName string
	var bestScore float64
	for _, k := range candidates {
		n.mu.RLock()
		emb := k.embedding
		n.mu.RUnlock()
		if emb == nil {
			emb, err = n.embedder.Embed(ctx, k.name)
			if err != nil {
				continue
			}
			n.mu.Lock()
			k.embedding = emb
			n.mu.Unlock()
		}
		if s := Cosine(vec, emb); s > bestScore {
			bestName, bestScore = k.name, s
		}
	}
	if bestName == "" || bestScore < n.embeddingThreshold {
		return "", 0, false
	}
	return bestName, bestScore, true
}

// registerLocked adds name as a canonical entry of t. Callers hold n.mu.
func (n *Normalizer) registerLocked(t records.EntityType, name string) *known {
	folded := Fold(name)
	if n.index[t] == nil {
		n.index[t] = make(map[string]*known)
	}
	if k, ok := n.index[t][folded]; ok {
		return k
	}
	k := &known{name: name, folded: folded}
	n.index[t][folded] = k
	n.known[t] = append(n.known[t], k)
	return k
}

// Forms returns every surface form under which canonical may appear in text:
// the name itself, its dictionary synonyms, and its initialism.
func (n *Normalizer) Forms(t records.EntityType, name string) []string {
	forms := []string{name}
	if long, acr, ok := SplitAcronym(name); ok {
		forms = append(forms, long, acr)
	}
	canonical := name
	if c, ok := n.lookupDictionary(t, name); ok {
		canonical = c
		forms = append(forms, c)
	}
	forms = append(forms, n.dict.Synonyms(t, canonical)...)
	if ini := Initialism(name); ini != "" {
		forms = append(forms, ini)
	}
	return forms
}
