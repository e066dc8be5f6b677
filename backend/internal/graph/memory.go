package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"papergraph/backend/internal/records"
	"papergraph/backend/internal/strength"
)

// MemoryStore is an in-process graph with the same merge semantics as
// Neo4jStore. Transactions are serialized and work on a copy that replaces
// the committed state on Commit.
type MemoryStore struct {
	txLock chan struct{}

	mu    sync.RWMutex
	state *memState
}

type memState struct {
	papers       map[string]PaperNode
	entities     map[string]EntityNode
	authors      map[string]AuthorNode
	authored     map[string]int
	institutions map[string]string
	affiliations map[string]bool
	statements   map[string]StatementNode
	usage        map[string]UsageEdge
	resources    map[string]ResourceEdge
	explains     map[string]ExplainsEdge
	aggregates   map[string]strength.Aggregate
}

func newMemState() *memState {
	return &memState{
		papers:       make(map[string]PaperNode),
		entities:     make(map[string]EntityNode),
		authors:      make(map[string]AuthorNode),
		authored:     make(map[string]int),
		institutions: make(map[string]string),
		affiliations: make(map[string]bool),
		statements:   make(map[string]StatementNode),
		usage:        make(map[string]UsageEdge),
		resources:    make(map[string]ResourceEdge),
		explains:     make(map[string]ExplainsEdge),
		aggregates:   make(map[string]strength.Aggregate),
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for k, v := range s.papers {
		v.Keywords = append([]string(nil), v.Keywords...)
		out.papers[k] = v
	}
	for k, v := range s.entities {
		out.entities[k] = v
	}
	for k, v := range s.authors {
		out.authors[k] = v
	}
	for k, v := range s.authored {
		out.authored[k] = v
	}
	for k, v := range s.institutions {
		out.institutions[k] = v
	}
	for k, v := range s.affiliations {
		out.affiliations[k] = v
	}
	for k, v := range s.statements {
		out.statements[k] = v
	}
	for k, v := range s.usage {
		v.Sections = append([]string(nil), v.Sections...)
		v.StatisticalTests = append([]string(nil), v.StatisticalTests...)
		out.usage[k] = v
	}
	for k, v := range s.resources {
		out.resources[k] = v
	}
	for k, v := range s.explains {
		out.explains[k] = v
	}
	for k, v := range s.aggregates {
		out.aggregates[k] = copyAggregate(v)
	}
	return out
}

func copyAggregate(a strength.Aggregate) strength.Aggregate {
	a.PaperIDs = append([]string(nil), a.PaperIDs...)
	a.Strengths = append([]float64(nil), a.Strengths...)
	return a
}

func key(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txLock: make(chan struct{}, 1),
		state:  newMemState(),
	}
}

func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	select {
	case s.txLock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()
	return &memTx{store: s, state: work}, nil
}

func (s *MemoryStore) EnsureSchema(ctx context.Context) error { return nil }

func (s *MemoryStore) Verify(ctx context.Context) error { return nil }

func (s *MemoryStore) IsTransient(err error) bool { return false }

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func (s *MemoryStore) ListCanonical(ctx context.Context, label records.EntityType) ([]string, error) {
	if err := canonicalLabel(label); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for _, e := range s.state.entities {
		if e.Label == label {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Stats counts committed nodes and edges
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	byLabel := map[string]int{
		string(records.TypePaper):       len(st.papers),
		string(records.TypeAuthor):      len(st.authors),
		string(records.TypeInstitution): len(st.institutions),
	}
	for _, e := range st.entities {
		byLabel[string(e.Label)]++
	}
	for _, n := range st.statements {
		byLabel[string(n.Label)]++
	}
	nodes := 0
	for _, c := range byLabel {
		nodes += c
	}
	edges := len(st.authored) + len(st.affiliations) + len(st.statements) +
		len(st.usage) + len(st.resources) + len(st.explains) + len(st.aggregates)
	return Stats{Nodes: nodes, Edges: edges, ByLabel: byLabel}
}

// Paper returns a committed paper node
func (s *MemoryStore) Paper(paperID string) (PaperNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.papers[paperID]
	return p, ok
}

// Entity returns a committed canonical node
func (s *MemoryStore) Entity(label records.EntityType, name string) (EntityNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.entities[key(string(label), name)]
	return e, ok
}

// Usage returns a paper's committed usage edges ordered by label, name and
// variant
func (s *MemoryStore) Usage(paperID string) []UsageEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []UsageEdge
	for _, e := range s.state.usage {
		if e.PaperID == paperID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return key(string(out[i].Label), out[i].Name, out[i].Variant) <
			key(string(out[j].Label), out[j].Name, out[j].Variant)
	})
	return out
}

// Explains returns the committed per-paper EXPLAINS edges for a pair
func (s *MemoryStore) Explains(theory, phenomenon string) []ExplainsEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ExplainsEdge
	for _, e := range s.state.explains {
		if e.Theory == theory && e.Phenomenon == phenomenon {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaperID < out[j].PaperID })
	return out
}

// Aggregate returns the committed aggregate for a pair
func (s *MemoryStore) Aggregate(theory, phenomenon string) (strength.Aggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.aggregates[key(theory, phenomenon)]
	return copyAggregate(a), ok
}

// Statements returns the committed statement nodes of a paper
func (s *MemoryStore) Statements(paperID string) []StatementNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []StatementNode
	for _, n := range s.state.statements {
		if n.PaperID == paperID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ============================================================================
// Transaction
// ============================================================================

type memTx struct {
	store *MemoryStore
	state *memState
	done  bool
}

func (t *memTx) check() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	return nil
}

func (t *memTx) requirePaper(paperID string) error {
	if _, ok := t.state.papers[paperID]; !ok {
		return fmt.Errorf("paper %q not found: missing endpoint", paperID)
	}
	return nil
}

func (t *memTx) requireEntity(label records.EntityType, name string) error {
	if _, ok := t.state.entities[key(string(label), name)]; !ok {
		return fmt.Errorf("%s %q not found: missing endpoint", label, name)
	}
	return nil
}

func (t *memTx) MergePaper(ctx context.Context, p PaperNode) error {
	if err := t.check(); err != nil {
		return err
	}
	if prev, ok := t.state.papers[p.PaperID]; ok && len(p.Embedding) == 0 {
		p.Embedding = prev.Embedding
	}
	p.Keywords = append([]string(nil), p.Keywords...)
	t.state.papers[p.PaperID] = p
	return nil
}

func (t *memTx) GetEntity(ctx context.Context, label records.EntityType, name string) (*EntityNode, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if err := canonicalLabel(label); err != nil {
		return nil, err
	}
	e, ok := t.state.entities[key(string(label), name)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (t *memTx) MergeEntity(ctx context.Context, e EntityNode) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := canonicalLabel(e.Label); err != nil {
		return err
	}
	t.state.entities[key(string(e.Label), e.Name)] = e
	return nil
}

func (t *memTx) MergeAuthor(ctx context.Context, a AuthorNode, paperID string, position int) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := t.requirePaper(paperID); err != nil {
		return err
	}
	if prev, ok := t.state.authors[a.ID]; ok {
		if a.ORCID == "" {
			a.ORCID = prev.ORCID
		}
		if a.Email == "" {
			a.Email = prev.Email
		}
	}
	t.state.authors[a.ID] = a
	t.state.authored[key(a.ID, paperID)] = position
	if a.Institution != "" {
		instID := records.InstitutionID(a.Institution)
		if _, ok := t.state.institutions[instID]; !ok {
			t.state.institutions[instID] = a.Institution
		}
		t.state.affiliations[key(a.ID, instID)] = true
	}
	return nil
}

func (t *memTx) MergeStatement(ctx context.Context, st StatementNode) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, err := StatementRelType(st.Label); err != nil {
		return err
	}
	if err := t.requirePaper(st.PaperID); err != nil {
		return err
	}
	t.state.statements[st.ID] = st
	return nil
}

func (t *memTx) UsageEdges(ctx context.Context, paperID string, label records.EntityType, name string) ([]UsageEdge, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if _, err := UsageRelType(label); err != nil {
		return nil, err
	}
	var out []UsageEdge
	for _, e := range t.state.usage {
		if e.PaperID == paperID && e.Label == label && e.Name == name {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Variant < out[j].Variant })
	return out, nil
}

func (t *memTx) MergeUsage(ctx context.Context, e UsageEdge) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, err := UsageRelType(e.Label); err != nil {
		return err
	}
	if err := t.requirePaper(e.PaperID); err != nil {
		return err
	}
	if err := t.requireEntity(e.Label, e.Name); err != nil {
		return err
	}
	e.Sections = append([]string(nil), e.Sections...)
	e.StatisticalTests = append([]string(nil), e.StatisticalTests...)
	t.state.usage[key(e.PaperID, string(e.Label), e.Name, e.Variant)] = e
	return nil
}

func (t *memTx) MergeResource(ctx context.Context, r ResourceEdge) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, err := ResourceRelType(r.Label); err != nil {
		return err
	}
	if err := t.requireEntity(records.TypeMethod, r.Method); err != nil {
		return err
	}
	if err := t.requireEntity(r.Label, r.Name); err != nil {
		return err
	}
	t.state.resources[key(r.Method, string(r.Label), r.Name, r.PaperID)] = r
	return nil
}

func (t *memTx) MergeExplains(ctx context.Context, e ExplainsEdge) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := t.requireEntity(records.TypeTheory, e.Theory); err != nil {
		return err
	}
	if err := t.requireEntity(records.TypePhenomenon, e.Phenomenon); err != nil {
		return err
	}
	t.state.explains[key(e.Theory, e.Phenomenon, e.PaperID)] = e
	return nil
}

func (t *memTx) GetAggregate(ctx context.Context, theory, phenomenon string) (*strength.Aggregate, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	a, ok := t.state.aggregates[key(theory, phenomenon)]
	if !ok {
		return nil, nil
	}
	out := copyAggregate(a)
	return &out, nil
}

func (t *memTx) ApplyAggregate(ctx context.Context, theory, phenomenon, paperID string, total float64) (*strength.Aggregate, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if err := t.requireEntity(records.TypeTheory, theory); err != nil {
		return nil, err
	}
	if err := t.requireEntity(records.TypePhenomenon, phenomenon); err != nil {
		return nil, err
	}
	k := key(theory, phenomenon)
	agg := copyAggregate(t.state.aggregates[k])
	agg.Apply(paperID, total)
	t.state.aggregates[k] = agg
	out := copyAggregate(agg)
	return &out, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Lock()
	t.store.state = t.state
	t.store.mu.Unlock()
	<-t.store.txLock
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.state = nil
	<-t.store.txLock
	return nil
}
