package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"papergraph/backend/internal/records"
	"papergraph/backend/internal/strength"
	apperrors "papergraph/backend/pkg/errors"
	"papergraph/backend/pkg/logger"
)

// Neo4jConfig configures the driver and transaction defaults.
type Neo4jConfig struct {
	URI                string
	User               string
	Password           string
	MaxPoolSize        int
	MaxConnLifetime    time.Duration
	AcquisitionTimeout time.Duration
	TxTimeout          time.Duration
}

// Neo4jStore handles all Neo4j database operations
type Neo4jStore struct {
	driver    neo4j.DriverWithContext
	uri       string
	txTimeout time.Duration
	logger    *zap.Logger
}

// NewNeo4jStore creates a driver from cfg. Connectivity is not checked
// until Verify.
func NewNeo4jStore(cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(c *neo4j.Config) {
			if cfg.MaxPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxPoolSize
			}
			if cfg.MaxConnLifetime > 0 {
				c.MaxConnectionLifetime = cfg.MaxConnLifetime
			}
			if cfg.AcquisitionTimeout > 0 {
				c.ConnectionAcquisitionTimeout = cfg.AcquisitionTimeout
			}
		},
	)
	if err != nil {
		return nil, apperrors.NewGraphConnectionFailed(cfg.URI, err)
	}
	store := NewNeo4jStoreFromDriver(driver, cfg.TxTimeout)
	store.uri = cfg.URI
	return store, nil
}

// NewNeo4jStoreFromDriver wraps an existing driver
func NewNeo4jStoreFromDriver(driver neo4j.DriverWithContext, txTimeout time.Duration) *Neo4jStore {
	if txTimeout <= 0 {
		txTimeout = 60 * time.Second
	}
	return &Neo4jStore{
		driver:    driver,
		txTimeout: txTimeout,
		logger:    logger.Get(),
	}
}

// Verify checks the database is reachable
func (s *Neo4jStore) Verify(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return apperrors.NewGraphConnectionFailed(s.uri, err)
	}
	return nil
}

// Close closes the Neo4j driver connection
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// IsTransient reports deadlocks, leader switches and dropped connections.
func (s *Neo4jStore) IsTransient(err error) bool {
	return neo4j.IsRetryable(err)
}

// EnsureSchema creates the uniqueness constraints. Safe to run repeatedly.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, stmt := range Constraints {
		result, err := session.Run(ctx, stmt, nil)
		if err != nil {
			return apperrors.NewGraphQueryFailed(stmt, err)
		}
		if _, err := result.Consume(ctx); err != nil {
			return apperrors.NewGraphQueryFailed(stmt, err)
		}
	}
	s.logger.Info("Graph schema ensured", zap.Int("constraints", len(Constraints)))
	return nil
}

// ListCanonical returns every name stored under a canonical label
func (s *Neo4jStore) ListCanonical(ctx context.Context, label records.EntityType) ([]string, error) {
	if err := canonicalLabel(label); err != nil {
		return nil, err
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`MATCH (n:%s) WHERE n.name IS NOT NULL RETURN n.name AS name ORDER BY name`, label)
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed(query, err)
	}
	recs, err := result.Collect(ctx)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed(query, err)
	}
	names := make([]string, 0, len(recs))
	for _, rec := range recs {
		names = append(names, getStringFromRecord(rec, "name"))
	}
	return names, nil
}

// Begin opens a write session and an explicit transaction bounded by the
// configured timeout.
func (s *Neo4jStore) Begin(ctx context.Context) (Tx, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	tx, err := session.BeginTransaction(ctx, neo4j.WithTxTimeout(s.txTimeout))
	if err != nil {
		_ = session.Close(ctx)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &neo4jTx{session: session, tx: tx}, nil
}

// ============================================================================
// Transaction
// ============================================================================

type neo4jTx struct {
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
	done    bool
}

func (t *neo4jTx) run(ctx context.Context, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	result, err := t.tx.Run(ctx, query, params)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed(query, err)
	}
	recs, err := result.Collect(ctx)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed(query, err)
	}
	return recs, nil
}

// mustWrite runs an edge write whose query ends in RETURN count(r) AS written
// and fails when an endpoint was missing.
func (t *neo4jTx) mustWrite(ctx context.Context, query string, params map[string]interface{}, what string) error {
	recs, err := t.run(ctx, query, params)
	if err != nil {
		return err
	}
	if len(recs) == 0 || getIntFromRecord(recs[0], "written") == 0 {
		return fmt.Errorf("%s not written: missing endpoint", what)
	}
	return nil
}

func (t *neo4jTx) MergePaper(ctx context.Context, p PaperNode) error {
	query := `
		MERGE (p:Paper {paper_id: $paperID})
		ON CREATE SET p.created_at = datetime()
		SET p.title = $title,
			p.abstract = $abstract,
			p.year = $year,
			p.journal = $journal,
			p.doi = $doi,
			p.keywords = $keywords,
			p.extraction_status = $status,
			p.processed_at = $processedAt,
			p.embedding = CASE WHEN $embedding IS NULL THEN p.embedding ELSE $embedding END
	`
	_, err := t.run(ctx, query, map[string]interface{}{
		"paperID":     p.PaperID,
		"title":       p.Title,
		"abstract":    p.Abstract,
		"year":        nullableInt(p.Year),
		"journal":     p.Journal,
		"doi":         p.DOI,
		"keywords":    nonNilStrings(p.Keywords),
		"status":      p.ExtractionStatus,
		"processedAt": p.ProcessedAt.UTC(),
		"embedding":   float64s(p.Embedding),
	})
	return err
}

func (t *neo4jTx) GetEntity(ctx context.Context, label records.EntityType, name string) (*EntityNode, error) {
	if err := canonicalLabel(label); err != nil {
		return nil, err
	}
	// the write lock is held until the transaction ends, so the domain
	// resolution that follows works on the latest committed node
	query := fmt.Sprintf(`
		MATCH (n:%s {name: $name})
		SET n._entity_lock = true
		REMOVE n._entity_lock
		RETURN n.name AS name, n.domain AS domain,
			n.domain_confidence AS domain_confidence, n.needs_review AS needs_review
	`, label)
	recs, err := t.run(ctx, query, map[string]interface{}{"name": name})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &EntityNode{
		Label:            label,
		Name:             getStringFromRecord(recs[0], "name"),
		Domain:           getStringFromRecord(recs[0], "domain"),
		DomainConfidence: getFloat64FromRecord(recs[0], "domain_confidence"),
		NeedsReview:      getBoolFromRecord(recs[0], "needs_review"),
	}, nil
}

func (t *neo4jTx) MergeEntity(ctx context.Context, e EntityNode) error {
	if err := canonicalLabel(e.Label); err != nil {
		return err
	}
	query := fmt.Sprintf(`
		MERGE (n:%s {name: $name})
		ON CREATE SET n.created_at = datetime()
		SET n.domain = $domain,
			n.domain_confidence = $domainConfidence,
			n.needs_review = $needsReview,
			n.updated_at = datetime()
	`, e.Label)
	_, err := t.run(ctx, query, map[string]interface{}{
		"name":             e.Name,
		"domain":           e.Domain,
		"domainConfidence": e.DomainConfidence,
		"needsReview":      e.NeedsReview,
	})
	return err
}

func (t *neo4jTx) MergeAuthor(ctx context.Context, a AuthorNode, paperID string, position int) error {
	query := `
		MATCH (p:Paper {paper_id: $paperID})
		MERGE (a:Author {id: $id})
		SET a.name = $name,
			a.orcid = CASE WHEN $orcid = '' THEN a.orcid ELSE $orcid END,
			a.email = CASE WHEN $email = '' THEN a.email ELSE $email END
		MERGE (a)-[r:AUTHORED]->(p)
		SET r.position = $position
		RETURN count(r) AS written
	`
	err := t.mustWrite(ctx, query, map[string]interface{}{
		"paperID":  paperID,
		"id":       a.ID,
		"name":     a.Name,
		"orcid":    a.ORCID,
		"email":    a.Email,
		"position": position,
	}, "AUTHORED")
	if err != nil || a.Institution == "" {
		return err
	}

	instQuery := `
		MATCH (a:Author {id: $id})
		MERGE (i:Institution {id: $instID})
		ON CREATE SET i.name = $instName
		MERGE (a)-[r:AFFILIATED_WITH]->(i)
		RETURN count(r) AS written
	`
	return t.mustWrite(ctx, instQuery, map[string]interface{}{
		"id":       a.ID,
		"instID":   records.InstitutionID(a.Institution),
		"instName": a.Institution,
	}, "AFFILIATED_WITH")
}

func (t *neo4jTx) MergeStatement(ctx context.Context, st StatementNode) error {
	rel, err := StatementRelType(st.Label)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		MATCH (p:Paper {paper_id: $paperID})
		MERGE (s:%s {id: $id})
		SET s.text = $text,
			s.kind = $kind,
			s.confidence = $confidence,
			s.paper_id = $paperID
		MERGE (p)-[r:%s]->(s)
		RETURN count(r) AS written
	`, st.Label, rel)
	return t.mustWrite(ctx, query, map[string]interface{}{
		"paperID":    st.PaperID,
		"id":         st.ID,
		"text":       st.Text,
		"kind":       st.Kind,
		"confidence": st.Confidence,
	}, rel)
}

func (t *neo4jTx) UsageEdges(ctx context.Context, paperID string, label records.EntityType, name string) ([]UsageEdge, error) {
	rel, err := UsageRelType(label)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		MATCH (p:Paper {paper_id: $paperID})-[r:%s]->(n:%s {name: $name})
		RETURN coalesce(r.variant, '') AS variant, r.role AS role, r.section AS section,
			r.usage AS usage, r.sections AS sections, r.confidence AS confidence,
			r.processed_at AS processed_at, r.needs_review AS needs_review,
			r.sample_size AS sample_size, r.statistical_tests AS statistical_tests
		ORDER BY variant
	`, rel, label)
	recs, err := t.run(ctx, query, map[string]interface{}{"paperID": paperID, "name": name})
	if err != nil {
		return nil, err
	}
	edges := make([]UsageEdge, 0, len(recs))
	for _, rec := range recs {
		edges = append(edges, UsageEdge{
			PaperID:          paperID,
			Label:            label,
			Name:             name,
			Variant:          getStringFromRecord(rec, "variant"),
			Role:             getStringFromRecord(rec, "role"),
			Section:          getStringFromRecord(rec, "section"),
			Usage:            getStringFromRecord(rec, "usage"),
			Sections:         getStringSliceFromRecord(rec, "sections"),
			Confidence:       getFloat64FromRecord(rec, "confidence"),
			ProcessedAt:      getTimeFromRecord(rec, "processed_at"),
			NeedsReview:      getBoolFromRecord(rec, "needs_review"),
			SampleSize:       getIntFromRecord(rec, "sample_size"),
			StatisticalTests: getStringSliceFromRecord(rec, "statistical_tests"),
		})
	}
	return edges, nil
}

func (t *neo4jTx) MergeUsage(ctx context.Context, e UsageEdge) error {
	rel, err := UsageRelType(e.Label)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		MATCH (p:Paper {paper_id: $paperID})
		MATCH (n:%s {name: $name})
		MERGE (p)-[r:%s {variant: $variant}]->(n)
		SET r.role = $role,
			r.section = $section,
			r.usage = $usage,
			r.sections = $sections,
			r.confidence = $confidence,
			r.processed_at = $processedAt,
			r.needs_review = $needsReview,
			r.sample_size = $sampleSize,
			r.statistical_tests = $statisticalTests
		RETURN count(r) AS written
	`, e.Label, rel)
	return t.mustWrite(ctx, query, map[string]interface{}{
		"paperID":          e.PaperID,
		"name":             e.Name,
		"variant":          e.Variant,
		"role":             e.Role,
		"section":          e.Section,
		"usage":            e.Usage,
		"sections":         nonNilStrings(e.Sections),
		"confidence":       e.Confidence,
		"processedAt":      e.ProcessedAt.UTC(),
		"needsReview":      e.NeedsReview,
		"sampleSize":       nullableInt(e.SampleSize),
		"statisticalTests": nonNilStrings(e.StatisticalTests),
	}, rel)
}

func (t *neo4jTx) MergeResource(ctx context.Context, r ResourceEdge) error {
	rel, err := ResourceRelType(r.Label)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		MATCH (m:Method {name: $method})
		MATCH (n:%s {name: $name})
		MERGE (m)-[r:%s {paper_id: $paperID}]->(n)
		RETURN count(r) AS written
	`, r.Label, rel)
	return t.mustWrite(ctx, query, map[string]interface{}{
		"method":  r.Method,
		"name":    r.Name,
		"paperID": r.PaperID,
	}, rel)
}

func (t *neo4jTx) MergeExplains(ctx context.Context, e ExplainsEdge) error {
	query := `
		MATCH (t:Theory {name: $theory})
		MATCH (ph:Phenomenon {name: $phenomenon})
		MERGE (t)-[r:EXPLAINS {paper_id: $paperID}]->(ph)
		SET r.strength = $total,
			r.role_weight = $roleWeight,
			r.section_score = $sectionScore,
			r.keyword_score = $keywordScore,
			r.semantic_score = $semanticScore,
			r.explicit_bonus = $explicitBonus,
			r.theory_section = $theorySection,
			r.phenomenon_section = $phenomenonSection,
			r.evidence = $evidence,
			r.updated_at = datetime()
		RETURN count(r) AS written
	`
	return t.mustWrite(ctx, query, map[string]interface{}{
		"theory":            e.Theory,
		"phenomenon":        e.Phenomenon,
		"paperID":           e.PaperID,
		"total":             e.Strength.Total,
		"roleWeight":        e.Strength.RoleWeight,
		"sectionScore":      e.Strength.SectionScore,
		"keywordScore":      e.Strength.KeywordScore,
		"semanticScore":     e.Strength.SemanticScore,
		"explicitBonus":     e.Strength.ExplicitBonus,
		"theorySection":     string(e.TheorySection),
		"phenomenonSection": string(e.PhenomenonSection),
		"evidence":          e.Evidence,
	}, "EXPLAINS")
}

func (t *neo4jTx) GetAggregate(ctx context.Context, theory, phenomenon string) (*strength.Aggregate, error) {
	query := `
		MATCH (:Theory {name: $theory})-[r:EXPLAINS_AGGREGATE]->(:Phenomenon {name: $phenomenon})
		RETURN r.paper_count AS count, r.sum AS sum, r.sum_sq AS sum_sq,
			r.min_strength AS min, r.max_strength AS max,
			r.paper_ids AS paper_ids, r.strengths AS strengths
	`
	recs, err := t.run(ctx, query, map[string]interface{}{"theory": theory, "phenomenon": phenomenon})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return aggregateFromRecord(recs[0]), nil
}

func aggregateFromRecord(rec *neo4j.Record) *strength.Aggregate {
	return &strength.Aggregate{
		Count:     getIntFromRecord(rec, "count"),
		Sum:       getFloat64FromRecord(rec, "sum"),
		SumSq:     getFloat64FromRecord(rec, "sum_sq"),
		Min:       getFloat64FromRecord(rec, "min"),
		Max:       getFloat64FromRecord(rec, "max"),
		PaperIDs:  getStringSliceFromRecord(rec, "paper_ids"),
		Strengths: getFloat64SliceFromRecord(rec, "strengths"),
	}
}

// ApplyAggregate folds one paper's strength into the pair's aggregate in a
// single statement. The theory node is write-locked first, so concurrent
// transactions on the same pair queue behind each other instead of
// overwriting one another's fold.
func (t *neo4jTx) ApplyAggregate(ctx context.Context, theory, phenomenon, paperID string, total float64) (*strength.Aggregate, error) {
	query := `
		MATCH (t:Theory {name: $theory})
		MATCH (ph:Phenomenon {name: $phenomenon})
		SET t._aggregate_lock = true
		MERGE (t)-[r:EXPLAINS_AGGREGATE]->(ph)
		ON CREATE SET r.paper_ids = [], r.strengths = []
		WITH t, r, coalesce(r.paper_ids, []) AS ids, coalesce(r.strengths, []) AS ss
		WITH t, r, ids, ss, [i IN range(0, size(ids) - 1) WHERE ids[i] = $paperID] AS hit
		WITH t, r,
			CASE WHEN size(hit) = 0 THEN ids + $paperID ELSE ids END AS ids,
			CASE WHEN size(hit) = 0 THEN ss + $strength
				ELSE [i IN range(0, size(ss) - 1) | CASE WHEN i = hit[0] THEN $strength ELSE ss[i] END]
			END AS ss
		WITH t, r, ids, ss,
			reduce(acc = 0.0, x IN ss | acc + x) AS sum,
			reduce(acc = 0.0, x IN ss | acc + x * x) AS sumSq
		WITH t, r, ids, ss, sum, sumSq, sumSq / size(ss) - (sum / size(ss)) ^ 2 AS variance
		SET r.paper_ids = ids,
			r.strengths = ss,
			r.paper_count = size(ss),
			r.sum = sum,
			r.sum_sq = sumSq,
			r.avg_strength = sum / size(ss),
			r.stddev_strength = CASE WHEN variance > 0 THEN sqrt(variance) ELSE 0.0 END,
			r.min_strength = reduce(m = ss[0], x IN ss | CASE WHEN x < m THEN x ELSE m END),
			r.max_strength = reduce(m = ss[0], x IN ss | CASE WHEN x > m THEN x ELSE m END),
			r.updated_at = datetime()
		REMOVE t._aggregate_lock
		RETURN r.paper_count AS count, r.sum AS sum, r.sum_sq AS sum_sq,
			r.min_strength AS min, r.max_strength AS max,
			r.paper_ids AS paper_ids, r.strengths AS strengths
	`
	recs, err := t.run(ctx, query, map[string]interface{}{
		"theory":     theory,
		"phenomenon": phenomenon,
		"paperID":    paperID,
		"strength":   total,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("EXPLAINS_AGGREGATE not written: missing endpoint")
	}
	return aggregateFromRecord(recs[0]), nil
}

func (t *neo4jTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.session.Close(ctx)
	return t.tx.Commit(ctx)
}

func (t *neo4jTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.session.Close(ctx)
	return t.tx.Rollback(ctx)
}
