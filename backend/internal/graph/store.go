// Package graph persists extraction results as a property graph. Neo4jStore
// is the production backend; MemoryStore backs dry runs and tests.
package graph

import (
	"context"
	"fmt"

	"papergraph/backend/internal/records"
	"papergraph/backend/internal/strength"
)

// Store opens transactions against a graph backend.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	EnsureSchema(ctx context.Context) error
	ListCanonical(ctx context.Context, label records.EntityType) ([]string, error)
	Verify(ctx context.Context) error
	// IsTransient reports whether err is worth retrying the whole transaction.
	IsTransient(err error) bool
	Close(ctx context.Context) error
}

// Tx is one paper's unit of work. Reads observe the transaction's own writes.
// Nothing is visible to other transactions until Commit.
type Tx interface {
	MergePaper(ctx context.Context, p PaperNode) error
	// GetEntity locks the node, when it exists, until the transaction ends.
	GetEntity(ctx context.Context, label records.EntityType, name string) (*EntityNode, error)
	MergeEntity(ctx context.Context, e EntityNode) error
	MergeAuthor(ctx context.Context, a AuthorNode, paperID string, position int) error
	MergeStatement(ctx context.Context, s StatementNode) error
	UsageEdges(ctx context.Context, paperID string, label records.EntityType, name string) ([]UsageEdge, error)
	MergeUsage(ctx context.Context, e UsageEdge) error
	MergeResource(ctx context.Context, r ResourceEdge) error
	MergeExplains(ctx context.Context, e ExplainsEdge) error
	GetAggregate(ctx context.Context, theory, phenomenon string) (*strength.Aggregate, error)
	// ApplyAggregate folds paperID's strength into the pair's aggregate as one
	// atomic step and returns the result.
	ApplyAggregate(ctx context.Context, theory, phenomenon, paperID string, total float64) (*strength.Aggregate, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ============================================================================
// Labels and Relationship Types
// ============================================================================

var usageRelTypes = map[records.EntityType]string{
	records.TypeTheory:     "USES_THEORY",
	records.TypeMethod:     "USES_METHOD",
	records.TypePhenomenon: "STUDIES_PHENOMENON",
}

var statementRelTypes = map[records.EntityType]string{
	records.TypeResearchQuestion: "ADDRESSES",
	records.TypeVariable:         "HAS_VARIABLE",
	records.TypeFinding:          "REPORTS",
	records.TypeContribution:     "CONTRIBUTES",
}

var resourceRelTypes = map[records.EntityType]string{
	records.TypeSoftware: "USES_SOFTWARE",
	records.TypeDataset:  "USES_DATASET",
}

// UsageRelType returns the Paper edge type for a Theory, Method or Phenomenon.
func UsageRelType(label records.EntityType) (string, error) {
	if rel, ok := usageRelTypes[label]; ok {
		return rel, nil
	}
	return "", fmt.Errorf("no usage relationship for label %q", label)
}

// StatementRelType returns the Paper edge type for a statement label.
func StatementRelType(label records.EntityType) (string, error) {
	if rel, ok := statementRelTypes[label]; ok {
		return rel, nil
	}
	return "", fmt.Errorf("no statement relationship for label %q", label)
}

// ResourceRelType returns the Method edge type for Software or Dataset.
func ResourceRelType(label records.EntityType) (string, error) {
	if rel, ok := resourceRelTypes[label]; ok {
		return rel, nil
	}
	return "", fmt.Errorf("no resource relationship for label %q", label)
}

func canonicalLabel(label records.EntityType) error {
	for _, l := range records.CanonicalTypes {
		if l == label {
			return nil
		}
	}
	return fmt.Errorf("label %q is not a canonical entity label", label)
}

// Constraints are the uniqueness constraints backing every natural key.
var Constraints = []string{
	`CREATE CONSTRAINT paper_id IF NOT EXISTS FOR (n:Paper) REQUIRE n.paper_id IS UNIQUE`,
	`CREATE CONSTRAINT theory_name IF NOT EXISTS FOR (n:Theory) REQUIRE n.name IS UNIQUE`,
	`CREATE CONSTRAINT method_name IF NOT EXISTS FOR (n:Method) REQUIRE n.name IS UNIQUE`,
	`CREATE CONSTRAINT phenomenon_name IF NOT EXISTS FOR (n:Phenomenon) REQUIRE n.name IS UNIQUE`,
	`CREATE CONSTRAINT software_name IF NOT EXISTS FOR (n:Software) REQUIRE n.name IS UNIQUE`,
	`CREATE CONSTRAINT dataset_name IF NOT EXISTS FOR (n:Dataset) REQUIRE n.name IS UNIQUE`,
	`CREATE CONSTRAINT research_question_id IF NOT EXISTS FOR (n:ResearchQuestion) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT variable_id IF NOT EXISTS FOR (n:Variable) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT finding_id IF NOT EXISTS FOR (n:Finding) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT contribution_id IF NOT EXISTS FOR (n:Contribution) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT author_id IF NOT EXISTS FOR (n:Author) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT institution_id IF NOT EXISTS FOR (n:Institution) REQUIRE n.id IS UNIQUE`,
}
