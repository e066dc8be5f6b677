package graph

import (
	"time"

	"papergraph/backend/internal/records"
)

// ============================================================================
// Graph Node and Edge Types
// ============================================================================

// Extraction status values stored on Paper nodes
const (
	StatusComplete = "complete"
	StatusFallback = "fallback"
)

// PaperNode is keyed by paper_id
type PaperNode struct {
	PaperID          string    `json:"paper_id"`
	Title            string    `json:"title"`
	Abstract         string    `json:"abstract,omitempty"`
	Year             int       `json:"year,omitempty"`
	Journal          string    `json:"journal,omitempty"`
	DOI              string    `json:"doi,omitempty"`
	Keywords         []string  `json:"keywords,omitempty"`
	Embedding        []float32 `json:"-"`
	ExtractionStatus string    `json:"extraction_status"`
	ProcessedAt      time.Time `json:"processed_at"`
}

// EntityNode is a canonical Theory, Method, Phenomenon, Software or Dataset
// node keyed by (label, name)
type EntityNode struct {
	Label            records.EntityType `json:"label"`
	Name             string             `json:"name"`
	Domain           string             `json:"domain,omitempty"`
	DomainConfidence float64            `json:"domain_confidence,omitempty"`
	NeedsReview      bool               `json:"needs_review,omitempty"`
}

// AuthorNode is keyed by id (ORCID or name slug)
type AuthorNode struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ORCID       string `json:"orcid,omitempty"`
	Email       string `json:"email,omitempty"`
	Institution string `json:"institution,omitempty"`
}

// StatementNode is a paper-scoped ResearchQuestion, Variable, Finding or
// Contribution keyed by a deterministic id
type StatementNode struct {
	ID         string             `json:"id"`
	Label      records.EntityType `json:"label"`
	PaperID    string             `json:"paper_id"`
	Text       string             `json:"text"`
	Kind       string             `json:"kind,omitempty"`
	Confidence float64            `json:"confidence"`
}

// UsageEdge links a Paper to a Theory, Method or Phenomenon. Variant is empty
// for the primary edge; a conflicting interpretation kept for review gets its
// own variant.
type UsageEdge struct {
	PaperID          string             `json:"paper_id"`
	Label            records.EntityType `json:"label"`
	Name             string             `json:"name"`
	Variant          string             `json:"variant"`
	Role             string             `json:"role"`
	Section          string             `json:"section,omitempty"`
	Usage            string             `json:"usage,omitempty"`
	Sections         []string           `json:"sections,omitempty"`
	Confidence       float64            `json:"confidence"`
	ProcessedAt      time.Time          `json:"processed_at"`
	NeedsReview      bool               `json:"needs_review,omitempty"`
	SampleSize       int                `json:"sample_size,omitempty"`
	StatisticalTests []string           `json:"statistical_tests,omitempty"`
}

// ResourceEdge links a Method to the Software or Dataset a paper used with it
type ResourceEdge struct {
	Method  string             `json:"method"`
	Label   records.EntityType `json:"label"`
	Name    string             `json:"name"`
	PaperID string             `json:"paper_id"`
}

// ExplainsEdge is one paper's Theory to Phenomenon assertion with its
// strength breakdown
type ExplainsEdge struct {
	Theory            string            `json:"theory"`
	Phenomenon        string            `json:"phenomenon"`
	PaperID           string            `json:"paper_id"`
	Strength          records.Breakdown `json:"strength"`
	TheorySection     records.Section   `json:"theory_section,omitempty"`
	PhenomenonSection records.Section   `json:"phenomenon_section,omitempty"`
	Evidence          string            `json:"evidence,omitempty"`
}

// Stats counts what a store holds
type Stats struct {
	Nodes   int            `json:"nodes"`
	Edges   int            `json:"edges"`
	ByLabel map[string]int `json:"by_label"`
}
