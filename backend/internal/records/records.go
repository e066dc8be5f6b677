// Package records defines the typed extraction records that flow from the
// orchestrator through validation into the graph.
package records

import "time"

// EntityType is the graph label of an extracted entity.
type EntityType string

const (
	TypePaper            EntityType = "Paper"
	TypeTheory           EntityType = "Theory"
	TypeMethod           EntityType = "Method"
	TypePhenomenon       EntityType = "Phenomenon"
	TypeSoftware         EntityType = "Software"
	TypeDataset          EntityType = "Dataset"
	TypeResearchQuestion EntityType = "ResearchQuestion"
	TypeVariable         EntityType = "Variable"
	TypeFinding          EntityType = "Finding"
	TypeContribution     EntityType = "Contribution"
	TypeAuthor           EntityType = "Author"
	TypeInstitution      EntityType = "Institution"
)

// CanonicalTypes are the labels whose nodes are keyed by a normalized name.
var CanonicalTypes = []EntityType{TypeTheory, TypeMethod, TypePhenomenon, TypeSoftware, TypeDataset}

// Role is how a paper uses a theory or method.
type Role string

const (
	RolePrimary     Role = "primary"
	RoleSupporting  Role = "supporting"
	RoleExtending   Role = "extending"
	RoleChallenging Role = "challenging"
)

// Roles lists every valid role
var Roles = []Role{RolePrimary, RoleSupporting, RoleExtending, RoleChallenging}

// Section is a canonical paper section.
type Section string

const (
	SectionIntroduction     Section = "introduction"
	SectionLiteratureReview Section = "literature_review"
	SectionTheory           Section = "theory"
	SectionMethodology      Section = "methodology"
	SectionResults          Section = "results"
	SectionDiscussion       Section = "discussion"
	SectionConclusion       Section = "conclusion"
	SectionUnknown          Section = "unknown"
)

// SectionOrder is the canonical order used for section adjacency.
var SectionOrder = []Section{
	SectionIntroduction,
	SectionLiteratureReview,
	SectionTheory,
	SectionMethodology,
	SectionResults,
	SectionDiscussion,
	SectionConclusion,
}

// Index returns the position of s in SectionOrder, or -1.
func (s Section) Index() int {
	for i, o := range SectionOrder {
		if o == s {
			return i
		}
	}
	return -1
}

// Level records which rung of the fallback chain produced a stage's output.
type Level string

const (
	LevelModel Level = "model"
	// LevelHeuristic is a deterministic result that needed no model call
	// because it was already confident.
	LevelHeuristic   Level = "heuristic"
	LevelSimplified  Level = "simplified"
	LevelRules       Level = "rules"
	LevelPlaceholder Level = "placeholder"
)

// Fallback reports whether the level is below the full model call.
func (l Level) Fallback() bool {
	return l != LevelModel && l != LevelHeuristic
}

// PaperMetadata describes the paper itself.
type PaperMetadata struct {
	PaperID   string         `json:"paper_id" validate:"required"`
	Title     string         `json:"title" validate:"required,max=500"`
	Abstract  string         `json:"abstract,omitempty"`
	Year      int            `json:"year,omitempty" validate:"omitempty,pubyear"`
	Journal   string         `json:"journal,omitempty" validate:"max=300"`
	DOI       string         `json:"doi,omitempty" validate:"omitempty,doi"`
	Keywords  []string       `json:"keywords,omitempty" validate:"dive,max=100"`
	Authors   []AuthorRecord `json:"authors,omitempty"`
	Embedding []float32      `json:"-"`
}

// AuthorRecord is one author of the paper.
type AuthorRecord struct {
	Name        string `json:"name" validate:"required,max=200"`
	ORCID       string `json:"orcid,omitempty" validate:"omitempty,orcid"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	Institution string `json:"institution,omitempty" validate:"max=300"`
	Position    int    `json:"position" validate:"gte=0"`
}

// EntityMention is a theory, method or phenomenon found in the paper.
type EntityMention struct {
	Type       EntityType `json:"type" validate:"required,oneof=Theory Method Phenomenon"`
	Name       string     `json:"name" validate:"required,max=200"`
	Role       Role       `json:"role" validate:"required,theoryrole"`
	Section    Section    `json:"section" validate:"omitempty,section"`
	Usage      string     `json:"usage,omitempty"`
	Domain     string     `json:"domain,omitempty" validate:"max=100"`
	Confidence float64    `json:"confidence" validate:"gte=0,lte=1"`
}

// MethodDetail carries the per-method detail pass.
type MethodDetail struct {
	Method           string   `json:"method" validate:"required,max=200"`
	SampleSize       int      `json:"sample_size,omitempty" validate:"gte=0"`
	Software         []string `json:"software,omitempty" validate:"dive,required,max=200"`
	Datasets         []string `json:"datasets,omitempty" validate:"dive,required,max=200"`
	StatisticalTests []string `json:"statistical_tests,omitempty" validate:"dive,required,max=200"`
	Confidence       float64  `json:"confidence" validate:"gte=0,lte=1"`
}

// Statement is a paper-scoped sentence node: research question, variable,
// finding or contribution.
type Statement struct {
	Type       EntityType `json:"type" validate:"required,oneof=ResearchQuestion Variable Finding Contribution"`
	Text       string     `json:"text" validate:"required,min=3,max=1000"`
	Kind       string     `json:"kind,omitempty" validate:"max=50"`
	Confidence float64    `json:"confidence" validate:"gte=0,lte=1"`
}

// Breakdown is the auditable five-factor strength of a Theory to Phenomenon
// relationship.
type Breakdown struct {
	RoleWeight    float64 `json:"role_weight"`
	SectionScore  float64 `json:"section_score"`
	KeywordScore  float64 `json:"keyword_score"`
	SemanticScore float64 `json:"semantic_score"`
	ExplicitBonus float64 `json:"explicit_bonus"`
	Total         float64 `json:"total"`
}

// Relationship is a Theory explains Phenomenon candidate with its strength.
type Relationship struct {
	Theory            string    `json:"theory" validate:"required,max=200"`
	Phenomenon        string    `json:"phenomenon" validate:"required,max=200"`
	TheoryRole        Role      `json:"theory_role" validate:"omitempty,theoryrole"`
	TheorySection     Section   `json:"theory_section" validate:"omitempty,section"`
	PhenomenonSection Section   `json:"phenomenon_section" validate:"omitempty,section"`
	Evidence          string    `json:"evidence,omitempty"`
	Strength          Breakdown `json:"strength"`
}

// StageOutcome records how one extraction stage ended.
type StageOutcome struct {
	Stage  string `json:"stage"`
	Level  Level  `json:"level"`
	Reason string `json:"reason,omitempty"`
}

// Bundle is everything extracted from one paper.
type Bundle struct {
	Paper         PaperMetadata   `json:"paper"`
	Entities      []EntityMention `json:"entities"`
	Methods       []MethodDetail  `json:"methods"`
	Statements    []Statement     `json:"statements"`
	Relationships []Relationship  `json:"relationships"`
	Provenance    []StageOutcome  `json:"provenance"`
	ProcessedAt   time.Time       `json:"processed_at"`
}

// UsedFallback reports whether any stage ran below the full model level.
func (b *Bundle) UsedFallback() bool {
	for _, p := range b.Provenance {
		if p.Level.Fallback() {
			return true
		}
	}
	return false
}

// Record appends a stage outcome.
func (b *Bundle) Record(stage string, level Level, reason string) {
	b.Provenance = append(b.Provenance, StageOutcome{Stage: stage, Level: level, Reason: reason})
}

// EntitiesOf returns the mentions of one type.
func (b *Bundle) EntitiesOf(t EntityType) []EntityMention {
	var out []EntityMention
	for _, e := range b.Entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
