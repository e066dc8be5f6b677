package extraction

import (
	"fmt"
	"strings"

	"papergraph/backend/internal/constants"
	"papergraph/backend/internal/gateway"
	"papergraph/backend/internal/records"
)

// Prompt kinds; each is part of the response cache key.
const (
	KindMetadata      gateway.PromptKind = "metadata"
	KindSection       gateway.PromptKind = "section"
	KindEntities      gateway.PromptKind = "entities"
	KindMethodDetail  gateway.PromptKind = "method_detail"
	KindStatements    gateway.PromptKind = "statements"
	KindRelationships gateway.PromptKind = "relationships"
)

// ============================================================================
// Answer shapes
// ============================================================================

type authorAnswer struct {
	Name        string `json:"name" jsonschema:"required"`
	ORCID       string `json:"orcid,omitempty"`
	Email       string `json:"email,omitempty"`
	Institution string `json:"institution,omitempty"`
}

type metadataAnswer struct {
	Title    string         `json:"title" jsonschema:"required"`
	Authors  []authorAnswer `json:"authors,omitempty"`
	Year     int            `json:"year,omitempty"`
	Abstract string         `json:"abstract,omitempty"`
	Keywords []string       `json:"keywords,omitempty"`
	Journal  string         `json:"journal,omitempty"`
	DOI      string         `json:"doi,omitempty"`
}

type sectionAnswer struct {
	Heading string `json:"heading" jsonschema:"description=the methodology heading copied exactly as it appears"`
	Found   bool   `json:"found"`
}

type entityAnswer struct {
	Name       string  `json:"name" jsonschema:"required"`
	Role       string  `json:"role,omitempty" jsonschema:"enum=primary,enum=supporting,enum=extending,enum=challenging"`
	Section    string  `json:"section,omitempty"`
	Usage      string  `json:"usage,omitempty"`
	Domain     string  `json:"domain,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

type entitiesAnswer struct {
	Entities []entityAnswer `json:"entities"`
}

type methodAnswer struct {
	SampleSize       int      `json:"sample_size,omitempty"`
	Software         []string `json:"software,omitempty"`
	Datasets         []string `json:"datasets,omitempty"`
	StatisticalTests []string `json:"statistical_tests,omitempty"`
	Confidence       float64  `json:"confidence,omitempty"`
}

type statementAnswer struct {
	Text       string  `json:"text" jsonschema:"required"`
	Kind       string  `json:"kind,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

type statementsAnswer struct {
	Statements []statementAnswer `json:"statements"`
}

type relationshipAnswer struct {
	Theory     string `json:"theory" jsonschema:"required"`
	Phenomenon string `json:"phenomenon" jsonschema:"required"`
	Evidence   string `json:"evidence,omitempty"`
}

type relationshipsAnswer struct {
	Relationships []relationshipAnswer `json:"relationships"`
}

// ============================================================================
// Prompts
// ============================================================================

const presenceRule = "Only report items that appear in the text verbatim or by a common abbreviation. Never infer or invent names. If nothing qualifies, return an empty list."

var metadataPrompt = gateway.Prompt{
	Kind:    KindMetadata,
	Version: "1",
	System: `You read the first page of a research paper and return its bibliographic metadata.
Copy the title exactly. List authors in order with any ORCID, email and institution printed next to them.
Leave a field empty when the page does not state it.`,
	Output: metadataAnswer{},
}

var sectionPrompt = gateway.Prompt{
	Kind:    KindSection,
	Version: "1",
	System: `You are given numbered candidate heading lines from a research paper.
Return the line that starts the methodology section (methods, research design, data and sample, empirical strategy), copied exactly.
Set found to false when no line starts such a section.`,
	Output: sectionAnswer{},
}

var methodDetailPrompt = gateway.Prompt{
	Kind:    KindMethodDetail,
	Version: "1",
	System: `You read the methodology of a research paper and describe how one named method was applied:
the sample size, the software packages, the datasets and the statistical tests used with it. ` + presenceRule,
	Output: methodAnswer{},
}

var relationshipsPrompt = gateway.Prompt{
	Kind:    KindRelationships,
	Version: "1",
	System: `You are given a research paper, the theories it uses and the phenomena it studies.
List every pair where the paper uses the theory to explain the phenomenon, using only names from the given lists.
Quote one sentence of the paper as evidence for each pair.`,
	Output: relationshipsAnswer{},
}

var entityNouns = map[records.EntityType]string{
	records.TypeTheory:     "theories, theoretical frameworks and models the paper draws on",
	records.TypeMethod:     "research methods and analytical techniques the paper applies",
	records.TypePhenomenon: "phenomena, behaviours or outcomes the paper studies or explains",
}

func entityPrompt(t records.EntityType) gateway.Prompt {
	return gateway.Prompt{
		Kind:    gateway.PromptKind(string(KindEntities) + ":" + strings.ToLower(string(t))),
		Version: "1",
		System: fmt.Sprintf(`You extract the %s from a research paper.
For each give its name as written, its role (primary, supporting, extending or challenging), the section where it appears, one sentence on how it is used, its research domain and your confidence between 0 and 1.
Return at most %d entries. %s`, entityNouns[t], constants.MaxEntitiesPerCategory, presenceRule),
		Output: entitiesAnswer{},
	}
}

var statementNouns = map[records.EntityType]string{
	records.TypeResearchQuestion: "research questions the paper asks",
	records.TypeVariable:         "variables the paper measures, with kind dependent, independent, control, moderating or mediating",
	records.TypeFinding:          "empirical findings the paper reports",
	records.TypeContribution:     "contributions the paper claims",
}

func statementPrompt(t records.EntityType) gateway.Prompt {
	return gateway.Prompt{
		Kind:    gateway.PromptKind(string(KindStatements) + ":" + strings.ToLower(string(t))),
		Version: "1",
		System: fmt.Sprintf(`You extract the %s.
Give each as one self-contained sentence close to the paper's wording, with your confidence between 0 and 1. %s`, statementNouns[t], presenceRule),
		Output: statementsAnswer{},
	}
}

// ============================================================================
// Stage parameters
// ============================================================================

var (
	metadataParams = gateway.Params{
		MaxAttempts: constants.MetadataAttempts,
		Timeout:     constants.MetadataTimeout,
		MaxTokens:   constants.MetadataMaxTokens,
		InputTokens: constants.MetadataInputTokens,
	}
	sectionParams = gateway.Params{
		MaxAttempts: constants.SectionAttempts,
		Timeout:     constants.SectionTimeout,
		MaxTokens:   constants.SectionMaxTokens,
		InputTokens: constants.SectionInputTokens,
	}
	entityParams = gateway.Params{
		MaxAttempts: constants.EntityAttempts,
		Timeout:     constants.EntityTimeout,
		MaxTokens:   constants.EntityMaxTokens,
		InputTokens: constants.EntityInputTokens,
	}
	detailParams = gateway.Params{
		MaxAttempts: constants.DetailAttempts,
		Timeout:     constants.DetailTimeout,
		MaxTokens:   constants.DetailMaxTokens,
		InputTokens: constants.DetailInputTokens,
	}
	statementParams = gateway.Params{
		MaxAttempts: constants.StatementAttempts,
		Timeout:     constants.StatementTimeout,
		MaxTokens:   constants.StatementMaxTokens,
		InputTokens: constants.StatementInputTokens,
	}
	relationshipParams = gateway.Params{
		MaxAttempts: constants.RelationshipAttempts,
		Timeout:     constants.RelationshipTimeout,
		MaxTokens:   constants.RelationshipMaxTokens,
		InputTokens: constants.RelationshipInputTokens,
	}
)
