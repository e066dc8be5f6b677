package constants

import "time"

// Extraction constants
const (
	// MetadataHeadRunes is how much of the document head the metadata stage reads
	MetadataHeadRunes = 4000

	// FallbackSpanRunes is used as the entity span when no section was found
	FallbackSpanRunes = 12000

	// MinSectionRunes is the shortest methodology span trusted without asking the model
	MinSectionRunes = 400

	// ContextWindowRunes is the text kept on each side of a mention as its context
	ContextWindowRunes = 300

	// MaxEntitiesPerCategory caps one primary-extraction answer
	MaxEntitiesPerCategory = 25

	// MaxMethodDetails caps the per-method detail calls for one paper
	MaxMethodDetails = 10

	// RuleConfidence is assigned to entities found by the dictionary scan
	RuleConfidence = 0.5

	// DefaultModelConfidence is used when the model omits a confidence
	DefaultModelConfidence = 0.7
)

// Stage budgets: attempts, per-attempt timeout, completion tokens, input tokens
const (
	MetadataAttempts    = 3
	MetadataTimeout     = 60 * time.Second
	MetadataMaxTokens   = 1024
	MetadataInputTokens = 1500

	SectionAttempts    = 2
	SectionTimeout     = 30 * time.Second
	SectionMaxTokens   = 128
	SectionInputTokens = 3000

	EntityAttempts    = 4
	EntityTimeout     = 90 * time.Second
	EntityMaxTokens   = 2048
	EntityInputTokens = 6000

	DetailAttempts    = 3
	DetailTimeout     = 60 * time.Second
	DetailMaxTokens   = 1024
	DetailInputTokens = 4000

	StatementAttempts    = 3
	StatementTimeout     = 90 * time.Second
	StatementMaxTokens   = 2048
	StatementInputTokens = 6000

	RelationshipAttempts    = 3
	RelationshipTimeout     = 120 * time.Second
	RelationshipMaxTokens   = 2048
	RelationshipInputTokens = 6000
)

// Batch constants
const (
	// TopFailureReasons is how many failure reasons the run summary lists
	TopFailureReasons = 5

	// MaxReasonLength truncates failure reasons stored in the progress file
	MaxReasonLength = 300
)
