package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func edge(role, section, usage string, conf float64, at time.Time) Fact {
	return Fact{
		Key:         "p1|Theory|Agency Theory",
		PaperID:     "p1",
		Confidence:  conf,
		ProcessedAt: at,
		Fields:      map[string]string{"role": role, "section": section, "usage": usage},
		Mergeable:   map[string]bool{"usage": true, "section": true},
		Additive:    map[string][]string{"sections": {section}},
	}
}

func TestResolve_NoDisagreementMerges(t *testing.T) {
	existing := edge("primary", "introduction", "", 0.8, t0)
	incoming := edge("primary", "", "frames the study", 0.6, t1)

	plan := Resolve(existing, incoming)

	assert.Equal(t, ActionMerge, plan.Action)
	assert.Empty(t, plan.Conflicts)
	assert.False(t, plan.NeedsReview)
	assert.Equal(t, "introduction", plan.Result.Fields["section"])
	assert.Equal(t, "frames the study", plan.Result.Fields["usage"])
	assert.Equal(t, 0.8, plan.Result.Confidence)
	assert.Equal(t, t1, plan.Result.ProcessedAt)
}

func TestResolve_HigherConfidenceWins(t *testing.T) {
	existing := edge("supporting", "theory", "", 0.5, t1)
	incoming := edge("primary", "introduction", "", 0.9, t0)

	plan := Resolve(existing, incoming)

	assert.Equal(t, ActionTakeIncoming, plan.Action)
	assert.Equal(t, "primary", plan.Result.Fields["role"])
	assert.Len(t, plan.Conflicts, 2)
	assert.Equal(t, []string{"introduction", "theory"}, plan.Result.Additive["sections"])

	plan = Resolve(incoming, existing)
	assert.Equal(t, ActionKeepExisting, plan.Action)
	assert.Equal(t, "primary", plan.Result.Fields["role"])
}

func TestResolve_RecencyBreaksTie(t *testing.T) {
	existing := edge("supporting", "theory", "", 0.7, t0)
	incoming := edge("extending", "theory", "", 0.7, t1)

	plan := Resolve(existing, incoming)
	assert.Equal(t, ActionTakeIncoming, plan.Action)
	assert.Equal(t, "extending", plan.Result.Fields["role"])

	plan = Resolve(incoming, existing)
	assert.Equal(t, ActionKeepExisting, plan.Action)
	assert.Equal(t, "extending", plan.Result.Fields["role"])
}

func TestResolve_CompatibleMerge(t *testing.T) {
	existing := edge("primary", "theory", "explains growth", 0.7, t0)
	incoming := edge("primary", "theory", "motivates hypotheses", 0.7, t0)

	plan := Resolve(existing, incoming)

	assert.Equal(t, ActionMerge, plan.Action)
	assert.Equal(t, "explains growth | motivates hypotheses", plan.Result.Fields["usage"])
	assert.False(t, plan.NeedsReview)
}

func TestResolve_KeepBothFlagsReview(t *testing.T) {
	existing := edge("primary", "theory", "", 0.7, t0)
	incoming := edge("challenging", "theory", "", 0.7, t0)

	plan := Resolve(existing, incoming)

	assert.Equal(t, ActionKeepBoth, plan.Action)
	assert.True(t, plan.NeedsReview)
	assert.Contains(t, plan.Reason, "role")
}

func TestResolve_CaseInsensitiveEquality(t *testing.T) {
	plan := Resolve(
		Fact{Fields: map[string]string{"domain": "Management"}},
		Fact{Fields: map[string]string{"domain": "management "}},
	)
	assert.Equal(t, ActionMerge, plan.Action)
}

func TestResolve_DoesNotMutateInputs(t *testing.T) {
	existing := edge("primary", "", "", 0.7, t0)
	incoming := edge("primary", "results", "", 0.7, t0)

	_ = Resolve(existing, incoming)
	assert.Equal(t, "", existing.Fields["section"])
}

func TestResolve_MergeDoesNotRepeatSnippets(t *testing.T) {
	existing := edge("primary", "theory", "explains growth | motivates hypotheses", 0.7, t0)

	plan := Resolve(existing, edge("primary", "theory", "motivates hypotheses", 0.7, t0))
	assert.Equal(t, ActionMerge, plan.Action)
	assert.Empty(t, plan.Conflicts)
	assert.Equal(t, "explains growth | motivates hypotheses", plan.Result.Fields["usage"])

	plan = Resolve(existing, edge("primary", "theory", "Explains growth | tests boards", 0.7, t0))
	assert.Equal(t, ActionMerge, plan.Action)
	assert.Equal(t, "explains growth | motivates hypotheses | tests boards", plan.Result.Fields["usage"])
}
