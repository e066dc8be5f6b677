// Package conflict decides what to do when an incoming fact disagrees with
// one already in the graph.
package conflict

import (
	"sort"
	"strings"
	"time"
)

// confidenceEpsilon treats confidences closer than this as equal.
const confidenceEpsilon = 1e-6

// Fact is a comparable view of a node or edge's mutable properties.
type Fact struct {
	Key         string
	PaperID     string
	Confidence  float64
	ProcessedAt time.Time
	// Fields hold single-valued properties. An empty value never conflicts.
	Fields map[string]string
	// Mergeable names the Fields whose differing values can be combined
	// instead of competing, such as free-text usage snippets.
	Mergeable map[string]bool
	// Additive holds list properties that are always unioned.
	Additive map[string][]string
}

// Action is the outcome of a resolution.
type Action string

const (
	ActionMerge        Action = "merge"
	ActionKeepExisting Action = "keep_existing"
	ActionTakeIncoming Action = "take_incoming"
	ActionKeepBoth     Action = "keep_both"
)

// FieldConflict is one disagreeing property.
type FieldConflict struct {
	Field    string
	Existing string
	Incoming string
}

// Plan is the resolution of an existing/incoming pair.
type Plan struct {
	Action      Action
	Result      Fact // the fact to write for merge, keep and take actions
	Reason      string
	Conflicts   []FieldConflict
	NeedsReview bool
}

// Resolve compares existing with incoming. Without disagreement the two are
// merged. Otherwise strategies are tried in order: higher confidence wins,
// then the more recently processed fact wins, then compatible values are
// merged, and finally both are kept and flagged for review.
func Resolve(existing, incoming Fact) Plan {
	conflicts := diff(existing, incoming)
	if len(conflicts) == 0 {
		return Plan{
			Action: ActionMerge,
			Result: merge(existing, incoming, nil),
			Reason: "no disagreement",
		}
	}

	plan := Plan{Conflicts: conflicts}

	switch d := incoming.Confidence - existing.Confidence; {
	case d > confidenceEpsilon:
		plan.Action = ActionTakeIncoming
		plan.Result = complement(incoming, existing)
		plan.Reason = "incoming has higher confidence"
		return plan
	case d < -confidenceEpsilon:
		plan.Action = ActionKeepExisting
		plan.Result = complement(existing, incoming)
		plan.Reason = "existing has higher confidence"
		return plan
	}

	switch {
	case incoming.ProcessedAt.After(existing.ProcessedAt):
		plan.Action = ActionTakeIncoming
		plan.Result = complement(incoming, existing)
		plan.Reason = "incoming is more recent"
		return plan
	case existing.ProcessedAt.After(incoming.ProcessedAt):
		plan.Action = ActionKeepExisting
		plan.Result = complement(existing, incoming)
		plan.Reason = "existing is more recent"
		return plan
	}

	if compatible(conflicts, existing, incoming) {
		plan.Action = ActionMerge
		plan.Result = merge(existing, incoming, conflicts)
		plan.Reason = "compatible values merged"
		return plan
	}

	plan.Action = ActionKeepBoth
	plan.NeedsReview = true
	plan.Reason = "true conflict on: " + fieldNames(conflicts)
	return plan
}

func diff(existing, incoming Fact) []FieldConflict {
	var out []FieldConflict
	for _, field := range sortedKeys(existing.Fields, incoming.Fields) {
		e, i := existing.Fields[field], incoming.Fields[field]
		if e == "" || i == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(e), strings.TrimSpace(i)) {
			continue
		}
		if (existing.Mergeable[field] || incoming.Mergeable[field]) && subsetParts(i, e) {
			continue
		}
		out = append(out, FieldConflict{Field: field, Existing: e, Incoming: i})
	}
	return out
}

func compatible(conflicts []FieldConflict, existing, incoming Fact) bool {
	for _, c := range conflicts {
		if !existing.Mergeable[c.Field] && !incoming.Mergeable[c.Field] {
			return false
		}
	}
	return true
}

// complement returns winner with its empty fields filled from loser and the
// additive lists unioned.
func complement(winner, loser Fact) Fact {
	out := copyFact(winner)
	for k, v := range loser.Fields {
		if out.Fields[k] == "" && v != "" {
			out.Fields[k] = v
		}
	}
	out.Additive = unionAdditive(winner.Additive, loser.Additive)
	return out
}

// merge unions both facts. Conflicting mergeable fields are joined.
func merge(existing, incoming Fact, conflicts []FieldConflict) Fact {
	out := complement(existing, incoming)
	for _, c := range conflicts {
		out.Fields[c.Field] = joinParts(c.Existing, c.Incoming)
	}
	if incoming.Confidence > out.Confidence {
		out.Confidence = incoming.Confidence
	}
	if incoming.ProcessedAt.After(out.ProcessedAt) {
		out.ProcessedAt = incoming.ProcessedAt
	}
	if out.PaperID == "" {
		out.PaperID = incoming.PaperID
	}
	return out
}

// partSep separates the values of a merged field.
const partSep = " | "

func splitParts(v string) []string {
	var out []string
	for _, p := range strings.Split(v, strings.TrimSpace(partSep)) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hasPart(parts []string, v string) bool {
	for _, p := range parts {
		if strings.EqualFold(p, v) {
			return true
		}
	}
	return false
}

// subsetParts reports whether every part of v already occurs in set.
func subsetParts(v, set string) bool {
	have := splitParts(set)
	for _, p := range splitParts(v) {
		if !hasPart(have, p) {
			return false
		}
	}
	return true
}

// joinParts appends the parts of incoming that existing does not hold yet.
func joinParts(existing, incoming string) string {
	parts := splitParts(existing)
	for _, p := range splitParts(incoming) {
		if !hasPart(parts, p) {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, partSep)
}

func copyFact(f Fact) Fact {
	out := f
	out.Fields = make(map[string]string, len(f.Fields))
	for k, v := range f.Fields {
		out.Fields[k] = v
	}
	out.Mergeable = make(map[string]bool, len(f.Mergeable))
	for k, v := range f.Mergeable {
		out.Mergeable[k] = v
	}
	out.Additive = make(map[string][]string, len(f.Additive))
	for k, v := range f.Additive {
		out.Additive[k] = append([]string(nil), v...)
	}
	return out
}

func unionAdditive(a, b map[string][]string) map[string][]string {
	out := make(map[string][]string)
	for _, m := range []map[string][]string{a, b} {
		for k, vals := range m {
			for _, v := range vals {
				if v != "" && !contains(out[k], v) {
					out[k] = append(out[k], v)
				}
			}
		}
	}
	for k := range out {
		sort.Strings(out[k])
	}
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func sortedKeys(a, b map[string]string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range []map[string]string{a, b} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func fieldNames(conflicts []FieldConflict) string {
	names := make([]string, len(conflicts))
	for i, c := range conflicts {
		names[i] = c.Field
	}
	return strings.Join(names, ", ")
}
