package extraction

import (
	"regexp"
	"strings"

	"papergraph/backend/internal/records"
)

// ============================================================================
// Statement Deduplication
// ============================================================================

var spaceRun = regexp.MustCompile(`\s+`)

// dedupeStatements drops exact and near-duplicate statements, keeping the
// first occurrence but raising its confidence to the best duplicate's.
func dedupeStatements(stmts []records.Statement) []records.Statement {
	if len(stmts) <= 1 {
		return stmts
	}

	var unique []records.Statement
	var seen []string

	for _, s := range stmts {
		normalized := normalizeStatement(s.Text)
		if normalized == "" {
			continue
		}

		dup := -1
		for i, prev := range seen {
			if prev == normalized || similarStatements(normalized, prev) {
				dup = i
				break
			}
		}
		if dup >= 0 {
			if s.Confidence > unique[dup].Confidence {
				unique[dup].Confidence = s.Confidence
			}
			if unique[dup].Kind == "" {
				unique[dup].Kind = s.Kind
			}
			continue
		}

		seen = append(seen, normalized)
		unique = append(unique, s)
	}

	return unique
}

// normalizeStatement lowercases, collapses whitespace and drops trailing
// punctuation.
func normalizeStatement(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = spaceRun.ReplaceAllString(text, " ")
	return strings.TrimRight(text, ".,!?;:")
}

// similarStatements treats containment with 80% length overlap, or 70% shared
// long words, as the same statement.
func similarStatements(a, b string) bool {
	if len(a) < 10 || len(b) < 10 {
		return false
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		ratio := float64(min(len(a), len(b))) / float64(max(len(a), len(b)))
		return ratio >= 0.8
	}

	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return false
	}

	long := make(map[string]bool)
	for _, w := range wordsA {
		if len(w) > 3 {
			long[w] = true
		}
	}
	matches := 0
	for _, w := range wordsB {
		if len(w) > 3 && long[w] {
			matches++
		}
	}

	avg := (len(wordsA) + len(wordsB)) / 2
	if avg == 0 {
		return false
	}
	return float64(matches)/float64(avg) >= 0.7
}
