package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"papergraph/backend/internal/constants"
	"papergraph/backend/internal/normalize"
	"papergraph/backend/internal/records"
)

// ============================================================================
// Deterministic extraction rules
// ============================================================================

var (
	yearPattern     = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(?:[^0-9]|$)`)
	doiPattern      = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)
	abstractPattern = regexp.MustCompile(`(?i)^abstract\b\s*[:.\-–—]?\s*(.*)$`)
	keywordsPattern = regexp.MustCompile(`(?i)^(?:key\s?words|index terms)\s*[:.\-–—]\s*(.+)$`)
	keywordSplit    = regexp.MustCompile(`\s*[;,·•|]\s*`)
	samplePattern   = regexp.MustCompile(`(?i)\b(?:n\s*=\s*|sample of\s+|sample size of\s+|sample consist(?:s|ed|ing)? of\s+)([0-9][0-9,]*)`)
	variablePattern = regexp.MustCompile(`(?i)\b(dependent|independent|control|moderating|mediating)\s+variables?\b[^.;]*?\b(?:is|are|was|were|include|includes|included)\s*:?\s+([^.;]{3,160})`)
	findingPattern  = regexp.MustCompile(`(?i)\b(we find|we found|results (?:show|indicate|suggest|reveal|confirm)|findings (?:show|indicate|suggest|reveal)|(?:positively|negatively) (?:related|associated)|significant(?:ly)? (?:positive|negative)|hypothes[ie]s \w+ (?:is|was|are|were) supported)\b`)
	contribPattern  = regexp.MustCompile(`(?i)\b(we contribute|this (?:study|paper|article|research) contributes|our (?:main )?contributions?|contributes to (?:the|this) literature|makes? (?:several|three|two|a) contributions?)\b`)
)

// statisticalTests are recognised by the method-detail rule.
var statisticalTests = []string{
	"t-test", "chi-square", "ANOVA", "MANOVA", "ANCOVA", "Sobel test", "bootstrapping",
	"Hausman test", "Granger causality", "Cronbach's alpha", "Mann-Whitney", "Wilcoxon",
	"Kruskal-Wallis", "correlation analysis", "Durbin-Watson", "variance inflation factor",
	"Heckman correction", "Breusch-Pagan",
}

// ruleYear looks for a plausible publication year in the file name, then
// in the first page.
func ruleYear(fileName, firstPage string, now time.Time) int {
	for _, src := range []string{fileName, firstPage} {
		for _, m := range yearPattern.FindAllStringSubmatch(src, -1) {
			y, err := strconv.Atoi(m[1])
			if err == nil && y >= 1900 && y <= now.Year()+1 {
				return y
			}
		}
	}
	return 0
}

func ruleDOI(text string) string {
	doi := doiPattern.FindString(text)
	return strings.TrimRight(doi, ".,;:)]")
}

// ruleTitle returns the first line that looks like a title.
func ruleTitle(ls []string) string {
	for _, l := range ls {
		n := utf8.RuneCountInString(l)
		if n < 10 || n > 300 {
			continue
		}
		low := strings.ToLower(l)
		if strings.HasPrefix(low, "abstract") || strings.Contains(l, "@") ||
			strings.Contains(low, "doi") || strings.Contains(low, "http") ||
			strings.Contains(low, "journal") || strings.Contains(low, "vol.") ||
			strings.Contains(low, "copyright") || strings.Contains(low, "©") {
			continue
		}
		if strings.Trim(l, "0123456789 .-") == "" {
			continue
		}
		return strings.TrimRight(l, ".")
	}
	return ""
}

// ruleAbstract returns the paragraph introduced by an "Abstract" line.
func ruleAbstract(ls []string) string {
	for i, l := range ls {
		m := abstractPattern.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		parts := []string{}
		if rest := strings.TrimSpace(m[1]); rest != "" {
			parts = append(parts, rest)
		}
		for _, next := range ls[i+1:] {
			if keywordsPattern.MatchString(next) {
				break
			}
			if sec, ok := classifyHeading(next); ok && sec == records.SectionIntroduction {
				break
			}
			parts = append(parts, next)
			if utf8.RuneCountInString(strings.Join(parts, " ")) > 3000 {
				break
			}
		}
		return headRunes(strings.Join(parts, " "), 3000)
	}
	return ""
}

func ruleKeywords(ls []string) []string {
	for _, l := range ls {
		m := keywordsPattern.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		var out []string
		for _, k := range keywordSplit.Split(m[1], -1) {
			k = strings.TrimRight(strings.TrimSpace(k), ".")
			if k != "" && utf8.RuneCountInString(k) <= 100 {
				out = append(out, k)
			}
		}
		return out
	}
	return nil
}

// ruleMetadata builds paper metadata from the document head alone.
func ruleMetadata(doc *Document, now time.Time) (records.PaperMetadata, bool) {
	head := doc.Head(constants.MetadataHeadRunes)
	ls := lines(head)
	m := records.PaperMetadata{
		PaperID:  doc.PaperID,
		Title:    ruleTitle(ls),
		Year:     ruleYear(doc.FileName(), head, now),
		DOI:      ruleDOI(head),
		Abstract: ruleAbstract(ls),
		Keywords: ruleKeywords(ls),
	}
	return m, m.Title != ""
}

// complementMetadata fills the fields the model left empty from the rules.
func complementMetadata(m, rules records.PaperMetadata) records.PaperMetadata {
	if m.Year == 0 {
		m.Year = rules.Year
	}
	if m.DOI == "" {
		m.DOI = rules.DOI
	}
	if m.Abstract == "" {
		m.Abstract = rules.Abstract
	}
	if len(m.Keywords) == 0 {
		m.Keywords = rules.Keywords
	}
	return m
}

// scanDictionary finds every dictionary term of type t present in span.
func scanDictionary(dict *normalize.Dictionary, t records.EntityType, span *textIndex) []string {
	var found []string
	for _, term := range dict.Terms(t) {
		for _, form := range term.Forms {
			if span.contains(form) {
				found = append(found, term.Canonical)
				break
			}
		}
	}
	return found
}

func ruleSampleSize(text string) int {
	m := samplePattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0
	}
	return n
}

func ruleStatisticalTests(span *textIndex) []string {
	var out []string
	for _, t := range statisticalTests {
		if span.contains(t) {
			out = append(out, t)
		}
	}
	return out
}

// ruleStatements extracts statements of one type with sentence patterns.
func ruleStatements(t records.EntityType, text string) []records.Statement {
	var out []records.Statement
	add := func(s, kind string, limit int) bool {
		out = append(out, records.Statement{Type: t, Text: headRunes(s, 1000), Kind: kind, Confidence: constants.RuleConfidence})
		return len(out) >= limit
	}

	switch t {
	case records.TypeResearchQuestion:
		for _, s := range sentences(text) {
			if strings.HasSuffix(s, "?") && utf8.RuneCountInString(s) >= 20 {
				if add(s, "", 5) {
					break
				}
			}
		}
	case records.TypeVariable:
		for _, m := range variablePattern.FindAllStringSubmatch(text, -1) {
			if add(strings.TrimSpace(m[2]), strings.ToLower(m[1]), 10) {
				break
			}
		}
	case records.TypeFinding:
		for _, s := range sentences(text) {
			if findingPattern.MatchString(s) {
				if add(s, "", 10) {
					break
				}
			}
		}
	case records.TypeContribution:
		for _, s := range sentences(text) {
			if contribPattern.MatchString(s) {
				if add(s, "", 5) {
					break
				}
			}
		}
	}
	return out
}

// ruleCooccurrence pairs every theory with every phenomenon that shares a
// section with it.
func ruleCooccurrence(secs *Sections, theories, phenomena []records.EntityMention, forms func(records.EntityType, string) []string) []candidate {
	var out []candidate
	seen := make(map[[2]string]bool)
	for _, sp := range secs.Spans() {
		body := secs.text[sp.Start:sp.End]
		idx := newTextIndex(body)
		for _, th := range theories {
			if !anyForm(idx, forms(records.TypeTheory, th.Name)) {
				continue
			}
			for _, ph := range phenomena {
				pair := [2]string{th.Name, ph.Name}
				if seen[pair] || !anyForm(idx, forms(records.TypePhenomenon, ph.Name)) {
					continue
				}
				seen[pair] = true
				out = append(out, candidate{
					Theory:            th.Name,
					Phenomenon:        ph.Name,
					TheorySection:     sp.Section,
					PhenomenonSection: sp.Section,
					Evidence:          sharedSentence(body, th.Name, ph.Name),
				})
			}
		}
	}
	return out
}

func anyForm(idx *textIndex, forms []string) bool {
	for _, f := range forms {
		if idx.contains(f) {
			return true
		}
	}
	return false
}

func sharedSentence(text, a, b string) string {
	for _, s := range sentences(text) {
		idx := newTextIndex(s)
		if idx.contains(a) && idx.contains(b) {
			return headRunes(s, 500)
		}
	}
	return ""
}
