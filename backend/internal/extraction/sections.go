package extraction

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"papergraph/backend/internal/normalize"
	"papergraph/backend/internal/records"
)

// Span is one detected section: the heading line and the byte range of its
// body in the document text.
type Span struct {
	Section records.Section
	Heading string
	Start   int
	End     int

	line int // offset of the heading line
}

// Sections is the section map of a document.
type Sections struct {
	text  string
	spans []Span
}

var headingPrefix = regexp.MustCompile(`^(?:(?:\d+(?:\.\d+)*|[IVXLC]+|[A-Z])[.)]?\s+)?`)

// headingKeywords are matched against a folded heading in order, so more
// specific phrases come first.
var headingKeywords = []struct {
	phrase  string
	section records.Section
}{
	{"theoretical background", records.SectionTheory},
	{"theoretical framework", records.SectionTheory},
	{"conceptual framework", records.SectionTheory},
	{"hypotheses development", records.SectionTheory},
	{"hypothesis development", records.SectionTheory},
	{"literature review", records.SectionLiteratureReview},
	{"review of the literature", records.SectionLiteratureReview},
	{"related work", records.SectionLiteratureReview},
	{"prior research", records.SectionLiteratureReview},
	{"background", records.SectionLiteratureReview},
	{"introduction", records.SectionIntroduction},
	{"research design", records.SectionMethodology},
	{"research methodology", records.SectionMethodology},
	{"empirical strategy", records.SectionMethodology},
	{"data and method", records.SectionMethodology},
	{"methodology", records.SectionMethodology},
	{"methods", records.SectionMethodology},
	{"method", records.SectionMethodology},
	{"sample and data", records.SectionMethodology},
	{"data", records.SectionMethodology},
	{"results", records.SectionResults},
	{"findings", records.SectionResults},
	{"empirical analysis", records.SectionResults},
	{"analysis", records.SectionResults},
	{"discussion", records.SectionDiscussion},
	{"conclusions", records.SectionConclusion},
	{"conclusion", records.SectionConclusion},
	{"concluding remarks", records.SectionConclusion},
	{"implications", records.SectionConclusion},
	{"theory", records.SectionTheory},
	{"hypotheses", records.SectionTheory},
}

// DetectSections scans heading-like lines for section keywords. Text before
// the first recognised heading belongs to no section.
func DetectSections(text string) *Sections {
	s := &Sections{text: text}
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		start := offset
		offset += len(line)
		if sec, ok := classifyHeading(line); ok {
			s.open(sec, strings.TrimSpace(line), start, offset)
		}
	}
	s.close(len(text))
	return s
}

func (s *Sections) open(sec records.Section, heading string, lineStart, bodyStart int) {
	s.close(lineStart)
	s.spans = append(s.spans, Span{Section: sec, Heading: heading, Start: bodyStart, End: -1, line: lineStart})
}

func (s *Sections) close(at int) {
	if n := len(s.spans); n > 0 && s.spans[n-1].End < 0 {
		s.spans[n-1].End = at
	}
}

// classifyHeading reports the section a line announces. Headings are short
// and are not sentences.
func classifyHeading(line string) (records.Section, bool) {
	line = strings.TrimSpace(line)
	if line == "" || utf8.RuneCountInString(line) > 80 {
		return "", false
	}
	if strings.HasSuffix(line, ".") && len(strings.Fields(line)) > 2 {
		return "", false
	}
	stripped := headingPrefix.ReplaceAllString(strings.TrimLeft(line, "#* "), "")
	folded := normalize.Fold(stripped)
	if folded == "" || len(strings.Fields(folded)) > 6 {
		return "", false
	}
	for _, kw := range headingKeywords {
		if folded == kw.phrase || strings.HasPrefix(folded, kw.phrase+" ") || strings.HasSuffix(folded, " "+kw.phrase) {
			return kw.section, true
		}
	}
	return "", false
}

// Spans returns the detected spans in document order.
func (s *Sections) Spans() []Span {
	return append([]Span(nil), s.spans...)
}

// Has reports whether any span of sec was found.
func (s *Sections) Has(sec records.Section) bool {
	for _, sp := range s.spans {
		if sp.Section == sec {
			return true
		}
	}
	return false
}

// Text returns the bodies of every span of the given sections joined in
// document order.
func (s *Sections) Text(secs ...records.Section) string {
	want := make(map[records.Section]bool, len(secs))
	for _, sec := range secs {
		want[sec] = true
	}
	var parts []string
	for _, sp := range s.spans {
		if want[sp.Section] {
			if body := strings.TrimSpace(s.text[sp.Start:sp.End]); body != "" {
				parts = append(parts, body)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// Runes returns the total body length of a section.
func (s *Sections) Runes(sec records.Section) int {
	return utf8.RuneCountInString(s.Text(sec))
}

// At returns the section containing byte offset, or unknown.
func (s *Sections) At(offset int) records.Section {
	for _, sp := range s.spans {
		if offset >= sp.Start && offset < sp.End {
			return sp.Section
		}
	}
	return records.SectionUnknown
}

// Relabel marks the line matching heading as the start of sec, splitting the
// span it falls in. It reports whether the heading was found.
func (s *Sections) Relabel(heading string, sec records.Section) bool {
	want := normalize.Fold(heading)
	if want == "" {
		return false
	}
	offset := 0
	for _, line := range strings.SplitAfter(s.text, "\n") {
		start := offset
		offset += len(line)
		if normalize.Fold(line) != want {
			continue
		}
		s.insert(Span{Section: sec, Heading: strings.TrimSpace(line), Start: offset, line: start})
		return true
	}
	return false
}

func (s *Sections) insert(sp Span) {
	var out []Span
	placed := false
	for _, cur := range s.spans {
		switch {
		case cur.Start == sp.Start:
			// the line was already a heading; relabel it
			cur.Section, cur.Heading = sp.Section, sp.Heading
			placed = true
		case !placed && sp.line >= cur.Start && sp.line < cur.End:
			sp.End = cur.End
			cur.End = sp.line
			out = append(out, cur)
			cur = sp
			placed = true
		}
		out = append(out, cur)
	}
	if !placed {
		sp.End = len(s.text)
		for _, cur := range out {
			if cur.line >= sp.Start && cur.line < sp.End {
				sp.End = cur.line
			}
		}
		out = append(out, sp)
		sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	}
	s.spans = out
}
