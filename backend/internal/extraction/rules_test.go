package extraction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papergraph/backend/internal/normalize"
	"papergraph/backend/internal/records"
)

var fixedNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestRuleYear(t *testing.T) {
	assert.Equal(t, 2019, ruleYear("doe_2019_boards.pdf", "Published 2021", fixedNow))
	assert.Equal(t, 2021, ruleYear("boards.pdf", "Received 12345 ... Published 2021", fixedNow))
	assert.Equal(t, 0, ruleYear("boards_2031.pdf", "page 1899", fixedNow))
	assert.Equal(t, 2025, ruleYear("in-press-2025.pdf", "", fixedNow))
}

func TestRuleDOI(t *testing.T) {
	assert.Equal(t, "10.1234/amj.2019.0042", ruleDOI("see https://doi.org/10.1234/amj.2019.0042."))
	assert.Equal(t, "10.1000/xyz123", ruleDOI("(doi:10.1000/xyz123)"))
	assert.Empty(t, ruleDOI("no identifier here"))
}

func TestRuleMetadata(t *testing.T) {
	doc := NewDocument("/corpus/doe_2019_boards.txt", samplePaper)
	m, ok := ruleMetadata(doc, fixedNow)
	require.True(t, ok)

	assert.Equal(t, "doe-2019-boards", m.PaperID)
	assert.Equal(t, "Independent Boards and Firm Performance: Evidence from Agency Theory", m.Title)
	assert.Equal(t, 2019, m.Year)
	assert.Equal(t, "10.1234/amj.2019.0042", m.DOI)
	assert.Equal(t, "We study how board independence shapes firm performance and employee turnover.", m.Abstract)
	assert.Equal(t, []string{"agency theory", "firm performance", "corporate governance"}, m.Keywords)
}

func TestComplementMetadata(t *testing.T) {
	model := records.PaperMetadata{Title: "From the model", Year: 2018}
	rules := records.PaperMetadata{Title: "From rules", Year: 2019, DOI: "10.1/x", Keywords: []string{"k"}}

	got := complementMetadata(model, rules)
	assert.Equal(t, "From the model", got.Title)
	assert.Equal(t, 2018, got.Year)
	assert.Equal(t, "10.1/x", got.DOI)
	assert.Equal(t, []string{"k"}, got.Keywords)
}

func TestScanDictionary(t *testing.T) {
	dict, err := normalize.DefaultDictionary()
	require.NoError(t, err)

	span := newTextIndex("We combine the resource-based view (RBV) with TAM. Data come from Execucomp.")
	assert.ElementsMatch(t, []string{"Resource-Based View", "Technology Acceptance Model"},
		scanDictionary(dict, records.TypeTheory, span))
	assert.Equal(t, []string{"ExecuComp"}, scanDictionary(dict, records.TypeDataset, span))

	// acronyms only match in upper case
	lower := newTextIndex("the tam and rbv were mentioned in lower case")
	assert.Empty(t, scanDictionary(dict, records.TypeTheory, lower))
}

func TestRuleSampleSize(t *testing.T) {
	assert.Equal(t, 1250, ruleSampleSize("We collected a sample of 1,250 firm-years."))
	assert.Equal(t, 312, ruleSampleSize("respondents (N = 312) completed"))
	assert.Equal(t, 0, ruleSampleSize("no size reported"))
}

func TestRuleStatements(t *testing.T) {
	rq := ruleStatements(records.TypeResearchQuestion, "We ask a question. Does board independence improve firm performance? Why?")
	require.Len(t, rq, 1)
	assert.Equal(t, "Does board independence improve firm performance?", rq[0].Text)
	assert.Equal(t, 0.5, rq[0].Confidence)

	vars := ruleStatements(records.TypeVariable, "The dependent variable is firm performance measured as return on assets. Controls include size.")
	require.Len(t, vars, 1)
	assert.Equal(t, "dependent", vars[0].Kind)
	assert.Equal(t, "firm performance measured as return on assets", vars[0].Text)

	findings := ruleStatements(records.TypeFinding, "Results show that boards matter. The weather was fine. We find that turnover declines.")
	assert.Len(t, findings, 2)

	contribs := ruleStatements(records.TypeContribution, "This study contributes to the literature on governance.")
	assert.Len(t, contribs, 1)
}

func TestRuleCooccurrence(t *testing.T) {
	dict, err := normalize.DefaultDictionary()
	require.NoError(t, err)
	n := normalize.New(dict)

	text := "1. Introduction\nAgency theory explains firm performance.\n2. Results\nEmployee turnover fell.\n"
	secs := DetectSections(text)
	theories := []records.EntityMention{{Type: records.TypeTheory, Name: "Agency Theory"}}
	phenomena := []records.EntityMention{
		{Type: records.TypePhenomenon, Name: "Firm Performance"},
		{Type: records.TypePhenomenon, Name: "Employee Turnover"},
	}

	got := ruleCooccurrence(secs, theories, phenomena, n.Forms)
	require.Len(t, got, 1)
	assert.Equal(t, "Agency Theory", got[0].Theory)
	assert.Equal(t, "Firm Performance", got[0].Phenomenon)
	assert.Equal(t, records.SectionIntroduction, got[0].TheorySection)
	assert.Equal(t, "Agency theory explains firm performance.", got[0].Evidence)
}
