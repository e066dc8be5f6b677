package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papergraph/backend/internal/records"
	apperrors "papergraph/backend/pkg/errors"
)

func newTestValidator() *Validator {
	v := New()
	v.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return v
}

func TestValidate_PaperMetadata(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name  string
		paper records.PaperMetadata
		field string
	}{
		{"valid", records.PaperMetadata{PaperID: "p", Title: "T", Year: 2020, DOI: "10.1000/xyz123"}, ""},
		{"year too old", records.PaperMetadata{PaperID: "p", Title: "T", Year: 1850}, "Year"},
		{"year next year ok", records.PaperMetadata{PaperID: "p", Title: "T", Year: 2026}, ""},
		{"year in future", records.PaperMetadata{PaperID: "p", Title: "T", Year: 2027}, "Year"},
		{"bad doi", records.PaperMetadata{PaperID: "p", Title: "T", DOI: "doi:abc"}, "DOI"},
		{"missing title", records.PaperMetadata{PaperID: "p"}, "Title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.paper)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vf *apperrors.ErrValidationFailed
			require.True(t, errors.As(err, &vf))
			assert.Equal(t, "Paper", vf.EntityType)
			assert.Equal(t, tt.field, vf.Field)
		})
	}
}

func TestValidate_EntityMention(t *testing.T) {
	v := newTestValidator()
	good := records.EntityMention{
		Type:       records.TypeTheory,
		Name:       "Agency Theory",
		Role:       records.RolePrimary,
		Section:    records.SectionIntroduction,
		Confidence: 0.9,
	}
	assert.NoError(t, v.Validate(good))

	badRole := good
	badRole.Role = "central"
	assert.Error(t, v.Validate(badRole))

	badConf := good
	badConf.Confidence = 1.2
	assert.Error(t, v.Validate(badConf))

	badSection := good
	badSection.Section = "appendix"
	assert.Error(t, v.Validate(badSection))

	unknownSection := good
	unknownSection.Section = records.SectionUnknown
	assert.NoError(t, v.Validate(unknownSection))
}

func TestValidate_AuthorEmail(t *testing.T) {
	v := newTestValidator()
	assert.NoError(t, v.Validate(records.AuthorRecord{Name: "A", Email: "a@uni.edu", ORCID: "0000-0002-1825-0097"}))
	assert.Error(t, v.Validate(records.AuthorRecord{Name: "A", Email: "not-an-email"}))
	assert.Error(t, v.Validate(records.AuthorRecord{Name: "A", ORCID: "1234"}))
}

func TestFilterBundle(t *testing.T) {
	v := newTestValidator()
	b := &records.Bundle{
		Paper: records.PaperMetadata{
			PaperID: "smith2020",
			Title:   "",
			Year:    3020,
			DOI:     "nonsense",
			Authors: []records.AuthorRecord{
				{Name: "Jane Smith", Email: "broken"},
				{Name: ""},
			},
		},
		Entities: []records.EntityMention{
			{Type: records.TypeTheory, Name: "Agency Theory", Role: records.RolePrimary, Confidence: 0.8},
			{Type: records.TypeTheory, Name: "  ", Role: records.RolePrimary, Confidence: 0.8},
			{Type: records.TypePhenomenon, Name: "Firm growth", Role: "unknown-role", Confidence: 0.5},
		},
		Methods: []records.MethodDetail{
			{Method: "Regression", SampleSize: -4},
			{Method: "Case study", SampleSize: 12, Confidence: 0.7},
		},
		Statements: []records.Statement{
			{Type: records.TypeFinding, Text: "ok", Confidence: 0.5},
			{Type: records.TypeFinding, Text: "Growth accelerates", Confidence: 0.5},
		},
	}

	clean, drops := v.FilterBundle(b)

	assert.Equal(t, "smith2020", clean.Paper.Title)
	assert.Zero(t, clean.Paper.Year)
	assert.Empty(t, clean.Paper.DOI)
	require.Len(t, clean.Paper.Authors, 1)
	assert.Equal(t, "Jane Smith", clean.Paper.Authors[0].Name)
	assert.Empty(t, clean.Paper.Authors[0].Email)

	require.Len(t, clean.Entities, 1)
	assert.Equal(t, "Agency Theory", clean.Entities[0].Name)
	require.Len(t, clean.Methods, 1)
	assert.Equal(t, "Case study", clean.Methods[0].Method)
	require.Len(t, clean.Statements, 1)

	assert.Len(t, drops, 4)
	// input untouched
	assert.Len(t, b.Entities, 3)
}
