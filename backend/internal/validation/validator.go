// Package validation checks extracted records before they reach the graph.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"papergraph/backend/internal/records"
	apperrors "papergraph/backend/pkg/errors"
	"papergraph/backend/pkg/logger"
)

var (
	doiPattern   = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	orcidPattern = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{3}[\dXx]$`)
)

// Validator wraps go-playground/validator with the record-specific rules.
type Validator struct {
	v      *validator.Validate
	now    func() time.Time
	logger *zap.Logger
}

// New creates a validator with the custom tags registered
func New() *Validator {
	val := &Validator{
		v:      validator.New(validator.WithRequiredStructEnabled()),
		now:    time.Now,
		logger: logger.Get(),
	}

	_ = val.v.RegisterValidation("pubyear", func(fl validator.FieldLevel) bool {
		year := int(fl.Field().Int())
		return year >= 1900 && year <= val.now().Year()+1
	})
	_ = val.v.RegisterValidation("doi", func(fl validator.FieldLevel) bool {
		return doiPattern.MatchString(fl.Field().String())
	})
	_ = val.v.RegisterValidation("orcid", func(fl validator.FieldLevel) bool {
		return orcidPattern.MatchString(fl.Field().String())
	})
	_ = val.v.RegisterValidation("theoryrole", func(fl validator.FieldLevel) bool {
		role := records.Role(fl.Field().String())
		for _, r := range records.Roles {
			if r == role {
				return true
			}
		}
		return false
	})
	_ = val.v.RegisterValidation("section", func(fl validator.FieldLevel) bool {
		s := records.Section(fl.Field().String())
		return s == records.SectionUnknown || s.Index() >= 0
	})

	return val
}

// Validate checks one record. The error is an *errors.ErrValidationFailed
// naming the first failing field.
func (val *Validator) Validate(record any) error {
	err := val.v.Struct(record)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperrors.NewValidationFailed(typeName(record), fe.Field(), reason(fe))
	}
	return apperrors.NewValidationFailed(typeName(record), "", err.Error())
}

// Drop describes a record removed from a bundle.
type Drop struct {
	EntityType string
	Name       string
	Field      string
	Reason     string
}

// FilterBundle returns a copy of b without the records that fail validation.
// Paper metadata is repaired instead of dropped so the Paper node can still be
// written.
func (val *Validator) FilterBundle(b *records.Bundle) (*records.Bundle, []Drop) {
	out := *b
	var drops []Drop

	drop := func(record any, name string, err error) {
		d := Drop{EntityType: typeName(record), Name: name, Reason: err.Error()}
		var vf *apperrors.ErrValidationFailed
		if errors.As(err, &vf) {
			d.EntityType = vf.EntityType
			d.Field = vf.Field
			d.Reason = vf.Reason
		}
		drops = append(drops, d)
		val.logger.Warn("dropping invalid record",
			zap.String("paper_id", b.Paper.PaperID),
			zap.String("entity_type", d.EntityType),
			zap.String("name", d.Name),
			zap.String("field", d.Field),
			zap.String("reason", d.Reason),
		)
	}

	out.Paper = val.repairPaper(b.Paper)

	out.Entities = nil
	for _, e := range b.Entities {
		e.Name = strings.TrimSpace(e.Name)
		if err := val.Validate(e); err != nil {
			drop(e, e.Name, err)
			continue
		}
		out.Entities = append(out.Entities, e)
	}

	out.Methods = nil
	for _, m := range b.Methods {
		if err := val.Validate(m); err != nil {
			drop(m, m.Method, err)
			continue
		}
		out.Methods = append(out.Methods, m)
	}

	out.Statements = nil
	for _, s := range b.Statements {
		s.Text = strings.TrimSpace(s.Text)
		if err := val.Validate(s); err != nil {
			drop(s, s.Text, err)
			continue
		}
		out.Statements = append(out.Statements, s)
	}

	out.Relationships = nil
	for _, r := range b.Relationships {
		if err := val.Validate(r); err != nil {
			drop(r, r.Theory+" -> "+r.Phenomenon, err)
			continue
		}
		out.Relationships = append(out.Relationships, r)
	}

	return &out, drops
}

// repairPaper clears or replaces every failing field until the record
// validates. Bad authors are dropped individually.
func (val *Validator) repairPaper(p records.PaperMetadata) records.PaperMetadata {
	var authors []records.AuthorRecord
	for _, a := range p.Authors {
		if err := val.Validate(a); err != nil {
			a.ORCID = orcidOrEmpty(a.ORCID)
			a.Email = ""
			if val.Validate(a) != nil {
				continue
			}
		}
		authors = append(authors, a)
	}
	p.Authors = authors

	for i := 0; i < 8; i++ {
		err := val.Validate(p)
		if err == nil {
			return p
		}
		var vf *apperrors.ErrValidationFailed
		if !errors.As(err, &vf) {
			break
		}
		val.logger.Warn("repairing paper metadata",
			zap.String("paper_id", p.PaperID),
			zap.String("field", vf.Field),
			zap.String("reason", vf.Reason),
		)
		switch vf.Field {
		case "Title":
			p.Title = placeholderTitle(p)
		case "Year":
			p.Year = 0
		case "DOI":
			p.DOI = ""
		case "Journal":
			p.Journal = truncateRunes(p.Journal, 300)
		case "Keywords":
			p.Keywords = nil
		default:
			return placeholderPaper(p.PaperID)
		}
	}
	if val.Validate(p) != nil {
		return placeholderPaper(p.PaperID)
	}
	return p
}

func placeholderTitle(p records.PaperMetadata) string {
	if t := strings.TrimSpace(p.Title); t != "" {
		return truncateRunes(t, 500)
	}
	return p.PaperID
}

func placeholderPaper(paperID string) records.PaperMetadata {
	return records.PaperMetadata{PaperID: paperID, Title: paperID}
}

func orcidOrEmpty(s string) string {
	if orcidPattern.MatchString(s) {
		return s
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func typeName(record any) string {
	switch r := record.(type) {
	case records.EntityMention:
		if r.Type != "" {
			return string(r.Type)
		}
		return "Entity"
	case records.Statement:
		if r.Type != "" {
			return string(r.Type)
		}
		return "Statement"
	case records.MethodDetail:
		return "MethodDetail"
	case records.Relationship:
		return "Relationship"
	case records.PaperMetadata:
		return string(records.TypePaper)
	case records.AuthorRecord:
		return string(records.TypeAuthor)
	default:
		return fmt.Sprintf("%T", record)
	}
}

func reason(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
	return "failed " + fe.Tag()
}
