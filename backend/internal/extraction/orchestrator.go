// Package extraction turns one paper's text into a records.Bundle. Every
// stage degrades through model, simplified model, rules and placeholder, so
// Extract always returns a bundle.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"papergraph/backend/internal/constants"
	"papergraph/backend/internal/gateway"
	"papergraph/backend/internal/normalize"
	"papergraph/backend/internal/records"
	"papergraph/backend/internal/strength"
	"papergraph/backend/pkg/logger"
)

// Model is the part of the gateway the orchestrator needs.
type Model interface {
	Decode(ctx context.Context, prompt gateway.Prompt, input string, params gateway.Params, out any) (*gateway.Result, error)
	EmbeddingsEnabled() bool
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Orchestrator runs the extraction stages for one paper at a time. It is
// safe for concurrent use.
type Orchestrator struct {
	model      Model
	normalizer *normalize.Normalizer
	calc       *strength.Calculator
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator. A nil model runs every stage on
// its deterministic rules.
func NewOrchestrator(model Model, n *normalize.Normalizer, calc *strength.Calculator) *Orchestrator {
	return &Orchestrator{
		model:      model,
		normalizer: n,
		calc:       calc,
		now:        time.Now,
	}
}

// run holds the state of one Extract call.
type run struct {
	o    *Orchestrator
	doc  *Document
	secs *Sections
	idx  *textIndex
	b    *records.Bundle
	log  *zap.Logger
}

// Extract runs every stage over doc. It never fails; degraded stages are
// recorded in the bundle's provenance.
func (o *Orchestrator) Extract(ctx context.Context, doc *Document) *records.Bundle {
	start := o.now()
	r := &run{
		o:   o,
		doc: doc,
		idx: newTextIndex(doc.Text),
		b:   &records.Bundle{ProcessedAt: start.UTC()},
		log: logger.ForPaper(doc.PaperID),
	}

	r.metadata(ctx)
	r.sections(ctx)
	r.entities(ctx)
	r.methodDetails(ctx)
	r.statements(ctx)
	r.relationships(ctx)
	r.embedPaper(ctx)

	r.log.Info("extraction finished",
		zap.Int("entities", len(r.b.Entities)),
		zap.Int("statements", len(r.b.Statements)),
		zap.Int("relationships", len(r.b.Relationships)),
		zap.Bool("fallback", r.b.UsedFallback()),
		zap.Duration("took", o.now().Sub(start)),
	)
	return r.b
}

// ============================================================================
// Stage 1: metadata
// ============================================================================

func (r *run) metadata(ctx context.Context) {
	rules, rulesOK := ruleMetadata(r.doc, r.o.now())

	r.b.Paper = runStage(ctx, r, stage[metadataAnswer, records.PaperMetadata]{
		name:   "metadata",
		prompt: metadataPrompt,
		input:  r.doc.Head(constants.MetadataHeadRunes),
		params: metadataParams,
		convert: func(a metadataAnswer) (records.PaperMetadata, error) {
			title := normalize.Clean(a.Title)
			if title == "" {
				return records.PaperMetadata{}, errors.New("answer has no title")
			}
			m := records.PaperMetadata{
				PaperID:  r.doc.PaperID,
				Title:    title,
				Year:     a.Year,
				Abstract: strings.TrimSpace(a.Abstract),
				Keywords: a.Keywords,
				Journal:  normalize.Clean(a.Journal),
				DOI:      strings.TrimSpace(a.DOI),
			}
			for i, au := range a.Authors {
				name := normalize.Clean(au.Name)
				if name == "" {
					continue
				}
				m.Authors = append(m.Authors, records.AuthorRecord{
					Name:        name,
					ORCID:       strings.TrimSpace(au.ORCID),
					Email:       strings.TrimSpace(au.Email),
					Institution: normalize.Clean(au.Institution),
					Position:    i + 1,
				})
			}
			return complementMetadata(m, rules), nil
		},
		rules: func() (records.PaperMetadata, bool) {
			return rules, rulesOK
		},
		placeholder: func() records.PaperMetadata {
			p := rules
			p.Title = placeholderTitle(r.doc)
			return p
		},
	})
}

func placeholderTitle(doc *Document) string {
	name := strings.TrimSuffix(doc.FileName(), filepath.Ext(doc.FileName()))
	name = strings.Join(strings.FieldsFunc(name, func(c rune) bool { return c == '_' || c == '-' }), " ")
	if name == "" {
		return doc.PaperID
	}
	return name
}

// ============================================================================
// Stage 2: sections of interest
// ============================================================================

func (r *run) sections(ctx context.Context) {
	r.secs = DetectSections(r.doc.Text)
	if r.secs.Runes(records.SectionMethodology) >= constants.MinSectionRunes {
		r.b.Record("sections", records.LevelHeuristic, "")
		return
	}

	candidates := headingCandidates(r.doc.Text)
	var input strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&input, "%d. %s\n", i+1, c)
	}

	runStage(ctx, r, stage[sectionAnswer, bool]{
		name:   "sections",
		prompt: sectionPrompt,
		input:  input.String(),
		params: sectionParams,
		convert: func(a sectionAnswer) (bool, error) {
			if !a.Found {
				return false, nil
			}
			if r.secs.Relabel(a.Heading, records.SectionMethodology) ||
				r.secs.Relabel(stripCandidateNumber(a.Heading), records.SectionMethodology) {
				return true, nil
			}
			return false, fmt.Errorf("heading %q not found in text", a.Heading)
		},
		// the keyword scan has already run
		rules: func() (bool, bool) { return false, true },
	})
}

// headingCandidates lists the short, non-sentence lines of the text.
func headingCandidates(text string) []string {
	var out []string
	for _, l := range lines(text) {
		words := strings.Fields(l)
		if len(words) == 0 || len(words) > 10 || len([]rune(l)) > 80 {
			continue
		}
		if strings.HasSuffix(l, ".") && len(words) > 4 {
			continue
		}
		out = append(out, l)
		if len(out) >= 80 {
			break
		}
	}
	return out
}

func stripCandidateNumber(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ". "); i > 0 && i <= 3 && strings.Trim(s[:i], "0123456789") == "" {
		return s[i+2:]
	}
	return s
}

// ============================================================================
// Stage 3: primary entities
// ============================================================================

var primaryTypes = []records.EntityType{records.TypeTheory, records.TypeMethod, records.TypePhenomenon}

// entitySpan returns the text the entities of type t are extracted from.
func (r *run) entitySpan(t records.EntityType) string {
	var span string
	if t == records.TypeMethod {
		span = r.secs.Text(records.SectionMethodology)
	} else {
		span = r.secs.Text(records.SectionIntroduction, records.SectionLiteratureReview, records.SectionTheory)
	}
	if len([]rune(span)) < constants.MinSectionRunes {
		return r.doc.Head(constants.FallbackSpanRunes)
	}
	return span
}

func (r *run) entities(ctx context.Context) {
	for _, t := range primaryTypes {
		span := r.entitySpan(t)

		mentions := runStage(ctx, r, stage[entitiesAnswer, []records.EntityMention]{
			name:   "entities:" + strings.ToLower(string(t)),
			prompt: entityPrompt(t),
			input:  span,
			params: entityParams,
			convert: func(a entitiesAnswer) ([]records.EntityMention, error) {
				return r.guardEntities(t, a.Entities), nil
			},
			rules: func() ([]records.EntityMention, bool) {
				var out []records.EntityMention
				for _, name := range scanDictionary(r.o.normalizer.Dictionary(), t, newTextIndex(span)) {
					out = append(out, records.EntityMention{
						Type:       t,
						Name:       name,
						Role:       records.RoleSupporting,
						Section:    r.locate(t, name),
						Confidence: constants.RuleConfidence,
					})
				}
				return out, true
			},
		})
		r.b.Entities = append(r.b.Entities, mentions...)
	}
}

// guardEntities keeps the answers whose name occurs in the paper and
// fills in defaults.
func (r *run) guardEntities(t records.EntityType, answers []entityAnswer) []records.EntityMention {
	var out []records.EntityMention
	seen := make(map[string]bool)
	for _, a := range answers {
		name := normalize.Clean(a.Name)
		key := normalize.Fold(name)
		if key == "" || seen[key] {
			continue
		}
		if !r.present(t, name) {
			r.log.Debug("discarded entity not present in text",
				zap.String("type", string(t)),
				zap.String("name", name),
			)
			continue
		}
		seen[key] = true

		m := records.EntityMention{
			Type:       t,
			Name:       name,
			Role:       records.Role(strings.ToLower(strings.TrimSpace(a.Role))),
			Section:    records.Section(strings.ToLower(strings.TrimSpace(a.Section))),
			Usage:      strings.TrimSpace(a.Usage),
			Domain:     normalize.Clean(a.Domain),
			Confidence: a.Confidence,
		}
		if !validRole(m.Role) {
			m.Role = records.RoleSupporting
		}
		if !validSection(m.Section) {
			m.Section = r.locate(t, name)
		}
		if m.Confidence <= 0 || m.Confidence > 1 {
			m.Confidence = constants.DefaultModelConfidence
		}
		out = append(out, m)
		if len(out) >= constants.MaxEntitiesPerCategory {
			break
		}
	}
	return out
}

// present reports whether name, one of its abbreviations or a dictionary
// synonym occurs in the document.
func (r *run) present(t records.EntityType, name string) bool {
	return anyForm(r.idx, r.o.normalizer.Forms(t, name))
}

// locate returns the section of the first mention of name.
func (r *run) locate(t records.EntityType, name string) records.Section {
	off := r.idx.offset(r.o.normalizer.Forms(t, name)...)
	if off < 0 {
		return records.SectionUnknown
	}
	return r.secs.At(off)
}

// context returns the text around the first mention of name.
func (r *run) context(t records.EntityType, name string) string {
	off := r.idx.offset(r.o.normalizer.Forms(t, name)...)
	if off < 0 {
		return ""
	}
	return r.idx.window(off, constants.ContextWindowRunes)
}

func validRole(role records.Role) bool {
	for _, v := range records.Roles {
		if v == role {
			return true
		}
	}
	return false
}

// ============================================================================
// Stage 4: method details and statements
// ============================================================================

func (r *run) methodDetails(ctx context.Context) {
	methods := r.b.EntitiesOf(records.TypeMethod)
	if len(methods) > constants.MaxMethodDetails {
		methods = methods[:constants.MaxMethodDetails]
	}
	span := r.entitySpan(records.TypeMethod)
	spanIdx := newTextIndex(span)

	for _, m := range methods {
		name := m.Name
		detail := runStage(ctx, r, stage[methodAnswer, records.MethodDetail]{
			name:   "method_detail:" + records.Slug(name),
			prompt: methodDetailPrompt,
			input:  "Method: " + name + "\n\n" + span,
			params: detailParams,
			convert: func(a methodAnswer) (records.MethodDetail, error) {
				d := records.MethodDetail{
					Method:           name,
					SampleSize:       a.SampleSize,
					Software:         r.presentNames(records.TypeSoftware, a.Software),
					Datasets:         r.presentNames(records.TypeDataset, a.Datasets),
					StatisticalTests: cleanList(a.StatisticalTests),
					Confidence:       a.Confidence,
				}
				if d.SampleSize < 0 {
					d.SampleSize = 0
				}
				if d.Confidence <= 0 || d.Confidence > 1 {
					d.Confidence = constants.DefaultModelConfidence
				}
				return d, nil
			},
			rules: func() (records.MethodDetail, bool) {
				window := span
				if off := spanIdx.offset(r.o.normalizer.Forms(records.TypeMethod, name)...); off >= 0 {
					window = spanIdx.window(off, constants.ContextWindowRunes*3)
				}
				return records.MethodDetail{
					Method:           name,
					SampleSize:       ruleSampleSize(window),
					Software:         scanDictionary(r.o.normalizer.Dictionary(), records.TypeSoftware, spanIdx),
					Datasets:         scanDictionary(r.o.normalizer.Dictionary(), records.TypeDataset, spanIdx),
					StatisticalTests: ruleStatisticalTests(newTextIndex(window)),
					Confidence:       constants.RuleConfidence,
				}, true
			},
			placeholder: func() records.MethodDetail {
				return records.MethodDetail{Method: name, Confidence: constants.RuleConfidence}
			},
		})
		r.b.Methods = append(r.b.Methods, detail)
	}
}

// presentNames cleans names and drops those absent from the document.
func (r *run) presentNames(t records.EntityType, names []string) []string {
	var out []string
	for _, n := range cleanList(names) {
		if r.present(t, n) {
			out = append(out, n)
		}
	}
	return out
}

func cleanList(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range in {
		s = normalize.Clean(s)
		k := normalize.Fold(s)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

var statementTypes = []records.EntityType{
	records.TypeResearchQuestion,
	records.TypeVariable,
	records.TypeFinding,
	records.TypeContribution,
}

// statementSpan returns the text statements of type t are extracted from.
func (r *run) statementSpan(t records.EntityType) string {
	var span string
	switch t {
	case records.TypeResearchQuestion:
		span = r.secs.Text(records.SectionIntroduction, records.SectionTheory)
	case records.TypeVariable:
		span = r.secs.Text(records.SectionMethodology)
	case records.TypeFinding:
		span = r.secs.Text(records.SectionResults, records.SectionDiscussion, records.SectionConclusion)
	case records.TypeContribution:
		span = r.secs.Text(records.SectionIntroduction, records.SectionDiscussion, records.SectionConclusion)
	}
	if len([]rune(span)) < constants.MinSectionRunes {
		return r.doc.Head(constants.FallbackSpanRunes)
	}
	return span
}

func (r *run) statements(ctx context.Context) {
	for _, t := range statementTypes {
		span := r.statementSpan(t)

		stmts := runStage(ctx, r, stage[statementsAnswer, []records.Statement]{
			name:   "statements:" + strings.ToLower(string(t)),
			prompt: statementPrompt(t),
			input:  span,
			params: statementParams,
			convert: func(a statementsAnswer) ([]records.Statement, error) {
				var out []records.Statement
				for _, s := range a.Statements {
					text := strings.Join(strings.Fields(s.Text), " ")
					if len([]rune(text)) < 3 {
						continue
					}
					conf := s.Confidence
					if conf <= 0 || conf > 1 {
						conf = constants.DefaultModelConfidence
					}
					out = append(out, records.Statement{
						Type:       t,
						Text:       headRunes(text, 1000),
						Kind:       strings.ToLower(strings.TrimSpace(s.Kind)),
						Confidence: conf,
					})
				}
				return dedupeStatements(out), nil
			},
			rules: func() ([]records.Statement, bool) {
				return dedupeStatements(ruleStatements(t, span)), true
			},
		})
		r.b.Statements = append(r.b.Statements, stmts...)
	}
}

// ============================================================================
// Paper embedding
// ============================================================================

func (r *run) embedPaper(ctx context.Context) {
	if r.o.model == nil || !r.o.model.EmbeddingsEnabled() || ctx.Err() != nil {
		return
	}
	text := strings.TrimSpace(r.b.Paper.Title + "\n" + r.b.Paper.Abstract)
	if text == "" {
		return
	}
	vec, err := r.o.model.Embed(ctx, text)
	if err != nil {
		r.log.Warn("paper embedding failed", zap.Error(err))
		return
	}
	r.b.Paper.Embedding = vec
}
