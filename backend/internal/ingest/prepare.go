package ingest

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"papergraph/backend/internal/normalize"
	"papergraph/backend/internal/records"
	"papergraph/backend/internal/validation"
)

// plan is a bundle with every entity name resolved to its canonical form.
// It is built outside the transaction so a retried transaction replays the
// same writes.
type plan struct {
	paper         records.PaperMetadata
	status        string
	processedAt   time.Time
	entities      []records.EntityMention
	methods       []preparedMethod
	statements    []records.Statement
	relationships []records.Relationship
	drops         []validation.Drop
	newEntities   int
}

type preparedMethod struct {
	detail   records.MethodDetail
	software []string
	datasets []string
}

// canonicalizer resolves names and remembers the results for one bundle.
type canonicalizer struct {
	ctx   context.Context
	norm  *normalize.Normalizer
	seen  map[string]string
	drops *[]validation.Drop
	fresh int
	log   *zap.Logger
}

func (c *canonicalizer) resolve(t records.EntityType, raw string) (string, bool) {
	k := string(t) + "\x00" + raw
	if name, ok := c.seen[k]; ok {
		return name, name != ""
	}
	res, err := c.norm.Normalize(c.ctx, raw, t)
	if err != nil {
		*c.drops = append(*c.drops, validation.Drop{
			EntityType: string(t),
			Name:       raw,
			Field:      "Name",
			Reason:     err.Error(),
		})
		c.seen[k] = ""
		return "", false
	}
	if res.New() {
		c.fresh++
	}
	if res.Canonical != raw {
		c.log.Debug("name normalized",
			zap.String("type", string(t)),
			zap.String("raw", raw),
			zap.String("canonical", res.Canonical),
			zap.String("tier", string(res.Tier)),
		)
	}
	c.seen[k] = res.Canonical
	return res.Canonical, true
}

func (c *canonicalizer) resolveAll(t records.EntityType, raws []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range raws {
		if name, ok := c.resolve(t, raw); ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func (in *Ingester) prepare(ctx context.Context, b *records.Bundle, drops []validation.Drop) *plan {
	p := &plan{
		paper:       b.Paper,
		status:      statusOf(b),
		processedAt: b.ProcessedAt,
		statements:  b.Statements,
	}
	c := &canonicalizer{ctx: ctx, norm: in.normalizer, seen: make(map[string]string), drops: &drops, log: in.logger}

	for _, e := range b.Entities {
		name, ok := c.resolve(e.Type, e.Name)
		if !ok {
			continue
		}
		e.Name = name
		p.entities = append(p.entities, e)
	}

	for _, m := range b.Methods {
		name, ok := c.resolve(records.TypeMethod, m.Method)
		if !ok {
			continue
		}
		m.Method = name
		p.methods = append(p.methods, preparedMethod{
			detail:   m,
			software: c.resolveAll(records.TypeSoftware, m.Software),
			datasets: c.resolveAll(records.TypeDataset, m.Datasets),
		})
	}

	// one EXPLAINS edge per canonical pair, keeping the strongest evidence
	best := make(map[[2]string]records.Relationship)
	for _, r := range b.Relationships {
		theory, ok := c.resolve(records.TypeTheory, r.Theory)
		if !ok {
			continue
		}
		phenomenon, ok := c.resolve(records.TypePhenomenon, r.Phenomenon)
		if !ok {
			continue
		}
		r.Theory, r.Phenomenon = theory, phenomenon
		pair := [2]string{theory, phenomenon}
		if prev, ok := best[pair]; !ok || r.Strength.Total > prev.Strength.Total {
			best[pair] = r
		}
	}
	for _, r := range best {
		p.relationships = append(p.relationships, r)
	}
	sort.Slice(p.relationships, func(i, j int) bool {
		a, b := p.relationships[i], p.relationships[j]
		if a.Theory != b.Theory {
			return a.Theory < b.Theory
		}
		return a.Phenomenon < b.Phenomenon
	})

	p.drops = drops
	p.newEntities = c.fresh
	return p
}
