package extraction

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"papergraph/backend/internal/gateway"
	"papergraph/backend/internal/records"
)

// stage is one extraction step and its fallback chain: full model call,
// simplified model call, deterministic rules, placeholder.
type stage[A, T any] struct {
	name   string
	prompt gateway.Prompt
	input  string
	params gateway.Params

	// convert turns a decoded answer into records. An error rejects the
	// answer and moves to the next level.
	convert func(A) (T, error)

	// rules reports false when it found nothing usable.
	rules       func() (T, bool)
	placeholder func() T
}

type attempt struct {
	level  records.Level
	params gateway.Params
}

// runStage walks the chain until a level produces output and records which
// level it was in the bundle's provenance.
func runStage[A, T any](ctx context.Context, r *run, s stage[A, T]) T {
	var reasons []string

	switch {
	case r.o.model == nil:
		reasons = append(reasons, "model disabled")
	case strings.TrimSpace(s.input) == "":
		reasons = append(reasons, "no input text")
	default:
		for _, a := range []attempt{
			{records.LevelModel, s.params},
			{records.LevelSimplified, s.params.Simplify()},
		} {
			if ctx.Err() != nil {
				reasons = append(reasons, "cancelled")
				break
			}

			var answer A
			if _, err := r.o.model.Decode(ctx, s.prompt, s.input, a.params, &answer); err != nil {
				reasons = append(reasons, err.Error())
				continue
			}
			out, err := s.convert(answer)
			if err != nil {
				reasons = append(reasons, err.Error())
				continue
			}

			r.finish(s.name, a.level, reasons)
			return out
		}
	}

	if s.rules != nil {
		if out, ok := s.rules(); ok {
			r.finish(s.name, records.LevelRules, reasons)
			return out
		}
		reasons = append(reasons, "rules found nothing")
	}

	r.finish(s.name, records.LevelPlaceholder, reasons)
	if s.placeholder == nil {
		var zero T
		return zero
	}
	return s.placeholder()
}

func (r *run) finish(name string, level records.Level, reasons []string) {
	reason := strings.Join(reasons, "; ")
	r.b.Record(name, level, reason)
	if level.Fallback() {
		r.log.Warn("extraction stage fell back",
			zap.String("stage", name),
			zap.String("level", string(level)),
			zap.String("reason", reason),
		)
	}
}
