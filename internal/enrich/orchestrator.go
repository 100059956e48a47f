package enrich

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"briefline/internal/domain"
)

// Flags toggles each enrichment feature independently. Disabled features
// are never called; when at least one sibling runs they still appear in
// the output as explicit disabled markers.
type Flags struct {
	Normalize bool
	Generate  bool
	Question  bool
}

// Timeouts bounds each provider call separately.
type Timeouts struct {
	Normalize time.Duration
	Generate  time.Duration
	Question  time.Duration
}

// DefaultTimeouts returns the standard per-feature deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{Normalize: 5 * time.Second, Generate: 8 * time.Second, Question: 3 * time.Second}
}

// Orchestrator runs enabled provider features concurrently and merges
// whatever settles before its deadline, falling back locally otherwise.
type Orchestrator struct {
	Provider Provider
	Flags    Flags
	Timeouts Timeouts
	Log      *zap.Logger
}

func NewOrchestrator(p Provider, flags Flags, timeouts Timeouts, log *zap.Logger) *Orchestrator {
	if timeouts.Normalize <= 0 {
		timeouts.Normalize = 5 * time.Second
	}
	if timeouts.Generate <= 0 {
		timeouts.Generate = 8 * time.Second
	}
	if timeouts.Question <= 0 {
		timeouts.Question = 3 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{Provider: p, Flags: flags, Timeouts: timeouts, Log: log}
}

// Enrich fans out to every enabled feature and waits for all of them to
// settle. Individual failures or timeouts substitute fallbacks and never
// abort sibling calls. Caller cancellation aborts the whole fan-out and
// returns the context error; partial fallback results from a cancelled
// run are never surfaced.
func (o *Orchestrator) Enrich(ctx context.Context, b domain.Brief) (map[Feature]Result, error) {
	results := make(map[Feature]Result, 3)
	if !o.Flags.Normalize && !o.Flags.Generate && !o.Flags.Question {
		return results, nil
	}
	if o.Provider == nil {
		if o.Flags.Normalize {
			results[FeatureNormalize] = Result{UsedFallback: true, Data: FallbackNormalize(b)}
		}
		if o.Flags.Generate {
			results[FeatureGenerate] = Result{UsedFallback: true, Data: FallbackGenerate(b)}
		}
		if o.Flags.Question {
			results[FeatureQuestion] = Result{UsedFallback: true, Data: FallbackQuestions(b)}
		}
		o.markDisabled(results)
		return results, nil
	}

	type slot struct {
		feature Feature
		result  Result
	}
	var slots [3]*slot
	g, gctx := errgroup.WithContext(ctx)

	run := func(i int, feature Feature, timeout time.Duration, call func(context.Context) (any, error), fallback func() any) {
		slots[i] = &slot{feature: feature}
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			data, err := call(callCtx)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					o.Log.Warn("enrichment provider timed out", zap.String("feature", string(feature)), zap.Duration("timeout", timeout))
				} else {
					o.Log.Warn("enrichment provider failed", zap.String("feature", string(feature)), zap.Error(err))
				}
				slots[i].result = Result{Succeeded: false, UsedFallback: true, Data: fallback()}
				return nil
			}
			slots[i].result = Result{Succeeded: true, Data: data}
			return nil
		})
	}

	i := 0
	if o.Flags.Normalize {
		run(i, FeatureNormalize, o.Timeouts.Normalize,
			func(ctx context.Context) (any, error) { return nilGuard(o.Provider.Normalize(ctx, b)) },
			func() any { return FallbackNormalize(b) })
		i++
	}
	if o.Flags.Generate {
		run(i, FeatureGenerate, o.Timeouts.Generate,
			func(ctx context.Context) (any, error) { return nilGuard(o.Provider.Generate(ctx, b)) },
			func() any { return FallbackGenerate(b) })
		i++
	}
	if o.Flags.Question {
		run(i, FeatureQuestion, o.Timeouts.Question,
			func(ctx context.Context) (any, error) { return nilGuard(o.Provider.Questions(ctx, b)) },
			func() any { return FallbackQuestions(b) })
		i++
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, s := range slots[:i] {
		results[s.feature] = s.result
	}
	o.markDisabled(results)
	return results, nil
}

// markDisabled records the switched-off features so callers can tell
// "flag off" apart from "never requested".
func (o *Orchestrator) markDisabled(results map[Feature]Result) {
	if !o.Flags.Normalize {
		results[FeatureNormalize] = Result{Disabled: true}
	}
	if !o.Flags.Generate {
		results[FeatureGenerate] = Result{Disabled: true}
	}
	if !o.Flags.Question {
		results[FeatureQuestion] = Result{Disabled: true}
	}
}

// nilGuard turns a typed nil payload into an error so it falls back.
func nilGuard[T any](v *T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errors.New("provider returned empty payload")
	}
	return v, nil
}
