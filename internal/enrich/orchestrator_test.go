package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"briefline/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// go.opencensus.io (a transitive dependency) starts this worker in
		// package init; it is not a goroutine leaked by code under test.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

type fakeProvider struct {
	normalize func(context.Context, domain.Brief) (*NormalizeResult, error)
	generate  func(context.Context, domain.Brief) (*GenerateResult, error)
	questions func(context.Context, domain.Brief) (*QuestionsResult, error)
}

func (f fakeProvider) Normalize(ctx context.Context, b domain.Brief) (*NormalizeResult, error) {
	return f.normalize(ctx, b)
}

func (f fakeProvider) Generate(ctx context.Context, b domain.Brief) (*GenerateResult, error) {
	return f.generate(ctx, b)
}

func (f fakeProvider) Questions(ctx context.Context, b domain.Brief) (*QuestionsResult, error) {
	return f.questions(ctx, b)
}

func failingProvider() fakeProvider {
	return fakeProvider{
		normalize: func(context.Context, domain.Brief) (*NormalizeResult, error) {
			return nil, errors.New("connection refused")
		},
		generate: func(context.Context, domain.Brief) (*GenerateResult, error) {
			return nil, errors.New("connection refused")
		},
		questions: func(context.Context, domain.Brief) (*QuestionsResult, error) {
			return nil, errors.New("connection refused")
		},
	}
}

func testBrief() domain.Brief {
	return domain.Brief{Title: "Refonte site", Description: "Refonte d'un site e-commerce"}
}

func TestEnrichNoFeaturesEnabled(t *testing.T) {
	o := NewOrchestrator(failingProvider(), Flags{}, DefaultTimeouts(), nil)
	results, err := o.Enrich(context.Background(), testBrief())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEnrichFallbackOnFailure(t *testing.T) {
	o := NewOrchestrator(failingProvider(), Flags{Normalize: true, Generate: true, Question: true}, DefaultTimeouts(), nil)
	results, err := o.Enrich(context.Background(), testBrief())
	require.NoError(t, err)
	require.Len(t, results, 3)

	norm := results[FeatureNormalize]
	assert.False(t, norm.Succeeded)
	assert.True(t, norm.UsedFallback)
	data, ok := norm.Data.(*NormalizeResult)
	require.True(t, ok)
	assert.Equal(t, "Refonte d'un site e-commerce", data.Summary)
	assert.Contains(t, data.Flags, "needs more detail")

	gen := results[FeatureGenerate]
	assert.True(t, gen.UsedFallback)
	variants := gen.Data.(*GenerateResult).Variants
	require.Len(t, variants, 1)
	assert.Equal(t, "Refonte site", variants[0].Title)

	q := results[FeatureQuestion]
	assert.True(t, q.UsedFallback)
	qr := q.Data.(*QuestionsResult)
	assert.Len(t, qr.Questions, 2)
	assert.Equal(t, 60.0, qr.CompletionGain.Current)
	assert.Equal(t, 80.0, qr.CompletionGain.Potential)
}

func TestEnrichTimeoutFallsBack(t *testing.T) {
	slow := fakeProvider{
		normalize: func(ctx context.Context, b domain.Brief) (*NormalizeResult, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return &NormalizeResult{Summary: "late"}, nil
			}
		},
	}
	o := NewOrchestrator(slow, Flags{Normalize: true}, Timeouts{Normalize: 20 * time.Millisecond}, nil)
	results, err := o.Enrich(context.Background(), testBrief())
	require.NoError(t, err)
	require.Contains(t, results, FeatureNormalize)
	assert.True(t, results[FeatureNormalize].UsedFallback)
}

func TestEnrichFailureDoesNotAbortSiblings(t *testing.T) {
	p := failingProvider()
	p.generate = func(context.Context, domain.Brief) (*GenerateResult, error) {
		return &GenerateResult{Variants: []Variant{{Title: "Mieux"}}}, nil
	}
	o := NewOrchestrator(p, Flags{Normalize: true, Generate: true}, DefaultTimeouts(), nil)
	results, err := o.Enrich(context.Background(), testBrief())
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[FeatureNormalize].UsedFallback)
	assert.True(t, results[FeatureGenerate].Succeeded)
	assert.False(t, results[FeatureGenerate].UsedFallback)
	assert.True(t, results[FeatureQuestion].Disabled)
}

func TestEnrichDisabledFeatureMarked(t *testing.T) {
	called := false
	p := failingProvider()
	p.questions = func(context.Context, domain.Brief) (*QuestionsResult, error) {
		called = true
		return nil, errors.New("should not be called")
	}
	o := NewOrchestrator(p, Flags{Normalize: true}, DefaultTimeouts(), nil)
	results, err := o.Enrich(context.Background(), testBrief())
	require.NoError(t, err)
	assert.False(t, called)

	q := results[FeatureQuestion]
	assert.True(t, q.Disabled)
	assert.False(t, q.Succeeded)
	assert.False(t, q.UsedFallback)
	assert.Nil(t, q.Data)
}

func TestEnrichNilProviderFallsBack(t *testing.T) {
	o := NewOrchestrator(nil, Flags{Normalize: true, Question: true}, DefaultTimeouts(), nil)
	results, err := o.Enrich(context.Background(), testBrief())
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[FeatureNormalize].UsedFallback)
	assert.True(t, results[FeatureQuestion].UsedFallback)
	assert.True(t, results[FeatureGenerate].Disabled)
}

func TestEnrichCallerCancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fakeProvider{
		normalize: func(ctx context.Context, b domain.Brief) (*NormalizeResult, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	o := NewOrchestrator(p, Flags{Normalize: true}, DefaultTimeouts(), nil)
	results, err := o.Enrich(ctx, testBrief())
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
}
