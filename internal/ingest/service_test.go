package ingest_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"briefline/internal/config"
	"briefline/internal/db"
	"briefline/internal/domain"
	"briefline/internal/enrich"
	"briefline/internal/idempotency"
	"briefline/internal/ingest"
	"briefline/internal/migrate"
	"briefline/internal/repo"
)

type testEnv struct {
	Service *ingest.Service
	Cache   *idempotency.MemoryCache
	Ctx     context.Context
}

func newTestEnv(t *testing.T) testEnv {
	return newTestEnvEnriched(t, nil)
}

func newTestEnvEnriched(t *testing.T, enricher *enrich.Orchestrator) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	cache := idempotency.NewMemoryCache(15*time.Minute, 5*time.Minute)
	t.Cleanup(cache.Stop)

	svc := ingest.New(conn, repo.Repo{DB: conn}, cache, enricher, config.Default(), nil)
	svc.Now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Service: svc, Cache: cache, Ctx: context.Background()}
}

func f(v float64) *float64 { return &v }

func validBrief() domain.Brief {
	return domain.Brief{
		Title:       "Refonte du site vitrine",
		Description: "Refonte complète d'un site WordPress avec design responsive",
		Category:    "development",
		BudgetMin:   f(3000),
		BudgetMax:   f(6000),
	}
}

func TestCreatePersistsMission(t *testing.T) {
	env := newTestEnv(t)
	res, replayed, err := env.Service.Create(env.Ctx, validBrief(), "", "client-1")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "draft", res.Status)
	require.NotEmpty(t, res.ID)

	m, err := env.Service.Get(env.Ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Refonte du site vitrine", m.Title)
	assert.Equal(t, "client-1", m.ClientID)

	changes, err := env.Service.ChangeLog(env.Ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "status", changes[0].Field)
	assert.Equal(t, "ingestion", changes[0].Source)
}

func TestCreateIdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	first, replayed, err := env.Service.Create(env.Ctx, validBrief(), "k1", "client-1")
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := env.Service.Create(env.Ctx, validBrief(), "k1", "client-1")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first, second)

	third, _, err := env.Service.Create(env.Ctx, validBrief(), "k2", "client-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)

	missions, err := env.Service.List(env.Ctx, "client-1", 0, "", "")
	require.NoError(t, err)
	assert.Len(t, missions, 2)
}

func TestCreateValidationShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	b := validBrief()
	b.BudgetMax = f(2000) // below min

	_, _, err := env.Service.Create(env.Ctx, b, "k-bad", "client-1")
	var verr *ingest.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "budget_max", verr.Field)
	assert.NotEmpty(t, verr.Hint)

	// A failed request must not pin the key.
	_, ok, cerr := env.Cache.Get(env.Ctx, "k-bad")
	require.NoError(t, cerr)
	assert.False(t, ok)

	missions, err := env.Service.List(env.Ctx, "", 0, "", "")
	require.NoError(t, err)
	assert.Empty(t, missions)
}

func TestValidateBriefRules(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name  string
		mut   func(*domain.Brief)
		field string
	}{
		{"short title", func(b *domain.Brief) { b.Title = "ab" }, "title"},
		{"short description", func(b *domain.Brief) { b.Description = "court" }, "description"},
		{"bad category", func(b *domain.Brief) { b.Category = "plomberie" }, "category"},
		{"missing budget min", func(b *domain.Brief) { b.BudgetMin = nil }, "budget_min"},
		{"budget min too low", func(b *domain.Brief) { b.BudgetMin = f(500) }, "budget_min"},
		{"missing budget max", func(b *domain.Brief) { b.BudgetMax = nil }, "budget_max"},
		{"geo without radius", func(b *domain.Brief) { b.GeoRequired = true }, "onsite_radius_km"},
		{"radius without geo", func(b *domain.Brief) { b.OnsiteRadiusKm = f(25) }, "onsite_radius_km"},
		{"malformed deadline", func(b *domain.Brief) { d := "demain"; b.Deadline = &d }, "deadline"},
		{"past deadline", func(b *domain.Brief) { d := "2020-01-01T00:00:00Z"; b.Deadline = &d }, "deadline"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := validBrief()
			tc.mut(&b)
			err := env.Service.ValidateBrief(b)
			var verr *ingest.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestCreateAcceptsFutureDeadline(t *testing.T) {
	env := newTestEnv(t)
	b := validBrief()
	d := "2026-12-01T00:00:00Z"
	b.Deadline = &d
	_, _, err := env.Service.Create(env.Ctx, b, "", "client-1")
	require.NoError(t, err)
}

func TestListCursorPagination(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		offset := time.Duration(i) * time.Minute
		env.Service.Now = func() time.Time { return base.Add(offset) }
		_, _, err := env.Service.Create(env.Ctx, validBrief(), "", "client-1")
		require.NoError(t, err)
	}

	page1, err := env.Service.List(env.Ctx, "client-1", 2, "", "")
	require.NoError(t, err)
	require.Len(t, page1, 2)

	last := page1[len(page1)-1]
	page2, err := env.Service.List(env.Ctx, "client-1", 2, last.CreatedAt, last.ID)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	for _, m := range page2 {
		assert.NotEqual(t, page1[0].ID, m.ID)
		assert.NotEqual(t, page1[1].ID, m.ID)
	}
}

func TestStandardizeRecordsWithoutMutatingMission(t *testing.T) {
	env := newTestEnv(t)
	res, _, err := env.Service.Create(env.Ctx, validBrief(), "", "client-1")
	require.NoError(t, err)

	before, err := env.Service.Get(env.Ctx, res.ID)
	require.NoError(t, err)

	std, err := env.Service.Standardize(env.Ctx, res.ID, "ops-1")
	require.NoError(t, err)
	assert.Equal(t, res.ID, std.MissionID)
	assert.Equal(t, "development", std.CategoryStd)
	assert.NotEmpty(t, std.Skills)

	after, err := env.Service.Get(env.Ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Title, after.Title)
	assert.Equal(t, before.Description, after.Description)
	assert.Equal(t, before.Category, after.Category)
}

func TestChangeLogUnknownMission(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Service.ChangeLog(env.Ctx, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestMakeSuggestionLocalOnly(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.Service.MakeSuggestion(env.Ctx, validBrief())
	require.NoError(t, err)
	assert.Equal(t, out.Suggestion.QualityScore, out.Scores.Quality)
	assert.NotZero(t, out.Version)
	assert.Nil(t, out.Enrichment)
	assert.GreaterOrEqual(t, out.Suggestion.PriceMin, 1000.0)
}

// countingProvider records per-feature calls; each field is written by a
// single goroutine and read only after Enrich returns.
type countingProvider struct {
	normalizeCalls int
	questionCalls  int
}

func (p *countingProvider) Normalize(ctx context.Context, b domain.Brief) (*enrich.NormalizeResult, error) {
	p.normalizeCalls++
	return &enrich.NormalizeResult{
		Summary:      "Résumé normalisé du besoin",
		Completeness: 70,
		Flags:        []string{"préciser la technologie du site actuel"},
	}, nil
}

func (p *countingProvider) Generate(ctx context.Context, b domain.Brief) (*enrich.GenerateResult, error) {
	return nil, errors.New("feature not enabled in this test")
}

func (p *countingProvider) Questions(ctx context.Context, b domain.Brief) (*enrich.QuestionsResult, error) {
	p.questionCalls++
	return &enrich.QuestionsResult{
		Questions: []domain.Question{{ID: "q-cms", Question: "Quel CMS est en place aujourd'hui ?"}},
	}, nil
}

func TestCreateFoldsEnrichmentIntoOutcome(t *testing.T) {
	p := &countingProvider{}
	o := enrich.NewOrchestrator(p, enrich.Flags{Normalize: true, Question: true}, enrich.DefaultTimeouts(), nil)
	env := newTestEnvEnriched(t, o)

	res, _, err := env.Service.Create(env.Ctx, validBrief(), "", "client-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.normalizeCalls)
	assert.Equal(t, 1, p.questionCalls)
	assert.Contains(t, res.Validation.Warnings, "préciser la technologie du site actuel")

	var questionInfo bool
	for _, info := range res.Validation.Infos {
		if strings.Contains(info, "question(s) de clarification") {
			questionInfo = true
		}
	}
	assert.True(t, questionInfo)
}

func TestMakeSuggestionOverlaysNormalizedSummary(t *testing.T) {
	p := &countingProvider{}
	o := enrich.NewOrchestrator(p, enrich.Flags{Normalize: true}, enrich.DefaultTimeouts(), nil)
	env := newTestEnvEnriched(t, o)

	out, err := env.Service.MakeSuggestion(env.Ctx, validBrief())
	require.NoError(t, err)
	assert.Equal(t, "Résumé normalisé du besoin", out.Suggestion.RewrittenSummary)
	require.Contains(t, out.Enrichment, enrich.FeatureNormalize)
	assert.True(t, out.Enrichment[enrich.FeatureNormalize].Succeeded)
	assert.True(t, out.Enrichment[enrich.FeatureGenerate].Disabled)
}

func TestApplyToMissionPersistsFields(t *testing.T) {
	env := newTestEnv(t)
	b := validBrief()
	b.Title = "refonte du site vitrine"
	res, _, err := env.Service.Create(env.Ctx, b, "", "client-1")
	require.NoError(t, err)

	p, err := env.Service.ApplyToMission(env.Ctx, res.ID, domain.ApplyFlags{Text: true, Budget: "high"}, "client-1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.AppliedCount)

	m, err := env.Service.Get(env.Ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Refonte du site vitrine", m.Title)
	assert.Equal(t, 2400.0, m.BudgetMin)
	assert.Equal(t, 7800.0, m.BudgetMax)

	changes, err := env.Service.ChangeLog(env.Ctx, res.ID)
	require.NoError(t, err)
	applied := map[string]bool{}
	for _, c := range changes {
		if c.Source == "apply" {
			applied[c.Field] = true
		}
	}
	assert.Equal(t, map[string]bool{"title": true, "budget_min": true, "budget_max": true}, applied)
}

func TestApplyToMissionNoopLeavesMissionAlone(t *testing.T) {
	env := newTestEnv(t)
	res, _, err := env.Service.Create(env.Ctx, validBrief(), "", "client-1")
	require.NoError(t, err)

	p, err := env.Service.ApplyToMission(env.Ctx, res.ID, domain.ApplyFlags{}, "client-1")
	require.NoError(t, err)
	assert.Zero(t, p.AppliedCount)
	assert.Equal(t, "Aucun changement", p.ImpactSummary)

	changes, err := env.Service.ChangeLog(env.Ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "status", changes[0].Field)
}

func TestApplyToMissionUnknownMission(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Service.ApplyToMission(env.Ctx, "missing", domain.ApplyFlags{Text: true}, "client-1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestStandardizationsHistory(t *testing.T) {
	env := newTestEnv(t)
	res, _, err := env.Service.Create(env.Ctx, validBrief(), "", "client-1")
	require.NoError(t, err)

	_, err = env.Service.Standardize(env.Ctx, res.ID, "ops-1")
	require.NoError(t, err)
	_, err = env.Service.Standardize(env.Ctx, res.ID, "ops-1")
	require.NoError(t, err)

	items, err := env.Service.Standardizations(env.Ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, std := range items {
		assert.Equal(t, res.ID, std.MissionID)
		assert.Equal(t, "development", std.CategoryStd)
	}

	_, err = env.Service.Standardizations(env.Ctx, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
