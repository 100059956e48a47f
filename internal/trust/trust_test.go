package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"briefline/internal/domain"
)

func TestScoreBounds(t *testing.T) {
	cases := []domain.TrustFactors{
		{},
		{TenureMonths: 0, ProjectsPerMonth: 0, RatingVariance: 0},
		{TenureMonths: 240, ProjectsPerMonth: 50, ResponseRate: 100, OnTimeRate: 100, CommunicationScore: 100, RatingVariance: 0, KYCVerified: true},
		{RatingVariance: 50},
	}
	for _, f := range cases {
		s := Score(f)
		assert.GreaterOrEqual(t, s, 0)
		assert.LessOrEqual(t, s, 100)
	}
}

func TestScoreWeightedSum(t *testing.T) {
	f := domain.TrustFactors{
		TenureMonths:       24,  // tenure sub-score 100
		ProjectsPerMonth:   10,  // activity 100
		ResponseRate:       100,
		OnTimeRate:         100,
		CommunicationScore: 100,
		RatingVariance:     0, // consistency 100
	}
	assert.Equal(t, 100, Score(f))

	f.KYCVerified = true
	assert.Equal(t, 100, Score(f), "bonus never exceeds the ceiling")
}

func TestScoreKYCBonus(t *testing.T) {
	f := domain.TrustFactors{OnTimeRate: 80, ResponseRate: 80, CommunicationScore: 80}
	base := Score(f)
	f.KYCVerified = true
	assert.Equal(t, base+5, Score(f))
}

func TestBadgeConfidenceBoundary(t *testing.T) {
	history := make([]domain.ProjectRecord, 7)
	for i := range history {
		history[i] = domain.ProjectRecord{Category: "design"}
	}
	badges := Badges(domain.TrustFactors{}, history)
	require.Len(t, badges, 1)
	assert.Equal(t, "specialist-design", badges[0].ID)
	assert.Equal(t, 70.0, badges[0].Confidence)

	history = history[:6] // confidence 60, below the cut
	assert.Empty(t, Badges(domain.TrustFactors{}, history))
}

func TestBadgeExactSeventyIncluded(t *testing.T) {
	// Variance 0.30 yields confidence exactly 70, the lowest kept value.
	f := domain.TrustFactors{RatingVariance: 0.3}
	badges := Badges(f, make([]domain.ProjectRecord, 10))
	require.Len(t, badges, 1)
	assert.InDelta(t, 70.0, badges[0].Confidence, 1e-9)
}

func TestDominantCategoryTieBreak(t *testing.T) {
	history := []domain.ProjectRecord{
		{Category: "design"}, {Category: "development"},
		{Category: "design"}, {Category: "development"},
		{Category: "design"}, {Category: "development"},
		{Category: "design"}, {Category: "development"},
		{Category: "design"}, {Category: "development"},
	}
	badges := Badges(domain.TrustFactors{}, history)
	require.Len(t, badges, 1)
	assert.Equal(t, "specialist-design", badges[0].ID, "tie breaks on first-encountered category")
}

func TestConsistencyBadgeRequiresHistory(t *testing.T) {
	f := domain.TrustFactors{RatingVariance: 0.2}
	assert.Empty(t, Badges(f, make([]domain.ProjectRecord, 9)))

	history := make([]domain.ProjectRecord, 10)
	badges := Badges(f, history)
	require.Len(t, badges, 1)
	assert.Equal(t, "consistent-quality", badges[0].ID)
	assert.InDelta(t, 80.0, badges[0].Confidence, 1e-9)
}
