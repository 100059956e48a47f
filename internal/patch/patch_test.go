package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"briefline/internal/domain"
)

func baseDraft() domain.MissionDraft {
	return domain.MissionDraft{
		Title:       "Site vitrine",
		Description: "Un site simple",
		BudgetMin:   2000,
		BudgetMax:   4000,
		DelayDays:   10,
	}
}

func baseSuggestion() domain.Suggestion {
	return domain.Suggestion{
		RewrittenTitle:   "Création d'un site vitrine professionnel",
		RewrittenSummary: "Site vitrine moderne avec pages institutionnelles",
		PriceMin:         2400,
		PriceMed:         5000,
		PriceMax:         6500,
		DelayDays:        15,
	}
}

func TestApplyTextOnly(t *testing.T) {
	draft := baseDraft()
	s := baseSuggestion()
	p := Apply(draft, s, domain.ApplyFlags{Text: true, Budget: "none"})

	assert.Equal(t, 2, p.AppliedCount)
	assert.Equal(t, s.RewrittenTitle, p.Fields["title"])
	assert.Equal(t, s.RewrittenSummary, p.Fields["description"])
	assert.NotContains(t, p.Fields, "budget_max")
	assert.NotContains(t, p.Fields, "delay_days")
}

func TestApplyBudgetLevels(t *testing.T) {
	draft := baseDraft()
	s := baseSuggestion()

	low := Apply(draft, s, domain.ApplyFlags{Budget: "low"})
	assert.Equal(t, s.PriceMin, low.Fields["budget_max"])

	med := Apply(draft, s, domain.ApplyFlags{Budget: "med"})
	assert.Equal(t, s.PriceMed, med.Fields["budget_max"])

	high := Apply(draft, s, domain.ApplyFlags{Budget: "high"})
	assert.Equal(t, s.PriceMax, high.Fields["budget_max"])
	assert.Contains(t, high.ImpactSummary, "budget")
}

func TestApplyDelay(t *testing.T) {
	p := Apply(baseDraft(), baseSuggestion(), domain.ApplyFlags{Budget: "none", Delay: true})
	require.Equal(t, 1, p.AppliedCount)
	assert.Equal(t, 15, p.Fields["delay_days"])
	assert.Contains(t, p.ImpactSummary, "+5 jours")
}

func TestApplySkipsUnchangedValues(t *testing.T) {
	draft := baseDraft()
	s := baseSuggestion()
	s.RewrittenTitle = draft.Title
	s.RewrittenSummary = draft.Description
	s.DelayDays = draft.DelayDays

	p := Apply(draft, s, domain.ApplyFlags{Text: true, Budget: "none", Delay: true})
	assert.Equal(t, 0, p.AppliedCount)
	assert.Empty(t, p.Diffs)
	assert.Equal(t, "Aucun changement", p.ImpactSummary)
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	draft := baseDraft()
	s := baseSuggestion()
	_ = Apply(draft, s, domain.ApplyFlags{Text: true, Budget: "high", Delay: true})

	assert.Equal(t, baseDraft(), draft)
	assert.Equal(t, baseSuggestion(), s)
}

func TestApplyDisabledFlagsContributeNothing(t *testing.T) {
	p := Apply(baseDraft(), baseSuggestion(), domain.ApplyFlags{Budget: "none"})
	assert.Equal(t, 0, p.AppliedCount)
}
