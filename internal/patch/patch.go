// Package patch computes what would change when selected suggestion
// fields are merged into a mission draft. Inputs are never mutated.
package patch

import (
	"fmt"
	"strings"

	"briefline/internal/domain"
)

// Apply computes the diff of merging suggestion fields selected by flags
// into the draft. Only fields whose value actually changes appear in the
// result.
func Apply(draft domain.MissionDraft, s domain.Suggestion, flags domain.ApplyFlags) domain.ApplyPatch {
	p := domain.ApplyPatch{
		Fields: map[string]any{},
		Diffs:  []domain.FieldDiff{},
	}
	var impacts []string

	if flags.Text {
		if s.RewrittenTitle != "" && s.RewrittenTitle != draft.Title {
			addDiff(&p, "title", draft.Title, s.RewrittenTitle)
		}
		if s.RewrittenSummary != "" && s.RewrittenSummary != draft.Description {
			addDiff(&p, "description", draft.Description, s.RewrittenSummary)
		}
	}

	if target, ok := budgetTarget(s, flags.Budget); ok {
		if target != draft.BudgetMax {
			addDiff(&p, "budget_max", draft.BudgetMax, target)
			impacts = append(impacts, budgetImpact(draft.BudgetMax, target))
		}
		if s.PriceMin != draft.BudgetMin && flags.Budget != "none" {
			addDiff(&p, "budget_min", draft.BudgetMin, s.PriceMin)
		}
	}

	if flags.Delay && s.DelayDays != draft.DelayDays && s.DelayDays > 0 {
		addDiff(&p, "delay_days", draft.DelayDays, s.DelayDays)
		impacts = append(impacts, delayImpact(draft.DelayDays, s.DelayDays))
	}

	p.AppliedCount = len(p.Diffs)
	if len(impacts) == 0 {
		if p.AppliedCount > 0 {
			p.ImpactSummary = fmt.Sprintf("%d champ(s) mis à jour", p.AppliedCount)
		} else {
			p.ImpactSummary = "Aucun changement"
		}
	} else {
		p.ImpactSummary = strings.Join(impacts, " ; ")
	}
	return p
}

func addDiff(p *domain.ApplyPatch, field string, before, after any) {
	p.Fields[field] = after
	p.Diffs = append(p.Diffs, domain.FieldDiff{Field: field, Before: before, After: after})
}

func budgetTarget(s domain.Suggestion, level string) (float64, bool) {
	switch level {
	case "low":
		return s.PriceMin, true
	case "med":
		return s.PriceMed, true
	case "high":
		return s.PriceMax, true
	default:
		return 0, false
	}
}

func budgetImpact(before, after float64) string {
	if before == 0 {
		return fmt.Sprintf("budget fixé à %.0f €", after)
	}
	delta := (after - before) / before * 100
	return fmt.Sprintf("budget %+.0f%%", delta)
}

func delayImpact(before, after int) string {
	if before == 0 {
		return fmt.Sprintf("délai fixé à %d jours", after)
	}
	return fmt.Sprintf("délai %+d jours", after-before)
}
