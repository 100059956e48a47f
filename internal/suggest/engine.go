package suggest

import (
	"fmt"
	"math"
	"strings"

	"briefline/internal/domain"
)

// Version identifies the suggestion computation. Bump on any change to
// the scoring tables or formulas so cached client state can be invalidated.
const Version = 2

// Engine turns a brief into a structured suggestion. Pure and
// deterministic: same brief in, same suggestion out.
type Engine struct {
	DefaultBudgetMin float64
	DefaultBudgetMax float64
}

func New() Engine {
	return Engine{DefaultBudgetMin: 5000, DefaultBudgetMax: 8000}
}

func (e Engine) defaults() (float64, float64) {
	min, max := e.DefaultBudgetMin, e.DefaultBudgetMax
	if min <= 0 {
		min = 5000
	}
	if max <= 0 {
		max = 8000
	}
	return min, max
}

// Suggest computes the full suggestion for a brief.
func (e Engine) Suggest(b domain.Brief) domain.Suggestion {
	desc := b.Description
	lower := strings.ToLower(desc)

	skills := ExtractSkills(desc)
	tags := ExtractTags(desc)
	quality := e.QualityScore(b)
	richness := e.RichnessScore(b, len(skills))
	category := e.standardCategory(b)

	s := domain.Suggestion{
		RewrittenTitle:     rewriteTitle(b.Title),
		RewrittenSummary:   Summarize(desc),
		AcceptanceCriteria: acceptanceCriteria(category),
		CategoryStd:        category,
		SubCategoryStd:     subCategory(category, skills),
		Skills:             skills,
		Tags:               tags,
		QualityScore:       quality,
		RichnessScore:      richness,
		MissingInfo:        e.questions(b, lower),
		DelayDays:          e.DelayDays(category, desc),
		Reasons:            e.reasons(b, quality, skills),
	}
	s.PriceMin, s.PriceMed, s.PriceMax = e.Pricing(b.BudgetMin, b.BudgetMax)
	return s
}

// RecomputeWithAnswers re-runs the suggestion on the brief augmented with
// the answer values, then drops questions that now have a truthy answer.
// Idempotent: the same answers twice yield the same filtered list.
func (e Engine) RecomputeWithAnswers(b domain.Brief, answers []domain.Answer) domain.Suggestion {
	augmented := b
	var extra []string
	answered := make(map[string]bool, len(answers))
	for _, a := range answers {
		v := strings.TrimSpace(a.Value)
		if v == "" {
			continue
		}
		answered[a.ID] = true
		extra = append(extra, v)
	}
	if len(extra) > 0 {
		augmented.Description = b.Description + "\n" + strings.Join(extra, "\n")
	}
	s := e.Suggest(augmented)
	var remaining []domain.Question
	for _, q := range s.MissingInfo {
		if !answered[q.ID] {
			remaining = append(remaining, q)
		}
	}
	if remaining == nil {
		remaining = []domain.Question{}
	}
	s.MissingInfo = remaining
	return s
}

// QualityScore rates how well-formed the brief is, in [0,1].
func (e Engine) QualityScore(b domain.Brief) float64 {
	score := 0.3
	if len(b.Title) > 10 {
		score += 0.2
	}
	if len(b.Description) > 50 {
		score += 0.2
	}
	if len(b.Description) > 200 {
		score += 0.1
	}
	if b.Category != "" {
		score += 0.1
	}
	if b.BudgetMin != nil && b.BudgetMax != nil {
		score += 0.1
	}
	return clamp01(score)
}

// RichnessScore rates how much usable signal the brief carries, in [0,1].
func (e Engine) RichnessScore(b domain.Brief, skillCount int) float64 {
	score := 0.2
	if len(b.Description) > 100 {
		score += 0.2
	}
	if len(b.Description) > 300 {
		score += 0.2
	}
	score += math.Min(float64(skillCount)*0.05, 0.3)
	if b.Deadline != nil {
		score += 0.1
	}
	return clamp01(score)
}

// Confidence blends quality and richness for the suggest endpoint scores.
func (e Engine) Confidence(quality, richness float64) float64 {
	return clamp01((quality + richness) / 2)
}

// ExtractSkills matches the description against the skill table,
// case-insensitive, first-match order, capped at 8.
func ExtractSkills(description string) []string {
	lower := strings.ToLower(description)
	skills := []string{}
	for _, entry := range skillTable {
		if strings.Contains(lower, entry.Keyword) {
			skills = append(skills, entry.Canonical)
			if len(skills) == 8 {
				break
			}
		}
	}
	return skills
}

// ExtractTags matches the description against the marker list, capped at 6.
func ExtractTags(description string) []string {
	lower := strings.ToLower(description)
	tags := []string{}
	for _, marker := range tagMarkers {
		if strings.Contains(lower, marker) {
			tags = append(tags, marker)
			if len(tags) == 6 {
				break
			}
		}
	}
	return tags
}

// Pricing derives the price band from the budget bounds, with floors and
// defaults for absent bounds.
func (e Engine) Pricing(budgetMin, budgetMax *float64) (priceMin, priceMed, priceMax float64) {
	defMin, defMax := e.defaults()
	min, max := defMin, defMax
	if budgetMin != nil {
		min = *budgetMin
	}
	if budgetMax != nil {
		max = *budgetMax
	}
	priceMin = math.Max(1000, min*0.8)
	priceMed = max
	priceMax = max * 1.3
	return priceMin, priceMed, priceMax
}

// DelayDays estimates delivery time from the category base adjusted by
// description length and complexity markers. Never below 3 days.
func (e Engine) DelayDays(category, description string) int {
	base, ok := delayBase[category]
	if !ok {
		base = delayBaseDefault
	}
	lower := strings.ToLower(description)
	mult := 1.0
	if len(description) > 300 {
		mult += 0.3
	}
	if len(description) < 100 {
		mult -= 0.2
	}
	if strings.Contains(lower, "complex") {
		mult += 0.5
	}
	if strings.Contains(lower, "simple") {
		mult -= 0.3
	}
	days := int(math.Round(float64(base) * mult))
	if days < 3 {
		days = 3
	}
	return days
}

func (e Engine) questions(b domain.Brief, lowerDesc string) []domain.Question {
	qs := []domain.Question{}
	add := func(id, text string) {
		if len(qs) < 3 {
			qs = append(qs, domain.Question{ID: id, Question: text})
		}
	}
	if b.Deadline == nil {
		add("deadline", "Quelle est votre échéance souhaitée ?")
	}
	if len(b.Description) < 100 {
		add("details", "Pouvez-vous détailler les fonctionnalités attendues ?")
	}
	if b.Category == "development" && !strings.Contains(lowerDesc, "technolog") {
		add("tech", "Avez-vous une préférence de technologie ?")
	}
	if b.BudgetMin == nil || b.BudgetMax == nil {
		add("budget", "Quel est votre budget pour cette mission ?")
	}
	return qs
}

func (e Engine) reasons(b domain.Brief, quality float64, skills []string) []string {
	reasons := []string{}
	add := func(r string) {
		if len(reasons) < 4 {
			reasons = append(reasons, r)
		}
	}
	if quality < 0.7 {
		add("Le brief gagnerait à être enrichi")
	}
	if b.Deadline == nil {
		add("Précisez une échéance pour attirer plus de candidats")
	}
	if len(b.Description) < 100 {
		add("Ajoutez des détails sur le périmètre attendu")
	}
	if len(skills) > 0 {
		add("Compétences identifiées : " + strings.Join(skills, ", "))
	}
	if b.BudgetMax != nil && *b.BudgetMax > 10000 {
		add("Budget attractif pour les meilleurs profils")
	}
	return reasons
}

func (e Engine) standardCategory(b domain.Brief) string {
	if domain.ValidCategory(b.Category) {
		return b.Category
	}
	return "services"
}

func subCategory(category string, skills []string) string {
	have := make(map[string]bool, len(skills))
	for _, s := range skills {
		have[s] = true
	}
	for _, rule := range subCategoryRules {
		if rule.Category != category {
			continue
		}
		for _, s := range rule.Skills {
			if have[s] {
				return rule.Sub
			}
		}
	}
	return ""
}

func acceptanceCriteria(category string) []string {
	criteria := make([]string, 0, len(genericCriteria)+2)
	criteria = append(criteria, genericCriteria...)
	criteria = append(criteria, categoryCriteria[category]...)
	return criteria
}

func rewriteTitle(title string) string {
	t := strings.TrimSpace(title)
	if t == "" {
		return t
	}
	runes := []rune(t)
	return strings.ToUpper(string(runes[0])) + string(runes[1:])
}

// Summarize truncates a description to 200 characters for use as a
// normalized summary.
func Summarize(description string) string {
	d := strings.TrimSpace(description)
	runes := []rune(d)
	if len(runes) <= 200 {
		return d
	}
	return string(runes[:200])
}

// Completeness scores a description length on a 0-100 scale.
func Completeness(description string) float64 {
	return math.Min(float64(len(description))*2, 100)
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// ImpactLine formats a compact relative change, used in patch summaries.
func ImpactLine(label string, before, after float64) string {
	if before == 0 {
		return fmt.Sprintf("%s : %.0f", label, after)
	}
	delta := (after - before) / before * 100
	return fmt.Sprintf("%s : %+.0f%%", label, delta)
}
