// Package trust derives a bounded reputation score and badge set from a
// provider's historical behavior.
package trust

import (
	"fmt"
	"math"

	"briefline/internal/domain"
)

var weights = struct {
	Tenure, Activity, Response, OnTime, Communication, Consistency float64
}{0.15, 0.20, 0.15, 0.25, 0.15, 0.10}

// Score computes a reputation score in [0,100] from behavior factors.
// KYC verification adds a flat bonus, capped at the ceiling.
func Score(f domain.TrustFactors) int {
	tenure := math.Min(100, f.TenureMonths/24*100)
	activity := math.Min(100, f.ProjectsPerMonth*10)
	consistency := math.Max(0, 100-f.RatingVariance*20)

	score := tenure*weights.Tenure +
		activity*weights.Activity +
		f.ResponseRate*weights.Response +
		f.OnTimeRate*weights.OnTime +
		f.CommunicationScore*weights.Communication +
		consistency*weights.Consistency

	if f.KYCVerified {
		score += 5
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(math.Round(score))
}

// Badges evaluates every badge rule independently and keeps those with
// confidence of at least 70.
func Badges(f domain.TrustFactors, history []domain.ProjectRecord) []domain.TrustBadge {
	var candidates []domain.TrustBadge

	if f.OnTimeRate >= 90 {
		candidates = append(candidates, domain.TrustBadge{
			ID:          "reliable-deadlines",
			Label:       "Fiable sur les délais",
			Description: "Livre dans les temps sur la quasi-totalité des missions",
			Confidence:  f.OnTimeRate,
			Criteria:    []string{"taux de ponctualité >= 90%"},
			Icon:        "clock",
			Color:       "green",
		})
	}

	if f.CommunicationScore >= 85 && f.ResponseRate >= 90 {
		candidates = append(candidates, domain.TrustBadge{
			ID:          "excellent-communicator",
			Label:       "Excellent communicant",
			Description: "Réponses rapides et échanges de qualité",
			Confidence:  math.Min(f.CommunicationScore, f.ResponseRate),
			Criteria:    []string{"score de communication >= 85", "taux de réponse >= 90%"},
			Icon:        "message-circle",
			Color:       "blue",
		})
	}

	if cat, count := dominantCategory(history); count >= 5 {
		candidates = append(candidates, domain.TrustBadge{
			ID:          "specialist-" + cat,
			Label:       "Spécialiste " + cat,
			Description: fmt.Sprintf("%d missions réalisées en %s", count, cat),
			Confidence:  math.Min(95, float64(count)*10),
			Criteria:    []string{"au moins 5 missions dans la catégorie dominante"},
			Icon:        "award",
			Color:       "purple",
		})
	}

	if f.RatingVariance <= 0.3 && len(history) >= 10 {
		candidates = append(candidates, domain.TrustBadge{
			ID:          "consistent-quality",
			Label:       "Qualité constante",
			Description: "Notes stables sur l'ensemble des missions",
			Confidence:  100 - f.RatingVariance*100,
			Criteria:    []string{"variance des notes <= 0.3", "au moins 10 missions"},
			Icon:        "trending-up",
			Color:       "amber",
		})
	}

	badges := []domain.TrustBadge{}
	for _, b := range candidates {
		if b.Confidence >= 70 {
			badges = append(badges, b)
		}
	}
	return badges
}

// dominantCategory returns the most frequent category in the history.
// Ties break on the first-encountered category in input order.
func dominantCategory(history []domain.ProjectRecord) (string, int) {
	counts := make(map[string]int)
	var order []string
	for _, p := range history {
		if p.Category == "" {
			continue
		}
		if _, seen := counts[p.Category]; !seen {
			order = append(order, p.Category)
		}
		counts[p.Category]++
	}
	best, bestCount := "", 0
	for _, cat := range order {
		if counts[cat] > bestCount {
			best, bestCount = cat, counts[cat]
		}
	}
	return best, bestCount
}
