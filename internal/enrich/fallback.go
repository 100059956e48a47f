package enrich

import (
	"briefline/internal/domain"
	"briefline/internal/suggest"
)

// FallbackNormalize builds the local normalize substitute: truncated
// summary, length-based completeness, a flag for thin descriptions.
func FallbackNormalize(b domain.Brief) *NormalizeResult {
	flags := []string{}
	if len(b.Description) < 50 {
		flags = append(flags, "needs more detail")
	}
	return &NormalizeResult{
		Summary:      suggest.Summarize(b.Description),
		Completeness: suggest.Completeness(b.Description),
		Flags:        flags,
	}
}

// FallbackGenerate returns the original text as the only variant.
func FallbackGenerate(b domain.Brief) *GenerateResult {
	return &GenerateResult{Variants: []Variant{{
		Title:       b.Title,
		Description: b.Description,
		Explanation: "Version originale, enrichissement indisponible",
	}}}
}

// FallbackQuestions returns two fixed generic questions and a fixed
// completion-gain estimate.
func FallbackQuestions(b domain.Brief) *QuestionsResult {
	return &QuestionsResult{
		Questions: []domain.Question{
			{ID: "budget-bracket", Question: "Dans quelle fourchette se situe votre budget ?"},
			{ID: "urgency", Question: "Quel est votre niveau d'urgence pour la livraison ?"},
		},
		CompletionGain: CompletionGain{Current: 60, Potential: 80},
	}
}
