// Package enrich fans a brief out to text-analysis providers, bounds each
// call by its own deadline, and substitutes deterministic local fallbacks
// when a provider fails.
package enrich

import (
	"context"

	"briefline/internal/domain"
)

// Feature names one enrichment capability. Features toggle independently.
type Feature string

const (
	FeatureNormalize Feature = "normalize"
	FeatureGenerate  Feature = "generate"
	FeatureQuestion  Feature = "question"
)

// NormalizeResult is the normalize feature's payload.
type NormalizeResult struct {
	Summary      string   `json:"summary"`
	Completeness float64  `json:"completeness"`
	Flags        []string `json:"flags"`
}

// Variant is one rewritten title/description pair.
type Variant struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Explanation string `json:"explanation"`
}

// GenerateResult is the generate feature's payload.
type GenerateResult struct {
	Variants []Variant `json:"variants"`
}

// CompletionGain estimates brief completeness before and after answering.
type CompletionGain struct {
	Current   float64 `json:"current"`
	Potential float64 `json:"potential"`
}

// QuestionsResult is the question feature's payload.
type QuestionsResult struct {
	Questions      []domain.Question `json:"questions"`
	CompletionGain CompletionGain    `json:"completion_gain"`
}

// Result wraps one feature's outcome. Data holds the feature's payload
// type; UsedFallback marks locally computed substitutes. Disabled marks
// a feature whose flag is off; its provider was never called and Data
// is nil.
type Result struct {
	Succeeded    bool `json:"succeeded"`
	UsedFallback bool `json:"used_fallback"`
	Disabled     bool `json:"disabled,omitempty"`
	Data         any  `json:"data"`
}

// Provider is the external text-analysis port. Errors and timeouts are
// expected outcomes; the orchestrator recovers from them locally.
type Provider interface {
	Normalize(ctx context.Context, brief domain.Brief) (*NormalizeResult, error)
	Generate(ctx context.Context, brief domain.Brief) (*GenerateResult, error)
	Questions(ctx context.Context, brief domain.Brief) (*QuestionsResult, error)
}
