package enrich

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"briefline/internal/domain"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GenAIProvider implements the provider port on top of the Gemini API,
// asking for strict JSON responses matching each feature's payload.
type GenAIProvider struct {
	client *genai.Client
	model  string
}

func NewGenAIProvider(ctx context.Context, apiKey, model string) (*GenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIProvider{client: client, model: model}, nil
}

func (p *GenAIProvider) Normalize(ctx context.Context, b domain.Brief) (*NormalizeResult, error) {
	prompt := fmt.Sprintf(`Normalize this project brief. Respond with JSON only:
{"summary": "<summary under 200 chars>", "completeness": <0-100>, "flags": ["<issue>", ...]}

Title: %s
Description: %s`, b.Title, b.Description)
	var out NormalizeResult
	if err := p.generateJSON(ctx, prompt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *GenAIProvider) Generate(ctx context.Context, b domain.Brief) (*GenerateResult, error) {
	prompt := fmt.Sprintf(`Rewrite this project brief in clearer French. Respond with JSON only:
{"variants": [{"title": "...", "description": "...", "explanation": "..."}]}

Title: %s
Description: %s`, b.Title, b.Description)
	var out GenerateResult
	if err := p.generateJSON(ctx, prompt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *GenAIProvider) Questions(ctx context.Context, b domain.Brief) (*QuestionsResult, error) {
	prompt := fmt.Sprintf(`List up to 3 clarifying questions, in French, for this project brief. Respond with JSON only:
{"questions": [{"id": "<slug>", "question": "..."}], "completion_gain": {"current": <0-100>, "potential": <0-100>}}

Title: %s
Description: %s`, b.Title, b.Description)
	var out QuestionsResult
	if err := p.generateJSON(ctx, prompt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *GenAIProvider) generateJSON(ctx context.Context, prompt string, out any) error {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("genai generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return fmt.Errorf("genai returned empty response")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("genai response is not valid JSON: %w", err)
	}
	return nil
}
