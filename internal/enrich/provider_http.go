package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"briefline/internal/domain"
)

// HTTPProvider speaks to an enrichment service over JSON POST calls, one
// route per feature. Per-call deadlines come from the caller's context.
type HTTPProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *HTTPProvider) Normalize(ctx context.Context, b domain.Brief) (*NormalizeResult, error) {
	var out NormalizeResult
	if err := p.post(ctx, "/normalize", b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPProvider) Generate(ctx context.Context, b domain.Brief) (*GenerateResult, error) {
	var out GenerateResult
	if err := p.post(ctx, "/generate", b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPProvider) Questions(ctx context.Context, b domain.Brief) (*QuestionsResult, error) {
	var out QuestionsResult
	if err := p.post(ctx, "/questions", b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPProvider) post(ctx context.Context, route string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+route, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("X-Api-Key", p.APIKey)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider %s: status %d: %s", route, resp.StatusCode, snippet)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
