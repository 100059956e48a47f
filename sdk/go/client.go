package brieflinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Briefline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Brief is the raw client request submitted for ingestion.
type Brief struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category,omitempty"`
	BudgetMin      *float64 `json:"budget_min,omitempty"`
	BudgetMax      *float64 `json:"budget_max,omitempty"`
	Deadline       *string  `json:"deadline,omitempty"`
	GeoRequired    bool     `json:"geo_required,omitempty"`
	OnsiteRadiusKm *float64 `json:"onsite_radius_km,omitempty"`
}

// Mission represents the API mission model (partial).
type Mission struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	BudgetMin   float64  `json:"budget_min"`
	BudgetMax   float64  `json:"budget_max"`
	Status      string   `json:"status"`
	Tags        []string `json:"tags"`
	CreatedAt   string   `json:"created_at"`
}

// CreateResult is the mission creation response.
type CreateResult struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Validation struct {
		Warnings []string `json:"warnings"`
		Infos    []string `json:"infos"`
	} `json:"validation"`
}

// Question is a clarifying question attached to a suggestion.
type Question struct {
	ID       string `json:"id"`
	Question string `json:"question"`
}

// Suggestion carries the computed rewrite, pricing and metadata.
type Suggestion struct {
	RewrittenTitle     string     `json:"rewritten_title"`
	RewrittenSummary   string     `json:"rewritten_summary"`
	AcceptanceCriteria []string   `json:"acceptance_criteria"`
	CategoryStd        string     `json:"category_std"`
	SubCategoryStd     string     `json:"sub_category_std,omitempty"`
	Skills             []string   `json:"skills"`
	Tags               []string   `json:"tags"`
	QualityScore       float64    `json:"quality_score"`
	RichnessScore      float64    `json:"richness_score"`
	MissingInfo        []Question `json:"missing_info"`
	PriceMin           float64    `json:"price_min"`
	PriceMed           float64    `json:"price_med"`
	PriceMax           float64    `json:"price_max"`
	DelayDays          int        `json:"delay_days"`
	Reasons            []string   `json:"reasons"`
}

// SuggestResult is the suggestion endpoint payload.
type SuggestResult struct {
	Suggestion Suggestion `json:"suggestion"`
	Scores     struct {
		Quality    float64 `json:"quality"`
		Richness   float64 `json:"richness"`
		Confidence float64 `json:"confidence"`
	} `json:"scores"`
	Version int `json:"version"`
}

// TrustBadge is an evidence-backed provider badge.
type TrustBadge struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// TrustScore is the trust endpoint payload.
type TrustScore struct {
	Score  int          `json:"score"`
	Badges []TrustBadge `json:"badges"`
}

// Change is one entry of a mission change log.
type Change struct {
	ID        int64  `json:"id"`
	MissionID string `json:"mission_id"`
	Field     string `json:"field"`
	Before    string `json:"before,omitempty"`
	After     string `json:"after,omitempty"`
	Source    string `json:"source"`
	ActorID   string `json:"actor_id"`
	CreatedAt string `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedMissions wraps list responses with cursors.
type PaginatedMissions struct {
	Items      []Mission `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// CreateMission submits a brief. Passing the same non-empty idempotencyKey
// again replays the original response.
func (c *Client) CreateMission(ctx context.Context, brief Brief, idempotencyKey string) (CreateResult, error) {
	var resp CreateResult
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	err := c.do(ctx, http.MethodPost, "v1/missions", brief, &resp, headers)
	return resp, err
}

// GetMission fetches a mission by id.
func (c *Client) GetMission(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, "v1/missions/"+url.PathEscape(id), nil, &resp, nil)
	return resp, err
}

// Missions returns a paginated mission listing.
func (c *Client) Missions(ctx context.Context, clientID string, limit int, cursor string) (PaginatedMissions, error) {
	q := url.Values{}
	if clientID != "" {
		q.Set("client_id", clientID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v1/missions"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var resp PaginatedMissions
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp, nil)
	return resp, err
}

// Suggest computes a suggestion for a brief without persisting anything.
func (c *Client) Suggest(ctx context.Context, brief Brief) (SuggestResult, error) {
	var resp SuggestResult
	err := c.do(ctx, http.MethodPost, "v1/missions/suggest", brief, &resp, nil)
	return resp, err
}

// ApplySuggestion applies selected suggestion fields to a draft and
// returns the resulting patch.
func (c *Client) ApplySuggestion(ctx context.Context, draft map[string]any, suggestion Suggestion, flags map[string]any) (map[string]any, error) {
	body := map[string]any{
		"mission_draft": draft,
		"suggestion":    suggestion,
		"apply":         flags,
	}
	var resp map[string]any
	err := c.do(ctx, http.MethodPost, "v1/missions/suggest/apply", body, &resp, nil)
	return resp, err
}

// AnswerQuestions recomputes a suggestion with clarifying answers folded in.
func (c *Client) AnswerQuestions(ctx context.Context, brief Brief, answers []map[string]any, version int) (map[string]any, error) {
	body := map[string]any{
		"suggestion_version": version,
		"answers":            answers,
		"original_data":      brief,
	}
	var resp map[string]any
	err := c.do(ctx, http.MethodPost, "v1/missions/suggest/answers", body, &resp, nil)
	return resp, err
}

// Standardize records canonical category, skills and tags for a mission.
func (c *Client) Standardize(ctx context.Context, missionID string) (map[string]any, error) {
	var resp map[string]any
	endpoint := "v1/missions/" + url.PathEscape(missionID) + "/standardize"
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp, nil)
	return resp, err
}

// Standardizations returns a mission's standardization history.
func (c *Client) Standardizations(ctx context.Context, missionID string) ([]map[string]any, error) {
	var resp struct {
		Items []map[string]any `json:"items"`
	}
	endpoint := "v1/missions/" + url.PathEscape(missionID) + "/standardizations"
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp, nil)
	return resp.Items, err
}

// ApplyToMission applies selected suggestion fields to a stored mission
// and returns the resulting patch.
func (c *Client) ApplyToMission(ctx context.Context, missionID string, flags map[string]any) (map[string]any, error) {
	body := map[string]any{"apply": flags}
	var resp map[string]any
	endpoint := "v1/missions/" + url.PathEscape(missionID) + "/apply"
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp, nil)
	return resp, err
}

// ChangeLog returns the append-only change log of a mission.
func (c *Client) ChangeLog(ctx context.Context, missionID string) ([]Change, error) {
	var resp struct {
		Items []Change `json:"items"`
	}
	endpoint := "v1/missions/" + url.PathEscape(missionID) + "/changelog"
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp, nil)
	return resp.Items, err
}

// TrustScore computes a provider trust score from factors and history.
func (c *Client) TrustScore(ctx context.Context, factors map[string]any, history []map[string]any) (TrustScore, error) {
	body := map[string]any{"factors": factors}
	if history != nil {
		body["history"] = history
	}
	var resp TrustScore
	err := c.do(ctx, http.MethodPost, "v1/trust/score", body, &resp, nil)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any, headers map[string]string) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
