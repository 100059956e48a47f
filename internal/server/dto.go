package server

import (
	"briefline/internal/domain"
)

// Request payloads

type SuggestRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty" enum:"development,design,marketing,consulting,construction,services"`
	BudgetMin   *float64 `json:"budget_min,omitempty"`
	BudgetMax   *float64 `json:"budget_max,omitempty"`
	Deadline    *string  `json:"deadline,omitempty" format:"date-time"`
}

func (r SuggestRequest) brief() domain.Brief {
	return domain.Brief{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		BudgetMin:   r.BudgetMin,
		BudgetMax:   r.BudgetMax,
		Deadline:    r.Deadline,
	}
}

type ApplyRequest struct {
	MissionDraft domain.MissionDraft `json:"mission_draft"`
	Suggestion   domain.Suggestion   `json:"suggestion"`
	Apply        domain.ApplyFlags   `json:"apply"`
}

type AnswersRequest struct {
	SuggestionVersion int             `json:"suggestion_version"`
	Answers           []domain.Answer `json:"answers"`
	OriginalData      SuggestRequest  `json:"original_data"`
}

type ApplyToMissionRequest struct {
	Apply domain.ApplyFlags `json:"apply"`
}

type TrustScoreRequest struct {
	Factors domain.TrustFactors    `json:"factors"`
	History []domain.ProjectRecord `json:"history,omitempty"`
}

// Response payloads

type MissionResponse struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	BudgetMin      float64  `json:"budget_min"`
	BudgetMax      float64  `json:"budget_max"`
	Status         string   `json:"status" enum:"draft,published,in_progress,completed"`
	ClientID       string   `json:"client_id"`
	Deadline       *string  `json:"deadline,omitempty" format:"date-time"`
	GeoRequired    bool     `json:"geo_required"`
	OnsiteRadiusKm *float64 `json:"onsite_radius_km,omitempty"`
	Tags           []string `json:"tags"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
}

func missionResponse(m domain.Mission) MissionResponse {
	return MissionResponse{
		ID:             m.ID,
		Title:          m.Title,
		Description:    m.Description,
		Category:       m.Category,
		BudgetMin:      m.BudgetMin,
		BudgetMax:      m.BudgetMax,
		Status:         m.Status,
		ClientID:       m.ClientID,
		Deadline:       m.Deadline,
		GeoRequired:    m.GeoRequired,
		OnsiteRadiusKm: m.OnsiteRadiusKm,
		Tags:           nonNilSlice(m.Tags),
		CreatedAt:      m.CreatedAt,
	}
}

func mapMissions(items []domain.Mission) []MissionResponse {
	res := make([]MissionResponse, 0, len(items))
	for _, m := range items {
		res = append(res, missionResponse(m))
	}
	return res
}

type paginatedMissions struct {
	Items      []MissionResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type TrustScoreResponse struct {
	Score  int                 `json:"score" minimum:"0" maximum:"100"`
	Badges []domain.TrustBadge `json:"badges"`
}

type StandardizationsResponse struct {
	Items []domain.Standardization `json:"items"`
}

type ChangeLogResponse struct {
	Items []domain.MissionChange `json:"items"`
}

type EventsResponse struct {
	Items []domain.Event `json:"items"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
