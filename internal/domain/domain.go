package domain

// Brief is the raw client-submitted project description and constraints.
type Brief struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category,omitempty" enum:"development,design,marketing,consulting,construction,services"`
	BudgetMin      *float64 `json:"budget_min,omitempty"`
	BudgetMax      *float64 `json:"budget_max,omitempty"`
	Deadline       *string  `json:"deadline,omitempty" format:"date-time"`
	GeoRequired    bool     `json:"geo_required,omitempty"`
	OnsiteRadiusKm *float64 `json:"onsite_radius_km,omitempty"`
}

// Mission is the persisted entity created exactly once per ingestion.
type Mission struct {
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
	Tags           []string `json:"tags,omitempty"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
}

// Question is one missing-information prompt with a stable id used to
// match answers on recompute.
type Question struct {
	ID       string `json:"id"`
	Question string `json:"question"`
}

// Suggestion is derived from a Brief, never persisted verbatim and never
// mutated, only replaced by a fresh computation.
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

// Answer pairs a question id with the client's free-text answer.
type Answer struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// ApplyFlags selects which suggestion fields get merged into a draft.
type ApplyFlags struct {
	Text   bool   `json:"text"`
	Budget string `json:"budget" enum:"none,low,med,high"`
	Delay  bool   `json:"delay"`
}

// FieldDiff records one before/after pair for a changed field.
type FieldDiff struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// ApplyPatch is the computed result of merging selected suggestion fields
// into a draft. Both inputs stay untouched.
type ApplyPatch struct {
	Fields        map[string]any `json:"fields"`
	Diffs         []FieldDiff    `json:"diffs"`
	AppliedCount  int            `json:"applied_count"`
	ImpactSummary string         `json:"impact_summary"`
}

// MissionDraft is the editable mission shape patches are computed against.
type MissionDraft struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	BudgetMin   float64 `json:"budget_min"`
	BudgetMax   float64 `json:"budget_max"`
	DelayDays   int     `json:"delay_days,omitempty"`
}

// Standardization is the record kept when a suggestion is applied
// server-side to a persisted mission.
type Standardization struct {
	ID             string   `json:"id"`
	MissionID      string   `json:"mission_id"`
	CategoryStd    string   `json:"category_std"`
	SubCategoryStd string   `json:"sub_category_std,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	QualityScore   float64  `json:"quality_score"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
}

// MissionChange is one entry of the append-only per-mission change log.
type MissionChange struct {
	ID        int64  `json:"id"`
	MissionID string `json:"mission_id"`
	Field     string `json:"field"`
	Before    string `json:"before,omitempty"`
	After     string `json:"after,omitempty"`
	Source    string `json:"source"`
	ActorID   string `json:"actor_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// TrustFactors are recomputed by an external aggregator; this system only
// consumes them.
type TrustFactors struct {
	TenureMonths       float64 `json:"tenure_months"`
	ProjectsPerMonth   float64 `json:"projects_per_month"`
	ResponseRate       float64 `json:"response_rate"`
	OnTimeRate         float64 `json:"on_time_rate"`
	CommunicationScore float64 `json:"communication_score"`
	RatingVariance     float64 `json:"rating_variance"`
	KYCVerified        bool    `json:"kyc_verified"`
}

// ProjectRecord is one completed project in a provider's history.
type ProjectRecord struct {
	Category string  `json:"category"`
	Rating   float64 `json:"rating,omitempty"`
}

// TrustBadge is a named, confidence-scored claim derived from factors and
// history. Emitted, never persisted.
type TrustBadge struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Confidence  float64  `json:"confidence"`
	Criteria    []string `json:"criteria"`
	Icon        string   `json:"icon"`
	Color       string   `json:"color"`
}

// Event is an audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey identifies a caller via its hashed key.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Categories lists the canonical mission categories in display order.
var Categories = []string{"development", "design", "marketing", "consulting", "construction", "services"}

// ValidCategory reports whether c is one of the canonical categories.
func ValidCategory(c string) bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}
