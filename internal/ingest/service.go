// Package ingest orchestrates mission intake: validation, idempotent
// creation, enrichment, suggestion, and persistence.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"briefline/internal/config"
	"briefline/internal/domain"
	"briefline/internal/enrich"
	"briefline/internal/events"
	"briefline/internal/idempotency"
	"briefline/internal/patch"
	"briefline/internal/suggest"
)

// ValidationError carries the offending field and a human hint. Always
// raised before any side effect.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message, hint string) *ValidationError {
	return &ValidationError{Field: field, Message: message, Hint: hint}
}

// MissionStore is the persistence port. repo.Repo satisfies it.
type MissionStore interface {
	InsertMissionTx(ctx context.Context, tx *sql.Tx, m domain.Mission) error
	GetMission(ctx context.Context, id string) (domain.Mission, error)
	ListMissions(ctx context.Context, clientID string, limit int, cursorCreatedAt, cursorID string) ([]domain.Mission, error)
	UpdateMissionFieldsTx(ctx context.Context, tx *sql.Tx, id string, fields map[string]any) error
	InsertStandardizationTx(ctx context.Context, tx *sql.Tx, s domain.Standardization) error
	ListStandardizations(ctx context.Context, missionID string) ([]domain.Standardization, error)
	AppendChangeTx(ctx context.Context, tx *sql.Tx, c domain.MissionChange) error
	ListChanges(ctx context.Context, missionID string) ([]domain.MissionChange, error)
}

// Service is the orchestration root for mission intake.
type Service struct {
	DB       *sql.DB
	Store    MissionStore
	Events   events.Writer
	Cache    idempotency.Cache
	Enricher *enrich.Orchestrator
	Suggest  suggest.Engine
	Config   *config.Config
	Log      *zap.Logger
	Now      func() time.Time
}

func New(db *sql.DB, store MissionStore, cache idempotency.Cache, enricher *enrich.Orchestrator, cfg *config.Config, log *zap.Logger) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	eng := suggest.New()
	eng.DefaultBudgetMin = cfg.Pricing.DefaultBudgetMin
	eng.DefaultBudgetMax = cfg.Pricing.DefaultBudgetMax
	return &Service{
		DB:       db,
		Store:    store,
		Events:   events.Writer{DB: db},
		Cache:    cache,
		Enricher: enricher,
		Suggest:  eng,
		Config:   cfg,
		Log:      log,
		Now:      time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ValidationReport accompanies a successful creation.
type ValidationReport struct {
	Warnings []string `json:"warnings"`
	Infos    []string `json:"infos"`
}

// CreateResult is the creation response payload. It is cached verbatim
// for idempotent replay.
type CreateResult struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	Validation ValidationReport `json:"validation"`
}

// Create validates the brief and persists a mission exactly once per
// idempotency key within the retention window. The replayed flag marks
// responses served from the cache.
func (s *Service) Create(ctx context.Context, brief domain.Brief, idemKey, actorID string) (CreateResult, bool, error) {
	if idemKey != "" && s.Cache != nil {
		cached, ok, err := s.Cache.Get(ctx, idemKey)
		if err != nil {
			s.Log.Warn("idempotency cache read failed", zap.Error(err))
		} else if ok {
			var res CreateResult
			if err := json.Unmarshal(cached, &res); err == nil {
				return res, true, nil
			}
		}
	}

	if err := s.ValidateBrief(brief); err != nil {
		return CreateResult{}, false, err
	}

	suggestion := s.Suggest.Suggest(brief)
	// Enrichment is advisory at creation time; provider failures degrade
	// to local values and never block the request, but the outcome folds
	// into the suggestion and the validation report.
	enrichment, err := s.enrich(ctx, brief, &suggestion)
	if err != nil {
		return CreateResult{}, false, err
	}

	m := domain.Mission{
		ID:             uuid.NewString(),
		Title:          brief.Title,
		Description:    brief.Description,
		Category:       suggestion.CategoryStd,
		BudgetMin:      *brief.BudgetMin,
		BudgetMax:      *brief.BudgetMax,
		Status:         "draft",
		ClientID:       actorID,
		Deadline:       brief.Deadline,
		GeoRequired:    brief.GeoRequired,
		OnsiteRadiusKm: brief.OnsiteRadiusKm,
		Tags:           suggestion.Tags,
		CreatedAt:      s.now().UTC().Format(time.RFC3339),
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return CreateResult{}, false, err
	}
	defer tx.Rollback()

	if err := s.Store.InsertMissionTx(ctx, tx, m); err != nil {
		return CreateResult{}, false, fmt.Errorf("insert mission: %w", err)
	}
	if err := s.Store.AppendChangeTx(ctx, tx, domain.MissionChange{
		MissionID: m.ID,
		Field:     "status",
		After:     m.Status,
		Source:    "ingestion",
		ActorID:   actorID,
		CreatedAt: m.CreatedAt,
	}); err != nil {
		return CreateResult{}, false, fmt.Errorf("append change: %w", err)
	}
	if err := s.Events.Append(ctx, tx, "mission.created", "mission", m.ID, actorID, events.EventPayload{
		"category": m.Category,
		"quality":  suggestion.QualityScore,
	}); err != nil {
		return CreateResult{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return CreateResult{}, false, err
	}

	res := CreateResult{
		ID:         m.ID,
		Status:     m.Status,
		Validation: s.report(brief, suggestion, enrichment),
	}

	// Cached only after full success so a failed request never pins a key.
	if idemKey != "" && s.Cache != nil {
		payload, err := json.Marshal(res)
		if err == nil {
			if err := s.Cache.Put(ctx, idemKey, payload); err != nil {
				s.Log.Warn("idempotency cache write failed", zap.Error(err))
			}
		}
	}
	return res, false, nil
}

// ValidateBrief checks the brief invariants, short-circuiting before any
// side effect.
func (s *Service) ValidateBrief(b domain.Brief) error {
	if len(strings.TrimSpace(b.Title)) < 3 {
		return invalid("title", "titre trop court", "le titre doit contenir au moins 3 caractères")
	}
	if len(strings.TrimSpace(b.Description)) < 10 {
		return invalid("description", "description trop courte", "décrivez la mission en au moins 10 caractères")
	}
	if b.Category != "" && !domain.ValidCategory(b.Category) {
		return invalid("category", "catégorie inconnue", "catégories valides : "+strings.Join(domain.Categories, ", "))
	}
	if b.BudgetMin == nil {
		return invalid("budget_min", "budget minimum requis", "indiquez un budget minimum d'au moins 1000 €")
	}
	if *b.BudgetMin < 1000 {
		return invalid("budget_min", "budget minimum trop bas", "le budget minimum est de 1000 €")
	}
	if b.BudgetMax == nil {
		return invalid("budget_max", "budget maximum requis", "indiquez un budget maximum supérieur ou égal au minimum")
	}
	if *b.BudgetMax < *b.BudgetMin {
		return invalid("budget_max", "budget maximum inférieur au minimum", "le budget maximum doit être supérieur ou égal au budget minimum")
	}
	if b.GeoRequired && b.OnsiteRadiusKm == nil {
		return invalid("onsite_radius_km", "rayon d'intervention requis", "précisez le rayon en km pour une mission sur site")
	}
	if !b.GeoRequired && b.OnsiteRadiusKm != nil {
		return invalid("onsite_radius_km", "rayon fourni sans mission sur site", "activez geo_required ou retirez le rayon")
	}
	if b.Deadline != nil {
		dl, err := time.Parse(time.RFC3339, *b.Deadline)
		if err != nil {
			return invalid("deadline", "échéance invalide", "utilisez le format RFC3339, ex. 2026-09-30T00:00:00Z")
		}
		if !dl.After(s.now()) {
			return invalid("deadline", "échéance déjà passée", "l'échéance doit être strictement dans le futur")
		}
	}
	return nil
}

func (s *Service) report(b domain.Brief, sg domain.Suggestion, enrichment map[enrich.Feature]enrich.Result) ValidationReport {
	rep := ValidationReport{Warnings: []string{}, Infos: []string{}}
	if len(b.Description) < 100 {
		rep.Warnings = append(rep.Warnings, "description courte, pensez à détailler le périmètre")
	}
	if b.Deadline == nil {
		rep.Warnings = append(rep.Warnings, "aucune échéance renseignée")
	}
	if r, ok := enrichment[enrich.FeatureNormalize]; ok {
		if n, ok := r.Data.(*enrich.NormalizeResult); ok {
			rep.Warnings = append(rep.Warnings, n.Flags...)
		}
	}
	if len(sg.Skills) > 0 {
		rep.Infos = append(rep.Infos, "compétences détectées : "+strings.Join(sg.Skills, ", "))
	}
	rep.Infos = append(rep.Infos, fmt.Sprintf("score de qualité : %.2f", sg.QualityScore))
	if r, ok := enrichment[enrich.FeatureQuestion]; ok {
		if q, ok := r.Data.(*enrich.QuestionsResult); ok && len(q.Questions) > 0 {
			rep.Infos = append(rep.Infos, fmt.Sprintf("%d question(s) de clarification disponibles", len(q.Questions)))
		}
	}
	return rep
}

// enrich runs the orchestrator and folds successful provider payloads
// into the suggestion. Returns a nil map when no enricher is wired.
func (s *Service) enrich(ctx context.Context, brief domain.Brief, sg *domain.Suggestion) (map[enrich.Feature]enrich.Result, error) {
	if s.Enricher == nil {
		return nil, nil
	}
	enrichment, err := s.Enricher.Enrich(ctx, brief)
	if err != nil {
		return nil, err
	}
	if r, ok := enrichment[enrich.FeatureNormalize]; ok && r.Succeeded {
		if n, ok := r.Data.(*enrich.NormalizeResult); ok && n.Summary != "" {
			sg.RewrittenSummary = n.Summary
		}
	}
	if r, ok := enrichment[enrich.FeatureGenerate]; ok && r.Succeeded {
		if g, ok := r.Data.(*enrich.GenerateResult); ok && len(g.Variants) > 0 {
			if g.Variants[0].Title != "" {
				sg.RewrittenTitle = g.Variants[0].Title
			}
			if g.Variants[0].Description != "" {
				sg.RewrittenSummary = g.Variants[0].Description
			}
		}
	}
	return enrichment, nil
}

// Get returns a persisted mission.
func (s *Service) Get(ctx context.Context, id string) (domain.Mission, error) {
	return s.Store.GetMission(ctx, id)
}

// List pages missions newest-first.
func (s *Service) List(ctx context.Context, clientID string, limit int, cursorCreatedAt, cursorID string) ([]domain.Mission, error) {
	return s.Store.ListMissions(ctx, clientID, limit, cursorCreatedAt, cursorID)
}

// Scores accompanies a suggestion.
type Scores struct {
	Quality    float64 `json:"quality"`
	Richness   float64 `json:"richness"`
	Confidence float64 `json:"confidence"`
}

// SuggestResult is the suggestion endpoint payload.
type SuggestResult struct {
	Suggestion domain.Suggestion                `json:"suggestion"`
	Scores     Scores                           `json:"scores"`
	Enrichment map[enrich.Feature]enrich.Result `json:"enrichment,omitempty"`
	Version    int                              `json:"version"`
}

// MakeSuggestion computes a suggestion, overlaying provider enrichment
// when available. Provider failures degrade to the local computation.
func (s *Service) MakeSuggestion(ctx context.Context, brief domain.Brief) (SuggestResult, error) {
	sg := s.Suggest.Suggest(brief)
	enrichment, err := s.enrich(ctx, brief, &sg)
	if err != nil {
		return SuggestResult{}, err
	}
	return SuggestResult{
		Suggestion: sg,
		Scores: Scores{
			Quality:    sg.QualityScore,
			Richness:   sg.RichnessScore,
			Confidence: s.Suggest.Confidence(sg.QualityScore, sg.RichnessScore),
		},
		Enrichment: enrichment,
		Version:    suggest.Version,
	}, nil
}

// ApplySuggestion computes the patch of merging selected suggestion
// fields into a draft. Inputs stay untouched.
func (s *Service) ApplySuggestion(draft domain.MissionDraft, sg domain.Suggestion, flags domain.ApplyFlags) domain.ApplyPatch {
	return patch.Apply(draft, sg, flags)
}

// missionColumns are the patch fields that map to stored mission
// columns. delay_days has no column; it stays advisory in the patch.
var missionColumns = map[string]bool{
	"title":       true,
	"description": true,
	"budget_min":  true,
	"budget_max":  true,
}

// ApplyToMission computes a fresh suggestion for a persisted mission and
// applies the selected fields to its stored columns, appending one
// change-log entry per updated field.
func (s *Service) ApplyToMission(ctx context.Context, missionID string, flags domain.ApplyFlags, actorID string) (domain.ApplyPatch, error) {
	m, err := s.Store.GetMission(ctx, missionID)
	if err != nil {
		return domain.ApplyPatch{}, err
	}
	brief := domain.Brief{
		Title:       m.Title,
		Description: m.Description,
		Category:    m.Category,
		BudgetMin:   &m.BudgetMin,
		BudgetMax:   &m.BudgetMax,
		Deadline:    m.Deadline,
	}
	sg := s.Suggest.Suggest(brief)
	draft := domain.MissionDraft{
		Title:       m.Title,
		Description: m.Description,
		BudgetMin:   m.BudgetMin,
		BudgetMax:   m.BudgetMax,
	}
	p := patch.Apply(draft, sg, flags)

	fields := map[string]any{}
	for field, v := range p.Fields {
		if missionColumns[field] {
			fields[field] = v
		}
	}
	if len(fields) == 0 {
		return p, nil
	}

	now := s.now().UTC().Format(time.RFC3339)
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ApplyPatch{}, err
	}
	defer tx.Rollback()

	if err := s.Store.UpdateMissionFieldsTx(ctx, tx, m.ID, fields); err != nil {
		return domain.ApplyPatch{}, fmt.Errorf("update mission: %w", err)
	}
	for _, d := range p.Diffs {
		if !missionColumns[d.Field] {
			continue
		}
		if err := s.Store.AppendChangeTx(ctx, tx, domain.MissionChange{
			MissionID: m.ID,
			Field:     d.Field,
			Before:    fmt.Sprint(d.Before),
			After:     fmt.Sprint(d.After),
			Source:    "apply",
			ActorID:   actorID,
			CreatedAt: now,
		}); err != nil {
			return domain.ApplyPatch{}, fmt.Errorf("append change: %w", err)
		}
	}
	if err := s.Events.Append(ctx, tx, "mission.updated", "mission", m.ID, actorID, events.EventPayload{
		"applied_count": p.AppliedCount,
		"impact":        p.ImpactSummary,
	}); err != nil {
		return domain.ApplyPatch{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ApplyPatch{}, err
	}
	return p, nil
}

// Economics is the price band of a recomputed suggestion.
type Economics struct {
	PriceMin float64 `json:"price_min"`
	PriceMed float64 `json:"price_med"`
	PriceMax float64 `json:"price_max"`
}

// AnswersResult is the answer-questions endpoint payload.
type AnswersResult struct {
	Scores       Scores            `json:"scores"`
	Economics    Economics         `json:"economics"`
	DelayDays    int               `json:"delay_days"`
	Questions    []domain.Question `json:"questions"`
	Improvements []string          `json:"improvements"`
	Version      int               `json:"version"`
}

// AnswerQuestions recomputes the suggestion with the brief augmented by
// the answers and filters out answered questions. Idempotent for the
// same answer set.
func (s *Service) AnswerQuestions(brief domain.Brief, answers []domain.Answer) AnswersResult {
	sg := s.Suggest.RecomputeWithAnswers(brief, answers)
	return AnswersResult{
		Scores: Scores{
			Quality:    sg.QualityScore,
			Richness:   sg.RichnessScore,
			Confidence: s.Suggest.Confidence(sg.QualityScore, sg.RichnessScore),
		},
		Economics:    Economics{PriceMin: sg.PriceMin, PriceMed: sg.PriceMed, PriceMax: sg.PriceMax},
		DelayDays:    sg.DelayDays,
		Questions:    sg.MissingInfo,
		Improvements: sg.Reasons,
		Version:      suggest.Version,
	}
}

// Standardize computes a fresh suggestion for a persisted mission,
// records it as a standardization, and appends change-log entries. The
// mission's original fields are not rewritten.
func (s *Service) Standardize(ctx context.Context, missionID, actorID string) (domain.Standardization, error) {
	m, err := s.Store.GetMission(ctx, missionID)
	if err != nil {
		return domain.Standardization{}, err
	}
	brief := domain.Brief{
		Title:       m.Title,
		Description: m.Description,
		Category:    m.Category,
		BudgetMin:   &m.BudgetMin,
		BudgetMax:   &m.BudgetMax,
		Deadline:    m.Deadline,
	}
	sg := s.Suggest.Suggest(brief)
	now := s.now().UTC().Format(time.RFC3339)
	std := domain.Standardization{
		ID:             uuid.NewString(),
		MissionID:      m.ID,
		CategoryStd:    sg.CategoryStd,
		SubCategoryStd: sg.SubCategoryStd,
		Skills:         sg.Skills,
		Tags:           sg.Tags,
		QualityScore:   sg.QualityScore,
		CreatedAt:      now,
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Standardization{}, err
	}
	defer tx.Rollback()

	if err := s.Store.InsertStandardizationTx(ctx, tx, std); err != nil {
		return domain.Standardization{}, fmt.Errorf("insert standardization: %w", err)
	}
	changes := []domain.MissionChange{}
	if sg.CategoryStd != m.Category {
		changes = append(changes, domain.MissionChange{
			MissionID: m.ID, Field: "category_std", Before: m.Category, After: sg.CategoryStd,
		})
	}
	oldTags := strings.Join(m.Tags, ",")
	newTags := strings.Join(sg.Tags, ",")
	if newTags != oldTags {
		changes = append(changes, domain.MissionChange{
			MissionID: m.ID, Field: "tags", Before: oldTags, After: newTags,
		})
	}
	for _, c := range changes {
		c.Source = "standardize"
		c.ActorID = actorID
		c.CreatedAt = now
		if err := s.Store.AppendChangeTx(ctx, tx, c); err != nil {
			return domain.Standardization{}, fmt.Errorf("append change: %w", err)
		}
	}
	if err := s.Events.Append(ctx, tx, "mission.standardized", "mission", m.ID, actorID, events.EventPayload{
		"standardization_id": std.ID,
		"quality":            std.QualityScore,
	}); err != nil {
		return domain.Standardization{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Standardization{}, err
	}
	return std, nil
}

// Standardizations returns a mission's standardization history,
// newest first.
func (s *Service) Standardizations(ctx context.Context, missionID string) ([]domain.Standardization, error) {
	if _, err := s.Store.GetMission(ctx, missionID); err != nil {
		return nil, err
	}
	return s.Store.ListStandardizations(ctx, missionID)
}

// ChangeLog returns the append-only change history of a mission.
func (s *Service) ChangeLog(ctx context.Context, missionID string) ([]domain.MissionChange, error) {
	if _, err := s.Store.GetMission(ctx, missionID); err != nil {
		return nil, err
	}
	return s.Store.ListChanges(ctx, missionID)
}
