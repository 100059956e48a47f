package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"briefline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const missionCols = `id,title,description,category,budget_min,budget_max,status,client_id,deadline,geo_required,onsite_radius_km,tags_json,created_at`

func scanMission(scan func(dest ...any) error) (domain.Mission, error) {
	var m domain.Mission
	var deadline sql.NullString
	var radius sql.NullFloat64
	var geo int
	var tagsJSON string
	err := scan(&m.ID, &m.Title, &m.Description, &m.Category, &m.BudgetMin, &m.BudgetMax,
		&m.Status, &m.ClientID, &deadline, &geo, &radius, &tagsJSON, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if deadline.Valid {
		m.Deadline = &deadline.String
	}
	if radius.Valid {
		m.OnsiteRadiusKm = &radius.Float64
	}
	m.GeoRequired = geo != 0
	if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
		return m, err
	}
	return m, nil
}

func (r Repo) InsertMissionTx(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO missions(`+missionCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Title, m.Description, m.Category, m.BudgetMin, m.BudgetMax, m.Status, m.ClientID,
		nullableStr(m.Deadline), boolInt(m.GeoRequired), nullableFloat(m.OnsiteRadiusKm), string(tagsJSON), m.CreatedAt)
	return err
}

func (r Repo) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+missionCols+` FROM missions WHERE id=?`, id)
	return scanMission(row.Scan)
}

// ListMissions pages newest-first on (created_at,id). An empty cursor
// starts at the top.
func (r Repo) ListMissions(ctx context.Context, clientID string, limit int, cursorCreatedAt, cursorID string) ([]domain.Mission, error) {
	var clauses []string
	var args []any
	if clientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, clientID)
	}
	if cursorCreatedAt != "" && cursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, cursorCreatedAt, cursorCreatedAt, cursorID)
	}
	query := `SELECT ` + missionCols + ` FROM missions`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpdateMissionFieldsTx(ctx context.Context, tx *sql.Tx, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	var sets []string
	var args []any
	for _, col := range []string{"title", "description", "category", "budget_min", "budget_max", "tags_json"} {
		if v, ok := fields[col]; ok {
			sets = append(sets, col+"=?")
			args = append(args, v)
		}
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, `UPDATE missions SET `+strings.Join(sets, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertStandardizationTx(ctx context.Context, tx *sql.Tx, s domain.Standardization) error {
	skills, err := json.Marshal(emptyIfNil(s.Skills))
	if err != nil {
		return err
	}
	tags, err := json.Marshal(emptyIfNil(s.Tags))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO standardizations(id,mission_id,category_std,sub_category_std,skills_json,tags_json,quality_score,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		s.ID, s.MissionID, s.CategoryStd, nullable(s.SubCategoryStd), string(skills), string(tags), s.QualityScore, s.CreatedAt)
	return err
}

func (r Repo) ListStandardizations(ctx context.Context, missionID string) ([]domain.Standardization, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,mission_id,category_std,COALESCE(sub_category_std,''),skills_json,tags_json,quality_score,created_at FROM standardizations WHERE mission_id=? ORDER BY created_at DESC, id DESC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Standardization
	for rows.Next() {
		var s domain.Standardization
		var skillsJSON, tagsJSON string
		if err := rows.Scan(&s.ID, &s.MissionID, &s.CategoryStd, &s.SubCategoryStd, &skillsJSON, &tagsJSON, &s.QualityScore, &s.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(skillsJSON), &s.Skills); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tagsJSON), &s.Tags); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) AppendChangeTx(ctx context.Context, tx *sql.Tx, c domain.MissionChange) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO mission_changes(mission_id,field,before_value,after_value,source,actor_id,created_at) VALUES (?,?,?,?,?,?,?)`,
		c.MissionID, c.Field, nullable(c.Before), nullable(c.After), c.Source, c.ActorID, c.CreatedAt)
	return err
}

func (r Repo) ListChanges(ctx context.Context, missionID string) ([]domain.MissionChange, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,mission_id,field,COALESCE(before_value,''),COALESCE(after_value,''),source,actor_id,created_at FROM mission_changes WHERE mission_id=? ORDER BY id ASC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MissionChange
	for rows.Next() {
		var c domain.MissionChange
		if err := rows.Scan(&c.ID, &c.MissionID, &c.Field, &c.Before, &c.After, &c.Source, &c.ActorID, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) ListEvents(ctx context.Context, entityKind, entityID string, limit int) ([]domain.Event, error) {
	var clauses []string
	var args []any
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
