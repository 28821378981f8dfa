package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// dayStart truncates t to midnight in its location.
func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// windowBounds converts an inclusive [start, end] date window into half-open
// timestamp bounds covering the whole end day.
func windowBounds(start, end time.Time) (time.Time, time.Time) {
	return dayStart(start), dayStart(end).AddDate(0, 0, 1)
}

// --- Owners ---

// CreateOwner inserts an owner record.
func (r *Repository) CreateOwner(o *Owner) error {
	_, err := r.db.Exec(`
		INSERT INTO owners (id, name, email, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, o.ID, o.Name, o.Email, o.Active, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create owner: %w", err)
	}
	return nil
}

// GetOwner returns the owner or nil when no such owner exists.
func (r *Repository) GetOwner(id string) (*Owner, error) {
	var o Owner
	err := r.db.QueryRow(`
		SELECT id, name, email, active, created_at, updated_at
		FROM owners WHERE id = ?
	`, id).Scan(&o.ID, &o.Name, &o.Email, &o.Active, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query owner: %w", err)
	}
	return &o, nil
}

// ActiveOwners lists all active owners ordered by name.
func (r *Repository) ActiveOwners() ([]Owner, error) {
	rows, err := r.db.Query(`
		SELECT id, name, email, active, created_at, updated_at
		FROM owners WHERE active = TRUE ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active owners: %w", err)
	}
	defer rows.Close()

	var owners []Owner
	for rows.Next() {
		var o Owner
		if err := rows.Scan(&o.ID, &o.Name, &o.Email, &o.Active, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// --- Source records ---

// CreateCompany inserts a company record.
func (r *Repository) CreateCompany(c *Company) error {
	_, err := r.db.Exec(`
		INSERT INTO companies (id, owner_id, name, health_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.OwnerID, c.Name, c.HealthStatus, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

// CreateDelivery inserts a delivery record.
func (r *Repository) CreateDelivery(d *Delivery) error {
	_, err := r.db.Exec(`
		INSERT INTO deliveries (id, owner_id, company_id, title, status, created_at, first_action_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.OwnerID, d.CompanyID, d.Title, d.Status, d.CreatedAt, d.FirstActionAt, d.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to create delivery: %w", err)
	}
	return nil
}

// CreateSurvey inserts a survey record.
func (r *Repository) CreateSurvey(s *Survey) error {
	_, err := r.db.Exec(`
		INSERT INTO surveys (id, owner_id, company_id, score, status, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.OwnerID, s.CompanyID, s.Score, s.Status, s.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to create survey: %w", err)
	}
	return nil
}

// CreateBooking inserts a booking record.
func (r *Repository) CreateBooking(b *Booking) error {
	_, err := r.db.Exec(`
		INSERT INTO bookings (id, owner_id, company_id, status, scheduled_at)
		VALUES (?, ?, ?, ?, ?)
	`, b.ID, b.OwnerID, b.CompanyID, b.Status, b.ScheduledAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// --- Aggregation reads ---

// CountCompletedDeliveries counts deliveries completed in the inclusive window.
func (r *Repository) CountCompletedDeliveries(ownerID string, start, end time.Time) (int, error) {
	lo, hi := windowBounds(start, end)
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM deliveries
		WHERE owner_id = ? AND status = ? AND completed_at >= ? AND completed_at < ?
	`, ownerID, DeliveryCompleted, lo, hi).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed deliveries: %w", err)
	}
	return count, nil
}

// AvgResponseHours returns the average latency in hours between a demand's
// creation and its first action, over demands created in the window. Returns
// nil when no demand in the window has a first action.
func (r *Repository) AvgResponseHours(ownerID string, start, end time.Time) (*float64, error) {
	lo, hi := windowBounds(start, end)
	var avg sql.NullFloat64
	err := r.db.QueryRow(`
		SELECT AVG((julianday(first_action_at) - julianday(created_at)) * 24.0)
		FROM deliveries
		WHERE owner_id = ? AND first_action_at IS NOT NULL
		  AND created_at >= ? AND created_at < ?
	`, ownerID, lo, hi).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("failed to average response latency: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// AvgSurveyScore returns the average score of surveys completed in the
// window, or nil when none were completed.
func (r *Repository) AvgSurveyScore(ownerID string, start, end time.Time) (*float64, error) {
	lo, hi := windowBounds(start, end)
	var avg sql.NullFloat64
	err := r.db.QueryRow(`
		SELECT AVG(score) FROM surveys
		WHERE owner_id = ? AND completed_at IS NOT NULL
		  AND completed_at >= ? AND completed_at < ?
	`, ownerID, lo, hi).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("failed to average survey scores: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// CompanyHealthCounts returns the number of at-risk-or-churned companies and
// the total companies under the owner. Health is current state, not windowed.
func (r *Repository) CompanyHealthCounts(ownerID string) (atRisk, total int, err error) {
	err = r.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN health_status IN (?, ?) THEN 1 END),
			COUNT(*)
		FROM companies WHERE owner_id = ?
	`, HealthAtRisk, HealthChurned, ownerID).Scan(&atRisk, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count company health: %w", err)
	}
	return atRisk, total, nil
}

// CountMeetings counts scheduled or completed bookings in the window.
func (r *Repository) CountMeetings(ownerID string, start, end time.Time) (int, error) {
	lo, hi := windowBounds(start, end)
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM bookings
		WHERE owner_id = ? AND status IN (?, ?)
		  AND scheduled_at >= ? AND scheduled_at < ?
	`, ownerID, BookingScheduled, BookingCompleted, lo, hi).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count meetings: %w", err)
	}
	return count, nil
}

// --- Goal actuals (ownerID nil = team-wide) ---

func ownerFilter(ownerID *string) (string, []interface{}) {
	if ownerID == nil {
		return "", nil
	}
	return " AND owner_id = ?", []interface{}{*ownerID}
}

// SumDeliveriesCompleted totals completed deliveries in the window for one
// owner or the whole team.
func (r *Repository) SumDeliveriesCompleted(ownerID *string, start, end time.Time) (float64, error) {
	lo, hi := windowBounds(start, end)
	filter, extra := ownerFilter(ownerID)
	args := append([]interface{}{DeliveryCompleted, lo, hi}, extra...)

	var count float64
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM deliveries
		WHERE status = ? AND completed_at >= ? AND completed_at < ?`+filter,
		args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to sum completed deliveries: %w", err)
	}
	return count, nil
}

// SumMeetings totals held meetings in the window for one owner or the team.
func (r *Repository) SumMeetings(ownerID *string, start, end time.Time) (float64, error) {
	lo, hi := windowBounds(start, end)
	filter, extra := ownerFilter(ownerID)
	args := append([]interface{}{BookingScheduled, BookingCompleted, lo, hi}, extra...)

	var count float64
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM bookings
		WHERE status IN (?, ?) AND scheduled_at >= ? AND scheduled_at < ?`+filter,
		args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to sum meetings: %w", err)
	}
	return count, nil
}

// AvgSatisfactionActual averages completed survey scores in the window for
// one owner or the team. Returns nil when no surveys completed.
func (r *Repository) AvgSatisfactionActual(ownerID *string, start, end time.Time) (*float64, error) {
	lo, hi := windowBounds(start, end)
	filter, extra := ownerFilter(ownerID)
	args := append([]interface{}{lo, hi}, extra...)

	var avg sql.NullFloat64
	err := r.db.QueryRow(`
		SELECT AVG(score) FROM surveys
		WHERE completed_at IS NOT NULL AND completed_at >= ? AND completed_at < ?`+filter,
		args...).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("failed to average satisfaction: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// AvgSnapshotScore averages snapshot composite scores dated inside the
// window for one owner or the team. Returns nil when no snapshots exist.
func (r *Repository) AvgSnapshotScore(ownerID *string, start, end time.Time) (*float64, error) {
	filter, extra := ownerFilter(ownerID)
	args := append([]interface{}{dayStart(start).Format(dateLayout), dayStart(end).Format(dateLayout)}, extra...)

	var avg sql.NullFloat64
	err := r.db.QueryRow(`
		SELECT AVG(performance_score) FROM performance_snapshots
		WHERE snapshot_date >= ? AND snapshot_date <= ?`+filter,
		args...).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("failed to average snapshot scores: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// --- Snapshots ---

// UpsertSnapshot writes a snapshot keyed on (owner_id, snapshot_date).
// Recomputation on the same day overwrites the stored metrics and score and
// clears the ranking until the batch recomputes it; concurrent writes for
// the same key are therefore safe and idempotent.
func (r *Repository) UpsertSnapshot(s *PerformanceSnapshot) error {
	rawJSON, err := json.Marshal(s.RawMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal raw metrics: %w", err)
	}
	subJSON, err := json.Marshal(s.SubScores)
	if err != nil {
		return fmt.Errorf("failed to marshal sub-scores: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO performance_snapshots (
			id, owner_id, snapshot_date, raw_metrics, sub_scores,
			performance_score, ranking, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, snapshot_date) DO UPDATE SET
			raw_metrics = excluded.raw_metrics,
			sub_scores = excluded.sub_scores,
			performance_score = excluded.performance_score,
			ranking = NULL,
			updated_at = excluded.updated_at
	`, s.ID, s.OwnerID, dayStart(s.Date).Format(dateLayout), string(rawJSON), string(subJSON),
		s.Score, s.Ranking, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// UpdateSnapshotRanking writes a recomputed rank back into the snapshot for
// the given owner and day.
func (r *Repository) UpdateSnapshotRanking(ownerID string, date time.Time, ranking int) error {
	_, err := r.db.Exec(`
		UPDATE performance_snapshots SET ranking = ?, updated_at = ?
		WHERE owner_id = ? AND snapshot_date = ?
	`, ranking, time.Now(), ownerID, dayStart(date).Format(dateLayout))
	if err != nil {
		return fmt.Errorf("failed to update snapshot ranking: %w", err)
	}
	return nil
}

const snapshotColumns = `id, owner_id, snapshot_date, raw_metrics, sub_scores,
	performance_score, ranking, created_at, updated_at`

func scanSnapshot(scan func(dest ...interface{}) error) (*PerformanceSnapshot, error) {
	var s PerformanceSnapshot
	var rawJSON, subJSON string
	var ranking sql.NullInt64

	err := scan(&s.ID, &s.OwnerID, &s.Date, &rawJSON, &subJSON,
		&s.Score, &ranking, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(rawJSON), &s.RawMetrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(subJSON), &s.SubScores); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sub-scores: %w", err)
	}
	if ranking.Valid {
		rank := int(ranking.Int64)
		s.Ranking = &rank
	}
	return &s, nil
}

// LatestSnapshot returns the owner's snapshot with the latest date at or
// before asOf, or nil when none exists.
func (r *Repository) LatestSnapshot(ownerID string, asOf time.Time) (*PerformanceSnapshot, error) {
	row := r.db.QueryRow(`
		SELECT `+snapshotColumns+`
		FROM performance_snapshots
		WHERE owner_id = ? AND snapshot_date <= ?
		ORDER BY snapshot_date DESC
		LIMIT 1
	`, ownerID, dayStart(asOf).Format(dateLayout))

	s, err := scanSnapshot(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}
	return s, nil
}

// SnapshotHistory returns the owner's snapshots for the trailing number of
// days, oldest first.
func (r *Repository) SnapshotHistory(ownerID string, days int) ([]PerformanceSnapshot, error) {
	since := dayStart(time.Now()).AddDate(0, 0, -days)
	rows, err := r.db.Query(`
		SELECT `+snapshotColumns+`
		FROM performance_snapshots
		WHERE owner_id = ? AND snapshot_date >= ?
		ORDER BY snapshot_date ASC
	`, ownerID, since.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history: %w", err)
	}
	defer rows.Close()

	var history []PerformanceSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		history = append(history, *s)
	}
	return history, rows.Err()
}

// LatestSnapshotsPerOwner selects, for every owner with snapshots, the
// snapshot with the latest date at or before asOf, ordered by descending
// score.
func (r *Repository) LatestSnapshotsPerOwner(asOf time.Time) ([]PerformanceSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT `+snapshotColumns+`
		FROM performance_snapshots s
		WHERE s.snapshot_date = (
			SELECT MAX(s2.snapshot_date) FROM performance_snapshots s2
			WHERE s2.owner_id = s.owner_id AND s2.snapshot_date <= ?
		)
		ORDER BY s.performance_score DESC, s.owner_id ASC
	`, dayStart(asOf).Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []PerformanceSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *s)
	}
	return snapshots, rows.Err()
}

// --- Goals ---

// CreateGoal inserts a goal record.
func (r *Repository) CreateGoal(g *Goal) error {
	_, err := r.db.Exec(`
		INSERT INTO goals (id, owner_id, metric, target_value, period, start_date, end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.OwnerID, g.Metric, g.TargetValue, g.Period,
		dayStart(g.StartDate).Format(dateLayout), dayStart(g.EndDate).Format(dateLayout),
		g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}
	return nil
}

// GetGoal returns the goal or nil when no such goal exists.
func (r *Repository) GetGoal(id string) (*Goal, error) {
	var g Goal
	var ownerID sql.NullString
	err := r.db.QueryRow(`
		SELECT id, owner_id, metric, target_value, period, start_date, end_date, created_at, updated_at
		FROM goals WHERE id = ?
	`, id).Scan(&g.ID, &ownerID, &g.Metric, &g.TargetValue, &g.Period, &g.StartDate, &g.EndDate, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query goal: %w", err)
	}

	if ownerID.Valid {
		g.OwnerID = &ownerID.String
	}
	return &g, nil
}

// UpdateGoal overwrites the goal's mutable fields. Returns false when the
// goal does not exist.
func (r *Repository) UpdateGoal(g *Goal) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE goals SET owner_id = ?, metric = ?, target_value = ?, period = ?, start_date = ?, end_date = ?, updated_at = ?
		WHERE id = ?
	`, g.OwnerID, g.Metric, g.TargetValue, g.Period,
		dayStart(g.StartDate).Format(dateLayout), dayStart(g.EndDate).Format(dateLayout),
		time.Now(), g.ID)
	if err != nil {
		return false, fmt.Errorf("failed to update goal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return affected > 0, nil
}

// DeleteGoal removes the goal. Returns false when the goal does not exist.
func (r *Repository) DeleteGoal(id string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete goal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

// ListGoals lists goals, optionally filtered to one owner (team-wide goals
// are always included when filtering).
func (r *Repository) ListGoals(ownerID *string) ([]Goal, error) {
	query := `
		SELECT id, owner_id, metric, target_value, period, start_date, end_date, created_at, updated_at
		FROM goals`
	var args []interface{}
	if ownerID != nil {
		query += ` WHERE owner_id = ? OR owner_id IS NULL`
		args = append(args, *ownerID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var goals []Goal
	for rows.Next() {
		var g Goal
		var owner sql.NullString
		if err := rows.Scan(&g.ID, &owner, &g.Metric, &g.TargetValue, &g.Period,
			&g.StartDate, &g.EndDate, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		if owner.Valid {
			g.OwnerID = &owner.String
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}
