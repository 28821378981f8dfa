package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/vanguardia360/performance-engine/internal/scoring"
)

// Company health states as tracked by the dashboard.
const (
	HealthHealthy = "healthy"
	HealthAtRisk  = "at_risk"
	HealthChurned = "churned"
)

// Delivery states.
const (
	DeliveryPending    = "pending"
	DeliveryInProgress = "in_progress"
	DeliveryCompleted  = "completed"
)

// Booking states.
const (
	BookingScheduled = "scheduled"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
)

// Goal periods.
const (
	PeriodDaily     = "daily"
	PeriodWeekly    = "weekly"
	PeriodMonthly   = "monthly"
	PeriodQuarterly = "quarterly"
)

// Trackable goal metrics.
const (
	MetricDeliveriesCompleted = "deliveries_completed"
	MetricMeetingsHeld        = "meetings_held"
	MetricAvgSatisfaction     = "avg_satisfaction"
	MetricPerformanceScore    = "performance_score"
)

// Owner represents a customer-success representative responsible for a set
// of client companies.
type Owner struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email,omitempty" db:"email"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Company is a client company managed by an owner.
type Company struct {
	ID           string    `json:"id" db:"id"`
	OwnerID      string    `json:"owner_id" db:"owner_id"`
	Name         string    `json:"name" db:"name"`
	HealthStatus string    `json:"health_status" db:"health_status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Delivery is a client deliverable worked by an owner. FirstActionAt marks
// the first response to the demand; response latency is measured from
// CreatedAt to FirstActionAt.
type Delivery struct {
	ID            string     `json:"id" db:"id"`
	OwnerID       string     `json:"owner_id" db:"owner_id"`
	CompanyID     string     `json:"company_id" db:"company_id"`
	Title         string     `json:"title" db:"title"`
	Status        string     `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	FirstActionAt *time.Time `json:"first_action_at,omitempty" db:"first_action_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Survey is a satisfaction survey answered by a client; Score is 0-10.
type Survey struct {
	ID          string     `json:"id" db:"id"`
	OwnerID     string     `json:"owner_id" db:"owner_id"`
	CompanyID   string     `json:"company_id" db:"company_id"`
	Score       float64    `json:"score" db:"score"`
	Status      string     `json:"status" db:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Booking is a meeting between an owner and a client company.
type Booking struct {
	ID          string    `json:"id" db:"id"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	CompanyID   string    `json:"company_id" db:"company_id"`
	Status      string    `json:"status" db:"status"`
	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`
}

// PerformanceSnapshot is a persisted, dated performance score for one owner.
// At most one snapshot exists per (owner, date); recomputation for the same
// day overwrites. Ranking is nil until the batch recomputes it.
type PerformanceSnapshot struct {
	ID         string             `json:"id" db:"id"`
	OwnerID    string             `json:"owner_id" db:"owner_id"`
	Date       time.Time          `json:"date" db:"snapshot_date"`
	RawMetrics scoring.MetricSet  `json:"raw_metrics" db:"raw_metrics"`
	SubScores  map[string]float64 `json:"sub_scores" db:"sub_scores"`
	Score      float64            `json:"performance_score" db:"performance_score"`
	Ranking    *int               `json:"ranking,omitempty" db:"ranking"`
	CreatedAt  time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at" db:"updated_at"`
}

// Goal is a performance target for one owner, or team-wide when OwnerID is
// nil. Progress is computed on read against aggregated actuals.
type Goal struct {
	ID          string    `json:"id" db:"id"`
	OwnerID     *string   `json:"owner_id,omitempty" db:"owner_id"`
	Metric      string    `json:"metric" db:"metric"`
	TargetValue float64   `json:"target_value" db:"target_value"`
	Period      string    `json:"period" db:"period"`
	StartDate   time.Time `json:"start_date" db:"start_date"`
	EndDate     time.Time `json:"end_date" db:"end_date"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// NewSnapshot creates a snapshot for an owner on a day with a generated ID.
func NewSnapshot(ownerID string, date time.Time, metrics scoring.MetricSet, subScores map[string]float64, score float64) *PerformanceSnapshot {
	now := time.Now()
	return &PerformanceSnapshot{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Date:       date,
		RawMetrics: metrics,
		SubScores:  subScores,
		Score:      score,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewGoal creates a goal with a generated ID.
func NewGoal(ownerID *string, metric string, targetValue float64, period string, startDate, endDate time.Time) *Goal {
	now := time.Now()
	return &Goal{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Metric:      metric,
		TargetValue: targetValue,
		Period:      period,
		StartDate:   startDate,
		EndDate:     endDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ValidMetric reports whether metric is one of the trackable goal metrics.
func ValidMetric(metric string) bool {
	switch metric {
	case MetricDeliveriesCompleted, MetricMeetingsHeld, MetricAvgSatisfaction, MetricPerformanceScore:
		return true
	}
	return false
}

// ValidPeriod reports whether period is a known goal period.
func ValidPeriod(period string) bool {
	switch period {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly:
		return true
	}
	return false
}
