package metrics

import (
	"log/slog"
	"time"

	"github.com/vanguardia360/performance-engine/internal/database"
	"github.com/vanguardia360/performance-engine/internal/errors"
	"github.com/vanguardia360/performance-engine/internal/scoring"
)

// Store is the slice of the record store the aggregator reads.
type Store interface {
	GetOwner(id string) (*database.Owner, error)
	CountCompletedDeliveries(ownerID string, start, end time.Time) (int, error)
	AvgResponseHours(ownerID string, start, end time.Time) (*float64, error)
	AvgSurveyScore(ownerID string, start, end time.Time) (*float64, error)
	CompanyHealthCounts(ownerID string) (atRisk, total int, err error)
	CountMeetings(ownerID string, start, end time.Time) (int, error)
}

// Aggregator computes raw metric aggregates from source records.
type Aggregator struct {
	store Store
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// CalculateMetrics computes the raw counts and averages for one owner over
// the inclusive [start, end] date window. Metrics with no underlying data
// come back as zero counts or nil averages; a data gap is never an error.
// No side effects.
func (a *Aggregator) CalculateMetrics(ownerID string, start, end time.Time) (*scoring.MetricSet, error) {
	if start.After(end) {
		return nil, errors.NewValidationError("start date must not be after end date")
	}

	owner, err := a.store.GetOwner(ownerID)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to load owner", err)
	}
	if owner == nil {
		return nil, errors.NewNotFoundError("owner", ownerID)
	}

	completed, err := a.store.CountCompletedDeliveries(ownerID, start, end)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to count completed deliveries", err)
	}

	responseHours, err := a.store.AvgResponseHours(ownerID, start, end)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to average response latency", err)
	}

	satisfaction, err := a.store.AvgSurveyScore(ownerID, start, end)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to average survey scores", err)
	}

	atRisk, total, err := a.store.CompanyHealthCounts(ownerID)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to count company health", err)
	}

	meetings, err := a.store.CountMeetings(ownerID, start, end)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to count meetings", err)
	}

	metrics := &scoring.MetricSet{
		DeliveriesCompleted: completed,
		AvgResponseHours:    responseHours,
		AvgSatisfaction:     satisfaction,
		AtRiskCompanies:     atRisk,
		TotalCompanies:      total,
		MeetingsHeld:        meetings,
	}

	slog.Debug("Calculated metrics",
		"owner_id", ownerID,
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
		"deliveries_completed", completed,
		"meetings_held", meetings)

	return metrics, nil
}
