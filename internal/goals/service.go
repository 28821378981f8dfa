package goals

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/vanguardia360/performance-engine/internal/database"
	"github.com/vanguardia360/performance-engine/internal/errors"
)

// percentCap keeps runaway overachievement readable in dashboards.
const percentCap = 999.0

// Store is the slice of the record store the goal tracker needs.
type Store interface {
	CreateGoal(g *database.Goal) error
	GetGoal(id string) (*database.Goal, error)
	UpdateGoal(g *database.Goal) (bool, error)
	DeleteGoal(id string) (bool, error)
	ListGoals(ownerID *string) ([]database.Goal, error)
	SumDeliveriesCompleted(ownerID *string, start, end time.Time) (float64, error)
	SumMeetings(ownerID *string, start, end time.Time) (float64, error)
	AvgSatisfactionActual(ownerID *string, start, end time.Time) (*float64, error)
	AvgSnapshotScore(ownerID *string, start, end time.Time) (*float64, error)
}

// GoalInput carries the client-supplied fields for creating or updating a goal.
type GoalInput struct {
	OwnerID     *string   `json:"owner_id,omitempty"`
	Metric      string    `json:"metric" binding:"required"`
	TargetValue float64   `json:"target_value" binding:"required"`
	Period      string    `json:"period" binding:"required"`
	StartDate   time.Time `json:"start_date" binding:"required"`
	EndDate     time.Time `json:"end_date" binding:"required"`
}

// Progress reports how a goal is tracking against elapsed time.
type Progress struct {
	Goal            database.Goal `json:"goal"`
	ActualValue     float64       `json:"actual_value"`
	PercentComplete float64       `json:"percent_complete"`
	TimeElapsedPct  float64       `json:"time_elapsed_pct"`
	OnTrack         bool          `json:"on_track"`
}

// Service handles goal lifecycle and progress evaluation.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a new goal service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func validateInput(in GoalInput) error {
	if !database.ValidMetric(in.Metric) {
		return errors.NewValidationError(fmt.Sprintf("unknown metric %q", in.Metric))
	}
	if !database.ValidPeriod(in.Period) {
		return errors.NewValidationError(fmt.Sprintf("unknown period %q", in.Period))
	}
	if in.TargetValue <= 0 {
		return errors.NewValidationError("target value must be positive")
	}
	if !in.StartDate.Before(in.EndDate) {
		return errors.NewValidationError("start date must be before end date")
	}
	return nil
}

// CreateGoal validates and persists a new goal. A nil owner makes it a
// team-wide goal.
func (s *Service) CreateGoal(in GoalInput) (*database.Goal, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	goal := database.NewGoal(in.OwnerID, in.Metric, in.TargetValue, in.Period, in.StartDate, in.EndDate)
	if err := s.store.CreateGoal(goal); err != nil {
		return nil, errors.NewPersistenceError("failed to create goal", err)
	}

	slog.Info("Goal created", "goal_id", goal.ID, "metric", goal.Metric, "target", goal.TargetValue)

	return goal, nil
}

// UpdateGoal replaces the mutable fields of an existing goal.
func (s *Service) UpdateGoal(id string, in GoalInput) (*database.Goal, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	goal, err := s.store.GetGoal(id)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to load goal", err)
	}
	if goal == nil {
		return nil, errors.NewNotFoundError("goal", id)
	}

	goal.OwnerID = in.OwnerID
	goal.Metric = in.Metric
	goal.TargetValue = in.TargetValue
	goal.Period = in.Period
	goal.StartDate = in.StartDate
	goal.EndDate = in.EndDate
	goal.UpdatedAt = s.now()

	updated, err := s.store.UpdateGoal(goal)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to update goal", err)
	}
	if !updated {
		return nil, errors.NewNotFoundError("goal", id)
	}
	return goal, nil
}

// DeleteGoal removes a goal by id.
func (s *Service) DeleteGoal(id string) error {
	deleted, err := s.store.DeleteGoal(id)
	if err != nil {
		return errors.NewPersistenceError("failed to delete goal", err)
	}
	if !deleted {
		return errors.NewNotFoundError("goal", id)
	}
	return nil
}

// ListGoals returns goals for an owner (including team-wide goals) or, with
// a nil owner, every goal.
func (s *Service) ListGoals(ownerID *string) ([]database.Goal, error) {
	goals, err := s.store.ListGoals(ownerID)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to list goals", err)
	}
	return goals, nil
}

// GetGoalProgress evaluates a goal's actual value over its elapsed window
// and applies the pacing heuristic: a goal is on track when the completed
// fraction of the target is at least the elapsed fraction of the period.
func (s *Service) GetGoalProgress(id string) (*Progress, error) {
	goal, err := s.store.GetGoal(id)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to load goal", err)
	}
	if goal == nil {
		return nil, errors.NewNotFoundError("goal", id)
	}

	now := s.now()
	windowEnd := goal.EndDate
	if now.Before(windowEnd) {
		windowEnd = now
	}

	actual, err := s.actualValue(goal, windowEnd)
	if err != nil {
		return nil, err
	}

	progress := &Progress{
		Goal:        *goal,
		ActualValue: actual,
	}

	progress.PercentComplete = actual / goal.TargetValue * 100
	if progress.PercentComplete > percentCap {
		progress.PercentComplete = percentCap
	}

	total := goal.EndDate.Sub(goal.StartDate)
	elapsed := now.Sub(goal.StartDate)
	switch {
	case elapsed <= 0:
		progress.TimeElapsedPct = 0
	case elapsed >= total:
		progress.TimeElapsedPct = 100
	default:
		progress.TimeElapsedPct = float64(elapsed) / float64(total) * 100
	}

	progress.OnTrack = progress.PercentComplete >= progress.TimeElapsedPct

	return progress, nil
}

// actualValue dispatches on the goal's metric: counted metrics sum over the
// window, quality metrics average, and a window with no data reads as zero
// actual rather than an error.
func (s *Service) actualValue(goal *database.Goal, windowEnd time.Time) (float64, error) {
	switch goal.Metric {
	case database.MetricDeliveriesCompleted:
		value, err := s.store.SumDeliveriesCompleted(goal.OwnerID, goal.StartDate, windowEnd)
		if err != nil {
			return 0, errors.NewPersistenceError("failed to sum deliveries", err)
		}
		return value, nil
	case database.MetricMeetingsHeld:
		value, err := s.store.SumMeetings(goal.OwnerID, goal.StartDate, windowEnd)
		if err != nil {
			return 0, errors.NewPersistenceError("failed to sum meetings", err)
		}
		return value, nil
	case database.MetricAvgSatisfaction:
		value, err := s.store.AvgSatisfactionActual(goal.OwnerID, goal.StartDate, windowEnd)
		if err != nil {
			return 0, errors.NewPersistenceError("failed to average satisfaction", err)
		}
		if value == nil {
			return 0, nil
		}
		return *value, nil
	case database.MetricPerformanceScore:
		value, err := s.store.AvgSnapshotScore(goal.OwnerID, goal.StartDate, windowEnd)
		if err != nil {
			return 0, errors.NewPersistenceError("failed to average performance score", err)
		}
		if value == nil {
			return 0, nil
		}
		return *value, nil
	default:
		return 0, errors.NewValidationError(fmt.Sprintf("unknown metric %q", goal.Metric))
	}
}
