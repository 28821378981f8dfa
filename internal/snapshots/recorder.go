package snapshots

import (
	"log/slog"
	"sort"
	"time"

	"github.com/vanguardia360/performance-engine/internal/database"
	"github.com/vanguardia360/performance-engine/internal/errors"
	"github.com/vanguardia360/performance-engine/internal/ranking"
	"github.com/vanguardia360/performance-engine/internal/scoring"
)

// DefaultWindowDays is the trailing window the daily batch aggregates over.
const DefaultWindowDays = 30

// History query bounds.
const (
	defaultHistoryDays = 30
	maxHistoryDays     = 365
)

// MetricsCalculator aggregates raw activity into a metric set for one owner.
type MetricsCalculator interface {
	CalculateMetrics(ownerID string, start, end time.Time) (*scoring.MetricSet, error)
}

// Store is the slice of the record store the recorder needs.
type Store interface {
	ActiveOwners() ([]database.Owner, error)
	UpsertSnapshot(s *database.PerformanceSnapshot) error
	UpdateSnapshotRanking(ownerID string, date time.Time, ranking int) error
	LatestSnapshot(ownerID string, asOf time.Time) (*database.PerformanceSnapshot, error)
	SnapshotHistory(ownerID string, days int) ([]database.PerformanceSnapshot, error)
}

// Recorder materializes daily performance snapshots for every active owner.
type Recorder struct {
	store      Store
	calculator MetricsCalculator
	windowDays int
	now        func() time.Time
}

// NewRecorder creates a recorder aggregating over a trailing window of
// windowDays days (DefaultWindowDays when non-positive).
func NewRecorder(store Store, calculator MetricsCalculator, windowDays int) *Recorder {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Recorder{
		store:      store,
		calculator: calculator,
		windowDays: windowDays,
		now:        time.Now,
	}
}

// CalculateAllSnapshots runs the daily batch: for every active owner it
// aggregates the trailing window, scores it, and upserts today's snapshot.
// Re-running on the same day overwrites rather than duplicates. The batch
// stops at the first persistence failure so a partially ranked day is never
// published; afterwards dense rankings are written back and the snapshots
// returned ordered best first.
func (r *Recorder) CalculateAllSnapshots() ([]database.PerformanceSnapshot, error) {
	started := r.now()
	// Snapshots are keyed by calendar day in UTC; truncate up front so the
	// batch response carries the same date the store will read back.
	date := started.UTC().Truncate(24 * time.Hour)
	windowStart := date.AddDate(0, 0, -r.windowDays)

	owners, err := r.store.ActiveOwners()
	if err != nil {
		return nil, errors.NewPersistenceError("failed to list active owners", err)
	}

	snapshots := make([]database.PerformanceSnapshot, 0, len(owners))
	for _, owner := range owners {
		metricSet, err := r.calculator.CalculateMetrics(owner.ID, windowStart, date)
		if err != nil {
			return nil, errors.WrapError(err, "failed to aggregate metrics for owner "+owner.ID)
		}

		breakdown := scoring.CalculateScore(*metricSet)
		snapshot := database.NewSnapshot(owner.ID, date, *metricSet, breakdown.SubScores, breakdown.Score)
		if err := r.store.UpsertSnapshot(snapshot); err != nil {
			return nil, errors.WrapError(err, "failed to persist snapshot for owner "+owner.ID)
		}
		snapshots = append(snapshots, *snapshot)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].Score != snapshots[j].Score {
			return snapshots[i].Score > snapshots[j].Score
		}
		return snapshots[i].OwnerID < snapshots[j].OwnerID
	})

	ranks := ranking.DenseRanks(snapshots)
	for i := range snapshots {
		if err := r.store.UpdateSnapshotRanking(snapshots[i].OwnerID, snapshots[i].Date, ranks[i]); err != nil {
			return nil, errors.WrapError(err, "failed to write ranking for owner "+snapshots[i].OwnerID)
		}
		rank := ranks[i]
		snapshots[i].Ranking = &rank
	}

	slog.Info("Snapshot batch complete",
		"owners", len(snapshots),
		"window_days", r.windowDays,
		"duration_ms", time.Since(started).Milliseconds())

	return snapshots, nil
}

// Latest returns the owner's most recent snapshot on or before asOf
// (zero value = now).
func (r *Recorder) Latest(ownerID string, asOf time.Time) (*database.PerformanceSnapshot, error) {
	if ownerID == "" {
		return nil, errors.NewValidationError("owner id is required")
	}
	if asOf.IsZero() {
		asOf = r.now()
	}

	snapshot, err := r.store.LatestSnapshot(ownerID, asOf)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to load latest snapshot", err)
	}
	if snapshot == nil {
		return nil, errors.NewNotFoundError("snapshot", ownerID)
	}
	return snapshot, nil
}

// History returns the owner's snapshots over the past days, oldest first.
func (r *Recorder) History(ownerID string, days int) ([]database.PerformanceSnapshot, error) {
	if ownerID == "" {
		return nil, errors.NewValidationError("owner id is required")
	}
	if days <= 0 {
		days = defaultHistoryDays
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}

	history, err := r.store.SnapshotHistory(ownerID, days)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to load snapshot history", err)
	}
	return history, nil
}
