package ranking

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanguardia360/performance-engine/internal/database"
	apperrors "github.com/vanguardia360/performance-engine/internal/errors"
)

type stubStore struct {
	snapshots []database.PerformanceSnapshot
	err       error
	calls     int
}

func (s *stubStore) LatestSnapshotsPerOwner(asOf time.Time) ([]database.PerformanceSnapshot, error) {
	s.calls++
	return s.snapshots, s.err
}

func snap(ownerID string, score float64) database.PerformanceSnapshot {
	return database.PerformanceSnapshot{
		OwnerID:   ownerID,
		Score:     score,
		SubScores: map[string]float64{"satisfaction": score},
		Date:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestDenseRanks(t *testing.T) {
	tests := []struct {
		name      string
		scores    []float64
		wantRanks []int
	}{
		{
			name:      "distinct scores",
			scores:    []float64{95, 80, 60},
			wantRanks: []int{1, 2, 3},
		},
		{
			name:      "tie shares rank and next is dense",
			scores:    []float64{90, 90, 80},
			wantRanks: []int{1, 1, 2},
		},
		{
			name:      "all tied",
			scores:    []float64{75, 75, 75},
			wantRanks: []int{1, 1, 1},
		},
		{
			name:      "single entry",
			scores:    []float64{50},
			wantRanks: []int{1},
		},
		{
			name:      "empty",
			scores:    nil,
			wantRanks: []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshots := make([]database.PerformanceSnapshot, len(tt.scores))
			for i, score := range tt.scores {
				snapshots[i] = snap("owner", score)
			}
			assert.Equal(t, tt.wantRanks, DenseRanks(snapshots))
		})
	}
}

func TestGetRanking(t *testing.T) {
	store := &stubStore{snapshots: []database.PerformanceSnapshot{
		snap("alice", 90),
		snap("bob", 90),
		snap("carol", 80),
	}}
	svc := NewService(store)

	response, err := svc.GetRanking(time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, response.Entries, 3)

	assert.Equal(t, 1, response.Entries[0].Rank)
	assert.Equal(t, 1, response.Entries[1].Rank)
	assert.Equal(t, 2, response.Entries[2].Rank)
	assert.Equal(t, "carol", response.Entries[2].OwnerID)
	assert.Equal(t, 3, response.Total)
}

func TestGetRankingLimits(t *testing.T) {
	snapshots := make([]database.PerformanceSnapshot, 120)
	for i := range snapshots {
		snapshots[i] = snap("owner", float64(120-i))
	}
	store := &stubStore{snapshots: snapshots}
	svc := NewService(store)

	response, err := svc.GetRanking(time.Time{}, 2)
	require.NoError(t, err)
	assert.Len(t, response.Entries, 2)
	assert.Equal(t, 120, response.Total)

	svc.InvalidateCache()

	response, err = svc.GetRanking(time.Time{}, 500)
	require.NoError(t, err)
	assert.Len(t, response.Entries, maxLimit)
}

func TestGetRankingCaches(t *testing.T) {
	store := &stubStore{snapshots: []database.PerformanceSnapshot{snap("alice", 90)}}
	svc := NewService(store)
	asOf := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := svc.GetRanking(asOf, 10)
	require.NoError(t, err)
	_, err = svc.GetRanking(asOf, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, store.calls)

	svc.InvalidateCache()
	_, err = svc.GetRanking(asOf, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestGetRankingStoreFailure(t *testing.T) {
	store := &stubStore{err: errors.New("disk full")}
	svc := NewService(store)

	_, err := svc.GetRanking(time.Time{}, 0)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CategoryPersistence, appErr.Category)
}

func TestGetTeamAverages(t *testing.T) {
	store := &stubStore{snapshots: []database.PerformanceSnapshot{
		{OwnerID: "alice", Score: 90, SubScores: map[string]float64{"satisfaction": 90, "throughput": 80}},
		{OwnerID: "bob", Score: 70, SubScores: map[string]float64{"satisfaction": 60}},
	}}
	svc := NewService(store)

	averages, err := svc.GetTeamAverages(time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 2, averages.Owners)
	assert.InDelta(t, 80.0, averages.AvgScore, 1e-9)
	assert.InDelta(t, 75.0, averages.AvgSubScores["satisfaction"], 1e-9)
	// Averaged only over the owners that have the sub-score.
	assert.InDelta(t, 80.0, averages.AvgSubScores["throughput"], 1e-9)
}

func TestGetTeamAveragesEmpty(t *testing.T) {
	svc := NewService(&stubStore{})

	averages, err := svc.GetTeamAverages(time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 0, averages.Owners)
	assert.Zero(t, averages.AvgScore)
	assert.Empty(t, averages.AvgSubScores)
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   string
	}{
		{"small gain inside deadband", []float64{70, 72}, "flat"},
		{"clear improvement", []float64{70, 85}, "up"},
		{"clear decline", []float64{85, 70}, "down"},
		{"exactly at deadband", []float64{70, 73}, "flat"},
		{"single snapshot", []float64{70}, "flat"},
		{"no history", nil, "flat"},
		{"uses last two only", []float64{10, 90, 88}, "flat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := make([]database.PerformanceSnapshot, len(tt.scores))
			for i, score := range tt.scores {
				history[i] = snap("owner", score)
			}
			assert.Equal(t, tt.want, Trend(history))
		})
	}
}
