package ranking

import (
	"log/slog"
	"time"

	"github.com/vanguardia360/performance-engine/internal/database"
	"github.com/vanguardia360/performance-engine/internal/errors"
)

// TrendDeadband is the minimum score movement between two consecutive
// snapshots before a trend is called; smaller deltas read as noise.
const TrendDeadband = 3.0

// Default and maximum entry limits for ranking queries.
const (
	defaultLimit = 50
	maxLimit     = 100
)

// RankedEntry is one owner's position in the ranking.
type RankedEntry struct {
	OwnerID   string             `json:"owner_id"`
	Rank      int                `json:"rank"`
	Score     float64            `json:"score"`
	SubScores map[string]float64 `json:"sub_scores"`
	Date      time.Time          `json:"date"`
}

// RankingResponse is the result of a ranking query.
type RankingResponse struct {
	Entries []RankedEntry `json:"entries"`
	Total   int           `json:"total"`
	AsOf    time.Time     `json:"as_of"`
}

// TeamAverages holds the team-wide mean composite and per-sub-score means
// over the latest snapshot per owner.
type TeamAverages struct {
	AvgScore     float64            `json:"avg_score"`
	AvgSubScores map[string]float64 `json:"avg_sub_scores"`
	Owners       int                `json:"owners"`
}

// Store is the slice of the record store the ranking engine reads.
type Store interface {
	LatestSnapshotsPerOwner(asOf time.Time) ([]database.PerformanceSnapshot, error)
}

// Service handles ranking operations over the latest snapshot per owner.
type Service struct {
	store Store
	cache *rankingCache
	now   func() time.Time
}

// NewService creates a new ranking service.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		cache: newRankingCache(5 * time.Minute),
		now:   time.Now,
	}
}

// DenseRanks assigns 1-based dense ranks to snapshots already sorted by
// descending score: ties share a rank and the next distinct score's rank is
// exactly one more.
func DenseRanks(snapshots []database.PerformanceSnapshot) []int {
	ranks := make([]int, len(snapshots))
	rank := 0
	var prevScore float64
	for i, s := range snapshots {
		if i == 0 || s.Score != prevScore {
			rank++
			prevScore = s.Score
		}
		ranks[i] = rank
	}
	return ranks
}

// GetRanking orders all owners' latest snapshots as of the reference date
// (zero value = now) descending by score and assigns dense ranks.
func (s *Service) GetRanking(asOf time.Time, limit int) (*RankingResponse, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	if cached, found := s.cache.getRanking(asOf, limit); found {
		return cached, nil
	}

	snapshots, err := s.store.LatestSnapshotsPerOwner(asOf)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to load latest snapshots", err)
	}

	ranks := DenseRanks(snapshots)

	entries := make([]RankedEntry, 0, min(limit, len(snapshots)))
	for i, snap := range snapshots {
		if i >= limit {
			break
		}
		entries = append(entries, RankedEntry{
			OwnerID:   snap.OwnerID,
			Rank:      ranks[i],
			Score:     snap.Score,
			SubScores: snap.SubScores,
			Date:      snap.Date,
		})
	}

	response := &RankingResponse{
		Entries: entries,
		Total:   len(snapshots),
		AsOf:    asOf,
	}

	s.cache.setRanking(asOf, limit, response)

	return response, nil
}

// GetTeamAverages computes the mean composite score and mean per-sub-score
// over the same latest-snapshot-per-owner set the ranking uses.
func (s *Service) GetTeamAverages(asOf time.Time) (*TeamAverages, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}

	if cached, found := s.cache.getAverages(asOf); found {
		return cached, nil
	}

	snapshots, err := s.store.LatestSnapshotsPerOwner(asOf)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to load latest snapshots", err)
	}

	averages := &TeamAverages{
		AvgSubScores: make(map[string]float64),
		Owners:       len(snapshots),
	}
	if len(snapshots) == 0 {
		return averages, nil
	}

	var scoreSum float64
	subSums := make(map[string]float64)
	subCounts := make(map[string]int)
	for _, snap := range snapshots {
		scoreSum += snap.Score
		for name, value := range snap.SubScores {
			subSums[name] += value
			subCounts[name]++
		}
	}

	averages.AvgScore = scoreSum / float64(len(snapshots))
	for name, sum := range subSums {
		averages.AvgSubScores[name] = sum / float64(subCounts[name])
	}

	s.cache.setAverages(asOf, averages)

	slog.Debug("Computed team averages", "owners", averages.Owners, "avg_score", averages.AvgScore)

	return averages, nil
}

// Trend compares the two most recent snapshots in history (ordered oldest
// first) and reports "up", "down", or "flat". Movements inside the deadband
// read as flat so day-to-day noise does not flap the indicator.
func Trend(history []database.PerformanceSnapshot) string {
	if len(history) < 2 {
		return "flat"
	}

	latest := history[len(history)-1].Score
	previous := history[len(history)-2].Score
	delta := latest - previous

	switch {
	case delta > TrendDeadband:
		return "up"
	case delta < -TrendDeadband:
		return "down"
	default:
		return "flat"
	}
}

// InvalidateCache drops cached ranking data; called after a snapshot batch
// rewrites the day's scores.
func (s *Service) InvalidateCache() {
	s.cache.invalidateAll()
}

// GetCacheStats returns ranking cache statistics
func (s *Service) GetCacheStats() map[string]interface{} {
	return s.cache.stats()
}
