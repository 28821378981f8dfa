package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vanguardia360/performance-engine/internal/database"
	"github.com/vanguardia360/performance-engine/internal/errors"
	"github.com/vanguardia360/performance-engine/internal/goals"
	"github.com/vanguardia360/performance-engine/internal/metrics"
	"github.com/vanguardia360/performance-engine/internal/monitoring"
	"github.com/vanguardia360/performance-engine/internal/ranking"
	"github.com/vanguardia360/performance-engine/internal/scoring"
	"github.com/vanguardia360/performance-engine/internal/snapshots"
)

const dateLayout = "2006-01-02"

type server struct {
	db         *database.DB
	metrics    *monitoring.Metrics
	aggregator *metrics.Aggregator
	recorder   *snapshots.Recorder
	ranking    *ranking.Service
	goals      *goals.Service
}

func respondError(c *gin.Context, err error) {
	appErr := errors.ToAppError(err)
	errors.LogError(c, appErr)
	c.JSON(appErr.HTTPStatus, appErr)
}

// parseDateQuery reads an optional YYYY-MM-DD query parameter; the zero time
// means "not provided".
func parseDateQuery(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		respondError(c, errors.NewValidationError(name+" must be formatted as YYYY-MM-DD"))
		return time.Time{}, false
	}
	return parsed, true
}

func (s *server) handleHealth(c *gin.Context) {
	health := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"database":  s.db.GetPoolStats(),
	}

	if err := s.db.Ping(); err != nil {
		health["status"] = "degraded"
		health["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	c.JSON(http.StatusOK, health)
}

// handleScore scores a metric set without persisting anything, so clients
// can preview the effect of hypothetical numbers.
func (s *server) handleScore(c *gin.Context) {
	var metricSet scoring.MetricSet
	if err := c.BindJSON(&metricSet); err != nil {
		s.metrics.IncrementScoringError()
		respondError(c, errors.NewValidationError("invalid metric payload", err.Error()))
		return
	}

	c.JSON(http.StatusOK, scoring.CalculateScore(metricSet))
}

func (s *server) handleOwnerMetrics(c *gin.Context) {
	ownerID := c.Param("id")

	end, ok := parseDateQuery(c, "end")
	if !ok {
		return
	}
	if end.IsZero() {
		end = time.Now()
	}
	start, ok := parseDateQuery(c, "start")
	if !ok {
		return
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -snapshots.DefaultWindowDays)
	}

	metricSet, err := s.aggregator.CalculateMetrics(ownerID, start, end)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"owner_id": ownerID,
		"start":    start.Format(dateLayout),
		"end":      end.Format(dateLayout),
		"metrics":  metricSet,
	})
}

func (s *server) handleRecalculate(c *gin.Context) {
	started := time.Now()
	batch, err := s.recorder.CalculateAllSnapshots()
	s.metrics.RecordSnapshotBatch(len(batch), time.Since(started), err)
	if err != nil {
		respondError(c, err)
		return
	}

	s.ranking.InvalidateCache()

	c.JSON(http.StatusOK, gin.H{
		"owners":    len(batch),
		"snapshots": batch,
	})
}

func (s *server) handleLatestSnapshot(c *gin.Context) {
	asOf, ok := parseDateQuery(c, "date")
	if !ok {
		return
	}

	snapshot, err := s.recorder.Latest(c.Param("id"), asOf)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (s *server) handleSnapshotHistory(c *gin.Context) {
	days := 0
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, errors.NewValidationError("days must be a positive integer"))
			return
		}
		days = parsed
	}

	history, err := s.recorder.History(c.Param("id"), days)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"owner_id":  c.Param("id"),
		"snapshots": history,
	})
}

func (s *server) handleTrend(c *gin.Context) {
	days := 0
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, errors.NewValidationError("days must be a positive integer"))
			return
		}
		days = parsed
	}

	history, err := s.recorder.History(c.Param("id"), days)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"owner_id":  c.Param("id"),
		"trend":     ranking.Trend(history),
		"snapshots": len(history),
	})
}

func (s *server) handleRanking(c *gin.Context) {
	asOf, ok := parseDateQuery(c, "date")
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, errors.NewValidationError("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	response, err := s.ranking.GetRanking(asOf, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (s *server) handleTeamAverages(c *gin.Context) {
	asOf, ok := parseDateQuery(c, "date")
	if !ok {
		return
	}

	averages, err := s.ranking.GetTeamAverages(asOf)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, averages)
}

func (s *server) handleCreateGoal(c *gin.Context) {
	var input goals.GoalInput
	if err := c.BindJSON(&input); err != nil {
		respondError(c, errors.NewValidationError("invalid goal payload", err.Error()))
		return
	}

	goal, err := s.goals.CreateGoal(input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, goal)
}

func (s *server) handleUpdateGoal(c *gin.Context) {
	var input goals.GoalInput
	if err := c.BindJSON(&input); err != nil {
		respondError(c, errors.NewValidationError("invalid goal payload", err.Error()))
		return
	}

	goal, err := s.goals.UpdateGoal(c.Param("id"), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, goal)
}

func (s *server) handleDeleteGoal(c *gin.Context) {
	if err := s.goals.DeleteGoal(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (s *server) handleListGoals(c *gin.Context) {
	var ownerID *string
	if raw := c.Query("owner_id"); raw != "" {
		ownerID = &raw
	}

	list, err := s.goals.ListGoals(ownerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"goals": list})
}

func (s *server) handleGoalProgress(c *gin.Context) {
	progress, err := s.goals.GetGoalProgress(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, progress)
}

// runSnapshotSchedule runs the snapshot batch once per day at the configured
// UTC hour until the context is cancelled.
func (s *server) runSnapshotSchedule(ctx context.Context, hourUTC int) {
	for {
		next := nextRunTime(time.Now().UTC(), hourUTC)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		started := time.Now()
		batch, err := s.recorder.CalculateAllSnapshots()
		s.metrics.RecordSnapshotBatch(len(batch), time.Since(started), err)
		if err != nil {
			slog.Error("Scheduled snapshot batch failed", "error", err)
			continue
		}

		s.ranking.InvalidateCache()
		slog.Info("Scheduled snapshot batch complete", "owners", len(batch))
	}
}

func nextRunTime(now time.Time, hourUTC int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
