package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanguardia360/performance-engine/internal/scoring"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db)
}

func seedOwner(t *testing.T, repo *Repository, name string, active bool) *Owner {
	t.Helper()
	now := time.Now()
	owner := &Owner{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     name + "@vanguardia360.test",
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateOwner(owner))
	return owner
}

func seedCompany(t *testing.T, repo *Repository, ownerID, health string) *Company {
	t.Helper()
	now := time.Now()
	company := &Company{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Name:         "Client " + uuid.New().String()[:8],
		HealthStatus: health,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.CreateCompany(company))
	return company
}

func testMetrics() scoring.MetricSet {
	sat := 8.0
	return scoring.MetricSet{
		DeliveriesCompleted: 5,
		AvgSatisfaction:     &sat,
		TotalCompanies:      3,
		MeetingsHeld:        4,
	}
}

func TestOwnerRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	owner := seedOwner(t, repo, "alice", true)
	seedOwner(t, repo, "bob", false)

	got, err := repo.GetOwner(owner.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Name)

	missing, err := repo.GetOwner("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	active, err := repo.ActiveOwners()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, owner.ID, active[0].ID)
}

func TestDeliveryAggregates(t *testing.T) {
	repo := newTestRepo(t)
	owner := seedOwner(t, repo, "alice", true)
	company := seedCompany(t, repo, owner.ID, HealthHealthy)

	now := time.Now()
	start := now.AddDate(0, 0, -30)

	// Two completed in the window, one pending, one completed long ago.
	for _, age := range []int{3, 10} {
		created := now.AddDate(0, 0, -age-2)
		firstAction := created.Add(12 * time.Hour)
		completed := now.AddDate(0, 0, -age)
		require.NoError(t, repo.CreateDelivery(&Delivery{
			ID: uuid.New().String(), OwnerID: owner.ID, CompanyID: company.ID,
			Title: "Work", Status: DeliveryCompleted,
			CreatedAt: created, FirstActionAt: &firstAction, CompletedAt: &completed,
		}))
	}
	require.NoError(t, repo.CreateDelivery(&Delivery{
		ID: uuid.New().String(), OwnerID: owner.ID, CompanyID: company.ID,
		Title: "Open", Status: DeliveryPending, CreatedAt: now.AddDate(0, 0, -1),
	}))
	oldCompleted := now.AddDate(0, 0, -60)
	require.NoError(t, repo.CreateDelivery(&Delivery{
		ID: uuid.New().String(), OwnerID: owner.ID, CompanyID: company.ID,
		Title: "Old", Status: DeliveryCompleted,
		CreatedAt: now.AddDate(0, 0, -62), CompletedAt: &oldCompleted,
	}))

	count, err := repo.CountCompletedDeliveries(owner.ID, start, now)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	avg, err := repo.AvgResponseHours(owner.ID, start, now)
	require.NoError(t, err)
	require.NotNil(t, avg)
	assert.InDelta(t, 12.0, *avg, 0.1)
}

func TestAvgResponseHoursNoData(t *testing.T) {
	repo := newTestRepo(t)
	owner := seedOwner(t, repo, "alice", true)

	avg, err := repo.AvgResponseHours(owner.ID, time.Now().AddDate(0, 0, -30), time.Now())
	require.NoError(t, err)
	assert.Nil(t, avg)
}

func TestSurveyAndHealthAggregates(t *testing.T) {
	repo := newTestRepo(t)
	owner := seedOwner(t, repo, "alice", true)
	healthy := seedCompany(t, repo, owner.ID, HealthHealthy)
	seedCompany(t, repo, owner.ID, HealthAtRisk)
	seedCompany(t, repo, owner.ID, HealthChurned)

	now := time.Now()
	for _, score := range []float64{7, 9} {
		done := now.AddDate(0, 0, -5)
		require.NoError(t, repo.CreateSurvey(&Survey{
			ID: uuid.New().String(), OwnerID: owner.ID, CompanyID: healthy.ID,
			Score: score, Status: "completed", CompletedAt: &done,
		}))
	}

	avg, err := repo.AvgSurveyScore(owner.ID, now.AddDate(0, 0, -30), now)
	require.NoError(t, err)
	require.NotNil(t, avg)
	assert.InDelta(t, 8.0, *avg, 1e-9)

	atRisk, total, err := repo.CompanyHealthCounts(owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, atRisk)
	assert.Equal(t, 3, total)
}

func TestCountMeetings(t *testing.T) {
	repo := newTestRepo(t)
	owner := seedOwner(t, repo, "alice", true)
	company := seedCompany(t, repo, owner.ID, HealthHealthy)

	now := time.Now()
	for _, status := range []string{BookingScheduled, BookingCompleted, BookingCancelled} {
		require.NoError(t, repo.CreateBooking(&Booking{
			ID: uuid.New().String(), OwnerID: owner.ID, CompanyID: company.ID,
			Status: status, ScheduledAt: now.AddDate(0, 0, -2),
		}))
	}

	count, err := repo.CountMeetings(owner.ID, now.AddDate(0, 0, -30), now)
	require.NoError(t, err)
	// Cancelled bookings do not count as held meetings.
	assert.Equal(t, 2, count)
}

func TestUpsertSnapshotIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	owner := seedOwner(t, repo, "alice", true)
	day := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	first := NewSnapshot(owner.ID, day, testMetrics(), map[string]float64{"satisfaction": 80}, 75.5)
	require.NoError(t, repo.UpsertSnapshot(first))
	require.NoError(t, repo.UpdateSnapshotRanking(owner.ID, day, 1))

	// Same calendar day at a different clock time must overwrite, not insert,
	// and clear the stale ranking.
	second := NewSnapshot(owner.ID, day.Add(3*time.Hour), testMetrics(), map[string]float64{"satisfaction": 90}, 82.0)
	require.NoError(t, repo.UpsertSnapshot(second))

	latest, err := repo.LatestSnapshot(owner.ID, day)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 82.0, latest.Score)
	assert.Nil(t, latest.Ranking)

	history, err := repo.SnapshotHistory(owner.ID, 365)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLatestSnapshotAsOf(t *testing.T) {
	repo := newTestRepo(t)
	owner := seedOwner(t, repo, "alice", true)

	for day := 1; day <= 3; day++ {
		date := time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC)
		snap := NewSnapshot(owner.ID, date, testMetrics(), nil, float64(day*10))
		require.NoError(t, repo.UpsertSnapshot(snap))
	}

	latest, err := repo.LatestSnapshot(owner.ID, time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 20.0, latest.Score)

	none, err := repo.LatestSnapshot(owner.ID, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestLatestSnapshotsPerOwner(t *testing.T) {
	repo := newTestRepo(t)
	alice := seedOwner(t, repo, "alice", true)
	bob := seedOwner(t, repo, "bob", true)

	march9 := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	march10 := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertSnapshot(NewSnapshot(alice.ID, march9, testMetrics(), nil, 60)))
	require.NoError(t, repo.UpsertSnapshot(NewSnapshot(alice.ID, march10, testMetrics(), nil, 70)))
	// Bob missed the March 10 batch; his March 9 snapshot still ranks.
	require.NoError(t, repo.UpsertSnapshot(NewSnapshot(bob.ID, march9, testMetrics(), nil, 90)))

	snapshots, err := repo.LatestSnapshotsPerOwner(march10)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)

	assert.Equal(t, bob.ID, snapshots[0].OwnerID)
	assert.Equal(t, 90.0, snapshots[0].Score)
	assert.Equal(t, alice.ID, snapshots[1].OwnerID)
	assert.Equal(t, 70.0, snapshots[1].Score)
}

func TestGoalCRUD(t *testing.T) {
	repo := newTestRepo(t)
	owner := seedOwner(t, repo, "alice", true)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	personal := NewGoal(&owner.ID, MetricDeliveriesCompleted, 10, PeriodMonthly, start, end)
	team := NewGoal(nil, MetricPerformanceScore, 80, PeriodMonthly, start, end)
	require.NoError(t, repo.CreateGoal(personal))
	require.NoError(t, repo.CreateGoal(team))

	got, err := repo.GetGoal(personal.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, owner.ID, *got.OwnerID)
	assert.Equal(t, start.Format("2006-01-02"), got.StartDate.Format("2006-01-02"))

	gotTeam, err := repo.GetGoal(team.ID)
	require.NoError(t, err)
	require.NotNil(t, gotTeam)
	assert.Nil(t, gotTeam.OwnerID)

	// Owner-scoped listing includes team goals.
	list, err := repo.ListGoals(&owner.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	all, err := repo.ListGoals(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	personal.TargetValue = 12
	updated, err := repo.UpdateGoal(personal)
	require.NoError(t, err)
	assert.True(t, updated)

	got, err = repo.GetGoal(personal.ID)
	require.NoError(t, err)
	assert.Equal(t, 12.0, got.TargetValue)

	deleted, err := repo.DeleteGoal(personal.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteGoal(personal.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestUpdateGoalReassignsOwner(t *testing.T) {
	repo := newTestRepo(t)
	alice := seedOwner(t, repo, "alice", true)
	bob := seedOwner(t, repo, "bob", true)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	goal := NewGoal(&alice.ID, MetricDeliveriesCompleted, 10, PeriodMonthly, start, end)
	require.NoError(t, repo.CreateGoal(goal))

	goal.OwnerID = &bob.ID
	updated, err := repo.UpdateGoal(goal)
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := repo.GetGoal(goal.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, bob.ID, *got.OwnerID)

	// Reassigning to team-wide clears the owner.
	goal.OwnerID = nil
	updated, err = repo.UpdateGoal(goal)
	require.NoError(t, err)
	assert.True(t, updated)

	got, err = repo.GetGoal(goal.ID)
	require.NoError(t, err)
	assert.Nil(t, got.OwnerID)
}

func TestGoalActualAggregates(t *testing.T) {
	repo := newTestRepo(t)
	alice := seedOwner(t, repo, "alice", true)
	bob := seedOwner(t, repo, "bob", true)
	company := seedCompany(t, repo, alice.ID, HealthHealthy)

	now := time.Now()
	start := now.AddDate(0, 0, -10)

	for i := 0; i < 3; i++ {
		completed := now.AddDate(0, 0, -2)
		require.NoError(t, repo.CreateDelivery(&Delivery{
			ID: uuid.New().String(), OwnerID: alice.ID, CompanyID: company.ID,
			Title: "Work", Status: DeliveryCompleted,
			CreatedAt: now.AddDate(0, 0, -4), CompletedAt: &completed,
		}))
	}

	sum, err := repo.SumDeliveriesCompleted(&alice.ID, start, now)
	require.NoError(t, err)
	assert.Equal(t, 3.0, sum)

	// Team-wide sum spans owners.
	bobCompany := seedCompany(t, repo, bob.ID, HealthHealthy)
	completed := now.AddDate(0, 0, -1)
	require.NoError(t, repo.CreateDelivery(&Delivery{
		ID: uuid.New().String(), OwnerID: bob.ID, CompanyID: bobCompany.ID,
		Title: "Work", Status: DeliveryCompleted,
		CreatedAt: now.AddDate(0, 0, -3), CompletedAt: &completed,
	}))

	teamSum, err := repo.SumDeliveriesCompleted(nil, start, now)
	require.NoError(t, err)
	assert.Equal(t, 4.0, teamSum)

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertSnapshot(NewSnapshot(alice.ID, day, testMetrics(), nil, 70)))
	require.NoError(t, repo.UpsertSnapshot(NewSnapshot(bob.ID, day, testMetrics(), nil, 90)))

	avgScore, err := repo.AvgSnapshotScore(nil, start, now)
	require.NoError(t, err)
	require.NotNil(t, avgScore)
	assert.InDelta(t, 80.0, *avgScore, 1e-9)

	aliceScore, err := repo.AvgSnapshotScore(&alice.ID, start, now)
	require.NoError(t, err)
	require.NotNil(t, aliceScore)
	assert.InDelta(t, 70.0, *aliceScore, 1e-9)
}
