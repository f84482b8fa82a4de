package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/webhooks/model"
)

func newTestSweeper(t *testing.T, subs *memSubscriptionRepo, logs *memLogRepo, pool *DeliveryPool) *RetrySweeper {
	t.Helper()
	worker := newTestWorker(t, subs, logs)
	sweeper, err := NewRetrySweeper(
		WithRetrySweeperRepositories(subs, logs),
		WithRetrySweeperWorker(worker),
		WithRetrySweeperPool(pool),
		WithRetrySweeperLogger(&NoopLogger{}),
	)
	require.NoError(t, err)
	return sweeper
}

// seedDueRetry persists a RETRYING delivery log whose backoff has elapsed.
func seedDueRetry(t *testing.T, logs *memLogRepo, subscriptionID int64, eventID string) *model.DeliveryLog {
	t.Helper()
	log := model.NewDeliveryLog(subscriptionID, eventID, model.EventCandidateCreated, `{"id":"`+eventID+`"}`, 5)
	created, err := logs.Create(context.Background(), &log)
	require.NoError(t, err)
	created.ScheduleRetry(http.StatusInternalServerError, "received status 500", -time.Minute)
	require.NoError(t, logs.Update(context.Background(), created))
	return created
}

func TestNewRetrySweeper_RequiresDependencies(t *testing.T) {
	_, err := NewRetrySweeper()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SubscriptionRepository is required")
}

func TestRetrySweeper_SweepOnce_DeliversDueRetry(t *testing.T) {
	subs := newMemSubscriptionRepo()
	logs := newMemLogRepo()
	pool := NewDeliveryPool(2, 10)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := seedSubscription(t, subs, server.URL)
	seedDueRetry(t, logs, sub.ID, "evt-due")

	sweeper := newTestSweeper(t, subs, logs, pool)

	scheduled, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)

	pool.Close()

	stored, ok := logs.byEventID("evt-due")
	require.True(t, ok)
	assert.Equal(t, model.DeliveryStatusDelivered, stored.Status)
	assert.False(t, stored.ClaimedAt.Valid)
}

func TestRetrySweeper_SweepOnce_EmptyScanIsNoOp(t *testing.T) {
	subs := newMemSubscriptionRepo()
	logs := newMemLogRepo()
	pool := NewDeliveryPool(1, 1)
	defer pool.Close()

	sweeper := newTestSweeper(t, subs, logs, pool)

	scheduled, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, scheduled)
}

func TestRetrySweeper_SweepOnce_FutureRetriesNotPickedUp(t *testing.T) {
	subs := newMemSubscriptionRepo()
	logs := newMemLogRepo()
	pool := NewDeliveryPool(1, 1)
	defer pool.Close()

	sub := seedSubscription(t, subs, "http://localhost:1/hook")

	log := model.NewDeliveryLog(sub.ID, "evt-future", model.EventCandidateCreated, `{}`, 5)
	created, err := logs.Create(context.Background(), &log)
	require.NoError(t, err)
	created.ScheduleRetry(http.StatusInternalServerError, "received status 500", time.Hour)
	require.NoError(t, logs.Update(context.Background(), created))

	sweeper := newTestSweeper(t, subs, logs, pool)

	scheduled, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, scheduled)
}

func TestRetrySweeper_SweepOnce_SkipsClaimedRows(t *testing.T) {
	subs := newMemSubscriptionRepo()
	logs := newMemLogRepo()
	pool := NewDeliveryPool(1, 1)
	defer pool.Close()

	sub := seedSubscription(t, subs, "http://localhost:1/hook")
	due := seedDueRetry(t, logs, sub.ID, "evt-claimed")

	// Another sweeper instance got here first.
	claimed, err := logs.Claim(context.Background(), due.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	sweeper := newTestSweeper(t, subs, logs, pool)

	scheduled, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, scheduled)
}

func TestRetrySweeper_SweepOnce_OrphanedLogMarkedFailed(t *testing.T) {
	subs := newMemSubscriptionRepo()
	logs := newMemLogRepo()
	pool := NewDeliveryPool(1, 1)
	defer pool.Close()

	// Subscription id 99 does not exist.
	seedDueRetry(t, logs, 99, "evt-orphan")

	sweeper := newTestSweeper(t, subs, logs, pool)

	scheduled, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, scheduled)

	stored, ok := logs.byEventID("evt-orphan")
	require.True(t, ok)
	assert.Equal(t, model.DeliveryStatusFailed, stored.Status)
	assert.Equal(t, "subscription no longer exists", stored.ErrorMessage.String)
}

func TestRetrySweeper_SweepOnce_InactiveSubscriptionReleasesClaim(t *testing.T) {
	subs := newMemSubscriptionRepo()
	logs := newMemLogRepo()
	pool := NewDeliveryPool(1, 1)
	defer pool.Close()

	sub := seedSubscription(t, subs, "http://localhost:1/hook")
	sub.Active = false
	sub, err := subs.Save(context.Background(), sub)
	require.NoError(t, err)

	seedDueRetry(t, logs, sub.ID, "evt-paused")

	sweeper := newTestSweeper(t, subs, logs, pool)

	scheduled, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, scheduled)

	// Row stays RETRYING and unclaimed so it can run once reactivated.
	stored, ok := logs.byEventID("evt-paused")
	require.True(t, ok)
	assert.Equal(t, model.DeliveryStatusRetrying, stored.Status)
	assert.False(t, stored.ClaimedAt.Valid)
}

func TestRetrySweeper_TransientUpdateFailureReleasesClaim(t *testing.T) {
	subs := newMemSubscriptionRepo()
	logs := &failingUpdateLogRepo{memLogRepo: newMemLogRepo(), updateFailures: 1}
	pool := NewDeliveryPool(1, 5)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	sub := seedSubscription(t, subs, server.URL)
	seedDueRetry(t, logs.memLogRepo, sub.ID, "evt-transient")

	worker, err := NewDeliveryWorker(
		WithDeliveryWorkerRepositories(subs, logs),
		WithDeliveryWorkerLogger(&NoopLogger{}),
	)
	require.NoError(t, err)

	sweeper, err := NewRetrySweeper(
		WithRetrySweeperRepositories(subs, logs),
		WithRetrySweeperWorker(worker),
		WithRetrySweeperPool(pool),
		WithRetrySweeperLogger(&NoopLogger{}),
	)
	require.NoError(t, err)

	// First sweep: the row is claimed, the attempt fails, and persisting the
	// retry schedule hits the outage.
	scheduled, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, scheduled)

	drain := make(chan struct{})
	pool.Submit(func() { close(drain) })
	<-drain

	// The claim must have been released so the row stays reachable.
	stored, ok := logs.byEventID("evt-transient")
	require.True(t, ok)
	assert.False(t, stored.ClaimedAt.Valid)
	assert.Equal(t, model.DeliveryStatusRetrying, stored.Status)

	// Second sweep: the outage is over and the row is picked up again.
	scheduled, err = sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)

	pool.Close()

	stored, ok = logs.byEventID("evt-transient")
	require.True(t, ok)
	assert.Equal(t, 3, stored.AttemptNumber)
	assert.False(t, stored.ClaimedAt.Valid)
}

func TestRetrySweeper_BatchSizeValidation(t *testing.T) {
	subs := newMemSubscriptionRepo()
	logs := newMemLogRepo()
	pool := NewDeliveryPool(1, 1)
	defer pool.Close()
	worker := newTestWorker(t, subs, logs)

	_, err := NewRetrySweeper(
		WithRetrySweeperRepositories(subs, logs),
		WithRetrySweeperWorker(worker),
		WithRetrySweeperPool(pool),
		WithRetrySweeperLogger(&NoopLogger{}),
		WithRetrySweeperBatchSize(0),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch size must be > 0")
}

func TestRetentionSweeper_SweepOnce_PurgesOldLogs(t *testing.T) {
	logs := newMemLogRepo()

	old := model.NewDeliveryLog(1, "evt-old", model.EventCandidateCreated, `{}`, 3)
	created, err := logs.Create(context.Background(), &old)
	require.NoError(t, err)
	created.CreatedAt = time.Now().Add(-40 * 24 * time.Hour)
	require.NoError(t, logs.Update(context.Background(), created))

	recent := model.NewDeliveryLog(1, "evt-recent", model.EventCandidateCreated, `{}`, 3)
	_, err = logs.Create(context.Background(), &recent)
	require.NoError(t, err)

	sweeper, err := NewRetentionSweeper(logs, &NoopLogger{}, 30*24*time.Hour)
	require.NoError(t, err)

	deleted, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, ok := logs.byEventID("evt-old")
	assert.False(t, ok)
	_, ok = logs.byEventID("evt-recent")
	assert.True(t, ok)
}

func TestNewRetentionSweeper_Validation(t *testing.T) {
	_, err := NewRetentionSweeper(nil, &NoopLogger{}, time.Hour)
	require.Error(t, err)

	_, err = NewRetentionSweeper(newMemLogRepo(), nil, time.Hour)
	require.Error(t, err)

	// Non-positive retention falls back to the default.
	sweeper, err := NewRetentionSweeper(newMemLogRepo(), &NoopLogger{}, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultRetentionPeriod, sweeper.retention)
}
