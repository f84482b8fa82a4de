package relica

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coregx/relica"
	"github.com/coregx/webhooks"
	"github.com/coregx/webhooks/model"
)

// DeliveryLogRepository implements webhooks.DeliveryLogRepository using Relica.
//
// The claim compare-and-set and the retention delete go through the
// underlying *sql.DB directly: both need their condition evaluated inside a
// single statement, and the claim additionally needs the affected row count.
type DeliveryLogRepository struct {
	db          *relica.DB
	sqlDB       *sql.DB
	driverName  string
	tablePrefix string
}

// NewDeliveryLogRepository creates a new DeliveryLogRepository with default table prefix.
func NewDeliveryLogRepository(sqlDB *sql.DB, driverName string) *DeliveryLogRepository {
	return NewDeliveryLogRepositoryWithPrefix(sqlDB, driverName, "webhook_")
}

// NewDeliveryLogRepositoryWithPrefix creates a new DeliveryLogRepository with custom table prefix.
func NewDeliveryLogRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *DeliveryLogRepository {
	return &DeliveryLogRepository{
		db:          relica.WrapDB(sqlDB, driverName),
		sqlDB:       sqlDB,
		driverName:  driverName,
		tablePrefix: prefix,
	}
}

func (r *DeliveryLogRepository) tableName() string {
	return r.tablePrefix + "delivery_logs"
}

// Load retrieves a delivery log by ID.
func (r *DeliveryLogRepository) Load(ctx context.Context, id int64) (model.DeliveryLog, error) {
	var log model.DeliveryLog
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&log)
	if errors.Is(err, sql.ErrNoRows) {
		return log, webhooks.ErrNoData
	}
	if err != nil {
		return log, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to load delivery log", err)
	}
	return log, nil
}

// FindByEventID retrieves a delivery log by its event ID.
func (r *DeliveryLogRepository) FindByEventID(ctx context.Context, eventID string) (model.DeliveryLog, error) {
	var log model.DeliveryLog
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("event_id = ?", eventID).One(&log)
	if errors.Is(err, sql.ErrNoRows) {
		return log, webhooks.ErrNoData
	}
	if err != nil {
		return log, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to find delivery log by event id", err)
	}
	return log, nil
}

// Create inserts a new delivery log. The unique index on event_id makes this
// an atomic check-and-insert: a duplicate event ID returns ErrDuplicateEvent.
func (r *DeliveryLogRepository) Create(ctx context.Context, m *model.DeliveryLog) (*model.DeliveryLog, error) {
	err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Insert()
	if err != nil {
		if isUniqueViolation(err) {
			return m, webhooks.ErrDuplicateEvent
		}
		return m, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to insert delivery log", err)
	}
	return m, nil
}

// Update persists the current state of a delivery log and releases any claim.
func (r *DeliveryLogRepository) Update(ctx context.Context, m *model.DeliveryLog) error {
	m.ClaimedAt = sql.NullTime{}
	err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Update()
	if err != nil {
		return webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to update delivery log", err)
	}
	return nil
}

// FindBySubscription retrieves delivery logs for a subscription, newest first.
func (r *DeliveryLogRepository) FindBySubscription(ctx context.Context, subscriptionID int64, limit int) ([]model.DeliveryLog, error) {
	var logs []model.DeliveryLog
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("subscription_id = ?", subscriptionID).
		OrderBy("created_at DESC").
		Limit(int64(limit)).
		All(&logs)
	if err != nil {
		return nil, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to find delivery logs by subscription", err)
	}
	if len(logs) == 0 {
		return nil, webhooks.ErrNoData
	}
	return logs, nil
}

// FindDueRetries retrieves unclaimed RETRYING logs whose next retry time has
// passed and whose pending attempt number is still within the attempt budget.
func (r *DeliveryLogRepository) FindDueRetries(ctx context.Context, limit int) ([]model.DeliveryLog, error) {
	var logs []model.DeliveryLog

	now := time.Now()

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("status = ? AND next_retry_at <= ? AND attempt_number <= max_attempts AND claimed_at IS NULL",
			model.DeliveryStatusRetrying, now).
		OrderBy("next_retry_at ASC").
		Limit(int64(limit)).
		All(&logs)
	if err != nil {
		return nil, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to find due retries", err)
	}
	if len(logs) == 0 {
		return nil, webhooks.ErrNoData
	}
	return logs, nil
}

// Claim marks a delivery log as claimed for processing. The WHERE clause
// requires claimed_at to still be NULL, so of two racing sweeps exactly one
// observes an affected row and wins the claim.
func (r *DeliveryLogRepository) Claim(ctx context.Context, id int64) (bool, error) {
	query := rebind(r.driverName, fmt.Sprintf(
		"UPDATE %s SET claimed_at = ? WHERE id = ? AND claimed_at IS NULL",
		r.tableName()))

	res, err := r.sqlDB.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return false, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to claim delivery log", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to read claim result", err)
	}

	return affected == 1, nil
}

// ReleaseClaim clears the claim marker without touching any other state.
func (r *DeliveryLogRepository) ReleaseClaim(ctx context.Context, id int64) error {
	query := rebind(r.driverName, fmt.Sprintf(
		"UPDATE %s SET claimed_at = NULL WHERE id = ?",
		r.tableName()))

	if _, err := r.sqlDB.ExecContext(ctx, query, id); err != nil {
		return webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to release claim", err)
	}
	return nil
}

// DeleteOlderThan removes delivery logs created before the cutoff.
func (r *DeliveryLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query := rebind(r.driverName, fmt.Sprintf(
		"DELETE FROM %s WHERE created_at < ?",
		r.tableName()))

	res, err := r.sqlDB.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to delete old delivery logs", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to read delete result", err)
	}

	return int(affected), nil
}
