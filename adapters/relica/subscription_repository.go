package relica

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coregx/relica"
	"github.com/coregx/webhooks"
	"github.com/coregx/webhooks/model"
)

// SubscriptionRepository implements webhooks.SubscriptionRepository using Relica.
//
// The relative counter updates (RecordDelivery, RecordFailure) go through the
// underlying *sql.DB directly: they must be computed in SQL to stay lossless
// under concurrent workers.
type SubscriptionRepository struct {
	db          *relica.DB
	sqlDB       *sql.DB
	driverName  string
	tablePrefix string
}

// NewSubscriptionRepository creates a new SubscriptionRepository with default table prefix.
func NewSubscriptionRepository(sqlDB *sql.DB, driverName string) *SubscriptionRepository {
	return NewSubscriptionRepositoryWithPrefix(sqlDB, driverName, "webhook_")
}

// NewSubscriptionRepositoryWithPrefix creates a new SubscriptionRepository with custom table prefix.
func NewSubscriptionRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *SubscriptionRepository {
	return &SubscriptionRepository{
		db:          relica.WrapDB(sqlDB, driverName),
		sqlDB:       sqlDB,
		driverName:  driverName,
		tablePrefix: prefix,
	}
}

func (r *SubscriptionRepository) tableName() string {
	return r.tablePrefix + "subscriptions"
}

// Load retrieves a subscription by ID.
func (r *SubscriptionRepository) Load(ctx context.Context, id int64) (model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&sub)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, webhooks.ErrNoData
	}
	if err != nil {
		return sub, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to load subscription", err)
	}
	return sub, nil
}

// Save creates or updates a subscription.
func (r *SubscriptionRepository) Save(ctx context.Context, m model.Subscription) (model.Subscription, error) {
	m.UpdatedAt = time.Now()
	if m.ID == 0 {
		// Insert using Model() API - auto-populates m.ID
		err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
		if err != nil {
			if isUniqueViolation(err) {
				return m, webhooks.NewErrorWithCause(webhooks.ErrCodeDuplicate, "subscription already exists", err)
			}
			return m, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to insert subscription", err)
		}
		return m, nil
	}
	// Update using Model() API - auto WHERE id = ?
	// The delivery counters and their timestamps are owned by
	// RecordDelivery/RecordFailure; writing this snapshot back would clobber
	// increments applied since the row was loaded.
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).
		Exclude("total_deliveries", "failed_deliveries", "last_delivery_at", "last_failure_at", "created_at").
		Update()
	if err != nil {
		return m, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to update subscription", err)
	}
	return m, nil
}

// Delete removes a subscription.
func (r *SubscriptionRepository) Delete(ctx context.Context, m model.Subscription) error {
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Delete()
	if err != nil {
		return webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to delete subscription", err)
	}
	return nil
}

// FindByEmailAndURL retrieves a subscription by subscriber email and callback URL.
func (r *SubscriptionRepository) FindByEmailAndURL(ctx context.Context, email, callbackURL string) (model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("subscriber_email = ? AND callback_url = ?", email, callbackURL).
		One(&sub)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, webhooks.ErrNoData
	}
	if err != nil {
		return sub, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to find subscription by email and url", err)
	}
	return sub, nil
}

// FindActiveForEvent retrieves active subscriptions matching the event type,
// either exactly or via the wildcard.
func (r *SubscriptionRepository) FindActiveForEvent(ctx context.Context, eventType model.EventType) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("active = ? AND (event_type = ? OR event_type = ?)", true, string(eventType), string(model.EventTypeAll)).
		OrderBy("id ASC").
		All(&subs)
	if err != nil {
		return nil, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to find subscriptions for event", err)
	}
	if len(subs) == 0 {
		return nil, webhooks.ErrNoData
	}
	return subs, nil
}

// List retrieves subscriptions matching the filter criteria. Pagination is
// applied when PageSize > 0; Page is 1-based.
func (r *SubscriptionRepository) List(ctx context.Context, filter webhooks.Filter) ([]model.Subscription, error) {
	var subs []model.Subscription
	q := r.db.WithContext(ctx).Select("*").From(r.tableName())
	if filter.EventType != "" {
		q = q.Where("event_type = ?", filter.EventType)
	}
	if filter.Email != "" {
		q = q.Where("subscriber_email = ?", filter.Email)
	}
	if filter.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	q = q.OrderBy("id ASC")
	if filter.PageSize > 0 {
		q = q.Limit(int64(filter.PageSize))
		if filter.Page > 1 {
			q = q.Offset(int64(filter.Page-1) * int64(filter.PageSize))
		}
	}
	err := q.All(&subs)
	if err != nil {
		return nil, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to list subscriptions", err)
	}
	if len(subs) == 0 {
		return nil, webhooks.ErrNoData
	}
	return subs, nil
}

// RecordDelivery increments the delivery counter and stamps last_delivery_at.
func (r *SubscriptionRepository) RecordDelivery(ctx context.Context, id int64, at time.Time) error {
	query := rebind(r.driverName, fmt.Sprintf(
		"UPDATE %s SET total_deliveries = total_deliveries + 1, last_delivery_at = ? WHERE id = ?",
		r.tableName()))

	if _, err := r.sqlDB.ExecContext(ctx, query, at, id); err != nil {
		return webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to record delivery", err)
	}
	return nil
}

// RecordFailure increments the failure counter and stamps last_failure_at.
func (r *SubscriptionRepository) RecordFailure(ctx context.Context, id int64, at time.Time) error {
	query := rebind(r.driverName, fmt.Sprintf(
		"UPDATE %s SET failed_deliveries = failed_deliveries + 1, last_failure_at = ? WHERE id = ?",
		r.tableName()))

	if _, err := r.sqlDB.ExecContext(ctx, query, at, id); err != nil {
		return webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to record failure", err)
	}
	return nil
}

// rebind converts ? placeholders to $n for PostgreSQL.
func rebind(driverName, query string) string {
	if driverName != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// isUniqueViolation reports whether err is a unique constraint violation,
// across the MySQL, PostgreSQL, and SQLite drivers.
func isUniqueViolation(err error) bool {
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint") ||
		strings.Contains(message, "duplicate entry")
}
