package webhooks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/coregx/webhooks/model"
)

// memSubscriptionRepo is an in-memory SubscriptionRepository for tests.
type memSubscriptionRepo struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]model.Subscription
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{subs: make(map[int64]model.Subscription)}
}

func (r *memSubscriptionRepo) Load(_ context.Context, id int64) (model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return model.Subscription{}, ErrNoData
	}
	return sub, nil
}

func (r *memSubscriptionRepo) Save(_ context.Context, m model.Subscription) (model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == 0 {
		r.nextID++
		m.ID = r.nextID
		r.subs[m.ID] = m
		return m, nil
	}
	// The delivery counters and their timestamps are owned by
	// RecordDelivery/RecordFailure; an update never writes them back.
	if stored, ok := r.subs[m.ID]; ok {
		m.TotalDeliveries = stored.TotalDeliveries
		m.FailedDeliveries = stored.FailedDeliveries
		m.LastDeliveryAt = stored.LastDeliveryAt
		m.LastFailureAt = stored.LastFailureAt
		m.CreatedAt = stored.CreatedAt
	}
	r.subs[m.ID] = m
	return m, nil
}

func (r *memSubscriptionRepo) Delete(_ context.Context, m model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, m.ID)
	return nil
}

func (r *memSubscriptionRepo) FindByEmailAndURL(_ context.Context, email, callbackURL string) (model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		if sub.SubscriberEmail == email && sub.CallbackURL == callbackURL {
			return sub, nil
		}
	}
	return model.Subscription{}, ErrNoData
}

func (r *memSubscriptionRepo) FindActiveForEvent(_ context.Context, eventType model.EventType) ([]model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Subscription
	for _, sub := range r.subs {
		if sub.Active && sub.EventType.Matches(eventType) {
			out = append(out, sub)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *memSubscriptionRepo) List(_ context.Context, filter Filter) ([]model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Subscription
	for _, sub := range r.subs {
		if filter.EventType != "" && string(sub.EventType) != filter.EventType {
			continue
		}
		if filter.Email != "" && sub.SubscriberEmail != filter.Email {
			continue
		}
		if filter.ActiveOnly && !sub.Active {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.PageSize > 0 {
		start := 0
		if filter.Page > 1 {
			start = (filter.Page - 1) * filter.PageSize
		}
		if start >= len(out) {
			out = nil
		} else {
			end := start + filter.PageSize
			if end > len(out) {
				end = len(out)
			}
			out = out[start:end]
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *memSubscriptionRepo) RecordDelivery(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return ErrNoData
	}
	sub.TotalDeliveries++
	sub.LastDeliveryAt.Time = at
	sub.LastDeliveryAt.Valid = true
	r.subs[id] = sub
	return nil
}

func (r *memSubscriptionRepo) RecordFailure(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return ErrNoData
	}
	sub.FailedDeliveries++
	sub.LastFailureAt.Time = at
	sub.LastFailureAt.Valid = true
	r.subs[id] = sub
	return nil
}

// memLogRepo is an in-memory DeliveryLogRepository for tests. It enforces
// the event id uniqueness constraint the same way the SQL adapter does.
type memLogRepo struct {
	mu     sync.Mutex
	nextID int64
	logs   map[int64]model.DeliveryLog
}

func newMemLogRepo() *memLogRepo {
	return &memLogRepo{logs: make(map[int64]model.DeliveryLog)}
}

func (r *memLogRepo) Load(_ context.Context, id int64) (model.DeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok {
		return model.DeliveryLog{}, ErrNoData
	}
	return log, nil
}

func (r *memLogRepo) FindByEventID(_ context.Context, eventID string) (model.DeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, log := range r.logs {
		if log.EventID == eventID {
			return log, nil
		}
	}
	return model.DeliveryLog{}, ErrNoData
}

func (r *memLogRepo) Create(_ context.Context, m *model.DeliveryLog) (*model.DeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, log := range r.logs {
		if log.EventID == m.EventID {
			return m, ErrDuplicateEvent
		}
	}
	r.nextID++
	m.ID = r.nextID
	r.logs[m.ID] = *m
	return m, nil
}

func (r *memLogRepo) Update(_ context.Context, m *model.DeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[m.ID]; !ok {
		return ErrNoData
	}
	m.ClaimedAt.Valid = false
	r.logs[m.ID] = *m
	return nil
}

func (r *memLogRepo) FindBySubscription(_ context.Context, subscriptionID int64, limit int) ([]model.DeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.DeliveryLog
	for _, log := range r.logs {
		if log.SubscriptionID == subscriptionID {
			out = append(out, log)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *memLogRepo) FindDueRetries(_ context.Context, limit int) ([]model.DeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []model.DeliveryLog
	for _, log := range r.logs {
		if log.Status != model.DeliveryStatusRetrying {
			continue
		}
		if log.ClaimedAt.Valid {
			continue
		}
		if log.AttemptNumber > log.MaxAttempts {
			continue
		}
		if !log.NextRetryAt.Valid || log.NextRetryAt.Time.After(now) {
			continue
		}
		out = append(out, log)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *memLogRepo) Claim(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok || log.ClaimedAt.Valid {
		return false, nil
	}
	log.ClaimedAt.Time = time.Now()
	log.ClaimedAt.Valid = true
	r.logs[id] = log
	return true, nil
}

func (r *memLogRepo) ReleaseClaim(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok {
		return ErrNoData
	}
	log.ClaimedAt.Valid = false
	r.logs[id] = log
	return nil
}

func (r *memLogRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for id, log := range r.logs {
		if log.CreatedAt.Before(cutoff) {
			delete(r.logs, id)
			deleted++
		}
	}
	return deleted, nil
}

// failingUpdateLogRepo wraps memLogRepo and fails a set number of Update
// calls before recovering, simulating a transient database outage.
type failingUpdateLogRepo struct {
	*memLogRepo
	updateFailures int
}

func (r *failingUpdateLogRepo) Update(ctx context.Context, m *model.DeliveryLog) error {
	if r.updateFailures > 0 {
		r.updateFailures--
		return errors.New("database unavailable")
	}
	return r.memLogRepo.Update(ctx, m)
}

func (r *memLogRepo) byEventID(eventID string) (model.DeliveryLog, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, log := range r.logs {
		if log.EventID == eventID {
			return log, true
		}
	}
	return model.DeliveryLog{}, false
}

func (r *memLogRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}
