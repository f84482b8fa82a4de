package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coregx/webhooks/model"
)

// Default sweeper configuration.
const (
	// DefaultSweepInterval is how often the retry sweeper scans for due retries.
	DefaultSweepInterval = 60 * time.Second

	// DefaultSweepBatchSize is the maximum number of due retries per scan.
	DefaultSweepBatchSize = 100

	// DefaultRetentionPeriod is how long delivery logs are kept before purging.
	DefaultRetentionPeriod = 30 * 24 * time.Hour

	// DefaultRetentionInterval is how often the retention sweeper runs.
	DefaultRetentionInterval = 24 * time.Hour
)

// RetrySweeper periodically scans for RETRYING delivery logs whose backoff
// delay has elapsed and hands them back to the delivery worker through the
// pool. Each row is claimed with a compare-and-set marker before processing
// so overlapping sweeps never deliver the same row twice.
//
// The sweeper runs continuously in the background, scanning at regular
// intervals. This method of driving retries means a process restart loses no
// scheduled work: due rows are simply picked up by the next scan.
//
// Thread safety: Safe for concurrent use.
type RetrySweeper struct {
	subscriptionRepo SubscriptionRepository
	logRepo          DeliveryLogRepository
	worker           *DeliveryWorker
	pool             *DeliveryPool
	logger           Logger
	batchSize        int
}

// RetrySweeperOption configures a RetrySweeper.
type RetrySweeperOption func(*RetrySweeper) error

// NewRetrySweeper creates a new RetrySweeper with the provided options.
//
// Required options:
//   - WithRetrySweeperRepositories: subscription and delivery log repositories
//   - WithRetrySweeperWorker: delivery worker that performs attempts
//   - WithRetrySweeperPool: worker pool for asynchronous execution
//   - WithRetrySweeperLogger: logger instance
//
// Optional options:
//   - WithRetrySweeperBatchSize: batch size per scan (default: 100)
func NewRetrySweeper(opts ...RetrySweeperOption) (*RetrySweeper, error) {
	s := &RetrySweeper{
		batchSize: DefaultSweepBatchSize,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply retry sweeper option", err)
		}
	}

	// Validate required dependencies
	if s.subscriptionRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionRepository is required (use WithRetrySweeperRepositories)")
	}
	if s.logRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryLogRepository is required (use WithRetrySweeperRepositories)")
	}
	if s.worker == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryWorker is required (use WithRetrySweeperWorker)")
	}
	if s.pool == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryPool is required (use WithRetrySweeperPool)")
	}
	if s.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithRetrySweeperLogger)")
	}

	return s, nil
}

// WithRetrySweeperRepositories sets the required repository dependencies.
func WithRetrySweeperRepositories(
	subscriptionRepo SubscriptionRepository,
	logRepo DeliveryLogRepository,
) RetrySweeperOption {
	return func(s *RetrySweeper) error {
		if subscriptionRepo == nil {
			return fmt.Errorf("subscriptionRepo cannot be nil")
		}
		if logRepo == nil {
			return fmt.Errorf("logRepo cannot be nil")
		}
		s.subscriptionRepo = subscriptionRepo
		s.logRepo = logRepo
		return nil
	}
}

// WithRetrySweeperWorker sets the delivery worker used for retry attempts.
func WithRetrySweeperWorker(worker *DeliveryWorker) RetrySweeperOption {
	return func(s *RetrySweeper) error {
		if worker == nil {
			return fmt.Errorf("worker cannot be nil")
		}
		s.worker = worker
		return nil
	}
}

// WithRetrySweeperPool sets the worker pool for asynchronous delivery.
func WithRetrySweeperPool(pool *DeliveryPool) RetrySweeperOption {
	return func(s *RetrySweeper) error {
		if pool == nil {
			return fmt.Errorf("pool cannot be nil")
		}
		s.pool = pool
		return nil
	}
}

// WithRetrySweeperLogger sets the logger instance.
func WithRetrySweeperLogger(logger Logger) RetrySweeperOption {
	return func(s *RetrySweeper) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithRetrySweeperBatchSize sets the number of due retries fetched per scan.
// Must be > 0. Default is 100.
func WithRetrySweeperBatchSize(size int) RetrySweeperOption {
	return func(s *RetrySweeper) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be > 0, got %d", size)
		}
		s.batchSize = size
		return nil
	}
}

// Run starts the retry sweeper loop. It runs until the context is canceled,
// scanning for due retries at the specified interval.
//
// This method blocks and should typically be run in a goroutine.
//
// Example:
//
//	ctx := context.Background()
//	go sweeper.Run(ctx, 60*time.Second)
func (s *RetrySweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Retry sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Retry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Errorf("Retry sweep failed: %v", err)
			}
		}
	}
}

// SweepOnce performs a single scan for due retries and schedules an attempt
// for each row it successfully claims.
//
// Returns the number of retries scheduled and any critical error. Individual
// row failures are logged but don't stop the scan.
func (s *RetrySweeper) SweepOnce(ctx context.Context) (int, error) {
	logs, err := s.logRepo.FindDueRetries(ctx, s.batchSize)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to find due retries: %w", err)
	}

	scheduled := 0
	for i := range logs {
		if s.scheduleRetry(ctx, logs[i]) {
			scheduled++
		}
	}

	if scheduled > 0 {
		s.logger.Infof("Retry sweep scheduled %d attempts", scheduled)
	}

	return scheduled, nil
}

// scheduleRetry claims one due row and submits its attempt to the pool.
// Returns false if the row was already claimed or could not be prepared.
func (s *RetrySweeper) scheduleRetry(ctx context.Context, log model.DeliveryLog) bool {
	claimed, err := s.logRepo.Claim(ctx, log.ID)
	if err != nil {
		s.logger.Errorf("Failed to claim delivery log %d: %v", log.ID, err)
		return false
	}
	if !claimed {
		s.logger.Debugf("Delivery log %d already claimed, skipping", log.ID)
		return false
	}

	sub, err := s.subscriptionRepo.Load(ctx, log.SubscriptionID)
	if err != nil {
		if IsNoData(err) {
			// Subscription was deleted, the delivery can never succeed.
			s.failOrphanedLog(ctx, log)
			return false
		}
		s.logger.Errorf("Failed to load subscription %d for delivery log %d: %v", log.SubscriptionID, log.ID, err)
		s.releaseClaim(ctx, log.ID)
		return false
	}

	if !sub.Active {
		s.logger.Debugf("Subscription %d inactive, leaving delivery log %d for later", sub.ID, log.ID)
		s.releaseClaim(ctx, log.ID)
		return false
	}

	s.pool.Submit(func() {
		entry := log
		if err := s.worker.Attempt(ctx, sub, &entry); err != nil {
			s.logger.Debugf("Retry attempt for event %s finished with error: %v", entry.EventID, err)
		}
	})

	return true
}

// failOrphanedLog marks a claimed row FAILED when its subscription no longer exists.
func (s *RetrySweeper) failOrphanedLog(ctx context.Context, log model.DeliveryLog) {
	s.logger.Warnf("Subscription %d for delivery log %d no longer exists, marking failed",
		log.SubscriptionID, log.ID)

	log.MarkFailed(0, "subscription no longer exists")
	if err := s.logRepo.Update(ctx, &log); err != nil {
		s.logger.Errorf("Failed to mark orphaned delivery log %d as failed: %v", log.ID, err)
		s.releaseClaim(ctx, log.ID)
	}
}

func (s *RetrySweeper) releaseClaim(ctx context.Context, id int64) {
	if err := s.logRepo.ReleaseClaim(ctx, id); err != nil {
		s.logger.Errorf("Failed to release claim on delivery log %d: %v", id, err)
	}
}

// RetentionSweeper periodically purges delivery logs older than the
// configured retention period, regardless of status. This keeps the log
// table from growing without bound.
type RetentionSweeper struct {
	logRepo   DeliveryLogRepository
	logger    Logger
	retention time.Duration
}

// NewRetentionSweeper creates a new RetentionSweeper.
// A non-positive retention falls back to DefaultRetentionPeriod (30 days).
func NewRetentionSweeper(logRepo DeliveryLogRepository, logger Logger, retention time.Duration) (*RetentionSweeper, error) {
	if logRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryLogRepository is required")
	}
	if logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required")
	}
	if retention <= 0 {
		retention = DefaultRetentionPeriod
	}

	return &RetentionSweeper{
		logRepo:   logRepo,
		logger:    logger,
		retention: retention,
	}, nil
}

// Run starts the retention sweeper loop. It runs until the context is
// canceled, purging at the specified interval.
//
// This method blocks and should typically be run in a goroutine.
func (s *RetentionSweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Retention sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Retention sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Errorf("Retention sweep failed: %v", err)
			}
		}
	}
}

// SweepOnce purges delivery logs older than the retention cutoff.
// Returns the number of rows removed.
func (s *RetentionSweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.retention)

	deleted, err := s.logRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge old delivery logs: %w", err)
	}

	if deleted > 0 {
		s.logger.Infof("Purged %d delivery logs older than %v", deleted, s.retention)
	}

	return deleted, nil
}
