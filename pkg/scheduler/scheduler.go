// Package scheduler enqueues the recurring pipeline jobs on fixed
// intervals: feed fetches, clustering passes, and the cleanup chain.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/firethorn/internal/tracing"
	"github.com/Ramsey-B/firethorn/pkg/models"
	"github.com/Ramsey-B/firethorn/pkg/queue"
	"github.com/Ramsey-B/firethorn/pkg/redis"
)

var (
	// ErrSchedulerStopped is returned when the scheduler is stopped
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultFetchInterval is how often the feed is polled
	DefaultFetchInterval = 10 * time.Minute

	// DefaultClusterInterval is how often a clustering pass runs
	DefaultClusterInterval = 5 * time.Minute

	// DefaultCleanupInterval is how often the cleanup chain runs
	DefaultCleanupInterval = time.Hour

	// LockKeyPrefix is the prefix for scheduler locks
	LockKeyPrefix = "scheduler:job:"
)

// JobPublisher is the publishing surface the scheduler drives.
type JobPublisher interface {
	PublishDetectionFetch(ctx context.Context, job models.DetectionFetchJob) (string, error)
	PublishDetectionCluster(ctx context.Context, job models.DetectionClusterJob) (string, error)
	PublishIncidentCleanup(ctx context.Context, job models.IncidentCleanupJob) (string, error)
}

// Config holds configuration for the scheduler
type Config struct {
	// FetchInterval is how often to enqueue a feed fetch
	FetchInterval time.Duration

	// ClusterInterval is how often to enqueue a clustering pass
	ClusterInterval time.Duration

	// CleanupInterval is how often to enqueue the cleanup chain
	CleanupInterval time.Duration

	// FetchSource overrides the feed source for scheduled fetches
	FetchSource string

	// FetchDayRange is the day range for scheduled fetches
	FetchDayRange int

	// ClusterBatchSize is the batch size for scheduled clustering passes
	ClusterBatchSize int
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		FetchInterval:   DefaultFetchInterval,
		ClusterInterval: DefaultClusterInterval,
		CleanupInterval: DefaultCleanupInterval,
		FetchDayRange:   1,
	}
}

// Scheduler enqueues recurring pipeline jobs on their intervals.
type Scheduler struct {
	publisher JobPublisher
	locker    *redis.Locker
	config    Config
	logger    ectologger.Logger

	// Coordination
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler. A nil locker disables
// cross-instance coordination (single scheduler instance).
func NewScheduler(
	publisher JobPublisher,
	locker *redis.Locker,
	config Config,
	logger ectologger.Logger,
) *Scheduler {
	// Apply defaults
	defaults := DefaultConfig()
	if config.FetchInterval <= 0 {
		config.FetchInterval = defaults.FetchInterval
	}
	if config.ClusterInterval <= 0 {
		config.ClusterInterval = defaults.ClusterInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.FetchDayRange <= 0 {
		config.FetchDayRange = defaults.FetchDayRange
	}

	return &Scheduler{
		publisher: publisher,
		locker:    locker,
		config:    config,
		logger:    logger,
		stopCh:    make(chan struct{}),
		stoppedC:  make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "Scheduler.Start")
	defer span.End()

	s.logger.WithContext(ctx).Infof("Starting scheduler: fetch=%s cluster=%s cleanup=%s",
		s.config.FetchInterval, s.config.ClusterInterval, s.config.CleanupInterval)

	s.wg.Add(3)
	go s.tickLoop(ctx, models.JobTypeDetectionFetch, s.config.FetchInterval, s.enqueueFetch)
	go s.tickLoop(ctx, models.JobTypeDetectionCluster, s.config.ClusterInterval, s.enqueueCluster)
	go s.tickLoop(ctx, models.JobTypeIncidentCleanup, s.config.CleanupInterval, s.enqueueCleanup)

	go func() {
		s.wg.Wait()
		close(s.stoppedC)
	}()

	s.logger.WithContext(ctx).Info("Scheduler started")
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// tickLoop enqueues one job type on its interval. The first enqueue
// happens immediately on start.
func (s *Scheduler) tickLoop(ctx context.Context, jobType string, interval time.Duration, enqueue func(context.Context) error) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runTick(ctx, jobType, interval, enqueue)

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debugf("Scheduler loop for %s stopping", jobType)
			return
		case <-ticker.C:
			s.runTick(ctx, jobType, interval, enqueue)
		}
	}
}

// runTick enqueues a single job, coordinating across instances via a
// lock held for most of the interval so only one instance enqueues per
// tick.
func (s *Scheduler) runTick(ctx context.Context, jobType string, interval time.Duration, enqueue func(context.Context) error) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.runTick")
	defer span.End()

	if s.locker != nil {
		ttl := interval - interval/10
		if ttl < time.Second {
			ttl = time.Second
		}

		// Deliberately not released: the lock expires just before the
		// next tick, so concurrent instances skip this interval.
		_, err := s.locker.Acquire(ctx, LockKeyPrefix+jobType, ttl)
		if err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				s.logger.WithContext(ctx).Debugf("Skipping %s tick, another instance holds the schedule", jobType)
				return
			}
			s.logger.WithContext(ctx).WithError(err).Warnf("Failed to acquire scheduler lock for %s", jobType)
			return
		}
	}

	if err := enqueue(ctx); err != nil {
		if errors.Is(err, queue.ErrJobAlreadyQueued) {
			s.logger.WithContext(ctx).Debugf("Skipping %s tick, job already queued", jobType)
			return
		}
		s.logger.WithContext(ctx).WithError(err).Warnf("Failed to enqueue %s job", jobType)
		return
	}

	s.logger.WithContext(ctx).Infof("Enqueued scheduled %s job", jobType)
}

func (s *Scheduler) enqueueFetch(ctx context.Context) error {
	_, err := s.publisher.PublishDetectionFetch(ctx, models.DetectionFetchJob{
		Source:   s.config.FetchSource,
		DayRange: s.config.FetchDayRange,
	})
	return err
}

func (s *Scheduler) enqueueCluster(ctx context.Context) error {
	_, err := s.publisher.PublishDetectionCluster(ctx, models.DetectionClusterJob{
		BatchSize: s.config.ClusterBatchSize,
	})
	return err
}

func (s *Scheduler) enqueueCleanup(ctx context.Context) error {
	_, err := s.publisher.PublishIncidentCleanup(ctx, models.IncidentCleanupJob{})
	return err
}
