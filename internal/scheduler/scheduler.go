// Package scheduler runs the reconciliation cycle on a fixed interval
// and exposes a manual trigger for the API and CLI. A single lock
// serializes cycles: a trigger while one is running is rejected rather
// than queued.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/studiobook/studiobook/internal/db"
	"github.com/studiobook/studiobook/internal/reconcile"
)

const (
	cleanupInterval  = 24 * time.Hour
	logRetentionDays = 30
	syncTimeout      = 10 * time.Minute // Maximum time for a single cycle
)

// ErrSyncInProgress is returned by TriggerSync when a cycle is already
// running.
var ErrSyncInProgress = errors.New("sync already in progress")

// Scheduler drives periodic reconciliation against the one configured
// provider calendar.
type Scheduler struct {
	db       *db.DB
	engine   *reconcile.Engine
	interval time.Duration

	mu      sync.Mutex
	started bool
	lastRun time.Time
	last    *reconcile.Result

	syncLock sync.Mutex // serializes cycles; acquired with TryLock
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a scheduler that reconciles every interval.
func New(database *db.DB, engine *reconcile.Engine, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		db:       database,
		engine:   engine,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the sync loop and the log cleanup routine. The first
// cycle runs immediately.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.runLoop()
	go s.cleanupRoutine()

	log.Printf("Scheduler started with interval %v", s.interval)
}

// Stop gracefully shuts down the scheduler and waits for an in-flight
// cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Println("Scheduler stopped")
}

// TriggerSync runs one cycle immediately and returns its result. When a
// cycle is already in flight it returns ErrSyncInProgress; the caller can
// read the outcome of the running cycle from the audit log instead.
func (s *Scheduler) TriggerSync(ctx context.Context) (*reconcile.Result, error) {
	if !s.syncLock.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.syncLock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	return s.runCycle(ctx)
}

// LastResult returns the most recent completed cycle result and when it
// ran. The result is nil before the first cycle completes.
func (s *Scheduler) LastResult() (*reconcile.Result, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastRun
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	s.executeSync()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.executeSync()
		}
	}
}

// executeSync runs one scheduled cycle, skipping when a manual trigger is
// already in flight.
func (s *Scheduler) executeSync() {
	if !s.syncLock.TryLock() {
		log.Println("Skipping scheduled sync - another sync is already in progress")
		return
	}
	defer s.syncLock.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, syncTimeout)
	defer cancel()

	if _, err := s.runCycle(ctx); err != nil {
		log.Printf("Sync failed: %v", err)
	}
}

// runCycle executes the engine and records the outcome. Callers must hold
// syncLock.
func (s *Scheduler) runCycle(ctx context.Context) (*reconcile.Result, error) {
	result, err := s.engine.Sync(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = result
	s.lastRun = time.Now().UTC()
	s.mu.Unlock()

	if len(result.Errors) > 0 {
		log.Printf("Sync completed with errors: %d imported, %d exported, %d updated, %d error(s) in %v",
			result.Imported, result.Exported, result.Updated, len(result.Errors), result.Duration)
	} else {
		log.Printf("Sync completed: %d imported, %d exported, %d updated in %v",
			result.Imported, result.Exported, result.Updated, result.Duration)
	}
	return result, nil
}

// cleanupRoutine periodically deletes old audit rows.
func (s *Scheduler) cleanupRoutine() {
	defer s.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanupOldLogs()
		}
	}
}

func (s *Scheduler) cleanupOldLogs() {
	cutoff := time.Now().AddDate(0, 0, -logRetentionDays)
	deleted, err := s.db.CleanOldSyncLogs(cutoff)
	if err != nil {
		log.Printf("Failed to clean old sync logs: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Cleaned %d old sync logs", deleted)
	}
}
