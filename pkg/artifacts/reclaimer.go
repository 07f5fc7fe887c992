package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/suzxlabs/ytserver/pkg/logging"
)

// ReclaimerConfig defines the retention policy for the managed directory
type ReclaimerConfig struct {
	Enabled   bool
	Retention time.Duration
	Interval  time.Duration
}

// DefaultReclaimerConfig returns the default retention policy
func DefaultReclaimerConfig() ReclaimerConfig {
	return ReclaimerConfig{
		Enabled:   true,
		Retention: 10 * time.Minute,
		Interval:  time.Minute,
	}
}

// ReclaimStats tracks sweep activity
type ReclaimStats struct {
	LastSweepTime     time.Time
	LastSweepDuration time.Duration
	TotalFilesDeleted int64
	TotalSweeps       int64
}

// Reclaimer periodically deletes artifacts older than the retention period.
// It covers files left by a previous process and reclaim timers that never
// fired.
type Reclaimer struct {
	config ReclaimerConfig
	store  *Store
	logger *logging.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats ReclaimStats
}

// NewReclaimer creates a sweeper for store
func NewReclaimer(config ReclaimerConfig, store *Store) *Reclaimer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reclaimer{
		config: config,
		store:  store,
		logger: store.logger.WithField("worker", "reclaimer"),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs a sweep immediately and then on every interval
func (r *Reclaimer) Start() {
	if !r.config.Enabled {
		r.logger.Info("Reclaimer disabled")
		return
	}

	r.logger.Info("Starting reclaimer", logging.Fields{
		"retention": r.config.Retention.String(),
		"interval":  r.config.Interval.String(),
	})

	r.SweepNow()

	r.wg.Add(1)
	go r.loop()
}

// Stop ends the sweep loop and waits for it
func (r *Reclaimer) Stop() {
	r.cancel()
	r.wg.Wait()
	r.logger.Info("Reclaimer stopped")
}

func (r *Reclaimer) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.SweepNow()
		}
	}
}

// SweepNow deletes expired files and returns how many were removed. Files of
// artifacts this process staged or published are left to their own timers.
func (r *Reclaimer) SweepNow() int {
	start := time.Now()
	cutoff := r.now().Add(-r.config.Retention)

	entries, err := os.ReadDir(r.store.Dir())
	if err != nil {
		r.logger.Error("Failed to list download dir", logging.Fields{"error": err.Error()})
		return 0
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) || r.store.inUse(entry.Name()) {
			continue
		}

		path := filepath.Join(r.store.Dir(), entry.Name())
		result := ReclaimDeleted
		if err := os.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			result = ReclaimError
			r.logger.Warn("Failed to delete expired file", logging.Fields{"file": entry.Name(), "error": err.Error()})
		} else {
			deleted++
		}
		r.store.release(path)
		if r.store.observer != nil {
			r.store.observer.ArtifactReclaimed(result)
		}
	}

	duration := time.Since(start)
	r.mu.Lock()
	r.stats.LastSweepTime = time.Now()
	r.stats.LastSweepDuration = duration
	r.stats.TotalFilesDeleted += int64(deleted)
	r.stats.TotalSweeps++
	r.mu.Unlock()

	if deleted > 0 {
		r.logger.Info("Sweep complete", logging.Fields{"deleted": deleted, "duration": duration.String()})
	}
	return deleted
}

// GetStats returns current sweep statistics
func (r *Reclaimer) GetStats() ReclaimStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}
