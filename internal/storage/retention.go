package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Trimmer evicts rows beyond a retention cap and reports how many it removed
type Trimmer interface {
	Trim() (int64, error)
}

// Checkpointer flushes the write-ahead log
type Checkpointer interface {
	Checkpoint() error
}

// RetentionSweeper periodically enforces the reading and alert caps and
// checkpoints the WAL. Appends already keep the logs bounded; the sweeper
// catches caps lowered between restarts and keeps the WAL file small.
type RetentionSweeper struct {
	targets     map[string]Trimmer
	wal         Checkpointer
	logger      zerolog.Logger
	sweepPeriod time.Duration
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	// Stats
	mu               sync.RWMutex
	totalEvicted     int64
	totalSweeps      int64
	lastSweep        time.Time
	lastEvictedCount int64
	lastError        string
}

// RetentionSweeperConfig holds configuration for the sweeper
type RetentionSweeperConfig struct {
	SweepPeriod time.Duration // How often to sweep (default: 10 minutes)
}

// DefaultRetentionSweeperConfig returns sensible defaults
func DefaultRetentionSweeperConfig() RetentionSweeperConfig {
	return RetentionSweeperConfig{
		SweepPeriod: 10 * time.Minute,
	}
}

// RetentionSweeperStats contains statistics about the sweeper
type RetentionSweeperStats struct {
	TotalEvicted     int64     `json:"total_evicted"`
	TotalSweeps      int64     `json:"total_sweeps"`
	LastSweep        time.Time `json:"last_sweep,omitempty"`
	LastEvictedCount int64     `json:"last_evicted_count"`
	LastError        string    `json:"last_error,omitempty"`
	SweepPeriod      string    `json:"sweep_period"`
}

// NewRetentionSweeper creates and starts a sweeper over the named targets.
// wal may be nil.
func NewRetentionSweeper(targets map[string]Trimmer, wal Checkpointer, config RetentionSweeperConfig, logger zerolog.Logger) *RetentionSweeper {
	sweepPeriod := config.SweepPeriod

	// time.NewTicker panics on non-positive durations
	if sweepPeriod <= 0 {
		defaultPeriod := DefaultRetentionSweeperConfig().SweepPeriod
		logger.Warn().
			Dur("provided_period", sweepPeriod).
			Dur("default_period", defaultPeriod).
			Msg("Invalid SweepPeriod provided (zero or negative), using default")
		sweepPeriod = defaultPeriod
	}

	r := &RetentionSweeper{
		targets:     targets,
		wal:         wal,
		logger:      logger,
		sweepPeriod: sweepPeriod,
		stopChan:    make(chan struct{}),
	}

	r.wg.Add(1)
	go r.sweepLoop()

	logger.Info().
		Int("targets", len(targets)).
		Dur("sweep_period", sweepPeriod).
		Msg("RetentionSweeper started")

	return r
}

func (r *RetentionSweeper) sweepLoop() {
	defer r.wg.Done()

	r.sweep()

	ticker := time.NewTicker(r.sweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopChan:
			r.logger.Info().Msg("RetentionSweeper stopped")
			return
		}
	}
}

// sweep trims every target and checkpoints the WAL
func (r *RetentionSweeper) sweep() {
	var evicted int64
	var lastErr error

	for name, target := range r.targets {
		n, err := target.Trim()
		if err != nil {
			r.logger.Error().Err(err).Str("target", name).Msg("Retention sweep failed")
			lastErr = err
			continue
		}
		if n > 0 {
			r.logger.Info().Str("target", name).Int64("evicted", n).Msg("Evicted rows beyond cap")
		}
		evicted += n
	}

	if r.wal != nil {
		if err := r.wal.Checkpoint(); err != nil {
			r.logger.Warn().Err(err).Msg("WAL checkpoint failed")
			lastErr = err
		}
	}

	r.mu.Lock()
	r.totalSweeps++
	r.lastSweep = time.Now()
	r.totalEvicted += evicted
	r.lastEvictedCount = evicted
	r.lastError = ""
	if lastErr != nil {
		r.lastError = lastErr.Error()
	}
	r.mu.Unlock()

	r.logger.Debug().Int64("evicted", evicted).Msg("Retention sweep completed")
}

// Stop gracefully stops the sweeper
func (r *RetentionSweeper) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
		r.wg.Wait()
	})
}

// Stats returns current sweeper statistics
func (r *RetentionSweeper) Stats() RetentionSweeperStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RetentionSweeperStats{
		TotalEvicted:     r.totalEvicted,
		TotalSweeps:      r.totalSweeps,
		LastSweep:        r.lastSweep,
		LastEvictedCount: r.lastEvictedCount,
		LastError:        r.lastError,
		SweepPeriod:      r.sweepPeriod.String(),
	}
}

// RunNow triggers an immediate sweep
func (r *RetentionSweeper) RunNow() {
	r.sweep()
}
