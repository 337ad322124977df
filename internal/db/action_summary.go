package db

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InsertStats keeps track of journal writes
type InsertStats struct {
	sync.Mutex
	Inserted int
	Failed   int
	Dropped  int
}

// StartSummary logs the counters every interval until ctx is canceled.
func (s *InsertStats) StartSummary(ctx context.Context, interval time.Duration, logger *zap.SugaredLogger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				inserted, failed, dropped := s.Snapshot()
				logger.Infow("status journal summary", "inserted", inserted, "failed", failed, "dropped", dropped)
			}
		}
	}()
}

func (s *InsertStats) IncrementInserted() {
	s.Lock()
	s.Inserted++
	s.Unlock()
}

func (s *InsertStats) IncrementFailed() {
	s.Lock()
	s.Failed++
	s.Unlock()
}

func (s *InsertStats) IncrementDropped() {
	s.Lock()
	s.Dropped++
	s.Unlock()
}

// Snapshot returns the counters without holding the lock afterwards.
func (s *InsertStats) Snapshot() (inserted, failed, dropped int) {
	s.Lock()
	defer s.Unlock()
	return s.Inserted, s.Failed, s.Dropped
}
