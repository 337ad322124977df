package db

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"plant-monitor/internal/fleet"
)

// Journal records applied machine changes in PostgreSQL. It is a sink only:
// nothing reads the journal back into the working set.
type Journal struct {
	db     Execer
	logger *zap.SugaredLogger
	rows   chan StatusRow
	Stats  *InsertStats
	wg     sync.WaitGroup
}

func NewJournal(db Execer, logger *zap.SugaredLogger) *Journal {
	return &Journal{
		db:     db,
		logger: logger,
		rows:   make(chan StatusRow, 1024),
		Stats:  &InsertStats{},
	}
}

// Listener returns the fleet listener that feeds the journal. It never blocks;
// rows that do not fit in the queue are counted as dropped.
func (j *Journal) Listener() fleet.Listener {
	return func(c fleet.Change) {
		select {
		case j.rows <- rowFromChange(c):
		default:
			j.Stats.IncrementDropped()
		}
	}
}

// Start runs the insert worker until ctx is canceled.
func (j *Journal) Start(ctx context.Context) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case row := <-j.rows:
				if err := InsertMachineStatus(ctx, j.db, row, j.logger); err != nil {
					j.Stats.IncrementFailed()
				} else {
					j.Stats.IncrementInserted()
				}
			}
		}
	}()
}

// Wait blocks until the worker has stopped.
func (j *Journal) Wait() {
	j.wg.Wait()
}

func rowFromChange(c fleet.Change) StatusRow {
	row := StatusRow{
		MachineID: c.ID(),
		Plant:     c.Plant,
		Removed:   c.Removed,
	}
	if c.Previous.Known() {
		prev := c.Previous.Severity()
		row.Previous = &prev
	}
	if !c.Removed {
		cur := c.Machine.Severity()
		row.Severity = &cur
		row.Name = c.Machine.Name()
		row.Metrics = metricsToAny(c.Machine.Metrics())
		row.Faults = c.Machine.Faults()
		row.Breaches = c.Machine.Breaches()
	} else {
		row.Name = c.Previous.Name()
	}
	return row
}
