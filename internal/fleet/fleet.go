package fleet

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"plant-monitor/internal/status"
)

// ErrUnknownMachine is returned for an id the working set does not hold.
var ErrUnknownMachine = errors.New("unknown machine")

// State is a machine's lifecycle state as seen by the working set.
type State int

const (
	StateUnknown State = iota
	StateKnown
)

func (s State) String() string {
	if s == StateKnown {
		return "known"
	}
	return "unknown"
}

// Dashboard is a read-only projection of the working set at one instant.
type Dashboard struct {
	Plant       status.Severity
	Counts      status.Counts
	Machines    []status.MachineHealth // sorted by id
	Stale       bool
	LastRefresh time.Time
	LastError   string
}

// Change describes one machine entering, changing in or leaving the working set.
type Change struct {
	Machine       status.MachineHealth // zero when Removed
	Previous      status.MachineHealth // zero when the machine was new
	Removed       bool
	Plant         status.Severity
	PreviousPlant status.Severity
	At            time.Time
}

// ID returns the id of the machine the change concerns.
func (c Change) ID() string {
	if c.Machine.Known() {
		return c.Machine.ID()
	}
	return c.Previous.ID()
}

// SeverityChanged reports whether the machine moved to a different severity,
// including appearing or disappearing.
func (c Change) SeverityChanged() bool {
	if c.Removed || !c.Previous.Known() {
		return true
	}
	return c.Machine.Severity() != c.Previous.Severity()
}

// Listener receives changes after the working set lock is released.
type Listener func(Change)

// Freshness is the staleness banner of the working set.
type Freshness struct {
	Stale       bool
	LastError   string
	LastRefresh time.Time
	At          time.Time
}

// FreshnessListener is told whenever the stale flag flips or a new failure is recorded.
type FreshnessListener func(Freshness)

type entry struct {
	health status.MachineHealth
	source string
}

// Fleet is the working set of machines. Values are immutable, so readers holding
// a MachineHealth never observe a partially applied update.
type Fleet struct {
	mu          sync.RWMutex
	machines    map[string]entry
	plant       status.Severity
	stale       bool
	lastRefresh time.Time
	lastErr     string
	listeners   []Listener
	freshness   []FreshnessListener
	logger      *zap.SugaredLogger
	now         func() time.Time

	// Notifications are handed out tickets under mu and delivered in ticket
	// order, so listeners see changes in the order they were committed.
	dispatchMu sync.Mutex
	turn       *sync.Cond
	issued     uint64
	delivered  uint64
}

func New(logger *zap.SugaredLogger) *Fleet {
	f := &Fleet{
		machines: make(map[string]entry),
		logger:   logger,
		now:      time.Now,
	}
	f.turn = sync.NewCond(&f.dispatchMu)
	return f
}

// OnChange registers a listener. Listeners run synchronously in the applying
// goroutine, may read the fleet, and must neither block nor modify it.
func (f *Fleet) OnChange(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

// OnFreshness registers a staleness listener under the same rules as OnChange.
func (f *Fleet) OnFreshness(l FreshnessListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freshness = append(f.freshness, l)
}

// Apply replaces what source supplied with a complete snapshot from a successful
// fetch. Ids that source supplied before and no longer lists are removed; machines
// owned by other sources are left alone. An empty snapshot keeps the current set,
// since an empty answer is indistinguishable from a partial outage.
func (f *Fleet) Apply(ctx context.Context, source string, snapshot []status.MachineHealth) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	before := f.plant
	var changes []Change
	if len(snapshot) > 0 {
		present := make(map[string]bool, len(snapshot))
		for _, h := range snapshot {
			present[h.ID()] = true
		}
		for id, e := range f.machines {
			if e.source == source && !present[id] {
				delete(f.machines, id)
				changes = append(changes, Change{Previous: e.health, Removed: true})
			}
		}
	}
	for _, h := range snapshot {
		if c, ok := f.putLocked(source, h); ok {
			changes = append(changes, c)
		}
	}
	fresh, flipped := f.refreshedLocked()
	listeners, changes := f.finishLocked(before, changes)
	d := f.dispatcherLocked(listeners, changes, fresh, flipped)
	f.mu.Unlock()

	d()
	return nil
}

// Upsert applies one streamed record from source without touching other machines.
// It reports whether the record was applied. An applied record clears the stale flag.
func (f *Fleet) Upsert(source string, h status.MachineHealth) bool {
	if !h.Known() {
		return false
	}
	f.mu.Lock()
	before := f.plant
	c, ok := f.putLocked(source, h)
	if !ok {
		f.mu.Unlock()
		return false
	}
	fresh, flipped := f.refreshedLocked()
	listeners, changes := f.finishLocked(before, []Change{c})
	d := f.dispatcherLocked(listeners, changes, fresh, flipped)
	f.mu.Unlock()

	d()
	return true
}

// MarkFailed records that a source could not be read. The working set is kept
// and the view reports stale until the next successful Apply or Upsert.
func (f *Fleet) MarkFailed(source string, err error) {
	f.mu.Lock()
	msg := f.lastErr
	if err != nil {
		msg = err.Error()
	}
	changed := !f.stale || msg != f.lastErr
	f.stale = true
	f.lastErr = msg
	d := func() {}
	if changed {
		d = f.dispatcherLocked(nil, nil, f.freshnessLocked(), true)
	}
	f.mu.Unlock()

	d()
	if f.logger != nil {
		f.logger.Warnw("telemetry source failed, keeping last known state", "source", source, "error", err)
	}
}

// putLocked stores h for source unless it is older than what is already held.
// The latest applied writer owns the id.
func (f *Fleet) putLocked(source string, h status.MachineHealth) (Change, bool) {
	prev, exists := f.machines[h.ID()]
	if exists && !h.ObservedAt().IsZero() && h.ObservedAt().Before(prev.health.ObservedAt()) {
		if f.logger != nil {
			f.logger.Debugw("ignoring out-of-order record", "machine_id", h.ID(), "source", source,
				"observed_at", h.ObservedAt(), "held", prev.health.ObservedAt())
		}
		return Change{}, false
	}
	f.machines[h.ID()] = entry{health: h, source: source}
	return Change{Machine: h, Previous: prev.health}, true
}

// refreshedLocked clears the stale state after a success and reports whether it flipped.
func (f *Fleet) refreshedLocked() (Freshness, bool) {
	flipped := f.stale
	f.stale = false
	f.lastErr = ""
	f.lastRefresh = f.now()
	return f.freshnessLocked(), flipped
}

func (f *Fleet) freshnessLocked() Freshness {
	return Freshness{Stale: f.stale, LastError: f.lastErr, LastRefresh: f.lastRefresh, At: f.now()}
}

// finishLocked recomputes the plant severity and stamps the pending changes.
func (f *Fleet) finishLocked(before status.Severity, changes []Change) ([]Listener, []Change) {
	f.plant = status.Aggregate(f.valuesLocked())
	at := f.now()
	for i := range changes {
		changes[i].Plant = f.plant
		changes[i].PreviousPlant = before
		changes[i].At = at
	}
	return append([]Listener(nil), f.listeners...), changes
}

// dispatcherLocked takes the next ticket and returns the delivery to run once mu
// is released. The delivery waits for every earlier ticket to finish first.
func (f *Fleet) dispatcherLocked(listeners []Listener, changes []Change, fresh Freshness, announce bool) func() {
	var freshness []FreshnessListener
	if announce {
		freshness = append([]FreshnessListener(nil), f.freshness...)
	}
	ticket := f.issued
	f.issued++

	return func() {
		f.dispatchMu.Lock()
		for f.delivered != ticket {
			f.turn.Wait()
		}
		f.dispatchMu.Unlock()

		defer func() {
			f.dispatchMu.Lock()
			f.delivered++
			f.turn.Broadcast()
			f.dispatchMu.Unlock()
		}()
		notify(listeners, changes)
		for _, l := range freshness {
			l(fresh)
		}
	}
}

func (f *Fleet) valuesLocked() []status.MachineHealth {
	out := make([]status.MachineHealth, 0, len(f.machines))
	for _, e := range f.machines {
		out = append(out, e.health)
	}
	return out
}

func notify(listeners []Listener, changes []Change) {
	for _, c := range changes {
		for _, l := range listeners {
			l(c)
		}
	}
}

// View returns the current dashboard projection.
func (f *Fleet) View() Dashboard {
	f.mu.RLock()
	machines := f.valuesLocked()
	d := Dashboard{
		Plant:       f.plant,
		Stale:       f.stale,
		LastRefresh: f.lastRefresh,
		LastError:   f.lastErr,
	}
	f.mu.RUnlock()

	sort.Slice(machines, func(i, j int) bool { return machines[i].ID() < machines[j].ID() })
	d.Machines = machines
	d.Counts = status.Count(machines)
	return d
}

// Plant returns the plant-wide severity.
func (f *Fleet) Plant() status.Severity {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.plant
}

// Get returns the machine with the given id.
func (f *Fleet) Get(id string) (status.MachineHealth, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.machines[id]
	if !ok {
		return status.MachineHealth{}, ErrUnknownMachine
	}
	return e.health, nil
}

func (f *Fleet) State(id string) State {
	if _, err := f.Get(id); err != nil {
		return StateUnknown
	}
	return StateKnown
}

// Len returns the number of machines held.
func (f *Fleet) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.machines)
}
