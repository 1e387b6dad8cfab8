package logging

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

type aggregateKey struct {
	component string
	event     string
}

type aggregateEntry struct {
	count int64
	last  []slog.Attr
}

// Aggregator counts repeated events and logs one summary line per event kind
// per interval instead of one line per occurrence.
type Aggregator struct {
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	entries map[aggregateKey]*aggregateEntry

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewAggregator creates an aggregator flushing every intervalSecs seconds.
// A nil logger drops everything.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 60
	}
	return &Aggregator{
		logger:   logger,
		interval: time.Duration(intervalSecs) * time.Second,
		entries:  make(map[aggregateKey]*aggregateEntry),
		done:     make(chan struct{}),
	}
}

// Start launches the periodic flush.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Flush()
			case <-a.done:
				return
			}
		}
	}()
}

// Stop ends the flush loop and writes what is left.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
		a.Flush()
	})
}

// Record counts one occurrence. The attrs of the latest call are kept.
func (a *Aggregator) Record(component, event string, fields ...slog.Attr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := aggregateKey{component: component, event: event}
	entry, ok := a.entries[key]
	if !ok {
		entry = &aggregateEntry{}
		a.entries[key] = entry
	}
	entry.count++
	if len(fields) > 0 {
		entry.last = fields
	}
}

// Count returns the pending (not yet flushed) count for an event.
func (a *Aggregator) Count(component, event string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.entries[aggregateKey{component: component, event: event}]; ok {
		return e.count
	}
	return 0
}

// Flush logs and resets all pending counts.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	entries := a.entries
	a.entries = make(map[aggregateKey]*aggregateEntry)
	a.mu.Unlock()

	if a.logger == nil || len(entries) == 0 {
		return
	}

	keys := make([]aggregateKey, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].component != keys[j].component {
			return keys[i].component < keys[j].component
		}
		return keys[i].event < keys[j].event
	})

	for _, k := range keys {
		e := entries[k]
		args := []any{
			slog.String("component", CompSummary),
			slog.String("source", k.component),
			slog.String("event", k.event),
			slog.Int64("count", e.count),
			slog.Int("window_seconds", int(a.interval.Seconds())),
		}
		for _, f := range e.last {
			args = append(args, f)
		}
		a.logger.Info("event_summary", args...)
	}
}
