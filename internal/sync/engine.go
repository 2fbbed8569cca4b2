package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	otelScope       = "offsync/sync"
	spanPass        = "sync.pass"
	metricPushed    = "offsync.sync.records.pushed"
	metricFailed    = "offsync.sync.records.failed"
	metricSkipped   = "offsync.sync.records.skipped"
	metricInserted  = "offsync.sync.records.inserted"
	metricMerged    = "offsync.sync.records.merged"
	metricRemoved   = "offsync.sync.records.removed"
	metricConflicts = "offsync.sync.conflicts"
	metricPasses    = "offsync.sync.passes"

	// notifyBuffer bounds queued remote-changed notifications. Overflow is
	// dropped; the periodic pass catches up.
	notifyBuffer = 32
)

// CollectionStatus is the pending indicator for one collection.
type CollectionStatus struct {
	Name    string
	Pending int
}

// Engine sequences sync passes over a set of collections: push then pull,
// with at most one pass per collection in flight. Create one with
// [NewEngine] and either call [Engine.Sync]/[Engine.SyncAll] on demand or
// start the periodic loop with [Engine.Run].
type Engine struct {
	syncers  map[string]Syncer
	order    []string
	gate     ConnectivityGate
	interval time.Duration
	log      *slog.Logger

	flight  singleflight.Group
	changed chan string
	// inflight counts Sync calls whose pass has not delivered its result.
	inflight sync.WaitGroup

	// OTel instruments, never nil. No-ops when telemetry is disabled.
	tracer       trace.Tracer
	cntPushed    metric.Int64Counter
	cntFailed    metric.Int64Counter
	cntSkipped   metric.Int64Counter
	cntInserted  metric.Int64Counter
	cntMerged    metric.Int64Counter
	cntRemoved   metric.Int64Counter
	cntConflicts metric.Int64Counter
	cntPasses    metric.Int64Counter
}

// NewEngine creates an Engine over syncers, which must have unique names.
// A nil gate means the network is always worth trying.
func NewEngine(syncers []Syncer, gate ConnectivityGate, interval time.Duration, logger *slog.Logger) (*Engine, error) {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	e := &Engine{
		syncers:  make(map[string]Syncer, len(syncers)),
		gate:     gate,
		interval: interval,
		log:      logger,
		changed:  make(chan string, notifyBuffer),

		tracer:       tracer,
		cntPushed:    mustCounter(metricPushed, "Number of pending records pushed to the remote store"),
		cntFailed:    mustCounter(metricFailed, "Number of records whose push or merge failed"),
		cntSkipped:   mustCounter(metricSkipped, "Number of records left for a later pass"),
		cntInserted:  mustCounter(metricInserted, "Number of remote records inserted locally"),
		cntMerged:    mustCounter(metricMerged, "Number of remote copies merged over synced local records"),
		cntRemoved:   mustCounter(metricRemoved, "Number of local records removed by remote tombstones"),
		cntConflicts: mustCounter(metricConflicts, "Number of pending updates dropped after a remote delete"),
		cntPasses:    mustCounter(metricPasses, "Number of sync passes run"),
	}
	for _, s := range syncers {
		if _, dup := e.syncers[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate collection %q", s.Name())
		}
		e.syncers[s.Name()] = s
		e.order = append(e.order, s.Name())
	}
	return e, nil
}

// Sync runs one pass for the named collection. If a pass for it is already
// running, the call joins that pass and returns its result. Cancelling ctx
// stops the wait, not the pass: committed local state stays valid and the
// rest is picked up by the next pass.
func (e *Engine) Sync(ctx context.Context, name string) (Stats, error) {
	s, ok := e.syncers[name]
	if !ok {
		return Stats{}, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}

	e.inflight.Add(1)
	ch := e.flight.DoChan(name, func() (any, error) {
		return e.pass(context.WithoutCancel(ctx), s)
	})

	select {
	case <-ctx.Done():
		go func() {
			<-ch
			e.inflight.Done()
		}()
		return Stats{}, ctx.Err()
	case res := <-ch:
		e.inflight.Done()
		stats, _ := res.Val.(Stats)
		return stats, res.Err
	}
}

// Wait blocks until every pass started by [Engine.Sync] has finished,
// including passes whose callers stopped waiting. Call it before closing
// the local store.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// SyncAll runs a pass for every collection in registration order. It keeps
// going past failing collections and returns the combined statistics and
// errors.
func (e *Engine) SyncAll(ctx context.Context) (Stats, error) {
	var total Stats
	var errs []error
	for _, name := range e.order {
		stats, err := e.Sync(ctx, name)
		total = total.Add(stats)
		if err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	e.log.Info("sync complete",
		"pushed", total.Pushed,
		"failed", total.Failed,
		"skipped", total.Skipped,
		"inserted", total.Inserted,
		"merged", total.Merged,
		"removed", total.Removed,
		"conflicts", total.Conflicts,
	)
	return total, errors.Join(errs...)
}

// RemoteChanged tells the engine that the remote copy of a collection
// changed, e.g. because a push notification arrived. [Engine.Run] schedules
// a pass for it. Never blocks.
func (e *Engine) RemoteChanged(name string) {
	select {
	case e.changed <- name:
	default:
		e.log.Debug("remote-changed queue full, dropping notification", "collection", name)
	}
}

// Status returns the pending indicator of every collection.
func (e *Engine) Status(ctx context.Context) ([]CollectionStatus, error) {
	out := make([]CollectionStatus, 0, len(e.order))
	for _, name := range e.order {
		n, err := e.syncers[name].PendingCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("counting pending %s records: %w", name, err)
		}
		out = append(out, CollectionStatus{Name: name, Pending: n})
	}
	return out, nil
}

// Run runs a pass for every collection immediately and then on every tick,
// plus one pass per remote-changed notification. It blocks until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.syncAllLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("sync engine shutting down")
			return ctx.Err()
		case <-ticker.C:
			e.syncAllLogged(ctx)
		case name := <-e.changed:
			e.log.Info("remote change triggered sync", "collection", name)
			if _, err := e.Sync(ctx, name); err != nil {
				e.logPassError(name, err)
			}
		}
	}
}

func (e *Engine) syncAllLogged(ctx context.Context) {
	if _, err := e.SyncAll(ctx); err != nil {
		e.logPassError("", err)
	}
}

func (e *Engine) logPassError(name string, err error) {
	if errors.Is(err, ErrNetworkUnavailable) && !errors.Is(err, ErrMalformedResponse) {
		e.log.Info("offline, records stay pending", "collection", name)
		return
	}
	e.log.Error("sync pass finished with errors", "collection", name, "error", err)
}

// pass runs one push/pull pass, recording a trace span and metrics.
func (e *Engine) pass(ctx context.Context, s Syncer) (Stats, error) {
	ctx, span := e.tracer.Start(ctx, spanPass, trace.WithAttributes(
		attribute.String("sync.collection", s.Name()),
	))
	defer span.End()

	if e.gate != nil && !e.gate.IsAvailable(ctx) {
		span.SetAttributes(attribute.Bool("sync.offline", true))
		return Stats{}, fmt.Errorf("%s: %w", s.Name(), ErrNetworkUnavailable)
	}

	stats, err := s.Pass(ctx)
	if errors.Is(err, ErrNetworkUnavailable) {
		if inv, ok := e.gate.(Invalidator); ok {
			inv.Invalidate()
		}
	}

	attrs := metric.WithAttributes(attribute.String("collection", s.Name()))
	e.cntPasses.Add(ctx, 1, attrs)
	// Counters are safe to record even when the span is a no-op.
	for _, c := range []struct {
		counter metric.Int64Counter
		n       int
	}{
		{e.cntPushed, stats.Pushed},
		{e.cntFailed, stats.Failed},
		{e.cntSkipped, stats.Skipped},
		{e.cntInserted, stats.Inserted},
		{e.cntMerged, stats.Merged},
		{e.cntRemoved, stats.Removed},
		{e.cntConflicts, stats.Conflicts},
	} {
		if c.n > 0 {
			c.counter.Add(ctx, int64(c.n), attrs)
		}
	}

	span.SetAttributes(
		attribute.Int("sync.pushed", stats.Pushed),
		attribute.Int("sync.failed", stats.Failed),
		attribute.Int("sync.skipped", stats.Skipped),
		attribute.Int("sync.inserted", stats.Inserted),
		attribute.Int("sync.merged", stats.Merged),
		attribute.Int("sync.removed", stats.Removed),
		attribute.Int("sync.conflicts", stats.Conflicts),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pass finished with errors")
	}
	return stats, err
}
