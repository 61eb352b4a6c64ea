// Package tracker runs the position update loop and keeps the selected
// satellites supplied with element sets.
//
// The tick loop propagates every active satellite to the simulated clock's
// current instant at a fixed interval and never touches the network. A
// separate fetch loop downloads element sets and merges them into the
// collection.
package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/star/satviz/internal/clock"
	"github.com/star/satviz/internal/metrics"
	"github.com/star/satviz/internal/propagation"
	"github.com/star/satviz/internal/satellite"
	"github.com/star/satviz/internal/tle"
)

// Source supplies raw element set text for a list of catalog numbers.
type Source interface {
	Fetch(ctx context.Context, ids []tle.CatalogNumber) ([]byte, error)
	Source() string
}

// Config holds tracker tuning.
type Config struct {
	TickInterval  time.Duration
	FetchInterval time.Duration // wall time between full refetches
	OrbitSegments int
	OrbitRefresh  time.Duration // simulated time an orbit path stays valid
	MaxSelection  int
	Workers       int
	Propagation   propagation.Options
}

// DefaultConfig returns the defaults used by cmd/satviz.
func DefaultConfig() Config {
	return Config{
		TickInterval:  30 * time.Millisecond,
		FetchInterval: 6 * time.Hour,
		OrbitSegments: 100,
		OrbitRefresh:  10 * time.Minute,
		MaxSelection:  50,
		Workers:       1,
		Propagation:   propagation.DefaultOptions(),
	}
}

// Deps are the collaborators of a Tracker. Notifier and Tracer may be nil.
type Deps struct {
	Source   Source
	Store    *tle.Store
	Clock    *clock.Clock
	Notifier Notifier
	Logger   *slog.Logger
	Tracer   trace.Tracer
}

// Tracker owns the satellite collection and the loops that update it.
type Tracker struct {
	cfg      Config
	source   Source
	store    *tle.Store
	clock    *clock.Clock
	notifier Notifier
	logger   *slog.Logger
	tracer   trace.Tracer

	coll    *satellite.Collection
	refresh chan struct{}
}

// New returns a tracker with an empty selection.
func New(cfg Config, deps Deps) *Tracker {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.OrbitSegments < 1 {
		cfg.OrbitSegments = def.OrbitSegments
	}
	if cfg.OrbitRefresh <= 0 {
		cfg.OrbitRefresh = def.OrbitRefresh
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{Logger: deps.Logger}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("github.com/star/satviz/internal/tracker")
	}
	if deps.Store == nil {
		deps.Store = tle.NewStore()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New(time.Now())
	}

	t := &Tracker{
		cfg:      cfg,
		source:   deps.Source,
		store:    deps.Store,
		clock:    deps.Clock,
		notifier: deps.Notifier,
		logger:   deps.Logger.With("component", "tracker"),
		tracer:   deps.Tracer,
		refresh:  make(chan struct{}, 1),
	}
	pool := propagation.NewWorkerPool(cfg.Workers, t.logger)
	metrics.SetPropagationWorkers(pool.Workers())
	t.coll = satellite.NewCollection(satellite.Options{
		Propagation:  cfg.Propagation,
		Pool:         pool,
		MaxSelection: cfg.MaxSelection,
		OnEvict:      t.evicted,
		Logger:       t.logger,
	})
	return t
}

// Clock returns the simulated clock.
func (t *Tracker) Clock() *clock.Clock { return t.clock }

// Store returns the element set store.
func (t *Tracker) Store() *tle.Store { return t.store }

// Snapshot returns the current view of the selected satellites.
func (t *Tracker) Snapshot() *satellite.Snapshot { return t.coll.Snapshot() }

// Select replaces the selection. New satellites are activated from the store
// when it already holds their element sets; the rest wait for the next fetch,
// which is requested immediately.
func (t *Tracker) Select(ids []tle.CatalogNumber) (added, removed []tle.CatalogNumber, err error) {
	added, removed, err = t.coll.Select(ids)
	if err != nil {
		return nil, nil, err
	}
	t.afterAdd(added)
	t.updateGauges()
	return added, removed, nil
}

// Add selects one satellite.
func (t *Tracker) Add(id tle.CatalogNumber) (bool, error) {
	added, err := t.coll.Add(id)
	if err != nil || !added {
		return added, err
	}
	t.afterAdd([]tle.CatalogNumber{id})
	t.updateGauges()
	return true, nil
}

// Remove drops one satellite. Results still in flight for it are discarded.
func (t *Tracker) Remove(id tle.CatalogNumber) bool {
	removed := t.coll.Remove(id)
	t.updateGauges()
	return removed
}

// SetOrbitVisible toggles orbit path upkeep for a satellite.
func (t *Tracker) SetOrbitVisible(id tle.CatalogNumber, visible bool) error {
	return t.coll.SetOrbitVisible(id, visible)
}

func (t *Tracker) afterAdd(added []tle.CatalogNumber) {
	if len(added) == 0 {
		return
	}
	var known []*tle.Record
	for _, id := range added {
		if rec, ok := t.store.Lookup(id); ok {
			known = append(known, rec)
		}
	}
	t.coll.Merge(known)
	if len(known) < len(added) {
		t.RequestRefresh()
	}
}

// RequestRefresh asks the fetch loop to run as soon as possible. Requests
// made while one is pending are coalesced.
func (t *Tracker) RequestRefresh() {
	select {
	case t.refresh <- struct{}{}:
	default:
	}
}

// Tick propagates all active satellites to the clock's current instant and
// refreshes due orbit paths.
func (t *Tracker) Tick(ctx context.Context) (satellite.TickReport, error) {
	now := t.clock.Now()
	report, err := t.coll.Tick(ctx, now)
	if err != nil {
		return report, err
	}
	metrics.ObserveTick(report.Duration)

	if due := t.coll.Snapshot().OrbitsDue(now, t.cfg.OrbitRefresh); len(due) > 0 {
		if err := t.refreshOrbits(ctx, now, len(due)); err != nil {
			return report, err
		}
	}
	if len(report.Evicted) > 0 {
		t.updateGauges()
	}
	return report, nil
}

func (t *Tracker) refreshOrbits(ctx context.Context, now time.Time, due int) error {
	ctx, span := t.tracer.Start(ctx, "tracker.refresh_orbits",
		trace.WithAttributes(attribute.Int("orbits_due", due)))
	defer span.End()

	report, err := t.coll.RefreshOrbits(ctx, now, t.cfg.OrbitSegments, t.cfg.OrbitRefresh)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(
		attribute.Int("orbits_refreshed", report.Refreshed),
		attribute.Int("evicted", len(report.Evicted)),
	)
	metrics.AddOrbitRefreshes(report.Refreshed)
	return nil
}

// RefreshReport summarises one Refresh.
type RefreshReport struct {
	Requested   int
	Parsed      int
	ParseErrors int
	Stored      int
	Activated   []tle.CatalogNumber
	Superseded  []tle.CatalogNumber
	Rejected    []tle.CatalogNumber
}

// Refresh fetches element sets for every selected satellite, merges them
// into the store and the collection, and rejects requested satellites that
// are still without an element set.
func (t *Tracker) Refresh(ctx context.Context) (RefreshReport, error) {
	ids := t.coll.Snapshot().IDs()
	report := RefreshReport{Requested: len(ids)}
	if len(ids) == 0 || t.source == nil {
		return report, nil
	}

	ctx, span := t.tracer.Start(ctx, "tracker.refresh",
		trace.WithAttributes(attribute.Int("requested", len(ids))))
	defer span.End()

	start := time.Now()
	body, err := t.source.Fetch(ctx, ids)
	if err != nil {
		metrics.IncTLEFetch("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("fetch element sets: %w", err)
	}
	metrics.IncTLEFetch("ok")

	records, parseErrs, err := tle.Parse(bytes.NewReader(body), t.logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("parse element sets: %w", err)
	}
	report.Parsed = len(records)
	report.ParseErrors = len(parseErrs)
	metrics.AddParseErrors(len(parseErrs))

	stored := t.store.Merge(t.source.Source(), time.Now().UTC(), records)
	report.Stored = len(stored)
	metrics.SetTLEDatasetAge(t.store.AgeSeconds())

	var current []*tle.Record
	for _, id := range ids {
		if rec, ok := t.store.Lookup(id); ok {
			current = append(current, rec)
		}
	}
	merged := t.coll.Merge(current)
	report.Activated = merged.Activated
	report.Superseded = merged.Superseded

	reasons := make(map[tle.CatalogNumber]string, len(parseErrs))
	for _, pe := range parseErrs {
		if pe.CatalogNumber != "" {
			reasons[pe.CatalogNumber] = pe.Error()
		}
	}
	for _, id := range ids {
		if !t.coll.Reject(id) {
			continue
		}
		reason, ok := reasons[id]
		if !ok {
			reason = "no element set returned"
		}
		report.Rejected = append(report.Rejected, id)
		metrics.IncRejections()
		t.notifier.SatelliteRejected(id, reason)
	}

	t.updateGauges()
	span.SetAttributes(
		attribute.Int("parsed", report.Parsed),
		attribute.Int("parse_errors", report.ParseErrors),
		attribute.Int("rejected", len(report.Rejected)),
	)
	t.logger.Info("element sets refreshed",
		"requested", report.Requested,
		"parsed", report.Parsed,
		"parse_errors", report.ParseErrors,
		"activated", len(report.Activated),
		"superseded", len(report.Superseded),
		"rejected", len(report.Rejected),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

// Run drives the tick loop and the fetch loop until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("tracker started",
		"tick_interval_ms", t.cfg.TickInterval.Milliseconds(),
		"fetch_interval", t.cfg.FetchInterval.String(),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.fetchLoop(ctx)
	}()

	ticker := time.NewTicker(t.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			t.logger.Info("tracker stopped")
			return nil
		case <-ticker.C:
			if _, err := t.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Error("tick failed", "error", err)
			}
		}
	}
}

func (t *Tracker) fetchLoop(ctx context.Context) {
	var periodic <-chan time.Time
	if t.cfg.FetchInterval > 0 {
		ticker := time.NewTicker(t.cfg.FetchInterval)
		defer ticker.Stop()
		periodic = ticker.C
	}
	age := time.NewTicker(10 * time.Second)
	defer age.Stop()

	t.RequestRefresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.refresh:
		case <-periodic:
		case <-age.C:
			if a := t.store.AgeSeconds(); a >= 0 {
				metrics.SetTLEDatasetAge(a)
			}
			continue
		}
		if _, err := t.Refresh(ctx); err != nil && ctx.Err() == nil {
			t.logger.Warn("element set refresh failed", "error", err)
		}
	}
}

func (t *Tracker) evicted(ev satellite.Eviction) {
	metrics.AddEvictions(1)
	t.notifier.SatelliteEvicted(ev.CatalogNumber, ev.Err)
}

func (t *Tracker) updateGauges() {
	snap := t.coll.Snapshot()
	for _, st := range []satellite.State{satellite.Uninitialized, satellite.Active} {
		metrics.SetSatellites(st.String(), len(snap.InState(st)))
	}
}
