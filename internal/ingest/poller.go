package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/wxalerts/internal/alert"
)

const tracerName = "github.com/linnemanlabs/wxalerts/internal/ingest"

// Tick results reported to Hooks.OnTick.
const (
	TickOK               = "ok"
	TickSkipped          = "skipped"
	TickCanceled         = "canceled"
	TickFetchError       = "fetch_error"
	TickPersistenceError = "persistence_error"
)

// Phase is the poll loop state.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseClassifying
	PhaseDispatching
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseClassifying:
		return "classifying"
	case PhaseDispatching:
		return "dispatching"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Fetcher returns the active alerts for a zone.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, zone string) (*alert.Snapshot, error)
}

// Hooks are optional callbacks for instrumentation. Nil fields are skipped.
type Hooks struct {
	OnTick      func(result string, duration float64)
	OnCoalesced func()
	OnFetch     func(duration float64, alerts, rejected int, err error)
	OnClassify  func(c Classification)
	OnEffect    func(kind EffectKind, err error)
	OnPrune     func(n int)
}

// Decision records what happened to one alert during a tick.
type Decision struct {
	AlertID        string
	Classification Classification
	Applied        bool
	Effects        []EffectKind
}

// TickReport summarises one tick.
type TickReport struct {
	ID           string
	Skipped      bool
	Fetched      int
	Rejected     int
	Filtered     int
	Decisions    []Decision
	EffectErrors int
	Pruned       int
	PruneFailed  bool
}

// Poller owns the fetch -> classify -> dispatch pipeline and is the only
// ingestion writer of its Store. Alerts of one snapshot are processed in
// order, and the delta of alert k is visible to the classification of alert k+1.
type Poller struct {
	store    Store
	fetcher  Fetcher
	settings SettingsSource
	sink     Sink
	logger   log.Logger
	hooks    Hooks
	tracer   trace.Tracer
	now      func() time.Time

	busy  atomic.Bool
	phase atomic.Int32
	kick  chan struct{}
	wg    sync.WaitGroup

	mu        sync.Mutex
	malformed map[string]struct{} // rejected ids already logged
}

// NewPoller creates a poller. A nil sink discards effects.
func NewPoller(store Store, fetcher Fetcher, settings SettingsSource, sink Sink, logger log.Logger, hooks Hooks) *Poller {
	if logger == nil {
		logger = log.Nop()
	}
	if sink == nil {
		sink = SinkFunc(func(context.Context, Effect) error { return nil })
	}
	return &Poller{
		store:     store,
		fetcher:   fetcher,
		settings:  settings,
		sink:      sink,
		logger:    logger,
		hooks:     hooks,
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		kick:      make(chan struct{}, 1),
		malformed: make(map[string]struct{}),
	}
}

// SetTracerProvider replaces the tracer used for tick spans.
func (p *Poller) SetTracerProvider(tp trace.TracerProvider) {
	p.tracer = tp.Tracer(tracerName)
}

// Phase returns the current loop state.
func (p *Poller) Phase() Phase {
	return Phase(p.phase.Load())
}

// Kick asks Run for an immediate tick. Kicks made while one is pending are merged.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run ticks immediately and then on the configured interval until ctx is
// done. The interval is re-read after every firing. A firing while a tick is
// running is dropped. Run returns after the in-flight tick finishes.
func (p *Poller) Run(ctx context.Context) error {
	p.fire(ctx)

	timer := time.NewTimer(p.settings.Current().Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return nil
		case <-timer.C:
			p.fire(ctx)
			timer.Reset(p.settings.Current().Interval())
		case <-p.kick:
			p.fire(ctx)
		}
	}
}

// Tick runs one tick synchronously. It returns ErrTickInProgress without
// doing anything when another tick has not finished.
func (p *Poller) Tick(ctx context.Context) (*TickReport, error) {
	if !p.busy.CompareAndSwap(false, true) {
		p.coalesced(ctx)
		return nil, ErrTickInProgress
	}
	defer p.busy.Store(false)
	return p.tick(ctx)
}

// Reset clears persisted state between ticks. It returns ErrTickInProgress
// while a tick is running, since that tick holds a State loaded before the reset.
func (p *Poller) Reset(ctx context.Context) error {
	if !p.busy.CompareAndSwap(false, true) {
		return ErrTickInProgress
	}
	defer p.busy.Store(false)

	if err := p.store.Reset(ctx); err != nil {
		return Persistence("reset", err)
	}
	p.mu.Lock()
	clear(p.malformed)
	p.mu.Unlock()
	p.logger.Info(ctx, "alert state reset")
	return nil
}

func (p *Poller) fire(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		p.coalesced(ctx)
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Store(false)
		// failures are logged and reported inside tick
		_, _ = p.tick(ctx)
	}()
}

func (p *Poller) coalesced(ctx context.Context) {
	p.logger.Info(ctx, "poll tick still running, dropping firing", "phase", p.Phase().String())
	if p.hooks.OnCoalesced != nil {
		p.hooks.OnCoalesced()
	}
}

func (p *Poller) tick(ctx context.Context) (*TickReport, error) {
	start := time.Now()
	rep := &TickReport{ID: ulid.Make().String()}
	L := p.logger.With("tick_id", rep.ID)
	defer p.phase.Store(int32(PhaseIdle))

	finish := func(result string) {
		if p.hooks.OnTick != nil {
			p.hooks.OnTick(result, time.Since(start).Seconds())
		}
	}

	// cancellation is only honoured here, never mid-dispatch
	if err := ctx.Err(); err != nil {
		finish(TickCanceled)
		return rep, err
	}

	st := p.settings.Current()
	if !st.Enabled {
		rep.Skipped = true
		finish(TickSkipped)
		return rep, nil
	}

	ctx, span := p.tracer.Start(ctx, "ingest.Tick", trace.WithAttributes(
		attribute.String("wxalerts.tick.id", rep.ID),
		attribute.String("wxalerts.zone", st.Zone),
	))
	defer span.End()

	fail := func(result string, err error) (*TickReport, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// shutdown interrupting the fetch is not an error the user needs to see
		if result == TickFetchError && ctx.Err() != nil {
			L.Info(ctx, "poll tick canceled", "error", err)
			finish(TickCanceled)
			return rep, err
		}
		L.Error(ctx, err, "poll tick failed", "result", result)
		p.reportError(ctx, L, err)
		finish(result)
		return rep, err
	}

	p.phase.Store(int32(PhaseFetching))
	fetchStart := time.Now()
	snap, err := p.fetcher.FetchSnapshot(ctx, st.Zone)
	if err != nil {
		if p.hooks.OnFetch != nil {
			p.hooks.OnFetch(time.Since(fetchStart).Seconds(), 0, 0, err)
		}
		return fail(TickFetchError, fmt.Errorf("fetch alerts for zone %s: %w", st.Zone, err))
	}
	if p.hooks.OnFetch != nil {
		p.hooks.OnFetch(time.Since(fetchStart).Seconds(), len(snap.Alerts), len(snap.Rejected), nil)
	}
	rep.Fetched = len(snap.Alerts)
	rep.Rejected = len(snap.Rejected)
	p.noteMalformed(ctx, L, snap.Rejected)

	alerts := make([]alert.Alert, 0, len(snap.Alerts))
	for i := range snap.Alerts {
		if st.Admits(snap.Alerts[i].Severity) {
			alerts = append(alerts, snap.Alerts[i])
		}
	}
	rep.Filtered = len(snap.Alerts) - len(alerts)
	span.SetAttributes(attribute.Int("wxalerts.alerts", len(alerts)))

	// shutdown must not interrupt a dispatch half way through
	dctx := context.WithoutCancel(ctx)

	p.phase.Store(int32(PhaseClassifying))
	state, err := LoadState(dctx, p.store)
	if err != nil {
		return fail(TickPersistenceError, err)
	}

	for i := range alerts {
		al := &alerts[i]

		p.phase.Store(int32(PhaseClassifying))
		class := Classify(al, state)
		if p.hooks.OnClassify != nil {
			p.hooks.OnClassify(class)
		}
		batch, delta := Dispatch(al, class)

		p.phase.Store(int32(PhaseDispatching))
		d := Decision{AlertID: al.ID, Classification: class}
		if !delta.IsZero() {
			if err := p.store.ApplyDelta(dctx, delta); err != nil {
				rep.Decisions = append(rep.Decisions, d)
				return fail(TickPersistenceError, fmt.Errorf("apply delta for alert %s: %w", al.ID, err))
			}
			if err := state.Apply(delta); err != nil {
				L.Warn(dctx, "state mirror rejected an applied delta", "alert_id", al.ID, "error", err)
			}
			d.Applied = true
		}

		if class == ClassAlreadyAtCapacity {
			L.Warn(dctx, "alert id seen but no stored record, skipping", "alert_id", al.ID)
		}

		d.Effects = batch.Kinds()
		rep.EffectErrors += p.perform(dctx, L, al.ID, batch)
		rep.Decisions = append(rep.Decisions, d)
	}

	if st.Retention > 0 {
		n, err := p.store.Prune(dctx, p.now().Add(-st.Retention))
		if err != nil {
			// the batch is already committed, so the tick still succeeds
			err = fmt.Errorf("prune stored alerts: %w", Persistence("prune", err))
			rep.PruneFailed = true
			L.Warn(dctx, "retention prune failed", "error", err)
			p.reportError(dctx, L, err)
		} else if n > 0 {
			rep.Pruned = n
			L.Info(dctx, "pruned stored alerts", "count", n, "retention", st.Retention.String())
			if p.hooks.OnPrune != nil {
				p.hooks.OnPrune(n)
			}
		}
	}

	L.Info(dctx, "poll tick complete",
		"zone", st.Zone,
		"fetched", rep.Fetched,
		"rejected", rep.Rejected,
		"filtered", rep.Filtered,
		"processed", len(rep.Decisions),
		"effect_errors", rep.EffectErrors,
	)
	finish(TickOK)
	return rep, nil
}

// perform runs every effect of the batch; failures are logged and counted only.
func (p *Poller) perform(ctx context.Context, L log.Logger, alertID string, batch Batch) int {
	var failed int
	for _, e := range batch {
		err := p.sink.Perform(ctx, e)
		if p.hooks.OnEffect != nil {
			p.hooks.OnEffect(e.Kind, err)
		}
		if err != nil {
			failed++
			L.Warn(ctx, "side effect failed", "error", &SideEffectError{Kind: e.Kind, AlertID: alertID, Err: err})
		}
	}
	return failed
}

func (p *Poller) reportError(ctx context.Context, L log.Logger, err error) {
	e := ReportError(err.Error())
	rerr := p.sink.Perform(context.WithoutCancel(ctx), e)
	if p.hooks.OnEffect != nil {
		p.hooks.OnEffect(e.Kind, rerr)
	}
	if rerr != nil {
		L.Warn(ctx, "error report failed", "error", rerr)
	}
}

// noteMalformed logs each rejected record once per process.
func (p *Poller) noteMalformed(ctx context.Context, L log.Logger, rejected []*alert.MalformedError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, me := range rejected {
		key := me.ID + "\x00" + me.Reason
		if _, ok := p.malformed[key]; ok {
			continue
		}
		p.malformed[key] = struct{}{}
		L.Warn(ctx, "skipping malformed alert", "alert_id", me.ID, "reason", me.Reason)
	}
}
