package availability

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/booking"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/observability/metrics"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/pkg/logging"
)

const defaultConcurrency = 8

// Update notifies subscribers that a snapshot changed.
type Update struct {
	Mode  string
	Days  *DayMap
	Slots *SlotMap
}

// Resolver computes day and slot availability. Each new resolution
// supersedes the previous one of the same mode: the old batch is cancelled
// and its late results are dropped.
type Resolver struct {
	prober       Prober
	logger       *logging.Logger
	metrics      *metrics.BookingMetrics
	now          func() time.Time
	concurrency  int
	limiter      *rate.Limiter
	probeTimeout time.Duration

	mu         sync.Mutex
	dayGen     uint64
	slotGen    uint64
	dayCancel  context.CancelFunc
	slotCancel context.CancelFunc
	days       *DayMap
	slots      *SlotMap
	subs       map[int]chan Update
	nextSub    int

	wg sync.WaitGroup
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithConcurrency bounds the number of in-flight day probes.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRateLimit paces probes to perSecond. Zero disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(r *Resolver) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithProbeTimeout bounds a single probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.probeTimeout = d }
}

// WithMetrics records probe outcomes.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithClock overrides the clock used to pick the first candidate day.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver builds a resolver on top of prober.
func NewResolver(prober Prober, logger *logging.Logger, opts ...Option) *Resolver {
	if prober == nil {
		panic("availability: prober is required")
	}
	r := &Resolver{
		prober:      prober,
		logger:      logger.Component("availability"),
		now:         time.Now,
		concurrency: defaultConcurrency,
		subs:        make(map[int]chan Update),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CandidateDays lists the days of a month worth probing: from today when the
// month is the current one, otherwise from the first, through month end.
func CandidateDays(now time.Time, year int, month time.Month) ([]int, error) {
	if year <= 0 || month < time.January || month > time.December {
		return nil, ErrInvalidMonth
	}
	first := 1
	today := booking.DateOf(now)
	if today.SameMonth(year, month) {
		first = today.Day
	}
	last := booking.DaysIn(year, month)
	days := make([]int, 0, last-first+1)
	for d := first; d <= last; d++ {
		days = append(days, d)
	}
	return days, nil
}

// ResolveDays probes every candidate day of the month for the draft's
// selection and returns the settled map. Intermediate snapshots are
// published to subscribers as probes settle.
func (r *Resolver) ResolveDays(ctx context.Context, draft booking.Draft, year int, month time.Month) (*DayMap, error) {
	run, err := r.beginDays(ctx, draft, year, month)
	if err != nil {
		return nil, err
	}
	return run()
}

// StartDays supersedes the current day resolution immediately and runs the
// new one in the background. Precondition failures are returned at once.
func (r *Resolver) StartDays(ctx context.Context, draft booking.Draft, year int, month time.Month) error {
	run, err := r.beginDays(ctx, draft, year, month)
	if err != nil {
		return err
	}
	go func() { _, _ = run() }()
	return nil
}

// beginDays claims a new generation and returns the batch to run.
func (r *Resolver) beginDays(ctx context.Context, draft booking.Draft, year int, month time.Month) (func() (*DayMap, error), error) {
	key := KeyOf(draft)
	days, monthErr := CandidateDays(r.now(), year, month)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.dayGen++
	gen := r.dayGen
	if r.dayCancel != nil {
		r.dayCancel()
		r.dayCancel = nil
	}
	if monthErr != nil || !key.Resolvable() {
		r.days = nil
		r.publishLocked(Update{Mode: metrics.ModeDay})
		if monthErr != nil {
			return nil, monthErr
		}
		return nil, ErrNotResolvable
	}
	r.days = newDayMap(key, year, month, len(days))
	r.publishLocked(Update{Mode: metrics.ModeDay, Days: r.days})
	batchCtx, cancel := context.WithCancel(ctx)
	r.dayCancel = cancel
	r.wg.Add(1)

	services := append([]catalog.ServiceID(nil), draft.Services...)
	return func() (*DayMap, error) {
		defer r.wg.Done()
		defer cancel()

		g, gctx := errgroup.WithContext(batchCtx)
		g.SetLimit(r.concurrency)
		for _, day := range days {
			if gctx.Err() != nil {
				break
			}
			day := day
			g.Go(func() error {
				q := Query{
					ClinicID: key.ClinicID,
					DoctorID: key.DoctorID,
					Date:     booking.Date{Year: year, Month: month, Day: day},
					Services: services,
				}
				slots, ok := r.probe(gctx, q, metrics.ModeDay)
				r.settleDay(gen, day, ok && len(slots) > 0)
				return nil
			})
		}
		_ = g.Wait()

		r.mu.Lock()
		defer r.mu.Unlock()
		if gen != r.dayGen {
			return nil, ErrSuperseded
		}
		if err := ctx.Err(); err != nil {
			return r.days, err
		}
		return r.days, nil
	}, nil
}

func (r *Resolver) settleDay(gen uint64, day int, available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.dayGen || r.days == nil {
		r.metrics.ObserveStale(metrics.ModeDay)
		return
	}
	r.days = r.days.with(day, available)
	r.publishLocked(Update{Mode: metrics.ModeDay, Days: r.days})
}

// ResolveSlots probes one date and returns its slot map. A failed probe
// yields an empty map.
func (r *Resolver) ResolveSlots(ctx context.Context, draft booking.Draft, date booking.Date) (*SlotMap, error) {
	run, err := r.beginSlots(ctx, draft, date)
	if err != nil {
		return nil, err
	}
	return run()
}

// StartSlots is the background form of ResolveSlots.
func (r *Resolver) StartSlots(ctx context.Context, draft booking.Draft, date booking.Date) error {
	run, err := r.beginSlots(ctx, draft, date)
	if err != nil {
		return err
	}
	go func() { _, _ = run() }()
	return nil
}

func (r *Resolver) beginSlots(ctx context.Context, draft booking.Draft, date booking.Date) (func() (*SlotMap, error), error) {
	key := KeyOf(draft)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.slotGen++
	gen := r.slotGen
	if r.slotCancel != nil {
		r.slotCancel()
		r.slotCancel = nil
	}
	r.slots = nil
	if !key.Resolvable() || date.IsZero() {
		r.publishLocked(Update{Mode: metrics.ModeSlot})
		return nil, ErrNotResolvable
	}
	probeCtx, cancel := context.WithCancel(ctx)
	r.slotCancel = cancel
	r.wg.Add(1)

	q := Query{
		ClinicID: key.ClinicID,
		DoctorID: key.DoctorID,
		Date:     date,
		Services: append([]catalog.ServiceID(nil), draft.Services...),
	}
	return func() (*SlotMap, error) {
		defer r.wg.Done()
		defer cancel()

		slots, _ := r.probe(probeCtx, q, metrics.ModeSlot)

		r.mu.Lock()
		defer r.mu.Unlock()
		if gen != r.slotGen {
			r.metrics.ObserveStale(metrics.ModeSlot)
			return nil, ErrSuperseded
		}
		r.slots = &SlotMap{key: key, date: date, slots: slots}
		r.publishLocked(Update{Mode: metrics.ModeSlot, Slots: r.slots})
		return r.slots, nil
	}, nil
}

// probe runs one paced, time-bounded query. ok is false on any error.
func (r *Resolver) probe(ctx context.Context, q Query, mode string) ([]Slot, bool) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, false
		}
	}
	pctx := ctx
	if r.probeTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, r.probeTimeout)
		defer cancel()
	}

	start := time.Now()
	slots, err := r.prober.ProbeSlots(pctx, q)
	if ctx.Err() != nil {
		return nil, false
	}
	r.metrics.ObserveProbe(mode, err == nil && len(slots) > 0, time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			r.logger.Debug("availability probe failed",
				"mode", mode,
				"clinic_id", q.ClinicID,
				"doctor_id", q.DoctorID,
				"date", q.Date.String(),
				"error", err,
			)
		} else {
			r.logger.Warn("availability probe timed out", "mode", mode, "date", q.Date.String())
		}
		return nil, false
	}
	return slots, true
}

// Days returns the current day snapshot, nil when none is in progress.
func (r *Resolver) Days() *DayMap {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.days
}

// Slots returns the current slot snapshot, nil when none has settled.
func (r *Resolver) Slots() *SlotMap {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots
}

// ClearSlots drops the slot snapshot and cancels any slot probe.
func (r *Resolver) ClearSlots() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slotGen++
	if r.slotCancel != nil {
		r.slotCancel()
		r.slotCancel = nil
	}
	r.slots = nil
	r.publishLocked(Update{Mode: metrics.ModeSlot})
}

// Reset cancels all in-flight work and drops both snapshots.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.dayGen++
	if r.dayCancel != nil {
		r.dayCancel()
		r.dayCancel = nil
	}
	r.days = nil
	r.publishLocked(Update{Mode: metrics.ModeDay})
	r.mu.Unlock()
	r.ClearSlots()
}

// Wait blocks until every in-flight resolution has returned.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// Subscribe returns a channel that always holds the latest update, and a
// function that unsubscribes and closes it.
func (r *Resolver) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 1)
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs, id)
			close(ch)
		})
	}
}

// publishLocked replaces any unread update so slow readers only see the
// newest one. Caller holds r.mu.
func (r *Resolver) publishLocked(u Update) {
	for _, ch := range r.subs {
		select {
		case ch <- u:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}
