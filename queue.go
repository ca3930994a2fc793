package imagegate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Queue admits generation work under a concurrency cap and a daily quota.
//
// Admission is counter based. Waiters are not queued in order: whichever
// waiter next observes a free slot takes it.
type Queue struct {
	cfg     QueueConfig
	counter *Counter
	quota   *DailyQuota
	meter   Meter
	clock   clockwork.Clock
	logger  *slog.Logger

	// mu serializes check-then-increment within this process.
	mu sync.Mutex

	wakeMu sync.Mutex
	wake   chan struct{}

	listenMu     sync.Mutex
	listeners    map[uint64]func(active int64)
	nextListener uint64

	stopWatch context.CancelFunc
}

// Option configures a Queue.
type Option func(*Queue)

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(q *Queue) { q.meter = m }
}

// WithClock sets the clock used for polling, timeouts and the day key.
func WithClock(c clockwork.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// Status is a snapshot of admission state.
type Status struct {
	Active        int64  `json:"active"`
	MaxConcurrent int64  `json:"maxConcurrent"`
	DailyUsed     int64  `json:"dailyUsed"`
	DailyLimit    int64  `json:"dailyLimit"`
	LastResetDate string `json:"lastResetDate"`
}

// NewQueue creates a Queue over store. A nil store disables all limits.
// If the store implements Watcher, releases made by other processes wake
// local waiters immediately instead of at the next poll. Call Close to stop
// watching.
func NewQueue(cfg QueueConfig, store Store, opts ...Option) (*Queue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	q := &Queue{
		cfg:       cfg,
		wake:      make(chan struct{}),
		listeners: make(map[uint64]func(int64)),
	}
	for _, opt := range opts {
		opt(q)
	}

	if q.clock == nil {
		q.clock = clockwork.NewRealClock()
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	if q.meter == nil {
		q.meter = &noopMeter{}
	}

	q.counter = NewCounter(store, cfg.Keys.Active, q.logger)
	q.quota = NewDailyQuota(store, cfg.Keys, cfg.DailyLimit, loc, q.clock, q.logger)

	if _, ok := store.(Watcher); ok {
		ctx, cancel := context.WithCancel(context.Background())
		q.stopWatch = cancel
		err := q.counter.Watch(ctx, func(active int64) {
			if active < q.cfg.MaxConcurrent {
				q.wakeWaiters()
			}
			q.notify(active)
		})
		if err != nil {
			q.logger.Warn("watch active count, falling back to polling", "error", err)
		}
	}

	return q, nil
}

// Subscribe registers fn to be called with the active count when it
// changes. Changes made through this Queue are always reported; changes
// made by other processes are reported when the store implements Watcher.
// All subscribers share the Queue's single store subscription. fn must not
// block. The returned function removes the subscription.
func (q *Queue) Subscribe(fn func(active int64)) (unsubscribe func()) {
	q.listenMu.Lock()
	id := q.nextListener
	q.nextListener++
	q.listeners[id] = fn
	q.listenMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			q.listenMu.Lock()
			delete(q.listeners, id)
			q.listenMu.Unlock()
		})
	}
}

// Subscribers returns the number of registered subscriptions.
func (q *Queue) Subscribers() int {
	q.listenMu.Lock()
	defer q.listenMu.Unlock()
	return len(q.listeners)
}

func (q *Queue) notify(active int64) {
	q.listenMu.Lock()
	fns := make([]func(int64), 0, len(q.listeners))
	for _, fn := range q.listeners {
		fns = append(fns, fn)
	}
	q.listenMu.Unlock()

	for _, fn := range fns {
		fn(active)
	}
}

// Config returns the admission settings.
func (q *Queue) Config() QueueConfig { return q.cfg }

// Counter returns the active-request counter.
func (q *Queue) Counter() *Counter { return q.counter }

// Quota returns the daily quota tracker.
func (q *Queue) Quota() *DailyQuota { return q.quota }

// Status returns a snapshot of the admission state.
func (q *Queue) Status(ctx context.Context) Status {
	q.quota.CheckAndReset(ctx)
	return Status{
		Active:        q.counter.Active(ctx),
		MaxConcurrent: q.cfg.MaxConcurrent,
		DailyUsed:     q.quota.Used(ctx),
		DailyLimit:    q.quota.Limit(),
		LastResetDate: q.quota.LastReset(ctx),
	}
}

// EnterAndGenerate runs fn once a slot is free and the daily quota allows it.
//
// It returns ErrDailyLimitReached without calling fn when today's quota is
// used up. While all slots are taken it waits, re-checking every poll
// interval or sooner when a release is observed, until ctx is done or
// MaxWait elapses. The slot is released when fn returns, panics included.
// The daily count only grows when fn succeeds. fn's error is returned as is.
func (q *Queue) EnterAndGenerate(ctx context.Context, fn func(ctx context.Context) error) error {
	id := uuid.New().String()

	q.quota.CheckAndReset(ctx)
	if q.quota.Reached(ctx) {
		q.meter.OnAdmission(AdmissionEvent{
			RequestID: id,
			Outcome:   OutcomeRefused,
			Active:    q.counter.Active(ctx),
			DailyUsed: q.quota.Used(ctx),
		})
		return ErrDailyLimitReached
	}

	start := q.clock.Now()
	active, counted, err := q.waitForSlot(ctx, id)
	if err != nil {
		return err
	}

	if counted {
		q.notify(active)
	}
	q.meter.OnAdmission(AdmissionEvent{
		RequestID: id,
		Outcome:   OutcomeAdmitted,
		Active:    active,
		DailyUsed: q.quota.Used(ctx),
		Waited:    q.clock.Since(start),
	})

	// Bookkeeping outlives a cancelled caller.
	bg := context.WithoutCancel(ctx)

	var fnErr error
	defer func() {
		var left int64
		if counted {
			left = q.counter.Decrease(bg)
			q.notify(left)
		}
		q.wakeWaiters()
		q.meter.OnAdmission(AdmissionEvent{
			RequestID: id,
			Outcome:   OutcomeReleased,
			Active:    left,
			DailyUsed: q.quota.Used(bg),
			Error:     fnErr,
		})
	}()

	fnErr = fn(ctx)
	if fnErr != nil {
		return fnErr
	}

	q.quota.Increment(bg)
	return nil
}

// Close stops watching the store.
func (q *Queue) Close() error {
	if q.stopWatch != nil {
		q.stopWatch()
	}
	return nil
}

func (q *Queue) waitForSlot(ctx context.Context, id string) (int64, bool, error) {
	var deadline <-chan time.Time
	if q.cfg.MaxWait > 0 {
		t := q.clock.NewTimer(q.cfg.MaxWait)
		defer t.Stop()
		deadline = t.Chan()
	}

	for {
		// Taken before the check so a release in between is not missed.
		wake := q.wakeChan()

		active, admitted, counted := q.tryAcquire(ctx)
		if admitted {
			return active, counted, nil
		}

		q.meter.OnAdmission(AdmissionEvent{
			RequestID: id,
			Outcome:   OutcomeWaiting,
			Active:    active,
		})
		q.logger.Debug("queue full, waiting for a free slot",
			"request_id", id,
			"active", active,
			"max_concurrent", q.cfg.MaxConcurrent,
		)

		select {
		case <-ctx.Done():
			return 0, false, ctx.Err()
		case <-deadline:
			return 0, false, ErrWaitTimeout
		case <-wake:
		case <-q.clock.After(q.cfg.PollInterval):
		}
	}
}

func (q *Queue) tryAcquire(ctx context.Context) (active int64, admitted, counted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counter.acquire(ctx, q.cfg.MaxConcurrent)
}

func (q *Queue) wakeChan() <-chan struct{} {
	q.wakeMu.Lock()
	defer q.wakeMu.Unlock()
	return q.wake
}

func (q *Queue) wakeWaiters() {
	q.wakeMu.Lock()
	defer q.wakeMu.Unlock()
	close(q.wake)
	q.wake = make(chan struct{})
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (m *noopMeter) OnAdmission(AdmissionEvent) {}
func (m *noopMeter) OnResult(ResultEvent)       {}
