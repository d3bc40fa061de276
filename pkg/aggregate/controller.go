package aggregate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/panel-aggregator/pkg/fetcher"
	"github.com/Sternrassler/panel-aggregator/pkg/partition"
	"github.com/Sternrassler/panel-aggregator/pkg/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for fetch cycles.
var (
	fetchCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_fetch_cycles_total",
		Help: "Total fetch cycles by view and outcome",
	}, []string{"view", "outcome"})

	fetchCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "panel_fetch_cycle_duration_seconds",
		Help:    "Time from dispatch until all partitions of a cycle settled",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"view"})

	staleResultsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_stale_results_dropped_total",
		Help: "Fetch cycles whose results arrived after a newer cycle started",
	}, []string{"view"})
)

// State is the controller's fetch state.
type State string

const (
	// StateIdle means no query was set yet.
	StateIdle State = "idle"

	// StateFetching means a fetch cycle is in flight.
	StateFetching State = "fetching"

	// StateSettled means the latest cycle completed without errors.
	StateSettled State = "settled"

	// StateFailed means the latest cycle completed with a partition error.
	StateFailed State = "failed"
)

// Option configures a Controller.
type Option func(*options)

type options struct {
	name   string
	ctx    context.Context
	logger *zerolog.Logger
}

// WithName labels logs and metrics with a view name.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithContext sets the parent context of all fetch cycles. Cancelling it
// aborts in-flight requests.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// WithLogger overrides the controller logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// Controller keeps one list view in sync with its query.
//
// Update and Refetch start a fetch cycle; Snapshot returns the current
// aggregate. All methods are safe for concurrent use.
type Controller[T any] struct {
	fetch   FetchFunc[T]
	planner partition.Planner
	name    string
	logger  zerolog.Logger

	root       context.Context
	rootCancel context.CancelFunc

	// generation is bumped before every dispatch.
	generation atomic.Uint64

	mu          sync.Mutex
	spec        query.Spec
	hasSpec     bool
	plan        []partition.Spec
	results     map[string]fetcher.Result[T]
	inFlight    map[string]bool
	state       State
	cancelCycle context.CancelFunc
	done        chan struct{}
	closed      bool

	nextSubID   int
	subscribers map[int]chan Result[T]
}

// NewController creates a controller fetching partitions with fetch and
// planning them with planner.
func NewController[T any](fetch FetchFunc[T], planner partition.Planner, opts ...Option) *Controller[T] {
	o := options{
		name: "default",
		ctx:  context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := log.With().Str("component", "controller").Str("view", o.name).Logger()
	if o.logger != nil {
		logger = o.logger.With().Str("view", o.name).Logger()
	}

	root, cancel := context.WithCancel(o.ctx)

	done := make(chan struct{})
	close(done)

	return &Controller[T]{
		fetch:       fetch,
		planner:     planner,
		name:        o.name,
		logger:      logger,
		root:        root,
		rootCancel:  cancel,
		results:     make(map[string]fetcher.Result[T]),
		inFlight:    make(map[string]bool),
		state:       StateIdle,
		done:        done,
		subscribers: make(map[int]chan Result[T]),
	}
}

// Update sets the query. A Spec equal to the current one with the same
// enabled partitions is a no-op and returns false; otherwise a new fetch
// cycle starts and Update returns true without waiting for it.
//
// Partitions disabled by the new Spec stop contributing to Snapshot
// immediately.
func (c *Controller[T]) Update(spec query.Spec) (bool, error) {
	if err := spec.Validate(); err != nil {
		return false, err
	}
	plan := c.planner(spec)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}

	if c.hasSpec && c.spec.Equal(spec) && partition.EnabledSet(c.plan) == partition.EnabledSet(plan) {
		c.logger.Debug().Str("query", spec.Key()).Msg("Query unchanged, skipping fetch")
		return false, nil
	}

	c.spec = spec.Clone()
	c.hasSpec = true
	c.plan = plan
	c.startCycleLocked()
	return true, nil
}

// Refetch re-issues the fetch for all enabled partitions, even if the query
// did not change, and waits until the cycle settled. If a newer cycle
// supersedes it, Refetch waits for that one instead. The returned error is
// ErrNoQuery, ErrClosed or the ctx error; partition failures are in
// Result.Err.
func (c *Controller[T]) Refetch(ctx context.Context) (Result[T], error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result[T]{Items: []T{}}, ErrClosed
	}
	if !c.hasSpec {
		c.mu.Unlock()
		return Result[T]{Items: []T{}}, ErrNoQuery
	}
	done := c.startCycleLocked()
	c.mu.Unlock()

	return c.wait(ctx, done)
}

// Wait blocks until the current cycle (or a newer one started meanwhile)
// settled and returns the aggregate.
func (c *Controller[T]) Wait(ctx context.Context) (Result[T], error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	return c.wait(ctx, done)
}

func (c *Controller[T]) wait(ctx context.Context, done chan struct{}) (Result[T], error) {
	for {
		select {
		case <-done:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}

		c.mu.Lock()
		if c.done == done {
			res := c.snapshotLocked()
			c.mu.Unlock()
			return res, nil
		}
		done = c.done
		c.mu.Unlock()
	}
}

// Snapshot returns the current aggregate.
func (c *Controller[T]) Snapshot() Result[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller[T]) snapshotLocked() Result[T] {
	return Combine(c.results, c.plan, c.inFlight)
}

// Spec returns the current query and whether one was set.
func (c *Controller[T]) Spec() (query.Spec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spec.Clone(), c.hasSpec
}

// Plan returns a copy of the current partition plan.
func (c *Controller[T]) Plan() []partition.Spec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]partition.Spec(nil), c.plan...)
}

// State returns the fetch state.
func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generation returns the generation of the latest dispatched cycle.
func (c *Controller[T]) Generation() uint64 {
	return c.generation.Load()
}

// Subscribe returns a channel receiving every aggregate change and a
// function that ends the subscription. The channel keeps only the latest
// unread value.
func (c *Controller[T]) Subscribe() (<-chan Result[T], func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Result[T], 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close cancels in-flight fetches and ends all subscriptions.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.rootCancel()

	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
}

// startCycleLocked dispatches all enabled partitions of the current plan.
// c.mu must be held.
func (c *Controller[T]) startCycleLocked() chan struct{} {
	gen := c.generation.Add(1)

	if c.cancelCycle != nil {
		c.cancelCycle()
	}
	ctx, cancel := context.WithCancel(c.root)
	c.cancelCycle = cancel

	spec := c.spec.Clone()
	plan := append([]partition.Spec(nil), c.plan...)
	enabled := partition.Enabled(plan)

	c.inFlight = make(map[string]bool, len(enabled))
	for _, p := range enabled {
		c.inFlight[p.Key()] = true
	}
	c.state = StateFetching

	done := make(chan struct{})
	c.done = done

	c.logger.Debug().
		Uint64("generation", gen).
		Str("query", spec.Key()).
		Str("partitions", partition.EnabledSet(plan)).
		Msg("Dispatching fetch cycle")

	c.publishLocked()

	go c.run(ctx, cancel, gen, spec, enabled, done)

	return done
}

func (c *Controller[T]) run(ctx context.Context, cancel context.CancelFunc, gen uint64, spec query.Spec, enabled []partition.Spec, done chan struct{}) {
	defer cancel()
	defer close(done)

	start := time.Now()
	results := dispatch(ctx, c.fetch, spec, enabled)
	fetchCycleDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())

	c.settle(gen, results, time.Since(start))
}

// settle applies a cycle's results unless a newer cycle was dispatched.
func (c *Controller[T]) settle(gen uint64, results map[string]fetcher.Result[T], took time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.logger.Debug().
			Uint64("generation", gen).
			Msg("Controller closed, discarding fetch results")
		return
	}

	if latest := c.generation.Load(); gen != latest {
		staleResultsDropped.WithLabelValues(c.name).Inc()
		c.logger.Debug().
			Uint64("generation", gen).
			Uint64("latest", latest).
			Msg("Dropping stale fetch results")
		return
	}

	c.results = results
	c.inFlight = make(map[string]bool)

	res := c.snapshotLocked()
	if res.Err != nil {
		c.state = StateFailed
		fetchCyclesTotal.WithLabelValues(c.name, string(StateFailed)).Inc()
		c.logger.Warn().
			Err(res.Err).
			Uint64("generation", gen).
			Int("items", len(res.Items)).
			Dur("duration", took).
			Msg("Fetch cycle settled with errors")
	} else {
		c.state = StateSettled
		fetchCyclesTotal.WithLabelValues(c.name, string(StateSettled)).Inc()
		c.logger.Info().
			Uint64("generation", gen).
			Int("items", len(res.Items)).
			Int("total_elements", res.TotalElements).
			Int("total_pages", res.TotalPages).
			Dur("duration", took).
			Msg("Fetch cycle settled")
	}

	c.publishLocked()
}

// publishLocked sends the current aggregate to every subscriber, replacing
// an unread value. c.mu must be held.
func (c *Controller[T]) publishLocked() {
	if len(c.subscribers) == 0 {
		return
	}
	res := c.snapshotLocked()
	for _, ch := range c.subscribers {
		select {
		case ch <- res:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- res:
			default:
			}
		}
	}
}
