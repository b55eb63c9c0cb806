// Package scheduler serialises every outbound chat-platform call through a
// priority queue with bounded concurrency and a global pacing limiter.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/stellaria-pact/governance/src/logging"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Conventional priorities. Lower runs first.
const (
	PriorityReply      = 1
	PriorityEdit       = 2
	PriorityFollowUp   = 3
	PriorityBroadcast  = 4
	PriorityRepost     = 5
	PriorityBackground = 7
	PriorityReconcile  = 8
)

const (
	DefaultConcurrency   = 10
	DefaultRatePerSecond = 40
)

var (
	ErrNotRunning = errors.New("scheduler not running")
	ErrStopped    = errors.New("scheduler: stopped before the request ran")
)

// Request is one outbound call.
type Request func(ctx context.Context) (any, error)

// Config tunes the dispatcher.
type Config struct {
	Concurrency   int
	RatePerSecond float64
}

type result struct {
	value any
	err   error
}

type item struct {
	priority int
	seq      uint64
	name     string
	ctx      context.Context
	req      Request
	done     chan result
	sentinel bool
}

type queue []*item

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(*item)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

// Handle resolves to the result of a submitted request.
type Handle struct {
	done chan result
}

// Wait blocks until the request finished or ctx ends. Abandoning a handle
// does not cancel a request that is already running.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case r := <-h.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	Running  bool  `json:"running"`
	Queued   int   `json:"queued"`
	InFlight int64 `json:"in_flight"`
	Served   int64 `json:"served"`
	Failed   int64 `json:"failed"`
	Limited  int64 `json:"rate_limited"`
}

// Scheduler is the process-wide outbound dispatcher.
type Scheduler struct {
	cfg     Config
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu      sync.Mutex
	q       queue
	seq     uint64
	running bool
	wake    chan struct{}
	exited  chan struct{}

	inFlight atomic.Int64
	served   atomic.Int64
	failed   atomic.Int64
	limited  atomic.Int64
}

// New builds a stopped scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Concurrency
	return &Scheduler{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		limiter: rate.NewLimiter(limit, burst),
		wake:    make(chan struct{}, 1),
	}
}

func (s *Scheduler) Name() string { return "scheduler" }

// Start launches the dispatcher loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.exited = make(chan struct{})
	go s.dispatch(s.exited)
	log.Printf("scheduler: started (concurrency=%d, rate=%.0f/s)", s.cfg.Concurrency, s.cfg.RatePerSecond)
	return nil
}

// Stop refuses new work, lets the queue drain behind a sentinel and waits for
// in-flight requests, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.pushLocked(&item{priority: math.MaxInt, sentinel: true})
	exited := s.exited
	s.mu.Unlock()

	select {
	case <-exited:
	case <-ctx.Done():
		log.Printf("scheduler: stop timed out with %d queued", s.Stats().Queued)
		s.failQueued()
		return
	}

	if err := s.sem.Acquire(ctx, int64(s.cfg.Concurrency)); err != nil {
		log.Printf("scheduler: %d requests still in flight at shutdown", s.inFlight.Load())
		return
	}
	s.sem.Release(int64(s.cfg.Concurrency))
	log.Printf("scheduler: stopped")
}

// Submit enqueues req. name only appears in logs.
func (s *Scheduler) Submit(ctx context.Context, priority int, name string, req Request) (*Handle, error) {
	if req == nil {
		return nil, fmt.Errorf("scheduler: nil request %q", name)
	}
	it := &item{priority: priority, name: name, ctx: ctx, req: req, done: make(chan result, 1)}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, ErrNotRunning
	}
	s.pushLocked(it)
	s.mu.Unlock()
	return &Handle{done: it.done}, nil
}

// Run submits req and waits for its result.
func (s *Scheduler) Run(ctx context.Context, priority int, name string, req Request) (any, error) {
	h, err := s.Submit(ctx, priority, name, req)
	if err != nil {
		return nil, err
	}
	return h.Wait(ctx)
}

// Do is the typed form of Run.
func Do[T any](ctx context.Context, s *Scheduler, priority int, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := s.Run(ctx, priority, name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("scheduler: %s returned %T", name, v)
	}
	return out, nil
}

// Exec runs a request that only returns an error.
func (s *Scheduler) Exec(ctx context.Context, priority int, name string, fn func(ctx context.Context) error) error {
	_, err := s.Run(ctx, priority, name, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// Stats reports queue depth and counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	queued := 0
	for _, it := range s.q {
		if !it.sentinel {
			queued++
		}
	}
	running := s.running
	s.mu.Unlock()
	return Stats{
		Running:  running,
		Queued:   queued,
		InFlight: s.inFlight.Load(),
		Served:   s.served.Load(),
		Failed:   s.failed.Load(),
		Limited:  s.limited.Load(),
	}
}

func (s *Scheduler) pushLocked(it *item) {
	s.seq++
	it.seq = s.seq
	heap.Push(&s.q, it)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) next() *item {
	for {
		s.mu.Lock()
		if s.q.Len() > 0 {
			it := heap.Pop(&s.q).(*item)
			s.mu.Unlock()
			return it
		}
		s.mu.Unlock()
		<-s.wake
	}
}

func (s *Scheduler) dispatch(exited chan struct{}) {
	defer close(exited)
	for {
		it := s.next()
		if it.sentinel {
			return
		}
		if err := it.ctx.Err(); err != nil {
			it.done <- result{err: err}
			continue
		}
		if err := s.sem.Acquire(it.ctx, 1); err != nil {
			it.done <- result{err: err}
			continue
		}
		if err := s.limiter.Wait(it.ctx); err != nil {
			s.sem.Release(1)
			it.done <- result{err: err}
			continue
		}
		s.inFlight.Add(1)
		go s.work(it)
	}
}

func (s *Scheduler) work(it *item) {
	defer s.sem.Release(1)
	defer s.inFlight.Add(-1)

	v, err := s.call(it)
	if err != nil {
		s.failed.Add(1)
		if logging.IsRateLimit(err) {
			s.limited.Add(1)
			log.Printf("scheduler: request %s hit a platform rate limit: %v", it.name, err)
		}
	} else {
		s.served.Add(1)
	}
	it.done <- result{value: v, err: err}
}

func (s *Scheduler) call(it *item) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: request %s panicked: %v\n%s", it.name, r, debug.Stack())
			err = fmt.Errorf("scheduler: request %s panicked: %v", it.name, r)
		}
	}()
	return it.req(it.ctx)
}

func (s *Scheduler) failQueued() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.q.Len() > 0 {
		it := heap.Pop(&s.q).(*item)
		if !it.sentinel {
			it.done <- result{err: ErrStopped}
		}
	}
}
