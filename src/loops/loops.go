// Package loops runs the periodic governance sweeps. Each task waits for the
// process to be ready plus a random jitter, then runs on its own cadence.
package loops

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/stellaria-pact/governance/src/actions/core"
)

var _ core.Module = (*Runner)(nil)

// Task is one periodic sweep.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner drives a set of tasks.
type Runner struct {
	tasks  []Task
	jitter time.Duration
	ready  <-chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a runner. A nil ready channel means the process is ready now.
func New(jitter time.Duration, ready <-chan struct{}, tasks ...Task) *Runner {
	return &Runner{tasks: tasks, jitter: jitter, ready: ready}
}

// Name implements core.Module.
func (r *Runner) Name() string { return "loops" }

// Start launches one goroutine per task.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return fmt.Errorf("loops already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	for _, t := range r.tasks {
		if t.Interval <= 0 || t.Run == nil {
			log.Printf("loops: skipping misconfigured task %q", t.Name)
			continue
		}
		r.wg.Add(1)
		go r.loop(runCtx, t)
	}
	log.Printf("loops: started %d tasks", len(r.tasks))
	return nil
}

// Stop cancels every task and waits for the running sweeps, bounded by ctx.
func (r *Runner) Stop(ctx context.Context) {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Printf("loops: stopped")
	case <-ctx.Done():
		log.Printf("loops: stop timed out")
	}
}

func (r *Runner) delay() time.Duration {
	if r.jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(r.jitter)))
}

func (r *Runner) loop(ctx context.Context, t Task) {
	defer r.wg.Done()

	if r.ready != nil {
		select {
		case <-ctx.Done():
			return
		case <-r.ready:
		}
	}

	timer := time.NewTimer(r.delay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		r.runOnce(ctx, t)
		timer.Reset(t.Interval)
	}
}

func (r *Runner) runOnce(ctx context.Context, t Task) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("loops: %s panicked: %v", t.Name, rec)
		}
	}()
	if err := t.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("loops: %s failed: %v", t.Name, err)
	}
}
