package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Module is a long-running part of the service with an explicit lifecycle.
type Module interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// Manager starts modules in registration order and stops them in reverse.
type Manager struct {
	mu      sync.Mutex
	modules []Module
	running []Module
	// StopTimeout bounds each module's Stop. Zero means no per-module bound.
	StopTimeout time.Duration
}

func NewManager(mods ...Module) *Manager {
	m := &Manager{}
	for _, mod := range mods {
		if mod != nil {
			m.modules = append(m.modules, mod)
		}
	}
	return m
}

// Add registers another module. Modules cannot join a running manager.
func (m *Manager) Add(mod Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running != nil {
		return fmt.Errorf("manager: cannot add %s after start", mod.Name())
	}
	if mod != nil {
		m.modules = append(m.modules, mod)
	}
	return nil
}

// Start runs every module's Start. On the first failure the modules already
// started are stopped again and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running != nil {
		return fmt.Errorf("manager: already started")
	}

	running := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		if err := mod.Start(ctx); err != nil {
			stopAll(ctx, running, m.StopTimeout)
			return fmt.Errorf("module %s failed: %w", mod.Name(), err)
		}
		log.Printf("manager: %s started", mod.Name())
		running = append(running, mod)
	}
	m.running = running
	return nil
}

// Stop stops the started modules in reverse order. It is safe to call twice.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stopAll(ctx, m.running, m.StopTimeout)
	m.running = nil
}

// Running returns the names of the started modules in start order.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.running))
	for _, mod := range m.running {
		names = append(names, mod.Name())
	}
	return names
}

func stopAll(ctx context.Context, mods []Module, timeout time.Duration) {
	for i := len(mods) - 1; i >= 0; i-- {
		stopCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			stopCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		mods[i].Stop(stopCtx)
		cancel()
		log.Printf("manager: %s stopped", mods[i].Name())
	}
}

// Closer turns a resource's Close into a module that only has a stop phase.
type Closer struct {
	Label string
	Close func() error
}

func (c Closer) Name() string { return c.Label }
func (c Closer) Start(context.Context) error { return nil }

func (c Closer) Stop(context.Context) {
	if err := c.Close(); err != nil {
		log.Printf("manager: close %s: %v", c.Label, err)
	}
}
