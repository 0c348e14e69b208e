// Package connwatch tracks the reachability of the backends capabilities
// depend on (model endpoint, IMAP, CalDAV, WebDAV, MCP servers) so the
// health endpoint can report them without probing on every request.
//
// A watch starts with a short exponential backoff while the backend
// comes up, then settles into periodic polling and logs transitions.
package connwatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Probe reports whether a backend is reachable. It must honor ctx.
type Probe func(ctx context.Context) error

// Schedule controls probe timing.
type Schedule struct {
	// InitialDelay is the first retry delay while starting up (default 2s).
	InitialDelay time.Duration

	// MaxDelay caps startup backoff growth (default 60s).
	MaxDelay time.Duration

	// StartupAttempts bounds the backoff phase (default 6).
	StartupAttempts int

	// Interval is the steady-state polling period (default 60s).
	Interval time.Duration

	// Timeout bounds one probe (default 10s).
	Timeout time.Duration
}

// DefaultSchedule returns 2s, 4s, 8s, ... capped at 60s for startup
// and a one-minute poll afterwards.
func DefaultSchedule() Schedule {
	return Schedule{
		InitialDelay:    2 * time.Second,
		MaxDelay:        60 * time.Second,
		StartupAttempts: 6,
		Interval:        60 * time.Second,
		Timeout:         10 * time.Second,
	}
}

func (s Schedule) withDefaults() Schedule {
	d := DefaultSchedule()
	if s.InitialDelay <= 0 {
		s.InitialDelay = d.InitialDelay
	}
	if s.MaxDelay <= 0 {
		s.MaxDelay = d.MaxDelay
	}
	if s.StartupAttempts <= 0 {
		s.StartupAttempts = d.StartupAttempts
	}
	if s.Interval <= 0 {
		s.Interval = d.Interval
	}
	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}
	return s
}

// Status is the last known state of one backend.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

type watch struct {
	name     string
	probe    Probe
	schedule Schedule
	logger   *slog.Logger

	mu     sync.Mutex
	status Status
}

func (w *watch) check(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, w.schedule.Timeout)
	defer cancel()
	err := w.probe(pctx)

	w.mu.Lock()
	was := w.status.Ready
	w.status.Ready = err == nil
	w.status.LastCheck = time.Now()
	w.status.LastError = ""
	if err != nil {
		w.status.LastError = err.Error()
	}
	w.mu.Unlock()

	switch {
	case err == nil && !was:
		w.logger.Info("backend reachable", "backend", w.name)
	case err != nil && was:
		w.logger.Warn("backend unreachable", "backend", w.name, "error", err)
	case err != nil:
		w.logger.Debug("backend still unreachable", "backend", w.name, "error", err)
	}
	return err
}

func (w *watch) run(ctx context.Context) {
	delay := w.schedule.InitialDelay
	for attempt := 1; attempt <= w.schedule.StartupAttempts; attempt++ {
		if w.check(ctx) == nil || attempt == w.schedule.StartupAttempts {
			break
		}
		if !sleep(ctx, delay) {
			return
		}
		delay = min(delay*2, w.schedule.MaxDelay)
	}

	ticker := time.NewTicker(w.schedule.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *watch) snapshot() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Monitor runs one watch per backend.
type Monitor struct {
	logger *slog.Logger

	mu      sync.Mutex
	watches map[string]*watch
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	ctx     context.Context
}

// NewMonitor creates a Monitor whose watches stop when ctx ends or
// Stop is called.
func NewMonitor(ctx context.Context, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Monitor{
		logger:  logger,
		watches: make(map[string]*watch),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Watch starts probing a backend. Registering the same name twice
// replaces nothing and returns false.
func (m *Monitor) Watch(name string, probe Probe, s Schedule) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watches[name]; ok {
		return false
	}
	w := &watch{
		name:     name,
		probe:    probe,
		schedule: s.withDefaults(),
		logger:   m.logger,
		status:   Status{Name: name},
	}
	m.watches[name] = w
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		w.run(m.ctx)
	}()
	return true
}

// Status returns every backend's state ordered by name.
func (m *Monitor) Status() []Status {
	m.mu.Lock()
	ws := make([]*watch, 0, len(m.watches))
	for _, w := range m.watches {
		ws = append(ws, w)
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy reports whether every watched backend is ready.
func (m *Monitor) Healthy() bool {
	for _, s := range m.Status() {
		if !s.Ready {
			return false
		}
	}
	return true
}

// Stop ends all watches and waits for them.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}
