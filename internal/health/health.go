// Package health watches CineBot's external dependencies (model
// providers, TMDB, the search backend) and reports their reachability.
//
// Each dependency is probed in its own goroutine. While a dependency is
// failing, probes back off exponentially (2s, 4s, ... capped at 60s);
// once it answers, it is re-checked on the poll interval.
package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nugget/cinebot/internal/observability"
)

// Probe checks whether a dependency is reachable. It must be safe for
// concurrent use.
type Probe func(ctx context.Context) error

// Config controls probe timing. Zero fields take DefaultConfig values.
type Config struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	PollInterval time.Duration
	ProbeTimeout time.Duration
}

// DefaultConfig returns the production probe schedule.
func DefaultConfig() Config {
	return Config{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		PollInterval: 60 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	return c
}

// Status is the last known state of one dependency.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
	Failures  int       `json:"consecutive_failures,omitempty"`
}

type dependency struct {
	name  string
	probe Probe

	mu     sync.Mutex
	status Status
}

func (d *dependency) snapshot() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Monitor probes registered dependencies until its context ends.
type Monitor struct {
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics

	mu   sync.RWMutex
	deps map[string]*dependency
	wg   sync.WaitGroup
}

// NewMonitor creates a monitor. metrics may be nil.
func NewMonitor(cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: metrics,
		deps:    make(map[string]*dependency),
	}
}

// Watch starts probing a dependency. Probing stops when ctx is done.
// Watching a name twice replaces the earlier entry in Status but does
// not stop its goroutine.
func (m *Monitor) Watch(ctx context.Context, name string, probe Probe) {
	if name == "" || probe == nil {
		panic("health: Watch needs a name and a probe")
	}
	d := &dependency{name: name, probe: probe, status: Status{Name: name}}

	m.mu.Lock()
	m.deps[name] = d
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, d)
	}()
}

// Status returns every dependency's state, sorted by name.
func (m *Monitor) Status() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.deps))
	for _, d := range m.deps {
		out = append(out, d.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Ready reports whether every dependency answered its last probe.
func (m *Monitor) Ready() bool {
	for _, s := range m.Status() {
		if !s.Ready {
			return false
		}
	}
	return true
}

// Wait blocks until every probe goroutine has exited.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context, d *dependency) {
	delay := m.cfg.InitialDelay
	for {
		err := m.probe(ctx, d)
		if ctx.Err() != nil {
			return
		}

		next := m.cfg.PollInterval
		if err != nil {
			next = delay
			delay = min(delay*2, m.cfg.MaxDelay)
		} else {
			delay = m.cfg.InitialDelay
		}

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// probe runs one check and records the outcome, logging transitions.
func (m *Monitor) probe(ctx context.Context, d *dependency) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := d.probe(probeCtx)
	cancel()

	d.mu.Lock()
	wasReady := d.status.Ready
	checked := d.status.LastCheck
	d.status.LastCheck = time.Now()
	d.status.Ready = err == nil
	if err != nil {
		d.status.LastError = err.Error()
		d.status.Failures++
	} else {
		d.status.LastError = ""
		d.status.Failures = 0
	}
	failures := d.status.Failures
	d.mu.Unlock()

	m.metrics.DependencyStatus(d.name, err == nil)

	switch {
	case err == nil && !wasReady:
		m.logger.Info("dependency reachable", "service", d.name)
	case err != nil && wasReady:
		m.logger.Warn("dependency unreachable", "service", d.name, "error", err)
	case err != nil && checked.IsZero():
		m.logger.Warn("dependency not reachable at startup", "service", d.name, "error", err)
	case err != nil:
		m.logger.Debug("dependency still unreachable", "service", d.name, "failures", failures, "error", err)
	}
	return err
}
