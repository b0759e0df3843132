package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		PollInterval: 2 * time.Millisecond,
		ProbeTimeout: 50 * time.Millisecond,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDefaultConfig(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg != DefaultConfig() {
		t.Errorf("zero config defaults = %+v, want %+v", cfg, DefaultConfig())
	}
	custom := Config{PollInterval: time.Second}.withDefaults()
	if custom.PollInterval != time.Second || custom.MaxDelay != 60*time.Second {
		t.Errorf("partial defaults = %+v", custom)
	}
}

func TestMonitor_ReadyAfterSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	m := NewMonitor(fastConfig(), nil, nil)
	m.Watch(ctx, "ollama", func(context.Context) error { return nil })

	waitFor(t, m.Ready)
	st := m.Status()
	if len(st) != 1 || st[0].Name != "ollama" || st[0].LastCheck.IsZero() {
		t.Errorf("status = %+v", st)
	}

	cancel()
	m.Wait()
}

func TestMonitor_RecoversAfterFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	var calls atomic.Int32
	m := NewMonitor(fastConfig(), nil, nil)
	m.Watch(ctx, "tmdb", func(context.Context) error {
		if calls.Add(1) <= 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	waitFor(t, m.Ready)
	if n := calls.Load(); n < 4 {
		t.Errorf("probe calls = %d, want at least 4", n)
	}
	if st := m.Status()[0]; st.LastError != "" || st.Failures != 0 {
		t.Errorf("recovered status = %+v", st)
	}

	cancel()
	m.Wait()
}

func TestMonitor_GoesDown(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	var healthy atomic.Bool
	healthy.Store(true)

	m := NewMonitor(fastConfig(), nil, nil)
	m.Watch(ctx, "searxng", func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("503")
	})
	waitFor(t, m.Ready)

	healthy.Store(false)
	waitFor(t, func() bool { return !m.Ready() })
	if st := m.Status()[0]; st.LastError != "503" {
		t.Errorf("last error = %q", st.LastError)
	}

	cancel()
	m.Wait()
}

func TestMonitor_ProbeTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	m := NewMonitor(fastConfig(), nil, nil)
	m.Watch(ctx, "slow", func(pctx context.Context) error {
		<-pctx.Done()
		return pctx.Err()
	})

	waitFor(t, func() bool {
		st := m.Status()
		return len(st) == 1 && st[0].Failures > 0
	})
	if m.Ready() {
		t.Error("timed-out dependency reported ready")
	}

	cancel()
	m.Wait()
}

func TestMonitor_StatusSorted(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	m := NewMonitor(fastConfig(), nil, nil)
	for _, name := range []string{"tmdb", "anthropic", "ollama"} {
		m.Watch(ctx, name, func(context.Context) error { return nil })
	}

	st := m.Status()
	if len(st) != 3 || st[0].Name != "anthropic" || st[1].Name != "ollama" || st[2].Name != "tmdb" {
		t.Errorf("status order = %+v", st)
	}

	cancel()
	m.Wait()
}
