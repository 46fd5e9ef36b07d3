package sweep

import (
	"sync"
	"testing"
	"time"

	"github.com/Graveside2022/ArgosFinal-sub003/internal/sysinfo"
)

// fakeProber is a scripted sysinfo.Prober shared by the package tests
type fakeProber struct {
	mu    sync.Mutex
	alive bool
	mem   sysinfo.Memory
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		alive: true,
		mem:   sysinfo.Memory{Total: 8 << 30, Available: 4 << 30},
	}
}

func (p *fakeProber) setAlive(alive bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = alive
}

func (p *fakeProber) Memory() (sysinfo.Memory, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mem, nil
}

func (p *fakeProber) PidExists(int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive, nil
}

func watchdogConfig() HealthConfig {
	return HealthConfig{
		CheckInterval:       5 * time.Millisecond,
		StartupSilence:      time.Hour,
		DataSilence:         time.Hour,
		RecoveryCooldown:    0,
		RecoverySettle:      0,
		MaxRecoveryAttempts: 3,
		LowMemoryPercent:    10,
	}
}

// startWatching runs the monitor and funnels anomalies into a channel
func startWatching(m *HealthMonitor) chan string {
	anomalies := make(chan string, 8)
	m.Start(func(reason string) { anomalies <- reason })
	return anomalies
}

func expectAnomaly(t *testing.T, anomalies chan string, want string) {
	t.Helper()
	select {
	case got := <-anomalies:
		if got != want {
			t.Fatalf("anomaly = %q, want %q", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %q anomaly", want)
	}
}

func expectNoAnomaly(t *testing.T, anomalies chan string, within time.Duration) {
	t.Helper()
	select {
	case got := <-anomalies:
		t.Fatalf("unexpected anomaly %q", got)
	case <-time.After(within):
	}
}

func TestHealthMonitorProcessGone(t *testing.T) {
	prober := newFakeProber()
	m := NewHealthMonitor(watchdogConfig(), prober)
	defer m.Stop()

	m.NoteProcessStart(42)
	anomalies := startWatching(m)

	prober.setAlive(false)
	expectAnomaly(t, anomalies, AnomalyProcessGone)
}

func TestHealthMonitorStartupSilence(t *testing.T) {
	prober := newFakeProber()
	cfg := watchdogConfig()
	cfg.StartupSilence = 20 * time.Millisecond
	m := NewHealthMonitor(cfg, prober)
	defer m.Stop()

	m.NoteProcessStart(42)
	anomalies := startWatching(m)

	// the process is alive but never produced a byte of data
	expectAnomaly(t, anomalies, AnomalyStartupSilence)
}

func TestHealthMonitorDataSilence(t *testing.T) {
	prober := newFakeProber()
	cfg := watchdogConfig()
	cfg.DataSilence = 20 * time.Millisecond
	m := NewHealthMonitor(cfg, prober)
	defer m.Stop()

	m.NoteProcessStart(42)
	m.NoteData()
	anomalies := startWatching(m)

	expectAnomaly(t, anomalies, AnomalyDataSilence)
}

func TestHealthMonitorSuppression(t *testing.T) {
	t.Run("transition window", func(t *testing.T) {
		prober := newFakeProber()
		m := NewHealthMonitor(watchdogConfig(), prober)
		defer m.Stop()

		m.NoteProcessStart(42)
		m.SetTransition(true)
		prober.setAlive(false)
		anomalies := startWatching(m)

		expectNoAnomaly(t, anomalies, 50*time.Millisecond)
	})

	t.Run("no watched process", func(t *testing.T) {
		prober := newFakeProber()
		m := NewHealthMonitor(watchdogConfig(), prober)
		defer m.Stop()

		prober.setAlive(false)
		anomalies := startWatching(m)

		expectNoAnomaly(t, anomalies, 50*time.Millisecond)
	})

	t.Run("stopped process", func(t *testing.T) {
		prober := newFakeProber()
		m := NewHealthMonitor(watchdogConfig(), prober)
		defer m.Stop()

		m.NoteProcessStart(42)
		m.NoteProcessStopped()
		prober.setAlive(false)
		anomalies := startWatching(m)

		expectNoAnomaly(t, anomalies, 50*time.Millisecond)
	})
}

func TestHealthMonitorRecoveryGate(t *testing.T) {
	t.Run("re-entrancy", func(t *testing.T) {
		m := NewHealthMonitor(watchdogConfig(), newFakeProber())
		if got := m.BeginRecovery(); got != RecoveryProceed {
			t.Fatalf("BeginRecovery() = %s, want %s", got, RecoveryProceed)
		}
		if got := m.BeginRecovery(); got != RecoveryAlreadyRunning {
			t.Fatalf("BeginRecovery() while recovering = %s, want %s", got, RecoveryAlreadyRunning)
		}
	})

	t.Run("cooldown", func(t *testing.T) {
		cfg := watchdogConfig()
		cfg.RecoveryCooldown = time.Hour
		m := NewHealthMonitor(cfg, newFakeProber())
		m.BeginRecovery()
		m.FinishRecovery(false)
		if got := m.BeginRecovery(); got != RecoveryInCooldown {
			t.Fatalf("BeginRecovery() = %s, want %s", got, RecoveryInCooldown)
		}
	})

	t.Run("attempt cap", func(t *testing.T) {
		cfg := watchdogConfig()
		cfg.MaxRecoveryAttempts = 2
		m := NewHealthMonitor(cfg, newFakeProber())
		for i := 0; i < 2; i++ {
			if got := m.BeginRecovery(); got != RecoveryProceed {
				t.Fatalf("attempt %d: BeginRecovery() = %s", i+1, got)
			}
			m.FinishRecovery(false)
		}
		if got := m.BeginRecovery(); got != RecoveryAttemptsExceeded {
			t.Fatalf("BeginRecovery() = %s, want %s", got, RecoveryAttemptsExceeded)
		}
	})

	t.Run("explicit success resets attempts", func(t *testing.T) {
		cfg := watchdogConfig()
		cfg.MaxRecoveryAttempts = 1
		m := NewHealthMonitor(cfg, newFakeProber())
		m.BeginRecovery()
		m.FinishRecovery(true)
		if got := m.BeginRecovery(); got != RecoveryProceed {
			t.Fatalf("BeginRecovery() after success = %s, want %s", got, RecoveryProceed)
		}
	})
}

func TestHealthMonitorDataResetsAttempts(t *testing.T) {
	m := NewHealthMonitor(watchdogConfig(), newFakeProber())

	m.BeginRecovery()
	m.FinishRecovery(false)
	if got := m.Snapshot().RecoveryAttempts; got != 1 {
		t.Fatalf("RecoveryAttempts = %d, want 1", got)
	}

	m.NoteData()
	if got := m.Snapshot().RecoveryAttempts; got != 0 {
		t.Fatalf("RecoveryAttempts after data = %d, want 0", got)
	}

	t.Run("not during an in-flight recovery", func(t *testing.T) {
		m := NewHealthMonitor(watchdogConfig(), newFakeProber())
		m.BeginRecovery()
		m.NoteData()
		if got := m.Snapshot().RecoveryAttempts; got != 1 {
			t.Fatalf("RecoveryAttempts = %d, want 1", got)
		}
	})
}

func TestHealthMonitorSnapshot(t *testing.T) {
	prober := newFakeProber()
	m := NewHealthMonitor(watchdogConfig(), prober)

	if got := m.Snapshot().ProcessHealth; got != HealthUnknown {
		t.Errorf("ProcessHealth = %s, want %s", got, HealthUnknown)
	}

	m.NoteProcessStart(42)
	if got := m.Snapshot().ProcessHealth; got != HealthHealthy {
		t.Errorf("ProcessHealth = %s, want %s", got, HealthHealthy)
	}

	prober.setAlive(false)
	if got := m.Snapshot().ProcessHealth; got != HealthUnhealthy {
		t.Errorf("ProcessHealth = %s, want %s", got, HealthUnhealthy)
	}

	m.Reset()
	st := m.Snapshot()
	if st.ProcessHealth != HealthUnknown || st.RecoveryAttempts != 0 || !st.LastDataAt.IsZero() {
		t.Errorf("Snapshot after Reset = %+v", st)
	}
}
