package sweep

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Graveside2022/ArgosFinal-sub003/internal/sysinfo"
)

// Process health as judged by the monitor
const (
	HealthUnknown   ProcessHealth = "unknown"
	HealthHealthy   ProcessHealth = "healthy"
	HealthUnhealthy ProcessHealth = "unhealthy"
)

type ProcessHealth string

// Recovery decisions returned by BeginRecovery
const (
	RecoveryProceed          RecoveryDecision = "proceed"
	RecoveryAlreadyRunning   RecoveryDecision = "already_recovering"
	RecoveryInCooldown       RecoveryDecision = "cooldown"
	RecoveryAttemptsExceeded RecoveryDecision = "exhausted"
)

type RecoveryDecision string

// HealthConfig tunes the watchdog. The two silence timeouts are deliberately
// separate knobs: StartupSilence covers a process that never produced data,
// DataSilence covers a stream that went quiet after flowing. The long
// DataSilence default is sized for unattended monitoring sessions; tighten
// it for interactive use.
type HealthConfig struct {
	CheckInterval       time.Duration
	StartupSilence      time.Duration
	DataSilence         time.Duration
	RecoveryCooldown    time.Duration
	RecoverySettle      time.Duration
	MaxRecoveryAttempts int
	LowMemoryPercent    float64
}

// DefaultHealthConfig returns the production watchdog settings
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		CheckInterval:       30 * time.Second,
		StartupSilence:      60 * time.Second,
		DataSilence:         2 * time.Hour,
		RecoveryCooldown:    10 * time.Second,
		RecoverySettle:      2 * time.Second,
		MaxRecoveryAttempts: 3,
		LowMemoryPercent:    10,
	}
}

// HealthState is a snapshot of the watchdog's view of the sweep process
type HealthState struct {
	ProcessHealth    ProcessHealth `json:"processHealth"`
	ProcessStartAt   time.Time     `json:"processStartAt"`
	LastDataAt       time.Time     `json:"lastDataAt"`
	RecoveryAttempts int           `json:"recoveryAttempts"`
	IsRecovering     bool          `json:"isRecovering"`
	LastRecoveryAt   time.Time     `json:"lastRecoveryAt"`
}

// Anomaly reasons passed to the escalation callback
const (
	AnomalyProcessGone    = "process_gone"
	AnomalyStartupSilence = "startup_silence"
	AnomalyDataSilence    = "data_silence"
)

// WithHealthLogger sets the logger for the monitor
func WithHealthLogger(logger *slog.Logger) func(*HealthMonitor) {
	return func(m *HealthMonitor) {
		m.logger = logger.With(slog.String("component", "health"))
	}
}

// HealthMonitor is a periodic watchdog over the sweep process. It inspects
// liveness signals and escalates to the owner's recovery procedure through
// the callback given to Start. It never recovers anything itself.
type HealthMonitor struct {
	cfg    HealthConfig
	prober sysinfo.Prober
	logger *slog.Logger

	mu           sync.Mutex
	pid          int
	transition   bool
	processStart time.Time
	lastData     time.Time
	attempts     int
	recovering   bool
	lastRecovery time.Time
	stop         chan struct{}
}

// NewHealthMonitor creates a monitor with a discard logger
func NewHealthMonitor(cfg HealthConfig, prober sysinfo.Prober, options ...func(*HealthMonitor)) *HealthMonitor {
	m := HealthMonitor{
		cfg:    cfg,
		prober: prober,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&m)
	}

	return &m
}

// Start begins periodic checks, escalating anomalies through onAnomaly.
// The callback runs on the monitor goroutine.
func (m *HealthMonitor) Start(onAnomaly func(reason string)) {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return // already running
	}
	stop := make(chan struct{})
	m.stop = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.cfg.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if reason, ok := m.check(); ok {
					onAnomaly(reason)
				}
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the periodic checks
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

// Reset clears all watchdog state for a new sweep run
func (m *HealthMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pid = 0
	m.transition = false
	m.processStart = time.Time{}
	m.lastData = time.Time{}
	m.attempts = 0
	m.recovering = false
	m.lastRecovery = time.Time{}
}

// NoteProcessStart records a fresh process to watch
func (m *HealthMonitor) NoteProcessStart(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pid = pid
	m.processStart = time.Now()
	m.lastData = time.Time{}
}

// NoteProcessStopped clears the watched PID (expected teardown)
func (m *HealthMonitor) NoteProcessStopped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pid = 0
}

// NoteData records that sweep data arrived. Data flowing outside an
// in-flight recovery proves the process recovered, so the attempt counter
// resets here rather than on a mere successful re-spawn.
func (m *HealthMonitor) NoteData() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastData = time.Now()
	if !m.recovering {
		m.attempts = 0
	}
}

// SetTransition marks an expected frequency-switch churn window, during
// which liveness anomalies are false positives and must be suppressed.
func (m *HealthMonitor) SetTransition(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition = on
}

// Snapshot returns the current health state
func (m *HealthMonitor) Snapshot() HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()

	health := HealthUnknown
	if m.pid != 0 {
		if alive, err := m.prober.PidExists(m.pid); err == nil {
			if alive {
				health = HealthHealthy
			} else {
				health = HealthUnhealthy
			}
		}
	}

	return HealthState{
		ProcessHealth:    health,
		ProcessStartAt:   m.processStart,
		LastDataAt:       m.lastData,
		RecoveryAttempts: m.attempts,
		IsRecovering:     m.recovering,
		LastRecoveryAt:   m.lastRecovery,
	}
}

// check runs one watchdog pass and reports an anomaly reason, if any
func (m *HealthMonitor) check() (string, bool) {
	m.mu.Lock()
	pid := m.pid
	transition := m.transition
	recovering := m.recovering
	processStart := m.processStart
	lastData := m.lastData
	m.mu.Unlock()

	m.logMemory()

	if recovering || transition || pid == 0 {
		return "", false
	}

	now := time.Now()

	alive, err := m.prober.PidExists(pid)
	if err == nil && !alive {
		m.logger.Warn("sweep process no longer exists", slog.Int("pid", pid))
		return AnomalyProcessGone, true
	}

	if lastData.IsZero() {
		if now.Sub(processStart) > m.cfg.StartupSilence {
			m.logger.Warn("no data since process start",
				slog.Duration("elapsed", now.Sub(processStart)))
			return AnomalyStartupSilence, true
		}
		return "", false
	}

	if silence := now.Sub(lastData); silence > m.cfg.DataSilence {
		m.logger.Warn("data stream went silent", slog.Duration("silence", silence))
		return AnomalyDataSilence, true
	}

	m.logger.Debug("health check passed",
		slog.Int("pid", pid),
		slog.Duration("sinceLastData", now.Sub(lastData)))
	return "", false
}

// logMemory surfaces memory headroom for observability. Low memory is a
// warning only, never a recovery trigger.
func (m *HealthMonitor) logMemory() {
	mem, err := m.prober.Memory()
	if err != nil {
		return
	}

	if mem.AvailablePercent() < m.cfg.LowMemoryPercent {
		m.logger.Warn("low system memory",
			slog.String("available", humanize.IBytes(mem.Available)),
			slog.String("total", humanize.IBytes(mem.Total)))
		return
	}

	m.logger.Debug("memory headroom",
		slog.String("available", humanize.IBytes(mem.Available)))
}

// BeginRecovery gates a recovery attempt: re-entrancy, cooldown and the
// attempt cap are all enforced here. On RecoveryProceed the caller must
// finish with FinishRecovery.
func (m *HealthMonitor) BeginRecovery() RecoveryDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.recovering {
		return RecoveryAlreadyRunning
	}
	if m.attempts >= m.cfg.MaxRecoveryAttempts {
		return RecoveryAttemptsExceeded
	}
	if !m.lastRecovery.IsZero() && time.Since(m.lastRecovery) < m.cfg.RecoveryCooldown {
		return RecoveryInCooldown
	}

	m.recovering = true
	m.attempts++
	m.lastRecovery = time.Now()
	return RecoveryProceed
}

// FinishRecovery ends the in-flight recovery attempt. Success resets the
// attempt counter.
func (m *HealthMonitor) FinishRecovery(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recovering = false
	if success {
		m.attempts = 0
	}
}
