package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Graveside2022/ArgosFinal-sub003/internal/procctl"
	"github.com/Graveside2022/ArgosFinal-sub003/internal/sweep/hackrf"
	"github.com/Graveside2022/ArgosFinal-sub003/internal/sysinfo"
)

// Sweep run states
const (
	StateIdle     RunState = "idle"
	StateRunning  RunState = "running"
	StateStopping RunState = "stopping"
)

type RunState string

// ManagerConfig tunes the sweep orchestration
type ManagerConfig struct {
	Supervisor SupervisorConfig
	Health     HealthConfig

	// InfoBinary is the short-lived hardware probe command
	InfoBinary string

	// MaxConsecutiveErrors stops the sweep entirely after this many
	// failures across any frequencies without an intervening success.
	MaxConsecutiveErrors int

	// PreflightSettle is the pause after the defensive pre-start cleanup
	PreflightSettle time.Duration

	// ProbeTimeout bounds the hardware availability probe
	ProbeTimeout time.Duration

	// SpawnTimeout bounds one spawn attempt end to end
	SpawnTimeout time.Duration

	// StopTimeout bounds one graceful teardown
	StopTimeout time.Duration

	// IdleStatusDelay is the delay before the second idle status emission
	// on stop, which defends against consumer-side race conditions.
	IdleStatusDelay time.Duration
}

// DefaultManagerConfig returns the production orchestration settings
func DefaultManagerConfig() ManagerConfig {
	lna, vga := 32, 20
	return ManagerConfig{
		Supervisor: SupervisorConfig{
			LNAGain:  &lna,
			VGAGain:  &vga,
			BinWidth: 20_000,
			Timing:   DefaultSupervisorTiming(),
		},
		Health:               DefaultHealthConfig(),
		InfoBinary:           hackrf.InfoRuntime,
		MaxConsecutiveErrors: 8,
		PreflightSettle:      time.Second,
		ProbeTimeout:         3 * time.Second,
		SpawnTimeout:         30 * time.Second,
		StopTimeout:          30 * time.Second,
		IdleStatusDelay:      300 * time.Millisecond,
	}
}

// TargetStatus is one plan entry as reported in status snapshots.
// Blacklisted targets stay in the plan and keep being reported.
type TargetStatus struct {
	Target      FrequencyTarget `json:"target"`
	Blacklisted bool            `json:"blacklisted"`
}

// Status is a snapshot of the live sweep run state
type Status struct {
	State           RunState       `json:"state"`
	RunID           string         `json:"runId,omitempty"`
	CurrentIndex    int            `json:"currentIndex"`
	Frequencies     []TargetStatus `json:"frequencies,omitempty"`
	CycleTimeMs     int64          `json:"cycleTimeMs,omitempty"`
	SwitchingTimeMs int64          `json:"switchingTimeMs,omitempty"`
	StartTime       time.Time      `json:"startTime"`
	CompletedCycles int            `json:"completedCycles"`
}

// CycleConfig is the payload of the cycle_config event emitted at sweep start
type CycleConfig struct {
	Frequencies     []FrequencyTarget `json:"frequencies"`
	CycleTimeMs     int64             `json:"cycleTimeMs"`
	SwitchingTimeMs int64             `json:"switchingTimeMs"`
}

// WithManagerLogger sets the logger for the manager and its children
func WithManagerLogger(logger *slog.Logger) func(*Manager) {
	return func(m *Manager) {
		m.logger = logger.With(slog.String("component", "sweep"))
		m.childLogger = logger
	}
}

// Manager is the sweep orchestrator: it sequences plan frequencies through
// the process supervisor, owns the run state machine, applies the health
// monitor's recovery decisions and pushes events to subscribers.
//
// A Manager supports exactly one sweep at a time. Construct one instance and
// hand it to whatever serves requests.
type Manager struct {
	cfg         ManagerConfig
	ctl         procctl.Controller
	pub         Publisher
	logger      *slog.Logger
	childLogger *slog.Logger

	sup     *Supervisor
	monitor *HealthMonitor
	timers  *timerSet

	mu                sync.Mutex
	state             RunState
	starting          bool
	plan              *FrequencyPlan
	runID             uuid.UUID
	currentIndex      int
	startTime         time.Time
	completedCycles   int
	consecutiveErrors int
	transitioning     bool
}

// NewManager creates a sweep manager. The process controller and system
// prober are injected so the whole state machine is testable without real
// hardware.
func NewManager(cfg ManagerConfig, ctl procctl.Controller, prober sysinfo.Prober, pub Publisher, options ...func(*Manager)) *Manager {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	m := Manager{
		cfg:         cfg,
		ctl:         ctl,
		pub:         pub,
		logger:      discard,
		childLogger: discard,
		timers:      newTimerSet(),
		state:       StateIdle,
	}

	for _, option := range options {
		option(&m)
	}

	m.sup = NewSupervisor(cfg.Supervisor, ctl, SupervisorEvents{
		OnSample:         m.handleSample,
		OnStderr:         m.handleStderr,
		OnExit:           m.handleExit,
		OnBufferOverflow: m.handleOverflow,
	}, WithSupervisorLogger(m.childLogger))

	m.monitor = NewHealthMonitor(cfg.Health, prober, WithHealthLogger(m.childLogger))

	return &m
}

// StartSweep validates the plan, probes the hardware and begins cycling.
// It returns ErrAlreadyRunning when a sweep is in progress, a
// ValidationError for a bad plan and a DeviceError when the hardware probe
// fails. Frequency-level startup failures after this point are handled
// asynchronously through failure accounting, not returned here.
func (m *Manager) StartSweep(ctx context.Context, targets []FrequencyTarget, cycleTime time.Duration) error {
	m.mu.Lock()
	if m.state != StateIdle || m.starting {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.starting = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.starting = false
		m.mu.Unlock()
	}()

	plan, err := NewPlan(targets, cycleTime)
	if err != nil {
		m.emitError(ErrKindFrequencyValidation, err.Error(), "")
		return err
	}

	// Defensive pre-flight: a prior unclean shutdown can leave orphaned
	// sweep processes holding the hardware.
	if err := m.ctl.KillByName(m.sup.cfg.Binary); err != nil {
		m.logger.Warn("pre-flight cleanup failed", slog.String("error", err.Error()))
	}
	sleepCtx(ctx, m.cfg.PreflightSettle)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	probe := m.CheckHealth(ctx)
	if !probe.Connected {
		err := NewDeviceError(fmt.Sprintf("sweep device unavailable: %s", probe.Error))
		m.emitError(ErrKindDeviceCheck, err.Error(), "")
		return err
	}

	m.mu.Lock()
	m.state = StateRunning
	m.plan = plan
	m.runID = uuid.New()
	m.currentIndex = 0
	m.startTime = time.Now()
	m.completedCycles = 0
	m.consecutiveErrors = 0
	m.transitioning = false
	m.mu.Unlock()

	m.monitor.Reset()

	m.logger.Info("sweep started",
		slog.String("runID", m.runID.String()),
		slog.Int("frequencies", plan.Len()),
		slog.Duration("cycleTime", plan.CycleTime))

	m.emitStatus()
	m.pub.Publish(Event{Kind: EventCycleConfig, Data: CycleConfig{
		Frequencies:     plan.Targets,
		CycleTimeMs:     plan.CycleTime.Milliseconds(),
		SwitchingTimeMs: plan.SwitchingTime.Milliseconds(),
	}})

	m.monitor.Start(m.handleAnomaly)
	m.startFrequency(0)
	return nil
}

// StopSweep gracefully stops the sweep. Calling it when already idle is a
// no-op. The final idle status is emitted twice, once immediately and once
// after a short delay, to defend against UI race conditions in consumers.
func (m *Manager) StopSweep(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopping
	m.mu.Unlock()

	m.logger.Info("stopping sweep")
	m.timers.cancelAll()
	m.monitor.Stop()
	m.monitor.NoteProcessStopped()
	m.emitStatusChange("stopping")

	stopCtx, cancel := context.WithTimeout(ctx, m.cfg.StopTimeout)
	defer cancel()
	_ = m.sup.Stop(stopCtx)

	m.resetToIdle()
	m.emitStatus()
	time.AfterFunc(m.cfg.IdleStatusDelay, m.emitStatus)
	return nil
}

// EmergencyStop bypasses graceful sequencing entirely: timers are cancelled,
// the process is force-killed by PID, process group and executable name, and
// the run lands in Idle immediately.
func (m *Manager) EmergencyStop() {
	m.logger.Warn("emergency stop")

	m.timers.cancelAll()
	m.monitor.Stop()

	m.mu.Lock()
	m.state = StateStopping
	m.mu.Unlock()

	m.sup.Kill()

	m.resetToIdle()
	m.pub.Publish(Event{Kind: EventEmergencyStop})
	m.emitStatus()
}

// ForceCleanup kills any orphaned sweep processes and resets to Idle,
// independent of the current state. Used to recover from a previous
// crashed run.
func (m *Manager) ForceCleanup() {
	m.logger.Info("force cleanup")

	m.timers.cancelAll()
	m.monitor.Stop()
	m.sup.Kill()

	m.resetToIdle()
	m.emitStatus()
}

// Status returns a snapshot of the live run state
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:           m.state,
		CurrentIndex:    m.currentIndex,
		StartTime:       m.startTime,
		CompletedCycles: m.completedCycles,
	}
	if m.runID != uuid.Nil {
		st.RunID = m.runID.String()
	}
	if m.plan != nil {
		st.CycleTimeMs = m.plan.CycleTime.Milliseconds()
		st.SwitchingTimeMs = m.plan.SwitchingTime.Milliseconds()
		st.Frequencies = make([]TargetStatus, m.plan.Len())
		for i, t := range m.plan.Targets {
			st.Frequencies[i] = TargetStatus{Target: t, Blacklisted: m.plan.Blacklisted(i)}
		}
	}
	return st
}

// Health returns the watchdog's view of the sweep process
func (m *Manager) Health() HealthState {
	return m.monitor.Snapshot()
}

// CheckHealth probes hardware availability with the sweep tool's info
// command under a hard timeout.
func (m *Manager) CheckHealth(ctx context.Context) hackrf.ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	stdout, stderr, err := m.ctl.Run(probeCtx, m.cfg.InfoBinary)
	if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
		return hackrf.ProbeResult{Error: "device probe timed out"}
	}

	result := hackrf.ParseProbeOutput(stdout, stderr)
	if !result.Connected && err != nil && result.Error == "unrecognized probe output" {
		result.Error = fmt.Sprintf("device probe failed: %s", err)
	}
	return result
}

// startFrequency spawns the sweep process for plan index i and arms the
// cycle timer. Failures flow into per-frequency failure accounting.
func (m *Manager) startFrequency(i int) {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return
	}
	m.currentIndex = i
	plan := m.plan
	target := plan.Targets[i]
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SpawnTimeout)
	err := m.sup.Spawn(ctx, target)
	cancel()

	if err != nil {
		m.monitor.SetTransition(false)
		m.handleFrequencyFailure(i, target, err)
		return
	}

	m.mu.Lock()
	m.transitioning = false
	m.consecutiveErrors = 0
	plan.RecordSuccess(i)
	multi := plan.Len() > 1
	cycleTime := plan.CycleTime
	m.mu.Unlock()

	m.monitor.NoteProcessStart(m.sup.PID())
	m.monitor.SetTransition(false)

	m.logger.Info("sweeping", slog.String("target", target.String()), slog.Int("index", i))

	if multi {
		m.timers.schedule(timerCycle, cycleTime, m.advance)
	}
}

// advance is the cycle timer callback: tear down the current frequency,
// wait out the switching window and start the next one.
func (m *Manager) advance() {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return
	}
	plan := m.plan
	cur := m.currentIndex
	next, ok := plan.Next(cur)
	if !ok {
		m.mu.Unlock()
		m.failTerminal(ErrKindSweepError, "all frequencies in plan are blacklisted")
		return
	}
	m.transitioning = true
	switching := plan.SwitchingTime
	wrapped := next <= cur
	m.mu.Unlock()

	m.monitor.SetTransition(true)
	m.monitor.NoteProcessStopped()
	m.emitStatusChange("switching")

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout)
	_ = m.sup.Stop(ctx)
	cancel()

	if wrapped {
		m.mu.Lock()
		m.completedCycles++
		m.mu.Unlock()
	}

	m.timers.schedule(timerSwitch, switching, func() {
		m.startFrequency(next)
	})
}

// handleFrequencyFailure applies blacklist and consecutive-error accounting
// to a failed spawn, then either schedules the next frequency or stops the
// sweep entirely.
func (m *Manager) handleFrequencyFailure(i int, target FrequencyTarget, err error) {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return
	}
	plan := m.plan
	m.consecutiveErrors++
	total := m.consecutiveErrors
	blacklistedNow := plan.RecordFailure(i)
	next, ok := plan.Next(i)
	switching := plan.SwitchingTime
	m.mu.Unlock()

	m.monitor.NoteProcessStopped()
	m.emitError(ErrKindCycleStartup,
		fmt.Sprintf("failed to start sweep at %s: %s", target, err),
		fmt.Sprintf("consecutive errors: %d", total))

	if blacklistedNow {
		m.logger.Warn("frequency blacklisted after repeated failures",
			slog.String("target", target.String()))
		m.emitStatus()
	}

	if total >= m.cfg.MaxConsecutiveErrors {
		m.failTerminal(ErrKindSweepError,
			fmt.Sprintf("stopping sweep after %d consecutive errors", total))
		return
	}
	if !ok {
		m.failTerminal(ErrKindSweepError, ErrAllBlacklisted.Error())
		return
	}

	m.timers.schedule(timerSwitch, switching, func() {
		m.startFrequency(next)
	})
}

// failTerminal emits a terminal error and stops the sweep
func (m *Manager) failTerminal(kind, msg string) {
	m.emitError(kind, msg, "")
	_ = m.StopSweep(context.Background())
}

// recover runs the recovery procedure: stop the current process (ignoring
// already-dead), clean up orphans system-wide, settle, then re-spawn the
// current frequency. A re-spawn failure is fatal to the run and never
// cascades into another recovery.
func (m *Manager) recover(reason string) {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return
	}
	idx := m.currentIndex
	target := m.plan.Targets[idx]
	multi := m.plan.Len() > 1
	cycleTime := m.plan.CycleTime
	m.mu.Unlock()

	switch m.monitor.BeginRecovery() {
	case RecoveryAlreadyRunning:
		return
	case RecoveryInCooldown:
		m.logger.Info("recovery skipped, in cooldown", slog.String("reason", reason))
		return
	case RecoveryAttemptsExceeded:
		m.emitError(ErrKindRecoveryFailed, "recovery attempts exhausted, stopping sweep", reason)
		_ = m.StopSweep(context.Background())
		return
	}

	attempt := m.monitor.Snapshot().RecoveryAttempts
	m.logger.Warn("starting recovery",
		slog.String("reason", reason),
		slog.Int("attempt", attempt))
	m.pub.Publish(Event{Kind: EventRecoveryStart, Data: map[string]any{
		"reason":  reason,
		"attempt": attempt,
	}})

	m.timers.cancel(timerCycle)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout)
	defer cancel()

	_ = m.sup.Stop(ctx)
	_ = m.ctl.KillByName(m.sup.cfg.Binary)
	sleepCtx(ctx, m.cfg.Health.RecoverySettle)

	m.mu.Lock()
	running := m.state == StateRunning
	m.mu.Unlock()
	if !running {
		m.monitor.FinishRecovery(false)
		return
	}

	if err := m.sup.Spawn(ctx, target); err != nil {
		m.monitor.FinishRecovery(false)
		m.emitError(ErrKindRecoveryFailed,
			fmt.Sprintf("re-spawn after recovery failed: %s", err), "")
		_ = m.StopSweep(context.Background())
		return
	}

	m.monitor.NoteProcessStart(m.sup.PID())
	m.monitor.FinishRecovery(false) // success is judged by data flowing again
	m.pub.Publish(Event{Kind: EventRecoveryComplete, Data: map[string]any{
		"attempt": attempt,
	}})
	m.logger.Info("recovery complete", slog.Int("attempt", attempt))

	if multi {
		m.timers.schedule(timerCycle, cycleTime, m.advance)
	}
}

func (m *Manager) handleSample(sample *SpectrumSample) {
	m.mu.Lock()
	running := m.state == StateRunning
	m.mu.Unlock()
	if !running {
		return // orphaned output after stop is dropped
	}

	m.monitor.NoteData()
	m.pub.Publish(Event{Kind: EventSweepData, Timestamp: sample.Timestamp, Data: sample})
}

func (m *Manager) handleStderr(line string) {
	m.logger.Warn(fmt.Sprintf("%s >> %s", m.sup.cfg.Binary, line))
	if hackrf.IsUSBError(line) {
		m.emitError(ErrKindUSBError, line, "")
	}
}

func (m *Manager) handleExit(class ExitClass, st procctl.ExitStatus) {
	m.mu.Lock()
	unexpected := m.state == StateRunning && !m.transitioning
	m.mu.Unlock()
	if !unexpected {
		return
	}

	m.emitError(ErrKindProcessDied,
		fmt.Sprintf("sweep process died: %s", class),
		fmt.Sprintf("exit code %d", st.Code))
	m.recover(string(class))
}

func (m *Manager) handleOverflow(count int) {
	m.emitError(ErrKindBufferOverflow,
		fmt.Sprintf("stdout buffer overflowed %d times, output is arriving faster than it can be consumed", count), "")
}

func (m *Manager) handleAnomaly(reason string) {
	m.recover(reason)
}

func (m *Manager) resetToIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.plan = nil
	m.runID = uuid.Nil
	m.currentIndex = 0
	m.startTime = time.Time{}
	m.completedCycles = 0
	m.consecutiveErrors = 0
	m.transitioning = false
}

func (m *Manager) emitStatus() {
	m.pub.Publish(Event{Kind: EventStatus, Data: m.Status()})
}

func (m *Manager) emitStatusChange(state string) {
	m.pub.Publish(Event{Kind: EventStatusChange, Data: map[string]string{"state": state}})
}

func (m *Manager) emitError(kind, msg, details string) {
	m.logger.Error(msg, slog.String("kind", kind))
	m.pub.Publish(Event{Kind: EventError, Data: &ErrorDetail{
		Message:   msg,
		Kind:      kind,
		Timestamp: time.Now(),
		Details:   details,
	}})
}
