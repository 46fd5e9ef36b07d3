package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Graveside2022/ArgosFinal-sub003/internal/procctl"
)

const probeOutput = "Found HackRF\nBoard ID Number: 2 (HackRF One)\nSerial number: 0x000000000000000087c867dc2d576653\n"

type managerFixture struct {
	m      *Manager
	fake   *procctl.Fake
	prober *fakeProber
	events <-chan Event
}

func newManagerFixture(t *testing.T, mutate func(*ManagerConfig)) *managerFixture {
	t.Helper()

	fake := procctl.NewFake()
	fake.RunStdout = probeOutput
	prober := newFakeProber()

	bus := NewBus()
	t.Cleanup(bus.Close)
	_, events := bus.Subscribe()

	cfg := DefaultManagerConfig()
	cfg.PreflightSettle = time.Millisecond
	cfg.IdleStatusDelay = time.Millisecond
	cfg.Supervisor.Timing = fastTiming()
	cfg.Health = watchdogConfig()
	cfg.Health.CheckInterval = time.Hour // recovery is driven directly here
	if mutate != nil {
		mutate(&cfg)
	}

	m := NewManager(cfg, fake, prober, bus)
	t.Cleanup(m.EmergencyStop)

	return &managerFixture{m: m, fake: fake, prober: prober, events: events}
}

// waitEvent discards events until one of the wanted kind arrives
func waitEvent(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

// drainEvents collects everything currently buffered
func drainEvents(events <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestManagerStartStopLifecycle(t *testing.T) {
	f := newManagerFixture(t, nil)
	target := []FrequencyTarget{{Value: 2400, Unit: UnitMHz}}

	if err := f.m.StartSweep(context.Background(), target, 10*time.Second); err != nil {
		t.Fatalf("StartSweep() error = %v", err)
	}

	ev := waitEvent(t, f.events, EventStatus)
	if st := ev.Data.(Status); st.State != StateRunning {
		t.Errorf("status event state = %s, want %s", st.State, StateRunning)
	}
	waitEvent(t, f.events, EventCycleConfig)

	st := f.m.Status()
	if st.State != StateRunning {
		t.Errorf("Status().State = %s, want %s", st.State, StateRunning)
	}
	if st.RunID == "" {
		t.Error("Status().RunID empty while running")
	}
	if len(st.Frequencies) != 1 || st.Frequencies[0].Blacklisted {
		t.Errorf("Status().Frequencies = %+v", st.Frequencies)
	}

	if err := f.m.StartSweep(context.Background(), target, 0); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second StartSweep() error = %v, want ErrAlreadyRunning", err)
	}

	if err := f.m.StopSweep(context.Background()); err != nil {
		t.Fatalf("StopSweep() error = %v", err)
	}
	if st := f.m.Status(); st.State != StateIdle || st.RunID != "" {
		t.Errorf("Status() after stop = %+v", st)
	}

	// stopping an idle manager is a no-op
	if err := f.m.StopSweep(context.Background()); err != nil {
		t.Fatalf("idle StopSweep() error = %v", err)
	}
}

func TestManagerStartSweepValidation(t *testing.T) {
	tests := []struct {
		name    string
		targets []FrequencyTarget
	}{
		{"empty plan", nil},
		{"window out of range", []FrequencyTarget{{Value: 5, Unit: UnitMHz}}},
		{"unknown unit", []FrequencyTarget{{Value: 100, Unit: "THz"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newManagerFixture(t, nil)

			err := f.m.StartSweep(context.Background(), tt.targets, 0)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("StartSweep() error = %v, want ValidationError", err)
			}

			ev := waitEvent(t, f.events, EventError)
			if detail := ev.Data.(*ErrorDetail); detail.Kind != ErrKindFrequencyValidation {
				t.Errorf("error kind = %s, want %s", detail.Kind, ErrKindFrequencyValidation)
			}
			if st := f.m.Status(); st.State != StateIdle {
				t.Errorf("state = %s after rejected start", st.State)
			}
			if f.fake.StartCount() != 0 {
				t.Errorf("StartCount = %d, want 0", f.fake.StartCount())
			}
		})
	}
}

func TestManagerStartSweepDeviceUnavailable(t *testing.T) {
	f := newManagerFixture(t, nil)
	f.fake.RunStdout = ""
	f.fake.RunStderr = "hackrf_open() failed: Resource busy (-1000)"

	err := f.m.StartSweep(context.Background(), []FrequencyTarget{{Value: 2400, Unit: UnitMHz}}, 0)
	var derr *DeviceError
	if !errors.As(err, &derr) {
		t.Fatalf("StartSweep() error = %v, want DeviceError", err)
	}

	ev := waitEvent(t, f.events, EventError)
	if detail := ev.Data.(*ErrorDetail); detail.Kind != ErrKindDeviceCheck {
		t.Errorf("error kind = %s, want %s", detail.Kind, ErrKindDeviceCheck)
	}
	if f.fake.StartCount() != 0 {
		t.Errorf("StartCount = %d, want 0", f.fake.StartCount())
	}
}

func TestManagerPreflightCleanup(t *testing.T) {
	f := newManagerFixture(t, nil)

	if err := f.m.StartSweep(context.Background(), []FrequencyTarget{{Value: 2400, Unit: UnitMHz}}, 10*time.Second); err != nil {
		t.Fatalf("StartSweep() error = %v", err)
	}

	// orphans from a previous unclean shutdown are killed before probing
	var killed bool
	for _, name := range f.fake.KilledNames() {
		if name == f.m.sup.cfg.Binary {
			killed = true
		}
	}
	if !killed {
		t.Error("pre-flight kill-by-name not invoked")
	}
}

func TestManagerSweepDataFlow(t *testing.T) {
	f := newManagerFixture(t, nil)

	if err := f.m.StartSweep(context.Background(), []FrequencyTarget{{Value: 2400, Unit: UnitMHz}}, 10*time.Second); err != nil {
		t.Fatalf("StartSweep() error = %v", err)
	}

	f.fake.Proc(0).EmitStdout(sampleLine + "\n")

	ev := waitEvent(t, f.events, EventSweepData)
	sample := ev.Data.(*SpectrumSample)
	if sample.SignalStrength != SignalWeak {
		t.Errorf("SignalStrength = %q, want %q", sample.SignalStrength, SignalWeak)
	}

	waitFor(t, "data noted by watchdog", func() bool {
		return !f.m.Health().LastDataAt.IsZero()
	})
}

func TestManagerDropsOrphanedOutput(t *testing.T) {
	f := newManagerFixture(t, nil)

	sample := ParseLine(sampleLine)
	f.m.handleSample(sample) // manager is idle, no run in progress

	for _, ev := range drainEvents(f.events) {
		if ev.Kind == EventSweepData {
			t.Fatal("sweep_data emitted while idle")
		}
	}
}

func TestManagerCyclesThroughPlan(t *testing.T) {
	f := newManagerFixture(t, nil)
	targets := []FrequencyTarget{
		{Value: 2400, Unit: UnitMHz},
		{Value: 5800, Unit: UnitMHz},
	}

	if err := f.m.StartSweep(context.Background(), targets, 100*time.Millisecond); err != nil {
		t.Fatalf("StartSweep() error = %v", err)
	}
	if got := f.m.Status().CurrentIndex; got != 0 {
		t.Fatalf("CurrentIndex = %d, want 0", got)
	}

	waitFor(t, "second frequency", func() bool { return f.fake.StartCount() >= 2 })
	waitFor(t, "index advance", func() bool { return f.m.Status().CurrentIndex == 1 })
	if !f.fake.Proc(0).Exited() {
		t.Error("previous process still alive after frequency switch")
	}

	waitEvent(t, f.events, EventStatusChange)

	// wrapping back to the first frequency completes a cycle
	waitFor(t, "wrap around", func() bool { return f.fake.StartCount() >= 3 })
	waitFor(t, "cycle count", func() bool { return f.m.Status().CompletedCycles >= 1 })
	waitFor(t, "index wrap", func() bool { return f.m.Status().CurrentIndex == 0 })
}

func TestManagerBlacklistsFailingFrequency(t *testing.T) {
	f := newManagerFixture(t, nil)
	spawnErr := errors.New("exec format error")
	f.fake.FailNextStarts(spawnErr, spawnErr, spawnErr, spawnErr)

	if err := f.m.StartSweep(context.Background(), []FrequencyTarget{{Value: 2400, Unit: UnitMHz}}, 2*time.Second); err != nil {
		t.Fatalf("StartSweep() error = %v", err)
	}

	// four consecutive failures blacklist the only frequency, which
	// terminates the run
	waitFor(t, "terminal stop", func() bool { return f.m.Status().State == StateIdle })

	var startupErrs, terminal int
	for _, ev := range drainEvents(f.events) {
		if ev.Kind != EventError {
			continue
		}
		switch detail := ev.Data.(*ErrorDetail); detail.Kind {
		case ErrKindCycleStartup:
			startupErrs++
		case ErrKindSweepError:
			terminal++
		}
	}
	if startupErrs != 4 {
		t.Errorf("cycle_startup errors = %d, want 4", startupErrs)
	}
	if terminal == 0 {
		t.Error("no terminal sweep_error emitted")
	}
}

func TestManagerConsecutiveErrorLimit(t *testing.T) {
	f := newManagerFixture(t, func(cfg *ManagerConfig) {
		cfg.MaxConsecutiveErrors = 2
	})
	spawnErr := errors.New("exec format error")
	f.fake.FailNextStarts(spawnErr, spawnErr)

	targets := []FrequencyTarget{
		{Value: 2400, Unit: UnitMHz},
		{Value: 5800, Unit: UnitMHz},
	}
	if err := f.m.StartSweep(context.Background(), targets, 2*time.Second); err != nil {
		t.Fatalf("StartSweep() error = %v", err)
	}

	// failures across different frequencies accumulate into the same
	// consecutive-error counter
	waitFor(t, "terminal stop", func() bool { return f.m.Status().State == StateIdle })
}

func TestManagerRecoversFromProcessDeath(t *testing.T) {
	f := newManagerFixture(t, nil)

	if err := f.m.StartSweep(context.Background(), []FrequencyTarget{{Value: 2400, Unit: UnitMHz}}, 10*time.Second); err != nil {
		t.Fatalf("StartSweep() error = %v", err)
	}

	// simulate the kernel OOM-killing the process
	f.fake.Proc(0).Exit(procctl.ExitStatus{Code: 137})

	waitEvent(t, f.events, EventRecoveryStart)
	waitEvent(t, f.events, EventRecoveryComplete)

	if got := f.fake.StartCount(); got != 2 {
		t.Errorf("StartCount = %d, want 2 after recovery", got)
	}
	if st := f.m.Status(); st.State != StateRunning {
		t.Errorf("state = %s after recovery, want %s", st.State, StateRunning)
	}
	if got := f.m.Health().RecoveryAttempts; got != 1 {
		t.Errorf("RecoveryAttempts = %d, want 1", got)
	}

	// data flowing again proves the recovery worked
	f.fake.LastProc().EmitStdout(sampleLine + "\n")
	waitFor(t, "attempt counter reset", func() bool {
		return f.m.Health().RecoveryAttempts == 0
	})
}

func TestManagerRecoveryRespawnFailureIsTerminal(t *testing.T) {
	f := newManagerFixture(t, nil)

	if err := f.m.StartSweep(context.Background(), []FrequencyTarget{{Value: 2400, Unit: UnitMHz}}, 10*time.Second); err != nil {
		t.Fatalf("StartSweep() error = %v", err)
	}

	f.fake.FailNextStarts(errors.New("device wedged"))
	f.fake.Proc(0).Exit(procctl.ExitStatus{Code: 139})

	waitFor(t, "terminal stop", func() bool { return f.m.Status().State == StateIdle })

	var sawRecoveryFailed bool
	for _, ev := range drainEvents(f.events) {
		if ev.Kind != EventError {
			continue
		}
		if detail := ev.Data.(*ErrorDetail); detail.Kind == ErrKindRecoveryFailed {
			sawRecoveryFailed = true
		}
	}
	if !sawRecoveryFailed {
		t.Error("no recovery_failed error emitted")
	}
}

func TestManagerRecoveryAttemptsExhausted(t *testing.T) {
	f := newManagerFixture(t, func(cfg *ManagerConfig) {
		cfg.Health.MaxRecoveryAttempts = 2
	})

	if err := f.m.StartSweep(context.Background(), []FrequencyTarget{{Value: 2400, Unit: UnitMHz}}, 10*time.Second); err != nil {
		t.Fatalf("StartSweep() error = %v", err)
	}

	// no data ever flows, so every recovery stays unproven and the
	// attempt counter keeps climbing
	for i := 0; i < 2; i++ {
		f.fake.LastProc().Exit(procctl.ExitStatus{Code: 137})
		waitEvent(t, f.events, EventRecoveryComplete)
	}

	f.fake.LastProc().Exit(procctl.ExitStatus{Code: 137})
	waitFor(t, "terminal stop", func() bool { return f.m.Status().State == StateIdle })

	if got := f.fake.StartCount(); got != 3 {
		t.Errorf("StartCount = %d, want 3 (initial + 2 recoveries)", got)
	}
}

func TestManagerEmergencyStop(t *testing.T) {
	f := newManagerFixture(t, nil)

	if err := f.m.StartSweep(context.Background(), []FrequencyTarget{{Value: 2400, Unit: UnitMHz}}, 10*time.Second); err != nil {
		t.Fatalf("StartSweep() error = %v", err)
	}
	p := f.fake.Proc(0)

	f.m.EmergencyStop()

	waitEvent(t, f.events, EventEmergencyStop)
	if st := f.m.Status(); st.State != StateIdle {
		t.Errorf("state = %s after emergency stop, want %s", st.State, StateIdle)
	}
	if !p.Exited() {
		t.Error("process survived emergency stop")
	}

	for _, ev := range drainEvents(f.events) {
		if ev.Kind == EventSweepData {
			t.Fatal("sweep_data emitted after emergency stop")
		}
	}

	// the manager is reusable after an emergency stop
	if err := f.m.StartSweep(context.Background(), []FrequencyTarget{{Value: 2400, Unit: UnitMHz}}, 10*time.Second); err != nil {
		t.Fatalf("StartSweep() after emergency stop error = %v", err)
	}
}

func TestManagerForceCleanup(t *testing.T) {
	f := newManagerFixture(t, nil)

	f.m.ForceCleanup()

	var killed bool
	for _, name := range f.fake.KilledNames() {
		if name == f.m.sup.cfg.Binary {
			killed = true
		}
	}
	if !killed {
		t.Error("ForceCleanup did not kill by executable name")
	}
	if st := f.m.Status(); st.State != StateIdle {
		t.Errorf("state = %s after cleanup, want %s", st.State, StateIdle)
	}
}

func TestManagerCheckHealth(t *testing.T) {
	tests := []struct {
		name          string
		stdout        string
		stderr        string
		wantConnected bool
	}{
		{"device present", probeOutput, "", true},
		{"no boards", "", "hackrf_open() failed\nNo HackRF boards found", false},
		{"device busy", "", "Resource busy", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newManagerFixture(t, nil)
			f.fake.RunStdout = tt.stdout
			f.fake.RunStderr = tt.stderr

			result := f.m.CheckHealth(context.Background())
			if result.Connected != tt.wantConnected {
				t.Errorf("Connected = %v, want %v", result.Connected, tt.wantConnected)
			}
			if tt.wantConnected && result.DeviceInfo == "" {
				t.Error("DeviceInfo empty for a connected device")
			}
		})
	}
}
