package sweep

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Graveside2022/ArgosFinal-sub003/internal/procctl"
	"github.com/Graveside2022/ArgosFinal-sub003/internal/sweep/hackrf"
)

const (
	// maxLineBuffer caps the unflushed stdout buffer. On overflow the
	// buffer content is discarded rather than growing unbounded.
	maxLineBuffer = 1 << 20 // 1 MiB

	// maxBufferOverflows is the number of discards tolerated before the
	// overflow is escalated to the caller.
	maxBufferOverflows = 10
)

// Exit classifications handed to the caller on process death
const (
	ExitNormal       ExitClass = "normal"
	ExitKilled       ExitClass = "killed" // SIGKILL, likely out-of-memory
	ExitSegfault     ExitClass = "segfault"
	ExitTerminated   ExitClass = "terminated"
	ExitGeneralError ExitClass = "general_error"
	ExitNonZero      ExitClass = "non_zero"
)

type ExitClass string

func classifyExit(st procctl.ExitStatus) ExitClass {
	switch {
	case st.Signaled && st.Signal == syscall.SIGKILL, st.Code == 137:
		return ExitKilled
	case st.Signaled && st.Signal == syscall.SIGSEGV, st.Code == 139:
		return ExitSegfault
	case st.Signaled && st.Signal == syscall.SIGTERM, st.Code == 143:
		return ExitTerminated
	case st.Code == 1:
		return ExitGeneralError
	case st.Code == 0 && !st.Signaled && st.Err == nil:
		return ExitNormal
	default:
		return ExitNonZero
	}
}

// SupervisorTiming groups the process lifecycle delays. Tests shrink them;
// production uses the defaults.
type SupervisorTiming struct {
	// StartupDetection is how long Spawn waits for the first stdout byte
	// before judging the process started anyway.
	StartupDetection time.Duration

	// TermWait is the grace period after SIGTERM before escalating
	TermWait time.Duration

	// StopSettle is the pause after teardown before Stop returns, so a
	// subsequent spawn does not race the dying process for the hardware.
	StopSettle time.Duration
}

// DefaultSupervisorTiming returns the production lifecycle delays
func DefaultSupervisorTiming() SupervisorTiming {
	return SupervisorTiming{
		StartupDetection: 2500 * time.Millisecond,
		TermWait:         100 * time.Millisecond,
		StopSettle:       500 * time.Millisecond,
	}
}

// SupervisorEvents are the callbacks a Supervisor raises. They are invoked
// from the supervisor's reader goroutines; the owner serializes.
type SupervisorEvents struct {
	// OnSample delivers one parsed output line
	OnSample func(*SpectrumSample)

	// OnStderr delivers one trimmed stderr line
	OnStderr func(line string)

	// OnExit reports a process death that was not requested via Stop or
	// Kill. The Supervisor never decides to recover; the caller does.
	OnExit func(class ExitClass, st procctl.ExitStatus)

	// OnBufferOverflow reports repeated stdout buffer discards
	OnBufferOverflow func(count int)
}

// SupervisorConfig describes how to invoke the sweep tool
type SupervisorConfig struct {
	Binary    string // sweep executable name, defaults to hackrf_sweep
	LNAGain   *int
	VGAGain   *int
	BinWidth  int64
	EnableAmp bool
	Timing    SupervisorTiming
}

// WithSupervisorLogger sets the logger for the supervisor
func WithSupervisorLogger(logger *slog.Logger) func(*Supervisor) {
	return func(s *Supervisor) {
		s.logger = logger.With(slog.String("component", "supervisor"))
	}
}

// Supervisor owns spawning, monitoring and terminating the external sweep
// process for a single frequency. At most one process is live at a time;
// Spawn refuses while the previous handle has not been fully torn down.
type Supervisor struct {
	cfg    SupervisorConfig
	ctl    procctl.Controller
	events SupervisorEvents
	logger *slog.Logger

	mu        sync.Mutex
	h         *procHandle
	overflows atomic.Int64
}

// procHandle tracks one spawned process and its reader goroutines
type procHandle struct {
	proc      procctl.Process
	pid       int
	pgid      int
	startTime time.Time

	firstByte chan struct{}
	firstOnce sync.Once
	fatal     chan error
	exited    chan struct{}

	spawned  atomic.Bool // Spawn has returned success
	stopping atomic.Bool // teardown was requested, suppress OnExit
}

// NewSupervisor creates a Supervisor with a discard logger
func NewSupervisor(cfg SupervisorConfig, ctl procctl.Controller, events SupervisorEvents, options ...func(*Supervisor)) *Supervisor {
	if cfg.Binary == "" {
		cfg.Binary = hackrf.SweepRuntime
	}
	if cfg.Timing == (SupervisorTiming{}) {
		cfg.Timing = DefaultSupervisorTiming()
	}

	s := Supervisor{
		cfg:    cfg,
		ctl:    ctl,
		events: events,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Live reports whether a process handle is currently considered live
func (s *Supervisor) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h != nil
}

// PID returns the live process PID, or 0
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h == nil {
		return 0
	}
	return s.h.pid
}

// Spawn starts the sweep process for the given target and waits until it is
// judged started: either the first stdout byte arrives or the startup
// detection window elapses. It returns an error if a recognized fatal
// startup message appears on stderr before that point.
func (s *Supervisor) Spawn(ctx context.Context, target FrequencyTarget) error {
	centerHz := int64(target.Hz())
	cfg := hackrf.Config{
		FrequencyStart: centerHz - HalfWindowHz,
		FrequencyEnd:   centerHz + HalfWindowHz,
		LNAGain:        s.cfg.LNAGain,
		VGAGain:        s.cfg.VGAGain,
		BinWidth:       s.cfg.BinWidth,
		EnableAmp:      s.cfg.EnableAmp,
	}

	args, err := cfg.Args()
	if err != nil {
		return fmt.Errorf("building sweep args: %w", err)
	}

	s.mu.Lock()
	if s.h != nil {
		s.mu.Unlock()
		return ErrProcessLive
	}

	proc, err := s.ctl.Start(ctx, s.cfg.Binary, args...)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("starting %s: %w", s.cfg.Binary, err)
	}

	h := &procHandle{
		proc:      proc,
		pid:       proc.PID(),
		pgid:      proc.GroupID(),
		startTime: time.Now(),
		firstByte: make(chan struct{}),
		fatal:     make(chan error, 1),
		exited:    make(chan struct{}),
	}
	s.h = h
	s.overflows.Store(0)
	s.mu.Unlock()

	s.logger.Info("sweep process started",
		slog.Int("pid", h.pid),
		slog.String("target", target.String()))

	go s.readStdout(h)
	go s.readStderr(h)
	go s.waitExit(h)

	detect := time.NewTimer(s.cfg.Timing.StartupDetection)
	defer detect.Stop()

	select {
	case <-h.firstByte:
		h.spawned.Store(true)
		return nil

	case <-detect.C:
		// no output yet, but no fatal error either; judged started
		h.spawned.Store(true)
		return nil

	case err := <-h.fatal:
		h.stopping.Store(true)
		s.forceKill(h)
		<-h.exited
		s.clear(h)
		return err

	case <-ctx.Done():
		h.stopping.Store(true)
		s.forceKill(h)
		<-h.exited
		s.clear(h)
		return ctx.Err()
	}
}

// Stop gracefully terminates the current process: SIGTERM, a short wait,
// escalation to SIGKILL (process and process group), a system-wide kill by
// executable name as a last resort, then a settle period so the next spawn
// does not race the teardown. Stopping an already-dead process is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	h := s.h
	s.mu.Unlock()

	if h == nil {
		return nil
	}

	h.stopping.Store(true)
	_ = h.proc.Signal(syscall.SIGTERM)

	sleepCtx(ctx, s.cfg.Timing.TermWait)

	if s.ctl.Alive(h.pid) {
		s.logger.Warn("sweep process survived SIGTERM, escalating", slog.Int("pid", h.pid))
		_ = h.proc.Signal(syscall.SIGKILL)
	}
	if h.pgid != h.pid {
		_ = h.proc.SignalGroup(syscall.SIGKILL)
	}

	// safety net for orphaned children holding the hardware
	if err := s.ctl.KillByName(s.cfg.Binary); err != nil {
		s.logger.Warn("kill by name failed", slog.String("error", err.Error()))
	}

	select {
	case <-h.exited:
	case <-ctx.Done():
	}

	sleepCtx(ctx, s.cfg.Timing.StopSettle)
	s.clear(h)
	return nil
}

// Kill tears the current process down with no grace and no settle delay.
// Used by emergency stop.
func (s *Supervisor) Kill() {
	s.mu.Lock()
	h := s.h
	s.mu.Unlock()

	if h != nil {
		h.stopping.Store(true)
		s.forceKill(h)
		s.clear(h)
	}

	_ = s.ctl.KillByName(s.cfg.Binary)
}

func (s *Supervisor) forceKill(h *procHandle) {
	_ = h.proc.Signal(syscall.SIGKILL)
	if h.pgid != h.pid {
		_ = h.proc.SignalGroup(syscall.SIGKILL)
	}
}

// clear releases the handle if it is still the current one
func (s *Supervisor) clear(h *procHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h == h {
		s.h = nil
	}
}

func (s *Supervisor) readStdout(h *procHandle) {
	var buf []byte
	chunk := make([]byte, 4096)

	for {
		n, err := h.proc.Stdout().Read(chunk)
		if n > 0 {
			h.firstOnce.Do(func() { close(h.firstByte) })

			buf = append(buf, chunk[:n]...)
			for {
				idx := bytes.IndexByte(buf, '\n')
				if idx < 0 {
					break
				}

				line := strings.TrimSpace(string(buf[:idx]))
				buf = buf[idx+1:]
				if line == "" {
					continue
				}

				if sample := ParseLine(line); sample != nil {
					if s.events.OnSample != nil {
						s.events.OnSample(sample)
					}
				} else {
					s.logger.Debug("unparseable sweep output", slog.String("line", line))
				}
			}

			if len(buf) > maxLineBuffer {
				buf = buf[:0]
				count := int(s.overflows.Add(1))
				s.logger.Warn("stdout buffer overflow, discarding", slog.Int("count", count))
				if count > maxBufferOverflows && s.events.OnBufferOverflow != nil {
					s.events.OnBufferOverflow(count)
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Supervisor) readStderr(h *procHandle) {
	scanner := bufio.NewScanner(h.proc.Stderr())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if s.events.OnStderr != nil {
			s.events.OnStderr(line)
		}

		if !hackrf.IsFatalStderr(line) {
			continue
		}

		if h.spawned.Load() {
			// the process cannot recover from device-level errors;
			// kill it and let the exit classification drive recovery
			s.logger.Error("fatal device error, killing sweep process",
				slog.Int("pid", h.pid), slog.String("line", line))
			s.forceKill(h)
		} else {
			select {
			case h.fatal <- fmt.Errorf("sweep startup failed: %s", line):
			default:
			}
		}
	}
}

func (s *Supervisor) waitExit(h *procHandle) {
	st := h.proc.Wait()
	close(h.exited)

	stopping := h.stopping.Load()
	s.clear(h)

	if stopping {
		return
	}

	class := classifyExit(st)
	s.logger.Warn("sweep process exited unexpectedly",
		slog.Int("pid", h.pid),
		slog.String("class", string(class)),
		slog.Int("code", st.Code))

	if s.events.OnExit != nil {
		s.events.OnExit(class, st)
	}
}

// sleepCtx sleeps for d or until the context is cancelled
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
