package procctl

import (
	"context"
	"io"
	"os"
	"sync"
	"syscall"
)

// Fake is an in-memory Controller for tests. Each Start call produces a
// scripted FakeProcess whose output and exit the test drives explicitly.
type Fake struct {
	mu          sync.Mutex
	startErrs   []error
	nextPID     int
	procs       []*FakeProcess
	killedNames []string
	startNames  []string

	RunStdout string
	RunStderr string
	RunErr    error
	runNames  []string
}

// NewFake creates a fake process controller
func NewFake() *Fake {
	return &Fake{nextPID: 1000}
}

// FailNextStarts queues errors to be returned by the next Start calls,
// one per call, before successful spawns resume.
func (f *Fake) FailNextStarts(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErrs = append(f.startErrs, errs...)
}

func (f *Fake) Start(_ context.Context, name string, args ...string) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.startNames = append(f.startNames, name)

	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	f.nextPID++
	p := newFakeProcess(f.nextPID)
	f.procs = append(f.procs, p)
	return p, nil
}

func (f *Fake) Run(_ context.Context, name string, args ...string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runNames = append(f.runNames, name)
	return f.RunStdout, f.RunStderr, f.RunErr
}

func (f *Fake) KillByName(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killedNames = append(f.killedNames, name)
	return nil
}

func (f *Fake) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.procs {
		if p.pid == pid {
			return !p.Exited()
		}
	}
	return false
}

// StartCount returns how many processes have been spawned so far
func (f *Fake) StartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.procs)
}

// Proc returns the i-th spawned process
func (f *Fake) Proc(i int) *FakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.procs[i]
}

// LastProc returns the most recently spawned process, or nil
func (f *Fake) LastProc() *FakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.procs) == 0 {
		return nil
	}
	return f.procs[len(f.procs)-1]
}

// KilledNames returns the executable names passed to KillByName
func (f *Fake) KilledNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.killedNames...)
}

// RunCount returns how many probe commands have been executed
func (f *Fake) RunCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runNames)
}

// FakeProcess is a scripted process handle
type FakeProcess struct {
	pid int

	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	mu         sync.Mutex
	signals    []os.Signal
	exited     bool
	autoExit   bool
	exitStatus chan ExitStatus
}

func newFakeProcess(pid int) *FakeProcess {
	p := FakeProcess{
		pid:        pid,
		autoExit:   true,
		exitStatus: make(chan ExitStatus, 1),
	}
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return &p
}

func (p *FakeProcess) PID() int          { return p.pid }
func (p *FakeProcess) GroupID() int      { return p.pid }
func (p *FakeProcess) Stdout() io.Reader { return p.stdoutR }
func (p *FakeProcess) Stderr() io.Reader { return p.stderrR }

// DisableAutoExit makes the process ignore termination signals, simulating
// a hung process that needs the forceful teardown path.
func (p *FakeProcess) DisableAutoExit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoExit = false
}

func (p *FakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	autoExit := p.autoExit
	p.mu.Unlock()

	if autoExit && (sig == syscall.SIGTERM || sig == syscall.SIGKILL || sig == os.Kill) {
		s, _ := sig.(syscall.Signal)
		p.Exit(ExitStatus{Code: -1, Signaled: true, Signal: s})
	}
	return nil
}

func (p *FakeProcess) SignalGroup(sig os.Signal) error {
	return p.Signal(sig)
}

func (p *FakeProcess) Wait() ExitStatus {
	return <-p.exitStatus
}

// Signals returns the signals delivered to the process so far
func (p *FakeProcess) Signals() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]os.Signal(nil), p.signals...)
}

// Exited reports whether the process has terminated
func (p *FakeProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

// EmitStdout writes raw bytes to the process stdout. Blocks until the
// supervisor has consumed them, which keeps tests deterministic.
func (p *FakeProcess) EmitStdout(s string) {
	_, _ = p.stdoutW.Write([]byte(s))
}

// EmitStderr writes one line to the process stderr
func (p *FakeProcess) EmitStderr(line string) {
	_, _ = p.stderrW.Write([]byte(line + "\n"))
}

// Exit terminates the process with the given status. Safe to call once;
// later calls are ignored.
func (p *FakeProcess) Exit(st ExitStatus) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.mu.Unlock()

	_ = p.stdoutW.Close()
	_ = p.stderrW.Close()
	p.exitStatus <- st
}
