package procctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

// execController runs real OS processes via os/exec
type execController struct{}

// NewController creates the production process controller
func NewController() Controller {
	return execController{}
}

func (execController) Start(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting command: %w", err)
	}

	return &execProcess{
		cmd:    cmd,
		pgid:   groupID(cmd.Process.Pid),
		stdout: stdout,
		stderr: stderr,
	}, nil
}

func (execController) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func (execController) KillByName(name string) error {
	// pkill exits 1 when no process matched, which is the expected outcome
	// most of the time.
	err := exec.Command("pkill", "-9", "-x", name).Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return nil
	}
	return err
}

func (execController) Alive(pid int) bool {
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}

type execProcess struct {
	cmd    *exec.Cmd
	pgid   int
	stdout io.Reader
	stderr io.Reader
}

func (p *execProcess) PID() int          { return p.cmd.Process.Pid }
func (p *execProcess) GroupID() int      { return p.pgid }
func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) SignalGroup(sig os.Signal) error {
	return signalGroup(p.pgid, sig)
}

func (p *execProcess) Wait() ExitStatus {
	err := p.cmd.Wait()
	if err == nil {
		return ExitStatus{}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return ExitStatus{Code: exitErr.ExitCode(), Signaled: true, Signal: ws.Signal()}
		}
		return ExitStatus{Code: exitErr.ExitCode()}
	}

	return ExitStatus{Code: -1, Err: err}
}
