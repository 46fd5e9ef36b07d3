// Package sysinfo exposes the host-level signals the sweep health monitor
// inspects: memory headroom and PID liveness.
package sysinfo

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Prober reports system state for health checks
type Prober interface {
	Memory() (Memory, error)
	PidExists(pid int) (bool, error)
}

// Memory is a snapshot of system memory usage
type Memory struct {
	Total     uint64
	Available uint64
}

// AvailablePercent returns the share of total memory still available
func (m Memory) AvailablePercent() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Available) / float64(m.Total) * 100
}

type systemProber struct{}

// New creates a Prober backed by the host operating system
func New() Prober {
	return systemProber{}
}

func (systemProber) Memory() (Memory, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Memory{}, fmt.Errorf("reading virtual memory: %w", err)
	}
	return Memory{Total: vm.Total, Available: vm.Available}, nil
}

func (systemProber) PidExists(pid int) (bool, error) {
	return process.PidExists(int32(pid))
}
