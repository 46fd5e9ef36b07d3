package sweep

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	UnitHz  Unit = "Hz"
	UnitKHz Unit = "kHz"
	UnitMHz Unit = "MHz"
	UnitGHz Unit = "GHz"
)

type Unit string

const (
	// HalfWindowHz is half of the sweep window driven around each target
	// frequency: the tool is always invoked with [center-10MHz, center+10MHz].
	HalfWindowHz = 10_000_000

	// MinWindowHz and MaxWindowHz bound the sweep window, imposed by the
	// sweep tool itself.
	MinWindowHz = 1_000_000
	MaxWindowHz = 7_250_000_000

	// DefaultCycleTime is the per-frequency dwell time when none is given
	DefaultCycleTime = 10 * time.Second

	minSwitchingTime = 500 * time.Millisecond
	maxSwitchingTime = 3 * time.Second

	// blacklistThreshold defines the number of consecutive failures after
	// which a target is skipped on subsequent cycles. The target stays in
	// the plan so status reports keep showing it.
	blacklistThreshold = 3
)

// FrequencyTarget is a single target frequency in a sweep plan.
// Immutable once accepted into a plan.
type FrequencyTarget struct {
	Value float64 `json:"value" yaml:"value"`
	Unit  Unit    `json:"unit" yaml:"unit"`
}

// UnmarshalJSON accepts either a bare number (implying MHz) or an explicit
// {value, unit} object.
func (t *FrequencyTarget) UnmarshalJSON(data []byte) error {
	var bare float64
	if err := json.Unmarshal(data, &bare); err == nil {
		t.Value = bare
		t.Unit = UnitMHz
		return nil
	}

	type alias FrequencyTarget
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Unit == "" {
		a.Unit = UnitMHz
	}

	*t = FrequencyTarget(a)
	return nil
}

// Hz returns the target frequency normalized to Hz
func (t FrequencyTarget) Hz() float64 {
	switch t.Unit {
	case UnitHz:
		return t.Value
	case UnitKHz:
		return t.Value * 1e3
	case UnitGHz:
		return t.Value * 1e9
	default: // bare values imply MHz
		return t.Value * 1e6
	}
}

// MHz returns the target frequency normalized to MHz
func (t FrequencyTarget) MHz() float64 {
	return t.Hz() / 1e6
}

func (t FrequencyTarget) String() string {
	return fmt.Sprintf("%g %s", t.Value, t.Unit)
}

// Validate checks a single target against the sweep window limits
func (t FrequencyTarget) Validate() error {
	if t.Value <= 0 {
		return NewValidationError(fmt.Sprintf("frequency must be positive: %s given", t))
	}

	switch t.Unit {
	case UnitHz, UnitKHz, UnitMHz, UnitGHz, "":
	default:
		return NewValidationError(fmt.Sprintf("unknown frequency unit %q", t.Unit))
	}

	center := t.Hz()
	if center-HalfWindowHz < MinWindowHz || center+HalfWindowHz > MaxWindowHz {
		return NewValidationError(fmt.Sprintf(
			"frequency %s out of range: sweep window [%0.f, %0.f] Hz must be within [%d, %d] Hz",
			t, center-HalfWindowHz, center+HalfWindowHz, int64(MinWindowHz), int64(MaxWindowHz)))
	}

	return nil
}

// FrequencyPlan is a validated, ordered list of target frequencies plus the
// per-frequency dwell time. Failure accounting (blacklisting) is tracked per
// target but targets are never removed from the plan.
type FrequencyPlan struct {
	Targets       []FrequencyTarget
	CycleTime     time.Duration
	SwitchingTime time.Duration

	failures    []int
	blacklisted []bool
}

// NewPlan validates and normalizes raw targets into a FrequencyPlan.
// The switching time is derived from the cycle time and clamped to a
// sane teardown/stand-up window.
func NewPlan(targets []FrequencyTarget, cycleTime time.Duration) (*FrequencyPlan, error) {
	if len(targets) == 0 {
		return nil, NewValidationError("frequency plan is empty")
	}
	for _, t := range targets {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}

	if cycleTime <= 0 {
		cycleTime = DefaultCycleTime
	}

	switching := cycleTime / 4
	if switching < minSwitchingTime {
		switching = minSwitchingTime
	}
	if switching > maxSwitchingTime {
		switching = maxSwitchingTime
	}

	return &FrequencyPlan{
		Targets:       targets,
		CycleTime:     cycleTime,
		SwitchingTime: switching,
		failures:      make([]int, len(targets)),
		blacklisted:   make([]bool, len(targets)),
	}, nil
}

// Len returns the number of targets in the plan, blacklisted ones included
func (p *FrequencyPlan) Len() int {
	return len(p.Targets)
}

// RecordFailure increments the consecutive failure counter for target i and
// returns true if this failure crossed the blacklist threshold.
func (p *FrequencyPlan) RecordFailure(i int) bool {
	p.failures[i]++
	if !p.blacklisted[i] && p.failures[i] > blacklistThreshold {
		p.blacklisted[i] = true
		return true
	}
	return false
}

// RecordSuccess resets the consecutive failure counter for target i
func (p *FrequencyPlan) RecordSuccess(i int) {
	p.failures[i] = 0
}

// Blacklisted reports whether target i is currently skipped
func (p *FrequencyPlan) Blacklisted(i int) bool {
	return p.blacklisted[i]
}

// Next returns the index of the next non-blacklisted target after i, wrapping
// modulo the plan length. The same index is returned for a single-target
// plan. The second return value is false when every target is blacklisted.
func (p *FrequencyPlan) Next(i int) (int, bool) {
	n := len(p.Targets)
	for step := 1; step <= n; step++ {
		candidate := (i + step) % n
		if !p.blacklisted[candidate] {
			return candidate, true
		}
	}
	return 0, false
}

// First returns the index of the first non-blacklisted target
func (p *FrequencyPlan) First() (int, bool) {
	for i := range p.Targets {
		if !p.blacklisted[i] {
			return i, true
		}
	}
	return 0, false
}
