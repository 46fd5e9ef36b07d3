package sweep

import "errors"

// Error kind tags attached to error events pushed to subscribers.
const (
	ErrKindDeviceCheck         = "device_check"
	ErrKindFrequencyValidation = "frequency_validation"
	ErrKindCycleStartup        = "cycle_startup"
	ErrKindSweepError          = "sweep_error"
	ErrKindUSBError            = "usb_error"
	ErrKindBufferOverflow      = "buffer_overflow"
	ErrKindRecoveryFailed      = "recovery_failed"
	ErrKindProcessDied         = "process_died"
)

var (
	// ErrAlreadyRunning is returned by StartSweep when a sweep is in progress
	ErrAlreadyRunning = errors.New("sweep already running")

	// ErrProcessLive is returned by Spawn while a previous process has not
	// been fully torn down
	ErrProcessLive = errors.New("previous sweep process still live")

	// ErrAllBlacklisted is returned when every frequency in the plan has been
	// blacklisted and there is nothing left to cycle through
	ErrAllBlacklisted = errors.New("all frequencies in plan are blacklisted")
)

// ValidationError is a custom error type for frequency plan validation failures
type ValidationError struct {
	msg string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{msg}
}

func (e *ValidationError) Error() string {
	return e.msg
}

// DeviceError is a custom error type for hardware availability failures
type DeviceError struct {
	msg string
}

func NewDeviceError(msg string) *DeviceError {
	return &DeviceError{msg}
}

func (e *DeviceError) Error() string {
	return e.msg
}
