package hackrf

import "strings"

// Stderr markers that mean the process cannot proceed or recover on its own.
// These are matched as substrings against single stderr lines.
var fatalMarkers = []string{
	"No boards found",
	"hackrf_open() failed",
	"Resource busy",
	"Permission denied",
	"USB error",
	"libusb",
	"LIBUSB_ERROR",
	"HACKRF_ERROR",
	"usb_claim_interface error",
}

// usbMarkers is the subset of fatal markers that indicate a USB/driver level
// device failure rather than a plain startup problem.
var usbMarkers = []string{
	"USB error",
	"libusb",
	"LIBUSB_ERROR",
	"usb_claim_interface error",
}

// IsFatalStderr reports whether a stderr line signals a failure the process
// cannot recover from.
func IsFatalStderr(line string) bool {
	for _, marker := range fatalMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// IsUSBError reports whether a stderr line signals a USB/driver failure
func IsUSBError(line string) bool {
	for _, marker := range usbMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// ProbeResult is the interpreted outcome of a `hackrf_info` run
type ProbeResult struct {
	Connected  bool   `json:"connected"`
	DeviceInfo string `json:"deviceInfo,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ParseProbeOutput interprets the stdout/stderr of `hackrf_info`. The probe
// is pattern-matched rather than parsed: the tool prints free-form text.
func ParseProbeOutput(stdout, stderr string) ProbeResult {
	combined := stdout + "\n" + stderr

	switch {
	case strings.Contains(combined, "Resource busy"):
		return ProbeResult{Error: "device busy"}

	case strings.Contains(combined, "No HackRF boards found"),
		strings.Contains(combined, "No boards found"):
		return ProbeResult{Error: "no HackRF boards found"}

	case strings.Contains(stdout, "Found HackRF"),
		strings.Contains(stdout, "Serial number"):
		return ProbeResult{Connected: true, DeviceInfo: deviceInfo(stdout)}
	}

	return ProbeResult{Error: "unrecognized probe output"}
}

// deviceInfo extracts the identifying lines from hackrf_info stdout
func deviceInfo(stdout string) string {
	var keep []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Serial number") ||
			strings.HasPrefix(line, "Board ID") ||
			strings.HasPrefix(line, "Firmware Version") ||
			strings.HasPrefix(line, "Found HackRF") {
			keep = append(keep, line)
		}
	}
	return strings.Join(keep, "; ")
}
