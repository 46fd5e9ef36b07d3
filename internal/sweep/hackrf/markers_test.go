package hackrf

import (
	"strings"
	"testing"
)

func TestIsFatalStderr(t *testing.T) {
	fatal := []string{
		"hackrf_open() failed: Resource busy (-1000)",
		"No boards found",
		"usb_claim_interface error -6",
		"libusb: error LIBUSB_ERROR_NO_DEVICE",
		"Permission denied",
	}
	for _, line := range fatal {
		if !IsFatalStderr(line) {
			t.Errorf("IsFatalStderr(%q) = false", line)
		}
	}

	benign := []string{
		"",
		"Stop with Ctrl-C",
		"call hackrf_sweep_init()",
	}
	for _, line := range benign {
		if IsFatalStderr(line) {
			t.Errorf("IsFatalStderr(%q) = true", line)
		}
	}
}

func TestIsUSBError(t *testing.T) {
	if !IsUSBError("libusb: error LIBUSB_ERROR_IO") {
		t.Error("libusb line not classified as USB error")
	}
	if IsUSBError("No boards found") {
		t.Error("missing board misclassified as USB error")
	}
}

func TestParseProbeOutput(t *testing.T) {
	const found = "Found HackRF\nBoard ID Number: 2 (HackRF One)\nSerial number: 0x0000000000000000457863c82f331f3f\nFirmware Version: 2021.03.1\n"

	tests := []struct {
		name          string
		stdout        string
		stderr        string
		wantConnected bool
		wantError     string
	}{
		{"device found", found, "", true, ""},
		{"no boards", "", "hackrf_open() failed\nNo HackRF boards found", false, "no HackRF boards found"},
		{"busy", "", "hackrf_open() failed: Resource busy (-1000)", false, "device busy"},
		{"garbage", "something else entirely", "", false, "unrecognized probe output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseProbeOutput(tt.stdout, tt.stderr)
			if got.Connected != tt.wantConnected {
				t.Errorf("Connected = %v, want %v", got.Connected, tt.wantConnected)
			}
			if got.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", got.Error, tt.wantError)
			}
			if tt.wantConnected {
				for _, fragment := range []string{"Serial number", "Board ID", "Firmware Version"} {
					if !strings.Contains(got.DeviceInfo, fragment) {
						t.Errorf("DeviceInfo missing %q: %q", fragment, got.DeviceInfo)
					}
				}
			}
		})
	}
}
