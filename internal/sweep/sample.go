package sweep

import "time"

// Signal strength labels, classified from the peak power of a sample
const (
	SignalNone       = "No Signal"
	SignalVeryWeak   = "Very Weak"
	SignalWeak       = "Weak"
	SignalModerate   = "Moderate"
	SignalStrong     = "Strong"
	SignalVeryStrong = "Very Strong"
)

// SpectrumSample is one parsed record of sweep tool output. Samples are
// transient: they are pushed to subscribers and not retained by the core.
type SpectrumSample struct {
	Timestamp            time.Time `json:"timestamp"`
	PeakFrequencyMHz     float64   `json:"peakFrequencyMHz"`
	PeakPowerDb          float64   `json:"peakPowerDb"`
	FrequencyRangeLowHz  float64   `json:"frequencyRangeLowHz"`
	FrequencyRangeHighHz float64   `json:"frequencyRangeHighHz"`
	BinWidthHz           float64   `json:"binWidthHz"`
	PowerBins            []float64 `json:"powerBins"`
	SignalStrength       string    `json:"signalStrength"`
}

// ClassifySignal maps a power level in dB onto a human-readable label.
// A power exactly on a threshold belongs to the lower-range label, so
// -90 dB still reads "No Signal" and -89.999 dB reads "Very Weak".
func ClassifySignal(db float64) string {
	switch {
	case db <= -90:
		return SignalNone
	case db <= -70:
		return SignalVeryWeak
	case db <= -50:
		return SignalWeak
	case db <= -30:
		return SignalModerate
	case db <= -10:
		return SignalStrong
	default:
		return SignalVeryStrong
	}
}
