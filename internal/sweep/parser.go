package sweep

import (
	"strconv"
	"strings"
	"time"
)

// timestampLayout matches the `date, time` columns of hackrf_sweep output
const timestampLayout = "2006-01-02 15:04:05.000000"

// ParseLine parses one line of sweep tool output into a SpectrumSample.
//
// The expected shape is CSV-like:
//
//	date, time, freqLowHz, freqHighHz, binWidthHz, numSamples, db0, db1, ...
//
// A line with fewer than 7 fields, or with any field that fails to parse,
// is rejected as a whole and nil is returned. ParseLine is a pure function:
// no I/O, no shared state.
func ParseLine(line string) *SpectrumSample {
	fields := strings.Split(line, ",")
	if len(fields) < 7 {
		return nil
	}
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}

	timestamp, err := time.Parse(timestampLayout, fields[0]+" "+fields[1])
	if err != nil {
		return nil
	}

	freqLow, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return nil
	}

	freqHigh, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return nil
	}

	binWidth, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return nil
	}

	if _, err = strconv.Atoi(fields[5]); err != nil {
		return nil
	}

	bins := make([]float64, 0, len(fields)-6)
	peakIndex, peakPower := 0, 0.0
	for i, field := range fields[6:] {
		power, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil
		}

		bins = append(bins, power)
		if i == 0 || power > peakPower {
			peakIndex, peakPower = i, power
		}
	}

	peakHz := freqLow + float64(peakIndex)*binWidth + binWidth/2

	return &SpectrumSample{
		Timestamp:            timestamp,
		PeakFrequencyMHz:     peakHz / 1e6,
		PeakPowerDb:          peakPower,
		FrequencyRangeLowHz:  freqLow,
		FrequencyRangeHighHz: freqHigh,
		BinWidthHz:           binWidth,
		PowerBins:            bins,
		SignalStrength:       ClassifySignal(peakPower),
	}
}
