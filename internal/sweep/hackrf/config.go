// Package hackrf builds command line invocations for the HackRF sweep tools
// and classifies their output markers.
package hackrf

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	// SweepRuntime is the sweep tool executable name
	SweepRuntime = "hackrf_sweep"

	// InfoRuntime is the short-lived identify/probe executable name
	InfoRuntime = "hackrf_info"
)

const (
	MaxLNAGain  = 40
	MaxVGAGain  = 62
	LNAGainStep = 8
	VGAGainStep = 2
)

// Usage reference:
// https://manpages.debian.org/bookworm/hackrf/hackrf_sweep.1.en.html

// Config is a struct for configuring a `hackrf_sweep` invocation
type Config struct {
	// Required frequency window in Hz; rendered as whole MHz on the
	// command line (-f freq_min:freq_max)
	FrequencyStart int64 `yaml:"frequencyStart" json:"frequencyStart"`
	FrequencyEnd   int64 `yaml:"frequencyEnd" json:"frequencyEnd"`

	LNAGain  *int  `yaml:"lnaGain" json:"lnaGain"`   // -l gain_db LNA (IF) gain, 0-40dB, 8dB steps
	VGAGain  *int  `yaml:"vgaGain" json:"vgaGain"`   // -g gain_db VGA (baseband) gain, 0-62dB, 2dB steps
	BinWidth int64 `yaml:"binWidth" json:"binWidth"` // -w bin_width FFT bin width in Hz

	EnableAmp bool `yaml:"enableAmp" json:"enableAmp"` // -a 1 RX RF amplifier
}

func (c *Config) Validate() error {
	if c.FrequencyStart >= c.FrequencyEnd {
		return errors.New("hackrf.Config: frequency end must be greater than frequency start")
	}

	if c.LNAGain != nil {
		if *c.LNAGain < 0 || *c.LNAGain > MaxLNAGain {
			return fmt.Errorf("hackrf.Config: LNA gain must be between 0 and 40 dB: %d given", *c.LNAGain)
		}
		if *c.LNAGain%LNAGainStep != 0 {
			return errors.New("hackrf.Config: LNA gain must be a multiple of 8 dB")
		}
	}

	if c.VGAGain != nil {
		if *c.VGAGain < 0 || *c.VGAGain > MaxVGAGain {
			return fmt.Errorf("hackrf.Config: VGA gain must be between 0 and 62 dB: %d given", *c.VGAGain)
		}
		if *c.VGAGain%VGAGainStep != 0 {
			return errors.New("hackrf.Config: VGA gain must be a multiple of 2 dB")
		}
	}

	return nil
}

// Args builds the command line arguments for `hackrf_sweep`
func (c *Config) Args() ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	args := []string{
		"-f", fmt.Sprintf("%d:%d",
			c.FrequencyStart/1e6,
			c.FrequencyEnd/1e6),
	}

	if c.BinWidth > 0 {
		args = append(args, "-w", strconv.FormatInt(c.BinWidth, 10))
	}

	if c.LNAGain != nil {
		args = append(args, "-l", strconv.Itoa(*c.LNAGain))
	}

	if c.VGAGain != nil {
		args = append(args, "-g", strconv.Itoa(*c.VGAGain))
	}

	if c.EnableAmp {
		args = append(args, "-a", "1")
	}

	return args, nil
}
