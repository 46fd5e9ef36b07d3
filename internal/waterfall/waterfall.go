// Package waterfall renders the most recent sweep output as a waterfall
// image: one row of pixels per sample, newest at the bottom, power mapped
// onto a color theme.
package waterfall

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"sync"
	"time"

	"github.com/Graveside2022/ArgosFinal-sub003/internal/sweep"
)

// ErrNoData is returned when rendering before any sample arrived
var ErrNoData = errors.New("waterfall: no samples collected")

// Config tunes the retained history and the rendered image
type Config struct {
	Depth    int     `yaml:"depth"`    // rows of history retained
	Width    int     `yaml:"width"`    // rendered image width in pixels
	Theme    Theme   `yaml:"theme"`    // color theme
	PowerMin float64 `yaml:"powerMin"` // dB mapped to the coldest color
	PowerMax float64 `yaml:"powerMax"` // dB mapped to the hottest color
}

// DefaultConfig returns the rendering defaults
func DefaultConfig() Config {
	return Config{
		Depth:    256,
		Width:    1024,
		Theme:    ThemeClassic,
		PowerMin: -100,
		PowerMax: 0,
	}
}

// row is one retained line of the waterfall
type row struct {
	timestamp time.Time
	lowHz     float64
	highHz    float64
	bins      []float64
}

// Waterfall accumulates sweep samples in a fixed-depth ring and renders
// them on demand. Safe for concurrent use.
type Waterfall struct {
	cfg    Config
	mapper *colorMapper
	annot  *annotator

	mu   sync.Mutex
	ring []row
	next int
	size int
}

// New creates a waterfall collector
func New(cfg Config) (*Waterfall, error) {
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultConfig().Depth
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultConfig().Width
	}
	if cfg.PowerMin >= cfg.PowerMax {
		return nil, errors.New("waterfall: power range is empty")
	}

	annot, err := newAnnotator()
	if err != nil {
		return nil, err
	}

	return &Waterfall{
		cfg:    cfg,
		mapper: newColorMapper(cfg.Theme, cfg.PowerMin, cfg.PowerMax),
		annot:  annot,
		ring:   make([]row, cfg.Depth),
	}, nil
}

// Add appends one sample to the history, evicting the oldest row when full
func (w *Waterfall) Add(sample *sweep.SpectrumSample) {
	if sample == nil || len(sample.PowerBins) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.ring[w.next] = row{
		timestamp: sample.Timestamp,
		lowHz:     sample.FrequencyRangeLowHz,
		highHz:    sample.FrequencyRangeHighHz,
		bins:      append([]float64(nil), sample.PowerBins...),
	}
	w.next = (w.next + 1) % len(w.ring)
	if w.size < len(w.ring) {
		w.size++
	}
}

// Len returns the number of retained rows
func (w *Waterfall) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Reset discards the retained history
func (w *Waterfall) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next = 0
	w.size = 0
}

// Watch consumes a sweep event stream, feeding sweep data into the history
// until the context ends or the channel closes. Run it in its own goroutine.
func (w *Waterfall) Watch(ctx context.Context, events <-chan sweep.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == sweep.EventSweepData {
				if sample, ok := ev.Data.(*sweep.SpectrumSample); ok {
					w.Add(sample)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// rows returns the retained history oldest-first
func (w *Waterfall) rows() []row {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]row, 0, w.size)
	start := w.next - w.size
	if start < 0 {
		start += len(w.ring)
	}
	for i := 0; i < w.size; i++ {
		out = append(out, w.ring[(start+i)%len(w.ring)])
	}
	return out
}

// Render paints the retained history into an annotated image
func (w *Waterfall) Render() (*image.RGBA, error) {
	rows := w.rows()
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	height := len(rows)
	img := image.NewRGBA(image.Rect(0, 0, w.cfg.Width, height))

	for y, r := range rows {
		for x := 0; x < w.cfg.Width; x++ {
			bin := x * len(r.bins) / w.cfg.Width
			img.Set(x, y, w.mapper.colorFor(r.bins[bin]))
		}
	}

	// the frequency scale follows the newest row
	newest := rows[len(rows)-1]
	if err := w.annot.annotate(img, newest.lowHz, newest.highHz, rows[0].timestamp, newest.timestamp); err != nil {
		return nil, err
	}

	return img, nil
}

// WritePNG renders the history and encodes it as PNG
func (w *Waterfall) WritePNG(out io.Writer) error {
	img, err := w.Render()
	if err != nil {
		return err
	}
	return png.Encode(out, img)
}
