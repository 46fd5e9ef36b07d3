package waterfall

import (
	"fmt"
	"image"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	fontDPI     = 72
	fontSize    = 13
	labelStride = 220 // minimum pixels between frequency labels
)

type annotator struct {
	context *freetype.Context
}

func newAnnotator() (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(fontDPI)
	context.SetFont(parsedFont)
	context.SetFontSize(fontSize)
	context.SetSrc(image.White)
	context.SetHinting(font.HintingFull)

	return &annotator{context: context}, nil
}

// annotate draws the frequency scale along the top edge and a summary line
// along the bottom edge of the rendered waterfall.
func (a *annotator) annotate(img *image.RGBA, lowHz, highHz float64, start, end time.Time) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	size := img.Bounds().Size()

	count := size.X / labelStride
	if count < 1 {
		count = 1
	}
	hzPerLabel := (highHz - lowHz) / float64(count)
	pxPerLabel := size.X / count

	for i := 0; i < count; i++ {
		px := i * pxPerLabel

		// guideline on the exact frequency
		for y := 0; y < 18; y++ {
			img.Set(px, y, image.White)
		}

		pt := freetype.Pt(px+4, 14)
		if _, err := a.context.DrawString(humanHz(lowHz+float64(i)*hzPerLabel), pt); err != nil {
			return fmt.Errorf("drawing frequency scale: %w", err)
		}
	}

	summary := fmt.Sprintf("%s to %s  |  %s to %s",
		humanHz(lowHz), humanHz(highHz),
		start.Format("15:04:05"), end.Format("15:04:05"))

	pt := freetype.Pt(4, size.Y-6)
	if _, err := a.context.DrawString(summary, pt); err != nil {
		return fmt.Errorf("drawing summary: %w", err)
	}

	return nil
}

func humanHz(hz float64) string {
	value, suffix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%0.2f %sHz", value, suffix)
}
