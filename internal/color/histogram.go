package color

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	binsPerChannel = 8
	// HistogramSize is the number of bins of a computed histogram.
	HistogramSize = binsPerChannel * binsPerChannel * binsPerChannel

	defaultHistogramThreshold = 0.7
)

// Histogram is a normalised HSV histogram. Bin index is h*64 + s*8 + v.
type Histogram []float64

func (Histogram) Kind() Kind { return KindHistogram }

func (h Histogram) String() string {
	if len(h) == 0 {
		return "hsv[]"
	}
	peak := floats.MaxIdx(h)
	return fmt.Sprintf("hsv[%d] peak=%d:%.2f", len(h), peak, h[peak])
}

// blackHistogram is the descriptor of a region with no pixels.
func blackHistogram() Histogram {
	h := make(Histogram, HistogramSize)
	h[0] = 1
	return h
}

// HSVHistogram compares histograms by correlation.
type HSVHistogram struct{}

func (HSVHistogram) Kind() Kind { return KindHistogram }

func (HSVHistogram) Compute(img image.Image, region image.Rectangle) Descriptor {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return blackHistogram()
	}
	h := make(Histogram, HistogramSize)
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			hh, s, v := hsv(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			hb := hh * binsPerChannel / 180
			sb := s * binsPerChannel / 256
			vb := v * binsPerChannel / 256
			h[hb*binsPerChannel*binsPerChannel+sb*binsPerChannel+vb]++
		}
	}
	normalizeMinMax(h)
	return h
}

// hsv converts to the 8-bit HSV convention: hue in [0,180), saturation and
// value in [0,256).
func hsv(r, g, b uint8) (h, s, v int) {
	ri, gi, bi := int(r), int(g), int(b)
	maxc := max(ri, gi, bi)
	minc := min(ri, gi, bi)
	v = maxc
	diff := maxc - minc
	if maxc == 0 || diff == 0 {
		return 0, 0, v
	}
	s = diff * 255 / maxc
	var hue float64
	switch maxc {
	case ri:
		hue = 60 * float64(gi-bi) / float64(diff)
	case gi:
		hue = 120 + 60*float64(bi-ri)/float64(diff)
	default:
		hue = 240 + 60*float64(ri-gi)/float64(diff)
	}
	if hue < 0 {
		hue += 360
	}
	h = int(hue / 2)
	if h >= 180 {
		h = 179
	}
	return h, s, v
}

func normalizeMinMax(h Histogram) {
	lo, hi := floats.Min(h), floats.Max(h)
	span := hi - lo
	if span == 0 {
		for i := range h {
			h[i] = 0
		}
		return
	}
	floats.AddConst(-lo, h)
	floats.Scale(1/span, h)
}

// Compare returns the Pearson correlation of the two histograms. Histograms
// with no variance correlate 1 with an identical histogram and 0 otherwise.
func (HSVHistogram) Compare(a, b Descriptor) (float64, error) {
	ha, ok := a.(Histogram)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrKindMismatch, a.Kind())
	}
	hb, ok := b.(Histogram)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrKindMismatch, b.Kind())
	}
	if len(ha) != len(hb) || len(ha) == 0 {
		return 0, fmt.Errorf("color: histogram sizes differ (%d vs %d)", len(ha), len(hb))
	}
	c := stat.Correlation(ha, hb, nil)
	if math.IsNaN(c) {
		if floats.Equal(ha, hb) {
			return 1, nil
		}
		return 0, nil
	}
	return c, nil
}

// IsSimilar reports correlation > threshold.
func (m HSVHistogram) IsSimilar(a, b Descriptor, threshold float64) (bool, error) {
	c, err := m.Compare(a, b)
	if err != nil {
		return false, err
	}
	return c > threshold, nil
}

func (HSVHistogram) DefaultThreshold() float64 { return defaultHistogramThreshold }

func (HSVHistogram) StricterThreshold(threshold float64) float64 { return (1 + threshold) / 2 }
