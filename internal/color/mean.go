package color

import (
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// MaxDistance is the Euclidean distance between black and white.
var MaxDistance = math.Sqrt(3 * 255 * 255)

const defaultMeanThreshold = 50

// RGB is a mean-color descriptor.
type RGB struct {
	R, G, B uint8
}

func (RGB) Kind() Kind { return KindMeanColor }

func (c RGB) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c RGB) vec() []float64 {
	return []float64{float64(c.R), float64(c.G), float64(c.B)}
}

// ParseHex parses "#RRGGBB" (the leading '#' is optional).
func ParseHex(s string) (RGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// Distance is the Euclidean distance of two colors in RGB space.
func Distance(a, b RGB) float64 {
	return floats.Distance(a.vec(), b.vec(), 2)
}

// MeanColor compares RGB descriptors by Euclidean distance.
type MeanColor struct{}

func (MeanColor) Kind() Kind { return KindMeanColor }

func (MeanColor) Compute(img image.Image, region image.Rectangle) Descriptor {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return RGB{}
	}
	var r, g, b, n uint64
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r += uint64(pr >> 8)
			g += uint64(pg >> 8)
			b += uint64(pb >> 8)
			n++
		}
	}
	return RGB{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n)}
}

func (MeanColor) Compare(a, b Descriptor) (float64, error) {
	ca, ok := a.(RGB)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrKindMismatch, a.Kind())
	}
	cb, ok := b.(RGB)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrKindMismatch, b.Kind())
	}
	return Distance(ca, cb), nil
}

// IsSimilar reports distance <= threshold.
func (m MeanColor) IsSimilar(a, b Descriptor, threshold float64) (bool, error) {
	d, err := m.Compare(a, b)
	if err != nil {
		return false, err
	}
	return d <= threshold, nil
}

func (MeanColor) DefaultThreshold() float64 { return defaultMeanThreshold }

func (MeanColor) StricterThreshold(threshold float64) float64 { return threshold / 2 }
