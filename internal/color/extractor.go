package color

import (
	"fmt"
	"image"
)

// FrameLoader returns the captured image of a frame.
type FrameLoader interface {
	LoadFrame(frame int) (image.Image, error)
}

// Source is the color-relevant part of a detection.
type Source struct {
	Frame     int
	Region    image.Rectangle
	Hex       string
	Histogram []float64
}

// Extractor turns detections into descriptors of its comparator's kind. The
// color carried by the detection is used when it has the right kind; otherwise
// the descriptor is computed from the frame image.
type Extractor struct {
	cmp    Comparator
	frames FrameLoader

	cachedFrame int
	cached      image.Image
}

// NewExtractor builds an Extractor. frames may be nil, in which case only
// colors carried by the detections are usable.
func NewExtractor(cmp Comparator, frames FrameLoader) *Extractor {
	return &Extractor{cmp: cmp, frames: frames, cachedFrame: -1}
}

func (x *Extractor) Comparator() Comparator {
	return x.cmp
}

func (x *Extractor) Describe(src Source) (Descriptor, error) {
	switch x.cmp.Kind() {
	case KindMeanColor:
		if src.Hex != "" {
			return ParseHex(src.Hex)
		}
	case KindHistogram:
		if len(src.Histogram) > 0 {
			h := make(Histogram, len(src.Histogram))
			copy(h, src.Histogram)
			return h, nil
		}
	}
	if x.frames == nil {
		return nil, fmt.Errorf("%w: frame %d carries no %s color", ErrNoDescriptor, src.Frame, x.cmp.Kind())
	}
	img, err := x.frame(src.Frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDescriptor, err)
	}
	return x.cmp.Compute(img, src.Region), nil
}

func (x *Extractor) frame(n int) (image.Image, error) {
	if x.cached != nil && x.cachedFrame == n {
		return x.cached, nil
	}
	img, err := x.frames.LoadFrame(n)
	if err != nil {
		return nil, err
	}
	x.cached, x.cachedFrame = img, n
	return img, nil
}
