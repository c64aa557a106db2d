// Package color computes and compares the compact color signatures used to
// re-identify detections across frames.
//
// Two descriptor kinds exist. A mean-color descriptor is the average RGB of the
// detection region and is compared by Euclidean distance (smaller is more
// similar). A histogram descriptor is an 8x8x8 HSV histogram compared by
// correlation (larger is more similar). The Comparator for a kind hides that
// difference behind IsSimilar.
package color

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

type Kind string

const (
	KindMeanColor Kind = "mean-color"
	KindHistogram Kind = "histogram"
)

var (
	ErrKindMismatch = errors.New("color: descriptor kinds differ")
	ErrNoDescriptor = errors.New("color: no descriptor available for detection")
	ErrInvalidHex   = errors.New("color: invalid hex color")
)

// ParseKind maps a configuration value to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindMeanColor, "mean", "":
		return KindMeanColor, nil
	case KindHistogram, "hist":
		return KindHistogram, nil
	default:
		return "", fmt.Errorf("unknown descriptor kind %q (want %q or %q)", s, KindMeanColor, KindHistogram)
	}
}

// Descriptor is a color signature of one detection region.
type Descriptor interface {
	Kind() Kind
	String() string
}

// Comparator computes and compares descriptors of a single kind.
type Comparator interface {
	Kind() Kind
	// Compute builds a descriptor from the pixels of img inside region. A region
	// with no area inside img yields the kind's black fallback descriptor.
	Compute(img image.Image, region image.Rectangle) Descriptor
	Compare(a, b Descriptor) (float64, error)
	IsSimilar(a, b Descriptor, threshold float64) (bool, error)
	DefaultThreshold() float64
	// StricterThreshold derives the threshold used when re-matching lost
	// identities from the regular one.
	StricterThreshold(threshold float64) float64
}

func New(kind Kind) (Comparator, error) {
	switch kind {
	case KindMeanColor:
		return MeanColor{}, nil
	case KindHistogram:
		return HSVHistogram{}, nil
	default:
		return nil, fmt.Errorf("unknown descriptor kind %q", kind)
	}
}
