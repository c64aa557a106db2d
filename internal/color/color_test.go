package color

import (
	"errors"
	"image"
	imgcolor "image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c imgcolor.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#112233")
	require.NoError(t, err)
	assert.Equal(t, RGB{0x11, 0x22, 0x33}, c)
	assert.Equal(t, "#112233", c.String())

	c, err = ParseHex("FFaa00")
	require.NoError(t, err)
	assert.Equal(t, RGB{0xff, 0xaa, 0x00}, c)

	for _, bad := range []string{"", "#12345", "#1234567", "#gg0000"} {
		_, err := ParseHex(bad)
		assert.ErrorIs(t, err, ErrInvalidHex, bad)
	}
}

func TestMeanColorThresholdBoundary(t *testing.T) {
	m := MeanColor{}
	a := RGB{0, 0, 0}
	b := RGB{3, 4, 0}

	d, err := m.Compare(a, b)
	require.NoError(t, err)
	assert.Equal(t, 5.0, d)

	ok, err := m.IsSimilar(a, b, 5)
	require.NoError(t, err)
	assert.True(t, ok, "distance equal to threshold is similar")

	ok, err = m.IsSimilar(a, b, 5-1e-9)
	require.NoError(t, err)
	assert.False(t, ok, "distance above threshold is dissimilar")
}

func TestMeanColorDistanceRange(t *testing.T) {
	assert.InDelta(t, 441.673, Distance(RGB{}, RGB{255, 255, 255}), 1e-3)
	assert.InDelta(t, MaxDistance, Distance(RGB{}, RGB{255, 255, 255}), 1e-9)
	// #2203FF vs #e709ff: a blue and a magenta, far apart.
	a, _ := ParseHex("#2203FF")
	b, _ := ParseHex("#e709ff")
	assert.Greater(t, Distance(a, b), 50.0)
}

func TestMeanColorCompute(t *testing.T) {
	img := solid(10, 10, imgcolor.RGBA{R: 200, G: 100, B: 50, A: 255})
	for x := 0; x < 5; x++ {
		for y := 0; y < 10; y++ {
			img.SetRGBA(x, y, imgcolor.RGBA{R: 0, G: 0, B: 0, A: 255})
		}
	}
	got := MeanColor{}.Compute(img, image.Rect(0, 0, 10, 10))
	assert.Equal(t, RGB{100, 50, 25}, got)

	got = MeanColor{}.Compute(img, image.Rect(5, 0, 10, 10))
	assert.Equal(t, RGB{200, 100, 50}, got)
}

func TestZeroAreaFallback(t *testing.T) {
	img := solid(4, 4, imgcolor.RGBA{R: 255, A: 255})

	assert.Equal(t, RGB{}, MeanColor{}.Compute(img, image.Rect(2, 2, 2, 2)))
	assert.Equal(t, RGB{}, MeanColor{}.Compute(img, image.Rect(10, 10, 20, 20)), "outside the image")

	h, ok := HSVHistogram{}.Compute(img, image.Rect(1, 1, 1, 3)).(Histogram)
	require.True(t, ok)
	require.Len(t, h, HistogramSize)
	assert.Equal(t, 1.0, h[0])
	assert.Equal(t, 1.0, sum(h))
}

func sum(h Histogram) float64 {
	var s float64
	for _, v := range h {
		s += v
	}
	return s
}

func TestHistogramCompare(t *testing.T) {
	hc := HSVHistogram{}
	red := solid(8, 8, imgcolor.RGBA{R: 220, G: 10, B: 10, A: 255})
	red2 := solid(8, 8, imgcolor.RGBA{R: 215, G: 12, B: 8, A: 255})
	blue := solid(8, 8, imgcolor.RGBA{R: 10, G: 10, B: 220, A: 255})

	r1 := hc.Compute(red, red.Bounds())
	r2 := hc.Compute(red2, red2.Bounds())
	b1 := hc.Compute(blue, blue.Bounds())

	c, err := hc.Compare(r1, r2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, c, 1e-9)

	ok, err := hc.IsSimilar(r1, r2, 0.7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hc.IsSimilar(r1, b1, 0.7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHistogramNoVariance(t *testing.T) {
	hc := HSVHistogram{}
	flat := make(Histogram, HistogramSize)
	other := make(Histogram, HistogramSize)
	for i := range other {
		other[i] = 0.5
	}
	c, err := hc.Compare(flat, flat)
	require.NoError(t, err)
	assert.Equal(t, 1.0, c)

	c, err = hc.Compare(flat, other)
	require.NoError(t, err)
	assert.Equal(t, 0.0, c)
}

func TestKindMismatch(t *testing.T) {
	_, err := MeanColor{}.Compare(RGB{}, blackHistogram())
	assert.True(t, errors.Is(err, ErrKindMismatch))

	_, err = HSVHistogram{}.Compare(RGB{}, blackHistogram())
	assert.True(t, errors.Is(err, ErrKindMismatch))

	_, err = HSVHistogram{}.Compare(Histogram{1, 2}, Histogram{1, 2, 3})
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("histogram")
	require.NoError(t, err)
	assert.Equal(t, KindHistogram, k)

	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindMeanColor, k)

	_, err = ParseKind("lab")
	assert.Error(t, err)
}

func TestStricterThreshold(t *testing.T) {
	assert.Equal(t, 25.0, MeanColor{}.StricterThreshold(50))
	assert.InDelta(t, 0.85, HSVHistogram{}.StricterThreshold(0.7), 1e-12)
}

type frameMap map[int]image.Image

func (f frameMap) LoadFrame(n int) (image.Image, error) {
	img, ok := f[n]
	if !ok {
		return nil, errors.New("no such frame")
	}
	return img, nil
}

func TestExtractorDescribe(t *testing.T) {
	frames := frameMap{7: solid(10, 10, imgcolor.RGBA{R: 16, G: 32, B: 48, A: 255})}

	x := NewExtractor(MeanColor{}, frames)
	d, err := x.Describe(Source{Frame: 1, Hex: "#010203"})
	require.NoError(t, err)
	assert.Equal(t, RGB{1, 2, 3}, d)

	d, err = x.Describe(Source{Frame: 7, Region: image.Rect(0, 0, 5, 5)})
	require.NoError(t, err)
	assert.Equal(t, RGB{16, 32, 48}, d)

	_, err = x.Describe(Source{Frame: 8, Region: image.Rect(0, 0, 5, 5)})
	assert.ErrorIs(t, err, ErrNoDescriptor)

	hx := NewExtractor(HSVHistogram{}, nil)
	d, err = hx.Describe(Source{Frame: 1, Histogram: []float64{0, 1, 0}})
	require.NoError(t, err)
	assert.Equal(t, Histogram{0, 1, 0}, d)

	_, err = hx.Describe(Source{Frame: 1, Hex: "#000000"})
	assert.ErrorIs(t, err, ErrNoDescriptor)
}
