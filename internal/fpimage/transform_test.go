package fpimage_test

import (
	"testing"

	"github.com/phinze/fpdeck/internal/fpimage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(w, h int) []byte {
	data := make([]byte, w*h)
	for i := range data {
		data[i] = byte(i*7 + i/w)
	}
	return data
}

func TestHFlip(t *testing.T) {
	data := []byte{
		1, 2, 3,
		4, 5, 6,
	}
	fpimage.HFlip(data, 3, 2)
	assert.Equal(t, []byte{3, 2, 1, 6, 5, 4}, data)
}

func TestVFlip(t *testing.T) {
	data := []byte{
		1, 2,
		3, 4,
		5, 6,
	}
	fpimage.VFlip(data, 2, 3)
	assert.Equal(t, []byte{5, 6, 3, 4, 1, 2}, data)
}

func TestTransformsAreInvolutions(t *testing.T) {
	sizes := []struct{ w, h int }{{1, 1}, {3, 2}, {8, 5}, {17, 31}}
	for _, sz := range sizes {
		orig := pattern(sz.w, sz.h)

		data := append([]byte(nil), orig...)
		fpimage.HFlip(data, sz.w, sz.h)
		fpimage.HFlip(data, sz.w, sz.h)
		assert.Equal(t, orig, data, "hflip %dx%d", sz.w, sz.h)

		fpimage.VFlip(data, sz.w, sz.h)
		fpimage.VFlip(data, sz.w, sz.h)
		assert.Equal(t, orig, data, "vflip %dx%d", sz.w, sz.h)

		fpimage.InvertColors(data)
		fpimage.InvertColors(data)
		assert.Equal(t, orig, data, "invert %dx%d", sz.w, sz.h)
	}
}

func TestInvertColors(t *testing.T) {
	data := []byte{0, 1, 128, 255}
	fpimage.InvertColors(data)
	assert.Equal(t, []byte{255, 254, 127, 0}, data)
}

func TestSquaredStdDev(t *testing.T) {
	for _, n := range []int{1, 2, 100, 4096} {
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = 42
		}
		assert.Zero(t, fpimage.SquaredStdDev(buf), "constant buffer of %d", n)
	}

	// mean 5, deviations 5 and -5
	assert.Equal(t, 25, fpimage.SquaredStdDev([]byte{0, 10}))
	// integer mean: (0+0+1)/3 == 0
	assert.Equal(t, 0, fpimage.SquaredStdDev([]byte{0, 0, 1}))
	assert.Zero(t, fpimage.SquaredStdDev(nil))
}

func TestMeanSquareDiffNorm(t *testing.T) {
	buf := pattern(9, 9)
	assert.Zero(t, fpimage.MeanSquareDiffNorm(buf, buf))

	assert.Equal(t, 4, fpimage.MeanSquareDiffNorm([]byte{0, 4}, []byte{2, 2}))
	// only the shorter length is compared
	assert.Equal(t, 9, fpimage.MeanSquareDiffNorm([]byte{3}, []byte{0, 200, 200}))
	assert.Zero(t, fpimage.MeanSquareDiffNorm(nil, buf))
}

func TestResize(t *testing.T) {
	img, err := fpimage.NewFromData(4, 3, pattern(4, 3), fpimage.FlagVFlipped)
	require.NoError(t, err)
	img.SetPPMM(10)

	out := fpimage.Resize(img, 2, 3)
	assert.Equal(t, 8, out.Width())
	assert.Equal(t, 9, out.Height())
	assert.Len(t, out.Data(), 72)
	assert.Equal(t, fpimage.FlagVFlipped, out.Flags())
	assert.Equal(t, 10.0, out.PPMM())
	assert.False(t, out.HasMinutiae())
}

func TestResizeConstantImage(t *testing.T) {
	data := make([]byte, 16)
	for i := range data {
		data[i] = 77
	}
	img, err := fpimage.NewFromData(4, 4, data, 0)
	require.NoError(t, err)

	out := fpimage.Resize(img, 2, 2)
	for _, p := range out.Data() {
		assert.Equal(t, byte(77), p)
	}
}

func TestNewFromDataValidatesSize(t *testing.T) {
	_, err := fpimage.NewFromData(4, 4, make([]byte, 15), 0)
	assert.Error(t, err)
	_, err = fpimage.NewFromData(0, 4, nil, 0)
	assert.Error(t, err)
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "none", fpimage.Flags(0).String())
	assert.Equal(t, "h-flipped|colors-inverted", (fpimage.FlagHFlipped | fpimage.FlagColorsInverted).String())
}
