package minutiae_test

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/phinze/fpdeck/internal/fpimage"
	"github.com/phinze/fpdeck/internal/minutiae"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Extraction
// =============================================================================

func blank(w, h int) []byte {
	data := make([]byte, w*h)
	for i := range data {
		data[i] = 0xff
	}
	return data
}

func TestExtractRejectsBadRasters(t *testing.T) {
	ex := minutiae.NewExtractor()

	_, err := ex.Extract(context.Background(), fpimage.Raster{Width: 4, Height: 4, Data: make([]byte, 16)})
	assert.Error(t, err)

	_, err = ex.Extract(context.Background(), fpimage.Raster{Width: 32, Height: 32, Data: make([]byte, 10)})
	assert.Error(t, err)
}

func TestExtractBlankRaster(t *testing.T) {
	ex := minutiae.NewExtractor()
	res, err := ex.Extract(context.Background(), fpimage.Raster{Width: 64, Height: 48, Data: blank(64, 48)})
	require.NoError(t, err)

	assert.Empty(t, res.Minutiae)
	assert.Len(t, res.Binarized, 64*48)
	for _, p := range res.Binarized {
		assert.Equal(t, byte(0xff), p)
	}
	assert.Equal(t, 8, res.MapWidth)
	assert.Equal(t, 6, res.MapHeight)
	for i := range res.QualityMap {
		assert.Zero(t, res.QualityMap[i])
		assert.Equal(t, 1, res.LowContrastMap[i])
		assert.Equal(t, -1, res.DirectionMap[i])
	}
}

func TestExtractFindsRidgeEndings(t *testing.T) {
	const w, h = 80, 64
	data := blank(w, h)
	for y := 31; y <= 33; y++ {
		for x := 20; x < 60; x++ {
			data[y*w+x] = 0
		}
	}

	ex := minutiae.NewExtractor()
	res, err := ex.Extract(context.Background(), fpimage.Raster{Width: w, Height: h, Data: data})
	require.NoError(t, err)

	var left, right bool
	for _, m := range res.Minutiae {
		assert.InDelta(t, 32, m.Y, 2, "minutia off the ridge: %+v", m)
		if m.Type != fpimage.MinutiaRidgeEnding {
			continue
		}
		if m.X <= 24 {
			left = true
		}
		if m.X >= 55 {
			right = true
		}
	}
	assert.True(t, left, "left ending missing in %+v", res.Minutiae)
	assert.True(t, right, "right ending missing in %+v", res.Minutiae)
	assert.Equal(t, byte(0), res.Binarized[32*w+40])
	assert.Equal(t, byte(0xff), res.Binarized[10*w+10])
}

func TestSettingsScaleWithResolution(t *testing.T) {
	ex := minutiae.NewExtractor()
	def := minutiae.Settings{BlockSize: 8, Margin: 8, MinDistance: 6}
	assert.Equal(t, def, ex.SettingsFor(fpimage.DefaultPPMM))
	assert.Equal(t, def, ex.SettingsFor(0), "unknown resolution")

	assert.Equal(t, minutiae.Settings{BlockSize: 3, Margin: 2, MinDistance: 2}, ex.SettingsFor(5))
	assert.Equal(t, minutiae.Settings{BlockSize: 16, Margin: 16, MinDistance: 12}, ex.SettingsFor(2*fpimage.DefaultPPMM))
}

func TestExtractUsesRasterResolution(t *testing.T) {
	const w, h = 80, 64
	data := blank(w, h)
	for y := 31; y <= 33; y++ {
		for x := 20; x < 60; x++ {
			data[y*w+x] = 0
		}
	}
	ex := minutiae.NewExtractor()

	hi, err := ex.Extract(context.Background(), fpimage.Raster{Width: w, Height: h, PPMM: fpimage.DefaultPPMM, Data: data})
	require.NoError(t, err)
	lo, err := ex.Extract(context.Background(), fpimage.Raster{Width: w, Height: h, PPMM: 5, Data: data})
	require.NoError(t, err)

	assert.Equal(t, 10, hi.MapWidth)
	assert.Equal(t, 8, hi.MapHeight)
	assert.Equal(t, 27, lo.MapWidth)
	assert.Equal(t, 22, lo.MapHeight)
	assert.Len(t, lo.QualityMap, 27*22)
}

// stripes draws 4 pixel wide dark bands, vertical where vertical(x, y).
func stripes(w, h int, vertical func(x, y int) bool) []byte {
	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := y
			if vertical(x, y) {
				c = x
			}
			if c%8 >= 4 {
				data[y*w+x] = 0xff
			}
		}
	}
	return data
}

func TestExtractFlowMaps(t *testing.T) {
	ex := minutiae.NewExtractor()
	ctx := context.Background()
	const w, h = 64, 64

	t.Run("straight ridges", func(t *testing.T) {
		data := stripes(w, h, func(x, y int) bool { return true })
		res, err := ex.Extract(ctx, fpimage.Raster{Width: w, Height: h, Data: data})
		require.NoError(t, err)
		for i := range res.LowFlowMap {
			assert.Zero(t, res.LowFlowMap[i], "block %d", i)
			assert.Zero(t, res.HighCurveMap[i], "block %d", i)
		}
	})

	t.Run("ridges turning", func(t *testing.T) {
		data := stripes(w, h, func(x, y int) bool { return x >= w/2 })
		res, err := ex.Extract(ctx, fpimage.Raster{Width: w, Height: h, Data: data})
		require.NoError(t, err)
		curved := 0
		for _, v := range res.HighCurveMap {
			curved += v
		}
		assert.Positive(t, curved)
	})

	t.Run("no ridge flow", func(t *testing.T) {
		// A one pixel checkerboard has contrast but no gradient away from
		// the clamped corners.
		data := make([]byte, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if (x+y)%2 == 0 {
					data[y*w+x] = 0xff
				}
			}
		}
		res, err := ex.Extract(ctx, fpimage.Raster{Width: w, Height: h, Data: data})
		require.NoError(t, err)
		for by := 1; by < res.MapHeight-1; by++ {
			for bx := 1; bx < res.MapWidth-1; bx++ {
				i := by*res.MapWidth + bx
				assert.Equal(t, 1, res.LowFlowMap[i], "block %d,%d", bx, by)
				assert.Zero(t, res.HighCurveMap[i], "block %d,%d", bx, by)
				assert.Zero(t, res.LowContrastMap[i], "block %d,%d", bx, by)
			}
		}
	})
}

func TestExtractHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := minutiae.NewExtractor().Extract(ctx, fpimage.Raster{Width: 32, Height: 32, Data: blank(32, 32)})
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Templates and comparison
// =============================================================================

func randomMinutiae(seed int64, n int) []fpimage.Minutia {
	rng := rand.New(rand.NewSource(seed))
	ms := make([]fpimage.Minutia, n)
	for i := range ms {
		ms[i] = fpimage.Minutia{
			X:           20 + rng.Intn(260),
			Y:           20 + rng.Intn(260),
			Direction:   rng.Intn(360),
			Reliability: 1,
			Type:        fpimage.MinutiaRidgeEnding,
		}
	}
	return ms
}

func rotate(ms []fpimage.Minutia, deg float64, tx, ty int) []fpimage.Minutia {
	rad := deg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	out := make([]fpimage.Minutia, len(ms))
	for i, m := range ms {
		// image y grows downward; rotate counter-clockwise on screen
		x := float64(m.X - 150)
		y := float64(150 - m.Y)
		rx := x*cos - y*sin
		ry := x*sin + y*cos
		out[i] = m
		out[i].X = int(math.Round(rx)) + 150 + tx
		out[i].Y = 150 - int(math.Round(ry)) + ty
		out[i].Direction = (m.Direction + int(deg)) % 360
	}
	return out
}

func TestEncodeDecode(t *testing.T) {
	ms := []fpimage.Minutia{
		{X: 10, Y: 20, Direction: 270, Reliability: 0.5},
		{X: -3, Y: 400, Direction: 0, Reliability: 1},
	}
	pts, err := minutiae.Decode(minutiae.Encode(ms))
	require.NoError(t, err)
	assert.Equal(t, []minutiae.Point{
		{X: -3, Y: 400, Theta: 0},
		{X: 10, Y: 20, Theta: 270},
	}, pts)
}

func TestEncodeCapsPointCount(t *testing.T) {
	pts, err := minutiae.Decode(minutiae.Encode(randomMinutiae(1, minutiae.MaxMinutiae+20)))
	require.NoError(t, err)
	assert.Len(t, pts, minutiae.MaxMinutiae)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, b := range [][]byte{nil, []byte("XYT"), []byte("nope!!"), append(minutiae.Encode(randomMinutiae(2, 3)), 0)} {
		_, err := minutiae.Decode(b)
		assert.ErrorIs(t, err, minutiae.ErrInvalidTemplate)
	}
}

func TestCompare(t *testing.T) {
	const threshold = 40
	var m minutiae.Matcher
	enrolled := minutiae.Encode(randomMinutiae(7, 25))

	self, err := m.Compare(enrolled, enrolled)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, self, threshold)

	moved, err := m.Compare(enrolled, minutiae.Encode(rotate(randomMinutiae(7, 25), 30, 12, -9)))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, moved, threshold)

	other, err := m.Compare(enrolled, minutiae.Encode(randomMinutiae(99, 25)))
	require.NoError(t, err)
	assert.Less(t, other, threshold)

	_, err = m.Compare(enrolled, []byte("bad"))
	assert.ErrorIs(t, err, minutiae.ErrInvalidTemplate)
}

func TestMatcherEncodeNeedsDetection(t *testing.T) {
	_, err := minutiae.Matcher{}.Encode(fpimage.New(16, 16))
	assert.Error(t, err)
}
