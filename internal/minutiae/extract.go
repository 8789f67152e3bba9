// Package minutiae is a compact reference implementation of fingerprint
// feature extraction and template comparison. It is good enough to drive
// the virtual sensor end to end; real deployments plug in their own
// fpimage.Extractor and device.Comparator.
package minutiae

import (
	"context"
	"fmt"
	"math"

	"github.com/phinze/fpdeck/internal/fpimage"
)

// Extractor finds ridge endings and bifurcations using block-wise
// binarization, Zhang-Suen thinning and the crossing number of the skeleton.
type Extractor struct {
	// BlockSize is the edge length of the square blocks used for the maps.
	BlockSize int
	// Margin is the border, in pixels, in which no minutiae are reported.
	Margin int
	// MinDistance removes pairs of minutiae closer than this; such pairs are
	// almost always ridge breaks or spurs.
	MinDistance int
	// LowContrast is the squared standard deviation below which a block is
	// treated as background.
	LowContrast int
}

// NewExtractor returns an Extractor with defaults tuned for 500 dpi scans.
func NewExtractor() *Extractor {
	return &Extractor{
		BlockSize:   8,
		Margin:      8,
		MinDistance: 6,
		LowContrast: 100,
	}
}

// Settings are the pixel distances used on one raster.
type Settings struct {
	BlockSize   int
	Margin      int
	MinDistance int
}

// SettingsFor scales the extractor's distances, which are given for
// fpimage.DefaultPPMM, to a raster of ppmm points per millimetre. A ppmm
// of zero or less means the default resolution.
func (e *Extractor) SettingsFor(ppmm float64) Settings {
	bs := e.BlockSize
	if bs <= 0 {
		bs = 8
	}
	if ppmm <= 0 {
		ppmm = fpimage.DefaultPPMM
	}
	f := ppmm / fpimage.DefaultPPMM
	scale := func(v, floor int) int {
		return max(int(math.Round(float64(v)*f)), floor)
	}
	return Settings{
		BlockSize:   scale(bs, 3),
		Margin:      scale(e.Margin, 1),
		MinDistance: scale(e.MinDistance, min(e.MinDistance, 1)),
	}
}

// Extract implements fpimage.Extractor.
func (e *Extractor) Extract(ctx context.Context, r fpimage.Raster) (*fpimage.Extraction, error) {
	set := e.SettingsFor(r.PPMM)
	bs := set.BlockSize
	if r.Width < 2*bs || r.Height < 2*bs {
		return nil, fmt.Errorf("raster %dx%d too small", r.Width, r.Height)
	}
	if len(r.Data) != r.Width*r.Height {
		return nil, fmt.Errorf("raster is %d bytes, want %d", len(r.Data), r.Width*r.Height)
	}

	m := e.blockMaps(r, bs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ridges, binarized := binarize(r, m, bs)
	thin(ridges, r.Width, r.Height)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	found := crossingNumbers(ridges, r, m, bs, set.Margin)
	found = removeClusters(found, set.MinDistance)

	return &fpimage.Extraction{
		Minutiae:       found,
		Binarized:      binarized,
		MapWidth:       m.w,
		MapHeight:      m.h,
		QualityMap:     m.quality,
		DirectionMap:   m.direction,
		LowContrastMap: m.lowContrast,
		LowFlowMap:     m.lowFlow,
		HighCurveMap:   m.highCurve,
	}, nil
}

type blockMaps struct {
	w, h        int
	mean        []int
	quality     []int
	direction   []int
	lowContrast []int
	lowFlow     []int
	highCurve   []int
	// orientation in radians, ridge flow direction
	theta []float64
}

const (
	// Blocks whose gradients agree less than this have no clear ridge flow.
	minCoherence = 0.3
	// Blocks turning more than this against a neighbour are high curvature.
	maxTurn = math.Pi / 4
)

func (b *blockMaps) at(x, y, bs int) int {
	return (y/bs)*b.w + x/bs
}

func (e *Extractor) blockMaps(r fpimage.Raster, bs int) *blockMaps {
	mw := (r.Width + bs - 1) / bs
	mh := (r.Height + bs - 1) / bs
	m := &blockMaps{
		w:           mw,
		h:           mh,
		mean:        make([]int, mw*mh),
		quality:     make([]int, mw*mh),
		direction:   make([]int, mw*mh),
		lowContrast: make([]int, mw*mh),
		lowFlow:     make([]int, mw*mh),
		highCurve:   make([]int, mw*mh),
		theta:       make([]float64, mw*mh),
	}

	block := make([]byte, 0, bs*bs)
	for by := 0; by < mh; by++ {
		for bx := 0; bx < mw; bx++ {
			block = block[:0]
			var sum int
			var gxx, gxy, energy float64
			for y := by * bs; y < min((by+1)*bs, r.Height); y++ {
				for x := bx * bs; x < min((bx+1)*bs, r.Width); x++ {
					p := r.Data[y*r.Width+x]
					block = append(block, p)
					sum += int(p)
					gx, gy := sobel(r, x, y)
					gxx += gx*gx - gy*gy
					gxy += 2 * gx * gy
					energy += gx*gx + gy*gy
				}
			}
			i := by*mw + bx
			m.mean[i] = sum / len(block)

			sd := fpimage.SquaredStdDev(block)
			switch {
			case sd < e.LowContrast:
				m.quality[i] = 0
				m.lowContrast[i] = 1
			case sd < 4*e.LowContrast:
				m.quality[i] = 1
			case sd < 16*e.LowContrast:
				m.quality[i] = 2
			case sd < 32*e.LowContrast:
				m.quality[i] = 3
			default:
				m.quality[i] = 4
			}

			// Gradients are perpendicular to the ridges.
			theta := 0.5*math.Atan2(gxy, gxx) + math.Pi/2
			m.theta[i] = theta
			if m.lowContrast[i] == 1 {
				m.direction[i] = -1
				continue
			}
			m.direction[i] = int(math.Round(theta/(math.Pi/16))) % 16
			if energy == 0 || math.Hypot(gxx, gxy)/energy < minCoherence {
				m.lowFlow[i] = 1
			}
		}
	}
	m.markCurvature()
	return m
}

// markCurvature flags blocks whose ridge flow turns sharply against a
// 4-neighbour and lowers the quality of every block with unreliable flow.
func (m *blockMaps) markCurvature() {
	for by := 0; by < m.h; by++ {
		for bx := 0; bx < m.w; bx++ {
			i := by*m.w + bx
			if m.lowContrast[i] == 1 || m.lowFlow[i] == 1 {
				continue
			}
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nx, ny := bx+d[0], by+d[1]
				if nx < 0 || ny < 0 || nx >= m.w || ny >= m.h {
					continue
				}
				j := ny*m.w + nx
				if m.lowContrast[j] == 1 || m.lowFlow[j] == 1 {
					continue
				}
				if turn(m.theta[i], m.theta[j]) > maxTurn {
					m.highCurve[i] = 1
					break
				}
			}
		}
	}
	for i := range m.quality {
		if (m.lowFlow[i] == 1 || m.highCurve[i] == 1) && m.quality[i] > 0 {
			m.quality[i]--
		}
	}
}

// turn is the angle between two ridge orientations, which are only
// defined modulo pi.
func turn(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), math.Pi)
	return min(d, math.Pi-d)
}

func sobel(r fpimage.Raster, x, y int) (float64, float64) {
	px := func(x, y int) float64 {
		x = max(0, min(x, r.Width-1))
		y = max(0, min(y, r.Height-1))
		return float64(r.Data[y*r.Width+x])
	}
	gx := px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1) -
		px(x-1, y-1) - 2*px(x-1, y) - px(x-1, y+1)
	gy := px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1) -
		px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1)
	return gx, gy
}

// binarize thresholds every pixel against its block mean. Ridges are dark;
// in the returned raster they are 0x00 and everything else is 0xff.
func binarize(r fpimage.Raster, m *blockMaps, bs int) ([]bool, []byte) {
	ridges := make([]bool, len(r.Data))
	out := make([]byte, len(r.Data))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			i := y*r.Width + x
			b := m.at(x, y, bs)
			if m.lowContrast[b] == 0 && int(r.Data[i]) < m.mean[b] {
				ridges[i] = true
				continue
			}
			out[i] = 0xff
		}
	}
	return ridges, out
}

// neighbours returns P2..P9 in the usual thinning order: clockwise starting
// north of (x, y).
func neighbours(img []bool, w, x, y int) [8]bool {
	return [8]bool{
		img[(y-1)*w+x],
		img[(y-1)*w+x+1],
		img[y*w+x+1],
		img[(y+1)*w+x+1],
		img[(y+1)*w+x],
		img[(y+1)*w+x-1],
		img[y*w+x-1],
		img[(y-1)*w+x-1],
	}
}

// thin reduces ridges to one pixel wide skeletons in place (Zhang-Suen).
func thin(img []bool, w, h int) {
	var del []int
	for changed := true; changed; {
		changed = false
		for pass := 0; pass < 2; pass++ {
			del = del[:0]
			for y := 1; y < h-1; y++ {
				for x := 1; x < w-1; x++ {
					i := y*w + x
					if !img[i] {
						continue
					}
					p := neighbours(img, w, x, y)
					n := 0
					for _, v := range p {
						if v {
							n++
						}
					}
					if n < 2 || n > 6 || transitions(p) != 1 {
						continue
					}
					if pass == 0 {
						if (p[0] && p[2] && p[4]) || (p[2] && p[4] && p[6]) {
							continue
						}
					} else {
						if (p[0] && p[2] && p[6]) || (p[0] && p[4] && p[6]) {
							continue
						}
					}
					del = append(del, i)
				}
			}
			for _, i := range del {
				img[i] = false
			}
			if len(del) > 0 {
				changed = true
			}
		}
	}
}

// transitions counts false->true changes walking once around p.
func transitions(p [8]bool) int {
	n := 0
	for i := 0; i < 8; i++ {
		if !p[i] && p[(i+1)%8] {
			n++
		}
	}
	return n
}

var neighbourOffsets = [8][2]int{
	{0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1},
}

func crossingNumbers(skel []bool, r fpimage.Raster, m *blockMaps, bs, margin int) []fpimage.Minutia {
	var found []fpimage.Minutia
	for y := margin; y < r.Height-margin; y++ {
		for x := margin; x < r.Width-margin; x++ {
			if !skel[y*r.Width+x] {
				continue
			}
			b := m.at(x, y, bs)
			if m.lowContrast[b] == 1 {
				continue
			}
			p := neighbours(skel, r.Width, x, y)
			cn := transitions(p)

			var t fpimage.MinutiaType
			var dir int
			switch cn {
			case 1:
				t = fpimage.MinutiaRidgeEnding
				// Point away from the ridge the ending belongs to.
				for k, v := range p {
					if v {
						dx, dy := neighbourOffsets[k][0], neighbourOffsets[k][1]
						dir = degrees(math.Atan2(float64(dy), float64(-dx)))
						break
					}
				}
			case 3:
				t = fpimage.MinutiaBifurcation
				dir = degrees(m.theta[b])
			default:
				continue
			}
			found = append(found, fpimage.Minutia{
				X:           x,
				Y:           y,
				Direction:   dir,
				Reliability: float64(m.quality[b]) / 4,
				Type:        t,
			})
		}
	}
	return found
}

func degrees(rad float64) int {
	d := int(math.Round(rad * 180 / math.Pi))
	return ((d % 360) + 360) % 360
}

func removeClusters(ms []fpimage.Minutia, dist int) []fpimage.Minutia {
	if dist <= 0 {
		return ms
	}
	drop := make([]bool, len(ms))
	for i := range ms {
		for j := i + 1; j < len(ms); j++ {
			dx, dy := ms[i].X-ms[j].X, ms[i].Y-ms[j].Y
			if dx*dx+dy*dy < dist*dist {
				drop[i], drop[j] = true, true
			}
		}
	}
	out := ms[:0]
	for i, m := range ms {
		if !drop[i] {
			out = append(out, m)
		}
	}
	return out
}
