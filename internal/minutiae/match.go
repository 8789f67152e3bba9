package minutiae

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/phinze/fpdeck/internal/fpimage"
)

const (
	// MaxMinutiae caps the number of points kept in a template.
	MaxMinutiae = 150

	// maxEdge is the longest point pair considered during comparison.
	maxEdge = 150
	// angleTolerance is in degrees.
	angleTolerance = 15
	// rotationBin groups edge correspondences by their implied rotation.
	rotationBin = 20
)

var templateMagic = [4]byte{'X', 'Y', 'T', 1}

// ErrInvalidTemplate is returned when template bytes can't be decoded.
var ErrInvalidTemplate = errors.New("invalid minutiae template")

// Point is one minutia in template form.
type Point struct {
	X, Y  int
	Theta int
}

// Encode serializes minutiae into a template, keeping the most reliable
// MaxMinutiae points.
func Encode(ms []fpimage.Minutia) []byte {
	sorted := slices.Clone(ms)
	slices.SortStableFunc(sorted, func(a, b fpimage.Minutia) int {
		return cmp.Compare(b.Reliability, a.Reliability)
	})
	if len(sorted) > MaxMinutiae {
		sorted = sorted[:MaxMinutiae]
	}

	out := make([]byte, 6, 6+6*len(sorted))
	copy(out, templateMagic[:])
	binary.LittleEndian.PutUint16(out[4:], uint16(len(sorted)))
	for _, m := range sorted {
		out = binary.LittleEndian.AppendUint16(out, uint16(int16(m.X)))
		out = binary.LittleEndian.AppendUint16(out, uint16(int16(m.Y)))
		out = binary.LittleEndian.AppendUint16(out, uint16(int16(m.Direction)))
	}
	return out
}

// Decode parses a template produced by Encode.
func Decode(b []byte) ([]Point, error) {
	if len(b) < 6 || [4]byte(b[:4]) != templateMagic {
		return nil, fmt.Errorf("%w: bad header", ErrInvalidTemplate)
	}
	n := int(binary.LittleEndian.Uint16(b[4:]))
	if len(b) != 6+6*n {
		return nil, fmt.Errorf("%w: %d points need %d bytes, have %d", ErrInvalidTemplate, n, 6+6*n, len(b))
	}
	pts := make([]Point, n)
	for i := range pts {
		off := 6 + 6*i
		pts[i] = Point{
			X:     int(int16(binary.LittleEndian.Uint16(b[off:]))),
			Y:     int(int16(binary.LittleEndian.Uint16(b[off+2:]))),
			Theta: int(int16(binary.LittleEndian.Uint16(b[off+4:]))),
		}
	}
	return pts, nil
}

// Matcher compares templates produced by Encode.
type Matcher struct{}

// Encode returns the template for an image whose minutiae were detected.
func (Matcher) Encode(img *fpimage.Image) ([]byte, error) {
	if !img.HasMinutiae() {
		return nil, errors.New("image has no detected minutiae")
	}
	return Encode(img.Minutiae()), nil
}

// Compare returns the similarity score between two templates.
func (Matcher) Compare(gallery, probe []byte) (int, error) {
	g, err := Decode(gallery)
	if err != nil {
		return 0, err
	}
	p, err := Decode(probe)
	if err != nil {
		return 0, err
	}
	return Score(g, p), nil
}

type edge struct {
	i, j   int
	d      int
	phi    int
	b1, b2 int
	// relative angles with the edge walked from j to i
	r1, r2 int
}

func normAngle(a int) int {
	return ((a % 360) + 360) % 360
}

func angleDiff(a, b int) int {
	d := normAngle(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func buildEdges(pts []Point) []edge {
	var edges []edge
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			dx := float64(pts[j].X - pts[i].X)
			dy := float64(pts[j].Y - pts[i].Y)
			d := int(math.Round(math.Hypot(dx, dy)))
			if d == 0 || d > maxEdge {
				continue
			}
			phi := degrees(math.Atan2(-dy, dx))
			edges = append(edges, edge{
				i:   i,
				j:   j,
				d:   d,
				phi: phi,
				b1:  normAngle(pts[i].Theta - phi),
				b2:  normAngle(pts[j].Theta - phi),
				r1:  normAngle(pts[j].Theta - phi - 180),
				r2:  normAngle(pts[i].Theta - phi - 180),
			})
		}
	}
	sort.Slice(edges, func(a, b int) bool { return edges[a].d < edges[b].d })
	return edges
}

type correspondence struct {
	pi, pj int
	gi, gj int
}

// Score counts the probe edges that agree with the gallery under a single
// rotation and a consistent one-to-one point assignment. It is invariant to
// translation and rotation of the probe.
func Score(gallery, probe []Point) int {
	ge := buildEdges(gallery)
	pe := buildEdges(probe)

	bins := make(map[int][]correspondence)
	for _, p := range pe {
		tol := 3 + p.d/20
		lo := sort.Search(len(ge), func(k int) bool { return ge[k].d >= p.d-tol })
		for k := lo; k < len(ge) && ge[k].d <= p.d+tol; k++ {
			g := ge[k]
			if angleDiff(p.b1, g.b1) <= angleTolerance && angleDiff(p.b2, g.b2) <= angleTolerance {
				rot := normAngle(g.phi - p.phi)
				bins[rot/rotationBin] = append(bins[rot/rotationBin], correspondence{p.i, p.j, g.i, g.j})
			}
			if angleDiff(p.b1, g.r1) <= angleTolerance && angleDiff(p.b2, g.r2) <= angleTolerance {
				rot := normAngle(g.phi + 180 - p.phi)
				bins[rot/rotationBin] = append(bins[rot/rotationBin], correspondence{p.i, p.j, g.j, g.i})
			}
		}
	}

	best := 0
	for _, cs := range bins {
		best = max(best, consistent(cs))
	}
	return best
}

// consistent assigns every probe point to the gallery point it is most
// often paired with and counts the correspondences that respect it.
func consistent(cs []correspondence) int {
	type pair struct{ p, g int }
	votes := make(map[pair]int)
	for _, c := range cs {
		votes[pair{c.pi, c.gi}]++
		votes[pair{c.pj, c.gj}]++
	}
	ranked := make([]pair, 0, len(votes))
	for k := range votes {
		ranked = append(ranked, k)
	}
	slices.SortFunc(ranked, func(a, b pair) int {
		if c := cmp.Compare(votes[b], votes[a]); c != 0 {
			return c
		}
		if c := cmp.Compare(a.p, b.p); c != 0 {
			return c
		}
		return cmp.Compare(a.g, b.g)
	})

	assign := make(map[int]int)
	taken := make(map[int]bool)
	for _, k := range ranked {
		if _, ok := assign[k.p]; ok || taken[k.g] {
			continue
		}
		assign[k.p] = k.g
		taken[k.g] = true
	}

	n := 0
	for _, c := range cs {
		gi, ok1 := assign[c.pi]
		gj, ok2 := assign[c.pj]
		if ok1 && ok2 && gi == c.gi && gj == c.gj {
			n++
		}
	}
	return n
}
