// Package fpimage holds scanned fingerprint rasters and the pipeline that
// derives minutiae from them.
package fpimage

import (
	"fmt"
	"image"
	"strings"
)

// DefaultPPMM is the resolution assumed for rasters that don't report one
// (500 dpi expressed in points per millimeter).
const DefaultPPMM = 19.685

// Flags are pending normalization steps for a raster. They are cleared when
// minutiae detection commits a normalized raster.
type Flags uint8

const (
	FlagHFlipped Flags = 1 << iota
	FlagVFlipped
	FlagColorsInverted
)

// NormalizationFlags is the set of flags that detection resolves.
const NormalizationFlags = FlagHFlipped | FlagVFlipped | FlagColorsInverted

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&FlagHFlipped != 0 {
		parts = append(parts, "h-flipped")
	}
	if f&FlagVFlipped != 0 {
		parts = append(parts, "v-flipped")
	}
	if f&FlagColorsInverted != 0 {
		parts = append(parts, "colors-inverted")
	}
	return strings.Join(parts, "|")
}

// MinutiaType tags the kind of ridge feature.
type MinutiaType uint8

const (
	MinutiaUnknown MinutiaType = iota
	MinutiaRidgeEnding
	MinutiaBifurcation
)

func (t MinutiaType) String() string {
	switch t {
	case MinutiaRidgeEnding:
		return "ending"
	case MinutiaBifurcation:
		return "bifurcation"
	default:
		return "unknown"
	}
}

// Minutia is a single directional ridge feature point.
type Minutia struct {
	X, Y int
	// Direction in degrees, counter-clockwise from the positive x axis.
	Direction   int
	Reliability float64
	Type        MinutiaType
}

// Coords returns the image-space position of the minutia.
func (m Minutia) Coords() (x, y int) {
	return m.X, m.Y
}

// Image is a greyscale raster with one byte per pixel.
//
// After successful detection the image also holds a binarized raster and
// the minutiae found in it. Both are set together or not at all.
type Image struct {
	width, height int
	ppmm          float64
	flags         Flags

	data      []byte
	binarized []byte
	minutiae  []Minutia
}

// New returns a blank (black) image of the given size.
func New(width, height int) *Image {
	return &Image{
		width:  width,
		height: height,
		ppmm:   DefaultPPMM,
		data:   make([]byte, width*height),
	}
}

// NewFromData wraps data as a width x height raster. The image takes
// ownership of data.
func NewFromData(width, height int, data []byte, flags Flags) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("image data is %d bytes, want %d", len(data), width*height)
	}
	return &Image{
		width:  width,
		height: height,
		ppmm:   DefaultPPMM,
		flags:  flags,
		data:   data,
	}, nil
}

// FromGray converts a standard library grey image into a raster.
func FromGray(g *image.Gray) *Image {
	b := g.Bounds()
	img := New(b.Dx(), b.Dy())
	for y := 0; y < img.height; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
		copy(img.data[y*img.width:(y+1)*img.width], row[:img.width])
	}
	return img
}

// Gray returns a copy of the raster as a standard library grey image.
func (img *Image) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, img.width, img.height))
	copy(g.Pix, img.data)
	return g
}

// BinarizedGray returns the binarized raster as a grey image, or nil before
// detection.
func (img *Image) BinarizedGray() *image.Gray {
	if img.binarized == nil {
		return nil
	}
	g := image.NewGray(image.Rect(0, 0, img.width, img.height))
	copy(g.Pix, img.binarized)
	return g
}

// Width returns the raster width in pixels.
func (img *Image) Width() int { return img.width }

// Height returns the raster height in pixels.
func (img *Image) Height() int { return img.height }

// PPMM returns the resolution in points per millimeter.
func (img *Image) PPMM() float64 { return img.ppmm }

// Flags returns the pending normalization flags.
func (img *Image) Flags() Flags { return img.flags }

// Data returns the greyscale raster. Callers must not modify it.
func (img *Image) Data() []byte { return img.data }

// SetPPMM overrides the raster resolution.
func (img *Image) SetPPMM(ppmm float64) { img.ppmm = ppmm }

// SetFlags replaces the pending normalization flags. Drivers use this to
// describe how their sensor orients the raster.
func (img *Image) SetFlags(f Flags) { img.flags = f }

// Binarized returns the binarized raster, or nil if minutiae have not been
// detected yet.
func (img *Image) Binarized() []byte { return img.binarized }

// Minutiae returns the detected minutiae, or nil if detection has not run.
func (img *Image) Minutiae() []Minutia { return img.minutiae }

// HasMinutiae reports whether a detection result has been committed.
func (img *Image) HasMinutiae() bool { return img.binarized != nil }

// Clone returns a deep copy of the image including any detection result.
func (img *Image) Clone() *Image {
	c := &Image{
		width:  img.width,
		height: img.height,
		ppmm:   img.ppmm,
		flags:  img.flags,
		data:   append([]byte(nil), img.data...),
	}
	if img.binarized != nil {
		c.binarized = append([]byte(nil), img.binarized...)
		c.minutiae = append([]Minutia(nil), img.minutiae...)
	}
	return c
}
