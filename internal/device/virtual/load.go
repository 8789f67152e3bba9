package virtual

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/phinze/fpdeck/internal/fpimage"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// LoadImage reads a fingerprint picture from disk. PNG, JPEG, BMP and TIFF
// files are decoded as is; SVG files are rendered at their view box size.
func LoadImage(path string) (*fpimage.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".svg") {
		return RenderSVG(f, 0, 0)
	}
	img, err := DecodeImage(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// DecodeImage decodes any registered raster format into a greyscale scan.
func DecodeImage(r io.Reader) (*fpimage.Image, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	return ToRaster(src), nil
}

// RenderSVG rasterizes an SVG drawing. A zero width or height uses the
// drawing's own view box.
func RenderSVG(r io.Reader, width, height int) (*fpimage.Image, error) {
	icon, err := oksvg.ReadIconStream(r)
	if err != nil {
		return nil, fmt.Errorf("parsing SVG: %w", err)
	}
	if width <= 0 || height <= 0 {
		width, height = int(icon.ViewBox.W), int(icon.ViewBox.H)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("SVG has no usable size")
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	// Paper is white, ridges are drawn dark.
	draw.Draw(dst, dst.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	icon.SetTarget(0, 0, float64(width), float64(height))
	scanner := rasterx.NewScannerGV(width, height, dst, dst.Bounds())
	raster := rasterx.NewDasher(width, height, scanner)
	icon.Draw(raster, 1.0)

	return ToRaster(dst), nil
}

// ToRaster converts src to greyscale, flattening transparency onto white.
func ToRaster(src image.Image) *fpimage.Image {
	b := src.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Over)
	return fpimage.FromGray(gray)
}
