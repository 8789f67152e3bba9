package emulator

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/colornames"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	colorStripBg = color.RGBA{20, 20, 20, 255}
	colorHint    = colornames.Darkgray
	colorOK      = colornames.Lightgreen
	colorFail    = colornames.Salmon
)

// stripRenderer draws the status strip with real fonts. The last rendering
// is cached since the text rarely changes between frames.
type stripRenderer struct {
	statusFace font.Face
	hintFace   font.Face

	lastStatus string
	lastBrush  int
	img        *image.RGBA
}

func newStripRenderer() (*stripRenderer, error) {
	ttBold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	statusFace, err := opentype.NewFace(ttBold, &opentype.FaceOptions{
		Size:    14,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create status face: %w", err)
	}

	ttRegular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	hintFace, err := opentype.NewFace(ttRegular, &opentype.FaceOptions{
		Size:    11,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create hint face: %w", err)
	}

	return &stripRenderer{statusFace: statusFace, hintFace: hintFace, lastBrush: -1}, nil
}

// render returns the strip image and whether it changed since the last call.
func (s *stripRenderer) render(status string, brush, width, height int) (*image.RGBA, bool) {
	if s.img != nil && status == s.lastStatus && brush == s.lastBrush {
		return s.img, false
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorStripBg), image.Point{}, draw.Src)

	drawText(img, status, 8, 17, s.statusFace, statusColor(status))
	drawText(img,
		fmt.Sprintf("Drag: draw | Right drag: erase | Scroll: brush %d | Space: scan | C: clear | F: finger", brush),
		8, height-8, s.hintFace, colorHint)

	s.img, s.lastStatus, s.lastBrush = img, status, brush
	return img, true
}

func statusColor(status string) color.Color {
	switch {
	case strings.HasPrefix(status, "Error"), strings.HasPrefix(status, "Sensor error"):
		return colorFail
	case strings.HasPrefix(status, "Recognized"):
		return colorOK
	}
	return color.White
}

// drawText draws text with its baseline at (x, y).
func drawText(img *image.RGBA, text string, x, y int, face font.Face, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
