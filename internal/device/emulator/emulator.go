// Package emulator provides a GUI finger-pad that feeds a virtual
// fingerprint sensor.
package emulator

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/device/virtual"
	"github.com/phinze/fpdeck/internal/fpimage"
	"golang.org/x/image/draw"
)

// Layout constants
const (
	padWidth     = 192 // Sensor raster size
	padHeight    = 256
	padScale     = 2 // Pad display scale
	slotSize     = 112
	slotsPerRow  = 2
	slotRows     = 4
	slotCount    = slotsPerRow * slotRows
	buttonW      = 120
	buttonH      = 36
	marginX      = 20
	marginY      = 20
	headerHeight = 30
	gap          = 16
	stripHeight  = 40
)

const (
	padX         = marginX
	padY         = headerHeight + marginY
	slotsX       = padX + padWidth*padScale + gap
	slotsY       = padY
	buttonsY     = padY + padHeight*padScale + gap
	stripY       = buttonsY + 2*(buttonH+gap) // two rows of buttons
	windowWidth  = slotsX + slotsPerRow*(slotSize+gap) + marginX - gap
	windowHeight = stripY + stripHeight + marginY
)

// Feeder is the sensor end the emulator drives.
type Feeder interface {
	Feed(img *fpimage.Image) error
	FeedRetry(code device.RetryCode) error
	SetFingerPresent(on bool) error
}

type slot struct {
	name  string
	img   *fpimage.Image
	thumb *ebiten.Image
}

type button struct {
	label string
	do    func(e *Emulator)
}

var buttons = []button{
	{"Scan pad", (*Emulator).ScanPad},
	{"Clear", (*Emulator).ClearPad},
	{"Finger on/off", (*Emulator).ToggleFinger},
	{"Too short", func(e *Emulator) { e.retry(device.RetryTooShort) }},
	{"Center finger", func(e *Emulator) { e.retry(device.RetryCenterFinger) }},
	{"Remove finger", func(e *Emulator) { e.retry(device.RetryRemoveFinger) }},
}

// Emulator is a window with a drawable sensor pad, fixture slots and
// buttons that inject retry conditions.
type Emulator struct {
	mu sync.RWMutex

	feeder Feeder
	pad    *image.Gray
	brush  int
	finger bool
	slots  []slot
	status string

	padImage *ebiten.Image
	padDirty bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates an emulator feeding f.
func New(f Feeder) *Emulator {
	e := &Emulator{
		feeder: f,
		pad:    image.NewGray(image.Rect(0, 0, padWidth, padHeight)),
		brush:  3,
		stopCh: make(chan struct{}),
		status: "Draw ridges on the pad, or click a fixture",
	}
	e.clear()
	return e
}

// NewWithClient creates an emulator feeding the virtual sensor socket at path.
func NewWithClient(path string) *Emulator {
	return New(virtual.NewClient(path))
}

// LoadSlots loads up to eight fixture images from dir into the slots.
func (e *Emulator) LoadSlots(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading fixtures: %w", err)
	}
	var names []string
	for _, ent := range entries {
		switch strings.ToLower(filepath.Ext(ent.Name())) {
		case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".svg":
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)

	var slots []slot
	for _, name := range names {
		if len(slots) == slotCount {
			break
		}
		img, err := virtual.LoadImage(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("loading %s: %w", name, err)
		}
		slots = append(slots, slot{name: name, img: img})
	}

	e.mu.Lock()
	e.slots = slots
	e.mu.Unlock()
	return nil
}

// SetStatus replaces the text in the status strip.
func (e *Emulator) SetStatus(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = s
}

// Stop closes the window.
func (e *Emulator) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// ScanPad sends the pad raster as one scan.
func (e *Emulator) ScanPad() {
	e.mu.RLock()
	img := fpimage.FromGray(e.pad)
	e.mu.RUnlock()
	e.report(e.feeder.Feed(img), "Sent pad scan")
}

// ClearPad blanks the pad.
func (e *Emulator) ClearPad() {
	e.mu.Lock()
	e.clear()
	e.mu.Unlock()
	e.SetStatus("Pad cleared")
}

// ToggleFinger flips the reported finger presence.
func (e *Emulator) ToggleFinger() {
	e.mu.Lock()
	e.finger = !e.finger
	on := e.finger
	e.mu.Unlock()
	e.report(e.feeder.SetFingerPresent(on), fmt.Sprintf("Finger present: %v", on))
}

func (e *Emulator) feedSlot(i int) {
	e.mu.RLock()
	if i >= len(e.slots) {
		e.mu.RUnlock()
		return
	}
	s := e.slots[i]
	e.mu.RUnlock()
	e.report(e.feeder.Feed(s.img.Clone()), "Sent "+s.name)
}

func (e *Emulator) retry(code device.RetryCode) {
	e.report(e.feeder.FeedRetry(code), "Sent retry: "+code.String())
}

func (e *Emulator) report(err error, ok string) {
	if err != nil {
		e.SetStatus("Error: " + err.Error())
		return
	}
	e.SetStatus(ok)
}

// clear must be called with mu held.
func (e *Emulator) clear() {
	for i := range e.pad.Pix {
		e.pad.Pix[i] = 0xff
	}
	e.padDirty = true
}

// paint draws (or erases) a round brush stroke at pad coordinates x, y.
func (e *Emulator) paint(x, y int, erase bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := color.Gray{Y: 0x00}
	if erase {
		c = color.Gray{Y: 0xff}
	}
	r := e.brush
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				e.pad.SetGray(x+dx, y+dy, c)
			}
		}
	}
	e.padDirty = true
}

// RunGUI starts the Ebitengine loop. It must be called from the main
// goroutine on macOS and blocks until the window is closed.
func (e *Emulator) RunGUI() error {
	ebiten.SetWindowSize(windowWidth, windowHeight)
	ebiten.SetWindowTitle("Fingerprint Sensor Emulator")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeDisabled)
	strip, err := newStripRenderer()
	if err != nil {
		return err
	}
	return ebiten.RunGame(&game{emu: e, strip: strip})
}

// game implements ebiten.Game for the emulator.
type game struct {
	emu        *Emulator
	strip      *stripRenderer
	stripImage *ebiten.Image
}

func (g *game) Update() error {
	select {
	case <-g.emu.stopCh:
		return ebiten.Termination
	default:
	}
	g.handleInput()
	return nil
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return windowWidth, windowHeight
}

func (g *game) Draw(screen *ebiten.Image) {
	e := g.emu
	screen.Fill(color.RGBA{30, 30, 30, 255})
	ebitenutil.DebugPrintAt(screen, "Fingerprint Sensor Emulator", windowWidth/2-80, 8)

	e.mu.Lock()
	if e.padImage == nil {
		e.padImage = ebiten.NewImage(padWidth, padHeight)
	}
	if e.padDirty {
		e.padImage.WritePixels(grayToRGBA(e.pad).Pix)
		e.padDirty = false
	}
	for i := range e.slots {
		if e.slots[i].thumb == nil {
			e.slots[i].thumb = ebiten.NewImageFromImage(thumbnail(e.slots[i].img, slotSize))
		}
	}
	finger, brush, status := e.finger, e.brush, e.status
	slots := append([]slot(nil), e.slots...)
	e.mu.Unlock()

	// Pad
	border := color.RGBA{60, 60, 60, 255}
	if finger {
		border = color.RGBA{60, 140, 60, 255}
	}
	drawRect(screen, padX-3, padY-3, padWidth*padScale+6, padHeight*padScale+6, border)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(padScale, padScale)
	op.GeoM.Translate(padX, padY)
	screen.DrawImage(e.padImage, op)

	// Fixture slots
	for i := 0; i < slotCount; i++ {
		x, y := slotPos(i)
		drawRect(screen, x-2, y-2, slotSize+4, slotSize+4, color.RGBA{60, 60, 60, 255})
		if i >= len(slots) {
			continue
		}
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Translate(float64(x), float64(y))
		screen.DrawImage(slots[i].thumb, op)
		ebitenutil.DebugPrintAt(screen, truncate(slots[i].name, 18), x, y+slotSize-16)
	}

	// Buttons
	for i, b := range buttons {
		x, y := buttonPos(i)
		drawRect(screen, x, y, buttonW, buttonH, color.RGBA{70, 70, 90, 255})
		ebitenutil.DebugPrintAt(screen, b.label, x+8, y+buttonH/2-8)
	}

	// Status strip
	img, changed := g.strip.render(status, brush, windowWidth-2*marginX, stripHeight)
	if changed || g.stripImage == nil {
		g.stripImage = ebiten.NewImageFromImage(img)
	}
	op = &ebiten.DrawImageOptions{}
	op.GeoM.Translate(marginX, stripY)
	screen.DrawImage(g.stripImage, op)
}

func (g *game) handleInput() {
	e := g.emu
	mx, my := ebiten.CursorPosition()

	// Painting on the pad
	px, py := (mx-padX)/padScale, (my-padY)/padScale
	onPad := mx >= padX && my >= padY && px < padWidth && py < padHeight
	if onPad {
		switch {
		case ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft):
			e.paint(px, py, false)
		case ebiten.IsMouseButtonPressed(ebiten.MouseButtonRight):
			e.paint(px, py, true)
		}
		if _, wy := ebiten.Wheel(); wy != 0 {
			e.mu.Lock()
			e.brush = min(max(e.brush+int(wy), 1), 8)
			e.mu.Unlock()
		}
	}

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) && !onPad {
		for i := 0; i < slotCount; i++ {
			x, y := slotPos(i)
			if mx >= x && mx < x+slotSize && my >= y && my < y+slotSize {
				go e.feedSlot(i)
				return
			}
		}
		for i, b := range buttons {
			x, y := buttonPos(i)
			if mx >= x && mx < x+buttonW && my >= y && my < y+buttonH {
				go b.do(e)
				return
			}
		}
	}

	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		go e.ScanPad()
	case inpututil.IsKeyJustPressed(ebiten.KeyC):
		e.ClearPad()
	case inpututil.IsKeyJustPressed(ebiten.KeyF):
		go e.ToggleFinger()
	}
}

func slotPos(i int) (int, int) {
	return slotsX + (i%slotsPerRow)*(slotSize+gap), slotsY + (i/slotsPerRow)*(slotSize+gap)
}

func buttonPos(i int) (int, int) {
	perRow := (windowWidth - 2*marginX + gap) / (buttonW + gap)
	return marginX + (i%perRow)*(buttonW+gap), buttonsY + (i/perRow)*(buttonH+gap)
}

// thumbnail scales a fixture to fit a size x size square.
func thumbnail(img *fpimage.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	w, h := img.Width(), img.Height()
	scale := float64(size) / float64(max(w, h))
	tw, th := int(float64(w)*scale), int(float64(h)*scale)
	r := image.Rect((size-tw)/2, (size-th)/2, (size-tw)/2+tw, (size-th)/2+th)
	src := img.Gray()
	draw.ApproxBiLinear.Scale(dst, r, src, src.Bounds(), draw.Over, nil)
	return dst
}

func grayToRGBA(g *image.Gray) *image.RGBA {
	dst := image.NewRGBA(g.Bounds())
	draw.Draw(dst, dst.Bounds(), g, g.Bounds().Min, draw.Src)
	return dst
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func drawRect(screen *ebiten.Image, x, y, w, h int, c color.Color) {
	rect := ebiten.NewImage(w, h)
	rect.Fill(c)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(float64(x), float64(y))
	screen.DrawImage(rect, op)
}
