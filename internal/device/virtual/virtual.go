// Package virtual is an image sensor that exists only in software. Scans
// are fed programmatically, from the emulator window, or over a Unix socket.
package virtual

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/fpimage"
	"github.com/phinze/fpdeck/internal/print"
	"go.uber.org/zap"
)

const (
	// DriverName identifies prints made with the virtual sensor.
	DriverName = "virtual_image"

	queueSize = 16
)

// ErrQueueFull is returned when scans are fed faster than they are used.
var ErrQueueFull = errors.New("virtual scan queue is full")

// Options configures a Driver.
type Options struct {
	// DeviceID distinguishes several virtual sensors. Defaults to "0".
	DeviceID string
	// Socket, when set, is a Unix socket path scans are read from while
	// the device is open.
	Socket       string
	EnrollStages int
	// Storage enables on-device print storage holding up to Capacity
	// prints (unlimited when Capacity is 0).
	Storage  bool
	Capacity int
	// Enlarge scales every scan up by this integer factor before it is
	// handed to the engine, for fixtures captured at low resolution.
	Enlarge int
	Logger  *zap.Logger
}

type event struct {
	img *fpimage.Image
	err error
}

// Driver implements device.Driver, device.Scanner and the storage
// interfaces.
type Driver struct {
	device.BaseDriver
	opts Options
	log  *zap.Logger

	events chan event
	finger atomic.Bool

	mu       sync.Mutex
	prints   []*print.Print
	listener net.Listener
	conns    sync.WaitGroup
}

// New creates a virtual sensor.
func New(opts Options) *Driver {
	if opts.DeviceID == "" {
		opts.DeviceID = "0"
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	info := device.Info{
		Driver:           DriverName,
		Name:             "Virtual image device for debugging",
		DeviceID:         opts.DeviceID,
		ScanType:         device.ScanPress,
		EnrollStages:     opts.EnrollStages,
		SupportsIdentify: true,
		SupportsCapture:  true,
		HasStorage:       opts.Storage,
	}
	return &Driver{
		BaseDriver: device.NewBaseDriver(info),
		opts:       opts,
		log:        log.With(zap.String("driver", DriverName), zap.String("device_id", opts.DeviceID)),
		events:     make(chan event, queueSize),
	}
}

// Open starts listening on the configured socket.
func (d *Driver) Open(ctx context.Context) error {
	if err := d.BaseDriver.Open(ctx); err != nil {
		return err
	}
	d.drain()
	if d.opts.Socket == "" {
		return nil
	}

	// A socket left behind by a crashed process would make Listen fail.
	if fi, err := os.Stat(d.opts.Socket); err == nil && fi.Mode()&os.ModeSocket != 0 {
		_ = os.Remove(d.opts.Socket)
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", d.opts.Socket)
	if err != nil {
		_ = d.BaseDriver.Close(ctx)
		return device.ErrGeneral.WithMessagef("listening on %s: %v", d.opts.Socket, err)
	}
	d.mu.Lock()
	d.listener = ln
	d.mu.Unlock()

	d.log.Info("listening for scans", zap.String("socket", d.opts.Socket))
	d.conns.Add(1)
	go func() {
		defer d.conns.Done()
		d.serve(d.Context(), ln)
	}()
	return nil
}

// Close stops the socket listener and drops queued scans.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	ln := d.listener
	d.listener = nil
	d.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	_ = d.BaseDriver.Close(ctx)
	d.conns.Wait()
	d.drain()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing socket: %w", err)
	}
	return nil
}

func (d *Driver) drain() {
	for {
		select {
		case <-d.events:
		default:
			return
		}
	}
}

func (d *Driver) push(ev event) error {
	select {
	case d.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Feed queues a scanned raster. It also marks the finger as present.
func (d *Driver) Feed(img *fpimage.Image) error {
	d.finger.Store(true)
	return d.push(event{img: img})
}

// FeedRetry queues a scan that failed with the given quality problem.
func (d *Driver) FeedRetry(code device.RetryCode) error {
	return d.push(event{err: &device.RetryError{Code: code}})
}

// FeedError queues a scan that fails with err.
func (d *Driver) FeedError(err error) error {
	return d.push(event{err: err})
}

// SetFingerPresent reports a finger being placed on or lifted from the
// sensor.
func (d *Driver) SetFingerPresent(on bool) {
	d.finger.Store(on)
}

// FingerPresent reports whether a finger is currently on the sensor.
func (d *Driver) FingerPresent() bool {
	return d.finger.Load()
}

// Scan waits for the next queued scan.
func (d *Driver) Scan(ctx context.Context, waitForFinger bool) (*fpimage.Image, error) {
	if !waitForFinger {
		return nil, device.ErrNotSupported
	}
	select {
	case ev := <-d.events:
		if ev.img != nil && d.opts.Enlarge > 1 {
			ppmm := ev.img.PPMM()
			ev.img = fpimage.Resize(ev.img, d.opts.Enlarge, d.opts.Enlarge)
			ev.img.SetPPMM(ppmm * float64(d.opts.Enlarge))
		}
		return ev.img, ev.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.Context().Done():
		return nil, device.ErrProto.WithMessage("device was closed during scan")
	}
}

// ListPrints returns the prints held in device storage.
func (d *Driver) ListPrints(ctx context.Context) ([]*print.Print, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*print.Print, len(d.prints))
	copy(out, d.prints)
	return out, nil
}

// StorePrint saves p in device storage.
func (d *Driver) StorePrint(ctx context.Context, p *print.Print) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opts.Capacity > 0 && len(d.prints) >= d.opts.Capacity {
		return device.ErrDataFull
	}
	d.prints = append(d.prints, p)
	return nil
}

// DeletePrint removes the stored print with p's ID.
func (d *Driver) DeletePrint(ctx context.Context, p *print.Print) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.prints {
		if s.ID == p.ID {
			d.prints = append(d.prints[:i], d.prints[i+1:]...)
			return nil
		}
	}
	return device.ErrDataNotFound
}
