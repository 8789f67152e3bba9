// Package coordinator manages the lifecycle of several fingerprint devices
// and runs the daemon's identify loops over them.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/print"
	"github.com/phinze/fpdeck/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownDevice is returned by Lookup for ids that were never registered.
var ErrUnknownDevice = errors.New("unknown device")

const (
	defaultOpenTimeout  = 10 * time.Second
	defaultPollInterval = 2 * time.Second
)

// MatchFunc is called from an identify loop each time a finger matches.
type MatchFunc func(d *device.Device, p *print.Print)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithOpenTimeout bounds how long Start and Stop wait on a single device.
func WithOpenTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.openTimeout = d }
}

// WithPollInterval sets how long an identify loop waits before looking at
// the store again when it holds no prints for the device.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.pollInterval = d }
}

// Coordinator owns a set of devices.
type Coordinator struct {
	log          *zap.Logger
	openTimeout  time.Duration
	pollInterval time.Duration

	mu      sync.RWMutex
	devices []*device.Device
	byID    map[string]*device.Device

	// Devices that failed to open on the last Start.
	failed map[string]error
}

// New creates an empty Coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		log:          zap.NewNop(),
		openTimeout:  defaultOpenTimeout,
		pollInterval: defaultPollInterval,
		byID:         make(map[string]*device.Device),
		failed:       make(map[string]error),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a device. Ids must be unique.
func (c *Coordinator) Register(d *device.Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byID[d.ID()]; ok {
		return fmt.Errorf("device %s already registered", d.ID())
	}
	c.byID[d.ID()] = d
	c.devices = append(c.devices, d)
	return nil
}

// Devices returns the registered devices in registration order.
func (c *Coordinator) Devices() []*device.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*device.Device(nil), c.devices...)
}

// Lookup returns the device with the given id.
func (c *Coordinator) Lookup(id string) (*device.Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return d, nil
}

// Status describes one device for listings.
type Status struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Driver           string `json:"driver"`
	State            string `json:"state"`
	EnrollStages     int    `json:"enroll_stages"`
	SupportsIdentify bool   `json:"supports_identify"`
	SupportsCapture  bool   `json:"supports_capture"`
	HasStorage       bool   `json:"has_storage"`
	Error            string `json:"error,omitempty"`
}

// Statuses snapshots every registered device.
func (c *Coordinator) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Status, 0, len(c.devices))
	for _, d := range c.devices {
		info := d.Info()
		s := Status{
			ID:               d.ID(),
			Name:             info.Name,
			Driver:           info.Driver,
			State:            d.State().String(),
			EnrollStages:     info.EnrollStages,
			SupportsIdentify: info.SupportsIdentify,
			SupportsCapture:  info.SupportsCapture,
			HasStorage:       info.HasStorage,
		}
		if err := c.failed[d.ID()]; err != nil {
			s.Error = err.Error()
		}
		out = append(out, s)
	}
	return out
}

// Start opens every registered device concurrently. A device that fails to
// open is logged and skipped; Start only fails when no device could be
// opened at all.
func (c *Coordinator) Start(ctx context.Context) error {
	devices := c.Devices()
	errs := make([]error, len(devices))

	var g errgroup.Group
	for i, d := range devices {
		g.Go(func() error {
			if d.IsOpen() {
				return nil
			}
			octx, cancel := context.WithTimeout(ctx, c.openTimeout)
			defer cancel()
			if err := d.Open(octx); err != nil {
				c.log.Warn("device failed to open, skipping", zap.String("device", d.ID()), zap.Error(err))
				errs[i] = err
				return nil
			}
			c.log.Info("device opened", zap.String("device", d.ID()), zap.String("name", d.Info().Name))
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	opened := 0
	for i, d := range devices {
		if errs[i] != nil {
			c.failed[d.ID()] = errs[i]
		} else {
			delete(c.failed, d.ID())
			opened++
		}
	}
	c.mu.Unlock()

	if len(devices) > 0 && opened == 0 {
		return fmt.Errorf("no device could be opened: %w", errors.Join(errs...))
	}
	return nil
}

// Stop closes every open device concurrently and returns the close errors.
func (c *Coordinator) Stop(ctx context.Context) error {
	var g errgroup.Group
	for _, d := range c.Devices() {
		if d.State() == device.StateClosed {
			continue
		}
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, c.openTimeout)
			defer cancel()
			if err := d.Close(cctx); err != nil {
				c.log.Warn("device failed to close", zap.String("device", d.ID()), zap.Error(err))
				return fmt.Errorf("closing %s: %w", d.ID(), err)
			}
			c.log.Info("device closed", zap.String("device", d.ID()))
			return nil
		})
	}
	return g.Wait()
}

// Restart closes and reopens every device, used after the host wakes up.
func (c *Coordinator) Restart(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil {
		c.log.Warn("errors while stopping devices", zap.Error(err))
	}
	return c.Start(ctx)
}

// Run starts an identify loop on every open device that supports identify
// and blocks until ctx is cancelled or a loop fails.
func (c *Coordinator) Run(ctx context.Context, store storage.Store, onMatch MatchFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	loops := 0
	for _, d := range c.Devices() {
		if !d.IsOpen() {
			continue
		}
		if !d.Info().SupportsIdentify {
			c.log.Info("device can't identify, not watching it", zap.String("device", d.ID()))
			continue
		}
		loops++
		g.Go(func() error {
			return c.IdentifyLoop(gctx, d, store, onMatch)
		})
	}
	if loops == 0 {
		return errors.New("no open device supports identify")
	}
	return g.Wait()
}

// IdentifyLoop repeatedly identifies fingers on d against the prints the
// store holds for it. Retry errors and failed matches start the next
// attempt. It returns nil when ctx is cancelled.
func (c *Coordinator) IdentifyLoop(ctx context.Context, d *device.Device, store storage.Store, onMatch MatchFunc) error {
	log := c.log.With(zap.String("device", d.ID()))
	info := d.Info()

	for {
		if ctx.Err() != nil {
			return nil
		}

		gallery, err := store.List(ctx, info.Driver, info.DeviceID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("loading prints for %s: %w", d.ID(), err)
		}
		if len(gallery) == 0 {
			log.Debug("no enrolled prints, waiting")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.pollInterval):
			}
			continue
		}

		match, _, err := d.Identify(ctx, gallery)
		switch {
		case device.IsCancelled(err):
			return nil
		case err != nil:
			if retry, ok := device.AsRetry(err); ok {
				log.Info("scan not usable, try again", zap.String("reason", retry.Error()))
				continue
			}
			return fmt.Errorf("identifying on %s: %w", d.ID(), err)
		case match == nil:
			log.Info("finger not recognized")
		default:
			log.Info("finger recognized",
				zap.String("username", match.Username),
				zap.Stringer("finger", match.Finger))
			if onMatch != nil {
				onMatch(d, match)
			}
		}
	}
}
