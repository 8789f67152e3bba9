// Package device is the action engine for fingerprint sensors. A Device
// wraps a Driver and runs at most one action on it at a time.
package device

import (
	"context"
	"sync"
	"time"

	"github.com/phinze/fpdeck/internal/fpimage"
	"github.com/phinze/fpdeck/internal/minutiae"
	"go.uber.org/zap"
)

const (
	// DefaultThreshold is the comparison score at which two prints match.
	DefaultThreshold = 40
	// DefaultMinMinutiae is the fewest minutiae a usable scan may have.
	DefaultMinMinutiae = 10
)

// State is the lifecycle state of a Device.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateExecuting
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateExecuting:
		return "executing"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Action is the kind of an action run on a device.
type Action int

const (
	ActionNone Action = iota
	ActionOpen
	ActionClose
	ActionEnroll
	ActionVerify
	ActionIdentify
	ActionCapture
	ActionDelete
	ActionList
)

var actionNames = [...]string{
	ActionNone:     "none",
	ActionOpen:     "open",
	ActionClose:    "close",
	ActionEnroll:   "enroll",
	ActionVerify:   "verify",
	ActionIdentify: "identify",
	ActionCapture:  "capture",
	ActionDelete:   "delete",
	ActionList:     "list",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "unknown"
	}
	return actionNames[a]
}

// action is the single in-flight action of a device.
type action struct {
	kind   Action
	ctx    context.Context
	cancel context.CancelFunc
}

// Device runs actions against one sensor.
type Device struct {
	driver     Driver
	info       Info
	detector   *fpimage.Detector
	comparator Comparator

	threshold   int
	minMinutiae int
	log         *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	state   State
	current *action
}

// Option configures a Device.
type Option func(*Device)

// WithDetector sets the minutiae detector used for scans.
func WithDetector(det *fpimage.Detector) Option {
	return func(d *Device) { d.detector = det }
}

// WithComparator sets the template encoder and scorer.
func WithComparator(c Comparator) Option {
	return func(d *Device) { d.comparator = c }
}

// WithThreshold sets the score at which prints match.
func WithThreshold(n int) Option {
	return func(d *Device) { d.threshold = n }
}

// WithMinMinutiae sets the fewest minutiae accepted from a scan.
func WithMinMinutiae(n int) Option {
	return func(d *Device) { d.minMinutiae = n }
}

// WithLogger sets the device logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.log = l
		}
	}
}

// WithClock overrides the time source used for enroll dates.
func WithClock(now func() time.Time) Option {
	return func(d *Device) { d.now = now }
}

// New wraps drv. Without options scans go through the reference minutiae
// extractor and matcher.
func New(drv Driver, opts ...Option) *Device {
	d := &Device{
		driver:      drv,
		info:        drv.Info(),
		threshold:   DefaultThreshold,
		minMinutiae: DefaultMinMinutiae,
		log:         zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.detector == nil {
		d.detector = fpimage.NewDetector(minutiae.NewExtractor(), fpimage.WithLogger(d.log))
	}
	if d.comparator == nil {
		d.comparator = minutiae.Matcher{}
	}
	if _, ok := drv.(Scanner); ok && d.info.EnrollStages <= 0 {
		d.info.EnrollStages = ImageEnrollStages
	}
	d.log = d.log.With(zap.String("driver", d.info.Driver), zap.String("device_id", d.info.DeviceID))
	return d
}

// Info describes the device.
func (d *Device) Info() Info { return d.info }

// ID returns a key unique across drivers.
func (d *Device) ID() string { return d.info.Driver + ":" + d.info.DeviceID }

// Driver returns the wrapped driver.
func (d *Device) Driver() Driver { return d.driver }

// State returns the current lifecycle state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// CurrentAction returns the kind of the running action, or ActionNone.
func (d *Device) CurrentAction() Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return ActionNone
	}
	return d.current.kind
}

// IsOpen reports whether the device has been opened and not closed since.
// A device busy with an action is still open.
func (d *Device) IsOpen() bool {
	switch d.State() {
	case StateOpen, StateExecuting:
		return true
	}
	return false
}

// admit checks whether kind may start now and, if so, claims the device for
// it. check runs after the lifecycle and capability checks and rejects bad
// arguments.
func (d *Device) admit(ctx context.Context, kind Action, check func() error) (*action, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch kind {
	case ActionOpen:
		if d.state != StateClosed {
			return nil, ErrAlreadyOpen
		}
	default:
		if d.state == StateClosed {
			return nil, ErrNotOpen
		}
		if d.state != StateOpen {
			return nil, ErrBusy
		}
		if err := d.supports(kind); err != nil {
			return nil, err
		}
	}
	if check != nil {
		if err := check(); err != nil {
			return nil, err
		}
	}

	switch kind {
	case ActionOpen:
		d.state = StateOpening
	case ActionClose:
		d.state = StateClosing
	default:
		d.state = StateExecuting
	}
	actx, cancel := context.WithCancel(ctx)
	d.current = &action{kind: kind, ctx: actx, cancel: cancel}
	return d.current, nil
}

func (d *Device) supports(kind Action) error {
	_, scanner := d.driver.(Scanner)
	switch kind {
	case ActionEnroll, ActionVerify:
		if !scanner {
			return ErrNotSupported
		}
	case ActionIdentify:
		if !scanner || !d.info.SupportsIdentify {
			return ErrNotSupported.WithMessage("Device does not support identification")
		}
	case ActionCapture:
		if !scanner || !d.info.SupportsCapture {
			return ErrNotSupported.WithMessage("Device does not support image capture")
		}
	case ActionDelete, ActionList:
		if _, ok := d.driver.(Storage); !ok || !d.info.HasStorage {
			return ErrNotSupported.WithMessage("Device has no storage")
		}
	}
	return nil
}

// finish releases the device after a.
func (d *Device) finish(a *action, next State) {
	a.cancel()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == a {
		d.current = nil
		d.state = next
	}
}

// run admits an action and executes fn for it on a new goroutine. The
// returned task completes after the device has been released.
func run[T any](d *Device, ctx context.Context, kind Action, check func() error, fn func(ctx context.Context) (T, error)) *Task[T] {
	a, err := d.admit(ctx, kind, check)
	if err != nil {
		d.log.Debug("action rejected", zap.Stringer("action", kind), zap.Error(err))
		return failedTask[T](err)
	}
	d.log.Debug("action started", zap.Stringer("action", kind))

	t := newTask[T]()
	go func() {
		start := time.Now()
		v, err := fn(a.ctx)
		if err != nil && a.ctx.Err() != nil {
			// A failure caused by cancellation is reported as cancellation.
			var zero T
			v = zero
			err = ctx.Err()
			if err == nil {
				err = a.ctx.Err()
			}
		}

		next := StateOpen
		switch {
		case kind == ActionClose:
			next = StateClosed
		case kind == ActionOpen && err != nil:
			next = StateClosed
		}
		d.finish(a, next)

		switch {
		case err == nil:
			d.log.Debug("action finished", zap.Stringer("action", kind), zap.Duration("elapsed", time.Since(start)))
		case IsCancelled(err):
			d.log.Debug("action cancelled", zap.Stringer("action", kind))
		default:
			if _, retry := AsRetry(err); retry {
				d.log.Info("action needs retry", zap.Stringer("action", kind), zap.Error(err))
			} else {
				d.log.Warn("action failed", zap.Stringer("action", kind), zap.Error(err))
			}
		}
		t.complete(v, err)
	}()
	return t
}
