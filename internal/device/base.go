package device

import "context"

// BaseDriver provides Info and a driver lifetime context. Embed it in driver
// implementations and override only what's needed.
type BaseDriver struct {
	info   Info
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBaseDriver creates a BaseDriver describing the given device.
func NewBaseDriver(info Info) BaseDriver {
	return BaseDriver{info: info, ctx: context.Background()}
}

// Info returns the device description.
func (b *BaseDriver) Info() Info {
	return b.info
}

// Open starts the driver lifetime context. The ctx argument only bounds the
// open itself. Overrides should call the base implementation.
func (b *BaseDriver) Open(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return nil
}

// Close cancels the lifetime context. Overrides should call the base
// implementation.
func (b *BaseDriver) Close(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}

// Context is cancelled when the driver is closed. Background work started
// by a driver should stop with it.
func (b *BaseDriver) Context() context.Context {
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}
