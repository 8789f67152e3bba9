package device

import (
	"context"
	"fmt"

	"github.com/phinze/fpdeck/internal/fpimage"
	"github.com/phinze/fpdeck/internal/print"
	"go.uber.org/zap"
)

// OpenAsync starts opening the device.
func (d *Device) OpenAsync(ctx context.Context) *Task[struct{}] {
	return run(d, ctx, ActionOpen, nil, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.driver.Open(ctx)
	})
}

// Open opens the device and blocks until it is ready.
func (d *Device) Open(ctx context.Context) error {
	_, err := d.OpenAsync(ctx).Result()
	return err
}

// CloseAsync starts closing the device. The device ends up closed even if
// the driver reports an error.
func (d *Device) CloseAsync(ctx context.Context) *Task[struct{}] {
	return run(d, ctx, ActionClose, nil, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.driver.Close(ctx)
	})
}

// Close closes the device and blocks until it is done.
func (d *Device) Close(ctx context.Context) error {
	_, err := d.CloseAsync(ctx).Result()
	return err
}

// CaptureAsync starts capturing one raw image. Image sensors only support
// waiting for a finger.
func (d *Device) CaptureAsync(ctx context.Context, waitForFinger bool) *Task[*fpimage.Image] {
	check := func() error {
		if !waitForFinger {
			return ErrNotSupported.WithMessage("Image sensors can only capture after a finger is present")
		}
		return nil
	}
	return run(d, ctx, ActionCapture, check, func(ctx context.Context) (*fpimage.Image, error) {
		return d.driver.(Scanner).Scan(ctx, waitForFinger)
	})
}

// Capture captures one raw image.
func (d *Device) Capture(ctx context.Context, waitForFinger bool) (*fpimage.Image, error) {
	return d.CaptureAsync(ctx, waitForFinger).Result()
}

// DeletePrintAsync starts removing p from on-device storage.
func (d *Device) DeletePrintAsync(ctx context.Context, p *print.Print) *Task[struct{}] {
	check := func() error {
		if p == nil {
			return ErrDataInvalid.WithMessage("No print given")
		}
		return nil
	}
	return run(d, ctx, ActionDelete, check, func(ctx context.Context) (struct{}, error) {
		del, ok := d.driver.(Deleter)
		if !ok {
			// Nothing to delete on drivers that can't.
			return struct{}{}, nil
		}
		return struct{}{}, del.DeletePrint(ctx, p)
	})
}

// DeletePrint removes p from on-device storage.
func (d *Device) DeletePrint(ctx context.Context, p *print.Print) error {
	_, err := d.DeletePrintAsync(ctx, p).Result()
	return err
}

// ListPrintsAsync starts listing the prints stored on the device.
func (d *Device) ListPrintsAsync(ctx context.Context) *Task[[]*print.Print] {
	return run(d, ctx, ActionList, nil, func(ctx context.Context) ([]*print.Print, error) {
		return d.driver.(Storage).ListPrints(ctx)
	})
}

// ListPrints returns the prints stored on the device.
func (d *Device) ListPrints(ctx context.Context) ([]*print.Print, error) {
	return d.ListPrintsAsync(ctx).Result()
}

// scanSample asks the driver for one scan, detects its minutiae and encodes
// them. Too few minutiae is reported as a retry.
func (d *Device) scanSample(ctx context.Context) ([]byte, error) {
	img, err := d.driver.(Scanner).Scan(ctx, true)
	if err != nil {
		return nil, err
	}
	if err := d.detector.Detect(ctx, img); err != nil {
		return nil, err
	}
	if n := len(img.Minutiae()); n < d.minMinutiae {
		d.log.Debug("not enough minutiae", zap.Int("found", n), zap.Int("required", d.minMinutiae))
		return nil, ErrRetry
	}
	sample, err := d.comparator.Encode(img)
	if err != nil {
		return nil, fmt.Errorf("encoding template: %w", err)
	}
	return sample, nil
}

// newPrint returns an empty NBIS print stamped with this device.
func (d *Device) newPrint(p *print.Print) *print.Print {
	if p == nil {
		p = print.New()
	}
	p.Type = print.TypeNBIS
	p.Driver = d.info.Driver
	p.DeviceID = d.info.DeviceID
	return p
}
