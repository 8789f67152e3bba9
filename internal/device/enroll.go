package device

import (
	"context"
	"fmt"

	"github.com/phinze/fpdeck/internal/print"
)

// EnrollProgress is called after every enrollment scan. completed is the
// number of accepted stages so far. p is set only on the final call and
// retry only when the scan has to be repeated.
type EnrollProgress func(d *Device, completed int, p *print.Print, retry *RetryError)

// EnrollAsync starts enrolling a new print. template may be nil or a blank
// print carrying the metadata (finger, username, description) to enroll
// under.
func (d *Device) EnrollAsync(ctx context.Context, template *print.Print, progress EnrollProgress) *Task[*print.Print] {
	check := func() error {
		if template != nil && !template.IsBlank() {
			return ErrDataInvalid.WithMessage("Enrollment template must be a blank print")
		}
		return nil
	}
	return run(d, ctx, ActionEnroll, check, func(ctx context.Context) (*print.Print, error) {
		var p *print.Print
		if template != nil {
			p = template.Clone()
		}
		return d.enroll(ctx, d.newPrint(p), progress)
	})
}

// Enroll enrolls a new print and blocks until it is complete.
func (d *Device) Enroll(ctx context.Context, template *print.Print, progress EnrollProgress) (*print.Print, error) {
	return d.EnrollAsync(ctx, template, progress).Result()
}

func (d *Device) enroll(ctx context.Context, p *print.Print, progress EnrollProgress) (*print.Print, error) {
	report := func(completed int, p *print.Print, retry *RetryError) {
		if progress != nil {
			progress(d, completed, p, retry)
		}
	}

	stages := d.info.EnrollStages
	completed := 0
	for completed < stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sample, err := d.scanSample(ctx)
		if err != nil {
			if retry, ok := AsRetry(err); ok {
				report(completed, nil, retry)
				continue
			}
			return nil, err
		}
		p.AddSample(sample)
		completed++
		if completed < stages {
			report(completed, nil, nil)
		}
	}

	p.EnrollDate = d.now()
	if d.info.HasStorage {
		if storer, ok := d.driver.(PrintStorer); ok {
			if err := storer.StorePrint(ctx, p); err != nil {
				return nil, fmt.Errorf("storing print on device: %w", err)
			}
			p.DeviceStored = true
		}
	}
	report(completed, p, nil)
	return p, nil
}
