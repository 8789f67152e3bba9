package device

import (
	"context"
	"fmt"

	"github.com/phinze/fpdeck/internal/print"
)

// VerifyResult is the outcome of a verify action.
type VerifyResult struct {
	Match bool
	// Print is the freshly captured print.
	Print *print.Print
}

// IdentifyResult is the outcome of an identify action.
type IdentifyResult struct {
	// Match is the element of the gallery that matched, or nil.
	Match *print.Print
	// Print is the freshly captured print.
	Print *print.Print
}

// VerifyAsync starts checking a scanned finger against enrolled.
func (d *Device) VerifyAsync(ctx context.Context, enrolled *print.Print) *Task[VerifyResult] {
	check := func() error {
		if enrolled == nil {
			return ErrDataInvalid.WithMessage("No print given to verify against")
		}
		if !enrolled.CompatibleWith(d.info.Driver, d.info.DeviceID) {
			return ErrDataInvalid.WithMessagef("Print was enrolled on %s/%s", enrolled.Driver, enrolled.DeviceID)
		}
		return nil
	}
	return run(d, ctx, ActionVerify, check, func(ctx context.Context) (VerifyResult, error) {
		probe, err := d.capturePrint(ctx)
		if err != nil {
			return VerifyResult{}, err
		}
		ok, err := d.matches(enrolled, probe)
		if err != nil {
			return VerifyResult{}, err
		}
		return VerifyResult{Match: ok, Print: probe}, nil
	})
}

// Verify scans a finger and reports whether it matches enrolled, along with
// the captured print.
func (d *Device) Verify(ctx context.Context, enrolled *print.Print) (bool, *print.Print, error) {
	res, err := d.VerifyAsync(ctx, enrolled).Result()
	return res.Match, res.Print, err
}

// IdentifyAsync starts searching gallery for the scanned finger. Prints
// from other devices never match.
func (d *Device) IdentifyAsync(ctx context.Context, gallery []*print.Print) *Task[IdentifyResult] {
	check := func() error {
		if len(gallery) == 0 {
			return ErrDataInvalid.WithMessage("No prints given to identify against")
		}
		for i, p := range gallery {
			if p == nil {
				return ErrDataInvalid.WithMessagef("Print %d is missing", i)
			}
		}
		return nil
	}
	return run(d, ctx, ActionIdentify, check, func(ctx context.Context) (IdentifyResult, error) {
		probe, err := d.capturePrint(ctx)
		if err != nil {
			return IdentifyResult{}, err
		}
		for _, p := range gallery {
			if !p.CompatibleWith(d.info.Driver, d.info.DeviceID) {
				continue
			}
			ok, err := d.matches(p, probe)
			if err != nil {
				return IdentifyResult{}, err
			}
			if ok {
				return IdentifyResult{Match: p, Print: probe}, nil
			}
		}
		return IdentifyResult{Print: probe}, nil
	})
}

// Identify scans a finger and returns the first gallery print it matches
// (nil if none) along with the captured print.
func (d *Device) Identify(ctx context.Context, gallery []*print.Print) (*print.Print, *print.Print, error) {
	res, err := d.IdentifyAsync(ctx, gallery).Result()
	return res.Match, res.Print, err
}

func (d *Device) capturePrint(ctx context.Context) (*print.Print, error) {
	sample, err := d.scanSample(ctx)
	if err != nil {
		return nil, err
	}
	p := d.newPrint(nil)
	p.AddSample(sample)
	return p, nil
}

// matches scores probe against every sample of gallery and reports whether
// any reaches the threshold.
func (d *Device) matches(gallery, probe *print.Print) (bool, error) {
	if gallery.Type != print.TypeNBIS {
		return false, ErrNotSupported.WithMessagef("Cannot match %s prints on the host", gallery.Type)
	}
	for _, sample := range gallery.Samples {
		score, err := d.comparator.Compare(sample, probe.Samples[0])
		if err != nil {
			return false, fmt.Errorf("comparing prints: %w", ErrDataInvalid.WithMessage(err.Error()))
		}
		if score >= d.threshold {
			return true, nil
		}
	}
	return false, nil
}
