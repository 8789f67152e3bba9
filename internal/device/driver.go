package device

import (
	"context"

	"github.com/phinze/fpdeck/internal/fpimage"
	"github.com/phinze/fpdeck/internal/print"
)

// ImageEnrollStages is the number of scans image sensors need for one
// enrolled print unless the driver says otherwise.
const ImageEnrollStages = 5

// ScanType describes how a finger is presented to the sensor.
type ScanType int

const (
	ScanPress ScanType = iota
	ScanSwipe
)

func (s ScanType) String() string {
	if s == ScanSwipe {
		return "swipe"
	}
	return "press"
}

// Info describes a device. It does not change while the driver exists.
type Info struct {
	Driver   string
	Name     string
	DeviceID string
	ScanType ScanType

	EnrollStages     int
	SupportsIdentify bool
	SupportsCapture  bool
	HasStorage       bool
}

// Driver is the transport a Device runs actions through. Drivers are only
// ever called by one action at a time.
type Driver interface {
	Info() Info
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// Scanner is implemented by image sensors.
type Scanner interface {
	// Scan returns one raw raster. Returning a *RetryError asks for the
	// scan to be repeated.
	Scan(ctx context.Context, waitForFinger bool) (*fpimage.Image, error)
}

// Storage is implemented by drivers that keep prints on the device.
type Storage interface {
	ListPrints(ctx context.Context) ([]*print.Print, error)
}

// Deleter removes a print from on-device storage.
type Deleter interface {
	DeletePrint(ctx context.Context, p *print.Print) error
}

// PrintStorer saves a freshly enrolled print on the device.
type PrintStorer interface {
	StorePrint(ctx context.Context, p *print.Print) error
}

// Comparator turns detected minutiae into template bytes and scores two
// templates against each other.
type Comparator interface {
	Encode(img *fpimage.Image) ([]byte, error)
	Compare(gallery, probe []byte) (int, error)
}
