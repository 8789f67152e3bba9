// Package print models enrolled fingerprint templates and freshly captured
// prints.
package print

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalid is returned for print data that can't be decoded.
var ErrInvalid = errors.New("invalid print data")

// Type identifies how the samples of a print are encoded.
type Type int

const (
	// TypeUndefined is a blank print, usually an enrollment template.
	TypeUndefined Type = iota
	// TypeRaw holds driver specific bytes that only the driver understands.
	TypeRaw
	// TypeNBIS holds minutiae templates compared on the host.
	TypeNBIS
)

func (t Type) String() string {
	switch t {
	case TypeRaw:
		return "raw"
	case TypeNBIS:
		return "nbis"
	default:
		return "undefined"
	}
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "undefined":
		return TypeUndefined, nil
	case "raw":
		return TypeRaw, nil
	case "nbis":
		return TypeNBIS, nil
	}
	return TypeUndefined, fmt.Errorf("%w: unknown print type %q", ErrInvalid, s)
}

// Finger names the finger a print was taken from.
type Finger int

const (
	FingerUnknown Finger = iota
	LeftThumb
	LeftIndex
	LeftMiddle
	LeftRing
	LeftLittle
	RightThumb
	RightIndex
	RightMiddle
	RightRing
	RightLittle
)

var fingerNames = [...]string{
	FingerUnknown: "unknown",
	LeftThumb:     "left-thumb",
	LeftIndex:     "left-index",
	LeftMiddle:    "left-middle",
	LeftRing:      "left-ring",
	LeftLittle:    "left-little",
	RightThumb:    "right-thumb",
	RightIndex:    "right-index",
	RightMiddle:   "right-middle",
	RightRing:     "right-ring",
	RightLittle:   "right-little",
}

func (f Finger) String() string {
	if f < 0 || int(f) >= len(fingerNames) {
		return fingerNames[FingerUnknown]
	}
	return fingerNames[f]
}

// ParseFinger accepts the names produced by Finger.String.
func ParseFinger(s string) (Finger, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range fingerNames {
		if name == s {
			return Finger(i), nil
		}
	}
	return FingerUnknown, fmt.Errorf("%w: unknown finger %q", ErrInvalid, s)
}

// Fingers returns all named fingers in order, without FingerUnknown.
func Fingers() []Finger {
	out := make([]Finger, 0, RightLittle)
	for f := LeftThumb; f <= RightLittle; f++ {
		out = append(out, f)
	}
	return out
}

// Print is an enrolled template or a captured print. Samples are opaque to
// everything but the driver or comparator that produced them.
type Print struct {
	ID           string
	Type         Type
	Driver       string
	DeviceID     string
	DeviceStored bool

	Finger      Finger
	Username    string
	Description string
	EnrollDate  time.Time

	Samples [][]byte
}

// New returns a blank print with a fresh ID.
func New() *Print {
	return &Print{ID: uuid.NewString()}
}

// NewTemplate returns a blank print carrying enrollment metadata.
func NewTemplate(finger Finger, username string) *Print {
	p := New()
	p.Finger = finger
	p.Username = username
	return p
}

// IsBlank reports whether p has no type and no samples, which is what
// enrollment requires of a template.
func (p *Print) IsBlank() bool {
	return p.Type == TypeUndefined && len(p.Samples) == 0
}

// AddSample appends an encoded sample.
func (p *Print) AddSample(b []byte) {
	p.Samples = append(p.Samples, b)
}

// CompatibleWith reports whether p was produced by the given driver and
// device.
func (p *Print) CompatibleWith(driver, deviceID string) bool {
	return p.Driver == driver && p.DeviceID == deviceID
}

// Equal compares the fields that identify print data: type, producing
// device and samples. Metadata is ignored.
func (p *Print) Equal(o *Print) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Type != o.Type || p.Driver != o.Driver || p.DeviceID != o.DeviceID {
		return false
	}
	if len(p.Samples) != len(o.Samples) {
		return false
	}
	for i := range p.Samples {
		if !bytes.Equal(p.Samples[i], o.Samples[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of p.
func (p *Print) Clone() *Print {
	c := *p
	c.Samples = make([][]byte, len(p.Samples))
	for i, s := range p.Samples {
		c.Samples[i] = bytes.Clone(s)
	}
	return &c
}

func (p *Print) String() string {
	name := p.Username
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("%s/%s (%s, %d samples)", name, p.Finger, p.Type, len(p.Samples))
}
