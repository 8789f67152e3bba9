// Package storage keeps enrolled prints on the host, keyed by the device
// that produced them, the user and the finger.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/phinze/fpdeck/internal/print"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrNotFound is returned when no print is stored under a key.
	ErrNotFound = errors.New("print not found")
	// ErrInvalidKey is returned for keys that can't be stored safely.
	ErrInvalidKey = errors.New("invalid storage key")
)

var usernameRegex = regexp.MustCompile(`^[\p{L}\p{N}._@+-]+$`)

// Key identifies one stored print.
type Key struct {
	Driver   string
	DeviceID string
	Username string
	Finger   print.Finger
}

// KeyOf returns the key p is stored under.
func KeyOf(p *print.Print) Key {
	return Key{
		Driver:   p.Driver,
		DeviceID: p.DeviceID,
		Username: p.Username,
		Finger:   p.Finger,
	}
}

// Normalize returns k with its username in NFC form, so the same name typed
// on different systems maps to one key.
func (k Key) Normalize() Key {
	k.Username = norm.NFC.String(strings.TrimSpace(k.Username))
	return k
}

// Validate checks that every part of k is present and path safe.
func (k Key) Validate() error {
	if k.Driver == "" || k.DeviceID == "" {
		return fmt.Errorf("%w: driver and device id are required", ErrInvalidKey)
	}
	if strings.ContainsAny(k.Driver, `/\`) || k.Driver == "." || k.Driver == ".." {
		return fmt.Errorf("%w: bad driver name %q", ErrInvalidKey, k.Driver)
	}
	name := k.Username
	if name == "" {
		return fmt.Errorf("%w: username must not be empty", ErrInvalidKey)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: username must not contain '..': %s", ErrInvalidKey, name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: username must not contain control characters: %q", ErrInvalidKey, name)
		}
	}
	if !usernameRegex.MatchString(name) {
		return fmt.Errorf("%w: username has unsupported characters: %s", ErrInvalidKey, name)
	}
	return nil
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Driver, k.DeviceID, k.Username, k.Finger)
}

// Store persists enrolled prints.
type Store interface {
	Save(ctx context.Context, p *print.Print) error
	Load(ctx context.Context, key Key) (*print.Print, error)
	// List returns every print stored for a device, in a stable order.
	List(ctx context.Context, driver, deviceID string) ([]*print.Print, error)
	Delete(ctx context.Context, key Key) error
}

// prepare normalizes and validates the key of p, updating p's username to
// the normalized form.
func prepare(p *print.Print) (Key, error) {
	if p == nil || p.Type == print.TypeUndefined || len(p.Samples) == 0 {
		return Key{}, fmt.Errorf("%w: only enrolled prints can be stored", print.ErrInvalid)
	}
	key := KeyOf(p).Normalize()
	if err := key.Validate(); err != nil {
		return Key{}, err
	}
	p.Username = key.Username
	return key, nil
}
