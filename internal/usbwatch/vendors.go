// Package usbwatch reports fingerprint sensors being attached to the host.
package usbwatch

import "fmt"

// KnownVendors maps USB vendor IDs of fingerprint sensor makers to names.
var KnownVendors = map[uint16]string{
	0x06cb: "Synaptics",
	0x08ff: "AuthenTec",
	0x138a: "Validity Sensors",
	0x147e: "Upek",
	0x27c6: "Goodix",
}

// Event describes one attached USB device.
type Event struct {
	VendorID  uint16
	ProductID uint16
}

// Vendor returns the sensor maker's name, or "unknown".
func (e Event) Vendor() string {
	if name, ok := KnownVendors[e.VendorID]; ok {
		return name
	}
	return "unknown"
}

func (e Event) String() string {
	return fmt.Sprintf("%04x:%04x (%s)", e.VendorID, e.ProductID, e.Vendor())
}

// vendorSet turns the requested vendor IDs into a lookup set, defaulting to
// every known fingerprint vendor.
func vendorSet(vendors []uint16) map[uint16]bool {
	set := make(map[uint16]bool)
	if len(vendors) == 0 {
		for id := range KnownVendors {
			set[id] = true
		}
		return set
	}
	for _, id := range vendors {
		set[id] = true
	}
	return set
}
