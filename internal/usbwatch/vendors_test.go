package usbwatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventVendor(t *testing.T) {
	assert.Equal(t, "Goodix", Event{VendorID: 0x27c6}.Vendor())
	assert.Equal(t, "unknown", Event{VendorID: 0x1234}.Vendor())
	assert.Equal(t, "06cb:00bd (Synaptics)", Event{VendorID: 0x06cb, ProductID: 0x00bd}.String())
}

func TestVendorSet(t *testing.T) {
	all := vendorSet(nil)
	assert.Len(t, all, len(KnownVendors))
	assert.True(t, all[0x138a])

	some := vendorSet([]uint16{0x27c6})
	assert.Equal(t, map[uint16]bool{0x27c6: true}, some)
}
