package storage_test

import (
	"testing"

	"github.com/phinze/fpdeck/internal/print"
	"github.com/phinze/fpdeck/internal/storage"
	"github.com/stretchr/testify/assert"
)

func TestKeyValidate(t *testing.T) {
	valid := storage.Key{Driver: "virtual_image", DeviceID: "0", Username: "ada", Finger: print.LeftIndex}

	tests := []struct {
		name   string
		mutate func(k *storage.Key)
		ok     bool
	}{
		{"valid", func(k *storage.Key) {}, true},
		{"email username", func(k *storage.Key) { k.Username = "ada@example.com" }, true},
		{"unicode username", func(k *storage.Key) { k.Username = "zoë" }, true},
		{"empty username", func(k *storage.Key) { k.Username = "" }, false},
		{"dot dot", func(k *storage.Key) { k.Username = "a..b" }, false},
		{"slash", func(k *storage.Key) { k.Username = "a/b" }, false},
		{"control", func(k *storage.Key) { k.Username = "a\x00b" }, false},
		{"space", func(k *storage.Key) { k.Username = "a b" }, false},
		{"missing driver", func(k *storage.Key) { k.Driver = "" }, false},
		{"missing device", func(k *storage.Key) { k.DeviceID = "" }, false},
		{"driver traversal", func(k *storage.Key) { k.Driver = ".." }, false},
		{"driver slash", func(k *storage.Key) { k.Driver = "a/b" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := valid
			tt.mutate(&k)
			err := k.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, storage.ErrInvalidKey)
			}
		})
	}
}

func TestKeyNormalize(t *testing.T) {
	k := storage.Key{Username: "  José "}.Normalize()
	assert.Equal(t, "José", k.Username)
}

func TestKeyString(t *testing.T) {
	k := storage.Key{Driver: "virtual_image", DeviceID: "0", Username: "ada", Finger: print.RightThumb}
	assert.Equal(t, "virtual_image/0/ada/right-thumb", k.String())
}
