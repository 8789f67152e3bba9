package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/phinze/fpdeck/internal/print"
	"github.com/phinze/fpdeck/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enrolled(username string, finger print.Finger) *print.Print {
	p := print.NewTemplate(finger, username)
	p.Type = print.TypeNBIS
	p.Driver = "virtual_image"
	p.DeviceID = "0"
	p.AddSample([]byte("XYT-sample"))
	return p
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	p := enrolled("ada", print.RightIndex)
	require.NoError(t, s.Save(ctx, p))

	got, err := s.Load(ctx, storage.KeyOf(p))
	require.NoError(t, err)
	assert.True(t, p.Equal(got))
	assert.Equal(t, p.ID, got.ID)

	require.NoError(t, s.Delete(ctx, storage.KeyOf(p)))
	_, err = s.Load(ctx, storage.KeyOf(p))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, storage.KeyOf(p)), storage.ErrNotFound)
}

func TestFileStoreList(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	prints, err := s.List(ctx, "virtual_image", "0")
	require.NoError(t, err)
	assert.Empty(t, prints)

	require.NoError(t, s.Save(ctx, enrolled("bob", print.LeftThumb)))
	require.NoError(t, s.Save(ctx, enrolled("ada", print.RightLittle)))
	require.NoError(t, s.Save(ctx, enrolled("ada", print.LeftIndex)))
	other := enrolled("ada", print.LeftIndex)
	other.DeviceID = "1"
	require.NoError(t, s.Save(ctx, other))

	prints, err = s.List(ctx, "virtual_image", "0")
	require.NoError(t, err)
	require.Len(t, prints, 3)
	assert.Equal(t, "ada", prints[0].Username)
	assert.Equal(t, print.LeftIndex, prints[0].Finger)
	assert.Equal(t, print.RightLittle, prints[1].Finger)
	assert.Equal(t, "bob", prints[2].Username)
}

func TestFileStoreSaveReplaces(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	first := enrolled("ada", print.LeftIndex)
	second := enrolled("ada", print.LeftIndex)
	second.Samples = [][]byte{[]byte("newer")}
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	prints, err := s.List(ctx, "virtual_image", "0")
	require.NoError(t, err)
	require.Len(t, prints, 1)
	assert.Equal(t, second.ID, prints[0].ID)
}

func TestFileStoreNormalizesUsernames(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	p := enrolled("Jose\u0301", print.LeftRing)
	require.NoError(t, s.Save(ctx, p))
	assert.Equal(t, "Jos\u00e9", p.Username)

	got, err := s.Load(ctx, storage.Key{Driver: "virtual_image", DeviceID: "0", Username: "Jos\u00e9", Finger: print.LeftRing})
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestFileStoreRejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../etc", "a/b", "tab\tname", "sp ace"} {
		err := s.Save(ctx, enrolled(name, print.LeftThumb))
		assert.ErrorIs(t, err, storage.ErrInvalidKey, "username %q", name)
	}

	blank := print.NewTemplate(print.LeftThumb, "ada")
	assert.ErrorIs(t, s.Save(ctx, blank), print.ErrInvalid)
}

func TestFileStoreSealed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	encoded, err := storage.GenerateKey()
	require.NoError(t, err)
	key, err := storage.DecodeKey(encoded)
	require.NoError(t, err)

	s, err := storage.NewFileStore(dir, storage.WithSealKey(key))
	require.NoError(t, err)
	p := enrolled("ada", print.RightThumb)
	require.NoError(t, s.Save(ctx, p))

	raw, err := os.ReadFile(filepath.Join(dir, "virtual_image", "0", "ada", "right-thumb.yaml"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "XYT-sample")
	assert.NotContains(t, string(raw), "ada")

	got, err := s.Load(ctx, storage.KeyOf(p))
	require.NoError(t, err)
	assert.True(t, p.Equal(got))

	plain, err := storage.NewFileStore(dir)
	require.NoError(t, err)
	_, err = plain.Load(ctx, storage.KeyOf(p))
	assert.Error(t, err)

	otherKey := make([]byte, storage.KeySize)
	wrong, err := storage.NewFileStore(dir, storage.WithSealKey(otherKey))
	require.NoError(t, err)
	_, err = wrong.Load(ctx, storage.KeyOf(p))
	assert.Error(t, err)
}

func TestSealKeyValidation(t *testing.T) {
	_, err := storage.NewFileStore(t.TempDir(), storage.WithSealKey([]byte("short")))
	assert.Error(t, err)
	_, err = storage.DecodeKey("not base64!")
	assert.Error(t, err)
	_, err = storage.DecodeKey("c2hvcnQ=")
	assert.Error(t, err)
}
