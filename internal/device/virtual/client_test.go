package virtual_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/device/virtual"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFeedsDriver(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "fp.sock")
	drv := virtual.New(virtual.Options{Socket: sock})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, drv.Open(ctx))
	defer drv.Close(context.Background())

	c := virtual.NewClient(sock)
	defer c.Close()

	require.NoError(t, c.SetFingerPresent(true))
	require.NoError(t, c.Feed(testImage(t, 42)))
	require.NoError(t, c.FeedRetry(device.RetryTooShort))

	img, err := drv.Scan(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, byte(42), img.Data()[0])

	_, err = drv.Scan(ctx, true)
	assert.ErrorIs(t, err, device.ErrRetryTooShort)
	assert.True(t, drv.FingerPresent())
}

func TestClientWithoutSensor(t *testing.T) {
	c := virtual.NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	err := c.Feed(testImage(t, 1))
	assert.ErrorContains(t, err, "connecting to virtual sensor")
	assert.NoError(t, c.Close())
}
