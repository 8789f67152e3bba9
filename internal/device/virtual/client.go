package virtual

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/fpimage"
)

// Client feeds a virtual sensor listening on a Unix socket, possibly in
// another process. The connection is dialed lazily and redialed after a
// write fails.
type Client struct {
	Path        string
	DialTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewClient returns a Client for the socket at path.
func NewClient(path string) *Client {
	return &Client{Path: path, DialTimeout: 2 * time.Second}
}

// Feed sends a scanned raster.
func (c *Client) Feed(img *fpimage.Image) error {
	return c.send(func(conn net.Conn) error { return SendImage(conn, img) })
}

// FeedRetry makes the sensor report a failed scan.
func (c *Client) FeedRetry(code device.RetryCode) error {
	return c.send(func(conn net.Conn) error { return SendRetry(conn, code) })
}

// SetFingerPresent reports a finger placed on or lifted from the sensor.
func (c *Client) SetFingerPresent(on bool) error {
	return c.send(func(conn net.Conn) error { return SendFinger(conn, on) })
}

// Close drops the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) send(write func(net.Conn) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.DialTimeout)
		defer cancel()
		var d net.Dialer
		conn, err := d.DialContext(ctx, "unix", c.Path)
		if err != nil {
			return fmt.Errorf("connecting to virtual sensor at %s: %w", c.Path, err)
		}
		c.conn = conn
	}
	if err := write(c.conn); err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("writing to virtual sensor: %w", err)
	}
	return nil
}
