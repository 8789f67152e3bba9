package virtual

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/fpimage"
	"go.uber.org/zap"
)

// Socket messages start with two little endian int32 values. A positive
// width is followed by width*height raster bytes; negative widths are
// control messages.
const (
	msgFinger = -1 // height is 1 for finger down, 0 for up
	msgRetry  = -2 // height is a device.RetryCode

	maxPixels = 4096 * 4096
)

func (d *Driver) serve(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				d.log.Warn("accept failed", zap.Error(err))
			}
			return
		}
		d.conns.Add(1)
		go func() {
			defer d.conns.Done()
			d.handle(ctx, conn)
		}()
	}
}

func (d *Driver) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		if err := d.readMessage(conn); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				d.log.Warn("dropping socket client", zap.Error(err))
			}
			return
		}
	}
}

func (d *Driver) readMessage(r io.Reader) error {
	var hdr [2]int32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	width, height := int(hdr[0]), int(hdr[1])

	switch {
	case width == msgFinger:
		d.SetFingerPresent(height != 0)
		d.log.Debug("finger status", zap.Bool("present", height != 0))
		return nil
	case width == msgRetry:
		if height < int(device.RetryGeneral) || height > int(device.RetryRemoveFinger) {
			return fmt.Errorf("unknown retry code %d", height)
		}
		return d.FeedRetry(device.RetryCode(height))
	case width <= 0 || height <= 0 || width*height > maxPixels:
		return fmt.Errorf("bad image size %dx%d", width, height)
	}

	data := make([]byte, width*height)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("reading %dx%d image: %w", width, height, err)
	}
	img, err := fpimage.NewFromData(width, height, data, 0)
	if err != nil {
		return err
	}
	d.log.Debug("received image", zap.Int("width", width), zap.Int("height", height))
	return d.Feed(img)
}

// SendImage writes img to a virtual sensor socket.
func SendImage(w io.Writer, img *fpimage.Image) error {
	hdr := [2]int32{int32(img.Width()), int32(img.Height())}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	_, err := w.Write(img.Data())
	return err
}

// SendFinger reports a finger placed on or lifted from a virtual sensor.
func SendFinger(w io.Writer, present bool) error {
	var h int32
	if present {
		h = 1
	}
	return binary.Write(w, binary.LittleEndian, [2]int32{msgFinger, h})
}

// SendRetry asks a virtual sensor to report a failed scan.
func SendRetry(w io.Writer, code device.RetryCode) error {
	return binary.Write(w, binary.LittleEndian, [2]int32{msgRetry, int32(code)})
}
