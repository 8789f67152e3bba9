//go:build !darwin

package usbwatch

import (
	"context"

	"go.uber.org/zap"
)

// Watch is not implemented on this platform. The returned channel never
// delivers and is closed when ctx is cancelled.
func Watch(ctx context.Context, log *zap.Logger, vendors ...uint16) <-chan Event {
	if log == nil {
		log = zap.NewNop()
	}
	log.Debug("usbwatch: hot-plug notifications not supported on this platform")
	ch := make(chan Event)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}
