//go:build !darwin

package main

import (
	"context"

	"go.uber.org/zap"
)

// wakeSignals is only implemented on macOS. Elsewhere the channel never
// fires.
func wakeSignals(ctx context.Context, log *zap.Logger) <-chan struct{} {
	return make(chan struct{})
}
