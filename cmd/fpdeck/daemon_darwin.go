package main

import (
	"context"

	"github.com/prashantgupta24/mac-sleep-notifier/notifier"
	"go.uber.org/zap"
)

// wakeSignals reports each system wake. The channel never closes.
func wakeSignals(ctx context.Context, log *zap.Logger) <-chan struct{} {
	sleepCh := notifier.GetInstance().Start()
	wakeCh := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case activity := <-sleepCh:
				if activity.Type != notifier.Awake {
					continue
				}
				log.Info("system wake detected")
				select {
				case wakeCh <- struct{}{}:
				default:
				}
			}
		}
	}()
	return wakeCh
}
