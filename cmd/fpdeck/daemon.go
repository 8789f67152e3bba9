package main

import (
	"context"
	"fmt"
	"time"

	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/print"
	"github.com/phinze/fpdeck/internal/usbwatch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Sensors take a moment to enumerate after they appear on the bus or the
// machine wakes.
const settleDelay = 2 * time.Second

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Identify fingers continuously on every device",
	Long: `daemon opens every device and identifies each scanned finger against
the enrolled prints until interrupted. Devices are reopened when the
system wakes from sleep or a fingerprint sensor is plugged in.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	log := a.log.Named("daemon")

	wakeCh := wakeSignals(ctx, log)
	usbCh := usbwatch.Watch(ctx, log.Named("usbwatch"))

	onMatch := func(d *device.Device, p *print.Print) {
		if jsonOutput {
			_, _ = outputJSON(struct {
				Device string       `json:"device"`
				Print  printSummary `json:"print"`
			}{d.ID(), summaryOf(p)})
			return
		}
		fmt.Printf("%s: %s's %s\n", d.ID(), p.Username, p.Finger)
	}

	if err := a.coord.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := a.coord.Stop(context.Background()); err != nil {
			log.Warn("stopping devices", zap.Error(err))
		}
	}()

	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- a.coord.Run(runCtx, a.store, onMatch) }()
		stopRun := func() {
			cancel()
			<-done
		}

		reason := ""
		for reason == "" {
			select {
			case <-ctx.Done():
				stopRun()
				log.Info("shutting down")
				return nil
			case err := <-done:
				cancel()
				if err != nil {
					log.Error("identify loop failed", zap.Error(err))
				}
				reason = "identify loop ended"
			case <-wakeCh:
				stopRun()
				reason = "system wake"
			case ev, ok := <-usbCh:
				if !ok {
					usbCh = nil
					continue
				}
				stopRun()
				reason = "sensor attached: " + ev.String()
			}
		}

		log.Info("restarting devices", zap.String("reason", reason))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(settleDelay):
		}
		drain(wakeCh)
		if err := a.coord.Restart(ctx); err != nil {
			log.Warn("no device could be reopened, waiting for the next event", zap.Error(err))
			if !waitForEvent(ctx, wakeCh, usbCh) {
				return nil
			}
		}
	}
}

// drain discards stale signals that arrived while devices were restarting.
func drain(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func waitForEvent(ctx context.Context, wakeCh <-chan struct{}, usbCh <-chan usbwatch.Event) bool {
	select {
	case <-ctx.Done():
		return false
	case <-wakeCh:
	case <-usbCh:
	}
	return true
}
