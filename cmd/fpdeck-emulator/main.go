// Command fpdeck-emulator opens a window that stands in for a fingerprint
// sensor. Drawn ridges and fixture images are sent to a virtual sensor
// socket, either of another fpdeck process or of one it runs itself.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phinze/fpdeck/internal/config"
	"github.com/phinze/fpdeck/internal/coordinator"
	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/device/emulator"
	"github.com/phinze/fpdeck/internal/device/virtual"
	"github.com/phinze/fpdeck/internal/fpimage"
	"github.com/phinze/fpdeck/internal/logger"
	"github.com/phinze/fpdeck/internal/minutiae"
	"github.com/phinze/fpdeck/internal/print"
	"github.com/phinze/fpdeck/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	socket     string
	fixtures   string
	standalone bool
)

var rootCmd = &cobra.Command{
	Use:           "fpdeck-emulator",
	Short:         "Fingerprint sensor emulator window",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&socket, "socket", "", "virtual sensor socket (default from config)")
	rootCmd.Flags().StringVar(&fixtures, "fixtures", "", "directory of fixture images for the slots")
	rootCmd.Flags().BoolVar(&standalone, "standalone", false, "run a virtual sensor and identify loop in this process")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	l := logger.New()
	if err := l.Init(cfg.LogLevel); err != nil {
		return err
	}
	log := l.Log
	defer func() { _ = log.Sync() }()

	if socket == "" {
		socket = cfg.Virtual.Socket
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	emu := emulator.NewWithClient(socket)
	if fixtures != "" {
		if err := emu.LoadSlots(fixtures); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		emu.Stop()
	}()

	if standalone {
		cfg.Virtual.Socket = socket
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := runSensor(ctx, cfg, log, emu); err != nil {
				log.Error("virtual sensor stopped", zap.Error(err))
				emu.SetStatus("Sensor error: " + err.Error())
			}
		}()
		defer func() {
			cancel()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				log.Warn("sensor shutdown timed out")
			}
		}()
	} else {
		emu.SetStatus("Feeding " + socket)
	}

	// Ebitengine needs the main goroutine on macOS.
	return emu.RunGUI()
}

// runSensor opens a virtual sensor on the emulator's socket and identifies
// every scan against the configured store, reporting matches in the window.
func runSensor(ctx context.Context, cfg *config.Config, log *zap.Logger, emu *emulator.Emulator) error {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	drv := virtual.New(virtual.Options{
		Socket:       cfg.Virtual.Socket,
		EnrollStages: cfg.Virtual.EnrollStages,
		Storage:      cfg.Virtual.Storage,
		Capacity:     cfg.Virtual.Capacity,
		Enlarge:      cfg.Virtual.Enlarge,
		Logger:       log.Named("virtual"),
	})
	d := device.New(drv,
		device.WithDetector(fpimage.NewDetector(minutiae.NewExtractor(), fpimage.WithLogger(log.Named("detector")))),
		device.WithThreshold(cfg.Matcher.Threshold),
		device.WithMinMinutiae(cfg.Matcher.MinMinutiae),
		device.WithLogger(log.Named("device")),
	)

	coord := coordinator.New(coordinator.WithLogger(log.Named("coordinator")))
	if err := coord.Register(d); err != nil {
		return err
	}
	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = coord.Stop(context.Background()) }()

	emu.SetStatus("Scan a finger to identify it")
	return coord.Run(ctx, store, func(_ *device.Device, p *print.Print) {
		emu.SetStatus(fmt.Sprintf("Recognized %s's %s", p.Username, p.Finger))
	})
}

func openStore(cfg *config.Config) (storage.Store, func(), error) {
	if cfg.Storage.Backend == config.BackendPostgres {
		db, err := storage.OpenPostgres(cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		return storage.NewPostgresStore(db), func() { _ = db.Close() }, nil
	}

	var opts []storage.FileOption
	if cfg.Storage.SealKey != "" {
		key, err := storage.DecodeKey(cfg.Storage.SealKey)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, storage.WithSealKey(key))
	}
	fs, err := storage.NewFileStore(cfg.Storage.Dir, opts...)
	if err != nil {
		return nil, nil, err
	}
	return fs, func() {}, nil
}
