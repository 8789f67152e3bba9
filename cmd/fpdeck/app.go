package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/phinze/fpdeck/internal/config"
	"github.com/phinze/fpdeck/internal/coordinator"
	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/device/virtual"
	"github.com/phinze/fpdeck/internal/fpimage"
	"github.com/phinze/fpdeck/internal/logger"
	"github.com/phinze/fpdeck/internal/minutiae"
	"github.com/phinze/fpdeck/internal/storage"
	"go.uber.org/zap"
)

// app is everything a command needs, built from the config.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store storage.Store
	coord *coordinator.Coordinator

	closeStore func() error
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	l := logger.New()
	if err := l.Init(cfg.LogLevel); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: l.Log}
	if err := a.openStore(); err != nil {
		return nil, err
	}

	a.coord = coordinator.New(coordinator.WithLogger(a.log.Named("coordinator")))
	if err := a.coord.Register(a.newVirtualDevice()); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStore() error {
	switch a.cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := storage.OpenPostgres(a.cfg.PostgresDSN())
		if err != nil {
			return err
		}
		a.store = storage.NewPostgresStore(db)
		a.closeStore = db.Close
	default:
		var opts []storage.FileOption
		if a.cfg.Storage.SealKey != "" {
			key, err := storage.DecodeKey(a.cfg.Storage.SealKey)
			if err != nil {
				return fmt.Errorf("storage key from keyring: %w", err)
			}
			opts = append(opts, storage.WithSealKey(key))
		}
		fs, err := storage.NewFileStore(a.cfg.Storage.Dir, opts...)
		if err != nil {
			return err
		}
		a.store = fs
	}
	return nil
}

func (a *app) newVirtualDevice() *device.Device {
	v := a.cfg.Virtual
	drv := virtual.New(virtual.Options{
		Socket:       v.Socket,
		EnrollStages: v.EnrollStages,
		Storage:      v.Storage,
		Capacity:     v.Capacity,
		Enlarge:      v.Enlarge,
		Logger:       a.log.Named("virtual"),
	})

	detOpts := []fpimage.DetectorOption{fpimage.WithLogger(a.log.Named("detector"))}
	if a.cfg.Workers > 0 {
		detOpts = append(detOpts, fpimage.WithWorkers(a.cfg.Workers))
	}
	return device.New(drv,
		device.WithDetector(fpimage.NewDetector(minutiae.NewExtractor(), detOpts...)),
		device.WithThreshold(a.cfg.Matcher.Threshold),
		device.WithMinMinutiae(a.cfg.Matcher.MinMinutiae),
		device.WithLogger(a.log.Named("device")),
	)
}

// selected returns the device chosen with --device, or the first one.
func (a *app) selected() (*device.Device, error) {
	if deviceID != "" {
		return a.coord.Lookup(deviceID)
	}
	devs := a.coord.Devices()
	if len(devs) == 0 {
		return nil, fmt.Errorf("no fingerprint devices available")
	}
	return devs[0], nil
}

// openDevice opens the selected device. The returned func closes it.
func (a *app) openDevice(ctx context.Context) (*device.Device, func(), error) {
	d, err := a.selected()
	if err != nil {
		return nil, nil, err
	}
	if err := d.Open(ctx); err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", d.ID(), err)
	}
	if v := a.cfg.Virtual.Socket; d.Info().Driver == virtual.DriverName && v != "" {
		fmt.Fprintf(os.Stderr, "Virtual sensor listening on %s (feed it with 'fpdeck feed' or fpdeck-emulator)\n", v)
	}
	return d, func() {
		if err := d.Close(context.Background()); err != nil {
			a.log.Warn("closing device", zap.Error(err))
		}
	}, nil
}

func (a *app) Close() {
	if a.closeStore != nil {
		_ = a.closeStore()
	}
	_ = a.log.Sync()
}

// outputJSON prints v as JSON when --json is set and reports whether it did.
func outputJSON(v any) (bool, error) {
	if !jsonOutput {
		return false, nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}
