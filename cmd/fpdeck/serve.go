package main

import (
	"context"

	"github.com/phinze/fpdeck/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open every device and serve the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	addr := serveListen
	if addr == "" {
		addr = a.cfg.Server.Listen
	}

	ctx := cmd.Context()
	if err := a.coord.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := a.coord.Stop(context.Background()); err != nil {
			a.log.Warn("stopping devices", zap.Error(err))
		}
	}()

	h := &server.DeviceHandler{Devices: a.coord, Store: a.store}
	return server.Serve(ctx, addr, server.NewRouter(h, a.log.Named("http")), a.log)
}
