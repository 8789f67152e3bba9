// Command fpdeck enrolls, verifies and identifies fingerprints on the
// attached sensors and runs the fingerprint daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	jsonOutput bool
	deviceID   string

	rootCmd = &cobra.Command{
		Use:   "fpdeck",
		Short: "Fingerprint sensor toolkit",
		Long: `fpdeck drives fingerprint sensors: enroll prints into the host store,
verify or identify fingers against them, capture raw images, and run a
daemon or HTTP API over every attached sensor.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/fpdeck/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVarP(&deviceID, "device", "d", "", "device id (default: first device)")

	rootCmd.AddCommand(
		devicesCmd,
		enrollCmd,
		verifyCmd,
		identifyCmd,
		captureCmd,
		listCmd,
		deleteCmd,
		feedCmd,
		statusCmd,
		setupCmd,
		daemonCmd,
		serveCmd,
	)
}

func main() {
	// Interrupts cancel the running action instead of killing the process,
	// so the device is closed on the way out.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
