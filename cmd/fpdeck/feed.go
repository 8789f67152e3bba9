package main

import (
	"fmt"

	"github.com/phinze/fpdeck/internal/config"
	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/device/virtual"
	"github.com/spf13/cobra"
)

var (
	feedSocket string
	feedRetry  string
	feedFinger string
)

var feedCmd = &cobra.Command{
	Use:   "feed [image]",
	Short: "Send an image or retry to a running virtual sensor",
	Long: `feed sends a scan to the virtual sensor socket of another fpdeck
process. The image may be PNG, JPEG or SVG; it is converted to grayscale.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFeed,
}

func init() {
	feedCmd.Flags().StringVar(&feedSocket, "socket", "", "virtual sensor socket (default from config)")
	feedCmd.Flags().StringVar(&feedRetry, "retry", "", "send a retry instead: general, too-short, center-finger, remove-finger")
	feedCmd.Flags().StringVar(&feedFinger, "finger", "", "set finger presence: on or off")
}

var retryCodes = map[string]device.RetryCode{
	"general":       device.RetryGeneral,
	"too-short":     device.RetryTooShort,
	"center-finger": device.RetryCenterFinger,
	"remove-finger": device.RetryRemoveFinger,
}

func runFeed(cmd *cobra.Command, args []string) error {
	socket := feedSocket
	if socket == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		socket = cfg.Virtual.Socket
	}
	if socket == "" {
		socket = config.Default().Virtual.Socket
	}

	c := virtual.NewClient(socket)
	defer c.Close()

	switch {
	case feedFinger != "":
		if feedFinger != "on" && feedFinger != "off" {
			return fmt.Errorf("--finger must be on or off, got %q", feedFinger)
		}
		return c.SetFingerPresent(feedFinger == "on")
	case feedRetry != "":
		code, ok := retryCodes[feedRetry]
		if !ok {
			return fmt.Errorf("unknown retry %q", feedRetry)
		}
		return c.FeedRetry(code)
	case len(args) == 1:
		img, err := virtual.LoadImage(args[0])
		if err != nil {
			return err
		}
		if err := c.Feed(img); err != nil {
			return err
		}
		fmt.Printf("Sent %dx%d image to %s\n", img.Width(), img.Height(), socket)
		return nil
	default:
		return fmt.Errorf("nothing to send: pass an image, --retry or --finger")
	}
}
