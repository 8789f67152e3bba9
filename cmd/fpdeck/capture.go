package main

import (
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"
)

var (
	captureOut  string
	captureWait bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a raw image from the sensor and save it as PNG",
	RunE:  runCapture,
}

func init() {
	captureCmd.Flags().StringVarP(&captureOut, "out", "o", "capture.png", "output PNG file")
	captureCmd.Flags().BoolVar(&captureWait, "wait", true, "wait for a finger before capturing")
}

func runCapture(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	d, closeDevice, err := a.openDevice(ctx)
	if err != nil {
		return err
	}
	defer closeDevice()

	if captureWait {
		fmt.Println("Place your finger on the sensor...")
	}
	img, err := d.Capture(ctx, captureWait)
	if err != nil {
		return fmt.Errorf("capturing: %w", err)
	}

	f, err := os.Create(captureOut)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, img.Gray()); err != nil {
		return fmt.Errorf("encoding %s: %w", captureOut, err)
	}
	fmt.Printf("Saved %dx%d image to %s\n", img.Width(), img.Height(), captureOut)
	return f.Close()
}
