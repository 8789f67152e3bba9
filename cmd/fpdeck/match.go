package main

import (
	"fmt"

	"github.com/phinze/fpdeck/internal/print"
	"github.com/phinze/fpdeck/internal/storage"
	"github.com/spf13/cobra"
)

var (
	verifyFinger string
	verifyUser   string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Scan a finger and check it against one enrolled print",
	RunE:  runVerify,
}

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Scan a finger and find it among all enrolled prints",
	RunE:  runIdentify,
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyFinger, "finger", "f", "right-index", "enrolled finger")
	verifyCmd.Flags().StringVarP(&verifyUser, "user", "u", "", "enrolled user (required)")
	_ = verifyCmd.MarkFlagRequired("user")
}

type matchOutput struct {
	Match bool          `json:"match"`
	Print *printSummary `json:"print,omitempty"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	finger, err := print.ParseFinger(verifyFinger)
	if err != nil {
		return err
	}

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

	info := d.Info()
	enrolled, err := a.store.Load(ctx, storage.Key{
		Driver:   info.Driver,
		DeviceID: info.DeviceID,
		Username: verifyUser,
		Finger:   finger,
	})
	if err != nil {
		return err
	}

	fmt.Println("Scan your finger...")
	ok, _, err := d.Verify(ctx, enrolled)
	if err != nil {
		return fmt.Errorf("verifying: %w", err)
	}
	return printMatch(ok, enrolled)
}

func runIdentify(cmd *cobra.Command, args []string) error {
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

	info := d.Info()
	gallery, err := a.store.List(ctx, info.Driver, info.DeviceID)
	if err != nil {
		return err
	}

	fmt.Println("Scan your finger...")
	match, _, err := d.Identify(ctx, gallery)
	if err != nil {
		return fmt.Errorf("identifying: %w", err)
	}
	return printMatch(match != nil, match)
}

func printMatch(ok bool, p *print.Print) error {
	out := matchOutput{Match: ok}
	if ok {
		s := summaryOf(p)
		out.Print = &s
	}
	if done, err := outputJSON(out); done {
		return err
	}
	if !ok {
		fmt.Println("No match.")
		return nil
	}
	fmt.Printf("Match: %s's %s\n", p.Username, p.Finger)
	return nil
}
