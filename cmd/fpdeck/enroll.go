package main

import (
	"fmt"

	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/print"
	"github.com/spf13/cobra"
)

var (
	enrollFinger      string
	enrollUser        string
	enrollDescription string
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a finger and save the print",
	RunE:  runEnroll,
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollFinger, "finger", "f", "right-index", "finger to enroll")
	enrollCmd.Flags().StringVarP(&enrollUser, "user", "u", "", "user the print belongs to (required)")
	enrollCmd.Flags().StringVar(&enrollDescription, "description", "", "free-form description")
	_ = enrollCmd.MarkFlagRequired("user")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	finger, err := print.ParseFinger(enrollFinger)
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

	template := print.NewTemplate(finger, enrollUser)
	template.Description = enrollDescription

	stages := d.Info().EnrollStages
	fmt.Printf("Enrolling %s for %s: scan your finger %d times.\n", finger, enrollUser, stages)
	p, err := d.Enroll(ctx, template, func(_ *device.Device, completed int, _ *print.Print, retry *device.RetryError) {
		if retry != nil {
			fmt.Printf("  retry: %s\n", retry.Error())
			return
		}
		fmt.Printf("  stage %d/%d done\n", completed, stages)
	})
	if err != nil {
		return fmt.Errorf("enrolling: %w", err)
	}

	if err := a.store.Save(ctx, p); err != nil {
		return err
	}
	if ok, err := outputJSON(summaryOf(p)); ok {
		return err
	}
	fmt.Printf("Enrolled %s\n", p)
	return nil
}
