package main

import (
	"errors"
	"fmt"

	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/print"
	"github.com/phinze/fpdeck/internal/storage"
	"github.com/spf13/cobra"
)

var listOnDevice bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled prints",
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <user> <finger>",
	Short: "Delete an enrolled print from the store and the device",
	Args:  cobra.ExactArgs(2),
	RunE:  runDelete,
}

func init() {
	listCmd.Flags().BoolVar(&listOnDevice, "on-device", false, "list the prints held in device storage instead of the host store")
}

type printSummary struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Finger       string `json:"finger"`
	Description  string `json:"description,omitempty"`
	EnrollDate   string `json:"enroll_date,omitempty"`
	DeviceStored bool   `json:"device_stored"`
}

func summaryOf(p *print.Print) printSummary {
	s := printSummary{
		ID:           p.ID,
		Username:     p.Username,
		Finger:       p.Finger.String(),
		Description:  p.Description,
		DeviceStored: p.DeviceStored,
	}
	if !p.EnrollDate.IsZero() {
		s.EnrollDate = p.EnrollDate.Format(print.DateFormat)
	}
	return s
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	var prints []*print.Print
	if listOnDevice {
		d, closeDevice, err := a.openDevice(ctx)
		if err != nil {
			return err
		}
		defer closeDevice()
		if prints, err = d.ListPrints(ctx); err != nil {
			return fmt.Errorf("listing device prints: %w", err)
		}
	} else {
		d, err := a.selected()
		if err != nil {
			return err
		}
		info := d.Info()
		if prints, err = a.store.List(ctx, info.Driver, info.DeviceID); err != nil {
			return err
		}
	}

	out := make([]printSummary, 0, len(prints))
	for _, p := range prints {
		out = append(out, summaryOf(p))
	}
	if ok, err := outputJSON(out); ok {
		return err
	}
	if len(out) == 0 {
		fmt.Println("No prints enrolled.")
		return nil
	}
	for _, s := range out {
		fmt.Printf("%-20s %-14s %s", s.Username, s.Finger, s.EnrollDate)
		if s.DeviceStored {
			fmt.Print(" [on device]")
		}
		if s.Description != "" {
			fmt.Printf("  %s", s.Description)
		}
		fmt.Println()
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	finger, err := print.ParseFinger(args[1])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	d, err := a.selected()
	if err != nil {
		return err
	}
	info := d.Info()
	key := storage.Key{Driver: info.Driver, DeviceID: info.DeviceID, Username: args[0], Finger: finger}
	p, err := a.store.Load(ctx, key)
	if err != nil {
		return err
	}

	if p.DeviceStored {
		d, closeDevice, err := a.openDevice(ctx)
		if err != nil {
			return err
		}
		err = d.DeletePrint(ctx, p)
		closeDevice()
		if err != nil && !errors.Is(err, device.ErrDataNotFound) {
			return fmt.Errorf("deleting from device: %w", err)
		}
	}
	if err := a.store.Delete(ctx, key); err != nil {
		return err
	}
	fmt.Printf("Deleted %s's %s\n", key.Username, finger)
	return nil
}
