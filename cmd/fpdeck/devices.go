package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the fingerprint devices fpdeck knows about",
	RunE:  runDevices,
}

func runDevices(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	statuses := a.coord.Statuses()
	if ok, err := outputJSON(statuses); ok {
		return err
	}
	for _, s := range statuses {
		fmt.Printf("%s\t%s\n", s.ID, s.Name)
		fmt.Printf("  state: %s, enroll stages: %d\n", s.State, s.EnrollStages)
		fmt.Printf("  identify: %t, capture: %t, storage: %t\n", s.SupportsIdentify, s.SupportsCapture, s.HasStorage)
	}
	return nil
}
