package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/phinze/fpdeck/internal/config"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check config, secrets, storage and device health",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("=== fpdeck Status ===")
	fmt.Println()

	allOK := true

	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	fmt.Printf("Config file: %s\n", path)
	if _, err := os.Stat(path); err == nil {
		fmt.Println("  Status: found")
	} else {
		fmt.Println("  Status: not found, using defaults")
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  Load error: %v\n", err)
		fmt.Println()
		fmt.Println("Some checks failed. Run 'fpdeck setup' to configure.")
		return nil
	}
	fmt.Println()

	fmt.Println("Storage:")
	fmt.Printf("  Backend: %s\n", cfg.Storage.Backend)
	switch cfg.Storage.Backend {
	case config.BackendFile:
		fmt.Printf("  Directory: %s\n", cfg.Storage.Dir)
		if _, err := config.GetKeychainSecret(config.KeyStorageKey); err == nil {
			fmt.Println("  Seal key (Keychain): set")
		} else {
			fmt.Println("  Seal key: NOT SET (prints stored unencrypted)")
		}
	case config.BackendPostgres:
		if _, err := config.GetKeychainSecret(config.KeyPostgresPassword); err == nil {
			fmt.Println("  Password (Keychain): set")
		} else {
			fmt.Println("  Password (Keychain): not set")
		}
	}

	a, err := newApp()
	if err != nil {
		fmt.Printf("  Open error: %v\n", err)
		allOK = false
	}
	fmt.Println()

	if a != nil {
		defer a.Close()

		fmt.Println("Devices:")
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		for _, d := range a.coord.Devices() {
			fmt.Printf("  %s (%s)\n", d.ID(), d.Info().Name)
			if err := d.Open(ctx); err != nil {
				fmt.Printf("    Open: FAILED (%v)\n", err)
				allOK = false
				continue
			}
			fmt.Println("    Open: ok")

			info := d.Info()
			prints, err := a.store.List(ctx, info.Driver, info.DeviceID)
			if err != nil {
				fmt.Printf("    Prints: FAILED (%v)\n", err)
				allOK = false
			} else {
				fmt.Printf("    Prints: %d enrolled\n", len(prints))
			}
			_ = d.Close(ctx)
		}
		fmt.Println()
	}

	if allOK {
		fmt.Println("All checks passed.")
	} else {
		fmt.Println("Some checks failed. Run 'fpdeck setup' to configure.")
	}
	return nil
}
