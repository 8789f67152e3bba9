package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/phinze/fpdeck/internal/config"
	"github.com/phinze/fpdeck/internal/storage"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup: write config and store secrets in Keychain",
	RunE:  runSetup,
}

func runSetup(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("=== fpdeck Setup ===")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}

	fmt.Println("-- Storage --")
	cfg.Storage.Backend = prompt(reader, "Backend (file or postgres)", cfg.Storage.Backend)
	switch cfg.Storage.Backend {
	case config.BackendFile:
		cfg.Storage.Dir = prompt(reader, "Print directory", cfg.Storage.Dir)
		if promptYes(reader, "Encrypt stored prints", cfg.Storage.SealKey == "") {
			key, err := storage.GenerateKey()
			if err != nil {
				return err
			}
			if err := config.SetKeychainSecret(config.KeyStorageKey, key); err != nil {
				return fmt.Errorf("storing seal key in Keychain: %w", err)
			}
			fmt.Println("  -> New seal key stored in Keychain")
			if cfg.Storage.SealKey != "" {
				fmt.Println("  -> Prints sealed with the old key can no longer be read")
			}
		}
	case config.BackendPostgres:
		cfg.Storage.DSN = prompt(reader, "Postgres DSN", cfg.Storage.DSN)
		password := promptSecret(reader, "Postgres password", cfg.Storage.PostgresPassword != "")
		if password != "" {
			if err := config.SetKeychainSecret(config.KeyPostgresPassword, password); err != nil {
				return fmt.Errorf("storing password in Keychain: %w", err)
			}
			fmt.Println("  -> Stored in Keychain")
		} else {
			fmt.Println("  -> Kept existing")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	fmt.Println()

	fmt.Println("-- Virtual sensor --")
	cfg.Virtual.Socket = prompt(reader, "Socket path", cfg.Virtual.Socket)
	stages, err := strconv.Atoi(prompt(reader, "Enroll stages", strconv.Itoa(cfg.Virtual.EnrollStages)))
	if err != nil {
		return fmt.Errorf("enroll stages: %w", err)
	}
	cfg.Virtual.EnrollStages = stages
	fmt.Println()

	fmt.Println("-- HTTP API --")
	cfg.Server.Listen = prompt(reader, "Listen address", cfg.Server.Listen)
	fmt.Println()

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.WriteConfigFile(cfg); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	fmt.Printf("Config written to %s\n", config.DefaultConfigPath())
	fmt.Println("Setup complete!")
	return nil
}

// prompt asks for a value with an optional default.
func prompt(reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("  %s: ", label)
	}
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultVal
	}
	return line
}

// promptSecret asks for a secret value. If one already exists, allows keeping it.
func promptSecret(reader *bufio.Reader, label string, hasExisting bool) string {
	if hasExisting {
		fmt.Printf("  %s [press Enter to keep existing]: ", label)
	} else {
		fmt.Printf("  %s: ", label)
	}
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func promptYes(reader *bufio.Reader, label string, def bool) bool {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Printf("  %s [%s]: ", label, hint)
	line, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	return def
}
