package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

var rootCmd = &cobra.Command{
	Use:   "blegatt",
	Short: "BLE scanner and GATT session tool",
	Long: `Bluetooth Low Energy (BLE) command-line tool that provides:

- Timed scans reporting each named device once per window
- A GATT session that connects, discovers services and binds a read and a write endpoint
- Streaming of notifications to stdout and of stdin to the write endpoint

Ideal for talking to serial-over-BLE firmware such as Nordic UART.`,
	Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(connectCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	flags.Bool("verbose", false, "Shortcut for --log-level debug")
	flags.String("backend", "", "BLE binding (go-ble, tinygo); overrides the config file")
	flags.Bool("no-color", false, "Disable colored output")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
