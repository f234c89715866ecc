package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blegatt/internal/device"
	"github.com/srg/blegatt/internal/events"
	"github.com/srg/blegatt/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Runs one discovery window and prints every named device the first time it is seen.

The window ends after --duration (default from the config file, 3s), on a platform
scan failure, or on Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanServices  []string
	scanAllowList []string
	scanBlockList []string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan window; 0 uses scan_timeout from the config")
	scanCmd.Flags().StringSliceVarP(&scanServices, "service", "s", nil, "Only show devices advertising one of these service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
}

func runScan(cmd *cobra.Command, _ []string) error {
	var serviceUUIDs []string
	if len(scanServices) > 0 {
		var err error
		serviceUUIDs, err = device.ValidateUUID(scanServices...)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	cfg, b, logger, err := openBindings(cmd)
	if err != nil {
		return err
	}

	duration := cfg.ScanTimeout
	if scanDuration > 0 {
		duration = scanDuration
	}

	ch := make(chan events.Event, 64)
	s, err := scanner.New(b.Scanner, events.Chan(ch), logger, scanner.WithOptions(&scanner.ScanOptions{
		ServiceUUIDs: serviceUUIDs,
		AllowList:    toAddresses(scanAllowList),
		BlockList:    toAddresses(scanBlockList),
	}))
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Start(duration); err != nil {
		return err
	}
	defer s.Stop()

	return collectScan(ctx, ch, cmd.OutOrStdout(), logger)
}

// collectScan prints scan events until the window closes.
func collectScan(ctx context.Context, ch <-chan events.Event, w io.Writer, logger *logrus.Logger) error {
	found := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w, "\nCtrl+C pressed, cancelling scan...")
			return ctx.Err()

		case ev := <-ch:
			switch ev.Type {
			case events.DeviceFound:
				found++
				printPeer(w, ev.Peer)
			case events.ScanStopped:
				if found == 0 {
					fmt.Fprintln(w, "No devices discovered")
				}
				return nil
			case events.ScanError:
				logger.WithError(ev.Err).Debug("Scan ended with an error")
				return fmt.Errorf("scan failed: %w", ev.Err)
			}
		}
	}
}

var (
	nameColor    = color.New(color.FgHiWhite, color.Bold)
	addressColor = color.New(color.FgCyan)
	rssiColor    = color.New(color.FgYellow)
	serviceColor = color.New(color.FgHiBlack)
)

// printPeer writes one discovered device on a single line.
func printPeer(w io.Writer, p device.Peer) {
	name := p.Name
	if len(name) > 24 {
		name = name[:21] + "..."
	}
	nameColor.Fprintf(w, "%-24s", name)
	fmt.Fprint(w, "  ")
	addressColor.Fprint(w, p.Address)
	fmt.Fprint(w, "  ")
	rssiColor.Fprintf(w, "%4d dBm", p.RSSI)
	if len(p.Services) > 0 {
		fmt.Fprint(w, "  ")
		serviceColor.Fprint(w, strings.Join(p.Services, ","))
	}
	fmt.Fprintln(w)
}

func toAddresses(list []string) []device.PeerAddress {
	if len(list) == 0 {
		return nil
	}
	out := make([]device.PeerAddress, 0, len(list))
	for _, a := range list {
		out = append(out, device.PeerAddress(strings.TrimSpace(a)))
	}
	return out
}
