package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/gattsession/internal/session"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <device-address>",
	Short: "Hold a supervised connection and report link events",
	Long: fmt.Sprintf(`Connects to a BLE device and keeps the link up, reconnecting after
unexpected drops within the configured retry limits. Connection events are
reported as they happen; statistics are printed on exit.

Examples:
  # Stay connected until Ctrl+C
  gattsession connect %s

  # Stay connected for one minute
  gattsession connect %s --duration 1m

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

var (
	connectDuration time.Duration
	connectHistory  bool
)

func init() {
	connectCmd.Flags().DurationVar(&connectDuration, "duration", 0, "Disconnect after the given time (0 = until interrupted)")
	connectCmd.Flags().BoolVar(&connectHistory, "history", false, "Print the connection event history on exit")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cs, err := openSession(cmd, args[0])
	if err != nil {
		return err
	}
	defer cs.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connected to %s, %d services discovered\n", args[0], cs.Services().Len())

	var deadline <-chan time.Time
	if connectDuration > 0 {
		timer := time.NewTimer(connectDuration)
		defer timer.Stop()
		deadline = timer.C
	}
	select {
	case <-deadline:
	case <-cs.ctx.Done():
	}

	if _, err := cs.Disconnect().Await(cmd.Context()); err != nil {
		cs.logger.WithError(err).Warn("Disconnect did not complete cleanly")
	}

	printStats(out, cs.Stats())
	if connectHistory {
		for _, ev := range cs.History() {
			fmt.Fprintf(out, "  %s\n", ev)
		}
	}
	return nil
}

func printStats(w io.Writer, stats session.ConnectionStats) {
	fmt.Fprintf(w, "Connections: %d\n", stats.ConnectionCount)
	fmt.Fprintf(w, "Last link: %v\n", stats.Connected.Round(time.Second))
	fmt.Fprintf(w, "Total connected: %v\n", stats.TotalConnected.Round(time.Second))
}
