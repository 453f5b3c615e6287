package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// rssiCmd represents the rssi command
var rssiCmd = &cobra.Command{
	Use:   "rssi <device-address>",
	Short: "Read the signal strength of the link",
	Long: fmt.Sprintf(`Connects to a BLE device and reads the RSSI of the link in dBm.

Examples:
  # Read once
  gattsession rssi %s

  # Poll every 2 seconds, 5 samples
  gattsession rssi %s --watch 2s --count 5

  # Poll at the configured session.rssi_poll_period
  gattsession rssi %s --poll

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runRSSI,
}

var (
	rssiWatch time.Duration
	rssiPoll  bool
	rssiCount int
)

func init() {
	rssiCmd.Flags().DurationVar(&rssiWatch, "watch", 0, "Poll at interval (e.g., 1s)")
	rssiCmd.Flags().BoolVar(&rssiPoll, "poll", false, "Poll at the configured session.rssi_poll_period")
	rssiCmd.Flags().IntVar(&rssiCount, "count", 0, "Stop polling after N samples (0 = until interrupted)")
}

func runRSSI(cmd *cobra.Command, args []string) error {
	cs, err := openSession(cmd, args[0])
	if err != nil {
		return err
	}
	defer cs.Close()

	out := cmd.OutOrStdout()
	if rssiWatch <= 0 && !rssiPoll {
		rssi, err := cs.ReadRSSI().Await(cs.ctx)
		if err != nil {
			return fmt.Errorf("failed to read RSSI: %w", err)
		}
		fmt.Fprintf(out, "%d dBm\n", rssi)
		return nil
	}

	samples := cs.StartPollingRSSI(rssiWatch)
	defer cs.StopPollingRSSI()

	for n := 0; rssiCount == 0 || n < rssiCount; n++ {
		select {
		case rssi, ok := <-samples.C():
			if !ok {
				return ErrConnectionLost
			}
			fmt.Fprintf(out, "%d dBm\n", rssi)
		case <-cs.ctx.Done():
			return nil
		}
	}
	return nil
}
