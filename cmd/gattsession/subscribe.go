package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/gattsession/internal/device"
	"github.com/srg/gattsession/internal/session"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address> <char-uuid>",
	Short: "Subscribe to characteristic notifications",
	Long: fmt.Sprintf(`Subscribes to BLE characteristic notifications (or indications) and
outputs every received value, decoded when the characteristic is known.

Examples:
  # Subscribe to Battery Level updates
  gattsession subscribe %s 2a19

  # Stop after 10 updates, output as hex
  gattsession subscribe %s 2a19 --count 10 --hex

  # Stop after 30 seconds
  gattsession subscribe %s 2a19 --duration 30s

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(2),
	RunE: runSubscribe,
}

var (
	subscribeServiceUUID string
	subscribeHex         bool
	subscribeCount       int
	subscribeDuration    time.Duration
	subscribeTimeout     time.Duration
)

func init() {
	subscribeCmd.Flags().StringVar(&subscribeServiceUUID, "service", "", "Service UUID (required if characteristic UUID is ambiguous)")
	subscribeCmd.Flags().BoolVar(&subscribeHex, "hex", false, "Output raw bytes as hex instead of the decoded value")
	subscribeCmd.Flags().IntVar(&subscribeCount, "count", 0, "Stop after N updates (0 = until interrupted)")
	subscribeCmd.Flags().DurationVar(&subscribeDuration, "duration", 0, "Stop after the given time (0 = until interrupted)")
	subscribeCmd.Flags().DurationVar(&subscribeTimeout, "timeout", 0, "Subscribe/unsubscribe timeout (default: session operation timeout)")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	address, charUUID := args[0], args[1]
	if _, err := device.ValidateUUID(charUUID); err != nil {
		return err
	}

	cs, err := openSession(cmd, address)
	if err != nil {
		return err
	}
	defer cs.Close()

	char, err := cs.characteristic(subscribeServiceUUID, charUUID)
	if err != nil {
		return err
	}

	updates := char.Updates()
	defer updates.Close()
	if _, err := char.StartNotifying(subscribeTimeout).Await(cs.ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", char, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Subscribed to %s. Press Ctrl+C to stop...\n", char)

	stopped, err := streamUpdates(cs, char, updates, cmd.OutOrStdout())
	if err != nil || stopped {
		return err
	}

	if _, err := char.StopNotifying(subscribeTimeout).Await(cs.ctx); err != nil {
		cs.logger.WithError(err).Warn("Failed to unsubscribe")
	}
	return nil
}

// streamUpdates prints updates until the count or duration is reached or the
// command is interrupted. stopped is true when the stream ended on its own.
func streamUpdates(cs *commandSession, char *session.CharacteristicCoordinator, updates *session.Stream[[]byte], w io.Writer) (stopped bool, err error) {
	var deadline <-chan time.Time
	if subscribeDuration > 0 {
		timer := time.NewTimer(subscribeDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	prefix := color.New(color.FgHiBlack)
	if !isTerminal(w) {
		prefix.DisableColor()
	}

	received := 0
	for {
		select {
		case data, ok := <-updates.C():
			if !ok {
				if cs.State().State != session.StateConnected {
					return true, ErrConnectionLost
				}
				return true, nil
			}
			received++
			fmt.Fprintf(w, "%s%s\n", prefix.Sprintf("[%d] ", received), formatValue(char, data, subscribeHex))
			if subscribeCount > 0 && received >= subscribeCount {
				return false, nil
			}
		case <-deadline:
			return false, nil
		case <-cs.ctx.Done():
			return false, nil
		}
	}
}
