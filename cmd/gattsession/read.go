package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/gattsession/internal/device"
	"github.com/srg/gattsession/internal/session"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address> <char-uuid>",
	Short: "Read a characteristic value",
	Long: fmt.Sprintf(`Reads a BLE characteristic. Values of known characteristics are decoded
(e.g. Battery Level as a percentage); unknown ones are printed as hex.

Examples:
  # Read Battery Level characteristic
  gattsession read %s 2a19

  # Read with service disambiguation
  gattsession read %s 2a19 --service 180f

  # Output as hex
  gattsession read %s 2a19 --hex

  # Continuously read every 500ms
  gattsession read %s 2a19 --watch 500ms

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

var (
	readServiceUUID string
	readHex         bool
	readTimeout     time.Duration
	readWatch       time.Duration
	readCount       int
)

func init() {
	readCmd.Flags().StringVar(&readServiceUUID, "service", "", "Service UUID (required if characteristic UUID is ambiguous)")
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Output raw bytes as hex instead of the decoded value")
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 0, "Read timeout (default: session operation timeout)")
	readCmd.Flags().DurationVar(&readWatch, "watch", 0, "Continuously read at interval (e.g., 1s, 500ms)")
	readCmd.Flags().IntVar(&readCount, "count", 0, "Stop watching after N reads (0 = until interrupted)")
}

func runRead(cmd *cobra.Command, args []string) error {
	address, charUUID := args[0], args[1]
	if _, err := device.ValidateUUID(charUUID); err != nil {
		return err
	}

	cs, err := openSession(cmd, address)
	if err != nil {
		return err
	}
	defer cs.Close()

	char, err := cs.characteristic(readServiceUUID, charUUID)
	if err != nil {
		return err
	}
	if !char.CanRead() {
		return fmt.Errorf("%w: %s is not readable", device.ErrNotSupported, char)
	}

	if readWatch <= 0 {
		return performRead(cs, char, cmd.OutOrStdout())
	}
	return watchChar(cs, char, cmd.OutOrStdout())
}

// performRead reads the characteristic once and prints the value.
func performRead(cs *commandSession, char *session.CharacteristicCoordinator, w io.Writer) error {
	data, err := char.Read(readTimeout).Await(cs.ctx)
	if err != nil {
		return fmt.Errorf("failed to read characteristic: %w", err)
	}
	fmt.Fprintln(w, formatValue(char, data, readHex))
	return nil
}

// watchChar reads at the watch interval until interrupted, readCount reads
// are done or the link is lost.
func watchChar(cs *commandSession, char *session.CharacteristicCoordinator, w io.Writer) error {
	fmt.Fprintf(cs.cmd.ErrOrStderr(), "Watching %s (reading every %v). Press Ctrl+C to stop...\n", char, readWatch)

	ticker := time.NewTicker(readWatch)
	defer ticker.Stop()

	for n := 1; ; n++ {
		if err := performRead(cs, char, w); err != nil {
			if errors.Is(err, device.ErrDisconnected) {
				return ErrConnectionLost
			}
			if cs.ctx.Err() != nil {
				return nil
			}
			// Log other errors but continue watching
			cs.logger.WithError(err).Warn("Failed to read characteristic, continuing...")
		}
		if readCount > 0 && n >= readCount {
			return nil
		}

		select {
		case <-cs.ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// formatValue renders data decoded through the characteristic's codec, or as
// hex when asHex is set or decoding fails.
func formatValue(char *session.CharacteristicCoordinator, data []byte, asHex bool) string {
	if asHex {
		return formatHex(data)
	}
	v, err := char.StringValue(data)
	if err != nil {
		return formatHex(data)
	}
	return formatFields(v)
}

func formatHex(data []byte) string {
	return hex.EncodeToString(data)
}
