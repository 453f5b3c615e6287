package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/gattsession/internal/device"
	"github.com/srg/gattsession/internal/session"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <char-uuid> <data>",
	Short: "Write a characteristic value",
	Long: fmt.Sprintf(`Writes data to a BLE characteristic.

Data is sent as the literal string by default. Use --hex for binary payloads
or --fields to encode named values through the characteristic's profile.

Examples:
  # Write a string
  gattsession write %s ffe1 "hello"

  # Write hex bytes, separators are ignored
  gattsession write %s ffe1 "01:02:ff" --hex

  # Enable the SensorTag accelerometer through its profile
  gattsession write %s f000aa12-0451-4000-b000-000000000000 "Yes" --fields

  # Write without waiting for an acknowledgement
  gattsession write %s ffe1 "ping" --without-response

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(3),
	RunE: runWrite,
}

var (
	writeServiceUUID string
	writeHex         bool
	writeFields      bool
	writeNoResponse  bool
	writeTimeout     time.Duration
)

func init() {
	writeCmd.Flags().StringVar(&writeServiceUUID, "service", "", "Service UUID (required if characteristic UUID is ambiguous)")
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Parse input as hex string (e.g., 'FF01')")
	writeCmd.Flags().BoolVar(&writeFields, "fields", false, "Encode input through the characteristic profile: a value, or key=value pairs separated by commas")
	writeCmd.Flags().BoolVar(&writeNoResponse, "without-response", false, "Write without response (faster, no ACK)")
	writeCmd.Flags().DurationVar(&writeTimeout, "timeout", 0, "Write timeout (default: session operation timeout)")
}

func runWrite(cmd *cobra.Command, args []string) error {
	address, charUUID, dataStr := args[0], args[1], args[2]
	if _, err := device.ValidateUUID(charUUID); err != nil {
		return err
	}
	if writeHex && writeFields {
		return fmt.Errorf("--hex and --fields are mutually exclusive")
	}

	var data []byte
	if !writeFields {
		var err error
		if data, err = parseWriteData(dataStr); err != nil {
			return err
		}
	}

	cs, err := openSession(cmd, address)
	if err != nil {
		return err
	}
	defer cs.Close()

	char, err := cs.characteristic(writeServiceUUID, charUUID)
	if err != nil {
		return err
	}

	var f *session.Future[struct{}]
	switch {
	case writeFields:
		f = char.WriteString(parseFields(char, dataStr), writeTimeout)
	case writeNoResponse:
		f = char.WriteWithoutResponse(data, writeTimeout)
	default:
		f = char.Write(data, writeTimeout)
	}
	if _, err := f.Await(cs.ctx); err != nil {
		return fmt.Errorf("failed to write to %s: %w", char, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote to %s\n", char)
	return nil
}

// parseWriteData decodes the data argument according to --hex.
func parseWriteData(dataStr string) ([]byte, error) {
	if writeHex {
		// Remove spaces and common separators
		cleaned := strings.ReplaceAll(dataStr, " ", "")
		cleaned = strings.ReplaceAll(cleaned, ":", "")
		cleaned = strings.ReplaceAll(cleaned, "-", "")
		cleaned = strings.ReplaceAll(cleaned, "0x", "")

		data, err := hex.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("invalid hex data: %w", err)
		}
		return data, nil
	}

	return []byte(dataStr), nil
}

// parseFields turns "k=v,k2=v2" into a field map. Input without '=' is a
// single value keyed by the characteristic name.
func parseFields(char *session.CharacteristicCoordinator, s string) map[string]string {
	if !strings.Contains(s, "=") {
		key := char.Name()
		if key == "" {
			key = char.UUID()
		}
		return map[string]string{key: s}
	}
	fields := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, _ := strings.Cut(pair, "=")
		fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return fields
}
