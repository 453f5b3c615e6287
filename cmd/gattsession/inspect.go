package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/gattsession/internal/device"
	"github.com/srg/gattsession/internal/session"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <device-address>",
	Short: "Inspect services and characteristics of a BLE device",
	Long: fmt.Sprintf(`Connects to a BLE device by address and discovers its services and
characteristics. With --read, readable characteristics are read and decoded.

Examples:
  # Print the GATT table
  gattsession inspect %s

  # Include decoded values of readable characteristics
  gattsession inspect %s --read

  # Output as JSON
  gattsession inspect %s --json

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectJSON        bool
	inspectRead        bool
	inspectReadTimeout time.Duration
)

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output as JSON")
	inspectCmd.Flags().BoolVar(&inspectRead, "read", false, "Read and decode readable characteristics")
	inspectCmd.Flags().DurationVar(&inspectReadTimeout, "timeout", 0, "Per-read timeout (default: session operation timeout)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	cs, err := openSession(cmd, args[0])
	if err != nil {
		return err
	}
	defer cs.Close()

	result := cs.Services()
	values := map[string]map[string]string{}
	if inspectRead {
		values = readAll(cs)
	}

	out := cmd.OutOrStdout()
	if inspectJSON {
		return writeInspectJSON(out, result, values)
	}
	writeInspectText(out, result, values, isTerminal(out))
	return nil
}

// readAll reads every readable characteristic; failures are logged and skipped.
func readAll(cs *commandSession) map[string]map[string]string {
	values := make(map[string]map[string]string)
	for _, c := range cs.Characteristics() {
		if !c.CanRead() {
			continue
		}
		data, err := c.Read(inspectReadTimeout).Await(cs.ctx)
		if err != nil {
			cs.logger.WithError(err).WithField("char_uuid", c.UUID()).Warn("Failed to read characteristic")
			continue
		}
		decoded, err := c.StringValue(data)
		if err != nil {
			decoded = map[string]string{"raw": formatHex(data)}
		}
		values[device.CharacteristicKey(c.ServiceUUID(), c.UUID())] = decoded
	}
	return values
}

func writeInspectText(w io.Writer, result *session.DiscoveryResult, values map[string]map[string]string, colored bool) {
	svcColor := color.New(color.FgCyan, color.Bold)
	charColor := color.New(color.FgGreen)
	if !colored {
		svcColor.DisableColor()
		charColor.DisableColor()
	}

	fmt.Fprintf(w, "Services: %d, characteristics: %d\n", result.Len(), result.CharacteristicCount())
	for _, svc := range result.Services() {
		fmt.Fprintf(w, "%s\n", svcColor.Sprint("Service "+labeled(svc.UUID(), svc.Name)))
		for _, ch := range svc.Characteristics() {
			line := fmt.Sprintf("  Characteristic %s [%s]",
				labeled(ch.UUID, result.CharacteristicName(ch.UUID)),
				strings.Join(ch.Properties.Names(), ", "))
			fmt.Fprintln(w, charColor.Sprint(line))
			if v, ok := values[ch.Key()]; ok {
				fmt.Fprintf(w, "    Value: %s\n", formatFields(v))
			}
		}
	}
}

func writeInspectJSON(w io.Writer, result *session.DiscoveryResult, values map[string]map[string]string) error {
	if len(values) == 0 {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	// decorate the tree with values
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	var services []map[string]any
	if err := json.Unmarshal(raw, &services); err != nil {
		return err
	}
	for _, svc := range services {
		chars, _ := svc["characteristics"].([]any)
		for _, c := range chars {
			ch, _ := c.(map[string]any)
			key := device.CharacteristicKey(fmt.Sprint(svc["uuid"]), fmt.Sprint(ch["uuid"]))
			if v, ok := values[key]; ok {
				ch["value"] = v
			}
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(services)
}

func labeled(uuid, name string) string {
	if name == "" {
		return uuid
	}
	return fmt.Sprintf("%s (%s)", uuid, name)
}

// formatFields renders a decoded value: a lone field as its value, several
// as sorted key=value pairs.
func formatFields(v map[string]string) string {
	if len(v) == 1 {
		for _, s := range v {
			return s
		}
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+v[k])
	}
	return strings.Join(parts, " ")
}
