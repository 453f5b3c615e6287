package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// 16-bit UUID formats
		{name: "16-bit UUID lowercase", input: "2902", expected: "2902"},
		{name: "16-bit UUID uppercase", input: "2A19", expected: "2a19"},
		{name: "16-bit UUID with 0x prefix", input: "0x2902", expected: "2902"},
		{name: "16-bit UUID with 0X prefix", input: "0X2902", expected: "2902"},
		{name: "16-bit UUID with surrounding spaces", input: "  180f ", expected: "180f"},

		// 32-bit form
		{name: "32-bit UUID with zero prefix", input: "0000180d", expected: "180d"},
		{name: "32-bit UUID non-zero prefix", input: "1234180d", expected: "1234180d"},

		// Bluetooth SIG base UUID format (should extract 16-bit form)
		{name: "Full SIG UUID with dashes", input: "0000180f-0000-1000-8000-00805f9b34fb", expected: "180f"},
		{name: "Full SIG UUID without dashes", input: "0000290200001000800000805f9b34fb", expected: "2902"},
		{name: "Full SIG UUID uppercase", input: "00002A19-0000-1000-8000-00805F9B34FB", expected: "2a19"},

		// Custom 128-bit UUIDs (should NOT be shortened)
		{name: "Vendor UUID", input: "F000AA11-0451-4000-B000-000000000000", expected: "f000aa1104514000b000000000000000"},
		{name: "Custom UUID wrong prefix", input: "AA002902-0000-1000-8000-00805f9b34fb", expected: "aa00290200001000800000805f9b34fb"},

		// Invalid
		{name: "empty", input: "", expected: ""},
		{name: "non hex", input: "zz19", expected: ""},
		{name: "odd length", input: "2a191", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input), "NormalizeUUID(%q) MUST normalize", tt.input)
		})
	}
}

func TestNormalizeUUIDs(t *testing.T) {
	assert.Nil(t, NormalizeUUIDs(nil), "nil input MUST stay nil")
	assert.Equal(t, []string{"180f", "2a19"}, NormalizeUUIDs([]string{"180F", "bogus!", "0x2A19"}), "invalid entries MUST be dropped")
}

func TestValidateUUID(t *testing.T) {
	got, err := ValidateUUID("180F", "0000180d-0000-1000-8000-00805f9b34fb")
	require.NoError(t, err)
	assert.Equal(t, []string{"180f", "180d"}, got)

	_, err = ValidateUUID()
	assert.Error(t, err, "MUST reject empty argument list")

	_, err = ValidateUUID("180f", "")
	assert.ErrorContains(t, err, "index 1")

	_, err = ValidateUUID("xyz")
	assert.ErrorContains(t, err, "invalid UUID format")
}

func TestShortenUUID(t *testing.T) {
	assert.Equal(t, "180f", ShortenUUID("180f"))
	assert.Equal(t, "f000aa11", ShortenUUID("f000aa1104514000b000000000000000"))
}

func TestCharacteristicKey(t *testing.T) {
	assert.Equal(t, "180f/2a19", CharacteristicKey("0x180F", "00002a19-0000-1000-8000-00805f9b34fb"))
	info := CharacteristicInfo{UUID: "2a19", ServiceUUID: "180f"}
	assert.Equal(t, "180f/2a19", info.Key())
}
