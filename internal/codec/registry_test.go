package codec

import (
	"testing"

	"github.com/srg/gattsession/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryLookups(t *testing.T) {
	r := DefaultRegistry()

	p, ok := r.Lookup("00002A19-0000-1000-8000-00805F9B34FB")
	require.True(t, ok, "battery level MUST be registered under its normalized UUID")
	assert.Equal(t, "Battery Level", p.Name)
	assert.Equal(t, ServiceBattery, p.ServiceUUID)
	assert.Equal(t, KindUint8, p.Codec.Kind)

	assert.Equal(t, "Device Information", r.ServiceName("0x180A"))
	assert.Equal(t, "TI Accelerometer", r.ServiceName("F000AA10-0451-4000-B000-000000000000"))
	assert.Equal(t, "", r.ServiceName("ffff"), "unknown services MUST have no name")
	assert.Equal(t, "", r.CharacteristicName("2a99"))
	assert.Equal(t, KindRaw, r.CodecFor("2a99").Kind, "unknown characteristics MUST fall back to Raw")
}

// Every registered profile that is both readable and writable MUST round-trip
// its initial value.
func TestDefaultRegistryRoundTripsWritableProfiles(t *testing.T) {
	r := DefaultRegistry()
	for _, table := range [][]ServiceDefinition{SIGProfiles, TISensorTagProfiles} {
		for _, def := range table {
			for _, p := range def.Characteristics {
				p := p
				t.Run(p.Name, func(t *testing.T) {
					v, err := r.Decode(p.UUID, p.Initial)
					require.NoError(t, err, "initial value MUST decode")

					encoded, err := r.Encode(p.UUID, v)
					require.NoError(t, err, "decoded value MUST encode")
					assert.Equal(t, p.Initial, encoded, "encode(decode(b)) MUST equal b")

					again, err := r.Decode(p.UUID, encoded)
					require.NoError(t, err)
					assert.Equal(t, v, again, "decode(encode(v)) MUST equal v")
				})
			}
		}
	}
}

func TestRegistryRegisterValidatesUUIDs(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(Profile{UUID: "not-a-uuid"}))
	assert.Error(t, r.RegisterService(ServiceDefinition{ServiceProfile: ServiceProfile{UUID: ""}}))

	require.NoError(t, r.Register(Profile{UUID: "0xFFE1", Name: "Custom", Codec: Uint16, Properties: device.PropRead}))
	assert.Equal(t, 1, r.Len())

	b, err := r.Encode("ffe1", 258)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 1}, b)
}

func TestRegistryStringValue(t *testing.T) {
	r := DefaultRegistry()

	m, err := r.StringValue(CharBatteryLevel, []byte{42})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Battery Level": "42"}, m)

	m, err = r.StringValue("2a99", []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"2a99": "0102"}, m, "unknown values MUST be keyed by UUID")

	b, err := r.FromString(CharTIAccelerometerEnabled, map[string]string{"Accelerometer Enabled": "Yes"})
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, b)
}
