package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertiesCapabilities(t *testing.T) {
	tests := []struct {
		name      string
		props     Properties
		canRead   bool
		canWrite  bool
		canNotify bool
	}{
		{name: "read only", props: PropRead, canRead: true},
		{name: "write only", props: PropWrite, canWrite: true},
		{name: "write without response only", props: PropWriteWithoutResponse, canWrite: true},
		{name: "notify only", props: PropNotify, canNotify: true},
		{name: "indicate only", props: PropIndicate, canNotify: true},
		{name: "read notify", props: PropRead | PropNotify, canRead: true, canNotify: true},
		{name: "none", props: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.canRead, tt.props.CanRead(), "CanRead MUST match")
			assert.Equal(t, tt.canWrite, tt.props.CanWrite(), "CanWrite MUST match")
			assert.Equal(t, tt.canNotify, tt.props.CanNotify(), "CanNotify MUST match")
		})
	}
}

func TestPropertiesBitValues(t *testing.T) {
	// GATT characteristic properties field layout
	assert.Equal(t, Properties(0x02), PropRead)
	assert.Equal(t, Properties(0x04), PropWriteWithoutResponse)
	assert.Equal(t, Properties(0x08), PropWrite)
	assert.Equal(t, Properties(0x10), PropNotify)
	assert.Equal(t, Properties(0x20), PropIndicate)
}

func TestParseProperties(t *testing.T) {
	props, err := ParseProperties("read, Notify,write-nr")
	require.NoError(t, err)
	assert.Equal(t, PropRead|PropNotify|PropWriteWithoutResponse, props)
	assert.Equal(t, "read,write-without-response,notify", props.String(), "String MUST list bits in bit order")

	empty, err := ParseProperties("")
	require.NoError(t, err)
	assert.Equal(t, "none", empty.String())

	_, err = ParseProperties("read,teleport")
	assert.ErrorContains(t, err, "teleport")
}
