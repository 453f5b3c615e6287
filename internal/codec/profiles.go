package codec

import "github.com/srg/gattsession/internal/device"

// Well-known GATT UUIDs (16-bit short form, normalized)
const (
	ServiceDeviceInformation = "180a"
	ServiceBattery           = "180f"
	ServiceTxPower           = "1804"

	CharModelNumber      = "2a24"
	CharSerialNumber     = "2a25"
	CharFirmwareRevision = "2a26"
	CharHardwareRevision = "2a27"
	CharSoftwareRevision = "2a28"
	CharManufacturerName = "2a29"
	CharBatteryLevel     = "2a19"
	CharTxPowerLevel     = "2a07"
)

// TI SensorTag UUIDs
const (
	ServiceTIAccelerometer     = "f000aa1004514000b000000000000000"
	CharTIAccelerometerData    = "f000aa1104514000b000000000000000"
	CharTIAccelerometerEnabled = "f000aa1204514000b000000000000000"
	CharTIAccelerometerPeriod  = "f000aa1304514000b000000000000000"

	ServiceTIMagnetometer     = "f000aa3004514000b000000000000000"
	CharTIMagnetometerData    = "f000aa3104514000b000000000000000"
	CharTIMagnetometerEnabled = "f000aa3204514000b000000000000000"
	CharTIMagnetometerPeriod  = "f000aa3304514000b000000000000000"
)

// EnabledEnum is the No/Yes switch used by sensor configuration characteristics.
var EnabledEnum = Enum(EnumValue{Value: 0, Label: "No"}, EnumValue{Value: 1, Label: "Yes"})

// SIGProfiles covers the Bluetooth SIG services the session knows by name.
var SIGProfiles = []ServiceDefinition{
	{
		ServiceProfile: ServiceProfile{UUID: ServiceDeviceInformation, Name: "Device Information"},
		Characteristics: []Profile{
			{UUID: CharModelNumber, Name: "Device Model Number", Properties: device.PropRead, Codec: String, Initial: []byte("Model A")},
			{UUID: CharSerialNumber, Name: "Device Serial Number", Properties: device.PropRead, Codec: String, Initial: []byte("AAA11")},
			{UUID: CharFirmwareRevision, Name: "Device Firmware Revision", Properties: device.PropRead, Codec: String, Initial: []byte("1.0")},
			{UUID: CharHardwareRevision, Name: "Device Hardware Revision", Properties: device.PropRead, Codec: String, Initial: []byte("1.0")},
			{UUID: CharSoftwareRevision, Name: "Device Software Revision", Properties: device.PropRead, Codec: String, Initial: []byte("1.0")},
			{UUID: CharManufacturerName, Name: "Device Manufacturer Name", Properties: device.PropRead, Codec: String, Initial: []byte("gnos.us")},
		},
	},
	{
		ServiceProfile: ServiceProfile{UUID: ServiceBattery, Name: "Battery"},
		Characteristics: []Profile{
			{UUID: CharBatteryLevel, Name: "Battery Level", Properties: device.PropRead | device.PropNotify, Codec: Uint8, Initial: []byte{100}},
		},
	},
	{
		ServiceProfile: ServiceProfile{UUID: ServiceTxPower, Name: "Tx Power Level"},
		Characteristics: []Profile{
			{UUID: CharTxPowerLevel, Name: "Tx Power Level", Properties: device.PropRead | device.PropNotify, Codec: Int8, Initial: []byte{0xd8}}, // -40 dBm
		},
	},
}

// TISensorTagProfiles covers the raw shapes of the SensorTag motion services.
var TISensorTagProfiles = []ServiceDefinition{
	{
		ServiceProfile: ServiceProfile{UUID: ServiceTIAccelerometer, Name: "TI Accelerometer"},
		Characteristics: []Profile{
			{UUID: CharTIAccelerometerData, Name: "Accelerometer Data", Properties: device.PropRead | device.PropNotify,
				Codec: Int8Array("xRaw", "yRaw", "zRaw"), Initial: []byte{0xc0, 0x00, 0x40}},
			{UUID: CharTIAccelerometerEnabled, Name: "Accelerometer Enabled", Properties: device.PropRead | device.PropWrite,
				Codec: EnabledEnum, Initial: []byte{0}},
			{UUID: CharTIAccelerometerPeriod, Name: "Accelerometer Update Period", Properties: device.PropRead | device.PropWrite,
				Codec: Uint8, Initial: []byte{100}},
		},
	},
	{
		ServiceProfile: ServiceProfile{UUID: ServiceTIMagnetometer, Name: "TI Magnetometer"},
		Characteristics: []Profile{
			{UUID: CharTIMagnetometerData, Name: "Magnetometer Data", Properties: device.PropRead | device.PropNotify,
				Codec: Int16Array("xRaw", "yRaw", "zRaw"), Initial: []byte{0x79, 0xf7, 0x7c, 0x07, 0xe7, 0x04}},
			{UUID: CharTIMagnetometerEnabled, Name: "Magnetometer Enabled", Properties: device.PropRead | device.PropWrite,
				Codec: EnabledEnum, Initial: []byte{0}},
			{UUID: CharTIMagnetometerPeriod, Name: "Magnetometer Update Period", Properties: device.PropRead | device.PropWrite,
				Codec: Uint8, Initial: []byte{200}},
		},
	},
}
