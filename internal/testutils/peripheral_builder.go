package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/gattsession/internal/device"
)

// CharacteristicConfig describes a simulated characteristic
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig describes a simulated service
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig is the GATT table of a simulated peripheral
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// ServiceInfos returns the services matching filter (all if empty), as an
// adapter would report them.
func (p *DeviceProfileConfig) ServiceInfos(filter []string) []device.ServiceInfo {
	want := make(map[string]bool, len(filter))
	for _, uuid := range filter {
		want[device.NormalizeUUID(uuid)] = true
	}
	var out []device.ServiceInfo
	for _, svc := range p.Services {
		uuid := device.NormalizeUUID(svc.UUID)
		if len(want) > 0 && !want[uuid] {
			continue
		}
		out = append(out, device.ServiceInfo{UUID: uuid})
	}
	return out
}

// CharacteristicInfos returns the characteristics of a service.
func (p *DeviceProfileConfig) CharacteristicInfos(serviceUUID string) []device.CharacteristicInfo {
	serviceUUID = device.NormalizeUUID(serviceUUID)
	for _, svc := range p.Services {
		if device.NormalizeUUID(svc.UUID) != serviceUUID {
			continue
		}
		out := make([]device.CharacteristicInfo, 0, len(svc.Characteristics))
		for _, c := range svc.Characteristics {
			out = append(out, device.CharacteristicInfo{
				UUID:        device.NormalizeUUID(c.UUID),
				ServiceUUID: serviceUUID,
				Properties:  parseCharacteristicProperties(c.Properties),
			})
		}
		return out
	}
	return nil
}

// parseCharacteristicProperties falls back to read,write,notify for empty or
// malformed property strings.
func parseCharacteristicProperties(props string) device.Properties {
	const fallback = device.PropRead | device.PropWrite | device.PropNotify
	if props == "" {
		return fallback
	}
	p, err := device.ParseProperties(props)
	if err != nil {
		return fallback
	}
	return p
}

// PeripheralBuilder builds a simulated peripheral, served by a FakeAdapter.
type PeripheralBuilder struct {
	profile DeviceProfileConfig
}

// NewPeripheralBuilder creates an empty peripheral builder
func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{
		profile: DeviceProfileConfig{
			Services: []ServiceConfig{},
		},
	}
}

// WithService adds a service to the profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID:            uuid,
		Characteristics: []CharacteristicConfig{},
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// FromJSON replaces the profile with a JSON description
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// Profile returns the configured GATT table
func (b *PeripheralBuilder) Profile() *DeviceProfileConfig {
	p := b.profile
	return &p
}

// Build returns a FakeAdapter that answers every request from the profile.
func (b *PeripheralBuilder) Build() *FakeAdapter {
	f := NewFakeAdapter()
	f.profile = b.Profile()
	for _, svc := range b.profile.Services {
		for _, c := range svc.Characteristics {
			if c.Value != nil {
				f.values[device.CharacteristicKey(svc.UUID, c.UUID)] = append([]byte(nil), c.Value...)
			}
		}
	}
	return f
}
