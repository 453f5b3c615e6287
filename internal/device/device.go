package device

import "fmt"

// Peripheral identifies a remote peripheral: an opaque adapter handle (usually
// the device address) plus a display name.
type Peripheral struct {
	ID   string
	Name string
}

func (p Peripheral) String() string {
	if p.Name == "" || p.Name == p.ID {
		return p.ID
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.ID)
}

// ServiceInfo describes a discovered GATT service.
type ServiceInfo struct {
	UUID string // normalized

	// Handle is adapter-private state (e.g. the library's service object) that
	// the adapter needs to address the service again. The session never inspects it.
	Handle any
}

// CharacteristicInfo describes a discovered GATT characteristic.
type CharacteristicInfo struct {
	UUID        string // normalized
	ServiceUUID string // normalized UUID of the owning service
	Properties  Properties

	// Handle is adapter-private state, see ServiceInfo.Handle.
	Handle any
}

// Key returns the registry key of the characteristic: "<service>/<characteristic>".
func (c CharacteristicInfo) Key() string {
	return CharacteristicKey(c.ServiceUUID, c.UUID)
}

// CharacteristicKey builds the registry key for a service/characteristic pair.
// Both UUIDs are normalized.
func CharacteristicKey(serviceUUID, charUUID string) string {
	return NormalizeUUID(serviceUUID) + "/" + NormalizeUUID(charUUID)
}

// LinkHandler receives the asynchronous link-level events of one connection attempt.
// An adapter must invoke exactly one of Connected or Failed per Connect call, and
// Disconnected once an established (or cancelled) link is gone. ValueUpdated
// carries unsolicited notification/indication payloads.
//
// Handlers may be invoked from any goroutine.
type LinkHandler struct {
	Connected    func()
	Failed       func(err error)
	Disconnected func(err error)
	ValueUpdated func(char CharacteristicInfo, data []byte)
}

// Adapter is the hardware boundary. Every method returns immediately; results
// arrive later through the supplied callbacks, which may run on any goroutine.
// Implementations must invoke each done callback at most once.
type Adapter interface {
	Connect(p Peripheral, h LinkHandler)
	Disconnect(p Peripheral)

	DiscoverServices(p Peripheral, filter []string, done func([]ServiceInfo, error))
	DiscoverCharacteristics(p Peripheral, service ServiceInfo, filter []string, done func([]CharacteristicInfo, error))

	ReadValue(p Peripheral, char CharacteristicInfo, done func([]byte, error))
	WriteValue(p Peripheral, char CharacteristicInfo, data []byte, withResponse bool, done func(error))
	SetNotify(p Peripheral, char CharacteristicInfo, enabled bool, done func(error))

	ReadRSSI(p Peripheral, done func(int, error))
}
