package codec

import (
	"fmt"

	"github.com/cornelk/hashmap"
	"github.com/srg/gattsession/internal/device"
)

// Profile binds a codec and presentation metadata to a characteristic UUID.
type Profile struct {
	UUID        string
	ServiceUUID string
	Name        string
	Properties  device.Properties
	Codec       Codec
	Initial     []byte // value a simulated peripheral starts with
}

// ServiceProfile names a known service.
type ServiceProfile struct {
	UUID string
	Name string
}

// Registry maps characteristic UUIDs to profiles. It is safe for concurrent use.
// Characteristics without a profile use the Raw codec.
type Registry struct {
	profiles *hashmap.Map[string, *Profile]
	services *hashmap.Map[string, *ServiceProfile]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		profiles: hashmap.New[string, *Profile](),
		services: hashmap.New[string, *ServiceProfile](),
	}
}

// DefaultRegistry returns a registry populated with every built-in profile table.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, table := range [][]ServiceDefinition{SIGProfiles, TISensorTagProfiles} {
		for _, def := range table {
			if err := r.RegisterService(def); err != nil {
				// built-in tables are static; a failure here is a programming error
				panic(err)
			}
		}
	}
	return r
}

// ServiceDefinition groups the characteristic profiles of one service.
type ServiceDefinition struct {
	ServiceProfile
	Characteristics []Profile
}

// RegisterService registers a service name and all of its characteristic profiles.
func (r *Registry) RegisterService(def ServiceDefinition) error {
	uuid := device.NormalizeUUID(def.UUID)
	if uuid == "" {
		return fmt.Errorf("invalid service UUID %q", def.UUID)
	}
	r.services.Set(uuid, &ServiceProfile{UUID: uuid, Name: def.Name})

	for _, p := range def.Characteristics {
		p.ServiceUUID = uuid
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// Register adds or replaces a characteristic profile.
func (r *Registry) Register(p Profile) error {
	uuid := device.NormalizeUUID(p.UUID)
	if uuid == "" {
		return fmt.Errorf("invalid characteristic UUID %q", p.UUID)
	}
	p.UUID = uuid
	if p.ServiceUUID != "" {
		p.ServiceUUID = device.NormalizeUUID(p.ServiceUUID)
	}
	r.profiles.Set(uuid, &p)
	return nil
}

// Lookup returns the profile registered for a characteristic UUID.
func (r *Registry) Lookup(uuid string) (*Profile, bool) {
	return r.profiles.Get(device.NormalizeUUID(uuid))
}

// Len returns the number of registered characteristic profiles
func (r *Registry) Len() int {
	return r.profiles.Len()
}

// CodecFor returns the registered codec, or Raw.
func (r *Registry) CodecFor(uuid string) Codec {
	if p, ok := r.Lookup(uuid); ok {
		return p.Codec
	}
	return Raw
}

// CharacteristicName returns the profile name, or "" if unknown.
func (r *Registry) CharacteristicName(uuid string) string {
	if p, ok := r.Lookup(uuid); ok {
		return p.Name
	}
	return ""
}

// ServiceName returns the known service name, or "" if unknown.
func (r *Registry) ServiceName(uuid string) string {
	if s, ok := r.services.Get(device.NormalizeUUID(uuid)); ok {
		return s.Name
	}
	return ""
}

func (r *Registry) Encode(uuid string, v any) ([]byte, error) {
	return r.CodecFor(uuid).Encode(v)
}

func (r *Registry) Decode(uuid string, data []byte) (any, error) {
	return r.CodecFor(uuid).Decode(data)
}

// StringValue renders data as a string map keyed by the profile name
// (or the normalized UUID for unknown characteristics).
func (r *Registry) StringValue(uuid string, data []byte) (map[string]string, error) {
	return r.CodecFor(uuid).StringValue(r.valueName(uuid), data)
}

// FromString is the inverse of StringValue.
func (r *Registry) FromString(uuid string, values map[string]string) ([]byte, error) {
	return r.CodecFor(uuid).FromString(r.valueName(uuid), values)
}

func (r *Registry) valueName(uuid string) string {
	if name := r.CharacteristicName(uuid); name != "" {
		return name
	}
	return device.NormalizeUUID(uuid)
}
