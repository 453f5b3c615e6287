package device

import (
	"fmt"
	"strings"
)

// Properties is the characteristic capability bitset. Bit values follow the
// GATT characteristic properties field so adapters can convert with a cast.
type Properties uint8

const (
	PropBroadcast Properties = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropSignedWrite
	PropExtended
)

var propertyNames = []struct {
	prop Properties
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signed-write"},
	{PropExtended, "extended"},
}

// Has reports whether every bit of want is set
func (p Properties) Has(want Properties) bool {
	return p&want == want
}

// Any reports whether at least one bit of want is set
func (p Properties) Any(want Properties) bool {
	return p&want != 0
}

func (p Properties) CanRead() bool {
	return p.Has(PropRead)
}

// CanWrite is true for both acknowledged and unacknowledged writes.
func (p Properties) CanWrite() bool {
	return p.Any(PropWrite | PropWriteWithoutResponse)
}

// CanNotify is true for both notifications and indications.
func (p Properties) CanNotify() bool {
	return p.Any(PropNotify | PropIndicate)
}

// Names returns the names of the set bits in bit order.
func (p Properties) Names() []string {
	names := make([]string, 0, len(propertyNames))
	for _, pn := range propertyNames {
		if p.Has(pn.prop) {
			names = append(names, pn.name)
		}
	}
	return names
}

func (p Properties) String() string {
	if p == 0 {
		return "none"
	}
	return strings.Join(p.Names(), ",")
}

// ParseProperties parses a comma-separated property list such as "read,notify".
// "write-nr" and "writenr" are accepted as aliases of "write-without-response".
func ParseProperties(s string) (Properties, error) {
	var props Properties
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		switch name {
		case "write-nr", "writenr", "writewithoutresponse":
			name = "write-without-response"
		}
		found := false
		for _, pn := range propertyNames {
			if pn.name == name {
				props |= pn.prop
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown characteristic property %q", part)
		}
	}
	return props, nil
}
