// Package codec converts characteristic values between raw bytes and typed values.
//
// A Codec is one strategy out of a closed set (Kind); profile tables bind a
// codec to a characteristic UUID and the Registry looks them up.
package codec

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/srg/gattsession/internal/device"
)

// ErrMalformedValue is returned by Decode when the bytes do not fit the codec's shape.
var ErrMalformedValue = errors.New("malformed value")

// Kind selects the codec strategy.
type Kind int

const (
	KindRaw Kind = iota
	KindString
	KindUint8
	KindInt8
	KindUint16
	KindInt16
	KindUint32
	KindInt32
	KindEnum
	KindInt8Array
	KindInt16Array
)

var kindNames = map[Kind]string{
	KindRaw:        "raw",
	KindString:     "string",
	KindUint8:      "uint8",
	KindInt8:       "int8",
	KindUint16:     "uint16",
	KindInt16:      "int16",
	KindUint32:     "uint32",
	KindInt32:      "int32",
	KindEnum:       "enum",
	KindInt8Array:  "int8[]",
	KindInt16Array: "int16[]",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// EnumValue is one label of an enumerated single-byte value.
type EnumValue struct {
	Value uint8
	Label string
}

// Codec encodes and decodes one characteristic value shape.
// Multi-byte integers are little-endian.
type Codec struct {
	Kind Kind

	// Length is the element count of array kinds; 0 accepts any count.
	Length int

	// Enum lists the labels of KindEnum.
	Enum []EnumValue

	// Fields names array elements in string maps, e.g. x, y, z.
	Fields []string
}

// Convenience constructors for the common shapes
var (
	Raw    = Codec{Kind: KindRaw}
	String = Codec{Kind: KindString}
	Uint8  = Codec{Kind: KindUint8}
	Int8   = Codec{Kind: KindInt8}
	Uint16 = Codec{Kind: KindUint16}
	Int16  = Codec{Kind: KindInt16}
	Uint32 = Codec{Kind: KindUint32}
	Int32  = Codec{Kind: KindInt32}
)

// Enum builds a single-byte enum codec.
func Enum(values ...EnumValue) Codec {
	return Codec{Kind: KindEnum, Enum: values}
}

// Int8Array builds a fixed-length int8 array codec with named fields.
func Int8Array(fields ...string) Codec {
	return Codec{Kind: KindInt8Array, Length: len(fields), Fields: fields}
}

// Int16Array builds a fixed-length little-endian int16 array codec with named fields.
func Int16Array(fields ...string) Codec {
	return Codec{Kind: KindInt16Array, Length: len(fields), Fields: fields}
}

// Encode converts a typed value to bytes. Values the codec cannot represent
// fail with an error wrapping device.ErrNotSerializable.
func (c Codec) Encode(v any) ([]byte, error) {
	switch c.Kind {
	case KindRaw:
		b, ok := v.([]byte)
		if !ok {
			return nil, notSerializable(c, v)
		}
		return append([]byte(nil), b...), nil

	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, notSerializable(c, v)
		}
		return []byte(s), nil

	case KindUint8, KindInt8, KindUint16, KindInt16, KindUint32, KindInt32:
		n, ok := toInt64(v)
		if !ok || !c.inRange(n) {
			return nil, notSerializable(c, v)
		}
		return c.putInt(n), nil

	case KindEnum:
		return c.encodeEnum(v)

	case KindInt8Array:
		vals, ok := v.([]int8)
		if !ok || !c.lengthOK(len(vals)) {
			return nil, notSerializable(c, v)
		}
		out := make([]byte, len(vals))
		for i, x := range vals {
			out[i] = byte(x)
		}
		return out, nil

	case KindInt16Array:
		vals, ok := v.([]int16)
		if !ok || !c.lengthOK(len(vals)) {
			return nil, notSerializable(c, v)
		}
		out := make([]byte, 2*len(vals))
		for i, x := range vals {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(x))
		}
		return out, nil
	}
	return nil, notSerializable(c, v)
}

// Decode converts bytes to the codec's typed value:
// []byte, string, uint8, int8, uint16, int16, uint32, int32, enum label (string),
// []int8 or []int16.
func (c Codec) Decode(data []byte) (any, error) {
	switch c.Kind {
	case KindRaw:
		return append([]byte(nil), data...), nil
	case KindString:
		return string(data), nil
	case KindUint8:
		if len(data) != 1 {
			return nil, c.malformed(data)
		}
		return data[0], nil
	case KindInt8:
		if len(data) != 1 {
			return nil, c.malformed(data)
		}
		return int8(data[0]), nil
	case KindUint16:
		if len(data) != 2 {
			return nil, c.malformed(data)
		}
		return binary.LittleEndian.Uint16(data), nil
	case KindInt16:
		if len(data) != 2 {
			return nil, c.malformed(data)
		}
		return int16(binary.LittleEndian.Uint16(data)), nil
	case KindUint32:
		if len(data) != 4 {
			return nil, c.malformed(data)
		}
		return binary.LittleEndian.Uint32(data), nil
	case KindInt32:
		if len(data) != 4 {
			return nil, c.malformed(data)
		}
		return int32(binary.LittleEndian.Uint32(data)), nil
	case KindEnum:
		if len(data) != 1 {
			return nil, c.malformed(data)
		}
		for _, ev := range c.Enum {
			if ev.Value == data[0] {
				return ev.Label, nil
			}
		}
		return nil, fmt.Errorf("%w: enum value %d not defined", ErrMalformedValue, data[0])
	case KindInt8Array:
		if !c.lengthOK(len(data)) {
			return nil, c.malformed(data)
		}
		out := make([]int8, len(data))
		for i, b := range data {
			out[i] = int8(b)
		}
		return out, nil
	case KindInt16Array:
		if len(data)%2 != 0 || !c.lengthOK(len(data)/2) {
			return nil, c.malformed(data)
		}
		out := make([]int16, len(data)/2)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown codec kind %v", c.Kind)
}

// StringValue renders bytes as a string map keyed by name (or by field names for arrays).
func (c Codec) StringValue(name string, data []byte) (map[string]string, error) {
	if c.Kind == KindRaw {
		return map[string]string{name: hex.EncodeToString(data)}, nil
	}

	v, err := c.Decode(data)
	if err != nil {
		return nil, err
	}

	switch vals := v.(type) {
	case []int8:
		m := make(map[string]string, len(vals))
		for i, x := range vals {
			m[c.fieldName(i)] = strconv.Itoa(int(x))
		}
		return m, nil
	case []int16:
		m := make(map[string]string, len(vals))
		for i, x := range vals {
			m[c.fieldName(i)] = strconv.Itoa(int(x))
		}
		return m, nil
	case string:
		return map[string]string{name: vals}, nil
	default:
		return map[string]string{name: fmt.Sprint(vals)}, nil
	}
}

// FromString is the inverse of StringValue.
func (c Codec) FromString(name string, values map[string]string) ([]byte, error) {
	switch c.Kind {
	case KindRaw:
		s, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", device.ErrNotSerializable, name)
		}
		b, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", device.ErrNotSerializable, err)
		}
		return b, nil

	case KindString, KindEnum:
		s, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", device.ErrNotSerializable, name)
		}
		return c.Encode(s)

	case KindInt8Array, KindInt16Array:
		n := c.Length
		if n == 0 {
			n = len(values)
		}
		ints := make([]int64, n)
		for i := 0; i < n; i++ {
			s, ok := values[c.fieldName(i)]
			if !ok {
				return nil, fmt.Errorf("%w: missing %q", device.ErrNotSerializable, c.fieldName(i))
			}
			x, err := strconv.ParseInt(s, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", device.ErrNotSerializable, err)
			}
			ints[i] = x
		}
		if c.Kind == KindInt8Array {
			vals := make([]int8, n)
			for i, x := range ints {
				if x < math.MinInt8 || x > math.MaxInt8 {
					return nil, notSerializable(c, x)
				}
				vals[i] = int8(x)
			}
			return c.Encode(vals)
		}
		vals := make([]int16, n)
		for i, x := range ints {
			vals[i] = int16(x)
		}
		return c.Encode(vals)

	default:
		s, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", device.ErrNotSerializable, name)
		}
		x, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", device.ErrNotSerializable, err)
		}
		return c.Encode(x)
	}
}

func (c Codec) encodeEnum(v any) ([]byte, error) {
	switch x := v.(type) {
	case string:
		for _, ev := range c.Enum {
			if strings.EqualFold(ev.Label, x) {
				return []byte{ev.Value}, nil
			}
		}
	default:
		n, ok := toInt64(v)
		if !ok {
			break
		}
		for _, ev := range c.Enum {
			if int64(ev.Value) == n {
				return []byte{ev.Value}, nil
			}
		}
	}
	return nil, notSerializable(c, v)
}

func (c Codec) inRange(n int64) bool {
	switch c.Kind {
	case KindUint8:
		return n >= 0 && n <= math.MaxUint8
	case KindInt8:
		return n >= math.MinInt8 && n <= math.MaxInt8
	case KindUint16:
		return n >= 0 && n <= math.MaxUint16
	case KindInt16:
		return n >= math.MinInt16 && n <= math.MaxInt16
	case KindUint32:
		return n >= 0 && n <= math.MaxUint32
	case KindInt32:
		return n >= math.MinInt32 && n <= math.MaxInt32
	}
	return false
}

func (c Codec) putInt(n int64) []byte {
	switch c.Kind {
	case KindUint8, KindInt8:
		return []byte{byte(n)}
	case KindUint16, KindInt16:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, uint16(n))
		return out
	default:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, uint32(n))
		return out
	}
}

func (c Codec) lengthOK(n int) bool {
	return c.Length == 0 || c.Length == n
}

func (c Codec) fieldName(i int) string {
	if i < len(c.Fields) {
		return c.Fields[i]
	}
	return strconv.Itoa(i)
}

func (c Codec) malformed(data []byte) error {
	return fmt.Errorf("%w: %d bytes for %v", ErrMalformedValue, len(data), c.Kind)
}

func notSerializable(c Codec, v any) error {
	return fmt.Errorf("%w: %T %v as %v", device.ErrNotSerializable, v, v, c.Kind)
}

// toInt64 accepts every built-in integer type
func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	}
	return 0, false
}
