// Package reading decodes the sensor record carried inside an authenticated
// telemetry message.
package reading

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Size is the fixed plaintext size of a reading.
//
// Layout (sender's natural struct alignment):
//
//	[0:4]   Temperature (IEEE-754 binary32)
//	[4:8]   padding, ignored on decode and zero on encode
//	[8:16]  Latitude (IEEE-754 binary64)
//	[16:24] Longitude (IEEE-754 binary64)
const Size = 24

const (
	temperatureOffset = 0
	latitudeOffset    = 8
	longitudeOffset   = 16
)

// Reading is one sensor sample.
type Reading struct {
	Temperature float32
	Latitude    float64
	Longitude   float64
}

// Decode interprets b as a little-endian reading.
func Decode(b []byte) (Reading, error) {
	return DecodeOrder(b, binary.LittleEndian)
}

// DecodeOrder interprets b as a reading in the given byte order.
// Returns ErrSizeMismatch unless len(b) == Size.
func DecodeOrder(b []byte, order binary.ByteOrder) (Reading, error) {
	if len(b) != Size {
		return Reading{}, fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(b), Size)
	}
	if order == nil {
		order = binary.LittleEndian
	}

	return Reading{
		Temperature: math.Float32frombits(order.Uint32(b[temperatureOffset:])),
		Latitude:    math.Float64frombits(order.Uint64(b[latitudeOffset:])),
		Longitude:   math.Float64frombits(order.Uint64(b[longitudeOffset:])),
	}, nil
}

// Encode serializes the reading in little-endian order.
func (r Reading) Encode() []byte {
	return r.EncodeOrder(binary.LittleEndian)
}

// EncodeOrder serializes the reading in the given byte order.
func (r Reading) EncodeOrder(order binary.ByteOrder) []byte {
	if order == nil {
		order = binary.LittleEndian
	}
	b := make([]byte, Size)
	order.PutUint32(b[temperatureOffset:], math.Float32bits(r.Temperature))
	order.PutUint64(b[latitudeOffset:], math.Float64bits(r.Latitude))
	order.PutUint64(b[longitudeOffset:], math.Float64bits(r.Longitude))
	return b
}

// String returns a human-readable form of the reading.
func (r Reading) String() string {
	return fmt.Sprintf("%.2f°C at (%.6f, %.6f)", r.Temperature, r.Latitude, r.Longitude)
}

// ParseByteOrder maps a config name to a byte order.
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch s {
	case "little", "":
		return binary.LittleEndian, nil
	case "big":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("reading: unknown byte order %q", s)
	}
}
