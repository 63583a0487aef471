// Associated data construction for the radio telemetry link.

package crypto

import "encoding/binary"

const (
	// AssociatedDataVersion is the protocol version bound into every tag.
	AssociatedDataVersion uint8 = 0x01

	// AssociatedDataSize is the associated data length: version (1) || sequence (4).
	AssociatedDataSize = 5
)

// BuildAssociatedData constructs the 5-byte associated data for a message.
//
// Format: Version (1 byte) || Sequence (4 bytes BE)
//
// Binding the sequence number into the tag means a forged, higher sequence
// number cannot pass authentication, so the replay guard and the authenticated
// content always agree.
func BuildAssociatedData(version uint8, sequence uint32) []byte {
	aad := make([]byte, AssociatedDataSize)
	aad[0] = version
	binary.BigEndian.PutUint32(aad[1:5], sequence)
	return aad
}
