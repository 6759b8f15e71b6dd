package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOddLength is returned when a checksum is requested over a buffer that
// does not consist of whole 16-bit words.
var ErrOddLength = errors.New("odd length checksum input")

// Checksum computes the RFC 1071 Internet checksum of data.
//
// Successive big-endian 16-bit words are added with end-around carry and the
// one's complement of the folded sum is returned. A buffer that already
// carries a valid checksum sums to zero.
func Checksum(data []byte) (uint16, error) {
	if len(data)%2 != 0 {
		return 0, fmt.Errorf("%w: %d bytes", ErrOddLength, len(data))
	}

	var sum uint32
	for i := 0; i < len(data); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
		for sum > 0xffff {
			sum = (sum & 0xffff) + (sum >> 16)
		}
	}

	return 0xffff - uint16(sum), nil
}
