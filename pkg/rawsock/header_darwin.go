package rawsock

import "encoding/binary"

// kernelHeaderOrder returns pkt with the IPv4 total length and fragment
// fields in host byte order, which the Darwin kernel expects for IP_HDRINCL
// sockets.
func kernelHeaderOrder(pkt []byte) []byte {
	out := make([]byte, len(pkt))
	copy(out, pkt)
	swapHeaderFields(out)
	return out
}

func swapHeaderFields(hdr []byte) {
	binary.NativeEndian.PutUint16(hdr[2:4], binary.BigEndian.Uint16(hdr[2:4]))
	binary.NativeEndian.PutUint16(hdr[6:8], binary.BigEndian.Uint16(hdr[6:8]))
}
