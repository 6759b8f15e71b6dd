//go:build !darwin

package rawsock

func kernelHeaderOrder(pkt []byte) []byte {
	return pkt
}
