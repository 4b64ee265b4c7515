package fwimage

import "encoding/binary"

// checksum will sum the data as little-endian 32 bit words. A trailing partial
// word is ignored, the boot ROM never sees one.
func checksum(bs []byte) uint32 {
	var s uint32
	for i := 0; i+wordSize <= len(bs); i += wordSize {
		s += binary.LittleEndian.Uint32(bs[i:])
	}
	return s
}
