package fwimage

import "github.com/pkg/errors"

// Section is a contiguous block of payload that is loaded at Address
type Section struct {
	Address uint32
	Data    []byte
}

// Image is a parsed FX3 boot image. Sections are kept in file order.
type Image struct {
	Control  byte
	Type     byte
	Sections []Section
	Entry    uint32

	// Checksum is the trailing checksum word, valid when HasChecksum is set
	Checksum    uint32
	HasChecksum bool

	// Consumed is the number of bytes read from the source
	Consumed int
}

// Size will return the number of payload bytes across all sections
func (img *Image) Size() int {
	n := 0
	for _, s := range img.Sections {
		n += len(s.Data)
	}
	return n
}

// ComputeChecksum will return the wrapping sum of every little-endian payload
// word, which is what the boot ROM compares against the trailer
func (img *Image) ComputeChecksum() uint32 {
	var sum uint32
	for _, s := range img.Sections {
		sum += checksum(s.Data)
	}
	return sum
}

// VerifyChecksum will compare the trailing checksum word against the payload.
// Images without a trailer always pass.
func (img *Image) VerifyChecksum() error {
	if !img.HasChecksum {
		return nil
	}
	if got := img.ComputeChecksum(); got != img.Checksum {
		return errors.Wrapf(ErrChecksumMismatch, "computed %08x, image has %08x", got, img.Checksum)
	}
	return nil
}
