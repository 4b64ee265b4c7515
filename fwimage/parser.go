package fwimage

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// TypeNormalWithChecksum is the only image type the boot ROM will run
	TypeNormalWithChecksum byte = 0xB0

	headerSize = 4
	wordSize   = 4

	controlNoCode byte = 0x01
)

var magic = [2]byte{'C', 'Y'}

// ParseFile will read and parse the image at path
func ParseFile(path string) (*Image, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", path)
	}
	img, err := Parse(bs)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse %s", path)
	}
	return img, nil
}

// Parse will decode an FX3 boot image. Nothing is returned unless the whole
// image is well formed.
func Parse(bs []byte) (*Image, error) {
	if len(bs) < headerSize || bs[0] != magic[0] || bs[1] != magic[1] {
		return nil, ErrInvalidHeader
	}
	if bs[2]&controlNoCode != 0 {
		return nil, errors.Wrapf(ErrNotExecutable, "control byte 0x%02x", bs[2])
	}
	if bs[3] != TypeNormalWithChecksum {
		return nil, errors.Wrapf(ErrUnsupportedType, "got type 0x%02x", bs[3])
	}

	img := &Image{Control: bs[2], Type: bs[3]}
	c := &cursor{buf: bs, off: headerSize}

	for {
		n, err := c.uint32()
		if err != nil {
			return nil, err
		}

		if n == 0 {
			if img.Entry, err = c.uint32(); err != nil {
				return nil, err
			}
			break
		}

		addr, err := c.uint32()
		if err != nil {
			return nil, err
		}

		data, err := c.next(int64(n) * wordSize)
		if err != nil {
			return nil, err
		}

		logrus.Debugf("section: %d bytes @ %08x", len(data), addr)
		img.Sections = append(img.Sections, Section{Address: addr, Data: data})
	}

	// anything after the entry address is ignored by the loader. EEPROM dumps
	// and page padded images carry trailing bytes that are not a checksum.
	if c.remaining() >= wordSize {
		img.Checksum, _ = c.uint32()
		img.HasChecksum = true
		if err := img.VerifyChecksum(); err != nil {
			logrus.Warnf("%v", err)
		}
	}

	img.Consumed = c.off

	return img, nil
}

// cursor is a read position over a borrowed byte slice
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.off
}

// next will return the following n bytes. n is 64 bit so that a corrupt word
// count cannot overflow the bounds check.
func (c *cursor) next(n int64) ([]byte, error) {
	if n > int64(c.remaining()) {
		return nil, &TruncatedError{Offset: c.off, Need: n, Have: c.remaining()}
	}
	bs := c.buf[c.off : c.off+int(n)]
	c.off += int(n)
	return bs, nil
}

func (c *cursor) uint32() (uint32, error) {
	bs, err := c.next(wordSize)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(bs), nil
}
