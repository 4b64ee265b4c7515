package fwimage

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrInvalidHeader = errors.New("invalid firmware header: missing CY magic")
var ErrNotExecutable = errors.New("image does not contain executable code")
var ErrUnsupportedType = errors.New("image is not a normal firmware binary with checksum")
var ErrTruncated = errors.New("truncated image")
var ErrChecksumMismatch = errors.New("image checksum mismatch")

// TruncatedError reports a read that would run past the end of the image
type TruncatedError struct {
	Offset int
	Need   int64
	Have   int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("truncated image at offset %d (0x%x): need %d bytes, have %d",
		e.Offset, e.Offset, e.Need, e.Have)
}

func (e *TruncatedError) Unwrap() error {
	return ErrTruncated
}
