package flash

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrDeviceNotFound = errors.New("no FX3 device found")
var ErrInvalidIndex = errors.New("invalid device index")
var ErrOpenFailed = errors.New("could not open usb device")
var ErrTransferTimeout = errors.New("usb control transfer timed out")
var ErrTransferError = errors.New("usb control transfer failed")
var ErrImageNotFound = errors.New("flash programmer image not found; set FX3_FLASH_PROG or place cyfxflashprog.img near the binary")
var ErrReenumerationTimeout = errors.New("flash programmer did not enumerate")
var ErrWrongMode = errors.New("device must be in bootloader mode; set the PMODE jumper (J4) then power cycle")
var ErrVerificationMismatch = errors.New("eeprom contents do not match")
var ErrFileIO = errors.New("could not read file")

// VerificationMismatchError reports the first byte of the image that did not
// read back as written
type VerificationMismatchError struct {
	Offset   int
	Expected byte
	Actual   byte
}

func (e *VerificationMismatchError) Error() string {
	return fmt.Sprintf("eeprom verification failed at offset %d (0x%x): expected 0x%02x, read 0x%02x",
		e.Offset, e.Offset, e.Expected, e.Actual)
}

func (e *VerificationMismatchError) Unwrap() error {
	return ErrVerificationMismatch
}

// fileError keeps the underlying os error while matching ErrFileIO
type fileError struct {
	path string
	err  error
}

func (e *fileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrFileIO.Error(), e.path, e.err)
}

func (e *fileError) Is(target error) bool {
	return target == ErrFileIO
}

func (e *fileError) Unwrap() error {
	return e.err
}

// transferError keeps the transport's error while matching ErrTransferError
type transferError struct {
	err error
}

func (e *transferError) Error() string {
	return fmt.Sprintf("%s: %v", ErrTransferError.Error(), e.err)
}

func (e *transferError) Is(target error) bool {
	return target == ErrTransferError
}

func (e *transferError) Unwrap() error {
	return e.err
}
