package flash

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MaxTransferSize is the largest data stage the FX3 accepts on EP0
const MaxTransferSize = 2048

// bmRequestType for vendor requests to the device
const (
	reqVendorOut uint8 = 0x40
	reqVendorIn  uint8 = 0xc0
)

// vendor request codes
const (
	cmdDownload    uint8 = 0xa0
	cmdProbe       uint8 = 0xb0
	cmdEEPROMWrite uint8 = 0xba
	cmdEEPROMRead  uint8 = 0xbb
)

// Descriptor is the identity of a USB device as seen on the bus
type Descriptor struct {
	Vendor  uint16
	Product uint16
	Bus     int
	Address int
	Class   uint8
}

// Port is an opened USB device that accepts control transfers
type Port interface {
	Descriptor() Descriptor

	// Control sends a control request to the device. Implementations report
	// timeouts as ErrTransferTimeout.
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)

	SetControlTimeout(time.Duration) error

	StringDescriptor(index int) (string, error)

	Close() error
}

// Bus lists and opens USB devices
type Bus interface {
	// OpenDevices opens every device the filter accepts. Devices that fail to
	// open are left out and reported through the error alongside the ones
	// that did open. A nil slice with an error means the bus itself could
	// not be read.
	OpenDevices(accept func(Descriptor) bool) ([]Port, error)
}

// transferErr will tag err as a timeout or a generic transfer failure
func transferErr(err error, format string, args ...interface{}) error {
	if errors.Is(err, ErrTransferTimeout) {
		return errors.Wrapf(err, format, args...)
	}
	return errors.Wrapf(&transferError{err: err}, format, args...)
}

// vendorOut will send data to the device, failing on short writes
func vendorOut(p Port, req uint8, val, idx uint16, data []byte) error {
	n, err := p.Control(reqVendorOut, req, val, idx, data)
	if err != nil {
		return transferErr(err, "request 0x%02x (0x%04x, 0x%04x)", req, val, idx)
	}
	if n != len(data) {
		return errors.Wrapf(ErrTransferError, "request 0x%02x: short write %d of %d bytes", req, n, len(data))
	}
	logrus.Debugf("usb out: %02x %04x %04x [l=%d]", req, val, idx, n)
	return nil
}

// vendorIn will read len(buf) bytes from the device, failing on short reads
func vendorIn(p Port, req uint8, val, idx uint16, buf []byte) error {
	n, err := p.Control(reqVendorIn, req, val, idx, buf)
	if err != nil {
		return transferErr(err, "request 0x%02x (0x%04x, 0x%04x)", req, val, idx)
	}
	if n != len(buf) {
		return errors.Wrapf(ErrTransferError, "request 0x%02x: short read %d of %d bytes", req, n, len(buf))
	}
	logrus.Debugf("usb in: %02x %04x %04x [l=%d]", req, val, idx, n)
	return nil
}
