package flash

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Mode is the boot stage a device is currently running
type Mode int

const (
	ModeUnknown Mode = iota
	ModeBootloader
	ModeApplication
	ModeFlashProgrammer
)

func (m Mode) String() string {
	switch m {
	case ModeBootloader:
		return "Bootloader"
	case ModeApplication:
		return "Application"
	case ModeFlashProgrammer:
		return "FlashProgrammer"
	}
	return "Unknown"
}

// Device is an opened FX3 found during discovery
type Device struct {
	Index   int
	Vendor  uint16
	Product uint16
	Bus     int
	Address int
	Class   uint8
	Mode    Mode

	port Port
}

func newDevice(index int, p Port) *Device {
	d := p.Descriptor()
	return &Device{
		Index:   index,
		Vendor:  d.Vendor,
		Product: d.Product,
		Bus:     d.Bus,
		Address: d.Address,
		Class:   d.Class,
		port:    p,
	}
}

// Name will return a human readable product name
func (d *Device) Name() string {
	if d.Vendor == DomesdayVendorID && d.Product == DomesdayProductID {
		return "Domesday Duplicator"
	}
	return "FX3"
}

func (d *Device) String() string {
	return fmt.Sprintf("[%d] VID:PID=%04x:%04x Bus=%03d Device=%03d Mode=%s (%s)",
		d.Index, d.Vendor, d.Product, d.Bus, d.Address, d.Mode, d.Name())
}

// IsOpen will report whether the device still holds its usb handle
func (d *Device) IsOpen() bool {
	return d.port != nil
}

// Close will release the usb handle
func (d *Device) Close() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

// Devices is the ordered set of devices owned by the caller
type Devices struct {
	items []*Device
}

// Len will return the number of devices
func (ds *Devices) Len() int {
	return len(ds.items)
}

// All will return the devices in discovery order
func (ds *Devices) All() []*Device {
	return ds.items
}

// Get will return the device at index i
func (ds *Devices) Get(i int) (*Device, error) {
	if len(ds.items) == 0 {
		return nil, ErrDeviceNotFound
	}
	if i < 0 || i >= len(ds.items) {
		return nil, errors.Wrapf(ErrInvalidIndex, "index %d, %d device(s) found", i, len(ds.items))
	}
	return ds.items[i], nil
}

// Close will close every device handle
func (ds *Devices) Close() {
	for _, d := range ds.items {
		if err := d.Close(); err != nil {
			logrus.Warnf("close device %d: %v", d.Index, err)
		}
	}
}

// release will close every handle and forget the devices
func (ds *Devices) release() {
	ds.Close()
	ds.items = nil
}
