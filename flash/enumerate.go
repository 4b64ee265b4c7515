package flash

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FlashProgMagic is the start of the flash programmer's probe response
const FlashProgMagic = "FX3PROG"

// BootloaderProduct is the product string of the FX3 ROM bootloader
const BootloaderProduct = "WestBridge"

const productStringIndex = 2

// Discover will open and classify every accepted device on the bus. Devices
// that cannot be opened are skipped; a failure to read the bus is returned.
func (fx *FX3) Discover() (*Devices, error) {
	seen := 0
	ports, err := fx.bus.OpenDevices(func(d Descriptor) bool {
		if !fx.accepts(d) {
			return false
		}
		seen++
		return true
	})
	if err != nil {
		if seen == 0 && len(ports) == 0 {
			return nil, errors.Wrap(err, "could not list usb devices")
		}
		logrus.Warnf("skipping devices that could not be opened: %v", err)
	}

	ds := &Devices{}
	for _, p := range ports {
		if len(ds.items) >= fx.config.MaxDevices {
			logrus.Warnf("more than %d devices attached, ignoring the rest", fx.config.MaxDevices)
			p.Close()
			continue
		}

		if err := p.SetControlTimeout(fx.config.Timeout); err != nil {
			logrus.Warnf("could not set control timeout: %v", err)
		}

		d := newDevice(len(ds.items), p)
		d.Mode = fx.Classify(d)
		logrus.Debugf("found %s", d)
		ds.items = append(ds.items, d)
	}

	return ds, nil
}

// Classify will work out which boot stage the device is running. A failed
// probe is a negative answer, never an error.
func (fx *FX3) Classify(d *Device) Mode {
	if !d.IsOpen() {
		return ModeUnknown
	}
	if fx.isFlashProgrammer(d) {
		return ModeFlashProgrammer
	}
	if fx.isBootloader(d) {
		return ModeBootloader
	}
	return ModeApplication
}

// isFlashProgrammer will ask the device for the flash programmer's identity
func (fx *FX3) isFlashProgrammer(d *Device) bool {
	buf := make([]byte, 8)
	if err := vendorIn(d.port, cmdProbe, 0, 0, buf); err != nil {
		logrus.Debugf("probe device %d: %v", d.Index, err)
		return false
	}
	return bytes.HasPrefix(buf, []byte(FlashProgMagic))
}

// isBootloader will check the product string reported by the ROM bootloader
func (fx *FX3) isBootloader(d *Device) bool {
	s, err := d.port.StringDescriptor(productStringIndex)
	if err != nil {
		logrus.Debugf("product string of device %d: %v", d.Index, err)
		return false
	}
	return strings.HasPrefix(s, BootloaderProduct)
}
