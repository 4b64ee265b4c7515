// Package usb connects the flash package to real hardware through libusb.
package usb

import (
	"time"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthread/go-fx3/flash"
)

// Bus is a libusb context. It must be closed after every device opened from
// it has been closed.
type Bus struct {
	ctx *gousb.Context
}

// Open will create a libusb context
func Open() *Bus {
	return &Bus{ctx: gousb.NewContext()}
}

// Close will release the libusb context
func (b *Bus) Close() error {
	return b.ctx.Close()
}

// OpenDevices will open every device the filter accepts
func (b *Bus) OpenDevices(accept func(flash.Descriptor) bool) ([]flash.Port, error) {
	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return accept(descriptor(desc))
	})

	ports := make([]flash.Port, 0, len(devs))
	for _, d := range devs {
		ports = append(ports, &port{dev: d})
	}

	if err != nil {
		return ports, errors.Wrap(err, "open devices")
	}
	return ports, nil
}

func descriptor(desc *gousb.DeviceDesc) flash.Descriptor {
	return flash.Descriptor{
		Vendor:  uint16(desc.Vendor),
		Product: uint16(desc.Product),
		Bus:     desc.Bus,
		Address: desc.Address,
		Class:   uint8(desc.Class),
	}
}

// port is an opened gousb device
type port struct {
	dev *gousb.Device
}

func (p *port) Descriptor() flash.Descriptor {
	return descriptor(p.dev.Desc)
}

func (p *port) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	n, err := p.dev.Control(rType, request, val, idx, data)
	if err != nil {
		if isTimeout(err) {
			return n, errors.Wrap(flash.ErrTransferTimeout, err.Error())
		}
		return n, err
	}
	return n, nil
}

func (p *port) SetControlTimeout(d time.Duration) error {
	p.dev.ControlTimeout = d
	return nil
}

func (p *port) StringDescriptor(index int) (string, error) {
	return p.dev.GetStringDescriptor(index)
}

func (p *port) Close() error {
	logrus.Debugf("usb close: bus %d addr %d", p.dev.Desc.Bus, p.dev.Desc.Address)
	return p.dev.Close()
}

func isTimeout(err error) bool {
	var uerr gousb.Error
	if errors.As(err, &uerr) && uerr == gousb.ErrorTimeout {
		return true
	}
	var terr gousb.TransferStatus
	return errors.As(err, &terr) && terr == gousb.TransferTimedOut
}
