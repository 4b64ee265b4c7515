package flash

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// transfer is a control request seen by a simulated device
type transfer struct {
	rType   uint8
	request uint8
	val     uint16
	idx     uint16
	data    []byte
}

// simDevice is a simulated FX3. In bootloader mode it accepts RAM downloads;
// an execute request switches it to the flash programmer on the next
// enumeration. The flash programmer keeps its EEPROM in memory.
type simDevice struct {
	desc    Descriptor
	mode    Mode
	product string

	openErr  error
	failAt   int // fail the nth control transfer, counting from 1
	timeouts bool
	failErr  error

	transfers []transfer
	ram       map[uint32][]byte
	eeprom    []byte

	executed   bool
	entry      uint32
	reboots    Mode
	corruptEEP func(eeprom []byte)

	opened int
	closed int
}

func newSim(vid, pid uint16, mode Mode) *simDevice {
	s := &simDevice{
		desc: Descriptor{Vendor: vid, Product: pid, Bus: 1, Address: 4},
		mode: mode,
		ram:  map[uint32][]byte{},
	}
	if mode == ModeBootloader {
		s.product = BootloaderProduct + " Device"
	}
	return s
}

// downloads will return the RAM download transfers, execute request included
func (s *simDevice) downloads() []transfer {
	var ts []transfer
	for _, t := range s.transfers {
		if t.request == cmdDownload {
			ts = append(ts, t)
		}
	}
	return ts
}

func (s *simDevice) count(request uint8) int {
	n := 0
	for _, t := range s.transfers {
		if t.request == request {
			n++
		}
	}
	return n
}

// simBus hands out ports onto its simulated devices
type simBus struct {
	devices []*simDevice
	listErr error
	lists   int
}

func (b *simBus) OpenDevices(accept func(Descriptor) bool) ([]Port, error) {
	b.lists++
	if b.listErr != nil {
		return nil, b.listErr
	}

	var ports []Port
	var err error
	for _, d := range b.devices {
		// a device that was told to execute has reset into its new mode
		if d.executed {
			d.mode = d.reboots
			d.executed = false
		}
		if !accept(d.desc) {
			continue
		}
		if d.openErr != nil {
			err = d.openErr
			continue
		}
		d.opened++
		ports = append(ports, &simPort{sim: d})
	}
	return ports, err
}

type simPort struct {
	sim    *simDevice
	closed bool
}

func (p *simPort) Descriptor() Descriptor {
	return p.sim.desc
}

func (p *simPort) SetControlTimeout(time.Duration) error {
	return nil
}

func (p *simPort) StringDescriptor(index int) (string, error) {
	if p.closed {
		return "", errors.New("closed")
	}
	if index != productStringIndex || p.sim.product == "" {
		return "", errors.New("no string")
	}
	return p.sim.product, nil
}

func (p *simPort) Close() error {
	if !p.closed {
		p.closed = true
		p.sim.closed++
	}
	return nil
}

func (p *simPort) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	s := p.sim
	if p.closed {
		return 0, errors.New("closed")
	}

	s.transfers = append(s.transfers, transfer{
		rType:   rType,
		request: request,
		val:     val,
		idx:     idx,
		data:    append([]byte{}, data...),
	})

	if s.failAt > 0 && len(s.transfers) == s.failAt {
		if s.timeouts {
			return 0, ErrTransferTimeout
		}
		if s.failErr != nil {
			return 0, s.failErr
		}
		return 0, errors.New("LIBUSB_ERROR_PIPE")
	}

	switch {
	case request == cmdProbe && rType == reqVendorIn:
		if s.mode != ModeFlashProgrammer {
			return 0, errors.New("LIBUSB_ERROR_PIPE")
		}
		return copy(data, FlashProgMagic+"\x00"), nil

	case request == cmdDownload && rType == reqVendorOut && s.mode == ModeBootloader:
		addr := uint32(val) | uint32(idx)<<16
		if len(data) == 0 {
			s.executed = true
			s.entry = addr
			return 0, nil
		}
		s.ram[addr] = append([]byte{}, data...)
		return len(data), nil

	case request == cmdEEPROMWrite && rType == reqVendorOut && s.mode == ModeFlashProgrammer:
		off := int(val)*EEPROMWindowSize + int(idx)
		if need := off + len(data); need > len(s.eeprom) {
			s.eeprom = append(s.eeprom, make([]byte, need-len(s.eeprom))...)
		}
		copy(s.eeprom[off:], data)
		if s.corruptEEP != nil {
			s.corruptEEP(s.eeprom)
		}
		return len(data), nil

	case request == cmdEEPROMRead && rType == reqVendorIn && s.mode == ModeFlashProgrammer:
		off := int(val)*EEPROMWindowSize + int(idx)
		for i := range data {
			data[i] = 0xff
			if off+i < len(s.eeprom) {
				data[i] = s.eeprom[off+i]
			}
		}
		return len(data), nil
	}

	return 0, errors.New("LIBUSB_ERROR_PIPE")
}

// buildImage will encode sections as an FX3 boot image
func buildImage(entry uint32, sections ...[]byte) []byte {
	bs := []byte{'C', 'Y', 0x00, 0xb0}
	addr := uint32(0x40000000)
	for _, s := range sections {
		bs = binary.LittleEndian.AppendUint32(bs, uint32(len(s)/4))
		bs = binary.LittleEndian.AppendUint32(bs, addr)
		bs = append(bs, s...)
		addr += 0x10000
	}
	bs = binary.LittleEndian.AppendUint32(bs, 0)
	return binary.LittleEndian.AppendUint32(bs, entry)
}

func testFX3(bus Bus) *FX3 {
	fx, err := NewFX3(bus, &Config{
		PollInterval:        time.Millisecond,
		PollAttempts:        3,
		FlashProgCandidates: []string{},
	})
	if err != nil {
		panic(err)
	}
	return fx
}
