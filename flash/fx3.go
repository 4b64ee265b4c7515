package flash

import (
	"time"

	"github.com/pkg/errors"
)

const (
	CypressVendorID uint16 = 0x04b4
	FX3ProductID    uint16 = 0x00f3
	BootProductID   uint16 = 0x0080

	DomesdayVendorID  uint16 = 0x1d50
	DomesdayProductID uint16 = 0x603b

	// AnyProduct matches every product id of a vendor
	AnyProduct = -1
)

var DefaultTimeout = 5000 * time.Millisecond
var DefaultPollInterval = 1 * time.Second
var DefaultPollAttempts = 10
var DefaultMaxDevices = 16
var DefaultConsoleBaud = 115200

// FlashProgEnv names the environment variable holding the flash programmer
// image path
const FlashProgEnv = "FX3_FLASH_PROG"

// DefaultFlashProgCandidates are searched, in order, for cyfxflashprog.img
var DefaultFlashProgCandidates = []string{
	"cyfxflashprog.img",
	"../cyfxflashprog.img",
	"../../../../../cyusb_linux/fx3_images/cyfxflashprog.img",
	"../../cyusb_linux/fx3_images/cyfxflashprog.img",
	"../fx3_images/cyfxflashprog.img",
	"../../fx3_images/cyfxflashprog.img",
}

// USBID selects devices by vendor and product. Product may be AnyProduct.
type USBID struct {
	Vendor  uint16
	Product int
}

func (id USBID) matches(vid, pid uint16) bool {
	return id.Vendor == vid && (id.Product == AnyProduct || id.Product == int(pid))
}

// DefaultAccept are the devices that will be picked up during discovery: any
// Cypress device (ROM bootloader, flash programmer, unprogrammed FX3) and the
// shipped Domesday Duplicator firmware
var DefaultAccept = []USBID{
	{Vendor: CypressVendorID, Product: AnyProduct},
	{Vendor: DomesdayVendorID, Product: int(DomesdayProductID)},
}

// Config defines configuration for discovering and programming FX3 devices
type Config struct {
	Accept     []USBID
	MaxDevices int

	// Timeout applies to every control transfer
	Timeout time.Duration

	// FlashProgImage overrides the flash programmer image search
	FlashProgImage      string
	FlashProgCandidates []string

	// PollInterval and PollAttempts bound the wait for the flash programmer
	// to enumerate after it has been loaded
	PollInterval time.Duration
	PollAttempts int

	// WriteChunk is the size of each eeprom write transfer. It must be a
	// multiple of EEPROMPageSize.
	WriteChunk int

	// PModeGPIO and PowerGPIO are optional sysfs GPIO lines wired to the
	// board's PMODE strap and power switch. Zero means not wired.
	PModeGPIO int
	PowerGPIO int

	// ConsoleTTY is the serial port connected to the FX3 debug UART
	ConsoleTTY  string
	ConsoleBaud int

	Progress ProgressFunc
}

// Progress reports how far a long running operation has got
type Progress struct {
	Phase string
	Done  int
	Total int
}

// ProgressFunc is called after every window or section completes
type ProgressFunc func(Progress)

// FX3 drives Cypress FX3 devices attached to a USB bus
type FX3 struct {
	config *Config
	bus    Bus
}

// NewFX3 will create a new programmer on the provided bus, filling unset
// config values with their defaults
func NewFX3(bus Bus, c *Config) (*FX3, error) {
	if bus == nil {
		return nil, errors.New("usb bus is required")
	}
	if c == nil {
		c = &Config{}
	}

	if len(c.Accept) == 0 {
		c.Accept = DefaultAccept
	}
	if c.MaxDevices <= 0 {
		c.MaxDevices = DefaultMaxDevices
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.FlashProgCandidates == nil {
		c.FlashProgCandidates = DefaultFlashProgCandidates
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = DefaultPollAttempts
	}
	if c.WriteChunk <= 0 {
		c.WriteChunk = EEPROMPageSize
	}
	if c.WriteChunk%EEPROMPageSize != 0 || c.WriteChunk > MaxTransferSize {
		return nil, errors.Errorf("write chunk %d must be a multiple of %d and at most %d",
			c.WriteChunk, EEPROMPageSize, MaxTransferSize)
	}
	if c.ConsoleBaud <= 0 {
		c.ConsoleBaud = DefaultConsoleBaud
	}

	return &FX3{config: c, bus: bus}, nil
}

// Timeout will return the timeout used for every control transfer
func (fx *FX3) Timeout() time.Duration {
	return fx.config.Timeout
}

func (fx *FX3) accepts(d Descriptor) bool {
	for _, id := range fx.config.Accept {
		if id.matches(d.Vendor, d.Product) {
			return true
		}
	}
	return false
}

func (fx *FX3) progress(phase string, done, total int) {
	if fx.config.Progress != nil {
		fx.config.Progress(Progress{Phase: phase, Done: done, Total: total})
	}
}
