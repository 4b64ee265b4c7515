package flash

import (
	"time"

	"github.com/piotrjaromin/gpio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ResetSettle is how long the board is held unpowered during a power cycle
var ResetSettle = 100 * time.Millisecond

// ResetWait is how long Reset waits for the device to come back
var ResetWait = 2 * time.Second

// line is an output GPIO; gpio.Pin satisfies it
type line interface {
	High() error
	Low() error
	Cleanup()
}

// strap drives the board's PMODE jumper and power switch from GPIO
type strap struct {
	pinPMode line
	pinPower line
}

// openStrap will claim the configured GPIO lines, powering the board
func openStrap(c *Config) (*strap, error) {
	pmode, err := gpio.NewOutput(uint(c.PModeGPIO), false)
	if err != nil {
		return nil, errors.Wrapf(err, "could not setup PMODE gpio %d", c.PModeGPIO)
	}
	power, err := gpio.NewOutput(uint(c.PowerGPIO), true)
	if err != nil {
		pmode.Cleanup()
		return nil, errors.Wrapf(err, "could not setup power gpio %d", c.PowerGPIO)
	}
	return &strap{pinPMode: pmode, pinPower: power}, nil
}

// powerCycle will cut power, set PMODE and power the board back up. With
// bootloader set the FX3 comes up in the ROM bootloader instead of booting
// from EEPROM.
func (s *strap) powerCycle(bootloader bool) error {
	if err := s.pinPower.Low(); err != nil {
		return errors.Wrap(err, "could not cut power")
	}

	// PMODE asserted while power is reapplied selects USB boot
	set := s.pinPMode.Low
	if bootloader {
		set = s.pinPMode.High
	}
	if err := set(); err != nil {
		return errors.Wrap(err, "could not set PMODE")
	}

	time.Sleep(ResetSettle)
	if err := s.pinPower.High(); err != nil {
		return errors.Wrap(err, "could not restore power")
	}
	time.Sleep(ResetSettle)
	return nil
}

// close will release the GPIO lines back to the kernel
func (s *strap) close() {
	s.pinPMode.Cleanup()
	s.pinPower.Cleanup()
}

// HasStrap will report whether PMODE and power GPIO lines are configured
func (fx *FX3) HasStrap() bool {
	return fx.config.PModeGPIO > 0 && fx.config.PowerGPIO > 0
}

// Reset will power cycle the board. The device's handle is closed since the
// device re-enumerates afterwards. Without GPIO straps the FX3 can only be
// reset by hand, so Reset just waits for the operator.
func (fx *FX3) Reset(d *Device, bootloader bool) error {
	d.Close()

	if !fx.HasStrap() {
		logrus.Info("no reset straps configured; power cycle the device by hand")
		time.Sleep(ResetWait)
		return nil
	}

	s, err := openStrap(fx.config)
	if err != nil {
		return err
	}
	defer s.close()

	return s.reset(d.Index, bootloader)
}

// reset will power cycle through the strap and wait for re-enumeration
func (s *strap) reset(index int, bootloader bool) error {
	logrus.Infof("power cycling device %d (bootloader=%v)", index, bootloader)
	if err := s.powerCycle(bootloader); err != nil {
		return errors.Wrapf(err, "reset of device %d failed", index)
	}

	time.Sleep(ResetWait)
	return nil
}
