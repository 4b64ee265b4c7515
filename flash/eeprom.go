package flash

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// EEPROMPageSize is the write page of the boot EEPROM; images are padded
	// to a whole number of pages
	EEPROMPageSize = 64

	// EEPROMWindowSize is the span of one I2C slave address
	EEPROMWindowSize = 64 * 1024
)

// window is the part of the image held by one I2C slave
type window struct {
	slave uint16
	start int
	data  []byte
}

// windows will split a padded image on slave boundaries
func windows(bs []byte) []window {
	var ws []window
	for start := 0; start < len(bs); start += EEPROMWindowSize {
		end := min(len(bs), start+EEPROMWindowSize)
		ws = append(ws, window{
			slave: uint16(start / EEPROMWindowSize),
			start: start,
			data:  bs[start:end],
		})
	}
	return ws
}

// ProgramFile will write the file at path to the boot EEPROM
func (fx *FX3) ProgramFile(d *Device, path string) error {
	bs, err := readFile(path)
	if err != nil {
		return err
	}
	logrus.Infof("programming %s (%d bytes, padded to %d) to FX3 I2C EEPROM",
		path, len(bs), len(padTo(bs, EEPROMPageSize)))
	return fx.Program(d, bs)
}

// VerifyFile will compare the boot EEPROM against the file at path
func (fx *FX3) VerifyFile(d *Device, path string) error {
	bs, err := readFile(path)
	if err != nil {
		return err
	}
	logrus.Infof("verifying %s against FX3 I2C EEPROM (%d bytes, padded to %d)",
		path, len(bs), len(padTo(bs, EEPROMPageSize)))
	return fx.Verify(d, bs)
}

// Program will write bs to the boot EEPROM through the flash programmer. Each
// 64 KiB window is read back and compared before the next one is written. Any
// failure stops programming; the EEPROM is then only partially written and
// must be programmed again.
func (fx *FX3) Program(d *Device, bs []byte) error {
	if !d.IsOpen() {
		return errors.Wrapf(ErrOpenFailed, "device %d is closed", d.Index)
	}

	buf := padTo(bs, EEPROMPageSize)
	ws := windows(buf)

	for i, w := range ws {
		if err := fx.writeWindow(d, w); err != nil {
			return errors.Wrapf(err, "i2c write failed at slave %d offset %d", w.slave, w.start)
		}
		if err := fx.verifyWindow(d, w); err != nil {
			return errors.Wrapf(err, "i2c verify failed at slave %d offset %d", w.slave, w.start)
		}
		fx.progress("program", i+1, len(ws))
	}

	logrus.Infof("programmed %d bytes to FX3 I2C EEPROM", len(buf))

	return nil
}

// Verify will read back the boot EEPROM and compare it against bs
func (fx *FX3) Verify(d *Device, bs []byte) error {
	if !d.IsOpen() {
		return errors.Wrapf(ErrOpenFailed, "device %d is closed", d.Index)
	}

	ws := windows(padTo(bs, EEPROMPageSize))

	for i, w := range ws {
		if err := fx.verifyWindow(d, w); err != nil {
			return errors.Wrapf(err, "verify failed at slave %d offset %d", w.slave, w.start)
		}
		fx.progress("verify", i+1, len(ws))
	}

	logrus.Info("verification successful: EEPROM matches")

	return nil
}

// writeWindow will write one window in WriteChunk sized transfers
func (fx *FX3) writeWindow(d *Device, w window) error {
	for off := 0; off < len(w.data); off += fx.config.WriteChunk {
		end := min(len(w.data), off+fx.config.WriteChunk)
		logrus.Debugf("wr: slave %d @ %04x [l=%d]", w.slave, off, end-off)

		if err := vendorOut(d.port, cmdEEPROMWrite, w.slave, uint16(off), w.data[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// verifyWindow will read one window back and compare it byte for byte
func (fx *FX3) verifyWindow(d *Device, w window) error {
	scratch := make([]byte, MaxTransferSize)

	for off := 0; off < len(w.data); off += MaxTransferSize {
		end := min(len(w.data), off+MaxTransferSize)
		got := scratch[:end-off]

		if err := vendorIn(d.port, cmdEEPROMRead, w.slave, uint16(off), got); err != nil {
			return err
		}

		want := w.data[off:end]
		if !bytes.Equal(got, want) {
			i := firstDiff(got, want)
			return &VerificationMismatchError{
				Offset:   w.start + off + i,
				Expected: want[i],
				Actual:   got[i],
			}
		}
	}
	return nil
}

// firstDiff will return the index of the first byte that differs
func firstDiff(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return len(a)
}
