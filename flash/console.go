package flash

import (
	"io"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

var ErrNoConsole = errors.New("no debug console tty configured")

// consolePoll is the read timeout used while tailing the console
const consolePoll = 50 * time.Millisecond

// Console will copy the FX3 debug UART to w for the duration d. Firmware just
// downloaded to RAM usually prints its banner here.
func (fx *FX3) Console(w io.Writer, d time.Duration) error {
	if fx.config.ConsoleTTY == "" {
		return ErrNoConsole
	}

	port, err := serial.Open(fx.config.ConsoleTTY, &serial.Mode{
		BaudRate: fx.config.ConsoleBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return errors.Wrap(err, "could not open serial")
	}
	defer port.Close()

	if err := port.SetReadTimeout(consolePoll); err != nil {
		return errors.Wrap(err, "could not set read timeout")
	}

	logrus.Debugf("console open: %s @ %d", fx.config.ConsoleTTY, fx.config.ConsoleBaud)

	return tail(port, w, time.Now().Add(d))
}

// tail will copy r to w until the deadline passes. A read that returns no
// data is a poll timeout, not the end of the stream.
func tail(r io.Reader, w io.Writer, deadline time.Time) error {
	buf := make([]byte, 256)

	for time.Now().Before(deadline) {
		n, err := r.Read(buf)
		if n > 0 {
			logrus.Debugf("console rx: %x", buf[:n])
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			// don't complain about the port going away underneath us
			if perr, ok := err.(*serial.PortError); ok && perr.Code() == serial.PortClosed {
				return nil
			}
			if errors.Is(err, syscall.EBADF) || err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "console read")
		}
	}

	return nil
}
