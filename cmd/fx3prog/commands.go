package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/synthread/go-fx3/flash"
	"github.com/synthread/go-fx3/fwimage"
	"github.com/synthread/go-fx3/usb"
)

// session is an open bus with its discovered devices
type session struct {
	bus  *usb.Bus
	fx   *flash.FX3
	devs *flash.Devices
}

func openSession() (*session, error) {
	bus := usb.Open()

	cfg.Progress = func(p flash.Progress) {
		fmt.Fprint(os.Stderr, ".")
		if p.Done == p.Total {
			fmt.Fprintln(os.Stderr)
		}
	}

	fx, err := flash.NewFX3(bus, cfg)
	if err != nil {
		bus.Close()
		return nil, err
	}

	devs, err := fx.Discover()
	if err != nil {
		bus.Close()
		return nil, errors.Wrap(err, "failed to discover devices")
	}

	return &session{bus: bus, fx: fx, devs: devs}, nil
}

func (s *session) close() {
	s.devs.Close()
	s.bus.Close()
}

// withSession runs fn against a freshly discovered bus
func withSession(fn func(s *session) error) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected FX3 devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			if s.devs.Len() == 0 {
				fmt.Println("No FX3 devices found")
				return nil
			}
			fmt.Printf("Found %d FX3 device(s):\n\n", s.devs.Len())
			for _, d := range s.devs.All() {
				fmt.Println(d)
			}
			return nil
		})
	},
}

var consoleFor time.Duration

var uploadCmd = &cobra.Command{
	Use:   "upload FIRMWARE_FILE",
	Short: "Upload firmware to device RAM and run it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			d, err := s.devs.Get(deviceIndex)
			if err != nil {
				return err
			}
			if _, err := s.fx.DownloadFile(d, args[0]); err != nil {
				return err
			}
			if consoleFor > 0 {
				return s.fx.Console(os.Stdout, consoleFor)
			}
			return nil
		})
	},
}

var verifyAfter bool

var programCmd = &cobra.Command{
	Use:   "program FIRMWARE_FILE",
	Short: "Program firmware to the boot EEPROM (persistent)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			d, err := s.fx.Bootstrap(s.devs, deviceIndex)
			if err != nil {
				return err
			}
			if err := s.fx.ProgramFile(d, args[0]); err != nil {
				return err
			}
			if verifyAfter {
				if err := s.fx.VerifyFile(d, args[0]); err != nil {
					return err
				}
			}
			fmt.Println("Power cycle the device (remove J4/PMODE to boot from EEPROM)")
			return nil
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify FIRMWARE_FILE",
	Short: "Verify EEPROM contents against a firmware file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			d, err := s.fx.Bootstrap(s.devs, deviceIndex)
			if err != nil {
				return err
			}
			return s.fx.VerifyFile(d, args[0])
		})
	},
}

var resetBootloader bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			d, err := s.devs.Get(deviceIndex)
			if err != nil {
				return err
			}
			return s.fx.Reset(d, resetBootloader)
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info FIRMWARE_FILE",
	Short: "Show the sections of a firmware image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := fwimage.ParseFile(args[0])
		if err != nil {
			return err
		}
		for i, s := range img.Sections {
			fmt.Printf("section %d: 0x%08x %d bytes\n", i, s.Address, len(s.Data))
		}
		fmt.Printf("entry: 0x%08x\n", img.Entry)
		if img.HasChecksum {
			status := "ok"
			if err := img.VerifyChecksum(); err != nil {
				status = "mismatch (trailing data is not a checksum)"
			}
			fmt.Printf("checksum: 0x%08x %s\n", img.Checksum, status)
		}
		logrus.Debugf("read %d bytes, %d bytes of payload", img.Consumed, img.Size())
		return nil
	},
}

func init() {
	uploadCmd.Flags().DurationVar(&consoleFor, "console-for", 0, "tail the debug uart for this long after upload")
	programCmd.Flags().BoolVar(&verifyAfter, "verify", false, "verify the EEPROM again after programming")
	resetCmd.Flags().BoolVar(&resetBootloader, "bootloader", false, "come back up in the ROM bootloader (needs --pmode-gpio)")
}
