// fx3prog discovers Cypress FX3 devices, runs firmware from RAM and programs
// the boot EEPROM through the Cypress flash programmer.
//
// Usage:
//
//	fx3prog list
//	fx3prog upload firmware.img
//	fx3prog program --verify firmware.img
//	fx3prog -d 1 verify firmware.img
//	fx3prog reset --bootloader
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/synthread/go-fx3/flash"
)

var (
	cfg         = &flash.Config{}
	deviceIndex int
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "fx3prog",
	Short: "Minimal Cypress FX3 firmware programmer",
	Long: `Minimal Cypress FX3 firmware programmer.

EEPROM programming requires the device to be in bootloader mode: set the
PMODE jumper (J4) and power cycle. The flash programmer image
(cyfxflashprog.img) is taken from --flashprog, $FX3_FLASH_PROG or the
directories near the binary.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.IntVarP(&deviceIndex, "device", "d", 0, "target device index")
	f.BoolVarP(&verbose, "verbose", "v", false, "log every usb transfer")
	f.StringVar(&cfg.FlashProgImage, "flashprog", "", "path to cyfxflashprog.img")
	f.DurationVar(&cfg.Timeout, "timeout", flash.DefaultTimeout, "control transfer timeout")
	f.DurationVar(&cfg.PollInterval, "poll-interval", flash.DefaultPollInterval, "wait between checks for the flash programmer")
	f.IntVar(&cfg.PollAttempts, "poll-attempts", flash.DefaultPollAttempts, "checks for the flash programmer before giving up")
	f.IntVar(&cfg.WriteChunk, "write-chunk", flash.EEPROMPageSize, "bytes per eeprom write transfer")
	f.IntVar(&cfg.PModeGPIO, "pmode-gpio", 0, "sysfs gpio wired to the PMODE strap (0: not wired)")
	f.IntVar(&cfg.PowerGPIO, "power-gpio", 0, "sysfs gpio switching board power (0: not wired)")
	f.StringVar(&cfg.ConsoleTTY, "console", "", "serial port connected to the FX3 debug uart")
	f.IntVar(&cfg.ConsoleBaud, "console-baud", flash.DefaultConsoleBaud, "debug uart baud rate")

	rootCmd.AddCommand(listCmd, uploadCmd, programCmd, verifyCmd, resetCmd, infoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
