package flash

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// BootState is a step of bringing up the flash programmer
type BootState int

const (
	StateProbing BootState = iota
	StateNeedLoad
	StateLoading
	StateWaitingReenumeration
	StateReady
	StateFailed
)

func (s BootState) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StateNeedLoad:
		return "need-load"
	case StateLoading:
		return "loading"
	case StateWaitingReenumeration:
		return "waiting-reenumeration"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// bootstrap holds the state of a single Bootstrap call
type bootstrap struct {
	fx    *FX3
	devs  *Devices
	dev   *Device
	image string
	state BootState
	err   error
}

// Bootstrap will make sure the flash programmer is running on the device at
// index and return a handle to it. If the device is in the ROM bootloader the
// flash programmer is loaded into RAM, every handle in devs is closed and devs
// is refilled once the device comes back.
func (fx *FX3) Bootstrap(devs *Devices, index int) (*Device, error) {
	d, err := devs.Get(index)
	if err != nil {
		return nil, err
	}

	b := &bootstrap{fx: fx, devs: devs, dev: d, state: StateProbing}
	for b.state != StateReady && b.state != StateFailed {
		b.step()
	}

	if b.err != nil {
		return nil, b.err
	}
	return b.dev, nil
}

func (b *bootstrap) enter(s BootState) {
	logrus.Debugf("bootstrap: %s -> %s", b.state, s)
	b.state = s
}

func (b *bootstrap) fail(err error) {
	b.err = err
	b.enter(StateFailed)
}

func (b *bootstrap) step() {
	switch b.state {
	case StateProbing:
		if !b.dev.IsOpen() {
			b.fail(errors.Wrapf(ErrOpenFailed, "device %d is closed", b.dev.Index))
			return
		}
		b.dev.Mode = b.fx.Classify(b.dev)
		switch b.dev.Mode {
		case ModeFlashProgrammer:
			b.enter(StateReady)
		case ModeBootloader:
			b.enter(StateNeedLoad)
		default:
			b.fail(errors.Wrapf(ErrWrongMode, "device %d is in %s mode", b.dev.Index, b.dev.Mode))
		}

	case StateNeedLoad:
		path, err := b.fx.findFlashProgImage()
		if err != nil {
			b.fail(err)
			return
		}
		b.image = path
		b.enter(StateLoading)

	case StateLoading:
		logrus.Infof("downloading flash programmer %s to device %d", b.image, b.dev.Index)
		if _, err := b.fx.DownloadFile(b.dev, b.image); err != nil {
			b.fail(errors.Wrap(err, "could not load flash programmer into RAM"))
			return
		}
		b.enter(StateWaitingReenumeration)

	case StateWaitingReenumeration:
		// the device resets into the flash programmer; every handle is stale
		b.devs.release()
		d, err := b.fx.waitForFlashProgrammer(b.devs)
		if err != nil {
			b.fail(err)
			return
		}
		b.dev = d
		b.enter(StateReady)
	}
}

// findFlashProgImage will return the first flash programmer image found from
// the config override, the environment and the candidate list
func (fx *FX3) findFlashProgImage() (string, error) {
	candidates := append([]string{fx.config.FlashProgImage, os.Getenv(FlashProgEnv)},
		fx.config.FlashProgCandidates...)

	for _, path := range candidates {
		if path == "" {
			continue
		}
		if st, err := os.Stat(path); err == nil && st.Mode().IsRegular() {
			return path, nil
		}
	}

	return "", ErrImageNotFound
}

// waitForFlashProgrammer will rediscover devices into devs until one running
// the flash programmer shows up
func (fx *FX3) waitForFlashProgrammer(devs *Devices) (*Device, error) {
	for attempt := 0; attempt < fx.config.PollAttempts; attempt++ {
		time.Sleep(fx.config.PollInterval)

		found, err := fx.Discover()
		if err != nil {
			logrus.Debugf("rediscover attempt %d: %v", attempt+1, err)
			continue
		}
		*devs = *found

		for _, d := range devs.All() {
			if d.Vendor == CypressVendorID && d.Mode == ModeFlashProgrammer {
				logrus.Infof("found FX3 flash programmer (device %d)", d.Index)
				return d, nil
			}
		}

		// nothing yet; release what we found before trying again
		devs.release()
	}

	return nil, errors.Wrapf(ErrReenumerationTimeout, "after %d attempts", fx.config.PollAttempts)
}
