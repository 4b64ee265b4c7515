package flash

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthread/go-fx3/fwimage"
)

// chunk is a slice of a section's payload sent in a single transfer
type chunk struct {
	addr uint32
	data []byte
}

// chunks will split a section into transfers of at most MaxTransferSize
func chunks(s fwimage.Section) []chunk {
	nseg := (len(s.Data) + MaxTransferSize - 1) / MaxTransferSize
	cs := make([]chunk, 0, nseg)

	for i := 0; i < nseg; i++ {
		offset := i * MaxTransferSize
		endIndex := min(len(s.Data), offset+MaxTransferSize)
		cs = append(cs, chunk{
			addr: s.Address + uint32(offset),
			data: s.Data[offset:endIndex],
		})
	}

	return cs
}

// readFile will read a whole image file from disk
func readFile(path string) ([]byte, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, &fileError{path: path, err: err}
	}
	return bs, nil
}

// DownloadFile will parse the image at path and run it from device RAM
func (fx *FX3) DownloadFile(d *Device, path string) (int, error) {
	bs, err := readFile(path)
	if err != nil {
		return 0, err
	}
	img, err := fwimage.Parse(bs)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid firmware %s", path)
	}

	logrus.Infof("uploading %s (%d bytes) to device %d (%04x:%04x)",
		path, len(bs), d.Index, d.Vendor, d.Product)

	return fx.Download(d, img)
}

// Download will write every section of the image into device RAM and then
// jump to its entry point. The first failed transfer aborts the download; the
// only safe recovery is to download the whole image again.
func (fx *FX3) Download(d *Device, img *fwimage.Image) (int, error) {
	if !d.IsOpen() {
		return 0, errors.Wrapf(ErrOpenFailed, "device %d is closed", d.Index)
	}

	sent := 0
	for i, s := range img.Sections {
		for _, c := range chunks(s) {
			logrus.Debugf("dl: %d @ %08x [l=%d]", sent, c.addr, len(c.data))

			if err := vendorOut(d.port, cmdDownload, lsw(c.addr), msw(c.addr), c.data); err != nil {
				return sent, errors.Wrapf(err, "download failed at offset %d (0x%x)", sent, sent)
			}
			sent += len(c.data)
		}
		fx.progress("download", i+1, len(img.Sections))
	}

	logrus.Infof("program entry address: 0x%08x", img.Entry)

	// the device may reset before it acks, so this is not fatal
	if err := vendorOut(d.port, cmdDownload, lsw(img.Entry), msw(img.Entry), nil); err != nil {
		logrus.Warnf("error sending program entry: %v", err)
	}

	logrus.Infof("uploaded %d bytes to device %d", sent, d.Index)

	return sent, nil
}
