package flash

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/synthread/go-fx3/fwimage"
)

func bootloaderDevice(t *testing.T) (*FX3, *simDevice, *Device) {
	t.Helper()
	sim := newSim(CypressVendorID, FX3ProductID, ModeBootloader)
	fx := testFX3(&simBus{devices: []*simDevice{sim}})
	devs, err := fx.Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	d, err := devs.Get(0)
	if err != nil {
		t.Fatalf("Get(0) error = %v", err)
	}
	return fx, sim, d
}

func TestChunks(t *testing.T) {
	tests := []struct {
		size     int
		want     int
		lastSize int
	}{
		{size: 4, want: 1, lastSize: 4},
		{size: 2048, want: 1, lastSize: 2048},
		{size: 2052, want: 2, lastSize: 4},
		{size: 4096, want: 2, lastSize: 2048},
		{size: 10000, want: 5, lastSize: 10000 % 2048},
	}

	for _, tt := range tests {
		s := fwimage.Section{Address: 0x40000000, Data: make([]byte, tt.size)}
		cs := chunks(s)

		if len(cs) != tt.want {
			t.Errorf("size %d: %d chunks, want %d", tt.size, len(cs), tt.want)
			continue
		}
		for i, c := range cs {
			if want := s.Address + uint32(i*MaxTransferSize); c.addr != want {
				t.Errorf("size %d: chunk %d addr = %08x, want %08x", tt.size, i, c.addr, want)
			}
			if len(c.data) > MaxTransferSize {
				t.Errorf("size %d: chunk %d is %d bytes", tt.size, i, len(c.data))
			}
		}
		if got := len(cs[len(cs)-1].data); got != tt.lastSize {
			t.Errorf("size %d: last chunk %d bytes, want %d", tt.size, got, tt.lastSize)
		}
	}
}

func TestDownload(t *testing.T) {
	fx, sim, d := bootloaderDevice(t)
	before := len(sim.transfers)

	payload := pattern(5000)
	img := &fwimage.Image{
		Sections: []fwimage.Section{
			{Address: 0x40003000, Data: payload},
			{Address: 0x1000fff0, Data: []byte{1, 2, 3, 4}},
		},
		Entry: 0x40003118,
	}

	n, err := fx.Download(d, img)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if n != 5004 {
		t.Errorf("Download() = %d bytes, want 5004", n)
	}

	ts := sim.transfers[before:]
	// three chunks of the first section, one of the second, then execute
	if len(ts) != 5 {
		t.Fatalf("%d transfers, want 5", len(ts))
	}

	wantAddr := []uint32{0x40003000, 0x40003800, 0x40004000, 0x1000fff0, 0x40003118}
	wantLen := []int{2048, 2048, 904, 4, 0}
	for i, tr := range ts {
		if tr.rType != reqVendorOut || tr.request != cmdDownload {
			t.Errorf("transfer %d: type %02x request %02x", i, tr.rType, tr.request)
		}
		if addr := uint32(tr.val) | uint32(tr.idx)<<16; addr != wantAddr[i] {
			t.Errorf("transfer %d: addr %08x, want %08x", i, addr, wantAddr[i])
		}
		if len(tr.data) != wantLen[i] {
			t.Errorf("transfer %d: %d bytes, want %d", i, len(tr.data), wantLen[i])
		}
	}

	var got []byte
	for _, a := range wantAddr[:3] {
		got = append(got, sim.ram[a]...)
	}
	if !bytes.Equal(got, payload) {
		t.Error("RAM does not hold the section payload")
	}
	if !sim.executed || sim.entry != img.Entry {
		t.Errorf("executed=%v entry=%08x", sim.executed, sim.entry)
	}
}

func TestDownloadAbortsOnFirstFailure(t *testing.T) {
	for _, timeout := range []bool{false, true} {
		fx, sim, d := bootloaderDevice(t)
		sim.failAt = len(sim.transfers) + 2
		sim.timeouts = timeout

		img := &fwimage.Image{
			Sections: []fwimage.Section{{Address: 0x40000000, Data: pattern(8192)}},
			Entry:    0x40000000,
		}

		n, err := fx.Download(d, img)
		want := ErrTransferError
		if timeout {
			want = ErrTransferTimeout
		}
		if !errors.Is(err, want) {
			t.Errorf("timeout=%v: Download() error = %v, want %v", timeout, err, want)
		}
		if n != MaxTransferSize {
			t.Errorf("timeout=%v: sent %d bytes before failing, want %d", timeout, n, MaxTransferSize)
		}
		if sim.count(cmdDownload) != 2 {
			t.Errorf("timeout=%v: %d download transfers, want 2", timeout, sim.count(cmdDownload))
		}
		if sim.executed {
			t.Errorf("timeout=%v: half loaded image was executed", timeout)
		}
	}
}

// stallError stands in for a libusb status the caller wants to inspect
type stallError struct{ status int }

func (e stallError) Error() string { return fmt.Sprintf("usb status %d", e.status) }

func TestDownloadKeepsTransportError(t *testing.T) {
	fx, sim, d := bootloaderDevice(t)
	sim.failAt = len(sim.transfers) + 1
	sim.failErr = stallError{status: 4}

	img := &fwimage.Image{
		Sections: []fwimage.Section{{Address: 0x40000000, Data: pattern(16)}},
		Entry:    0x40000000,
	}

	_, err := fx.Download(d, img)
	if !errors.Is(err, ErrTransferError) {
		t.Fatalf("Download() error = %v, want ErrTransferError", err)
	}
	var stall stallError
	if !errors.As(err, &stall) || stall.status != 4 {
		t.Errorf("Download() error = %v, transport error lost", err)
	}
	if !strings.Contains(err.Error(), "download failed at offset 0") {
		t.Errorf("Download() error = %q, want the failing offset", err)
	}
}

func TestDownloadExecuteFailureIsNotFatal(t *testing.T) {
	fx, sim, d := bootloaderDevice(t)
	// the only payload transfer succeeds, the execute request fails
	sim.failAt = len(sim.transfers) + 2

	img := &fwimage.Image{
		Sections: []fwimage.Section{{Address: 0x40000000, Data: pattern(64)}},
		Entry:    0x40000000,
	}
	n, err := fx.Download(d, img)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if n != 64 {
		t.Errorf("Download() = %d, want 64", n)
	}
}

func TestDownloadFile(t *testing.T) {
	fx, sim, d := bootloaderDevice(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "fw.img")
	if err := os.WriteFile(good, buildImage(0x40000000, pattern(16)), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.DownloadFile(d, good); err != nil {
		t.Fatalf("DownloadFile() error = %v", err)
	}

	bad := filepath.Join(dir, "bad.img")
	corrupt := buildImage(0x40000000, pattern(16))
	corrupt[2] = 0x01
	if err := os.WriteFile(bad, corrupt, 0o644); err != nil {
		t.Fatal(err)
	}
	before := len(sim.transfers)
	if _, err := fx.DownloadFile(d, bad); !errors.Is(err, fwimage.ErrNotExecutable) {
		t.Errorf("DownloadFile() error = %v, want ErrNotExecutable", err)
	}
	if len(sim.transfers) != before {
		t.Error("transfers were sent for an invalid image")
	}

	if _, err := fx.DownloadFile(d, filepath.Join(dir, "missing.img")); !errors.Is(err, ErrFileIO) {
		t.Errorf("DownloadFile() error = %v, want ErrFileIO", err)
	}
}

func pattern(n int) []byte {
	bs := make([]byte, n)
	for i := range bs {
		bs[i] = byte(i*31 + i/251)
	}
	return bs
}
