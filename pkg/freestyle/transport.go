package freestyle

import (
	"fmt"
	"log/slog"

	"github.com/karalabe/hid"
)

// abbottVendorID is the USB vendor id shared by the FreeStyle meter family.
const abbottVendorID = 0x1A61

// Device abstracts the raw HID transport: blocking read/write of fixed-size
// reports. Implementations do no framing and no retries; a failure surfaces
// as a *TransportError from the caller.
type Device interface {
	Write(report []byte) error
	Read() ([]byte, error)
	Close() error
}

// OpenDevice opens a FreeStyle meter by USB path, or by vendor/product id
// when path is empty. productID of nil matches any product under the
// Abbott vendor id.
func OpenDevice(path string, productID *uint16) (Device, error) {
	var want uint16
	if productID != nil {
		want = *productID
	}

	infos, err := hid.Enumerate(abbottVendorID, want)
	if err != nil {
		return nil, &TransportError{Op: "open", Cause: err}
	}
	if len(infos) == 0 {
		return nil, &TransportError{Op: "open", Cause: fmt.Errorf("no FreeStyle meter found (vendor %#04x)", abbottVendorID)}
	}

	chosen := infos[0]
	if path != "" {
		found := false
		for _, info := range infos {
			if info.Path == path {
				chosen = info
				found = true
				break
			}
		}
		if !found {
			return nil, &TransportError{Op: "open", Cause: fmt.Errorf("no HID device at path %q", path)}
		}
	}

	dev, err := chosen.Open()
	if err != nil {
		return nil, &TransportError{Op: "open", Cause: err}
	}
	slog.Debug("opened HID device", "path", chosen.Path, "vendor", chosen.VendorID, "product", chosen.ProductID)
	return &hidDevice{dev: dev}, nil
}

// hidDevice adapts a github.com/karalabe/hid.Device to the Device
// interface: reads are returned as zero-padded 65-byte reports, and a short
// write is reported as a *TransportError.
type hidDevice struct {
	dev hid.Device
}

func (d *hidDevice) Write(report []byte) error {
	n, err := d.dev.Write(report)
	if err != nil {
		return &TransportError{Op: "write", Cause: err}
	}
	if n != len(report) {
		return &TransportError{Op: "write", Cause: fmt.Errorf("short write: wrote %d of %d bytes", n, len(report))}
	}
	return nil
}

func (d *hidDevice) Read() ([]byte, error) {
	buf := make([]byte, frameSize)
	if _, err := d.dev.Read(buf); err != nil {
		return nil, &TransportError{Op: "read", Cause: err}
	}
	// Some platforms' HID backends deliver short reads that omit trailing
	// zero bytes; the frame layout is fixed-width, so pad rather than trust
	// n (the rest of the package slices frame fields by fixed offset).
	return buf, nil
}

func (d *hidDevice) Close() error {
	return d.dev.Close()
}
