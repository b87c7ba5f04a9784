package transport

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/MattGorko/U2F-Emulated/pkg"
)

// pollInterval bounds how long a single blocking Read/Write on the
// device file is allowed to run before the loop re-checks ctx.Done.
// Real hidg-style character devices support SetReadDeadline/
// SetWriteDeadline like any *os.File backed by a pipe-like fd.
const pollInterval = 100 * time.Millisecond

// CharDevice is a [Transport] backed by a USB-HID character device node
// (e.g. /dev/hidg0 in gadget mode, or a hidraw node when the emulator
// is fed from a loopback gadget).
type CharDevice struct {
	path string
	file *os.File
}

// Open opens the character device at path for reading and writing HID
// reports.
func Open(path string) (*CharDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", pkg.ErrTransport, path, err)
	}
	return &CharDevice{path: path, file: f}, nil
}

// ReadReport reads exactly ReportLen bytes from the device.
func (c *CharDevice) ReadReport(ctx context.Context) ([]byte, error) {
	buf := make([]byte, ReportLen)
	if err := c.readFull(ctx, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteReport writes exactly ReportLen bytes to the device.
func (c *CharDevice) WriteReport(ctx context.Context, report []byte) error {
	if len(report) != ReportLen {
		return fmt.Errorf("%w: report is %d bytes, want %d", pkg.ErrMalformedReport, len(report), ReportLen)
	}
	return c.writeFull(ctx, report)
}

// Close closes the underlying device file.
func (c *CharDevice) Close() error {
	return c.file.Close()
}

func (c *CharDevice) readFull(ctx context.Context, buf []byte) error {
	total := 0
	for total < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.file.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return fmt.Errorf("%w: %v", pkg.ErrTransport, err)
		}
		n, err := c.file.Read(buf[total:])
		total += n
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return fmt.Errorf("%w: %v", pkg.ErrTransport, err)
		}
	}
	return nil
}

func (c *CharDevice) writeFull(ctx context.Context, buf []byte) error {
	total := 0
	for total < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.file.SetWriteDeadline(time.Now().Add(pollInterval)); err != nil {
			return fmt.Errorf("%w: %v", pkg.ErrTransport, err)
		}
		n, err := c.file.Write(buf[total:])
		total += n
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return fmt.Errorf("%w: %v", pkg.ErrTransport, err)
		}
	}
	return nil
}

// Compile-time interface check.
var _ Transport = (*CharDevice)(nil)
