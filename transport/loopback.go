package transport

import (
	"context"
	"fmt"

	"github.com/MattGorko/U2F-Emulated/pkg"
)

// Loopback is an in-memory [Transport] pair used in tests to exercise
// the engine end to end without a real device node. Host writes one
// side's "to device" channel; the engine reads it through the other
// side, and vice versa for responses.
type Loopback struct {
	recv   chan []byte
	send   chan []byte
	closed chan struct{}
}

// NewLoopbackPair returns two connected [Loopback] transports: reports
// written to host are readable from device, and reports written to
// device are readable from host.
func NewLoopbackPair() (device *Loopback, host *Loopback) {
	toDevice := make(chan []byte, 16)
	toHost := make(chan []byte, 16)
	closed := make(chan struct{})

	device = &Loopback{recv: toDevice, send: toHost, closed: closed}
	host = &Loopback{recv: toHost, send: toDevice, closed: closed}
	return device, host
}

// ReadReport returns the next report written by the peer.
func (l *Loopback) ReadReport(ctx context.Context) ([]byte, error) {
	select {
	case report, ok := <-l.recv:
		if !ok {
			return nil, fmt.Errorf("%w: loopback closed", pkg.ErrTransport)
		}
		return report, nil
	case <-l.closed:
		return nil, fmt.Errorf("%w: loopback closed", pkg.ErrTransport)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WriteReport delivers report to the peer's ReadReport.
func (l *Loopback) WriteReport(ctx context.Context, report []byte) error {
	if len(report) != ReportLen {
		return fmt.Errorf("%w: report is %d bytes, want %d", pkg.ErrMalformedReport, len(report), ReportLen)
	}
	buf := make([]byte, ReportLen)
	copy(buf, report)

	select {
	case l.send <- buf:
		return nil
	case <-l.closed:
		return fmt.Errorf("%w: loopback closed", pkg.ErrTransport)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the loopback pair. Both sides observe subsequent reads
// and writes failing.
func (l *Loopback) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}

// Compile-time interface check.
var _ Transport = (*Loopback)(nil)
