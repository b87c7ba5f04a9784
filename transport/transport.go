package transport

import "context"

// Transport is the hardware abstraction layer the engine reads reports
// from and writes reports to. Implementations must be safe for the
// single-reader/single-writer usage the engine performs: one goroutine
// calls ReadReport in a loop, while WriteReport is called both from that
// goroutine (responses) and from the engine's idle-reap goroutine
// (timeout errors); the engine serializes its writes, so WriteReport is
// never called concurrently with itself, but it may run concurrently
// with ReadReport.
type Transport interface {
	// ReadReport blocks until one full ReportLen-byte report is
	// available, the context is cancelled, or a fatal transport error
	// occurs. The returned slice is exactly ReportLen bytes and is only
	// valid until the next call to ReadReport.
	ReadReport(ctx context.Context) ([]byte, error)

	// WriteReport blocks until one full ReportLen-byte report has been
	// written, the context is cancelled, or a fatal transport error
	// occurs. report must be exactly ReportLen bytes.
	WriteReport(ctx context.Context, report []byte) error

	// Close releases the underlying device. Subsequent calls to
	// ReadReport or WriteReport must fail.
	Close() error
}
