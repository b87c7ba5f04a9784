// Package pkg provides shared utilities for the U2F HID authenticator
// emulator.
//
// This package contains common functionality used across the transport,
// channel, hidcmd, u2f, and engine packages, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for HID and U2F protocol errors
//   - Component identifiers for log filtering
//   - Random instance identifiers for log correlation
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentEngine, "engine started", "instance", id)
//
// # Errors
//
// Protocol errors are defined as sentinel values and classified by
// [ErrorKind] so callers can decide whether an error is recoverable:
//
//	if errors.Is(err, pkg.ErrChannelBusy) {
//	    // report ERR_CHANNEL_BUSY and keep the channel alive
//	}
package pkg
