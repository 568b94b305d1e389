// Package log provides structured protocol logging for hub sessions.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, dispatch).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable trace of everything exchanged with the hub.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/hub/console.hlog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw reply and command lines (LineEvent)
//   - Wire: Parsed replies (ReplyEvent) and issued commands (CommandEvent)
//   - Dispatch: Connection and command state changes (StateChangeEvent)
//
// Parse failures and other errors have a dedicated event type.
//
// # File Format
//
// Log files use CBOR encoding with .hlog extension. The hub-log CLI tool
// provides viewing, filtering, and export capabilities.
package log
