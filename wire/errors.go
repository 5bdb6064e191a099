package wire

import "fmt"

// DecodeError reports a malformed or unknown-type payload. It is absorbed
// by the receive cycle per the configured strictness and surfaced through
// diagnostics, never fatal.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "decode: " + e.Reason
}

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// ConfigError reports an invalid registration, such as a duplicate type or
// channel id. Fatal at startup only.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Reason
}

func ConfigErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// RecordError pins a DecodeError to the record it occurred in, for
// drop-and-continue reporting.
type RecordError struct {
	Record string // "spawn", "update", "removal"
	Index  int
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s record %d: %v", e.Record, e.Index, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
