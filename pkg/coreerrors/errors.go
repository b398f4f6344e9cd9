// Package coreerrors defines the structured error values the core returns.
// Nothing in the core panics on bad input or on a recoverable condition;
// every failure is a value carrying a code, a severity and an optional
// cause, in the style the rest of the corpus uses for domain errors.
package coreerrors

import (
	"fmt"
	"time"
)

// Code identifies the kind of failure. See spec §7 for the authoritative
// list; these are value-level, never exceptions.
type Code string

const (
	CrossDetected       Code = "CROSS_DETECTED"
	InvalidLevel        Code = "INVALID_LEVEL"
	SegmentCorrupted    Code = "SEGMENT_CORRUPTED"
	EndOfSegment        Code = "END_OF_SEGMENT"
	Io                  Code = "IO"
	ChannelDisconnected Code = "CHANNEL_DISCONNECTED"
	ChannelFull         Code = "CHANNEL_FULL"
)

// Severity is advisory metadata for logging/alerting layers; the core
// itself never branches on it.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func severityFor(code Code) Severity {
	switch code {
	case SegmentCorrupted, Io:
		return SeverityCritical
	case CrossDetected, ChannelDisconnected:
		return SeverityHigh
	case InvalidLevel, ChannelFull:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// CoreError is the concrete type returned by core operations that fail.
type CoreError struct {
	Code      Code
	Message   string
	Severity  Severity
	Timestamp time.Time
	Offset    int64 // meaningful for SegmentCorrupted / EndOfSegment
	Expected  uint32
	Actual    uint32
	Cause     error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// New builds a CoreError with the severity implied by code.
func New(code Code, message string) *CoreError {
	return &CoreError{Code: code, Message: message, Severity: severityFor(code), Timestamp: time.Now()}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...interface{}) *CoreError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches cause to a new CoreError. Returns nil if cause is nil.
func Wrap(cause error, code Code, message string) *CoreError {
	if cause == nil {
		return nil
	}
	e := New(code, message)
	e.Cause = cause
	return e
}

// NewSegmentCorrupted builds the error returned when a WAL record's CRC
// does not match the payload, carrying enough detail for the caller to
// decide whether to truncate or abort (spec §4.5 / §7).
func NewSegmentCorrupted(offset int64, expected, actual uint32) *CoreError {
	e := New(SegmentCorrupted, fmt.Sprintf("crc mismatch at offset %d: expected %08x, got %08x", offset, expected, actual))
	e.Offset = offset
	e.Expected = expected
	e.Actual = actual
	return e
}

// NewEndOfSegment builds the error returned when a trailing record frame
// is truncated — the expected consequence of a crash mid-append.
func NewEndOfSegment(offset int64) *CoreError {
	e := New(EndOfSegment, fmt.Sprintf("truncated record frame at offset %d", offset))
	e.Offset = offset
	return e
}

// Is reports whether err is a *CoreError carrying the given code.
func Is(err error, code Code) bool {
	ce, ok := err.(*CoreError)
	if !ok {
		return false
	}
	return ce.Code == code
}
