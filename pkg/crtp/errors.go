package crtp

import "fmt"

// DecodeReason classifies a DecodeError.
type DecodeReason int

// Decode failure reasons.
const (
	ReasonShort DecodeReason = iota
	ReasonTooLong
	ReasonChecksum
)

// String implements fmt.Stringer.
func (r DecodeReason) String() string {
	switch r {
	case ReasonShort:
		return "frame too short"
	case ReasonTooLong:
		return "payload too long"
	case ReasonChecksum:
		return "checksum mismatch"
	}
	return "unknown"
}

// DecodeError indicates a malformed frame.
type DecodeError struct {
	Reason DecodeReason
	Size   int
}

// Error implements error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("crtp: %s (%d bytes)", e.Reason, e.Size)
}
