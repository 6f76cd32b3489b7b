package link

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates the session is closed.
	ErrClosed = errors.New("link closed")
	// ErrLinkLost indicates the transport failed asynchronously.
	ErrLinkLost = errors.New("link lost")
	// ErrDeviceNotFound indicates the interface doesn't exist.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrDeviceBusy indicates the device is claimed by another session.
	ErrDeviceBusy = errors.New("device busy")
	// ErrPermission indicates access to the device is denied.
	ErrPermission = errors.New("permission denied")
	// ErrNoDriver indicates no active driver handles the scheme.
	ErrNoDriver = errors.New("no driver for scheme")
	// ErrSendTimeout indicates the channel didn't accept the frame in time.
	ErrSendTimeout = errors.New("send timeout")
	// ErrNoAck indicates retries were exhausted without an acknowledgment.
	ErrNoAck = errors.New("no ack")
	// ErrSimulatorNotRunning indicates the simulator segments don't exist.
	ErrSimulatorNotRunning = errors.New("simulator not running")
	// ErrQueueEmpty is returned by Pop when no packet arrives in time.
	ErrQueueEmpty = errors.New("queue empty")
	// ErrQueueClosed is returned by Pop when the queue is closed and drained.
	ErrQueueClosed = errors.New("queue closed")
)

// ParseError reports a malformed link URI.
type ParseError struct {
	URI    string
	Reason string
}

// Error implements error.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid link URI %q: %s", e.URI, e.Reason)
}

// ConnectError reports a failure opening a link.
type ConnectError struct {
	URI string
	Err error
}

// Error implements error.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URI, e.Err)
}

// Unwrap returns the cause.
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// SendError reports a failure handing a packet to the channel.
type SendError struct {
	Err error
}

// Error implements error.
func (e *SendError) Error() string {
	if e.Err == nil {
		return "send failed"
	}
	return "send: " + e.Err.Error()
}

// Unwrap returns the cause.
func (e *SendError) Unwrap() error {
	return e.Err
}

// LinkLostError is surfaced on the call following a transport failure.
type LinkLostError struct {
	Err error
}

// Error implements error.
func (e *LinkLostError) Error() string {
	if e.Err == nil {
		return ErrLinkLost.Error()
	}
	return ErrLinkLost.Error() + ": " + e.Err.Error()
}

// Unwrap returns the cause.
func (e *LinkLostError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrLinkLost) hold.
func (e *LinkLostError) Is(target error) bool {
	return target == ErrLinkLost
}

// NewConnectError wraps err unless it's already a ConnectError.
func NewConnectError(uri URI, err error) error {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectError{URI: uri.String(), Err: err}
}
