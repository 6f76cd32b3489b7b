//go:build !linux

package shm

import "time"

// Available reports whether named shared memory can be used.
func Available() bool { return false }

// Region is a mapped shared memory region.
type Region struct{}

// CreateRegion is not supported.
func CreateRegion(name string, size int) (*Region, error) { return nil, ErrUnsupported }

// OpenRegion is not supported.
func OpenRegion(name string, size int) (*Region, error) { return nil, ErrUnsupported }

// UnlinkRegion is not supported.
func UnlinkRegion(name string) error { return ErrUnsupported }

func (r *Region) Name() string  { return "" }
func (r *Region) Bytes() []byte { return nil }
func (r *Region) Exists() bool  { return false }
func (r *Region) Close() error  { return nil }
func (r *Region) Unlink() error { return ErrUnsupported }

// Semaphore is a named counting semaphore shared between processes.
type Semaphore struct{}

// CreateSemaphore is not supported.
func CreateSemaphore(name string, value uint32) (*Semaphore, error) { return nil, ErrUnsupported }

// OpenSemaphore is not supported.
func OpenSemaphore(name string) (*Semaphore, error) { return nil, ErrUnsupported }

// UnlinkSemaphore is not supported.
func UnlinkSemaphore(name string) error { return ErrUnsupported }

func (s *Semaphore) Name() string                     { return "" }
func (s *Semaphore) Value() uint32                    { return 0 }
func (s *Semaphore) Exists() bool                     { return false }
func (s *Semaphore) Post() error                      { return ErrUnsupported }
func (s *Semaphore) TryWait() bool                    { return false }
func (s *Semaphore) Wait(timeout time.Duration) error { return ErrUnsupported }
func (s *Semaphore) Close() error                     { return nil }
func (s *Semaphore) Unlink() error                    { return ErrUnsupported }
