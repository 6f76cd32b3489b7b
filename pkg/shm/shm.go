// Package shm provides named POSIX shared memory regions and named
// semaphores which interoperate with shm_open(3) and sem_open(3) of glibc
// in other processes.
package shm

import "errors"

var (
	// ErrTimeout is returned when a semaphore wait times out.
	ErrTimeout = errors.New("shm: semaphore wait timeout")
	// ErrUnsupported is returned on platforms without POSIX shared memory.
	ErrUnsupported = errors.New("shm: unsupported platform")
	// ErrInvalidName is returned for names containing a slash.
	ErrInvalidName = errors.New("shm: invalid name")
)

// Dir is where named objects live.
var Dir = "/dev/shm"

// semSize is sizeof(sem_t) on 64-bit glibc.
const semSize = 32

func validName(name string) bool {
	if name == "" || len(name) > 250 {
		return false
	}
	for _, c := range name {
		if c == '/' || c == 0 {
			return false
		}
	}
	return true
}
