//go:build linux

package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// The 64-bit glibc sem_t starts with a word holding the value in the low
// 32 bits and the number of waiters in the high 32 bits. Waiters sleep on
// the value half with a futex.
const (
	semValueMask     uint64 = 1<<32 - 1
	semNWaitersShift        = 32
	semOneWaiter     uint64 = 1 << semNWaitersShift
)

// Semaphore is a named counting semaphore shared between processes.
type Semaphore struct {
	name string
	path string
	ino  uint64
	mem  []byte
	data *uint64
}

// CreateSemaphore creates a new named semaphore with the initial value.
// It fails with an error satisfying os.IsExist if the name is taken.
func CreateSemaphore(name string, value uint32) (*Semaphore, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}
	path := semPath(name)
	// populate a temporary file and link it in place, so the semaphore
	// never appears uninitialized to other processes.
	tmp, err := os.CreateTemp(Dir, "sem.tmp")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	var init [semSize]byte
	*(*uint64)(unsafe.Pointer(&init[0])) = uint64(value)
	_, err = tmp.Write(init[:])
	if err == nil {
		err = tmp.Chmod(0666)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	if err = unix.Link(tmp.Name(), path); err != nil {
		return nil, &os.PathError{Op: "link", Path: path, Err: err}
	}
	return mapSemaphore(name, path)
}

// OpenSemaphore opens an existing named semaphore. It fails with an error
// satisfying os.IsNotExist if the semaphore wasn't created.
func OpenSemaphore(name string) (*Semaphore, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}
	return mapSemaphore(name, semPath(name))
}

// UnlinkSemaphore removes a semaphore by name. A missing one is not an error.
func UnlinkSemaphore(name string) error {
	if !validName(name) {
		return ErrInvalidName
	}
	return unlink(semPath(name))
}

func semPath(name string) string {
	return filepath.Join(Dir, "sem."+name)
}

func mapSemaphore(name, path string) (*Semaphore, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	defer unix.Close(fd)
	var st unix.Stat_t
	if err = unix.Fstat(fd, &st); err != nil {
		return nil, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	if st.Size < semSize {
		return nil, fmt.Errorf("shm: %s is not a semaphore", path)
	}
	mem, err := unix.Mmap(fd, 0, semSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, &os.PathError{Op: "mmap", Path: path, Err: err}
	}
	return &Semaphore{
		name: name,
		path: path,
		ino:  uint64(st.Ino),
		mem:  mem,
		data: (*uint64)(unsafe.Pointer(&mem[0])),
	}, nil
}

// Name returns the name of the semaphore.
func (s *Semaphore) Name() string {
	return s.name
}

// Value returns the current value.
func (s *Semaphore) Value() uint32 {
	return uint32(atomic.LoadUint64(s.data) & semValueMask)
}

// Exists reports whether the name still refers to this semaphore.
func (s *Semaphore) Exists() bool {
	var st unix.Stat_t
	if err := unix.Stat(s.path, &st); err != nil {
		return false
	}
	return uint64(st.Ino) == s.ino
}

// Post increments the semaphore and wakes one waiter.
func (s *Semaphore) Post() error {
	for {
		d := atomic.LoadUint64(s.data)
		if d&semValueMask == semValueMask {
			return unix.EOVERFLOW
		}
		if atomic.CompareAndSwapUint64(s.data, d, d+1) {
			if d>>semNWaitersShift > 0 {
				return futexWake(s.valueWord(), 1)
			}
			return nil
		}
	}
}

// TryWait decrements the semaphore if it's positive.
func (s *Semaphore) TryWait() bool {
	for {
		d := atomic.LoadUint64(s.data)
		if d&semValueMask == 0 {
			return false
		}
		if atomic.CompareAndSwapUint64(s.data, d, d-1) {
			return true
		}
	}
}

// Wait decrements the semaphore, waiting until it's positive.
// A negative timeout waits forever, zero doesn't wait.
// It returns ErrTimeout when time is up.
func (s *Semaphore) Wait(timeout time.Duration) error {
	if s.TryWait() {
		return nil
	}
	if timeout == 0 {
		return ErrTimeout
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	d := atomic.AddUint64(s.data, semOneWaiter)
	for {
		if d&semValueMask == 0 {
			remains := time.Duration(-1)
			if timeout > 0 {
				if remains = time.Until(deadline); remains <= 0 {
					atomic.AddUint64(s.data, ^(semOneWaiter - 1))
					return ErrTimeout
				}
			}
			switch err := futexWait(s.valueWord(), 0, remains); err {
			case nil, unix.EAGAIN, unix.EINTR, unix.ETIMEDOUT:
			default:
				atomic.AddUint64(s.data, ^(semOneWaiter - 1))
				return err
			}
			d = atomic.LoadUint64(s.data)
			continue
		}
		if atomic.CompareAndSwapUint64(s.data, d, d-1-semOneWaiter) {
			return nil
		}
		d = atomic.LoadUint64(s.data)
	}
}

// Close unmaps the semaphore.
func (s *Semaphore) Close() error {
	if s.mem == nil {
		return nil
	}
	err := unix.Munmap(s.mem)
	s.mem, s.data = nil, nil
	return err
}

// Unlink removes the name. Processes having it open keep using it.
func (s *Semaphore) Unlink() error {
	return UnlinkSemaphore(s.name)
}

// valueWord is the half of the data word holding the value.
func (s *Semaphore) valueWord() *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(unsafe.Pointer(s.data)) + valueOffset))
}

var valueOffset = func() uintptr {
	x := uint16(1)
	if *(*byte)(unsafe.Pointer(&x)) == 0 {
		return 4
	}
	return 0
}()
