//go:build linux

package shm

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Available reports whether named shared memory can be used.
func Available() bool {
	var st unix.Stat_t
	return unix.Stat(Dir, &st) == nil && st.Mode&unix.S_IFMT == unix.S_IFDIR
}

// Region is a mapped shared memory region.
type Region struct {
	name string
	path string
	ino  uint64
	data []byte
}

// CreateRegion creates a new zero-filled region. It fails with an error
// satisfying os.IsExist if the name is taken.
func CreateRegion(name string, size int) (*Region, error) {
	return mapRegion(name, size, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL)
}

// OpenRegion maps an existing region. It fails with an error satisfying
// os.IsNotExist if the region wasn't created.
func OpenRegion(name string, size int) (*Region, error) {
	return mapRegion(name, size, unix.O_RDWR)
}

func mapRegion(name string, size int, flags int) (*Region, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}
	r := &Region{name: name, path: filepath.Join(Dir, name)}
	fd, err := unix.Open(r.path, flags|unix.O_CLOEXEC, 0666)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: r.path, Err: err}
	}
	defer unix.Close(fd)

	if flags&unix.O_CREAT != 0 {
		if err = unix.Ftruncate(fd, int64(size)); err != nil {
			unix.Unlink(r.path)
			return nil, &os.PathError{Op: "truncate", Path: r.path, Err: err}
		}
	}
	var st unix.Stat_t
	if err = unix.Fstat(fd, &st); err != nil {
		return nil, &os.PathError{Op: "stat", Path: r.path, Err: err}
	}
	if st.Size < int64(size) {
		return nil, &os.PathError{Op: "map", Path: r.path, Err: unix.EINVAL}
	}
	r.ino = uint64(st.Ino)
	if r.data, err = unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED); err != nil {
		return nil, &os.PathError{Op: "mmap", Path: r.path, Err: err}
	}
	return r, nil
}

// Name returns the name of the region.
func (r *Region) Name() string {
	return r.name
}

// Bytes returns the mapped memory. It's invalid after Close.
func (r *Region) Bytes() []byte {
	return r.data
}

// Exists reports whether the name still refers to the mapped region.
// It turns false once the region is unlinked, or replaced by a new one.
func (r *Region) Exists() bool {
	var st unix.Stat_t
	if err := unix.Stat(r.path, &st); err != nil {
		return false
	}
	return uint64(st.Ino) == r.ino
}

// Close unmaps the region.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}

// Unlink removes the name. Existing mappings stay valid.
func (r *Region) Unlink() error {
	return UnlinkRegion(r.name)
}

// UnlinkRegion removes a region by name. A missing region is not an error.
func UnlinkRegion(name string) error {
	if !validName(name) {
		return ErrInvalidName
	}
	return unlink(filepath.Join(Dir, name))
}

func unlink(path string) error {
	if err := unix.Unlink(path); err != nil && err != unix.ENOENT {
		return &os.PathError{Op: "unlink", Path: path, Err: err}
	}
	return nil
}
