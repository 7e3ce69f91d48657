//go:build unix

// Package shm allocates anonymous shared memory suitable for handing to a
// compositor as a wl_shm pool.
package shm

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bryanchriswhite/waycap/internal/logger"
)

// ErrAllocation is wrapped by every allocation failure.
var ErrAllocation = errors.New("shared memory allocation failed")

// Region is an anonymous shared-memory object of a fixed size. The caller
// owns it exclusively; Close releases the mapping and the descriptor.
type Region struct {
	fd   int
	size int
	data []byte

	once     sync.Once
	closeErr error
}

// Allocate creates a shared-memory object of exactly size bytes.
func Allocate(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid size %d", ErrAllocation, size)
	}

	fd, err := createFile()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}

	if err := ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: truncate to %d bytes: %v", ErrAllocation, size, err)
	}

	logger.WithComponent("shm").Debug().
		Int("fd", fd).
		Int("size", size).
		Msg("Allocated shared memory")

	return &Region{fd: fd, size: size}, nil
}

func ftruncate(fd int, size int64) error {
	for {
		err := unix.Ftruncate(fd, size)
		if err != unix.EINTR {
			return err
		}
	}
}

// Fd returns the underlying descriptor, or -1 after Close.
func (r *Region) Fd() int {
	return r.fd
}

// Size returns the region size in bytes.
func (r *Region) Size() int {
	return r.size
}

// Map maps the whole region read-write and shared. Repeated calls return the
// same mapping.
func (r *Region) Map() ([]byte, error) {
	if r.data != nil {
		return r.data, nil
	}
	if r.fd < 0 {
		return nil, fmt.Errorf("%w: region is closed", ErrAllocation)
	}
	data, err := unix.Mmap(r.fd, 0, r.size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %v", ErrAllocation, r.size, err)
	}
	r.data = data
	return data, nil
}

// Bytes returns the current mapping, or nil if the region is not mapped.
func (r *Region) Bytes() []byte {
	return r.data
}

// Close unmaps and closes the region. Only the first call has an effect.
func (r *Region) Close() error {
	r.once.Do(func() {
		if r.data != nil {
			if err := unix.Munmap(r.data); err != nil {
				r.closeErr = fmt.Errorf("munmap: %w", err)
			}
			r.data = nil
		}
		if err := unix.Close(r.fd); err != nil && r.closeErr == nil {
			r.closeErr = fmt.Errorf("close fd %d: %w", r.fd, err)
		}
		r.fd = -1
	})
	return r.closeErr
}
