package shmem

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// MaxSize is the largest region the provisioner will attempt, the maximum
// huge page size the doubling retry is allowed to reach.
const MaxSize = 1 << 30 // 1 GiB

// shmDir is where bare object names are created, mirroring shm_open(3).
const shmDir = "/dev/shm"

// ErrTooLarge reports that no acceptable size at or below MaxSize exists
// for the requested region.
var ErrTooLarge = errors.New("shmem: region would exceed 1 GiB ceiling")

// Region is an open, sized shared-memory object. Fd is owned by the caller
// and stays valid for the life of the process unless closed.
type Region struct {
	Fd   int
	Path string
	// Size is the allocated size, a power of two that may exceed the
	// requested size.
	Size uint64
}

// Provision opens (creating if absent) the shared-memory object at path
// with owner-only permissions and sizes it to at least size bytes. On
// failure nothing is left open.
func Provision(path string, size uint64) (*Region, error) {
	if size == 0 {
		return nil, fmt.Errorf("shmem: zero size requested")
	}

	resolved := resolvePath(path)
	fd, err := unix.Open(resolved, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o700)
	if err != nil {
		return nil, fmt.Errorf("shmem: open %s: %w", resolved, err)
	}

	allocated, err := truncate(fd, size)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shmem: size %s to %d: %w", resolved, size, err)
	}

	return &Region{Fd: fd, Path: resolved, Size: allocated}, nil
}

// Close releases the region's descriptor. The object itself is left in the
// filesystem for late-attaching clients.
func (r *Region) Close() error {
	if r.Fd < 0 {
		return nil
	}
	err := unix.Close(r.Fd)
	r.Fd = -1
	return err
}

// resolvePath maps a bare object name into /dev/shm; anything with a
// separator is taken literally.
func resolvePath(path string) string {
	if strings.ContainsRune(path, '/') {
		return path
	}
	return filepath.Join(shmDir, path)
}

// truncate grows fd to the next power of two >= size, doubling on EINVAL
// style rejections until a size sticks or the ceiling is passed.
func truncate(fd int, size uint64) (uint64, error) {
	for candidate := NextPowerOfTwo(size); candidate != 0 && candidate <= MaxSize; candidate *= 2 {
		if err := unix.Ftruncate(fd, int64(candidate)); err == nil {
			return candidate, nil
		}
	}
	return 0, ErrTooLarge
}

// NextPowerOfTwo returns the smallest power of two >= n, or 0 on overflow.
func NextPowerOfTwo(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
