//go:build !windows

package platform

import "golang.org/x/sys/unix"

// Preallocate reserves size bytes of backing store for fd starting at
// offset 0, so the disk image file is a contiguous real allocation rather
// than a sparse file with holes a loopback mount would zero-fill lazily.
// FALLOC_FL_KEEP_SIZE is not set: a fresh image file should also grow to
// its full nominal size.
func Preallocate(fd uintptr, size int64) error {
	return unix.Fallocate(int(fd), 0, 0, size)
}
