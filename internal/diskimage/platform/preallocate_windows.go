//go:build windows

package platform

// Preallocate is a no-op on windows: there is no portable equivalent of
// fallocate without pulling in a second syscall surface, and os.Truncate
// already extends the file to its full nominal size (just potentially as
// a sparse file, which a loopback-mounted image tolerates fine on this
// platform).
func Preallocate(fd uintptr, size int64) error {
	return nil
}
