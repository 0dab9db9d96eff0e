//go:build linux

package blobstore

import (
	"os"

	"golang.org/x/sys/unix"
)

// fallocateFile reserves size bytes for a blob before it is mapped, so a
// full disk fails here instead of raising SIGBUS during the copy.
func fallocateFile(file *os.File, size int64) error {
	fd := int(file.Fd())
	if err := unix.Fallocate(fd, 0, 0, size); err != nil {
		// NFS and some other filesystems lack fallocate.
		return unix.Ftruncate(fd, size)
	}
	// Fallocate reserves blocks without changing the file size.
	return unix.Ftruncate(fd, size)
}
