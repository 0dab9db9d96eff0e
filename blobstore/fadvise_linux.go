//go:build linux

package blobstore

import "golang.org/x/sys/unix"

// fadviseSequential tells the kernel a blob is about to be read front to
// back. Errors are ignored.
func fadviseSequential(fd int, offset, length int64) {
	_ = unix.Fadvise(fd, offset, length, unix.FADV_SEQUENTIAL)
}
