//go:build darwin

package blobstore

import (
	"os"

	"golang.org/x/sys/unix"
)

// fallocateFile reserves size bytes for a blob with F_PREALLOCATE and then
// sets the file length.
func fallocateFile(file *os.File, size int64) error {
	fst := unix.Fstore_t{
		Flags:   unix.F_ALLOCATEALL,
		Posmode: unix.F_PEOFPOSMODE,
		Length:  size,
	}
	// A failed reservation still leaves ftruncate to size the file.
	_ = unix.FcntlFstore(file.Fd(), unix.F_PREALLOCATE, &fst)
	return unix.Ftruncate(int(file.Fd()), size)
}
