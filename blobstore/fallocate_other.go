//go:build !linux && !darwin

package blobstore

import "os"

// fallocateFile sets the blob's length. Disk blocks may not be reserved
// on these platforms.
func fallocateFile(file *os.File, size int64) error {
	return file.Truncate(size)
}
