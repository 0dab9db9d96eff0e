//go:build !linux

package blobstore

func fadviseSequential(fd int, offset, length int64) {}
