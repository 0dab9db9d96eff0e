//go:build !linux

package blobstore

func prefaultRegion(data []byte) {}
