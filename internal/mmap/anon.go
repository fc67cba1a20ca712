package mmap

import (
	"fmt"
	"syscall"
)

// AnonRegion is a page-aligned anonymous memory allocation: the stand-in
// this runtime uses for a UEFI AllocatePages(EfiRuntimeServicesData)
// call, which has no regular file backing it, just pages carved directly
// out of the platform's memory map.
type AnonRegion struct {
	Data []byte
}

// NewAnonRegion allocates size bytes, rounded up to a whole number of
// pages, of anonymous read/write memory.
func NewAnonRegion(size int) (*AnonRegion, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mmap: anonymous region size must be positive, got %d", size)
	}
	pageSize := syscall.Getpagesize()
	pages := (size + pageSize - 1) / pageSize

	data, err := syscall.Mmap(-1, 0, pages*pageSize, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_ANON|syscall.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap: allocating %d anonymous pages: %w", pages, err)
	}
	return &AnonRegion{Data: data}, nil
}

// Close unmaps the region.
func (r *AnonRegion) Close() error {
	if r.Data == nil {
		return nil
	}
	err := syscall.Munmap(r.Data)
	r.Data = nil
	return err
}
