package vbd

import "errors"

var (
	// ErrOutOfRange is returned when a read extends past the VBD's
	// presented size.
	ErrOutOfRange = errors.New("vbd: read out of range")
	// ErrUnderlyingIO wraps a failure from the physical-disk reader.
	ErrUnderlyingIO = errors.New("vbd: underlying disk read failed")
	// ErrWriteProtected is returned by every Write call; the VBD is
	// read-only by construction.
	ErrWriteProtected = errors.New("vbd: device is write protected")
)
