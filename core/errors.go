package core

import "errors"

var (
	// ErrBufferFull is returned by a non-blocking write when the transmit
	// buffer has no room. The caller may retry.
	ErrBufferFull = errors.New("transmit buffer full")

	// ErrReadOnly is returned when writing to a device that cannot be written
	ErrReadOnly = errors.New("device is read only")

	// ErrWriteDisabled is returned when the device is not enabled for write
	ErrWriteDisabled = errors.New("device not enabled for write")

	// ErrNotBound is reported for devices that never had a driver bound
	ErrNotBound = errors.New("device driver not bound")

	// ErrAlreadyBound is returned when binding a device a second time
	ErrAlreadyBound = errors.New("device driver already bound")

	// ErrInvalidDevice is returned for ids outside the device table
	ErrInvalidDevice = errors.New("invalid device id")

	// ErrWatermarks is returned for watermarks that cannot work
	ErrWatermarks = errors.New("invalid flow control watermarks")
)
