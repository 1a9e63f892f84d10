package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"cncxio/core"
)

var (
	// ErrNilConfig is returned by Open without a configuration
	ErrNilConfig = errors.New("config cannot be nil")
	// ErrBaud is returned for a baud enum with no known rate
	ErrBaud = errors.New("unknown baud rate")
)

// Port is the byte pipe a Bridge couples to a stream device. Open returns
// the native implementation; tests supply their own.
type Port interface {
	io.ReadWriteCloser

	// Flush discards unsent and unread data
	Flush() error
}

// Config describes the host side of one stream device
type Config struct {
	Device      string        // e.g. "/dev/ttyUSB0", "COM3"
	Baud        core.Baud     // BaudUnspecified selects DefaultBaud
	ReadTimeout time.Duration // 0 blocks until data arrives
}

// DefaultBaud is used when the device profile leaves the rate unspecified
const DefaultBaud = core.Baud115200

// DefaultConfig returns a configuration for device at the given rate
func DefaultConfig(device string, baud core.Baud) *Config {
	return &Config{
		Device:      device,
		Baud:        baud,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Rate returns the bit rate to open the port with
func (c *Config) Rate() (int, error) {
	b := c.Baud
	if b == core.BaudUnspecified {
		b = DefaultBaud
	}
	rate := b.Rate()
	if rate == 0 {
		return 0, fmt.Errorf("%s: baud %d: %w", c.Device, b, ErrBaud)
	}
	return rate, nil
}
