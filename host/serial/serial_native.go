//go:build !wasm

package serial

import (
	"fmt"

	"github.com/tarm/serial"
)

// NativePort is a Port backed by github.com/tarm/serial
type NativePort struct {
	*serial.Port
	name string
}

// Open opens the host serial device named in cfg
func Open(cfg *Config) (*NativePort, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	rate, err := cfg.Rate()
	if err != nil {
		return nil, err
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        rate,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s at %d baud: %w", cfg.Device, rate, err)
	}
	return &NativePort{Port: port, name: cfg.Device}, nil
}

// String returns the device name
func (p *NativePort) String() string {
	return p.name
}
