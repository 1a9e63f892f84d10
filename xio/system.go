// Package xio assembles the device table: it creates the drivers named by
// the configuration, binds them to the registry and serves lines to the
// command interpreter.
package xio

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"cncxio/config"
	"cncxio/core"
	"cncxio/drivers/pgm"
	"cncxio/drivers/usart"
)

// ErrNotStream is returned when a stream-only operation names a file device
var ErrNotStream = errors.New("not a stream device")

// System owns the registry and every driver bound to it
type System struct {
	config   *config.SystemConfig
	registry *core.Registry
	usarts   [core.DevUSARTCnt]*usart.Device
	program  *pgm.Device
}

// NewSystem loads a JSON configuration and builds the system from it
func NewSystem(configData []byte, program []byte) (*System, error) {
	cfg, err := config.LoadConfig(configData)
	if err != nil {
		return nil, err
	}
	return NewSystemWithConfig(cfg, program)
}

// NewSystemWithConfig builds the stream drivers and the program device,
// binds them and checks that no device was left unbound
func NewSystemWithConfig(cfg *config.SystemConfig, program []byte) (*System, error) {
	s := &System{
		config:   cfg,
		registry: core.NewRegistry(),
	}

	var err error
	for id := core.DevUSARTLo; id <= core.DevUSARTHi; id++ {
		err = multierr.Append(err, s.bindStream(id))
	}
	err = multierr.Append(err, s.bindProgram(program))
	if err != nil {
		return nil, err
	}

	for id := core.DeviceID(0); id < core.DevCount; id++ {
		if to := cfg.Profile(id).EchoTo; to != "" {
			target, _ := core.ParseDeviceID(to)
			s.registry.SetEchoDevice(id, target)
		}
	}

	if err := s.registry.Validate(); err != nil {
		return nil, err
	}

	core.SetDebugEnabled(cfg.Debug)
	core.SetEventsEnabled(cfg.EventsEnabled())
	return s, nil
}

func (s *System) bindStream(id core.DeviceID) error {
	p := s.config.Profile(id)
	ccfg, err := p.CoreConfig()
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	dev, err := usart.New(id, p.UsartConfig())
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	s.usarts[id-core.DevUSARTLo] = dev
	return s.registry.Bind(id, dev, ccfg)
}

func (s *System) bindProgram(program []byte) error {
	ccfg, err := s.config.Profile(core.DevPGM).CoreConfig()
	if err != nil {
		return fmt.Errorf("%s: %w", core.DevPGM, err)
	}
	s.program = pgm.New(program)
	return s.registry.Bind(core.DevPGM, s.program, ccfg)
}

// Registry returns the device registry
func (s *System) Registry() *core.Registry {
	return s.registry
}

// Config returns the configuration the system was built from
func (s *System) Config() *config.SystemConfig {
	return s.config
}

// USART returns the stream driver bound to id
func (s *System) USART(id core.DeviceID) (*usart.Device, error) {
	if !id.Valid() || core.ClassOf(id) != core.ClassStream {
		return nil, fmt.Errorf("%s: %w", id, ErrNotStream)
	}
	return s.usarts[id-core.DevUSARTLo], nil
}

// Program returns the program memory driver
func (s *System) Program() *pgm.Device {
	return s.program
}

// LoadProgram replaces the program and re-arms the program device
func (s *System) LoadProgram(data []byte) {
	s.program.Open(data)
	s.rearm()
}

// RewindProgram restarts the program from its first line
func (s *System) RewindProgram() {
	s.program.Rewind()
	s.rearm()
}

func (s *System) rearm() {
	d := s.registry.Get(core.DevPGM)
	d.ResetLine()
	d.ClearEOF()
}

// Announce writes the ready banner to id
func (s *System) Announce(id core.DeviceID) error {
	_, err := s.registry.WriteString(id, "cncxio ready\n")
	return err
}
