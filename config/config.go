package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"cncxio/core"
	"cncxio/drivers/usart"
)

var (
	ErrUnknownDevice   = errors.New("unknown device")
	ErrUnknownControl  = errors.New("unknown control")
	ErrUnknownBaud     = errors.New("unsupported baud rate")
	ErrUnknownOverflow = errors.New("unknown overflow policy")
)

// Default profile values
const (
	DefaultBaud     = 115200
	DefaultOverflow = "break"
)

// LoadConfig parses a JSON configuration and returns the device table with
// defaults applied. Every problem found is reported in the returned error.
func LoadConfig(jsonData []byte) (*SystemConfig, error) {
	var config SystemConfig

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills in missing devices and profile values
func applyDefaults(config *SystemConfig) {
	stock := DefaultConfig()
	if config.Devices == nil {
		config.Devices = make(map[string]DeviceProfile)
	}
	if config.Events == nil {
		on := true
		config.Events = &on
	}

	for name, def := range stock.Devices {
		p, ok := config.Devices[name]
		if !ok {
			config.Devices[name] = def
			continue
		}
		if len(p.Controls) == 0 {
			p.Controls = def.Controls
		}
		if p.Baud == 0 {
			p.Baud = def.Baud
		}
		if p.LineSize == 0 {
			p.LineSize = core.CharBufferSize
		}
		if p.Overflow == "" {
			p.Overflow = DefaultOverflow
		}
		if p.FlowControl == nil {
			p.FlowControl = def.FlowControl
		}
		if p.EchoTo == "" {
			p.EchoTo = def.EchoTo
		}
		if p.RxSize == 0 {
			p.RxSize = def.RxSize
		}
		if p.TxSize == 0 {
			p.TxSize = def.TxSize
		}
		config.Devices[name] = p
	}
}

// Validate checks every profile and reports all problems at once
func (c *SystemConfig) Validate() error {
	var err error
	for name, p := range c.Devices {
		id, ok := core.ParseDeviceID(name)
		if !ok {
			err = multierr.Append(err, fmt.Errorf("%q: %w", name, ErrUnknownDevice))
			continue
		}
		if _, perr := p.CoreConfig(); perr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", id, perr))
		}
		if p.EchoTo != "" {
			if _, ok := core.ParseDeviceID(p.EchoTo); !ok {
				err = multierr.Append(err, fmt.Errorf("%s echo_to %q: %w", id, p.EchoTo, ErrUnknownDevice))
			}
		}
	}
	return err
}

// Profile returns the profile of id
func (c *SystemConfig) Profile(id core.DeviceID) DeviceProfile {
	return c.Devices[id.String()]
}

// EventsEnabled reports whether the event ring should record events
func (c *SystemConfig) EventsEnabled() bool {
	return c.Events == nil || *c.Events
}

// CoreConfig converts the profile to a descriptor configuration
func (p DeviceProfile) CoreConfig() (core.Config, error) {
	var ctl core.Control
	for _, name := range p.Controls {
		bit, ok := core.ParseControl(name)
		if !ok {
			return core.Config{}, fmt.Errorf("%q: %w", name, ErrUnknownControl)
		}
		ctl |= bit
	}
	if p.Baud != 0 {
		b, ok := core.BaudFromRate(p.Baud)
		if !ok {
			return core.Config{}, fmt.Errorf("%d: %w", p.Baud, ErrUnknownBaud)
		}
		ctl |= core.Control(b)
	}

	cfg := core.ConfigFromControl(ctl)
	cfg.LineSize = p.LineSize
	cfg.FlowControl = p.FlowControl == nil || *p.FlowControl

	switch p.Overflow {
	case "", "break":
		cfg.Overflow = core.OverflowBreak
	case "reject":
		cfg.Overflow = core.OverflowReject
	default:
		return core.Config{}, fmt.Errorf("%q: %w", p.Overflow, ErrUnknownOverflow)
	}
	return cfg, nil
}

// UsartConfig returns the driver settings of a stream device profile
func (p DeviceProfile) UsartConfig() usart.Config {
	return usart.Config{
		RxSize: p.RxSize,
		TxSize: p.TxSize,
		Watermarks: core.Watermarks{
			High: p.HighWater,
			Low:  p.LowWater,
		},
	}
}

// DefaultConfig returns the stock device table: three serial links that
// echo and assemble lines, and a program memory device echoing to USB
func DefaultConfig() *SystemConfig {
	on := true
	stream := func() DeviceProfile {
		return DeviceProfile{
			Controls:    []string{"rd", "wr", "block", "echo", "crlf", "linemode"},
			Baud:        DefaultBaud,
			LineSize:    core.CharBufferSize,
			Overflow:    DefaultOverflow,
			FlowControl: &on,
			RxSize:      usart.DefaultRxSize,
			TxSize:      usart.DefaultTxSize,
		}
	}

	return &SystemConfig{
		Devices: map[string]DeviceProfile{
			core.DevRS485.String(): stream(),
			core.DevUSB.String():   stream(),
			core.DevAUX.String():   stream(),
			core.DevPGM.String(): {
				Controls: []string{"rd", "block", "echo", "crlf", "linemode"},
				LineSize: core.CharBufferSize,
				Overflow: DefaultOverflow,
				EchoTo:   core.DevUSB.String(),
			},
		},
		Events: &on,
	}
}
