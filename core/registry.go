package core

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// Device is the capability set a concrete driver supplies. Drivers are
// bound once at startup and then reached only through the Registry.
type Device interface {
	// WriteChar queues one byte for transmission without blocking.
	// It returns ErrBufferFull when there is no room.
	WriteChar(c byte) error

	// ReadChar dequeues one received byte without blocking
	ReadChar() (c byte, ok bool)

	// ReadLine reads the next line, signal or end-of-file into buf
	ReadLine(ctx context.Context, d *Descriptor, buf []byte) (int, Signal)
}

// Waiter is implemented by devices whose reads can wait for data. The
// channel receives a value after bytes have been queued.
type Waiter interface {
	RxReady() <-chan struct{}
}

// WriteWaiter is implemented by devices whose writes can wait for space.
// The channel receives a value after the transmitter has taken bytes.
type WriteWaiter interface {
	TxSpace() <-chan struct{}
}

// FlowController is implemented by devices that own a flow control
// coordinator for their receive buffer
type FlowController interface {
	FlowControl() *FlowControl
}

// Registry is the fixed table of device descriptors. It is the single
// point through which the firmware addresses a device.
type Registry struct {
	devices [DevCount]Descriptor
}

// NewRegistry creates a registry with every descriptor unbound
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.devices {
		r.devices[i].id = DeviceID(i)
	}
	return r
}

// Get returns the descriptor for id. An id outside the device table is a
// programming error and panics.
func (r *Registry) Get(id DeviceID) *Descriptor {
	if !id.Valid() {
		panic("core: " + ErrInvalidDevice.Error() + " " + itoa(int(id)))
	}
	return &r.devices[id]
}

// Bind attaches a driver and its initial configuration to a device.
// A device can only be bound once.
func (r *Registry) Bind(id DeviceID, dev Device, cfg Config) error {
	if !id.Valid() {
		return fmt.Errorf("bind %d: %w", id, ErrInvalidDevice)
	}
	if dev == nil {
		return fmt.Errorf("bind %s: %w", id, ErrNotBound)
	}
	d := &r.devices[id]
	if d.bound {
		return fmt.Errorf("bind %s: %w", id, ErrAlreadyBound)
	}

	size := cfg.LineSize
	if size <= 0 {
		size = CharBufferSize
		cfg.LineSize = size
	}

	d.dev = dev
	d.cfg = cfg
	d.line = make([]byte, size)
	d.echo = d
	if fc, ok := dev.(FlowController); ok {
		d.flow = fc.FlowControl()
		d.flow.SetEnabled(cfg.FlowControl)
	}
	d.bound = true
	return nil
}

// SetEchoDevice routes echoed bytes of id to the write path of target
func (r *Registry) SetEchoDevice(id, target DeviceID) {
	r.Get(id).echo = r.Get(target)
}

// Validate reports every device that has no driver bound
func (r *Registry) Validate() error {
	var err error
	for i := range r.devices {
		d := &r.devices[i]
		if !d.bound {
			err = multierr.Append(err, fmt.Errorf("%s: %w", d.id, ErrNotBound))
		}
	}
	return err
}

// SetControlFlags applies a control request to the device configuration
func (r *Registry) SetControlFlags(id DeviceID, ctl Control) {
	d := r.Get(id)
	d.cfg = d.cfg.Apply(ctl)
}

// Signal returns the signal recorded by the device's last read
func (r *Registry) Signal(id DeviceID) Signal {
	return r.Get(id).Signal()
}

// ReadLine reads from id into buf. It returns the number of bytes written
// to buf and the signal classifying the result.
func (r *Registry) ReadLine(ctx context.Context, id DeviceID, buf []byte) (int, Signal) {
	d := r.mustBound(id)
	if !d.cfg.Read {
		return 0, d.setSignal(SigEOF)
	}
	return d.dev.ReadLine(ctx, d, buf)
}

// ReadChar reads a single byte from id, intercepting control signals
func (r *Registry) ReadChar(ctx context.Context, id DeviceID) (byte, Signal) {
	d := r.mustBound(id)
	if !d.cfg.Read {
		return 0, d.setSignal(SigEOF)
	}
	return ReadChar(ctx, d, d.dev)
}

// WriteChar writes one byte to id
func (r *Registry) WriteChar(id DeviceID, c byte) error {
	return r.Get(id).WriteChar(c)
}

// Write writes p to id, stopping at the first error
func (r *Registry) Write(id DeviceID, p []byte) (int, error) {
	d := r.Get(id)
	for i, c := range p {
		if err := d.WriteChar(c); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// WriteString writes s to id
func (r *Registry) WriteString(id DeviceID, s string) (int, error) {
	return r.Write(id, []byte(s))
}

func (r *Registry) mustBound(id DeviceID) *Descriptor {
	d := r.Get(id)
	if !d.bound {
		panic("core: " + id.String() + ": " + ErrNotBound.Error())
	}
	return d
}
