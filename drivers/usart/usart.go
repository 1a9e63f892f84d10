// Package usart implements the stream-class devices: serial links with a
// receive ring filled by the receive interrupt and a transmit ring drained
// by the transmit-ready interrupt.
package usart

import (
	"context"
	"errors"
	"sync/atomic"

	"cncxio/core"
	"cncxio/ring"
)

// Buffer sizes
const (
	DefaultRxSize = 255 // RX ring slots (254 usable)
	DefaultTxSize = 64  // TX ring slots (63 usable)
)

// ErrBufferSize is returned for ring sizes outside 2..ring.MaxCapacity
var ErrBufferSize = errors.New("usart: buffer size out of range")

// Config holds the driver-level settings for one USART device
type Config struct {
	RxSize     int
	TxSize     int
	Watermarks core.Watermarks
}

// Stats holds counters since the device was created
type Stats struct {
	Received    uint32 // bytes accepted by Receive
	Rejected    uint32 // bytes refused by Receive because the RX ring was full
	Transmitted uint32 // bytes handed to the transmitter
	RxMaxUsed   uint32 // high-water mark of RX ring occupancy
}

// Device is a USART-style stream device
type Device struct {
	id   core.DeviceID
	rx   *ring.Buffer
	tx   *ring.Buffer
	flow *core.FlowControl

	rxNotify  chan struct{} // bytes were received
	txNotify  chan struct{} // the transmitter freed space
	txPending chan struct{} // bytes were queued for transmission
	txMutex   uint32        // guards TX dequeue against re-entry

	stats Stats
}

// New creates a device with empty rings and flow control enabled
func New(id core.DeviceID, cfg Config) (*Device, error) {
	if core.ClassOf(id) != core.ClassStream {
		return nil, core.ErrInvalidDevice
	}
	if cfg.RxSize == 0 {
		cfg.RxSize = DefaultRxSize
	}
	if cfg.TxSize == 0 {
		cfg.TxSize = DefaultTxSize
	}
	if cfg.RxSize < 2 || cfg.RxSize > ring.MaxCapacity || cfg.TxSize < 2 || cfg.TxSize > ring.MaxCapacity {
		return nil, ErrBufferSize
	}

	u := &Device{
		id:        id,
		rx:        ring.New(cfg.RxSize),
		tx:        ring.New(cfg.TxSize),
		flow:      core.NewFlowControl(id, nil),
		rxNotify:  make(chan struct{}, 1),
		txNotify:  make(chan struct{}, 1),
		txPending: make(chan struct{}, 1),
	}
	if err := u.flow.SetWatermarks(cfg.Watermarks, u.rx.Cap()); err != nil {
		return nil, err
	}
	return u, nil
}

// ID returns the device identifier
func (u *Device) ID() core.DeviceID {
	return u.id
}

// SetThrottle installs the physical driver's receiver pause/resume hooks
func (u *Device) SetThrottle(t core.Throttle) {
	u.flow.SetThrottle(t)
}

// FlowControl returns the receive flow control coordinator
func (u *Device) FlowControl() *core.FlowControl {
	return u.flow
}

// Receive is called from the receive interrupt with one byte from the
// wire. It never blocks. It returns false when the RX ring is full; the
// byte is not stored and the device enters flow control.
func (u *Device) Receive(b byte) bool {
	ok := u.rx.TryEnqueue(b)
	used := u.rx.Used()
	if ok {
		atomic.AddUint32(&u.stats.Received, 1)
		if uint32(used) > atomic.LoadUint32(&u.stats.RxMaxUsed) {
			atomic.StoreUint32(&u.stats.RxMaxUsed, uint32(used))
		}
		notify(u.rxNotify)
	} else {
		atomic.AddUint32(&u.stats.Rejected, 1)
		core.RecordEvent(core.EvtRxDrop, u.id, uint32(b))
	}
	if u.flow.Enqueued(ok, used) {
		u.flow.Dequeued(u.rx.IsFull(), u.rx.Used())
	}
	return ok
}

// TxReady is called from the transmit-ready interrupt. It returns the next
// byte to put on the wire, or false when there is nothing to send or a
// previous invocation is still dequeuing.
func (u *Device) TxReady() (byte, bool) {
	if !atomic.CompareAndSwapUint32(&u.txMutex, 0, 1) {
		return 0, false
	}
	b, ok := u.tx.TryDequeue()
	atomic.StoreUint32(&u.txMutex, 0)
	if ok {
		atomic.AddUint32(&u.stats.Transmitted, 1)
		notify(u.txNotify)
	}
	return b, ok
}

// TxPending receives a value after bytes are queued for transmission
func (u *Device) TxPending() <-chan struct{} {
	return u.txPending
}

// TxBuffered returns the number of bytes waiting to be transmitted
func (u *Device) TxBuffered() int {
	return u.tx.Used()
}

// RxBuffered returns the number of received bytes not yet read
func (u *Device) RxBuffered() int {
	return u.rx.Used()
}

// WriteChar queues c for transmission
func (u *Device) WriteChar(c byte) error {
	if !u.tx.TryEnqueue(c) {
		return core.ErrBufferFull
	}
	notify(u.txPending)
	return nil
}

// ReadChar dequeues one received byte. Every call, including one that
// finds the ring empty, lets flow control re-check the occupancy.
func (u *Device) ReadChar() (byte, bool) {
	b, ok := u.rx.TryDequeue()
	u.flow.Dequeued(u.rx.IsFull(), u.rx.Used())
	return b, ok
}

// ReadLine runs the line assembler over the RX ring
func (u *Device) ReadLine(ctx context.Context, d *core.Descriptor, buf []byte) (int, core.Signal) {
	return core.AssembleLine(ctx, d, u, buf)
}

// RxReady receives a value after bytes are received
func (u *Device) RxReady() <-chan struct{} {
	return u.rxNotify
}

// TxSpace receives a value after the transmitter takes bytes
func (u *Device) TxSpace() <-chan struct{} {
	return u.txNotify
}

// Stats returns a copy of the counters
func (u *Device) Stats() Stats {
	return Stats{
		Received:    atomic.LoadUint32(&u.stats.Received),
		Rejected:    atomic.LoadUint32(&u.stats.Rejected),
		Transmitted: atomic.LoadUint32(&u.stats.Transmitted),
		RxMaxUsed:   atomic.LoadUint32(&u.stats.RxMaxUsed),
	}
}

// notify coalesces wakeups into a one-slot channel
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
