package core

import (
	"errors"
	"sync/atomic"
)

// Transient state flags, kept in one atomic word per descriptor
const (
	flagEOL     uint32 = 1 << iota // detected EOL (LF, CR, ;)
	flagEOF                        // detected EOF (NUL or end of data)
	flagInLine                     // partial line is in buffer
	flagTrailCR                    // last line ended with CR, swallow a following LF
	flagPending                    // raw read holds a signal for the next call
	flagSplit                      // delivered line did not fit, rest is in buffer
	flagBreak                      // line was broken at the buffer size, swallow a following EOL
)

// Descriptor is the per-device record held by the Registry. It owns the
// device's configuration, transient state and line buffer, and reaches the
// device's ring buffers only through the bound Device.
type Descriptor struct {
	id    DeviceID
	cfg   Config
	dev   Device
	echo  *Descriptor
	flow  *FlowControl
	bound bool

	flags   uint32 // atomic transient flags
	sig     uint32 // atomic last signal
	pending Signal

	line    []byte
	lineLen int

	dropped    uint32 // line bytes rejected by OverflowReject
	signals    uint32 // control signals intercepted
	linesTotal uint32 // lines delivered
}

// ID returns the device identifier
func (d *Descriptor) ID() DeviceID {
	return d.id
}

// Class returns the device class
func (d *Descriptor) Class() Class {
	return ClassOf(d.id)
}

// Config returns a copy of the persisted configuration
func (d *Descriptor) Config() Config {
	return d.cfg
}

// Bound reports whether a driver has been bound
func (d *Descriptor) Bound() bool {
	return d.bound
}

// Device returns the bound driver
func (d *Descriptor) Device() Device {
	return d.dev
}

// Signal returns the signal recorded by the most recent read
func (d *Descriptor) Signal() Signal {
	return Signal(atomic.LoadUint32(&d.sig))
}

func (d *Descriptor) setSignal(s Signal) Signal {
	atomic.StoreUint32(&d.sig, uint32(s))
	return s
}

// EOL reports whether the last read ended on a line terminator
func (d *Descriptor) EOL() bool { return d.hasFlag(flagEOL) }

// EOF reports whether the device has reached end-of-file
func (d *Descriptor) EOF() bool { return d.hasFlag(flagEOF) }

// InLine reports whether a partial line is waiting in the line buffer
func (d *Descriptor) InLine() bool { return d.hasFlag(flagInLine) }

// InFlowControl reports whether the device's receiver is paused
func (d *Descriptor) InFlowControl() bool {
	return d.flow != nil && d.flow.Active()
}

// FlowControl returns the device's flow control coordinator, if any
func (d *Descriptor) FlowControl() *FlowControl {
	return d.flow
}

// Partial returns the bytes assembled so far for an unfinished line
func (d *Descriptor) Partial() []byte {
	return d.line[:d.lineLen]
}

// Dropped returns the number of line bytes rejected on overflow
func (d *Descriptor) Dropped() uint32 {
	return atomic.LoadUint32(&d.dropped)
}

// Signals returns the number of control signals intercepted
func (d *Descriptor) Signals() uint32 {
	return atomic.LoadUint32(&d.signals)
}

// Lines returns the number of lines delivered
func (d *Descriptor) Lines() uint32 {
	return atomic.LoadUint32(&d.linesTotal)
}

// ClearEOF re-arms a file device after it has been rewound
func (d *Descriptor) ClearEOF() {
	d.clearFlag(flagEOF)
}

// ResetLine drops any partial line
func (d *Descriptor) ResetLine() {
	d.lineLen = 0
	d.clearFlag(flagInLine | flagTrailCR | flagSplit | flagBreak)
}

func (d *Descriptor) hasFlag(f uint32) bool {
	return atomic.LoadUint32(&d.flags)&f != 0
}

func (d *Descriptor) setFlag(f uint32) {
	for {
		old := atomic.LoadUint32(&d.flags)
		if atomic.CompareAndSwapUint32(&d.flags, old, old|f) {
			return
		}
	}
}

func (d *Descriptor) clearFlag(f uint32) {
	for {
		old := atomic.LoadUint32(&d.flags)
		if atomic.CompareAndSwapUint32(&d.flags, old, old&^f) {
			return
		}
	}
}

// WriteChar writes one byte through the device, converting LF to CR LF
// when the CRLF flag is set. Blocking devices wait for transmit space.
func (d *Descriptor) WriteChar(c byte) error {
	return d.write(c, d.cfg.Blocking)
}

func (d *Descriptor) write(c byte, block bool) error {
	if !d.bound {
		return ErrNotBound
	}
	if !d.cfg.Write {
		return ErrWriteDisabled
	}
	if c == LF && d.cfg.CRLF {
		if err := d.put(CR, block); err != nil {
			return err
		}
	}
	return d.put(c, block)
}

func (d *Descriptor) put(c byte, block bool) error {
	for {
		err := d.dev.WriteChar(c)
		if !errors.Is(err, ErrBufferFull) || !block {
			return err
		}
		w, ok := d.dev.(WriteWaiter)
		if !ok {
			return err
		}
		<-w.TxSpace()
	}
}

// echoChar writes c to the echo device without waiting. Echo failures
// never fail a read.
func (d *Descriptor) echoChar(c byte) {
	if !d.cfg.Echo || d.echo == nil {
		return
	}
	_ = d.echo.write(c, false)
}
