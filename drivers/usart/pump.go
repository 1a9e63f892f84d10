package usart

import (
	"sync/atomic"

	"tinygo.org/x/drivers"
)

// Pump moves bytes between a buffered UART (machine.UART on the MCU) and a
// Device. Each Poll plays the part of the receive and transmit interrupts.
//
// While the device is in flow control the pump stops reading the UART, so
// the hardware buffer absorbs the backlog. A byte refused by a full RX ring
// is held and offered again on the first Poll after flow control is left.
// With flow control disabled a refused byte is dropped.
type Pump struct {
	uart   drivers.UART
	dev    *Device
	paused uint32 // atomic bool

	held    byte
	hasHeld bool
	rxBuf   [1]byte
	txBuf   [32]byte
}

// NewPump connects uart to dev and installs itself as the device throttle
func NewPump(uart drivers.UART, dev *Device) *Pump {
	p := &Pump{
		uart: uart,
		dev:  dev,
	}
	dev.SetThrottle(p)
	return p
}

// PauseReceive implements core.Throttle
func (p *Pump) PauseReceive() {
	atomic.StoreUint32(&p.paused, 1)
}

// ResumeReceive implements core.Throttle
func (p *Pump) ResumeReceive() {
	atomic.StoreUint32(&p.paused, 0)
}

// Paused reports whether reception is suspended
func (p *Pump) Paused() bool {
	return atomic.LoadUint32(&p.paused) != 0
}

// Poll services both directions once and returns the bytes moved
func (p *Pump) Poll() (rx, tx int, err error) {
	rx, err = p.pollRx()
	if err != nil {
		return rx, 0, err
	}
	tx, err = p.pollTx()
	return rx, tx, err
}

func (p *Pump) pollRx() (int, error) {
	if p.Paused() {
		return 0, nil
	}
	moved := 0
	if p.hasHeld {
		if !p.dev.Receive(p.held) {
			return 0, nil
		}
		p.hasHeld = false
		moved++
	}
	for !p.Paused() && p.uart.Buffered() > 0 {
		n, err := p.uart.Read(p.rxBuf[:])
		if err != nil {
			return moved, err
		}
		if n == 0 {
			break
		}
		if !p.dev.Receive(p.rxBuf[0]) {
			if !p.dev.FlowControl().Enabled() {
				// no flow control, the byte is lost
				continue
			}
			p.held = p.rxBuf[0]
			p.hasHeld = true
			break
		}
		moved++
	}
	return moved, nil
}

func (p *Pump) pollTx() (int, error) {
	sent := 0
	for {
		n := 0
		for n < len(p.txBuf) {
			b, ok := p.dev.TxReady()
			if !ok {
				break
			}
			p.txBuf[n] = b
			n++
		}
		if n == 0 {
			return sent, nil
		}
		w, err := p.uart.Write(p.txBuf[:n])
		sent += w
		if err != nil {
			return sent, err
		}
	}
}
