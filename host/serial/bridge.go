package serial

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cncxio/core"
	"cncxio/drivers/usart"
)

// BridgeOptions configure a Bridge
type BridgeOptions struct {
	// SoftwareFlow sends XOFF/XON on the port when the device enters and
	// leaves flow control
	SoftwareFlow bool
}

// Bridge connects a host serial port to a USART device. A receive
// goroutine plays the receive interrupt and a transmit goroutine plays
// the transmit-ready interrupt.
type Bridge struct {
	port   Port
	dev    *usart.Device
	logger *zap.SugaredLogger
	opts   BridgeOptions

	paused  uint32 // atomic bool
	resume  chan struct{}
	writeMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// NewBridge creates a bridge and installs it as the device throttle. The
// logger may be nil.
func NewBridge(port Port, dev *usart.Device, logger *zap.SugaredLogger, opts BridgeOptions) *Bridge {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	b := &Bridge{
		port:   port,
		dev:    dev,
		logger: logger.With("device", dev.ID().String()),
		opts:   opts,
		resume: make(chan struct{}, 1),
	}
	dev.SetThrottle(b)
	return b
}

// Start launches the receive and transmit goroutines. They run until ctx
// is done or Close is called.
func (b *Bridge) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(2)
	go b.receiveLoop(ctx)
	go b.transmitLoop(ctx)
}

// Close stops the goroutines and closes the port. It returns the port
// close error combined with any error that stopped a goroutine.
func (b *Bridge) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	err := b.port.Close()
	b.wg.Wait()
	return multierr.Append(b.Err(), err)
}

// Err returns the first I/O error seen by the goroutines
func (b *Bridge) Err() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.err
}

// Paused reports whether reception is held off by flow control
func (b *Bridge) Paused() bool {
	return atomic.LoadUint32(&b.paused) != 0
}

// PauseReceive implements core.Throttle
func (b *Bridge) PauseReceive() {
	atomic.StoreUint32(&b.paused, 1)
	b.logger.Debug("receive paused")
	if b.opts.SoftwareFlow {
		b.sendControl(core.XOFF)
	}
}

// ResumeReceive implements core.Throttle
func (b *Bridge) ResumeReceive() {
	atomic.StoreUint32(&b.paused, 0)
	b.logger.Debug("receive resumed")
	if b.opts.SoftwareFlow {
		b.sendControl(core.XON)
	}
	select {
	case b.resume <- struct{}{}:
	default:
	}
}

func (b *Bridge) sendControl(c byte) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if _, err := b.port.Write([]byte{c}); err != nil {
		b.logger.Warnw("flow control write failed", "error", err)
	}
}

func (b *Bridge) receiveLoop(ctx context.Context) {
	defer b.wg.Done()
	buf := make([]byte, 64)
	for {
		n, err := b.port.Read(buf)
		for _, c := range buf[:n] {
			if !b.deliver(ctx, c) {
				return
			}
		}
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				b.fail("read", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// deliver hands c to the device, waiting out flow control. It returns
// false when ctx is done.
func (b *Bridge) deliver(ctx context.Context, c byte) bool {
	for !b.dev.Receive(c) {
		if !b.dev.FlowControl().Enabled() {
			b.logger.Debugw("byte dropped", "byte", c)
			return true
		}
		select {
		case <-b.resume:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (b *Bridge) transmitLoop(ctx context.Context) {
	defer b.wg.Done()
	chunk := make([]byte, 0, 64)
	for {
		select {
		case <-b.dev.TxPending():
		case <-ctx.Done():
			return
		}
		for {
			chunk = chunk[:0]
			for len(chunk) < cap(chunk) {
				c, ok := b.dev.TxReady()
				if !ok {
					break
				}
				chunk = append(chunk, c)
			}
			if len(chunk) == 0 {
				break
			}
			b.writeMu.Lock()
			_, err := b.port.Write(chunk)
			b.writeMu.Unlock()
			if err != nil {
				if ctx.Err() == nil {
					b.fail("write", err)
				}
				return
			}
		}
	}
}

func (b *Bridge) fail(op string, err error) {
	b.logger.Errorw("serial "+op+" failed", "error", err)
	b.errMu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.errMu.Unlock()
}
