package serial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"cncxio/core"
	"cncxio/drivers/usart"
)

// fakePort delivers queued input to Read and records everything written
type fakePort struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	out      bytes.Buffer
	writeErr error
}

func newFakePort() *fakePort {
	return &fakePort{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakePort) Read(p []byte) (int, error) {
	select {
	case data := <-f.in:
		return copy(p, data), nil
	case <-f.closed:
		return 0, io.EOF
	}
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.out.Write(p)
}

func (f *fakePort) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakePort) Flush() error { return nil }

func (f *fakePort) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.String()
}

func bridgeFixture(t *testing.T, rxSize int, opts BridgeOptions) (*core.Registry, *usart.Device, *fakePort, *Bridge) {
	t.Helper()
	dev, err := usart.New(core.DevUSB, usart.Config{RxSize: rxSize})
	require.NoError(t, err)
	reg := core.NewRegistry()
	require.NoError(t, reg.Bind(core.DevUSB, dev, core.Config{
		Read:        true,
		Write:       true,
		Blocking:    true,
		CRLF:        true,
		LineMode:    true,
		FlowControl: true,
	}))

	port := newFakePort()
	b := NewBridge(port, dev, zaptest.NewLogger(t).Sugar(), opts)
	b.Start(context.Background())
	t.Cleanup(func() { _ = b.Close() })
	return reg, dev, port, b
}

func readLine(t *testing.T, reg *core.Registry) (string, core.Signal) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	buf := make([]byte, core.CharBufferSize)
	n, sig := reg.ReadLine(ctx, core.DevUSB, buf)
	return string(buf[:n]), sig
}

func TestBridgeRoundTrip(t *testing.T) {
	reg, _, port, _ := bridgeFixture(t, 0, BridgeOptions{})
	port.in <- []byte("G0 X1\n")

	line, sig := readLine(t, reg)
	require.Equal(t, core.SigEOL, sig)
	require.Equal(t, "G0 X1", line)

	_, err := reg.WriteString(core.DevUSB, "ok\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return port.written() == "ok\r\n"
	}, 2*time.Second, time.Millisecond)
}

func TestBridgeFlowControlHoldsBytes(t *testing.T) {
	reg, dev, port, b := bridgeFixture(t, 4, BridgeOptions{SoftwareFlow: true})
	port.in <- []byte("ab\ncd\n")

	require.Eventually(t, b.Paused, 2*time.Second, time.Millisecond)
	require.Equal(t, 3, dev.RxBuffered())
	require.Contains(t, port.written(), string([]byte{core.XOFF}))

	line, sig := readLine(t, reg)
	require.Equal(t, core.SigEOL, sig)
	require.Equal(t, "ab", line)

	line, sig = readLine(t, reg)
	require.Equal(t, core.SigEOL, sig)
	require.Equal(t, "cd", line, "no byte is lost while paused")
	require.Contains(t, port.written(), string([]byte{core.XON}))
}

func TestBridgeWriteErrorStops(t *testing.T) {
	reg, _, port, b := bridgeFixture(t, 0, BridgeOptions{})
	boom := errors.New("unplugged")
	port.mu.Lock()
	port.writeErr = boom
	port.mu.Unlock()

	_, err := reg.WriteString(core.DevUSB, "M115\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.Err() != nil }, 2*time.Second, time.Millisecond)
	require.ErrorIs(t, b.Close(), boom)
}

func TestBridgeCloseUnblocks(t *testing.T) {
	_, _, _, b := bridgeFixture(t, 0, BridgeOptions{})
	done := make(chan error, 1)
	go func() { done <- b.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestConfigRate(t *testing.T) {
	rate, err := DefaultConfig("/dev/ttyUSB0", core.Baud57600).Rate()
	require.NoError(t, err)
	require.Equal(t, 57600, rate)

	rate, err = DefaultConfig("COM3", core.BaudUnspecified).Rate()
	require.NoError(t, err)
	require.Equal(t, 115200, rate)

	_, err = DefaultConfig("COM3", core.Baud(14)).Rate()
	require.ErrorIs(t, err, ErrBaud)

	_, err = Open(DefaultConfig("COM3", core.Baud(14)))
	require.ErrorIs(t, err, ErrBaud)
}

func TestOpenNilConfig(t *testing.T) {
	_, err := Open(nil)
	require.ErrorIs(t, err, ErrNilConfig)
}
