package usart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cncxio/core"
)

type recordingThrottle struct {
	calls []string
}

func (r *recordingThrottle) PauseReceive()  { r.calls = append(r.calls, "pause") }
func (r *recordingThrottle) ResumeReceive() { r.calls = append(r.calls, "resume") }

func streamConfig() core.Config {
	return core.Config{
		Read:        true,
		Write:       true,
		CRLF:        true,
		LineMode:    true,
		FlowControl: true,
	}
}

func bind(t *testing.T, cfg Config, ccfg core.Config) (*core.Registry, *Device) {
	t.Helper()
	dev, err := New(core.DevUSB, cfg)
	require.NoError(t, err)
	reg := core.NewRegistry()
	require.NoError(t, reg.Bind(core.DevUSB, dev, ccfg))
	return reg, dev
}

func feed(dev *Device, s string) {
	for i := 0; i < len(s); i++ {
		dev.Receive(s[i])
	}
}

func drainTx(dev *Device) string {
	var out []byte
	for {
		b, ok := dev.TxReady()
		if !ok {
			return string(out)
		}
		out = append(out, b)
	}
}

func TestNewRejectsFileDevice(t *testing.T) {
	_, err := New(core.DevPGM, Config{})
	require.ErrorIs(t, err, core.ErrInvalidDevice)
}

func TestNewRejectsBufferSize(t *testing.T) {
	_, err := New(core.DevUSB, Config{RxSize: 300})
	require.ErrorIs(t, err, ErrBufferSize)

	_, err = New(core.DevUSB, Config{TxSize: 1})
	require.ErrorIs(t, err, ErrBufferSize)
}

func TestNewRejectsWatermarks(t *testing.T) {
	_, err := New(core.DevUSB, Config{RxSize: 8, Watermarks: core.Watermarks{High: 8, Low: 2}})
	require.ErrorIs(t, err, core.ErrWatermarks)
}

func TestReadLineThenEAGAIN(t *testing.T) {
	reg, dev := bind(t, Config{RxSize: 8}, streamConfig())
	feed(dev, "ABC\n")

	buf := make([]byte, 16)
	n, sig := reg.ReadLine(context.Background(), core.DevUSB, buf)
	require.Equal(t, core.SigEOL, sig)
	require.Equal(t, "ABC", string(buf[:n]))
	require.True(t, reg.Get(core.DevUSB).EOL())

	n, sig = reg.ReadLine(context.Background(), core.DevUSB, buf)
	require.Equal(t, core.SigEAGAIN, sig)
	require.Zero(t, n)
	require.False(t, reg.Get(core.DevUSB).EOL())
}

func TestPartialLineSurvivesEAGAIN(t *testing.T) {
	reg, dev := bind(t, Config{}, streamConfig())
	buf := make([]byte, 16)

	feed(dev, "G0 ")
	_, sig := reg.ReadLine(context.Background(), core.DevUSB, buf)
	require.Equal(t, core.SigEAGAIN, sig)
	require.True(t, reg.Get(core.DevUSB).InLine())

	feed(dev, "X1\r")
	n, sig := reg.ReadLine(context.Background(), core.DevUSB, buf)
	require.Equal(t, core.SigEOL, sig)
	require.Equal(t, "G0 X1", string(buf[:n]))
	require.False(t, reg.Get(core.DevUSB).InLine())
}

func TestEchoWithCRLF(t *testing.T) {
	cfg := streamConfig()
	cfg.Echo = true
	reg, dev := bind(t, Config{}, cfg)
	feed(dev, "XY\n")

	buf := make([]byte, 16)
	n, sig := reg.ReadLine(context.Background(), core.DevUSB, buf)
	require.Equal(t, core.SigEOL, sig)
	require.Equal(t, "XY", string(buf[:n]))
	require.Equal(t, "XY\r\n", drainTx(dev))
}

func TestEchoSkipsSignals(t *testing.T) {
	cfg := streamConfig()
	cfg.Echo = true
	reg, dev := bind(t, Config{}, cfg)
	feed(dev, "A\x13")

	buf := make([]byte, 16)
	_, sig := reg.ReadLine(context.Background(), core.DevUSB, buf)
	require.Equal(t, core.SigPause, sig)
	require.Equal(t, "A", drainTx(dev))
}

func TestFlowControlEnterExit(t *testing.T) {
	reg, dev := bind(t, Config{RxSize: 4}, streamConfig())
	thr := &recordingThrottle{}
	dev.SetThrottle(thr)
	desc := reg.Get(core.DevUSB)

	require.True(t, dev.Receive('a'))
	require.True(t, dev.Receive('b'))
	require.True(t, dev.Receive('c'))
	require.False(t, desc.InFlowControl())

	require.False(t, dev.Receive('d'))
	require.True(t, desc.InFlowControl())
	require.Equal(t, []string{"pause"}, thr.calls)

	c, sig := reg.ReadChar(context.Background(), core.DevUSB)
	require.Equal(t, core.SigOK, sig)
	require.Equal(t, byte('a'), c)
	require.False(t, desc.InFlowControl())
	require.Equal(t, []string{"pause", "resume"}, thr.calls)

	st := dev.Stats()
	require.Equal(t, uint32(3), st.Received)
	require.Equal(t, uint32(1), st.Rejected)
	require.Equal(t, uint32(3), st.RxMaxUsed)
}

// drainingThrottle empties the RX ring behind the flow controller's back
// when paused, the way a consumer running between the failed enqueue and
// the pause would
type drainingThrottle struct {
	recordingThrottle
	dev *Device
}

func (d *drainingThrottle) PauseReceive() {
	d.recordingThrottle.PauseReceive()
	for {
		if _, ok := d.dev.rx.TryDequeue(); !ok {
			return
		}
	}
}

func TestFlowControlLeftWhenDrainedDuringPause(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		input string
	}{
		{"binary", Config{RxSize: 4}, "abcd"},
		{"watermarks", Config{RxSize: 8, Watermarks: core.Watermarks{High: 5, Low: 2}}, "12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, dev := bind(t, tt.cfg, streamConfig())
			thr := &drainingThrottle{dev: dev}
			dev.SetThrottle(thr)

			feed(dev, tt.input)
			require.Zero(t, dev.RxBuffered())
			require.False(t, reg.Get(core.DevUSB).InFlowControl(), "empty ring must not stay paused")
			require.Equal(t, []string{"pause", "resume"}, thr.calls)
		})
	}
}

func TestFlowControlDisabledDropsSilently(t *testing.T) {
	cfg := streamConfig()
	cfg.FlowControl = false
	reg, dev := bind(t, Config{RxSize: 2}, cfg)

	require.True(t, dev.Receive('a'))
	require.False(t, dev.Receive('b'))
	require.False(t, reg.Get(core.DevUSB).InFlowControl())
	require.Equal(t, uint32(0), dev.FlowControl().Pauses())
}

func TestFlowControlWatermarks(t *testing.T) {
	reg, dev := bind(t, Config{RxSize: 8, Watermarks: core.Watermarks{High: 5, Low: 2}}, streamConfig())
	desc := reg.Get(core.DevUSB)

	feed(dev, "1234")
	require.False(t, desc.InFlowControl())
	feed(dev, "5")
	require.True(t, desc.InFlowControl())

	for i := 0; i < 2; i++ {
		_, sig := reg.ReadChar(context.Background(), core.DevUSB)
		require.Equal(t, core.SigOK, sig)
		require.True(t, desc.InFlowControl())
	}
	_, sig := reg.ReadChar(context.Background(), core.DevUSB)
	require.Equal(t, core.SigOK, sig)
	require.False(t, desc.InFlowControl())
}

func TestBlockingReadWakesOnReceive(t *testing.T) {
	cfg := streamConfig()
	cfg.Blocking = true
	reg, dev := bind(t, Config{}, cfg)

	go func() {
		time.Sleep(10 * time.Millisecond)
		feed(dev, "M3\n")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	buf := make([]byte, 16)
	n, sig := reg.ReadLine(ctx, core.DevUSB, buf)
	require.Equal(t, core.SigEOL, sig)
	require.Equal(t, "M3", string(buf[:n]))
}

func TestBlockingReadHonorsContext(t *testing.T) {
	cfg := streamConfig()
	cfg.Blocking = true
	reg, _ := bind(t, Config{}, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	n, sig := reg.ReadLine(ctx, core.DevUSB, make([]byte, 16))
	require.Equal(t, core.SigEAGAIN, sig)
	require.Zero(t, n)
}

func TestWriteCRLF(t *testing.T) {
	reg, dev := bind(t, Config{}, streamConfig())
	n, err := reg.WriteString(core.DevUSB, "ok\n")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, "ok\r\n", drainTx(dev))

	reg.SetControlFlags(core.DevUSB, core.CtrlNoCRLF)
	_, err = reg.WriteString(core.DevUSB, "ok\n")
	require.NoError(t, err)
	require.Equal(t, "ok\n", drainTx(dev))
}

func TestWriteFullNonBlocking(t *testing.T) {
	reg, _ := bind(t, Config{TxSize: 3}, streamConfig())
	n, err := reg.WriteString(core.DevUSB, "abc")
	require.ErrorIs(t, err, core.ErrBufferFull)
	require.Equal(t, 2, n)
}

func TestWriteBlockingWaitsForSpace(t *testing.T) {
	cfg := streamConfig()
	cfg.Blocking = true
	reg, dev := bind(t, Config{TxSize: 3}, cfg)

	done := make(chan string)
	go func() {
		var out []byte
		for len(out) < 5 {
			select {
			case <-dev.TxPending():
			case <-time.After(time.Millisecond):
			}
			out = append(out, drainTx(dev)...)
		}
		done <- string(out)
	}()

	n, err := reg.WriteString(core.DevUSB, "hello")
	require.NoError(t, err)
	require.Equal(t, 5, n)
	select {
	case got := <-done:
		require.Equal(t, "hello", got)
	case <-time.After(2 * time.Second):
		t.Fatal("transmitter never drained")
	}
}

func TestWriteDisabled(t *testing.T) {
	cfg := streamConfig()
	cfg.Write = false
	reg, _ := bind(t, Config{}, cfg)
	require.ErrorIs(t, reg.WriteChar(core.DevUSB, 'x'), core.ErrWriteDisabled)
}

func TestTxReadyMutex(t *testing.T) {
	_, dev := bind(t, Config{}, streamConfig())
	require.NoError(t, dev.WriteChar('z'))

	dev.txMutex = 1
	_, ok := dev.TxReady()
	require.False(t, ok, "re-entrant TxReady must not dequeue")
	require.Equal(t, 1, dev.TxBuffered())

	dev.txMutex = 0
	b, ok := dev.TxReady()
	require.True(t, ok)
	require.Equal(t, byte('z'), b)
	require.Equal(t, uint32(1), dev.Stats().Transmitted)
}
