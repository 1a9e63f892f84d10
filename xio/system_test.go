package xio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cncxio/config"
	"cncxio/core"
	"cncxio/drivers/usart"
)

var errUnsupported = errors.New("unsupported")

type recorder struct {
	lines []string
}

func (r *recorder) handle(id core.DeviceID, line string) error {
	r.lines = append(r.lines, line)
	if line == "BAD" {
		return errUnsupported
	}
	return nil
}

func quietConfig() *config.SystemConfig {
	cfg := config.DefaultConfig()
	usb := cfg.Devices["usb"]
	usb.Controls = []string{"rd", "wr", "block", "crlf", "linemode"}
	cfg.Devices["usb"] = usb
	return cfg
}

func newSystem(t *testing.T, cfg *config.SystemConfig, program string) *System {
	t.Helper()
	s, err := NewSystemWithConfig(cfg, []byte(program))
	require.NoError(t, err)
	return s
}

func usbDevice(t *testing.T, s *System) *usart.Device {
	t.Helper()
	dev, err := s.USART(core.DevUSB)
	require.NoError(t, err)
	return dev
}

func drain(dev *usart.Device) string {
	var out []byte
	for {
		b, ok := dev.TxReady()
		if !ok {
			return string(out)
		}
		out = append(out, b)
	}
}

func feed(dev *usart.Device, s string) {
	for i := 0; i < len(s); i++ {
		dev.Receive(s[i])
	}
}

func TestNewSystemBindsEverything(t *testing.T) {
	s := newSystem(t, config.DefaultConfig(), "")
	for id := core.DeviceID(0); id < core.DevCount; id++ {
		require.True(t, s.Registry().Get(id).Bound(), "%s unbound", id)
	}
	require.NotNil(t, s.Program())

	_, err := s.USART(core.DevPGM)
	require.ErrorIs(t, err, ErrNotStream)
}

func TestNewSystemRejectsBadConfig(t *testing.T) {
	_, err := NewSystem([]byte(`{"devices": {"usb": {"rx_size": 1}}}`), nil)
	require.ErrorIs(t, err, usart.ErrBufferSize)

	_, err = NewSystem([]byte(`{"devices": {"usb": {"controls": ["fast"]}}}`), nil)
	require.ErrorIs(t, err, config.ErrUnknownControl)
}

func TestServeProgramEchoesToConsole(t *testing.T) {
	s := newSystem(t, config.DefaultConfig(), "G0 X1\n\nG1 Y2\n")
	rec := &recorder{}

	err := s.Serve(context.Background(), core.DevPGM, rec.handle)
	require.NoError(t, err)
	require.Equal(t, []string{"G0 X1", "G1 Y2"}, rec.lines)
	require.Equal(t, "G0 X1\r\nok\r\n\r\nG1 Y2\r\nok\r\n", drain(usbDevice(t, s)))
}

func TestServeRewindProgram(t *testing.T) {
	s := newSystem(t, quietConfig(), "M3\n")
	rec := &recorder{}

	require.NoError(t, s.Serve(context.Background(), core.DevPGM, rec.handle))
	require.NoError(t, s.Serve(context.Background(), core.DevPGM, rec.handle))
	require.Equal(t, []string{"M3"}, rec.lines)

	s.RewindProgram()
	require.NoError(t, s.Serve(context.Background(), core.DevPGM, rec.handle))
	require.Equal(t, []string{"M3", "M3"}, rec.lines)

	s.LoadProgram([]byte("M5"))
	require.NoError(t, s.Serve(context.Background(), core.DevPGM, rec.handle))
	require.Equal(t, []string{"M3", "M3", "M5"}, rec.lines)
}

func TestServeStreamUntilKill(t *testing.T) {
	s := newSystem(t, quietConfig(), "")
	usb := usbDevice(t, s)
	feed(usb, "G28\n  \nBAD\n\x03")
	rec := &recorder{}

	err := s.Serve(context.Background(), core.DevUSB, rec.handle)
	require.ErrorIs(t, err, ErrKilled)
	require.Equal(t, []string{"G28", "BAD"}, rec.lines)
	require.Equal(t, "ok\r\nerror: unsupported\r\n", drain(usb))
}

func TestServeSignals(t *testing.T) {
	s := newSystem(t, quietConfig(), "")
	usb := usbDevice(t, s)
	feed(usb, "G1\x13 X1\x11\n\x18")

	var sigs []core.Signal
	rec := &recorder{}
	err := s.Serve(context.Background(), core.DevUSB, rec.handle, ServeOptions{
		OnSignal: func(id core.DeviceID, sig core.Signal) { sigs = append(sigs, sig) },
	})
	require.ErrorIs(t, err, ErrTerminated)
	require.Equal(t, []core.Signal{core.SigPause, core.SigResume}, sigs)
	require.Equal(t, []string{"G1 X1"}, rec.lines)
}

func TestServeStopsOnContext(t *testing.T) {
	s := newSystem(t, quietConfig(), "")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Serve(ctx, core.DevUSB, (&recorder{}).handle)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServeNonBlockingWaitsForData(t *testing.T) {
	s := newSystem(t, quietConfig(), "")
	s.Registry().SetControlFlags(core.DevAUX, core.CtrlNoBlock|core.CtrlNoEcho)
	aux, err := s.USART(core.DevAUX)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		feed(aux, "M114\n\x18")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec := &recorder{}
	err = s.Serve(ctx, core.DevAUX, rec.handle)
	require.ErrorIs(t, err, ErrTerminated)
	require.Equal(t, []string{"M114"}, rec.lines)
	require.Equal(t, "ok\r\n", drain(aux))
}

func TestServeReplyOverride(t *testing.T) {
	s := newSystem(t, quietConfig(), "")
	aux, err := s.USART(core.DevAUX)
	require.NoError(t, err)
	s.Registry().SetControlFlags(core.DevAUX, core.CtrlNoEcho)
	feed(aux, "G4\n\x03")

	reply := core.DevUSB
	err = s.Serve(context.Background(), core.DevAUX, (&recorder{}).handle, ServeOptions{Reply: &reply})
	require.ErrorIs(t, err, ErrKilled)
	require.Equal(t, "", drain(aux))
	require.Equal(t, "ok\r\n", drain(usbDevice(t, s)))
}

func TestAnnounce(t *testing.T) {
	s := newSystem(t, quietConfig(), "")
	require.NoError(t, s.Announce(core.DevUSB))
	require.Equal(t, "cncxio ready\r\n", drain(usbDevice(t, s)))
	require.ErrorIs(t, s.Announce(core.DevPGM), core.ErrWriteDisabled)
}
