//go:build rp2040 || rp2350

package main

import (
	"context"
	_ "embed"
	"errors"
	"machine"
	"time"

	"tinygo.org/x/drivers"

	"cncxio/config"
	"cncxio/core"
	"cncxio/drivers/usart"
	"cncxio/xio"
)

// program is run from program memory once at boot
//
//go:embed program.gcode
var program []byte

var (
	sys   *xio.System
	pumps []*usart.Pump

	// Debug counters
	linesExecuted uint32
	pumpErrors    uint32
	loopPanics    uint32
)

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	cfg := config.DefaultConfig()
	sys, err = xio.NewSystemWithConfig(cfg, program)
	if err != nil {
		blinkForever(100 * time.Millisecond)
	}

	if err := initUARTs(cfg); err != nil {
		blinkForever(100 * time.Millisecond)
	}

	// Debug output goes to the auxiliary TTL port
	core.SetDebugWriter(func(s string) {
		_, _ = sys.Registry().WriteString(core.DevAUX, s+"\n")
	})

	go commandLoop()

	// Main loop plays the UART interrupts for every stream device
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					loopPanics++
				}
			}()
			for _, p := range pumps {
				if _, _, err := p.Poll(); err != nil {
					pumpErrors++
				}
			}
		}()

		// Yield to the command loop
		time.Sleep(10 * time.Microsecond)
	}
}

// initUARTs configures the hardware ports and attaches a pump to each
// stream device: RS485 on UART0, AUX on UART1 and USB on the CDC port
func initUARTs(cfg *config.SystemConfig) error {
	ports := []struct {
		id   core.DeviceID
		uart *machine.UART
		tx   machine.Pin
		rx   machine.Pin
	}{
		{core.DevRS485, machine.UART0, machine.GPIO0, machine.GPIO1},
		{core.DevAUX, machine.UART1, machine.GPIO4, machine.GPIO5},
	}

	for _, p := range ports {
		ccfg, err := cfg.Profile(p.id).CoreConfig()
		if err != nil {
			return err
		}
		rate := ccfg.Baud.Rate()
		if rate == 0 {
			rate = config.DefaultBaud
		}
		err = p.uart.Configure(machine.UARTConfig{
			BaudRate: uint32(rate),
			TX:       p.tx,
			RX:       p.rx,
		})
		if err != nil {
			return err
		}
		if err := attach(p.id, p.uart); err != nil {
			return err
		}
	}

	// USB CDC ignores the baud rate
	return attach(core.DevUSB, serialUART{machine.Serial})
}

// serialUART adds a block Read to the byte-oriented machine.Serialer
type serialUART struct {
	machine.Serialer
}

func (s serialUART) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) && s.Buffered() > 0 {
		c, err := s.ReadByte()
		if err != nil {
			return n, err
		}
		p[n] = c
		n++
	}
	return n, nil
}

func attach(id core.DeviceID, port drivers.UART) error {
	dev, err := sys.USART(id)
	if err != nil {
		return err
	}
	pumps = append(pumps, usart.NewPump(port, dev))
	return nil
}

// commandLoop runs the boot program, then serves the USB console forever.
// A kill or terminate from the console restarts the serve loop.
func commandLoop() {
	ctx := context.Background()

	if len(program) > 0 {
		if err := sys.Serve(ctx, core.DevPGM, handleLine); err != nil {
			core.DebugPrintln("[XIO] program stopped: " + err.Error())
		}
	}

	_ = sys.Announce(core.DevUSB)
	for {
		err := sys.Serve(ctx, core.DevUSB, handleLine, xio.ServeOptions{
			OnSignal: handleSignal,
		})
		switch {
		case errors.Is(err, xio.ErrKilled):
			_, _ = sys.Registry().WriteString(core.DevUSB, "killed\n")
		case errors.Is(err, xio.ErrTerminated):
			_, _ = sys.Registry().WriteString(core.DevUSB, "terminated\n")
		}
	}
}

// handleLine is where the command interpreter takes over. Only the
// reporting commands needed to inspect the I/O layer are handled here.
func handleLine(id core.DeviceID, line string) error {
	linesExecuted++
	switch line {
	case "M115":
		_, err := sys.Registry().WriteString(id, "FIRMWARE_NAME:cncxio\n")
		return err
	case "M999":
		core.DumpEvents()
	case "$X":
		sys.RewindProgram()
	}
	return nil
}

func handleSignal(id core.DeviceID, sig core.Signal) {
	if sig == core.SigBell {
		blink(3, 50*time.Millisecond)
	}
	core.DebugPrintln("[XIO] signal " + sig.String() + " on " + id.String())
}

func blink(n int, period time.Duration) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < n; i++ {
		led.High()
		time.Sleep(period)
		led.Low()
		time.Sleep(period)
	}
}

// blinkForever flashes the LED to report a fatal init error
func blinkForever(period time.Duration) {
	for {
		blink(1, period)
	}
}
