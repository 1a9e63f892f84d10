package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cncxio/config"
	"cncxio/core"
	"cncxio/drivers/usart"
	"cncxio/host/serial"
	"cncxio/xio"
)

var (
	device   = flag.String("device", "", "Serial device bridged to the USB port (empty for none)")
	baud     = flag.Int("baud", 0, "Baud rate (default from the configuration)")
	cfgPath  = flag.String("config", "", "JSON device configuration (default stock table)")
	program  = flag.String("program", "", "G-code file loaded into program memory")
	xonxoff  = flag.Bool("xonxoff", false, "Send XOFF/XON when the receive buffer fills and drains")
	serve    = flag.Bool("serve", false, "Serve lines from the USB port instead of the console")
	verbose  = flag.Bool("verbose", false, "Enable verbose output")
	readWait = flag.Duration("read-timeout", time.Second, "Console read timeout")
)

func main() {
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	core.SetDebugWriter(func(s string) { logger.Debug(s) })

	if err := run(logger); err != nil {
		logger.Errorw("exiting", "error", err)
		os.Exit(1)
	}
}

func run(logger *zap.SugaredLogger) error {
	cfg := config.DefaultConfig()
	if *cfgPath != "" {
		data, err := os.ReadFile(*cfgPath)
		if err != nil {
			return err
		}
		if cfg, err = config.LoadConfig(data); err != nil {
			return fmt.Errorf("config %s: %w", *cfgPath, err)
		}
	}
	if *verbose {
		cfg.Debug = true
	}

	var prog []byte
	if *program != "" {
		data, err := os.ReadFile(*program)
		if err != nil {
			return err
		}
		prog = data
	}

	sys, err := xio.NewSystemWithConfig(cfg, prog)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *device != "" {
		bridge, err := openBridge(ctx, sys, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := bridge.Close(); err != nil {
				logger.Warnw("bridge close", "error", err)
			}
		}()
		if err := sys.Announce(core.DevUSB); err != nil {
			logger.Warnw("announce", "error", err)
		}
	} else {
		usb, err := sys.USART(core.DevUSB)
		if err != nil {
			return err
		}
		go drainTo(ctx, usb, os.Stdout)
	}

	if *serve {
		return serveUSB(ctx, sys, logger)
	}
	return interactive(ctx, sys, logger)
}

func openBridge(ctx context.Context, sys *xio.System, logger *zap.SugaredLogger) (*serial.Bridge, error) {
	usbCfg, err := sys.Config().Profile(core.DevUSB).CoreConfig()
	if err != nil {
		return nil, err
	}
	portCfg := serial.DefaultConfig(*device, usbCfg.Baud)
	if *baud != 0 {
		b, ok := core.BaudFromRate(*baud)
		if !ok {
			return nil, fmt.Errorf("-baud %d: %w", *baud, serial.ErrBaud)
		}
		portCfg.Baud = b
	}

	logger.Infow("opening serial port", "device", portCfg.Device, "baud", portCfg.Baud.Rate())
	port, err := serial.Open(portCfg)
	if err != nil {
		return nil, err
	}

	usb, err := sys.USART(core.DevUSB)
	if err != nil {
		return nil, err
	}
	bridge := serial.NewBridge(port, usb, logger.Named("bridge"), serial.BridgeOptions{SoftwareFlow: *xonxoff})
	bridge.Start(ctx)
	return bridge, nil
}

// drainTo plays the transmitter of an unconnected device so that its
// writes never fill the TX ring
func drainTo(ctx context.Context, dev *usart.Device, w io.Writer) {
	chunk := make([]byte, 0, 64)
	for {
		select {
		case <-dev.TxPending():
		case <-ctx.Done():
			return
		}
		for {
			chunk = chunk[:0]
			for len(chunk) < cap(chunk) {
				c, ok := dev.TxReady()
				if !ok {
					break
				}
				chunk = append(chunk, c)
			}
			if len(chunk) == 0 {
				break
			}
			_, _ = w.Write(chunk)
		}
	}
}

func serveUSB(ctx context.Context, sys *xio.System, logger *zap.SugaredLogger) error {
	logger.Infow("serving", "device", core.DevUSB.String())
	err := sys.Serve(ctx, core.DevUSB, func(id core.DeviceID, line string) error {
		fmt.Println(line)
		return nil
	}, xio.ServeOptions{
		OnSignal: func(id core.DeviceID, sig core.Signal) {
			logger.Infow("signal", "device", id.String(), "signal", sig.String())
		},
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func interactive(ctx context.Context, sys *xio.System, logger *zap.SugaredLogger) error {
	fmt.Println("cncxio host console")
	fmt.Println("===================")
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")

	con := &console{
		sys:         sys,
		out:         os.Stdout,
		logger:      logger,
		readTimeout: *readWait,
	}
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		quit, err := con.exec(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		if quit {
			fmt.Println("Goodbye!")
			return nil
		}
	}
	return scanner.Err()
}

// newLogger builds a console logger in the style of the rdk logging config
func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	logger, err := zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar().Named("xio-host"), nil
}
