package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"

	"cncxio/core"
	"cncxio/xio"
)

var (
	errUsage         = errors.New("usage")
	errUnknownDevice = errors.New("unknown device")
)

// console executes interactive commands against a running system
type console struct {
	sys         *xio.System
	out         io.Writer
	logger      *zap.SugaredLogger
	readTimeout time.Duration
}

// exec runs one command line. It returns true when the user asked to quit.
func (c *console) exec(ctx context.Context, line string) (bool, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return false, err
	}
	if len(args) == 0 {
		return false, nil
	}

	switch args[0] {
	case "quit", "exit", "q":
		return true, nil

	case "help", "?":
		c.printHelp()

	case "read":
		return false, c.read(ctx, args[1:])

	case "write":
		return false, c.write(args[1:])

	case "ctrl":
		return false, c.ctrl(args[1:])

	case "run":
		return false, c.run(ctx)

	case "rewind":
		c.sys.RewindProgram()
		fmt.Fprintln(c.out, "program rewound")

	case "stats":
		c.stats()

	case "events":
		core.DumpEvents()

	case "clear":
		core.ClearEvents()

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for available commands)\n", args[0])
	}
	return false, nil
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, "\nAvailable commands:")
	fmt.Fprintln(c.out, "  read <dev>             - Read one line or signal")
	fmt.Fprintln(c.out, "  write <dev> <text>     - Write text followed by a newline")
	fmt.Fprintln(c.out, "  ctrl <dev> <flag>...   - Apply control flags (rd, noblock, echo, ...)")
	fmt.Fprintln(c.out, "  run                    - Run the program memory device to end-of-file")
	fmt.Fprintln(c.out, "  rewind                 - Restart the program")
	fmt.Fprintln(c.out, "  stats                  - Show device counters")
	fmt.Fprintln(c.out, "  events                 - Dump the event ring")
	fmt.Fprintln(c.out, "  clear                  - Clear the event ring")
	fmt.Fprintln(c.out, "  quit/exit/q            - Exit the program")
	fmt.Fprintln(c.out)
}

func (c *console) device(args []string, n int) (core.DeviceID, error) {
	if len(args) < n {
		return 0, errUsage
	}
	id, ok := core.ParseDeviceID(args[0])
	if !ok {
		return 0, fmt.Errorf("%q: %w", args[0], errUnknownDevice)
	}
	return id, nil
}

func (c *console) read(ctx context.Context, args []string) error {
	id, err := c.device(args, 1)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	buf := make([]byte, c.sys.Registry().Get(id).Config().LineSize)
	n, sig := c.sys.Registry().ReadLine(ctx, id, buf)
	if n > 0 || sig == core.SigEOL {
		fmt.Fprintf(c.out, "%s %s: %q\n", id, sig, buf[:n])
		return nil
	}
	fmt.Fprintf(c.out, "%s %s\n", id, sig)
	return nil
}

func (c *console) write(args []string) error {
	id, err := c.device(args, 2)
	if err != nil {
		return err
	}
	text := strings.Join(args[1:], " ") + "\n"
	n, err := c.sys.Registry().WriteString(id, text)
	if err != nil {
		return fmt.Errorf("write %s after %d bytes: %w", id, n, err)
	}
	return nil
}

func (c *console) ctrl(args []string) error {
	id, err := c.device(args, 2)
	if err != nil {
		return err
	}
	var ctl core.Control
	for _, name := range args[1:] {
		bit, ok := core.ParseControl(name)
		if !ok {
			return fmt.Errorf("unknown control %q", name)
		}
		ctl |= bit
	}
	c.sys.Registry().SetControlFlags(id, ctl)
	c.logger.Debugw("control applied", "device", id.String(), "config", fmt.Sprintf("%+v", c.sys.Registry().Get(id).Config()))
	return nil
}

func (c *console) run(ctx context.Context) error {
	lines := 0
	err := c.sys.Serve(ctx, core.DevPGM, func(id core.DeviceID, line string) error {
		lines++
		fmt.Fprintf(c.out, "%4d  %s\n", lines, line)
		return nil
	})
	fmt.Fprintf(c.out, "%d lines\n", lines)
	return err
}

func (c *console) stats() {
	reg := c.sys.Registry()
	for id := core.DeviceID(0); id < core.DevCount; id++ {
		d := reg.Get(id)
		fmt.Fprintf(c.out, "%-6s %-6s lines=%d signals=%d dropped=%d flow=%v eof=%v\n",
			id, d.Class(), d.Lines(), d.Signals(), d.Dropped(), d.InFlowControl(), d.EOF())
		if id == core.DevPGM {
			prog := c.sys.Program()
			fmt.Fprintf(c.out, "       offset=%d/%d\n", prog.Offset(), prog.Len())
		}
		if u, err := c.sys.USART(id); err == nil {
			st := u.Stats()
			fmt.Fprintf(c.out, "       rx=%d rejected=%d tx=%d rx_max=%d pauses=%d\n",
				st.Received, st.Rejected, st.Transmitted, st.RxMaxUsed, u.FlowControl().Pauses())
		}
	}
}
