package xio

import (
	"context"
	"errors"

	"cncxio/core"
)

var (
	// ErrKilled is returned by Serve when a kill signal (^C) arrives
	ErrKilled = errors.New("killed")

	// ErrTerminated is returned by Serve when a terminate signal (^X) arrives
	ErrTerminated = errors.New("terminated")

	// ErrNotReadable is returned by Serve for a device not enabled for read
	ErrNotReadable = errors.New("device not enabled for read")
)

// LineHandler executes one complete command line
type LineHandler func(id core.DeviceID, line string) error

// SignalHandler is told about signals that do not stop Serve
type SignalHandler func(id core.DeviceID, sig core.Signal)

// ServeOptions tune the serve loop
type ServeOptions struct {
	// Reply names the device that receives "ok" and error responses. When
	// unset, the served device replies to itself if it is writable and to
	// its echo target otherwise.
	Reply *core.DeviceID

	// OnSignal receives pause, resume, escape, delete and bell signals
	OnSignal SignalHandler
}

// Serve reads lines from id and hands each non-empty line to handler,
// answering "ok" or "error: <msg>". It returns nil when a file device
// reaches end-of-file, ErrKilled or ErrTerminated on those signals, and
// the context error when ctx is done.
func (s *System) Serve(ctx context.Context, id core.DeviceID, handler LineHandler, opts ...ServeOptions) error {
	var opt ServeOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	reply := s.replyDevice(id, opt)
	d := s.registry.Get(id)
	buf := make([]byte, d.Config().LineSize)

	for {
		n, sig := s.registry.ReadLine(ctx, id, buf)
		switch sig {
		case core.SigEOL:
			line := trimLine(buf[:n])
			if len(line) == 0 {
				continue
			}
			if err := handler(id, line); err != nil {
				s.respond(reply, "error: "+err.Error()+"\n")
				continue
			}
			s.respond(reply, "ok\n")

		case core.SigOK:
			// raw mode data is not a command

		case core.SigEAGAIN:
			if err := ctx.Err(); err != nil {
				return err
			}
			if !s.waitReady(ctx, d) {
				return ctx.Err()
			}

		case core.SigEOF:
			if d.Class() == core.ClassFile {
				return nil
			}
			if !d.Config().Read {
				return ErrNotReadable
			}

		case core.SigKill:
			return ErrKilled

		case core.SigTerminate:
			return ErrTerminated

		default:
			if opt.OnSignal != nil {
				opt.OnSignal(id, sig)
			}
		}
	}
}

func (s *System) replyDevice(id core.DeviceID, opt ServeOptions) core.DeviceID {
	if opt.Reply != nil {
		return *opt.Reply
	}
	if s.registry.Get(id).Config().Write {
		return id
	}
	if to, ok := core.ParseDeviceID(s.config.Profile(id).EchoTo); ok {
		return to
	}
	return id
}

// respond drops the response when the reply device cannot take it
func (s *System) respond(id core.DeviceID, msg string) {
	if _, err := s.registry.WriteString(id, msg); err != nil {
		core.DebugPrintln("[XIO] reply to " + id.String() + " failed: " + err.Error())
	}
}

// waitReady parks a non-blocking reader until its device has data
func (s *System) waitReady(ctx context.Context, d *core.Descriptor) bool {
	w, ok := d.Device().(core.Waiter)
	if !ok {
		return ctx.Err() == nil
	}
	select {
	case <-w.RxReady():
		return true
	case <-ctx.Done():
		return false
	}
}

// trimLine drops surrounding blanks
func trimLine(b []byte) string {
	start, end := 0, len(b)
	for start < end && (b[start] == ' ' || b[start] == '\t') {
		start++
	}
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t') {
		end--
	}
	return string(b[start:end])
}
