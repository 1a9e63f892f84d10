package core

import (
	"context"
	"sync/atomic"
)

// Source is the read side consumed by the line assembler
type Source interface {
	ReadChar() (c byte, ok bool)
}

// AssembleLine runs the line assembler for one read call on d, consuming
// bytes from src. Drivers call it from their ReadLine.
//
// In line mode bytes accumulate in the descriptor's line buffer until a
// line terminator, control signal or end-of-file is seen. A partial line
// survives EAGAIN and non-aborting signals so the next call resumes it.
// Kill, terminate and escape drop the partial line; bytes still queued in
// the device are left alone.
//
// With line mode off the call copies whatever is available into buf and
// returns SigOK.
func AssembleLine(ctx context.Context, d *Descriptor, src Source, buf []byte) (int, Signal) {
	d.clearFlag(flagEOL)
	if d.Class() == ClassStream {
		d.clearFlag(flagEOF)
	}
	if !d.cfg.LineMode {
		return readRaw(ctx, d, src, buf)
	}

	limit := len(d.line)
	if limit == 0 || len(buf) == 0 {
		return 0, d.setSignal(SigOK)
	}
	if d.hasFlag(flagSplit) {
		return d.deliver(buf)
	}

	if d.Class() == ClassFile && d.EOF() {
		if d.lineLen > 0 {
			return d.deliver(buf)
		}
		return 0, d.setSignal(SigEOF)
	}
	if d.lineLen >= limit && d.cfg.Overflow == OverflowBreak {
		return d.deliver(buf)
	}

	for {
		c, ok := src.ReadChar()
		if !ok {
			if d.Class() == ClassFile {
				return d.endOfFile(buf)
			}
			if !d.cfg.Blocking || !wait(ctx, src) {
				return 0, d.setSignal(SigEAGAIN)
			}
			continue
		}

		if d.hasFlag(flagTrailCR) {
			d.clearFlag(flagTrailCR)
			if c == LF {
				continue
			}
		}

		broke := d.hasFlag(flagBreak)
		if broke {
			d.clearFlag(flagBreak)
		}

		if sig, isSig := ControlSignal(c); isSig {
			return 0, d.intercept(sig)
		}

		switch {
		case c == NUL:
			if d.Class() == ClassFile {
				return d.endOfFile(buf)
			}
			d.setFlag(flagEOF)
			RecordEvent(EvtEOF, d.id, 0)
			return 0, d.setSignal(SigEOF)

		case c == LF || c == CR:
			d.echoChar(LF)
			if c == CR {
				d.setFlag(flagTrailCR)
			}
			if broke {
				// terminator of the line already delivered by the break
				continue
			}
			return d.deliver(buf)

		case c == ';' && d.cfg.Semicolons:
			d.echoChar(c)
			if broke {
				continue
			}
			return d.deliver(buf)
		}

		d.echoChar(c)
		if d.lineLen >= limit {
			// only reachable with OverflowReject
			atomic.AddUint32(&d.dropped, 1)
			RecordEvent(EvtOverflow, d.id, uint32(d.lineLen))
			continue
		}
		d.line[d.lineLen] = c
		d.lineLen++
		d.setFlag(flagInLine)

		if d.lineLen >= limit && d.cfg.Overflow == OverflowBreak {
			RecordEvent(EvtOverflow, d.id, uint32(d.lineLen))
			d.setFlag(flagBreak)
			return d.deliver(buf)
		}
	}
}

// ReadChar reads one byte from src on behalf of d. Control bytes are
// returned as signals, never as data.
func ReadChar(ctx context.Context, d *Descriptor, src Source) (byte, Signal) {
	if d.Class() == ClassFile && d.EOF() {
		return 0, d.setSignal(SigEOF)
	}
	for {
		c, ok := src.ReadChar()
		if !ok {
			if d.Class() == ClassFile {
				d.setFlag(flagEOF)
				return 0, d.setSignal(SigEOF)
			}
			if !d.cfg.Blocking || !wait(ctx, src) {
				return 0, d.setSignal(SigEAGAIN)
			}
			continue
		}
		if sig, isSig := ControlSignal(c); isSig {
			return 0, d.intercept(sig)
		}
		if c == NUL && (d.cfg.LineMode || d.Class() == ClassFile) {
			if d.Class() == ClassFile {
				d.setFlag(flagEOF)
			}
			return 0, d.setSignal(SigEOF)
		}
		d.echoChar(c)
		return c, d.setSignal(SigOK)
	}
}

// readRaw copies available bytes into buf. A control byte found after some
// data has been copied is held back and reported by the next call, so data
// and a signal are never returned together.
func readRaw(ctx context.Context, d *Descriptor, src Source, buf []byte) (int, Signal) {
	if sig, ok := d.takePending(); ok {
		return 0, d.setSignal(sig)
	}
	if d.Class() == ClassFile && d.EOF() {
		return 0, d.setSignal(SigEOF)
	}

	n := 0
	for n < len(buf) {
		c, ok := src.ReadChar()
		if !ok {
			if n > 0 {
				break
			}
			if d.Class() == ClassFile {
				d.setFlag(flagEOF)
				return 0, d.setSignal(SigEOF)
			}
			if !d.cfg.Blocking || !wait(ctx, src) {
				return 0, d.setSignal(SigEAGAIN)
			}
			continue
		}
		if sig, isSig := ControlSignal(c); isSig {
			if n == 0 {
				return 0, d.intercept(sig)
			}
			d.setPending(d.intercept(sig))
			break
		}
		if c == NUL && d.Class() == ClassFile {
			d.setFlag(flagEOF)
			if n == 0 {
				return 0, d.setSignal(SigEOF)
			}
			break
		}
		d.echoChar(c)
		buf[n] = c
		n++
	}
	return n, d.setSignal(SigOK)
}

func wait(ctx context.Context, src Source) bool {
	w, ok := src.(Waiter)
	if !ok {
		return false
	}
	select {
	case <-w.RxReady():
		return true
	case <-ctx.Done():
		return false
	}
}

// deliver moves the assembled line into buf. Bytes that do not fit stay
// in the line buffer and are delivered by the next call.
func (d *Descriptor) deliver(buf []byte) (int, Signal) {
	n := copy(buf, d.line[:d.lineLen])
	d.lineLen = copy(d.line, d.line[n:d.lineLen])
	d.setFlag(flagEOL)
	if d.lineLen > 0 {
		d.setFlag(flagSplit)
		return n, d.setSignal(SigEOL)
	}
	d.clearFlag(flagInLine | flagSplit)
	atomic.AddUint32(&d.linesTotal, 1)
	return n, d.setSignal(SigEOL)
}

// endOfFile marks a file device exhausted. A trailing line without a
// terminator is still delivered; EOF is reported by the following call.
func (d *Descriptor) endOfFile(buf []byte) (int, Signal) {
	if !d.EOF() {
		d.setFlag(flagEOF)
		RecordEvent(EvtEOF, d.id, 0)
	}
	if d.lineLen > 0 {
		return d.deliver(buf)
	}
	return 0, d.setSignal(SigEOF)
}

func (d *Descriptor) intercept(sig Signal) Signal {
	atomic.AddUint32(&d.signals, 1)
	RecordEvent(EvtSignal, d.id, uint32(sig))
	if sig.Aborts() {
		d.ResetLine()
	}
	return d.setSignal(sig)
}

func (d *Descriptor) setPending(sig Signal) {
	d.pending = sig
	d.setFlag(flagPending)
}

func (d *Descriptor) takePending() (Signal, bool) {
	if !d.hasFlag(flagPending) {
		return SigOK, false
	}
	d.clearFlag(flagPending)
	return d.pending, true
}
