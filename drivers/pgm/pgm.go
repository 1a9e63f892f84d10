// Package pgm implements the file-class device: a read-only program held
// in memory, typically a G-code file embedded in the firmware image.
package pgm

import (
	"context"

	"cncxio/core"
)

// Device reads a fixed byte slice. A NUL byte or the end of the slice is
// end-of-file.
type Device struct {
	data []byte
	pos  int
}

// New creates a device over data. The slice is not copied.
func New(data []byte) *Device {
	return &Device{data: data}
}

// Open replaces the program and rewinds to its start
func (p *Device) Open(data []byte) {
	p.data = data
	p.pos = 0
}

// Rewind moves back to the start of the program. The descriptor's EOF flag
// must be cleared separately with Descriptor.ClearEOF.
func (p *Device) Rewind() {
	p.pos = 0
}

// Offset returns the index of the next byte to be read
func (p *Device) Offset() int {
	return p.pos
}

// Len returns the program size in bytes
func (p *Device) Len() int {
	return len(p.data)
}

// ReadChar returns the next program byte
func (p *Device) ReadChar() (byte, bool) {
	if p.pos >= len(p.data) {
		return 0, false
	}
	c := p.data[p.pos]
	p.pos++
	return c, true
}

// WriteChar always fails; program memory is read-only
func (p *Device) WriteChar(byte) error {
	return core.ErrReadOnly
}

// ReadLine runs the line assembler over the program
func (p *Device) ReadLine(ctx context.Context, d *core.Descriptor, buf []byte) (int, core.Signal) {
	return core.AssembleLine(ctx, d, p, buf)
}
