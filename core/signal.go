package core

// Signal is the classified outcome of a read, or a control event found in
// the byte stream
type Signal uint8

const (
	SigOK        Signal = iota // OK, data returned
	SigEAGAIN                  // would block
	SigEOL                     // end-of-line encountered (string has data)
	SigEOF                     // end-of-file encountered (string has no data)
	SigKill                    // cancel operation immediately (^c, ETX)
	SigTerminate               // cancel operation nicely (^x, CAN)
	SigPause                   // pause operation (^s, XOFF, DC3)
	SigResume                  // resume operation (^q, XON, DC1)
	SigEscape                  // ESC, typically mapped to kill or terminate
	SigDelete                  // backspace or delete character (BS, DEL)
	SigBell                    // BEL character (^g)
)

var signalNames = [...]string{
	SigOK:        "ok",
	SigEAGAIN:    "eagain",
	SigEOL:       "eol",
	SigEOF:       "eof",
	SigKill:      "kill",
	SigTerminate: "terminate",
	SigPause:     "pause",
	SigResume:    "resume",
	SigEscape:    "escape",
	SigDelete:    "delete",
	SigBell:      "bell",
}

func (s Signal) String() string {
	if int(s) < len(signalNames) {
		return signalNames[s]
	}
	return "sig" + itoa(int(s))
}

// IsControl reports whether s came from a control byte rather than from
// the state of the data stream
func (s Signal) IsControl() bool {
	return s >= SigKill
}

// Aborts reports whether s cancels the line being assembled
func (s Signal) Aborts() bool {
	return s == SigKill || s == SigTerminate || s == SigEscape
}

// ASCII control codes
const (
	NUL = 0x00 // end of string in program memory
	ETX = 0x03 // ^c
	BEL = 0x07 // ^g
	BS  = 0x08 // ^h
	LF  = 0x0A
	CR  = 0x0D
	DC1 = 0x11 // ^q, XON
	DC3 = 0x13 // ^s, XOFF
	CAN = 0x18 // ^x
	ESC = 0x1B
	DEL = 0x7F

	CtrlC = ETX
	CtrlG = BEL
	CtrlH = BS
	CtrlQ = DC1
	CtrlS = DC3
	CtrlX = CAN
	XON   = DC1
	XOFF  = DC3
)

// ControlSignal classifies a control byte. Bytes that carry no signal
// return false.
func ControlSignal(c byte) (Signal, bool) {
	switch c {
	case ETX:
		return SigKill, true
	case CAN:
		return SigTerminate, true
	case DC3:
		return SigPause, true
	case DC1:
		return SigResume, true
	case ESC:
		return SigEscape, true
	case BS, DEL:
		return SigDelete, true
	case BEL:
		return SigBell, true
	}
	return SigOK, false
}
