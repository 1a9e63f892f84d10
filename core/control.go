package core

// Control is a requested set of control bits, composed with bitwise OR.
// Requests are turned into a Config before they are stored; the bits
// themselves are never persisted.
type Control uint16

// Control request bits
const (
	CtrlBaudMask     Control = 0x000F // baud rate enum (keep in the low nibble)
	CtrlRD           Control = 1 << 4 // read enable
	CtrlWR           Control = 1 << 5 // write enable
	CtrlRDWR                 = CtrlRD | CtrlWR
	CtrlBlock        Control = 1 << 6  // enable blocking reads and writes
	CtrlNoBlock      Control = 1 << 7  // disable blocking reads and writes
	CtrlEcho         Control = 1 << 8  // echo reads back out
	CtrlNoEcho       Control = 1 << 9  // disable echo
	CtrlCRLF         Control = 1 << 10 // convert LF to CR LF on writes
	CtrlNoCRLF       Control = 1 << 11 // do not convert LF on writes
	CtrlLineMode     Control = 1 << 12 // line oriented reads
	CtrlNoLineMode   Control = 1 << 13 // raw reads
	CtrlSemicolons   Control = 1 << 14 // treat semicolons as line breaks
	CtrlNoSemicolons Control = 1 << 15 // semicolons are ordinary data
)

// Baud is the baud rate enum carried in the low nibble of a Control
type Baud uint8

const (
	BaudUnspecified Baud = iota
	Baud9600
	Baud19200
	Baud38400
	Baud57600
	Baud115200
	Baud230400
	Baud460800
	Baud921600
	Baud500000
	Baud1000000
)

var baudRates = [...]int{0, 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600, 500000, 1000000}

// Rate returns the bit rate, or 0 if unspecified or unknown
func (b Baud) Rate() int {
	if int(b) >= len(baudRates) {
		return 0
	}
	return baudRates[b]
}

// BaudFromRate maps a bit rate to its enum value
func BaudFromRate(rate int) (Baud, bool) {
	for i, r := range baudRates {
		if i > 0 && r == rate {
			return Baud(i), true
		}
	}
	return BaudUnspecified, false
}

// OverflowPolicy decides what happens when a line outgrows the line buffer
type OverflowPolicy uint8

const (
	// OverflowBreak delivers the full buffer as a line, as if a line
	// terminator had arrived.
	OverflowBreak OverflowPolicy = iota
	// OverflowReject drops bytes that do not fit and counts them. The line
	// is delivered when its terminator arrives.
	OverflowReject
)

func (p OverflowPolicy) String() string {
	if p == OverflowReject {
		return "reject"
	}
	return "break"
}

// CharBufferSize is the default line buffer size
const CharBufferSize = 80

// Config is the persisted configuration of a device
type Config struct {
	Read        bool // enabled for read
	Write       bool // enabled for write
	Blocking    bool // reads and writes wait instead of returning EAGAIN
	Echo        bool // echo received chars to the echo device
	CRLF        bool // convert LF to CR LF on writes
	LineMode    bool // assemble lines instead of returning raw bytes
	Semicolons  bool // treat ';' as a line break
	FlowControl bool // pause the receiver when the receive buffer fills
	Baud        Baud

	LineSize int            // line buffer size, CharBufferSize if zero
	Overflow OverflowPolicy // policy when LineSize is exceeded
}

// Apply returns c updated by the bits in ctl. When both halves of a pair
// are requested the disabling half wins.
func (c Config) Apply(ctl Control) Config {
	if b := Baud(ctl & CtrlBaudMask); b != BaudUnspecified {
		c.Baud = b
	}
	if ctl&CtrlRD != 0 {
		c.Read = true
	}
	if ctl&CtrlWR != 0 {
		c.Write = true
	}
	c.Blocking = pair(c.Blocking, ctl, CtrlBlock, CtrlNoBlock)
	c.Echo = pair(c.Echo, ctl, CtrlEcho, CtrlNoEcho)
	c.CRLF = pair(c.CRLF, ctl, CtrlCRLF, CtrlNoCRLF)
	c.LineMode = pair(c.LineMode, ctl, CtrlLineMode, CtrlNoLineMode)
	c.Semicolons = pair(c.Semicolons, ctl, CtrlSemicolons, CtrlNoSemicolons)
	return c
}

func pair(cur bool, ctl, on, off Control) bool {
	if ctl&off != 0 {
		return false
	}
	if ctl&on != 0 {
		return true
	}
	return cur
}

// Control returns the request that rebuilds c from a zero Config
func (c Config) Control() Control {
	ctl := Control(c.Baud) & CtrlBaudMask
	flags := []struct {
		set     bool
		on, off Control
	}{
		{c.Blocking, CtrlBlock, CtrlNoBlock},
		{c.Echo, CtrlEcho, CtrlNoEcho},
		{c.CRLF, CtrlCRLF, CtrlNoCRLF},
		{c.LineMode, CtrlLineMode, CtrlNoLineMode},
		{c.Semicolons, CtrlSemicolons, CtrlNoSemicolons},
	}
	if c.Read {
		ctl |= CtrlRD
	}
	if c.Write {
		ctl |= CtrlWR
	}
	for _, f := range flags {
		if f.set {
			ctl |= f.on
		} else {
			ctl |= f.off
		}
	}
	return ctl
}

// ConfigFromControl builds a Config from a zero value
func ConfigFromControl(ctl Control) Config {
	return Config{}.Apply(ctl)
}

var controlNames = []struct {
	name string
	bit  Control
}{
	{"rd", CtrlRD},
	{"wr", CtrlWR},
	{"block", CtrlBlock},
	{"noblock", CtrlNoBlock},
	{"echo", CtrlEcho},
	{"noecho", CtrlNoEcho},
	{"crlf", CtrlCRLF},
	{"nocrlf", CtrlNoCRLF},
	{"linemode", CtrlLineMode},
	{"nolinemode", CtrlNoLineMode},
	{"semicolons", CtrlSemicolons},
	{"nosemicolons", CtrlNoSemicolons},
}

// ParseControl maps a control bit name such as "noblock" to its bit
func ParseControl(name string) (Control, bool) {
	for _, c := range controlNames {
		if c.name == name {
			return c.bit, true
		}
	}
	return 0, false
}
