package core

// itoa converts an integer to a string without the fmt package, which is
// too heavy for the MCU targets
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	negative := n < 0
	if negative {
		n = -n
	}
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if negative {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// quoteByte renders b for debug output, naming control codes
func quoteByte(b byte) string {
	switch b {
	case NUL:
		return "NUL"
	case LF:
		return "LF"
	case CR:
		return "CR"
	}
	if sig, ok := ControlSignal(b); ok {
		return "^" + sig.String()
	}
	if b < 0x20 || b >= 0x7F {
		return "0x" + string("0123456789abcdef"[b>>4]) + string("0123456789abcdef"[b&0x0F])
	}
	return "'" + string(rune(b)) + "'"
}
