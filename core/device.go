package core

// DeviceID names one of the fixed set of devices known at compile time
type DeviceID uint8

// Known devices. Stream devices come first, then file devices, so that a
// range check is enough to dispatch by class.
const (
	DevRS485 DeviceID = iota // USART, RS485 network port
	DevUSB                   // USART, USB serial
	DevAUX                   // USART, TTL auxiliary port
	DevPGM                   // FILE, program memory (read only)
	DevCount                 // total device count (must be last entry)
)

// Device class ranges
const (
	DevUSARTLo  = DevRS485
	DevUSARTHi  = DevAUX
	DevUSARTCnt = int(DevUSARTHi-DevUSARTLo) + 1
	DevFileLo   = DevPGM
	DevFileHi   = DevPGM
	DevFileCnt  = int(DevFileHi-DevFileLo) + 1
)

// Class separates devices that stream forever from devices that have an end
type Class uint8

const (
	ClassStream Class = iota // serial links, never reach a real end-of-file
	ClassFile                // memory-backed, reach end-of-file when exhausted
)

func (c Class) String() string {
	switch c {
	case ClassStream:
		return "stream"
	case ClassFile:
		return "file"
	default:
		return "unknown"
	}
}

// ClassOf returns the class of a device by its position in the id ranges
func ClassOf(id DeviceID) Class {
	if id >= DevFileLo && id <= DevFileHi {
		return ClassFile
	}
	return ClassStream
}

// Valid reports whether id names a configured device
func (id DeviceID) Valid() bool {
	return id < DevCount
}

var deviceNames = [DevCount]string{
	DevRS485: "rs485",
	DevUSB:   "usb",
	DevAUX:   "aux",
	DevPGM:   "pgm",
}

func (id DeviceID) String() string {
	if !id.Valid() {
		return "dev" + itoa(int(id))
	}
	return deviceNames[id]
}

// ParseDeviceID looks up a device by its short name
func ParseDeviceID(name string) (DeviceID, bool) {
	for i, n := range deviceNames {
		if n == name {
			return DeviceID(i), true
		}
	}
	return DevCount, false
}
