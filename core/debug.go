package core

import "sync/atomic"

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Event captures a device event for post-mortem analysis
type Event struct {
	Type   uint8    // Event type code
	Device DeviceID // Device the event belongs to
	Value  uint32   // Context-dependent value
}

// Event type codes
const (
	EvtFlowPause  = 1 // receive buffer full, receiver paused
	EvtFlowResume = 2 // receive buffer drained, receiver resumed
	EvtSignal     = 3 // control signal intercepted (Value = Signal)
	EvtOverflow   = 4 // line buffer overflow (Value = line length)
	EvtRxDrop     = 5 // received byte dropped on a full buffer (Value = byte)
	EvtEOF        = 6 // end-of-file seen
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled uint32

	// Event capture ring buffer (non-blocking, for post-mortem)
	eventRing     [EventRingSize]Event
	eventRingHead uint8  // Next write position
	eventsEnabled uint32 = 1
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, a logger, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	var v uint32
	if enabled {
		v = 1
	}
	atomic.StoreUint32(&debugEnabled, v)
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return atomic.LoadUint32(&debugEnabled) != 0
}

// SetEventsEnabled turns event capture on or off
func SetEventsEnabled(enabled bool) {
	var v uint32
	if enabled {
		v = 1
	}
	atomic.StoreUint32(&eventsEnabled, v)
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if IsDebugEnabled() && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordEvent captures an event in the ring buffer. It never blocks on
// output and is safe to call from a receive interrupt.
func RecordEvent(eventType uint8, dev DeviceID, value uint32) {
	if atomic.LoadUint32(&eventsEnabled) == 0 {
		return
	}
	state := lockEvents()
	idx := eventRingHead
	eventRing[idx] = Event{
		Type:   eventType,
		Device: dev,
		Value:  value,
	}
	eventRingHead = (idx + 1) % EventRingSize
	unlockEvents(state)
}

// Events returns the captured events, oldest first
func Events() []Event {
	state := lockEvents()
	defer unlockEvents(state)

	events := make([]Event, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.Type == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

// EventName returns the short name of an event type
func EventName(eventType uint8) string {
	switch eventType {
	case EvtFlowPause:
		return "FLOW_PAUSE"
	case EvtFlowResume:
		return "FLOW_RESUME"
	case EvtSignal:
		return "SIGNAL"
	case EvtOverflow:
		return "OVERFLOW"
	case EvtRxDrop:
		return "RX_DROP"
	case EvtEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// DumpEvents outputs the event ring through the debug writer
func DumpEvents() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[XIO] === Event Ring Dump ===")
	for _, evt := range Events() {
		value := itoa(int(evt.Value))
		switch evt.Type {
		case EvtSignal:
			value = Signal(evt.Value).String()
		case EvtRxDrop:
			value = quoteByte(byte(evt.Value))
		}
		debugPrintln("[XIO] " + EventName(evt.Type) +
			" dev=" + evt.Device.String() +
			" v=" + value)
	}
	debugPrintln("[XIO] === End Dump ===")
}

// ClearEvents clears the event ring
func ClearEvents() {
	state := lockEvents()
	defer unlockEvents(state)
	for i := range eventRing {
		eventRing[i] = Event{}
	}
	eventRingHead = 0
}
