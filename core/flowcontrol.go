package core

import "sync/atomic"

// Throttle is provided by the physical driver so the receiver can be
// stopped while the receive buffer is full
type Throttle interface {
	PauseReceive()
	ResumeReceive()
}

// Watermarks replace the default full / not-full trigger. Flow control is
// entered when occupancy reaches High after an enqueue and left when it
// falls to Low after a dequeue. The zero value selects the default.
type Watermarks struct {
	High int
	Low  int
}

// IsZero reports whether the default binary policy is selected
func (w Watermarks) IsZero() bool {
	return w.High == 0 && w.Low == 0
}

// FlowControl tracks whether a device's receiver is paused. The producer
// side reports enqueues and may enter flow control; the consumer side
// reports dequeues and may leave it.
type FlowControl struct {
	id       DeviceID
	throttle Throttle
	marks    Watermarks
	enabled  uint32 // atomic bool
	active   uint32 // atomic bool
	pauses   uint32
}

// NewFlowControl creates an enabled coordinator using the binary policy.
// The throttle may be nil when the driver has no way to stop its source.
func NewFlowControl(id DeviceID, throttle Throttle) *FlowControl {
	return &FlowControl{
		id:       id,
		throttle: throttle,
		enabled:  1,
	}
}

// SetThrottle replaces the driver throttle. Must be called before the
// producer starts.
func (f *FlowControl) SetThrottle(t Throttle) {
	f.throttle = t
}

// SetWatermarks selects watermark flow control for a buffer with the given
// number of usable slots. The zero Watermarks restores the binary policy.
func (f *FlowControl) SetWatermarks(w Watermarks, usable int) error {
	if !w.IsZero() && (w.Low < 0 || w.Low >= w.High || w.High > usable) {
		return ErrWatermarks
	}
	f.marks = w
	return nil
}

// Watermarks returns the configured watermarks
func (f *FlowControl) Watermarks() Watermarks {
	return f.marks
}

// SetEnabled turns flow control on or off. When off a full buffer simply
// drops bytes.
func (f *FlowControl) SetEnabled(enabled bool) {
	var v uint32
	if enabled {
		v = 1
	}
	atomic.StoreUint32(&f.enabled, v)
	if !enabled {
		f.leave()
	}
}

// Enabled reports whether flow control is enabled
func (f *FlowControl) Enabled() bool {
	return atomic.LoadUint32(&f.enabled) != 0
}

// Active reports whether the receiver is currently paused
func (f *FlowControl) Active() bool {
	return atomic.LoadUint32(&f.active) != 0
}

// Pauses returns how many times flow control has been entered
func (f *FlowControl) Pauses() uint32 {
	return atomic.LoadUint32(&f.pauses)
}

// Enqueued is called by the producer after each enqueue attempt with the
// result and the resulting occupancy. It reports whether flow control was
// entered by this call; the producer must then call Dequeued with a fresh
// occupancy, since the consumer may have drained the buffer before the
// receiver was paused.
func (f *FlowControl) Enqueued(ok bool, used int) bool {
	if !f.Enabled() {
		return false
	}
	if !ok || (!f.marks.IsZero() && used >= f.marks.High) {
		return f.enter()
	}
	return false
}

// Dequeued is called by the consumer after each dequeue attempt with
// whether the buffer is still full and the resulting occupancy
func (f *FlowControl) Dequeued(full bool, used int) {
	if !f.Active() {
		return
	}
	if f.marks.IsZero() {
		if !full {
			f.leave()
		}
		return
	}
	if used <= f.marks.Low {
		f.leave()
	}
}

func (f *FlowControl) enter() bool {
	if !atomic.CompareAndSwapUint32(&f.active, 0, 1) {
		return false
	}
	atomic.AddUint32(&f.pauses, 1)
	RecordEvent(EvtFlowPause, f.id, 0)
	if f.throttle != nil {
		f.throttle.PauseReceive()
	}
	return true
}

func (f *FlowControl) leave() {
	if !atomic.CompareAndSwapUint32(&f.active, 1, 0) {
		return
	}
	RecordEvent(EvtFlowResume, f.id, 0)
	if f.throttle != nil {
		f.throttle.ResumeReceive()
	}
}
