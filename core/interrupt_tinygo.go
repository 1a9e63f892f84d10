//go:build tinygo

package core

import "runtime/interrupt"

// lockEvents disables interrupts and returns the previous state
func lockEvents() interrupt.State {
	return interrupt.Disable()
}

// unlockEvents restores the interrupt state
func unlockEvents(state interrupt.State) {
	interrupt.Restore(state)
}
