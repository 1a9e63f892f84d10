//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// eventMu stands in for masking interrupts when producers are goroutines
var eventMu sync.Mutex

// lockEvents serializes access to the event ring
func lockEvents() State {
	eventMu.Lock()
	return 0
}

// unlockEvents releases the event ring
func unlockEvents(state State) {
	eventMu.Unlock()
}
