package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAttached indicates no port is attached to the engine.
	ErrNotAttached = errors.New("no port attached")
	// ErrUpgrading indicates the engine handed control to the firmware
	// upgrade hook and refuses further input.
	ErrUpgrading = errors.New("firmware upgrade in progress")
	// ErrPortClosed is returned by a WriterPort after Close.
	ErrPortClosed = errors.New("port closed")
)

// RegistryError reports an inconsistent parameter or data item table.
type RegistryError struct {
	ID     byte
	Reason string
}

// Error implements error.
func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry entry 0x%02x: %s", e.ID, e.Reason)
}
