// Package plc provides bit-level access to PLC flag memory over interchangeable backends.
package plc

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayusman/gestureplc/internal/address"
)

// Errors reported by backends.
var (
	ErrDeviceUnreachable = errors.New("plc device unreachable")
	ErrBridgeUnreachable = errors.New("plc bridge unreachable")
	ErrWriteRejected     = errors.New("plc write rejected")
	ErrReadAmbiguous     = errors.New("plc read response ambiguous")
	ErrNotConnected      = errors.New("plc not connected")
	ErrUnsupportedArea   = errors.New("unsupported memory area")
	ErrOutOfRange        = errors.New("address out of range")
)

// IsConnectionLost reports whether err means the backend session is gone and
// Connect must be called before the next operation can succeed.
func IsConnectionLost(err error) bool {
	return errors.Is(err, ErrBridgeUnreachable) ||
		errors.Is(err, ErrDeviceUnreachable) ||
		errors.Is(err, ErrNotConnected)
}

// Backend is a session to a PLC exposing single-bit access to its memory image.
//
// Implementations are safe for use by one owner. WriteBit either applies the new
// bit value or fails without changing the PLC's memory.
type Backend interface {
	// Connect opens the session.
	Connect(ctx context.Context) error

	// Disconnect closes the session. It is a no-op if never connected.
	Disconnect() error

	// WriteBit sets or clears the bit at addr, preserving the other bits of its byte.
	WriteBit(ctx context.Context, addr address.Address, value bool) error

	// ReadBit returns the value of the bit at addr.
	ReadBit(ctx context.Context, addr address.Address) (bool, error)

	// ReadByte returns the whole byte at the given offset of area.
	ReadByte(ctx context.Context, area address.Area, offset uint16) (byte, error)

	// ConnectionState reports the current session or CPU state.
	ConnectionState(ctx context.Context) Status
}

// State is the symbolic state of a backend connection.
type State int

const (
	StateUnknown State = iota
	StateConnected
	StateDisconnected
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateRunning:
		return "RUN"
	case StateStopped:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Status pairs a State with the raw CPU status code it was derived from, if any.
type Status struct {
	State State `json:"state"`
	Code  int   `json:"code,omitempty"`
}

func (s Status) String() string {
	if s.State == StateUnknown && s.Code != 0 {
		return fmt.Sprintf("UNKNOWN(%d)", s.Code)
	}
	return s.State.String()
}

// Ready reports whether the backend can accept gesture writes.
func (s Status) Ready() bool {
	return s.State == StateRunning || s.State == StateConnected
}

// CPU status codes reported by S7 devices.
const (
	cpuStatusUnknown = 0
	cpuStatusStop    = 4
	cpuStatusRun     = 8
)

// StatusFromCPU maps a device-reported run/stop code to a Status.
func StatusFromCPU(code int) Status {
	switch code {
	case cpuStatusRun:
		return Status{State: StateRunning, Code: code}
	case cpuStatusStop:
		return Status{State: StateStopped, Code: code}
	case cpuStatusUnknown:
		return Status{State: StateUnknown}
	default:
		return Status{State: StateUnknown, Code: code}
	}
}

// applyBit returns current with the addressed bit set or cleared.
func applyBit(current byte, bit uint8, value bool) byte {
	if value {
		return current | (1 << bit)
	}
	return current &^ (1 << bit)
}

func checkAddress(addr address.Address) error {
	if addr.Area != address.AreaMarker {
		return fmt.Errorf("%w: %s", ErrUnsupportedArea, addr.Area)
	}
	if addr.Bit > address.MaxBit {
		return fmt.Errorf("%w: bit %d", ErrOutOfRange, addr.Bit)
	}
	return nil
}
