package plc

import (
	"context"
	"fmt"
	"sync"

	"github.com/ayusman/gestureplc/internal/address"
)

// DefaultMemorySize is the number of marker bytes held by a simulated PLC.
const DefaultMemorySize = 64

// Memory is an in-process PLC simulator holding a marker memory image.
// It reports Running while connected.
type Memory struct {
	mu        sync.Mutex
	markers   []byte
	connected bool
}

// NewMemory creates a simulated PLC with size marker bytes.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &Memory{markers: make([]byte, size)}
}

// Connect marks the simulator as connected.
func (m *Memory) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

// Disconnect marks the simulator as disconnected.
func (m *Memory) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// WriteBit sets or clears one bit of marker memory.
func (m *Memory) WriteBit(ctx context.Context, addr address.Address, value bool) error {
	if err := checkAddress(addr); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(addr.Byte); err != nil {
		return err
	}
	m.markers[addr.Byte] = applyBit(m.markers[addr.Byte], addr.Bit, value)
	return nil
}

// ReadBit returns one bit of marker memory.
func (m *Memory) ReadBit(ctx context.Context, addr address.Address) (bool, error) {
	if err := checkAddress(addr); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(addr.Byte); err != nil {
		return false, err
	}
	return m.markers[addr.Byte]&addr.Mask() != 0, nil
}

// ReadByte returns one byte of marker memory.
func (m *Memory) ReadByte(ctx context.Context, area address.Area, offset uint16) (byte, error) {
	if area != address.AreaMarker {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedArea, area)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(offset); err != nil {
		return 0, err
	}
	return m.markers[offset], nil
}

// SetByte overwrites one byte of marker memory, bypassing the connection check.
func (m *Memory) SetByte(offset uint16, value byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(offset) < len(m.markers) {
		m.markers[offset] = value
	}
}

// ConnectionState reports Running while connected.
func (m *Memory) ConnectionState(ctx context.Context) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return Status{State: StateDisconnected}
	}
	return StatusFromCPU(cpuStatusRun)
}

// Size returns the number of marker bytes.
func (m *Memory) Size() int {
	return len(m.markers)
}

func (m *Memory) check(offset uint16) error {
	if !m.connected {
		return ErrNotConnected
	}
	if int(offset) >= len(m.markers) {
		return fmt.Errorf("%w: MB%d (size %d)", ErrOutOfRange, offset, len(m.markers))
	}
	return nil
}
