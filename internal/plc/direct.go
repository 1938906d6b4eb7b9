package plc

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/robinson/gos7"

	"github.com/ayusman/gestureplc/internal/address"
)

// DirectConfig holds the connection settings for an S7 device.
type DirectConfig struct {
	// Address is the device IP address or host, optionally with :port (default 102).
	Address string

	// Rack and Slot select the CPU (S7-1200/1500: rack 0, slot 1).
	Rack int
	Slot int

	// Timeout bounds connect, read and write calls.
	Timeout time.Duration

	// IdleTimeout closes an unused connection. The driver does not redial by
	// itself; the next call fails and the session must be reopened with Connect.
	IdleTimeout time.Duration

	// Logger receives driver-level traces when set.
	Logger *log.Logger
}

// DefaultDirectConfig returns a DirectConfig for a CPU at rack 0, slot 1.
func DefaultDirectConfig(addr string) DirectConfig {
	return DirectConfig{
		Address:     addr,
		Rack:        0,
		Slot:        1,
		Timeout:     5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

// s7Client is the subset of the S7 driver used for flag memory access.
type s7Client interface {
	AGReadMB(start int, size int, buffer []byte) error
	AGWriteMB(start int, size int, buffer []byte) error
	PLCGetStatus() (int, error)
}

// s7Dialer opens a driver session and returns its closer and client.
type s7Dialer func(cfg DirectConfig) (io.Closer, s7Client, error)

func dialS7(cfg DirectConfig) (io.Closer, s7Client, error) {
	handler := gos7.NewTCPClientHandler(cfg.Address, cfg.Rack, cfg.Slot)
	handler.Timeout = cfg.Timeout
	handler.IdleTimeout = cfg.IdleTimeout
	if cfg.Logger != nil {
		handler.Logger = cfg.Logger
	}
	if err := handler.Connect(); err != nil {
		return nil, nil, err
	}
	return handler, gos7.NewClient(handler), nil
}

// Direct talks to an S7 PLC over ISO-on-TCP and changes single flags by
// read-modify-write of the containing marker byte.
type Direct struct {
	config DirectConfig
	dial   s7Dialer

	mu      sync.Mutex
	session io.Closer
	client  s7Client
}

// NewDirect creates a Direct backend. No connection is made until Connect.
func NewDirect(config DirectConfig) *Direct {
	return &Direct{
		config: config,
		dial:   dialS7,
	}
}

// Connect opens the session and confirms the CPU answers a status query.
func (d *Direct) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return nil
	}

	session, client, err := d.dial(d.config)
	if err != nil {
		return fmt.Errorf("%w: %s rack %d slot %d: %v", ErrDeviceUnreachable, d.config.Address, d.config.Rack, d.config.Slot, err)
	}

	// A session without a status answer is not a usable connection.
	if _, err := client.PLCGetStatus(); err != nil {
		if cerr := session.Close(); cerr != nil {
			d.logf("Error closing rejected S7 session: %v", cerr)
		}
		return fmt.Errorf("%w: %s: no status response: %v", ErrDeviceUnreachable, d.config.Address, err)
	}

	d.session = session
	d.client = client
	return nil
}

// Disconnect closes the session if one is open.
func (d *Direct) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.closeLocked()
}

func (d *Direct) closeLocked() error {
	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	d.client = nil
	if err != nil {
		return fmt.Errorf("close plc session: %w", err)
	}
	return nil
}

// dropLocked discards a session after a driver error so the next Connect
// dials again. gos7 leaves a broken or idle-closed handler in place.
func (d *Direct) dropLocked(cause error) error {
	if err := d.closeLocked(); err != nil {
		d.logf("Error closing failed S7 session: %v", err)
	}
	return cause
}

func (d *Direct) logf(format string, args ...any) {
	if d.config.Logger != nil {
		d.config.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// WriteBit reads the marker byte, changes one bit and writes the byte back.
// The mutex keeps the three steps from interleaving with other calls on d.
func (d *Direct) WriteBit(ctx context.Context, addr address.Address, value bool) error {
	if err := checkAddress(addr); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return ErrNotConnected
	}

	buf := make([]byte, 1)
	if err := d.client.AGReadMB(int(addr.Byte), 1, buf); err != nil {
		return d.dropLocked(fmt.Errorf("%w: read MB%d: %v", ErrDeviceUnreachable, addr.Byte, err))
	}

	buf[0] = applyBit(buf[0], addr.Bit, value)

	if err := d.client.AGWriteMB(int(addr.Byte), 1, buf); err != nil {
		return d.dropLocked(fmt.Errorf("%w: write MB%d: %v", ErrDeviceUnreachable, addr.Byte, err))
	}
	return nil
}

// ReadBit reads the marker byte and extracts one bit.
func (d *Direct) ReadBit(ctx context.Context, addr address.Address) (bool, error) {
	if err := checkAddress(addr); err != nil {
		return false, err
	}
	b, err := d.ReadByte(ctx, addr.Area, addr.Byte)
	if err != nil {
		return false, err
	}
	return b&addr.Mask() != 0, nil
}

// ReadByte reads one marker byte.
func (d *Direct) ReadByte(ctx context.Context, area address.Area, offset uint16) (byte, error) {
	if area != address.AreaMarker {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedArea, area)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return 0, ErrNotConnected
	}

	buf := make([]byte, 1)
	if err := d.client.AGReadMB(int(offset), 1, buf); err != nil {
		return 0, d.dropLocked(fmt.Errorf("%w: read MB%d: %v", ErrDeviceUnreachable, offset, err))
	}
	return buf[0], nil
}

// ConnectionState queries the CPU run/stop status. A failed query drops the
// session and reports Disconnected.
func (d *Direct) ConnectionState(ctx context.Context) Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return Status{State: StateDisconnected}
	}
	code, err := d.client.PLCGetStatus()
	if err != nil {
		d.dropLocked(err)
		return Status{State: StateDisconnected}
	}
	return StatusFromCPU(code)
}
