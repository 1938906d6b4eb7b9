package plc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ayusman/gestureplc/internal/address"
)

// Bridge wire responses.
const (
	respOK   = "OK"
	respOn   = "1"
	respOff  = "0"
	cmdWrite = "WRITE"
	cmdRead  = "READ"
)

// DefaultBridgeAddr is where the bridge process listens by default.
const DefaultBridgeAddr = "localhost:5000"

// BridgeConfig holds the settings for a Bridge backend.
type BridgeConfig struct {
	// Addr is the host:port of the bridge process.
	Addr string

	// DialTimeout bounds the TCP connect.
	DialTimeout time.Duration

	// IOTimeout bounds each request/response round trip when ctx has no deadline.
	IOTimeout time.Duration
}

// DefaultBridgeConfig returns a BridgeConfig for a bridge at addr.
func DefaultBridgeConfig(addr string) BridgeConfig {
	if addr == "" {
		addr = DefaultBridgeAddr
	}
	return BridgeConfig{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
		IOTimeout:   2 * time.Second,
	}
}

// Bridge talks to a bridge process using newline-terminated ASCII commands.
// Each command gets exactly one response line before the next is sent.
// After any I/O error the connection is dropped and Connect must be called again.
type Bridge struct {
	config BridgeConfig

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewBridge creates a Bridge backend. No connection is made until Connect.
func NewBridge(config BridgeConfig) *Bridge {
	return &Bridge{config: config}
}

// Connect dials the bridge.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: b.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", b.config.Addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBridgeUnreachable, b.config.Addr, err)
	}

	b.conn = conn
	b.reader = bufio.NewReader(conn)
	return nil
}

// Disconnect closes the connection if one is open.
func (b *Bridge) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *Bridge) closeLocked() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	b.reader = nil
	if err != nil {
		return fmt.Errorf("close bridge connection: %w", err)
	}
	return nil
}

// WriteBit sends WRITE and succeeds only on an exact OK response.
func (b *Bridge) WriteBit(ctx context.Context, addr address.Address, value bool) error {
	v := 0
	if value {
		v = 1
	}
	cmd := fmt.Sprintf("%s %s %d %d %d", cmdWrite, addr.Area, addr.Byte, addr.Bit, v)

	resp, err := b.roundTrip(ctx, cmd)
	if err != nil {
		return err
	}
	if resp != respOK {
		return fmt.Errorf("%w: %s: %q", ErrWriteRejected, addr, resp)
	}
	return nil
}

// ReadBit sends READ and accepts only 1 or 0 as a response.
func (b *Bridge) ReadBit(ctx context.Context, addr address.Address) (bool, error) {
	cmd := fmt.Sprintf("%s %s %d %d", cmdRead, addr.Area, addr.Byte, addr.Bit)

	resp, err := b.roundTrip(ctx, cmd)
	if err != nil {
		return false, err
	}
	switch resp {
	case respOn:
		return true, nil
	case respOff:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s: %q", ErrReadAmbiguous, addr, resp)
	}
}

// ReadByte reads the eight bits of a byte one at a time.
func (b *Bridge) ReadByte(ctx context.Context, area address.Area, offset uint16) (byte, error) {
	var value byte
	for bit := uint8(0); bit <= address.MaxBit; bit++ {
		on, err := b.ReadBit(ctx, address.Address{Area: area, Byte: offset, Bit: bit})
		if err != nil {
			return 0, err
		}
		if on {
			value |= 1 << bit
		}
	}
	return value, nil
}

// ConnectionState reports whether the bridge socket is open.
func (b *Bridge) ConnectionState(ctx context.Context) Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return Status{State: StateDisconnected}
	}
	return Status{State: StateConnected}
}

// roundTrip sends one command line and returns the trimmed response line.
func (b *Bridge) roundTrip(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return "", fmt.Errorf("%w: %v", ErrBridgeUnreachable, ErrNotConnected)
	}

	deadline, ok := ctx.Deadline()
	if !ok && b.config.IOTimeout > 0 {
		deadline = time.Now().Add(b.config.IOTimeout)
	}
	if err := b.conn.SetDeadline(deadline); err != nil {
		b.closeLocked()
		return "", fmt.Errorf("%w: set deadline: %v", ErrBridgeUnreachable, err)
	}

	if _, err := b.conn.Write([]byte(cmd + "\n")); err != nil {
		b.closeLocked()
		return "", fmt.Errorf("%w: send %q: %v", ErrBridgeUnreachable, cmd, err)
	}

	line, err := b.reader.ReadString('\n')
	if err != nil {
		b.closeLocked()
		return "", fmt.Errorf("%w: receive response to %q: %v", ErrBridgeUnreachable, cmd, err)
	}

	return strings.TrimSpace(line), nil
}
