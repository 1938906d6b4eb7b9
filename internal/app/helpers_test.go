package app

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/gestureplc/internal/address"
	"github.com/ayusman/gestureplc/internal/plc"
)

// write is one recorded WriteBit call.
type write struct {
	Addr  address.Address
	Value bool
}

// recordingBackend wraps the in-memory PLC and records I/O.
type recordingBackend struct {
	*plc.Memory

	mu         sync.Mutex
	writes     []write
	reads      int
	connects   int
	rejectOn   bool
	connectErr error
	closeErr   error
	state      *plc.Status

	// dropNext fails that many writes as a lost session, closing it the way
	// the S7 and bridge backends do, so only Connect brings it back.
	dropNext int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{Memory: plc.NewMemory(plc.DefaultMemorySize)}
}

func (r *recordingBackend) Connect(ctx context.Context) error {
	r.mu.Lock()
	r.connects++
	r.mu.Unlock()

	if r.connectErr != nil {
		return r.connectErr
	}
	return r.Memory.Connect(ctx)
}

func (r *recordingBackend) Disconnect() error {
	err := r.Memory.Disconnect()
	if r.closeErr != nil {
		return r.closeErr
	}
	return err
}

func (r *recordingBackend) WriteBit(ctx context.Context, addr address.Address, value bool) error {
	r.mu.Lock()
	r.writes = append(r.writes, write{Addr: addr, Value: value})
	reject := r.rejectOn && value
	drop := r.dropNext > 0
	if drop {
		r.dropNext--
	}
	r.mu.Unlock()

	if drop {
		r.Memory.Disconnect()
		return fmt.Errorf("%w: write MB%d: connection reset by peer", plc.ErrDeviceUnreachable, addr.Byte)
	}
	if reject {
		return plc.ErrWriteRejected
	}
	return r.Memory.WriteBit(ctx, addr, value)
}

func (r *recordingBackend) ReadBit(ctx context.Context, addr address.Address) (bool, error) {
	r.mu.Lock()
	r.reads++
	r.mu.Unlock()
	return r.Memory.ReadBit(ctx, addr)
}

func (r *recordingBackend) ReadByte(ctx context.Context, area address.Area, offset uint16) (byte, error) {
	r.mu.Lock()
	r.reads++
	r.mu.Unlock()
	return r.Memory.ReadByte(ctx, area, offset)
}

func (r *recordingBackend) ConnectionState(ctx context.Context) plc.Status {
	if r.state != nil {
		return *r.state
	}
	return r.Memory.ConnectionState(ctx)
}

func (r *recordingBackend) Writes() []write {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]write, len(r.writes))
	copy(out, r.writes)
	return out
}

func (r *recordingBackend) Connects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

func (r *recordingBackend) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

// fakeClock advances only when the pipeline sleeps or a test moves it.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testMap(t *testing.T) *address.Map {
	t.Helper()
	m, err := address.New("primary", 4, map[string]int{
		"swipe_left":  0,
		"swipe_right": 1,
		"swipe_up":    2,
		"swipe_down":  3,
		"circle":      4,
	})
	if err != nil {
		t.Fatalf("address.New() error = %v", err)
	}
	return m
}

// newTestApp returns a started App over a recording backend with a fake clock.
func newTestApp(t *testing.T, mutate func(*Config)) (*App, *recordingBackend, *fakeClock, *bytes.Buffer) {
	t.Helper()

	backend := newRecordingBackend()
	logs := &bytes.Buffer{}

	config := DefaultConfig()
	config.Backend = backend
	config.Addresses = testMap(t)
	config.Logger = log.New(logs, "", 0)
	if mutate != nil {
		mutate(&config)
	}

	a, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	clock := &fakeClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	a.now = clock.Now
	a.sleep = clock.Advance

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(a.Stop)

	return a, backend, clock, logs
}
