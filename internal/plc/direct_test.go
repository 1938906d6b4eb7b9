package plc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/gestureplc/internal/address"
)

// fakeS7 emulates the driver against a marker byte slice.
type fakeS7 struct {
	markers   []byte
	status    int
	statusErr error
	readErr   error
	writeErr  error
	reads     int
	writes    int
	dials     int
	closed    bool
	closeErr  error

	// idleClosed makes the next read fail the way gos7 does once its idle
	// timer has closed the connection.
	idleClosed bool
}

func (f *fakeS7) AGReadMB(start int, size int, buffer []byte) error {
	f.reads++
	if f.idleClosed {
		f.idleClosed = false
		return errors.New("Connection to address 192.168.2.23:102 is null")
	}
	if f.readErr != nil {
		return f.readErr
	}
	copy(buffer[:size], f.markers[start:start+size])
	return nil
}

func (f *fakeS7) AGWriteMB(start int, size int, buffer []byte) error {
	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}
	copy(f.markers[start:start+size], buffer[:size])
	return nil
}

func (f *fakeS7) PLCGetStatus() (int, error) {
	return f.status, f.statusErr
}

func (f *fakeS7) Close() error {
	f.closed = true
	return f.closeErr
}

func newFakeDirect(f *fakeS7) *Direct {
	d := NewDirect(DefaultDirectConfig("192.168.2.23"))
	d.dial = func(cfg DirectConfig) (io.Closer, s7Client, error) {
		f.dials++
		f.closed = false
		return f, f, nil
	}
	return d
}

func TestDirect_ReadModifyWrite(t *testing.T) {
	ctx := context.Background()
	f := &fakeS7{markers: make([]byte, 16), status: 8}
	f.markers[4] = 0b0101_0000

	d := newFakeDirect(f)
	require.NoError(t, d.Connect(ctx))

	require.NoError(t, d.WriteBit(ctx, marker(4, 2), true))
	assert.Equal(t, byte(0b0101_0100), f.markers[4])
	assert.Equal(t, 1, f.reads)
	assert.Equal(t, 1, f.writes)

	on, err := d.ReadBit(ctx, marker(4, 2))
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, d.WriteBit(ctx, marker(4, 2), false))
	assert.Equal(t, byte(0b0101_0000), f.markers[4])

	on, err = d.ReadBit(ctx, marker(4, 2))
	require.NoError(t, err)
	assert.False(t, on)
}

func TestDirect_FailedReadWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := &fakeS7{markers: make([]byte, 8), status: 8}
	d := newFakeDirect(f)
	require.NoError(t, d.Connect(ctx))

	f.readErr = errors.New("connection reset")
	err := d.WriteBit(ctx, marker(1, 0), true)
	assert.ErrorIs(t, err, ErrDeviceUnreachable)
	assert.Equal(t, 0, f.writes)
	assert.Equal(t, byte(0), f.markers[1])
}

func TestDirect_FailedWriteLeavesMemory(t *testing.T) {
	ctx := context.Background()
	f := &fakeS7{markers: make([]byte, 8), status: 8}
	f.markers[1] = 0x81
	d := newFakeDirect(f)
	require.NoError(t, d.Connect(ctx))

	f.writeErr = errors.New("timeout")
	err := d.WriteBit(ctx, marker(1, 3), true)
	assert.ErrorIs(t, err, ErrDeviceUnreachable)
	assert.Equal(t, byte(0x81), f.markers[1])
}

func TestDirect_Connect(t *testing.T) {
	ctx := context.Background()

	t.Run("dial failure", func(t *testing.T) {
		d := NewDirect(DefaultDirectConfig("192.168.2.23"))
		d.dial = func(cfg DirectConfig) (io.Closer, s7Client, error) {
			return nil, nil, errors.New("no route to host")
		}
		assert.ErrorIs(t, d.Connect(ctx), ErrDeviceUnreachable)
		assert.Equal(t, StateDisconnected, d.ConnectionState(ctx).State)
	})

	t.Run("no status response", func(t *testing.T) {
		f := &fakeS7{markers: make([]byte, 1), statusErr: errors.New("rejected")}
		d := newFakeDirect(f)
		assert.ErrorIs(t, d.Connect(ctx), ErrDeviceUnreachable)
		assert.True(t, f.closed)
	})

	t.Run("state mapping", func(t *testing.T) {
		f := &fakeS7{markers: make([]byte, 1), status: 4}
		d := newFakeDirect(f)
		require.NoError(t, d.Connect(ctx))
		assert.Equal(t, StateStopped, d.ConnectionState(ctx).State)

		f.status = 8
		assert.Equal(t, StateRunning, d.ConnectionState(ctx).State)
	})
}

func TestDirect_Disconnect(t *testing.T) {
	ctx := context.Background()

	d := NewDirect(DefaultDirectConfig("192.168.2.23"))
	assert.NoError(t, d.Disconnect(), "disconnect before connect")

	f := &fakeS7{markers: make([]byte, 1), status: 8}
	d = newFakeDirect(f)
	require.NoError(t, d.Connect(ctx))
	require.NoError(t, d.Disconnect())
	assert.True(t, f.closed)
	assert.NoError(t, d.Disconnect())

	err := d.WriteBit(ctx, marker(0, 0), true)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDirect_RejectsOtherAreas(t *testing.T) {
	ctx := context.Background()
	f := &fakeS7{markers: make([]byte, 1), status: 8}
	d := newFakeDirect(f)
	require.NoError(t, d.Connect(ctx))

	err := d.WriteBit(ctx, address.Address{Area: 'Q', Byte: 0, Bit: 0}, true)
	assert.ErrorIs(t, err, ErrUnsupportedArea)
	assert.Equal(t, 0, f.reads)
}

func TestDirect_RedialsAfterDroppedSession(t *testing.T) {
	ctx := context.Background()
	f := &fakeS7{markers: make([]byte, 8), status: 8}
	d := newFakeDirect(f)
	require.NoError(t, d.Connect(ctx))
	require.Equal(t, 1, f.dials)

	f.idleClosed = true
	err := d.WriteBit(ctx, marker(4, 1), true)
	require.ErrorIs(t, err, ErrDeviceUnreachable)
	assert.True(t, IsConnectionLost(err))
	assert.True(t, f.closed, "failed session should be closed")
	assert.Equal(t, StateDisconnected, d.ConnectionState(ctx).State)
	assert.ErrorIs(t, d.WriteBit(ctx, marker(4, 1), true), ErrNotConnected)

	require.NoError(t, d.Connect(ctx))
	assert.Equal(t, 2, f.dials, "Connect should dial a new session")

	require.NoError(t, d.WriteBit(ctx, marker(4, 1), true))
	assert.Equal(t, byte(0x02), f.markers[4])
}

func TestDirect_ConnectKeepsHealthySession(t *testing.T) {
	ctx := context.Background()
	f := &fakeS7{markers: make([]byte, 8), status: 8}
	d := newFakeDirect(f)
	require.NoError(t, d.Connect(ctx))
	require.NoError(t, d.Connect(ctx))
	assert.Equal(t, 1, f.dials)
}

func TestDirect_FailedStatusDropsSession(t *testing.T) {
	ctx := context.Background()
	f := &fakeS7{markers: make([]byte, 8), status: 8}
	d := newFakeDirect(f)
	require.NoError(t, d.Connect(ctx))

	f.statusErr = errors.New("connection reset by peer")
	assert.Equal(t, StateDisconnected, d.ConnectionState(ctx).State)
	assert.True(t, f.closed)

	f.statusErr = nil
	require.NoError(t, d.Connect(ctx))
	assert.Equal(t, 2, f.dials)
	assert.Equal(t, StateRunning, d.ConnectionState(ctx).State)
}

func TestDirect_LogsFailedClose(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer

	f := &fakeS7{markers: make([]byte, 8), status: 8, closeErr: errors.New("use of closed connection")}
	d := newFakeDirect(f)
	d.config.Logger = log.New(&logs, "", 0)

	f.statusErr = errors.New("rejected")
	assert.ErrorIs(t, d.Connect(ctx), ErrDeviceUnreachable)
	assert.Contains(t, logs.String(), "Error closing rejected S7 session: use of closed connection")

	f.statusErr = nil
	require.NoError(t, d.Connect(ctx))
	f.readErr = errors.New("broken pipe")
	assert.ErrorIs(t, d.WriteBit(ctx, marker(0, 0), true), ErrDeviceUnreachable)
	assert.Contains(t, logs.String(), "Error closing failed S7 session")
}
