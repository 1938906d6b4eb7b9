package leap

import (
	"context"
)

// MockSource is a test implementation of the Source interface.
// It allows tests to control the delivered frames.
type MockSource struct {
	frames []Frame
	device *Device
	err    error
	closed bool
}

// NewMockSource creates a new MockSource instance.
func NewMockSource() *MockSource {
	return &MockSource{}
}

// SetFrames sets the frames that will be delivered by Run.
func (m *MockSource) SetFrames(frames []Frame) {
	m.frames = frames
}

// SetDevice sets a device announced before the first frame.
func (m *MockSource) SetDevice(d Device) {
	m.device = &d
}

// SetError sets the error that will be returned by Run after the frames.
func (m *MockSource) SetError(err error) {
	m.err = err
}

// Run delivers the configured notifications in order.
func (m *MockSource) Run(ctx context.Context, l Listener) error {
	l.OnConnection()
	if m.device != nil {
		l.OnDevice(*m.device)
	}
	for _, f := range m.frames {
		if ctx.Err() != nil {
			return nil
		}
		l.OnFrame(f)
	}
	return m.err
}

// Close records that the source was closed.
func (m *MockSource) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockSource) Closed() bool {
	return m.closed
}

// OpenHand returns a hand with all digits extended moving at velocity v.
func OpenHand(v Vector) Hand {
	return Hand{
		ID:           1,
		Type:         "right",
		Digits:       []bool{true, true, true, true, true},
		PalmVelocity: v,
	}
}

// PoseHand returns a stationary hand with the given digits extended.
func PoseHand(thumb, index, middle, ring, pinky bool) Hand {
	return Hand{
		ID:           1,
		Type:         "right",
		Digits:       []bool{thumb, index, middle, ring, pinky},
		GrabStrength: 0.5,
	}
}

// FrameWith returns a frame holding the given hands.
func FrameWith(id int64, hands ...Hand) Frame {
	return Frame{
		ID:        id,
		Timestamp: id * 10000,
		FrameRate: 100,
		Hands:     hands,
	}
}
