// Package leap provides hand-tracking frame sources and the types they deliver.
package leap

import (
	"context"
	"math"
	"time"
)

// Digit indices following the tracking service convention.
const (
	Thumb     = 0
	Index     = 1
	Middle    = 2
	Ring      = 3
	Pinky     = 4
	NumDigits = 5
)

// Vector is a 3D vector in sensor-native units (millimetres, or mm/s for velocities).
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the Euclidean length of v.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Hand is one tracked hand pose sample.
type Hand struct {
	ID           int     `json:"id"`
	Type         string  `json:"type"` // "left" or "right"
	Digits       []bool  `json:"digits"`
	PalmVelocity Vector  `json:"palm_velocity"`
	GrabStrength float64 `json:"grab_strength"`
}

// ExtendedCount returns how many digits are extended.
func (h *Hand) ExtendedCount() int {
	n := 0
	for _, extended := range h.Digits {
		if extended {
			n++
		}
	}
	return n
}

// Frame is one tracking snapshot holding zero or more hands.
type Frame struct {
	ID        int64   `json:"id"`
	Timestamp int64   `json:"timestamp"` // microseconds, service clock
	FrameRate float64 `json:"frame_rate"`
	Hands     []Hand  `json:"hands"`
}

// Device describes a tracking device announced by the service.
type Device struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Attached  bool   `json:"attached"`
	Streaming bool   `json:"streaming"`
}

// Listener receives source notifications. Calls are made synchronously from
// the source's Run goroutine, one at a time.
type Listener interface {
	// OnConnection is called once the tracking service is reachable.
	OnConnection()

	// OnDevice is called when a device is attached or changes state.
	OnDevice(d Device)

	// OnFrame is called for every tracking frame.
	OnFrame(f Frame)
}

// Source delivers tracking frames to a Listener.
type Source interface {
	// Run delivers notifications to l until ctx is done, the input ends, or the
	// source fails.
	Run(ctx context.Context, l Listener) error

	// Close releases any resources held by the source.
	Close() error
}

// DefaultURL is the local tracking service's JSON WebSocket endpoint.
const DefaultURL = "ws://127.0.0.1:6437/v6.json"

// Config holds configuration options for the WebSocket source.
type Config struct {
	// URL is the tracking service WebSocket endpoint.
	URL string

	// HandshakeTimeout bounds the WebSocket handshake.
	HandshakeTimeout time.Duration

	// ReadTimeout closes the connection when no message arrives in time (0 = none).
	ReadTimeout time.Duration

	// Background asks the service to keep streaming when the app is not focused.
	Background bool
}

// DefaultConfig returns a Config for the local tracking service.
func DefaultConfig() Config {
	return Config{
		URL:              DefaultURL,
		HandshakeTimeout: 5 * time.Second,
		ReadTimeout:      10 * time.Second,
		Background:       true,
	}
}
