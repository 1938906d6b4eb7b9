package leap

import (
	"encoding/json"
	"fmt"
)

// wireMessage is any JSON message sent by the tracking service: a service
// hello, a device event, or a frame.
type wireMessage struct {
	ServiceVersion string      `json:"serviceVersion"`
	Version        int         `json:"version"`
	Event          *wireEvent  `json:"event"`
	ID             *int64      `json:"id"`
	Timestamp      int64       `json:"timestamp"`
	FrameRate      float64     `json:"currentFrameRate"`
	Hands          []wireHand  `json:"hands"`
	Pointables     []wirePoint `json:"pointables"`
}

type wireEvent struct {
	Type  string     `json:"type"`
	State wireDevice `json:"state"`
}

type wireDevice struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Attached  bool   `json:"attached"`
	Streaming bool   `json:"streaming"`
}

type wireHand struct {
	ID           int        `json:"id"`
	Type         string     `json:"type"`
	PalmVelocity [3]float64 `json:"palmVelocity"`
	GrabStrength float64    `json:"grabStrength"`
}

type wirePoint struct {
	HandID   int  `json:"handId"`
	Type     int  `json:"type"`
	Extended bool `json:"extended"`
}

// messageKind classifies a decoded service message.
type messageKind int

const (
	kindIgnored messageKind = iota
	kindHello
	kindDevice
	kindFrame
)

type message struct {
	kind    messageKind
	version string
	device  Device
	frame   Frame
}

// decodeMessage parses one JSON message from the tracking service.
func decodeMessage(data []byte) (message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return message{}, fmt.Errorf("parse tracking message: %w", err)
	}

	switch {
	case w.ServiceVersion != "":
		return message{kind: kindHello, version: fmt.Sprintf("%s (protocol v%d)", w.ServiceVersion, w.Version)}, nil
	case w.Event != nil:
		if w.Event.Type != "deviceEvent" {
			return message{kind: kindIgnored}, nil
		}
		s := w.Event.State
		return message{kind: kindDevice, device: Device{
			ID:        s.ID,
			Type:      s.Type,
			Attached:  s.Attached,
			Streaming: s.Streaming,
		}}, nil
	case w.ID != nil:
		return message{kind: kindFrame, frame: w.toFrame()}, nil
	default:
		return message{kind: kindIgnored}, nil
	}
}

// toFrame joins hands with their pointables, ordering digits thumb to pinky.
func (w *wireMessage) toFrame() Frame {
	f := Frame{
		ID:        *w.ID,
		Timestamp: w.Timestamp,
		FrameRate: w.FrameRate,
		Hands:     make([]Hand, 0, len(w.Hands)),
	}

	for _, wh := range w.Hands {
		h := Hand{
			ID:   wh.ID,
			Type: wh.Type,
			PalmVelocity: Vector{
				X: wh.PalmVelocity[0],
				Y: wh.PalmVelocity[1],
				Z: wh.PalmVelocity[2],
			},
			GrabStrength: wh.GrabStrength,
		}

		var digits, seen [NumDigits]bool
		for _, p := range w.Pointables {
			if p.HandID != wh.ID || p.Type < 0 || p.Type >= NumDigits {
				continue
			}
			digits[p.Type] = p.Extended
			seen[p.Type] = true
		}
		// Digits missing from the frame are left out rather than reported as curled.
		for i := 0; i < NumDigits; i++ {
			if seen[i] {
				h.Digits = append(h.Digits, digits[i])
			}
		}

		f.Hands = append(f.Hands, h)
	}

	return f
}

// dispatch forwards a decoded message to the listener.
func dispatch(m message, l Listener) {
	switch m.kind {
	case kindDevice:
		l.OnDevice(m.device)
	case kindFrame:
		l.OnFrame(m.frame)
	}
}
