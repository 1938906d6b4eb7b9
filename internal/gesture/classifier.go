// Package gesture classifies hand pose samples into gesture symbols.
package gesture

import (
	"math"

	"github.com/ayusman/gestureplc/internal/leap"
)

// Symbol is the discrete classification of one hand pose sample.
type Symbol string

const (
	None       Symbol = "none"
	SwipeLeft  Symbol = "swipe_left"
	SwipeRight Symbol = "swipe_right"
	SwipeUp    Symbol = "swipe_up"
	SwipeDown  Symbol = "swipe_down"
	Pointing   Symbol = "pointing"
	Peace      Symbol = "peace"
	OpenPalm   Symbol = "open_palm"
	Circle     Symbol = "circle"
)

// Classification thresholds.
const (
	// SwipeSpeed is the palm speed (mm/s) a hand must exceed to count as a swipe.
	SwipeSpeed = 800.0
	// MinDigits is the number of digit readings required to classify a hand.
	MinDigits = 5
	// CircleGrabMax is the grab strength below which a lone index finger reads as Circle.
	CircleGrabMax = 0.3
)

// Classifier maps single hand samples to symbols. It holds no state between samples.
type Classifier struct {
	// SwipeSpeed overrides the default swipe threshold when positive.
	SwipeSpeed float64

	// Poses enables the static pose branch (Pointing, Peace, OpenPalm, Circle).
	Poses bool
}

// NewClassifier returns a swipe-only classifier with the default threshold.
func NewClassifier() *Classifier {
	return &Classifier{SwipeSpeed: SwipeSpeed}
}

// Classify returns the symbol for one hand sample, or None.
//
// Algorithm:
// 1. Fewer than 5 digit readings: None
// 2. Palm speed at or below the threshold: no swipe
// 3. Horizontal axis dominant: SwipeRight if vx > 0, else SwipeLeft
// 4. Otherwise: SwipeUp if vy > 0, else SwipeDown
// 5. With poses enabled and no swipe, classify the extended-digit pattern
func (c *Classifier) Classify(h *leap.Hand) Symbol {
	if h == nil || len(h.Digits) < MinDigits {
		return None
	}

	threshold := c.SwipeSpeed
	if threshold <= 0 {
		threshold = SwipeSpeed
	}

	v := h.PalmVelocity
	if v.Norm() > threshold {
		if math.Abs(v.X) > math.Abs(v.Y) {
			if v.X > 0 {
				return SwipeRight
			}
			return SwipeLeft
		}
		if v.Y > 0 {
			return SwipeUp
		}
		return SwipeDown
	}

	if !c.Poses {
		return None
	}
	return classifyPose(h)
}

// classifyPose recognizes static poses from the extended-digit pattern.
func classifyPose(h *leap.Hand) Symbol {
	d := h.Digits
	extended := h.ExtendedCount()

	switch {
	case extended == 1 && d[leap.Index]:
		if h.GrabStrength < CircleGrabMax {
			return Circle
		}
		return Pointing
	case extended == 2 && d[leap.Index] && d[leap.Middle]:
		return Peace
	case extended == leap.NumDigits:
		return OpenPalm
	default:
		return None
	}
}

// Classify classifies h with the default swipe-only classifier.
func Classify(h *leap.Hand) Symbol {
	return defaultClassifier.Classify(h)
}

var defaultClassifier = NewClassifier()
