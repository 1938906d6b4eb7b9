package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayusman/gestureplc/internal/address"
	"github.com/ayusman/gestureplc/internal/gesture"
	"github.com/ayusman/gestureplc/internal/leap"
	"github.com/ayusman/gestureplc/internal/plc"
	"github.com/ayusman/gestureplc/internal/store"
)

// HandleFrame classifies every hand in f and pulses admitted gestures.
// It blocks for the duration of any pulses and returns them in order.
//
// Pipeline logic:
// 1. Classify each hand; drop None
// 2. Map the symbol to a gesture name; drop unmapped symbols
// 3. Pass the gesture name through the cooldown gate
// 4. Pulse the gesture flag (on, hold, off)
func (a *App) HandleFrame(ctx context.Context, f leap.Frame) []Pulse {
	a.recordFrame(f)

	if !a.IsEnabled() {
		return nil
	}

	var pulses []Pulse
	for i := range f.Hands {
		symbol := a.classifier.Classify(&f.Hands[i])
		if symbol == gesture.None {
			continue
		}

		a.mu.Lock()
		a.lastSymbol = symbol
		a.mu.Unlock()

		name := a.symbols[symbol]
		if name == "" {
			continue
		}

		if !a.gate.Admit(name, a.now()) {
			continue
		}

		a.logger.Printf("[GESTURE] Detected: %s -> %s", symbol, name)
		p, err := a.pulse(ctx, name, symbol, store.SourceGesture)
		if err != nil && p.ID == "" {
			a.logger.Printf("[PLC] %s: %v", name, err)
			continue
		}
		pulses = append(pulses, p)
	}
	return pulses
}

// Trigger pulses a gesture by name through the cooldown gate.
// Unknown names fail with address.ErrUnknownGesture before the gate is consulted.
func (a *App) Trigger(ctx context.Context, name string) (Pulse, error) {
	if _, err := a.addrs.Resolve(name); err != nil {
		return Pulse{}, err
	}
	if !a.gate.Admit(name, a.now()) {
		return Pulse{}, fmt.Errorf("%w: %s", ErrCooldown, name)
	}
	return a.pulse(ctx, name, gesture.None, store.SourceManual)
}

// Pulse sets the gesture flag, holds it, then clears it, bypassing the gate.
// The clear is attempted even when setting the flag failed. The hold is not
// interrupted by ctx.
func (a *App) Pulse(ctx context.Context, name string) (Pulse, error) {
	return a.pulse(ctx, name, gesture.None, store.SourceManual)
}

func (a *App) pulse(ctx context.Context, name string, symbol gesture.Symbol, source store.PulseSource) (Pulse, error) {
	addr, err := a.addrs.Resolve(name)
	if err != nil {
		return Pulse{}, err
	}

	p := newPulse(name, symbol, source, addr, a.now())

	a.ioMu.Lock()
	p.OnErr = a.writeBit(ctx, addr, true)
	if p.OnErr != nil {
		a.logger.Printf("[PLC] Failed to set %s (%s): %v", name, addr, p.OnErr)
		// A dropped session is reopened so the clear below reaches the PLC.
		if plc.IsConnectionLost(p.OnErr) {
			a.reconnectLocked(ctx)
		}
	}
	a.sleep(a.config.Hold)
	// The clear runs even if the caller gave up during the hold.
	p.OffErr = a.writeBit(context.WithoutCancel(ctx), addr, false)
	if p.OffErr != nil {
		a.logger.Printf("[PLC] Failed to clear %s (%s): %v", name, addr, p.OffErr)
		if plc.IsConnectionLost(p.OffErr) {
			a.reconnectLocked(ctx)
		}
	}
	a.ioMu.Unlock()

	p.Duration = a.now().Sub(p.Start)
	if p.OK() {
		a.logger.Printf("[PLC] Sent %s (%s)", name, addr)
	}

	a.finishPulse(p)
	return p, p.Err()
}

// WriteGesture sets or clears a gesture flag.
func (a *App) WriteGesture(ctx context.Context, name string, value bool) error {
	addr, err := a.addrs.Resolve(name)
	if err != nil {
		return err
	}

	a.ioMu.Lock()
	defer a.ioMu.Unlock()
	return a.writeBit(ctx, addr, value)
}

// ReadGesture reads a gesture flag.
func (a *App) ReadGesture(ctx context.Context, name string) (bool, error) {
	addr, err := a.addrs.Resolve(name)
	if err != nil {
		return false, err
	}

	a.ioMu.Lock()
	defer a.ioMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.config.IOTimeout)
	defer cancel()
	return a.backend.ReadBit(ctx, addr)
}

// ReadAll reads every gesture flag of the active set with a single byte read.
func (a *App) ReadAll(ctx context.Context) (map[string]bool, error) {
	offset := a.addrs.ByteOffset()

	a.ioMu.Lock()
	rctx, cancel := context.WithTimeout(ctx, a.config.IOTimeout)
	b, err := a.backend.ReadByte(rctx, a.addrs.Area(), offset)
	cancel()
	a.ioMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("read %s%d: %w", a.addrs.Area(), offset, err)
	}

	values := make(map[string]bool)
	for _, name := range a.addrs.Names() {
		addr, err := a.addrs.Resolve(name)
		if err != nil {
			return nil, err
		}
		if addr.Byte != offset {
			return nil, fmt.Errorf("gesture %s outside byte %d", name, offset)
		}
		values[name] = b&addr.Mask() != 0
	}
	return values, nil
}

// writeBit must be called with ioMu held.
func (a *App) writeBit(ctx context.Context, addr address.Address, value bool) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.IOTimeout)
	defer cancel()
	return a.backend.WriteBit(ctx, addr, value)
}

// reconnectLocked reopens the backend session after a transport failure so the
// next pulse can succeed. It must be called with ioMu held.
func (a *App) reconnectLocked(ctx context.Context) {
	if !a.started.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.IOTimeout)
	defer cancel()

	if err := a.backend.Connect(ctx); err != nil {
		a.logger.Printf("[PLC] Reconnect failed: %v", err)
		return
	}
	a.logger.Printf("[PLC] Reconnected, state %s", a.backend.ConnectionState(ctx))
}

func (a *App) recordFrame(f leap.Frame) {
	a.mu.Lock()
	a.frames++
	a.hands += int64(len(f.Hands))
	a.frameRate = f.FrameRate
	frames := a.frames
	a.mu.Unlock()

	if frames%int64(a.config.StatsEvery) == 0 {
		a.logger.Printf("[STATS] Frames: %d, FPS: %.1f, Hands: %d", frames, f.FrameRate, len(f.Hands))
	}
}

// IsUnknownGesture reports whether err is an address map lookup failure.
func IsUnknownGesture(err error) bool {
	return errors.Is(err, address.ErrUnknownGesture)
}
