package app

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/gestureplc/internal/address"
	"github.com/ayusman/gestureplc/internal/gesture"
	"github.com/ayusman/gestureplc/internal/store"
)

// Pulse describes one on/hold/off sequence on a gesture flag.
type Pulse struct {
	ID       string
	Gesture  string
	Symbol   gesture.Symbol
	Source   store.PulseSource
	Address  address.Address
	OnErr    error
	OffErr   error
	Start    time.Time
	Duration time.Duration
}

// PulseCallback is called after every pulse, successful or not.
type PulseCallback func(Pulse)

func newPulse(name string, symbol gesture.Symbol, source store.PulseSource, addr address.Address, start time.Time) Pulse {
	return Pulse{
		ID:      uuid.NewString(),
		Gesture: name,
		Symbol:  symbol,
		Source:  source,
		Address: addr,
		Start:   start,
	}
}

// OK reports whether both writes succeeded.
func (p Pulse) OK() bool {
	return p.OnErr == nil && p.OffErr == nil
}

// Err returns the write failures of the pulse, or nil.
func (p Pulse) Err() error {
	return errors.Join(p.OnErr, p.OffErr)
}

// Record converts the pulse into its persisted form.
func (p Pulse) Record() *store.PulseRecord {
	return &store.PulseRecord{
		ID:        p.ID,
		Gesture:   p.Gesture,
		Symbol:    string(p.Symbol),
		Source:    p.Source,
		Address:   p.Address.String(),
		OnError:   errString(p.OnErr),
		OffError:  errString(p.OffErr),
		StartedAt: p.Start,
		Duration:  p.Duration,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// RegisterPulseCallback registers fn to be called after every pulse.
func (a *App) RegisterPulseCallback(fn PulseCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, fn)
}

// finishPulse records p and notifies callbacks.
func (a *App) finishPulse(p Pulse) {
	if a.store != nil {
		if err := a.store.Pulses().Create(p.Record()); err != nil {
			a.logger.Printf("Failed to record pulse %s: %v", p.ID, err)
		}
	}

	a.mu.Lock()
	a.lastPulse = &p
	callbacks := make([]PulseCallback, len(a.callbacks))
	copy(callbacks, a.callbacks)
	a.mu.Unlock()

	for _, fn := range callbacks {
		fn(p)
	}
}
