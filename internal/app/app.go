// Package app wires hand tracking frames to PLC gesture flags.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/gestureplc/internal/address"
	"github.com/ayusman/gestureplc/internal/debounce"
	"github.com/ayusman/gestureplc/internal/gesture"
	"github.com/ayusman/gestureplc/internal/leap"
	"github.com/ayusman/gestureplc/internal/plc"
	"github.com/ayusman/gestureplc/internal/store"
)

// Pipeline defaults.
const (
	// DefaultHold is how long a gesture flag stays set before it is cleared.
	DefaultHold = 100 * time.Millisecond
	// DefaultStatsEvery is the number of frames between stats log lines.
	DefaultStatsEvery = 120
	// DefaultIOTimeout bounds a single backend call.
	DefaultIOTimeout = 2 * time.Second
)

// settingEnabled is the settings key holding the detection switch.
const settingEnabled = "detection_enabled"

var (
	// ErrNotRunning is returned by Start when the PLC must be in RUN and is not.
	ErrNotRunning = errors.New("plc not in RUN state")
	// ErrCooldown is returned by Trigger when the gate rejects a gesture.
	ErrCooldown = errors.New("gesture in cooldown")
)

// Config holds configuration options for the application.
type Config struct {
	Backend   plc.Backend
	Addresses *address.Map

	// Classifier defaults to a swipe-only classifier.
	Classifier *gesture.Classifier
	// Symbols maps classified symbols to gesture names. Symbols mapped to ""
	// or missing from the table are dropped.
	Symbols map[gesture.Symbol]string

	Cooldown   time.Duration
	Hold       time.Duration
	IOTimeout  time.Duration
	StatsEvery int

	// RequireRun makes Start fail unless the PLC reports RUN.
	RequireRun bool
	// Enabled is the initial detection switch, overridden by a persisted setting.
	Enabled bool

	Store  *store.Store
	Logger *log.Logger
}

// DefaultConfig returns a Config with pipeline defaults and no backend.
func DefaultConfig() Config {
	return Config{
		Classifier: gesture.NewClassifier(),
		Symbols:    DefaultSymbols(),
		Cooldown:   debounce.DefaultInterval,
		Hold:       DefaultHold,
		IOTimeout:  DefaultIOTimeout,
		StatsEvery: DefaultStatsEvery,
		Enabled:    true,
	}
}

// DefaultSymbols returns the symbol to gesture table. Pointing drives the
// circle flag; open palm and peace are recognized but not forwarded.
func DefaultSymbols() map[gesture.Symbol]string {
	return map[gesture.Symbol]string{
		gesture.SwipeLeft:  "swipe_left",
		gesture.SwipeRight: "swipe_right",
		gesture.SwipeUp:    "swipe_up",
		gesture.SwipeDown:  "swipe_down",
		gesture.Pointing:   "circle",
		gesture.Circle:     "circle",
		gesture.OpenPalm:   "",
		gesture.Peace:      "",
	}
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	Enabled    bool
	Backend    plc.Status
	Tracking   bool
	Device     leap.Device
	Frames     int64
	Hands      int64
	FrameRate  float64
	LastSymbol gesture.Symbol
	LastPulse  *Pulse
}

// App is the gesture dispatcher. It implements leap.Listener.
type App struct {
	config     Config
	backend    plc.Backend
	addrs      *address.Map
	gate       *debounce.Gate
	classifier *gesture.Classifier
	symbols    map[gesture.Symbol]string
	store      *store.Store
	logger     *log.Logger

	now   func() time.Time
	sleep func(time.Duration)

	// ioMu serializes backend access; a pulse holds it from "on" to "off".
	ioMu    sync.Mutex
	started atomic.Bool

	mu         sync.RWMutex
	enabled    bool
	runCtx     context.Context
	callbacks  []PulseCallback
	tracking   bool
	device     leap.Device
	frames     int64
	hands      int64
	frameRate  float64
	lastSymbol gesture.Symbol
	lastPulse  *Pulse
}

// New creates a new App instance with the given configuration.
func New(config Config) (*App, error) {
	if config.Backend == nil {
		return nil, errors.New("app: backend is required")
	}
	if config.Addresses == nil {
		return nil, errors.New("app: address map is required")
	}

	defaults := DefaultConfig()
	if config.Classifier == nil {
		config.Classifier = defaults.Classifier
	}
	if config.Symbols == nil {
		config.Symbols = defaults.Symbols
	}
	if config.Hold <= 0 {
		config.Hold = defaults.Hold
	}
	if config.IOTimeout <= 0 {
		config.IOTimeout = defaults.IOTimeout
	}
	if config.StatsEvery <= 0 {
		config.StatsEvery = defaults.StatsEvery
	}

	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	a := &App{
		config:     config,
		backend:    config.Backend,
		addrs:      config.Addresses,
		gate:       debounce.NewGate(config.Cooldown),
		classifier: config.Classifier,
		symbols:    config.Symbols,
		store:      config.Store,
		logger:     logger,
		now:        time.Now,
		sleep:      time.Sleep,
		enabled:    config.Enabled,
		runCtx:     context.Background(),
		lastSymbol: gesture.None,
	}

	if a.store != nil {
		enabled, err := a.store.Settings().GetBool(settingEnabled, config.Enabled)
		if err != nil {
			a.logger.Printf("Failed to load detection setting: %v", err)
		} else {
			a.enabled = enabled
		}
	}

	return a, nil
}

// Start connects the backend. A connect failure is fatal to the session.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started.Load() {
		return nil
	}

	for addr, names := range a.addrs.Aliases() {
		a.logger.Printf("[CONFIG] %s shared by %v", addr, names)
	}

	a.ioMu.Lock()
	defer a.ioMu.Unlock()

	if err := a.backend.Connect(ctx); err != nil {
		return fmt.Errorf("connect backend: %w", err)
	}

	status := a.backend.ConnectionState(ctx)
	a.logger.Printf("[PLC] Connected, state %s", status)

	if a.config.RequireRun && status.State != plc.StateRunning {
		if err := a.backend.Disconnect(); err != nil {
			a.logger.Printf("Error disconnecting backend: %v", err)
		}
		return fmt.Errorf("%w: %s", ErrNotRunning, status)
	}

	a.started.Store(true)
	return nil
}

// Run feeds frames from src into the dispatcher until src ends or ctx is done.
func (a *App) Run(ctx context.Context, src leap.Source) error {
	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	err := src.Run(ctx, a)

	a.mu.Lock()
	a.tracking = false
	a.mu.Unlock()

	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Stop disconnects the backend. A pulse in progress completes first.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ioMu.Lock()
	defer a.ioMu.Unlock()

	if err := a.backend.Disconnect(); err != nil {
		a.logger.Printf("Error disconnecting backend: %v", err)
	}
	a.started.Store(false)
	a.logger.Println("[PLC] Disconnected")
}

// SetEnabled enables or disables gesture dispatch.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()

	if a.store != nil {
		if err := a.store.Settings().SetBool(settingEnabled, enabled); err != nil {
			a.logger.Printf("Failed to persist detection setting: %v", err)
		}
	}
}

// IsEnabled returns whether gesture dispatch is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Addresses returns the address map.
func (a *App) Addresses() *address.Map {
	return a.addrs
}

// Gate returns the cooldown gate.
func (a *App) Gate() *debounce.Gate {
	return a.gate
}

// BackendState queries the backend connection state.
func (a *App) BackendState(ctx context.Context) plc.Status {
	a.ioMu.Lock()
	defer a.ioMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.config.IOTimeout)
	defer cancel()
	return a.backend.ConnectionState(ctx)
}

// Status returns a snapshot of the pipeline, including a live backend state.
func (a *App) Status(ctx context.Context) Status {
	backend := a.BackendState(ctx)

	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Status{
		Enabled:    a.enabled,
		Backend:    backend,
		Tracking:   a.tracking,
		Device:     a.device,
		Frames:     a.frames,
		Hands:      a.hands,
		FrameRate:  a.frameRate,
		LastSymbol: a.lastSymbol,
	}
	if a.lastPulse != nil {
		p := *a.lastPulse
		s.LastPulse = &p
	}
	return s
}

// OnConnection logs that the tracking service is reachable.
func (a *App) OnConnection() {
	a.mu.Lock()
	a.tracking = true
	a.mu.Unlock()
	a.logger.Println("[LEAP] Connected to tracking service")
}

// OnDevice logs a device discovery notification.
func (a *App) OnDevice(d leap.Device) {
	a.mu.Lock()
	a.device = d
	a.mu.Unlock()
	a.logger.Printf("[LEAP] Device %s (%s) attached=%v streaming=%v", d.ID, d.Type, d.Attached, d.Streaming)
}

// OnFrame dispatches a tracking frame.
func (a *App) OnFrame(f leap.Frame) {
	a.mu.RLock()
	ctx := a.runCtx
	a.mu.RUnlock()

	a.HandleFrame(ctx, f)
}
