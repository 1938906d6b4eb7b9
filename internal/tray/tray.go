// Package tray provides a system tray menu for the gesture dispatcher.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray shows dispatcher state in the system tray and forwards menu actions.
type Tray struct {
	onToggle     func(enabled bool)
	onOpenStatus func()
	onQuit       func()
	enabled      bool
	plcState     string
	lastGesture  string
	mu           sync.RWMutex

	// Menu items stored for later updates
	menuToggle      *systray.MenuItem
	menuPLC         *systray.MenuItem
	menuLastGesture *systray.MenuItem
}

// New creates a new Tray reflecting the given enabled state.
func New(enabled bool) *Tray {
	return &Tray{
		enabled:  enabled,
		plcState: "UNKNOWN",
	}
}

// OnToggle sets the callback called when dispatch is toggled from the menu.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpenStatus sets the callback called when the status page is requested.
func (t *Tray) OnOpenStatus(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpenStatus = fn
}

// OnQuit sets the callback called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray. It blocks until Quit is called and must run
// on the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit closes the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("GesturePLC")
	systray.SetTooltip("Gesture to PLC dispatcher")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(enabledTitle(t.enabled), "Toggle gesture dispatch")
	systray.AddSeparator()

	t.menuPLC = systray.AddMenuItem(plcTitle(t.plcState), "PLC connection state")
	t.menuPLC.Disable()
	t.menuLastGesture = systray.AddMenuItem(lastTitle(t.lastGesture), "Last pulsed gesture")
	t.menuLastGesture.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuStatus := systray.AddMenuItem("Open Status...", "Open status page in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Stop the dispatcher")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuStatus.ClickedCh:
				t.handleOpenStatus()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(enabledTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleOpenStatus() {
	t.mu.RLock()
	callback := t.onOpenStatus
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetLastGesture updates the last gesture display in the menu.
func (t *Tray) SetLastGesture(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastGesture = name
	if t.menuLastGesture != nil {
		t.menuLastGesture.SetTitle(lastTitle(name))
	}
}

// SetPLCState updates the PLC state display in the menu.
func (t *Tray) SetPLCState(state string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.plcState = state
	if t.menuPLC != nil {
		t.menuPLC.SetTitle(plcTitle(state))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func enabledTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

func plcTitle(state string) string {
	return "PLC: " + state
}

func lastTitle(name string) string {
	if name == "" {
		return "Last: none"
	}
	return "Last: " + name
}
