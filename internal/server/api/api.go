// Package api provides HTTP API handlers for the gesture dispatcher.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/gestureplc/internal/address"
	"github.com/ayusman/gestureplc/internal/app"
)

// Dispatcher is the part of the application the API drives.
type Dispatcher interface {
	Addresses() *address.Map
	ReadAll(ctx context.Context) (map[string]bool, error)
	Trigger(ctx context.Context, name string) (app.Pulse, error)
	Status(ctx context.Context) app.Status
	SetEnabled(enabled bool)
}

type errorResponse struct {
	Error string `json:"error"`
}

// PulseResponse is the JSON form of a pulse, shared with the event stream.
type PulseResponse struct {
	ID         string    `json:"id"`
	Gesture    string    `json:"gesture"`
	Symbol     string    `json:"symbol,omitempty"`
	Source     string    `json:"source"`
	Address    string    `json:"address"`
	OK         bool      `json:"ok"`
	OnError    string    `json:"on_error,omitempty"`
	OffError   string    `json:"off_error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// NewPulseResponse converts a pulse to its JSON form.
func NewPulseResponse(p app.Pulse) PulseResponse {
	return recordResponse(p.Record())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
