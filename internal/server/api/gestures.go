package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/gestureplc/internal/address"
	"github.com/ayusman/gestureplc/internal/app"
)

// GestureHandler serves the address map and manual pulses.
type GestureHandler struct {
	dispatcher Dispatcher
}

// NewGestureHandler creates a new GestureHandler.
func NewGestureHandler(d Dispatcher) *GestureHandler {
	return &GestureHandler{dispatcher: d}
}

type gestureResponse struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Byte    uint16 `json:"byte"`
	Bit     uint8  `json:"bit"`
	Value   *bool  `json:"value,omitempty"`
}

type listGesturesResponse struct {
	Set      string            `json:"set"`
	Gestures []gestureResponse `json:"gestures"`
	// ReadError is set when the live values could not be read.
	ReadError string `json:"read_error,omitempty"`
}

// ServeHTTP routes /api/gestures and /api/gestures/{name}/pulse.
func (h *GestureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/gestures")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	name, action, ok := strings.Cut(path, "/")
	if !ok || action != "pulse" || name == "" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.pulse(w, r, name)
}

// list handles GET /api/gestures.
func (h *GestureHandler) list(w http.ResponseWriter, r *http.Request) {
	m := h.dispatcher.Addresses()
	response := listGesturesResponse{
		Set:      m.Set(),
		Gestures: make([]gestureResponse, 0, len(m.Names())),
	}

	values, err := h.dispatcher.ReadAll(r.Context())
	if err != nil {
		response.ReadError = err.Error()
	}

	for _, name := range m.Names() {
		addr, err := m.Resolve(name)
		if err != nil {
			continue
		}
		g := gestureResponse{
			Name:    name,
			Address: addr.String(),
			Byte:    addr.Byte,
			Bit:     addr.Bit,
		}
		if v, ok := values[name]; ok {
			g.Value = &v
		}
		response.Gestures = append(response.Gestures, g)
	}

	writeJSON(w, http.StatusOK, response)
}

// pulse handles POST /api/gestures/{name}/pulse.
func (h *GestureHandler) pulse(w http.ResponseWriter, r *http.Request, name string) {
	p, err := h.dispatcher.Trigger(r.Context(), name)
	switch {
	case errors.Is(err, address.ErrUnknownGesture):
		writeError(w, http.StatusNotFound, "Gesture not found")
		return
	case errors.Is(err, app.ErrCooldown):
		writeError(w, http.StatusTooManyRequests, "Gesture in cooldown")
		return
	case err != nil && p.ID == "":
		writeError(w, http.StatusInternalServerError, "Failed to pulse gesture")
		return
	}

	// A pulse with failed writes was still attempted and recorded.
	status := http.StatusOK
	if !p.OK() {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, NewPulseResponse(p))
}
