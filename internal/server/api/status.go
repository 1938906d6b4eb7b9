package api

import (
	"encoding/json"
	"net/http"
)

// StatusHandler reports pipeline state and toggles dispatch.
type StatusHandler struct {
	dispatcher Dispatcher
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(d Dispatcher) *StatusHandler {
	return &StatusHandler{dispatcher: d}
}

type statusResponse struct {
	Enabled    bool           `json:"enabled"`
	PLCState   string         `json:"plc_state"`
	PLCReady   bool           `json:"plc_ready"`
	Tracking   bool           `json:"tracking"`
	Device     string         `json:"device,omitempty"`
	Frames     int64          `json:"frames"`
	Hands      int64          `json:"hands"`
	FrameRate  float64        `json:"frame_rate"`
	LastSymbol string         `json:"last_symbol"`
	LastPulse  *PulseResponse `json:"last_pulse,omitempty"`
	ActiveSet  string         `json:"active_set"`
}

type updateStatusRequest struct {
	Enabled *bool `json:"enabled"`
}

// ServeHTTP handles GET and PUT /api/status.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		var req updateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "enabled is required")
			return
		}
		h.dispatcher.SetEnabled(*req.Enabled)
		h.get(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *StatusHandler) get(w http.ResponseWriter, r *http.Request) {
	s := h.dispatcher.Status(r.Context())

	response := statusResponse{
		Enabled:    s.Enabled,
		PLCState:   s.Backend.String(),
		PLCReady:   s.Backend.Ready(),
		Tracking:   s.Tracking,
		Device:     s.Device.ID,
		Frames:     s.Frames,
		Hands:      s.Hands,
		FrameRate:  s.FrameRate,
		LastSymbol: string(s.LastSymbol),
		ActiveSet:  h.dispatcher.Addresses().Set(),
	}
	if s.LastPulse != nil {
		p := NewPulseResponse(*s.LastPulse)
		response.LastPulse = &p
	}

	writeJSON(w, http.StatusOK, response)
}
