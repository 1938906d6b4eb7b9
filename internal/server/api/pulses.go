package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/gestureplc/internal/store"
)

// History page sizes.
const (
	// DefaultPulseLimit is the history size returned when no limit is given.
	DefaultPulseLimit = 50
	// MaxPulseLimit is the largest limit a client may request.
	MaxPulseLimit = 1000
)

// PulsesHandler serves recorded pulse history.
type PulsesHandler struct {
	store *store.Store
}

// NewPulsesHandler creates a new PulsesHandler with the given store.
func NewPulsesHandler(s *store.Store) *PulsesHandler {
	return &PulsesHandler{store: s}
}

type listPulsesResponse struct {
	Pulses []PulseResponse `json:"pulses"`
	Counts map[string]int  `json:"counts"`
}

// ServeHTTP routes /api/pulses and /api/pulses/{id}.
func (h *PulsesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/pulses"), "/")
	if id == "" {
		h.list(w, r)
		return
	}
	h.get(w, id)
}

// list handles GET /api/pulses?limit=N with 1 <= N <= MaxPulseLimit.
func (h *PulsesHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := DefaultPulseLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxPulseLimit {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	records, err := h.store.Pulses().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pulses")
		return
	}
	counts, err := h.store.Pulses().CountByGesture()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count pulses")
		return
	}

	response := listPulsesResponse{
		Pulses: make([]PulseResponse, 0, len(records)),
		Counts: counts,
	}
	for _, rec := range records {
		response.Pulses = append(response.Pulses, recordResponse(rec))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/pulses/{id}.
func (h *PulsesHandler) get(w http.ResponseWriter, id string) {
	rec, err := h.store.Pulses().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Pulse not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get pulse")
		return
	}
	writeJSON(w, http.StatusOK, recordResponse(rec))
}

func recordResponse(rec *store.PulseRecord) PulseResponse {
	return PulseResponse{
		ID:         rec.ID,
		Gesture:    rec.Gesture,
		Symbol:     rec.Symbol,
		Source:     string(rec.Source),
		Address:    rec.Address,
		OK:         rec.OK(),
		OnError:    rec.OnError,
		OffError:   rec.OffError,
		StartedAt:  rec.StartedAt,
		DurationMs: rec.Duration.Milliseconds(),
	}
}
