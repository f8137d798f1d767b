package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openbeamline/beamcore/internal/beamline"
	"github.com/openbeamline/beamcore/internal/device"
	"github.com/openbeamline/beamcore/internal/state"
)

// deviceResponse is an inventory row plus its live composite state.
type deviceResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Slug       string         `json:"slug"`
	Prefix     string         `json:"prefix"`
	Class      device.Class   `json:"class"`
	Beamline   string         `json:"beamline"`
	Area       *string        `json:"area,omitempty"`
	IOC        *string        `json:"ioc,omitempty"`
	StateTable string         `json:"state_table"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	State      string         `json:"state"`
}

func (s *Server) deviceResponseFor(d device.Device) deviceResponse {
	st, err := s.beamline.State(d.Slug)
	if err != nil {
		st = state.LabelUnknown
	}
	return deviceResponse{
		ID:         d.ID,
		Name:       d.Name,
		Slug:       d.Slug,
		Prefix:     d.Prefix,
		Class:      d.Class,
		Beamline:   d.Beamline,
		Area:       d.Area,
		IOC:        d.IOC,
		StateTable: d.StateTable,
		Metadata:   d.Metadata,
		State:      string(st),
	}
}

// handleListDevices returns every live device with its current state.
// An optional ?beamline= filter narrows the list.
//
// GET /api/v1/devices
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.beamline.Devices()

	beamlineFilter := r.URL.Query().Get("beamline")

	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		if beamlineFilter != "" && d.Beamline != beamlineFilter {
			continue
		}
		out = append(out, s.deviceResponseFor(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })

	writeJSON(w, http.StatusOK, out)
}

// handleGetDevice returns one inventory row with its current state.
//
// GET /api/v1/devices/{slug}
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	d, err := s.registry.GetDeviceBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("fetching device failed", "slug", slug, "error", err)
		writeInternalError(w, "could not fetch device")
		return
	}

	writeJSON(w, http.StatusOK, s.deviceResponseFor(*d))
}

type stateResponse struct {
	Slug  string `json:"slug"`
	State string `json:"state"`
}

// handleGetState reads a fresh composite state over the transport.
//
// GET /api/v1/devices/{slug}/state
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	label, err := s.beamline.Label(r.Context(), slug)
	if err != nil {
		if errors.Is(err, beamline.ErrUnknownDevice) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("reading state failed", "slug", slug, "error", err)
		writeInternalError(w, "could not read device state")
		return
	}

	writeJSON(w, http.StatusOK, stateResponse{Slug: slug, State: string(label)})
}

type labelsResponse struct {
	Slug   string   `json:"slug"`
	Labels []string `json:"labels"`
}

// handleGetLabels lists the enumerated move targets for a device.
//
// GET /api/v1/devices/{slug}/labels
func (s *Server) handleGetLabels(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	labels, err := s.beamline.Labels(slug)
	if err != nil {
		if errors.Is(err, beamline.ErrUnknownDevice) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("listing labels failed", "slug", slug, "error", err)
		writeInternalError(w, "could not list labels")
		return
	}

	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	writeJSON(w, http.StatusOK, labelsResponse{Slug: slug, Labels: out})
}

type moveRequest struct {
	Target string `json:"target"`

	// WaitMS, when positive, holds the request open until the move
	// completes or the given time elapses.
	WaitMS int `json:"wait_ms"`
}

type moveResponse struct {
	Slug      string `json:"slug"`
	Target    string `json:"target"`
	Done      bool   `json:"done"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// handleMove commands a device toward a target state.
//
// The move itself completes asynchronously. By default the handler
// returns 202 Accepted immediately; clients that set wait_ms get the
// settled outcome instead.
//
// POST /api/v1/devices/{slug}/move
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Target == "" {
		writeBadRequest(w, "target is required")
		return
	}

	st, err := s.beamline.Move(r.Context(), slug, state.Label(req.Target))
	if err != nil {
		switch {
		case errors.Is(err, beamline.ErrUnknownDevice):
			writeNotFound(w, "device not found")
		case errors.Is(err, state.ErrUnknownLabel):
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "unknown target state for this device")
		case errors.Is(err, state.ErrReadOnly):
			writeError(w, http.StatusConflict, ErrCodeConflict, "device has no drive commands")
		default:
			s.logger.Error("move failed", "slug", slug, "target", req.Target, "error", err)
			writeInternalError(w, "could not command move")
		}
		return
	}

	if req.WaitMS <= 0 {
		writeJSON(w, http.StatusAccepted, moveResponse{
			Slug:      slug,
			Target:    req.Target,
			Done:      st.Done(),
			Succeeded: st.Succeeded(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(req.WaitMS)*time.Millisecond)
	defer cancel()
	//nolint:errcheck // Token state is reported below regardless of wait outcome
	st.Wait(ctx)

	resp := moveResponse{
		Slug:      slug,
		Target:    req.Target,
		Done:      st.Done(),
		Succeeded: st.Succeeded(),
	}
	if err := st.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type historyEntryResponse struct {
	ID        int64  `json:"id"`
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
}

// handleGetHistory returns recent state transitions for a device,
// newest first. An optional ?limit= caps the page size.
//
// GET /api/v1/devices/{slug}/history
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if s.history == nil {
		writeJSON(w, http.StatusOK, []historyEntryResponse{})
		return
	}

	d, err := s.registry.GetDeviceBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("fetching device failed", "slug", slug, "error", err)
		writeInternalError(w, "could not fetch device")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
	}

	entries, err := s.history.GetHistory(r.Context(), d.ID, limit)
	if err != nil {
		s.logger.Error("fetching history failed", "slug", slug, "error", err)
		writeInternalError(w, "could not fetch history")
		return
	}

	out := make([]historyEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = historyEntryResponse{
			ID:        e.ID,
			FromState: e.FromState,
			ToState:   e.ToState,
			Source:    e.Source,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, out)
}
