package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/WVandergrift/rachio-bridge/internal/device"
	"github.com/WVandergrift/rachio-bridge/internal/rachio"
)

// commandRequest is the optional body for POST /devices/{id}/on.
type commandRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

// commandResponse reports a dispatched command.
type commandResponse struct {
	DeviceID string `json:"device_id"`
	Command  string `json:"command"`
	Success  bool   `json:"success"`
}

// handleListDevices returns all registered devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.List(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device by id.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "looking up device")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// handleDeviceOn starts watering. An optional JSON body may carry
// duration_seconds; absent or zero means the default duration.
func (s *Server) handleDeviceOn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.registry.Get(r.Context(), id); err != nil {
		writeNotFound(w, "device not found")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DurationSeconds < 0 {
		writeBadRequest(w, "duration_seconds must not be negative")
		return
	}

	facade := s.provider.Get(id)
	if err := facade.TurnOnFor(r.Context(), req.DurationSeconds); err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{DeviceID: id, Command: "turn_on", Success: true})
}

// handleDeviceOff stops watering. The command is issued regardless of
// the valve's last known state.
func (s *Server) handleDeviceOff(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.registry.Get(r.Context(), id); err != nil {
		writeNotFound(w, "device not found")
		return
	}

	facade := s.provider.Get(id)
	if err := facade.TurnOff(r.Context()); err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{DeviceID: id, Command: "turn_off", Success: true})
}

// writeCommandError maps a valve command failure onto an HTTP status.
// Cloud rejections surface as 502 since the bridge itself is healthy.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	if errors.Is(err, rachio.ErrCommand) || errors.Is(err, rachio.ErrTransport) {
		writeBadGateway(w, err.Error())
		return
	}
	writeInternalError(w, err.Error())
}
