package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-systemair/internal/coordinator"
	"github.com/nerrad567/gray-logic-systemair/internal/systemair"
)

// UnitResponse is the body of GET /api/v1/unit.
type UnitResponse struct {
	ID         string              `json:"id"`
	Host       string              `json:"host"`
	Ready      bool                `json:"ready"`
	Available  bool                `json:"available"`
	Properties map[string]int      `json:"properties"`
	Registers  systemair.RawValues `json:"registers"`
	Dirty      bool                `json:"dirty"`
	LastSync   *time.Time          `json:"last_sync,omitempty"`
	LastError  string              `json:"last_error,omitempty"`
	LastResult *systemair.Result   `json:"last_result,omitempty"`
	Trigger    coordinator.Trigger `json:"last_trigger,omitempty"`
}

// setPropertyRequest is the body of PUT /api/v1/unit/properties/{name}.
type setPropertyRequest struct {
	Value *int `json:"value"`
}

func (s *Server) handleGetUnit(w http.ResponseWriter, _ *http.Request) {
	snap := s.unit.Snapshot()
	resp := UnitResponse{
		ID:         s.unitID,
		Host:       s.host,
		Ready:      s.poller.Ready(),
		Available:  s.poller.Available(),
		Properties: snap.Properties,
		Registers:  snap.Raw,
		Dirty:      snap.Dirty,
	}
	if rep, ok := s.poller.LastReport(); ok {
		at := rep.At.UTC()
		resp.LastSync = &at
		resp.Trigger = rep.Trigger
		result := rep.Result
		resp.LastResult = &result
		if rep.Err != nil {
			resp.LastError = rep.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req setPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: value must be a whole number")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}
	// Scaling to raw must not wrap around.
	if *req.Value > math.MaxInt32 || *req.Value < math.MinInt32 {
		writeBadRequest(w, "value out of range")
		return
	}

	if err := s.unit.Set(name, *req.Value); err != nil {
		if errors.Is(err, systemair.ErrUnknownProperty) {
			writeError(w, http.StatusBadRequest, ErrCodeUnknownProperty, err.Error())
			return
		}
		writeInternalError(w, err.Error())
		return
	}
	s.poller.RequestRefresh()

	s.logger.Info("property set via API", "property", name, "value", *req.Value)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"property": name,
		"value":    *req.Value,
		"status":   "pending",
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.poller.RequestRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh_requested"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "sync history is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.history.GetHistory(r.Context(), s.unitID, limit)
	if err != nil {
		s.logger.Error("reading sync history failed", "error", err)
		writeInternalError(w, "failed to read sync history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"unit_id": s.unitID,
		"entries": entries,
		"count":   len(entries),
	})
}
