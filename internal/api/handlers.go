package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/chrissnell/wxrelay/internal/station"
)

const maxBodyBytes = 64 << 10

type valueRequest struct {
	Value *float64 `json:"value"`
}

type windRequest struct {
	Angle *float64 `json:"angle"`
	Speed *float64 `json:"speed"`
	Gust  *float64 `json:"gust"`
	Units string   `json:"units"`
}

type rainRequest struct {
	Amount *float64 `json:"amount"`
	Units  string   `json:"units"`
}

func (s *Server) listStations(w http.ResponseWriter, r *http.Request) {
	out := make([]station.Status, 0, len(s.names))
	for _, name := range s.names {
		st, err := s.stations[name].Status(r.Context())
		if err != nil {
			s.sendStationError(w, err)
			return
		}
		out = append(out, st)
	}
	sendJSON(w, http.StatusOK, out)
}

func (s *Server) getStation(w http.ResponseWriter, r *http.Request) {
	st, ok := s.lookup(w, r)
	if !ok {
		return
	}
	status, err := st.Status(r.Context())
	if err != nil {
		s.sendStationError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, status)
}

func (s *Server) getPackets(w http.ResponseWriter, r *http.Request) {
	st, ok := s.lookup(w, r)
	if !ok {
		return
	}
	packets, err := st.Packets(r.Context())
	if err != nil {
		s.sendStationError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, packets)
}

func (s *Server) postTemperature(w http.ResponseWriter, r *http.Request) {
	s.handleValue(w, r, func(ctx context.Context, st Station, v float64) error {
		return st.UpdateTemperature(ctx, v)
	})
}

func (s *Server) postHumidity(w http.ResponseWriter, r *http.Request) {
	s.handleValue(w, r, func(ctx context.Context, st Station, v float64) error {
		return st.UpdateHumidity(ctx, v)
	})
}

func (s *Server) postPressure(w http.ResponseWriter, r *http.Request) {
	s.handleValue(w, r, func(ctx context.Context, st Station, v float64) error {
		return st.UpdatePressure(ctx, v)
	})
}

func (s *Server) handleValue(w http.ResponseWriter, r *http.Request, update func(context.Context, Station, float64) error) {
	st, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Value == nil {
		sendError(w, http.StatusBadRequest, "value is required", nil)
		return
	}
	if err := update(r.Context(), st, *req.Value); err != nil {
		s.sendStationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postWind(w http.ResponseWriter, r *http.Request) {
	st, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req windRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Angle == nil || req.Speed == nil {
		sendError(w, http.StatusBadRequest, "angle and speed are required", nil)
		return
	}
	wind := station.Wind{Angle: *req.Angle, Speed: *req.Speed, Gust: req.Gust, Units: req.Units}
	if err := st.UpdateWind(r.Context(), wind); err != nil {
		s.sendStationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postRain(w http.ResponseWriter, r *http.Request) {
	st, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req rainRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Amount == nil {
		sendError(w, http.StatusBadRequest, "amount is required", nil)
		return
	}
	if err := st.UpdateRain(r.Context(), *req.Amount, req.Units); err != nil {
		s.sendStationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	st, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req station.Settings
	if !decode(w, r, &req) {
		return
	}
	if err := st.UpdateSettings(r.Context(), req); err != nil {
		s.sendStationError(w, err)
		return
	}
	status, err := st.Status(r.Context())
	if err != nil {
		s.sendStationError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, status)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (Station, bool) {
	name := mux.Vars(r)["name"]
	st, ok := s.stations[name]
	if !ok {
		sendError(w, http.StatusNotFound, "unknown station "+name, nil)
		return nil, false
	}
	return st, true
}

func (s *Server) sendStationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, station.ErrInvalidInput):
		sendError(w, http.StatusBadRequest, "invalid input", err)
	case errors.Is(err, station.ErrStopped):
		sendError(w, http.StatusServiceUnavailable, "station stopped", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		sendError(w, http.StatusServiceUnavailable, "request cancelled", err)
	default:
		s.logger.Errorf("station request failed: %v", err)
		sendError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		sendError(w, http.StatusBadRequest, "invalid JSON body", err)
		return false
	}
	return true
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response in JSON format
func sendError(w http.ResponseWriter, status int, message string, err error) {
	resp := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().Unix(),
	}
	if err != nil {
		resp["details"] = err.Error()
	}
	sendJSON(w, status, resp)
}
