package http

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"wastewater/internal/core"
	"wastewater/internal/log"
	"wastewater/internal/stats"
)

const (
	queryStation   = "station"
	queryParameter = "parameter"
)

type seriesResponse struct {
	Station   string       `json:"station"`
	Parameter string       `json:"parameter"`
	Points    []core.Point `json:"points"`
}

type summaryResponse struct {
	Station   string        `json:"station"`
	Parameter string        `json:"parameter"`
	Summary   stats.Summary `json:"summary"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ds.Stations())
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	if station := strings.TrimSpace(r.URL.Query().Get(queryStation)); station != "" {
		ds = ds.ByStation(station)
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	station, parameter, points, ok := s.series(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse{
		Station:   station,
		Parameter: parameter,
		Points:    points,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	station, parameter, points, ok := s.series(w, r)
	if !ok {
		return
	}
	summary, err := stats.Summarize(points)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Summary failed",
			log.FieldError, err, "station", station, "parameter", parameter)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		Station:   station,
		Parameter: parameter,
		Summary:   summary,
	})
}

// series resolves the station path segment and parameter query to a time
// series, writing the error response itself when it returns false.
func (s *Server) series(w http.ResponseWriter, r *http.Request) (string, string, []core.Point, bool) {
	station, err := url.PathUnescape(chi.URLParam(r, "station"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid station")
		return "", "", nil, false
	}
	station = strings.TrimSpace(station)
	parameter := strings.TrimSpace(r.URL.Query().Get(queryParameter))
	if parameter == "" {
		writeError(w, http.StatusBadRequest, "missing parameter query")
		return "", "", nil, false
	}

	ds, ok := s.dataset(w, r)
	if !ok {
		return "", "", nil, false
	}
	records := ds.ByStation(station)
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "unknown station")
		return "", "", nil, false
	}
	return station, parameter, records.Series(station, parameter), true
}

func (s *Server) dataset(w http.ResponseWriter, r *http.Request) (core.Dataset, bool) {
	ds, err := s.datasets.Get(r.Context())
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Dataset load failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return ds, true
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
