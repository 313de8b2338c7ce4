package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/savegress/oeesense/internal/oee"
	"github.com/savegress/oeesense/pkg/models"
)

// Response helpers

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: false, Error: message})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "oeesense",
		"time":    time.Now().UTC(),
	})
}

// Event handlers

func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var rec models.OperationRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateRecord(&rec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := s.store.Insert(r.Context(), rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var recs []models.OperationRecord
	if err := json.NewDecoder(r.Body).Decode(&recs); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(recs) == 0 {
		writeError(w, http.StatusBadRequest, "Empty batch")
		return
	}
	for i := range recs {
		if err := validateRecord(&recs[i]); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("record %d: %v", i, err))
			return
		}
	}

	stored, err := s.store.InsertBatch(r.Context(), recs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ingested": len(stored),
		"events":   stored,
	})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	if fromStr != "" || toStr != "" {
		from, to, err := parseTimeRange(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		records, err := s.store.QueryWindow(ctx, from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"events": records,
			"count":  len(records),
		})
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}
	records, err := s.store.List(ctx, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": records,
		"count":  len(records),
	})
}

// OEE handlers

func (s *Server) computeOEE(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseTimeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.engine.ComputeWindow(r.Context(), from, to)
	if err != nil {
		var parseErr *oee.ParseError
		var cfgErr *oee.ConfigError
		switch {
		case errors.As(err, &parseErr):
			// A stored row has a start timestamp the calculator rejects.
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.As(err, &cfgErr):
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Report handlers

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}
	reports := s.engine.List(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

func (s *Server) latestReport(w http.ResponseWriter, r *http.Request) {
	report, ok := s.engine.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "No reports computed yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Config handlers

func (s *Server) getStandards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"standards": s.config.Standards,
		"overrides": s.config.Overrides,
	})
}

// Stats handlers

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events":  count,
		"reports": s.engine.Stats(),
	})
}

// Helpers

func validateRecord(rec *models.OperationRecord) error {
	if rec.Operation == "" {
		return fmt.Errorf("operation is required")
	}
	if rec.Start == "" {
		return fmt.Errorf("timestamp_start is required")
	}
	// Unknown loss categories are stored as-is; they simply count toward no
	// loss bucket, so there is nothing to reject beyond the required fields.
	return nil
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("from and to query parameters are required")
	}

	from, err := oee.ParseTimestamp(fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from timestamp: %v", err)
	}
	to, err := oee.ParseTimestamp(toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to timestamp: %v", err)
	}
	return from, to, nil
}
