package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pizzeria/internal/config"
	"pizzeria/internal/metrics"
	"pizzeria/internal/service"
	"pizzeria/internal/storehours"
)

// AdminStoreResponse is the response for GET /api/admin/store.
type AdminStoreResponse struct {
	Status storehours.View `json:"status"`
	Hours  HoursPayload    `json:"hours"`
}

// HoursPayload maps lower-case English day names to their hours.
type HoursPayload map[string]storehours.DayHours

func hoursPayload(s storehours.WeeklySchedule) HoursPayload {
	out := make(HoursPayload, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		out[strings.ToLower(d.String())] = s[d]
	}
	return out
}

func (p HoursPayload) schedule() (storehours.WeeklySchedule, error) {
	var s storehours.WeeklySchedule
	seen := make(map[time.Weekday]bool, 7)
	for name, h := range p {
		d, err := config.ParseWeekday(name)
		if err != nil {
			return s, err
		}
		s[d] = h
		seen[d] = true
	}
	if len(seen) != 7 {
		return s, fmt.Errorf("all seven days are required, got %d", len(seen))
	}
	return s, nil
}

// handleCustomerStatus returns the storefront view.
// GET /api/store/status
func (s *HTTPServer) handleCustomerStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("store_status")

	view, _, err := s.store.Current(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("load store status")
		writeError(w, http.StatusInternalServerError, "store status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, view.Customer())
}

// GET /api/admin/store
func (s *HTTPServer) handleAdminStore(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_store")

	view, schedule, err := s.store.Current(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("load store status")
		writeError(w, http.StatusInternalServerError, "store status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, AdminStoreResponse{Status: view, Hours: hoursPayload(schedule)})
}

// PUT /api/admin/store/status
func (s *HTTPServer) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_set_status")

	var req service.StatusUpdate
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.store.SetStatus(r.Context(), actor(r), req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.handleAdminStore(w, r)
}

// GET /api/admin/store/hours
func (s *HTTPServer) handleGetHours(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_get_hours")

	_, schedule, err := s.store.Current(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("load store hours")
		writeError(w, http.StatusInternalServerError, "store hours unavailable")
		return
	}
	writeJSON(w, http.StatusOK, hoursPayload(schedule))
}

// PUT /api/admin/store/hours
func (s *HTTPServer) handleSetHours(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_set_hours")

	var req HoursPayload
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	schedule, err := req.schedule()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.SetSchedule(r.Context(), actor(r), schedule); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.handleGetHours(w, r)
}

// PUT /api/admin/store/hours/{day}
func (s *HTTPServer) handleSetDay(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_set_day")

	day, err := parseDay(chi.URLParam(r, "day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req storehours.DayHours
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.store.SetDay(r.Context(), actor(r), day, req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.handleGetHours(w, r)
}

// GET /api/admin/store/journal.xlsx?from=YYYY-MM-DD&to=YYYY-MM-DD
// Both dates are inclusive; the default is the last 30 days.
func (s *HTTPServer) handleJournalExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_journal_export")

	if s.exporter == nil {
		writeError(w, http.StatusNotFound, "journal export is disabled")
		return
	}

	loc := s.config.Location
	today := time.Now().In(loc)
	to := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	from := to.AddDate(0, 0, -29)

	q := r.URL.Query()
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = time.ParseInLocation("2006-01-02", v, loc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from, expected YYYY-MM-DD")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.ParseInLocation("2006-01-02", v, loc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to, expected YYYY-MM-DD")
			return
		}
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	var buf bytes.Buffer
	if _, err := s.exporter.Export(r.Context(), from, to.AddDate(0, 0, 1), &buf); err != nil {
		s.logger.Error().Err(err).Msg("export journal")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	filename := fmt.Sprintf("store_journal_%s_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("store update failed")
		writeError(w, http.StatusInternalServerError, "store update failed")
	}
}

// parseDay accepts a day name or a number 0 (Sunday) to 6 (Saturday).
func parseDay(v string) (time.Weekday, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("day must be between 0 and 6")
		}
		return time.Weekday(n), nil
	}
	return config.ParseWeekday(v)
}
