package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clinicbook/internal/metrics"
	"clinicbook/internal/model"
)

// AvailabilityWindowRequest creates a weekly availability window.
type AvailabilityWindowRequest struct {
	DayOfWeek  int    `json:"day_of_week"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	BreakStart string `json:"break_start,omitempty"`
	BreakEnd   string `json:"break_end,omitempty"`
}

// BlockedDateRequest creates a date-specific block.
type BlockedDateRequest struct {
	BlockedDate string `json:"blocked_date"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// handlePartnerSchedule routes partner schedule administration.
// GET    /api/partners/{id}/availability
// POST   /api/partners/{id}/availability
// DELETE /api/partners/{id}/availability/{windowID}
// GET    /api/partners/{id}/blocked-dates?date=YYYY-MM-DD
// POST   /api/partners/{id}/blocked-dates
func (s *HTTPServer) handlePartnerSchedule(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/partners/"
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if len(parts) < 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	partnerID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || partnerID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid partner id")
		return
	}

	switch parts[1] {
	case "availability":
		switch {
		case r.Method == http.MethodGet && len(parts) == 2:
			s.listPartnerAvailability(w, r, partnerID)
		case r.Method == http.MethodPost && len(parts) == 2:
			s.createPartnerAvailability(w, r, partnerID)
		case r.Method == http.MethodDelete && len(parts) == 3:
			s.deactivatePartnerAvailability(w, r, parts[2])
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "blocked-dates":
		switch r.Method {
		case http.MethodGet:
			s.listPartnerBlockedDates(w, r, partnerID)
		case http.MethodPost:
			s.createPartnerBlockedDate(w, r, partnerID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) listPartnerAvailability(w http.ResponseWriter, r *http.Request, partnerID int64) {
	metrics.IncHTTP("list_partner_availability")

	windows, err := s.partners.ListAvailability(r.Context(), partnerID)
	if err != nil {
		s.log.Error().Err(err).Int64("partner_id", partnerID).Msg("failed to list availability")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if windows == nil {
		windows = []model.PartnerAvailability{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"availability": windows})
}

func (s *HTTPServer) createPartnerAvailability(w http.ResponseWriter, r *http.Request, partnerID int64) {
	metrics.IncHTTP("create_partner_availability")

	var req AvailabilityWindowRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if msg := validateWindow(req); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	window := &model.PartnerAvailability{
		PartnerID:  partnerID,
		DayOfWeek:  req.DayOfWeek,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		BreakStart: req.BreakStart,
		BreakEnd:   req.BreakEnd,
		Active:     true,
	}
	if err := s.partners.CreateAvailability(r.Context(), window); err != nil {
		s.log.Error().Err(err).Int64("partner_id", partnerID).Msg("failed to create availability")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, window)
}

func (s *HTTPServer) deactivatePartnerAvailability(w http.ResponseWriter, r *http.Request, rawID string) {
	metrics.IncHTTP("deactivate_partner_availability")

	windowID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || windowID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid availability id")
		return
	}
	if err := s.partners.DeactivateAvailability(r.Context(), windowID); err != nil {
		s.log.Error().Err(err).Int64("window_id", windowID).Msg("failed to deactivate availability")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) listPartnerBlockedDates(w http.ResponseWriter, r *http.Request, partnerID int64) {
	metrics.IncHTTP("list_partner_blocked_dates")

	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	blocks, err := s.partners.ListBlockedDates(r.Context(), partnerID, date)
	if err != nil {
		s.log.Error().Err(err).Int64("partner_id", partnerID).Msg("failed to list blocked dates")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if blocks == nil {
		blocks = []model.PartnerBlockedDate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocked_dates": blocks})
}

func (s *HTTPServer) createPartnerBlockedDate(w http.ResponseWriter, r *http.Request, partnerID int64) {
	metrics.IncHTTP("create_partner_blocked_date")

	var req BlockedDateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if _, err := time.Parse(model.DateLayout, req.BlockedDate); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid blocked_date; expected YYYY-MM-DD")
		return
	}
	// Partial blocks need both bounds; a missing pair means full day.
	if (req.StartTime == "") != (req.EndTime == "") {
		writeError(w, http.StatusUnprocessableEntity, "partial block requires both start_time and end_time")
		return
	}
	if req.StartTime != "" {
		if msg := validateClockRange(req.StartTime, req.EndTime); msg != "" {
			writeError(w, http.StatusUnprocessableEntity, msg)
			return
		}
	}

	block := &model.PartnerBlockedDate{
		PartnerID:   partnerID,
		BlockedDate: req.BlockedDate,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Reason:      req.Reason,
		Active:      true,
	}
	if err := s.partners.CreateBlockedDate(r.Context(), block); err != nil {
		s.log.Error().Err(err).Int64("partner_id", partnerID).Msg("failed to create blocked date")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

func validateWindow(req AvailabilityWindowRequest) string {
	if req.DayOfWeek < 0 || req.DayOfWeek > 6 {
		return "day_of_week must be 0 (Sunday) through 6 (Saturday)"
	}
	if msg := validateClockRange(req.StartTime, req.EndTime); msg != "" {
		return msg
	}
	if (req.BreakStart == "") != (req.BreakEnd == "") {
		return "break requires both break_start and break_end"
	}
	if req.BreakStart != "" {
		if msg := validateClockRange(req.BreakStart, req.BreakEnd); msg != "" {
			return msg
		}
	}
	return ""
}

func validateClockRange(start, end string) string {
	startMin, err := model.ParseClock(start)
	if err != nil {
		return err.Error()
	}
	endMin, err := model.ParseClock(end)
	if err != nil {
		return err.Error()
	}
	if endMin <= startMin {
		return "end time must be after start time"
	}
	return ""
}
