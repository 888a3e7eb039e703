package api

import (
	"net/http"
	"strconv"

	"clinicbook/internal/booking"
	"clinicbook/internal/metrics"
)

// handleAvailabilityCheck runs the conflict detector for a candidate slot.
// GET /api/availability-check?partner_id=&date=&start_time=&end_time=&exclude_appointment_id=
func (s *HTTPServer) handleAvailabilityCheck(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability_check")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	q := r.URL.Query()
	partnerID, err := strconv.ParseInt(q.Get("partner_id"), 10, 64)
	if err != nil || partnerID <= 0 {
		writeError(w, http.StatusBadRequest, "partner_id is required")
		return
	}

	query := booking.AvailabilityQuery{
		PartnerID: partnerID,
		Date:      q.Get("date"),
		StartTime: q.Get("start_time"),
		EndTime:   q.Get("end_time"),
	}
	if raw := q.Get("exclude_appointment_id"); raw != "" {
		excludeID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid exclude_appointment_id")
			return
		}
		query.ExcludeAppointmentID = excludeID
	}

	result, err := s.svc.CheckAvailability(r.Context(), query)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// A slot with conflicts is still a 200: the check itself succeeded.
	writeJSON(w, http.StatusOK, result)
}
