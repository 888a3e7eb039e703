package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"clinicbook/internal/booking"
	"clinicbook/internal/metrics"
	"clinicbook/internal/model"
)

// transitionEvents maps URL action segments to lifecycle events.
var transitionEvents = map[string]booking.Event{
	"confirm":       booking.EventConfirm,
	"checkin":       booking.EventCheckIn,
	"checkout":      booking.EventCheckOut,
	"undo-checkin":  booking.EventUndoCheckIn,
	"undo-checkout": booking.EventUndoCheckOut,
	"cancel":        booking.EventCancel,
	"no-show":       booking.EventNoShow,
}

// CancelRequest is the body for POST /api/appointments/{id}/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// AppointmentResponse wraps an appointment with its currently legal actions,
// so UIs enable buttons from the same table the server enforces.
type AppointmentResponse struct {
	Appointment *model.Appointment `json:"appointment"`
	Actions     []booking.Event    `json:"actions"`
}

// handleAppointments serves the collection endpoint.
// POST /api/appointments            create
// GET  /api/appointments?partner_id=&date=   day agenda
func (s *HTTPServer) handleAppointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createAppointment(w, r)
	case http.MethodGet:
		s.listAppointments(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) createAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_appointment")

	var req booking.CreateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	appt, err := s.svc.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentResponse(appt))
}

func (s *HTTPServer) listAppointments(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_appointments")

	q := r.URL.Query()
	partnerID, err := strconv.ParseInt(q.Get("partner_id"), 10, 64)
	if err != nil || partnerID <= 0 {
		writeError(w, http.StatusBadRequest, "partner_id is required")
		return
	}
	date := q.Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	appointments, err := s.svc.ListDay(r.Context(), partnerID, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if appointments == nil {
		appointments = []model.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appointments})
}

// handleAppointmentByID routes item and transition endpoints.
// GET  /api/appointments/{id}
// PUT  /api/appointments/{id}
// POST /api/appointments/{id}/{action}
func (s *HTTPServer) handleAppointmentByID(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/appointments/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	idPart, action, _ := strings.Cut(rest, "/")

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	if action != "" {
		s.transitionAppointment(w, r, id, action)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getAppointment(w, r, id)
	case http.MethodPut:
		s.updateAppointment(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) getAppointment(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("get_appointment")

	appt, err := s.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse(appt))
}

func (s *HTTPServer) updateAppointment(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("update_appointment")

	var patch booking.UpdatePatch
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	appt, err := s.svc.Update(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse(appt))
}

func (s *HTTPServer) transitionAppointment(w http.ResponseWriter, r *http.Request, id int64, action string) {
	metrics.IncHTTP("transition_appointment")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	event, known := transitionEvents[action]
	if !known {
		writeError(w, http.StatusNotFound, "unknown action "+action)
		return
	}

	var reason string
	if event == booking.EventCancel {
		var req CancelRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		reason = req.Reason
	}

	appt, err := s.svc.Transition(r.Context(), id, event, reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse(appt))
}

func appointmentResponse(appt *model.Appointment) AppointmentResponse {
	return AppointmentResponse{
		Appointment: appt,
		Actions:     booking.LegalEvents(appt.Status),
	}
}
