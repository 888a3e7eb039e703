package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"clinicbook/internal/booking"
	"clinicbook/internal/db"
	"clinicbook/internal/model"
	"clinicbook/internal/settings"
)

type errorResponse struct {
	Error     string                   `json:"error"`
	Conflicts []booking.ConflictDetail `json:"conflicts"`
}

// testNow is Monday 2026-03-16 08:00 UTC; requests book the following day.
var testNow = time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)

const testTuesday = "2026-03-17"

func newTestServer(t *testing.T) (*HTTPServer, *db.DB) {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	log := zerolog.New(io.Discard)
	provider := settings.NewProvider(database, &log)
	detector := booking.NewDetector(database, database, provider, time.UTC, &log)
	svc := booking.NewService(database, detector, provider, &log, booking.Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})
	return NewHTTPServer(svc, database, provider, &log, ServerOptions{Port: 0}), database
}

func seedPartnerWeek(t *testing.T, database *db.DB, partnerID int64) {
	t.Helper()
	for wd := 1; wd <= 5; wd++ {
		window := &model.PartnerAvailability{
			PartnerID: partnerID, DayOfWeek: wd,
			StartTime: "08:00", EndTime: "18:00", Active: true,
		}
		if err := database.CreateAvailability(t.Context(), window); err != nil {
			t.Fatal(err)
		}
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func createRequestBody() booking.CreateRequest {
	return booking.CreateRequest{
		PatientID:        1,
		PartnerID:        2,
		ProductServiceID: 3,
		RoomID:           4,
		Date:             testTuesday,
		StartTime:        "09:00",
		EndTime:          "09:30",
		Type:             model.TypeConsultation,
	}
}

func decodeAppointment(t *testing.T, w *httptest.ResponseRecorder) AppointmentResponse {
	t.Helper()
	var resp AppointmentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestCreateAppointment(t *testing.T) {
	server, database := newTestServer(t)
	seedPartnerWeek(t, database, 2)

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/appointments", createRequestBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (%s)", w.Code, http.StatusCreated, w.Body.String())
	}

	resp := decodeAppointment(t, w)
	if resp.Appointment.ID == 0 {
		t.Error("id not assigned")
	}
	if resp.Appointment.Status != model.StatusScheduled {
		t.Errorf("status = %s, want scheduled", resp.Appointment.Status)
	}
	hasConfirm := false
	for _, a := range resp.Actions {
		if a == booking.EventConfirm {
			hasConfirm = true
		}
	}
	if !hasConfirm {
		t.Errorf("actions = %v, want confirm available", resp.Actions)
	}
}

func TestCreateAppointment_ConflictPayload(t *testing.T) {
	server, database := newTestServer(t)
	seedPartnerWeek(t, database, 2)

	first := doJSON(t, server.Handler(), http.MethodPost, "/api/appointments", createRequestBody())
	if first.Code != http.StatusCreated {
		t.Fatalf("first booking failed: %s", first.Body.String())
	}

	body := createRequestBody()
	body.PatientID = 5
	body.StartTime, body.EndTime = "09:15", "09:45"

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/appointments", body)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d (%s)", w.Code, http.StatusConflict, w.Body.String())
	}

	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(resp.Conflicts))
	}
	if resp.Conflicts[0].Type != booking.ConflictAppointment {
		t.Errorf("conflict type = %s, want appointment", resp.Conflicts[0].Type)
	}
	if resp.Conflicts[0].Appointment == nil {
		t.Error("conflict must carry the offending appointment summary")
	}
}

func TestCreateAppointment_EncaixeOverride(t *testing.T) {
	server, database := newTestServer(t)
	seedPartnerWeek(t, database, 2)

	first := doJSON(t, server.Handler(), http.MethodPost, "/api/appointments", createRequestBody())
	if first.Code != http.StatusCreated {
		t.Fatal(first.Body.String())
	}

	body := createRequestBody()
	body.PatientID = 5
	body.IsEncaixe = true

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/appointments", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (%s)", w.Code, http.StatusCreated, w.Body.String())
	}
	resp := decodeAppointment(t, w)
	if !resp.Appointment.IsEncaixe {
		t.Error("is_encaixe not persisted")
	}
}

func TestConcurrentCreatesSingleWinner(t *testing.T) {
	server, database := newTestServer(t)
	seedPartnerWeek(t, database, 2)

	// All requests race for the same slot; the partner lock must let exactly
	// one through and hand everyone else the conflict list.
	const attempts = 8
	recorders := make([]*httptest.ResponseRecorder, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		body := createRequestBody()
		body.PatientID = int64(i + 1)
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func(i int, payload []byte) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/appointments", bytes.NewReader(payload))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)
			recorders[i] = rec
		}(i, payload)
	}
	wg.Wait()

	var created, conflicted int
	for i, rec := range recorders {
		switch rec.Code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicted++
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("request %d: decode conflict body: %v", i, err)
			}
			if len(resp.Conflicts) == 0 || resp.Conflicts[0].Type != booking.ConflictAppointment {
				t.Errorf("request %d: conflicts = %+v, want an appointment conflict", i, resp.Conflicts)
			}
		default:
			t.Errorf("request %d: status = %d (%s)", i, rec.Code, rec.Body.String())
		}
	}
	if created != 1 || conflicted != attempts-1 {
		t.Errorf("created = %d, conflicted = %d, want 1 and %d", created, conflicted, attempts-1)
	}

	stored, err := database.ListPartnerDay(t.Context(), 2, testTuesday)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Errorf("stored appointments = %d, want 1", len(stored))
	}
}

func TestCreateAppointment_Validation(t *testing.T) {
	server, database := newTestServer(t)
	seedPartnerWeek(t, database, 2)

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"invalid JSON", "not json", http.StatusBadRequest},
		{"unknown field", map[string]any{"surprise": true}, http.StatusBadRequest},
		{"missing ids", booking.CreateRequest{Date: testTuesday, StartTime: "09:00", EndTime: "09:30", Type: model.TypeExam}, http.StatusUnprocessableEntity},
		{"bad date", func() any { b := createRequestBody(); b.Date = "17/03/2026"; return b }(), http.StatusUnprocessableEntity},
		{"end before start", func() any { b := createRequestBody(); b.StartTime, b.EndTime = "10:00", "09:00"; return b }(), http.StatusUnprocessableEntity},
		{"weekend", func() any { b := createRequestBody(); b.Date = "2026-03-21"; return b }(), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, server.Handler(), http.MethodPost, "/api/appointments", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestGetAppointment_NotFound(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server.Handler(), http.MethodGet, "/api/appointments/999", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListAppointments(t *testing.T) {
	server, database := newTestServer(t)
	seedPartnerWeek(t, database, 2)

	for _, slot := range []struct{ start, end string }{
		{"09:00", "09:30"}, {"11:00", "11:30"},
	} {
		body := createRequestBody()
		body.StartTime, body.EndTime = slot.start, slot.end
		if w := doJSON(t, server.Handler(), http.MethodPost, "/api/appointments", body); w.Code != http.StatusCreated {
			t.Fatal(w.Body.String())
		}
	}

	w := doJSON(t, server.Handler(), http.MethodGet, "/api/appointments?partner_id=2&date="+testTuesday, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}

	var resp struct {
		Appointments []model.Appointment `json:"appointments"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Appointments) != 2 {
		t.Errorf("appointments = %d, want 2", len(resp.Appointments))
	}

	missing := doJSON(t, server.Handler(), http.MethodGet, "/api/appointments?date="+testTuesday, nil)
	if missing.Code != http.StatusBadRequest {
		t.Errorf("missing partner_id status = %d, want 400", missing.Code)
	}
}

func TestAppointmentLifecycleOverHTTP(t *testing.T) {
	server, database := newTestServer(t)
	seedPartnerWeek(t, database, 2)

	created := doJSON(t, server.Handler(), http.MethodPost, "/api/appointments", createRequestBody())
	if created.Code != http.StatusCreated {
		t.Fatal(created.Body.String())
	}
	id := decodeAppointment(t, created).Appointment.ID
	path := "/api/appointments/" + itoa(id)

	steps := []struct {
		action string
		want   model.Status
	}{
		{"confirm", model.StatusConfirmed},
		{"checkin", model.StatusInProgress},
		{"checkout", model.StatusCompleted},
		{"undo-checkout", model.StatusInProgress},
		{"undo-checkin", model.StatusScheduled},
	}

	for _, step := range steps {
		w := doJSON(t, server.Handler(), http.MethodPost, path+"/"+step.action, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d (%s)", step.action, w.Code, w.Body.String())
		}
		resp := decodeAppointment(t, w)
		if resp.Appointment.Status != step.want {
			t.Fatalf("%s: status = %s, want %s", step.action, resp.Appointment.Status, step.want)
		}
	}
}

func TestCancelRequiresReason(t *testing.T) {
	server, database := newTestServer(t)
	seedPartnerWeek(t, database, 2)

	created := doJSON(t, server.Handler(), http.MethodPost, "/api/appointments", createRequestBody())
	if created.Code != http.StatusCreated {
		t.Fatal(created.Body.String())
	}
	path := "/api/appointments/" + itoa(decodeAppointment(t, created).Appointment.ID) + "/cancel"

	w := doJSON(t, server.Handler(), http.MethodPost, path, CancelRequest{})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("cancel without reason: status = %d, want 422 (%s)", w.Code, w.Body.String())
	}

	w = doJSON(t, server.Handler(), http.MethodPost, path, CancelRequest{Reason: "patient request"})
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: status = %d (%s)", w.Code, w.Body.String())
	}
	resp := decodeAppointment(t, w)
	if resp.Appointment.Status != model.StatusCancelled {
		t.Errorf("status = %s, want cancelled", resp.Appointment.Status)
	}
	if len(resp.Actions) != 0 {
		t.Errorf("cancelled appointment actions = %v, want none", resp.Actions)
	}
}

func TestIllegalTransitionOverHTTP(t *testing.T) {
	server, database := newTestServer(t)
	seedPartnerWeek(t, database, 2)

	created := doJSON(t, server.Handler(), http.MethodPost, "/api/appointments", createRequestBody())
	if created.Code != http.StatusCreated {
		t.Fatal(created.Body.String())
	}
	path := "/api/appointments/" + itoa(decodeAppointment(t, created).Appointment.ID)

	w := doJSON(t, server.Handler(), http.MethodPost, path+"/checkout", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("checkout from scheduled: status = %d, want 409 (%s)", w.Code, w.Body.String())
	}

	w = doJSON(t, server.Handler(), http.MethodPost, path+"/vaporize", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown action: status = %d, want 404", w.Code)
	}
}

func TestUpdateAppointmentOverHTTP(t *testing.T) {
	server, database := newTestServer(t)
	seedPartnerWeek(t, database, 2)

	created := doJSON(t, server.Handler(), http.MethodPost, "/api/appointments", createRequestBody())
	if created.Code != http.StatusCreated {
		t.Fatal(created.Body.String())
	}
	path := "/api/appointments/" + itoa(decodeAppointment(t, created).Appointment.ID)

	w := doJSON(t, server.Handler(), http.MethodPut, path, map[string]string{
		"start_time": "10:00",
		"end_time":   "10:30",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: status = %d (%s)", w.Code, w.Body.String())
	}
	resp := decodeAppointment(t, w)
	if resp.Appointment.StartTime != "10:00" {
		t.Errorf("start = %s, want 10:00", resp.Appointment.StartTime)
	}
}

func TestAvailabilityCheckEndpoint(t *testing.T) {
	server, database := newTestServer(t)
	seedPartnerWeek(t, database, 2)

	w := doJSON(t, server.Handler(), http.MethodGet,
		"/api/availability-check?partner_id=2&date="+testTuesday+"&start_time=09:00&end_time=09:30", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	var free booking.AvailabilityResult
	if err := json.Unmarshal(w.Body.Bytes(), &free); err != nil {
		t.Fatal(err)
	}
	if !free.Available {
		t.Errorf("expected available, conflicts: %+v", free.Conflicts)
	}

	if created := doJSON(t, server.Handler(), http.MethodPost, "/api/appointments", createRequestBody()); created.Code != http.StatusCreated {
		t.Fatal(created.Body.String())
	}

	w = doJSON(t, server.Handler(), http.MethodGet,
		"/api/availability-check?partner_id=2&date="+testTuesday+"&start_time=09:00&end_time=09:30", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	var busy booking.AvailabilityResult
	if err := json.Unmarshal(w.Body.Bytes(), &busy); err != nil {
		t.Fatal(err)
	}
	if busy.Available || len(busy.Conflicts) == 0 {
		t.Errorf("expected conflicts, got %+v", busy)
	}

	missing := doJSON(t, server.Handler(), http.MethodGet, "/api/availability-check?date="+testTuesday, nil)
	if missing.Code != http.StatusBadRequest {
		t.Errorf("missing partner_id: status = %d, want 400", missing.Code)
	}

	badClock := doJSON(t, server.Handler(), http.MethodGet,
		"/api/availability-check?partner_id=2&date="+testTuesday+"&start_time=25:00&end_time=26:00", nil)
	if badClock.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad clock: status = %d, want 422", badClock.Code)
	}
}

func TestClinicSettingsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server.Handler(), http.MethodGet, "/api/clinic-settings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status = %d (%s)", w.Code, w.Body.String())
	}
	var current model.ClinicSettings
	if err := json.Unmarshal(w.Body.Bytes(), &current); err != nil {
		t.Fatal(err)
	}
	if len(current.Hours) != 7 {
		t.Errorf("hours = %d entries, want 7", len(current.Hours))
	}

	current.AllowWeekendBookings = true
	w = doJSON(t, server.Handler(), http.MethodPut, "/api/clinic-settings", current)
	if w.Code != http.StatusOK {
		t.Fatalf("put: status = %d (%s)", w.Code, w.Body.String())
	}

	w = doJSON(t, server.Handler(), http.MethodGet, "/api/clinic-settings", nil)
	var reloaded model.ClinicSettings
	if err := json.Unmarshal(w.Body.Bytes(), &reloaded); err != nil {
		t.Fatal(err)
	}
	if !reloaded.AllowWeekendBookings {
		t.Error("setting not persisted")
	}

	bad := current
	bad.MaxBookingDays = 0
	if w := doJSON(t, server.Handler(), http.MethodPut, "/api/clinic-settings", bad); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid settings: status = %d, want 422", w.Code)
	}
}

type failingSettingsStore struct{}

func (failingSettingsStore) GetClinicSettings(context.Context) (*model.ClinicSettings, error) {
	return model.DefaultClinicSettings(), nil
}

func (failingSettingsStore) SaveClinicSettings(context.Context, *model.ClinicSettings) error {
	return errors.New("disk I/O error")
}

func TestClinicSettingsSaveFailure(t *testing.T) {
	log := zerolog.New(io.Discard)
	provider := settings.NewProvider(failingSettingsStore{}, &log)
	server := NewHTTPServer(nil, nil, provider, &log, ServerOptions{})

	w := doJSON(t, server.Handler(), http.MethodPut, "/api/clinic-settings", model.DefaultClinicSettings())
	if w.Code != http.StatusInternalServerError {
		t.Errorf("store failure: status = %d, want 500 (%s)", w.Code, w.Body.String())
	}
}

func TestPartnerScheduleEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/partners/2/availability", AvailabilityWindowRequest{
		DayOfWeek: 2, StartTime: "08:00", EndTime: "12:00",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create window: status = %d (%s)", w.Code, w.Body.String())
	}

	w = doJSON(t, server.Handler(), http.MethodGet, "/api/partners/2/availability", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list windows: status = %d", w.Code)
	}
	var windows struct {
		Availability []model.PartnerAvailability `json:"availability"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &windows); err != nil {
		t.Fatal(err)
	}
	if len(windows.Availability) != 1 {
		t.Fatalf("windows = %d, want 1", len(windows.Availability))
	}

	w = doJSON(t, server.Handler(), http.MethodDelete,
		"/api/partners/2/availability/"+itoa(windows.Availability[0].ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate: status = %d (%s)", w.Code, w.Body.String())
	}

	w = doJSON(t, server.Handler(), http.MethodPost, "/api/partners/2/blocked-dates", BlockedDateRequest{
		BlockedDate: testTuesday, Reason: "vacation",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create block: status = %d (%s)", w.Code, w.Body.String())
	}

	w = doJSON(t, server.Handler(), http.MethodGet, "/api/partners/2/blocked-dates?date="+testTuesday, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list blocks: status = %d", w.Code)
	}
	var blocks struct {
		BlockedDates []model.PartnerBlockedDate `json:"blocked_dates"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &blocks); err != nil {
		t.Fatal(err)
	}
	if len(blocks.BlockedDates) != 1 || blocks.BlockedDates[0].Reason != "vacation" {
		t.Errorf("blocks = %+v", blocks.BlockedDates)
	}
}

func TestPartnerScheduleValidation(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"bad weekday", "/api/partners/2/availability", AvailabilityWindowRequest{DayOfWeek: 7, StartTime: "08:00", EndTime: "12:00"}},
		{"inverted window", "/api/partners/2/availability", AvailabilityWindowRequest{DayOfWeek: 2, StartTime: "12:00", EndTime: "08:00"}},
		{"half a break", "/api/partners/2/availability", AvailabilityWindowRequest{DayOfWeek: 2, StartTime: "08:00", EndTime: "12:00", BreakStart: "10:00"}},
		{"half a partial block", "/api/partners/2/blocked-dates", BlockedDateRequest{BlockedDate: testTuesday, StartTime: "10:00"}},
		{"bad block date", "/api/partners/2/blocked-dates", BlockedDateRequest{BlockedDate: "17/03/2026"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, server.Handler(), http.MethodPost, tt.path, tt.body)
			if w.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422 (%s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodDelete, "/api/appointments"},
		{http.MethodPost, "/api/availability-check"},
		{http.MethodDelete, "/api/clinic-settings"},
	} {
		w := doJSON(t, server.Handler(), tc.method, tc.path, nil)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: status = %d, want 405", tc.method, tc.path, w.Code)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server.Handler(), http.MethodGet, "/api/clinic-settings", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/clinic-settings", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("request id = %q, want propagated abc-123", got)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
