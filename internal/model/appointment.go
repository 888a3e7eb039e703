package model

import "time"

// Status is the lifecycle status of an appointment.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// ValidStatus reports whether s is a known status value.
func ValidStatus(s Status) bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// AppointmentType classifies the clinical purpose of the visit.
type AppointmentType string

const (
	TypeConsultation AppointmentType = "consultation"
	TypeExam         AppointmentType = "exam"
	TypeProcedure    AppointmentType = "procedure"
	TypeReturn       AppointmentType = "return"
)

// ValidAppointmentType reports whether t is a known appointment type.
func ValidAppointmentType(t AppointmentType) bool {
	switch t {
	case TypeConsultation, TypeExam, TypeProcedure, TypeReturn:
		return true
	}
	return false
}

// Appointment is a booked clinical visit. Patient, partner, service and room
// are referenced by id only; they are owned by the practice directory.
type Appointment struct {
	ID                 int64           `json:"id"`
	PatientID          int64           `json:"patient_id"`
	PartnerID          int64           `json:"partner_id"`
	ProductServiceID   int64           `json:"product_service_id"`
	RoomID             int64           `json:"room_id"`
	Date               string          `json:"date"`       // "YYYY-MM-DD"
	StartTime          string          `json:"start_time"` // "HH:MM"
	EndTime            string          `json:"end_time"`   // "HH:MM"
	Type               AppointmentType `json:"type"`
	Status             Status          `json:"status"`
	IsEncaixe          bool            `json:"is_encaixe"` // squeeze-in override, immutable after creation
	Observations       string          `json:"observations,omitempty"`
	CheckIn            *time.Time      `json:"check_in,omitempty"`
	CheckOut           *time.Time      `json:"check_out,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Version            int64           `json:"version"`
}

// StartMinutes returns the start time as minutes since midnight.
// Time strings are validated at the boundary; malformed values map to 0.
func (a *Appointment) StartMinutes() int {
	m, _ := ParseClock(a.StartTime)
	return m
}

// EndMinutes returns the end time as minutes since midnight.
func (a *Appointment) EndMinutes() int {
	m, _ := ParseClock(a.EndTime)
	return m
}

// Overlaps reports whether two appointments on the same date intersect using
// half-open [start, end) semantics, so back-to-back bookings do not overlap.
func (a *Appointment) Overlaps(other *Appointment) bool {
	if a.Date != other.Date {
		return false
	}
	return ClockRangesOverlap(a.StartMinutes(), a.EndMinutes(), other.StartMinutes(), other.EndMinutes())
}

// StartsAt resolves the appointment's starting instant in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	date, err := ParseDate(a.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return CombineDateClock(date, a.StartMinutes()), nil
}

// Summary returns the reduced appointment view embedded in conflict details.
func (a *Appointment) Summary() *AppointmentSummary {
	return &AppointmentSummary{
		ID:        a.ID,
		PatientID: a.PatientID,
		Date:      a.Date,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Status:    a.Status,
	}
}

// AppointmentSummary is the compact appointment shape rendered to users when
// reporting conflicts.
type AppointmentSummary struct {
	ID        int64  `json:"id"`
	PatientID int64  `json:"patient_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    Status `json:"status"`
}
