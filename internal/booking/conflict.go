package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"clinicbook/internal/model"
	"clinicbook/internal/schedule"
)

// ConflictType classifies a scheduling conflict.
type ConflictType string

const (
	// ConflictAppointment is an overlap with another booked appointment.
	ConflictAppointment ConflictType = "appointment"
	// ConflictAvailability means the slot is outside clinic or partner hours.
	ConflictAvailability ConflictType = "availability"
	// ConflictBlocked means the slot falls in a partner blocked date.
	ConflictBlocked ConflictType = "blocked"
	// ConflictBreak means the slot intersects a lunch or partner break.
	ConflictBreak ConflictType = "break"
)

// TimeSlot is the offending interval attached to a conflict.
type TimeSlot struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// ConflictDetail carries enough detail to render one conflict to a user.
type ConflictDetail struct {
	Type        ConflictType              `json:"type"`
	Message     string                    `json:"message"`
	Appointment *model.AppointmentSummary `json:"appointment,omitempty"`
	TimeSlot    *TimeSlot                 `json:"time_slot,omitempty"`
}

// Overridable reports whether an encaixe may downgrade this conflict to a
// warning. By default only appointment overlaps are overridable; the blanket
// mode extends the override to availability, break and blocked conflicts.
func (c ConflictDetail) Overridable(blanket bool) bool {
	if blanket {
		return true
	}
	return c.Type == ConflictAppointment
}

// AvailabilityQuery describes a candidate (partner, date, interval) tuple.
type AvailabilityQuery struct {
	PartnerID            int64
	Date                 string // "YYYY-MM-DD"
	StartTime            string // "HH:MM"
	EndTime              string // "HH:MM"
	ExcludeAppointmentID int64  // skip this id when scanning (edits re-check themselves)
}

// AvailabilityResult is the detector's verdict for a candidate slot.
type AvailabilityResult struct {
	Available bool             `json:"available"`
	Conflicts []ConflictDetail `json:"conflicts"`
}

// AppointmentReader lists existing bookings for conflict scanning.
type AppointmentReader interface {
	// ListPartnerDay returns all non-cancelled appointments for a partner on
	// a date, ordered by start time.
	ListPartnerDay(ctx context.Context, partnerID int64, date string) ([]model.Appointment, error)
}

// PartnerScheduleReader supplies the partner's declared hours and exceptions.
type PartnerScheduleReader interface {
	ListAvailability(ctx context.Context, partnerID int64) ([]model.PartnerAvailability, error)
	ListBlockedDates(ctx context.Context, partnerID int64, date string) ([]model.PartnerBlockedDate, error)
}

// SettingsProvider supplies the current clinic policy.
type SettingsProvider interface {
	Get(ctx context.Context) (*model.ClinicSettings, error)
}

// Detector cross-references a candidate slot against existing bookings,
// clinic hours, partner availability and blocked dates. It is read-only and
// safe to call repeatedly for live form validation.
type Detector struct {
	appointments AppointmentReader
	partners     PartnerScheduleReader
	settings     SettingsProvider
	loc          *time.Location
	log          *zerolog.Logger
}

// NewDetector creates a conflict detector.
func NewDetector(appointments AppointmentReader, partners PartnerScheduleReader, settings SettingsProvider, loc *time.Location, log *zerolog.Logger) *Detector {
	if loc == nil {
		loc = time.Local
	}
	return &Detector{
		appointments: appointments,
		partners:     partners,
		settings:     settings,
		loc:          loc,
		log:          log,
	}
}

// CheckAvailability enumerates every constraint the candidate slot violates.
// Unlike the single-reason business-hours validator, conflicts accumulate so
// the caller can render all of them at once.
func (d *Detector) CheckAvailability(ctx context.Context, q AvailabilityQuery) (AvailabilityResult, error) {
	date, err := model.ParseDate(q.Date, d.loc)
	if err != nil {
		return AvailabilityResult{}, &ValidationError{Field: "date", Reason: err.Error()}
	}
	startMin, err := model.ParseClock(q.StartTime)
	if err != nil {
		return AvailabilityResult{}, &ValidationError{Field: "start_time", Reason: err.Error()}
	}
	endMin, err := model.ParseClock(q.EndTime)
	if err != nil {
		return AvailabilityResult{}, &ValidationError{Field: "end_time", Reason: err.Error()}
	}
	if endMin <= startMin {
		return AvailabilityResult{}, &ValidationError{Field: "end_time", Reason: "end time must be after start time"}
	}

	var conflicts []ConflictDetail

	existing, err := d.appointments.ListPartnerDay(ctx, q.PartnerID, q.Date)
	if err != nil {
		return AvailabilityResult{}, fmt.Errorf("list appointments: %w", err)
	}
	for i := range existing {
		other := &existing[i]
		if other.ID == q.ExcludeAppointmentID {
			continue
		}
		if model.ClockRangesOverlap(startMin, endMin, other.StartMinutes(), other.EndMinutes()) {
			conflicts = append(conflicts, ConflictDetail{
				Type: ConflictAppointment,
				Message: fmt.Sprintf("partner already has an appointment from %s to %s",
					other.StartTime, other.EndTime),
				Appointment: other.Summary(),
				TimeSlot:    &TimeSlot{StartTime: other.StartTime, EndTime: other.EndTime},
			})
		}
	}

	if c := d.checkClinicHours(ctx, date, startMin, endMin); c != nil {
		conflicts = append(conflicts, *c)
	}

	partnerConflicts, err := d.checkPartnerSchedule(ctx, q.PartnerID, date, startMin, endMin)
	if err != nil {
		return AvailabilityResult{}, err
	}
	conflicts = append(conflicts, partnerConflicts...)

	return AvailabilityResult{Available: len(conflicts) == 0, Conflicts: conflicts}, nil
}

func (d *Detector) checkClinicHours(ctx context.Context, date time.Time, startMin, endMin int) *ConflictDetail {
	settings, err := d.settings.Get(ctx)
	if err != nil {
		// Policy availability beats strictness: fall back to defaults
		// rather than failing the check.
		d.log.Warn().Err(err).Msg("clinic settings unavailable; using defaults")
		settings = model.DefaultClinicSettings()
	}

	res := schedule.ValidateBusinessHours(settings, date, startMin, endMin)
	if res.Valid {
		return nil
	}

	ctype := ConflictAvailability
	if res.Rule == schedule.RuleLunch {
		ctype = ConflictBreak
	}
	return &ConflictDetail{
		Type:     ctype,
		Message:  res.Reason,
		TimeSlot: &TimeSlot{StartTime: model.FormatClock(startMin), EndTime: model.FormatClock(endMin)},
	}
}

func (d *Detector) checkPartnerSchedule(ctx context.Context, partnerID int64, date time.Time, startMin, endMin int) ([]ConflictDetail, error) {
	rules, err := d.partners.ListAvailability(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("list partner availability: %w", err)
	}

	var conflicts []ConflictDetail

	window, covered := schedule.CoveringWindow(startMin, endMin, rules, date)
	if !covered {
		conflicts = append(conflicts, ConflictDetail{
			Type:     ConflictAvailability,
			Message:  fmt.Sprintf("partner has no availability on %s covering %s-%s", date.Weekday(), model.FormatClock(startMin), model.FormatClock(endMin)),
			TimeSlot: &TimeSlot{StartTime: model.FormatClock(startMin), EndTime: model.FormatClock(endMin)},
		})
	} else if schedule.BreakOverlap(startMin, endMin, window) {
		conflicts = append(conflicts, ConflictDetail{
			Type:     ConflictBreak,
			Message:  fmt.Sprintf("requested time overlaps the partner's break (%s-%s)", window.BreakStart, window.BreakEnd),
			TimeSlot: &TimeSlot{StartTime: window.BreakStart, EndTime: window.BreakEnd},
		})
	}

	blocked, err := d.partners.ListBlockedDates(ctx, partnerID, date.Format(model.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("list blocked dates: %w", err)
	}
	if block, hit := schedule.BlockedOverlap(startMin, endMin, date, blocked); hit {
		msg := "partner is blocked for the entire day"
		slot := &TimeSlot{StartTime: "00:00", EndTime: "23:59"}
		if !block.IsFullDay() {
			msg = fmt.Sprintf("partner is blocked from %s to %s", block.StartTime, block.EndTime)
			slot = &TimeSlot{StartTime: block.StartTime, EndTime: block.EndTime}
		}
		if block.Reason != "" {
			msg += " (" + block.Reason + ")"
		}
		conflicts = append(conflicts, ConflictDetail{Type: ConflictBlocked, Message: msg, TimeSlot: slot})
	}

	return conflicts, nil
}
