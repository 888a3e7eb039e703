// Package schedule holds the pure scheduling policy: clinic business-hours
// validation, booking lead-time rules and the partner availability index.
// Everything here is side-effect free so the booking service can evaluate
// policy deterministically in tests.
package schedule

import (
	"fmt"
	"time"

	"clinicbook/internal/model"
)

// Rule identifies which business-hours rule a validation result came from.
type Rule string

const (
	RuleNone   Rule = ""
	RuleClosed Rule = "closed"
	RuleOpen   Rule = "open_time"
	RuleClose  Rule = "close_time"
	RuleLunch  Rule = "lunch_break"
)

// Result is the outcome of a policy check. Reason is human-readable and is
// rendered directly to clinic staff.
type Result struct {
	Valid  bool
	Reason string
	Rule   Rule
}

func ok() Result {
	return Result{Valid: true}
}

func fail(rule Rule, format string, args ...any) Result {
	return Result{Valid: false, Reason: fmt.Sprintf(format, args...), Rule: rule}
}

// ValidateBusinessHours checks a requested [startMin, endMin) interval against
// the clinic hours for the date's weekday. Only the first violation is
// reported; the validator short-circuits rather than accumulating reasons.
func ValidateBusinessHours(settings *model.ClinicSettings, date time.Time, startMin, endMin int) Result {
	day, found := settings.HoursFor(int(date.Weekday()))
	if !found || !day.IsOpen {
		return fail(RuleClosed, "clinic is closed on %s", date.Weekday())
	}

	if day.OpenTime != "" {
		open, err := model.ParseClock(day.OpenTime)
		if err == nil && startMin < open {
			return fail(RuleOpen, "clinic opens at %s", day.OpenTime)
		}
	}

	if day.CloseTime != "" {
		closeAt, err := model.ParseClock(day.CloseTime)
		if err == nil && endMin > closeAt {
			return fail(RuleClose, "clinic closes at %s", day.CloseTime)
		}
	}

	if day.HasLunch() {
		lunchStart, err1 := model.ParseClock(day.LunchBreakStart)
		lunchEnd, err2 := model.ParseClock(day.LunchBreakEnd)
		if err1 == nil && err2 == nil && model.ClockRangesOverlap(startMin, endMin, lunchStart, lunchEnd) {
			return fail(RuleLunch, "requested time overlaps the lunch break (%s-%s)",
				day.LunchBreakStart, day.LunchBreakEnd)
		}
	}

	return ok()
}

// ValidateBookingAdvance checks the lead-time policy for an appointment
// starting at appointmentAt. Checks are independent; the first failure wins.
func ValidateBookingAdvance(settings *model.ClinicSettings, appointmentAt, now time.Time) Result {
	diffHours := appointmentAt.Sub(now).Hours()

	if diffHours < float64(settings.MinBookingHours) {
		return fail(RuleNone, "appointments must be booked at least %d hour(s) in advance", settings.MinBookingHours)
	}

	if diffHours/24 > float64(settings.MaxBookingDays) {
		return fail(RuleNone, "appointments can be booked at most %d day(s) ahead", settings.MaxBookingDays)
	}

	wd := appointmentAt.Weekday()
	if (wd == time.Sunday || wd == time.Saturday) && !settings.AllowWeekendBookings {
		return fail(RuleNone, "weekend bookings are not allowed")
	}

	return ok()
}

// ValidateAppointmentMovement is the policy oracle consulted before any
// mutation (edit, reschedule, cancel, delete) of an appointment already in a
// settled status. It does not apply the restriction itself.
func ValidateAppointmentMovement(settings *model.ClinicSettings, status model.Status) Result {
	switch status {
	case model.StatusCancelled:
		if !settings.AllowCancelledMovement {
			return fail(RuleNone, "cancelled appointments cannot be modified")
		}
	case model.StatusCompleted:
		if !settings.AllowCompletedMovement {
			return fail(RuleNone, "completed appointments cannot be modified")
		}
	}
	return ok()
}
