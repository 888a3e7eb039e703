package schedule

import (
	"time"

	"clinicbook/internal/model"
)

// IsTimeAvailable reports whether a single minute-of-day falls inside at
// least one active availability window for the date's weekday, outside that
// window's break. No matching rule means the partner has no declared hours
// that day, which is distinct from being blocked.
func IsTimeAvailable(minute int, rules []model.PartnerAvailability, date time.Time) bool {
	weekday := int(date.Weekday())
	for _, rule := range rules {
		if !rule.Active || rule.DayOfWeek != weekday {
			continue
		}
		start, err1 := model.ParseClock(rule.StartTime)
		end, err2 := model.ParseClock(rule.EndTime)
		if err1 != nil || err2 != nil {
			continue
		}
		if minute < start || minute >= end {
			continue
		}
		if insideBreak(minute, minute+1, rule) {
			continue
		}
		return true
	}
	return false
}

// CoveringWindow finds an active window for the date's weekday that fully
// covers [startMin, endMin). Windows on the same weekday are additive, so a
// covering window whose break stays clear of the interval is preferred over
// one whose break intersects it; the interval is only treated as inside a
// break when every covering window says so.
func CoveringWindow(startMin, endMin int, rules []model.PartnerAvailability, date time.Time) (model.PartnerAvailability, bool) {
	weekday := int(date.Weekday())
	var fallback model.PartnerAvailability
	var covered bool
	for _, rule := range rules {
		if !rule.Active || rule.DayOfWeek != weekday {
			continue
		}
		start, err1 := model.ParseClock(rule.StartTime)
		end, err2 := model.ParseClock(rule.EndTime)
		if err1 != nil || err2 != nil {
			continue
		}
		if startMin < start || endMin > end {
			continue
		}
		if !insideBreak(startMin, endMin, rule) {
			return rule, true
		}
		if !covered {
			fallback = rule
			covered = true
		}
	}
	return fallback, covered
}

// BreakOverlap reports whether [startMin, endMin) intersects the window's
// break, when one is configured.
func BreakOverlap(startMin, endMin int, rule model.PartnerAvailability) bool {
	return insideBreak(startMin, endMin, rule)
}

func insideBreak(startMin, endMin int, rule model.PartnerAvailability) bool {
	if !rule.HasBreak() {
		return false
	}
	breakStart, err1 := model.ParseClock(rule.BreakStart)
	breakEnd, err2 := model.ParseClock(rule.BreakEnd)
	if err1 != nil || err2 != nil {
		return false
	}
	return model.ClockRangesOverlap(startMin, endMin, breakStart, breakEnd)
}

// IsTimeBlocked reports whether a minute-of-day on the given date falls in an
// active blocked-date entry. Dates are compared as normalized "YYYY-MM-DD"
// strings to avoid timezone drift.
func IsTimeBlocked(minute int, date time.Time, blocked []model.PartnerBlockedDate) bool {
	_, hit := BlockedOverlap(minute, minute+1, date, blocked)
	return hit
}

// BlockedOverlap returns the first active blocked-date entry intersecting
// [startMin, endMin) on the given date. A full-day block matches any time.
func BlockedOverlap(startMin, endMin int, date time.Time, blocked []model.PartnerBlockedDate) (model.PartnerBlockedDate, bool) {
	dateStr := date.Format(model.DateLayout)
	for _, b := range blocked {
		if !b.Active || b.BlockedDate != dateStr {
			continue
		}
		if b.IsFullDay() {
			return b, true
		}
		blockStart, err1 := model.ParseClock(b.StartTime)
		blockEnd, err2 := model.ParseClock(b.EndTime)
		if err1 != nil || err2 != nil {
			// Malformed partial block degrades to a full-day block rather
			// than silently allowing the booking.
			return b, true
		}
		if model.ClockRangesOverlap(startMin, endMin, blockStart, blockEnd) {
			return b, true
		}
	}
	return model.PartnerBlockedDate{}, false
}
