// Package booking implements the appointment scheduling core: the status
// state machine, the conflict detector and the orchestrating service.
package booking

import (
	"sort"
	"time"

	"clinicbook/internal/model"
)

// Event is a requested appointment lifecycle transition.
type Event string

const (
	EventConfirm      Event = "confirm"
	EventCheckIn      Event = "check-in"
	EventCheckOut     Event = "check-out"
	EventUndoCheckIn  Event = "undo-check-in"
	EventUndoCheckOut Event = "undo-check-out"
	EventCancel       Event = "cancel"
	EventNoShow       Event = "no-show"
)

// transitions is the single source of truth for legal status transitions.
// Scattered per-action permission flags are deliberately avoided; both the
// server and any UI derive permitted actions from this table.
var transitions = map[model.Status]map[Event]model.Status{
	model.StatusScheduled: {
		EventConfirm: model.StatusConfirmed,
		EventCheckIn: model.StatusInProgress,
		EventCancel:  model.StatusCancelled,
		EventNoShow:  model.StatusNoShow,
	},
	model.StatusConfirmed: {
		EventCheckIn: model.StatusInProgress,
		EventCancel:  model.StatusCancelled,
		EventNoShow:  model.StatusNoShow,
	},
	model.StatusInProgress: {
		EventCheckOut:    model.StatusCompleted,
		EventUndoCheckIn: model.StatusScheduled,
	},
	model.StatusCompleted: {
		EventUndoCheckOut: model.StatusInProgress,
	},
}

// Next resolves the target status for (from, event), or a StateError when the
// pair is not in the transition table.
func Next(from model.Status, event Event) (model.Status, error) {
	if to, found := transitions[from][event]; found {
		return to, nil
	}
	return "", &StateError{From: string(from), Event: string(event)}
}

// CanApply reports whether the event is legal for the status.
func CanApply(from model.Status, event Event) bool {
	_, found := transitions[from][event]
	return found
}

// LegalEvents returns the sorted set of events applicable to a status.
func LegalEvents(from model.Status) []Event {
	events := make([]Event, 0, len(transitions[from]))
	for ev := range transitions[from] {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })
	return events
}

// Apply performs the transition on the appointment, recording or clearing the
// timestamps each event mandates. Undo events are exact inverses: they
// restore the pre-event status and clear (not zero) the timestamp.
func Apply(a *model.Appointment, event Event, now time.Time, reason string) error {
	to, err := Next(a.Status, event)
	if err != nil {
		return err
	}

	switch event {
	case EventCheckIn:
		checkIn := now
		a.CheckIn = &checkIn
	case EventUndoCheckIn:
		if a.CheckIn == nil {
			return &StateError{From: string(a.Status), Event: string(event)}
		}
		a.CheckIn = nil
	case EventCheckOut:
		checkOut := now
		a.CheckOut = &checkOut
	case EventUndoCheckOut:
		if a.CheckOut == nil {
			return &StateError{From: string(a.Status), Event: string(event)}
		}
		a.CheckOut = nil
	case EventCancel:
		if reason == "" {
			return &ValidationError{Field: "cancellation_reason", Reason: "a cancellation reason is required"}
		}
		a.CancellationReason = reason
	}

	a.Status = to
	a.UpdatedAt = now
	return nil
}
