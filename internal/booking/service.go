package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"clinicbook/internal/events"
	"clinicbook/internal/metrics"
	"clinicbook/internal/model"
	"clinicbook/internal/schedule"
)

// AppointmentStore is the persistence contract for appointments.
// GetAppointment returns (nil, nil) when the id is unknown.
type AppointmentStore interface {
	AppointmentReader
	GetAppointment(ctx context.Context, id int64) (*model.Appointment, error)
	CreateAppointment(ctx context.Context, a *model.Appointment) error
	UpdateAppointment(ctx context.Context, a *model.Appointment) error
}

// EventPublisher hands lifecycle facts to external collaborators.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// DirectoryResolver verifies that referenced directory entities exist.
// The directory is an external read-only lookup service.
type DirectoryResolver interface {
	PatientExists(ctx context.Context, id int64) (bool, error)
	PartnerExists(ctx context.Context, id int64) (bool, error)
	ServiceExists(ctx context.Context, id int64) (bool, error)
	RoomExists(ctx context.Context, id int64) (bool, error)
}

// CreateRequest is a request to book a new appointment.
type CreateRequest struct {
	PatientID        int64                 `json:"patient_id"`
	PartnerID        int64                 `json:"partner_id"`
	ProductServiceID int64                 `json:"product_service_id"`
	RoomID           int64                 `json:"room_id"`
	Date             string                `json:"date"`
	StartTime        string                `json:"start_time"`
	EndTime          string                `json:"end_time"`
	Type             model.AppointmentType `json:"type"`
	IsEncaixe        bool                  `json:"is_encaixe"`
	Observations     string                `json:"observations,omitempty"`
}

// UpdatePatch carries the mutable appointment fields; nil means unchanged.
// Status is never patched directly; it moves through Transition.
type UpdatePatch struct {
	PatientID        *int64  `json:"patient_id,omitempty"`
	PartnerID        *int64  `json:"partner_id,omitempty"`
	ProductServiceID *int64  `json:"product_service_id,omitempty"`
	RoomID           *int64  `json:"room_id,omitempty"`
	Date             *string `json:"date,omitempty"`
	StartTime        *string `json:"start_time,omitempty"`
	EndTime          *string `json:"end_time,omitempty"`
	Observations     *string `json:"observations,omitempty"`
}

func (p UpdatePatch) touchesSlot() bool {
	return p.Date != nil || p.StartTime != nil || p.EndTime != nil || p.PartnerID != nil || p.RoomID != nil
}

// Options tunes optional service collaborators and policy.
type Options struct {
	Directory DirectoryResolver
	Bus       EventPublisher
	Location  *time.Location
	Now       func() time.Time
	// EncaixeOverridesAvailability widens the encaixe override from
	// appointment overlaps to every conflict type, matching the legacy UI.
	EncaixeOverridesAvailability bool
}

// Service is the booking orchestrator: it composes the validators, the
// conflict detector and the state machine into create/update/transition
// operations.
type Service struct {
	store          AppointmentStore
	detector       *Detector
	settings       SettingsProvider
	directory      DirectoryResolver
	bus            EventPublisher
	log            *zerolog.Logger
	loc            *time.Location
	now            func() time.Time
	blanketEncaixe bool
	locks          partnerLocks
}

// NewService creates a booking service.
func NewService(store AppointmentStore, detector *Detector, settings SettingsProvider, log *zerolog.Logger, opts Options) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:          store,
		detector:       detector,
		settings:       settings,
		directory:      opts.Directory,
		bus:            opts.Bus,
		log:            log,
		loc:            loc,
		now:            now,
		blanketEncaixe: opts.EncaixeOverridesAvailability,
	}
}

// partnerLocks serializes check-then-write sequences per partner so two
// concurrent requests for overlapping slots cannot both observe a free slot.
type partnerLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (l *partnerLocks) forPartner(partnerID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[int64]*sync.Mutex)
	}
	if _, ok := l.locks[partnerID]; !ok {
		l.locks[partnerID] = &sync.Mutex{}
	}
	return l.locks[partnerID]
}

// CheckAvailability exposes the read-only conflict detector.
func (s *Service) CheckAvailability(ctx context.Context, q AvailabilityQuery) (AvailabilityResult, error) {
	return s.detector.CheckAvailability(ctx, q)
}

// Get returns an appointment by id.
func (s *Service) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if appt == nil {
		return nil, &NotFoundError{Entity: "appointment", ID: id}
	}
	return appt, nil
}

// ListDay returns the partner's agenda (non-cancelled appointments) for a date.
func (s *Service) ListDay(ctx context.Context, partnerID int64, date string) ([]model.Appointment, error) {
	if _, err := model.ParseDate(date, s.loc); err != nil {
		return nil, &ValidationError{Field: "date", Reason: err.Error()}
	}
	return s.store.ListPartnerDay(ctx, partnerID, date)
}

// Create books a new appointment, or rejects it with the full conflict list.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Appointment, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}
	if err := s.resolveReferences(ctx, req.PatientID, req.PartnerID, req.ProductServiceID, req.RoomID); err != nil {
		return nil, err
	}

	settings := s.clinicSettings(ctx)
	date, _ := model.ParseDate(req.Date, s.loc)
	startMin, _ := model.ParseClock(req.StartTime)

	advance := schedule.ValidateBookingAdvance(settings, model.CombineDateClock(date, startMin), s.now())
	if !advance.Valid {
		return nil, &PolicyViolation{Reason: advance.Reason}
	}

	// Hold the partner lock across check-then-write so at most one of two
	// concurrent overlapping requests wins; the loser sees a conflict.
	lock := s.locks.forPartner(req.PartnerID)
	lock.Lock()
	defer lock.Unlock()

	result, err := s.detector.CheckAvailability(ctx, AvailabilityQuery{
		PartnerID: req.PartnerID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		return nil, err
	}
	if err := s.applyOverridePolicy(result.Conflicts, req.IsEncaixe); err != nil {
		return nil, err
	}

	now := s.now()
	appt := &model.Appointment{
		PatientID:        req.PatientID,
		PartnerID:        req.PartnerID,
		ProductServiceID: req.ProductServiceID,
		RoomID:           req.RoomID,
		Date:             req.Date,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		Type:             req.Type,
		Status:           model.StatusScheduled,
		IsEncaixe:        req.IsEncaixe,
		Observations:     req.Observations,
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	if err := s.store.CreateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	metrics.IncAppointmentCreated(appt.IsEncaixe)
	s.publish(events.TypeAppointmentCreated, appt)
	s.log.Info().
		Int64("appointment_id", appt.ID).
		Int64("partner_id", appt.PartnerID).
		Str("date", appt.Date).
		Str("start", appt.StartTime).
		Bool("encaixe", appt.IsEncaixe).
		Msg("appointment created")
	return appt, nil
}

// Update edits an appointment. Slot changes re-run the advance and conflict
// checks against the new slot, excluding the appointment's own id.
func (s *Service) Update(ctx context.Context, id int64, patch UpdatePatch) (*model.Appointment, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	settings := s.clinicSettings(ctx)
	if movement := schedule.ValidateAppointmentMovement(settings, appt.Status); !movement.Valid {
		return nil, &PolicyViolation{Reason: movement.Reason}
	}

	updated := *appt
	applyPatch(&updated, patch)
	if err := s.validateSlot(updated.Date, updated.StartTime, updated.EndTime); err != nil {
		return nil, err
	}
	if updated.PatientID <= 0 || updated.PartnerID <= 0 || updated.ProductServiceID <= 0 || updated.RoomID <= 0 {
		return nil, &ValidationError{Reason: "patient, partner, service and room ids are required"}
	}

	if patch.touchesSlot() {
		date, _ := model.ParseDate(updated.Date, s.loc)
		startMin, _ := model.ParseClock(updated.StartTime)

		advance := schedule.ValidateBookingAdvance(settings, model.CombineDateClock(date, startMin), s.now())
		if !advance.Valid {
			return nil, &PolicyViolation{Reason: advance.Reason}
		}

		lock := s.locks.forPartner(updated.PartnerID)
		lock.Lock()
		defer lock.Unlock()

		result, err := s.detector.CheckAvailability(ctx, AvailabilityQuery{
			PartnerID:            updated.PartnerID,
			Date:                 updated.Date,
			StartTime:            updated.StartTime,
			EndTime:              updated.EndTime,
			ExcludeAppointmentID: appt.ID,
		})
		if err != nil {
			return nil, err
		}
		if err := s.applyOverridePolicy(result.Conflicts, appt.IsEncaixe); err != nil {
			return nil, err
		}
	}

	updated.UpdatedAt = s.now()
	if err := s.store.UpdateAppointment(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	if patch.touchesSlot() {
		s.publish(events.TypeAppointmentRescheduled, &updated)
	}
	s.log.Info().Int64("appointment_id", updated.ID).Msg("appointment updated")
	return &updated, nil
}

// Transition applies a lifecycle event through the state machine. The
// movement policy is not consulted here: the transition table already limits
// settled statuses to their undo events, and undo must stay reachable.
func (s *Service) Transition(ctx context.Context, id int64, event Event, reason string) (*model.Appointment, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := appt.Status
	if err := Apply(appt, event, s.now(), reason); err != nil {
		metrics.IncTransition(string(event), "rejected")
		return nil, err
	}

	if err := s.store.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	metrics.IncTransition(string(event), "applied")
	switch appt.Status {
	case model.StatusCompleted:
		// Financial posting is an external concern; the completion event is
		// its trigger.
		s.publish(events.TypeAppointmentCompleted, appt)
	case model.StatusCancelled:
		s.publish(events.TypeAppointmentCancelled, appt)
	case model.StatusNoShow:
		s.publish(events.TypeAppointmentNoShow, appt)
	}

	s.log.Info().
		Int64("appointment_id", appt.ID).
		Str("event", string(event)).
		Str("from", string(from)).
		Str("to", string(appt.Status)).
		Msg("appointment transition applied")
	return appt, nil
}

// applyOverridePolicy rejects when conflicts remain after the encaixe
// downgrade. Encaixe permits double-booking against other patients only; it
// does not allow practicing outside declared hours unless the blanket switch
// is on.
func (s *Service) applyOverridePolicy(conflicts []ConflictDetail, encaixe bool) error {
	for _, c := range conflicts {
		metrics.IncConflict(string(c.Type))
	}
	if len(conflicts) == 0 {
		return nil
	}
	if !encaixe {
		return &ConflictError{Conflicts: conflicts}
	}
	for _, c := range conflicts {
		if !c.Overridable(s.blanketEncaixe) {
			return &ConflictError{Conflicts: conflicts}
		}
	}
	s.log.Warn().Int("overridden", len(conflicts)).Msg("conflicts overridden by encaixe")
	return nil
}

func (s *Service) validateCreate(req CreateRequest) error {
	if req.PatientID <= 0 || req.PartnerID <= 0 || req.ProductServiceID <= 0 || req.RoomID <= 0 {
		return &ValidationError{Reason: "patient, partner, service and room ids are required"}
	}
	if !model.ValidAppointmentType(req.Type) {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown appointment type %q", req.Type)}
	}
	return s.validateSlot(req.Date, req.StartTime, req.EndTime)
}

func (s *Service) validateSlot(date, startTime, endTime string) error {
	if _, err := model.ParseDate(date, s.loc); err != nil {
		return &ValidationError{Field: "date", Reason: err.Error()}
	}
	startMin, err := model.ParseClock(startTime)
	if err != nil {
		return &ValidationError{Field: "start_time", Reason: err.Error()}
	}
	endMin, err := model.ParseClock(endTime)
	if err != nil {
		return &ValidationError{Field: "end_time", Reason: err.Error()}
	}
	if endMin <= startMin {
		return &ValidationError{Field: "end_time", Reason: "end time must be after start time"}
	}
	return nil
}

func (s *Service) resolveReferences(ctx context.Context, patientID, partnerID, serviceID, roomID int64) error {
	if s.directory == nil {
		return nil
	}
	checks := []struct {
		entity string
		id     int64
		fn     func(context.Context, int64) (bool, error)
	}{
		{"patient", patientID, s.directory.PatientExists},
		{"partner", partnerID, s.directory.PartnerExists},
		{"service", serviceID, s.directory.ServiceExists},
		{"room", roomID, s.directory.RoomExists},
	}
	for _, c := range checks {
		exists, err := c.fn(ctx, c.id)
		if err != nil {
			return fmt.Errorf("resolve %s %d: %w", c.entity, c.id, err)
		}
		if !exists {
			return &NotFoundError{Entity: c.entity, ID: c.id}
		}
	}
	return nil
}

func (s *Service) clinicSettings(ctx context.Context) *model.ClinicSettings {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("clinic settings unavailable; using defaults")
		return model.DefaultClinicSettings()
	}
	return settings
}

func (s *Service) publish(eventType string, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

func applyPatch(a *model.Appointment, p UpdatePatch) {
	if p.PatientID != nil {
		a.PatientID = *p.PatientID
	}
	if p.PartnerID != nil {
		a.PartnerID = *p.PartnerID
	}
	if p.ProductServiceID != nil {
		a.ProductServiceID = *p.ProductServiceID
	}
	if p.RoomID != nil {
		a.RoomID = *p.RoomID
	}
	if p.Date != nil {
		a.Date = *p.Date
	}
	if p.StartTime != nil {
		a.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		a.EndTime = *p.EndTime
	}
	if p.Observations != nil {
		a.Observations = *p.Observations
	}
}
