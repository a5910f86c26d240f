package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/platform/notification"
)

// Notifier sends templated notifications. Satisfied by notification.Manager.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

// Contact resolves an account ID to a display name and email for
// notification rendering.
type Contact struct {
	Name  string
	Email string
}

// Directory looks up contact details for accounts involved in an
// appointment. Satisfied by an adapter over the identity repositories.
type Directory interface {
	ContactFor(ctx context.Context, accountID uuid.UUID) (Contact, error)
}

type Service struct {
	availability AvailabilityRepository
	slots        SlotRepository
	appointments AppointmentRepository
	notifier     Notifier
	directory    Directory
	logger       zerolog.Logger
}

func NewService(av AvailabilityRepository, slots SlotRepository, appts AppointmentRepository, notifier Notifier, directory Directory, logger zerolog.Logger) *Service {
	return &Service{
		availability: av,
		slots:        slots,
		appointments: appts,
		notifier:     notifier,
		directory:    directory,
		logger:       logger,
	}
}

// -- Availability --

// parseClock validates an "HH:MM" wall-clock string and returns minutes from
// midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func validateAvailability(a *Availability) error {
	if a.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if a.Weekday < 0 || a.Weekday > 6 {
		return fmt.Errorf("weekday must be between 0 (Sunday) and 6 (Saturday)")
	}
	start, err := parseClock(a.StartTime)
	if err != nil {
		return err
	}
	end, err := parseClock(a.EndTime)
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("start_time must be before end_time")
	}
	if a.SlotMinutes <= 0 {
		return fmt.Errorf("slot_minutes must be positive")
	}
	if end-start < a.SlotMinutes {
		return fmt.Errorf("window is shorter than one slot")
	}
	return nil
}

func (s *Service) CreateAvailability(ctx context.Context, a *Availability) error {
	if err := validateAvailability(a); err != nil {
		return err
	}
	a.Active = true
	return s.availability.Create(ctx, a)
}

func (s *Service) GetAvailability(ctx context.Context, id uuid.UUID) (*Availability, error) {
	return s.availability.GetByID(ctx, id)
}

func (s *Service) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error) {
	return s.availability.ListByDoctor(ctx, doctorID)
}

func (s *Service) UpdateAvailability(ctx context.Context, a *Availability) error {
	if err := validateAvailability(a); err != nil {
		return err
	}
	return s.availability.Update(ctx, a)
}

func (s *Service) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	return s.availability.Delete(ctx, id)
}

// -- Slots --

// GenerateSlots expands a doctor's active availability windows into concrete
// free slots for each day in [from, to]. Days are interpreted in UTC.
// Intervals that would overlap an existing slot are skipped, so regeneration
// is idempotent. Returns the slots created.
func (s *Service) GenerateSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Slot, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("to must not precede from")
	}
	windows, err := s.availability.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	byWeekday := make(map[int][]*Availability)
	for _, w := range windows {
		if w.Active {
			byWeekday[w.Weekday] = append(byWeekday[w.Weekday], w)
		}
	}

	var created []*Slot
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)

	for !day.After(end) {
		for _, w := range byWeekday[int(day.Weekday())] {
			startMin, _ := parseClock(w.StartTime)
			endMin, _ := parseClock(w.EndTime)

			for m := startMin; m+w.SlotMinutes <= endMin; m += w.SlotMinutes {
				slotStart := day.Add(time.Duration(m) * time.Minute)
				slotEnd := slotStart.Add(time.Duration(w.SlotMinutes) * time.Minute)

				overlaps, err := s.slots.ExistsOverlapping(ctx, doctorID, slotStart, slotEnd)
				if err != nil {
					return nil, err
				}
				if overlaps {
					continue
				}

				slot := &Slot{
					DoctorID:  doctorID,
					StartTime: slotStart,
					EndTime:   slotEnd,
					Status:    SlotFree,
				}
				if err := s.slots.Create(ctx, slot); err != nil {
					return nil, err
				}
				created = append(created, slot)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return created, nil
}

// CreateSlot adds a single ad-hoc free slot outside the weekly windows.
// Rejects slots that would overlap one the doctor already has.
func (s *Service) CreateSlot(ctx context.Context, slot *Slot) error {
	if slot.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if !slot.StartTime.Before(slot.EndTime) {
		return fmt.Errorf("start_time must be before end_time")
	}
	overlaps, err := s.slots.ExistsOverlapping(ctx, slot.DoctorID, slot.StartTime, slot.EndTime)
	if err != nil {
		return err
	}
	if overlaps {
		return ErrSlotUnavailable
	}
	slot.Status = SlotFree
	return s.slots.Create(ctx, slot)
}

// DeleteSlot removes a slot that has no appointment on it. Booked slots must
// be cancelled through their appointment first.
func (s *Service) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	slot, err := s.slots.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if slot.Status == SlotBooked {
		return ErrSlotUnavailable
	}
	return s.slots.Delete(ctx, id)
}

func (s *Service) ListSlots(ctx context.Context, f SlotFilter, limit, offset int) ([]*Slot, int, error) {
	return s.slots.List(ctx, f, limit, offset)
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.slots.GetByID(ctx, id)
}

// BlockSlot takes a free slot off the market without booking it.
func (s *Service) BlockSlot(ctx context.Context, id uuid.UUID) error {
	return s.slots.TransitionStatus(ctx, id, SlotFree, SlotBlocked)
}

// UnblockSlot returns a blocked slot to the market.
func (s *Service) UnblockSlot(ctx context.Context, id uuid.UUID) error {
	return s.slots.TransitionStatus(ctx, id, SlotBlocked, SlotFree)
}

// -- Appointments --

// BookAppointment claims the slot for the patient and records the
// appointment. The slot claim is a single conditional update, so two patients
// racing for the same slot cannot both win.
func (s *Service) BookAppointment(ctx context.Context, patientID, slotID uuid.UUID, reason *string) (*Appointment, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}

	if err := s.slots.TransitionStatus(ctx, slotID, SlotFree, SlotBooked); err != nil {
		return nil, err
	}

	appt := &Appointment{
		SlotID:    slotID,
		DoctorID:  slot.DoctorID,
		PatientID: patientID,
		Status:    AppointmentBooked,
		Reason:    reason,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
	}
	if err := s.appointments.Create(ctx, appt); err != nil {
		// Release the claim so the slot is not stranded.
		if relErr := s.slots.TransitionStatus(ctx, slotID, SlotBooked, SlotFree); relErr != nil {
			s.logger.Error().Err(relErr).Str("slot_id", slotID.String()).Msg("releasing slot after failed booking")
		}
		return nil, err
	}

	s.notifyAppointment(ctx, appt, notification.TemplateAppointmentConfirmation)
	return appt, nil
}

// CancelAppointment moves a booked appointment to cancelled and frees its
// slot.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason *string) (*Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != AppointmentBooked {
		return nil, ErrInvalidTransition
	}

	appt.Status = AppointmentCancelled
	appt.CancellationReason = reason
	if err := s.appointments.Update(ctx, appt); err != nil {
		return nil, err
	}

	if err := s.slots.TransitionStatus(ctx, appt.SlotID, SlotBooked, SlotFree); err != nil {
		s.logger.Error().Err(err).Str("slot_id", appt.SlotID.String()).Msg("freeing slot after cancellation")
	}

	s.notifyAppointment(ctx, appt, notification.TemplateAppointmentCancelled)
	return appt, nil
}

// CompleteAppointment marks a booked appointment as completed.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.closeAppointment(ctx, id, AppointmentCompleted)
}

// MarkNoShow marks a booked appointment as a no-show. The slot stays booked;
// the time has passed.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.closeAppointment(ctx, id, AppointmentNoShow)
}

func (s *Service) closeAppointment(ctx context.Context, id uuid.UUID, status string) (*Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != AppointmentBooked {
		return nil, ErrInvalidTransition
	}
	appt.Status = status
	if err := s.appointments.Update(ctx, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByPatient(ctx, patientID, f, limit, offset)
}

func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByDoctor(ctx, doctorID, f, limit, offset)
}

// notifyAppointment emails the patient about an appointment event.
// Notification failures are logged, never surfaced to the caller.
func (s *Service) notifyAppointment(ctx context.Context, appt *Appointment, templateID string) {
	if s.notifier == nil || s.directory == nil {
		return
	}

	patient, err := s.directory.ContactFor(ctx, appt.PatientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("looking up patient contact")
		return
	}
	doctor, err := s.directory.ContactFor(ctx, appt.DoctorID)
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("looking up doctor contact")
		return
	}

	data := map[string]string{
		"patient_name": patient.Name,
		"doctor_name":  doctor.Name,
		"date":         appt.StartTime.Format("2006-01-02"),
		"time":         appt.StartTime.Format("15:04"),
	}
	if _, err := s.notifier.SendFromTemplate(ctx, templateID, data, patient.Email); err != nil {
		s.logger.Warn().Err(err).Str("template", templateID).Msg("sending appointment notification")
	}
}
