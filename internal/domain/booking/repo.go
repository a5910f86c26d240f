package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrSlotUnavailable   = errors.New("slot is not available")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// SlotFilter narrows slot listings.
type SlotFilter struct {
	DoctorID uuid.UUID
	Status   string
	From     *time.Time
	To       *time.Time
}

// AppointmentFilter narrows appointment listings.
type AppointmentFilter struct {
	Status string
	From   *time.Time
	To     *time.Time
}

type AvailabilityRepository interface {
	Create(ctx context.Context, a *Availability) error
	GetByID(ctx context.Context, id uuid.UUID) (*Availability, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error)
	Update(ctx context.Context, a *Availability) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type SlotRepository interface {
	Create(ctx context.Context, s *Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	List(ctx context.Context, f SlotFilter, limit, offset int) ([]*Slot, int, error)
	// TransitionStatus atomically moves a slot from one status to another.
	// Returns ErrSlotUnavailable when the slot is not currently in from.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) error
	// ExistsOverlapping reports whether the doctor already has a slot
	// overlapping [start, end).
	ExistsOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}
