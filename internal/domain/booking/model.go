package booking

import (
	"time"

	"github.com/google/uuid"
)

// Availability maps to the availability table. Each row is a weekly recurring
// window during which a doctor sees patients; slots are generated from these
// windows.
type Availability struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Weekday     int       `db:"weekday" json:"weekday"`       // 0 = Sunday .. 6 = Saturday
	StartTime   string    `db:"start_time" json:"start_time"` // "09:00"
	EndTime     string    `db:"end_time" json:"end_time"`     // "12:30"
	SlotMinutes int       `db:"slot_minutes" json:"slot_minutes"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Slot statuses.
const (
	SlotFree    = "free"
	SlotBooked  = "booked"
	SlotBlocked = "blocked"
)

// Slot maps to the slot table. A slot is a concrete bookable interval for one
// doctor. DoctorID is the doctor's account ID.
type Slot struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Appointment statuses.
const (
	AppointmentBooked    = "booked"
	AppointmentCancelled = "cancelled"
	AppointmentCompleted = "completed"
	AppointmentNoShow    = "no-show"
)

// Appointment maps to the appointment table. Patient and doctor are account
// IDs; the slot pins the time.
type Appointment struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	SlotID             uuid.UUID `db:"slot_id" json:"slot_id"`
	DoctorID           uuid.UUID `db:"doctor_id" json:"doctor_id"`
	PatientID          uuid.UUID `db:"patient_id" json:"patient_id"`
	Status             string    `db:"status" json:"status"`
	Reason             *string   `db:"reason" json:"reason,omitempty"`
	CancellationReason *string   `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	StartTime          time.Time `db:"start_time" json:"start_time"`
	EndTime            time.Time `db:"end_time" json:"end_time"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}
