package identity

import (
	"time"

	"github.com/google/uuid"
)

// Account maps to the account table. One account per registered user,
// regardless of role.
type Account struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns the account holder's display name.
func (a *Account) FullName() string {
	return a.FirstName + " " + a.LastName
}

// PatientProfile maps to the patient_profile table.
type PatientProfile struct {
	ID               uuid.UUID `db:"id" json:"id"`
	AccountID        uuid.UUID `db:"account_id" json:"account_id"`
	DateOfBirth      string    `db:"date_of_birth" json:"date_of_birth"`
	Gender           string    `db:"gender" json:"gender"`
	Address          *string   `db:"address" json:"address,omitempty"`
	EmergencyContact *string   `db:"emergency_contact" json:"emergency_contact,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Doctor verification states.
const (
	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

// DoctorProfile maps to the doctor_profile table. New doctor profiles start
// in pending verification and only appear in the public directory once
// approved.
type DoctorProfile struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	AccountID          uuid.UUID `db:"account_id" json:"account_id"`
	Specialty          string    `db:"specialty" json:"specialty"`
	LicenseNumber      string    `db:"license_number" json:"license_number"`
	YearsOfExperience  *int      `db:"years_of_experience" json:"years_of_experience,omitempty"`
	Bio                *string   `db:"bio" json:"bio,omitempty"`
	ConsultationFee    *float64  `db:"consultation_fee" json:"consultation_fee,omitempty"`
	VerificationStatus string    `db:"verification_status" json:"verification_status"`
	RejectionReason    *string   `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// DoctorListing is the directory view of a doctor: profile fields joined with
// the account holder's name.
type DoctorListing struct {
	ProfileID         uuid.UUID `json:"profile_id"`
	AccountID         uuid.UUID `json:"account_id"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	Specialty         string    `json:"specialty"`
	YearsOfExperience *int      `json:"years_of_experience,omitempty"`
}

// Profile bundles an account with its role-specific profile for /me responses.
type Profile struct {
	Account *Account        `json:"account"`
	Patient *PatientProfile `json:"patient,omitempty"`
	Doctor  *DoctorProfile  `json:"doctor,omitempty"`
}
