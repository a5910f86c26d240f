package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrEmailTaken = errors.New("email already registered")
)

// DoctorSearchParams filters the public doctor directory.
type DoctorSearchParams struct {
	Specialty string
	Name      string
}

type AccountRepository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Update(ctx context.Context, a *Account) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns accounts ordered by creation time, optionally filtered by
	// role.
	List(ctx context.Context, role string, limit, offset int) ([]*Account, int, error)
}

type PatientProfileRepository interface {
	Create(ctx context.Context, p *PatientProfile) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*PatientProfile, error)
	Update(ctx context.Context, p *PatientProfile) error
}

type DoctorProfileRepository interface {
	Create(ctx context.Context, d *DoctorProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*DoctorProfile, error)
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*DoctorProfile, error)
	Update(ctx context.Context, d *DoctorProfile) error
	SetVerificationStatus(ctx context.Context, id uuid.UUID, status string, reason *string) error
	ListPending(ctx context.Context, limit, offset int) ([]*DoctorProfile, int, error)
	SearchVerified(ctx context.Context, params DoctorSearchParams, limit, offset int) ([]*DoctorListing, int, error)
}
