package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/carebook/internal/domain/registration"
	"github.com/carebook/carebook/internal/platform/auth"
)

// ErrInvalidCredentials is returned by Login for unknown emails and wrong
// passwords alike, so callers cannot probe which emails exist.
var ErrInvalidCredentials = fmt.Errorf("invalid email or password")

// ValidationError carries the per-field messages from a rejected
// registration.
type ValidationError struct {
	Errors map[string]string
}

func (e *ValidationError) Error() string {
	return "registration validation failed"
}

// AuthResult is returned by Register and Login: the account plus a freshly
// minted access token.
type AuthResult struct {
	Account   *Account  `json:"account"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TxRunner runs fn inside a single storage transaction; repositories reached
// through fn's context share it. db.WithTx bound to the pool satisfies it. A
// nil runner executes fn directly.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	accounts AccountRepository
	patients PatientProfileRepository
	doctors  DoctorProfileRepository
	issuer   *auth.TokenIssuer
	sink     registration.DiagnosticSink
	txr      TxRunner
}

func NewService(accounts AccountRepository, patients PatientProfileRepository, doctors DoctorProfileRepository, issuer *auth.TokenIssuer, sink registration.DiagnosticSink, txr TxRunner) *Service {
	return &Service{accounts: accounts, patients: patients, doctors: doctors, issuer: issuer, sink: sink, txr: txr}
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txr == nil {
		return fn(ctx)
	}
	return s.txr(ctx, fn)
}

// roleFor maps a registration user type to the role carried in tokens.
func roleFor(userType string) string {
	switch userType {
	case registration.UserTypeDoctor:
		return auth.RoleDoctor
	case registration.UserTypeAdmin:
		return auth.RoleAdmin
	default:
		return auth.RolePatient
	}
}

// Register validates the submission, creates the account and its
// role-specific profile, and returns a token for the new account.
func (s *Service) Register(ctx context.Context, req registration.Request) (*AuthResult, error) {
	// Trim before validation so padded submissions pass the format rules.
	req.Email = strings.TrimSpace(req.Email)

	result := registration.ValidateUserRegistration(req, s.sink)
	if !result.Valid {
		return nil, &ValidationError{Errors: result.Errors}
	}

	email := strings.ToLower(req.Email)
	if existing, err := s.accounts.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	account := &Account{
		Email:        email,
		PasswordHash: hash,
		Role:         roleFor(req.UserType),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        req.Phone,
		Active:       true,
	}

	// The account and its profile land together or not at all.
	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.Create(ctx, account); err != nil {
			return fmt.Errorf("creating account: %w", err)
		}
		switch req.UserType {
		case registration.UserTypePatient:
			p := &PatientProfile{
				AccountID:   account.ID,
				DateOfBirth: req.DateOfBirth,
				Gender:      req.Gender,
			}
			if err := s.patients.Create(ctx, p); err != nil {
				return fmt.Errorf("creating patient profile: %w", err)
			}
		case registration.UserTypeDoctor:
			d := &DoctorProfile{
				AccountID:          account.ID,
				Specialty:          req.Specialty,
				LicenseNumber:      req.LicenseNumber,
				YearsOfExperience:  req.YearsOfExperience,
				VerificationStatus: VerificationPending,
			}
			if err := s.doctors.Create(ctx, d); err != nil {
				return fmt.Errorf("creating doctor profile: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.issueFor(account)
}

// Login checks the credentials and returns a token for the account.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	account, err := s.accounts.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil || account == nil {
		return nil, ErrInvalidCredentials
	}
	if !account.Active {
		return nil, ErrInvalidCredentials
	}
	if !auth.CheckPassword(account.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.issueFor(account)
}

func (s *Service) issueFor(account *Account) (*AuthResult, error) {
	token, expiresAt, err := s.issuer.Issue(account.ID.String(), account.Email, []string{account.Role})
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}
	return &AuthResult{Account: account, Token: token, ExpiresAt: expiresAt}, nil
}

// GetProfile returns the account with its role-specific profile attached.
func (s *Service) GetProfile(ctx context.Context, accountID uuid.UUID) (*Profile, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	profile := &Profile{Account: account}
	switch account.Role {
	case auth.RolePatient:
		if p, err := s.patients.GetByAccountID(ctx, accountID); err == nil {
			profile.Patient = p
		}
	case auth.RoleDoctor:
		if d, err := s.doctors.GetByAccountID(ctx, accountID); err == nil {
			profile.Doctor = d
		}
	}
	return profile, nil
}

// UpdateContact changes the mutable account fields. Email and role are fixed
// at registration.
func (s *Service) UpdateContact(ctx context.Context, accountID uuid.UUID, firstName, lastName string, phone *string) (*Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if firstName != "" {
		if !registration.IsValidName(firstName) {
			return nil, &ValidationError{Errors: map[string]string{"firstName": "First name must be at least 2 characters"}}
		}
		account.FirstName = strings.TrimSpace(firstName)
	}
	if lastName != "" {
		if !registration.IsValidName(lastName) {
			return nil, &ValidationError{Errors: map[string]string{"lastName": "Last name must be at least 2 characters"}}
		}
		account.LastName = strings.TrimSpace(lastName)
	}
	if phone != nil {
		if !registration.IsValidPhone(phone) {
			return nil, &ValidationError{Errors: map[string]string{"phone": "Invalid phone number format"}}
		}
		account.Phone = phone
	}

	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// ProfileExtras carries the optional role-profile fields a user may fill in
// after registration. Nil fields are left unchanged.
type ProfileExtras struct {
	Address          *string  `json:"address"`
	EmergencyContact *string  `json:"emergency_contact"`
	Bio              *string  `json:"bio"`
	ConsultationFee  *float64 `json:"consultation_fee"`
}

func (e ProfileExtras) empty() bool {
	return e.Address == nil && e.EmergencyContact == nil && e.Bio == nil && e.ConsultationFee == nil
}

// UpdateProfileExtras applies the optional fields to the caller's role
// profile. Patient fields are ignored for doctors and vice versa.
func (s *Service) UpdateProfileExtras(ctx context.Context, accountID uuid.UUID, extras ProfileExtras) error {
	if extras.empty() {
		return nil
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	switch account.Role {
	case auth.RolePatient:
		p, err := s.patients.GetByAccountID(ctx, accountID)
		if err != nil {
			return err
		}
		if extras.Address != nil {
			p.Address = extras.Address
		}
		if extras.EmergencyContact != nil {
			p.EmergencyContact = extras.EmergencyContact
		}
		return s.patients.Update(ctx, p)
	case auth.RoleDoctor:
		d, err := s.doctors.GetByAccountID(ctx, accountID)
		if err != nil {
			return err
		}
		if extras.Bio != nil {
			d.Bio = extras.Bio
		}
		if extras.ConsultationFee != nil {
			if *extras.ConsultationFee < 0 {
				return &ValidationError{Errors: map[string]string{"consultationFee": "Consultation fee must not be negative"}}
			}
			d.ConsultationFee = extras.ConsultationFee
		}
		return s.doctors.Update(ctx, d)
	}
	return nil
}

// SearchDoctors returns the public directory: verified doctors only,
// optionally filtered by specialty and name.
func (s *Service) SearchDoctors(ctx context.Context, params DoctorSearchParams, limit, offset int) ([]*DoctorListing, int, error) {
	return s.doctors.SearchVerified(ctx, params, limit, offset)
}

// GetDoctorProfile looks up one doctor profile by its ID.
func (s *Service) GetDoctorProfile(ctx context.Context, id uuid.UUID) (*DoctorProfile, error) {
	return s.doctors.GetByID(ctx, id)
}

// ListAccounts returns all accounts, optionally filtered by role. Admin only.
func (s *Service) ListAccounts(ctx context.Context, role string, limit, offset int) ([]*Account, int, error) {
	return s.accounts.List(ctx, role, limit, offset)
}
