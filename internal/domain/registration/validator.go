// Package registration validates new-account registration payloads.
//
// The rule table is enumerated explicitly so that every field rule and its
// user-facing message can be audited in one place. Validation never fails
// fatally: every violation is collected into the result and the caller
// decides how to surface them.
package registration

import (
	"regexp"
	"strings"
	"unicode"
)

// User types accepted on registration.
const (
	UserTypePatient = "PATIENT"
	UserTypeDoctor  = "DOCTOR"
	UserTypeAdmin   = "ADMIN"
)

// Request is a single registration submission. Optional fields use the
// zero value (or nil for Phone and YearsOfExperience) to mean "not
// provided"; callers must not drop keys in a way that hides emptiness.
type Request struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	UserType  string  `json:"user_type"`
	Phone     *string `json:"phone,omitempty"`

	// Patient-only fields.
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Gender      string `json:"gender,omitempty"`

	// Doctor-only fields.
	Specialty         string `json:"specialty,omitempty"`
	LicenseNumber     string `json:"license_number,omitempty"`
	YearsOfExperience *int   `json:"years_of_experience,omitempty"`
}

// Result reports the outcome of validating one Request. Valid is true
// exactly when Errors is empty.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors"`
}

// emailPattern requires a non-empty local part, at least one domain label
// and a top-level label after the final dot, and rejects whitespace,
// consecutive dots, and trailing dots. Deliberately rejects dotless
// domains; callers depend on this acceptance boundary.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@.]+(\.[^\s@.]+)+$`)

// IsValidEmail reports whether s has the accepted local@domain.tld shape.
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// IsValidPassword reports whether s is at least 8 characters and contains
// an uppercase letter, a lowercase letter, and a digit. Special characters
// are permitted but not required.
func IsValidPassword(s string) bool {
	if len(s) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// IsValidName reports whether s, after trimming surrounding whitespace, is
// at least 2 characters. Internal hyphens are allowed.
func IsValidName(s string) bool {
	return len(strings.TrimSpace(s)) >= 2
}

// IsValidPhone reports whether p is an acceptable phone number. A nil
// phone means "not provided" and is valid; an empty string is not.
// Formatting characters (spaces, hyphens, parentheses, a leading +) are
// stripped and the remainder must be 10 to 15 digits. The bounds are
// heuristic but fixed; callers depend on them.
func IsValidPhone(p *string) bool {
	if p == nil {
		return true
	}
	s := *p
	if s == "" {
		return false
	}
	s = strings.TrimPrefix(s, "+")
	var digits int
	for _, r := range s {
		switch r {
		case ' ', '-', '(', ')':
			continue
		default:
			if !unicode.IsDigit(r) {
				return false
			}
			digits++
		}
	}
	return digits >= 10 && digits <= 15
}

// IsValidUserType reports whether t is exactly one of the three accepted
// user types. Matching is case-sensitive.
func IsValidUserType(t string) bool {
	switch t {
	case UserTypePatient, UserTypeDoctor, UserTypeAdmin:
		return true
	}
	return false
}

// ValidateUserRegistration checks req against the full rule table and
// returns every violation keyed by field name. Each field contributes at
// most one message: a missing required field reports only its "required"
// message, never an additional format message. Role-specific rules run
// only when UserType names that role.
//
// The function itself never fails. When violations exist, one warn-level
// diagnostic is emitted through sink; a nil sink disables the diagnostic.
func ValidateUserRegistration(req Request, sink DiagnosticSink) Result {
	errs := make(map[string]string)

	if req.Email == "" {
		errs["email"] = "Email is required"
	} else if !IsValidEmail(req.Email) {
		errs["email"] = "Invalid email format"
	}

	if req.Password == "" {
		errs["password"] = "Password is required"
	} else if !IsValidPassword(req.Password) {
		errs["password"] = "Password must be at least 8 characters with uppercase, lowercase, and number"
	}

	if strings.TrimSpace(req.FirstName) == "" {
		errs["firstName"] = "First name is required"
	} else if !IsValidName(req.FirstName) {
		errs["firstName"] = "First name must be at least 2 characters"
	}

	if strings.TrimSpace(req.LastName) == "" {
		errs["lastName"] = "Last name is required"
	} else if !IsValidName(req.LastName) {
		errs["lastName"] = "Last name must be at least 2 characters"
	}

	if req.UserType == "" {
		errs["userType"] = "User type is required"
	} else if !IsValidUserType(req.UserType) {
		errs["userType"] = "Invalid user type"
	}

	if !IsValidPhone(req.Phone) {
		errs["phone"] = "Invalid phone number format"
	}

	switch req.UserType {
	case UserTypeDoctor:
		if req.Specialty == "" {
			errs["specialty"] = "Specialty is required for doctors"
		}
		if req.LicenseNumber == "" {
			errs["licenseNumber"] = "License number is required for doctors"
		}
	case UserTypePatient:
		if req.DateOfBirth == "" {
			errs["dateOfBirth"] = "Date of birth is required for patients"
		}
		if req.Gender == "" {
			errs["gender"] = "Gender is required for patients"
		}
	}

	if len(errs) > 0 {
		if sink != nil {
			sink.Warn("User registration validation failed", "registration-validator", errs)
		}
		return Result{Valid: false, Errors: errs}
	}
	return Result{Valid: true, Errors: errs}
}
