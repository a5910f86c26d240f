package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/carebook/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// =========== Account Repository ===========

type accountRepoPG struct{ pool *pgxpool.Pool }

func NewAccountRepoPG(pool *pgxpool.Pool) AccountRepository { return &accountRepoPG{pool: pool} }

func (r *accountRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const accountCols = `id, email, password_hash, role, first_name, last_name, phone, active, created_at, updated_at`

func (r *accountRepoPG) scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.FirstName, &a.LastName,
		&a.Phone, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &a, nil
}

func (r *accountRepoPG) Create(ctx context.Context, a *Account) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO account (id, email, password_hash, role, first_name, last_name, phone, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.Email, a.PasswordHash, a.Role, a.FirstName, a.LastName, a.Phone, a.Active)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

func (r *accountRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.scanAccount(r.conn(ctx).QueryRow(ctx, `SELECT `+accountCols+` FROM account WHERE id = $1`, id))
}

func (r *accountRepoPG) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.scanAccount(r.conn(ctx).QueryRow(ctx, `SELECT `+accountCols+` FROM account WHERE email = $1`, email))
}

func (r *accountRepoPG) Update(ctx context.Context, a *Account) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE account SET first_name=$2, last_name=$3, phone=$4, active=$5, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.FirstName, a.LastName, a.Phone, a.Active)
	return err
}

func (r *accountRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM account WHERE id = $1`, id)
	return err
}

func (r *accountRepoPG) List(ctx context.Context, role string, limit, offset int) ([]*Account, int, error) {
	where := ``
	var args []interface{}
	idx := 1
	if role != "" {
		where = fmt.Sprintf(` WHERE role = $%d`, idx)
		args = append(args, role)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM account`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + accountCols + ` FROM account` + where +
		fmt.Sprintf(` ORDER BY created_at ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Account
	for rows.Next() {
		a, err := r.scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

// =========== Patient Profile Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientProfileRepoPG(pool *pgxpool.Pool) PatientProfileRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, account_id, date_of_birth, gender, address, emergency_contact, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*PatientProfile, error) {
	var p PatientProfile
	err := row.Scan(&p.ID, &p.AccountID, &p.DateOfBirth, &p.Gender, &p.Address,
		&p.EmergencyContact, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *PatientProfile) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_profile (id, account_id, date_of_birth, gender, address, emergency_contact)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.AccountID, p.DateOfBirth, p.Gender, p.Address, p.EmergencyContact)
	return err
}

func (r *patientRepoPG) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*PatientProfile, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient_profile WHERE account_id = $1`, accountID))
}

func (r *patientRepoPG) Update(ctx context.Context, p *PatientProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_profile SET date_of_birth=$2, gender=$3, address=$4, emergency_contact=$5, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.DateOfBirth, p.Gender, p.Address, p.EmergencyContact)
	return err
}

// =========== Doctor Profile Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorProfileRepoPG(pool *pgxpool.Pool) DoctorProfileRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const doctorCols = `id, account_id, specialty, license_number, years_of_experience,
	bio, consultation_fee, verification_status, rejection_reason, created_at, updated_at`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*DoctorProfile, error) {
	var d DoctorProfile
	err := row.Scan(&d.ID, &d.AccountID, &d.Specialty, &d.LicenseNumber, &d.YearsOfExperience,
		&d.Bio, &d.ConsultationFee, &d.VerificationStatus, &d.RejectionReason, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *DoctorProfile) error {
	d.ID = uuid.New()
	if d.VerificationStatus == "" {
		d.VerificationStatus = VerificationPending
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_profile (id, account_id, specialty, license_number, years_of_experience, bio, consultation_fee, verification_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.ID, d.AccountID, d.Specialty, d.LicenseNumber, d.YearsOfExperience, d.Bio, d.ConsultationFee, d.VerificationStatus)
	return err
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DoctorProfile, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor_profile WHERE id = $1`, id))
}

func (r *doctorRepoPG) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*DoctorProfile, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor_profile WHERE account_id = $1`, accountID))
}

func (r *doctorRepoPG) Update(ctx context.Context, d *DoctorProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor_profile SET specialty=$2, license_number=$3, years_of_experience=$4, bio=$5, consultation_fee=$6, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.Specialty, d.LicenseNumber, d.YearsOfExperience, d.Bio, d.ConsultationFee)
	return err
}

func (r *doctorRepoPG) SetVerificationStatus(ctx context.Context, id uuid.UUID, status string, reason *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor_profile SET verification_status=$2, rejection_reason=$3, updated_at=NOW()
		WHERE id = $1`,
		id, status, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *doctorRepoPG) ListPending(ctx context.Context, limit, offset int) ([]*DoctorProfile, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor_profile WHERE verification_status = $1`, VerificationPending).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+doctorCols+` FROM doctor_profile
		WHERE verification_status = $1
		ORDER BY created_at ASC LIMIT $2 OFFSET $3`,
		VerificationPending, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*DoctorProfile
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}

func (r *doctorRepoPG) SearchVerified(ctx context.Context, params DoctorSearchParams, limit, offset int) ([]*DoctorListing, int, error) {
	where := ` FROM doctor_profile d JOIN account a ON a.id = d.account_id
		WHERE d.verification_status = 'approved' AND a.active`
	var args []interface{}
	idx := 1

	if params.Specialty != "" {
		where += fmt.Sprintf(` AND d.specialty ILIKE $%d`, idx)
		args = append(args, params.Specialty)
		idx++
	}
	if params.Name != "" {
		where += fmt.Sprintf(` AND (a.first_name ILIKE $%d OR a.last_name ILIKE $%d)`, idx, idx)
		args = append(args, "%"+params.Name+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT d.id, d.account_id, a.first_name, a.last_name, d.specialty, d.years_of_experience` +
		where + fmt.Sprintf(` ORDER BY a.last_name ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*DoctorListing
	for rows.Next() {
		var l DoctorListing
		if err := rows.Scan(&l.ProfileID, &l.AccountID, &l.FirstName, &l.LastName, &l.Specialty, &l.YearsOfExperience); err != nil {
			return nil, 0, err
		}
		items = append(items, &l)
	}
	return items, total, nil
}
