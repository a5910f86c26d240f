package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// =========== Availability Repository ===========

type availabilityRepoPG struct{ pool *pgxpool.Pool }

func NewAvailabilityRepoPG(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

func (r *availabilityRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const availabilityCols = `id, doctor_id, weekday, start_time, end_time, slot_minutes, active, created_at, updated_at`

func (r *availabilityRepoPG) scanAvailability(row pgx.Row) (*Availability, error) {
	var a Availability
	err := row.Scan(&a.ID, &a.DoctorID, &a.Weekday, &a.StartTime, &a.EndTime,
		&a.SlotMinutes, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &a, nil
}

func (r *availabilityRepoPG) Create(ctx context.Context, a *Availability) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO availability (id, doctor_id, weekday, start_time, end_time, slot_minutes, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.DoctorID, a.Weekday, a.StartTime, a.EndTime, a.SlotMinutes, a.Active)
	return err
}

func (r *availabilityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Availability, error) {
	return r.scanAvailability(r.conn(ctx).QueryRow(ctx, `SELECT `+availabilityCols+` FROM availability WHERE id = $1`, id))
}

func (r *availabilityRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+availabilityCols+` FROM availability
		WHERE doctor_id = $1 ORDER BY weekday ASC, start_time ASC`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Availability
	for rows.Next() {
		a, err := r.scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *availabilityRepoPG) Update(ctx context.Context, a *Availability) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability SET weekday=$2, start_time=$3, end_time=$4, slot_minutes=$5, active=$6, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.Weekday, a.StartTime, a.EndTime, a.SlotMinutes, a.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *availabilityRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability WHERE id = $1`, id)
	return err
}

// =========== Slot Repository ===========

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

func (r *slotRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const slotCols = `id, doctor_id, start_time, end_time, status, created_at, updated_at`

func (r *slotRepoPG) scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.DoctorID, &s.StartTime, &s.EndTime, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &s, nil
}

func (r *slotRepoPG) Create(ctx context.Context, s *Slot) error {
	s.ID = uuid.New()
	if s.Status == "" {
		s.Status = SlotFree
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO slot (id, doctor_id, start_time, end_time, status)
		VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.DoctorID, s.StartTime, s.EndTime, s.Status)
	return err
}

func (r *slotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return r.scanSlot(r.conn(ctx).QueryRow(ctx, `SELECT `+slotCols+` FROM slot WHERE id = $1`, id))
}

func (r *slotRepoPG) List(ctx context.Context, f SlotFilter, limit, offset int) ([]*Slot, int, error) {
	where := ` FROM slot WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.DoctorID != uuid.Nil {
		where += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, f.DoctorID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(` AND start_time >= $%d`, idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(` AND start_time < $%d`, idx)
		args = append(args, *f.To)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + slotCols + where + fmt.Sprintf(` ORDER BY start_time ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Slot
	for rows.Next() {
		s, err := r.scanSlot(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *slotRepoPG) TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE slot SET status=$3, updated_at=NOW()
		WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing slot from a lost race.
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM slot WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrSlotUnavailable
	}
	return nil
}

func (r *slotRepoPG) ExistsOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM slot
			WHERE doctor_id = $1 AND start_time < $3 AND end_time > $2
		)`, doctorID, start, end).Scan(&exists)
	return exists, err
}

func (r *slotRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM slot WHERE id = $1`, id)
	return err
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const apptCols = `id, slot_id, doctor_id, patient_id, status, reason, cancellation_reason,
	start_time, end_time, created_at, updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.SlotID, &a.DoctorID, &a.PatientID, &a.Status, &a.Reason,
		&a.CancellationReason, &a.StartTime, &a.EndTime, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, slot_id, doctor_id, patient_id, status, reason, start_time, end_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.SlotID, a.DoctorID, a.PatientID, a.Status, a.Reason, a.StartTime, a.EndTime)
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET status=$2, cancellation_reason=$3, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.Status, a.CancellationReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) listBy(ctx context.Context, column string, accountID uuid.UUID, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	where := fmt.Sprintf(` FROM appointment WHERE %s = $1`, column)
	args := []interface{}{accountID}
	idx := 2

	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(` AND start_time >= $%d`, idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(` AND start_time < $%d`, idx)
		args = append(args, *f.To)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + where + fmt.Sprintf(` ORDER BY start_time DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	return r.listBy(ctx, "patient_id", patientID, f, limit, offset)
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	return r.listBy(ctx, "doctor_id", doctorID, f, limit, offset)
}

func (r *appointmentRepoPG) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM appointment GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
