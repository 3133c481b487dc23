package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clinic/scheduler/internal/platform/db"
)

// DoctorTimeConstraint is the unique index that makes double booking
// impossible at the database level.
const DoctorTimeConstraint = "appointments_doctor_time_key"

type storePG struct{ pool db.Pool }

func NewStorePG(pool db.Pool) Store { return &storePG{pool: pool} }

func (r *storePG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *storePG) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

const apptCols = `id, doctor_id, patient_id, appointment_time, status, reason, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status int16
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.Time, &status, &a.Reason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

const detailCols = `a.id, a.doctor_id, a.patient_id, a.appointment_time, a.status, a.reason, a.created_at, a.updated_at,
	p.first_name || ' ' || p.last_name, p.email, p.phone, d.name`

const detailFrom = ` FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id`

func scanDetail(row pgx.Row) (*Detail, error) {
	var d Detail
	var status int16
	err := row.Scan(&d.ID, &d.DoctorID, &d.PatientID, &d.Time, &status, &d.Reason, &d.CreatedAt, &d.UpdatedAt,
		&d.PatientName, &d.PatientEmail, &d.PatientPhone, &d.DoctorName)
	if err != nil {
		return nil, err
	}
	d.Status = Status(status)
	return &d, nil
}

func (r *storePG) PatientExists(ctx context.Context, patientID int64) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, patientID).Scan(&ok)
	return ok, err
}

func (r *storePG) DoctorSlots(ctx context.Context, doctorID int64) ([]string, error) {
	var slots []string
	err := r.conn(ctx).QueryRow(ctx, `SELECT available_times FROM doctors WHERE id = $1`, doctorID).Scan(&slots)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return slots, nil
}

func (r *storePG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *storePG) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
}

func (r *storePG) ExistsConflict(ctx context.Context, doctorID int64, at time.Time) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE doctor_id = $1 AND appointment_time = $2)`,
		doctorID, at).Scan(&taken)
	return taken, err
}

func (r *storePG) ExistsConflictExcluding(ctx context.Context, doctorID int64, at time.Time, excludeID int64) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE doctor_id = $1 AND appointment_time = $2 AND id <> $3)`,
		doctorID, at, excludeID).Scan(&taken)
	return taken, err
}

func (r *storePG) ByDoctorAndWindow(ctx context.Context, doctorID int64, start, end time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE doctor_id = $1 AND appointment_time >= $2 AND appointment_time < $3
		ORDER BY appointment_time`, doctorID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *storePG) ListForDoctor(ctx context.Context, doctorID int64, start, end time.Time, patientName string) ([]*Detail, error) {
	query := `SELECT ` + detailCols + detailFrom + `
		WHERE a.doctor_id = $1 AND a.appointment_time >= $2 AND a.appointment_time < $3`
	args := []any{doctorID, start, end}
	if patientName != "" {
		query += ` AND (p.first_name || ' ' || p.last_name) ILIKE $4`
		args = append(args, db.ContainsPattern(patientName))
	}
	query += ` ORDER BY a.appointment_time`
	return r.listDetails(ctx, query, args...)
}

func (r *storePG) ListForPatient(ctx context.Context, patientID int64, f PatientFilter) ([]*Detail, error) {
	query := `SELECT ` + detailCols + detailFrom + ` WHERE a.patient_id = $1`
	args := []any{patientID}
	idx := 2

	switch f.Condition {
	case ConditionPast:
		query += fmt.Sprintf(` AND a.appointment_time < $%d`, idx)
		args = append(args, f.Now)
		idx++
	case ConditionFuture:
		query += fmt.Sprintf(` AND a.appointment_time >= $%d`, idx)
		args = append(args, f.Now)
		idx++
	}
	if f.DoctorName != "" {
		query += fmt.Sprintf(` AND d.name ILIKE $%d`, idx)
		args = append(args, db.ContainsPattern(f.DoctorName))
	}
	query += ` ORDER BY a.appointment_time`
	return r.listDetails(ctx, query, args...)
}

func (r *storePG) listDetails(ctx context.Context, query string, args ...any) ([]*Detail, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Detail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *storePG) Create(ctx context.Context, a *Appointment) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (doctor_id, patient_id, appointment_time, status, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		a.DoctorID, a.PatientID, a.Time, int16(a.Status), a.Reason).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *storePG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET appointment_time = $2, status = $3, reason = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Time, int16(a.Status), a.Reason).Scan(&a.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrAppointmentNotFound
	}
	return err
}

func (r *storePG) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1`, id, int16(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *storePG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *storePG) DeleteAllByDoctor(ctx context.Context, doctorID int64) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE doctor_id = $1`, doctorID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
