package prescription

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/clinic/scheduler/internal/platform/db"
)

type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	ListByAppointment(ctx context.Context, appointmentID int64) ([]*Prescription, error)
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type repoPG struct{ pool db.Pool }

func NewRepo(pool db.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO prescriptions (appointment_id, doctor_id, medication, dosage, doctor_notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		p.AppointmentID, p.DoctorID, p.Medication, p.Dosage, p.DoctorNotes,
	).Scan(&p.ID, &p.CreatedAt)
}

func (r *repoPG) ListByAppointment(ctx context.Context, appointmentID int64) ([]*Prescription, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, appointment_id, doctor_id, medication, dosage, doctor_notes, created_at
		FROM prescriptions WHERE appointment_id = $1 ORDER BY created_at, id`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Prescription, error) {
		var p Prescription
		err := row.Scan(&p.ID, &p.AppointmentID, &p.DoctorID, &p.Medication, &p.Dosage, &p.DoctorNotes, &p.CreatedAt)
		return &p, err
	})
}
