package patient

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/clinic/scheduler/internal/platform/db"
)

const (
	emailConstraint = "patients_email_key"
	phoneConstraint = "patients_phone_key"
)

type repoPG struct{ pool db.Pool }

func NewRepo(pool db.Pool) Repository { return &repoPG{pool: pool} }

const patientCols = `id, first_name, last_name, email, phone, password_hash, date_of_birth, address, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.PasswordHash,
		&p.DateOfBirth, &p.Address, &p.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (first_name, last_name, email, phone, password_hash, date_of_birth, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		p.FirstName, p.LastName, p.Email, p.Phone, p.PasswordHash, p.DateOfBirth, p.Address,
	).Scan(&p.ID, &p.CreatedAt)
	switch {
	case db.IsUniqueViolation(err, emailConstraint):
		return ErrEmailTaken
	case db.IsUniqueViolation(err, phoneConstraint):
		return ErrPhoneTaken
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE email = $1`, email))
}
