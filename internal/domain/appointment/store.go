package appointment

import (
	"context"
	"time"
)

// Store is the record store behind the engine. Lookups of a missing
// appointment or doctor return ErrAppointmentNotFound or ErrDoctorNotFound.
type Store interface {
	PatientExists(ctx context.Context, patientID int64) (bool, error)
	// DoctorSlots returns the doctor's configured slot labels.
	DoctorSlots(ctx context.Context, doctorID int64) ([]string, error)

	GetByID(ctx context.Context, id int64) (*Appointment, error)
	// GetForUpdate is GetByID that also locks the row until the enclosing
	// transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Appointment, error)
	ExistsConflict(ctx context.Context, doctorID int64, at time.Time) (bool, error)
	ExistsConflictExcluding(ctx context.Context, doctorID int64, at time.Time, excludeID int64) (bool, error)
	ByDoctorAndWindow(ctx context.Context, doctorID int64, start, end time.Time) ([]*Appointment, error)
	ListForDoctor(ctx context.Context, doctorID int64, start, end time.Time, patientName string) ([]*Detail, error)
	ListForPatient(ctx context.Context, patientID int64, f PatientFilter) ([]*Detail, error)

	// Create and Update return an error satisfying db.IsUniqueViolation when
	// the doctor already has an appointment at that instant.
	Create(ctx context.Context, a *Appointment) error
	Update(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	Delete(ctx context.Context, id int64) error
	DeleteAllByDoctor(ctx context.Context, doctorID int64) (int64, error)

	// WithTx runs fn atomically. Store calls made with the ctx passed to fn
	// take part in the transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
