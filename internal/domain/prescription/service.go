package prescription

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clinic/scheduler/internal/domain/appointment"
)

// Appointments is the part of the scheduling engine prescriptions depend on.
type Appointments interface {
	Get(ctx context.Context, id int64) (*appointment.Appointment, error)
	GetForUpdate(ctx context.Context, id int64) (*appointment.Appointment, error)
	SetStatus(ctx context.Context, id int64, status appointment.Status) error
}

type Service struct {
	repo         Repository
	appointments Appointments
	logger       zerolog.Logger
}

func NewService(repo Repository, appointments Appointments, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		logger:       logger.With().Str("component", "prescriptions").Logger(),
	}
}

// Create records a prescription for one of the doctor's appointments and
// marks the appointment completed in the same transaction. The appointment
// stays locked from the ownership check to the commit, so a concurrent cancel
// either waits or is seen as not found.
func (s *Service) Create(ctx context.Context, doctorID int64, in Input) (*Prescription, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}

	p := &Prescription{
		AppointmentID: in.AppointmentID,
		DoctorID:      doctorID,
		Medication:    in.Medication,
		Dosage:        in.Dosage,
		DoctorNotes:   in.DoctorNotes,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		if err := checkOwner(ctx, s.appointments.GetForUpdate, doctorID, p.AppointmentID); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("insert prescription: %w", err)
		}
		return s.appointments.SetStatus(ctx, p.AppointmentID, appointment.StatusCompleted)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("prescription_id", p.ID).Int64("appointment_id", p.AppointmentID).Msg("prescription recorded")
	return p, nil
}

// ForAppointment lists the prescriptions of one of the doctor's appointments.
func (s *Service) ForAppointment(ctx context.Context, doctorID, appointmentID int64) ([]*Prescription, error) {
	if err := checkOwner(ctx, s.appointments.Get, doctorID, appointmentID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	if items == nil {
		items = []*Prescription{}
	}
	return items, nil
}

func checkOwner(ctx context.Context, load func(context.Context, int64) (*appointment.Appointment, error), doctorID, appointmentID int64) error {
	a, err := load(ctx, appointmentID)
	if err != nil {
		return err
	}
	if a.DoctorID != doctorID {
		return appointment.ErrUnauthorized
	}
	return nil
}
