package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/scheduler/internal/platform/db"
	"github.com/clinic/scheduler/internal/platform/metrics"
)

// Service is the scheduling engine. It holds no state between calls; every
// read goes to the store.
type Service struct {
	store   Store
	logger  zerolog.Logger
	metrics *metrics.SchedulingMetrics
	now     func() time.Time
}

func NewService(store Store, logger zerolog.Logger, m *metrics.SchedulingMetrics) *Service {
	return &Service{
		store:   store,
		logger:  logger.With().Str("component", "appointments").Logger(),
		metrics: m,
		now:     time.Now,
	}
}

// observe records the outcome of op and logs internal failures. Expected
// failures (not found, conflicts, ownership) are returned without logging.
func (s *Service) observe(op string, start time.Time, err error, fields map[string]any) error {
	outcome := OutcomeOf(err)
	s.metrics.Observe(op, outcome.String(), s.now().Sub(start))
	if outcome == OutcomeInternal {
		s.logger.Error().Err(err).Str("operation", op).Fields(fields).Msg("scheduling operation failed")
	}
	return err
}

// Availability returns the doctor's free slot labels on date. An unknown
// doctor has no availability rather than an error.
func (s *Service) Availability(ctx context.Context, doctorID int64, date time.Time) (labels []string, err error) {
	start := s.now()
	defer func() {
		err = s.observe("availability", start, err, map[string]any{"doctor_id": doctorID})
	}()

	slots, err := s.store.DoctorSlots(ctx, doctorID)
	if errors.Is(err, ErrDoctorNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load doctor slots: %w", err)
	}

	from, to := DayWindow(date)
	booked, err := s.store.ByDoctorAndWindow(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load booked appointments: %w", err)
	}

	times := make([]time.Time, len(booked))
	for i, a := range booked {
		times[i] = a.Time
	}
	return Available(slots, times), nil
}

// SlotOffered reports whether the doctor's slot grid has a slot starting at
// the time of day of at.
func (s *Service) SlotOffered(ctx context.Context, doctorID int64, at time.Time) (bool, error) {
	slots, err := s.store.DoctorSlots(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return false, err
		}
		return false, fmt.Errorf("load doctor slots: %w", err)
	}
	return Offers(slots, WallClock(at)), nil
}

// BookOption adjusts the checks Book runs.
type BookOption func(*bookOptions)

type bookOptions struct {
	requireOffered bool
}

// RequireOfferedSlot makes Book reject a time that is not on the doctor's
// slot grid with ErrSlotNotOffered. The grid is checked after the patient
// and doctor lookups.
func RequireOfferedSlot() BookOption {
	return func(o *bookOptions) { o.requireOffered = true }
}

// Book persists a new appointment with status Scheduled. Checks run in order:
// patient exists, doctor exists, the time is on the grid (with
// RequireOfferedSlot), the instant is free. The whole sequence is one
// transaction, and a unique violation from a concurrent booking is reported
// as ErrSlotTaken.
func (s *Service) Book(ctx context.Context, a *Appointment, opts ...BookOption) (err error) {
	var o bookOptions
	for _, opt := range opts {
		opt(&o)
	}

	start := s.now()
	defer func() {
		err = s.observe("book", start, err, map[string]any{"doctor_id": a.DoctorID, "patient_id": a.PatientID})
	}()

	if a.PatientID <= 0 {
		return fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if a.DoctorID <= 0 {
		return fmt.Errorf("%w: doctor_id is required", ErrInvalidInput)
	}
	if a.Time.IsZero() {
		return fmt.Errorf("%w: appointment_time is required", ErrInvalidInput)
	}

	candidate := *a
	candidate.ID = 0
	candidate.Time = WallClock(a.Time)
	candidate.Status = StatusScheduled
	candidate.Reason = strings.TrimSpace(a.Reason)

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.store.PatientExists(ctx, candidate.PatientID)
		if err != nil {
			return fmt.Errorf("lookup patient: %w", err)
		}
		if !ok {
			return ErrPatientNotFound
		}

		slots, err := s.store.DoctorSlots(ctx, candidate.DoctorID)
		if err != nil {
			if errors.Is(err, ErrDoctorNotFound) {
				return err
			}
			return fmt.Errorf("lookup doctor: %w", err)
		}
		if o.requireOffered && !Offers(slots, candidate.Time) {
			return ErrSlotNotOffered
		}

		taken, err := s.store.ExistsConflict(ctx, candidate.DoctorID, candidate.Time)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return ErrSlotTaken
		}

		if err := s.store.Create(ctx, &candidate); err != nil {
			if db.IsUniqueViolation(err, DoctorTimeConstraint) {
				return ErrSlotTaken
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		// a commit can still lose the race to a concurrent insert
		if db.IsUniqueViolation(err, DoctorTimeConstraint) {
			return ErrSlotTaken
		}
		return err
	}

	*a = candidate
	return nil
}

// Update overwrites time, status and reason of an existing appointment.
// a.PatientID must match the stored patient. Doctor and patient never change.
func (s *Service) Update(ctx context.Context, a *Appointment) (err error) {
	start := s.now()
	defer func() {
		err = s.observe("update", start, err, map[string]any{"appointment_id": a.ID, "patient_id": a.PatientID})
	}()

	if a.Time.IsZero() {
		return fmt.Errorf("%w: appointment_time is required", ErrInvalidInput)
	}
	if !a.Status.Valid() {
		return fmt.Errorf("%w: unknown status %d", ErrInvalidInput, a.Status)
	}

	var updated *Appointment
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.store.GetForUpdate(ctx, a.ID)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("load appointment: %w", err)
		}
		if existing.PatientID != a.PatientID {
			return ErrPatientMismatch
		}
		if !existing.Status.CanTransitionTo(a.Status) {
			return ErrInvalidTransition
		}

		at := WallClock(a.Time)
		taken, err := s.store.ExistsConflictExcluding(ctx, existing.DoctorID, at, existing.ID)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return ErrSlotTaken
		}

		existing.Time = at
		existing.Status = a.Status
		existing.Reason = strings.TrimSpace(a.Reason)
		if err := s.store.Update(ctx, existing); err != nil {
			if db.IsUniqueViolation(err, DoctorTimeConstraint) {
				return ErrSlotTaken
			}
			if errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("update appointment: %w", err)
		}
		updated = existing
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, DoctorTimeConstraint) {
			return ErrSlotTaken
		}
		return err
	}

	*a = *updated
	return nil
}

// Cancel hard-deletes the appointment. Only the owning patient may cancel;
// anyone else gets ErrUnauthorized and the record is left alone.
func (s *Service) Cancel(ctx context.Context, id, callerPatientID int64) (err error) {
	start := s.now()
	defer func() {
		err = s.observe("cancel", start, err, map[string]any{"appointment_id": id, "patient_id": callerPatientID})
	}()

	return s.store.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.store.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("load appointment: %w", err)
		}
		if existing.PatientID != callerPatientID {
			return ErrUnauthorized
		}
		if err := s.store.Delete(ctx, id); err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("delete appointment: %w", err)
		}
		return nil
	})
}

// SetStatus moves an appointment along its lifecycle. A missing id is not an
// error: status changes are fired by other workflows that may race a
// cancellation.
func (s *Service) SetStatus(ctx context.Context, id int64, status Status) (err error) {
	start := s.now()
	defer func() {
		err = s.observe("set_status", start, err, map[string]any{"appointment_id": id, "status": status.String()})
	}()

	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %d", ErrInvalidInput, status)
	}

	return s.store.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.store.GetForUpdate(ctx, id)
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}
		if !existing.Status.CanTransitionTo(status) {
			return ErrInvalidTransition
		}
		if existing.Status == status {
			return nil
		}
		if err := s.store.UpdateStatus(ctx, id, status); err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("update status: %w", err)
		}
		return nil
	})
}

// AppointmentsForDoctor lists the doctor's appointments on date, optionally
// only those whose patient name contains patientName (case-insensitive).
func (s *Service) AppointmentsForDoctor(ctx context.Context, doctorID int64, date time.Time, patientName string) (items []*Detail, err error) {
	start := s.now()
	defer func() {
		err = s.observe("list_for_doctor", start, err, map[string]any{"doctor_id": doctorID})
	}()

	from, to := DayWindow(date)
	items, err = s.store.ListForDoctor(ctx, doctorID, from, to, strings.TrimSpace(patientName))
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}
	return items, nil
}

// AppointmentsForPatient lists a patient's own appointments.
func (s *Service) AppointmentsForPatient(ctx context.Context, patientID int64, f PatientFilter) (items []*Detail, err error) {
	start := s.now()
	defer func() {
		err = s.observe("list_for_patient", start, err, map[string]any{"patient_id": patientID})
	}()

	if f.Now.IsZero() {
		f.Now = WallClock(s.now())
	}
	f.DoctorName = strings.TrimSpace(f.DoctorName)
	items, err = s.store.ListForPatient(ctx, patientID, f)
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	return items, nil
}

// Get returns a single appointment.
func (s *Service) Get(ctx context.Context, id int64) (*Appointment, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, s.observe("get", s.now(), fmt.Errorf("load appointment: %w", err), map[string]any{"appointment_id": id})
	}
	return a, err
}

// GetForUpdate loads an appointment and locks it until the caller's
// transaction ends. Outside a transaction it behaves like Get.
func (s *Service) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	a, err := s.store.GetForUpdate(ctx, id)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, s.observe("get", s.now(), fmt.Errorf("lock appointment: %w", err), map[string]any{"appointment_id": id})
	}
	return a, err
}

// DeleteAllByDoctor removes every appointment of a doctor. It joins the
// caller's transaction when there is one, so a doctor delete can cascade
// atomically.
func (s *Service) DeleteAllByDoctor(ctx context.Context, doctorID int64) (int64, error) {
	n, err := s.store.DeleteAllByDoctor(ctx, doctorID)
	if err != nil {
		return 0, fmt.Errorf("delete doctor appointments: %w", err)
	}
	return n, nil
}
