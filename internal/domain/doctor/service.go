package doctor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinic/scheduler/internal/platform/auth"
)

// AppointmentPurger removes a doctor's appointments. It must join the
// transaction carried by ctx.
type AppointmentPurger interface {
	DeleteAllByDoctor(ctx context.Context, doctorID int64) (int64, error)
}

type Service struct {
	repo         Repository
	appointments AppointmentPurger
	tokens       auth.Issuer
	logger       zerolog.Logger
}

func NewService(repo Repository, appointments AppointmentPurger, tokens auth.Issuer, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		tokens:       tokens,
		logger:       logger.With().Str("component", "doctors").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, in Input) (*Doctor, error) {
	if err := in.Normalize(true); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	d := &Doctor{
		Name:           in.Name,
		Specialty:      in.Specialty,
		Email:          in.Email,
		Phone:          in.Phone,
		PasswordHash:   hash,
		AvailableTimes: in.AvailableTimes,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("doctor_id", d.ID).Msg("doctor created")
	return d, nil
}

// Update replaces the profile of doctor id. The password changes only when
// in.Password is set.
func (s *Service) Update(ctx context.Context, id int64, in Input) (*Doctor, error) {
	if err := in.Normalize(false); err != nil {
		return nil, err
	}
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	d.Name = in.Name
	d.Specialty = in.Specialty
	d.Email = in.Email
	d.Phone = in.Phone
	d.AvailableTimes = in.AvailableTimes
	if in.Password != "" {
		if d.PasswordHash, err = auth.HashPassword(in.Password); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Doctor, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, q Query, limit, offset int) ([]*Doctor, int, error) {
	q.Name = strings.TrimSpace(q.Name)
	q.Specialty = strings.TrimSpace(q.Specialty)
	return s.repo.List(ctx, q, limit, offset)
}

// Delete removes the doctor together with all their appointments in one
// transaction.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		n, err := s.appointments.DeleteAllByDoctor(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		s.logger.Info().Int64("doctor_id", id).Int64("appointments_deleted", n).Msg("doctor deleted")
		return nil
	})
}

// Login checks a doctor's email and password and issues a doctor token.
func (s *Service) Login(ctx context.Context, email, password string) (*auth.TokenResponse, error) {
	d, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(d.PasswordHash, password); err != nil {
		return nil, err
	}
	return auth.NewTokenResponse(s.tokens, auth.Principal{ID: d.ID, Role: auth.RoleDoctor})
}
