package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/scheduler/internal/platform/auth"
)

type Service struct {
	repo   Repository
	tokens auth.Issuer
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, tokens auth.Issuer, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
		logger: logger.With().Str("component", "patients").Logger(),
		now:    time.Now,
	}
}

// Register creates a patient account. Email and phone are unique.
func (s *Service) Register(ctx context.Context, r Registration) (*Patient, error) {
	p, err := r.Validate(s.now())
	if err != nil {
		return nil, err
	}
	if p.PasswordHash, err = auth.HashPassword(r.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("patient_id", p.ID).Msg("patient registered")
	return p, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// Login checks a patient's email and password and issues a patient token.
func (s *Service) Login(ctx context.Context, email, password string) (*auth.TokenResponse, error) {
	p, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(p.PasswordHash, password); err != nil {
		return nil, err
	}
	return auth.NewTokenResponse(s.tokens, auth.Principal{ID: p.ID, Role: auth.RolePatient})
}
