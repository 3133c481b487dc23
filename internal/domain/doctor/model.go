package doctor

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/clinic/scheduler/internal/domain/appointment"
)

var (
	ErrNotFound   = errors.New("doctor not found")
	ErrEmailTaken = errors.New("a doctor with this email already exists")
	ErrInvalid    = errors.New("invalid doctor")
)

type Doctor struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Specialty      string    `json:"specialty"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	PasswordHash   string    `json:"-"`
	AvailableTimes []string  `json:"available_times"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Input is the writable part of a doctor profile. Password may be empty on
// update, which keeps the current one.
type Input struct {
	Name           string   `json:"name"`
	Specialty      string   `json:"specialty"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	Password       string   `json:"password"`
	AvailableTimes []string `json:"available_times"`
}

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// Normalize trims every field and rewrites slot labels in canonical form.
// It reports the first invalid field.
func (in *Input) Normalize(requirePassword bool) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Specialty = strings.TrimSpace(in.Specialty)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)

	if n := len(in.Name); n < 3 || n > 100 {
		return fmt.Errorf("%w: name must be 3 to 100 characters", ErrInvalid)
	}
	if n := len(in.Specialty); n < 3 || n > 100 {
		return fmt.Errorf("%w: specialty must be 3 to 100 characters", ErrInvalid)
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return fmt.Errorf("%w: email is not a valid address", ErrInvalid)
	}
	if !phonePattern.MatchString(in.Phone) {
		return fmt.Errorf("%w: phone must be exactly 10 digits", ErrInvalid)
	}
	if requirePassword && in.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalid)
	}

	slots := make([]string, 0, len(in.AvailableTimes))
	seen := make(map[string]bool, len(in.AvailableTimes))
	for _, l := range in.AvailableTimes {
		norm, ok := appointment.NormalizeLabel(l)
		if !ok {
			return fmt.Errorf("%w: slot %q must be HH:MM or HH:MM-HH:MM", ErrInvalid, l)
		}
		if !seen[norm] {
			seen[norm] = true
			slots = append(slots, norm)
		}
	}
	in.AvailableTimes = slots
	return nil
}

// Period narrows doctors to those with a slot in the morning or afternoon.
type Period string

const (
	PeriodAny Period = ""
	PeriodAM  Period = "am"
	PeriodPM  Period = "pm"
)

// Noon splits AM from PM slot starts.
const Noon = "12:00"

func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodAny, PeriodAM, PeriodPM:
		return p, nil
	}
	return "", fmt.Errorf("%w: period must be AM or PM", ErrInvalid)
}

// Query filters a doctor listing. Empty fields match everything.
type Query struct {
	Name      string
	Specialty string
	Period    Period
}
