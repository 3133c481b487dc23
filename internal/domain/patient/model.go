package patient

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("patient not found")
	ErrEmailTaken = errors.New("a patient with this email already exists")
	ErrPhoneTaken = errors.New("a patient with this phone number already exists")
	ErrInvalid    = errors.New("invalid patient")
)

type Patient struct {
	ID           int64      `json:"id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	PasswordHash string     `json:"-"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
	Address      string     `json:"address"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Registration is the sign-up form.
type Registration struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Password    string `json:"password"`
	DateOfBirth string `json:"date_of_birth"`
	Address     string `json:"address"`
}

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// Validate trims the form and returns the patient it describes, without a
// password hash.
func (r *Registration) Validate(now time.Time) (*Patient, error) {
	p := &Patient{
		FirstName: strings.TrimSpace(r.FirstName),
		LastName:  strings.TrimSpace(r.LastName),
		Email:     strings.ToLower(strings.TrimSpace(r.Email)),
		Phone:     strings.TrimSpace(r.Phone),
		Address:   strings.TrimSpace(r.Address),
	}

	if n := len(p.FirstName); n < 3 || n > 50 {
		return nil, fmt.Errorf("%w: first_name must be 3 to 50 characters", ErrInvalid)
	}
	if n := len(p.LastName); n < 1 || n > 50 {
		return nil, fmt.Errorf("%w: last_name must be 1 to 50 characters", ErrInvalid)
	}
	if addr, err := mail.ParseAddress(p.Email); err != nil || addr.Address != p.Email {
		return nil, fmt.Errorf("%w: email is not a valid address", ErrInvalid)
	}
	if !phonePattern.MatchString(p.Phone) {
		return nil, fmt.Errorf("%w: phone must be exactly 10 digits", ErrInvalid)
	}
	if len(p.Address) > 255 {
		return nil, fmt.Errorf("%w: address is limited to 255 characters", ErrInvalid)
	}
	if dob := strings.TrimSpace(r.DateOfBirth); dob != "" {
		t, err := time.Parse("2006-01-02", dob)
		if err != nil {
			return nil, fmt.Errorf("%w: date_of_birth must be YYYY-MM-DD", ErrInvalid)
		}
		if !t.Before(now) {
			return nil, fmt.Errorf("%w: date_of_birth must be in the past", ErrInvalid)
		}
		p.DateOfBirth = &t
	}
	return p, nil
}
