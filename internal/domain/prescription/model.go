package prescription

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalid = errors.New("invalid prescription")

type Prescription struct {
	ID            int64     `json:"id"`
	AppointmentID int64     `json:"appointment_id"`
	DoctorID      int64     `json:"doctor_id"`
	Medication    string    `json:"medication"`
	Dosage        string    `json:"dosage"`
	DoctorNotes   string    `json:"doctor_notes"`
	CreatedAt     time.Time `json:"created_at"`
}

type Input struct {
	AppointmentID int64  `json:"appointment_id"`
	Medication    string `json:"medication"`
	Dosage        string `json:"dosage"`
	DoctorNotes   string `json:"doctor_notes"`
}

func (in *Input) Normalize() error {
	in.Medication = strings.TrimSpace(in.Medication)
	in.Dosage = strings.TrimSpace(in.Dosage)
	in.DoctorNotes = strings.TrimSpace(in.DoctorNotes)

	if in.AppointmentID <= 0 {
		return fmt.Errorf("%w: appointment_id is required", ErrInvalid)
	}
	if n := len(in.Medication); n < 3 || n > 100 {
		return fmt.Errorf("%w: medication must be 3 to 100 characters", ErrInvalid)
	}
	if n := len(in.Dosage); n < 1 || n > 100 {
		return fmt.Errorf("%w: dosage must be 1 to 100 characters", ErrInvalid)
	}
	if len(in.DoctorNotes) > 2000 {
		return fmt.Errorf("%w: doctor_notes is limited to 2000 characters", ErrInvalid)
	}
	return nil
}
