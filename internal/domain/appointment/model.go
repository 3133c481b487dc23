package appointment

import (
	"fmt"
	"time"
)

// Status is the appointment lifecycle. The stored values are fixed: 0 and 1.
type Status int16

const (
	StatusScheduled Status = 0
	StatusCompleted Status = 1
)

func (s Status) Valid() bool {
	return s == StatusScheduled || s == StatusCompleted
}

func (s Status) String() string {
	switch s {
	case StatusScheduled:
		return "scheduled"
	case StatusCompleted:
		return "completed"
	}
	return fmt.Sprintf("status(%d)", int16(s))
}

// CanTransitionTo reports whether an appointment in s may move to next.
// Completed is terminal; re-applying it is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.Valid() {
		return false
	}
	return s == StatusScheduled || next == StatusCompleted
}

// Appointment books one doctor for one patient at one instant. DoctorID and
// PatientID never change after creation.
type Appointment struct {
	ID        int64     `json:"id"`
	DoctorID  int64     `json:"doctor_id"`
	PatientID int64     `json:"patient_id"`
	Time      time.Time `json:"appointment_time"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Detail is an appointment joined with the names needed to display it.
type Detail struct {
	Appointment
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email"`
	PatientPhone string `json:"patient_phone"`
	DoctorName   string `json:"doctor_name"`
}

// Condition selects past or upcoming appointments relative to now.
type Condition string

const (
	ConditionAny    Condition = ""
	ConditionPast   Condition = "past"
	ConditionFuture Condition = "future"
)

func ParseCondition(s string) (Condition, error) {
	switch c := Condition(s); c {
	case ConditionAny, ConditionPast, ConditionFuture:
		return c, nil
	}
	return "", fmt.Errorf("%w: condition must be past or future", ErrInvalidInput)
}

// PatientFilter narrows a patient's own appointment list.
type PatientFilter struct {
	Condition  Condition
	DoctorName string
	// Now is the reference instant for Condition.
	Now time.Time
}

// WallClock drops the zone from t and keeps its calendar reading. All
// appointment instants are compared in this form.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// DayWindow returns [date 00:00, date+1 00:00) for the calendar day of date.
func DayWindow(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
