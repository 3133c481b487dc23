package appointment

import "errors"

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("time slot already booked for this doctor")
	ErrPatientMismatch     = errors.New("patient does not match the appointment")
	ErrUnauthorized        = errors.New("caller does not own the appointment")
	ErrInvalidTransition   = errors.New("completed appointments cannot be reopened")
	ErrSlotNotOffered      = errors.New("doctor does not offer this time slot")
	ErrInvalidInput        = errors.New("invalid input")
)

// Outcome is the result of one engine operation. OutcomeOK covers every
// success (created, updated, cancelled, status set).
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomePatientNotFound
	OutcomeDoctorNotFound
	OutcomeNotFound
	OutcomeSlotTaken
	OutcomePatientMismatch
	OutcomeUnauthorized
	OutcomeInvalidTransition
	OutcomeSlotNotOffered
	OutcomeInvalid
	OutcomeInternal
)

var outcomeNames = map[Outcome]string{
	OutcomeOK:                "ok",
	OutcomePatientNotFound:   "patient_not_found",
	OutcomeDoctorNotFound:    "doctor_not_found",
	OutcomeNotFound:          "not_found",
	OutcomeSlotTaken:         "slot_taken",
	OutcomePatientMismatch:   "patient_mismatch",
	OutcomeUnauthorized:      "unauthorized",
	OutcomeInvalidTransition: "invalid_transition",
	OutcomeSlotNotOffered:    "slot_not_offered",
	OutcomeInvalid:           "invalid",
	OutcomeInternal:          "internal_error",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// OutcomeOf classifies err. Anything that is not one of the package's
// sentinel errors is internal.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrPatientNotFound):
		return OutcomePatientNotFound
	case errors.Is(err, ErrDoctorNotFound):
		return OutcomeDoctorNotFound
	case errors.Is(err, ErrAppointmentNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrSlotTaken):
		return OutcomeSlotTaken
	case errors.Is(err, ErrPatientMismatch):
		return OutcomePatientMismatch
	case errors.Is(err, ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, ErrInvalidTransition):
		return OutcomeInvalidTransition
	case errors.Is(err, ErrSlotNotOffered):
		return OutcomeSlotNotOffered
	case errors.Is(err, ErrInvalidInput):
		return OutcomeInvalid
	}
	return OutcomeInternal
}

// Kind is the coarse error taxonomy callers branch on.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindConflict
	KindUnauthorized
	KindInvalid
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalid:
		return "invalid"
	}
	return "internal"
}

func KindOf(err error) Kind {
	switch OutcomeOf(err) {
	case OutcomeOK:
		return KindNone
	case OutcomePatientNotFound, OutcomeDoctorNotFound, OutcomeNotFound:
		return KindNotFound
	case OutcomeSlotTaken, OutcomePatientMismatch:
		return KindConflict
	case OutcomeUnauthorized:
		return KindUnauthorized
	case OutcomeInvalidTransition, OutcomeSlotNotOffered, OutcomeInvalid:
		return KindInvalid
	}
	return KindInternal
}
