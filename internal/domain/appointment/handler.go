package appointment

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/scheduler/internal/platform/auth"
)

const dateLayout = "2006-01-02"

// Accepted layouts for appointment_time. Zones are accepted and then dropped.
var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the scheduling endpoints on api. writeMW wraps the
// patient booking writes only, typically with the booking rate limiter.
func (h *Handler) RegisterRoutes(api *echo.Group, writeMW ...echo.MiddlewareFunc) {
	api.GET("/doctors/:id/availability", h.Availability)

	patientMW := append([]echo.MiddlewareFunc{auth.RequireRole(auth.RolePatient)}, writeMW...)
	patient := api.Group("", patientMW...)
	patient.POST("/appointments", h.Book)
	patient.PUT("/appointments/:id", h.Update)
	patient.DELETE("/appointments/:id", h.Cancel)

	api.GET("/patients/me/appointments", h.ListMine, auth.RequireRole(auth.RolePatient))
	api.GET("/appointments", h.ListForDoctor, auth.RequireRole(auth.RoleDoctor))
	api.PATCH("/appointments/:id/status", h.SetStatus, auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin))
}

type bookRequest struct {
	DoctorID        int64  `json:"doctor_id"`
	AppointmentTime string `json:"appointment_time"`
	Reason          string `json:"reason"`
}

type updateRequest struct {
	AppointmentTime string  `json:"appointment_time"`
	Status          *Status `json:"status"`
	Reason          string  `json:"reason"`
}

type statusRequest struct {
	Status *Status `json:"status"`
}

type availabilityResponse struct {
	DoctorID       int64    `json:"doctor_id"`
	Date           string   `json:"date"`
	AvailableSlots []string `json:"available_slots"`
}

// Availability lists the free slot labels of a doctor on a day.
func (h *Handler) Availability(c echo.Context) error {
	doctorID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	date, err := time.Parse(dateLayout, c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	labels, err := h.svc.Availability(c.Request().Context(), doctorID, date)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, availabilityResponse{
		DoctorID:       doctorID,
		Date:           date.Format(dateLayout),
		AvailableSlots: labels,
	})
}

func (h *Handler) Book(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DoctorID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}
	at, err := parseTime(req.AppointmentTime)
	if err != nil {
		return err
	}

	a := &Appointment{DoctorID: req.DoctorID, PatientID: p.ID, Time: at, Reason: req.Reason}
	if err := h.svc.Book(c.Request().Context(), a, RequireOfferedSlot()); err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

// Update reschedules one of the caller's appointments. A missing status keeps
// the current one.
func (h *Handler) Update(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	at, err := parseTime(req.AppointmentTime)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	existing, err := h.svc.Get(ctx, id)
	if err != nil {
		return HTTPError(err)
	}
	status := existing.Status
	if req.Status != nil {
		status = *req.Status
	}
	// a foreign appointment is reported as a mismatch, not as an off-grid time
	if existing.PatientID == p.ID {
		if err := h.checkOffered(c, existing.DoctorID, at); err != nil {
			return err
		}
	}

	a := &Appointment{ID: id, PatientID: p.ID, Time: at, Status: status, Reason: req.Reason}
	if err := h.svc.Update(ctx, a); err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Cancel(c.Request().Context(), id, p.ID); err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "cancelled": true})
}

// SetStatus lets a doctor close one of their own appointments. Admins may
// change any.
func (h *Handler) SetStatus(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil || req.Status == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}

	ctx := c.Request().Context()
	existing, err := h.svc.Get(ctx, id)
	if err != nil {
		return HTTPError(err)
	}
	if p.Role == auth.RoleDoctor && existing.DoctorID != p.ID {
		return HTTPError(ErrUnauthorized)
	}
	if err := h.svc.SetStatus(ctx, id, *req.Status); err != nil {
		return HTTPError(err)
	}
	existing.Status = *req.Status
	return c.JSON(http.StatusOK, existing)
}

// ListForDoctor lists the calling doctor's appointments for one day, today
// when no date is given.
func (h *Handler) ListForDoctor(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	date := WallClock(time.Now())
	if raw := c.QueryParam("date"); raw != "" {
		if date, err = time.Parse(dateLayout, raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
	}
	items, err := h.svc.AppointmentsForDoctor(c.Request().Context(), p.ID, date, c.QueryParam("patient_name"))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListMine(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	cond, err := ParseCondition(strings.ToLower(c.QueryParam("condition")))
	if err != nil {
		return HTTPError(err)
	}
	items, err := h.svc.AppointmentsForPatient(c.Request().Context(), p.ID, PatientFilter{
		Condition:  cond,
		DoctorName: c.QueryParam("doctor"),
	})
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) checkOffered(c echo.Context, doctorID int64, at time.Time) error {
	ok, err := h.svc.SlotOffered(c.Request().Context(), doctorID, at)
	if err != nil {
		return HTTPError(err)
	}
	if !ok {
		return HTTPError(ErrSlotNotOffered)
	}
	return nil
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "appointment_time is required")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "appointment_time must be YYYY-MM-DDTHH:MM[:SS]")
}

// HTTPError maps an engine error onto a response. Internal errors were
// already logged by the service and are not echoed to the client.
func HTTPError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	switch OutcomeOf(err) {
	case OutcomePatientNotFound, OutcomeDoctorNotFound, OutcomeNotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case OutcomeSlotTaken, OutcomePatientMismatch:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case OutcomeUnauthorized:
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case OutcomeInvalidTransition, OutcomeInvalid:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case OutcomeSlotNotOffered:
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
