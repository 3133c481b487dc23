package prescription

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/scheduler/internal/domain/appointment"
	"github.com/clinic/scheduler/internal/platform/auth"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctorOnly := auth.RequireRole(auth.RoleDoctor)
	api.POST("/prescriptions", h.Create, doctorOnly)
	api.GET("/prescriptions/:appointmentId", h.ForAppointment, doctorOnly)
}

func (h *Handler) Create(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rx, err := h.svc.Create(c.Request().Context(), p.ID, in)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, rx)
}

func (h *Handler) ForAppointment(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(c.Param("appointmentId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointmentId")
	}
	items, err := h.svc.ForAppointment(c.Request().Context(), p.ID, id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) httpError(err error) error {
	if errors.Is(err, ErrInvalid) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if appointment.OutcomeOf(err) == appointment.OutcomeInternal {
		h.logger.Error().Err(err).Msg("prescription request failed")
	}
	return appointment.HTTPError(err)
}
