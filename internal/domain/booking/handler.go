package booking

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts booking routes on the authenticated group. Doctors
// manage availability and close out appointments; patients book and cancel.
func (h *Handler) RegisterRoutes(protected *echo.Group) {
	protected.GET("/slots", h.ListSlots)
	protected.GET("/appointments", h.ListAppointments)
	protected.GET("/appointments/:id", h.GetAppointment)
	protected.POST("/appointments", h.BookAppointment, auth.RequireRole(auth.RolePatient))
	protected.POST("/appointments/:id/cancel", h.CancelAppointment)

	doctor := protected.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("/availability", h.CreateAvailability)
	doctor.GET("/availability", h.ListAvailability)
	doctor.PUT("/availability/:id", h.UpdateAvailability)
	doctor.DELETE("/availability/:id", h.DeleteAvailability)
	doctor.POST("/slots", h.CreateSlot)
	doctor.DELETE("/slots/:id", h.DeleteSlot)
	doctor.POST("/slots/generate", h.GenerateSlots)
	doctor.POST("/slots/:id/block", h.BlockSlot)
	doctor.POST("/slots/:id/unblock", h.UnblockSlot)
	doctor.POST("/appointments/:id/complete", h.CompleteAppointment)
	doctor.POST("/appointments/:id/no-show", h.MarkNoShow)
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
	}
	return id, nil
}

func parseDateParam(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		// Accept bare dates too.
		t, err = time.Parse("2006-01-02", v)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+" timestamp")
		}
	}
	return &t, nil
}

// -- Availability --

func (h *Handler) CreateAvailability(c echo.Context) error {
	doctorID, err := callerID(c)
	if err != nil {
		return err
	}

	var a Availability
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.DoctorID = doctorID

	if err := h.svc.CreateAvailability(c.Request().Context(), &a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAvailability(c echo.Context) error {
	doctorID, err := callerID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListAvailability(c.Request().Context(), doctorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Availability{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateAvailability(c echo.Context) error {
	doctorID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	existing, err := h.svc.GetAvailability(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "availability not found")
	}
	if existing.DoctorID != doctorID {
		return echo.NewHTTPError(http.StatusForbidden, "not your availability")
	}

	var a Availability
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.ID = id
	a.DoctorID = doctorID

	if err := h.svc.UpdateAvailability(c.Request().Context(), &a); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "availability not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAvailability(c echo.Context) error {
	doctorID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	existing, err := h.svc.GetAvailability(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "availability not found")
	}
	if existing.DoctorID != doctorID {
		return echo.NewHTTPError(http.StatusForbidden, "not your availability")
	}

	if err := h.svc.DeleteAvailability(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Slots --

type generateSlotsRequest struct {
	From string `json:"from"` // "2026-09-01"
	To   string `json:"to"`
}

func (h *Handler) GenerateSlots(c echo.Context) error {
	doctorID, err := callerID(c)
	if err != nil {
		return err
	}

	var req generateSlotsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to date")
	}

	created, err := h.svc.GenerateSlots(c.Request().Context(), doctorID, from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if created == nil {
		created = []*Slot{}
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListSlots(c echo.Context) error {
	pg := pagination.FromContext(c)

	f := SlotFilter{Status: c.QueryParam("status")}
	if f.Status == "" {
		f.Status = SlotFree
	}
	if d := c.QueryParam("doctor_id"); d != "" {
		doctorID, err := uuid.Parse(d)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		f.DoctorID = doctorID
	}

	var err error
	if f.From, err = parseDateParam(c, "from"); err != nil {
		return err
	}
	if f.To, err = parseDateParam(c, "to"); err != nil {
		return err
	}

	items, total, err := h.svc.ListSlots(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Slot{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateSlot(c echo.Context) error {
	doctorID, err := callerID(c)
	if err != nil {
		return err
	}

	var slot Slot
	if err := c.Bind(&slot); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	slot.DoctorID = doctorID

	if err := h.svc.CreateSlot(c.Request().Context(), &slot); err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			return echo.NewHTTPError(http.StatusConflict, "slot overlaps an existing slot")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, slot)
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	doctorID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	slot, err := h.svc.GetSlot(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "slot not found")
	}
	if slot.DoctorID != doctorID {
		return echo.NewHTTPError(http.StatusForbidden, "not your slot")
	}

	if err := h.svc.DeleteSlot(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			return echo.NewHTTPError(http.StatusConflict, "slot has an appointment on it")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) BlockSlot(c echo.Context) error {
	return h.transitionSlot(c, h.svc.BlockSlot)
}

func (h *Handler) UnblockSlot(c echo.Context) error {
	return h.transitionSlot(c, h.svc.UnblockSlot)
}

func (h *Handler) transitionSlot(c echo.Context, fn func(ctx context.Context, id uuid.UUID) error) error {
	doctorID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	slot, err := h.svc.GetSlot(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "slot not found")
	}
	if slot.DoctorID != doctorID {
		return echo.NewHTTPError(http.StatusForbidden, "not your slot")
	}

	if err := fn(c.Request().Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "slot not found")
		case errors.Is(err, ErrSlotUnavailable):
			return echo.NewHTTPError(http.StatusConflict, "slot is not in the required status")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	slot, err = h.svc.GetSlot(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, slot)
}

// -- Appointments --

type bookRequest struct {
	SlotID string  `json:"slot_id"`
	Reason *string `json:"reason"`
}

func (h *Handler) BookAppointment(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}

	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid slot_id")
	}

	appt, err := h.svc.BookAppointment(c.Request().Context(), patientID, slotID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "slot not found")
		case errors.Is(err, ErrSlotUnavailable):
			return echo.NewHTTPError(http.StatusConflict, ErrSlotUnavailable.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, appt)
}

type cancelRequest struct {
	Reason *string `json:"reason"`
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	appt, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	roles := auth.RolesFromContext(c.Request().Context())
	if appt.PatientID != caller && appt.DoctorID != caller && !auth.HasRole(roles, auth.RoleAdmin) {
		return echo.NewHTTPError(http.StatusForbidden, "not your appointment")
	}

	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	appt, err = h.svc.CancelAppointment(c.Request().Context(), id, req.Reason)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return echo.NewHTTPError(http.StatusConflict, "appointment is not booked")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	return h.closeAppointment(c, h.svc.CompleteAppointment)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	return h.closeAppointment(c, h.svc.MarkNoShow)
}

func (h *Handler) closeAppointment(c echo.Context, fn func(ctx context.Context, id uuid.UUID) (*Appointment, error)) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	appt, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	roles := auth.RolesFromContext(c.Request().Context())
	if appt.DoctorID != caller && !auth.HasRole(roles, auth.RoleAdmin) {
		return echo.NewHTTPError(http.StatusForbidden, "not your appointment")
	}

	appt, err = fn(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return echo.NewHTTPError(http.StatusConflict, "appointment is not booked")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	appt, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	roles := auth.RolesFromContext(c.Request().Context())
	if appt.PatientID != caller && appt.DoctorID != caller && !auth.HasRole(roles, auth.RoleAdmin) {
		return echo.NewHTTPError(http.StatusForbidden, "not your appointment")
	}
	return c.JSON(http.StatusOK, appt)
}

// ListAppointments returns the caller's appointments: their own bookings for
// patients, their schedule for doctors. Admins pick a doctor_id or patient_id
// to inspect.
func (h *Handler) ListAppointments(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	f := AppointmentFilter{Status: c.QueryParam("status")}
	if f.From, err = parseDateParam(c, "from"); err != nil {
		return err
	}
	if f.To, err = parseDateParam(c, "to"); err != nil {
		return err
	}

	roles := auth.RolesFromContext(c.Request().Context())
	var items []*Appointment
	var total int
	switch {
	case auth.HasRole(roles, auth.RoleAdmin):
		if d := c.QueryParam("doctor_id"); d != "" {
			doctorID, perr := uuid.Parse(d)
			if perr != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
			}
			items, total, err = h.svc.ListAppointmentsByDoctor(c.Request().Context(), doctorID, f, pg.Limit, pg.Offset)
		} else if p := c.QueryParam("patient_id"); p != "" {
			patientID, perr := uuid.Parse(p)
			if perr != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
			}
			items, total, err = h.svc.ListAppointmentsByPatient(c.Request().Context(), patientID, f, pg.Limit, pg.Offset)
		} else {
			return echo.NewHTTPError(http.StatusBadRequest, "doctor_id or patient_id is required")
		}
	case auth.HasRole(roles, auth.RoleDoctor):
		items, total, err = h.svc.ListAppointmentsByDoctor(c.Request().Context(), caller, f, pg.Limit, pg.Offset)
	default:
		items, total, err = h.svc.ListAppointmentsByPatient(c.Request().Context(), caller, f, pg.Limit, pg.Offset)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
