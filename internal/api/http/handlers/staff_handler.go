package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/campusflow/campus-queue/internal/api/dto"
	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/service"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

// StaffHandler exposes the queue controls of a staff member's department.
type StaffHandler struct {
	queue *service.QueueService
	staff *service.StaffService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(queueService *service.QueueService, staffService *service.StaffService) *StaffHandler {
	return &StaffHandler{queue: queueService, staff: staffService}
}

// CallNext POST /api/staff/call-next.
func (h *StaffHandler) CallNext(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	ticket, err := h.queue.CallNext(c.UserContext(), actor, staffDepartmentOf(actor))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Complete POST /api/staff/complete.
func (h *StaffHandler) Complete(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	ticket, err := h.queue.CompleteCurrent(c.UserContext(), actor, staffDepartmentOf(actor))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ToggleQueue POST /api/staff/toggle-queue.
func (h *StaffHandler) ToggleQueue(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	queue, err := h.queue.ToggleQueue(c.UserContext(), actor, staffDepartmentOf(actor))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": queueResponse(queue)})
}

// SetLimit POST /api/staff/set-limit.
func (h *StaffHandler) SetLimit(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.SetLimitRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	queue, err := h.queue.SetCapacity(c.UserContext(), actor, staffDepartmentOf(actor), req.Limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": queueResponse(queue)})
}

// IncreaseLimit POST /api/staff/increase-limit.
func (h *StaffHandler) IncreaseLimit(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.IncreaseLimitRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Amount <= 0 {
		return apperrors.NewValidationError("amount must be positive", map[string]any{"amount": req.Amount})
	}
	queue, err := h.queue.IncreaseCapacity(c.UserContext(), actor, staffDepartmentOf(actor), req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": queueResponse(queue)})
}

// WalkIn POST /api/staff/walk-in issues a ticket for a guest at the desk.
func (h *StaffHandler) WalkIn(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.WalkInRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	view, err := h.queue.JoinQueue(c.UserContext(), actor, service.JoinInput{
		DepartmentID: staffDepartmentOf(actor),
		Origin:       domain.OriginStaff,
		GuestName:    req.GuestName,
		GuestPhone:   req.GuestPhone,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketViewResponse(view)})
}

// QueueStats GET /api/staff/queue-stats.
func (h *StaffHandler) QueueStats(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	stats, err := h.queue.Stats(c.UserContext(), actor, staffDepartmentOf(actor))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.QueueStatsResponse{
		DepartmentID:     stats.DepartmentID,
		IsOpen:           stats.IsOpen,
		ClosedByCapacity: stats.ClosedByCapacity,
		Capacity:         stats.Capacity,
		EmergencyActive:  stats.EmergencyActive,
		EmergencyReason:  stats.EmergencyReason,
		CurrentNumber:    stats.CurrentNumber,
		Total:            stats.Total,
		Served:           stats.Served,
		NoShow:           stats.NoShow,
		Waiting:          stats.Waiting,
		Remaining:        stats.Remaining,
	}})
}

// Profile GET /api/staff/me.
func (h *StaffHandler) Profile(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	profile, err := h.staff.Profile(c.UserContext(), actor)
	if err != nil {
		return err
	}
	resp := dto.StaffProfileResponse{User: userResponse(profile.User)}
	if profile.Department != nil {
		dept := departmentResponse(profile.Department)
		resp.Department = &dept
	}
	return c.JSON(fiber.Map{"data": resp})
}

// DepartmentQR GET /api/staff/department/qr.
func (h *StaffHandler) DepartmentQR(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	entry, err := h.queue.IssueDepartmentQR(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DepartmentQRResponse{
		QRID:         entry.QR.ID,
		DepartmentID: entry.QR.DepartmentID,
		ValidUntil:   entry.QR.ValidUntil,
		EntryPath:    "/api/guest/entry/" + entry.QR.ID,
	}})
}
