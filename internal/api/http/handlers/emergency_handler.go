package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/campusflow/campus-queue/internal/api/dto"
	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/service"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

// EmergencyHandler serves the emergency request workflow.
type EmergencyHandler struct {
	emergencies *service.EmergencyService
}

// NewEmergencyHandler constructs handler.
func NewEmergencyHandler(emergencyService *service.EmergencyService) *EmergencyHandler {
	return &EmergencyHandler{emergencies: emergencyService}
}

// Request POST /api/student/emergency.
func (h *EmergencyHandler) Request(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.EmergencyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.DepartmentID) == "" {
		return apperrors.NewValidationError("department_id required", nil)
	}
	emergency, err := h.emergencies.Request(c.UserContext(), actor, service.EmergencyInput{
		DepartmentID: req.DepartmentID,
		Reason:       req.Reason,
		Proof:        req.Proof,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": emergencyResponse(emergency)})
}

// Status GET /api/emergency/status?departmentId=.
func (h *EmergencyHandler) Status(c *fiber.Ctx) error {
	departmentID := departmentQuery(c)
	if departmentID == "" {
		return apperrors.NewValidationError("departmentId required", nil)
	}
	status, err := h.emergencies.Status(c.UserContext(), departmentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.EmergencyStatusResponse{
		DepartmentID: status.DepartmentID,
		Active:       status.Active,
		Reason:       status.Reason,
	}})
}

// ListPending GET /api/staff/emergencies.
func (h *EmergencyHandler) ListPending(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	pending, err := h.emergencies.ListPending(c.UserContext(), actor)
	if err != nil {
		return err
	}
	items := make([]dto.EmergencyResponse, 0, len(pending))
	for i := range pending {
		items = append(items, emergencyResponse(&pending[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CountPending GET /api/staff/emergencies/count.
func (h *EmergencyHandler) CountPending(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	count, err := h.emergencies.CountPending(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"count": count}})
}

// Approve POST /api/staff/emergencies/:id/approve.
func (h *EmergencyHandler) Approve(c *fiber.Ctx) error {
	return h.review(c, h.emergencies.Approve)
}

// Reject POST /api/staff/emergencies/:id/reject.
func (h *EmergencyHandler) Reject(c *fiber.Ctx) error {
	return h.review(c, h.emergencies.Reject)
}

func (h *EmergencyHandler) review(c *fiber.Ctx, decide func(context.Context, domain.Actor, string) (*domain.Emergency, error)) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	emergency, err := decide(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": emergencyResponse(emergency)})
}

// Start POST /api/staff/emergency/start.
func (h *EmergencyHandler) Start(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.StartEmergencyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	emergency, err := h.emergencies.Start(c.UserContext(), actor, service.StartInput{
		RequestID: req.RequestID,
		Note:      req.Note,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": emergencyResponse(emergency)})
}

// End POST /api/staff/emergency/end. Data is null when the flag was set
// without a request behind it.
func (h *EmergencyHandler) End(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	emergency, err := h.emergencies.End(c.UserContext(), actor)
	if err != nil {
		return err
	}
	if emergency == nil {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": emergencyResponse(emergency)})
}
