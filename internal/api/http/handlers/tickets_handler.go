package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/campusflow/campus-queue/internal/api/dto"
	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/service"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

const defaultHistoryLimit = 50

// TicketsHandler serves the student, guest and public queue endpoints.
type TicketsHandler struct {
	queue *service.QueueService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(queueService *service.QueueService) *TicketsHandler {
	return &TicketsHandler{queue: queueService}
}

// StudentJoin POST /api/student/join.
func (h *TicketsHandler) StudentJoin(c *fiber.Ctx) error {
	return h.join(c, domain.OriginApp)
}

// GuestJoin POST /api/guest/join. The guest token travels back in the
// X-Guest-Token header and the body.
func (h *TicketsHandler) GuestJoin(c *fiber.Ctx) error {
	return h.join(c, domain.OriginQR)
}

func (h *TicketsHandler) join(c *fiber.Ctx, origin domain.TicketOrigin) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.JoinRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.DepartmentID == "" {
		req.DepartmentID = departmentQuery(c)
	}
	if req.DepartmentID == "" && req.QRID == "" {
		return apperrors.NewValidationError("department_id or qr_id required", nil)
	}

	view, err := h.queue.JoinQueue(c.UserContext(), actor, service.JoinInput{
		DepartmentID: req.DepartmentID,
		Origin:       origin,
		GuestName:    req.GuestName,
		GuestPhone:   req.GuestPhone,
		EntryID:      req.QRID,
	})
	if err != nil {
		return err
	}

	resp := ticketViewResponse(view)
	if actor.Identity.IsGuest() {
		resp.GuestToken = actor.Identity.GuestToken
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": resp})
}

// Cancel POST /api/student/cancel and /api/guest/cancel.
func (h *TicketsHandler) Cancel(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	ticket, err := h.queue.CancelTicket(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Restore GET /api/student/ticket and /api/guest/restore. Data is null when
// the caller holds no active ticket.
func (h *TicketsHandler) Restore(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	view, err := h.queue.RestoreActiveTicket(c.UserContext(), actor)
	if err != nil {
		return err
	}
	if view == nil {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": ticketViewResponse(view)})
}

// History GET /api/student/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", defaultHistoryLimit)
	tickets, err := h.queue.History(c.UserContext(), actor, limit)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Current GET /api/queue/:departmentId/current.
func (h *TicketsHandler) Current(c *fiber.Ctx) error {
	current, err := h.queue.Current(c.UserContext(), c.Params("departmentId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CurrentServingResponse{
		DepartmentID:    current.DepartmentID,
		Number:          current.Number,
		IsOpen:          current.IsOpen,
		EmergencyActive: current.EmergencyActive,
		EmergencyReason: current.EmergencyReason,
	}})
}

// Crowd GET /api/queue/:departmentId/crowd.
func (h *TicketsHandler) Crowd(c *fiber.Ctx) error {
	estimate, err := h.queue.CrowdStatus(c.UserContext(), c.Params("departmentId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": estimate})
}

// ResolveEntry GET /api/guest/entry/:qrId.
func (h *TicketsHandler) ResolveEntry(c *fiber.Ctx) error {
	entry, err := h.queue.ResolveEntry(c.UserContext(), c.Params("qrId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.EntryResponse{
		QRID:       entry.QR.ID,
		ValidUntil: entry.QR.ValidUntil,
		Department: departmentResponse(entry.Department),
	}})
}

// Feedback POST /api/student/feedback.
func (h *TicketsHandler) Feedback(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.FeedbackRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	fb, err := h.queue.SubmitFeedback(c.UserContext(), actor, service.FeedbackInput{
		TicketID: req.TicketID,
		Options:  req.Options,
		Comment:  req.Comment,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FeedbackResponse{
		ID:           fb.ID,
		TicketID:     fb.TicketID,
		DepartmentID: fb.DepartmentID,
		Options:      fb.Options,
		Comment:      fb.Comment,
		CreatedAt:    fb.CreatedAt,
	}})
}
