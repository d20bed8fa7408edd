package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campusflow/campus-queue/internal/api/dto"
	"github.com/campusflow/campus-queue/internal/auth"
	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/service"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

func actorOf(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

// staffDepartmentOf returns the staff member's department or "" when
// unassigned; the service rejects the empty id.
func staffDepartmentOf(actor domain.Actor) string {
	if actor.DepartmentID == nil {
		return ""
	}
	return *actor.DepartmentID
}

// departmentQuery accepts both spellings of the department query parameter.
func departmentQuery(c *fiber.Ctx) string {
	if id := c.Query("departmentId"); id != "" {
		return id
	}
	return c.Query("department_id")
}

func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func ticketResponse(t *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:           t.ID,
		DepartmentID: t.DepartmentID,
		Number:       t.Number,
		State:        t.State,
		Origin:       t.Origin,
		GuestName:    t.GuestName,
		CreatedAt:    t.CreatedAt,
		CalledAt:     t.CalledAt,
		ServedAt:     t.ServedAt,
	}
}

func ticketViewResponse(v *service.TicketView) dto.TicketViewResponse {
	return dto.TicketViewResponse{
		Ticket:               ticketResponse(v.Ticket),
		Position:             v.Position,
		EstimatedWaitMinutes: v.EstimatedWaitMinutes,
	}
}

func queueResponse(q *domain.Queue) dto.QueueResponse {
	return dto.QueueResponse{
		DepartmentID:     q.DepartmentID,
		IsOpen:           q.IsOpen,
		Capacity:         q.Capacity,
		ClosedByCapacity: q.ClosedByCapacity,
		EmergencyActive:  q.EmergencyActive,
	}
}

func emergencyResponse(e *domain.Emergency) dto.EmergencyResponse {
	return dto.EmergencyResponse{
		ID:           e.ID,
		DepartmentID: e.DepartmentID,
		RequesterID:  e.RequesterID,
		Reason:       e.Reason,
		Proof:        e.Proof,
		Note:         e.Note,
		State:        e.State,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func departmentResponse(d *domain.Department) dto.DepartmentResponse {
	return dto.DepartmentResponse{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt,
	}
}

func userResponse(u *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         string(u.Role),
		DepartmentID: u.DepartmentID,
	}
}
