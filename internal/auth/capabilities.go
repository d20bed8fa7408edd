package auth

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/campusflow/campus-queue/internal/domain"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

// Capability names an operation class guarded by role.
type Capability string

const (
	CapJoinQueue         Capability = "queue.join"
	CapCancelTicket      Capability = "ticket.cancel"
	CapViewOwnTicket     Capability = "ticket.view_own"
	CapViewHistory       Capability = "ticket.history"
	CapRequestEmergency  Capability = "emergency.request"
	CapOperateQueue      Capability = "queue.operate"
	CapWalkIn            Capability = "queue.walk_in"
	CapReviewEmergency   Capability = "emergency.review"
	CapRunEmergency      Capability = "emergency.run"
	CapManageDepartments Capability = "department.manage"
	CapAssignStaff       Capability = "staff.assign"
	CapLogout            Capability = "session.logout"
	CapViewProfile       Capability = "session.profile"
	CapIssueEntry        Capability = "entry.issue"
	CapSubmitFeedback    Capability = "ticket.feedback"
)

var capabilityRoles = map[Capability][]domain.Role{
	CapJoinQueue:         {domain.RoleStudent, domain.RoleGuest},
	CapCancelTicket:      {domain.RoleStudent, domain.RoleGuest},
	CapViewOwnTicket:     {domain.RoleStudent, domain.RoleGuest},
	CapViewHistory:       {domain.RoleStudent},
	CapRequestEmergency:  {domain.RoleStudent},
	CapOperateQueue:      {domain.RoleStaff},
	CapWalkIn:            {domain.RoleStaff},
	CapReviewEmergency:   {domain.RoleStaff},
	CapRunEmergency:      {domain.RoleStaff},
	CapManageDepartments: {domain.RoleAdmin},
	CapAssignStaff:       {domain.RoleAdmin},
	CapLogout:            {domain.RoleStudent, domain.RoleStaff, domain.RoleAdmin},
	CapViewProfile:       {domain.RoleStudent, domain.RoleStaff, domain.RoleAdmin},
	CapIssueEntry:        {domain.RoleStaff},
	CapSubmitFeedback:    {domain.RoleStudent},
}

// Allows reports whether role holds capability.
func Allows(role domain.Role, capability Capability) bool {
	for _, r := range capabilityRoles[capability] {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize returns domain.ErrForbidden unless the actor holds capability.
func Authorize(actor domain.Actor, capability Capability) error {
	if !Allows(actor.Role, capability) {
		return fmt.Errorf("%w: %s requires %v", domain.ErrForbidden, capability, capabilityRoles[capability])
	}
	return nil
}

// Require rejects requests whose actor lacks capability. It expects an
// authenticating middleware earlier in the chain.
func Require(capability Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if err := Authorize(actor, capability); err != nil {
			return apperrors.Wrap("FORBIDDEN", fiber.StatusForbidden, err)
		}
		return c.Next()
	}
}
