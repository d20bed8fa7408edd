package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/campusflow/campus-queue/internal/api/dto"
	"github.com/campusflow/campus-queue/internal/auth"
	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/service"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

// AdminHandler manages departments and staff assignments.
type AdminHandler struct {
	staff *service.StaffService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(staffService *service.StaffService) *AdminHandler {
	return &AdminHandler{staff: staffService}
}

// ListDepartments GET /api/departments. Admins may pass ?all=true to include
// deactivated departments.
func (h *AdminHandler) ListDepartments(c *fiber.Ctx) error {
	includeInactive := false
	if actor, ok := auth.ActorFromContext(c); ok && actor.Role == domain.RoleAdmin {
		includeInactive = c.QueryBool("all", false)
	}
	departments, err := h.staff.ListDepartments(c.UserContext(), includeInactive)
	if err != nil {
		return err
	}
	items := make([]dto.DepartmentResponse, 0, len(departments))
	for i := range departments {
		items = append(items, departmentResponse(&departments[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateDepartment POST /api/admin/departments.
func (h *AdminHandler) CreateDepartment(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.CreateDepartmentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	department, err := h.staff.CreateDepartment(c.UserContext(), actor, req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": departmentResponse(department)})
}

// DeactivateDepartment POST /api/admin/departments/:id/deactivate.
func (h *AdminHandler) DeactivateDepartment(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	department, err := h.staff.DeactivateDepartment(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": departmentResponse(department)})
}

// AssignStaff POST /api/admin/staff/assign.
func (h *AdminHandler) AssignStaff(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.AssignStaffRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.UserID == "" || req.DepartmentID == "" {
		return apperrors.NewValidationError("user_id and department_id required", nil)
	}
	user, err := h.staff.AssignStaff(c.UserContext(), actor, req.UserID, req.DepartmentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

// CreateStaff POST /api/admin/staff.
func (h *AdminHandler) CreateStaff(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req dto.CreateStaffRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Name) == "" || req.Email == "" || req.Password == "" || req.DepartmentID == "" {
		return apperrors.NewValidationError("name, email, password, department_id required", nil)
	}
	user, err := h.staff.CreateStaffMember(c.UserContext(), actor, req.Name, req.Email, req.Password, req.DepartmentID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": userResponse(user)})
}

// ListStaff GET /api/admin/staff.
func (h *AdminHandler) ListStaff(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	users, err := h.staff.ListStaff(c.UserContext(), actor)
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, userResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
