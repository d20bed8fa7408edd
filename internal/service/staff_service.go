package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/auth"
	"github.com/campusflow/campus-queue/internal/config"
	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/store"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

// StaffService manages departments and staff accounts.
type StaffService struct {
	engine
	users      store.UserStore
	bcryptCost int
	avgMinutes int
}

// NewStaffService constructs the service.
func NewStaffService(cfg config.AuthConfig, deps Dependencies) *StaffService {
	avg := deps.Queue.DefaultAverageServiceMinutes
	if avg <= 0 {
		avg = domain.DefaultAverageServiceMinutes
	}
	return &StaffService{
		engine:     newEngine(deps),
		users:      deps.Users,
		bcryptCost: cfg.BcryptCost,
		avgMinutes: avg,
	}
}

// CreateDepartment creates a department together with its queue.
func (s *StaffService) CreateDepartment(ctx context.Context, actor domain.Actor, name, description string) (*domain.Department, error) {
	dept, err := s.createDepartment(ctx, actor, name, description)
	return dept, s.finish("create_department", err)
}

func (s *StaffService) createDepartment(ctx context.Context, actor domain.Actor, name, description string) (*domain.Department, error) {
	if err := auth.Authorize(actor, auth.CapManageDepartments); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("department name is required", nil)
	}

	dept := &domain.Department{
		Name:        name,
		Description: strings.TrimSpace(description),
		IsActive:    true,
		CreatedBy:   actor.Identity.UserID,
	}
	queue := domain.NewQueue("")
	queue.AverageServiceMinutes = s.avgMinutes
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetDepartmentByName(ctx, name); err == nil {
			return domain.ErrDepartmentExists
		} else if !errors.Is(err, domain.ErrDepartmentNotFound) {
			return err
		}
		return tx.CreateDepartment(ctx, dept, queue)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("department created", zap.String("department_id", dept.ID), zap.String("name", dept.Name))
	return dept, nil
}

// DeactivateDepartment hides a department from join flows and public lists.
func (s *StaffService) DeactivateDepartment(ctx context.Context, actor domain.Actor, departmentID string) (*domain.Department, error) {
	dept, err := s.deactivate(ctx, actor, departmentID)
	return dept, s.finish("deactivate_department", err)
}

func (s *StaffService) deactivate(ctx context.Context, actor domain.Actor, departmentID string) (*domain.Department, error) {
	if err := auth.Authorize(actor, auth.CapManageDepartments); err != nil {
		return nil, err
	}
	var dept *domain.Department
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockQueue(ctx, departmentID); err != nil {
			return err
		}
		var err error
		dept, err = tx.GetDepartment(ctx, departmentID)
		if err != nil {
			return err
		}
		dept.IsActive = false
		return tx.UpdateDepartment(ctx, dept)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("department deactivated", zap.String("department_id", departmentID))
	return dept, nil
}

// ListDepartments returns departments; only active ones unless includeInactive.
func (s *StaffService) ListDepartments(ctx context.Context, includeInactive bool) ([]domain.Department, error) {
	depts, err := s.store.ListDepartments(ctx, !includeInactive)
	return depts, s.finish("list_departments", err)
}

// CreateStaffMember adds a staff account assigned to departmentID.
func (s *StaffService) CreateStaffMember(ctx context.Context, actor domain.Actor, name, email, password, departmentID string) (*domain.User, error) {
	user, err := s.createStaffMember(ctx, actor, name, email, password, departmentID)
	return user, s.finish("create_staff", err)
}

func (s *StaffService) createStaffMember(ctx context.Context, actor domain.Actor, name, email, password, departmentID string) (*domain.User, error) {
	if err := auth.Authorize(actor, auth.CapAssignStaff); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := s.requireActiveDepartment(ctx, departmentID); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	dept := departmentID
	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleStaff,
		DepartmentID: &dept,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("staff member created", zap.String("user_id", user.ID), zap.String("department_id", departmentID))
	return user, nil
}

// AssignStaff moves an account to departmentID, promoting students to staff.
func (s *StaffService) AssignStaff(ctx context.Context, actor domain.Actor, userID, departmentID string) (*domain.User, error) {
	user, err := s.assignStaff(ctx, actor, userID, departmentID)
	return user, s.finish("assign_staff", err)
}

func (s *StaffService) assignStaff(ctx context.Context, actor domain.Actor, userID, departmentID string) (*domain.User, error) {
	if err := auth.Authorize(actor, auth.CapAssignStaff); err != nil {
		return nil, err
	}
	if err := s.requireActiveDepartment(ctx, departmentID); err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == domain.RoleAdmin {
		return nil, apperrors.NewConflict("administrators cannot be assigned to a department", map[string]any{"user_id": userID})
	}
	dept := departmentID
	user.Role = domain.RoleStaff
	user.DepartmentID = &dept
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("staff assigned", zap.String("user_id", user.ID), zap.String("department_id", departmentID))
	return user, nil
}

// StaffProfile is a staff account with the department it works for.
type StaffProfile struct {
	User       *domain.User
	Department *domain.Department
}

// Profile returns the staff member's account and department. Department is
// nil while the account is unassigned.
func (s *StaffService) Profile(ctx context.Context, actor domain.Actor) (*StaffProfile, error) {
	profile, err := s.profile(ctx, actor)
	return profile, s.finish("staff_profile", err)
}

func (s *StaffService) profile(ctx context.Context, actor domain.Actor) (*StaffProfile, error) {
	if err := auth.Authorize(actor, auth.CapOperateQueue); err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, actor.Identity.UserID)
	if err != nil {
		return nil, err
	}
	profile := &StaffProfile{User: user}
	if user.DepartmentID != nil && *user.DepartmentID != "" {
		dept, err := s.store.GetDepartment(ctx, *user.DepartmentID)
		if err != nil {
			return nil, err
		}
		profile.Department = dept
	}
	return profile, nil
}

// ListStaff returns every staff account.
func (s *StaffService) ListStaff(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if err := auth.Authorize(actor, auth.CapAssignStaff); err != nil {
		return nil, s.finish("list_staff", err)
	}
	users, err := s.users.ListUsersByRole(ctx, domain.RoleStaff)
	return users, s.finish("list_staff", err)
}

func (s *StaffService) requireActiveDepartment(ctx context.Context, departmentID string) error {
	dept, err := s.store.GetDepartment(ctx, departmentID)
	if err != nil {
		return err
	}
	if !dept.IsActive {
		return domain.ErrDepartmentInactive
	}
	return nil
}
