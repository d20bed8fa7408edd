package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/auth"
	"github.com/campusflow/campus-queue/internal/config"
	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/store"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

// AuthService coordinates registration, login and logout.
type AuthService struct {
	engine
	users      store.UserStore
	tokenMgr   *auth.TokenManager
	blacklist  auth.TokenBlacklist
	bcryptCost int
	staleAfter time.Duration
}

// Session is the result of a successful login or registration.
type Session struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps Dependencies, tokens *auth.TokenManager, blacklist auth.TokenBlacklist) *AuthService {
	return &AuthService{
		engine:     newEngine(deps),
		users:      deps.Users,
		tokenMgr:   tokens,
		blacklist:  blacklist,
		bcryptCost: cfg.BcryptCost,
		staleAfter: deps.Queue.StaleAfter,
	}
}

// Register creates a student account and signs it in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	session, err := s.register(ctx, name, email, password)
	return session, s.finish("register", err)
}

func (s *AuthService) register(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleStudent,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("student registered", zap.String("user_id", user.ID))
	return s.issue(user)
}

// Login authenticates an account. A staff member whose queue was left running
// past the stale window gets it reset before the session starts.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	session, err := s.login(ctx, email, password)
	return session, s.finish("login", err)
}

func (s *AuthService) login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredential
	}
	if err != nil {
		return nil, err
	}
	if !auth.ComparePassword(user.PasswordHash, password) {
		return nil, domain.ErrInvalidCredential
	}

	if user.Role == domain.RoleStaff && user.DepartmentID != nil {
		if _, err := s.resetQueue(ctx, *user.DepartmentID, s.staleAfter, false); err != nil && !errors.Is(err, domain.ErrQueueNotFound) {
			return nil, err
		}
	}
	return s.issue(user)
}

// Logout revokes the token. Staff logout also closes their queue, resolves a
// running emergency and completes the ticket being served.
func (s *AuthService) Logout(ctx context.Context, actor domain.Actor, claims *auth.Claims) error {
	return s.finish("logout", s.logout(ctx, actor, claims))
}

func (s *AuthService) logout(ctx context.Context, actor domain.Actor, claims *auth.Claims) error {
	if err := auth.Authorize(actor, auth.CapLogout); err != nil {
		return err
	}
	if claims != nil && claims.ID != "" && s.blacklist != nil {
		expiresAt := s.now()
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		if err := s.blacklist.Revoke(ctx, claims.ID, expiresAt); err != nil {
			return err
		}
	}
	if actor.Role == domain.RoleStaff && actor.DepartmentID != nil {
		if _, err := s.resetQueue(ctx, *actor.DepartmentID, s.staleAfter, true); err != nil && !errors.Is(err, domain.ErrQueueNotFound) {
			return err
		}
	}
	return nil
}

// Me returns the signed-in account.
func (s *AuthService) Me(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	if err := auth.Authorize(actor, auth.CapViewProfile); err != nil {
		return nil, s.finish("me", err)
	}
	user, err := s.users.GetUser(ctx, actor.Identity.UserID)
	return user, s.finish("me", err)
}

// BootstrapAdmin creates the configured administrator when it does not exist.
func (s *AuthService) BootstrapAdmin(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	admin := &domain.User{Name: "Administrator", Email: email, PasswordHash: hash, Role: domain.RoleAdmin}
	if err := s.users.CreateUser(ctx, admin); err != nil && !errors.Is(err, domain.ErrEmailTaken) {
		return err
	}
	s.logger.Info("admin account bootstrapped", zap.String("email", email))
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issue(user *domain.User) (*Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}

func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return "", apperrors.NewValidationError("a valid email is required", map[string]any{"email": email})
	}
	return strings.ToLower(addr.Address), nil
}
