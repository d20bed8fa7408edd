package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/store"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

// GuestTokenHeader carries the anonymous guest identity.
const GuestTokenHeader = "X-Guest-Token"

const (
	actorKey  = "auth_actor"
	claimsKey = "auth_claims"
)

// Middleware resolves the caller into a domain.Actor stored in fiber Locals.
type Middleware struct {
	tokens    *TokenManager
	users     store.UserStore
	blacklist TokenBlacklist
	logger    *zap.Logger
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager, users store.UserStore, blacklist TokenBlacklist, logger *zap.Logger) *Middleware {
	return &Middleware{tokens: tokens, users: users, blacklist: blacklist, logger: logger}
}

// Authenticate requires a valid, unrevoked bearer token.
func (m *Middleware) Authenticate(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}
	if err := m.loadUser(c, header); err != nil {
		return err
	}
	return c.Next()
}

// Guest resolves the guest token header. When issue is set and the header is
// absent a fresh token is minted and echoed back in the response header.
func (m *Middleware) Guest(issue bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Get(GuestTokenHeader))
		if token == "" {
			if !issue {
				return apperrors.NewUnauthorized("missing guest token")
			}
			token = uuid.NewString()
		}
		c.Set(GuestTokenHeader, token)
		c.Locals(actorKey, domain.GuestActor(token))
		return c.Next()
	}
}

// Optional resolves a bearer token or guest header when present and lets
// anonymous callers through.
func (m *Middleware) Optional(c *fiber.Ctx) error {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		if err := m.loadUser(c, header); err != nil {
			return err
		}
		return c.Next()
	}
	if token := strings.TrimSpace(c.Get(GuestTokenHeader)); token != "" {
		c.Locals(actorKey, domain.GuestActor(token))
	}
	return c.Next()
}

func (m *Middleware) loadUser(c *fiber.Ctx, header string) error {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	revoked, err := m.blacklist.IsRevoked(c.UserContext(), claims.ID)
	if err != nil {
		m.logger.Error("token blacklist lookup failed", zap.Error(err))
		return apperrors.NewInternalError(err)
	}
	if revoked {
		return apperrors.NewUnauthorized("token revoked")
	}

	user, err := m.users.GetUser(c.UserContext(), claims.UserID())
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return apperrors.NewUnauthorized("user not found")
		}
		return apperrors.NewInternalError(err)
	}

	c.Locals(actorKey, domain.UserActor(user))
	c.Locals(claimsKey, claims)
	return nil
}

// ActorFromContext retrieves the resolved caller.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, bool) {
	actor, ok := c.Locals(actorKey).(domain.Actor)
	return actor, ok
}

// ClaimsFromContext retrieves the parsed bearer token claims.
func ClaimsFromContext(c *fiber.Ctx) (*Claims, bool) {
	claims, ok := c.Locals(claimsKey).(*Claims)
	return claims, ok
}
