package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/helpline/escalation-service/internal/domain"
	"github.com/helpline/escalation-service/internal/team"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated supervisor.
type Principal struct {
	Supervisor domain.Supervisor
}

// AuthMiddleware validates bearer tokens and loads the supervisor from the roster.
type AuthMiddleware struct {
	tokens *TokenManager
	roster team.Provider
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, roster team.Provider) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, roster: roster}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	supervisor, err := m.roster.Lookup(c.UserContext(), claims.SupervisorID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return apperrors.NewUnauthorized("supervisor not on roster")
		}
		return apperrors.MapError(err)
	}
	// a token minted before a roster role change must not keep the old role
	if supervisor.Role != claims.Role {
		return apperrors.NewUnauthorized("supervisor role changed; sign in again")
	}

	c.Locals(principalKey, &Principal{Supervisor: supervisor})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated supervisor.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
