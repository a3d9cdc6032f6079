package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpline/escalation-service/internal/domain"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

// RequireRole ensures the supervisor has one of the allowed roles. No roles means
// any authenticated supervisor.
func RequireRole(allowed ...domain.SupervisorRole) fiber.Handler {
	allowedSet := make(map[domain.SupervisorRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Supervisor.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
