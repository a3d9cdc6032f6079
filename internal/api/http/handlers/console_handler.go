package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/helpline/escalation-service/internal/api/dto"
	"github.com/helpline/escalation-service/internal/notify"
	"github.com/helpline/escalation-service/internal/service"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

// ConsoleHandler serves the supervisor console: login, statistics, sweeps and
// notification history.
type ConsoleHandler struct {
	auth      *service.AuthService
	stats     *service.StatisticsService
	lifecycle *service.LifecycleService
	history   *notify.History
}

// NewConsoleHandler constructs handler.
func NewConsoleHandler(authService *service.AuthService, stats *service.StatisticsService, lifecycle *service.LifecycleService, history *notify.History) *ConsoleHandler {
	return &ConsoleHandler{auth: authService, stats: stats, lifecycle: lifecycle, history: history}
}

// Login POST /auth/supervisors/login.
func (h *ConsoleHandler) Login(c *fiber.Ctx) error {
	var req dto.SupervisorLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	supervisor, token, exp, err := h.auth.LoginSupervisor(c.UserContext(), req.SupervisorID, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   exp,
		Supervisor:  dto.NewSupervisorResponse(supervisor),
	}})
}

// Statistics GET /api/v1/statistics.
func (h *ConsoleHandler) Statistics(c *fiber.Ctx) error {
	snapshot, err := h.stats.GetStatistics(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": snapshot})
}

// RunSweep POST /api/v1/sweeps.
func (h *ConsoleHandler) RunSweep(c *fiber.Ctx) error {
	report, err := h.lifecycle.Sweep(c.UserContext())
	if err != nil {
		if errors.Is(err, service.ErrSweepInProgress) {
			return apperrors.NewConcurrencyError("sweep already in progress", nil)
		}
		return err
	}
	h.stats.Invalidate(c.UserContext())
	return c.JSON(fiber.Map{"data": report})
}

// Notifications GET /api/v1/notifications.
func (h *ConsoleHandler) Notifications(c *fiber.Ctx) error {
	limit, err := parseInt(c.Query("limit"), 50)
	if err != nil {
		return apperrors.NewValidationError("limit must be an integer", map[string]any{"limit": c.Query("limit")})
	}
	return c.JSON(fiber.Map{"data": h.history.Recent(limit)})
}
