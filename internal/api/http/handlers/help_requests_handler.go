package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/helpline/escalation-service/internal/api/dto"
	"github.com/helpline/escalation-service/internal/auth"
	"github.com/helpline/escalation-service/internal/service"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

// HelpRequestsHandler exposes the intake and console help request endpoints.
type HelpRequestsHandler struct {
	lifecycle *service.LifecycleService
	intake    *service.IntakeService
}

// NewHelpRequestsHandler constructs handler.
func NewHelpRequestsHandler(lifecycle *service.LifecycleService, intake *service.IntakeService) *HelpRequestsHandler {
	return &HelpRequestsHandler{lifecycle: lifecycle, intake: intake}
}

// Create POST /api/v1/help-requests.
func (h *HelpRequestsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateHelpRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	created, err := h.lifecycle.CreateRequest(c.UserContext(), service.CreateRequestInput{
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
		Question:     req.Question,
		Priority:     req.Priority,
		Tags:         req.Tags,
		Metadata:     req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewHelpRequestResponse(created)})
}

// Ask POST /api/v1/questions.
func (h *HelpRequestsHandler) Ask(c *fiber.Ctx) error {
	var req dto.AskQuestionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.intake.Ask(c.UserContext(), service.AskInput{
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
		Question:     req.Question,
		Channel:      req.Channel,
		Priority:     req.Priority,
	})
	if err != nil {
		return err
	}
	resp := dto.AskQuestionResponse{Answered: result.Answered, Answer: result.Answer}
	if result.Request != nil {
		hr := dto.NewHelpRequestResponse(result.Request)
		resp.HelpRequest = &hr
		return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": resp})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Pending GET /api/v1/help-requests/pending.
func (h *HelpRequestsHandler) Pending(c *fiber.Ctx) error {
	limit, err := parseInt(c.Query("limit"), 0)
	if err != nil {
		return apperrors.NewValidationError("limit must be an integer", map[string]any{"limit": c.Query("limit")})
	}
	items, err := h.lifecycle.GetPendingRequests(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHelpRequestList(items)})
}

// Get GET /api/v1/help-requests/:id.
func (h *HelpRequestsHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	req, err := h.lifecycle.GetRequest(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHelpRequestResponse(req)})
}

// ListByCustomer GET /api/v1/customers/:customerId/help-requests.
func (h *HelpRequestsHandler) ListByCustomer(c *fiber.Ctx) error {
	items, err := h.lifecycle.ListByCustomer(c.UserContext(), c.Params("customerId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHelpRequestList(items)})
}

// UpdateStatus PATCH /api/v1/help-requests/:id/status.
func (h *HelpRequestsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("supervisor required")
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	updated, err := h.lifecycle.UpdateStatus(c.UserContext(), id, service.UpdateStatusInput{
		Status:     req.Status,
		AssignedTo: req.AssignedTo,
		Resolution: req.Resolution,
		ActorID:    principal.Supervisor.ID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHelpRequestResponse(updated)})
}

func parseID(c *fiber.Ctx) (int64, error) {
	raw := c.Params("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid help request id", map[string]any{"id": raw})
	}
	return id, nil
}

func parseInt(val string, def int) (int, error) {
	if val == "" {
		return def, nil
	}
	return strconv.Atoi(val)
}
