package dto

import (
	"time"

	"github.com/helpline/escalation-service/internal/domain"
)

// SupervisorLoginRequest payload.
type SupervisorLoginRequest struct {
	SupervisorID string `json:"supervisor_id"`
	Password     string `json:"password"`
}

// SupervisorResponse omits credentials.
type SupervisorResponse struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Role      domain.SupervisorRole `json:"role"`
	Email     string                `json:"email,omitempty"`
	Phone     string                `json:"phone,omitempty"`
	Available string                `json:"available,omitempty"`
}

// TokenResponse is returned on login.
type TokenResponse struct {
	AccessToken string             `json:"access_token"`
	TokenType   string             `json:"token_type"`
	ExpiresAt   time.Time          `json:"expires_at"`
	Supervisor  SupervisorResponse `json:"supervisor"`
}

// NewSupervisorResponse maps a supervisor.
func NewSupervisorResponse(s *domain.Supervisor) SupervisorResponse {
	return SupervisorResponse{
		ID:        s.ID,
		Name:      s.Name,
		Role:      s.Role,
		Email:     s.Email,
		Phone:     s.Phone,
		Available: s.Availability.String(),
	}
}
