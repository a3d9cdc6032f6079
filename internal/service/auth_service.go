package service

import (
	"context"
	"strings"
	"time"

	"github.com/helpline/escalation-service/internal/auth"
	"github.com/helpline/escalation-service/internal/config"
	"github.com/helpline/escalation-service/internal/domain"
	"github.com/helpline/escalation-service/internal/team"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

// AuthService logs supervisors into the console.
type AuthService struct {
	roster   team.Provider
	tokenMgr *auth.TokenManager
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, roster team.Provider, tokens *auth.TokenManager) *AuthService {
	if tokens == nil {
		tokens = auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes)
	}
	return &AuthService{roster: roster, tokenMgr: tokens}
}

// LoginSupervisor checks the bcrypt hash on the roster entry and issues a token.
func (s *AuthService) LoginSupervisor(ctx context.Context, supervisorID, password string) (*domain.Supervisor, string, time.Time, error) {
	supervisorID = strings.TrimSpace(supervisorID)
	if supervisorID == "" || password == "" {
		return nil, "", time.Time{}, apperrors.NewValidationError("supervisor_id and password are required", nil)
	}
	supervisor, err := s.roster.Lookup(ctx, supervisorID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, err
	}
	if err := auth.VerifySupervisorPassword(supervisor, password); err != nil {
		return nil, "", time.Time{}, err
	}
	token, exp, err := s.tokenMgr.GenerateToken(supervisor)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return &supervisor, token, exp, nil
}
