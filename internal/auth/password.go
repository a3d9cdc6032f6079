package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/helpline/escalation-service/internal/domain"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

// HashPassword produces the bcrypt hash stored on a roster entry. A cost outside
// bcrypt's accepted range falls back to bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifySupervisorPassword checks plain against the supervisor's roster hash.
// Supervisors without a hash cannot log in to the console.
func VerifySupervisorPassword(supervisor domain.Supervisor, plain string) error {
	if supervisor.PasswordHash == "" {
		return apperrors.NewUnauthorized("console login disabled for supervisor")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(supervisor.PasswordHash), []byte(plain)); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	return nil
}
