package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/helpline/escalation-service/internal/classifier"
	"github.com/helpline/escalation-service/internal/domain"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

// IntakeService answers what it can and turns the rest into help requests.
type IntakeService struct {
	classifier classifier.Classifier
	lifecycle  *LifecycleService
	logger     *zap.Logger
}

// NewIntakeService creates the service.
func NewIntakeService(c classifier.Classifier, lifecycle *LifecycleService, logger *zap.Logger) *IntakeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeService{classifier: c, lifecycle: lifecycle, logger: logger}
}

// AskInput is a customer question arriving from a channel.
type AskInput struct {
	CustomerID   string
	CustomerName string
	Question     string
	Channel      string
	// Priority overrides keyword inference when set.
	Priority string
}

// AskResult carries either an answer or the help request that was opened.
type AskResult struct {
	Answered bool                `json:"answered"`
	Answer   string              `json:"answer,omitempty"`
	Request  *domain.HelpRequest `json:"-"`
}

// Ask classifies the question and escalates it to a human when unanswerable.
func (s *IntakeService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, apperrors.NewValidationError("question is required", nil)
	}
	if answer, ok := s.classifier.Classify(question); ok {
		s.logger.Debug("question answered from knowledge base", zap.String("customer_id", input.CustomerID))
		return &AskResult{Answered: true, Answer: answer}, nil
	}

	priority := strings.TrimSpace(input.Priority)
	if priority == "" {
		priority = string(s.classifier.InferPriority(question))
	}
	channel := strings.TrimSpace(input.Channel)
	if channel == "" {
		channel = "api"
	}

	req, err := s.lifecycle.CreateRequest(ctx, CreateRequestInput{
		CustomerID:   input.CustomerID,
		CustomerName: input.CustomerName,
		Question:     question,
		Priority:     priority,
		Tags:         s.classifier.ExtractTags(question),
		Metadata: map[string]any{
			"channel":             channel,
			"message_length":      utf8.RuneCountInString(question),
			"has_urgent_keywords": s.classifier.UrgentKeywords(question),
		},
	})
	if err != nil {
		return nil, err
	}
	return &AskResult{Request: req}, nil
}
