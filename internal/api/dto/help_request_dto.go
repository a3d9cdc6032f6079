package dto

import (
	"time"

	"github.com/helpline/escalation-service/internal/domain"
)

// CreateHelpRequest payload.
type CreateHelpRequest struct {
	CustomerID   string         `json:"customer_id"`
	CustomerName string         `json:"customer_name"`
	Question     string         `json:"question"`
	Priority     string         `json:"priority"`
	Tags         []string       `json:"tags"`
	Metadata     map[string]any `json:"metadata"`
}

// AskQuestionRequest is the intake payload.
type AskQuestionRequest struct {
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	Question     string `json:"question"`
	Channel      string `json:"channel"`
	Priority     string `json:"priority"`
}

// AskQuestionResponse carries an answer or the escalated request.
type AskQuestionResponse struct {
	Answered    bool                 `json:"answered"`
	Answer      string               `json:"answer,omitempty"`
	HelpRequest *HelpRequestResponse `json:"help_request,omitempty"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status     string  `json:"status"`
	AssignedTo *string `json:"assigned_to"`
	Resolution *string `json:"resolution"`
}

// HelpRequestResponse is the public view of a help request.
type HelpRequestResponse struct {
	ID                int64                    `json:"id"`
	CustomerID        string                   `json:"customer_id"`
	CustomerName      string                   `json:"customer_name"`
	Question          string                   `json:"question"`
	Status            domain.RequestStatus     `json:"status"`
	Priority          domain.RequestPriority   `json:"priority"`
	AssignedTo        *string                  `json:"assigned_to"`
	Resolution        *string                  `json:"resolution"`
	Tags              []string                 `json:"tags"`
	Metadata          map[string]any           `json:"metadata"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
	TimeoutAt         time.Time                `json:"timeout_at"`
	EscalationLevel   int                      `json:"escalation_level"`
	MaxLevels         int                      `json:"max_escalation_levels"`
	EscalationHistory []domain.EscalationEntry `json:"escalation_history"`
}

// NewHelpRequestResponse maps a domain record.
func NewHelpRequestResponse(req *domain.HelpRequest) HelpRequestResponse {
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	history := req.EscalationHistory
	if history == nil {
		history = []domain.EscalationEntry{}
	}
	return HelpRequestResponse{
		ID:                req.ID,
		CustomerID:        req.CustomerID,
		CustomerName:      req.CustomerName,
		Question:          req.Question,
		Status:            req.Status,
		Priority:          req.Priority,
		AssignedTo:        req.AssignedTo,
		Resolution:        req.Resolution,
		Tags:              tags,
		Metadata:          req.Metadata,
		CreatedAt:         req.CreatedAt,
		UpdatedAt:         req.UpdatedAt,
		TimeoutAt:         req.TimeoutAt,
		EscalationLevel:   req.EscalationLevel,
		MaxLevels:         req.Priority.MaxLevels(),
		EscalationHistory: history,
	}
}

// NewHelpRequestList maps a slice.
func NewHelpRequestList(reqs []domain.HelpRequest) []HelpRequestResponse {
	out := make([]HelpRequestResponse, 0, len(reqs))
	for i := range reqs {
		out = append(out, NewHelpRequestResponse(&reqs[i]))
	}
	return out
}
