package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/helpline/escalation-service/internal/domain"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

// WebhookPayload is the JSON body posted to the escalation webhook.
type WebhookPayload struct {
	EventType          string            `json:"event_type"`
	Timestamp          time.Time         `json:"timestamp"`
	HelpRequest        webhookRequest    `json:"help_request"`
	AssignedSupervisor webhookSupervisor `json:"assigned_supervisor"`
	Message            string            `json:"message"`
}

type webhookRequest struct {
	ID              int64                  `json:"id"`
	CustomerID      string                 `json:"customer_id"`
	CustomerName    string                 `json:"customer_name"`
	Question        string                 `json:"question"`
	Priority        domain.RequestPriority `json:"priority"`
	Status          domain.RequestStatus   `json:"status"`
	Tags            []string               `json:"tags"`
	CreatedAt       time.Time              `json:"created_at"`
	TimeoutAt       time.Time              `json:"timeout_at"`
	EscalationLevel int                    `json:"escalation_level"`
}

type webhookSupervisor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// WebhookNotifier posts escalations to an HTTP endpoint.
type WebhookNotifier struct {
	client *resty.Client
	url    string
	now    func() time.Time
}

// NewWebhookNotifier returns nil when url is empty.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if url == "" {
		return nil
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "helpline-escalation-service")
	return &WebhookNotifier{client: client, url: url, now: time.Now}
}

func (n *WebhookNotifier) Channel() string { return "webhook" }

func (n *WebhookNotifier) Notify(ctx context.Context, req domain.HelpRequest, supervisor domain.Supervisor) error {
	payload := WebhookPayload{
		EventType: "help_request_escalated",
		Timestamp: n.now().UTC(),
		HelpRequest: webhookRequest{
			ID:              req.ID,
			CustomerID:      req.CustomerID,
			CustomerName:    req.CustomerName,
			Question:        req.Question,
			Priority:        req.Priority,
			Status:          req.Status,
			Tags:            req.Tags,
			CreatedAt:       req.CreatedAt,
			TimeoutAt:       req.TimeoutAt,
			EscalationLevel: req.EscalationLevel,
		},
		AssignedSupervisor: webhookSupervisor{
			ID:    supervisor.ID,
			Name:  supervisor.Name,
			Role:  string(supervisor.Role),
			Phone: supervisor.Phone,
			Email: supervisor.Email,
		},
		Message: Message(req, supervisor),
	}

	resp, err := n.client.R().SetContext(ctx).SetBody(payload).Post(n.url)
	if err != nil {
		return apperrors.NewNotificationError(n.Channel(), err)
	}
	if resp.IsError() {
		return apperrors.NewNotificationError(n.Channel(), &statusError{code: resp.StatusCode(), status: resp.Status()})
	}
	return nil
}

type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return "unexpected response " + e.status
}
