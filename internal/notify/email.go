package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/helpline/escalation-service/internal/domain"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

// Dialer is the subset of *gomail.Dialer the email notifier needs.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier mails the escalation to the supervisor's address.
type EmailNotifier struct {
	dialer Dialer
	from   string
}

// NewEmailNotifier returns nil when no SMTP host is configured.
func NewEmailNotifier(host string, port int, user, password, from string) *EmailNotifier {
	if host == "" {
		return nil
	}
	return &EmailNotifier{dialer: gomail.NewDialer(host, port, user, password), from: from}
}

// NewEmailNotifierWithDialer is used by tests and custom transports.
func NewEmailNotifierWithDialer(dialer Dialer, from string) *EmailNotifier {
	return &EmailNotifier{dialer: dialer, from: from}
}

func (n *EmailNotifier) Channel() string { return "email" }

func (n *EmailNotifier) Notify(ctx context.Context, req domain.HelpRequest, supervisor domain.Supervisor) error {
	if supervisor.Email == "" {
		return fmt.Errorf("%w: supervisor %s has no email address", ErrNotDeliverable, supervisor.ID)
	}
	if err := ctx.Err(); err != nil {
		return apperrors.NewNotificationError(n.Channel(), err)
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", n.from)
	msg.SetAddressHeader("To", supervisor.Email, supervisor.Name)
	msg.SetHeader("Subject", fmt.Sprintf("[%s] Help request #%d needs you (level %d)", req.Priority, req.ID, req.EscalationLevel))
	msg.SetBody("text/plain", fmt.Sprintf("%s\n\nCustomer: %s\nAsked at: %s\nRespond before: %s\n",
		Message(req, supervisor), req.CustomerName, req.CreatedAt.Format("2006-01-02 15:04 MST"), req.TimeoutAt.Format("2006-01-02 15:04 MST")))

	// gomail has no context support; a stalled SMTP server only holds the send goroutine
	sent := make(chan error, 1)
	go func() { sent <- n.dialer.DialAndSend(msg) }()
	select {
	case err := <-sent:
		if err != nil {
			return apperrors.NewNotificationError(n.Channel(), err)
		}
		return nil
	case <-ctx.Done():
		return apperrors.NewNotificationError(n.Channel(), ctx.Err())
	}
}
