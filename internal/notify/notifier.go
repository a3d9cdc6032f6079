// Package notify delivers escalations to supervisors. Delivery is best effort:
// a failed notification never undoes the state change that triggered it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/helpline/escalation-service/internal/domain"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

// ErrNotDeliverable marks a channel that had nothing to send to, such as a
// supervisor without an email address. It is not a delivery.
var ErrNotDeliverable = errors.New("no deliverable address")

// Notifier delivers one escalation to one supervisor.
type Notifier interface {
	Notify(ctx context.Context, req domain.HelpRequest, supervisor domain.Supervisor) error
	Channel() string
}

// Message renders the text a supervisor receives.
func Message(req domain.HelpRequest, supervisor domain.Supervisor) string {
	return fmt.Sprintf("Hey %s, I need help answering: %q (request #%d, %s priority, level %d)",
		supervisor.Name, req.Question, req.ID, req.Priority, req.EscalationLevel)
}

// LogNotifier writes notifications to the structured log. It stands in for the
// SMS channel and is always enabled.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Channel() string { return "log" }

func (n *LogNotifier) Notify(ctx context.Context, req domain.HelpRequest, supervisor domain.Supervisor) error {
	n.logger.Info("supervisor notified",
		zap.Int64("request_id", req.ID),
		zap.String("supervisor_id", supervisor.ID),
		zap.String("phone", supervisor.Phone),
		zap.String("priority", string(req.Priority)),
		zap.Int("level", req.EscalationLevel),
		zap.String("message", Message(req, supervisor)))
	return nil
}

// MultiNotifier fans out to every channel and joins the failures.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier skips nil entries.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	out := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return &MultiNotifier{notifiers: out}
}

func (m *MultiNotifier) Channel() string {
	names := make([]string, 0, len(m.notifiers))
	for _, n := range m.notifiers {
		names = append(names, n.Channel())
	}
	return strings.Join(names, "+")
}

// Notify succeeds when at least one channel delivered and none failed. When
// every channel was skipped the result wraps ErrNotDeliverable.
func (m *MultiNotifier) Notify(ctx context.Context, req domain.HelpRequest, supervisor domain.Supervisor) error {
	var errs, skipped []error
	for _, n := range m.notifiers {
		err := n.Notify(ctx, req, supervisor)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotDeliverable):
			skipped = append(skipped, err)
		case apperrors.IsCode(err, apperrors.CodeNotification):
			errs = append(errs, err)
		default:
			errs = append(errs, apperrors.NewNotificationError(n.Channel(), err))
		}
	}
	if len(errs) > 0 {
		return apperrors.NewNotificationError(m.Channel(), errors.Join(errs...))
	}
	if len(skipped) == len(m.notifiers) {
		return errors.Join(append([]error{ErrNotDeliverable}, skipped...)...)
	}
	return nil
}
