package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/helpline/escalation-service/internal/events"
)

// AuditService records every lifecycle event in the log and, when configured,
// ships it to the event stream.
type AuditService struct {
	dispatcher events.Dispatcher
	sink       events.EventHandler
	logger     *zap.Logger
}

// NewAuditService creates the service. sink may be nil.
func NewAuditService(dispatcher events.Dispatcher, sink events.EventHandler, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{dispatcher: dispatcher, sink: sink, logger: logger}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.SubscribeAll(a.handle)
}

func (a *AuditService) handle(ctx context.Context, event events.Event) error {
	a.logger.Info("lifecycle event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Int64("request_id", event.RequestID),
		zap.Any("payload", event.Payload))
	if a.sink == nil {
		return nil
	}
	if err := a.sink(ctx, event); err != nil {
		a.logger.Warn("event stream publish failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("request_id", event.RequestID),
			zap.Error(err))
	}
	return nil
}
