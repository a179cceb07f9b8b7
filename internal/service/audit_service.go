package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/project-service/internal/events"
	"github.com/spec-kit/project-service/internal/observability"
)

// AuditService records login attempts published by the auth service.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventLoginSucceeded, a.handleLogin)
	a.dispatcher.Subscribe(events.EventLoginFailed, a.handleLogin)
}

func (a *AuditService) handleLogin(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.LoginPayload)
	if !ok {
		a.logger.Warn("unexpected login payload", zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))
		return nil
	}

	a.metrics.RecordLogin(payload.Outcome, payload.Reason, payload.Duration)

	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Time("at", event.Timestamp),
		zap.String("email", payload.Email),
		zap.String("outcome", payload.Outcome),
		zap.String("reason", payload.Reason),
		zap.String("stage", payload.Stage),
		zap.Duration("duration", payload.Duration),
	}
	if payload.UserID != "" {
		fields = append(fields, zap.String("user_id", payload.UserID))
	}

	switch {
	case payload.Error != "":
		a.logger.Error("audit", append(fields, zap.String("error", payload.Error))...)
	case event.Type == events.EventLoginSucceeded:
		a.logger.Info("audit", fields...)
	default:
		a.logger.Warn("audit", fields...)
	}
	return nil
}
