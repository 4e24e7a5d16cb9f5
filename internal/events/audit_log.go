package events

import (
	"context"

	"go.uber.org/zap"
)

// AuditLog writes every domain event to the structured log. Inconsistency
// events are logged at error level because they need manual reconciliation.
type AuditLog struct {
	logger *zap.Logger
}

// NewAuditLog creates the subscriber.
func NewAuditLog(logger *zap.Logger) *AuditLog {
	return &AuditLog{logger: logger}
}

// Register subscribes to every event type.
func (a *AuditLog) Register(d Dispatcher) {
	SubscribeAll(d, a.Handle)
}

// Handle logs the event.
func (a *AuditLog) Handle(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_type_id", event.TicketTypeID),
		zap.String("actor", event.Actor.SubjectID),
		zap.Any("payload", event.Payload),
	}
	if event.Type == EventInventoryInconsistency {
		a.logger.Error("audit", fields...)
		return nil
	}
	a.logger.Info("audit", fields...)
	return nil
}
