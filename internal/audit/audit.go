// Package audit records the outcome of sync operations.
package audit

import (
	"context"
	"time"

	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/store"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const ActionSync = "open_finance.sync"
const ActionDisconnect = "open_finance.disconnect"

// Event is one auditable operation.
type Event struct {
	UserId       string         `json:"user_id"`
	Action       string         `json:"action"`
	EntityId     string         `json:"entity_id"`
	Success      bool           `json:"success"`
	Details      map[string]any `json:"details,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// Sink receives audit events.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// StoreSink writes events to the durable audit table.
type StoreSink struct {
	store store.AuditStore
}

func NewStoreSink(s store.AuditStore) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) Record(ctx context.Context, event Event) error {
	record := models.AuditRecord{
		UserId:    event.UserId,
		Action:    event.Action,
		EntityId:  event.EntityId,
		Success:   event.Success,
		Details:   event.Details,
		CreatedAt: event.OccurredAt,
	}
	if event.ErrorMessage != "" {
		msg := event.ErrorMessage
		record.ErrorMessage = &msg
	}
	return s.store.InsertAuditRecord(ctx, record)
}

// MultiSink fans an event out to every sink. Each sink is attempted even
// when an earlier one fails.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, event Event) error {
	var errs error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		errs = multierr.Append(errs, sink.Record(ctx, event))
	}
	return errs
}

// LogSink logs events through the global logger.
type LogSink struct{}

func (LogSink) Record(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("user_id", event.UserId),
		zap.String("action", event.Action),
		zap.String("entity_id", event.EntityId),
		zap.Bool("success", event.Success),
		zap.Any("details", event.Details),
	}
	if event.Success {
		zap.L().Info("Audit event", fields...)
	} else {
		zap.L().Warn("Audit event", append(fields, zap.String("error_message", event.ErrorMessage))...)
	}
	return nil
}
