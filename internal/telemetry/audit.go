// Package telemetry emits audit records for user-visible actions.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Entry is one audited action. Empty ids are omitted from the envelope.
type Entry struct {
	Level     string
	Action    string
	Text      string
	GroupID   string
	MessageID string
	RequestID string
	UserID    *string
}

// AuditEmitter publishes one audit envelope per user-visible action.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
	log         *zap.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level     string `json:"level"`
	Action    string `json:"action,omitempty"`
	Text      string `json:"text"`
	GroupID   string `json:"group_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log *zap.Logger) *AuditEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
		log:         log,
	}
}

// Envelope builds the record published for entry.
func (e *AuditEmitter) Envelope(ctx context.Context, entry Entry) AuditEnvelope {
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	return AuditEnvelope{
		SchemaVersion: 2,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     entry.RequestID,
		TraceID:       traceID,
		UserID:        entry.UserID,
		Payload: AuditPayload{
			Level:     entry.Level,
			Action:    entry.Action,
			Text:      entry.Text,
			GroupID:   entry.GroupID,
			MessageID: entry.MessageID,
		},
	}
}

// Emit publishes entry. A nil emitter or publisher drops it. Publish failures are logged only.
func (e *AuditEmitter) Emit(ctx context.Context, entry Entry) {
	if e == nil || e.publisher == nil {
		return
	}
	envelope := e.Envelope(ctx, entry)
	e.log.Debug("audit emit",
		zap.String("level", entry.Level),
		zap.String("action", entry.Action),
		zap.String("group_id", entry.GroupID),
		zap.String("request_id", entry.RequestID))

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.log.Warn("audit publish failed", zap.String("action", entry.Action), zap.Error(err))
	}
}
