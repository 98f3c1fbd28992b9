// Package audit emite eventos de auditoría del pipeline de autenticación.
// Los eventos llevan el error clasificado, nunca el payload upstream crudo.
package audit

import (
	"context"
	"time"

	"github.com/dropDatabas3/idbridge/internal/observability/logger"
	"go.uber.org/zap"
)

// EventType identifica el tipo de evento de auditoría.
type EventType string

const (
	EventAuthorizationIssued   EventType = "authorization_request_issued"
	EventAuthorizationResponse EventType = "authorization_response_received"
	EventLoginSuccess          EventType = "login_success"
	EventLoginFailure          EventType = "login_failure"
	EventProviderRegistered    EventType = "provider_registered"
	EventProviderUnregistered  EventType = "provider_unregistered"
)

// Event es un evento de auditoría estructurado.
type Event struct {
	Type      EventType `json:"type"`
	Realm     string    `json:"realm,omitempty"`
	Authority string    `json:"authority,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	ErrorKey  string    `json:"error_key,omitempty"`
	At        time.Time `json:"at"`
}

// Sink recibe eventos para almacenamiento downstream (DB, SIEM, ...).
type Sink interface {
	Write(ctx context.Context, ev Event)
}

// Publisher publica eventos al log estructurado y a un sink opcional.
type Publisher struct {
	sink Sink
}

func NewPublisher(sink Sink) *Publisher {
	return &Publisher{sink: sink}
}

// Publish emite el evento. Nunca falla: auditoría no bloquea el login.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("event", string(ev.Type)),
		zap.Time("at", ev.At),
	}
	if ev.Realm != "" {
		fields = append(fields, logger.Realm(ev.Realm))
	}
	if ev.Authority != "" {
		fields = append(fields, logger.Authority(ev.Authority))
	}
	if ev.Provider != "" {
		fields = append(fields, logger.Provider(ev.Provider))
	}
	if ev.Subject != "" {
		fields = append(fields, logger.Subject(ev.Subject))
	}
	if ev.UserID != "" {
		fields = append(fields, logger.UserID(ev.UserID))
	}
	if ev.ErrorKey != "" {
		fields = append(fields, zap.String("error_key", ev.ErrorKey))
	}

	logger.From(ctx).Named("audit").Info("audit", fields...)

	if p != nil && p.sink != nil {
		p.sink.Write(ctx, ev)
	}
}
