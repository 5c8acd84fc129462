package ledgerAuth

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/ledgerAuth/internal/audit"
	"github.com/rs/zerolog"
)

// Audit event types.
const (
	EventLoginSubmit  = "login_submit"
	EventLoginVerify  = "login_verify"
	EventLoginResend  = "login_resend"
	EventSignup       = "signup"
	EventEmailVerify  = "email_verify"
	EventResetRequest = "reset_request"
	EventResetCode    = "reset_code"
	EventResetConfirm = "reset_confirm"
	EventLogout       = "logout"
)

// AuditEvent is a structured audit record. It never carries passwords,
// codes or tokens.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the client's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// LogSink writes events through a zerolog logger.
type LogSink = internalaudit.LogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return internalaudit.NewLogSink(logger)
}

func (c *Client) emitAudit(ctx context.Context, event string, success bool, email string, err error, metadata func() map[string]string) {
	if c == nil || c.audit == nil {
		return
	}
	ev := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: event,
		Email:     email,
		RequestID: RequestIDFromContext(ctx),
		Success:   success,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if metadata != nil {
		ev.Metadata = metadata()
	}
	c.audit.Emit(ctx, ev)
}
