package minidrive

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/MrEthical07/minidrive/internal/audit"
	"github.com/MrEthical07/minidrive/jwt"
	"github.com/MrEthical07/minidrive/session"
)

// AuditEvent is one session transition as delivered to an AuditSink.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

type NoOpSink = audit.NoOpSink

type ChannelSink = audit.ChannelSink

type JSONWriterSink = audit.JSONWriterSink

// NewChannelSink returns a sink that delivers events on a channel of the
// given capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes one JSON object per line.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

var sessionMetric = map[session.EventType]MetricID{
	session.EventLoginSuccess:       MetricLoginSuccess,
	session.EventLoginFailure:       MetricLoginFailure,
	session.EventSignupSuccess:      MetricSignupSuccess,
	session.EventSignupFailure:      MetricSignupFailure,
	session.EventLogout:             MetricLogout,
	session.EventRehydrated:         MetricSessionRehydrated,
	session.EventRehydrateFailed:    MetricSessionRehydrateFailed,
	session.EventSessionInvalidated: MetricSessionInvalidated,
	session.EventUserUpdated:        MetricUserUpdated,
}

func isFailure(t session.EventType) bool {
	switch t {
	case session.EventLoginFailure, session.EventSignupFailure, session.EventRehydrateFailed:
		return true
	}
	return false
}

// onSessionEvent is the session store's event hook.
func (c *Client) onSessionEvent(ctx context.Context, e session.Event) {
	if id, ok := sessionMetric[e.Type]; ok {
		c.metrics.Inc(id)
	}

	attrs := []any{"event", string(e.Type)}
	if e.UserID != "" {
		attrs = append(attrs, "user_id", e.UserID)
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
		c.logger.InfoContext(ctx, "session event", attrs...)
	} else {
		c.logger.DebugContext(ctx, "session event", attrs...)
	}

	if c.audit == nil {
		return
	}
	ev := AuditEvent{
		Timestamp: c.now().UTC(),
		Type:      string(e.Type),
		UserID:    e.UserID,
		Success:   !isFailure(e.Type),
	}
	if ev.UserID == "" {
		ev.Email = e.Email
	}
	if e.Err != nil {
		ev.Error = e.Err.Error()
		ev.Metadata = failureMetadata(e.Err)
	}
	if e.Type == session.EventLoginSuccess || e.Type == session.EventSignupSuccess || e.Type == session.EventRehydrated {
		if tok := c.session.Token(); tok != "" {
			ev.TokenFingerprint = jwt.Fingerprint(tok)
		}
	}
	c.audit.Emit(ctx, ev)
}

// failureMetadata records which API call rejected the attempt and how.
func failureMetadata(err error) map[string]string {
	var ae *AuthError
	switch {
	case errors.As(err, &ae):
		return map[string]string{"op": ae.Op, "status": strconv.Itoa(ae.Status)}
	case errors.Is(err, ErrAdminRequired):
		return map[string]string{"op": "login", "reason": "admin_required"}
	}
	return nil
}

// AuditDropped reports events discarded because the audit buffer was full.
func (c *Client) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}
