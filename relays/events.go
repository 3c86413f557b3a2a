package relays

import (
	"log/slog"
	"time"

	relayDTO "github.com/joy-dx/relay/dto"
)

const (
	RlySessionChannel relayDTO.EventChannel = "session"

	RlySessionLogRef     relayDTO.EventRef = "session.log"
	RlySessionStateRef   relayDTO.EventRef = "session.state"
	RlySessionRenewalRef relayDTO.EventRef = "session.renewal"
	RlySessionRequestRef relayDTO.EventRef = "session.request"
)

// RlySessionLog is a free-form log line.
type RlySessionLog struct {
	Msg string
	Err error
}

func (e RlySessionLog) RelayChannel() relayDTO.EventChannel { return RlySessionChannel }
func (e RlySessionLog) RelayType() relayDTO.EventRef        { return RlySessionLogRef }
func (e RlySessionLog) Message() string                     { return e.Msg }
func (e RlySessionLog) ToSlog() []slog.Attr {
	if e.Err == nil {
		return nil
	}
	return []slog.Attr{slog.String("error", e.Err.Error())}
}

// RlySessionState reports a session state transition.
type RlySessionState struct {
	From    string
	To      string
	Subject string
	Reason  string
}

func (e RlySessionState) RelayChannel() relayDTO.EventChannel { return RlySessionChannel }
func (e RlySessionState) RelayType() relayDTO.EventRef        { return RlySessionStateRef }
func (e RlySessionState) Message() string {
	return "session " + e.From + " -> " + e.To
}
func (e RlySessionState) ToSlog() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("from", e.From),
		slog.String("to", e.To),
	}
	if e.Subject != "" {
		attrs = append(attrs, slog.String("subject", e.Subject))
	}
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	return attrs
}

// RlyRenewal reports scheduler activity.
type RlyRenewal struct {
	Trigger   string
	Outcome   string
	Delay     time.Duration
	ExpiresAt time.Time
	Msg       string
	Err       error
}

func (e RlyRenewal) RelayChannel() relayDTO.EventChannel { return RlySessionChannel }
func (e RlyRenewal) RelayType() relayDTO.EventRef        { return RlySessionRenewalRef }
func (e RlyRenewal) Message() string                     { return e.Msg }
func (e RlyRenewal) ToSlog() []slog.Attr {
	attrs := make([]slog.Attr, 0, 5)
	if e.Trigger != "" {
		attrs = append(attrs, slog.String("trigger", e.Trigger))
	}
	if e.Outcome != "" {
		attrs = append(attrs, slog.String("outcome", e.Outcome))
	}
	if e.Delay != 0 {
		attrs = append(attrs, slog.Duration("delay", e.Delay))
	}
	if !e.ExpiresAt.IsZero() {
		attrs = append(attrs, slog.Time("expires_at", e.ExpiresAt))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	return attrs
}

// RlyRequest reports an outbound call handled by the interceptor.
type RlyRequest struct {
	RequestID string
	Method    string
	URL       string
	Status    int
	Retried   bool
	Msg       string
}

func (e RlyRequest) RelayChannel() relayDTO.EventChannel { return RlySessionChannel }
func (e RlyRequest) RelayType() relayDTO.EventRef        { return RlySessionRequestRef }
func (e RlyRequest) Message() string                     { return e.Msg }
func (e RlyRequest) ToSlog() []slog.Attr {
	return []slog.Attr{
		slog.String("request_id", e.RequestID),
		slog.String("method", e.Method),
		slog.String("url", e.URL),
		slog.Int("status", e.Status),
		slog.Bool("retried", e.Retried),
	}
}
