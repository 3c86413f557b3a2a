package gosession

import (
	"github.com/joy-dx/gosession/dto"
	"github.com/joy-dx/gosession/relays"
)

// setStateLocked moves the session to state. Callers hold s.mu.
func (s *SessionSvc) setStateLocked(state dto.SessionState, reason string) {
	from := s.state
	s.state = state
	if from == state {
		return
	}
	s.metrics.StateChanged(state)
	s.relay.Info(relays.RlySessionState{
		From:    string(from),
		To:      string(state),
		Subject: s.cred.Claims.SubjectID,
		Reason:  reason,
	})
}

// publish fans a notification out to every listener. Terminal events are
// never dropped; others are dropped for a listener whose buffer is full.
func (s *SessionSvc) publish(n dto.SessionNotification) {
	s.muListeners.Lock()
	listeners := append([]*listener(nil), s.listeners...)
	s.muListeners.Unlock()

	for _, l := range listeners {
		l.deliver(n)
	}

	s.relay.Debug(relays.RlySessionLog{Msg: "notify " + string(n.Kind)})
}
