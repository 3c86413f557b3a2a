package gosession

import (
	"context"
	"fmt"

	"github.com/joy-dx/gosession/dto"
	"github.com/joy-dx/gosession/relays"
	"golang.org/x/oauth2"
)

const sessionExpiredMessage = "Session expired. Please log in again."

// Current returns the credential to stamp on outbound requests.
func (s *SessionSvc) Current() (dto.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != dto.SessionAuthenticated || s.cred.IsZero() {
		return dto.Credential{}, false
	}
	return s.cred, true
}

// Login issues, stores and starts tracking a new credential, replacing any
// current session. The profile fetch that follows is best effort.
func (s *SessionSvc) Login(ctx context.Context, req dto.LoginRequest) (dto.Credential, error) {
	if err := s.WaitReady(ctx); err != nil {
		return dto.Credential{}, err
	}

	raw, err := s.api.Login(ctx, req)
	if err != nil {
		s.relay.Warn(relays.RlySessionLog{Msg: "login failed", Err: err})
		return dto.Credential{}, err
	}
	cred, err := s.inspector.Decode(raw)
	if err != nil {
		return dto.Credential{}, fmt.Errorf("login: %w", err)
	}

	s.mu.Lock()
	if err := s.store.Set(ctx, raw); err != nil {
		s.mu.Unlock()
		return dto.Credential{}, fmt.Errorf("persist credential: %w", err)
	}
	s.epoch++
	epoch := s.epoch
	s.cred = cred
	s.profile = nil
	s.setStateLocked(dto.SessionAuthenticated, "login")
	s.schedGen = s.scheduler.Arm(cred)
	s.mu.Unlock()

	s.publish(dto.SessionNotification{
		Kind:      dto.NotificationLoggedIn,
		State:     dto.SessionAuthenticated,
		SubjectID: cred.Claims.SubjectID,
	})

	if s.cfg.FetchProfileOnLogin {
		profile, err := s.api.Me(ctx, raw)
		if err != nil {
			s.relay.Warn(relays.RlySessionLog{Msg: "profile fetch after login failed", Err: err})
			return cred, nil
		}
		s.mu.Lock()
		if s.epoch == epoch {
			s.profile = &profile
		}
		s.mu.Unlock()
	}
	return cred, nil
}

// Logout stops renewal, then clears the store. Safe to call repeatedly.
func (s *SessionSvc) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	wasAuthenticated := s.state == dto.SessionAuthenticated
	s.epoch++

	var err error
	if s.store != nil {
		if clearErr := s.store.Clear(ctx); clearErr != nil {
			err = fmt.Errorf("clear credential: %w", clearErr)
		}
	}
	s.setStateLocked(dto.SessionAnonymous, "logout")
	s.cred = dto.Credential{}
	s.profile = nil
	s.mu.Unlock()

	if wasAuthenticated {
		s.publish(dto.SessionNotification{Kind: dto.NotificationLoggedOut, State: dto.SessionAnonymous})
	}
	return err
}

// forceLogout ends the session whose renewal failed. Only the session armed
// under gen is affected, so it runs at most once per session.
func (s *SessionSvc) forceLogout(gen uint64, cause error) {
	s.mu.Lock()
	if s.state != dto.SessionAuthenticated || gen != s.schedGen {
		s.mu.Unlock()
		return
	}
	s.scheduler.Stop()
	s.epoch++
	subject := s.cred.Claims.SubjectID
	if err := s.store.Clear(context.Background()); err != nil {
		s.relay.Warn(relays.RlySessionLog{Msg: "clear credential store", Err: err})
	}
	s.setStateLocked(dto.SessionAnonymous, "renewal failed")
	s.cred = dto.Credential{}
	s.profile = nil
	s.mu.Unlock()

	s.metrics.ForcedLogout()
	s.relay.Warn(relays.RlySessionLog{Msg: "session expired", Err: cause})
	s.publish(dto.SessionNotification{
		Kind:      dto.NotificationSessionExpired,
		State:     dto.SessionAnonymous,
		SubjectID: subject,
		Message:   sessionExpiredMessage,
	})
}

// RenewAfter is called when a request stamped with staleRaw came back 401.
// A credential that has already moved on is returned without a network call.
func (s *SessionSvc) RenewAfter(ctx context.Context, staleRaw string) (dto.Credential, error) {
	if err := s.WaitReady(ctx); err != nil {
		return dto.Credential{}, err
	}

	s.mu.RLock()
	state, cur := s.state, s.cred
	s.mu.RUnlock()

	if state != dto.SessionAuthenticated {
		return dto.Credential{}, dto.ErrNoSession
	}
	if cur.Raw != staleRaw {
		return cur, nil
	}
	return s.scheduler.RenewFrom(ctx, staleRaw)
}

// renew performs one refresh call for the scheduler and commits the result.
func (s *SessionSvc) renew(ctx context.Context) (dto.Credential, error) {
	s.mu.RLock()
	cur, epoch, state := s.cred, s.epoch, s.state
	s.mu.RUnlock()
	if state != dto.SessionAuthenticated || cur.IsZero() {
		return dto.Credential{}, dto.ErrNoSession
	}

	raw, err := s.api.Refresh(ctx, cur.Raw)
	if err != nil {
		return dto.Credential{}, &dto.RenewalFailure{Err: err}
	}
	cred, err := s.inspector.Decode(raw)
	if err != nil {
		return dto.Credential{}, &dto.RenewalFailure{Err: err}
	}

	s.mu.Lock()
	if s.epoch != epoch || s.state != dto.SessionAuthenticated {
		s.mu.Unlock()
		return dto.Credential{}, dto.ErrSessionClosed
	}
	if err := s.store.Set(ctx, raw); err != nil {
		// the server already rotated the credential; keep it in memory
		s.relay.Warn(relays.RlySessionLog{Msg: "persist renewed credential", Err: err})
	}
	s.cred = cred
	s.mu.Unlock()

	s.publish(dto.SessionNotification{
		Kind:      dto.NotificationRenewed,
		State:     dto.SessionAuthenticated,
		SubjectID: cred.Claims.SubjectID,
	})
	return cred, nil
}

// TokenSource exposes the session credential to oauth2-aware code.
func (s *SessionSvc) TokenSource() oauth2.TokenSource {
	return sessionTokenSource{svc: s}
}

type sessionTokenSource struct {
	svc *SessionSvc
}

func (ts sessionTokenSource) Token() (*oauth2.Token, error) {
	cred, ok := ts.svc.Current()
	if !ok {
		return nil, dto.ErrNoSession
	}
	tokenType := cred.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken: cred.Raw,
		TokenType:   tokenType,
		Expiry:      cred.Claims.ExpiresAt,
	}, nil
}

// Close stops renewal and releases the credential store. The session itself
// stays in the store for the next process.
func (s *SessionSvc) Close() error {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.closeStore != nil {
		return s.closeStore()
	}
	return nil
}

var _ dto.SessionInterface = (*SessionSvc)(nil)
