package gosession

import (
	"context"
	"errors"
	"fmt"

	"github.com/joy-dx/gosession/authapi"
	"github.com/joy-dx/gosession/client/httpclient"
	"github.com/joy-dx/gosession/dto"
	"github.com/joy-dx/gosession/relays"
	"github.com/joy-dx/gosession/scheduler"
	"github.com/joy-dx/gosession/store"
	"github.com/joy-dx/gosession/token"
)

const authClientRef = "session.client.auth"

func (s *SessionSvc) State() *dto.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &dto.SessionSnapshot{
		State:          s.state,
		SchedulerState: scheduler.StateIdle.String(),
	}
	if s.scheduler != nil {
		snap.SchedulerState = s.scheduler.State().String()
	}
	if s.state == dto.SessionAuthenticated {
		snap.SubjectID = s.cred.Claims.SubjectID
		snap.Role = s.cred.Claims.Role
		snap.ExpiresAt = s.cred.Claims.ExpiresAt
	}
	if s.profile != nil {
		p := *s.profile
		snap.Profile = &p
	}
	return snap
}

// Hydrate wires the service and starts the boot sequence. Boot runs once in
// the background; WaitReady reports when it is done.
func (s *SessionSvc) Hydrate(ctx context.Context) error {
	s.hydrateOnce.Do(func() {
		if err := s.wire(ctx); err != nil {
			s.hydrateErr = err
			s.relay.Error(relays.RlySessionLog{Msg: "Session service hydrate failed", Err: err})
			close(s.ready)
			return
		}
		go func() {
			defer close(s.ready)
			s.boot(context.WithoutCancel(ctx))
		}()
	})
	return s.hydrateErr
}

// WaitReady blocks until the boot sequence has finished or ctx ends.
func (s *SessionSvc) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.hydrateErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SessionSvc) wire(ctx context.Context) error {
	if s.cfg == nil {
		return errors.New("no session config")
	}
	if s.relay == nil {
		return errors.New("no relay implementation")
	}
	if s.api == nil && s.cfg.APIBaseURL == "" {
		return errors.New("no api base url")
	}
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if s.store == nil {
		st, closeFn, err := store.Open(ctx, s.cfg.Store)
		if err != nil {
			return err
		}
		s.store = st
		s.closeStore = closeFn
	}
	if s.inspector == nil {
		s.inspector = token.NewInspector()
	}

	if s.api == nil {
		authCfg := httpclient.DefaultHTTPClientConfig()
		authCfg.WithMiddleware(httpclient.LoggingMiddleware(s.relay))
		authClient := httpclient.NewHTTPClient(authClientRef, s.cfg, &authCfg)
		s.api = authapi.New(s.cfg, authClient)
	}

	if _, ok := s.clients[dto.NET_DEFAULT_CLIENT_REF]; !ok {
		defaultClientCfg := httpclient.DefaultHTTPClientConfig()
		defaultClientCfg.WithCredentials(s).
			WithRenewer(s).
			WithSkipRenewalPaths(s.cfg.LoginPath, s.cfg.RefreshPath).
			WithMiddleware(httpclient.LoggingMiddleware(s.relay))
		s.clients[dto.NET_DEFAULT_CLIENT_REF] = httpclient.NewHTTPClient(dto.NET_DEFAULT_CLIENT_REF, s.cfg, &defaultClientCfg)
	}

	s.scheduler = scheduler.New(scheduler.RenewerFunc(s.renew), scheduler.Options{
		Margin:      s.cfg.RefreshMargin,
		Timeout:     s.cfg.RenewalTimeout,
		MinInterval: s.cfg.MinRenewalInterval,
		Clock:       s.clock,
		Relay:       s.relay,
		Metrics:     s.metrics,
		OnFailure:   s.forceLogout,
	})
	return nil
}

// boot restores a stored session. Anything short of a decodable, unexpired
// credential the API still accepts leaves the session anonymous with an empty store.
func (s *SessionSvc) boot(ctx context.Context) {
	defer func() {
		s.publish(dto.SessionNotification{Kind: dto.NotificationBootComplete, State: s.currentState()})
	}()

	s.mu.RLock()
	epoch := s.epoch
	s.mu.RUnlock()

	raw, ok, err := s.store.Get(ctx)
	if err != nil {
		s.relay.Warn(relays.RlySessionLog{Msg: "credential store unreadable", Err: err})
		s.bootAnonymous(ctx, epoch, "store unreadable", false)
		return
	}
	if !ok {
		s.bootAnonymous(ctx, epoch, "no stored credential", false)
		return
	}

	cred, err := s.inspector.Decode(raw)
	if err != nil {
		s.relay.Warn(relays.RlySessionLog{Msg: "stored credential undecodable", Err: err})
		s.bootAnonymous(ctx, epoch, "stored credential undecodable", true)
		return
	}
	if token.SecondsUntilExpiry(cred, s.clock.Now()) <= 0 {
		s.bootAnonymous(ctx, epoch, "stored credential expired", true)
		return
	}

	profile, err := s.api.Me(ctx, cred.Raw)
	if err != nil {
		s.relay.Warn(relays.RlySessionLog{Msg: "stored credential rejected", Err: err})
		s.bootAnonymous(ctx, epoch, "stored credential rejected", true)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		// a login or logout already decided the state
		return
	}
	s.epoch++
	s.cred = cred
	s.profile = &profile
	s.setStateLocked(dto.SessionAuthenticated, "restored from store")
	s.schedGen = s.scheduler.Arm(cred)
}

func (s *SessionSvc) bootAnonymous(ctx context.Context, epoch uint64, reason string, clear bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	if clear {
		if err := s.store.Clear(ctx); err != nil {
			s.relay.Warn(relays.RlySessionLog{Msg: "clear credential store", Err: err})
		}
	}
	s.setStateLocked(dto.SessionAnonymous, reason)
}

func (s *SessionSvc) currentState() dto.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}
