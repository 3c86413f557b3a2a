package gosession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joy-dx/gosession/dto"
	"github.com/joy-dx/gosession/scheduler"
)

func loginAPI(t *testing.T, exp time.Time) *fakeAPI {
	t.Helper()
	raw := signToken(t, "ana@example.com", exp)
	return &fakeAPI{
		loginFn: func(ctx context.Context, req dto.LoginRequest) (string, error) {
			if req.Secret != "pw" {
				return "", &dto.APIError{StatusCode: 401, URL: "/auth/login"}
			}
			return raw, nil
		},
		refreshFn: func(ctx context.Context, raw string) (string, error) {
			return "", errors.New("refresh not scripted")
		},
	}
}

func storedRaw(t *testing.T, s *SessionSvc) string {
	t.Helper()
	raw, _, err := s.store.Get(context.Background())
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	return raw
}

func TestSessionSvc_Boot_Golden(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		stored     func(t *testing.T) string
		meErr      error
		wantState  dto.SessionState
		wantStored bool
		wantMe     int
		wantTimers int
	}{
		{
			name:      "empty store boots anonymous",
			stored:    func(t *testing.T) string { return "" },
			wantState: dto.SessionAnonymous,
		},
		{
			name:      "undecodable credential is cleared",
			stored:    func(t *testing.T) string { return "not-a-token" },
			wantState: dto.SessionAnonymous,
		},
		{
			name:      "expired credential is cleared without a profile call",
			stored:    func(t *testing.T) string { return signToken(t, "u", epoch.Add(-10*time.Second)) },
			wantState: dto.SessionAnonymous,
		},
		{
			name:      "rejected credential is cleared",
			stored:    func(t *testing.T) string { return signToken(t, "u", epoch.Add(15*time.Minute)) },
			meErr:     &dto.APIError{StatusCode: 401, URL: "/auth/me"},
			wantState: dto.SessionAnonymous,
			wantMe:    1,
		},
		{
			name:      "profile network failure also clears",
			stored:    func(t *testing.T) string { return signToken(t, "u", epoch.Add(15*time.Minute)) },
			meErr:     errors.New("connection refused"),
			wantState: dto.SessionAnonymous,
			wantMe:    1,
		},
		{
			name:       "valid credential restores and arms",
			stored:     func(t *testing.T) string { return signToken(t, "u", epoch.Add(15*time.Minute)) },
			wantState:  dto.SessionAuthenticated,
			wantStored: true,
			wantMe:     1,
			wantTimers: 1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := loginAPI(t, epoch.Add(15*time.Minute))
			if tt.meErr != nil {
				api.meFn = func(ctx context.Context, raw string) (dto.Profile, error) {
					return dto.Profile{}, tt.meErr
				}
			}
			seed := tt.stored(t)
			s, _, clk := newHydratedSvc(t, api, seed)

			if got := s.State().State; got != tt.wantState {
				t.Fatalf("state=%s want %s", got, tt.wantState)
			}
			if got := api.Mes(); got != tt.wantMe {
				t.Fatalf("me calls=%d want %d", got, tt.wantMe)
			}
			if got := storedRaw(t, s); (got != "") != tt.wantStored {
				t.Fatalf("stored=%q wantStored=%v", got, tt.wantStored)
			}
			if got := clk.Pending(); got != tt.wantTimers {
				t.Fatalf("timers=%d want %d", got, tt.wantTimers)
			}
			if tt.wantTimers == 1 {
				next, _ := clk.NextDeadline()
				if want := epoch.Add(14 * time.Minute); !next.Equal(want) {
					t.Fatalf("renewal at %s want %s", next, want)
				}
			}
			if len(api.Refreshes()) != 0 {
				t.Fatalf("boot must not renew")
			}
		})
	}
}

func TestSessionSvc_Login_Golden(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		secret    string
		wantErr   error
		wantState dto.SessionState
	}{
		{name: "valid credentials", secret: "pw", wantState: dto.SessionAuthenticated},
		{name: "rejected credentials", secret: "nope", wantErr: dto.ErrUnauthorized, wantState: dto.SessionAnonymous},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := loginAPI(t, epoch.Add(15*time.Minute))
			s, _, clk := newHydratedSvc(t, api, "")
			ch, unsub := s.SessionListener()
			defer unsub()

			cred, err := s.Login(context.Background(), dto.LoginRequest{Identifier: "ana@example.com", Secret: tt.secret, Role: "user"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v want %v", err, tt.wantErr)
			}

			snap := s.State()
			if snap.State != tt.wantState {
				t.Fatalf("state=%s want %s", snap.State, tt.wantState)
			}
			if tt.wantErr != nil {
				if storedRaw(t, s) != "" || clk.Pending() != 0 {
					t.Fatalf("failed login left state behind")
				}
				if n := drain(ch, 20*time.Millisecond); len(n) != 0 {
					t.Fatalf("failed login notified: %v", n)
				}
				return
			}

			if storedRaw(t, s) != cred.Raw {
				t.Fatalf("credential not persisted")
			}
			if snap.SubjectID != "ana@example.com" || snap.Role != "USER" {
				t.Fatalf("snapshot=%+v", snap)
			}
			if snap.Profile == nil || snap.Profile.Name != "Ana" {
				t.Fatalf("profile not fetched: %+v", snap.Profile)
			}
			if snap.SchedulerState != scheduler.StateArmed.String() {
				t.Fatalf("scheduler=%s want armed", snap.SchedulerState)
			}
			if clk.Pending() != 1 {
				t.Fatalf("timers=%d want 1", clk.Pending())
			}
			got := drain(ch, 20*time.Millisecond)
			if countKind(got, dto.NotificationLoggedIn) != 1 {
				t.Fatalf("notifications=%v", got)
			}
		})
	}
}

func TestSessionSvc_Login_ProfileFailureKeepsSession(t *testing.T) {
	t.Parallel()

	api := loginAPI(t, epoch.Add(15*time.Minute))
	api.meFn = func(ctx context.Context, raw string) (dto.Profile, error) {
		return dto.Profile{}, errors.New("profile down")
	}
	s, _, _ := newHydratedSvc(t, api, "")

	if _, err := s.Login(context.Background(), dto.LoginRequest{Identifier: "ana@example.com", Secret: "pw"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	snap := s.State()
	if snap.State != dto.SessionAuthenticated || snap.Profile != nil {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestSessionSvc_Login_ReplacesSession(t *testing.T) {
	t.Parallel()

	api := loginAPI(t, epoch.Add(15*time.Minute))
	s, _, clk := newHydratedSvc(t, api, "")
	ctx := context.Background()

	if _, err := s.Login(ctx, dto.LoginRequest{Secret: "pw"}); err != nil {
		t.Fatalf("first Login: %v", err)
	}
	second := signToken(t, "bob@example.com", epoch.Add(10*time.Minute))
	api.mu.Lock()
	api.loginFn = func(ctx context.Context, req dto.LoginRequest) (string, error) { return second, nil }
	api.mu.Unlock()

	if _, err := s.Login(ctx, dto.LoginRequest{Secret: "pw"}); err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if clk.Pending() != 1 {
		t.Fatalf("timers=%d want exactly one", clk.Pending())
	}
	next, _ := clk.NextDeadline()
	if want := epoch.Add(9 * time.Minute); !next.Equal(want) {
		t.Fatalf("renewal at %s want %s", next, want)
	}
	if cur, _ := s.Current(); cur.Raw != second {
		t.Fatalf("current credential not replaced")
	}
}

func TestSessionSvc_Logout_Idempotent(t *testing.T) {
	t.Parallel()

	api := loginAPI(t, epoch.Add(15*time.Minute))
	s, _, clk := newHydratedSvc(t, api, "")
	ctx := context.Background()
	if _, err := s.Login(ctx, dto.LoginRequest{Secret: "pw"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	ch, unsub := s.SessionListener()
	defer unsub()

	for i := 0; i < 2; i++ {
		if err := s.Logout(ctx); err != nil {
			t.Fatalf("Logout #%d: %v", i+1, err)
		}
	}

	if clk.Pending() != 0 {
		t.Fatalf("timer survived logout")
	}
	if storedRaw(t, s) != "" {
		t.Fatalf("store not cleared")
	}
	if _, ok := s.Current(); ok {
		t.Fatalf("credential survived logout")
	}
	if st := s.State(); st.State != dto.SessionAnonymous || st.SchedulerState != "idle" {
		t.Fatalf("snapshot=%+v", st)
	}
	if got := drain(ch, 20*time.Millisecond); countKind(got, dto.NotificationLoggedOut) != 1 {
		t.Fatalf("notifications=%v want one logged_out", got)
	}

	clk.Advance(time.Hour)
	if n := len(api.Refreshes()); n != 0 {
		t.Fatalf("refreshes after logout=%d", n)
	}
}

func TestSessionSvc_ProactiveRenewal(t *testing.T) {
	t.Parallel()

	api := loginAPI(t, epoch.Add(15*time.Minute))
	renewed := signToken(t, "ana@example.com", epoch.Add(30*time.Minute))
	api.refreshFn = func(ctx context.Context, raw string) (string, error) { return renewed, nil }

	s, _, clk := newHydratedSvc(t, api, "")
	if _, err := s.Login(context.Background(), dto.LoginRequest{Secret: "pw"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	ch, unsub := s.SessionListener()
	defer unsub()

	clk.Advance(13 * time.Minute)
	if len(api.Refreshes()) != 0 {
		t.Fatalf("renewed before the margin")
	}

	clk.Advance(time.Minute)
	eventually(t, "renewed credential", func() bool {
		cur, _ := s.Current()
		return cur.Raw == renewed
	})
	eventually(t, "next renewal armed", func() bool {
		next, ok := clk.NextDeadline()
		return ok && next.Equal(epoch.Add(29*time.Minute))
	})

	if got := len(api.Refreshes()); got != 1 {
		t.Fatalf("refreshes=%d want 1", got)
	}
	if storedRaw(t, s) != renewed {
		t.Fatalf("renewed credential not persisted")
	}
	if got := drain(ch, 20*time.Millisecond); countKind(got, dto.NotificationRenewed) != 1 {
		t.Fatalf("notifications=%v", got)
	}
}

func TestSessionSvc_LoginInsideMarginRenewsImmediately(t *testing.T) {
	t.Parallel()

	api := loginAPI(t, epoch.Add(30*time.Second))
	renewed := signToken(t, "ana@example.com", epoch.Add(15*time.Minute))
	api.refreshFn = func(ctx context.Context, raw string) (string, error) { return renewed, nil }

	s, _, _ := newHydratedSvc(t, api, "")
	if _, err := s.Login(context.Background(), dto.LoginRequest{Secret: "pw"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	eventually(t, "immediate renewal", func() bool {
		cur, _ := s.Current()
		return cur.Raw == renewed
	})
}

func TestSessionSvc_RenewalFailureExpiresSessionOnce(t *testing.T) {
	t.Parallel()

	api := loginAPI(t, epoch.Add(15*time.Minute))
	api.refreshFn = func(ctx context.Context, raw string) (string, error) {
		return "", &dto.APIError{StatusCode: 401, URL: "/auth/refresh-token"}
	}
	s, _, clk := newHydratedSvc(t, api, "")
	ctx := context.Background()
	if _, err := s.Login(ctx, dto.LoginRequest{Secret: "pw"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	cur, _ := s.Current()
	ch, unsub := s.SessionListener()
	defer unsub()

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.RenewAfter(ctx, cur.Raw)
		}(i)
	}
	clk.Advance(14 * time.Minute)
	wg.Wait()

	eventually(t, "anonymous", func() bool { return s.State().State == dto.SessionAnonymous })
	for i, err := range errs {
		if err == nil {
			t.Fatalf("caller %d succeeded", i)
		}
	}
	if storedRaw(t, s) != "" {
		t.Fatalf("store not cleared")
	}
	got := drain(ch, 50*time.Millisecond)
	if n := countKind(got, dto.NotificationSessionExpired); n != 1 {
		t.Fatalf("session_expired=%d want 1 (%v)", n, got)
	}
	for _, n := range got {
		if n.Kind == dto.NotificationSessionExpired && n.Message != sessionExpiredMessage {
			t.Fatalf("message=%q", n.Message)
		}
	}
	if clk.Pending() != 0 {
		t.Fatalf("timer left after forced logout")
	}
}

func TestSessionSvc_RenewAfter_Golden(t *testing.T) {
	t.Parallel()

	api := loginAPI(t, epoch.Add(15*time.Minute))
	s, _, _ := newHydratedSvc(t, api, "")
	ctx := context.Background()

	if _, err := s.RenewAfter(ctx, "anything"); !errors.Is(err, dto.ErrNoSession) {
		t.Fatalf("anonymous RenewAfter err=%v want ErrNoSession", err)
	}

	cred, err := s.Login(ctx, dto.LoginRequest{Secret: "pw"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	got, err := s.RenewAfter(ctx, "superseded-credential")
	if err != nil {
		t.Fatalf("RenewAfter: %v", err)
	}
	if got.Raw != cred.Raw {
		t.Fatalf("expected current credential back")
	}
	if n := len(api.Refreshes()); n != 0 {
		t.Fatalf("stale credential caused %d refreshes", n)
	}
}

func TestSessionSvc_RenewAfter_CoalescesCallers(t *testing.T) {
	t.Parallel()

	api := loginAPI(t, epoch.Add(15*time.Minute))
	renewed := signToken(t, "ana@example.com", epoch.Add(30*time.Minute))
	gate := make(chan struct{})
	api.refreshFn = func(ctx context.Context, raw string) (string, error) {
		<-gate
		return renewed, nil
	}
	s, _, _ := newHydratedSvc(t, api, "")
	ctx := context.Background()
	cred, err := s.Login(ctx, dto.LoginRequest{Secret: "pw"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := s.RenewAfter(ctx, cred.Raw)
			if err == nil {
				results[i] = c.Raw
			}
		}(i)
	}
	eventually(t, "refresh in flight", func() bool { return len(api.Refreshes()) == 1 })
	close(gate)
	wg.Wait()

	if n := len(api.Refreshes()); n != 1 {
		t.Fatalf("refreshes=%d want 1", n)
	}
	for i, r := range results {
		if r != renewed {
			t.Fatalf("caller %d got %q", i, r)
		}
	}
}

func TestSessionSvc_LogoutDuringRenewalDiscardsResult(t *testing.T) {
	t.Parallel()

	api := loginAPI(t, epoch.Add(15*time.Minute))
	renewed := signToken(t, "ana@example.com", epoch.Add(30*time.Minute))
	gate := make(chan struct{})
	api.refreshFn = func(ctx context.Context, raw string) (string, error) {
		<-gate
		return renewed, nil
	}
	s, _, clk := newHydratedSvc(t, api, "")
	ctx := context.Background()
	cred, err := s.Login(ctx, dto.LoginRequest{Secret: "pw"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	ch, unsub := s.SessionListener()
	defer unsub()

	done := make(chan error, 1)
	go func() {
		_, err := s.RenewAfter(ctx, cred.Raw)
		done <- err
	}()
	eventually(t, "refresh in flight", func() bool { return len(api.Refreshes()) == 1 })

	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	close(gate)

	select {
	case err := <-done:
		if !errors.Is(err, dto.ErrSessionClosed) {
			t.Fatalf("err=%v want ErrSessionClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RenewAfter did not return")
	}

	if storedRaw(t, s) != "" {
		t.Fatalf("discarded renewal reached the store")
	}
	if _, ok := s.Current(); ok {
		t.Fatalf("discarded renewal revived the session")
	}
	if clk.Pending() != 0 {
		t.Fatalf("discarded renewal re-armed the timer")
	}
	got := drain(ch, 50*time.Millisecond)
	if countKind(got, dto.NotificationSessionExpired) != 0 || countKind(got, dto.NotificationRenewed) != 0 {
		t.Fatalf("notifications=%v", got)
	}
}

func TestSessionSvc_TokenSource(t *testing.T) {
	t.Parallel()

	api := loginAPI(t, epoch.Add(15*time.Minute))
	s, _, _ := newHydratedSvc(t, api, "")
	ts := s.TokenSource()

	if _, err := ts.Token(); !errors.Is(err, dto.ErrNoSession) {
		t.Fatalf("anonymous token err=%v", err)
	}

	cred, err := s.Login(context.Background(), dto.LoginRequest{Secret: "pw"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	tok, err := ts.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != cred.Raw || tok.TokenType != "Bearer" || !tok.Expiry.Equal(epoch.Add(15*time.Minute)) {
		t.Fatalf("token=%+v", tok)
	}
}
