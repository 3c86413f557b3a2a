// Package scheduler keeps a session credential fresh. It arms a single timer
// ahead of expiry and funnels every renewal demand, scheduled or reactive,
// through one in-flight network call.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joy-dx/gosession/dto"
	"github.com/joy-dx/gosession/metrics"
	"github.com/joy-dx/gosession/relays"
	"github.com/joy-dx/gosession/token"
	"github.com/joy-dx/gosession/utils"
	relayDTO "github.com/joy-dx/relay/dto"
	"golang.org/x/sync/singleflight"
)

type State int32

const (
	StateIdle State = iota
	StateArmed
	StateRenewing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRenewing:
		return "renewing"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Renewer performs the renewal call and commits its result.
type Renewer interface {
	Renew(ctx context.Context) (dto.Credential, error)
}

type RenewerFunc func(ctx context.Context) (dto.Credential, error)

func (f RenewerFunc) Renew(ctx context.Context) (dto.Credential, error) { return f(ctx) }

// FailureHandler runs once per failed renewal, before waiters are released.
// gen is the value Arm returned for the session that failed.
type FailureHandler func(gen uint64, err error)

type Options struct {
	Margin      time.Duration
	Timeout     time.Duration
	MinInterval time.Duration
	Clock       dto.Clock
	Relay       relayDTO.RelayInterface
	Metrics     dto.SessionMetrics
	OnFailure   FailureHandler
}

type Scheduler struct {
	renewer Renewer
	opts    Options
	group   singleflight.Group

	mu      sync.Mutex
	state   State
	gen     uint64
	round   uint64
	timer   dto.Timer
	timerID uint64
	current dto.Credential
}

func New(renewer Renewer, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = utils.SystemClock{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	opts.Metrics = metrics.OrNoop(opts.Metrics)
	return &Scheduler{renewer: renewer, opts: opts}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Arm starts tracking cred for a new session, replacing whatever was tracked.
// It returns the generation failures for this session will be reported under.
func (s *Scheduler) Arm(cred dto.Credential) uint64 {
	s.mu.Lock()
	s.stopTimerLocked()
	s.gen++
	s.round++
	s.current = cred
	s.state = StateArmed
	gen := s.gen
	immediate := s.scheduleLocked(cred, false)
	s.mu.Unlock()

	if immediate {
		s.kick(gen, dto.TriggerImmediate)
	}
	return gen
}

// Stop cancels any pending timer and detaches any in-flight renewal. The
// renewal call itself is not interrupted but its result is discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.gen++
	s.current = dto.Credential{}
	if s.state != StateIdle {
		s.log(relays.RlyRenewal{Msg: "scheduler stopped"})
	}
	s.state = StateIdle
}

// Renew joins the in-flight renewal or starts one. The caller stops waiting
// when ctx ends; the renewal itself carries on under its own timeout.
func (s *Scheduler) Renew(ctx context.Context) (dto.Credential, error) {
	return s.renewFrom(ctx, "", false)
}

// RenewFrom is Renew for a caller whose request carried stale. When the
// tracked credential has already moved past stale it is returned as is.
func (s *Scheduler) RenewFrom(ctx context.Context, stale string) (dto.Credential, error) {
	return s.renewFrom(ctx, stale, true)
}

func (s *Scheduler) renewFrom(ctx context.Context, stale string, checkStale bool) (dto.Credential, error) {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return dto.Credential{}, dto.ErrNoSession
	}
	if checkStale && s.current.Raw != stale {
		cur := s.current
		s.mu.Unlock()
		return cur, nil
	}
	gen, round := s.gen, s.round
	s.mu.Unlock()

	ch := s.start(gen, round, dto.TriggerReactive)
	select {
	case res := <-ch:
		cred, _ := res.Val.(dto.Credential)
		return cred, res.Err
	case <-ctx.Done():
		return dto.Credential{}, ctx.Err()
	}
}

func (s *Scheduler) kick(gen uint64, trigger dto.RenewalTrigger) {
	s.mu.Lock()
	if gen != s.gen || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	round := s.round
	s.mu.Unlock()
	s.start(gen, round, trigger)
}

func (s *Scheduler) start(gen, round uint64, trigger dto.RenewalTrigger) <-chan singleflight.Result {
	key := fmt.Sprintf("renew:%d:%d", gen, round)
	return s.group.DoChan(key, func() (any, error) {
		return s.run(gen, round, trigger)
	})
}

func (s *Scheduler) run(gen, round uint64, trigger dto.RenewalTrigger) (dto.Credential, error) {
	s.mu.Lock()
	if gen != s.gen || s.state == StateIdle {
		s.mu.Unlock()
		return dto.Credential{}, dto.ErrSessionClosed
	}
	if round != s.round {
		// A renewal finished between the caller reading round and starting.
		cur := s.current
		s.mu.Unlock()
		return cur, nil
	}
	s.state = StateRenewing
	s.stopTimerLocked()
	s.mu.Unlock()

	s.opts.Metrics.RenewalStarted(trigger)
	s.log(relays.RlyRenewal{Trigger: string(trigger), Msg: "renewal started"})
	started := s.opts.Clock.Now()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	cred, err := s.renewer.Renew(ctx)
	cancel()
	elapsed := s.opts.Clock.Now().Sub(started)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.opts.Metrics.RenewalFinished(trigger, dto.OutcomeDiscarded, elapsed)
		s.log(relays.RlyRenewal{Trigger: string(trigger), Outcome: string(dto.OutcomeDiscarded), Msg: "renewal result discarded"})
		return dto.Credential{}, dto.ErrSessionClosed
	}
	s.round++

	if err != nil {
		s.state = StateIdle
		s.current = dto.Credential{}
		s.mu.Unlock()

		s.opts.Metrics.RenewalFinished(trigger, dto.OutcomeFailure, elapsed)
		if s.opts.Relay != nil {
			s.opts.Relay.Warn(relays.RlyRenewal{
				Trigger: string(trigger),
				Outcome: string(dto.OutcomeFailure),
				Msg:     "renewal failed",
				Err:     err,
			})
		}
		if s.opts.OnFailure != nil && !errors.Is(err, dto.ErrSessionClosed) && !errors.Is(err, dto.ErrNoSession) {
			s.opts.OnFailure(gen, err)
		}
		return dto.Credential{}, err
	}

	s.current = cred
	s.state = StateArmed
	immediate := s.scheduleLocked(cred, true)
	s.mu.Unlock()

	s.opts.Metrics.RenewalFinished(trigger, dto.OutcomeSuccess, elapsed)
	if s.opts.Relay != nil {
		s.opts.Relay.Info(relays.RlyRenewal{
			Trigger:   string(trigger),
			Outcome:   string(dto.OutcomeSuccess),
			ExpiresAt: cred.Claims.ExpiresAt,
			Msg:       "renewal succeeded",
		})
	}
	if immediate {
		// round was bumped above, so this cannot join the flight that is finishing.
		go s.kick(gen, dto.TriggerImmediate)
	}
	return cred, nil
}

// scheduleLocked arms the timer for cred and reports whether renewal is due
// now instead. After a renewal, a due credential is retried no sooner than
// MinInterval.
func (s *Scheduler) scheduleLocked(cred dto.Credential, afterRenewal bool) bool {
	delay := token.RefreshDelay(cred, s.opts.Clock.Now(), s.opts.Margin)
	trigger := dto.TriggerScheduled
	if delay <= 0 {
		if !afterRenewal || s.opts.MinInterval <= 0 {
			s.log(relays.RlyRenewal{Trigger: string(dto.TriggerImmediate), Delay: delay, ExpiresAt: cred.Claims.ExpiresAt, Msg: "credential inside refresh margin"})
			return true
		}
		delay = s.opts.MinInterval
		trigger = dto.TriggerImmediate
	}

	s.timerID++
	id, gen := s.timerID, s.gen
	s.timer = s.opts.Clock.AfterFunc(delay, func() { s.fire(gen, id, trigger) })
	s.log(relays.RlyRenewal{Trigger: string(trigger), Delay: delay, ExpiresAt: cred.Claims.ExpiresAt, Msg: "renewal armed"})
	return false
}

func (s *Scheduler) fire(gen, id uint64, trigger dto.RenewalTrigger) {
	s.mu.Lock()
	if gen != s.gen || id != s.timerID || s.state != StateArmed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()
	s.kick(gen, trigger)
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerID++
}

func (s *Scheduler) log(evt relays.RlyRenewal) {
	if s.opts.Relay != nil {
		s.opts.Relay.Debug(evt)
	}
}
