package gosession

import (
	"sync"

	"github.com/joy-dx/gosession/config"
	"github.com/joy-dx/gosession/dto"
	"github.com/joy-dx/gosession/scheduler"
	relayDTO "github.com/joy-dx/relay/dto"
)

// SessionSvc supervises one authenticated session: boot from the credential
// store, login, logout, proactive and reactive renewal, and the requests made
// on the session's behalf.
type SessionSvc struct {
	cfg       *config.SessionSvcConfig
	relay     relayDTO.RelayInterface
	clock     dto.Clock
	metrics   dto.SessionMetrics
	inspector dto.Inspector
	store     dto.CredentialStore
	api       dto.AuthAPI
	scheduler *scheduler.Scheduler
	clients   map[string]dto.NetClientInterface

	closeStore  func() error
	hydrateOnce sync.Once
	hydrateErr  error
	ready       chan struct{}

	mu       sync.RWMutex
	state    dto.SessionState
	cred     dto.Credential
	profile  *dto.Profile
	epoch    uint64
	schedGen uint64

	muListeners sync.Mutex
	listeners   []*listener
}

func (s *SessionSvc) RegisterClient(ref string, client dto.NetClientInterface) {
	s.clients[ref] = client
}

// SessionListener returns a channel of session notifications and its
// unsubscribe func. The channel is closed once unsubscribed.
func (s *SessionSvc) SessionListener() (<-chan dto.SessionNotification, func()) {
	l := newListener(10)

	s.muListeners.Lock()
	s.listeners = append(s.listeners, l)
	s.muListeners.Unlock()

	unsub := func() {
		s.muListeners.Lock()
		out := s.listeners[:0]
		for _, c := range s.listeners {
			if c != l {
				out = append(out, c)
			}
		}
		s.listeners = out
		s.muListeners.Unlock()
		l.close()
	}

	return l.ch, unsub
}

// SessionListenerClose closes every listener channel
func (s *SessionSvc) SessionListenerClose() {
	s.muListeners.Lock()
	listeners := s.listeners
	s.listeners = nil
	s.muListeners.Unlock()

	for _, l := range listeners {
		l.close()
	}
}

// listener owns one subscriber channel. Sends and the final close are
// serialised through mu and senders, so ch is never closed under a sender.
type listener struct {
	ch   chan dto.SessionNotification
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	senders sync.WaitGroup
}

func newListener(size int) *listener {
	return &listener{
		ch:   make(chan dto.SessionNotification, size),
		done: make(chan struct{}),
	}
}

// deliver never blocks. A terminal notification that finds the buffer full
// is handed to a goroutine that waits for room or for the listener to close.
func (l *listener) deliver(n dto.SessionNotification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- n:
		return
	default:
	}
	if !n.Kind.IsTerminal() {
		return
	}
	l.senders.Add(1)
	go func() {
		defer l.senders.Done()
		select {
		case l.ch <- n:
		case <-l.done:
		}
	}()
}

func (l *listener) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()

	l.senders.Wait()
	close(l.ch)
}
