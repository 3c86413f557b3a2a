package gosession

import (
	"sync"

	"github.com/joy-dx/gosession/config"
	"github.com/joy-dx/gosession/dto"
	"github.com/joy-dx/gosession/metrics"
	"github.com/joy-dx/gosession/relays"
	"github.com/joy-dx/gosession/token"
)

var (
	service     *SessionSvc
	serviceOnce sync.Once
)

// ProvideSessionSvc returns the process wide session service.
func ProvideSessionSvc(cfg *config.SessionSvcConfig) *SessionSvc {
	serviceOnce.Do(func() {
		service = NewSessionSvc(cfg)
	})
	return service
}

// NewSessionSvc builds an unhydrated service. Most callers want ProvideSessionSvc.
func NewSessionSvc(cfg *config.SessionSvcConfig) *SessionSvc {
	s := &SessionSvc{
		cfg:       cfg,
		relay:     cfg.Relay(),
		clock:     cfg.Clock(),
		metrics:   metrics.OrNoop(cfg.Metrics()),
		inspector: token.NewInspector(),
		store:     cfg.CredentialStore(),
		clients:   make(map[string]dto.NetClientInterface),
		ready:     make(chan struct{}),
		state:     dto.SessionUnknown,
	}
	s.relay.Debug(relays.RlySessionLog{Msg: "Session service started"})
	return s
}
