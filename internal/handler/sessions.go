package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/infra/cache"
	"github.com/boddenberg/timely-go/internal/infra/observability"
	"github.com/boddenberg/timely-go/internal/port"
	"github.com/boddenberg/timely-go/internal/service"
)

// DeviceSession pairs the credential provider of one device with the
// session machine observing it.
type DeviceSession struct {
	ID       string
	Provider port.CredentialProvider
	Machine  *service.SessionMachine

	cancel context.CancelFunc
}

// Sessions keeps one DeviceSession per device. Idle sessions expire after
// the configured TTL; every lookup extends it. Expired sessions have their
// machine stopped.
type Sessions struct {
	factory port.CredentialProviderFactory
	store   port.ProfileStore
	cfg     service.SessionConfig
	entries *cache.InMemory[*DeviceSession]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewSessions creates the registry.
func NewSessions(factory port.CredentialProviderFactory, store port.ProfileStore, cfg service.SessionConfig, idleTTL time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Sessions {
	s := &Sessions{
		factory: factory,
		store:   store,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
	s.entries = cache.New[*DeviceSession](idleTTL,
		cache.WithSliding[*DeviceSession](),
		cache.WithEvict(s.evict),
	)
	return s
}

// Open starts a new device session.
func (s *Sessions) Open() *DeviceSession {
	provider := s.factory.NewSession()
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	ds := &DeviceSession{
		ID:       id,
		Provider: provider,
		Machine:  service.NewSessionMachine(provider, s.store, s.cfg, s.metrics, s.logger.With(zap.String("session_id", id))),
		cancel:   cancel,
	}
	go func() {
		if err := ds.Machine.Run(ctx); err != nil {
			s.logger.Error("session machine failed", zap.String("session_id", id), zap.Error(err))
		}
	}()

	s.entries.Set(id, ds)
	s.metrics.SessionOpened()
	s.logger.Info("device session opened", zap.String("session_id", id))
	return ds
}

// Get returns the session and extends its idle timeout.
func (s *Sessions) Get(id string) (*DeviceSession, error) {
	ds, ok := s.entries.Get(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "session", ID: id}
	}
	return ds, nil
}

// Close stops a session explicitly.
func (s *Sessions) Close(id string) {
	s.entries.Delete(id)
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	return s.entries.Len()
}

// Shutdown stops every session.
func (s *Sessions) Shutdown() {
	s.entries.Stop()
}

func (s *Sessions) evict(id string, ds *DeviceSession) {
	ds.cancel()
	s.metrics.SessionClosed()
	s.logger.Info("device session closed", zap.String("session_id", id))
}
