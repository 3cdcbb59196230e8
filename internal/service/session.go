package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/infra/feed"
	"github.com/boddenberg/timely-go/internal/infra/observability"
	"github.com/boddenberg/timely-go/internal/port"
)

var sessionTracer = otel.Tracer("service/session")

// ErrSessionClosed is returned by calls made after Run has returned.
var ErrSessionClosed = errors.New("session closed")

// SessionConfig holds the per-session settings.
type SessionConfig struct {
	Questions []domain.OnboardingQuestion
	// Now is the clock used for new profiles; defaults to time.Now.
	Now func() time.Time
}

// SessionMachine derives the routing state of one device session from the
// credential provider's identity and the stored profile.
//
// All transitions run on the goroutine executing Run. Store calls run on
// worker goroutines and post their results back tagged with the identity
// epoch they were started in; a result whose epoch is no longer current is
// dropped, so a late load or save can never overwrite a newer state.
type SessionMachine struct {
	provider  port.CredentialProvider
	store     port.ProfileStore
	questions []domain.OnboardingQuestion
	policy    *bluemonday.Policy
	now       func() time.Time
	metrics   *observability.Metrics
	logger    *zap.Logger

	events  chan func()
	states  *feed.Feed[domain.SessionState]
	started atomic.Bool
	done    chan struct{}

	// Owned by the Run goroutine.
	runCtx     context.Context
	epoch      uint64
	identity   *domain.Identity
	state      domain.SessionState
	onboarding *Onboarding
}

// NewSessionMachine creates a machine in the Loading state. Call Run to
// start it.
func NewSessionMachine(provider port.CredentialProvider, store port.ProfileStore, cfg SessionConfig, metrics *observability.Metrics, logger *zap.Logger) *SessionMachine {
	questions := cfg.Questions
	if len(questions) == 0 {
		questions = domain.StandardQuestions()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SessionMachine{
		provider:  provider,
		store:     store,
		questions: questions,
		policy:    bluemonday.StrictPolicy(),
		now:       now,
		metrics:   metrics,
		logger:    logger,
		events:    make(chan func(), 16),
		states:    feed.NewWithValue(domain.LoadingState()),
		done:      make(chan struct{}),
		state:     domain.LoadingState(),
	}
}

// Run processes identity changes and store results until ctx is cancelled.
// It may only be called once.
func (m *SessionMachine) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("session machine already running")
	}
	defer m.states.Close()
	defer close(m.done)

	m.runCtx = ctx
	identities, cancel := m.provider.Subscribe()
	defer cancel()

	m.logger.Debug("session started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("session stopped")
			return nil
		case id, ok := <-identities:
			if !ok {
				identities = nil
				continue
			}
			m.onIdentity(id)
		case fn := <-m.events:
			fn()
		}
	}
}

// Done is closed once Run has returned.
func (m *SessionMachine) Done() <-chan struct{} {
	return m.done
}

// State returns the latest emitted state.
func (m *SessionMachine) State() domain.SessionState {
	s, _ := m.states.Current()
	return s
}

// Subscribe streams states, starting with the current one. A slow observer
// only receives the latest state. The channel closes when the session stops.
func (m *SessionMachine) Subscribe() (<-chan domain.SessionState, func()) {
	return m.states.Subscribe()
}

// Await blocks until a state satisfying pred is emitted.
func (m *SessionMachine) Await(ctx context.Context, pred func(domain.SessionState) bool) (domain.SessionState, error) {
	ch, cancel := m.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return m.State(), ctx.Err()
		case s, ok := <-ch:
			if !ok {
				return m.State(), ErrSessionClosed
			}
			if pred(s) {
				return s, nil
			}
		}
	}
}

// Settled reports whether the state is not Loading.
func Settled(s domain.SessionState) bool {
	return s.Status != domain.StatusLoading
}

// Onboarding returns the aggregator of the current Onboarding state.
func (m *SessionMachine) Onboarding(ctx context.Context) (*Onboarding, error) {
	var (
		ob     *Onboarding
		status domain.SessionStatus
	)
	if err := m.call(ctx, func() {
		ob = m.onboarding
		status = m.state.Status
	}); err != nil {
		return nil, err
	}
	if ob == nil {
		return nil, &domain.ErrWrongState{Operation: "onboarding", Status: status}
	}
	return ob, nil
}

// RequireHome returns the current state if it is Home.
func (m *SessionMachine) RequireHome(operation string) (domain.SessionState, error) {
	s := m.State()
	if s.Status != domain.StatusHome || s.Profile == nil {
		return s, &domain.ErrWrongState{Operation: operation, Status: s.Status}
	}
	return s, nil
}

// SignOut signs out at the provider and enters LoggedOut. The local state is
// cleared even when the provider call fails; that error is returned.
func (m *SessionMachine) SignOut(ctx context.Context) error {
	ctx, span := sessionTracer.Start(ctx, "Session.SignOut")
	defer span.End()

	err := m.provider.SignOut(ctx)
	if err != nil {
		m.logger.Warn("provider sign-out failed", zap.Error(err))
	}
	if callErr := m.call(ctx, func() {
		if m.provider.CurrentIdentity() != nil {
			return
		}
		m.epoch++
		m.identity = nil
		m.onboarding = nil
		m.setState(domain.LoggedOutState(""))
	}); callErr != nil {
		return callErr
	}
	return err
}

// Reload retries the profile load after a failed one. It is the only retry
// path; failures are never retried automatically.
func (m *SessionMachine) Reload(ctx context.Context) error {
	var err error
	if callErr := m.call(ctx, func() {
		if m.identity == nil || m.state.Status != domain.StatusLoggedOut || m.state.Error == "" {
			err = &domain.ErrWrongState{Operation: "reload", Status: m.state.Status}
			return
		}
		m.epoch++
		m.setState(domain.LoadingState())
		m.startLoad()
	}); callErr != nil {
		return callErr
	}
	return err
}

// ============================================================
// Transitions (Run goroutine only)
// ============================================================

func (m *SessionMachine) onIdentity(id *domain.Identity) {
	if id != nil && m.identity != nil && id.UserID == m.identity.UserID && settledFor(m.state) {
		// Token refresh or a repeated sign-in: keep the draft and any save
		// in flight.
		m.identity = id
		return
	}

	m.epoch++
	m.identity = id
	m.onboarding = nil

	if id == nil {
		m.setState(domain.LoggedOutState(""))
		return
	}
	m.setState(domain.LoadingState())
	m.startLoad()
}

// settledFor reports whether s is a resolved state for a signed-in user,
// one that a re-emission of the same identity must not restart.
func settledFor(s domain.SessionState) bool {
	return s.Status == domain.StatusOnboarding || s.Status == domain.StatusHome
}

func (m *SessionMachine) startLoad() {
	epoch := m.epoch
	userID := m.identity.UserID
	ctx := m.runCtx

	go func() {
		ctx, span := sessionTracer.Start(ctx, "Session.LoadProfile")
		defer span.End()
		span.SetAttributes(attribute.String("user.id", userID))

		start := time.Now()
		profile, err := m.store.Get(ctx, userID)
		m.metrics.RecordStoreDuration("get", time.Since(start))
		if err != nil {
			span.RecordError(err)
		}

		_ = m.post(ctx, func() { m.applyLoad(epoch, profile, err) })
	}()
}

func (m *SessionMachine) applyLoad(epoch uint64, profile *domain.UserProfile, err error) {
	if epoch != m.epoch {
		m.metrics.IncrStaleResult("load")
		m.logger.Debug("discarding stale profile load",
			zap.Uint64("epoch", epoch),
			zap.Uint64("current_epoch", m.epoch),
		)
		return
	}
	if err != nil {
		m.recordStoreError(err)
		m.logger.Error("profile load failed",
			zap.String("user_id", m.identity.UserID),
			zap.Error(err),
		)
	}

	identity := *m.identity
	state := domain.DeriveState(&identity, profile, err, func() *domain.UserProfile {
		return domain.DefaultProfileFor(identity, m.now())
	})
	if state.Status == domain.StatusOnboarding {
		m.onboarding = NewOnboarding(m.questions, state.Profile, m.policy, m.saver(epoch))
	}
	m.setState(state)
}

// saver returns the save function handed to the Onboarding aggregator of
// the given epoch.
func (m *SessionMachine) saver(epoch uint64) saveFunc {
	return func(ctx context.Context, profile *domain.UserProfile) error {
		ctx, span := sessionTracer.Start(ctx, "Session.SaveProfile")
		defer span.End()
		span.SetAttributes(attribute.String("user.id", profile.ID))

		start := time.Now()
		err := m.store.Put(ctx, profile)
		m.metrics.RecordStoreDuration("put", time.Since(start))
		if err != nil {
			span.RecordError(err)
			m.metrics.IncrOnboardingFinish("error")
			m.logger.Warn("onboarding save failed", zap.String("user_id", profile.ID), zap.Error(err))
			_ = m.post(ctx, func() { m.recordStoreError(err) })
			return err
		}
		m.metrics.IncrOnboardingFinish("success")

		var applyErr error
		if err := m.call(ctx, func() {
			if epoch != m.epoch {
				m.metrics.IncrStaleResult("save")
				m.logger.Debug("discarding stale onboarding save", zap.Uint64("epoch", epoch))
				applyErr = &domain.ErrWrongState{Operation: "finish", Status: m.state.Status}
				return
			}
			m.onboarding = nil
			m.setState(domain.SessionState{
				Status:  domain.StatusHome,
				UserID:  profile.ID,
				Profile: profile,
			})
		}); err != nil {
			return err
		}
		return applyErr
	}
}

func (m *SessionMachine) setState(s domain.SessionState) {
	if sameState(m.state, s) {
		return
	}
	m.state = s
	m.states.Publish(s)
	m.metrics.IncrTransition(s.Status)
	m.logger.Info("session state",
		zap.String("status", s.Status.String()),
		zap.String("user_id", s.UserID),
		zap.Uint64("epoch", m.epoch),
	)
}

func (m *SessionMachine) recordStoreError(err error) {
	var storeErr *domain.StoreError
	if errors.As(err, &storeErr) {
		m.metrics.IncrStoreError(storeErr.Kind)
		return
	}
	m.metrics.IncrStoreError(domain.StoreUnknown)
}

// sameState suppresses duplicate emissions such as LoggedOut twice in a row.
func sameState(a, b domain.SessionState) bool {
	return a.Status == b.Status && a.UserID == b.UserID && a.Error == b.Error && a.Profile == b.Profile
}

// ============================================================
// Event loop plumbing
// ============================================================

// post queues fn for the Run goroutine.
func (m *SessionMachine) post(ctx context.Context, fn func()) error {
	select {
	case m.events <- fn:
		return nil
	case <-m.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the Run goroutine and waits for it.
func (m *SessionMachine) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := m.post(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-m.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
