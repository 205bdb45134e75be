package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/satonic/roomtrade/internal/ledger"
	"github.com/satonic/roomtrade/internal/models"
	"github.com/satonic/roomtrade/internal/names"
	"github.com/satonic/roomtrade/internal/offers"
	"go.uber.org/zap"
)

// SessionDeps are the collaborators shared by every session
type SessionDeps struct {
	Market             Marketplace
	Stream             Subscriber
	Activity           ActivityRecorder
	Publisher          Publisher
	Wallets            *WalletService
	BrokerWallet       string
	BrokerFeeThreshold string
}

type managedSession struct {
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// SessionManager creates and tracks widget sessions
type SessionManager struct {
	deps   SessionDeps
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*managedSession
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(deps SessionDeps, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		deps:     deps,
		logger:   logger,
		sessions: make(map[string]*managedSession),
	}
}

// SetPublisher sets the destination of session updates
func (m *SessionManager) SetPublisher(p Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps.Publisher = p
}

// Create starts a session for the widget user identified by displayName.
// Loading and streaming continue in the background.
func (m *SessionManager) Create(req models.SessionRequest) (*Session, error) {
	session, err := m.newSession(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	ms := &managedSession{session: session, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.sessions[session.ID] = ms
	m.mu.Unlock()

	go func() {
		defer close(ms.done)
		if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("session stopped following the ledger",
				zap.String("session_id", session.ID), zap.Error(err))
		}
	}()

	m.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("wallet", session.Local.WalletAddress),
		zap.Int("members", len(session.Members)))
	return session, nil
}

func (m *SessionManager) newSession(req models.SessionRequest) (*Session, error) {
	members := m.deps.Wallets.MembersFromEvents(req.Members)
	local, ok := m.deps.Wallets.LocalMember(members, req.DisplayName)
	if !ok || !m.deps.Wallets.IsAddressValid(local.WalletAddress) {
		return nil, ErrInvalidMembership
	}

	classifier, err := ledger.NewClassifier(local.WalletAddress, m.deps.BrokerFeeThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	m.mu.RLock()
	publisher := m.deps.Publisher
	m.mu.RUnlock()

	id := uuid.New().String()
	logger := m.logger.With(zap.String("session_id", id))

	s := &Session{
		ID:         id,
		Local:      local,
		Members:    members,
		CreatedAt:  time.Now(),
		market:     m.deps.Market,
		stream:     m.deps.Stream,
		classifier: classifier,
		nfts:       NewNFTService(m.deps.Market, logger),
		activity:   m.deps.Activity,
		publisher:  publisher,
		wallets:    m.deps.Wallets,
		parties:    offers.Parties{LocalWallet: local.WalletAddress, BrokerWallet: m.deps.BrokerWallet},
		logger:     m.logger,
	}
	s.state.Store(&State{Loading: true, UpdatedAt: s.CreatedAt})
	s.names.Store(names.NewResolver(members, nil, m.deps.BrokerWallet, local.WalletAddress, local.Name))
	return s, nil
}

// Get returns a running session
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ms.session, nil
}

// Stop cancels a session and waits for its background work to end
func (m *SessionManager) Stop(id string) error {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	ms.cancel()
	<-ms.done
	m.logger.Info("session stopped", zap.String("session_id", id))
	return nil
}

// StopAll stops every session
func (m *SessionManager) StopAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.Stop(id)
	}
}

// Count returns the number of running sessions
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
