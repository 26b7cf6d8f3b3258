package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const defaultLoginTimeout = 30 * time.Second

var (
	ErrManagerClosed = errors.New("session manager is closed")
)

// Manager owns one broker session per trading mode. A session is created on first use
// and reused until it is invalidated after a login fault or the manager is closed.
type Manager struct {
	factory      entity.BrokerFactory
	credential   entity.BrokerCredential
	ca           entity.CACredential
	loginTimeout time.Duration

	group singleflight.Group

	mu       sync.RWMutex
	sessions map[entity.TradingMode]*entity.Session
	closed   bool
}

func NewManager(factory entity.BrokerFactory, cfg config.BrokerConfig) *Manager {
	loginTimeout := cfg.RequestTimeout * 3
	if loginTimeout <= 0 {
		loginTimeout = defaultLoginTimeout
	}

	return &Manager{
		factory:      factory,
		credential:   entity.BrokerCredential{APIKey: cfg.APIKey, SecretKey: cfg.SecretKey},
		ca:           entity.CACredential{Path: cfg.CAPath, Password: cfg.CAPassword},
		loginTimeout: loginTimeout,
		sessions:     make(map[entity.TradingMode]*entity.Session),
	}
}

// Acquire returns the cached session for mode or logs in. Concurrent callers for the
// same mode share a single login. Failures are always a *entity.LoginFault.
func (m *Manager) Acquire(ctx context.Context, mode entity.TradingMode) (*entity.Session, error) {
	m.mu.RLock()
	closed := m.closed
	session, ok := m.sessions[mode]
	m.mu.RUnlock()

	if closed {
		return nil, entity.NewLoginFault(entity.LoginFaultConfiguration, ErrManagerClosed.Error(), ErrManagerClosed)
	}
	if ok {
		return session, nil
	}

	ch := m.group.DoChan(string(mode), func() (any, error) {
		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.loginTimeout)
		defer cancel()
		return m.login(loginCtx, mode)
	})

	select {
	case <-ctx.Done():
		return nil, entity.NewLoginFault(entity.LoginFaultTimeout, "session acquisition aborted", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entity.Session), nil
	}
}

// Invalidate drops session if it is still the cached one for its mode. The next
// Acquire logs in again.
func (m *Manager) Invalidate(session *entity.Session) {
	if session == nil {
		return
	}

	m.mu.Lock()
	current, ok := m.sessions[session.Mode]
	if ok && current == session {
		delete(m.sessions, session.Mode)
	}
	m.mu.Unlock()

	if ok && current == session {
		logrus.WithField("mode", session.Mode).Warn("broker session invalidated")
	}
}

// Close logs out every cached session. Acquire fails afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[entity.TradingMode]*entity.Session)
	m.closed = true
	m.mu.Unlock()

	var errs []error
	for mode, session := range sessions {
		if err := session.Broker.Logout(ctx); err != nil {
			logrus.WithField("mode", mode).WithError(err).Warn("broker logout failed")
			errs = append(errs, fmt.Errorf("logout %s: %w", mode, err))
			continue
		}
		logrus.WithField("mode", mode).Info("broker session closed")
	}

	return errors.Join(errs...)
}

func (m *Manager) login(ctx context.Context, mode entity.TradingMode) (session *entity.Session, err error) {
	logger := logrus.WithField("mode", mode)

	defer func() {
		result := "success"
		if err != nil {
			result = "failed"
		}
		metrics.SessionLoginsTotal.WithLabelValues(string(mode), result).Inc()
	}()

	if strings.TrimSpace(m.credential.APIKey) == "" || strings.TrimSpace(m.credential.SecretKey) == "" {
		return nil, entity.NewLoginFault(entity.LoginFaultCredential, "broker api key or secret key is not set", nil)
	}

	if !mode.Simulation() && (strings.TrimSpace(m.ca.Path) == "" || strings.TrimSpace(m.ca.Password) == "") {
		return nil, entity.NewLoginFault(entity.LoginFaultConfiguration, "live trading requires broker ca_path and ca_password", nil)
	}

	broker, err := m.factory(mode)
	if err != nil {
		return nil, entity.NewLoginFault(entity.LoginFaultConfiguration, "create broker client", err)
	}

	accounts, err := broker.Login(ctx, m.credential)
	if err != nil {
		logger.WithError(err).Error("broker login failed")
		return nil, classifyLoginError("login", err)
	}

	account, ok := futuresAccount(accounts)
	if !ok {
		_ = broker.Logout(ctx)
		return nil, entity.NewLoginFault(entity.LoginFaultConfiguration, "no futures account found after login", nil)
	}

	if !mode.Simulation() {
		logger.WithField("person_id", account.PersonID).Info("activating ca certificate")
		if err := broker.ActivateCA(ctx, m.ca, account.PersonID); err != nil {
			logger.WithError(err).Error("ca activation failed")
			_ = broker.Logout(ctx)
			return nil, classifyLoginError("ca activation", err)
		}
	}

	session = &entity.Session{
		Mode:       mode,
		Broker:     broker,
		Account:    account,
		AcquiredAt: time.Now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		_ = broker.Logout(ctx)
		return nil, entity.NewLoginFault(entity.LoginFaultConfiguration, ErrManagerClosed.Error(), ErrManagerClosed)
	}
	m.sessions[mode] = session

	logger.WithField("account_id", account.AccountID).Info("broker session acquired")

	return session, nil
}

func futuresAccount(accounts []entity.BrokerAccount) (entity.BrokerAccount, bool) {
	for _, account := range accounts {
		if account.AccountType == entity.BrokerAccountTypeFutures {
			return account, true
		}
	}
	return entity.BrokerAccount{}, false
}

func classifyLoginError(step string, err error) *entity.LoginFault {
	message := fmt.Sprintf("%s: %v", step, err)

	if errors.Is(err, context.DeadlineExceeded) {
		return entity.NewLoginFault(entity.LoginFaultTimeout, message, err)
	}

	var brokerErr *entity.BrokerError
	if !errors.As(err, &brokerErr) {
		return entity.NewLoginFault(entity.LoginFaultConfiguration, message, err)
	}

	switch brokerErr.Code {
	case entity.BrokerErrorMaintenance:
		return entity.NewLoginFault(entity.LoginFaultMaintenance, message, err)
	case entity.BrokerErrorTimeout, entity.BrokerErrorUnavailable:
		return entity.NewLoginFault(entity.LoginFaultTimeout, message, err)
	case entity.BrokerErrorAccountNotSigned, entity.BrokerErrorAccountNotProvided:
		return entity.NewLoginFault(entity.LoginFaultConfiguration, message, err)
	default:
		return entity.NewLoginFault(entity.LoginFaultCredential, message, err)
	}
}
