package session

import (
	"context"
	"log/slog"
	"net/http"
)

// Manager is the externally visible session surface: sign-in, sign-out, and
// the authenticated HTTP client whose transport is the request gate. The
// excluded presentation layer only ever talks to this type.
type Manager struct {
	store  *Store
	auth   Authenticator
	coord  *Coordinator
	gate   *Gate
	sink   EventSink
	logger *slog.Logger
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Store       *Store
	Auth        Authenticator
	Coordinator *Coordinator
	Gate        *Gate

	// Sink receives sign-in/sign-out audit events; nil means none.
	Sink EventSink

	Logger *slog.Logger
}

// NewManager creates a session facade over an assembled store, auth client,
// coordinator, and gate.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		store:  cfg.Store,
		auth:   cfg.Auth,
		coord:  cfg.Coordinator,
		gate:   cfg.Gate,
		sink:   cfg.Sink,
		logger: cfg.Logger,
	}

	if m.sink == nil {
		m.sink = nopSink{}
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}

	return m
}

// SignIn authenticates with the principal and secret and persists the
// issued credential pair. The call goes straight to the authentication
// endpoint, since no credential exists yet for the gate to attach. The raw grant
// is returned for the caller to display.
func (m *Manager) SignIn(ctx context.Context, principal, secret string) (*Grant, error) {
	grant, err := m.auth.SignIn(ctx, principal, secret)
	if err != nil {
		m.logger.Warn("sign-in failed", slog.String("principal", principal))
		return nil, err
	}

	if err := m.store.Save(grant.Access, grant.Renewal, grant.TTL, grant.UserInfo); err != nil {
		return nil, err
	}

	m.logger.Info("signed in",
		slog.String("principal", principal),
		slog.Time("expiry", m.store.Expiry()),
	)
	m.sink.Record(ctx, EventSignIn, principal)

	return grant, nil
}

// SignOut notifies the authentication endpoint (best-effort: an unreachable
// server must not trap the user in a half-signed-out state) and then
// unconditionally clears local credentials.
func (m *Manager) SignOut(ctx context.Context) error {
	if access := m.store.Access(); access != "" {
		if err := m.auth.SignOut(ctx, access); err != nil {
			m.logger.Warn("remote sign-out failed, clearing local session anyway",
				slog.String("error", err.Error()),
			)
		}
	}

	if err := m.store.Clear(); err != nil {
		return err
	}

	m.logger.Info("signed out")
	m.sink.Record(ctx, EventSignOut, "")

	return nil
}

// Active reports whether a usable session exists right now.
func (m *Manager) Active() bool {
	return m.store.Authenticated()
}

// Store exposes the credential store for read-side consumers (status
// display, subscriptions).
func (m *Manager) Store() *Store {
	return m.store
}

// Client returns an HTTP client whose transport is the request gate. Every
// business call made through it gets credential attachment, proactive
// renewal, and the retry-once-on-rejection policy.
func (m *Manager) Client() *http.Client {
	return &http.Client{Transport: m.gate}
}
