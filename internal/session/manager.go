package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mollebakken/artconnect/internal/credcache"
	"github.com/mollebakken/artconnect/internal/directory"
	"github.com/mollebakken/artconnect/internal/identity"
	"github.com/mollebakken/artconnect/internal/netmon"
	"github.com/mollebakken/artconnect/internal/qrproto"
)

// User-facing notices emitted by the manager.
const (
	msgWelcomeBack    = "Welcome back!"
	msgWelcomeNew     = "Welcome to ArtConnect!"
	msgSignedOut      = "Signed out successfully"
	msgOffline        = "Cannot perform authentication while offline"
	msgNetworkError   = "Network error. Please check your connection."
	msgInvalidQR      = "Invalid QR code. Please try again."
	msgAuthRejected   = "Sign-in failed. Please check your credentials."
	msgGenericFailure = "Something went wrong. Please try again."
	msgRetryExhausted = "Unable to connect to authentication service. Please try again later."
)

// Manager owns the authentication session state machine. One Run goroutine
// reconciles the provider's notification stream with the connectivity signal;
// the operation methods are safe for concurrent use.
type Manager struct {
	cfg      Config
	provider identity.Provider
	dir      directory.Directory
	cache    CredentialCache
	monitor  *netmon.Monitor

	mu      sync.Mutex
	state   State
	current *Session
	nextID  int
	subs    map[int]chan *Session

	retryMu sync.Mutex
	retry   retryState
}

// NewManager creates a session manager from the configuration.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	cfg.ApplyDefaults()

	m := &Manager{
		cfg:      cfg,
		provider: cfg.Provider,
		dir:      cfg.Directory,
		cache:    cfg.Cache,
		monitor:  cfg.Monitor,
		state:    StateInitializing,
		subs:     make(map[int]chan *Session),
	}
	m.resetRetry()
	return m, nil
}

// Run initializes the provider and reconciles session state until ctx is
// cancelled. It must be running for sessions to be observed; the operation
// methods may be called concurrently with it.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.provider.ConfigurePersistence(ctx); err != nil {
		log.Warn().Err(err).Msg("provider initialization failed")
		if identity.Retryable(err) {
			if rerr := m.RetryAuth(ctx); rerr != nil {
				if errors.Is(rerr, context.Canceled) || errors.Is(rerr, context.DeadlineExceeded) {
					return rerr
				}
				log.Warn().Err(rerr).Msg("provider connection not restored")
				// Not a sign-out: the cached credential survives to back a
				// degraded session once the network signal catches up.
				m.reconcileSignedOut(false)
			}
		}
	} else {
		m.resetRetry()
	}

	netCh, cancel := m.monitor.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ident := <-m.provider.Notifications():
			m.handleIdentity(ctx, ident)
		case online := <-netCh:
			m.handleConnectivity(ctx, online)
		}
	}
}

// handleIdentity applies one element of the provider's ordered notification
// stream.
func (m *Manager) handleIdentity(ctx context.Context, ident *identity.Identity) {
	if ident != nil {
		m.setSession(&Session{
			ID:    ident.UID,
			Email: ident.Email,
			Role:  RoleParent,
		}, StateSignedIn)
		if m.monitor.Online() {
			m.cacheCredential(ctx, ident)
		}
		return
	}
	m.reconcileSignedOut(true)
}

// handleConnectivity applies a connectivity transition. A live session is
// never overridden here. The provider emits nothing of its own accord when
// the network returns, so the reconnect path re-runs provider initialization
// to re-emit the current identity; a degraded offline session is then
// replaced by whatever the provider answers, a live session or a sign-out.
func (m *Manager) handleConnectivity(ctx context.Context, online bool) {
	if online {
		log.Debug().Msg("connectivity restored")
		if err := m.provider.ConfigurePersistence(ctx); err != nil {
			log.Warn().Err(err).Msg("provider re-initialization failed")
			if identity.Retryable(err) {
				if rerr := m.RetryAuth(ctx); rerr != nil {
					log.Warn().Err(rerr).Msg("provider connection not restored")
				}
			}
			return
		}
		m.resetRetry()
		return
	}

	m.mu.Lock()
	live := m.current != nil && !m.current.Offline
	m.mu.Unlock()

	if live {
		return
	}
	m.reconcileSignedOut(false)
}

// reconcileSignedOut resolves the "no live identity" state: offline with a
// valid cached credential degrades to an offline session, everything else is
// signed out. The credential slot is cleared only for an actual sign-out — a
// nil identity notification received while online. Provider outages and
// connectivity loss leave the slot intact to back a later degraded session.
func (m *Manager) reconcileSignedOut(signedOut bool) {
	if !m.monitor.Online() {
		if s := m.offlineSession(); s != nil {
			m.setSession(s, StateOffline)
			return
		}
	} else if signedOut && m.cache != nil {
		if err := m.cache.Clear(); err != nil {
			log.Warn().Err(err).Msg("failed to clear offline credential slot")
		}
	}
	m.setSession(nil, StateSignedOut)
}

// offlineSession derives a degraded session from the credential cache. The
// session carries the sentinel id and the cached email, never a token.
func (m *Manager) offlineSession() *Session {
	if m.cache == nil {
		return nil
	}

	cred, err := m.cache.Load()
	if err != nil {
		log.Warn().Err(err).Msg("offline credential cache unavailable")
		return nil
	}
	if cred == nil {
		return nil
	}

	return &Session{
		ID:      OfflineSessionID,
		Email:   cred.Email,
		Role:    RoleParent,
		Offline: true,
	}
}

// SignInWithPassword authenticates with a short username and password. The
// login identity is synthesized as {username}@domain; bare usernames are the
// only password-flow identities the provider accepts from this client.
func (m *Manager) SignInWithPassword(ctx context.Context, username, password string) (*Session, error) {
	if err := m.guardOnline(); err != nil {
		return nil, err
	}

	email := fmt.Sprintf("%s@%s", username, m.cfg.Domain)

	ident, err := m.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, m.failAuth(ctx, err)
	}

	m.cacheCredential(ctx, ident)
	sess := m.adoptIdentity(ident)
	m.notify(Notice{Kind: KindSuccess, Message: msgWelcomeBack})
	return sess, nil
}

// SignInWithQR authenticates with a scanned parent QR payload. The first scan
// of a card provisions the account and its profile; later scans sign in to
// the existing account. Repeating a scan never duplicates state.
func (m *Manager) SignInWithQR(ctx context.Context, raw string) (*Session, error) {
	if err := m.guardOnline(); err != nil {
		return nil, err
	}

	payload, err := qrproto.Decode(raw)
	if err != nil {
		m.notify(Notice{Kind: KindError, Message: msgInvalidQR})
		return nil, err
	}

	if m.dir == nil {
		return nil, fmt.Errorf("no directory configured for QR sign-in")
	}

	rec, err := m.dir.ProvisioningRecord(ctx, payload.SubjectID)
	if err != nil {
		return nil, m.failAuth(ctx, err)
	}

	email := fmt.Sprintf("parent-%s@%s", payload.SubjectID, m.cfg.Domain)

	provisioned := false
	ident, err := m.provider.SignInWithPassword(ctx, email, rec.Token)
	if identity.IsCode(err, identity.CodeUserNotFound) {
		// First scan of this card: provision the account and its profile.
		ident, err = m.provider.CreateAccount(ctx, email, rec.Token)
		if err == nil {
			provisioned = true
			perr := m.dir.CreateProfile(ctx, ident.UID, directory.Profile{
				Email:    email,
				Role:     string(RoleParent),
				ParentID: payload.SubjectID,
			})
			if perr != nil {
				return nil, m.failAuth(ctx, perr)
			}
		}
	}
	if err != nil {
		return nil, m.failAuth(ctx, err)
	}

	if provisioned {
		log.Info().Str("subjectID", payload.SubjectID).Msg("parent account provisioned")
	}

	m.cacheCredential(ctx, ident)
	sess := m.adoptIdentity(ident)
	m.notify(Notice{Kind: KindSuccess, Message: msgWelcomeNew})
	return sess, nil
}

// SignOut ends the current session and clears the offline credential slot.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.guardOnline(); err != nil {
		return err
	}

	if err := m.provider.SignOut(ctx); err != nil {
		return m.failAuth(ctx, err)
	}

	if m.cache != nil {
		if err := m.cache.Clear(); err != nil {
			log.Warn().Err(err).Msg("failed to clear offline credential slot")
		}
	}

	m.setSession(nil, StateSignedOut)
	m.notify(Notice{Kind: KindSuccess, Message: msgSignedOut})
	return nil
}

// Current returns a copy of the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSession(m.current)
}

// State returns the manager's lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers for session transitions. Each element is the new
// session, nil for signed out. The returned cancel function is idempotent;
// the channel is never closed.
func (m *Manager) Subscribe() (<-chan *Session, func()) {
	ch := make(chan *Session, 8)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}

	return ch, cancel
}

// guardOnline rejects authentication operations while offline, before any
// network call is made.
func (m *Manager) guardOnline() error {
	if m.monitor.Online() {
		return nil
	}
	m.notify(Notice{Kind: KindError, Message: msgOffline})
	return ErrOffline
}

// failAuth handles an operation failure: network-class failures enter the
// bounded retry procedure, everything else surfaces as a user notice. The
// original error is returned so callers can classify it, except on retry
// exhaustion.
func (m *Manager) failAuth(ctx context.Context, err error) error {
	if identity.Retryable(err) {
		if rerr := m.RetryAuth(ctx); errors.Is(rerr, ErrRetryExhausted) {
			return rerr
		}
		m.notify(Notice{Kind: KindError, Message: msgNetworkError})
		return err
	}

	m.notify(Notice{Kind: KindError, Message: errorMessage(err)})
	return err
}

// cacheCredential refreshes the offline credential slot for a signed-in
// identity. Failures are logged, never surfaced; the sign-in already
// succeeded.
func (m *Manager) cacheCredential(ctx context.Context, ident *identity.Identity) {
	if m.cache == nil {
		return
	}

	token, err := m.provider.FetchToken(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("token fetch failed; offline credential not refreshed")
		return
	}

	if err := m.cache.Save(credcache.New(ident.Email, token)); err != nil {
		log.Warn().Err(err).Msg("failed to save offline credential")
	}
}

func (m *Manager) adoptIdentity(ident *identity.Identity) *Session {
	s := &Session{
		ID:    ident.UID,
		Email: ident.Email,
		Role:  RoleParent,
	}
	m.setSession(s, StateSignedIn)
	return cloneSession(s)
}

// setSession applies a state transition and notifies subscribers. Applying
// the state the manager already holds has no observable effect.
func (m *Manager) setSession(s *Session, state State) {
	m.mu.Lock()
	if m.state == state && sameSession(m.current, s) {
		m.mu.Unlock()
		return
	}
	m.current = cloneSession(s)
	m.state = state

	targets := make([]chan *Session, 0, len(m.subs))
	for _, ch := range m.subs {
		targets = append(targets, ch)
	}
	m.mu.Unlock()

	ev := log.Debug().Str("state", string(state))
	if s != nil {
		ev = ev.Str("id", s.ID).Bool("offline", s.Offline)
	}
	ev.Msg("session transition")

	for _, ch := range targets {
		select {
		case ch <- cloneSession(s):
		default:
			// Subscriber is not keeping up; it will observe the latest
			// session via Current() when it drains.
		}
	}
}

func (m *Manager) notify(n Notice) {
	m.cfg.Notifier.Notify(n)
}

// errorMessage maps a classified failure to its user-facing notice.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, qrproto.ErrMalformedPayload),
		errors.Is(err, directory.ErrUnknownSubject):
		return msgInvalidQR
	case identity.Retryable(err):
		return msgNetworkError
	case identity.IsCode(err, identity.CodeAuthRejected),
		identity.IsCode(err, identity.CodeUserNotFound):
		return msgAuthRejected
	default:
		return msgGenericFailure
	}
}

func cloneSession(s *Session) *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func sameSession(a, b *Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
