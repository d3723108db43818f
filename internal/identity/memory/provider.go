// Package memory implements identity.Provider with in-memory accounts.
// This implementation is for testing and examples only - data is lost on restart.
package memory

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mollebakken/artconnect/internal/identity"
)

const tokenTTL = time.Hour

type account struct {
	uid      string
	email    string
	password string
}

// Provider is an in-memory identity provider.
type Provider struct {
	mu         sync.Mutex
	accounts   map[string]*account // keyed by email
	current    *identity.Identity
	signingKey []byte
	persistent bool

	// failWith, when set, is returned by the next provider call. Used to
	// script partial-failure scenarios in tests.
	failWith error

	notifications chan *identity.Identity
}

// NewProvider creates an empty in-memory provider.
func NewProvider() *Provider {
	key := make([]byte, 32)
	_, _ = rand.Read(key)

	return &Provider{
		accounts:      make(map[string]*account),
		signingKey:    key,
		notifications: make(chan *identity.Identity, 16),
	}
}

// Seed registers an account without signing it in.
func (p *Provider) Seed(email, password string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	uid := uuid.NewString()
	p.accounts[email] = &account{uid: uid, email: email, password: password}
	return uid
}

// FailWith arranges for the next provider call to fail with err.
func (p *Provider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

// AccountCount returns the number of registered accounts.
func (p *Provider) AccountCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.accounts)
}

func (p *Provider) takeFailure() error {
	err := p.failWith
	p.failWith = nil
	return err
}

func (p *Provider) ConfigurePersistence(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure(); err != nil {
		return err
	}

	p.persistent = true
	p.emit(p.current)
	return nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure(); err != nil {
		return nil, err
	}

	acct, ok := p.accounts[email]
	if !ok {
		return nil, &identity.Error{Code: identity.CodeUserNotFound, Message: "EMAIL_NOT_FOUND"}
	}
	if acct.password != password {
		return nil, &identity.Error{Code: identity.CodeAuthRejected, Message: "INVALID_PASSWORD"}
	}

	ident := &identity.Identity{UID: acct.uid, Email: acct.email}
	p.current = ident
	p.emit(ident)
	return ident, nil
}

func (p *Provider) CreateAccount(ctx context.Context, email, password string) (*identity.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure(); err != nil {
		return nil, err
	}

	if _, ok := p.accounts[email]; ok {
		return nil, &identity.Error{Code: identity.CodeAuthRejected, Message: "EMAIL_EXISTS"}
	}

	acct := &account{uid: uuid.NewString(), email: email, password: password}
	p.accounts[email] = acct

	ident := &identity.Identity{UID: acct.uid, Email: acct.email}
	p.current = ident
	p.emit(ident)
	return ident, nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure(); err != nil {
		return err
	}

	p.current = nil
	p.emit(nil)
	return nil
}

// FetchToken mints a short-lived HS256 token for the signed-in identity.
func (p *Provider) FetchToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure(); err != nil {
		return "", err
	}

	if p.current == nil {
		return "", &identity.Error{Code: identity.CodeInternal, Message: "no signed-in identity"}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   p.current.UID,
		"email": p.current.Email,
		"iat":   jwt.NewNumericDate(now),
		"exp":   jwt.NewNumericDate(now.Add(tokenTTL)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
	if err != nil {
		return "", &identity.Error{Code: identity.CodeInternal, Err: err}
	}
	return token, nil
}

func (p *Provider) Notifications() <-chan *identity.Identity {
	return p.notifications
}

// emit must be called with the mutex held; the channel is buffered so the
// ordered stream never blocks provider calls. A full buffer drops the oldest
// element so the latest identity always lands.
func (p *Provider) emit(ident *identity.Identity) {
	var copyIdent *identity.Identity
	if ident != nil {
		c := *ident
		copyIdent = &c
	}
	for {
		select {
		case p.notifications <- copyIdent:
			return
		default:
			select {
			case <-p.notifications:
			default:
			}
		}
	}
}
